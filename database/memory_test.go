package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/apnabank/corebank/internal/apierror"
	"github.com/apnabank/corebank/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, ds *MemoryDatasource, number string, balance int64) {
	t.Helper()
	require.NoError(t, ds.CreateAccount(context.Background(), &model.Account{
		AccountNumber: number,
		OwnerID:       "user-1",
		AccountType:   model.AccountTypeSavings,
		Balance:       decimal.NewFromInt(balance),
		Currency:      model.Currency,
		Status:        model.AccountStatusApproved,
		Active:        true,
		CreatedAt:     time.Now(),
	}))
}

func TestMemoryWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDataSource()
	seedAccount(t, ds, "111111111111", 100)

	boom := errors.New("boom")
	err := ds.WithTx(ctx, func(ctx context.Context, tx IDataSource) error {
		acct, err := tx.GetAccount(ctx, "111111111111")
		require.NoError(t, err)
		acct.Balance = decimal.Zero
		require.NoError(t, tx.UpdateAccount(ctx, acct))
		require.NoError(t, tx.RecordTransaction(ctx, &model.Transaction{TransactionNumber: "txn_1", FromAccount: "111111111111", Amount: decimal.NewFromInt(100), Status: model.TransactionStatusCompleted}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	acct, err := ds.GetAccount(ctx, "111111111111")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(acct.Balance))
	assert.Equal(t, int64(0), acct.Version)
	_, err = ds.GetTransaction(ctx, "txn_1")
	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound))
}

func TestMemoryWithTx_CommitsAndNests(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDataSource()
	seedAccount(t, ds, "111111111111", 100)

	err := ds.WithTx(ctx, func(ctx context.Context, tx IDataSource) error {
		return tx.WithTx(ctx, func(ctx context.Context, inner IDataSource) error {
			acct, err := inner.GetAccount(ctx, "111111111111")
			if err != nil {
				return err
			}
			acct.Balance = decimal.NewFromInt(60)
			return inner.UpdateAccount(ctx, acct)
		})
	})
	require.NoError(t, err)

	acct, err := ds.GetAccount(ctx, "111111111111")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(60).Equal(acct.Balance))
	assert.Equal(t, int64(1), acct.Version)
}

func TestMemoryUpdate_StaleVersion(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDataSource()
	seedAccount(t, ds, "111111111111", 100)

	first, _ := ds.GetAccount(ctx, "111111111111")
	second, _ := ds.GetAccount(ctx, "111111111111")

	require.NoError(t, ds.UpdateAccount(ctx, first))
	err := ds.UpdateAccount(ctx, second)
	assert.True(t, apierror.IsCode(err, apierror.ErrConflict))
}

func TestMemoryTransactions_IdempotencyKeyIsUnique(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDataSource()

	require.NoError(t, ds.RecordTransaction(ctx, &model.Transaction{TransactionNumber: "txn_1", IdempotencyKey: "k1"}))
	err := ds.RecordTransaction(ctx, &model.Transaction{TransactionNumber: "txn_2", IdempotencyKey: "k1"})
	assert.True(t, apierror.IsCode(err, apierror.ErrConflict))

	got, err := ds.GetTransactionByIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "txn_1", got.TransactionNumber)

	_, err = ds.GetTransactionByIdempotencyKey(ctx, "missing")
	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound))
}

func TestMemorySettleTransaction(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDataSource()
	at := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, ds.RecordTransaction(ctx, &model.Transaction{TransactionNumber: "txn_1", Status: model.TransactionStatusPending}))
	require.NoError(t, ds.SettleTransaction(ctx, "txn_1", model.TransactionStatusFailed, "beneficiary bank rejected", at))

	txn, err := ds.GetTransaction(ctx, "txn_1")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusFailed, txn.Status)
	assert.Equal(t, "beneficiary bank rejected", txn.FailureReason)
	require.NotNil(t, txn.SettledAt)
	assert.Equal(t, at, *txn.SettledAt)

	err = ds.SettleTransaction(ctx, "txn_1", model.TransactionStatusCompleted, "", at)
	assert.True(t, apierror.IsCode(err, apierror.ErrInvalidState))
}

func TestMemoryListAccountTransactions_OrderedAndBounded(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDataSource()
	day := func(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, ds.RecordTransaction(ctx, &model.Transaction{TransactionNumber: "late", ToAccount: "a", CreatedAt: day(9)}))
	require.NoError(t, ds.RecordTransaction(ctx, &model.Transaction{TransactionNumber: "early", FromAccount: "a", CreatedAt: day(2)}))
	require.NoError(t, ds.RecordTransaction(ctx, &model.Transaction{TransactionNumber: "other", ToAccount: "b", CreatedAt: day(3)}))
	require.NoError(t, ds.RecordTransaction(ctx, &model.Transaction{TransactionNumber: "future", ToAccount: "a", CreatedAt: day(20)}))

	txns, err := ds.ListAccountTransactions(ctx, "a", day(10))
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "early", txns[0].TransactionNumber)
	assert.Equal(t, "late", txns[1].TransactionNumber)
}

func TestMemoryDueRecurringDeposits(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDataSource()
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	due := model.NewRecurringDeposit("111111111111", "user-1", decimal.NewFromInt(1000), 6, 5, decimal.RequireFromString("5.0"), start)
	done := model.NewRecurringDeposit("111111111111", "user-1", decimal.NewFromInt(1000), 6, 5, decimal.RequireFromString("5.0"), start)
	done.InstallmentsPaid = 5
	done.MissedInstallments = 1
	require.NoError(t, ds.CreateRecurringDeposit(ctx, &due))
	require.NoError(t, ds.CreateRecurringDeposit(ctx, &done))

	list, err := ds.ListDueRecurringDeposits(ctx, start)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, due.DepositNumber, list[0].DepositNumber)

	list, err = ds.ListDueRecurringDeposits(ctx, start.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryInstructionExecutions(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDataSource()
	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	si := &model.StandingInstruction{ID: "si_1", OwnerID: "user-1", Active: true, Status: model.InstructionStatusScheduled, NextExecutionDate: due}
	require.NoError(t, ds.CreateInstruction(ctx, si))

	list, err := ds.ListDueInstructions(ctx, due)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	err = ds.RecordExecution(ctx, &model.InstructionExecution{ExecutionID: "x1", InstructionID: "missing"})
	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound))

	require.NoError(t, ds.RecordExecution(ctx, &model.InstructionExecution{ExecutionID: "x1", InstructionID: "si_1", Status: model.ExecutionCompleted}))
	execs, err := ds.ListExecutions(ctx, "si_1")
	require.NoError(t, err)
	assert.Len(t, execs, 1)
}

func TestMemoryConcurrentTransactionsSerialize(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDataSource()
	seedAccount(t, ds, "111111111111", 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ds.WithTx(ctx, func(ctx context.Context, tx IDataSource) error {
				accounts, err := tx.LockAccounts(ctx, "111111111111")
				if err != nil {
					return err
				}
				acct := accounts["111111111111"]
				acct.Balance = acct.Balance.Add(decimal.NewFromInt(1))
				return tx.UpdateAccount(ctx, acct)
			})
		}()
	}
	wg.Wait()

	acct, err := ds.GetAccount(ctx, "111111111111")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(50).Equal(acct.Balance))
	assert.Equal(t, int64(50), acct.Version)
}
