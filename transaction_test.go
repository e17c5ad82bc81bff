package corebank

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apnabank/corebank/internal/apierror"
	"github.com/apnabank/corebank/model"
)

func TestTransfer(t *testing.T) {
	b, _, events := newTestBank(t)
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "1000.00")
	to := openApprovedAccount(t, b, "user-2", "50.00")

	txn, err := b.Transfer(ctx, model.TransferRequest{
		From:        from.AccountNumber,
		To:          to.AccountNumber,
		Amount:      amount("300.25"),
		Description: "rent",
		InitiatedBy: "user-1",
	})
	require.NoError(t, err)

	assert.Equal(t, model.TransactionTypeTransfer, txn.Type)
	assert.Equal(t, model.TransactionStatusCompleted, txn.Status)
	assert.Equal(t, "INR", txn.Currency)
	assert.NotNil(t, txn.SettledAt)
	assert.Equal(t, "699.75", balanceOf(t, b, from.AccountNumber).StringFixed(2))
	assert.Equal(t, "350.25", balanceOf(t, b, to.AccountNumber).StringFixed(2))
	assert.Contains(t, events.Types(), model.EventTransactionCompleted)

	stored, err := b.GetTransaction(ctx, txn.TransactionNumber)
	require.NoError(t, err)
	assert.True(t, amount("300.25").Equal(stored.Amount))
}

func TestInstantTransferType(t *testing.T) {
	b, _, _ := newTestBank(t)
	from := openApprovedAccount(t, b, "user-1", "100")
	to := openApprovedAccount(t, b, "user-2", "0")

	txn, err := b.InstantTransfer(context.Background(), model.TransferRequest{From: from.AccountNumber, To: to.AccountNumber, Amount: amount("1"), InitiatedBy: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, model.TransactionTypeInstantTransfer, txn.Type)
}

func TestTransferFailuresLeaveBalancesUntouched(t *testing.T) {
	b, _, _ := newTestBank(t)
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "100.00")
	to := openApprovedAccount(t, b, "user-2", "0")

	pending, err := b.OpenAccount(ctx, model.OpenAccountRequest{OwnerID: "user-3", AccountType: model.AccountTypeSavings})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  model.TransferRequest
		code apierror.ErrorCode
	}{
		{"insufficient funds", model.TransferRequest{From: from.AccountNumber, To: to.AccountNumber, Amount: amount("100.01"), InitiatedBy: "user-1"}, apierror.ErrInsufficientFunds},
		{"zero amount", model.TransferRequest{From: from.AccountNumber, To: to.AccountNumber, Amount: decimal.Zero, InitiatedBy: "user-1"}, apierror.ErrValidation},
		{"same account", model.TransferRequest{From: from.AccountNumber, To: from.AccountNumber, Amount: amount("1"), InitiatedBy: "user-1"}, apierror.ErrValidation},
		{"three decimals", model.TransferRequest{From: from.AccountNumber, To: to.AccountNumber, Amount: amount("1.005"), InitiatedBy: "user-1"}, apierror.ErrValidation},
		{"unknown destination", model.TransferRequest{From: from.AccountNumber, To: "999999999999", Amount: amount("1"), InitiatedBy: "user-1"}, apierror.ErrNotFound},
		{"pending destination", model.TransferRequest{From: from.AccountNumber, To: pending.AccountNumber, Amount: amount("1"), InitiatedBy: "user-1"}, apierror.ErrInvalidState},
		{"not the owner", model.TransferRequest{From: from.AccountNumber, To: to.AccountNumber, Amount: amount("1"), InitiatedBy: "user-2"}, apierror.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Transfer(ctx, tt.req)
			assertCode(t, err, tt.code)
			assert.Equal(t, "100.00", balanceOf(t, b, from.AccountNumber).StringFixed(2))
			assert.True(t, balanceOf(t, b, to.AccountNumber).IsZero())
		})
	}
}

func TestTransferIsIdempotent(t *testing.T) {
	b, _, _ := newTestBank(t)
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "500.00")
	to := openApprovedAccount(t, b, "user-2", "0")

	req := model.TransferRequest{From: from.AccountNumber, To: to.AccountNumber, Amount: amount("200"), IdempotencyKey: "pay-42", InitiatedBy: "user-1"}
	first, err := b.Transfer(ctx, req)
	require.NoError(t, err)
	second, err := b.Transfer(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.TransactionNumber, second.TransactionNumber)
	assert.Equal(t, "300.00", balanceOf(t, b, from.AccountNumber).StringFixed(2))

	history, err := b.datasource.ListAccountTransactions(ctx, to.AccountNumber, testStart)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestTransferIdempotencyThroughRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b, _, _ := newTestBank(t, WithRedis(client))
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "500.00")
	to := openApprovedAccount(t, b, "user-2", "0")

	req := model.TransferRequest{From: from.AccountNumber, To: to.AccountNumber, Amount: amount("120"), IdempotencyKey: "cached-1", InitiatedBy: "user-1"}
	first, err := b.Transfer(ctx, req)
	require.NoError(t, err)
	assert.True(t, mr.Exists(idempotencyCacheKey("cached-1")))

	second, err := b.Transfer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.TransactionNumber, second.TransactionNumber)
	assert.Equal(t, "380.00", balanceOf(t, b, from.AccountNumber).StringFixed(2))
}

func TestStaleIdempotencyEntryIsDropped(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b, _, _ := newTestBank(t, WithRedis(client))
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "500.00")
	to := openApprovedAccount(t, b, "user-2", "0")

	require.NoError(t, b.cache.Set(ctx, idempotencyCacheKey("stale-1"), "TXN-GONE", time.Hour))
	assert.Nil(t, b.cachedTransaction(ctx, "stale-1"))
	assert.False(t, mr.Exists(idempotencyCacheKey("stale-1")))

	txn, err := b.Transfer(ctx, model.TransferRequest{From: from.AccountNumber, To: to.AccountNumber, Amount: amount("50"), IdempotencyKey: "stale-1", InitiatedBy: "user-1"})
	require.NoError(t, err)
	assert.NotEqual(t, "TXN-GONE", txn.TransactionNumber)
	assert.Equal(t, "450.00", balanceOf(t, b, from.AccountNumber).StringFixed(2))
}

func TestConcurrentTransfersConserveMoney(t *testing.T) {
	b, _, _ := newTestBank(t)
	ctx := context.Background()
	a := openApprovedAccount(t, b, "user-1", "1000.00")
	c := openApprovedAccount(t, b, "user-2", "1000.00")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to, owner := a.AccountNumber, c.AccountNumber, "user-1"
			if i%2 == 1 {
				from, to, owner = to, from, "user-2"
			}
			_, _ = b.Transfer(ctx, model.TransferRequest{From: from, To: to, Amount: amount("75.50"), IdempotencyKey: fmt.Sprintf("k-%d", i), InitiatedBy: owner})
		}(i)
	}
	wg.Wait()

	total := balanceOf(t, b, a.AccountNumber).Add(balanceOf(t, b, c.AccountNumber))
	assert.Equal(t, "2000.00", total.StringFixed(2))
	assert.False(t, balanceOf(t, b, a.AccountNumber).IsNegative())
	assert.False(t, balanceOf(t, b, c.AccountNumber).IsNegative())
}

func internationalRequest(from string) model.InternationalTransferRequest {
	return model.InternationalTransferRequest{
		From:     from,
		Amount:   amount("400.00"),
		Currency: "usd",
		Purpose:  "tuition",
		Beneficiary: model.Beneficiary{
			Name:          "Jane Roe",
			BankName:      "First Bank",
			SwiftCode:     "FIRSUS33",
			AccountNumber: "US-0042",
		},
		IdempotencyKey: "intl-1",
		InitiatedBy:    "user-1",
	}
}

func TestInternationalTransferSettles(t *testing.T) {
	b, _, events := newTestBank(t)
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "1000.00")

	txn, err := b.InternationalTransfer(ctx, internationalRequest(from.AccountNumber))
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusPending, txn.Status)
	assert.Nil(t, txn.SettledAt)
	assert.Equal(t, "US-0042", txn.ExternalReference)
	assert.Contains(t, txn.Description, "payout in USD")
	assert.Equal(t, "600.00", balanceOf(t, b, from.AccountNumber).StringFixed(2))

	settled, err := b.SettleInternationalTransfer(ctx, txn.TransactionNumber, testAdmin, true, "ignored")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusCompleted, settled.Status)
	assert.Empty(t, settled.FailureReason)
	assert.Equal(t, "600.00", balanceOf(t, b, from.AccountNumber).StringFixed(2))

	_, err = b.SettleInternationalTransfer(ctx, txn.TransactionNumber, testAdmin, false, "late")
	assertCode(t, err, apierror.ErrInvalidState)

	assert.Contains(t, events.Types(), model.EventTransactionPending)
}

func TestInternationalTransferFailureRefunds(t *testing.T) {
	b, _, events := newTestBank(t)
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "1000.00")

	txn, err := b.InternationalTransfer(ctx, internationalRequest(from.AccountNumber))
	require.NoError(t, err)

	failed, err := b.SettleInternationalTransfer(ctx, txn.TransactionNumber, testAdmin, false, "beneficiary bank rejected")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusFailed, failed.Status)
	assert.Equal(t, "beneficiary bank rejected", failed.FailureReason)
	assert.Equal(t, "1000.00", balanceOf(t, b, from.AccountNumber).StringFixed(2))
	assert.Contains(t, events.Types(), model.EventTransactionFailed)

	st, err := b.Statement(ctx, from.AccountNumber, testStart.Add(-time.Hour), testStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "1000.00", st.ClosingBalance.StringFixed(2))
}

func TestSettleRejectsOtherTransactions(t *testing.T) {
	b, _, _ := newTestBank(t)
	from := openApprovedAccount(t, b, "user-1", "100")
	to := openApprovedAccount(t, b, "user-2", "0")
	txn, err := b.Transfer(context.Background(), model.TransferRequest{From: from.AccountNumber, To: to.AccountNumber, Amount: amount("1"), InitiatedBy: "user-1"})
	require.NoError(t, err)

	_, err = b.SettleInternationalTransfer(context.Background(), txn.TransactionNumber, testAdmin, true, "")
	assertCode(t, err, apierror.ErrInvalidState)
}

func TestPayBill(t *testing.T) {
	b, _, _ := newTestBank(t)
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "2000.00")

	txn, err := b.PayBill(ctx, model.BillPaymentRequest{
		From:            from.AccountNumber,
		BillerID:        "ELEC001",
		BillerReference: "CONS-7781",
		Amount:          amount("1450.00"),
		InitiatedBy:     "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TransactionTypeBillPayment, txn.Type)
	assert.Equal(t, "ELEC001:CONS-7781", txn.ExternalReference)
	assert.Empty(t, txn.ToAccount)
	assert.Equal(t, "550.00", balanceOf(t, b, from.AccountNumber).StringFixed(2))

	_, err = b.PayBill(ctx, model.BillPaymentRequest{From: from.AccountNumber, BillerID: "NOPE", BillerReference: "x", Amount: amount("1"), InitiatedBy: "user-1"})
	assertCode(t, err, apierror.ErrNotFound)

	_, err = b.PayBill(ctx, model.BillPaymentRequest{From: from.AccountNumber, BillerID: "WATER001", BillerReference: "x", Amount: amount("600"), InitiatedBy: "user-1"})
	assertCode(t, err, apierror.ErrInsufficientFunds)
}

func TestTransferRequiresInitiator(t *testing.T) {
	b, _, _ := newTestBank(t)
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "100.00")
	to := openApprovedAccount(t, b, "user-2", "0")

	_, err := b.Transfer(ctx, model.TransferRequest{From: from.AccountNumber, To: to.AccountNumber, Amount: amount("1")})
	assertCode(t, err, apierror.ErrValidation)

	intl := internationalRequest(from.AccountNumber)
	intl.InitiatedBy = ""
	_, err = b.InternationalTransfer(ctx, intl)
	assertCode(t, err, apierror.ErrValidation)

	_, err = b.PayBill(ctx, model.BillPaymentRequest{From: from.AccountNumber, BillerID: "ELEC001", BillerReference: "x", Amount: amount("1")})
	assertCode(t, err, apierror.ErrValidation)
	assert.Equal(t, "100.00", balanceOf(t, b, from.AccountNumber).StringFixed(2))
}

func TestSettleRequiresAdmin(t *testing.T) {
	b, _, _ := newTestBank(t)
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "1000.00")

	txn, err := b.InternationalTransfer(ctx, internationalRequest(from.AccountNumber))
	require.NoError(t, err)

	_, err = b.SettleInternationalTransfer(ctx, txn.TransactionNumber, "user-1", false, "want my money back")
	assertCode(t, err, apierror.ErrAuthorization)

	stored, err := b.GetTransaction(ctx, txn.TransactionNumber)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusPending, stored.Status)
	assert.Equal(t, "600.00", balanceOf(t, b, from.AccountNumber).StringFixed(2))
}
