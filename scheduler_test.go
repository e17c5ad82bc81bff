package corebank

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apnabank/corebank/internal/apierror"
	"github.com/apnabank/corebank/model"
)

func monthlyTransfer(from, to string, value string) model.ScheduleTransferRequest {
	return model.ScheduleTransferRequest{
		OwnerID:       "user-1",
		From:          from,
		To:            to,
		Amount:        amount(value),
		Description:   "rent",
		ScheduledDate: testStart.AddDate(0, 0, 1),
		Frequency:     model.FrequencyMonthly,
	}
}

func TestScheduleTransferValidation(t *testing.T) {
	b, _, _ := newTestBank(t)
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "1000.00")
	to := openApprovedAccount(t, b, "user-2", "0")

	tests := []struct {
		name   string
		mutate func(*model.ScheduleTransferRequest)
		code   apierror.ErrorCode
	}{
		{"date not in the future", func(r *model.ScheduleTransferRequest) { r.ScheduledDate = testStart }, apierror.ErrValidation},
		{"same account", func(r *model.ScheduleTransferRequest) { r.To = r.From }, apierror.ErrValidation},
		{"zero amount", func(r *model.ScheduleTransferRequest) { r.Amount = amount("0") }, apierror.ErrValidation},
		{"unknown frequency", func(r *model.ScheduleTransferRequest) { r.Frequency = "HOURLY" }, apierror.ErrValidation},
		{"end before start", func(r *model.ScheduleTransferRequest) {
			end := testStart
			r.EndDate = &end
		}, apierror.ErrValidation},
		{"not the owner", func(r *model.ScheduleTransferRequest) { r.OwnerID = "user-2" }, apierror.ErrNotFound},
		{"unknown payee", func(r *model.ScheduleTransferRequest) { r.To = "999999999999" }, apierror.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := monthlyTransfer(from.AccountNumber, to.AccountNumber, "100")
			tt.mutate(&req)
			_, err := b.ScheduleTransfer(ctx, req)
			assertCode(t, err, tt.code)
		})
	}

	scheduled, err := b.ListScheduled(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, scheduled)
}

func TestScheduleTransferDefaultsToOnce(t *testing.T) {
	b, _, _ := newTestBank(t)
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "1000.00")
	to := openApprovedAccount(t, b, "user-2", "0")

	req := monthlyTransfer(from.AccountNumber, to.AccountNumber, "300")
	req.Frequency = ""
	si, err := b.ScheduleTransfer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.FrequencyOnce, si.Recurrence.Frequency)
	assert.Equal(t, model.InstructionStatusScheduled, si.Status)
	assert.True(t, si.Active)

	report, err := b.RunDueCycle(ctx, req.ScheduledDate)
	require.NoError(t, err)
	assert.Equal(t, ItemCounts{Executed: 1}, report.Instructions)
	assert.Equal(t, "300.00", balanceOf(t, b, to.AccountNumber).StringFixed(2))

	stored, err := b.datasource.GetInstruction(ctx, si.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InstructionStatusExecuted, stored.Status)
	assert.False(t, stored.Active)
	require.NotNil(t, stored.LastExecutedAt)

	report, err = b.RunDueCycle(ctx, req.ScheduledDate.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, ItemCounts{}, report.Instructions)
	assert.Equal(t, "300.00", balanceOf(t, b, to.AccountNumber).StringFixed(2))
}

func TestDueCycleExecutesEachOccurrenceOnce(t *testing.T) {
	b, _, events := newTestBank(t)
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "1000.00")
	to := openApprovedAccount(t, b, "user-2", "0")

	si, err := b.ScheduleTransfer(ctx, monthlyTransfer(from.AccountNumber, to.AccountNumber, "400"))
	require.NoError(t, err)
	first := si.NextExecutionDate

	report, err := b.RunDueCycle(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, ItemCounts{Executed: 1}, report.Instructions)

	report, err = b.RunDueCycle(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, ItemCounts{}, report.Instructions)
	assert.Equal(t, "600.00", balanceOf(t, b, from.AccountNumber).StringFixed(2))

	stored, err := b.datasource.GetInstruction(ctx, si.ID)
	require.NoError(t, err)
	assert.Equal(t, first.AddDate(0, 1, 0), stored.NextExecutionDate)
	assert.True(t, stored.NextExecutionDate.After(first))

	report, err = b.RunDueCycle(ctx, stored.NextExecutionDate)
	require.NoError(t, err)
	assert.Equal(t, ItemCounts{Executed: 1}, report.Instructions)
	assert.Equal(t, "200.00", balanceOf(t, b, from.AccountNumber).StringFixed(2))
	assert.Equal(t, "800.00", balanceOf(t, b, to.AccountNumber).StringFixed(2))

	executions, err := b.InstructionExecutions(ctx, si.ID, "user-1")
	require.NoError(t, err)
	require.Len(t, executions, 2)
	for _, exec := range executions {
		assert.Equal(t, model.ExecutionCompleted, exec.Status)
		assert.NotEmpty(t, exec.TransactionNumber)
	}
	assert.Equal(t, first, executions[0].DueDate)
	assert.Contains(t, events.Types(), model.EventInstructionExecuted)

	_, err = b.InstructionExecutions(ctx, si.ID, "user-2")
	assertCode(t, err, apierror.ErrNotFound)
}

func TestDueCycleRunsOverdueInstructionOncePerCycle(t *testing.T) {
	b, _, _ := newTestBank(t)
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "1000.00")
	to := openApprovedAccount(t, b, "user-2", "0")

	si, err := b.ScheduleTransfer(ctx, monthlyTransfer(from.AccountNumber, to.AccountNumber, "100"))
	require.NoError(t, err)

	late := si.NextExecutionDate.AddDate(0, 3, 0)
	report, err := b.RunDueCycle(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, ItemCounts{Executed: 1}, report.Instructions)
	assert.Equal(t, "100.00", balanceOf(t, b, to.AccountNumber).StringFixed(2))

	report, err = b.RunDueCycle(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, ItemCounts{Executed: 1}, report.Instructions)
	assert.Equal(t, "200.00", balanceOf(t, b, to.AccountNumber).StringFixed(2))
}

func TestDueCycleFailedExecutionRetriesNextCycle(t *testing.T) {
	b, _, events := newTestBank(t)
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "100.00")
	to := openApprovedAccount(t, b, "user-2", "0")

	si, err := b.ScheduleTransfer(ctx, monthlyTransfer(from.AccountNumber, to.AccountNumber, "400"))
	require.NoError(t, err)
	due := si.NextExecutionDate

	report, err := b.RunDueCycle(ctx, due)
	require.NoError(t, err)
	assert.Equal(t, ItemCounts{Failed: 1}, report.Instructions)
	assert.Contains(t, events.Types(), model.EventInstructionFailed)

	stored, err := b.datasource.GetInstruction(ctx, si.ID)
	require.NoError(t, err)
	assert.Equal(t, due, stored.NextExecutionDate)
	assert.True(t, stored.Active)

	_, err = b.CreditOrDebit(ctx, from.AccountNumber, amount("500"), "top up")
	require.NoError(t, err)

	report, err = b.RunDueCycle(ctx, due)
	require.NoError(t, err)
	assert.Equal(t, ItemCounts{Executed: 1}, report.Instructions)
	assert.Equal(t, "400.00", balanceOf(t, b, to.AccountNumber).StringFixed(2))

	executions, err := b.InstructionExecutions(ctx, si.ID, "user-1")
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, model.ExecutionFailed, executions[0].Status)
	assert.NotEmpty(t, executions[0].FailureReason)
	assert.Equal(t, model.ExecutionCompleted, executions[1].Status)
}

func TestDueCycleSkipOnFailureAdvances(t *testing.T) {
	b, _, _ := newTestBank(t)
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "100.00")
	to := openApprovedAccount(t, b, "user-2", "0")

	req := monthlyTransfer(from.AccountNumber, to.AccountNumber, "400")
	req.SkipOnFailure = true
	si, err := b.ScheduleTransfer(ctx, req)
	require.NoError(t, err)

	report, err := b.RunDueCycle(ctx, si.NextExecutionDate)
	require.NoError(t, err)
	assert.Equal(t, ItemCounts{Failed: 1}, report.Instructions)

	stored, err := b.datasource.GetInstruction(ctx, si.ID)
	require.NoError(t, err)
	assert.Equal(t, si.NextExecutionDate.AddDate(0, 1, 0), stored.NextExecutionDate)
	assert.Nil(t, stored.LastExecutedAt)
	assert.Equal(t, "100.00", balanceOf(t, b, from.AccountNumber).StringFixed(2))
}

func TestRecurringBillPayment(t *testing.T) {
	b, _, _ := newTestBank(t)
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "5000.00")

	_, err := b.CreateRecurringPayment(ctx, model.RecurringPaymentRequest{
		OwnerID:         "user-1",
		Name:            "electricity",
		From:            from.AccountNumber,
		BillerID:        "NOPE",
		BillerReference: "CONS-7781",
		Amount:          amount("1200"),
		Frequency:       model.FrequencyMonthly,
		StartDate:       testStart.AddDate(0, 0, 5),
	})
	assertCode(t, err, apierror.ErrNotFound)

	_, err = b.CreateRecurringPayment(ctx, model.RecurringPaymentRequest{
		OwnerID:   "user-1",
		Name:      "electricity",
		From:      from.AccountNumber,
		Amount:    amount("1200"),
		Frequency: model.FrequencyOnce,
		StartDate: testStart.AddDate(0, 0, 5),
	})
	assertCode(t, err, apierror.ErrValidation)

	si, err := b.CreateRecurringPayment(ctx, model.RecurringPaymentRequest{
		OwnerID:         "user-1",
		Name:            "electricity",
		From:            from.AccountNumber,
		BillerID:        "ELEC001",
		BillerReference: "CONS-7781",
		Amount:          amount("1200"),
		Frequency:       model.FrequencyMonthly,
		AnchorDay:       20,
		StartDate:       testStart.AddDate(0, 0, 5),
	})
	require.NoError(t, err)
	assert.Equal(t, model.InstructionRecurringPayment, si.Kind)

	report, err := b.RunDueCycle(ctx, si.NextExecutionDate)
	require.NoError(t, err)
	assert.Equal(t, ItemCounts{Executed: 1}, report.Instructions)
	assert.Equal(t, "3800.00", balanceOf(t, b, from.AccountNumber).StringFixed(2))

	history, err := b.datasource.ListAccountTransactions(ctx, from.AccountNumber, si.NextExecutionDate)
	require.NoError(t, err)
	assert.Equal(t, "ELEC001:CONS-7781", history[len(history)-1].ExternalReference)

	stored, err := b.datasource.GetInstruction(ctx, si.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.February, 20, 9, 0, 0, 0, time.UTC), stored.NextExecutionDate)
}

func TestCancelScheduled(t *testing.T) {
	b, _, events := newTestBank(t)
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "1000.00")
	to := openApprovedAccount(t, b, "user-2", "0")

	si, err := b.ScheduleTransfer(ctx, monthlyTransfer(from.AccountNumber, to.AccountNumber, "100"))
	require.NoError(t, err)

	_, err = b.CancelScheduled(ctx, si.ID, "user-2")
	assertCode(t, err, apierror.ErrNotFound)

	cancelled, err := b.CancelScheduled(ctx, si.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.InstructionStatusCancelled, cancelled.Status)
	assert.False(t, cancelled.Active)
	assert.Contains(t, events.Types(), model.EventInstructionCancelled)

	_, err = b.CancelScheduled(ctx, si.ID, "user-1")
	assertCode(t, err, apierror.ErrInvalidState)

	report, err := b.RunDueCycle(ctx, si.NextExecutionDate)
	require.NoError(t, err)
	assert.Equal(t, ItemCounts{}, report.Instructions)
	assert.Equal(t, "1000.00", balanceOf(t, b, from.AccountNumber).StringFixed(2))
}

func TestDueCycleCollectsInstallmentsAndMaturities(t *testing.T) {
	b, _, _ := newTestBank(t)
	ctx := context.Background()
	rich := openApprovedAccount(t, b, "user-1", "200000.00")
	poor := openApprovedAccount(t, b, "user-2", "1000.00")

	fd, err := b.OpenFixedDeposit(ctx, model.FixedDepositRequest{
		AccountNumber:       rich.AccountNumber,
		OwnerID:             "user-1",
		Amount:              amount("10000"),
		TenureMonths:        1,
		MaturityInstruction: model.MaturityPayout,
	})
	require.NoError(t, err)

	_, err = b.OpenRecurringDeposit(ctx, recurringDepositRequest(rich.AccountNumber))
	require.NoError(t, err)

	poorRequest := recurringDepositRequest(poor.AccountNumber)
	poorRequest.OwnerID = "user-2"
	_, err = b.OpenRecurringDeposit(ctx, poorRequest)
	require.NoError(t, err)

	report, err := b.RunDueCycle(ctx, fd.MaturityDate)
	require.NoError(t, err)
	assert.Equal(t, ItemCounts{Executed: 1, Failed: 1}, report.Installments)
	assert.Equal(t, ItemCounts{Executed: 1}, report.Maturities)

	matured, err := b.GetFixedDeposit(ctx, fd.DepositNumber, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.DepositStatusMatured, matured.Status)

	report, err = b.RunDueCycle(ctx, fd.MaturityDate)
	require.NoError(t, err)
	assert.Equal(t, ItemCounts{}, report.Installments)
	assert.Equal(t, ItemCounts{}, report.Maturities)
}

func TestDueCycleRunLock(t *testing.T) {
	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		b, _, _ := newTestBank(t, WithRedis(client))
		ctx := context.Background()

		require.NoError(t, mr.Set(runLockKey, "another-worker"))
		_, err := b.RunDueCycle(ctx, testStart)
		assertCode(t, err, apierror.ErrConflict)

		mr.Del(runLockKey)
		_, err = b.RunDueCycle(ctx, testStart)
		require.NoError(t, err)
		assert.False(t, mr.Exists(runLockKey))
	})

	t.Run("in process", func(t *testing.T) {
		b, _, _ := newTestBank(t)
		ctx := context.Background()

		b.runMu.Lock()
		_, err := b.RunDueCycle(ctx, testStart)
		assertCode(t, err, apierror.ErrConflict)
		b.runMu.Unlock()

		_, err = b.RunDueCycle(ctx, testStart)
		require.NoError(t, err)
	})
}

type hookNotifier struct {
	onEvent func(model.Event)
}

func (h *hookNotifier) Notify(_ context.Context, event model.Event) error {
	h.onEvent(event)
	return nil
}

func TestCancelDuringCycleKeepsExecutionHistory(t *testing.T) {
	hook := &hookNotifier{onEvent: func(model.Event) {}}
	b, _, _ := newTestBank(t, WithNotifier(hook))
	ctx := context.Background()
	from := openApprovedAccount(t, b, "user-1", "1000.00")
	to := openApprovedAccount(t, b, "user-2", "0")

	si, err := b.ScheduleTransfer(ctx, monthlyTransfer(from.AccountNumber, to.AccountNumber, "100"))
	require.NoError(t, err)

	var cancelErr error
	hook.onEvent = func(event model.Event) {
		if event.Type == model.EventTransactionCompleted {
			_, cancelErr = b.CancelScheduled(ctx, si.ID, "user-1")
		}
	}

	report, err := b.RunDueCycle(ctx, si.NextExecutionDate)
	require.NoError(t, err)
	require.NoError(t, cancelErr)
	assert.Equal(t, ItemCounts{Executed: 1}, report.Instructions)
	assert.Equal(t, "900.00", balanceOf(t, b, from.AccountNumber).StringFixed(2))
	assert.Equal(t, "100.00", balanceOf(t, b, to.AccountNumber).StringFixed(2))

	executions, err := b.InstructionExecutions(ctx, si.ID, "user-1")
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, model.ExecutionCompleted, executions[0].Status)
	assert.NotEmpty(t, executions[0].TransactionNumber)

	stored, err := b.datasource.GetInstruction(ctx, si.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InstructionStatusCancelled, stored.Status)
}

func TestDueCycleCountsStuckMaturityAsFailed(t *testing.T) {
	b, _, _ := newTestBank(t)
	ctx := context.Background()
	acct := openApprovedAccount(t, b, "user-1", "5000.00")

	fd, err := b.OpenFixedDeposit(ctx, model.FixedDepositRequest{
		AccountNumber:       acct.AccountNumber,
		OwnerID:             "user-1",
		Amount:              amount("5000"),
		TenureMonths:        3,
		MaturityInstruction: model.MaturityPayout,
	})
	require.NoError(t, err)

	frozen, err := b.datasource.GetAccount(ctx, acct.AccountNumber)
	require.NoError(t, err)
	frozen.Active = false
	require.NoError(t, b.datasource.UpdateAccount(ctx, frozen))

	report, err := b.RunDueCycle(ctx, fd.MaturityDate)
	require.NoError(t, err)
	assert.Equal(t, ItemCounts{Failed: 1}, report.Maturities)

	stored, err := b.GetFixedDeposit(ctx, fd.DepositNumber, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.DepositStatusActive, stored.Status)
}
