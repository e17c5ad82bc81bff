package corebank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apnabank/corebank/internal/apierror"
	redlock "github.com/apnabank/corebank/internal/lock"
	"github.com/apnabank/corebank/model"
)

const runLockKey = "corebank:due-cycle"

// ItemCounts tallies the outcome of one category of due items.
type ItemCounts struct {
	Executed int `json:"executed"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// CycleReport summarizes one run of the due cycle.
type CycleReport struct {
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at"`
	Instructions ItemCounts `json:"instructions"`
	Installments ItemCounts `json:"installments"`
	Maturities   ItemCounts `json:"maturities"`
}

type outcome int

const (
	outcomeExecuted outcome = iota
	outcomeFailed
	outcomeSkipped
)

func (c *ItemCounts) add(o outcome) {
	switch o {
	case outcomeExecuted:
		c.Executed++
	case outcomeFailed:
		c.Failed++
	default:
		c.Skipped++
	}
}

// RunDueCycle executes everything due at now: standing instructions,
// recurring deposit installments and deposit maturities. Each item runs in
// its own unit of work and a failing item never stops the cycle. Only one
// cycle runs at a time; a concurrent call fails with CONFLICT.
func (b *Bank) RunDueCycle(ctx context.Context, now time.Time) (*CycleReport, error) {
	ctx, span := tracer.Start(ctx, "RunDueCycle")
	defer span.End()

	lock, err := b.acquireRunLock(ctx)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	report := &CycleReport{StartedAt: b.now()}

	instructions, err := b.datasource.ListDueInstructions(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, si := range instructions {
		report.Instructions.add(b.runInstruction(ctx, si.ID, now))
		lock.extend(ctx)
	}

	deposits, err := b.datasource.ListDueRecurringDeposits(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, rd := range deposits {
		report.Installments.add(b.runInstallment(ctx, rd.DepositNumber, now))
		lock.extend(ctx)
	}

	fixed, err := b.datasource.ListMaturedFixedDeposits(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, fd := range fixed {
		report.Maturities.add(b.runMaturity(ctx, fd.DepositNumber, now))
		lock.extend(ctx)
	}
	recurring, err := b.datasource.ListMaturedRecurringDeposits(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, rd := range recurring {
		report.Maturities.add(b.runMaturity(ctx, rd.DepositNumber, now))
		lock.extend(ctx)
	}

	report.FinishedAt = b.now()
	logrus.WithFields(logrus.Fields{
		"instructions": report.Instructions,
		"installments": report.Installments,
		"maturities":   report.Maturities,
	}).Info("due cycle finished")
	return report, nil
}

// runLock is the cycle-wide guard. With Redis it is a TTL lock that is
// refreshed after every item; without Redis it is an in-process mutex.
type runLock struct {
	locker *redlock.Locker
	ttl    time.Duration
	unlock func()
}

func (b *Bank) acquireRunLock(ctx context.Context) (*runLock, error) {
	if b.redis == nil {
		if !b.runMu.TryLock() {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "a due cycle is already running", nil)
		}
		return &runLock{unlock: b.runMu.Unlock}, nil
	}

	ttl := time.Duration(b.config.Bank.RunLockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	locker := redlock.NewLocker(b.redis, runLockKey, model.GenerateUUIDWithSuffix("run"))
	if err := locker.Lock(ctx, ttl); err != nil {
		if errors.Is(err, redlock.ErrLockHeld) {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "a due cycle is already running", nil)
		}
		return nil, err
	}
	return &runLock{locker: locker, ttl: ttl}, nil
}

func (l *runLock) extend(ctx context.Context) {
	if l.locker == nil {
		return
	}
	if err := l.locker.ExtendLock(ctx, l.ttl); err != nil {
		logrus.WithField("key", l.locker.Key()).WithError(err).Warn("failed to extend due cycle lock")
	}
}

func (l *runLock) release() {
	if l.locker == nil {
		l.unlock()
		return
	}
	if err := l.locker.Unlock(context.Background()); err != nil {
		logrus.WithField("key", l.locker.Key()).WithError(err).Warn("failed to release due cycle lock")
	}
}

// executionKey makes every occurrence of an instruction pay at most once,
// however many cycles see it.
func executionKey(si *model.StandingInstruction) string {
	return fmt.Sprintf("%s:%s", si.ID, si.NextExecutionDate.Format("2006-01-02"))
}

func (b *Bank) instructionMovement(si *model.StandingInstruction, key string) (movement, error) {
	if si.BillerID != "" {
		biller, ok := b.billers.Lookup(si.BillerID)
		if !ok {
			return movement{}, notFound(fmt.Sprintf("Biller '%s' not found", si.BillerID))
		}
		return billMovement(biller, si.FromAccount, si.BillerReference, si.Amount, key, si.OwnerID), nil
	}

	description := si.Description
	if description == "" {
		description = si.Name
	}
	return movement{
		txnType:     model.TransactionTypeTransfer,
		status:      model.TransactionStatusCompleted,
		from:        si.FromAccount,
		to:          si.ToAccount,
		amount:      si.Amount,
		description: description,
		key:         key,
		initiatedBy: si.OwnerID,
	}, nil
}

// runInstruction pays one occurrence. The due re-check on the locked
// instruction, the payment, the execution record and the advance commit
// together; a failed payment is recorded in a second unit after the first
// one rolled back.
func (b *Bank) runInstruction(ctx context.Context, id string, now time.Time) outcome {
	log := logrus.WithFields(logrus.Fields{"instruction_id": id})

	si, err := b.datasource.GetInstruction(ctx, id)
	if err != nil {
		log.WithError(err).Error("failed to load instruction")
		return outcomeFailed
	}
	if !si.Due(now) {
		return outcomeSkipped
	}

	dueDate := si.NextExecutionDate
	key := executionKey(si)

	result := outcomeExecuted
	var txn *model.Transaction
	payErr := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		current, err := u.tx.GetInstruction(ctx, id)
		if err != nil {
			return err
		}
		if !current.Due(now) || !current.NextExecutionDate.Equal(dueDate) {
			result = outcomeSkipped
			return nil
		}

		txn, err = u.tx.GetTransactionByIdempotencyKey(ctx, key)
		if apierror.IsCode(err, apierror.ErrNotFound) {
			var m movement
			if m, err = b.instructionMovement(current, key); err != nil {
				return err
			}
			txn, err = b.post(ctx, u, m)
		}
		if err != nil {
			return err
		}

		exec := &model.InstructionExecution{
			ExecutionID:       model.GenerateUUIDWithSuffix("exe"),
			InstructionID:     id,
			DueDate:           dueDate,
			ExecutedAt:        u.at,
			Status:            model.ExecutionCompleted,
			TransactionNumber: txn.TransactionNumber,
		}
		executedAt := u.at
		current.LastExecutedAt = &executedAt
		current.Advance(true)

		if err := u.tx.RecordExecution(ctx, exec); err != nil {
			return err
		}
		if err := u.tx.UpdateInstruction(ctx, current); err != nil {
			return err
		}
		u.emit(model.EventInstructionExecuted, *exec)
		return nil
	})
	if payErr == nil {
		if result == outcomeExecuted {
			b.rememberTransaction(ctx, key, txn)
		}
		return result
	}

	log.WithError(payErr).Warn("instruction payment failed")
	return b.recordFailedExecution(ctx, id, dueDate, now, payErr)
}

func (b *Bank) recordFailedExecution(ctx context.Context, id string, dueDate, now time.Time, payErr error) outcome {
	result := outcomeFailed
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		current, err := u.tx.GetInstruction(ctx, id)
		if err != nil {
			return err
		}
		if !current.Due(now) || !current.NextExecutionDate.Equal(dueDate) {
			result = outcomeSkipped
			return nil
		}

		exec := &model.InstructionExecution{
			ExecutionID:   model.GenerateUUIDWithSuffix("exe"),
			InstructionID: id,
			DueDate:       dueDate,
			ExecutedAt:    u.at,
			Status:        model.ExecutionFailed,
			FailureReason: payErr.Error(),
		}
		if current.SkipOnFailure {
			current.Advance(false)
		}

		if err := u.tx.RecordExecution(ctx, exec); err != nil {
			return err
		}
		if err := u.tx.UpdateInstruction(ctx, current); err != nil {
			return err
		}
		u.emit(model.EventInstructionFailed, *exec)
		return nil
	})
	if err != nil {
		logrus.WithField("instruction_id", id).WithError(err).Error("failed to record instruction execution")
		return outcomeFailed
	}
	return result
}

func (b *Bank) runInstallment(ctx context.Context, depositNumber string, now time.Time) outcome {
	_, collected, err := b.collectInstallment(ctx, depositNumber, now)
	switch {
	case apierror.IsCode(err, apierror.ErrInvalidState):
		logrus.WithField("deposit_number", depositNumber).WithError(err).Warn("installment could not be collected")
		return outcomeFailed
	case err != nil:
		logrus.WithField("deposit_number", depositNumber).WithError(err).Error("failed to collect installment")
		return outcomeFailed
	case !collected:
		return outcomeFailed
	default:
		return outcomeExecuted
	}
}

func (b *Bank) runMaturity(ctx context.Context, depositNumber string, now time.Time) outcome {
	_, err := b.MatureOrClose(ctx, depositNumber, now)
	switch {
	case apierror.IsCode(err, apierror.ErrInvalidState):
		logrus.WithField("deposit_number", depositNumber).WithError(err).Warn("deposit could not be matured")
		return outcomeFailed
	case err != nil:
		logrus.WithField("deposit_number", depositNumber).WithError(err).Error("failed to mature deposit")
		return outcomeFailed
	default:
		return outcomeExecuted
	}
}
