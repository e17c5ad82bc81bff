package corebank

import (
	"context"
	"fmt"

	"github.com/apnabank/corebank/database"
	"github.com/apnabank/corebank/model"
)

// ScheduleTransfer stores a future, optionally recurring, transfer between two
// internal accounts. Nothing moves until the due cycle picks it up.
func (b *Bank) ScheduleTransfer(ctx context.Context, req model.ScheduleTransferRequest) (*model.StandingInstruction, error) {
	ctx, span := tracer.Start(ctx, "ScheduleTransfer")
	defer span.End()

	if err := req.Validate(b.now()); err != nil {
		return nil, validationError(err)
	}
	frequency := req.Frequency
	if frequency == "" {
		frequency = model.FrequencyOnce
	}

	si := &model.StandingInstruction{
		Kind:              model.InstructionScheduledTransfer,
		OwnerID:           req.OwnerID,
		FromAccount:       req.From,
		ToAccount:         req.To,
		Amount:            req.Amount,
		Description:       req.Description,
		Recurrence:        model.Recurrence{Frequency: frequency, AnchorDay: req.AnchorDay},
		NextExecutionDate: req.ScheduledDate,
		EndDate:           req.EndDate,
		SkipOnFailure:     req.SkipOnFailure,
	}
	if err := b.createInstruction(ctx, si); err != nil {
		return nil, err
	}
	return si, nil
}

// CreateRecurringPayment stores a standing instruction paying either an
// internal account or a biller on a recurrence.
func (b *Bank) CreateRecurringPayment(ctx context.Context, req model.RecurringPaymentRequest) (*model.StandingInstruction, error) {
	ctx, span := tracer.Start(ctx, "CreateRecurringPayment")
	defer span.End()

	if err := req.Validate(b.now()); err != nil {
		return nil, validationError(err)
	}
	if req.BillerID != "" {
		if _, ok := b.billers.Lookup(req.BillerID); !ok {
			return nil, notFound(fmt.Sprintf("Biller '%s' not found", req.BillerID))
		}
	}

	si := &model.StandingInstruction{
		Kind:              model.InstructionRecurringPayment,
		OwnerID:           req.OwnerID,
		FromAccount:       req.From,
		ToAccount:         req.To,
		BillerID:          req.BillerID,
		BillerReference:   req.BillerReference,
		Name:              req.Name,
		Amount:            req.Amount,
		Recurrence:        model.Recurrence{Frequency: req.Frequency, AnchorDay: req.AnchorDay},
		NextExecutionDate: req.StartDate,
		EndDate:           req.EndDate,
		SkipOnFailure:     req.SkipOnFailure,
	}
	if err := b.createInstruction(ctx, si); err != nil {
		return nil, err
	}
	return si, nil
}

func (b *Bank) createInstruction(ctx context.Context, si *model.StandingInstruction) error {
	return b.inTx(ctx, func(ctx context.Context, u *unit) error {
		if _, err := ownedAccount(ctx, u.tx, si.FromAccount, si.OwnerID); err != nil {
			return err
		}
		if si.ToAccount != "" {
			if _, err := u.tx.GetAccount(ctx, si.ToAccount); err != nil {
				return err
			}
		}

		si.ID = model.GenerateUUIDWithSuffix("si")
		si.Active = true
		si.Status = model.InstructionStatusScheduled
		si.CreatedAt = u.at
		return u.tx.CreateInstruction(ctx, si)
	})
}

// CancelScheduled stops a standing instruction that has not finished yet.
func (b *Bank) CancelScheduled(ctx context.Context, id, ownerID string) (*model.StandingInstruction, error) {
	ctx, span := tracer.Start(ctx, "CancelScheduled")
	defer span.End()

	var cancelled *model.StandingInstruction
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		si, err := ownedInstruction(ctx, u.tx, id, ownerID)
		if err != nil {
			return err
		}
		if si.Status != model.InstructionStatusScheduled {
			return invalidState(fmt.Sprintf("instruction %s is already %s", id, si.Status))
		}
		si.Active = false
		si.Status = model.InstructionStatusCancelled
		if err := u.tx.UpdateInstruction(ctx, si); err != nil {
			return err
		}
		cancelled = si
		u.emit(model.EventInstructionCancelled, *si)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (b *Bank) ListScheduled(ctx context.Context, ownerID string) ([]model.StandingInstruction, error) {
	ctx, span := tracer.Start(ctx, "ListScheduled")
	defer span.End()

	return b.datasource.ListInstructionsByOwner(ctx, ownerID)
}

// InstructionExecutions lists every occurrence recorded for an instruction.
func (b *Bank) InstructionExecutions(ctx context.Context, id, ownerID string) ([]model.InstructionExecution, error) {
	ctx, span := tracer.Start(ctx, "InstructionExecutions")
	defer span.End()

	if _, err := ownedInstruction(ctx, b.datasource, id, ownerID); err != nil {
		return nil, err
	}
	return b.datasource.ListExecutions(ctx, id)
}

func ownedInstruction(ctx context.Context, ds database.IDataSource, id, ownerID string) (*model.StandingInstruction, error) {
	si, err := ds.GetInstruction(ctx, id)
	if err != nil {
		return nil, err
	}
	if si.OwnerID != ownerID {
		return nil, notFound(fmt.Sprintf("Instruction '%s' not found", id))
	}
	return si, nil
}
