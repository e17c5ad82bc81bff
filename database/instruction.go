package database

import (
	"context"
	"fmt"
	"time"

	"github.com/apnabank/corebank/internal/apierror"
	"github.com/apnabank/corebank/model"
)

const instructionColumns = `id, kind, owner_id, from_account, to_account, biller_id, biller_reference, name, amount, description,
	frequency, anchor_day, next_execution_date, end_date, active, status, skip_on_failure, last_executed_at, created_at, version`

func scanInstruction(row scanner) (*model.StandingInstruction, error) {
	si := &model.StandingInstruction{}
	err := row.Scan(&si.ID, &si.Kind, &si.OwnerID, &si.FromAccount, &si.ToAccount, &si.BillerID, &si.BillerReference,
		&si.Name, &si.Amount, &si.Description, &si.Recurrence.Frequency, &si.Recurrence.AnchorDay, &si.NextExecutionDate,
		&si.EndDate, &si.Active, &si.Status, &si.SkipOnFailure, &si.LastExecutedAt, &si.CreatedAt, &si.Version)
	if err != nil {
		return nil, err
	}
	return si, nil
}

func (d Datasource) CreateInstruction(ctx context.Context, si *model.StandingInstruction) error {
	ctx, span := tracer.Start(ctx, "CreateInstruction")
	defer span.End()

	_, err := d.db().ExecContext(ctx, `
		INSERT INTO corebank.standing_instructions (`+instructionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`, si.ID, si.Kind, si.OwnerID, si.FromAccount, si.ToAccount, si.BillerID, si.BillerReference, si.Name, si.Amount,
		si.Description, si.Recurrence.Frequency, si.Recurrence.AnchorDay, si.NextExecutionDate, si.EndDate, si.Active,
		si.Status, si.SkipOnFailure, si.LastExecutedAt, si.CreatedAt, si.Version)
	if err != nil {
		return dbError(err, "Standing instruction")
	}
	return nil
}

func (d Datasource) GetInstruction(ctx context.Context, id string) (*model.StandingInstruction, error) {
	ctx, span := tracer.Start(ctx, "GetInstruction")
	defer span.End()

	row := d.db().QueryRowContext(ctx, `
		SELECT `+instructionColumns+`
		FROM corebank.standing_instructions
		WHERE id = $1`+d.forUpdate(), id)

	si, err := scanInstruction(row)
	if err != nil {
		return nil, dbError(err, fmt.Sprintf("Standing instruction '%s'", id))
	}
	return si, nil
}

func (d Datasource) UpdateInstruction(ctx context.Context, si *model.StandingInstruction) error {
	ctx, span := tracer.Start(ctx, "UpdateInstruction")
	defer span.End()

	res, err := d.db().ExecContext(ctx, `
		UPDATE corebank.standing_instructions
		SET next_execution_date = $2, active = $3, status = $4, last_executed_at = $5, version = version + 1
		WHERE id = $1 AND version = $6
	`, si.ID, si.NextExecutionDate, si.Active, si.Status, si.LastExecutedAt, si.Version)
	if err != nil {
		return dbError(err, "Standing instruction")
	}
	if err := expectOneRow(res, fmt.Sprintf("Standing instruction '%s'", si.ID)); err != nil {
		return err
	}
	si.Version++
	return nil
}

func (d Datasource) queryInstructions(ctx context.Context, query string, args ...interface{}) ([]model.StandingInstruction, error) {
	rows, err := d.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err, "Standing instructions")
	}
	defer rows.Close()

	instructions := []model.StandingInstruction{}
	for rows.Next() {
		si, err := scanInstruction(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan standing instruction data", err)
		}
		instructions = append(instructions, *si)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over standing instructions", err)
	}
	return instructions, nil
}

func (d Datasource) ListInstructionsByOwner(ctx context.Context, ownerID string) ([]model.StandingInstruction, error) {
	return d.queryInstructions(ctx, `
		SELECT `+instructionColumns+`
		FROM corebank.standing_instructions
		WHERE owner_id = $1
		ORDER BY created_at, id`, ownerID)
}

// ListDueInstructions returns active scheduled instructions whose next execution is not after asOf.
func (d Datasource) ListDueInstructions(ctx context.Context, asOf time.Time) ([]model.StandingInstruction, error) {
	ctx, span := tracer.Start(ctx, "ListDueInstructions")
	defer span.End()

	return d.queryInstructions(ctx, `
		SELECT `+instructionColumns+`
		FROM corebank.standing_instructions
		WHERE active = TRUE AND status = $1 AND next_execution_date <= $2
		ORDER BY next_execution_date, id`, model.InstructionStatusScheduled, asOf)
}

func (d Datasource) RecordExecution(ctx context.Context, exec *model.InstructionExecution) error {
	ctx, span := tracer.Start(ctx, "RecordExecution")
	defer span.End()

	_, err := d.db().ExecContext(ctx, `
		INSERT INTO corebank.instruction_executions (execution_id, instruction_id, due_date, executed_at, status,
			transaction_number, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, exec.ExecutionID, exec.InstructionID, exec.DueDate, exec.ExecutedAt, exec.Status, exec.TransactionNumber,
		exec.FailureReason)
	if err != nil {
		return dbError(err, "Instruction execution")
	}
	return nil
}

func (d Datasource) ListExecutions(ctx context.Context, instructionID string) ([]model.InstructionExecution, error) {
	rows, err := d.db().QueryContext(ctx, `
		SELECT execution_id, instruction_id, due_date, executed_at, status, transaction_number, failure_reason
		FROM corebank.instruction_executions
		WHERE instruction_id = $1
		ORDER BY executed_at, execution_id
	`, instructionID)
	if err != nil {
		return nil, dbError(err, "Instruction executions")
	}
	defer rows.Close()

	executions := []model.InstructionExecution{}
	for rows.Next() {
		var e model.InstructionExecution
		err := rows.Scan(&e.ExecutionID, &e.InstructionID, &e.DueDate, &e.ExecutedAt, &e.Status, &e.TransactionNumber,
			&e.FailureReason)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan execution data", err)
		}
		executions = append(executions, e)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over executions", err)
	}
	return executions, nil
}
