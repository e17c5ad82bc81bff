package database

import (
	"context"
	"fmt"
	"time"

	"github.com/apnabank/corebank/internal/apierror"
	"github.com/apnabank/corebank/model"
)

const fixedDepositColumns = `deposit_number, account_number, owner_id, principal, tenure_months, interest_rate, interest_amount,
	maturity_amount, maturity_instruction, start_date, maturity_date, status, renewed_from, closed_at, version`

const recurringDepositColumns = `deposit_number, account_number, owner_id, monthly_amount, tenure_months, payment_day,
	interest_rate, maturity_amount, installments_paid, total_installments, missed_installments, next_installment_date,
	start_date, maturity_date, status, closed_at, version`

func scanFixedDeposit(row scanner) (*model.FixedDeposit, error) {
	fd := &model.FixedDeposit{}
	err := row.Scan(&fd.DepositNumber, &fd.AccountNumber, &fd.OwnerID, &fd.Principal, &fd.TenureMonths, &fd.InterestRate,
		&fd.InterestAmount, &fd.MaturityAmount, &fd.MaturityInstruction, &fd.StartDate, &fd.MaturityDate, &fd.Status,
		&fd.RenewedFrom, &fd.ClosedAt, &fd.Version)
	if err != nil {
		return nil, err
	}
	return fd, nil
}

func scanRecurringDeposit(row scanner) (*model.RecurringDeposit, error) {
	rd := &model.RecurringDeposit{}
	err := row.Scan(&rd.DepositNumber, &rd.AccountNumber, &rd.OwnerID, &rd.MonthlyAmount, &rd.TenureMonths, &rd.PaymentDay,
		&rd.InterestRate, &rd.MaturityAmount, &rd.InstallmentsPaid, &rd.TotalInstallments, &rd.MissedInstallments,
		&rd.NextInstallmentDate, &rd.StartDate, &rd.MaturityDate, &rd.Status, &rd.ClosedAt, &rd.Version)
	if err != nil {
		return nil, err
	}
	return rd, nil
}

func (d Datasource) CreateFixedDeposit(ctx context.Context, fd *model.FixedDeposit) error {
	ctx, span := tracer.Start(ctx, "CreateFixedDeposit")
	defer span.End()

	_, err := d.db().ExecContext(ctx, `
		INSERT INTO corebank.fixed_deposits (`+fixedDepositColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, fd.DepositNumber, fd.AccountNumber, fd.OwnerID, fd.Principal, fd.TenureMonths, fd.InterestRate, fd.InterestAmount,
		fd.MaturityAmount, fd.MaturityInstruction, fd.StartDate, fd.MaturityDate, fd.Status, fd.RenewedFrom, fd.ClosedAt,
		fd.Version)
	if err != nil {
		return dbError(err, "Fixed deposit")
	}
	return nil
}

func (d Datasource) GetFixedDeposit(ctx context.Context, number string) (*model.FixedDeposit, error) {
	ctx, span := tracer.Start(ctx, "GetFixedDeposit")
	defer span.End()

	row := d.db().QueryRowContext(ctx, `
		SELECT `+fixedDepositColumns+`
		FROM corebank.fixed_deposits
		WHERE deposit_number = $1`+d.forUpdate(), number)

	fd, err := scanFixedDeposit(row)
	if err != nil {
		return nil, dbError(err, fmt.Sprintf("Fixed deposit '%s'", number))
	}
	return fd, nil
}

func (d Datasource) UpdateFixedDeposit(ctx context.Context, fd *model.FixedDeposit) error {
	ctx, span := tracer.Start(ctx, "UpdateFixedDeposit")
	defer span.End()

	res, err := d.db().ExecContext(ctx, `
		UPDATE corebank.fixed_deposits
		SET status = $2, closed_at = $3, version = version + 1
		WHERE deposit_number = $1 AND version = $4
	`, fd.DepositNumber, fd.Status, fd.ClosedAt, fd.Version)
	if err != nil {
		return dbError(err, "Fixed deposit")
	}
	if err := expectOneRow(res, fmt.Sprintf("Fixed deposit '%s'", fd.DepositNumber)); err != nil {
		return err
	}
	fd.Version++
	return nil
}

func (d Datasource) queryFixedDeposits(ctx context.Context, query string, args ...interface{}) ([]model.FixedDeposit, error) {
	rows, err := d.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err, "Fixed deposits")
	}
	defer rows.Close()

	deposits := []model.FixedDeposit{}
	for rows.Next() {
		fd, err := scanFixedDeposit(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan fixed deposit data", err)
		}
		deposits = append(deposits, *fd)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over fixed deposits", err)
	}
	return deposits, nil
}

func (d Datasource) ListFixedDepositsByOwner(ctx context.Context, ownerID string) ([]model.FixedDeposit, error) {
	return d.queryFixedDeposits(ctx, `
		SELECT `+fixedDepositColumns+`
		FROM corebank.fixed_deposits
		WHERE owner_id = $1
		ORDER BY start_date, deposit_number`, ownerID)
}

func (d Datasource) ListFixedDepositsByAccount(ctx context.Context, accountNumber string) ([]model.FixedDeposit, error) {
	return d.queryFixedDeposits(ctx, `
		SELECT `+fixedDepositColumns+`
		FROM corebank.fixed_deposits
		WHERE account_number = $1
		ORDER BY start_date, deposit_number`, accountNumber)
}

// ListMaturedFixedDeposits returns active deposits whose maturity date is not after asOf.
func (d Datasource) ListMaturedFixedDeposits(ctx context.Context, asOf time.Time) ([]model.FixedDeposit, error) {
	ctx, span := tracer.Start(ctx, "ListMaturedFixedDeposits")
	defer span.End()

	return d.queryFixedDeposits(ctx, `
		SELECT `+fixedDepositColumns+`
		FROM corebank.fixed_deposits
		WHERE status = $1 AND maturity_date <= $2
		ORDER BY maturity_date, deposit_number`, model.DepositStatusActive, asOf)
}

func (d Datasource) CreateRecurringDeposit(ctx context.Context, rd *model.RecurringDeposit) error {
	ctx, span := tracer.Start(ctx, "CreateRecurringDeposit")
	defer span.End()

	_, err := d.db().ExecContext(ctx, `
		INSERT INTO corebank.recurring_deposits (`+recurringDepositColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, rd.DepositNumber, rd.AccountNumber, rd.OwnerID, rd.MonthlyAmount, rd.TenureMonths, rd.PaymentDay, rd.InterestRate,
		rd.MaturityAmount, rd.InstallmentsPaid, rd.TotalInstallments, rd.MissedInstallments, rd.NextInstallmentDate,
		rd.StartDate, rd.MaturityDate, rd.Status, rd.ClosedAt, rd.Version)
	if err != nil {
		return dbError(err, "Recurring deposit")
	}
	return nil
}

func (d Datasource) GetRecurringDeposit(ctx context.Context, number string) (*model.RecurringDeposit, error) {
	ctx, span := tracer.Start(ctx, "GetRecurringDeposit")
	defer span.End()

	row := d.db().QueryRowContext(ctx, `
		SELECT `+recurringDepositColumns+`
		FROM corebank.recurring_deposits
		WHERE deposit_number = $1`+d.forUpdate(), number)

	rd, err := scanRecurringDeposit(row)
	if err != nil {
		return nil, dbError(err, fmt.Sprintf("Recurring deposit '%s'", number))
	}
	return rd, nil
}

func (d Datasource) UpdateRecurringDeposit(ctx context.Context, rd *model.RecurringDeposit) error {
	ctx, span := tracer.Start(ctx, "UpdateRecurringDeposit")
	defer span.End()

	res, err := d.db().ExecContext(ctx, `
		UPDATE corebank.recurring_deposits
		SET installments_paid = $2, missed_installments = $3, next_installment_date = $4, status = $5, closed_at = $6,
			version = version + 1
		WHERE deposit_number = $1 AND version = $7
	`, rd.DepositNumber, rd.InstallmentsPaid, rd.MissedInstallments, rd.NextInstallmentDate, rd.Status, rd.ClosedAt,
		rd.Version)
	if err != nil {
		return dbError(err, "Recurring deposit")
	}
	if err := expectOneRow(res, fmt.Sprintf("Recurring deposit '%s'", rd.DepositNumber)); err != nil {
		return err
	}
	rd.Version++
	return nil
}

func (d Datasource) queryRecurringDeposits(ctx context.Context, query string, args ...interface{}) ([]model.RecurringDeposit, error) {
	rows, err := d.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err, "Recurring deposits")
	}
	defer rows.Close()

	deposits := []model.RecurringDeposit{}
	for rows.Next() {
		rd, err := scanRecurringDeposit(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan recurring deposit data", err)
		}
		deposits = append(deposits, *rd)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over recurring deposits", err)
	}
	return deposits, nil
}

func (d Datasource) ListRecurringDepositsByOwner(ctx context.Context, ownerID string) ([]model.RecurringDeposit, error) {
	return d.queryRecurringDeposits(ctx, `
		SELECT `+recurringDepositColumns+`
		FROM corebank.recurring_deposits
		WHERE owner_id = $1
		ORDER BY start_date, deposit_number`, ownerID)
}

func (d Datasource) ListRecurringDepositsByAccount(ctx context.Context, accountNumber string) ([]model.RecurringDeposit, error) {
	return d.queryRecurringDeposits(ctx, `
		SELECT `+recurringDepositColumns+`
		FROM corebank.recurring_deposits
		WHERE account_number = $1
		ORDER BY start_date, deposit_number`, accountNumber)
}

// ListDueRecurringDeposits returns active deposits with an installment due on or before asOf.
func (d Datasource) ListDueRecurringDeposits(ctx context.Context, asOf time.Time) ([]model.RecurringDeposit, error) {
	ctx, span := tracer.Start(ctx, "ListDueRecurringDeposits")
	defer span.End()

	return d.queryRecurringDeposits(ctx, `
		SELECT `+recurringDepositColumns+`
		FROM corebank.recurring_deposits
		WHERE status = $1 AND next_installment_date <= $2 AND installments_paid + missed_installments < total_installments
		ORDER BY next_installment_date, deposit_number`, model.DepositStatusActive, asOf)
}

// ListMaturedRecurringDeposits returns active deposits whose maturity date is not after asOf.
func (d Datasource) ListMaturedRecurringDeposits(ctx context.Context, asOf time.Time) ([]model.RecurringDeposit, error) {
	ctx, span := tracer.Start(ctx, "ListMaturedRecurringDeposits")
	defer span.End()

	return d.queryRecurringDeposits(ctx, `
		SELECT `+recurringDepositColumns+`
		FROM corebank.recurring_deposits
		WHERE status = $1 AND maturity_date <= $2
		ORDER BY maturity_date, deposit_number`, model.DepositStatusActive, asOf)
}
