package database

import (
	"context"
	"fmt"

	"github.com/apnabank/corebank/internal/apierror"
	"github.com/apnabank/corebank/model"
)

const loanColumns = `loan_number, account_number, owner_id, loan_type, principal, interest_rate, term_months, emi_amount,
	total_amount, amount_paid, outstanding_amount, applicant_income, status, rejection_reason, applied_at, disbursed_at,
	closed_at, version`

func scanLoan(row scanner) (*model.Loan, error) {
	l := &model.Loan{}
	err := row.Scan(&l.LoanNumber, &l.AccountNumber, &l.OwnerID, &l.LoanType, &l.Principal, &l.InterestRate, &l.TermMonths,
		&l.EMIAmount, &l.TotalAmount, &l.AmountPaid, &l.OutstandingAmount, &l.ApplicantIncome, &l.Status,
		&l.RejectionReason, &l.AppliedAt, &l.DisbursedAt, &l.ClosedAt, &l.Version)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (d Datasource) CreateLoan(ctx context.Context, loan *model.Loan) error {
	ctx, span := tracer.Start(ctx, "CreateLoan")
	defer span.End()

	_, err := d.db().ExecContext(ctx, `
		INSERT INTO corebank.loans (`+loanColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, loan.LoanNumber, loan.AccountNumber, loan.OwnerID, loan.LoanType, loan.Principal, loan.InterestRate, loan.TermMonths,
		loan.EMIAmount, loan.TotalAmount, loan.AmountPaid, loan.OutstandingAmount, loan.ApplicantIncome, loan.Status,
		loan.RejectionReason, loan.AppliedAt, loan.DisbursedAt, loan.ClosedAt, loan.Version)
	if err != nil {
		return dbError(err, "Loan")
	}
	return nil
}

func (d Datasource) GetLoan(ctx context.Context, number string) (*model.Loan, error) {
	ctx, span := tracer.Start(ctx, "GetLoan")
	defer span.End()

	row := d.db().QueryRowContext(ctx, `
		SELECT `+loanColumns+`
		FROM corebank.loans
		WHERE loan_number = $1`+d.forUpdate(), number)

	l, err := scanLoan(row)
	if err != nil {
		return nil, dbError(err, fmt.Sprintf("Loan '%s'", number))
	}
	return l, nil
}

func (d Datasource) UpdateLoan(ctx context.Context, loan *model.Loan) error {
	ctx, span := tracer.Start(ctx, "UpdateLoan")
	defer span.End()

	res, err := d.db().ExecContext(ctx, `
		UPDATE corebank.loans
		SET amount_paid = $2, outstanding_amount = $3, status = $4, rejection_reason = $5, disbursed_at = $6,
			closed_at = $7, version = version + 1
		WHERE loan_number = $1 AND version = $8
	`, loan.LoanNumber, loan.AmountPaid, loan.OutstandingAmount, loan.Status, loan.RejectionReason, loan.DisbursedAt,
		loan.ClosedAt, loan.Version)
	if err != nil {
		return dbError(err, "Loan")
	}
	if err := expectOneRow(res, fmt.Sprintf("Loan '%s'", loan.LoanNumber)); err != nil {
		return err
	}
	loan.Version++
	return nil
}

func (d Datasource) ListLoansByOwner(ctx context.Context, ownerID string) ([]model.Loan, error) {
	ctx, span := tracer.Start(ctx, "ListLoansByOwner")
	defer span.End()

	return d.queryLoans(ctx, `
		SELECT `+loanColumns+`
		FROM corebank.loans
		WHERE owner_id = $1
		ORDER BY applied_at, loan_number
	`, ownerID)
}

// ListLoansByAccount returns every loan linked to accountNumber, whatever its status.
func (d Datasource) ListLoansByAccount(ctx context.Context, accountNumber string) ([]model.Loan, error) {
	ctx, span := tracer.Start(ctx, "ListLoansByAccount")
	defer span.End()

	return d.queryLoans(ctx, `
		SELECT `+loanColumns+`
		FROM corebank.loans
		WHERE account_number = $1
		ORDER BY applied_at, loan_number
	`, accountNumber)
}

func (d Datasource) queryLoans(ctx context.Context, query string, args ...interface{}) ([]model.Loan, error) {
	rows, err := d.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err, "Loans")
	}
	defer rows.Close()

	loans := []model.Loan{}
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan loan data", err)
		}
		loans = append(loans, *l)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over loans", err)
	}
	return loans, nil
}

func (d Datasource) RecordRepayment(ctx context.Context, repayment *model.LoanRepayment) error {
	ctx, span := tracer.Start(ctx, "RecordRepayment")
	defer span.End()

	_, err := d.db().ExecContext(ctx, `
		INSERT INTO corebank.loan_repayments (repayment_id, loan_number, amount, principal_amount, interest_amount,
			installment_number, due_date, payment_date, status, transaction_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, repayment.RepaymentID, repayment.LoanNumber, repayment.Amount, repayment.PrincipalAmount, repayment.InterestAmount,
		repayment.InstallmentNumber, repayment.DueDate, repayment.PaymentDate, repayment.Status, repayment.TransactionNumber)
	if err != nil {
		return dbError(err, "Loan repayment")
	}
	return nil
}

func (d Datasource) ListRepayments(ctx context.Context, loanNumber string) ([]model.LoanRepayment, error) {
	ctx, span := tracer.Start(ctx, "ListRepayments")
	defer span.End()

	rows, err := d.db().QueryContext(ctx, `
		SELECT repayment_id, loan_number, amount, principal_amount, interest_amount, installment_number, due_date,
			payment_date, status, transaction_number
		FROM corebank.loan_repayments
		WHERE loan_number = $1
		ORDER BY payment_date, repayment_id
	`, loanNumber)
	if err != nil {
		return nil, dbError(err, "Loan repayments")
	}
	defer rows.Close()

	repayments := []model.LoanRepayment{}
	for rows.Next() {
		var r model.LoanRepayment
		err := rows.Scan(&r.RepaymentID, &r.LoanNumber, &r.Amount, &r.PrincipalAmount, &r.InterestAmount,
			&r.InstallmentNumber, &r.DueDate, &r.PaymentDate, &r.Status, &r.TransactionNumber)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan repayment data", err)
		}
		repayments = append(repayments, r)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over repayments", err)
	}
	return repayments, nil
}
