package corebank

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/apnabank/corebank/database"
	"github.com/apnabank/corebank/internal/apierror"
	"github.com/apnabank/corebank/model"
)

// ApplyLoan prices a loan application from the product table and stores it as APPLIED.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - app model.LoanApplication: The applicant's account, loan type, principal, tenure and income.
//
// Returns:
// - *model.Loan: The priced application.
// - error: VALIDATION_ERROR when the application breaks a product bound.
func (b *Bank) ApplyLoan(ctx context.Context, app model.LoanApplication) (*model.Loan, error) {
	ctx, span := tracer.Start(ctx, "ApplyLoan")
	defer span.End()

	if err := app.Validate(); err != nil {
		return nil, validationError(err)
	}
	product, ok := b.loanProducts.Lookup(app.LoanType)
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("unsupported loan type %s", app.LoanType), nil)
	}
	if err := product.Check(app.Principal, app.TermMonths, app.ApplicantIncome); err != nil {
		return nil, validationError(err)
	}

	var loan *model.Loan
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		acct, err := ownedAccount(ctx, u.tx, app.AccountNumber, app.OwnerID)
		if err != nil {
			return err
		}
		if !acct.Operational() {
			return invalidState(fmt.Sprintf("account %s is not approved and active", acct.AccountNumber))
		}

		emi := model.EMI(app.Principal, product.Rate, app.TermMonths)
		total := model.ScheduleTotal(model.BuildSchedule(app.Principal, product.Rate, app.TermMonths, emi, u.at))
		loan = &model.Loan{
			LoanNumber:        model.GenerateUUIDWithSuffix("loan"),
			AccountNumber:     app.AccountNumber,
			OwnerID:           app.OwnerID,
			LoanType:          app.LoanType,
			Principal:         app.Principal,
			InterestRate:      product.Rate,
			TermMonths:        app.TermMonths,
			EMIAmount:         emi,
			TotalAmount:       total,
			AmountPaid:        decimal.Zero,
			OutstandingAmount: total,
			ApplicantIncome:   app.ApplicantIncome,
			Status:            model.LoanStatusApplied,
			AppliedAt:         u.at,
		}
		if err := u.tx.CreateLoan(ctx, loan); err != nil {
			return err
		}
		u.emit(model.EventLoanApplied, *loan)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// ReviewLoan picks an application up for review.
func (b *Bank) ReviewLoan(ctx context.Context, loanNumber, actingUserID string) (*model.Loan, error) {
	ctx, span := tracer.Start(ctx, "ReviewLoan")
	defer span.End()

	return b.transitionLoan(ctx, loanNumber, actingUserID, model.LoanStatusUnderReview, nil)
}

func (b *Bank) ApproveLoan(ctx context.Context, loanNumber, actingUserID string) (*model.Loan, error) {
	ctx, span := tracer.Start(ctx, "ApproveLoan")
	defer span.End()

	return b.transitionLoan(ctx, loanNumber, actingUserID, model.LoanStatusApproved, nil)
}

func (b *Bank) RejectLoan(ctx context.Context, loanNumber, actingUserID, reason string) (*model.Loan, error) {
	ctx, span := tracer.Start(ctx, "RejectLoan")
	defer span.End()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "a rejection reason is required", nil)
	}
	return b.transitionLoan(ctx, loanNumber, actingUserID, model.LoanStatusRejected, func(_ context.Context, u *unit, loan *model.Loan) error {
		loan.RejectionReason = reason
		closedAt := u.at
		loan.ClosedAt = &closedAt
		return nil
	})
}

// DisburseLoan credits the principal to the loan account. Installment due
// dates count from the disbursement.
func (b *Bank) DisburseLoan(ctx context.Context, loanNumber, actingUserID string) (*model.Loan, error) {
	ctx, span := tracer.Start(ctx, "DisburseLoan")
	defer span.End()

	return b.transitionLoan(ctx, loanNumber, actingUserID, model.LoanStatusDisbursed, func(ctx context.Context, u *unit, loan *model.Loan) error {
		_, err := b.post(ctx, u, movement{
			txnType:     model.TransactionTypeLoanDisbursement,
			status:      model.TransactionStatusCompleted,
			to:          loan.AccountNumber,
			amount:      loan.Principal,
			reference:   loan.LoanNumber,
			description: fmt.Sprintf("%s loan disbursement", loan.LoanType),
		})
		if err != nil {
			return err
		}
		disbursedAt := u.at
		loan.DisbursedAt = &disbursedAt
		return nil
	})
}

// MarkLoanDefault flags a disbursed loan whose borrower stopped paying.
func (b *Bank) MarkLoanDefault(ctx context.Context, loanNumber, actingUserID string) (*model.Loan, error) {
	ctx, span := tracer.Start(ctx, "MarkLoanDefault")
	defer span.End()

	return b.transitionLoan(ctx, loanNumber, actingUserID, model.LoanStatusDefault, nil)
}

func (b *Bank) transitionLoan(ctx context.Context, loanNumber, actingUserID string, next model.LoanStatus,
	apply func(ctx context.Context, u *unit, loan *model.Loan) error) (*model.Loan, error) {
	if err := b.requireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}

	var updated *model.Loan
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		loan, err := u.tx.GetLoan(ctx, loanNumber)
		if err != nil {
			return err
		}
		if !loan.Status.CanTransitionTo(next) {
			return invalidState(fmt.Sprintf("loan %s cannot move from %s to %s", loanNumber, loan.Status, next))
		}
		if apply != nil {
			if err := apply(ctx, u, loan); err != nil {
				return err
			}
		}
		loan.Status = next
		if err := u.tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		updated = loan
		u.emit(model.EventLoanStatusChanged, *loan)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// LoanSchedule returns the amortization schedule with the installments the
// payments so far fully cover marked as paid.
func (b *Bank) LoanSchedule(ctx context.Context, loanNumber, ownerID string) ([]model.Installment, error) {
	ctx, span := tracer.Start(ctx, "LoanSchedule")
	defer span.End()

	loan, err := ownedLoan(ctx, b.datasource, loanNumber, ownerID)
	if err != nil {
		return nil, err
	}
	return model.MarkPaid(loan.Schedule(), loan.AmountPaid), nil
}

// RepayLoan takes a repayment from the loan account and allocates it to the
// schedule, interest before principal. The loan closes at zero outstanding.
func (b *Bank) RepayLoan(ctx context.Context, loanNumber, ownerID string, amount decimal.Decimal, idempotencyKey string) (*model.LoanRepayment, error) {
	ctx, span := tracer.Start(ctx, "RepayLoan")
	defer span.End()

	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "repayment amount must be positive with at most two decimal places", nil)
	}

	if txn := b.cachedTransaction(ctx, idempotencyKey); txn != nil {
		if rp, err := repaymentFor(ctx, b.datasource, loanNumber, txn.TransactionNumber); err == nil {
			return rp, nil
		}
	}

	var repayment *model.LoanRepayment
	var txnNumber string
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		if idempotencyKey != "" {
			existing, err := u.tx.GetTransactionByIdempotencyKey(ctx, idempotencyKey)
			if err == nil {
				rp, err := repaymentFor(ctx, u.tx, loanNumber, existing.TransactionNumber)
				if err != nil {
					return err
				}
				repayment = rp
				txnNumber = existing.TransactionNumber
				return nil
			}
			if !apierror.IsCode(err, apierror.ErrNotFound) {
				return err
			}
		}

		loan, err := ownedLoan(ctx, u.tx, loanNumber, ownerID)
		if err != nil {
			return err
		}
		if loan.Status != model.LoanStatusDisbursed {
			return invalidState(fmt.Sprintf("loan %s is %s and cannot be repaid", loanNumber, loan.Status))
		}
		if amount.GreaterThan(loan.OutstandingAmount) {
			return apierror.NewAPIError(apierror.ErrValidation,
				fmt.Sprintf("repayment exceeds the outstanding amount of %s", loan.OutstandingAmount.StringFixed(2)), nil)
		}

		split := model.AllocateRepayment(loan.Schedule(), loan.AmountPaid, amount)
		txn, err := b.post(ctx, u, movement{
			txnType:     model.TransactionTypeLoanRepayment,
			status:      model.TransactionStatusCompleted,
			from:        loan.AccountNumber,
			amount:      amount,
			reference:   loan.LoanNumber,
			description: fmt.Sprintf("Repayment of installment %d", split.InstallmentNumber),
			key:         idempotencyKey,
		})
		if err != nil {
			return err
		}

		repayment = &model.LoanRepayment{
			RepaymentID:       model.GenerateUUIDWithSuffix("rpy"),
			LoanNumber:        loan.LoanNumber,
			Amount:            amount,
			PrincipalAmount:   split.Principal,
			InterestAmount:    split.Interest,
			InstallmentNumber: split.InstallmentNumber,
			DueDate:           split.DueDate,
			PaymentDate:       u.at,
			Status:            model.RepaymentStatusCompleted,
			TransactionNumber: txn.TransactionNumber,
		}
		if err := u.tx.RecordRepayment(ctx, repayment); err != nil {
			return err
		}
		txnNumber = txn.TransactionNumber

		loan.RecordPayment(amount)
		closed := !loan.OutstandingAmount.IsPositive()
		if closed {
			loan.Status = model.LoanStatusClosed
			closedAt := u.at
			loan.ClosedAt = &closedAt
		}
		if err := u.tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}

		u.emit(model.EventLoanRepaid, *repayment)
		if closed {
			u.emit(model.EventLoanStatusChanged, *loan)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		b.rememberTransaction(ctx, idempotencyKey, &model.Transaction{TransactionNumber: txnNumber})
	}
	return repayment, nil
}

func repaymentFor(ctx context.Context, ds database.IDataSource, loanNumber, transactionNumber string) (*model.LoanRepayment, error) {
	repayments, err := ds.ListRepayments(ctx, loanNumber)
	if err != nil {
		return nil, err
	}
	for i := range repayments {
		if repayments[i].TransactionNumber == transactionNumber {
			return &repayments[i], nil
		}
	}
	return nil, apierror.NewAPIError(apierror.ErrValidation,
		fmt.Sprintf("idempotency key was used by transaction %s which is not a repayment of loan %s", transactionNumber, loanNumber), nil)
}

func (b *Bank) GetLoan(ctx context.Context, loanNumber, ownerID string) (*model.Loan, error) {
	ctx, span := tracer.Start(ctx, "GetLoan")
	defer span.End()

	return ownedLoan(ctx, b.datasource, loanNumber, ownerID)
}

func (b *Bank) ListLoans(ctx context.Context, ownerID string) ([]model.Loan, error) {
	ctx, span := tracer.Start(ctx, "ListLoans")
	defer span.End()

	return b.datasource.ListLoansByOwner(ctx, ownerID)
}

func (b *Bank) LoanRepayments(ctx context.Context, loanNumber, ownerID string) ([]model.LoanRepayment, error) {
	ctx, span := tracer.Start(ctx, "LoanRepayments")
	defer span.End()

	if _, err := ownedLoan(ctx, b.datasource, loanNumber, ownerID); err != nil {
		return nil, err
	}
	return b.datasource.ListRepayments(ctx, loanNumber)
}

func ownedLoan(ctx context.Context, ds database.IDataSource, loanNumber, ownerID string) (*model.Loan, error) {
	loan, err := ds.GetLoan(ctx, loanNumber)
	if err != nil {
		return nil, err
	}
	if loan.OwnerID != ownerID {
		return nil, notFound(fmt.Sprintf("Loan '%s' not found", loanNumber))
	}
	return loan, nil
}
