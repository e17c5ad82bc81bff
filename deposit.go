package corebank

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/apnabank/corebank/database"
	"github.com/apnabank/corebank/internal/apierror"
	"github.com/apnabank/corebank/model"
)

// Deposits groups the fixed and recurring deposits of one owner.
type Deposits struct {
	Fixed     []model.FixedDeposit     `json:"fixed"`
	Recurring []model.RecurringDeposit `json:"recurring"`
}

// MaturityResult describes what closing or maturing a deposit paid out.
type MaturityResult struct {
	DepositNumber string                  `json:"deposit_number"`
	Status        model.DepositStatus     `json:"status"`
	Payout        decimal.Decimal         `json:"payout"`
	Transaction   *model.Transaction      `json:"transaction,omitempty"`
	Renewal       *model.FixedDeposit     `json:"renewal,omitempty"`
	Fixed         *model.FixedDeposit     `json:"fixed,omitempty"`
	Recurring     *model.RecurringDeposit `json:"recurring,omitempty"`
}

// OpenFixedDeposit books a fixed deposit funded from the linked account.
func (b *Bank) OpenFixedDeposit(ctx context.Context, req model.FixedDepositRequest) (*model.FixedDeposit, error) {
	ctx, span := tracer.Start(ctx, "OpenFixedDeposit")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	var fd model.FixedDeposit
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		acct, err := ownedAccount(ctx, u.tx, req.AccountNumber, req.OwnerID)
		if err != nil {
			return err
		}

		rate := b.depositRates.RateFor(req.TenureMonths, acct.SeniorCitizen())
		fd = model.NewFixedDeposit(req.AccountNumber, req.OwnerID, req.Amount, req.TenureMonths, rate, req.MaturityInstruction, u.at)

		if _, err := b.post(ctx, u, movement{
			txnType:     model.TransactionTypeFDFunding,
			status:      model.TransactionStatusCompleted,
			from:        req.AccountNumber,
			amount:      req.Amount,
			reference:   fd.DepositNumber,
			description: fmt.Sprintf("Fixed deposit for %d months", req.TenureMonths),
		}); err != nil {
			return err
		}
		if err := u.tx.CreateFixedDeposit(ctx, &fd); err != nil {
			return err
		}
		u.emit(model.EventDepositOpened, fd)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fd, nil
}

// OpenRecurringDeposit books a recurring deposit and collects its first
// installment from the linked account straight away.
func (b *Bank) OpenRecurringDeposit(ctx context.Context, req model.RecurringDepositRequest) (*model.RecurringDeposit, error) {
	ctx, span := tracer.Start(ctx, "OpenRecurringDeposit")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	var rd model.RecurringDeposit
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		acct, err := ownedAccount(ctx, u.tx, req.AccountNumber, req.OwnerID)
		if err != nil {
			return err
		}

		rate := b.depositRates.RateFor(req.TenureMonths, acct.SeniorCitizen())
		rd = model.NewRecurringDeposit(req.AccountNumber, req.OwnerID, req.MonthlyAmount, req.TenureMonths, req.PaymentDay, rate, u.at)

		if _, err := b.post(ctx, u, installmentMovement(&rd)); err != nil {
			return err
		}
		rd.InstallmentsPaid = 1
		rd.AdvanceInstallment()

		if err := u.tx.CreateRecurringDeposit(ctx, &rd); err != nil {
			return err
		}
		u.emit(model.EventDepositOpened, rd)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rd, nil
}

func installmentMovement(rd *model.RecurringDeposit) movement {
	return movement{
		txnType:     model.TransactionTypeRDInstallment,
		status:      model.TransactionStatusCompleted,
		from:        rd.AccountNumber,
		amount:      rd.MonthlyAmount,
		reference:   rd.DepositNumber,
		description: fmt.Sprintf("Recurring deposit installment %d of %d", rd.InstallmentsPaid+1, rd.TotalInstallments),
	}
}

// CollectRecurringInstallment collects the installment due on or before now.
// When the linked account cannot pay, the installment is recorded as missed
// and the due date still moves on.
func (b *Bank) CollectRecurringInstallment(ctx context.Context, depositNumber string, now time.Time) (*model.RecurringDeposit, error) {
	ctx, span := tracer.Start(ctx, "CollectRecurringInstallment")
	defer span.End()

	rd, _, err := b.collectInstallment(ctx, depositNumber, now)
	return rd, err
}

func (b *Bank) collectInstallment(ctx context.Context, depositNumber string, now time.Time) (*model.RecurringDeposit, bool, error) {
	var (
		rd        *model.RecurringDeposit
		collected bool
	)
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		current, err := u.tx.GetRecurringDeposit(ctx, depositNumber)
		if err != nil {
			return err
		}
		if current.Status != model.DepositStatusActive {
			return invalidState(fmt.Sprintf("recurring deposit %s is %s", depositNumber, current.Status))
		}
		if current.InstallmentsRemaining() <= 0 {
			return invalidState(fmt.Sprintf("recurring deposit %s has no installments left", depositNumber))
		}
		if current.NextInstallmentDate.After(now) {
			return invalidState(fmt.Sprintf("recurring deposit %s has no installment due before %s", depositNumber, now.Format(time.RFC3339)))
		}

		_, payErr := b.post(ctx, u, installmentMovement(current))
		switch {
		case payErr == nil:
			collected = true
			current.InstallmentsPaid++
		case apierror.IsCode(payErr, apierror.ErrInsufficientFunds), apierror.IsCode(payErr, apierror.ErrInvalidState):
			collected = false
			current.MissedInstallments++
		default:
			return payErr
		}
		current.AdvanceInstallment()

		if err := u.tx.UpdateRecurringDeposit(ctx, current); err != nil {
			return err
		}
		if !collected {
			u.emit(model.EventInstallmentMissed, *current)
		}
		rd = current
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return rd, collected, nil
}

// MatureOrClose settles a deposit whose maturity date has been reached and
// carries out its maturity instruction.
func (b *Bank) MatureOrClose(ctx context.Context, depositNumber string, now time.Time) (*MaturityResult, error) {
	ctx, span := tracer.Start(ctx, "MatureOrClose")
	defer span.End()

	var result *MaturityResult
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		fd, err := u.tx.GetFixedDeposit(ctx, depositNumber)
		if err == nil {
			result, err = b.matureFixed(ctx, u, fd, now)
			return err
		}
		if !apierror.IsCode(err, apierror.ErrNotFound) {
			return err
		}

		rd, err := u.tx.GetRecurringDeposit(ctx, depositNumber)
		if err != nil {
			return err
		}
		result, err = b.matureRecurring(ctx, u, rd, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *Bank) matureFixed(ctx context.Context, u *unit, fd *model.FixedDeposit, now time.Time) (*MaturityResult, error) {
	if fd.Status != model.DepositStatusActive {
		return nil, invalidState(fmt.Sprintf("fixed deposit %s is %s", fd.DepositNumber, fd.Status))
	}
	if now.Before(fd.MaturityDate) {
		return nil, invalidState(fmt.Sprintf("fixed deposit %s matures on %s", fd.DepositNumber, fd.MaturityDate.Format("2006-01-02")))
	}

	result := &MaturityResult{DepositNumber: fd.DepositNumber, Status: model.DepositStatusMatured, Payout: decimal.Zero}

	var payout, reinvest decimal.Decimal
	switch fd.MaturityInstruction {
	case model.MaturityPayPrincipalReinvest:
		payout, reinvest = fd.Principal, fd.InterestAmount
	case model.MaturityReinvestAll:
		payout, reinvest = decimal.Zero, fd.MaturityAmount
	default:
		payout, reinvest = fd.MaturityAmount, decimal.Zero
	}

	if payout.IsPositive() {
		txn, err := b.payout(ctx, u, fd.AccountNumber, fd.DepositNumber, payout, "Fixed deposit maturity")
		if err != nil {
			return nil, err
		}
		result.Payout = payout
		result.Transaction = txn
	}

	if reinvest.IsPositive() {
		acct, err := u.tx.GetAccount(ctx, fd.AccountNumber)
		if err != nil {
			return nil, err
		}
		rate := b.depositRates.RateFor(fd.TenureMonths, acct.SeniorCitizen())
		renewal := model.NewFixedDeposit(fd.AccountNumber, fd.OwnerID, reinvest, fd.TenureMonths, rate, fd.MaturityInstruction, fd.MaturityDate)
		renewal.RenewedFrom = fd.DepositNumber
		if err := u.tx.CreateFixedDeposit(ctx, &renewal); err != nil {
			return nil, err
		}
		result.Renewal = &renewal
		u.emit(model.EventDepositOpened, renewal)
	}

	fd.Status = model.DepositStatusMatured
	if err := u.tx.UpdateFixedDeposit(ctx, fd); err != nil {
		return nil, err
	}
	result.Fixed = fd
	u.emit(model.EventDepositMatured, *result)
	return result, nil
}

func (b *Bank) matureRecurring(ctx context.Context, u *unit, rd *model.RecurringDeposit, now time.Time) (*MaturityResult, error) {
	if rd.Status != model.DepositStatusActive {
		return nil, invalidState(fmt.Sprintf("recurring deposit %s is %s", rd.DepositNumber, rd.Status))
	}
	if now.Before(rd.MaturityDate) {
		return nil, invalidState(fmt.Sprintf("recurring deposit %s matures on %s", rd.DepositNumber, rd.MaturityDate.Format("2006-01-02")))
	}

	result := &MaturityResult{DepositNumber: rd.DepositNumber, Status: model.DepositStatusMatured, Payout: rd.PayoutValue()}
	if result.Payout.IsPositive() {
		txn, err := b.payout(ctx, u, rd.AccountNumber, rd.DepositNumber, result.Payout, "Recurring deposit maturity")
		if err != nil {
			return nil, err
		}
		result.Transaction = txn
	}

	rd.Status = model.DepositStatusMatured
	if err := u.tx.UpdateRecurringDeposit(ctx, rd); err != nil {
		return nil, err
	}
	result.Recurring = rd
	u.emit(model.EventDepositMatured, *result)
	return result, nil
}

func (b *Bank) payout(ctx context.Context, u *unit, accountNumber, depositNumber string, amount decimal.Decimal, description string) (*model.Transaction, error) {
	return b.post(ctx, u, movement{
		txnType:     model.TransactionTypeDepositMaturity,
		status:      model.TransactionStatusCompleted,
		to:          accountNumber,
		amount:      amount,
		reference:   depositNumber,
		description: description,
	})
}

// DepositRateTable returns the interest rates a new deposit would be booked
// at, per tenure band.
func (b *Bank) DepositRateTable() []model.RateQuote {
	return b.depositRates.Table()
}

// CloseDeposit closes an active deposit before maturity. A fixed deposit pays
// its principal plus simple interest for the months completed at the booked
// rate. A recurring deposit pays its contributions plus interest on the
// installments actually paid.
func (b *Bank) CloseDeposit(ctx context.Context, depositNumber, ownerID string, now time.Time) (*MaturityResult, error) {
	ctx, span := tracer.Start(ctx, "CloseDeposit")
	defer span.End()

	var result *MaturityResult
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		result = &MaturityResult{DepositNumber: depositNumber, Status: model.DepositStatusClosed}
		closedAt := u.at

		fd, err := u.tx.GetFixedDeposit(ctx, depositNumber)
		switch {
		case err == nil:
			if fd.OwnerID != ownerID {
				return notFound(fmt.Sprintf("Deposit '%s' not found", depositNumber))
			}
			if fd.Status != model.DepositStatusActive {
				return invalidState(fmt.Sprintf("fixed deposit %s is %s", depositNumber, fd.Status))
			}
			result.Payout = fd.PrematureValue(now)
			if result.Transaction, err = b.payout(ctx, u, fd.AccountNumber, depositNumber, result.Payout, "Fixed deposit premature closure"); err != nil {
				return err
			}
			fd.Status = model.DepositStatusClosed
			fd.ClosedAt = &closedAt
			if err := u.tx.UpdateFixedDeposit(ctx, fd); err != nil {
				return err
			}
			result.Fixed = fd
		case apierror.IsCode(err, apierror.ErrNotFound):
			rd, err := ownedRecurringDeposit(ctx, u.tx, depositNumber, ownerID)
			if err != nil {
				return err
			}
			if rd.Status != model.DepositStatusActive {
				return invalidState(fmt.Sprintf("recurring deposit %s is %s", depositNumber, rd.Status))
			}
			result.Payout = rd.PayoutValue()
			if result.Payout.IsPositive() {
				if result.Transaction, err = b.payout(ctx, u, rd.AccountNumber, depositNumber, result.Payout, "Recurring deposit premature closure"); err != nil {
					return err
				}
			}
			rd.Status = model.DepositStatusClosed
			rd.ClosedAt = &closedAt
			if err := u.tx.UpdateRecurringDeposit(ctx, rd); err != nil {
				return err
			}
			result.Recurring = rd
		default:
			return err
		}

		u.emit(model.EventDepositClosed, *result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *Bank) GetFixedDeposit(ctx context.Context, depositNumber, ownerID string) (*model.FixedDeposit, error) {
	ctx, span := tracer.Start(ctx, "GetFixedDeposit")
	defer span.End()

	fd, err := b.datasource.GetFixedDeposit(ctx, depositNumber)
	if err != nil {
		return nil, err
	}
	if fd.OwnerID != ownerID {
		return nil, notFound(fmt.Sprintf("Deposit '%s' not found", depositNumber))
	}
	return fd, nil
}

func (b *Bank) GetRecurringDeposit(ctx context.Context, depositNumber, ownerID string) (*model.RecurringDeposit, error) {
	ctx, span := tracer.Start(ctx, "GetRecurringDeposit")
	defer span.End()

	return ownedRecurringDeposit(ctx, b.datasource, depositNumber, ownerID)
}

func (b *Bank) ListDeposits(ctx context.Context, ownerID string) (*Deposits, error) {
	ctx, span := tracer.Start(ctx, "ListDeposits")
	defer span.End()

	fixed, err := b.datasource.ListFixedDepositsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	recurring, err := b.datasource.ListRecurringDepositsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &Deposits{Fixed: fixed, Recurring: recurring}, nil
}

func ownedRecurringDeposit(ctx context.Context, ds database.IDataSource, depositNumber, ownerID string) (*model.RecurringDeposit, error) {
	rd, err := ds.GetRecurringDeposit(ctx, depositNumber)
	if err != nil {
		return nil, err
	}
	if rd.OwnerID != ownerID {
		return nil, notFound(fmt.Sprintf("Deposit '%s' not found", depositNumber))
	}
	return rd, nil
}
