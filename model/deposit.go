package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DepositStatus string

const (
	DepositStatusActive  DepositStatus = "ACTIVE"
	DepositStatusMatured DepositStatus = "MATURED"
	DepositStatusClosed  DepositStatus = "CLOSED"
)

type MaturityInstruction string

const (
	MaturityPayout               MaturityInstruction = "PRINCIPAL_AND_INTEREST_TO_ACCOUNT"
	MaturityPayPrincipalReinvest MaturityInstruction = "PRINCIPAL_TO_ACCOUNT_INTEREST_REINVESTED"
	MaturityReinvestAll          MaturityInstruction = "REINVEST_PRINCIPAL_AND_INTEREST"
)

// RateBand applies Rate to tenures up to and including MaxMonths.
// A zero MaxMonths marks the open-ended last band.
type RateBand struct {
	MaxMonths int             `json:"max_months"`
	Rate      decimal.Decimal `json:"rate"`
}

// SeniorCitizenBonus is added to the band rate for senior citizen accounts.
var SeniorCitizenBonus = decimal.RequireFromString("0.5")

// DepositRates is a tenure-banded rate table ordered by MaxMonths.
type DepositRates []RateBand

func DefaultDepositRates() DepositRates {
	return DepositRates{
		{MaxMonths: 3, Rate: decimal.RequireFromString("4.5")},
		{MaxMonths: 6, Rate: decimal.RequireFromString("5.0")},
		{MaxMonths: 12, Rate: decimal.RequireFromString("5.5")},
		{MaxMonths: 24, Rate: decimal.RequireFromString("6.0")},
		{MaxMonths: 36, Rate: decimal.RequireFromString("6.5")},
		{MaxMonths: 0, Rate: decimal.RequireFromString("7.0")},
	}
}

// RateFor returns the annual rate for tenureMonths.
func (dr DepositRates) RateFor(tenureMonths int, seniorCitizen bool) decimal.Decimal {
	rate := decimal.Zero
	for _, band := range dr {
		if band.MaxMonths == 0 || tenureMonths <= band.MaxMonths {
			rate = band.Rate
			break
		}
	}
	if seniorCitizen {
		rate = rate.Add(SeniorCitizenBonus)
	}
	return rate
}

// RateQuote is one published line of the deposit rate table.
type RateQuote struct {
	MaxMonths  int             `json:"max_months"`
	Rate       decimal.Decimal `json:"rate"`
	SeniorRate decimal.Decimal `json:"senior_rate"`
}

// Table lists every band with its regular and senior citizen rate.
func (dr DepositRates) Table() []RateQuote {
	quotes := make([]RateQuote, 0, len(dr))
	for _, band := range dr {
		quotes = append(quotes, RateQuote{
			MaxMonths:  band.MaxMonths,
			Rate:       band.Rate,
			SeniorRate: band.Rate.Add(SeniorCitizenBonus),
		})
	}
	return quotes
}

// FixedDepositInterest is simple interest: principal * rate * months / (100*12).
func FixedDepositInterest(principal, rate decimal.Decimal, tenureMonths int) decimal.Decimal {
	return Round2(principal.Mul(rate).Mul(decimal.NewFromInt(int64(tenureMonths))).Div(decimal.NewFromInt(1200)))
}

// RecurringDepositInterest approximates the interest earned by n equal monthly
// contributions: total * rate * (n+1) / (2*100*12).
func RecurringDepositInterest(monthly, rate decimal.Decimal, installments int) decimal.Decimal {
	total := monthly.Mul(decimal.NewFromInt(int64(installments)))
	return Round2(total.Mul(rate).Mul(decimal.NewFromInt(int64(installments + 1))).Div(decimal.NewFromInt(2400)))
}

type FixedDeposit struct {
	DepositNumber       string              `json:"deposit_number"`
	AccountNumber       string              `json:"account_number"`
	OwnerID             string              `json:"owner_id"`
	Principal           decimal.Decimal     `json:"principal"`
	TenureMonths        int                 `json:"tenure_months"`
	InterestRate        decimal.Decimal     `json:"interest_rate"`
	InterestAmount      decimal.Decimal     `json:"interest_amount"`
	MaturityAmount      decimal.Decimal     `json:"maturity_amount"`
	MaturityInstruction MaturityInstruction `json:"maturity_instruction"`
	StartDate           time.Time           `json:"start_date"`
	MaturityDate        time.Time           `json:"maturity_date"`
	Status              DepositStatus       `json:"status"`
	RenewedFrom         string              `json:"renewed_from,omitempty"`
	ClosedAt            *time.Time          `json:"closed_at,omitempty"`
	Version             int64               `json:"version"`
}

// NewFixedDeposit prices a fixed deposit opened on start.
func NewFixedDeposit(accountNumber, ownerID string, principal decimal.Decimal, tenureMonths int, rate decimal.Decimal, instruction MaturityInstruction, start time.Time) FixedDeposit {
	interest := FixedDepositInterest(principal, rate, tenureMonths)
	return FixedDeposit{
		DepositNumber:       GenerateUUIDWithSuffix("fd"),
		AccountNumber:       accountNumber,
		OwnerID:             ownerID,
		Principal:           principal,
		TenureMonths:        tenureMonths,
		InterestRate:        rate,
		InterestAmount:      interest,
		MaturityAmount:      principal.Add(interest),
		MaturityInstruction: instruction,
		StartDate:           start,
		MaturityDate:        AddMonths(start, tenureMonths),
		Status:              DepositStatusActive,
	}
}

// PrematureValue is what the deposit pays when closed on now, before maturity:
// principal plus simple interest for the completed months.
func (fd *FixedDeposit) PrematureValue(now time.Time) decimal.Decimal {
	months := MonthsBetween(fd.StartDate, now)
	if months > fd.TenureMonths {
		months = fd.TenureMonths
	}
	return fd.Principal.Add(FixedDepositInterest(fd.Principal, fd.InterestRate, months))
}

type RecurringDeposit struct {
	DepositNumber       string          `json:"deposit_number"`
	AccountNumber       string          `json:"account_number"`
	OwnerID             string          `json:"owner_id"`
	MonthlyAmount       decimal.Decimal `json:"monthly_amount"`
	TenureMonths        int             `json:"tenure_months"`
	PaymentDay          int             `json:"payment_day"`
	InterestRate        decimal.Decimal `json:"interest_rate"`
	MaturityAmount      decimal.Decimal `json:"maturity_amount"`
	InstallmentsPaid    int             `json:"installments_paid"`
	TotalInstallments   int             `json:"total_installments"`
	MissedInstallments  int             `json:"missed_installments"`
	NextInstallmentDate time.Time       `json:"next_installment_date"`
	StartDate           time.Time       `json:"start_date"`
	MaturityDate        time.Time       `json:"maturity_date"`
	Status              DepositStatus   `json:"status"`
	ClosedAt            *time.Time      `json:"closed_at,omitempty"`
	Version             int64           `json:"version"`
}

// NewRecurringDeposit prices a recurring deposit opened on start. The first
// installment is due on start itself.
func NewRecurringDeposit(accountNumber, ownerID string, monthly decimal.Decimal, tenureMonths, paymentDay int, rate decimal.Decimal, start time.Time) RecurringDeposit {
	total := monthly.Mul(decimal.NewFromInt(int64(tenureMonths)))
	return RecurringDeposit{
		DepositNumber:       GenerateUUIDWithSuffix("rd"),
		AccountNumber:       accountNumber,
		OwnerID:             ownerID,
		MonthlyAmount:       monthly,
		TenureMonths:        tenureMonths,
		PaymentDay:          paymentDay,
		InterestRate:        rate,
		MaturityAmount:      total.Add(RecurringDepositInterest(monthly, rate, tenureMonths)),
		TotalInstallments:   tenureMonths,
		NextInstallmentDate: start,
		StartDate:           start,
		MaturityDate:        AddMonths(start, tenureMonths),
		Status:              DepositStatusActive,
	}
}

// Contributions is the amount collected so far.
func (rd *RecurringDeposit) Contributions() decimal.Decimal {
	return rd.MonthlyAmount.Mul(decimal.NewFromInt(int64(rd.InstallmentsPaid)))
}

// PayoutValue is contributions plus interest earned on the installments
// actually paid. With every installment paid it equals MaturityAmount.
func (rd *RecurringDeposit) PayoutValue() decimal.Decimal {
	return rd.Contributions().Add(RecurringDepositInterest(rd.MonthlyAmount, rd.InterestRate, rd.InstallmentsPaid))
}

// InstallmentsRemaining reports how many installments are still to be
// collected or missed.
func (rd *RecurringDeposit) InstallmentsRemaining() int {
	return rd.TotalInstallments - rd.InstallmentsPaid - rd.MissedInstallments
}

// AdvanceInstallment moves NextInstallmentDate to the payment day of the following month.
func (rd *RecurringDeposit) AdvanceInstallment() {
	rd.NextInstallmentDate = addMonthsOnDay(rd.NextInstallmentDate, 1, rd.PaymentDay)
}
