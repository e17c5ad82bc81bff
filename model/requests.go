package model

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

func positiveAmount(value interface{}) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal amount")
	}
	if !d.IsPositive() {
		return errors.New("must be greater than zero")
	}
	if !d.Equal(d.Round(2)) {
		return errors.New("must not have more than two decimal places")
	}
	return nil
}

func nonNegativeAmount(value interface{}) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal amount")
	}
	if d.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

func minAmount(minimum decimal.Decimal) validation.RuleFunc {
	return func(value interface{}) error {
		d, _ := value.(decimal.Decimal)
		if d.LessThan(minimum) {
			return errors.New("must be at least " + minimum.StringFixed(2))
		}
		return nil
	}
}

type OpenAccountRequest struct {
	OwnerID        string          `json:"owner_id"`
	AccountType    AccountType     `json:"account_type"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	Details        AccountDetails  `json:"details"`
}

func (r *OpenAccountRequest) Validate(now time.Time) error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.OwnerID, validation.Required),
		validation.Field(&r.AccountType, validation.Required, validation.In(AccountTypes...)),
		validation.Field(&r.InitialBalance, validation.By(nonNegativeAmount)),
	)
	if err != nil {
		return err
	}
	return r.Details.ValidateFor(r.AccountType, now)
}

type TransferRequest struct {
	From           string          `json:"from"`
	To             string          `json:"to"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	IdempotencyKey string          `json:"idempotency_key"`
	InitiatedBy    string          `json:"initiated_by"`
}

func (r *TransferRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.From, validation.Required),
		validation.Field(&r.To, validation.Required, validation.By(func(value interface{}) error {
			if value.(string) == r.From {
				return errors.New("source and destination must differ")
			}
			return nil
		})),
		validation.Field(&r.Amount, validation.By(positiveAmount)),
		validation.Field(&r.IdempotencyKey, validation.Length(0, 128)),
		validation.Field(&r.InitiatedBy, validation.Required),
	)
}

type InternationalTransferRequest struct {
	From           string          `json:"from"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Beneficiary    Beneficiary     `json:"beneficiary"`
	Purpose        string          `json:"purpose"`
	Description    string          `json:"description"`
	IdempotencyKey string          `json:"idempotency_key"`
	InitiatedBy    string          `json:"initiated_by"`
}

func (r *InternationalTransferRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.From, validation.Required),
		validation.Field(&r.Amount, validation.By(positiveAmount)),
		validation.Field(&r.Currency, validation.Required, validation.Length(3, 3)),
		validation.Field(&r.Purpose, validation.Required),
		validation.Field(&r.Beneficiary),
		validation.Field(&r.InitiatedBy, validation.Required),
	)
}

func (b Beneficiary) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Name, validation.Required),
		validation.Field(&b.BankName, validation.Required),
		validation.Field(&b.SwiftCode, validation.Required, validation.Length(8, 11)),
		validation.Field(&b.AccountNumber, validation.Required),
	)
}

type BillPaymentRequest struct {
	From            string          `json:"from"`
	BillerID        string          `json:"biller_id"`
	BillerReference string          `json:"biller_reference"`
	Amount          decimal.Decimal `json:"amount"`
	IdempotencyKey  string          `json:"idempotency_key"`
	InitiatedBy     string          `json:"initiated_by"`
}

func (r *BillPaymentRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.From, validation.Required),
		validation.Field(&r.BillerID, validation.Required),
		validation.Field(&r.BillerReference, validation.Required),
		validation.Field(&r.Amount, validation.By(positiveAmount)),
		validation.Field(&r.InitiatedBy, validation.Required),
	)
}

type ScheduleTransferRequest struct {
	OwnerID       string          `json:"owner_id"`
	From          string          `json:"from"`
	To            string          `json:"to"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	ScheduledDate time.Time       `json:"scheduled_date"`
	Frequency     Frequency       `json:"frequency"`
	AnchorDay     int             `json:"anchor_day"`
	EndDate       *time.Time      `json:"end_date"`
	SkipOnFailure bool            `json:"skip_on_failure"`
}

func (r *ScheduleTransferRequest) Validate(now time.Time) error {
	return validation.ValidateStruct(r,
		validation.Field(&r.OwnerID, validation.Required),
		validation.Field(&r.From, validation.Required),
		validation.Field(&r.To, validation.Required, validation.NotIn(r.From).Error("source and destination must differ")),
		validation.Field(&r.Amount, validation.By(positiveAmount)),
		validation.Field(&r.ScheduledDate, validation.Required, validation.By(strictlyAfter(now))),
		validation.Field(&r.Frequency, validation.In(Frequencies...)),
		validation.Field(&r.AnchorDay, validation.Min(0), validation.Max(31)),
		validation.Field(&r.EndDate, validation.By(notBefore(r.ScheduledDate))),
	)
}

type RecurringPaymentRequest struct {
	OwnerID         string          `json:"owner_id"`
	Name            string          `json:"name"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	BillerID        string          `json:"biller_id"`
	BillerReference string          `json:"biller_reference"`
	Amount          decimal.Decimal `json:"amount"`
	Frequency       Frequency       `json:"frequency"`
	StartDate       time.Time       `json:"start_date"`
	AnchorDay       int             `json:"anchor_day"`
	EndDate         *time.Time      `json:"end_date"`
	SkipOnFailure   bool            `json:"skip_on_failure"`
}

func (r *RecurringPaymentRequest) Validate(now time.Time) error {
	return validation.ValidateStruct(r,
		validation.Field(&r.OwnerID, validation.Required),
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.From, validation.Required),
		validation.Field(&r.To, validation.When(r.BillerID == "", validation.Required.Error("either a payee account or a biller is required")), validation.NotIn(r.From)),
		validation.Field(&r.BillerID, validation.When(r.To != "", validation.Empty.Error("cannot pay an account and a biller at once"))),
		validation.Field(&r.BillerReference, validation.When(r.BillerID != "", validation.Required)),
		validation.Field(&r.Amount, validation.By(positiveAmount)),
		validation.Field(&r.Frequency, validation.Required, validation.In(Frequencies...), validation.NotIn(FrequencyOnce)),
		validation.Field(&r.StartDate, validation.Required, validation.By(strictlyAfter(now))),
		validation.Field(&r.AnchorDay, validation.Min(0), validation.Max(31)),
		validation.Field(&r.EndDate, validation.By(notBefore(r.StartDate))),
	)
}

type LoanApplication struct {
	AccountNumber   string          `json:"account_number"`
	OwnerID         string          `json:"owner_id"`
	LoanType        LoanType        `json:"loan_type"`
	Principal       decimal.Decimal `json:"principal"`
	TermMonths      int             `json:"term_months"`
	ApplicantIncome decimal.Decimal `json:"applicant_income"`
}

func (r *LoanApplication) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.AccountNumber, validation.Required),
		validation.Field(&r.OwnerID, validation.Required),
		validation.Field(&r.LoanType, validation.Required),
		validation.Field(&r.Principal, validation.By(positiveAmount)),
		validation.Field(&r.TermMonths, validation.Required, validation.Min(1)),
		validation.Field(&r.ApplicantIncome, validation.By(nonNegativeAmount)),
	)
}

var (
	MinFixedDeposit        = decimal.NewFromInt(1000)
	MinRecurringDeposit    = decimal.NewFromInt(500)
	MaxDepositTenure       = 120
	MinRecurringTenure     = 6
	MaxRecurringDepositDay = 28
)

type FixedDepositRequest struct {
	AccountNumber       string              `json:"account_number"`
	OwnerID             string              `json:"owner_id"`
	Amount              decimal.Decimal     `json:"amount"`
	TenureMonths        int                 `json:"tenure_months"`
	MaturityInstruction MaturityInstruction `json:"maturity_instruction"`
}

func (r *FixedDepositRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.AccountNumber, validation.Required),
		validation.Field(&r.OwnerID, validation.Required),
		validation.Field(&r.Amount, validation.By(positiveAmount), validation.By(minAmount(MinFixedDeposit))),
		validation.Field(&r.TenureMonths, validation.Required, validation.Min(1), validation.Max(MaxDepositTenure)),
		validation.Field(&r.MaturityInstruction, validation.Required, validation.In(MaturityPayout, MaturityPayPrincipalReinvest, MaturityReinvestAll)),
	)
}

type RecurringDepositRequest struct {
	AccountNumber string          `json:"account_number"`
	OwnerID       string          `json:"owner_id"`
	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
	TenureMonths  int             `json:"tenure_months"`
	PaymentDay    int             `json:"payment_day"`
}

func (r *RecurringDepositRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.AccountNumber, validation.Required),
		validation.Field(&r.OwnerID, validation.Required),
		validation.Field(&r.MonthlyAmount, validation.By(positiveAmount), validation.By(minAmount(MinRecurringDeposit))),
		validation.Field(&r.TenureMonths, validation.Required, validation.Min(MinRecurringTenure), validation.Max(MaxDepositTenure)),
		validation.Field(&r.PaymentDay, validation.Required, validation.Min(1), validation.Max(MaxRecurringDepositDay)),
	)
}

func strictlyAfter(now time.Time) validation.RuleFunc {
	return func(value interface{}) error {
		t, _ := value.(time.Time)
		if !t.After(now) {
			return errors.New("must be in the future")
		}
		return nil
	}
}

func notBefore(start time.Time) validation.RuleFunc {
	return func(value interface{}) error {
		t, ok := value.(*time.Time)
		if !ok || t == nil {
			return nil
		}
		if t.Before(start) {
			return errors.New("must not be before the first execution")
		}
		return nil
	}
}
