package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type LoanType string

const (
	LoanTypePersonal  LoanType = "PERSONAL"
	LoanTypeHome      LoanType = "HOME"
	LoanTypeVehicle   LoanType = "VEHICLE"
	LoanTypeEducation LoanType = "EDUCATION"
	LoanTypeBusiness  LoanType = "BUSINESS"
)

type LoanStatus string

const (
	LoanStatusApplied     LoanStatus = "APPLIED"
	LoanStatusUnderReview LoanStatus = "UNDER_REVIEW"
	LoanStatusApproved    LoanStatus = "APPROVED"
	LoanStatusDisbursed   LoanStatus = "DISBURSED"
	LoanStatusClosed      LoanStatus = "CLOSED"
	LoanStatusRejected    LoanStatus = "REJECTED"
	LoanStatusDefault     LoanStatus = "DEFAULT"
)

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusApplied:     {LoanStatusUnderReview, LoanStatusRejected},
	LoanStatusUnderReview: {LoanStatusApproved, LoanStatusRejected},
	LoanStatusApproved:    {LoanStatusDisbursed},
	LoanStatusDisbursed:   {LoanStatusClosed, LoanStatusDefault},
	LoanStatusClosed:      nil,
	LoanStatusRejected:    nil,
	LoanStatusDefault:     nil,
}

func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s LoanStatus) Terminal() bool {
	return len(loanTransitions[s]) == 0
}

// LoanProduct holds the eligibility bounds and the fixed rate of one loan type.
type LoanProduct struct {
	Type         LoanType        `json:"type"`
	MinPrincipal decimal.Decimal `json:"min_principal"`
	MaxPrincipal decimal.Decimal `json:"max_principal"`
	MinTenure    int             `json:"min_tenure"`
	MaxTenure    int             `json:"max_tenure"`
	MinIncome    decimal.Decimal `json:"min_income"`
	Rate         decimal.Decimal `json:"rate"`
}

// Check returns a descriptive error for the first bound the application violates.
func (p LoanProduct) Check(principal decimal.Decimal, termMonths int, income decimal.Decimal) error {
	if principal.LessThan(p.MinPrincipal) || principal.GreaterThan(p.MaxPrincipal) {
		return fmt.Errorf("%s loan principal must be between %s and %s", p.Type, p.MinPrincipal.StringFixed(2), p.MaxPrincipal.StringFixed(2))
	}
	if termMonths < p.MinTenure || termMonths > p.MaxTenure {
		return fmt.Errorf("%s loan tenure must be between %d and %d months", p.Type, p.MinTenure, p.MaxTenure)
	}
	if income.LessThan(p.MinIncome) {
		return fmt.Errorf("%s loan requires a monthly income of at least %s", p.Type, p.MinIncome.StringFixed(2))
	}
	return nil
}

// LoanProducts maps a loan type to its product rules.
type LoanProducts map[LoanType]LoanProduct

func (lp LoanProducts) Lookup(t LoanType) (LoanProduct, bool) {
	p, ok := lp[t]
	return p, ok
}

// DefaultLoanProducts is the product table the bank ships with.
func DefaultLoanProducts() LoanProducts {
	d := decimal.NewFromInt
	return LoanProducts{
		LoanTypePersonal:  {Type: LoanTypePersonal, MinPrincipal: d(10000), MaxPrincipal: d(1000000), MinTenure: 6, MaxTenure: 60, MinIncome: d(25000), Rate: decimal.RequireFromString("11.5")},
		LoanTypeHome:      {Type: LoanTypeHome, MinPrincipal: d(500000), MaxPrincipal: d(10000000), MinTenure: 12, MaxTenure: 360, MinIncome: d(40000), Rate: decimal.RequireFromString("7.5")},
		LoanTypeVehicle:   {Type: LoanTypeVehicle, MinPrincipal: d(100000), MaxPrincipal: d(5000000), MinTenure: 12, MaxTenure: 84, MinIncome: d(30000), Rate: decimal.RequireFromString("9.5")},
		LoanTypeEducation: {Type: LoanTypeEducation, MinPrincipal: d(50000), MaxPrincipal: d(2000000), MinTenure: 12, MaxTenure: 120, MinIncome: d(20000), Rate: decimal.RequireFromString("8.5")},
		LoanTypeBusiness:  {Type: LoanTypeBusiness, MinPrincipal: d(100000), MaxPrincipal: d(5000000), MinTenure: 12, MaxTenure: 84, MinIncome: d(50000), Rate: decimal.RequireFromString("12.0")},
	}
}

type Loan struct {
	LoanNumber        string          `json:"loan_number"`
	AccountNumber     string          `json:"account_number"`
	OwnerID           string          `json:"owner_id"`
	LoanType          LoanType        `json:"loan_type"`
	Principal         decimal.Decimal `json:"principal"`
	InterestRate      decimal.Decimal `json:"interest_rate"`
	TermMonths        int             `json:"term_months"`
	EMIAmount         decimal.Decimal `json:"emi_amount"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	AmountPaid        decimal.Decimal `json:"amount_paid"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	ApplicantIncome   decimal.Decimal `json:"applicant_income"`
	Status            LoanStatus      `json:"status"`
	RejectionReason   string          `json:"rejection_reason,omitempty"`
	AppliedAt         time.Time       `json:"applied_at"`
	DisbursedAt       *time.Time      `json:"disbursed_at,omitempty"`
	ClosedAt          *time.Time      `json:"closed_at,omitempty"`
	Version           int64           `json:"version"`
}

// Schedule builds the amortization schedule with due dates counted from
// disbursement, or from the application date before the loan is disbursed.
func (l *Loan) Schedule() []Installment {
	start := l.AppliedAt
	if l.DisbursedAt != nil {
		start = *l.DisbursedAt
	}
	return BuildSchedule(l.Principal, l.InterestRate, l.TermMonths, l.EMIAmount, start)
}

// RecordPayment adds amount to AmountPaid and keeps OutstandingAmount equal
// to TotalAmount - AmountPaid.
func (l *Loan) RecordPayment(amount decimal.Decimal) {
	l.AmountPaid = l.AmountPaid.Add(amount)
	l.OutstandingAmount = l.TotalAmount.Sub(l.AmountPaid)
}

type RepaymentStatus string

const RepaymentStatusCompleted RepaymentStatus = "COMPLETED"

type LoanRepayment struct {
	RepaymentID       string          `json:"repayment_id"`
	LoanNumber        string          `json:"loan_number"`
	Amount            decimal.Decimal `json:"amount"`
	PrincipalAmount   decimal.Decimal `json:"principal_amount"`
	InterestAmount    decimal.Decimal `json:"interest_amount"`
	InstallmentNumber int             `json:"installment_number"`
	DueDate           time.Time       `json:"due_date"`
	PaymentDate       time.Time       `json:"payment_date"`
	Status            RepaymentStatus `json:"status"`
	TransactionNumber string          `json:"transaction_number"`
}
