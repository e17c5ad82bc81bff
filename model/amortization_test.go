package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestEMI(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		rate      string
		months    int
		want      string
	}{
		{"personal loan", "100000", "11.5", 24, "4684.03"},
		{"zero rate spreads evenly", "1200", "0", 12, "100.00"},
		{"zero term", "1000", "10", 0, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EMI(dec(tt.principal), dec(tt.rate), tt.months)
			assert.True(t, dec(tt.want).Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestBuildScheduleAmortizesExactly(t *testing.T) {
	principal := dec("100000")
	emi := EMI(principal, dec("11.5"), 24)
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	schedule := BuildSchedule(principal, dec("11.5"), 24, emi, start)
	require.Len(t, schedule, 24)

	first := schedule[0]
	assert.True(t, dec("958.33").Equal(first.Interest), first.Interest.String())
	assert.True(t, dec("3725.70").Equal(first.Principal), first.Principal.String())
	assert.True(t, dec("96274.30").Equal(first.OutstandingAfter), first.OutstandingAfter.String())
	assert.Equal(t, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), first.DueDate)

	second := schedule[1]
	assert.True(t, dec("922.63").Equal(second.Interest), second.Interest.String())
	assert.True(t, dec("3761.40").Equal(second.Principal), second.Principal.String())

	last := schedule[23]
	assert.True(t, dec("44.46").Equal(last.Interest), last.Interest.String())
	assert.True(t, dec("4639.59").Equal(last.Principal), last.Principal.String())
	assert.True(t, dec("4684.05").Equal(last.Payment), last.Payment.String())
	assert.True(t, last.OutstandingAfter.IsZero())

	principalSum := decimal.Zero
	for _, inst := range schedule {
		principalSum = principalSum.Add(inst.Principal)
	}
	assert.True(t, principal.Equal(principalSum), principalSum.String())
	assert.True(t, dec("112416.74").Equal(ScheduleTotal(schedule)), ScheduleTotal(schedule).String())
}

func TestAllocateRepaymentInterestFirst(t *testing.T) {
	principal := dec("100000")
	emi := EMI(principal, dec("11.5"), 24)
	schedule := BuildSchedule(principal, dec("11.5"), 24, emi, time.Now())

	split := AllocateRepayment(schedule, decimal.Zero, dec("500"))
	assert.Equal(t, 1, split.InstallmentNumber)
	assert.True(t, dec("500").Equal(split.Interest))
	assert.True(t, split.Principal.IsZero())

	split = AllocateRepayment(schedule, dec("500"), dec("1000"))
	assert.Equal(t, 1, split.InstallmentNumber)
	assert.True(t, dec("458.33").Equal(split.Interest), split.Interest.String())
	assert.True(t, dec("541.67").Equal(split.Principal), split.Principal.String())

	// one full EMI plus the interest of the second installment
	split = AllocateRepayment(schedule, decimal.Zero, dec("5606.66"))
	assert.Equal(t, 1, split.InstallmentNumber)
	assert.True(t, dec("1880.96").Equal(split.Interest), split.Interest.String())
	assert.True(t, dec("3725.70").Equal(split.Principal), split.Principal.String())
	assert.True(t, split.Unallocated.IsZero())
}

func TestAllocateRepaymentFullPayoff(t *testing.T) {
	principal := dec("100000")
	emi := EMI(principal, dec("11.5"), 24)
	schedule := BuildSchedule(principal, dec("11.5"), 24, emi, time.Now())
	total := ScheduleTotal(schedule)

	split := AllocateRepayment(schedule, decimal.Zero, total)
	assert.True(t, principal.Equal(split.Principal), split.Principal.String())
	assert.True(t, dec("12416.74").Equal(split.Interest), split.Interest.String())
	assert.True(t, split.Unallocated.IsZero())

	over := AllocateRepayment(schedule, decimal.Zero, total.Add(dec("10")))
	assert.True(t, dec("10").Equal(over.Unallocated))
}

func TestMarkPaid(t *testing.T) {
	principal := dec("100000")
	emi := EMI(principal, dec("11.5"), 24)
	schedule := BuildSchedule(principal, dec("11.5"), 24, emi, time.Now())

	marked := MarkPaid(schedule, emi.Mul(decimal.NewFromInt(2)).Add(dec("100")))
	assert.True(t, marked[0].Paid)
	assert.True(t, marked[1].Paid)
	assert.False(t, marked[2].Paid)
}

func TestLoanRecordPaymentKeepsOutstandingConsistent(t *testing.T) {
	loan := Loan{TotalAmount: dec("112416.74"), AmountPaid: decimal.Zero, OutstandingAmount: dec("112416.74")}
	loan.RecordPayment(dec("4684.03"))
	loan.RecordPayment(dec("100"))

	assert.True(t, dec("4784.03").Equal(loan.AmountPaid))
	assert.True(t, loan.TotalAmount.Sub(loan.AmountPaid).Equal(loan.OutstandingAmount))
}

func TestLoanStatusTransitions(t *testing.T) {
	assert.True(t, LoanStatusApplied.CanTransitionTo(LoanStatusUnderReview))
	assert.True(t, LoanStatusUnderReview.CanTransitionTo(LoanStatusApproved))
	assert.True(t, LoanStatusApproved.CanTransitionTo(LoanStatusDisbursed))
	assert.True(t, LoanStatusDisbursed.CanTransitionTo(LoanStatusClosed))
	assert.True(t, LoanStatusDisbursed.CanTransitionTo(LoanStatusDefault))
	assert.False(t, LoanStatusApplied.CanTransitionTo(LoanStatusApproved))
	assert.False(t, LoanStatusApproved.CanTransitionTo(LoanStatusRejected))
	assert.True(t, LoanStatusClosed.Terminal())
	assert.True(t, LoanStatusRejected.Terminal())
	assert.False(t, LoanStatusDisbursed.Terminal())
}

func TestLoanProductCheck(t *testing.T) {
	products := DefaultLoanProducts()
	personal, ok := products.Lookup(LoanTypePersonal)
	require.True(t, ok)

	assert.NoError(t, personal.Check(dec("100000"), 24, dec("30000")))
	assert.Error(t, personal.Check(dec("5000"), 24, dec("30000")))
	assert.Error(t, personal.Check(dec("100000"), 61, dec("30000")))
	assert.Error(t, personal.Check(dec("100000"), 24, dec("20000")))

	_, ok = products.Lookup(LoanType("GOLD"))
	assert.False(t, ok)
}
