package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ratePrecision is the number of decimal places carried by intermediate rate
// arithmetic before the final rounding to paise.
const ratePrecision = 24

type Installment struct {
	Number           int             `json:"number"`
	DueDate          time.Time       `json:"due_date"`
	Payment          decimal.Decimal `json:"payment"`
	Principal        decimal.Decimal `json:"principal"`
	Interest         decimal.Decimal `json:"interest"`
	OutstandingAfter decimal.Decimal `json:"outstanding_after"`
	Paid             bool            `json:"paid"`
}

// MonthlyRate converts an annual percentage rate to a monthly fraction.
func MonthlyRate(annualRate decimal.Decimal) decimal.Decimal {
	return annualRate.DivRound(decimal.NewFromInt(1200), ratePrecision)
}

func compound(r decimal.Decimal, n int) decimal.Decimal {
	factor := one.Add(r)
	acc := one
	for i := 0; i < n; i++ {
		acc = acc.Mul(factor).Round(ratePrecision)
	}
	return acc
}

// EMI computes the equated monthly installment
//
//	P * r * (1+r)^n / ((1+r)^n - 1)
//
// with r = annualRate/1200, rounded half-up to two decimals. A zero rate
// spreads the principal evenly.
func EMI(principal, annualRate decimal.Decimal, termMonths int) decimal.Decimal {
	if termMonths <= 0 || !principal.IsPositive() {
		return decimal.Zero
	}
	r := MonthlyRate(annualRate)
	if r.IsZero() {
		return principal.DivRound(decimal.NewFromInt(int64(termMonths)), 2)
	}
	pow := compound(r, termMonths)
	return principal.Mul(r).Mul(pow).DivRound(pow.Sub(one), ratePrecision).Round(2)
}

// BuildSchedule splits each EMI into interest on the outstanding principal and
// the principal it retires. The final installment retires whatever principal
// remains so the schedule always amortizes exactly to zero.
func BuildSchedule(principal, annualRate decimal.Decimal, termMonths int, emi decimal.Decimal, start time.Time) []Installment {
	r := MonthlyRate(annualRate)
	outstanding := principal
	schedule := make([]Installment, 0, termMonths)
	for i := 1; i <= termMonths; i++ {
		interest := Round2(outstanding.Mul(r))
		principalPart := emi.Sub(interest)
		if i == termMonths || principalPart.GreaterThan(outstanding) {
			principalPart = outstanding
		}
		if principalPart.IsNegative() {
			principalPart = decimal.Zero
		}
		outstanding = outstanding.Sub(principalPart)
		schedule = append(schedule, Installment{
			Number:           i,
			DueDate:          AddMonths(start, i),
			Payment:          principalPart.Add(interest),
			Principal:        principalPart,
			Interest:         interest,
			OutstandingAfter: outstanding,
		})
	}
	return schedule
}

// ScheduleTotal is the sum of every installment payment.
func ScheduleTotal(schedule []Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range schedule {
		total = total.Add(inst.Payment)
	}
	return total
}

// RepaymentSplit is how one payment divides between interest and principal.
// InstallmentNumber and DueDate identify the first installment the payment touched.
type RepaymentSplit struct {
	Interest          decimal.Decimal
	Principal         decimal.Decimal
	InstallmentNumber int
	DueDate           time.Time
	Unallocated       decimal.Decimal
}

// AllocateRepayment applies amount on top of alreadyPaid, walking the schedule
// in order. Within each installment interest is settled before principal.
func AllocateRepayment(schedule []Installment, alreadyPaid, amount decimal.Decimal) RepaymentSplit {
	split := RepaymentSplit{Interest: decimal.Zero, Principal: decimal.Zero}
	prior := alreadyPaid
	remaining := amount
	for _, inst := range schedule {
		if !remaining.IsPositive() {
			break
		}
		for idx, component := range []decimal.Decimal{inst.Interest, inst.Principal} {
			covered := MinDecimal(component, prior)
			prior = prior.Sub(covered)
			open := component.Sub(covered)
			if !open.IsPositive() || !remaining.IsPositive() {
				continue
			}
			take := MinDecimal(open, remaining)
			remaining = remaining.Sub(take)
			if idx == 0 {
				split.Interest = split.Interest.Add(take)
			} else {
				split.Principal = split.Principal.Add(take)
			}
			if split.InstallmentNumber == 0 {
				split.InstallmentNumber = inst.Number
				split.DueDate = inst.DueDate
			}
		}
	}
	split.Unallocated = remaining
	return split
}

// MarkPaid flags the installments fully covered by amountPaid.
func MarkPaid(schedule []Installment, amountPaid decimal.Decimal) []Installment {
	covered := amountPaid
	for i := range schedule {
		if covered.GreaterThanOrEqual(schedule[i].Payment) {
			schedule[i].Paid = true
			covered = covered.Sub(schedule[i].Payment)
			continue
		}
		break
	}
	return schedule
}
