package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type InstructionKind string

const (
	InstructionScheduledTransfer InstructionKind = "SCHEDULED_TRANSFER"
	InstructionRecurringPayment  InstructionKind = "RECURRING_PAYMENT"
)

type Frequency string

const (
	FrequencyOnce      Frequency = "ONCE"
	FrequencyDaily     Frequency = "DAILY"
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyYearly    Frequency = "YEARLY"
)

var Frequencies = []interface{}{
	FrequencyOnce, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly,
}

// Recurrence is a frequency plus the day it is anchored to. AnchorDay is the
// day of month for monthly and longer frequencies; zero keeps the day of the
// first execution.
type Recurrence struct {
	Frequency Frequency `json:"frequency"`
	AnchorDay int       `json:"anchor_day,omitempty"`
}

// Next returns the execution date following from, and false for one-shot rules.
func (r Recurrence) Next(from time.Time) (time.Time, bool) {
	day := r.AnchorDay
	if day == 0 {
		day = from.Day()
	}
	switch r.Frequency {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1), true
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7), true
	case FrequencyMonthly:
		return addMonthsOnDay(from, 1, day), true
	case FrequencyQuarterly:
		return addMonthsOnDay(from, 3, day), true
	case FrequencyYearly:
		return addMonthsOnDay(from, 12, day), true
	default:
		return time.Time{}, false
	}
}

type InstructionStatus string

const (
	InstructionStatusScheduled InstructionStatus = "SCHEDULED"
	InstructionStatusExecuted  InstructionStatus = "EXECUTED"
	InstructionStatusCompleted InstructionStatus = "COMPLETED"
	InstructionStatusCancelled InstructionStatus = "CANCELLED"
)

// StandingInstruction is a scheduled transfer or a recurring payment. Exactly
// one of ToAccount and BillerID names the payee.
type StandingInstruction struct {
	ID                string            `json:"id"`
	Kind              InstructionKind   `json:"kind"`
	OwnerID           string            `json:"owner_id"`
	FromAccount       string            `json:"from_account"`
	ToAccount         string            `json:"to_account,omitempty"`
	BillerID          string            `json:"biller_id,omitempty"`
	BillerReference   string            `json:"biller_reference,omitempty"`
	Name              string            `json:"name,omitempty"`
	Amount            decimal.Decimal   `json:"amount"`
	Description       string            `json:"description,omitempty"`
	Recurrence        Recurrence        `json:"recurrence"`
	NextExecutionDate time.Time         `json:"next_execution_date"`
	EndDate           *time.Time        `json:"end_date,omitempty"`
	Active            bool              `json:"active"`
	Status            InstructionStatus `json:"status"`
	SkipOnFailure     bool              `json:"skip_on_failure"`
	LastExecutedAt    *time.Time        `json:"last_executed_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	Version           int64             `json:"version"`
}

// Due reports whether the instruction should run in a cycle started at now.
func (si *StandingInstruction) Due(now time.Time) bool {
	return si.Active && si.Status == InstructionStatusScheduled && !si.NextExecutionDate.After(now)
}

// Advance moves the instruction past its current occurrence. One-shot
// instructions and instructions running past their end date stop.
func (si *StandingInstruction) Advance(executed bool) {
	next, ok := si.Recurrence.Next(si.NextExecutionDate)
	switch {
	case !ok:
		si.Active = false
		if executed {
			si.Status = InstructionStatusExecuted
		} else {
			si.Status = InstructionStatusCompleted
		}
	case si.EndDate != nil && next.After(*si.EndDate):
		si.Active = false
		si.Status = InstructionStatusCompleted
	default:
		si.NextExecutionDate = next
	}
}

type ExecutionStatus string

const (
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
)

// InstructionExecution records one occurrence of a standing instruction.
type InstructionExecution struct {
	ExecutionID       string          `json:"execution_id"`
	InstructionID     string          `json:"instruction_id"`
	DueDate           time.Time       `json:"due_date"`
	ExecutedAt        time.Time       `json:"executed_at"`
	Status            ExecutionStatus `json:"status"`
	TransactionNumber string          `json:"transaction_number,omitempty"`
	FailureReason     string          `json:"failure_reason,omitempty"`
}
