package model

import "time"

const (
	EventAccountOpened        = "account.opened"
	EventAccountApproved      = "account.approved"
	EventAccountRejected      = "account.rejected"
	EventAccountClosed        = "account.closed"
	EventTransactionCompleted = "transaction.completed"
	EventTransactionPending   = "transaction.pending"
	EventTransactionFailed    = "transaction.failed"
	EventLoanApplied          = "loan.applied"
	EventLoanStatusChanged    = "loan.status_changed"
	EventLoanRepaid           = "loan.repaid"
	EventDepositOpened        = "deposit.opened"
	EventDepositMatured       = "deposit.matured"
	EventDepositClosed        = "deposit.closed"
	EventInstallmentMissed    = "deposit.installment_missed"
	EventInstructionExecuted  = "instruction.executed"
	EventInstructionFailed    = "instruction.failed"
	EventInstructionCancelled = "instruction.cancelled"
)

// Event is a lifecycle notification handed to the notifier after a unit of work commits.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Payload    interface{} `json:"payload"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func NewEvent(eventType string, payload interface{}, at time.Time) Event {
	return Event{
		ID:         GenerateUUIDWithSuffix("evt"),
		Type:       eventType,
		Payload:    payload,
		OccurredAt: at,
	}
}
