package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeTransfer              TransactionType = "TRANSFER"
	TransactionTypeInstantTransfer       TransactionType = "INSTANT_TRANSFER"
	TransactionTypeInternationalTransfer TransactionType = "INTERNATIONAL_TRANSFER"
	TransactionTypeBillPayment           TransactionType = "BILL_PAYMENT"
	TransactionTypeDeposit               TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal            TransactionType = "WITHDRAWAL"
	TransactionTypeLoanDisbursement      TransactionType = "LOAN_DISBURSEMENT"
	TransactionTypeLoanRepayment         TransactionType = "LOAN_REPAYMENT"
	TransactionTypeFDFunding             TransactionType = "FD_FUNDING"
	TransactionTypeRDInstallment         TransactionType = "RD_INSTALLMENT"
	TransactionTypeDepositMaturity       TransactionType = "DEPOSIT_MATURITY"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Beneficiary describes the receiving party of an international transfer.
type Beneficiary struct {
	Name             string `json:"name"`
	BankName         string `json:"bank_name"`
	SwiftCode        string `json:"swift_code"`
	Address          string `json:"address,omitempty"`
	AccountNumber    string `json:"account_number"`
	RoutingNumber    string `json:"routing_number,omitempty"`
	IntermediaryBank string `json:"intermediary_bank,omitempty"`
}

// Transaction is the immutable record of one money movement. FromAccount and
// ToAccount are empty when that side is outside the bank; ExternalReference
// names the outside party instead.
type Transaction struct {
	TransactionNumber string            `json:"transaction_number"`
	Type              TransactionType   `json:"type"`
	Status            TransactionStatus `json:"status"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	FromAccount       string            `json:"from_account,omitempty"`
	ToAccount         string            `json:"to_account,omitempty"`
	ExternalReference string            `json:"external_reference,omitempty"`
	Beneficiary       *Beneficiary      `json:"beneficiary,omitempty"`
	Purpose           string            `json:"purpose,omitempty"`
	IdempotencyKey    string            `json:"idempotency_key,omitempty"`
	Description       string            `json:"description,omitempty"`
	FailureReason     string            `json:"failure_reason,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	SettledAt         *time.Time        `json:"settled_at,omitempty"`
}

// Posted reports whether the transaction moved money. Completed transactions
// always did; a pending transaction has already debited its source.
// Failed transactions had their effect reversed.
func (t *Transaction) Posted() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusPending
}

// EffectOn returns the signed change the transaction made to accountNumber.
func (t *Transaction) EffectOn(accountNumber string) decimal.Decimal {
	if !t.Posted() {
		return decimal.Zero
	}
	effect := decimal.Zero
	if t.FromAccount == accountNumber {
		effect = effect.Sub(t.Amount)
	}
	if t.ToAccount == accountNumber {
		effect = effect.Add(t.Amount)
	}
	return effect
}

// Statement aggregates the posted transactions of an account over [From, To].
type Statement struct {
	AccountNumber  string          `json:"account_number"`
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	TotalCredit    decimal.Decimal `json:"total_credit"`
	TotalDebit     decimal.Decimal `json:"total_debit"`
	Transactions   []Transaction   `json:"transactions"`
}

// BuildStatement replays history, which must be ordered by CreatedAt and
// contain every transaction touching accountNumber up to to.
func BuildStatement(accountNumber string, from, to time.Time, history []Transaction) Statement {
	st := Statement{
		AccountNumber:  accountNumber,
		From:           from,
		To:             to,
		OpeningBalance: decimal.Zero,
		TotalCredit:    decimal.Zero,
		TotalDebit:     decimal.Zero,
		Transactions:   []Transaction{},
	}
	for _, txn := range history {
		if txn.CreatedAt.After(to) {
			continue
		}
		effect := txn.EffectOn(accountNumber)
		if txn.CreatedAt.Before(from) {
			st.OpeningBalance = st.OpeningBalance.Add(effect)
			continue
		}
		if !txn.Posted() {
			continue
		}
		if effect.IsPositive() {
			st.TotalCredit = st.TotalCredit.Add(effect)
		} else {
			st.TotalDebit = st.TotalDebit.Add(effect.Neg())
		}
		st.Transactions = append(st.Transactions, txn)
	}
	st.ClosingBalance = st.OpeningBalance.Add(st.TotalCredit).Sub(st.TotalDebit)
	return st
}
