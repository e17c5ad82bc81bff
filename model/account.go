package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeSavings          AccountType = "SAVINGS"
	AccountTypeCurrent          AccountType = "CURRENT"
	AccountTypeFixedDeposit     AccountType = "FIXED_DEPOSIT"
	AccountTypeRecurringDeposit AccountType = "RECURRING_DEPOSIT"
	AccountTypeZeroBalance      AccountType = "ZERO_BALANCE"
	AccountTypeJoint            AccountType = "JOINT"
	AccountTypeDigital          AccountType = "DIGITAL"
	AccountTypeSeniorCitizen    AccountType = "SENIOR_CITIZEN"
	AccountTypeSalary           AccountType = "SALARY"
)

// AccountTypes lists every account type the bank offers.
var AccountTypes = []interface{}{
	AccountTypeSavings, AccountTypeCurrent, AccountTypeFixedDeposit, AccountTypeRecurringDeposit,
	AccountTypeZeroBalance, AccountTypeJoint, AccountTypeDigital, AccountTypeSeniorCitizen, AccountTypeSalary,
}

type AccountStatus string

const (
	AccountStatusPendingApproval AccountStatus = "PENDING_APPROVAL"
	AccountStatusApproved        AccountStatus = "APPROVED"
	AccountStatusRejected        AccountStatus = "REJECTED"
)

var accountTransitions = map[AccountStatus][]AccountStatus{
	AccountStatusPendingApproval: {AccountStatusApproved, AccountStatusRejected},
	AccountStatusApproved:        nil,
	AccountStatusRejected:        nil,
}

// CanTransitionTo reports whether the approval workflow allows moving from s to next.
func (s AccountStatus) CanTransitionTo(next AccountStatus) bool {
	for _, allowed := range accountTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AccountDetails carries the type-specific fields captured when an account is opened.
type AccountDetails struct {
	HolderName          string     `json:"holder_name,omitempty"`
	Email               string     `json:"email,omitempty"`
	Mobile              string     `json:"mobile,omitempty"`
	Address             string     `json:"address,omitempty"`
	City                string     `json:"city,omitempty"`
	State               string     `json:"state,omitempty"`
	PostalCode          string     `json:"postal_code,omitempty"`
	SecondaryHolderName string     `json:"secondary_holder_name,omitempty"`
	Relationship        string     `json:"relationship,omitempty"`
	OperationMode       string     `json:"operation_mode,omitempty"`
	EmployerName        string     `json:"employer_name,omitempty"`
	EmployeeID          string     `json:"employee_id,omitempty"`
	NomineeName         string     `json:"nominee_name,omitempty"`
	NomineeRelationship string     `json:"nominee_relationship,omitempty"`
	DateOfBirth         *time.Time `json:"date_of_birth,omitempty"`
	PaperlessStatements bool       `json:"paperless_statements,omitempty"`
	VirtualDebitCard    bool       `json:"virtual_debit_card,omitempty"`
}

// SeniorCitizenAge is the minimum holder age for a SENIOR_CITIZEN account.
const SeniorCitizenAge = 60

// ValidateFor checks that the fields required by accountType are present.
func (d AccountDetails) ValidateFor(accountType AccountType, now time.Time) error {
	var missing []string
	switch accountType {
	case AccountTypeJoint:
		if strings.TrimSpace(d.SecondaryHolderName) == "" {
			missing = append(missing, "secondary_holder_name")
		}
		if strings.TrimSpace(d.Relationship) == "" {
			missing = append(missing, "relationship")
		}
	case AccountTypeSalary:
		if strings.TrimSpace(d.EmployerName) == "" {
			missing = append(missing, "employer_name")
		}
		if strings.TrimSpace(d.EmployeeID) == "" {
			missing = append(missing, "employee_id")
		}
	case AccountTypeSeniorCitizen:
		if strings.TrimSpace(d.NomineeName) == "" {
			missing = append(missing, "nominee_name")
		}
		if d.DateOfBirth == nil {
			missing = append(missing, "date_of_birth")
		} else if AgeOn(*d.DateOfBirth, now) < SeniorCitizenAge {
			return fmt.Errorf("holder must be at least %d years old", SeniorCitizenAge)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields for %s account: %s", accountType, strings.Join(missing, ", "))
	}
	return nil
}

// AgeOn returns the age in whole years of someone born on dob, on the date now.
func AgeOn(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

type Account struct {
	AccountNumber   string          `json:"account_number"`
	OwnerID         string          `json:"owner_id"`
	AccountType     AccountType     `json:"account_type"`
	Balance         decimal.Decimal `json:"balance"`
	Currency        string          `json:"currency"`
	Status          AccountStatus   `json:"status"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	Active          bool            `json:"active"`
	Details         AccountDetails  `json:"details"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

var ErrNegativeBalance = errors.New("balance would become negative")

// ApplyDelta adds signedAmount to the balance. A result below zero is refused
// and leaves the account untouched.
func (a *Account) ApplyDelta(signedAmount decimal.Decimal) error {
	next := a.Balance.Add(signedAmount)
	if next.IsNegative() {
		return ErrNegativeBalance
	}
	a.Balance = next
	return nil
}

// Operational reports whether money may move in or out of the account.
func (a *Account) Operational() bool {
	return a.Active && a.Status == AccountStatusApproved
}

// SeniorCitizen reports whether deposits linked to this account earn the senior rate.
func (a *Account) SeniorCitizen() bool {
	return a.AccountType == AccountTypeSeniorCitizen
}
