/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"time"

	"github.com/apnabank/corebank/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
// Reads made through the tx handed to WithTx lock the rows they return until the unit of work ends.
type IDataSource interface {
	account     // Interface for account-related operations
	transaction // Interface for transaction-related operations
	loan        // Interface for loan-related operations
	deposit     // Interface for fixed and recurring deposit operations
	instruction // Interface for standing instruction operations

	// WithTx runs fn as one all-or-nothing unit of work. Calling WithTx on the
	// tx passed to fn reuses the same unit of work.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx IDataSource) error) error
}

// account defines methods for handling accounts.
type account interface {
	CreateAccount(ctx context.Context, account *model.Account) error                               // Inserts a new account
	GetAccount(ctx context.Context, number string) (*model.Account, error)                         // Retrieves an account by number
	LockAccounts(ctx context.Context, numbers ...string) (map[string]*model.Account, error)        // Retrieves and locks accounts in ascending number order
	UpdateAccount(ctx context.Context, account *model.Account) error                               // Updates an account, failing with CONFLICT on a stale version
	ListAccountsByOwner(ctx context.Context, ownerID string) ([]model.Account, error)              // Lists the accounts of one owner
	ListAccountsByStatus(ctx context.Context, status model.AccountStatus) ([]model.Account, error) // Lists accounts in one approval status
	AccountNumberExists(ctx context.Context, number string) (bool, error)                          // Checks the account number index
	CountAccounts(ctx context.Context) (int64, error)                                              // Counts every account ever opened
}

// transaction defines methods for handling transactions.
type transaction interface {
	RecordTransaction(ctx context.Context, txn *model.Transaction) error                                                     // Appends a transaction, CONFLICT on a reused idempotency key
	GetTransaction(ctx context.Context, number string) (*model.Transaction, error)                                           // Retrieves a transaction by number
	GetTransactionByIdempotencyKey(ctx context.Context, key string) (*model.Transaction, error)                              // Retrieves the transaction recorded under key
	SettleTransaction(ctx context.Context, number string, status model.TransactionStatus, reason string, at time.Time) error // Moves a PENDING transaction to a final status
	ListAccountTransactions(ctx context.Context, accountNumber string, until time.Time) ([]model.Transaction, error)         // Lists transactions touching an account, oldest first
}

// loan defines methods for handling loans and their repayments.
type loan interface {
	CreateLoan(ctx context.Context, loan *model.Loan) error
	GetLoan(ctx context.Context, number string) (*model.Loan, error)
	UpdateLoan(ctx context.Context, loan *model.Loan) error
	ListLoansByOwner(ctx context.Context, ownerID string) ([]model.Loan, error)
	ListLoansByAccount(ctx context.Context, accountNumber string) ([]model.Loan, error)
	RecordRepayment(ctx context.Context, repayment *model.LoanRepayment) error
	ListRepayments(ctx context.Context, loanNumber string) ([]model.LoanRepayment, error)
}

// deposit defines methods for handling fixed and recurring deposits.
type deposit interface {
	CreateFixedDeposit(ctx context.Context, fd *model.FixedDeposit) error
	GetFixedDeposit(ctx context.Context, number string) (*model.FixedDeposit, error)
	UpdateFixedDeposit(ctx context.Context, fd *model.FixedDeposit) error
	ListFixedDepositsByOwner(ctx context.Context, ownerID string) ([]model.FixedDeposit, error)
	ListFixedDepositsByAccount(ctx context.Context, accountNumber string) ([]model.FixedDeposit, error)
	ListMaturedFixedDeposits(ctx context.Context, asOf time.Time) ([]model.FixedDeposit, error)

	CreateRecurringDeposit(ctx context.Context, rd *model.RecurringDeposit) error
	GetRecurringDeposit(ctx context.Context, number string) (*model.RecurringDeposit, error)
	UpdateRecurringDeposit(ctx context.Context, rd *model.RecurringDeposit) error
	ListRecurringDepositsByOwner(ctx context.Context, ownerID string) ([]model.RecurringDeposit, error)
	ListRecurringDepositsByAccount(ctx context.Context, accountNumber string) ([]model.RecurringDeposit, error)
	ListDueRecurringDeposits(ctx context.Context, asOf time.Time) ([]model.RecurringDeposit, error)
	ListMaturedRecurringDeposits(ctx context.Context, asOf time.Time) ([]model.RecurringDeposit, error)
}

// instruction defines methods for scheduled transfers and recurring payments.
type instruction interface {
	CreateInstruction(ctx context.Context, si *model.StandingInstruction) error
	GetInstruction(ctx context.Context, id string) (*model.StandingInstruction, error)
	UpdateInstruction(ctx context.Context, si *model.StandingInstruction) error
	ListInstructionsByOwner(ctx context.Context, ownerID string) ([]model.StandingInstruction, error)
	ListDueInstructions(ctx context.Context, asOf time.Time) ([]model.StandingInstruction, error)
	RecordExecution(ctx context.Context, exec *model.InstructionExecution) error
	ListExecutions(ctx context.Context, instructionID string) ([]model.InstructionExecution, error)
}
