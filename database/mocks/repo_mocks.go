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
package mocks

import (
	"context"
	"time"

	"github.com/apnabank/corebank/database"
	"github.com/apnabank/corebank/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

var _ database.IDataSource = (*MockDataSource)(nil)

// WithTx records the call and, unless an error is configured, runs fn against the mock itself.
func (m *MockDataSource) WithTx(ctx context.Context, fn func(ctx context.Context, tx database.IDataSource) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx, m)
}

// Account methods

func (m *MockDataSource) CreateAccount(ctx context.Context, account *model.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockDataSource) GetAccount(ctx context.Context, number string) (*model.Account, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *MockDataSource) LockAccounts(ctx context.Context, numbers ...string) (map[string]*model.Account, error) {
	args := m.Called(ctx, numbers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*model.Account), args.Error(1)
}

func (m *MockDataSource) UpdateAccount(ctx context.Context, account *model.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockDataSource) ListAccountsByOwner(ctx context.Context, ownerID string) ([]model.Account, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Account), args.Error(1)
}

func (m *MockDataSource) ListAccountsByStatus(ctx context.Context, status model.AccountStatus) ([]model.Account, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Account), args.Error(1)
}

func (m *MockDataSource) AccountNumberExists(ctx context.Context, number string) (bool, error) {
	args := m.Called(ctx, number)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) CountAccounts(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Transaction methods

func (m *MockDataSource) RecordTransaction(ctx context.Context, txn *model.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *MockDataSource) GetTransaction(ctx context.Context, number string) (*model.Transaction, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockDataSource) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*model.Transaction, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockDataSource) SettleTransaction(ctx context.Context, number string, status model.TransactionStatus, reason string, at time.Time) error {
	args := m.Called(ctx, number, status, reason, at)
	return args.Error(0)
}

func (m *MockDataSource) ListAccountTransactions(ctx context.Context, accountNumber string, until time.Time) ([]model.Transaction, error) {
	args := m.Called(ctx, accountNumber, until)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Transaction), args.Error(1)
}

// Loan methods

func (m *MockDataSource) CreateLoan(ctx context.Context, loan *model.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockDataSource) GetLoan(ctx context.Context, number string) (*model.Loan, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Loan), args.Error(1)
}

func (m *MockDataSource) UpdateLoan(ctx context.Context, loan *model.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockDataSource) ListLoansByOwner(ctx context.Context, ownerID string) ([]model.Loan, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Loan), args.Error(1)
}

func (m *MockDataSource) ListLoansByAccount(ctx context.Context, accountNumber string) ([]model.Loan, error) {
	args := m.Called(ctx, accountNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Loan), args.Error(1)
}

func (m *MockDataSource) RecordRepayment(ctx context.Context, repayment *model.LoanRepayment) error {
	args := m.Called(ctx, repayment)
	return args.Error(0)
}

func (m *MockDataSource) ListRepayments(ctx context.Context, loanNumber string) ([]model.LoanRepayment, error) {
	args := m.Called(ctx, loanNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LoanRepayment), args.Error(1)
}

// Deposit methods

func (m *MockDataSource) CreateFixedDeposit(ctx context.Context, fd *model.FixedDeposit) error {
	args := m.Called(ctx, fd)
	return args.Error(0)
}

func (m *MockDataSource) GetFixedDeposit(ctx context.Context, number string) (*model.FixedDeposit, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FixedDeposit), args.Error(1)
}

func (m *MockDataSource) UpdateFixedDeposit(ctx context.Context, fd *model.FixedDeposit) error {
	args := m.Called(ctx, fd)
	return args.Error(0)
}

func (m *MockDataSource) ListFixedDepositsByOwner(ctx context.Context, ownerID string) ([]model.FixedDeposit, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FixedDeposit), args.Error(1)
}

func (m *MockDataSource) ListFixedDepositsByAccount(ctx context.Context, accountNumber string) ([]model.FixedDeposit, error) {
	args := m.Called(ctx, accountNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FixedDeposit), args.Error(1)
}

func (m *MockDataSource) ListMaturedFixedDeposits(ctx context.Context, asOf time.Time) ([]model.FixedDeposit, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FixedDeposit), args.Error(1)
}

func (m *MockDataSource) CreateRecurringDeposit(ctx context.Context, rd *model.RecurringDeposit) error {
	args := m.Called(ctx, rd)
	return args.Error(0)
}

func (m *MockDataSource) GetRecurringDeposit(ctx context.Context, number string) (*model.RecurringDeposit, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RecurringDeposit), args.Error(1)
}

func (m *MockDataSource) UpdateRecurringDeposit(ctx context.Context, rd *model.RecurringDeposit) error {
	args := m.Called(ctx, rd)
	return args.Error(0)
}

func (m *MockDataSource) ListRecurringDepositsByOwner(ctx context.Context, ownerID string) ([]model.RecurringDeposit, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RecurringDeposit), args.Error(1)
}

func (m *MockDataSource) ListRecurringDepositsByAccount(ctx context.Context, accountNumber string) ([]model.RecurringDeposit, error) {
	args := m.Called(ctx, accountNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RecurringDeposit), args.Error(1)
}

func (m *MockDataSource) ListDueRecurringDeposits(ctx context.Context, asOf time.Time) ([]model.RecurringDeposit, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RecurringDeposit), args.Error(1)
}

func (m *MockDataSource) ListMaturedRecurringDeposits(ctx context.Context, asOf time.Time) ([]model.RecurringDeposit, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RecurringDeposit), args.Error(1)
}

// Standing instruction methods

func (m *MockDataSource) CreateInstruction(ctx context.Context, si *model.StandingInstruction) error {
	args := m.Called(ctx, si)
	return args.Error(0)
}

func (m *MockDataSource) GetInstruction(ctx context.Context, id string) (*model.StandingInstruction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StandingInstruction), args.Error(1)
}

func (m *MockDataSource) UpdateInstruction(ctx context.Context, si *model.StandingInstruction) error {
	args := m.Called(ctx, si)
	return args.Error(0)
}

func (m *MockDataSource) ListInstructionsByOwner(ctx context.Context, ownerID string) ([]model.StandingInstruction, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StandingInstruction), args.Error(1)
}

func (m *MockDataSource) ListDueInstructions(ctx context.Context, asOf time.Time) ([]model.StandingInstruction, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StandingInstruction), args.Error(1)
}

func (m *MockDataSource) RecordExecution(ctx context.Context, exec *model.InstructionExecution) error {
	args := m.Called(ctx, exec)
	return args.Error(0)
}

func (m *MockDataSource) ListExecutions(ctx context.Context, instructionID string) ([]model.InstructionExecution, error) {
	args := m.Called(ctx, instructionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.InstructionExecution), args.Error(1)
}
