package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/apnabank/corebank/internal/apierror"
	"github.com/apnabank/corebank/model"
)

type memState struct {
	accounts     map[string]model.Account
	transactions []model.Transaction
	txnIndex     map[string]int
	idempotency  map[string]string
	loans        map[string]model.Loan
	repayments   map[string][]model.LoanRepayment
	fixed        map[string]model.FixedDeposit
	recurring    map[string]model.RecurringDeposit
	instructions map[string]model.StandingInstruction
	executions   map[string][]model.InstructionExecution
}

func newMemState() *memState {
	return &memState{
		accounts:     map[string]model.Account{},
		txnIndex:     map[string]int{},
		idempotency:  map[string]string{},
		loans:        map[string]model.Loan{},
		repayments:   map[string][]model.LoanRepayment{},
		fixed:        map[string]model.FixedDeposit{},
		recurring:    map[string]model.RecurringDeposit{},
		instructions: map[string]model.StandingInstruction{},
		executions:   map[string][]model.InstructionExecution{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		accounts:     make(map[string]model.Account, len(s.accounts)),
		transactions: append([]model.Transaction(nil), s.transactions...),
		txnIndex:     make(map[string]int, len(s.txnIndex)),
		idempotency:  make(map[string]string, len(s.idempotency)),
		loans:        make(map[string]model.Loan, len(s.loans)),
		repayments:   make(map[string][]model.LoanRepayment, len(s.repayments)),
		fixed:        make(map[string]model.FixedDeposit, len(s.fixed)),
		recurring:    make(map[string]model.RecurringDeposit, len(s.recurring)),
		instructions: make(map[string]model.StandingInstruction, len(s.instructions)),
		executions:   make(map[string][]model.InstructionExecution, len(s.executions)),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.txnIndex {
		c.txnIndex[k] = v
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	for k, v := range s.loans {
		c.loans[k] = v
	}
	for k, v := range s.repayments {
		c.repayments[k] = append([]model.LoanRepayment(nil), v...)
	}
	for k, v := range s.fixed {
		c.fixed[k] = v
	}
	for k, v := range s.recurring {
		c.recurring[k] = v
	}
	for k, v := range s.instructions {
		c.instructions[k] = v
	}
	for k, v := range s.executions {
		c.executions[k] = append([]model.InstructionExecution(nil), v...)
	}
	return c
}

type memStore struct {
	mu    sync.RWMutex
	state *memState
}

// MemoryDatasource keeps every record in process memory. Units of work are
// serialized and run against a copy of the state that replaces the original
// only when the unit succeeds.
type MemoryDatasource struct {
	root  *memStore
	state *memState
}

func NewMemoryDataSource() *MemoryDatasource {
	return &MemoryDatasource{root: &memStore{state: newMemState()}}
}

func (m *MemoryDatasource) read(fn func(s *memState) error) error {
	if m.state != nil {
		return fn(m.state)
	}
	m.root.mu.RLock()
	defer m.root.mu.RUnlock()
	return fn(m.root.state)
}

// write runs fn against the live state. fn must not mutate anything before it
// has decided to succeed.
func (m *MemoryDatasource) write(fn func(s *memState) error) error {
	if m.state != nil {
		return fn(m.state)
	}
	m.root.mu.Lock()
	defer m.root.mu.Unlock()
	return fn(m.root.state)
}

func (m *MemoryDatasource) WithTx(ctx context.Context, fn func(ctx context.Context, tx IDataSource) error) error {
	if m.state != nil {
		return fn(ctx, m)
	}
	m.root.mu.Lock()
	defer m.root.mu.Unlock()

	work := m.root.state.clone()
	if err := fn(ctx, &MemoryDatasource{root: m.root, state: work}); err != nil {
		return err
	}
	m.root.state = work
	return nil
}

func notFound(what, id string) error {
	return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("%s '%s' not found", what, id), nil)
}

func staleVersion(what, id string) error {
	return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("%s '%s' was modified concurrently", what, id), nil)
}

func alreadyExists(what, id string) error {
	return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("%s '%s' already exists", what, id), nil)
}

// Accounts

func (m *MemoryDatasource) CreateAccount(_ context.Context, account *model.Account) error {
	return m.write(func(s *memState) error {
		if _, ok := s.accounts[account.AccountNumber]; ok {
			return alreadyExists("Account", account.AccountNumber)
		}
		s.accounts[account.AccountNumber] = *account
		return nil
	})
}

func (m *MemoryDatasource) GetAccount(_ context.Context, number string) (*model.Account, error) {
	var acct model.Account
	err := m.read(func(s *memState) error {
		a, ok := s.accounts[number]
		if !ok {
			return notFound("Account", number)
		}
		acct = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (m *MemoryDatasource) LockAccounts(ctx context.Context, numbers ...string) (map[string]*model.Account, error) {
	accounts := make(map[string]*model.Account, len(numbers))
	for _, number := range uniqueSorted(numbers) {
		acct, err := m.GetAccount(ctx, number)
		if err != nil {
			return nil, err
		}
		accounts[number] = acct
	}
	return accounts, nil
}

func (m *MemoryDatasource) UpdateAccount(_ context.Context, account *model.Account) error {
	return m.write(func(s *memState) error {
		current, ok := s.accounts[account.AccountNumber]
		if !ok {
			return notFound("Account", account.AccountNumber)
		}
		if current.Version != account.Version {
			return staleVersion("Account", account.AccountNumber)
		}
		account.Version++
		s.accounts[account.AccountNumber] = *account
		return nil
	})
}

func (m *MemoryDatasource) listAccounts(match func(a model.Account) bool) ([]model.Account, error) {
	accounts := []model.Account{}
	err := m.read(func(s *memState) error {
		for _, a := range s.accounts {
			if match(a) {
				accounts = append(accounts, a)
			}
		}
		return nil
	})
	sort.Slice(accounts, func(i, j int) bool {
		if !accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
		}
		return accounts[i].AccountNumber < accounts[j].AccountNumber
	})
	return accounts, err
}

func (m *MemoryDatasource) ListAccountsByOwner(_ context.Context, ownerID string) ([]model.Account, error) {
	return m.listAccounts(func(a model.Account) bool { return a.OwnerID == ownerID })
}

func (m *MemoryDatasource) ListAccountsByStatus(_ context.Context, status model.AccountStatus) ([]model.Account, error) {
	return m.listAccounts(func(a model.Account) bool { return a.Status == status })
}

func (m *MemoryDatasource) AccountNumberExists(_ context.Context, number string) (bool, error) {
	var exists bool
	err := m.read(func(s *memState) error {
		_, exists = s.accounts[number]
		return nil
	})
	return exists, err
}

func (m *MemoryDatasource) CountAccounts(_ context.Context) (int64, error) {
	var count int64
	err := m.read(func(s *memState) error {
		count = int64(len(s.accounts))
		return nil
	})
	return count, err
}

// Transactions

func (m *MemoryDatasource) RecordTransaction(_ context.Context, txn *model.Transaction) error {
	return m.write(func(s *memState) error {
		if _, ok := s.txnIndex[txn.TransactionNumber]; ok {
			return alreadyExists("Transaction", txn.TransactionNumber)
		}
		if txn.IdempotencyKey != "" {
			if _, ok := s.idempotency[txn.IdempotencyKey]; ok {
				return alreadyExists("Transaction for idempotency key", txn.IdempotencyKey)
			}
			s.idempotency[txn.IdempotencyKey] = txn.TransactionNumber
		}
		s.txnIndex[txn.TransactionNumber] = len(s.transactions)
		s.transactions = append(s.transactions, *txn)
		return nil
	})
}

func (m *MemoryDatasource) GetTransaction(_ context.Context, number string) (*model.Transaction, error) {
	var txn model.Transaction
	err := m.read(func(s *memState) error {
		i, ok := s.txnIndex[number]
		if !ok {
			return notFound("Transaction", number)
		}
		txn = s.transactions[i]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (m *MemoryDatasource) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*model.Transaction, error) {
	var number string
	err := m.read(func(s *memState) error {
		n, ok := s.idempotency[key]
		if !ok {
			return apierror.NewAPIError(apierror.ErrNotFound, "Transaction for idempotency key not found", nil)
		}
		number = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.GetTransaction(ctx, number)
}

func (m *MemoryDatasource) SettleTransaction(_ context.Context, number string, status model.TransactionStatus, reason string, at time.Time) error {
	return m.write(func(s *memState) error {
		i, ok := s.txnIndex[number]
		if !ok {
			return notFound("Transaction", number)
		}
		txn := s.transactions[i]
		if txn.Status != model.TransactionStatusPending {
			return apierror.NewAPIError(apierror.ErrInvalidState, fmt.Sprintf("Transaction '%s' is not pending", number), nil)
		}
		settledAt := at
		txn.Status = status
		txn.FailureReason = reason
		txn.SettledAt = &settledAt
		s.transactions[i] = txn
		return nil
	})
}

func (m *MemoryDatasource) ListAccountTransactions(_ context.Context, accountNumber string, until time.Time) ([]model.Transaction, error) {
	transactions := []model.Transaction{}
	err := m.read(func(s *memState) error {
		for _, txn := range s.transactions {
			if txn.FromAccount != accountNumber && txn.ToAccount != accountNumber {
				continue
			}
			if txn.CreatedAt.After(until) {
				continue
			}
			transactions = append(transactions, txn)
		}
		return nil
	})
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].CreatedAt.Before(transactions[j].CreatedAt)
	})
	return transactions, err
}

// Loans

func (m *MemoryDatasource) CreateLoan(_ context.Context, loan *model.Loan) error {
	return m.write(func(s *memState) error {
		if _, ok := s.loans[loan.LoanNumber]; ok {
			return alreadyExists("Loan", loan.LoanNumber)
		}
		s.loans[loan.LoanNumber] = *loan
		return nil
	})
}

func (m *MemoryDatasource) GetLoan(_ context.Context, number string) (*model.Loan, error) {
	var loan model.Loan
	err := m.read(func(s *memState) error {
		l, ok := s.loans[number]
		if !ok {
			return notFound("Loan", number)
		}
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (m *MemoryDatasource) UpdateLoan(_ context.Context, loan *model.Loan) error {
	return m.write(func(s *memState) error {
		current, ok := s.loans[loan.LoanNumber]
		if !ok {
			return notFound("Loan", loan.LoanNumber)
		}
		if current.Version != loan.Version {
			return staleVersion("Loan", loan.LoanNumber)
		}
		loan.Version++
		s.loans[loan.LoanNumber] = *loan
		return nil
	})
}

func (m *MemoryDatasource) ListLoansByOwner(_ context.Context, ownerID string) ([]model.Loan, error) {
	return m.listLoans(func(l model.Loan) bool { return l.OwnerID == ownerID })
}

func (m *MemoryDatasource) ListLoansByAccount(_ context.Context, accountNumber string) ([]model.Loan, error) {
	return m.listLoans(func(l model.Loan) bool { return l.AccountNumber == accountNumber })
}

func (m *MemoryDatasource) listLoans(match func(l model.Loan) bool) ([]model.Loan, error) {
	loans := []model.Loan{}
	err := m.read(func(s *memState) error {
		for _, l := range s.loans {
			if match(l) {
				loans = append(loans, l)
			}
		}
		return nil
	})
	sort.Slice(loans, func(i, j int) bool {
		if !loans[i].AppliedAt.Equal(loans[j].AppliedAt) {
			return loans[i].AppliedAt.Before(loans[j].AppliedAt)
		}
		return loans[i].LoanNumber < loans[j].LoanNumber
	})
	return loans, err
}

func (m *MemoryDatasource) RecordRepayment(_ context.Context, repayment *model.LoanRepayment) error {
	return m.write(func(s *memState) error {
		if _, ok := s.loans[repayment.LoanNumber]; !ok {
			return notFound("Loan", repayment.LoanNumber)
		}
		s.repayments[repayment.LoanNumber] = append(s.repayments[repayment.LoanNumber], *repayment)
		return nil
	})
}

func (m *MemoryDatasource) ListRepayments(_ context.Context, loanNumber string) ([]model.LoanRepayment, error) {
	repayments := []model.LoanRepayment{}
	err := m.read(func(s *memState) error {
		repayments = append(repayments, s.repayments[loanNumber]...)
		return nil
	})
	return repayments, err
}

// Deposits

func (m *MemoryDatasource) CreateFixedDeposit(_ context.Context, fd *model.FixedDeposit) error {
	return m.write(func(s *memState) error {
		if _, ok := s.fixed[fd.DepositNumber]; ok {
			return alreadyExists("Fixed deposit", fd.DepositNumber)
		}
		s.fixed[fd.DepositNumber] = *fd
		return nil
	})
}

func (m *MemoryDatasource) GetFixedDeposit(_ context.Context, number string) (*model.FixedDeposit, error) {
	var fd model.FixedDeposit
	err := m.read(func(s *memState) error {
		v, ok := s.fixed[number]
		if !ok {
			return notFound("Fixed deposit", number)
		}
		fd = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fd, nil
}

func (m *MemoryDatasource) UpdateFixedDeposit(_ context.Context, fd *model.FixedDeposit) error {
	return m.write(func(s *memState) error {
		current, ok := s.fixed[fd.DepositNumber]
		if !ok {
			return notFound("Fixed deposit", fd.DepositNumber)
		}
		if current.Version != fd.Version {
			return staleVersion("Fixed deposit", fd.DepositNumber)
		}
		fd.Version++
		s.fixed[fd.DepositNumber] = *fd
		return nil
	})
}

func (m *MemoryDatasource) listFixed(match func(fd model.FixedDeposit) bool, less func(a, b model.FixedDeposit) bool) ([]model.FixedDeposit, error) {
	deposits := []model.FixedDeposit{}
	err := m.read(func(s *memState) error {
		for _, fd := range s.fixed {
			if match(fd) {
				deposits = append(deposits, fd)
			}
		}
		return nil
	})
	sort.Slice(deposits, func(i, j int) bool { return less(deposits[i], deposits[j]) })
	return deposits, err
}

func (m *MemoryDatasource) ListFixedDepositsByOwner(_ context.Context, ownerID string) ([]model.FixedDeposit, error) {
	return m.listFixed(
		func(fd model.FixedDeposit) bool { return fd.OwnerID == ownerID },
		func(a, b model.FixedDeposit) bool { return byTimeThenID(a.StartDate, b.StartDate, a.DepositNumber, b.DepositNumber) },
	)
}

func (m *MemoryDatasource) ListFixedDepositsByAccount(_ context.Context, accountNumber string) ([]model.FixedDeposit, error) {
	return m.listFixed(
		func(fd model.FixedDeposit) bool { return fd.AccountNumber == accountNumber },
		func(a, b model.FixedDeposit) bool { return byTimeThenID(a.StartDate, b.StartDate, a.DepositNumber, b.DepositNumber) },
	)
}

func (m *MemoryDatasource) ListMaturedFixedDeposits(_ context.Context, asOf time.Time) ([]model.FixedDeposit, error) {
	return m.listFixed(
		func(fd model.FixedDeposit) bool {
			return fd.Status == model.DepositStatusActive && !fd.MaturityDate.After(asOf)
		},
		func(a, b model.FixedDeposit) bool {
			return byTimeThenID(a.MaturityDate, b.MaturityDate, a.DepositNumber, b.DepositNumber)
		},
	)
}

func (m *MemoryDatasource) CreateRecurringDeposit(_ context.Context, rd *model.RecurringDeposit) error {
	return m.write(func(s *memState) error {
		if _, ok := s.recurring[rd.DepositNumber]; ok {
			return alreadyExists("Recurring deposit", rd.DepositNumber)
		}
		s.recurring[rd.DepositNumber] = *rd
		return nil
	})
}

func (m *MemoryDatasource) GetRecurringDeposit(_ context.Context, number string) (*model.RecurringDeposit, error) {
	var rd model.RecurringDeposit
	err := m.read(func(s *memState) error {
		v, ok := s.recurring[number]
		if !ok {
			return notFound("Recurring deposit", number)
		}
		rd = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rd, nil
}

func (m *MemoryDatasource) UpdateRecurringDeposit(_ context.Context, rd *model.RecurringDeposit) error {
	return m.write(func(s *memState) error {
		current, ok := s.recurring[rd.DepositNumber]
		if !ok {
			return notFound("Recurring deposit", rd.DepositNumber)
		}
		if current.Version != rd.Version {
			return staleVersion("Recurring deposit", rd.DepositNumber)
		}
		rd.Version++
		s.recurring[rd.DepositNumber] = *rd
		return nil
	})
}

func (m *MemoryDatasource) listRecurring(match func(rd model.RecurringDeposit) bool, less func(a, b model.RecurringDeposit) bool) ([]model.RecurringDeposit, error) {
	deposits := []model.RecurringDeposit{}
	err := m.read(func(s *memState) error {
		for _, rd := range s.recurring {
			if match(rd) {
				deposits = append(deposits, rd)
			}
		}
		return nil
	})
	sort.Slice(deposits, func(i, j int) bool { return less(deposits[i], deposits[j]) })
	return deposits, err
}

func (m *MemoryDatasource) ListRecurringDepositsByOwner(_ context.Context, ownerID string) ([]model.RecurringDeposit, error) {
	return m.listRecurring(
		func(rd model.RecurringDeposit) bool { return rd.OwnerID == ownerID },
		func(a, b model.RecurringDeposit) bool {
			return byTimeThenID(a.StartDate, b.StartDate, a.DepositNumber, b.DepositNumber)
		},
	)
}

func (m *MemoryDatasource) ListRecurringDepositsByAccount(_ context.Context, accountNumber string) ([]model.RecurringDeposit, error) {
	return m.listRecurring(
		func(rd model.RecurringDeposit) bool { return rd.AccountNumber == accountNumber },
		func(a, b model.RecurringDeposit) bool {
			return byTimeThenID(a.StartDate, b.StartDate, a.DepositNumber, b.DepositNumber)
		},
	)
}

func (m *MemoryDatasource) ListDueRecurringDeposits(_ context.Context, asOf time.Time) ([]model.RecurringDeposit, error) {
	return m.listRecurring(
		func(rd model.RecurringDeposit) bool {
			return rd.Status == model.DepositStatusActive && !rd.NextInstallmentDate.After(asOf) && rd.InstallmentsRemaining() > 0
		},
		func(a, b model.RecurringDeposit) bool {
			return byTimeThenID(a.NextInstallmentDate, b.NextInstallmentDate, a.DepositNumber, b.DepositNumber)
		},
	)
}

func (m *MemoryDatasource) ListMaturedRecurringDeposits(_ context.Context, asOf time.Time) ([]model.RecurringDeposit, error) {
	return m.listRecurring(
		func(rd model.RecurringDeposit) bool {
			return rd.Status == model.DepositStatusActive && !rd.MaturityDate.After(asOf)
		},
		func(a, b model.RecurringDeposit) bool {
			return byTimeThenID(a.MaturityDate, b.MaturityDate, a.DepositNumber, b.DepositNumber)
		},
	)
}

// Standing instructions

func (m *MemoryDatasource) CreateInstruction(_ context.Context, si *model.StandingInstruction) error {
	return m.write(func(s *memState) error {
		if _, ok := s.instructions[si.ID]; ok {
			return alreadyExists("Standing instruction", si.ID)
		}
		s.instructions[si.ID] = *si
		return nil
	})
}

func (m *MemoryDatasource) GetInstruction(_ context.Context, id string) (*model.StandingInstruction, error) {
	var si model.StandingInstruction
	err := m.read(func(s *memState) error {
		v, ok := s.instructions[id]
		if !ok {
			return notFound("Standing instruction", id)
		}
		si = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &si, nil
}

func (m *MemoryDatasource) UpdateInstruction(_ context.Context, si *model.StandingInstruction) error {
	return m.write(func(s *memState) error {
		current, ok := s.instructions[si.ID]
		if !ok {
			return notFound("Standing instruction", si.ID)
		}
		if current.Version != si.Version {
			return staleVersion("Standing instruction", si.ID)
		}
		si.Version++
		s.instructions[si.ID] = *si
		return nil
	})
}

func (m *MemoryDatasource) listInstructions(match func(si model.StandingInstruction) bool, less func(a, b model.StandingInstruction) bool) ([]model.StandingInstruction, error) {
	instructions := []model.StandingInstruction{}
	err := m.read(func(s *memState) error {
		for _, si := range s.instructions {
			if match(si) {
				instructions = append(instructions, si)
			}
		}
		return nil
	})
	sort.Slice(instructions, func(i, j int) bool { return less(instructions[i], instructions[j]) })
	return instructions, err
}

func (m *MemoryDatasource) ListInstructionsByOwner(_ context.Context, ownerID string) ([]model.StandingInstruction, error) {
	return m.listInstructions(
		func(si model.StandingInstruction) bool { return si.OwnerID == ownerID },
		func(a, b model.StandingInstruction) bool { return byTimeThenID(a.CreatedAt, b.CreatedAt, a.ID, b.ID) },
	)
}

func (m *MemoryDatasource) ListDueInstructions(_ context.Context, asOf time.Time) ([]model.StandingInstruction, error) {
	return m.listInstructions(
		func(si model.StandingInstruction) bool { return si.Due(asOf) },
		func(a, b model.StandingInstruction) bool {
			return byTimeThenID(a.NextExecutionDate, b.NextExecutionDate, a.ID, b.ID)
		},
	)
}

func (m *MemoryDatasource) RecordExecution(_ context.Context, exec *model.InstructionExecution) error {
	return m.write(func(s *memState) error {
		if _, ok := s.instructions[exec.InstructionID]; !ok {
			return notFound("Standing instruction", exec.InstructionID)
		}
		s.executions[exec.InstructionID] = append(s.executions[exec.InstructionID], *exec)
		return nil
	})
}

func (m *MemoryDatasource) ListExecutions(_ context.Context, instructionID string) ([]model.InstructionExecution, error) {
	executions := []model.InstructionExecution{}
	err := m.read(func(s *memState) error {
		executions = append(executions, s.executions[instructionID]...)
		return nil
	})
	return executions, err
}

func byTimeThenID(a, b time.Time, idA, idB string) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return idA < idB
}
