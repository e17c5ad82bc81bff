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

package corebank

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/apnabank/corebank/database"
	"github.com/apnabank/corebank/internal/apierror"
	"github.com/apnabank/corebank/model"
)

// OpeningDepositReference marks the transaction that funds a new account.
const OpeningDepositReference = "OPENING_DEPOSIT"

// OpenAccount creates an account awaiting approval. A positive initial balance
// is recorded as a deposit in the same unit of work.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - req model.OpenAccountRequest: The owner, type, initial balance and type-specific details.
//
// Returns:
// - *model.Account: The created account.
// - error: VALIDATION_ERROR for a bad request, EXHAUSTED when no free account number was found.
func (b *Bank) OpenAccount(ctx context.Context, req model.OpenAccountRequest) (*model.Account, error) {
	ctx, span := tracer.Start(ctx, "OpenAccount")
	defer span.End()

	if err := req.Validate(b.now()); err != nil {
		return nil, validationError(err)
	}

	var account *model.Account
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		number, err := b.accountNumbers.Generate(ctx, u.tx)
		if err != nil {
			return err
		}

		account = &model.Account{
			AccountNumber: number,
			OwnerID:       req.OwnerID,
			AccountType:   req.AccountType,
			Balance:       req.InitialBalance,
			Currency:      b.currency(),
			Status:        model.AccountStatusPendingApproval,
			Active:        true,
			Details:       req.Details,
			CreatedAt:     u.at,
			UpdatedAt:     u.at,
		}
		if err := u.tx.CreateAccount(ctx, account); err != nil {
			return err
		}

		if req.InitialBalance.IsPositive() {
			if _, err := b.record(ctx, u, &model.Transaction{
				Type:              model.TransactionTypeDeposit,
				Status:            model.TransactionStatusCompleted,
				Amount:            req.InitialBalance,
				ToAccount:         number,
				ExternalReference: OpeningDepositReference,
				Description:       "Opening deposit",
			}); err != nil {
				return err
			}
		}

		u.emit(model.EventAccountOpened, *account)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"account_number": account.AccountNumber, "type": account.AccountType}).Info("account opened")
	return account, nil
}

// ApproveAccount moves a pending account to APPROVED. Approving an already
// approved account returns it unchanged.
func (b *Bank) ApproveAccount(ctx context.Context, accountNumber, actingUserID string) (*model.Account, error) {
	ctx, span := tracer.Start(ctx, "ApproveAccount")
	defer span.End()

	if err := b.requireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}

	var account *model.Account
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		acct, err := u.tx.GetAccount(ctx, accountNumber)
		if err != nil {
			return err
		}
		account = acct
		if acct.Status == model.AccountStatusApproved {
			return nil
		}
		if err := b.transitionAccount(ctx, u, acct, model.AccountStatusApproved, ""); err != nil {
			return err
		}
		u.emit(model.EventAccountApproved, *acct)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// RejectAccount moves a pending account to REJECTED with a mandatory reason.
func (b *Bank) RejectAccount(ctx context.Context, accountNumber, actingUserID, reason string) (*model.Account, error) {
	ctx, span := tracer.Start(ctx, "RejectAccount")
	defer span.End()

	if err := b.requireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "a rejection reason is required", nil)
	}

	var account *model.Account
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		acct, err := u.tx.GetAccount(ctx, accountNumber)
		if err != nil {
			return err
		}
		if err := b.transitionAccount(ctx, u, acct, model.AccountStatusRejected, reason); err != nil {
			return err
		}
		account = acct
		u.emit(model.EventAccountRejected, *acct)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (b *Bank) transitionAccount(ctx context.Context, u *unit, acct *model.Account, next model.AccountStatus, reason string) error {
	if !acct.Status.CanTransitionTo(next) {
		return invalidState(fmt.Sprintf("account %s cannot move from %s to %s", acct.AccountNumber, acct.Status, next))
	}
	acct.Status = next
	acct.RejectionReason = reason
	acct.UpdatedAt = u.at
	return u.tx.UpdateAccount(ctx, acct)
}

// CloseAccount deactivates an account whose balance is zero and that no
// active deposit or open loan pays into. Closing an inactive account is a no-op.
func (b *Bank) CloseAccount(ctx context.Context, accountNumber, ownerID string) (*model.Account, error) {
	ctx, span := tracer.Start(ctx, "CloseAccount")
	defer span.End()

	var account *model.Account
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		acct, err := ownedAccount(ctx, u.tx, accountNumber, ownerID)
		if err != nil {
			return err
		}
		account = acct
		if !acct.Active {
			return nil
		}
		if !acct.Balance.IsZero() {
			return invalidState(fmt.Sprintf("account %s still holds %s and cannot be closed", accountNumber, acct.Balance.StringFixed(2)))
		}
		if err := checkNoOpenProducts(ctx, u.tx, accountNumber); err != nil {
			return err
		}
		acct.Active = false
		acct.UpdatedAt = u.at
		if err := u.tx.UpdateAccount(ctx, acct); err != nil {
			return err
		}
		u.emit(model.EventAccountClosed, *acct)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// checkNoOpenProducts refuses closure while a deposit or loan still settles
// through the account.
func checkNoOpenProducts(ctx context.Context, ds database.IDataSource, accountNumber string) error {
	fixed, err := ds.ListFixedDepositsByAccount(ctx, accountNumber)
	if err != nil {
		return err
	}
	for _, fd := range fixed {
		if fd.Status == model.DepositStatusActive {
			return invalidState(fmt.Sprintf("account %s funds active fixed deposit %s", accountNumber, fd.DepositNumber))
		}
	}

	recurring, err := ds.ListRecurringDepositsByAccount(ctx, accountNumber)
	if err != nil {
		return err
	}
	for _, rd := range recurring {
		if rd.Status == model.DepositStatusActive {
			return invalidState(fmt.Sprintf("account %s funds active recurring deposit %s", accountNumber, rd.DepositNumber))
		}
	}

	loans, err := ds.ListLoansByAccount(ctx, accountNumber)
	if err != nil {
		return err
	}
	for _, l := range loans {
		if !l.Status.Terminal() {
			return invalidState(fmt.Sprintf("account %s is linked to %s loan %s", accountNumber, l.Status, l.LoanNumber))
		}
	}
	return nil
}

// CreditOrDebit moves money between an account and the outside world. A
// positive amount is a DEPOSIT and a negative one a WITHDRAWAL against reference.
func (b *Bank) CreditOrDebit(ctx context.Context, accountNumber string, signedAmount decimal.Decimal, reference string) (*model.Account, error) {
	ctx, span := tracer.Start(ctx, "CreditOrDebit")
	defer span.End()

	if signedAmount.IsZero() {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "amount must not be zero", nil)
	}
	if !signedAmount.Equal(signedAmount.Round(2)) {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "amount must not have more than two decimal places", nil)
	}

	var account *model.Account
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		accounts, err := u.tx.LockAccounts(ctx, accountNumber)
		if err != nil {
			return err
		}
		acct := accounts[accountNumber]
		if err := b.applyBalance(ctx, u, acct, signedAmount); err != nil {
			return err
		}

		txn := &model.Transaction{
			Status:            model.TransactionStatusCompleted,
			Amount:            signedAmount.Abs(),
			ExternalReference: reference,
		}
		if signedAmount.IsPositive() {
			txn.Type = model.TransactionTypeDeposit
			txn.ToAccount = accountNumber
		} else {
			txn.Type = model.TransactionTypeWithdrawal
			txn.FromAccount = accountNumber
		}
		if _, err := b.record(ctx, u, txn); err != nil {
			return err
		}
		account = acct
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// applyBalance is the balance mutation primitive shared by every engine. It
// requires an operational account and never lets the balance go negative.
func (b *Bank) applyBalance(ctx context.Context, u *unit, acct *model.Account, signedAmount decimal.Decimal) error {
	if !acct.Operational() {
		return invalidState(fmt.Sprintf("account %s is not approved and active", acct.AccountNumber))
	}
	return b.adjustBalance(ctx, u, acct, signedAmount)
}

// adjustBalance skips the operational check. Only refunds of money already
// taken from the account use it directly.
func (b *Bank) adjustBalance(ctx context.Context, u *unit, acct *model.Account, signedAmount decimal.Decimal) error {
	if err := acct.ApplyDelta(signedAmount); err != nil {
		return apierror.NewAPIError(apierror.ErrInsufficientFunds,
			fmt.Sprintf("insufficient funds in account %s", acct.AccountNumber), nil)
	}
	acct.UpdatedAt = u.at
	return u.tx.UpdateAccount(ctx, acct)
}

// GetAccount returns an account owned by ownerID.
func (b *Bank) GetAccount(ctx context.Context, accountNumber, ownerID string) (*model.Account, error) {
	ctx, span := tracer.Start(ctx, "GetAccount")
	defer span.End()

	return ownedAccount(ctx, b.datasource, accountNumber, ownerID)
}

func (b *Bank) ListAccounts(ctx context.Context, ownerID string) ([]model.Account, error) {
	ctx, span := tracer.Start(ctx, "ListAccounts")
	defer span.End()

	return b.datasource.ListAccountsByOwner(ctx, ownerID)
}

// PendingAccounts lists the accounts awaiting an approval decision.
func (b *Bank) PendingAccounts(ctx context.Context, actingUserID string) ([]model.Account, error) {
	ctx, span := tracer.Start(ctx, "PendingAccounts")
	defer span.End()

	if err := b.requireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}
	return b.datasource.ListAccountsByStatus(ctx, model.AccountStatusPendingApproval)
}

// ownedAccount hides accounts of other owners behind NOT_FOUND.
func ownedAccount(ctx context.Context, ds database.IDataSource, accountNumber, ownerID string) (*model.Account, error) {
	acct, err := ds.GetAccount(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if acct.OwnerID != ownerID {
		return nil, notFound(fmt.Sprintf("Account '%s' not found", accountNumber))
	}
	return acct, nil
}
