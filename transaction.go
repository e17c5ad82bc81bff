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
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/apnabank/corebank/internal/apierror"
	"github.com/apnabank/corebank/model"
)

// movement describes one money movement. An empty from or to is the outside
// world on that side.
type movement struct {
	txnType     model.TransactionType
	status      model.TransactionStatus
	from        string
	to          string
	amount      decimal.Decimal
	reference   string
	description string
	purpose     string
	key         string
	beneficiary *model.Beneficiary
	// initiatedBy must own the source account. Empty for bank-driven
	// movements whose ownership was checked when they were booked.
	initiatedBy string
}

// Transfer moves money between two internal accounts.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - req model.TransferRequest: Source, destination, amount and an optional idempotency key.
//
// Returns:
// - *model.Transaction: The completed transfer, or the original one when the key was seen before.
// - error: VALIDATION_ERROR, NOT_FOUND, INVALID_STATE or INSUFFICIENT_FUNDS.
func (b *Bank) Transfer(ctx context.Context, req model.TransferRequest) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Transfer")
	defer span.End()

	return b.transfer(ctx, req, model.TransactionTypeTransfer)
}

// InstantTransfer has the Transfer contract and is recorded as INSTANT_TRANSFER.
func (b *Bank) InstantTransfer(ctx context.Context, req model.TransferRequest) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "InstantTransfer")
	defer span.End()

	return b.transfer(ctx, req, model.TransactionTypeInstantTransfer)
}

func (b *Bank) transfer(ctx context.Context, req model.TransferRequest, txnType model.TransactionType) (*model.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	return b.idempotent(ctx, req.IdempotencyKey, func(ctx context.Context, u *unit) (*model.Transaction, error) {
		return b.post(ctx, u, movement{
			txnType:     txnType,
			status:      model.TransactionStatusCompleted,
			from:        req.From,
			to:          req.To,
			amount:      req.Amount,
			description: req.Description,
			key:         req.IdempotencyKey,
			initiatedBy: req.InitiatedBy,
		})
	})
}

// InternationalTransfer debits the source and leaves a PENDING transaction
// until the correspondent bank settles it with SettleInternationalTransfer.
func (b *Bank) InternationalTransfer(ctx context.Context, req model.InternationalTransferRequest) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "InternationalTransfer")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	description := req.Description
	if payout := strings.ToUpper(req.Currency); payout != b.currency() {
		description = strings.TrimSpace(fmt.Sprintf("%s (payout in %s)", description, payout))
	}
	beneficiary := req.Beneficiary

	return b.idempotent(ctx, req.IdempotencyKey, func(ctx context.Context, u *unit) (*model.Transaction, error) {
		return b.post(ctx, u, movement{
			txnType:     model.TransactionTypeInternationalTransfer,
			status:      model.TransactionStatusPending,
			from:        req.From,
			amount:      req.Amount,
			reference:   beneficiary.AccountNumber,
			description: description,
			purpose:     req.Purpose,
			key:         req.IdempotencyKey,
			beneficiary: &beneficiary,
			initiatedBy: req.InitiatedBy,
		})
	})
}

// SettleInternationalTransfer completes a pending international transfer, or
// fails it and refunds the source in the same unit of work. Only an admin
// may settle.
func (b *Bank) SettleInternationalTransfer(ctx context.Context, transactionNumber, actingUserID string, succeeded bool, reason string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "SettleInternationalTransfer")
	defer span.End()

	if err := b.requireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}

	var settled *model.Transaction
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		txn, err := u.tx.GetTransaction(ctx, transactionNumber)
		if err != nil {
			return err
		}
		if txn.Type != model.TransactionTypeInternationalTransfer || txn.Status != model.TransactionStatusPending {
			return invalidState(fmt.Sprintf("transaction %s is not a pending international transfer", transactionNumber))
		}

		status := model.TransactionStatusCompleted
		if !succeeded {
			status = model.TransactionStatusFailed
			accounts, err := u.tx.LockAccounts(ctx, txn.FromAccount)
			if err != nil {
				return err
			}
			if err := b.adjustBalance(ctx, u, accounts[txn.FromAccount], txn.Amount); err != nil {
				return err
			}
		} else {
			reason = ""
		}

		if err := u.tx.SettleTransaction(ctx, transactionNumber, status, reason, u.at); err != nil {
			return err
		}
		settledAt := u.at
		txn.Status = status
		txn.FailureReason = reason
		txn.SettledAt = &settledAt
		settled = txn
		u.emit(transactionEvent(status), *txn)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// PayBill pays a biller from the catalog out of an internal account.
func (b *Bank) PayBill(ctx context.Context, req model.BillPaymentRequest) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "PayBill")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}
	biller, ok := b.billers.Lookup(req.BillerID)
	if !ok {
		return nil, notFound(fmt.Sprintf("Biller '%s' not found", req.BillerID))
	}

	return b.idempotent(ctx, req.IdempotencyKey, func(ctx context.Context, u *unit) (*model.Transaction, error) {
		return b.post(ctx, u, billMovement(biller, req.From, req.BillerReference, req.Amount, req.IdempotencyKey, req.InitiatedBy))
	})
}

func billMovement(biller Biller, from, reference string, amount decimal.Decimal, key, initiatedBy string) movement {
	return movement{
		txnType:     model.TransactionTypeBillPayment,
		status:      model.TransactionStatusCompleted,
		from:        from,
		amount:      amount,
		reference:   biller.ID + ":" + reference,
		description: "Bill payment to " + biller.Name,
		key:         key,
		initiatedBy: initiatedBy,
	}
}

// GetTransaction returns a transaction by number.
func (b *Bank) GetTransaction(ctx context.Context, transactionNumber string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "GetTransaction")
	defer span.End()

	return b.datasource.GetTransaction(ctx, transactionNumber)
}

// post locks the accounts of m in ascending order, checks every rule before
// touching a balance, then applies both sides and records the transaction.
func (b *Bank) post(ctx context.Context, u *unit, m movement) (*model.Transaction, error) {
	var numbers []string
	for _, n := range []string{m.from, m.to} {
		if n != "" {
			numbers = append(numbers, n)
		}
	}

	accounts, err := u.tx.LockAccounts(ctx, numbers...)
	if err != nil {
		return nil, err
	}

	var src, dst = accounts[m.from], accounts[m.to]
	if src != nil && m.initiatedBy != "" && src.OwnerID != m.initiatedBy {
		return nil, notFound(fmt.Sprintf("Account '%s' not found", m.from))
	}
	for _, acct := range []*model.Account{src, dst} {
		if acct != nil && !acct.Operational() {
			return nil, invalidState(fmt.Sprintf("account %s is not approved and active", acct.AccountNumber))
		}
	}
	if src != nil && src.Balance.LessThan(m.amount) {
		return nil, apierror.NewAPIError(apierror.ErrInsufficientFunds, fmt.Sprintf("insufficient funds in account %s", src.AccountNumber), nil)
	}

	if src != nil {
		if err := b.applyBalance(ctx, u, src, m.amount.Neg()); err != nil {
			return nil, err
		}
	}
	if dst != nil {
		if err := b.applyBalance(ctx, u, dst, m.amount); err != nil {
			return nil, err
		}
	}

	return b.record(ctx, u, &model.Transaction{
		Type:              m.txnType,
		Status:            m.status,
		Amount:            m.amount,
		FromAccount:       m.from,
		ToAccount:         m.to,
		ExternalReference: m.reference,
		Beneficiary:       m.beneficiary,
		Purpose:           m.purpose,
		IdempotencyKey:    m.key,
		Description:       m.description,
	})
}

// record stamps txn with a number, currency and time, stores it and queues
// the matching transaction event.
func (b *Bank) record(ctx context.Context, u *unit, txn *model.Transaction) (*model.Transaction, error) {
	txn.TransactionNumber = model.GenerateUUIDWithSuffix("txn")
	if txn.Currency == "" {
		txn.Currency = b.currency()
	}
	txn.CreatedAt = u.at
	if txn.Status == model.TransactionStatusCompleted {
		settledAt := u.at
		txn.SettledAt = &settledAt
	}
	if err := u.tx.RecordTransaction(ctx, txn); err != nil {
		return nil, err
	}
	u.emit(transactionEvent(txn.Status), *txn)
	return txn, nil
}

func transactionEvent(status model.TransactionStatus) string {
	switch status {
	case model.TransactionStatusPending:
		return model.EventTransactionPending
	case model.TransactionStatusFailed:
		return model.EventTransactionFailed
	default:
		return model.EventTransactionCompleted
	}
}

func idempotencyCacheKey(key string) string {
	return "idempotency:" + key
}

// idempotent runs fn as a unit of work unless key already names a recorded
// transaction, in which case that transaction is returned untouched.
func (b *Bank) idempotent(ctx context.Context, key string, fn func(ctx context.Context, u *unit) (*model.Transaction, error)) (*model.Transaction, error) {
	if txn := b.cachedTransaction(ctx, key); txn != nil {
		return txn, nil
	}

	var result *model.Transaction
	err := b.inTx(ctx, func(ctx context.Context, u *unit) error {
		if key != "" {
			existing, err := u.tx.GetTransactionByIdempotencyKey(ctx, key)
			if err == nil {
				result = existing
				return nil
			}
			if !apierror.IsCode(err, apierror.ErrNotFound) {
				return err
			}
		}
		txn, err := fn(ctx, u)
		if err != nil {
			return err
		}
		result = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.rememberTransaction(ctx, key, result)
	return result, nil
}

func (b *Bank) cachedTransaction(ctx context.Context, key string) *model.Transaction {
	if key == "" || b.cache == nil {
		return nil
	}
	var number string
	if err := b.cache.Get(ctx, idempotencyCacheKey(key), &number); err != nil {
		logrus.WithError(err).Warn("idempotency cache lookup failed")
		return nil
	}
	if number == "" {
		return nil
	}
	txn, err := b.datasource.GetTransaction(ctx, number)
	if err != nil {
		if apierror.IsCode(err, apierror.ErrNotFound) {
			if err := b.cache.Delete(ctx, idempotencyCacheKey(key)); err != nil {
				logrus.WithError(err).Warn("failed to drop stale idempotency entry")
			}
		}
		return nil
	}
	return txn
}

func (b *Bank) rememberTransaction(ctx context.Context, key string, txn *model.Transaction) {
	if key == "" || b.cache == nil || txn == nil {
		return
	}
	ttl := time.Duration(b.config.Bank.IdempotencyTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := b.cache.Set(ctx, idempotencyCacheKey(key), txn.TransactionNumber, ttl); err != nil {
		logrus.WithError(err).Warn("failed to cache idempotency key")
	}
}
