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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apnabank/corebank/internal/apierror"
	"github.com/apnabank/corebank/model"
	"github.com/pkg/errors"
)

const transactionColumns = `transaction_number, type, status, amount, currency, from_account, to_account, external_reference,
	beneficiary, purpose, idempotency_key, description, failure_reason, created_at, settled_at`

func scanTransaction(row scanner) (*model.Transaction, error) {
	txn := &model.Transaction{}
	var from, to, key sql.NullString
	var beneficiaryJSON []byte
	err := row.Scan(&txn.TransactionNumber, &txn.Type, &txn.Status, &txn.Amount, &txn.Currency, &from, &to,
		&txn.ExternalReference, &beneficiaryJSON, &txn.Purpose, &key, &txn.Description, &txn.FailureReason,
		&txn.CreatedAt, &txn.SettledAt)
	if err != nil {
		return nil, err
	}
	txn.FromAccount = from.String
	txn.ToAccount = to.String
	txn.IdempotencyKey = key.String
	if len(beneficiaryJSON) > 0 {
		txn.Beneficiary = &model.Beneficiary{}
		if err := json.Unmarshal(beneficiaryJSON, txn.Beneficiary); err != nil {
			return nil, errors.Wrapf(err, "decode beneficiary of transaction %s", txn.TransactionNumber)
		}
	}
	return txn, nil
}

func (d Datasource) RecordTransaction(ctx context.Context, txn *model.Transaction) error {
	ctx, span := tracer.Start(ctx, "RecordTransaction")
	defer span.End()

	var beneficiaryJSON interface{}
	if txn.Beneficiary != nil {
		encoded, err := json.Marshal(txn.Beneficiary)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal beneficiary", err)
		}
		beneficiaryJSON = encoded
	}

	_, err := d.db().ExecContext(ctx, `
		INSERT INTO corebank.transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, txn.TransactionNumber, txn.Type, txn.Status, txn.Amount, txn.Currency, nullString(txn.FromAccount),
		nullString(txn.ToAccount), txn.ExternalReference, beneficiaryJSON, txn.Purpose, nullString(txn.IdempotencyKey),
		txn.Description, txn.FailureReason, txn.CreatedAt, txn.SettledAt)
	if err != nil {
		return dbError(err, "Transaction")
	}
	return nil
}

func (d Datasource) GetTransaction(ctx context.Context, number string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "GetTransaction")
	defer span.End()

	row := d.db().QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM corebank.transactions
		WHERE transaction_number = $1`+d.forUpdate(), number)

	txn, err := scanTransaction(row)
	if err != nil {
		return nil, dbError(err, fmt.Sprintf("Transaction '%s'", number))
	}
	return txn, nil
}

func (d Datasource) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "GetTransactionByIdempotencyKey")
	defer span.End()

	row := d.db().QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM corebank.transactions
		WHERE idempotency_key = $1
	`, key)

	txn, err := scanTransaction(row)
	if err != nil {
		return nil, dbError(err, "Transaction for idempotency key")
	}
	return txn, nil
}

// SettleTransaction moves a PENDING transaction to status. A transaction that
// is no longer pending is reported as INVALID_STATE.
func (d Datasource) SettleTransaction(ctx context.Context, number string, status model.TransactionStatus, reason string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "SettleTransaction")
	defer span.End()

	res, err := d.db().ExecContext(ctx, `
		UPDATE corebank.transactions
		SET status = $2, failure_reason = $3, settled_at = $4
		WHERE transaction_number = $1 AND status = $5
	`, number, status, reason, at, model.TransactionStatusPending)
	if err != nil {
		return dbError(err, "Transaction")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if n == 0 {
		return apierror.NewAPIError(apierror.ErrInvalidState, fmt.Sprintf("Transaction '%s' is not pending", number), nil)
	}
	return nil
}

func (d Datasource) ListAccountTransactions(ctx context.Context, accountNumber string, until time.Time) ([]model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "ListAccountTransactions")
	defer span.End()

	rows, err := d.db().QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM corebank.transactions
		WHERE (from_account = $1 OR to_account = $1) AND created_at <= $2
		ORDER BY created_at, transaction_number
	`, accountNumber, until)
	if err != nil {
		return nil, dbError(err, "Transactions")
	}
	defer rows.Close()

	transactions := []model.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction data", err)
		}
		transactions = append(transactions, *txn)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over transactions", err)
	}
	return transactions, nil
}
