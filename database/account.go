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
	"encoding/json"
	"fmt"
	"sort"

	"github.com/apnabank/corebank/internal/apierror"
	"github.com/apnabank/corebank/model"
	"github.com/pkg/errors"
)

const accountColumns = `account_number, owner_id, account_type, balance, currency, status, rejection_reason, active, details, version, created_at, updated_at`

func scanAccount(row scanner) (*model.Account, error) {
	acct := &model.Account{}
	var detailsJSON []byte
	err := row.Scan(&acct.AccountNumber, &acct.OwnerID, &acct.AccountType, &acct.Balance, &acct.Currency, &acct.Status,
		&acct.RejectionReason, &acct.Active, &detailsJSON, &acct.Version, &acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &acct.Details); err != nil {
			return nil, errors.Wrapf(err, "decode details of account %s", acct.AccountNumber)
		}
	}
	return acct, nil
}

func (d Datasource) CreateAccount(ctx context.Context, account *model.Account) error {
	ctx, span := tracer.Start(ctx, "CreateAccount")
	defer span.End()

	detailsJSON, err := json.Marshal(account.Details)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal account details", err)
	}

	_, err = d.db().ExecContext(ctx, `
		INSERT INTO corebank.accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, account.AccountNumber, account.OwnerID, account.AccountType, account.Balance, account.Currency, account.Status,
		account.RejectionReason, account.Active, detailsJSON, account.Version, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return dbError(err, "Account")
	}
	return nil
}

func (d Datasource) GetAccount(ctx context.Context, number string) (*model.Account, error) {
	ctx, span := tracer.Start(ctx, "GetAccount")
	defer span.End()

	row := d.db().QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM corebank.accounts
		WHERE account_number = $1`+d.forUpdate(), number)

	acct, err := scanAccount(row)
	if err != nil {
		return nil, dbError(err, fmt.Sprintf("Account '%s'", number))
	}
	return acct, nil
}

// LockAccounts reads every named account, taking row locks in ascending
// account number order so concurrent units of work cannot deadlock.
func (d Datasource) LockAccounts(ctx context.Context, numbers ...string) (map[string]*model.Account, error) {
	ctx, span := tracer.Start(ctx, "LockAccounts")
	defer span.End()

	ordered := uniqueSorted(numbers)
	accounts := make(map[string]*model.Account, len(ordered))
	for _, number := range ordered {
		acct, err := d.GetAccount(ctx, number)
		if err != nil {
			return nil, err
		}
		accounts[number] = acct
	}
	return accounts, nil
}

func (d Datasource) UpdateAccount(ctx context.Context, account *model.Account) error {
	ctx, span := tracer.Start(ctx, "UpdateAccount")
	defer span.End()

	detailsJSON, err := json.Marshal(account.Details)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal account details", err)
	}

	res, err := d.db().ExecContext(ctx, `
		UPDATE corebank.accounts
		SET balance = $2, status = $3, rejection_reason = $4, active = $5, details = $6,
			version = version + 1, updated_at = $7
		WHERE account_number = $1 AND version = $8
	`, account.AccountNumber, account.Balance, account.Status, account.RejectionReason, account.Active, detailsJSON,
		account.UpdatedAt, account.Version)
	if err != nil {
		return dbError(err, "Account")
	}
	if err := expectOneRow(res, fmt.Sprintf("Account '%s'", account.AccountNumber)); err != nil {
		return err
	}

	account.Version++
	return nil
}

func (d Datasource) queryAccounts(ctx context.Context, query string, args ...interface{}) ([]model.Account, error) {
	rows, err := d.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err, "Accounts")
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan account data", err)
		}
		accounts = append(accounts, *acct)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over accounts", err)
	}
	return accounts, nil
}

func (d Datasource) ListAccountsByOwner(ctx context.Context, ownerID string) ([]model.Account, error) {
	ctx, span := tracer.Start(ctx, "ListAccountsByOwner")
	defer span.End()

	return d.queryAccounts(ctx, `
		SELECT `+accountColumns+`
		FROM corebank.accounts
		WHERE owner_id = $1
		ORDER BY created_at, account_number`, ownerID)
}

func (d Datasource) ListAccountsByStatus(ctx context.Context, status model.AccountStatus) ([]model.Account, error) {
	ctx, span := tracer.Start(ctx, "ListAccountsByStatus")
	defer span.End()

	return d.queryAccounts(ctx, `
		SELECT `+accountColumns+`
		FROM corebank.accounts
		WHERE status = $1
		ORDER BY created_at, account_number`, status)
}

func (d Datasource) AccountNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := d.db().QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM corebank.accounts WHERE account_number = $1)
	`, number).Scan(&exists)
	if err != nil {
		return false, dbError(err, "Account")
	}
	return exists, nil
}

func (d Datasource) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	err := d.db().QueryRowContext(ctx, `SELECT COUNT(*) FROM corebank.accounts`).Scan(&count)
	if err != nil {
		return 0, dbError(err, "Accounts")
	}
	return count, nil
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
