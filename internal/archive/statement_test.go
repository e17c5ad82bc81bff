package archive

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apnabank/corebank/model"
)

func TestWriteStatementCSV(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)
	history := []model.Transaction{
		{TransactionNumber: "txn_0", Type: model.TransactionTypeDeposit, Status: model.TransactionStatusCompleted, Amount: decimal.NewFromInt(1000), ToAccount: "111111111111", ExternalReference: "OPENING_DEPOSIT", CreatedAt: from.AddDate(0, 0, -3)},
		{TransactionNumber: "txn_1", Type: model.TransactionTypeTransfer, Status: model.TransactionStatusCompleted, Amount: decimal.NewFromInt(250), FromAccount: "111111111111", ToAccount: "222222222222", Description: "rent", CreatedAt: from.AddDate(0, 0, 2)},
		{TransactionNumber: "txn_2", Type: model.TransactionTypeTransfer, Status: model.TransactionStatusCompleted, Amount: decimal.RequireFromString("40.50"), FromAccount: "222222222222", ToAccount: "111111111111", CreatedAt: from.AddDate(0, 0, 5)},
	}
	st := model.BuildStatement("111111111111", from, to, history)

	var buf bytes.Buffer
	require.NoError(t, WriteStatementCSV(&buf, st))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)

	assert.Equal(t, statementHeader, rows[0])
	assert.Equal(t, "1000.00", rows[1][8])

	assert.Equal(t, "txn_1", rows[2][1])
	assert.Equal(t, "222222222222", rows[2][5])
	assert.Equal(t, "250.00", rows[2][6])
	assert.Equal(t, "750.00", rows[2][8])

	assert.Equal(t, "40.50", rows[3][7])
	assert.Equal(t, "790.50", rows[3][8])

	assert.Equal(t, "CLOSING_BALANCE", rows[4][2])
	assert.Equal(t, "250.00", rows[4][6])
	assert.Equal(t, "40.50", rows[4][7])
	assert.Equal(t, "790.50", rows[4][8])
}

func TestStatementKey(t *testing.T) {
	st := model.Statement{
		AccountNumber: "111111111111",
		From:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		To:            time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "statements/111111111111/20260101_20260131.csv", StatementKey(st))
}
