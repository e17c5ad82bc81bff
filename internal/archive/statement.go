package archive

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/apnabank/corebank/model"
)

const ContentTypeCSV = "text/csv"

var statementHeader = []string{
	"date", "transaction_number", "type", "status", "description", "reference", "debit", "credit", "balance",
}

// StatementKey names the object a statement export is stored under.
func StatementKey(st model.Statement) string {
	return fmt.Sprintf("statements/%s/%s_%s.csv", st.AccountNumber, st.From.Format("20060102"), st.To.Format("20060102"))
}

// WriteStatementCSV renders st with a running balance that starts at the
// opening balance. The last row carries the closing totals.
func WriteStatementCSV(w io.Writer, st model.Statement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(statementHeader); err != nil {
		return err
	}
	if err := cw.Write([]string{st.From.Format(time.RFC3339), "", "OPENING_BALANCE", "", "", "", "", "", st.OpeningBalance.StringFixed(2)}); err != nil {
		return err
	}

	running := st.OpeningBalance
	for _, txn := range st.Transactions {
		effect := txn.EffectOn(st.AccountNumber)
		running = running.Add(effect)

		debit, credit := "", ""
		if effect.IsNegative() {
			debit = effect.Neg().StringFixed(2)
		} else {
			credit = effect.StringFixed(2)
		}

		reference := txn.ExternalReference
		if reference == "" {
			reference = counterparty(txn, st.AccountNumber)
		}
		row := []string{
			txn.CreatedAt.Format(time.RFC3339), txn.TransactionNumber, string(txn.Type), string(txn.Status),
			txn.Description, reference, debit, credit, running.StringFixed(2),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	if err := cw.Write([]string{st.To.Format(time.RFC3339), "", "CLOSING_BALANCE", "", "", "", st.TotalDebit.StringFixed(2), st.TotalCredit.StringFixed(2), st.ClosingBalance.StringFixed(2)}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func counterparty(txn model.Transaction, accountNumber string) string {
	if txn.FromAccount == accountNumber {
		return txn.ToAccount
	}
	return txn.FromAccount
}
