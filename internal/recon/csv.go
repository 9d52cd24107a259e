package recon

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/simonvc/khata/internal/ledger"
)

const (
	colDate = iota
	colAmount
	colDescription
	colReference
	statementFields
)

// ParseStatement reads a bank statement in the fixed column layout
// date,amount,description[,reference]. Dates are YYYY-MM-DD, amounts are
// signed (negative for withdrawals) and may carry thousands separators. A
// header row is skipped when its first column is not a date. Each line's id
// is derived from the account, date, amount and position so re-importing
// the same file is harmless.
func ParseStatement(r io.Reader, accountCode int) ([]ledger.BankTransaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var txns []ledger.BankTransaction
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading statement: %w", err)
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		if blank(rec) {
			continue
		}
		txn, err := parseStatementRow(rec, accountCode)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		txn.ID = statementID(accountCode, txn, len(txns)+1)
		txns = append(txns, txn)
	}
	return txns, nil
}

func parseStatementRow(rec []string, accountCode int) (ledger.BankTransaction, error) {
	if len(rec) < colReference {
		return ledger.BankTransaction{}, fmt.Errorf("%w: want at least %d columns, got %d", ledger.ErrInvalidBankTxn, colReference, len(rec))
	}
	date, err := ledger.ParseDate(strings.TrimSpace(rec[colDate]))
	if err != nil {
		return ledger.BankTransaction{}, err
	}
	raw := strings.ReplaceAll(strings.TrimSpace(rec[colAmount]), ",", "")
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return ledger.BankTransaction{}, fmt.Errorf("%w: amount %q", ledger.ErrInvalidBankTxn, rec[colAmount])
	}
	if !ledger.InRange(amount) {
		return ledger.BankTransaction{}, fmt.Errorf("%w: amount %q", ledger.ErrAmountOutOfRange, rec[colAmount])
	}
	txn := ledger.BankTransaction{
		AccountCode: accountCode,
		Date:        date,
		Amount:      ledger.Round(amount),
		Description: strings.TrimSpace(rec[colDescription]),
	}
	if len(rec) >= statementFields {
		txn.ReferenceNumber = strings.TrimSpace(rec[colReference])
	}
	return txn, nil
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := ledger.ParseDate(strings.TrimSpace(rec[colDate]))
	return err != nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func statementID(accountCode int, txn ledger.BankTransaction, seq int) string {
	return fmt.Sprintf("%d-%s-%s-%d", accountCode, txn.Date.Format("20060102"), txn.Amount.StringFixed(2), seq)
}
