package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/simonvc/khata/internal/ledger"
)

type BankTxnFilter struct {
	AccountCode int
	From        time.Time
	To          time.Time
	// Unmatched keeps only transactions without a MATCHED record.
	Unmatched bool
	Limit     int
	Offset    int
}

// InsertBankTransaction stores a statement line once. Re-importing the same
// id is a no-op and reports false.
func (t *Tx) InsertBankTransaction(ctx context.Context, bt *ledger.BankTransaction) (bool, error) {
	if bt.ImportedAt.IsZero() {
		bt.ImportedAt = time.Now().UTC()
	}
	amount, err := ledger.ToPaise(bt.Amount)
	if err != nil {
		return false, fmt.Errorf("bank transaction %s: %w", bt.ID, err)
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO bank_transactions (id, account_code, txn_date, amount, description, reference_number, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		bt.ID, bt.AccountCode, formatDate(bt.Date), amount, bt.Description, bt.ReferenceNumber,
		formatTime(bt.ImportedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert bank transaction: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

const bankColumns = `b.id, b.account_code, b.txn_date, b.amount, b.description, b.reference_number, b.imported_at`

func (r *Reader) GetBankTransaction(ctx context.Context, id string) (*ledger.BankTransaction, error) {
	bt, err := scanBankTxn(r.q.QueryRowContext(ctx, `SELECT `+bankColumns+` FROM bank_transactions b WHERE b.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ledger.ErrBankTxnNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get bank transaction: %w", err)
	}
	return bt, nil
}

func (r *Reader) ListBankTransactions(ctx context.Context, f BankTxnFilter) ([]ledger.BankTransaction, error) {
	query := `SELECT ` + bankColumns + ` FROM bank_transactions b WHERE 1=1`
	args := []any{}
	if f.AccountCode != 0 {
		query += ` AND b.account_code = ?`
		args = append(args, f.AccountCode)
	}
	if !f.From.IsZero() {
		query += ` AND b.txn_date >= ?`
		args = append(args, formatDate(f.From))
	}
	if !f.To.IsZero() {
		query += ` AND b.txn_date <= ?`
		args = append(args, formatDate(f.To))
	}
	if f.Unmatched {
		query += ` AND NOT EXISTS (SELECT 1 FROM reconciliation_records r WHERE r.bank_txn_id = b.id AND r.status = 'MATCHED')`
	}
	query += ` ORDER BY b.txn_date, b.id` + limitClause(f.Limit, f.Offset)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bank transactions: %w", err)
	}
	defer rows.Close()

	var out []ledger.BankTransaction
	for rows.Next() {
		bt, err := scanBankTxn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bank transaction: %w", err)
		}
		out = append(out, *bt)
	}
	return out, rows.Err()
}

func scanBankTxn(s scanner) (*ledger.BankTransaction, error) {
	var bt ledger.BankTransaction
	var txnDate, importedAt string
	var amount int64
	if err := s.Scan(&bt.ID, &bt.AccountCode, &txnDate, &amount, &bt.Description, &bt.ReferenceNumber, &importedAt); err != nil {
		return nil, err
	}
	bt.Date = parseDate(txnDate)
	bt.Amount = ledger.FromPaise(amount)
	bt.ImportedAt = parseTime(importedAt)
	return &bt, nil
}
