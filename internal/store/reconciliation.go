package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/simonvc/khata/internal/ledger"
)

type ReconFilter struct {
	BankTransactionID string
	Status            ledger.ReconStatus
	// LatestOnly keeps the newest attempt per bank transaction.
	LatestOnly bool
	Limit      int
	Offset     int
}

const reconColumns = `r.id, r.bank_txn_id, r.attempt, COALESCE(r.matched_journal_id, ''), COALESCE(r.matched_ledger_id, 0),
	r.match_type, r.confidence, r.amount_difference, r.status, r.reason, r.created_at`

// AppendReconciliation writes the next attempt for the record's bank
// transaction and fills in ID and Attempt.
func (t *Tx) AppendReconciliation(ctx context.Context, rec *ledger.ReconciliationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var ledgerID any
	if rec.MatchedLedgerEntryID != 0 {
		ledgerID = rec.MatchedLedgerEntryID
	}
	diff, err := ledger.ToPaise(rec.AmountDifference)
	if err != nil {
		return fmt.Errorf("reconciliation for %s: %w", rec.BankTransactionID, err)
	}
	err = t.tx.QueryRowContext(ctx,
		`INSERT INTO reconciliation_records (bank_txn_id, attempt, matched_journal_id, matched_ledger_id, match_type,
			confidence, amount_difference, status, reason, created_at)
		VALUES (?, (SELECT COALESCE(MAX(attempt), 0) + 1 FROM reconciliation_records WHERE bank_txn_id = ?),
			NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?)
		RETURNING id, attempt`,
		rec.BankTransactionID, rec.BankTransactionID, rec.MatchedJournalID, ledgerID, string(rec.MatchType),
		rec.Confidence, diff, string(rec.Status), rec.Reason, formatTime(rec.CreatedAt),
	).Scan(&rec.ID, &rec.Attempt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: ledger entry %d", ledger.ErrAlreadyMatched, rec.MatchedLedgerEntryID)
	}
	if err != nil {
		return fmt.Errorf("append reconciliation: %w", err)
	}
	return nil
}

// LatestReconciliation returns the newest record for a bank transaction, or
// nil when it has never been reconciled.
func (r *Reader) LatestReconciliation(ctx context.Context, bankTxnID string) (*ledger.ReconciliationRecord, error) {
	rec, err := scanRecon(r.q.QueryRowContext(ctx,
		`SELECT `+reconColumns+` FROM reconciliation_records r WHERE r.bank_txn_id = ? ORDER BY r.attempt DESC LIMIT 1`,
		bankTxnID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest reconciliation: %w", err)
	}
	return rec, nil
}

func (r *Reader) ListReconciliations(ctx context.Context, f ReconFilter) ([]ledger.ReconciliationRecord, error) {
	query := `SELECT ` + reconColumns + ` FROM reconciliation_records r WHERE 1=1`
	args := []any{}
	if f.BankTransactionID != "" {
		query += ` AND r.bank_txn_id = ?`
		args = append(args, f.BankTransactionID)
	}
	if f.Status != "" {
		query += ` AND r.status = ?`
		args = append(args, string(f.Status))
	}
	if f.LatestOnly {
		query += ` AND r.attempt = (SELECT MAX(x.attempt) FROM reconciliation_records x WHERE x.bank_txn_id = r.bank_txn_id)`
	}
	query += ` ORDER BY r.id` + limitClause(f.Limit, f.Offset)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reconciliations: %w", err)
	}
	defer rows.Close()

	var out []ledger.ReconciliationRecord
	for rows.Next() {
		rec, err := scanRecon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reconciliation: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanRecon(s scanner) (*ledger.ReconciliationRecord, error) {
	var rec ledger.ReconciliationRecord
	var matchType, status, createdAt string
	var diff int64
	if err := s.Scan(&rec.ID, &rec.BankTransactionID, &rec.Attempt, &rec.MatchedJournalID, &rec.MatchedLedgerEntryID,
		&matchType, &rec.Confidence, &diff, &status, &rec.Reason, &createdAt); err != nil {
		return nil, err
	}
	rec.MatchType = ledger.MatchType(matchType)
	rec.Status = ledger.ReconStatus(status)
	rec.AmountDifference = ledger.FromPaise(diff)
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}
