package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/simonvc/khata/internal/ledger"
)

type JournalFilter struct {
	From        time.Time
	To          time.Time
	VoucherType ledger.VoucherType
	Status      ledger.EntryStatus
	AccountCode int
	Reference   string
	Limit       int
	Offset      int
}

const journalColumns = `j.id, j.voucher_number, j.voucher_type, j.entry_date, j.financial_year, j.narration,
	j.reference, j.payment_mode, j.party_name, j.status, j.total_debit, j.total_credit, j.created_at, j.created_by,
	COALESCE(j.reversal_of, ''), COALESCE(j.reversed_by, ''), COALESCE(j.reclassified_from, '')`

// InsertJournal writes the entry header and its lines. Line account names
// are taken from the entry as given.
func (t *Tx) InsertJournal(ctx context.Context, e *ledger.JournalEntry) error {
	debit, credit, err := paisePair(e.TotalDebit, e.TotalCredit)
	if err != nil {
		return fmt.Errorf("journal %s totals: %w", e.VoucherNumber, err)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO journal_entries (id, voucher_number, voucher_seq, voucher_type, entry_date, financial_year, narration,
			reference, payment_mode, party_name, status, total_debit, total_credit, created_at, created_by,
			reversal_of, reclassified_from)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''))`,
		e.ID, e.VoucherNumber, ledger.VoucherSequence(e.VoucherNumber), e.VoucherType.Prefix(), formatDate(e.Date), int(e.FinancialYear), e.Narration,
		e.Reference, e.PaymentMode, e.PartyName, string(e.Status),
		debit, credit, formatTime(e.CreatedAt), e.CreatedBy,
		e.ReversalOf, e.ReclassifiedFrom,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s already issued", ledger.ErrNumberingConflict, e.VoucherNumber)
	}
	if err != nil {
		return fmt.Errorf("insert journal: %w", err)
	}

	for _, l := range e.Lines {
		debit, credit, err := paisePair(l.Debit, l.Credit)
		if err != nil {
			return fmt.Errorf("line %d: %w", l.Index, err)
		}
		_, err = t.tx.ExecContext(ctx,
			`INSERT INTO journal_lines (journal_id, line_index, account_code, debit, credit) VALUES (?, ?, ?, ?, ?)`,
			e.ID, l.Index, l.AccountCode, debit, credit,
		)
		if err != nil {
			return fmt.Errorf("insert line %d: %w", l.Index, err)
		}
	}
	return nil
}

// MarkVoid transitions a POSTED entry to VOID and links its reversal.
func (t *Tx) MarkVoid(ctx context.Context, id, reversedBy string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE journal_entries SET status = 'VOID', reversed_by = ? WHERE id = ? AND status = 'POSTED'`,
		reversedBy, id)
	if err != nil {
		return fmt.Errorf("void journal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s is not POSTED", ledger.ErrInvalidStatus, id)
	}
	return nil
}

func (r *Reader) GetJournal(ctx context.Context, id string) (*ledger.JournalEntry, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+journalColumns+` FROM journal_entries j WHERE j.id = ?`, id)
	e, err := scanJournal(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ledger.ErrEntryNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get journal: %w", err)
	}
	if e.Lines, err = r.journalLines(ctx, id); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *Reader) GetJournalByNumber(ctx context.Context, voucherNumber string) (*ledger.JournalEntry, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM journal_entries WHERE voucher_number = ?`, voucherNumber).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ledger.ErrEntryNotFound, voucherNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("get journal by number: %w", err)
	}
	return r.GetJournal(ctx, id)
}

// ListJournals returns entries in book order with their lines.
func (r *Reader) ListJournals(ctx context.Context, f JournalFilter) ([]ledger.JournalEntry, error) {
	query := `SELECT ` + journalColumns + ` FROM journal_entries j WHERE 1=1`
	args := []any{}

	if !f.From.IsZero() {
		query += ` AND j.entry_date >= ?`
		args = append(args, formatDate(f.From))
	}
	if !f.To.IsZero() {
		query += ` AND j.entry_date <= ?`
		args = append(args, formatDate(f.To))
	}
	if f.VoucherType != 0 {
		query += ` AND j.voucher_type = ?`
		args = append(args, f.VoucherType.Prefix())
	}
	if f.Status != "" {
		query += ` AND j.status = ?`
		args = append(args, string(f.Status))
	}
	if f.AccountCode != 0 {
		query += ` AND EXISTS (SELECT 1 FROM journal_lines l WHERE l.journal_id = j.id AND l.account_code = ?)`
		args = append(args, f.AccountCode)
	}
	if f.Reference != "" {
		query += ` AND j.reference = ?`
		args = append(args, f.Reference)
	}

	query += ` ORDER BY j.entry_date, j.voucher_type, j.voucher_seq` + limitClause(f.Limit, f.Offset)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journals: %w", err)
	}
	var entries []ledger.JournalEntry
	for rows.Next() {
		e, err := scanJournal(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range entries {
		if entries[i].Lines, err = r.journalLines(ctx, entries[i].ID); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (r *Reader) journalLines(ctx context.Context, id string) ([]ledger.JournalLine, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT l.line_index, l.account_code, a.name, l.debit, l.credit
		FROM journal_lines l JOIN accounts a ON a.code = l.account_code
		WHERE l.journal_id = ? ORDER BY l.line_index`, id)
	if err != nil {
		return nil, fmt.Errorf("journal lines: %w", err)
	}
	defer rows.Close()

	var lines []ledger.JournalLine
	for rows.Next() {
		var l ledger.JournalLine
		var debit, credit int64
		if err := rows.Scan(&l.Index, &l.AccountCode, &l.AccountName, &debit, &credit); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		l.Debit = ledger.FromPaise(debit)
		l.Credit = ledger.FromPaise(credit)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanJournal(s scanner) (*ledger.JournalEntry, error) {
	var e ledger.JournalEntry
	var prefix, entryDate, status, createdAt string
	var fy int
	var totalDebit, totalCredit int64
	err := s.Scan(&e.ID, &e.VoucherNumber, &prefix, &entryDate, &fy, &e.Narration,
		&e.Reference, &e.PaymentMode, &e.PartyName, &status, &totalDebit, &totalCredit, &createdAt, &e.CreatedBy,
		&e.ReversalOf, &e.ReversedBy, &e.ReclassifiedFrom)
	if err != nil {
		return nil, err
	}
	vt, err := ledger.ParseVoucherType(prefix)
	if err != nil {
		return nil, err
	}
	e.VoucherType = vt
	e.Date = parseDate(entryDate)
	e.FinancialYear = ledger.FinancialYear(fy)
	e.Status = ledger.EntryStatus(status)
	e.TotalDebit = ledger.FromPaise(totalDebit)
	e.TotalCredit = ledger.FromPaise(totalCredit)
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}
