package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/simonvc/khata/internal/ledger"
)

const ledgerColumns = `e.id, e.journal_id, e.line_index, e.account_code, e.entry_date, e.voucher_number, e.voucher_type,
	e.particulars, j.narration, j.reference, j.party_name, e.debit, e.credit, e.running_balance, e.status, e.recon_status`

// Book order: date, then voucher number with its sequence compared as an
// integer, then line.
const ledgerOrder = ` ORDER BY e.entry_date, e.voucher_type, e.voucher_seq, e.line_index`

// InsertLedgerEntry appends one ledger row. RunningBalance is set by
// RecomputeRunningBalances afterwards.
func (t *Tx) InsertLedgerEntry(ctx context.Context, le *ledger.LedgerEntry) error {
	debit, credit, err := paisePair(le.Debit, le.Credit)
	if err != nil {
		return fmt.Errorf("ledger entry %s/%d: %w", le.VoucherNumber, le.LineIndex, err)
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (journal_id, line_index, account_code, entry_date, voucher_number, voucher_seq,
			voucher_type, particulars, debit, credit, status, recon_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'ACTIVE', 'PENDING')`,
		le.JournalID, le.LineIndex, le.AccountCode, formatDate(le.Date), le.VoucherNumber, ledger.VoucherSequence(le.VoucherNumber),
		le.VoucherType.Prefix(),
		le.Particulars, debit, credit,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	le.ID, _ = res.LastInsertId()
	le.Status = ledger.RowActive
	le.Recon = ledger.ReconPending
	return nil
}

// RecomputeRunningBalances rewrites running balances for code from the
// first row dated on or after from. Rows are walked in book order: date,
// voucher number, line index.
func (t *Tx) RecomputeRunningBalances(ctx context.Context, code int, from time.Time) error {
	var running int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(debit - credit), 0) FROM ledger_entries WHERE account_code = ? AND entry_date < ?`,
		code, formatDate(from)).Scan(&running)
	if err != nil {
		return fmt.Errorf("opening for recompute: %w", err)
	}

	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, debit, credit, running_balance FROM ledger_entries
		WHERE account_code = ? AND entry_date >= ?
		ORDER BY entry_date, voucher_type, voucher_seq, line_index`, code, formatDate(from))
	if err != nil {
		return fmt.Errorf("rows for recompute: %w", err)
	}
	type change struct {
		id, balance int64
	}
	var changes []change
	for rows.Next() {
		var id, debit, credit, stored int64
		if err := rows.Scan(&id, &debit, &credit, &stored); err != nil {
			rows.Close()
			return fmt.Errorf("scan recompute: %w", err)
		}
		running += debit - credit
		if running != stored {
			changes = append(changes, change{id, running})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, c := range changes {
		if _, err := t.tx.ExecContext(ctx,
			`UPDATE ledger_entries SET running_balance = ? WHERE id = ?`, c.balance, c.id); err != nil {
			return fmt.Errorf("update running balance: %w", err)
		}
	}
	return nil
}

// MarkReversed flags every ledger row of a journal as REVERSED.
func (t *Tx) MarkReversed(ctx context.Context, journalID string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE ledger_entries SET status = 'REVERSED' WHERE journal_id = ? AND status = 'ACTIVE'`, journalID)
	if err != nil {
		return fmt.Errorf("mark reversed: %w", err)
	}
	return nil
}

// ClaimMovement marks a pending ledger row RECONCILED. It reports false when
// another reconciliation got there first.
func (t *Tx) ClaimMovement(ctx context.Context, id int64) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE ledger_entries SET recon_status = 'RECONCILED'
		WHERE id = ? AND recon_status = 'PENDING' AND status = 'ACTIVE'`, id)
	if err != nil {
		return false, fmt.Errorf("claim movement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Reader) GetLedgerEntry(ctx context.Context, id int64) (*ledger.LedgerEntry, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries e JOIN journal_entries j ON j.id = e.journal_id WHERE e.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	out, err := scanLedgerEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %d", ledger.ErrMovementNotFound, id)
	}
	return &out[0], nil
}

// OpeningBalance is the net (debit - credit) of all rows dated before day.
func (r *Reader) OpeningBalance(ctx context.Context, codes []int, before time.Time) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	query, args := inCodes(`SELECT COALESCE(SUM(debit - credit), 0) FROM ledger_entries WHERE entry_date < ? AND account_code IN `, codes)
	var net int64
	err := r.q.QueryRowContext(ctx, query, append([]any{formatDate(before)}, args...)...).Scan(&net)
	if err != nil {
		return 0, fmt.Errorf("opening balance: %w", err)
	}
	return net, nil
}

// LedgerEntries lists rows for the given accounts within [from, to] in book
// order. A zero bound is open.
func (r *Reader) LedgerEntries(ctx context.Context, codes []int, from, to time.Time) ([]ledger.LedgerEntry, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	query, args := inCodes(`SELECT `+ledgerColumns+` FROM ledger_entries e JOIN journal_entries j ON j.id = e.journal_id WHERE e.account_code IN `, codes)
	if !from.IsZero() {
		query += ` AND e.entry_date >= ?`
		args = append(args, formatDate(from))
	}
	if !to.IsZero() {
		query += ` AND e.entry_date <= ?`
		args = append(args, formatDate(to))
	}
	rows, err := r.q.QueryContext(ctx, query+ledgerOrder, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger entries: %w", err)
	}
	return scanLedgerEntries(rows)
}

// JournalLedgerEntries returns the ledger rows materialised from one journal.
func (r *Reader) JournalLedgerEntries(ctx context.Context, journalID string) ([]ledger.LedgerEntry, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries e JOIN journal_entries j ON j.id = e.journal_id
		WHERE e.journal_id = ? ORDER BY e.line_index`, journalID)
	if err != nil {
		return nil, fmt.Errorf("journal ledger entries: %w", err)
	}
	return scanLedgerEntries(rows)
}

// Movements aggregates debit and credit per account over [from, to]. Only
// accounts with at least one row in the window are returned.
func (r *Reader) Movements(ctx context.Context, from, to time.Time) ([]ledger.AccountMovement, error) {
	query := `SELECT a.code, a.name, a.classification, a.grp, a.nature, a.cash_bank, a.active, a.balance, a.created_at,
			SUM(e.debit), SUM(e.credit)
		FROM ledger_entries e JOIN accounts a ON a.code = e.account_code WHERE 1=1`
	args := []any{}
	if !from.IsZero() {
		query += ` AND e.entry_date >= ?`
		args = append(args, formatDate(from))
	}
	if !to.IsZero() {
		query += ` AND e.entry_date <= ?`
		args = append(args, formatDate(to))
	}
	query += ` GROUP BY a.code ORDER BY a.code`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("movements: %w", err)
	}
	defer rows.Close()

	var out []ledger.AccountMovement
	for rows.Next() {
		var m ledger.AccountMovement
		var cashBank, active int
		var balance, debit, credit int64
		var createdAt string
		a := &m.Account
		if err := rows.Scan(&a.Code, &a.Name, &a.Classification, &a.Group, &a.Nature, &cashBank, &active, &balance, &createdAt,
			&debit, &credit); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		a.CashOrBank = cashBank == 1
		a.Active = active == 1
		a.Balance = ledger.FromPaise(balance)
		a.CreatedAt = parseTime(createdAt)
		m.Debit = ledger.FromPaise(debit)
		m.Credit = ledger.FromPaise(credit)
		out = append(out, m)
	}
	return out, rows.Err()
}

// PendingMovements returns unreconciled ACTIVE rows on an account within
// [from, to], joined with their voucher's descriptive fields.
func (r *Reader) PendingMovements(ctx context.Context, code int, from, to time.Time) ([]ledger.Movement, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries e JOIN journal_entries j ON j.id = e.journal_id
		WHERE e.account_code = ? AND e.recon_status = 'PENDING' AND e.status = 'ACTIVE'
			AND e.entry_date >= ? AND e.entry_date <= ?`+ledgerOrder,
		code, formatDate(from), formatDate(to))
	if err != nil {
		return nil, fmt.Errorf("pending movements: %w", err)
	}
	entries, err := scanLedgerEntries(rows)
	if err != nil {
		return nil, err
	}
	return toMovements(entries), nil
}

// PendingByReference returns unreconciled ACTIVE rows on an account whose
// voucher carries the given reference, ignoring case and surrounding space.
func (r *Reader) PendingByReference(ctx context.Context, code int, reference string) ([]ledger.Movement, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, nil
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries e JOIN journal_entries j ON j.id = e.journal_id
		WHERE e.account_code = ? AND e.recon_status = 'PENDING' AND e.status = 'ACTIVE'
			AND UPPER(TRIM(j.reference)) = UPPER(TRIM(?))`+ledgerOrder,
		code, reference)
	if err != nil {
		return nil, fmt.Errorf("pending by reference: %w", err)
	}
	entries, err := scanLedgerEntries(rows)
	if err != nil {
		return nil, err
	}
	return toMovements(entries), nil
}

func toMovements(entries []ledger.LedgerEntry) []ledger.Movement {
	out := make([]ledger.Movement, len(entries))
	for i, e := range entries {
		out[i] = ledger.Movement{
			LedgerEntryID: e.ID,
			JournalID:     e.JournalID,
			AccountCode:   e.AccountCode,
			Date:          e.Date,
			Amount:        e.Net(),
			VoucherNumber: e.VoucherNumber,
			Particulars:   e.Particulars,
			Narration:     e.Narration,
			Reference:     e.Reference,
			PartyName:     e.PartyName,
		}
	}
	return out
}

func scanLedgerEntries(rows interface {
	scanner
	Next() bool
	Err() error
	Close() error
}) ([]ledger.LedgerEntry, error) {
	defer rows.Close()
	var out []ledger.LedgerEntry
	for rows.Next() {
		var e ledger.LedgerEntry
		var entryDate, prefix, status, recon string
		var debit, credit, running int64
		if err := rows.Scan(&e.ID, &e.JournalID, &e.LineIndex, &e.AccountCode, &entryDate, &e.VoucherNumber, &prefix,
			&e.Particulars, &e.Narration, &e.Reference, &e.PartyName, &debit, &credit, &running, &status, &recon); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		vt, err := ledger.ParseVoucherType(prefix)
		if err != nil {
			return nil, err
		}
		e.VoucherType = vt
		e.Date = parseDate(entryDate)
		e.Debit = ledger.FromPaise(debit)
		e.Credit = ledger.FromPaise(credit)
		e.RunningBalance = ledger.FromPaise(running)
		e.Status = ledger.RowStatus(status)
		e.Recon = ledger.ReconState(recon)
		out = append(out, e)
	}
	return out, rows.Err()
}

func inCodes(prefix string, codes []int) (string, []any) {
	q := prefix + "("
	args := make([]any, len(codes))
	for i, c := range codes {
		if i > 0 {
			q += ", "
		}
		q += "?"
		args[i] = c
	}
	return q + ")", args
}
