package store

import (
	"context"
	"fmt"
	"time"

	"github.com/simonvc/khata/internal/ledger"
)

// LockedYears returns every closed financial year.
func (r *Reader) LockedYears(ctx context.Context) (ledger.LockedYears, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT fy FROM financial_years WHERE locked = 1`)
	if err != nil {
		return nil, fmt.Errorf("locked years: %w", err)
	}
	defer rows.Close()

	locked := ledger.LockedYears{}
	for rows.Next() {
		var fy int
		if err := rows.Scan(&fy); err != nil {
			return nil, fmt.Errorf("scan locked year: %w", err)
		}
		locked[ledger.FinancialYear(fy)] = true
	}
	return locked, rows.Err()
}

func (r *Reader) IsYearLocked(ctx context.Context, fy ledger.FinancialYear) (bool, error) {
	var locked int
	err := r.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(locked), 0) FROM financial_years WHERE fy = ?`, int(fy)).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("year lock: %w", err)
	}
	return locked == 1, nil
}

// LockYear closes fy and moves its POSTED entries to LOCKED. It returns the
// number of entries locked.
func (t *Tx) LockYear(ctx context.Context, fy ledger.FinancialYear, at time.Time) (int64, error) {
	locked, err := t.IsYearLocked(ctx, fy)
	if err != nil {
		return 0, err
	}
	if locked {
		return 0, fmt.Errorf("%w: %s", ledger.ErrPeriodLocked, fy.Code())
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO financial_years (fy, locked, locked_at) VALUES (?, 1, ?)
		ON CONFLICT (fy) DO UPDATE SET locked = 1, locked_at = excluded.locked_at`,
		int(fy), formatTime(at))
	if err != nil {
		return 0, fmt.Errorf("lock year: %w", err)
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE journal_entries SET status = 'LOCKED' WHERE financial_year = ? AND status = 'POSTED'`, int(fy))
	if err != nil {
		return 0, fmt.Errorf("lock entries: %w", err)
	}
	return res.RowsAffected()
}
