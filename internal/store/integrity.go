package store

import (
	"context"
	"fmt"
)

// BalanceDrift is an account whose cached balance disagrees with the sum of
// its ledger rows.
type BalanceDrift struct {
	AccountCode int
	Cached      int64
	Computed    int64
}

// GlobalTotals sums every ledger row in paise.
func (r *Reader) GlobalTotals(ctx context.Context) (debit, credit int64, err error) {
	err = r.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(debit), 0), COALESCE(SUM(credit), 0) FROM ledger_entries`).Scan(&debit, &credit)
	if err != nil {
		return 0, 0, fmt.Errorf("global totals: %w", err)
	}
	return debit, credit, nil
}

// BalanceDrifts compares accounts.balance to the ledger rows behind it.
func (r *Reader) BalanceDrifts(ctx context.Context) ([]BalanceDrift, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT a.code, a.balance, COALESCE(SUM(e.debit - e.credit), 0) AS computed
		FROM accounts a LEFT JOIN ledger_entries e ON e.account_code = a.code
		GROUP BY a.code
		HAVING a.balance != computed`)
	if err != nil {
		return nil, fmt.Errorf("balance drift: %w", err)
	}
	defer rows.Close()

	var out []BalanceDrift
	for rows.Next() {
		var d BalanceDrift
		if err := rows.Scan(&d.AccountCode, &d.Cached, &d.Computed); err != nil {
			return nil, fmt.Errorf("scan drift: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UnbalancedJournals returns ids of entries whose lines or ledger rows do
// not sum to equal debits and credits.
func (r *Reader) UnbalancedJournals(ctx context.Context) ([]string, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT journal_id FROM ledger_entries GROUP BY journal_id HAVING SUM(debit) != SUM(credit)
		UNION
		SELECT j.id FROM journal_entries j
		WHERE j.total_debit != j.total_credit
			OR j.total_debit != (SELECT COALESCE(SUM(l.debit), 0) FROM journal_lines l WHERE l.journal_id = j.id)`)
	if err != nil {
		return nil, fmt.Errorf("unbalanced journals: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
