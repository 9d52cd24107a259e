package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/simonvc/khata/internal/ledger"
)

// VoucherCounter is the last number issued in one voucher series.
type VoucherCounter struct {
	VoucherType   ledger.VoucherType    `json:"voucher_type"`
	FinancialYear ledger.FinancialYear `json:"financial_year"`
	LastNumber    int64                `json:"last_number"`
}

// ReserveVoucherNumber increments the (type, year) counter and returns the
// new value. The increment commits or rolls back with the transaction, so a
// failed posting never burns a number.
func (t *Tx) ReserveVoucherNumber(ctx context.Context, vt ledger.VoucherType, fy ledger.FinancialYear) (int64, error) {
	var next int64
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO voucher_counters (voucher_type, financial_year, last_number) VALUES (?, ?, 1)
		ON CONFLICT (voucher_type, financial_year) DO UPDATE SET last_number = last_number + 1
		RETURNING last_number`,
		vt.Prefix(), int(fy),
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("reserve %s %s: %w", vt.Prefix(), fy.Code(), err)
	}
	return next, nil
}

func (r *Reader) LastVoucherNumber(ctx context.Context, vt ledger.VoucherType, fy ledger.FinancialYear) (int64, error) {
	var last int64
	err := r.q.QueryRowContext(ctx,
		`SELECT last_number FROM voucher_counters WHERE voucher_type = ? AND financial_year = ?`,
		vt.Prefix(), int(fy),
	).Scan(&last)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return last, nil
}

func (r *Reader) ListCounters(ctx context.Context) ([]VoucherCounter, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT voucher_type, financial_year, last_number FROM voucher_counters ORDER BY financial_year, voucher_type`)
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	defer rows.Close()

	var out []VoucherCounter
	for rows.Next() {
		var prefix string
		var fy int
		var c VoucherCounter
		if err := rows.Scan(&prefix, &fy, &c.LastNumber); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		vt, err := ledger.ParseVoucherType(prefix)
		if err != nil {
			return nil, err
		}
		c.VoucherType = vt
		c.FinancialYear = ledger.FinancialYear(fy)
		out = append(out, c)
	}
	return out, rows.Err()
}
