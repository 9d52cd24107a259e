package posting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/store"
)

// RetryPolicy bounds how often a write is retried when SQLite reports the
// database busy.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

var DefaultRetry = RetryPolicy{Attempts: 5, Backoff: 20 * time.Millisecond}

// Numbering issues voucher numbers. Each (type, year) series is serialised
// by a per-key lock and the counter row itself.
type Numbering struct {
	store *store.Store
	locks *keyedMutex
	retry RetryPolicy
	log   *slog.Logger
}

func NewNumbering(st *store.Store, retry RetryPolicy, log *slog.Logger) *Numbering {
	if log == nil {
		log = slog.Default()
	}
	return &Numbering{store: st, locks: newKeyedMutex(), retry: retry, log: log}
}

func counterKey(vt ledger.VoucherType, fy ledger.FinancialYear) string {
	return "voucher:" + vt.Prefix() + ":" + fy.Code()
}

// Next reserves and commits the next number in the series. Numbers issued
// here are never reused, whether or not a voucher is ever posted with them.
func (n *Numbering) Next(ctx context.Context, vt ledger.VoucherType, fy ledger.FinancialYear) (string, error) {
	if !vt.Valid() {
		return "", fmt.Errorf("%w: %d", ledger.ErrUnknownVoucherType, uint8(vt))
	}
	unlock := n.locks.Lock(counterKey(vt, fy))
	defer unlock()

	var seq int64
	err := withRetry(ctx, n.retry, n.log, "voucher.next", func() error {
		return n.store.WithTx(ctx, func(tx *store.Tx) error {
			var err error
			seq, err = tx.ReserveVoucherNumber(ctx, vt, fy)
			return err
		})
	})
	if err != nil {
		return "", err
	}
	return ledger.FormatVoucherNumber(vt, fy, seq), nil
}

// Peek returns the number the next voucher in the series would receive.
func (n *Numbering) Peek(ctx context.Context, vt ledger.VoucherType, fy ledger.FinancialYear) (string, error) {
	if !vt.Valid() {
		return "", fmt.Errorf("%w: %d", ledger.ErrUnknownVoucherType, uint8(vt))
	}
	last, err := n.store.Reader().LastVoucherNumber(ctx, vt, fy)
	if err != nil {
		return "", err
	}
	return ledger.FormatVoucherNumber(vt, fy, last+1), nil
}

// reserve takes the next number inside the caller's transaction. The caller
// must hold the series lock.
func (n *Numbering) reserve(ctx context.Context, tx *store.Tx, vt ledger.VoucherType, fy ledger.FinancialYear) (string, error) {
	seq, err := tx.ReserveVoucherNumber(ctx, vt, fy)
	if err != nil {
		return "", err
	}
	return ledger.FormatVoucherNumber(vt, fy, seq), nil
}

// withRetry reruns fn while the store reports SQLITE_BUSY, backing off
// linearly. Exhausted retries surface as ErrNumberingConflict.
func withRetry(ctx context.Context, p RetryPolicy, log *slog.Logger, op string, fn func() error) error {
	attempts := max(p.Attempts, 1)
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !store.IsBusy(err) {
			return err
		}
		log.Warn("database busy, retrying", "op", op, "attempt", i+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", ledger.ErrNumberingConflict, op, attempts, err)
}
