package posting

import (
	"context"
	"fmt"
	"strings"

	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/store"
)

// Verify recomputes the global invariants from stored rows: total debits
// equal total credits, every voucher balances, and every cached account
// balance equals the sum of its ledger rows. A failure halts posting.
func (e *Engine) Verify(ctx context.Context) error {
	var violation *ledger.InvariantViolation
	err := e.store.View(ctx, func(r *store.Reader) error {
		var err error
		violation, err = inspect(ctx, r)
		return err
	})
	if err != nil {
		return e.fail(ctx, "books.verify", err)
	}
	if violation != nil {
		e.halt(ctx, "books.verify", violation)
		return violation
	}
	return nil
}

func inspect(ctx context.Context, r *store.Reader) (*ledger.InvariantViolation, error) {
	debit, credit, err := r.GlobalTotals(ctx)
	if err != nil {
		return nil, err
	}
	if debit != credit {
		return &ledger.InvariantViolation{
			Check:  "global_balance",
			Detail: fmt.Sprintf("ledger debits %s != credits %s", ledger.FromPaise(debit).StringFixed(2), ledger.FromPaise(credit).StringFixed(2)),
		}, nil
	}

	ids, err := r.UnbalancedJournals(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		return &ledger.InvariantViolation{Check: "entry_balance", Detail: "unbalanced entries: " + strings.Join(ids, ", ")}, nil
	}

	drifts, err := r.BalanceDrifts(ctx)
	if err != nil {
		return nil, err
	}
	if len(drifts) > 0 {
		d := drifts[0]
		return &ledger.InvariantViolation{
			Check: "account_balance",
			Detail: fmt.Sprintf("%d accounts drifted; %d cached %s, rows sum %s", len(drifts), d.AccountCode,
				ledger.FromPaise(d.Cached).StringFixed(2), ledger.FromPaise(d.Computed).StringFixed(2)),
		}, nil
	}
	return nil, nil
}

// Halted returns the violation that stopped posting, or nil.
func (e *Engine) Halted() *ledger.InvariantViolation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.halted
}

// Resume re-runs verification and lifts the halt when the books are sound.
func (e *Engine) Resume(ctx context.Context, actor string) error {
	var violation *ledger.InvariantViolation
	err := e.store.View(ctx, func(r *store.Reader) error {
		var err error
		violation, err = inspect(ctx, r)
		return err
	})
	if err != nil {
		return e.fail(ctx, "books.resume", err)
	}
	if violation != nil {
		return violation
	}

	e.mu.Lock()
	prev := e.halted
	e.halted = nil
	e.mu.Unlock()

	if prev != nil {
		if err := e.store.Audit(ctx, store.AuditEntry{Action: "books.resume", Actor: actor, Detail: prev.Error()}); err != nil {
			e.log.Error("audit write failed", "err", err)
		}
		e.log.Info("posting resumed", "actor", actor, "after", prev.Check)
	}
	return nil
}

func (e *Engine) checkHalted() error {
	if v := e.Halted(); v != nil {
		return fmt.Errorf("%w: %s", ledger.ErrBooksHalted, v.Error())
	}
	return nil
}

func (e *Engine) halt(ctx context.Context, op string, v *ledger.InvariantViolation) {
	e.mu.Lock()
	first := e.halted == nil
	if first {
		e.halted = v
	}
	e.mu.Unlock()

	e.log.Error("invariant violation",
		"kind", "invariant_violation",
		"op", op,
		"check", v.Check,
		"detail", v.Detail)
	if !first {
		return
	}
	err := e.store.Audit(context.WithoutCancel(ctx), store.AuditEntry{
		Action: "books.halt", Entity: "invariant", EntityID: v.Check, Detail: v.Detail,
	})
	if err != nil {
		e.log.Error("audit write failed", "err", err)
	}
}
