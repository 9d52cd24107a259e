package books

import (
	"context"
	"fmt"
	"time"

	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/store"
)

// Generator reads each report from a single snapshot of the books, so a
// report never mixes rows from before and after a concurrent posting.
type Generator struct {
	store *store.Store
}

func NewGenerator(st *store.Store) *Generator {
	return &Generator{store: st}
}

func checkRange(from, to time.Time) error {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return fmt.Errorf("%w: range ends %s before it starts %s", ledger.ErrInvalidDate,
			to.Format(ledger.DateLayout), from.Format(ledger.DateLayout))
	}
	return nil
}

// LedgerView is the account's ledger over [from, to]. A zero from starts at
// the first row; a zero to runs to the last.
func (g *Generator) LedgerView(ctx context.Context, code int, from, to time.Time) (*ledger.LedgerView, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	var view ledger.LedgerView
	err := g.store.View(ctx, func(r *store.Reader) error {
		acct, err := r.GetAccount(ctx, code)
		if err != nil {
			return err
		}
		var opening int64
		if !from.IsZero() {
			if opening, err = r.OpeningBalance(ctx, []int{code}, from); err != nil {
				return err
			}
		}
		rows, err := r.LedgerEntries(ctx, []int{code}, from, to)
		if err != nil {
			return err
		}
		view = BuildLedgerView(*acct, from, to, ledger.FromPaise(opening), rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// TrialBalance covers every row dated on or before asOf.
func (g *Generator) TrialBalance(ctx context.Context, asOf time.Time) (*ledger.TrialBalance, error) {
	var tb ledger.TrialBalance
	err := g.store.View(ctx, func(r *store.Reader) error {
		movements, err := r.Movements(ctx, time.Time{}, asOf)
		if err != nil {
			return err
		}
		tb = BuildTrialBalance(asOf, movements)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tb, nil
}

// CashBook combines the given accounts, or every cash/bank account when
// codes is empty.
func (g *Generator) CashBook(ctx context.Context, from, to time.Time, codes ...int) (*ledger.CashBook, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	var cb ledger.CashBook
	err := g.store.View(ctx, func(r *store.Reader) error {
		var accounts []ledger.Account
		if len(codes) == 0 {
			var err error
			if accounts, err = r.ListAccounts(ctx, store.AccountFilter{CashBankOnly: true}); err != nil {
				return err
			}
		} else {
			for _, c := range codes {
				acct, err := r.GetAccount(ctx, c)
				if err != nil {
					return err
				}
				accounts = append(accounts, *acct)
			}
		}
		ids := make([]int, len(accounts))
		for i, a := range accounts {
			ids[i] = a.Code
		}

		var opening int64
		if !from.IsZero() {
			var err error
			if opening, err = r.OpeningBalance(ctx, ids, from); err != nil {
				return err
			}
		}
		rows, err := r.LedgerEntries(ctx, ids, from, to)
		if err != nil {
			return err
		}
		cb = BuildCashBook(accounts, from, to, ledger.FromPaise(opening), rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cb, nil
}

func (g *Generator) ProfitAndLoss(ctx context.Context, from, to time.Time) (*ledger.ProfitAndLoss, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	var pl ledger.ProfitAndLoss
	err := g.store.View(ctx, func(r *store.Reader) error {
		movements, err := r.Movements(ctx, from, to)
		if err != nil {
			return err
		}
		pl = BuildProfitAndLoss(from, to, movements)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &pl, nil
}

func (g *Generator) BalanceSheet(ctx context.Context, asOf time.Time) (*ledger.BalanceSheet, error) {
	var bs ledger.BalanceSheet
	err := g.store.View(ctx, func(r *store.Reader) error {
		movements, err := r.Movements(ctx, time.Time{}, asOf)
		if err != nil {
			return err
		}
		bs = BuildBalanceSheet(asOf, movements)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &bs, nil
}
