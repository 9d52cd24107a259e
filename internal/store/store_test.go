package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonvc/khata/internal/ledger"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "books.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func day(s string) time.Time {
	t, err := ledger.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// postRaw writes a two-line journal straight through the store.
func postRaw(t *testing.T, s *Store, id, number string, date time.Time, debit, credit int, amount string) {
	t.Helper()
	amt := decimal.RequireFromString(amount)
	e := &ledger.JournalEntry{
		ID:            id,
		VoucherNumber: number,
		VoucherType:   ledger.VoucherJournal,
		Date:          date,
		FinancialYear: ledger.FinancialYearOf(date),
		Narration:     "test " + number,
		Status:        ledger.StatusPosted,
		Lines: []ledger.JournalLine{
			{Index: 0, AccountCode: debit, Debit: amt},
			{Index: 1, AccountCode: credit, Credit: amt},
		},
		TotalDebit:  amt,
		TotalCredit: amt,
		CreatedAt:   time.Now(),
	}
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertJournal(ctx, e); err != nil {
			return err
		}
		for _, l := range e.Lines {
			le := &ledger.LedgerEntry{
				JournalID: e.ID, LineIndex: l.Index, AccountCode: l.AccountCode, Date: e.Date,
				VoucherNumber: e.VoucherNumber, VoucherType: e.VoucherType, Debit: l.Debit, Credit: l.Credit,
			}
			if err := tx.InsertLedgerEntry(ctx, le); err != nil {
				return err
			}
			debit, credit, err := paisePair(l.Debit, l.Credit)
			if err != nil {
				return err
			}
			if err := tx.AdjustBalance(ctx, l.AccountCode, debit-credit); err != nil {
				return err
			}
			if err := tx.RecomputeRunningBalances(ctx, l.AccountCode, e.Date); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestOpenSeedsDefaultChart(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	accounts, err := s.Reader().ListAccounts(ctx, AccountFilter{})
	require.NoError(t, err)
	assert.Len(t, accounts, len(ledger.DefaultChart))

	cash, err := s.Reader().GetAccountByName(ctx, "  CASH ")
	require.NoError(t, err)
	assert.Equal(t, ledger.CodeCash, cash.Code)
	assert.True(t, cash.CashOrBank)

	_, err = s.Reader().GetAccount(ctx, 1999)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestResolveAccountCreatesOnce(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	var first, second *ledger.Account
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		var err error
		first, err = tx.ResolveAccount(ctx, ledger.PostingLine{AccountName: "Courier Charges"})
		if err != nil {
			return err
		}
		second, err = tx.ResolveAccount(ctx, ledger.PostingLine{AccountName: "courier  charges"})
		return err
	}))
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, ledger.Expense, first.Classification)
	assert.Equal(t, 5002, first.Code)

	var debtor *ledger.Account
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		var err error
		debtor, err = tx.ResolveAccount(ctx, ledger.PostingLine{AccountName: "Sharma & Sons", AccountType: ledger.Asset})
		return err
	}))
	assert.Equal(t, 1003, debtor.Code)
}

func TestResolveAccountFillsGaps(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	// Well past the hundred codes between 5001 and 5101.
	seen := map[int]bool{}
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		for i := 0; i < 150; i++ {
			acct, err := tx.ResolveAccount(ctx, ledger.PostingLine{AccountName: fmt.Sprintf("Expense Head %d", i)})
			if err != nil {
				return err
			}
			seen[acct.Code] = true
		}
		return nil
	}))
	assert.Len(t, seen, 150)
	assert.True(t, seen[5002])
	assert.True(t, seen[5100])
	assert.True(t, seen[5106])
	assert.False(t, seen[5101])
	assert.False(t, seen[5902])

	// A code at the top of the range does not block the rest.
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		return tx.CreateAccount(ctx, &ledger.Account{Code: 1999, Name: "Suspense", Classification: ledger.Asset})
	}))
	var petty *ledger.Account
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		var err error
		petty, err = tx.ResolveAccount(ctx, ledger.PostingLine{AccountName: "Petty Cash 2", AccountType: ledger.Asset})
		return err
	}))
	assert.Equal(t, 1003, petty.Code)
}

func TestInactiveAccountRejected(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error { return tx.SetAccountActive(ctx, 5103, false) }))

	err := s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.ResolveAccount(ctx, ledger.PostingLine{AccountCode: 5103})
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrAccountInactive)
}

func TestReserveVoucherNumber(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		var got int64
		require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
			var err error
			got, err = tx.ReserveVoucherNumber(ctx, ledger.VoucherPayment, 2024)
			return err
		}))
		assert.Equal(t, want, got)
	}

	// A rolled back reservation does not burn a number.
	_ = s.WithTx(ctx, func(tx *Tx) error {
		_, _ = tx.ReserveVoucherNumber(ctx, ledger.VoucherPayment, 2024)
		return assert.AnError
	})
	last, err := s.Reader().LastVoucherNumber(ctx, ledger.VoucherPayment, 2024)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)

	other, err := s.Reader().LastVoucherNumber(ctx, ledger.VoucherPayment, 2025)
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestRunningBalancesFollowBookOrder(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	postRaw(t, s, "j1", "JNL-2024-25-0001", day("2024-06-10"), ledger.CodeCash, 3001, "1000")
	postRaw(t, s, "j2", "JNL-2024-25-0002", day("2024-06-12"), 5101, ledger.CodeCash, "300")
	// Backdated entry lands between the two.
	postRaw(t, s, "j3", "JNL-2024-25-0003", day("2024-06-11"), ledger.CodeCash, 4001, "50")

	rows, err := s.Reader().LedgerEntries(ctx, []int{ledger.CodeCash}, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "j1", rows[0].JournalID)
	assert.Equal(t, "j3", rows[1].JournalID)
	assert.Equal(t, "j2", rows[2].JournalID)
	assert.True(t, rows[1].RunningBalance.Equal(decimal.NewFromInt(1050)))
	assert.True(t, rows[2].RunningBalance.Equal(decimal.NewFromInt(750)))

	opening, err := s.Reader().OpeningBalance(ctx, []int{ledger.CodeCash}, day("2024-06-12"))
	require.NoError(t, err)
	assert.Equal(t, int64(105000), opening)

	drifts, err := s.Reader().BalanceDrifts(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestBookOrderComparesSequenceAsNumber(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	postRaw(t, s, "j10000", "JNL-2024-25-10000", day("2024-06-10"), ledger.CodeCash, 4001, "20")
	postRaw(t, s, "j9999", "JNL-2024-25-9999", day("2024-06-10"), ledger.CodeCash, 4001, "10")

	rows, err := s.Reader().LedgerEntries(ctx, []int{ledger.CodeCash}, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "j9999", rows[0].JournalID)
	assert.Equal(t, "j10000", rows[1].JournalID)
	assert.True(t, rows[0].RunningBalance.Equal(decimal.NewFromInt(10)))
	assert.True(t, rows[1].RunningBalance.Equal(decimal.NewFromInt(30)))

	journals, err := s.Reader().ListJournals(ctx, JournalFilter{})
	require.NoError(t, err)
	require.Len(t, journals, 2)
	assert.Equal(t, "JNL-2024-25-9999", journals[0].VoucherNumber)
}

func TestLedgerHistoryIsImmutable(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	postRaw(t, s, "j1", "JNL-2024-25-0001", day("2024-06-10"), ledger.CodeCash, 3001, "1000")

	err := s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE journal_id = 'j1'`)
		return err
	})
	assert.ErrorContains(t, err, "cannot be deleted")

	err = s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(ctx, `UPDATE ledger_entries SET debit = debit + 1 WHERE journal_id = 'j1'`)
		return err
	})
	assert.ErrorContains(t, err, "immutable")

	err = s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(ctx, `UPDATE journal_lines SET credit = 5 WHERE journal_id = 'j1'`)
		return err
	})
	assert.ErrorContains(t, err, "immutable")

	err = s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(ctx, `DELETE FROM accounts WHERE code = 5105`)
		return err
	})
	assert.ErrorContains(t, err, "deactivate")
}

func TestLockYear(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	postRaw(t, s, "j1", "JNL-2024-25-0001", day("2024-06-10"), ledger.CodeCash, 3001, "1000")

	var n int64
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.LockYear(ctx, 2024, time.Now())
		return err
	}))
	assert.Equal(t, int64(1), n)

	locked, err := s.Reader().LockedYears(ctx)
	require.NoError(t, err)
	assert.True(t, locked.IsLocked(2024))

	e, err := s.Reader().GetJournal(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusLocked, e.Status)

	err = s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.LockYear(ctx, 2024, time.Now())
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrPeriodLocked)
}

func TestReconciliationRecordsAppendOnly(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	postRaw(t, s, "j1", "JNL-2024-25-0001", day("2024-06-05"), ledger.CodeBank, 4001, "5000")

	bt := &ledger.BankTransaction{ID: "b1", AccountCode: ledger.CodeBank, Date: day("2024-06-05"), Amount: decimal.NewFromInt(5000)}
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		inserted, err := tx.InsertBankTransaction(ctx, bt)
		assert.True(t, inserted)
		if err != nil {
			return err
		}
		again, err := tx.InsertBankTransaction(ctx, bt)
		assert.False(t, again)
		return err
	}))

	review := &ledger.ReconciliationRecord{BankTransactionID: "b1", MatchType: ledger.MatchNone, Status: ledger.ReconNeedsReview, Reason: "no candidate"}
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error { return tx.AppendReconciliation(ctx, review) }))
	assert.Equal(t, 1, review.Attempt)

	pending, err := s.Reader().PendingMovements(ctx, ledger.CodeBank, day("2024-06-01"), day("2024-06-30"))
	require.NoError(t, err)
	require.Len(t, pending, 1)

	matched := &ledger.ReconciliationRecord{
		BankTransactionID: "b1", MatchedJournalID: "j1", MatchedLedgerEntryID: pending[0].LedgerEntryID,
		MatchType: ledger.MatchExact, Confidence: 1, Status: ledger.ReconMatched,
	}
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		ok, err := tx.ClaimMovement(ctx, pending[0].LedgerEntryID)
		if err != nil {
			return err
		}
		assert.True(t, ok)
		again, err := tx.ClaimMovement(ctx, pending[0].LedgerEntryID)
		assert.False(t, again)
		if err != nil {
			return err
		}
		return tx.AppendReconciliation(ctx, matched)
	}))
	assert.Equal(t, 2, matched.Attempt)

	latest, err := s.Reader().LatestReconciliation(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, ledger.MatchExact, latest.MatchType)

	err = s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(ctx, `UPDATE reconciliation_records SET confidence = 0.5`)
		return err
	})
	assert.ErrorContains(t, err, "append-only")

	unmatched, err := s.Reader().ListBankTransactions(ctx, BankTxnFilter{Unmatched: true})
	require.NoError(t, err)
	assert.Empty(t, unmatched)
}
