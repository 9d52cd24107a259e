package recon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/posting"
	"github.com/simonvc/khata/internal/store"
)

type fixture struct {
	store   *store.Store
	posting *posting.Engine
	recon   *Engine
}

func setup(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "recon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		store:   st,
		posting: posting.NewEngine(st, posting.WithLogger(log)),
		recon:   NewEngine(st, DefaultConfig(), WithLogger(log)),
	}
}

// deposit posts Dr Bank / Cr Sales.
func (f *fixture) deposit(t *testing.T, date, amount, narration, reference string) *ledger.JournalEntry {
	t.Helper()
	e, err := f.posting.Post(context.Background(), ledger.PostingRequest{
		VoucherType: ledger.VoucherReceipt,
		Date:        day(date),
		Narration:   narration,
		Reference:   reference,
		Lines: []ledger.PostingLine{
			{AccountCode: ledger.CodeBank, Debit: amt(amount)},
			{AccountCode: 4001, Credit: amt(amount)},
		},
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) history(t *testing.T, bankTxnID string) []ledger.ReconciliationRecord {
	t.Helper()
	recs, err := f.store.Reader().ListReconciliations(context.Background(), store.ReconFilter{BankTransactionID: bankTxnID})
	require.NoError(t, err)
	return recs
}

func TestReconcileExactIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	entry := f.deposit(t, "2024-06-05", "5000", "Sale to walk-in customer", "")

	txn := ledger.BankTransaction{ID: "stmt-1", Date: day("2024-06-05"), Amount: amt("5000"), Description: "CASH DEP"}
	rec, err := f.recon.Reconcile(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, ledger.ReconMatched, rec.Status)
	assert.Equal(t, ledger.MatchExact, rec.MatchType)
	assert.Equal(t, 1.0, rec.Confidence)
	assert.Equal(t, entry.ID, rec.MatchedJournalID)

	le, err := f.store.Reader().GetLedgerEntry(ctx, rec.MatchedLedgerEntryID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CodeBank, le.AccountCode)
	assert.Equal(t, ledger.ReconReconciled, le.Recon)

	again, err := f.recon.Reconcile(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
	assert.Equal(t, rec.Attempt, again.Attempt)
	assert.Len(t, f.history(t, "stmt-1"), 1)
}

func TestReconcileNeedsReviewThenMatches(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	txn := ledger.BankTransaction{ID: "stmt-2", Date: day("2024-06-05"), Amount: amt("5050"), Description: "ABC Traders payment"}

	rec, err := f.recon.Reconcile(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, ledger.ReconNeedsReview, rec.Status)
	assert.Equal(t, ledger.MatchNone, rec.MatchType)
	assert.NotEmpty(t, rec.Reason)

	again, err := f.recon.Reconcile(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
	assert.Len(t, f.history(t, "stmt-2"), 1)

	f.deposit(t, "2024-06-06", "5000", "Payment to ABC Traders", "")
	matched, err := f.recon.Reconcile(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, ledger.ReconMatched, matched.Status)
	assert.Equal(t, ledger.MatchFuzzy, matched.MatchType)
	assert.Greater(t, matched.Confidence, 0.85)
	assert.True(t, matched.AmountDifference.Equal(amt("50")))
	assert.Equal(t, 2, matched.Attempt)

	recs := f.history(t, "stmt-2")
	require.Len(t, recs, 2)
	assert.Equal(t, ledger.ReconNeedsReview, recs[0].Status)
}

func TestReconcileByReference(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.deposit(t, "2024-05-01", "12000", "Advance from Mehta & Sons", "CHQ-778812")

	rec, err := f.recon.Reconcile(ctx, ledger.BankTransaction{
		ID: "stmt-3", Date: day("2024-05-20"), Amount: amt("12500"), Description: "CLG", ReferenceNumber: "chq-778812",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.MatchReference, rec.MatchType)
	assert.Equal(t, 0.95, rec.Confidence)
	assert.True(t, rec.AmountDifference.Equal(amt("500")))
}

func TestMatchedEntryCannotBeVoided(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	entry := f.deposit(t, "2024-06-05", "5000", "Sale to walk-in customer", "")

	rec, err := f.recon.Reconcile(ctx, ledger.BankTransaction{ID: "stmt-v", Date: day("2024-06-05"), Amount: amt("5000"), Description: "CASH DEP"})
	require.NoError(t, err)
	require.Equal(t, ledger.ReconMatched, rec.Status)

	_, err = f.posting.Void(ctx, entry.ID, "entered twice", "tester")
	assert.ErrorIs(t, err, ledger.ErrInvalidStatus)
	assert.ErrorContains(t, err, "reconciled with the bank statement")

	got, err := f.store.Reader().GetJournal(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPosted, got.Status)
	assert.Len(t, f.history(t, "stmt-v"), 1)

	// An unmatched deposit on the same day can still be voided.
	other := f.deposit(t, "2024-06-05", "700", "Counter sale", "")
	_, err = f.posting.Void(ctx, other.ID, "entered twice", "tester")
	assert.NoError(t, err)
}

func TestTwoBankLinesCannotClaimOneMovement(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.deposit(t, "2024-06-05", "5000", "Sale", "")

	recs, err := f.recon.ReconcileStatement(ctx, []ledger.BankTransaction{
		{ID: "dup-a", Date: day("2024-06-05"), Amount: amt("5000"), Description: "DEP"},
		{ID: "dup-b", Date: day("2024-06-05"), Amount: amt("5000"), Description: "DEP"},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	s := Summarize(recs)
	assert.Equal(t, 1, s.Matched)
	assert.Equal(t, 1, s.NeedsReview)
	assert.Equal(t, 1, s.ByType[ledger.MatchExact])
}

func TestReconcileStatementInParallel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	var txns []ledger.BankTransaction
	for i := 1; i <= 12; i++ {
		amount := fmt.Sprintf("%d", 1000+i*37)
		f.deposit(t, "2024-07-10", amount, "Sale", "")
		txns = append(txns, ledger.BankTransaction{
			ID: fmt.Sprintf("par-%02d", i), Date: day("2024-07-10"), Amount: amt(amount), Description: "DEP",
		})
	}

	recs, err := f.recon.ReconcileStatement(ctx, txns)
	require.NoError(t, err)
	require.Len(t, recs, len(txns))
	seen := map[int64]bool{}
	for i, rec := range recs {
		assert.Equal(t, txns[i].ID, rec.BankTransactionID)
		assert.Equal(t, ledger.MatchExact, rec.MatchType)
		assert.False(t, seen[rec.MatchedLedgerEntryID])
		seen[rec.MatchedLedgerEntryID] = true
	}

	pending, err := f.store.Reader().ListBankTransactions(ctx, store.BankTxnFilter{Unmatched: true})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMatchManually(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	txn := ledger.BankTransaction{ID: "stmt-4", Date: day("2024-08-01"), Amount: amt("4321"), Description: "IMPS 5521"}
	rec, err := f.recon.Reconcile(ctx, txn)
	require.NoError(t, err)
	require.Equal(t, ledger.ReconNeedsReview, rec.Status)

	entry := f.deposit(t, "2024-07-01", "4300", "Consulting fee", "")
	rows, err := f.store.Reader().JournalLedgerEntries(ctx, entry.ID)
	require.NoError(t, err)
	var bankRow ledger.LedgerEntry
	for _, r := range rows {
		if r.AccountCode == ledger.CodeBank {
			bankRow = r
		}
	}

	_, err = f.recon.MatchManually(ctx, "stmt-4", rows[1].ID, "asha")
	assert.ErrorIs(t, err, ledger.ErrInvalidBankTxn)

	manual, err := f.recon.MatchManually(ctx, "stmt-4", bankRow.ID, "asha")
	require.NoError(t, err)
	assert.Equal(t, ledger.MatchManual, manual.MatchType)
	assert.Equal(t, 1.0, manual.Confidence)
	assert.True(t, manual.AmountDifference.Equal(amt("21")))

	_, err = f.recon.MatchManually(ctx, "stmt-4", bankRow.ID, "asha")
	assert.ErrorIs(t, err, ledger.ErrAlreadyMatched)

	_, err = f.recon.MatchManually(ctx, "nope", bankRow.ID, "asha")
	assert.ErrorIs(t, err, ledger.ErrBankTxnNotFound)
}

func TestImportAndReconcilePending(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	txns := []ledger.BankTransaction{
		{ID: "imp-1", Date: day("2024-09-01"), Amount: amt("800"), Description: "DEP"},
		{ID: "imp-2", Date: day("2024-09-02"), Amount: amt("-150"), Description: "CHGS"},
	}
	n, err := f.recon.Import(ctx, txns)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = f.recon.Import(ctx, txns)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.deposit(t, "2024-09-01", "800", "Sale", "")
	recs, err := f.recon.ReconcilePending(ctx, 0)
	require.NoError(t, err)
	s := Summarize(recs)
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Matched)

	_, err = f.recon.Import(ctx, []ledger.BankTransaction{{ID: "bad", Date: day("2024-09-01")}})
	assert.ErrorIs(t, err, ledger.ErrInvalidBankTxn)
}
