package books

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/posting"
	"github.com/simonvc/khata/internal/store"
)

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) time.Time {
	t, err := ledger.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

type books struct {
	engine *posting.Engine
	gen    *Generator
}

func setup(t *testing.T) *books {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "books.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &books{engine: posting.NewEngine(st, posting.WithLogger(log)), gen: NewGenerator(st)}
}

func (b *books) post(t *testing.T, vt ledger.VoucherType, date string, debit, credit int, amount string) *ledger.JournalEntry {
	t.Helper()
	e, err := b.engine.Post(context.Background(), ledger.PostingRequest{
		VoucherType: vt,
		Date:        day(date),
		Narration:   "test",
		Lines: []ledger.PostingLine{
			{AccountCode: debit, Debit: amt(amount)},
			{AccountCode: credit, Credit: amt(amount)},
		},
	})
	require.NoError(t, err)
	return e
}

func TestRentScenario(t *testing.T) {
	b := setup(t)
	ctx := context.Background()
	b.post(t, ledger.VoucherReceipt, "2024-04-01", ledger.CodeCash, 3001, "25000")
	b.post(t, ledger.VoucherPayment, "2024-06-05", 5101, ledger.CodeCash, "10000")

	view, err := b.gen.LedgerView(ctx, ledger.CodeCash, day("2024-06-01"), day("2024-06-30"))
	require.NoError(t, err)
	assert.True(t, view.OpeningBalance.Equal(amt("25000")))
	require.Len(t, view.Rows, 1)
	assert.True(t, view.Rows[0].Debit.IsZero())
	assert.True(t, view.Rows[0].Credit.Equal(amt("10000")))
	assert.True(t, view.Rows[0].RunningBalance.Equal(amt("15000")))
	assert.True(t, view.ClosingBalance.Equal(amt("15000")))

	tb, err := b.gen.TrialBalance(ctx, day("2024-06-30"))
	require.NoError(t, err)
	assert.True(t, tb.Balanced)
	assert.True(t, tb.Difference.IsZero())
	var rent *ledger.TrialBalanceLine
	for i := range tb.Lines {
		if tb.Lines[i].AccountCode == 5101 {
			rent = &tb.Lines[i]
		}
	}
	require.NotNil(t, rent)
	assert.True(t, rent.Debit.Equal(amt("10000")))
	assert.True(t, rent.Credit.IsZero())
	assert.True(t, tb.TotalDebit.Equal(amt("25000")))

	// The trial balance before the rent was paid does not show it.
	early, err := b.gen.TrialBalance(ctx, day("2024-05-31"))
	require.NoError(t, err)
	assert.Len(t, early.Lines, 2)
}

func TestVoidedSaleLeavesProfitAndLoss(t *testing.T) {
	b := setup(t)
	ctx := context.Background()
	sale := b.post(t, ledger.VoucherSales, "2024-06-10", ledger.CodeCash, 4001, "50000")
	b.post(t, ledger.VoucherSales, "2024-06-11", ledger.CodeCash, 4002, "8000")
	b.post(t, ledger.VoucherPayment, "2024-06-12", 5101, ledger.CodeCash, "2000")

	before, err := b.gen.ProfitAndLoss(ctx, day("2024-06-01"), day("2024-06-30"))
	require.NoError(t, err)
	assert.True(t, before.TotalRevenue.Equal(amt("58000")))

	_, err = b.engine.Void(ctx, sale.ID, "cancelled order", "test")
	require.NoError(t, err)

	pl, err := b.gen.ProfitAndLoss(ctx, day("2024-06-01"), day("2024-06-30"))
	require.NoError(t, err)
	assert.True(t, pl.TotalRevenue.Equal(amt("8000")))
	assert.True(t, pl.TotalExpenses.Equal(amt("2000")))
	assert.True(t, pl.NetProfit.Equal(amt("6000")))
	assert.True(t, pl.Margin.Equal(amt("0.75")))
	require.Len(t, pl.Income, 1)
	assert.Equal(t, 4002, pl.Income[0].AccountCode)

	// The voided sale's rows are still in the Sales ledger.
	view, err := b.gen.LedgerView(ctx, 4001, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, view.Rows, 2)
	assert.True(t, view.ClosingBalance.IsZero())
}

func TestBalanceSheetIncludesProfit(t *testing.T) {
	b := setup(t)
	ctx := context.Background()
	b.post(t, ledger.VoucherReceipt, "2024-04-01", ledger.CodeBank, 3001, "100000")
	b.post(t, ledger.VoucherJournal, "2024-04-02", ledger.CodeBank, 2201, "40000")
	b.post(t, ledger.VoucherSales, "2024-05-01", ledger.CodeDebtors, 4001, "30000")
	b.post(t, ledger.VoucherPayment, "2024-05-02", 5102, ledger.CodeBank, "12000")

	bs, err := b.gen.BalanceSheet(ctx, day("2025-03-31"))
	require.NoError(t, err)
	assert.True(t, bs.Balanced)
	assert.True(t, bs.TotalAssets.Equal(amt("158000")))
	assert.True(t, bs.TotalLiabilities.Equal(amt("40000")))
	assert.True(t, bs.TotalEquity.Equal(amt("118000")))
	last := bs.Equity[len(bs.Equity)-1]
	assert.Equal(t, ledger.ProfitLineName, last.AccountName)
	assert.True(t, last.Amount.Equal(amt("18000")))
}

func TestCashBookCombinesCashAndBank(t *testing.T) {
	b := setup(t)
	ctx := context.Background()
	b.post(t, ledger.VoucherReceipt, "2024-04-01", ledger.CodeCash, 3001, "5000")
	b.post(t, ledger.VoucherContra, "2024-04-02", ledger.CodeBank, ledger.CodeCash, "3000")
	b.post(t, ledger.VoucherPayment, "2024-04-03", 5104, ledger.CodeBank, "50")
	b.post(t, ledger.VoucherSales, "2024-04-04", ledger.CodeCash, 4001, "700")

	cb, err := b.gen.CashBook(ctx, day("2024-04-02"), day("2024-04-30"))
	require.NoError(t, err)
	assert.Len(t, cb.Accounts, 2)
	assert.True(t, cb.OpeningBalance.Equal(amt("5000")))
	require.Len(t, cb.Rows, 4)
	assert.True(t, cb.TotalReceipts.Equal(amt("3700")))
	assert.True(t, cb.TotalPayments.Equal(amt("3050")))
	assert.True(t, cb.ClosingBalance.Equal(amt("5650")))
	assert.True(t, cb.Rows[3].RunningBalance.Equal(cb.ClosingBalance))

	bankOnly, err := b.gen.CashBook(ctx, time.Time{}, time.Time{}, ledger.CodeBank)
	require.NoError(t, err)
	assert.True(t, bankOnly.ClosingBalance.Equal(amt("2950")))
}

func TestReportsAreIdempotent(t *testing.T) {
	b := setup(t)
	ctx := context.Background()
	b.post(t, ledger.VoucherReceipt, "2024-04-01", ledger.CodeCash, 3001, "5000")
	b.post(t, ledger.VoucherPayment, "2024-04-03", 5101, ledger.CodeCash, "1200.50")

	asOf := day("2024-12-31")
	tb1, err := b.gen.TrialBalance(ctx, asOf)
	require.NoError(t, err)
	tb2, err := b.gen.TrialBalance(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, tb1, tb2)

	pl1, err := b.gen.ProfitAndLoss(ctx, time.Time{}, asOf)
	require.NoError(t, err)
	pl2, err := b.gen.ProfitAndLoss(ctx, time.Time{}, asOf)
	require.NoError(t, err)
	assert.Equal(t, pl1, pl2)

	bs1, err := b.gen.BalanceSheet(ctx, asOf)
	require.NoError(t, err)
	bs2, err := b.gen.BalanceSheet(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, bs1, bs2)
	assert.True(t, bs1.Balanced)
}

func TestBuildTrialBalanceReportsDifference(t *testing.T) {
	movements := []ledger.AccountMovement{
		{Account: ledger.Account{Code: 1001, Name: "Cash", Classification: ledger.Asset}, Debit: amt("100"), Credit: amt("0")},
		{Account: ledger.Account{Code: 4001, Name: "Sales", Classification: ledger.Income}, Debit: amt("0"), Credit: amt("90")},
		{Account: ledger.Account{Code: 5101, Name: "Rent", Classification: ledger.Expense}, Debit: amt("5"), Credit: amt("5")},
	}
	tb := BuildTrialBalance(day("2024-04-30"), movements)
	assert.False(t, tb.Balanced)
	assert.True(t, tb.Difference.Equal(amt("10")))
	assert.Len(t, tb.Lines, 2)

	pl := BuildProfitAndLoss(time.Time{}, time.Time{}, nil)
	assert.True(t, pl.Margin.IsZero())
}

func TestInvalidRange(t *testing.T) {
	b := setup(t)
	_, err := b.gen.ProfitAndLoss(context.Background(), day("2024-05-01"), day("2024-04-01"))
	assert.ErrorIs(t, err, ledger.ErrInvalidDate)
	_, err = b.gen.LedgerView(context.Background(), 1234, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}
