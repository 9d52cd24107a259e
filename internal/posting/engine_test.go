package posting

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/store"
)

type fixture struct {
	engine *Engine
	store  *store.Store
	path   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "books.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{engine: NewEngine(st, WithLogger(log)), store: st, path: path}
}

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) time.Time {
	t, err := ledger.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func twoLine(vt ledger.VoucherType, date string, debit, credit int, amount, narration string) ledger.PostingRequest {
	return ledger.PostingRequest{
		VoucherType: vt,
		Date:        day(date),
		Narration:   narration,
		Lines: []ledger.PostingLine{
			{AccountCode: debit, Debit: amt(amount)},
			{AccountCode: credit, Credit: amt(amount)},
		},
	}
}

func (f *fixture) post(t *testing.T, req ledger.PostingRequest) *ledger.JournalEntry {
	t.Helper()
	e, err := f.engine.Post(context.Background(), req)
	require.NoError(t, err)
	return e
}

func (f *fixture) balance(t *testing.T, code int) decimal.Decimal {
	t.Helper()
	a, err := f.store.Reader().GetAccount(context.Background(), code)
	require.NoError(t, err)
	return a.Balance
}

func TestPostRentUpdatesCashLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.post(t, twoLine(ledger.VoucherReceipt, "2024-04-01", ledger.CodeCash, 3001, "50000", "Capital introduced"))
	rent := f.post(t, twoLine(ledger.VoucherPayment, "2024-06-05", 5101, ledger.CodeCash, "10000", "June rent"))

	assert.Equal(t, "PAY-2024-25-0001", rent.VoucherNumber)
	assert.Equal(t, ledger.StatusPosted, rent.Status)
	assert.Equal(t, ledger.FinancialYear(2024), rent.FinancialYear)
	require.Len(t, rent.Lines, 2)
	assert.Equal(t, "Rent Expense", rent.Lines[0].AccountName)

	rows, err := f.store.Reader().LedgerEntries(ctx, []int{ledger.CodeCash}, day("2024-06-01"), day("2024-06-30"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Debit.IsZero())
	assert.True(t, rows[0].Credit.Equal(amt("10000")))
	assert.True(t, rows[0].RunningBalance.Equal(amt("40000")))
	assert.Equal(t, "By Rent Expense", rows[0].Particulars)

	assert.True(t, f.balance(t, ledger.CodeCash).Equal(amt("40000")))
	assert.True(t, f.balance(t, 5101).Equal(amt("10000")))
	require.NoError(t, f.engine.Verify(ctx))
}

func TestPostRejectsInvalidWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := twoLine(ledger.VoucherPayment, "2024-06-05", 5101, ledger.CodeCash, "10000", "June rent")
	req.Lines[1].Credit = amt("9000")
	_, err := f.engine.Post(ctx, req)
	var ve *ledger.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ledger.CheckBalance, ve.Check)

	last, err := f.store.Reader().LastVoucherNumber(ctx, ledger.VoucherPayment, 2024)
	require.NoError(t, err)
	assert.Zero(t, last)
	entries, err := f.store.Reader().ListJournals(ctx, store.JournalFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	// An unknown account code fails inside the transaction and rolls back
	// the reserved number.
	_, err = f.engine.Post(ctx, twoLine(ledger.VoucherPayment, "2024-06-05", 5999, ledger.CodeCash, "10", "x"))
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	last, err = f.store.Reader().LastVoucherNumber(ctx, ledger.VoucherPayment, 2024)
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestPostRejectsOversizedAmountWithoutHalting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, amount := range []string{"184467440737095516.17", "100000000000000000"} {
		_, err := f.engine.Post(ctx, twoLine(ledger.VoucherJournal, "2024-06-05", 5101, ledger.CodeCash, amount, "Typo in amount"))
		var ve *ledger.ValidationError
		require.ErrorAs(t, err, &ve, amount)
		assert.Equal(t, ledger.CheckLines, ve.Check)
		assert.ErrorIs(t, err, ledger.ErrAmountOutOfRange)
	}
	assert.Nil(t, f.engine.Halted())

	e := f.post(t, twoLine(ledger.VoucherJournal, "2024-06-05", 5101, ledger.CodeCash, "100", "Petty repair"))
	assert.Equal(t, "JNL-2024-25-0001", e.VoucherNumber)
}

func TestPostCreatesAccountsByName(t *testing.T) {
	f := newFixture(t)
	req := ledger.PostingRequest{
		VoucherType: ledger.VoucherPayment,
		Date:        day("2024-07-01"),
		Narration:   "Courier to Pune",
		Lines: []ledger.PostingLine{
			{AccountName: "Courier Charges", AccountType: ledger.Expense, Debit: amt("250")},
			{AccountName: "cash", Credit: amt("250")},
		},
	}
	e := f.post(t, req)
	assert.Equal(t, 5002, e.Lines[0].AccountCode)
	assert.Equal(t, ledger.CodeCash, e.Lines[1].AccountCode)

	again := f.post(t, req)
	assert.Equal(t, 5002, again.Lines[0].AccountCode)
	assert.True(t, f.balance(t, 5002).Equal(amt("500")))
}

func TestPostAddsRoundOffLine(t *testing.T) {
	f := newFixture(t)
	req := ledger.PostingRequest{
		VoucherType: ledger.VoucherSales,
		Date:        day("2024-08-01"),
		Narration:   "Counter sale",
		Lines: []ledger.PostingLine{
			{AccountCode: ledger.CodeCash, Debit: amt("100.01")},
			{AccountCode: 4001, Credit: amt("100")},
		},
	}
	e := f.post(t, req)
	require.Len(t, e.Lines, 3)
	assert.Equal(t, ledger.CodeRoundOff, e.Lines[2].AccountCode)
	assert.True(t, e.TotalDebit.Equal(e.TotalCredit))
	require.NoError(t, f.engine.Verify(context.Background()))
}

func TestVoidIsNonDestructive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sale := f.post(t, twoLine(ledger.VoucherSales, "2024-06-10", ledger.CodeCash, 4001, "50000", "Sale to Mehta"))
	later := f.post(t, twoLine(ledger.VoucherPayment, "2024-06-20", 5101, ledger.CodeCash, "1000", "Rent"))

	c, err := f.engine.Void(ctx, sale.ID, "entered twice", "asha")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusVoid, c.Original.Status)
	assert.Equal(t, c.Reversal.ID, c.Original.ReversedBy)
	assert.Equal(t, sale.ID, c.Reversal.ReversalOf)
	assert.Equal(t, ledger.VoucherSales, c.Reversal.VoucherType)
	assert.Equal(t, "SAL-2024-25-0002", c.Reversal.VoucherNumber)
	assert.Equal(t, "Reversal of SAL-2024-25-0001: entered twice", c.Reversal.Narration)
	assert.True(t, c.Reversal.Lines[0].Credit.Equal(amt("50000")))
	assert.Equal(t, 4001, c.Reversal.Lines[1].AccountCode)
	assert.True(t, c.Reversal.Lines[1].Debit.Equal(amt("50000")))

	rows, err := f.store.Reader().LedgerEntries(ctx, []int{ledger.CodeCash}, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	var reversed int
	for _, r := range rows {
		if r.Status == ledger.RowReversed {
			reversed++
		}
	}
	assert.Equal(t, 2, reversed)
	// The cash closing balance is as if the sale never happened.
	assert.True(t, rows[2].RunningBalance.Equal(amt("-1000")))
	assert.Equal(t, later.ID, rows[2].JournalID)
	assert.True(t, f.balance(t, 4001).IsZero())

	stored, err := f.store.Reader().GetJournal(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusVoid, stored.Status)

	_, err = f.engine.Void(ctx, sale.ID, "again", "asha")
	assert.ErrorIs(t, err, ledger.ErrInvalidStatus)
	_, err = f.engine.Void(ctx, c.Reversal.ID, "undo", "asha")
	assert.ErrorIs(t, err, ledger.ErrInvalidStatus)
	_, err = f.engine.Void(ctx, "missing", "x", "asha")
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)

	// Numbers are never reused after a void.
	next := f.post(t, twoLine(ledger.VoucherSales, "2024-06-21", ledger.CodeCash, 4001, "10", "Sale"))
	assert.Equal(t, "SAL-2024-25-0003", next.VoucherNumber)
	require.NoError(t, f.engine.Verify(ctx))
}

func TestReclassifyMovesLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wrong := f.post(t, twoLine(ledger.VoucherPayment, "2024-06-05", 5105, ledger.CodeCash, "10000", "June rent"))
	c, err := f.engine.Reclassify(ctx, wrong.ID, 0, ledger.PostingLine{AccountCode: 5101}, "asha")
	require.NoError(t, err)
	require.NotNil(t, c.Replacement)
	assert.Equal(t, wrong.ID, c.Replacement.ReclassifiedFrom)
	assert.Equal(t, 5101, c.Replacement.Lines[0].AccountCode)
	assert.Equal(t, "June rent", c.Replacement.Narration)
	assert.Equal(t, "PAY-2024-25-0003", c.Replacement.VoucherNumber)

	assert.True(t, f.balance(t, 5105).IsZero())
	assert.True(t, f.balance(t, 5101).Equal(amt("10000")))
	assert.True(t, f.balance(t, ledger.CodeCash).Equal(amt("-10000")))

	_, err = f.engine.Reclassify(ctx, c.Replacement.ID, 0, ledger.PostingLine{AccountCode: 5101}, "asha")
	assert.ErrorIs(t, err, ledger.ErrInvalidLine)
	_, err = f.engine.Reclassify(ctx, c.Replacement.ID, 5, ledger.PostingLine{AccountCode: 5102}, "asha")
	assert.ErrorIs(t, err, ledger.ErrInvalidLine)
	require.NoError(t, f.engine.Verify(ctx))
}

func TestCloseYearLocksPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.post(t, twoLine(ledger.VoucherPayment, "2024-06-05", 5101, ledger.CodeCash, "100", "rent"))
	n, err := f.engine.CloseYear(ctx, 2024, "asha")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.engine.Post(ctx, twoLine(ledger.VoucherPayment, "2024-07-05", 5101, ledger.CodeCash, "100", "rent"))
	assert.ErrorIs(t, err, ledger.ErrPeriodLocked)

	_, err = f.engine.Void(ctx, e.ID, "late fix", "asha")
	assert.ErrorIs(t, err, ledger.ErrPeriodLocked)

	next := f.post(t, twoLine(ledger.VoucherPayment, "2025-04-02", 5101, ledger.CodeCash, "100", "rent"))
	assert.Equal(t, "PAY-2025-26-0001", next.VoucherNumber)

	_, err = f.engine.CloseYear(ctx, 2024, "asha")
	assert.ErrorIs(t, err, ledger.ErrPeriodLocked)
}

func TestConcurrentPostingKeepsNumbersGapless(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const n = 24

	var wg sync.WaitGroup
	numbers := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Half touch the same pair of accounts, half a disjoint pair.
			debit, credit := 5101, ledger.CodeCash
			if i%2 == 1 {
				debit, credit = 5102, ledger.CodeBank
			}
			e, err := f.engine.Post(ctx, twoLine(ledger.VoucherPayment, "2024-09-01", debit, credit, "10", fmt.Sprintf("p%d", i)))
			if err != nil {
				errs <- err
				return
			}
			numbers <- e.VoucherNumber
		}(i)
	}
	wg.Wait()
	close(numbers)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var got []string
	for v := range numbers {
		got = append(got, v)
	}
	sort.Strings(got)
	require.Len(t, got, n)
	for i, v := range got {
		assert.Equal(t, ledger.FormatVoucherNumber(ledger.VoucherPayment, 2024, int64(i+1)), v)
	}

	rows, err := f.store.Reader().LedgerEntries(ctx, []int{ledger.CodeCash}, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, n/2)
	assert.True(t, rows[len(rows)-1].RunningBalance.Equal(amt("-120")))
	require.NoError(t, f.engine.Verify(ctx))
}

func TestNumberingNextIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	num := f.engine.Numbering()

	peek, err := num.Peek(ctx, ledger.VoucherJournal, 2024)
	require.NoError(t, err)
	assert.Equal(t, "JNL-2024-25-0001", peek)

	const n = 32
	var mu sync.Mutex
	var got []string
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := num.Next(ctx, ledger.VoucherJournal, 2024)
			assert.NoError(t, err)
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Strings(got)
	for i, v := range got {
		assert.Equal(t, ledger.FormatVoucherNumber(ledger.VoucherJournal, 2024, int64(i+1)), v)
	}

	// Another series is independent.
	v, err := num.Next(ctx, ledger.VoucherJournal, 2025)
	require.NoError(t, err)
	assert.Equal(t, "JNL-2025-26-0001", v)

	_, err = num.Next(ctx, ledger.VoucherType(0), 2024)
	assert.ErrorIs(t, err, ledger.ErrUnknownVoucherType)
}

func TestInvariantViolationHaltsPosting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.post(t, twoLine(ledger.VoucherPayment, "2024-06-05", 5101, ledger.CodeCash, "100", "rent"))

	raw, err := sql.Open("sqlite", "file:"+f.path+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec(`UPDATE accounts SET balance = balance + 1 WHERE code = ?`, ledger.CodeCash)
	require.NoError(t, err)

	err = f.engine.Verify(ctx)
	var iv *ledger.InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, "account_balance", iv.Check)
	assert.NotNil(t, f.engine.Halted())

	_, err = f.engine.Post(ctx, twoLine(ledger.VoucherPayment, "2024-06-06", 5101, ledger.CodeCash, "100", "rent"))
	assert.ErrorIs(t, err, ledger.ErrBooksHalted)

	assert.Error(t, f.engine.Resume(ctx, "ops"))
	assert.NotNil(t, f.engine.Halted())

	_, err = raw.Exec(`UPDATE accounts SET balance = balance - 1 WHERE code = ?`, ledger.CodeCash)
	require.NoError(t, err)
	require.NoError(t, f.engine.Resume(ctx, "ops"))
	assert.Nil(t, f.engine.Halted())

	f.post(t, twoLine(ledger.VoucherPayment, "2024-06-06", 5101, ledger.CodeCash, "100", "rent"))

	audit, err := f.store.Reader().ListAudit(ctx, store.AuditFilter{})
	require.NoError(t, err)
	var actions []string
	for _, a := range audit {
		actions = append(actions, a.Action)
	}
	assert.Contains(t, actions, "books.halt")
	assert.Contains(t, actions, "books.resume")
}

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	k := newKeyedMutex()
	var mu sync.Mutex
	active, peak := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock := k.Lock("account:1001", fmt.Sprintf("other:%d", i), "account:1001")
			mu.Lock()
			active++
			peak = max(peak, active)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, peak)
	assert.Empty(t, k.locks)
}
