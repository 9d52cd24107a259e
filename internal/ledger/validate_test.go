package ledger

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func rentRequest() PostingRequest {
	return PostingRequest{
		VoucherType: VoucherPayment,
		Date:        date("2024-06-05"),
		Narration:   "June rent",
		Lines: []PostingLine{
			{AccountCode: 5101, Debit: d("10000")},
			{AccountCode: CodeCash, Credit: d("10000")},
		},
	}
}

func checkOf(t *testing.T, err error) int {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
	return ve.Check
}

func TestValidateAcceptsRent(t *testing.T) {
	v := NewValidator(nil)
	got, err := v.Validate(rentRequest())
	require.NoError(t, err)
	assert.Equal(t, FinancialYear(2024), got.FinancialYear)
	assert.True(t, got.TotalDebit.Equal(d("10000")))
	assert.True(t, got.TotalCredit.Equal(d("10000")))
	assert.Len(t, got.Lines, 2)
}

func TestValidateCheckOrder(t *testing.T) {
	v := NewValidator(nil)

	// Everything is wrong: the voucher type check must win.
	req := PostingRequest{Lines: []PostingLine{{AccountCode: 5101, Debit: d("1")}}}
	assert.Equal(t, CheckVoucherType, checkOf(t, mustFail(v, req)))

	req.VoucherType = VoucherJournal
	assert.Equal(t, CheckNarration, checkOf(t, mustFail(v, req)))

	req.Narration = "adjustment"
	assert.Equal(t, CheckLineCount, checkOf(t, mustFail(v, req)))

	req.Lines = append(req.Lines, PostingLine{AccountCode: 1001, Debit: d("1"), Credit: d("1")})
	assert.Equal(t, CheckLines, checkOf(t, mustFail(v, req)))

	req.Lines[1] = PostingLine{AccountCode: 1001, Credit: d("2")}
	err := mustFail(v, req)
	assert.Equal(t, CheckBalance, checkOf(t, err))
	assert.ErrorIs(t, err, ErrUnbalanced)
	assert.Equal(t, "Debits (₹1.00) must equal Credits (₹2.00)", err.Error())

	req.Lines[1].Credit = d("1")
	err = mustFail(v, req)
	assert.Equal(t, CheckPeriod, checkOf(t, err))
}

func mustFail(v *Validator, req PostingRequest) error {
	_, err := v.Validate(req)
	if err == nil {
		panic("expected validation failure")
	}
	return err
}

func TestValidateLineRules(t *testing.T) {
	v := NewValidator(nil)
	cases := map[string]PostingLine{
		"negative":     {AccountCode: 5101, Debit: d("-5")},
		"both sides":   {AccountCode: 5101, Debit: d("5"), Credit: d("5")},
		"neither side": {AccountCode: 5101},
		"bad code":     {AccountCode: 7001, Debit: d("5")},
		"no account":   {Debit: d("5")},
		"bad type":     {AccountName: "Misc", AccountType: "stuff", Debit: d("5")},
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			req := rentRequest()
			req.Lines[0] = line
			err := mustFail(v, req)
			assert.ErrorIs(t, err, ErrInvalidLine)
			assert.Contains(t, err.Error(), "Line 1")
		})
	}
}

func TestValidateSideRulesUseEnteredAmounts(t *testing.T) {
	v := NewValidator(nil)

	req := rentRequest()
	req.Lines[0] = PostingLine{AccountCode: 5101, Debit: d("0.001"), Credit: d("10000")}
	req.Lines[1] = PostingLine{AccountCode: CodeCash, Debit: d("10000")}
	err := mustFail(v, req)
	assert.ErrorIs(t, err, ErrInvalidLine)
	assert.Equal(t, CheckLines, checkOf(t, err))

	req = rentRequest()
	req.Lines[0].Debit = d("0.004")
	err = mustFail(v, req)
	assert.ErrorIs(t, err, ErrInvalidLine)
	assert.Contains(t, err.Error(), "rounds to zero")
}

func TestValidateRejectsOversizedAmounts(t *testing.T) {
	v := NewValidator(nil)

	req := rentRequest()
	req.Lines[0].Debit = d("184467440737095516.17")
	req.Lines[1].Credit = d("184467440737095516.17")
	err := mustFail(v, req)
	assert.Equal(t, CheckLines, checkOf(t, err))
	assert.ErrorIs(t, err, ErrAmountOutOfRange)
	assert.Contains(t, err.Error(), "Line 1")

	// Each line fits but the voucher total does not.
	half := MaxAmount.Div(d("2")).Add(d("1"))
	req = rentRequest()
	req.Lines = []PostingLine{
		{AccountCode: 5101, Debit: half},
		{AccountCode: 5102, Debit: half},
		{AccountCode: CodeCash, Credit: MaxAmount},
		{AccountCode: CodeBank, Credit: d("2")},
	}
	err = mustFail(v, req)
	assert.ErrorIs(t, err, ErrAmountOutOfRange)
	assert.Contains(t, err.Error(), "Line 2")

	req = rentRequest()
	req.Lines[0].Debit = MaxAmount
	req.Lines[1].Credit = MaxAmount
	_, err = v.Validate(req)
	assert.NoError(t, err)
}

func TestValidateRoundsAndAddsRoundOff(t *testing.T) {
	v := NewValidator(nil)
	req := rentRequest()
	req.Lines[0].Debit = d("100.004")
	req.Lines[1].Credit = d("99.99")

	got, err := v.Validate(req)
	require.NoError(t, err)
	require.Len(t, got.Lines, 3)
	assert.True(t, got.Lines[0].Debit.Equal(d("100")))
	ro := got.Lines[2]
	assert.Equal(t, CodeRoundOff, ro.AccountCode)
	assert.True(t, ro.Credit.Equal(d("0.01")))
	assert.True(t, got.TotalDebit.Equal(got.TotalCredit))
}

func TestValidatePeriod(t *testing.T) {
	req := rentRequest()
	req.FinancialYear = 2023
	err := mustFail(NewValidator(nil), req)
	assert.ErrorIs(t, err, ErrDateOutOfPeriod)

	req.FinancialYear = 0
	err = mustFail(NewValidator(LockedYears{2024: true}), req)
	assert.ErrorIs(t, err, ErrPeriodLocked)

	req.Date = date("2025-03-31")
	got, err := NewValidator(LockedYears{2025: true}).Validate(req)
	require.NoError(t, err)
	assert.Equal(t, FinancialYear(2024), got.FinancialYear)
}

func TestValidateAcceptsAccountNames(t *testing.T) {
	req := rentRequest()
	req.Lines[0] = PostingLine{AccountName: "  Shop Rent ", AccountType: Expense, Debit: d("10000")}
	got, err := NewValidator(nil).Validate(req)
	require.NoError(t, err)
	assert.Equal(t, "Shop Rent", got.Lines[0].AccountName)
}

// Random balanced line sets are always accepted; perturbing one line by
// more than the tolerance is always rejected.
func TestValidateBalanceProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	v := NewValidator(nil)
	codes := []int{1001, 1002, 1101, 2001, 3001, 4001, 5101, 5102}

	for i := 0; i < 500; i++ {
		nDebit := 1 + rng.Intn(4)
		nCredit := 1 + rng.Intn(4)
		var lines []PostingLine
		total := int64(0)
		for j := 0; j < nDebit; j++ {
			p := 1 + rng.Int63n(10_000_000)
			total += p
			lines = append(lines, PostingLine{AccountCode: codes[rng.Intn(len(codes))], Debit: FromPaise(p)})
		}
		remaining := total
		for j := 0; j < nCredit; j++ {
			p := remaining
			if j < nCredit-1 && remaining > int64(nCredit-j) {
				p = 1 + rng.Int63n(remaining-int64(nCredit-j))
			}
			if p <= 0 {
				break
			}
			remaining -= p
			lines = append(lines, PostingLine{AccountCode: codes[rng.Intn(len(codes))], Credit: FromPaise(p)})
			if remaining == 0 {
				break
			}
		}
		if len(lines) < 2 {
			continue
		}
		req := PostingRequest{VoucherType: VoucherJournal, Date: date("2024-09-01"), Narration: "generated", Lines: lines}

		got, err := v.Validate(req)
		require.NoError(t, err, "iteration %d", i)
		assert.True(t, got.TotalDebit.Equal(got.TotalCredit))

		skew := FromPaise(2 + rng.Int63n(100_000))
		bad := append([]PostingLine(nil), lines...)
		bad[0].Debit = bad[0].Debit.Add(skew)
		_, err = v.Validate(PostingRequest{VoucherType: VoucherJournal, Date: req.Date, Narration: "generated", Lines: bad})
		assert.ErrorIs(t, err, ErrUnbalanced, "iteration %d", i)
	}
}
