package recon

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonvc/khata/internal/ledger"
)

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) time.Time {
	t, err := ledger.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func movement(id int64, amount, date, narration string) ledger.Movement {
	return ledger.Movement{
		LedgerEntryID: id,
		JournalID:     "j" + amount,
		AccountCode:   ledger.CodeBank,
		Date:          day(date),
		Amount:        amt(amount),
		VoucherNumber: "REC-2024-25-0001",
		Narration:     narration,
	}
}

func bankTxn(amount, date, desc string) ledger.BankTransaction {
	return ledger.BankTransaction{ID: "b1", AccountCode: ledger.CodeBank, Date: day(date), Amount: amt(amount), Description: desc}
}

func TestMatchExact(t *testing.T) {
	res := Match(bankTxn("5000", "2024-06-05", "NEFT"), []ledger.Movement{
		movement(1, "5000", "2024-06-04", ""),
		movement(2, "5000", "2024-06-05", ""),
	}, DefaultConfig())
	require.True(t, res.Matched())
	assert.Equal(t, ledger.MatchExact, res.Type)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, int64(2), res.Movement.LedgerEntryID)
	assert.True(t, res.Difference.IsZero())
}

func TestMatchFuzzy(t *testing.T) {
	txn := bankTxn("5050", "2024-06-05", "ABC Traders payment")
	res := Match(txn, []ledger.Movement{movement(1, "5000", "2024-06-06", "Payment to ABC Traders")}, DefaultConfig())
	require.True(t, res.Matched())
	assert.Equal(t, ledger.MatchFuzzy, res.Type)
	assert.InDelta(t, 1-50.0/5050.0, res.Confidence, 1e-9)
	assert.True(t, res.Difference.Equal(amt("50")))
}

func TestMatchFuzzyPicksSmallestDifferenceThenNearestDate(t *testing.T) {
	txn := bankTxn("1000", "2024-06-10", "")
	res := Match(txn, []ledger.Movement{
		movement(1, "995", "2024-06-10", ""),
		movement(2, "1002", "2024-06-12", ""),
		movement(3, "998", "2024-06-11", ""),
		movement(4, "1002", "2024-06-10", ""),
	}, DefaultConfig())
	require.True(t, res.Matched())
	assert.Equal(t, int64(4), res.Movement.LedgerEntryID)
}

func TestMatchFuzzyBelowConfidenceFallsThrough(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FuzzyMinConfidence = 0.995
	txn := bankTxn("5050", "2024-06-05", "ABC Traders payment")
	candidates := []ledger.Movement{movement(1, "5000", "2024-06-06", "Payment to ABC Traders")}

	res := Match(txn, candidates, cfg)
	require.True(t, res.Matched())
	assert.Equal(t, ledger.MatchPattern, res.Type)
	assert.Greater(t, res.Confidence, cfg.PatternMinScore)

	txn.Description = "cash deposit"
	res = Match(txn, candidates, cfg)
	assert.False(t, res.Matched())
	assert.Equal(t, ledger.MatchNone, res.Type)
}

func TestMatchReference(t *testing.T) {
	txn := bankTxn("7000", "2024-07-01", "CHQ DEP")
	txn.ReferenceNumber = "CHQ-1234"
	m := movement(9, "5000", "2024-06-01", "")
	m.Reference = " chq-1234"
	res := Match(txn, []ledger.Movement{m}, DefaultConfig())
	require.True(t, res.Matched())
	assert.Equal(t, ledger.MatchReference, res.Type)
	assert.Equal(t, 0.95, res.Confidence)
	assert.True(t, res.Difference.Equal(amt("2000")))
}

func TestMatchPattern(t *testing.T) {
	txn := bankTxn("5300", "2024-06-05", "ABC Traders payment")
	res := Match(txn, []ledger.Movement{
		movement(1, "5000", "2024-06-07", "Payment to ABC Traders"),
		movement(2, "5300", "2024-06-20", "ABC Traders payment"),
	}, DefaultConfig())
	require.True(t, res.Matched())
	assert.Equal(t, ledger.MatchPattern, res.Type)
	assert.Equal(t, int64(1), res.Movement.LedgerEntryID)
	assert.InDelta(t, 0.6+0.4*(1-300.0/5300.0), res.Confidence, 1e-9)
}

func TestMatchNone(t *testing.T) {
	res := Match(bankTxn("-5000", "2024-06-05", ""), []ledger.Movement{movement(1, "5000", "2024-06-05", "")}, DefaultConfig())
	assert.False(t, res.Matched())
	assert.Equal(t, ledger.MatchNone, res.Type)
	assert.NotEmpty(t, res.Reason)

	res = Match(bankTxn("9999", "2024-06-05", "misc"), []ledger.Movement{movement(1, "5000", "2024-06-05", "rent")}, DefaultConfig())
	assert.False(t, res.Matched())

	res = Match(bankTxn("100", "2024-06-05", ""), nil, DefaultConfig())
	assert.False(t, res.Matched())
}

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"neft", "payment", "abc", "traders", "pvt", "ltd", "4411"},
		Keywords("NEFT/Payment to ABC Traders Pvt. Ltd. - ABC 4411"))
	assert.Empty(t, Keywords("to the a"))
}

func TestParseStatement(t *testing.T) {
	in := strings.Join([]string{
		"Date,Amount,Description,Reference",
		"2024-06-05,\"5,000.00\",NEFT ABC Traders,UTR991",
		"",
		"2024-06-06,-1250.5,Rent June",
	}, "\n")
	txns, err := ParseStatement(strings.NewReader(in), ledger.CodeBank)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.True(t, txns[0].Amount.Equal(amt("5000")))
	assert.Equal(t, "UTR991", txns[0].ReferenceNumber)
	assert.Equal(t, "NEFT ABC Traders", txns[0].Description)
	assert.True(t, txns[1].Amount.Equal(amt("-1250.50")))
	assert.Empty(t, txns[1].ReferenceNumber)
	assert.NotEqual(t, txns[0].ID, txns[1].ID)

	again, err := ParseStatement(strings.NewReader(in), ledger.CodeBank)
	require.NoError(t, err)
	assert.Equal(t, txns[0].ID, again[0].ID)

	_, err = ParseStatement(strings.NewReader("2024-06-05,abc,oops\n"), ledger.CodeBank)
	assert.ErrorIs(t, err, ledger.ErrInvalidBankTxn)
}
