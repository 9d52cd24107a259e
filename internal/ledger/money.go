package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Tolerance absorbs two-decimal rounding when comparing debit and credit
// totals. It is absolute regardless of magnitude.
var Tolerance = decimal.New(1, -2)

// MaxAmount is the largest amount a single line, voucher total or bank
// transaction may carry. It keeps paise and summed balances well inside
// int64.
var MaxAmount = decimal.New(1, 11)

var inrPrinter = message.NewPrinter(language.MustParse("en-IN"))

// Round rounds an amount to two decimal places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ToPaise converts an amount to integer minor units (1/100 rupee). Amounts
// whose magnitude exceeds MaxAmount are refused.
func ToPaise(d decimal.Decimal) (int64, error) {
	if d.Abs().GreaterThan(MaxAmount) {
		return 0, fmt.Errorf("%w: %s", ErrAmountOutOfRange, d.String())
	}
	return d.Round(2).Shift(2).IntPart(), nil
}

// InRange reports whether d's magnitude is at most MaxAmount.
func InRange(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(MaxAmount)
}

// FromPaise converts minor units back to a two-decimal amount.
func FromPaise(p int64) decimal.Decimal {
	return decimal.New(p, -2)
}

// WithinTolerance reports whether a and b differ by at most Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// FormatINR renders an amount with the rupee sign and Indian digit grouping,
// e.g. ₹1,00,000.00.
func FormatINR(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	f, _ := d.Round(2).Float64()
	return sign + "₹" + inrPrinter.Sprint(number.Decimal(f, number.Scale(2)))
}

// FormatAmount renders a plain two-decimal amount, blank for zero. Used by
// columnar reports.
func FormatAmount(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.StringFixed(2)
}
