package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation checks, in the order they run.
const (
	CheckVoucherType = iota + 1
	CheckNarration
	CheckLineCount
	CheckLines
	CheckBalance
	CheckPeriod
)

// PeriodLocks answers whether a financial year has been closed.
type PeriodLocks interface {
	IsLocked(fy FinancialYear) bool
}

// Validator enforces double-entry rules on a candidate voucher. It has no
// side effects and is safe for concurrent use.
type Validator struct {
	locks PeriodLocks
}

// NewValidator returns a validator; locks may be nil when no year is closed.
func NewValidator(locks PeriodLocks) *Validator {
	return &Validator{locks: locks}
}

func fail(check int, err error, format string, args ...any) *ValidationError {
	return &ValidationError{Check: check, Reason: fmt.Sprintf(format, args...), Err: err}
}

// Validate runs the checks in order and stops at the first failure. On
// success the returned entry carries rounded amounts, its financial year and,
// when rounding left a residue within Tolerance, a Round Off line that makes
// debits equal credits exactly.
func (v *Validator) Validate(req PostingRequest) (*ValidatedEntry, error) {
	if !req.VoucherType.Valid() {
		if req.VoucherType == 0 {
			return nil, fail(CheckVoucherType, ErrUnknownVoucherType, "Voucher type is required")
		}
		return nil, fail(CheckVoucherType, ErrUnknownVoucherType, "Unknown voucher type %d", uint8(req.VoucherType))
	}

	narration := strings.TrimSpace(req.Narration)
	if narration == "" {
		return nil, fail(CheckNarration, ErrEmptyNarration, "Narration is required: describe what this %s voucher records", req.VoucherType)
	}

	if len(req.Lines) < 2 {
		return nil, fail(CheckLineCount, ErrTooFewLines, "A voucher needs at least 2 lines, got %d", len(req.Lines))
	}

	lines := make([]PostingLine, 0, len(req.Lines)+1)
	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	for i, l := range req.Lines {
		n := i + 1
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return nil, fail(CheckLines, ErrInvalidLine, "Line %d: amounts cannot be negative", n)
		}
		// One side strictly positive, the other exactly zero, as entered.
		switch {
		case l.Debit.IsPositive() && l.Credit.IsPositive():
			return nil, fail(CheckLines, ErrInvalidLine, "Line %d: enter either a debit or a credit, not both", n)
		case !l.Debit.IsPositive() && !l.Credit.IsPositive():
			return nil, fail(CheckLines, ErrInvalidLine, "Line %d: enter a debit or a credit amount", n)
		}
		if !InRange(l.Debit) || !InRange(l.Credit) {
			return nil, fail(CheckLines, ErrAmountOutOfRange, "Line %d: amount cannot exceed %s", n, FormatINR(MaxAmount))
		}
		d, c := Round(l.Debit), Round(l.Credit)
		if d.IsZero() && c.IsZero() {
			return nil, fail(CheckLines, ErrInvalidLine, "Line %d: amount rounds to zero; enter at least 0.01", n)
		}
		name := strings.TrimSpace(l.AccountName)
		if l.AccountCode != 0 {
			if _, err := ClassificationForCode(l.AccountCode); err != nil {
				return nil, fail(CheckLines, ErrInvalidLine, "Line %d: account code %d is outside 1000-5999", n, l.AccountCode)
			}
		} else if name == "" {
			return nil, fail(CheckLines, ErrInvalidLine, "Line %d: account is required", n)
		}
		if l.AccountType != "" && !ValidClassification(l.AccountType) {
			return nil, fail(CheckLines, ErrInvalidLine, "Line %d: unknown account type %q", n, l.AccountType)
		}
		lines = append(lines, PostingLine{
			AccountCode: l.AccountCode,
			AccountName: name,
			AccountType: l.AccountType,
			Debit:       d,
			Credit:      c,
		})
		totalDebit = totalDebit.Add(d)
		totalCredit = totalCredit.Add(c)
		if !InRange(totalDebit) || !InRange(totalCredit) {
			return nil, fail(CheckLines, ErrAmountOutOfRange, "Line %d: voucher total cannot exceed %s", n, FormatINR(MaxAmount))
		}
	}

	if !WithinTolerance(totalDebit, totalCredit) {
		return nil, fail(CheckBalance, ErrUnbalanced, "Debits (%s) must equal Credits (%s)", FormatINR(totalDebit), FormatINR(totalCredit))
	}
	if residue := totalDebit.Sub(totalCredit); !residue.IsZero() {
		ro := PostingLine{AccountCode: CodeRoundOff, AccountName: "Round Off", AccountType: Expense}
		if residue.IsPositive() {
			ro.Credit = residue
			totalCredit = totalCredit.Add(residue)
		} else {
			ro.Debit = residue.Neg()
			totalDebit = totalDebit.Add(ro.Debit)
		}
		lines = append(lines, ro)
	}

	if req.Date.IsZero() {
		return nil, fail(CheckPeriod, ErrInvalidDate, "Voucher date is required")
	}
	date := Day(req.Date)
	fy := req.FinancialYear
	if fy == 0 {
		fy = FinancialYearOf(date)
	}
	if !fy.Contains(date) {
		return nil, fail(CheckPeriod, ErrDateOutOfPeriod, "Date %s is outside financial year %s (%s to %s)",
			date.Format(DateLayout), fy.Code(), fy.Start().Format(DateLayout), fy.End().Format(DateLayout))
	}
	if v.locks != nil && v.locks.IsLocked(fy) {
		return nil, fail(CheckPeriod, ErrPeriodLocked, "Financial year %s is closed; post an adjustment in an open year", fy.Code())
	}

	return &ValidatedEntry{
		VoucherType:   req.VoucherType,
		Date:          date,
		FinancialYear: fy,
		Narration:     narration,
		Reference:     strings.TrimSpace(req.Reference),
		PaymentMode:   strings.TrimSpace(req.PaymentMode),
		PartyName:     strings.TrimSpace(req.PartyName),
		CreatedBy:     req.CreatedBy,
		Lines:         lines,
		TotalDebit:    totalDebit,
		TotalCredit:   totalCredit,
	}, nil
}

