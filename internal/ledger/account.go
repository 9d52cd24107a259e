package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Classification is the accounting class of an account. The leading digit of
// an account code encodes it.
type Classification string

const (
	Asset     Classification = "asset"
	Liability Classification = "liability"
	Equity    Classification = "equity"
	Income    Classification = "income"
	Expense   Classification = "expense"
)

var AllClassifications = []Classification{
	Asset,
	Liability,
	Equity,
	Income,
	Expense,
}

// Nature is the traditional Golden Rules view of an account.
type Nature string

const (
	NaturePersonal Nature = "personal"
	NatureReal     Nature = "real"
	NatureNominal  Nature = "nominal"
)

// Side is a debit or credit side of the books.
type Side string

const (
	SideDebit  Side = "debit"
	SideCredit Side = "credit"
)

type Account struct {
	Code           int             `json:"code"`
	Name           string          `json:"name"`
	Classification Classification  `json:"classification"`
	Group          string          `json:"group"`
	Nature         Nature          `json:"nature"`
	CashOrBank     bool            `json:"cash_or_bank"`
	Active         bool            `json:"active"`
	Balance        decimal.Decimal `json:"balance"` // cumulative debit minus credit
	CreatedAt      time.Time       `json:"created_at"`
}

// ClassificationForCode derives the classification from a 4-digit code.
func ClassificationForCode(code int) (Classification, error) {
	switch {
	case code >= 1000 && code < 2000:
		return Asset, nil
	case code >= 2000 && code < 3000:
		return Liability, nil
	case code >= 3000 && code < 4000:
		return Equity, nil
	case code >= 4000 && code < 5000:
		return Income, nil
	case code >= 5000 && code < 6000:
		return Expense, nil
	default:
		return "", fmt.Errorf("%w: %d (must be 1000-5999)", ErrInvalidAccountCode, code)
	}
}

// CodeRange returns the valid code range for a classification.
func CodeRange(c Classification) (int, int) {
	switch c {
	case Asset:
		return 1000, 1999
	case Liability:
		return 2000, 2999
	case Equity:
		return 3000, 3999
	case Income:
		return 4000, 4999
	case Expense:
		return 5000, 5999
	default:
		return 0, 0
	}
}

// ClassificationLabel returns a human-readable label for a classification.
func ClassificationLabel(c Classification) string {
	switch c {
	case Asset:
		return "Assets"
	case Liability:
		return "Liabilities"
	case Equity:
		return "Equity"
	case Income:
		return "Income"
	case Expense:
		return "Expenses"
	default:
		return string(c)
	}
}

// ParseClassification accepts the canonical names plus the plural and
// "revenue" spellings that upstream parsers produce.
func ParseClassification(s string) (Classification, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asset", "assets":
		return Asset, nil
	case "liability", "liabilities":
		return Liability, nil
	case "equity", "capital":
		return Equity, nil
	case "income", "revenue", "revenues":
		return Income, nil
	case "expense", "expenses":
		return Expense, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidClassification, s)
	}
}

// NormalBalance returns the side on which the account normally carries its
// balance. Assets and Expenses are debit-normal; the rest are credit-normal.
func NormalBalance(c Classification) Side {
	switch c {
	case Asset, Expense:
		return SideDebit
	default:
		return SideCredit
	}
}

// NormalSide is NormalBalance for the account's classification.
func (a *Account) NormalSide() Side {
	return NormalBalance(a.Classification)
}

// DefaultNature picks the Golden Rules nature for an account created on the fly.
func DefaultNature(c Classification, group string) Nature {
	switch c {
	case Income, Expense:
		return NatureNominal
	case Liability, Equity:
		return NaturePersonal
	}
	g := strings.ToLower(group)
	if strings.Contains(g, "debtor") || strings.Contains(g, "receivable") {
		return NaturePersonal
	}
	return NatureReal
}

// DefaultGroup is the group assigned to lazily created accounts.
func DefaultGroup(c Classification) string {
	switch c {
	case Asset:
		return "Current Assets"
	case Liability:
		return "Current Liabilities"
	case Equity:
		return "Capital Account"
	case Income:
		return "Indirect Incomes"
	default:
		return "Indirect Expenses"
	}
}

// NameKey normalises an account name for lookups: case and inner whitespace
// do not distinguish accounts.
func NameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// ValidClassification checks if a classification is one of the five classes.
func ValidClassification(c Classification) bool {
	for _, v := range AllClassifications {
		if v == c {
			return true
		}
	}
	return false
}

// Validate checks all account invariants.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyAccountName
	}
	if !ValidClassification(a.Classification) {
		return fmt.Errorf("%w: %q", ErrInvalidClassification, a.Classification)
	}
	expected, err := ClassificationForCode(a.Code)
	if err != nil {
		return err
	}
	if a.Classification != expected {
		return fmt.Errorf("%w: code %d should be %s, got %s", ErrCodeClassMismatch, a.Code, expected, a.Classification)
	}
	return nil
}
