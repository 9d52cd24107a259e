package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BankTransaction is one line of an imported bank statement. Amount is
// signed: deposits are positive, withdrawals negative.
type BankTransaction struct {
	ID              string          `json:"id"`
	AccountCode     int             `json:"account_code"`
	Date            time.Time       `json:"date"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	ImportedAt      time.Time       `json:"imported_at"`
}

func (t *BankTransaction) Validate() error {
	switch {
	case strings.TrimSpace(t.ID) == "":
		return &ValidationError{Reason: "bank transaction id is required", Err: ErrInvalidBankTxn}
	case t.Date.IsZero():
		return &ValidationError{Reason: "bank transaction date is required", Err: ErrInvalidBankTxn}
	case t.Amount.IsZero():
		return &ValidationError{Reason: "bank transaction amount cannot be zero", Err: ErrInvalidBankTxn}
	case !InRange(t.Amount):
		return &ValidationError{Reason: "bank transaction amount cannot exceed " + FormatINR(MaxAmount), Err: ErrAmountOutOfRange}
	}
	return nil
}

type MatchType string

const (
	MatchExact     MatchType = "EXACT"
	MatchFuzzy     MatchType = "FUZZY"
	MatchReference MatchType = "REFERENCE"
	MatchPattern   MatchType = "PATTERN"
	MatchManual    MatchType = "MANUAL"
	MatchNone      MatchType = "NONE"
)

type ReconStatus string

const (
	ReconMatched     ReconStatus = "MATCHED"
	ReconNeedsReview ReconStatus = "NEEDS_REVIEW"
)

// ReconciliationRecord is an append-only outcome of reconciling one bank
// transaction. Attempt increases each time a new record is written for the
// same transaction.
type ReconciliationRecord struct {
	ID                   int64           `json:"id"`
	BankTransactionID    string          `json:"bank_transaction_id"`
	Attempt              int             `json:"attempt"`
	MatchedJournalID     string          `json:"matched_journal_id,omitempty"`
	MatchedLedgerEntryID int64           `json:"matched_ledger_entry_id,omitempty"`
	MatchType            MatchType       `json:"match_type"`
	Confidence           float64         `json:"confidence"`
	AmountDifference     decimal.Decimal `json:"amount_difference"`
	Status               ReconStatus     `json:"status"`
	Reason               string          `json:"reason,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Movement is a pending ledger row offered to the matcher, enriched with its
// voucher's descriptive fields. Amount is the signed net (debit - credit).
type Movement struct {
	LedgerEntryID int64
	JournalID     string
	AccountCode   int
	Date          time.Time
	Amount        decimal.Decimal
	VoucherNumber string
	Particulars   string
	Narration     string
	Reference     string
	PartyName     string
}
