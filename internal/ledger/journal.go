package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntryStatus is the lifecycle state of a journal entry.
type EntryStatus string

const (
	StatusPosted EntryStatus = "POSTED"
	StatusVoid   EntryStatus = "VOID"
	StatusLocked EntryStatus = "LOCKED"
)

// RowStatus is the state of a materialised ledger row.
type RowStatus string

const (
	RowActive   RowStatus = "ACTIVE"
	RowReversed RowStatus = "REVERSED"
)

// ReconState tracks whether a ledger row has been matched to a bank line.
type ReconState string

const (
	ReconPending    ReconState = "PENDING"
	ReconReconciled ReconState = "RECONCILED"
)

type JournalLine struct {
	Index       int             `json:"index"`
	AccountCode int             `json:"account_code"`
	AccountName string          `json:"account_name,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// Amount returns the strictly positive side of the line and which side it is.
func (l JournalLine) Amount() (decimal.Decimal, Side) {
	if l.Debit.IsPositive() {
		return l.Debit, SideDebit
	}
	return l.Credit, SideCredit
}

type JournalEntry struct {
	ID               string          `json:"id"`
	VoucherNumber    string          `json:"voucher_number"`
	VoucherType      VoucherType     `json:"voucher_type"`
	Date             time.Time       `json:"date"`
	FinancialYear    FinancialYear   `json:"financial_year"`
	Narration        string          `json:"narration"`
	Reference        string          `json:"reference,omitempty"`
	PaymentMode      string          `json:"payment_mode,omitempty"`
	PartyName        string          `json:"party_name,omitempty"`
	Status           EntryStatus     `json:"status"`
	Lines            []JournalLine   `json:"lines"`
	TotalDebit       decimal.Decimal `json:"total_debit"`
	TotalCredit      decimal.Decimal `json:"total_credit"`
	CreatedAt        time.Time       `json:"created_at"`
	CreatedBy        string          `json:"created_by"`
	ReversalOf       string          `json:"reversal_of,omitempty"`
	ReversedBy       string          `json:"reversed_by,omitempty"`
	ReclassifiedFrom string          `json:"reclassified_from,omitempty"`
}

// IsReversal reports whether the entry was synthesised by a void.
func (e *JournalEntry) IsReversal() bool { return e.ReversalOf != "" }

// Balanced reports whether stored totals agree within Tolerance.
func (e *JournalEntry) Balanced() bool {
	return WithinTolerance(e.TotalDebit, e.TotalCredit)
}

// PostingLine is one line of an incoming request. The account is named
// either by code or by name; AccountType is a classification hint used when
// the name refers to an account that does not exist yet.
type PostingLine struct {
	AccountCode int             `json:"account_code,omitempty"`
	AccountName string          `json:"account_name,omitempty"`
	AccountType Classification  `json:"account_type,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// PostingRequest is the candidate voucher handed to the validator.
// FinancialYear is optional; zero means "derive from Date".
type PostingRequest struct {
	VoucherType   VoucherType   `json:"voucher_type"`
	Date          time.Time     `json:"date"`
	FinancialYear FinancialYear `json:"financial_year,omitempty"`
	Narration     string        `json:"narration"`
	Reference     string        `json:"reference,omitempty"`
	PaymentMode   string        `json:"payment_mode,omitempty"`
	PartyName     string        `json:"party_name,omitempty"`
	CreatedBy     string        `json:"created_by,omitempty"`
	Lines         []PostingLine `json:"lines"`
}

// ValidatedEntry is a normalised request ready for numbering and posting.
// Amounts are rounded to two decimals and debits equal credits exactly.
type ValidatedEntry struct {
	VoucherType   VoucherType     `json:"voucher_type"`
	Date          time.Time       `json:"date"`
	FinancialYear FinancialYear   `json:"financial_year"`
	Narration     string          `json:"narration"`
	Reference     string          `json:"reference,omitempty"`
	PaymentMode   string          `json:"payment_mode,omitempty"`
	PartyName     string          `json:"party_name,omitempty"`
	CreatedBy     string          `json:"created_by,omitempty"`
	Lines         []PostingLine   `json:"lines"`
	TotalDebit    decimal.Decimal `json:"total_debit"`
	TotalCredit   decimal.Decimal `json:"total_credit"`
	// set by the posting engine for corrections
	ReversalOf       string `json:"reversal_of,omitempty"`
	ReclassifiedFrom string `json:"reclassified_from,omitempty"`
}

// Counterparty names the other side of a line for ledger "Particulars":
// a debit row reads "To <credit account>", a credit row "By <debit account>".
// Several opposite accounts collapse to the first one plus a count.
func Counterparty(lines []JournalLine, idx int) string {
	self := lines[idx]
	_, side := self.Amount()
	var names []string
	for i, l := range lines {
		if i == idx {
			continue
		}
		if _, s := l.Amount(); s != side {
			names = append(names, lineLabel(l))
		}
	}
	prefix := "To "
	if side == SideCredit {
		prefix = "By "
	}
	switch len(names) {
	case 0:
		return prefix + lineLabel(self)
	case 1:
		return prefix + names[0]
	default:
		return fmt.Sprintf("%s%s (+%d more)", prefix, names[0], len(names)-1)
	}
}

func lineLabel(l JournalLine) string {
	if l.AccountName != "" {
		return l.AccountName
	}
	return fmt.Sprintf("%d", l.AccountCode)
}

// ReversalLines swaps debit and credit on every line.
func ReversalLines(lines []JournalLine) []PostingLine {
	out := make([]PostingLine, len(lines))
	for i, l := range lines {
		out[i] = PostingLine{
			AccountCode: l.AccountCode,
			AccountName: l.AccountName,
			Debit:       l.Credit,
			Credit:      l.Debit,
		}
	}
	return out
}

// LedgerEntry is one journal line materialised into an account's ledger.
type LedgerEntry struct {
	ID             int64           `json:"id"`
	JournalID      string          `json:"journal_id"`
	LineIndex      int             `json:"line_index"`
	AccountCode    int             `json:"account_code"`
	Date           time.Time       `json:"date"`
	VoucherNumber  string          `json:"voucher_number"`
	VoucherType    VoucherType     `json:"voucher_type"`
	Particulars    string          `json:"particulars"`
	Narration      string          `json:"narration,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	PartyName      string          `json:"party_name,omitempty"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	RunningBalance decimal.Decimal `json:"running_balance"`
	Status         RowStatus       `json:"status"`
	Recon          ReconState      `json:"recon_status"`
}

// Net is debit minus credit.
func (e LedgerEntry) Net() decimal.Decimal { return e.Debit.Sub(e.Credit) }
