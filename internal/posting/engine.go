// Package posting is the only writer of ledger history. It validates
// vouchers, numbers them, materialises ledger rows and applies corrections
// as linked reversing entries.
package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/store"
)

type Engine struct {
	store   *store.Store
	numbers *Numbering
	locks   *keyedMutex
	log     *slog.Logger
	now     func() time.Time
	retry   RetryPolicy

	mu     sync.RWMutex
	halted *ledger.InvariantViolation
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithRetry(p RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

func NewEngine(st *store.Store, opts ...Option) *Engine {
	e := &Engine{store: st, log: slog.Default(), now: time.Now, retry: DefaultRetry}
	for _, o := range opts {
		o(e)
	}
	e.numbers = NewNumbering(st, e.retry, e.log)
	// Posting and stand-alone numbering share series locks.
	e.locks = e.numbers.locks
	return e
}

func (e *Engine) Numbering() *Numbering { return e.numbers }

// Correction is the result of a void or reclassification.
type Correction struct {
	Original    *ledger.JournalEntry `json:"original"`
	Reversal    *ledger.JournalEntry `json:"reversal"`
	Replacement *ledger.JournalEntry `json:"replacement,omitempty"`
}

// Validate checks a request against the current period locks without
// posting it.
func (e *Engine) Validate(ctx context.Context, req ledger.PostingRequest) (*ledger.ValidatedEntry, error) {
	locked, err := e.store.Reader().LockedYears(ctx)
	if err != nil {
		return nil, e.fail(ctx, "journal.validate", err)
	}
	return ledger.NewValidator(locked).Validate(req)
}

// Post validates, numbers and commits a voucher. Either every line lands in
// the ledger or none does.
func (e *Engine) Post(ctx context.Context, req ledger.PostingRequest) (*ledger.JournalEntry, error) {
	if err := e.checkHalted(); err != nil {
		return nil, err
	}
	ve, err := e.Validate(ctx, req)
	if err != nil {
		return nil, err
	}

	keys := []string{counterKey(ve.VoucherType, ve.FinancialYear)}
	for _, l := range ve.Lines {
		keys = append(keys, accountKey(l))
	}
	unlock := e.locks.Lock(keys...)
	defer unlock()

	var posted *ledger.JournalEntry
	err = withRetry(ctx, e.retry, e.log, "journal.post", func() error {
		return e.store.WithTx(ctx, func(tx *store.Tx) error {
			var err error
			if posted, err = e.postInTx(ctx, tx, ve); err != nil {
				return err
			}
			return tx.Audit(ctx, store.AuditEntry{
				Action: "journal.post", Entity: "journal_entry", EntityID: posted.ID,
				Actor: ve.CreatedBy, Detail: posted.VoucherNumber,
			})
		})
	})
	if err != nil {
		return nil, e.fail(ctx, "journal.post", err)
	}

	e.log.Info("journal posted",
		"id", posted.ID,
		"voucher", posted.VoucherNumber,
		"amount", posted.TotalDebit.StringFixed(2),
		"lines", len(posted.Lines))
	return posted, nil
}

// Void reverses a POSTED entry: the original is marked VOID and a new entry
// with every line's sides swapped is posted on the original date. Both sets
// of ledger rows stay in the books, flagged REVERSED.
func (e *Engine) Void(ctx context.Context, id, reason, actor string) (*Correction, error) {
	if err := e.checkHalted(); err != nil {
		return nil, err
	}
	orig, err := e.store.Reader().GetJournal(ctx, id)
	if err != nil {
		return nil, e.fail(ctx, "journal.void", err)
	}

	unlock := e.locks.Lock(entryKeys(orig)...)
	defer unlock()

	var c *Correction
	err = withRetry(ctx, e.retry, e.log, "journal.void", func() error {
		return e.store.WithTx(ctx, func(tx *store.Tx) error {
			var err error
			if c, err = e.voidInTx(ctx, tx, id, reason, actor); err != nil {
				return err
			}
			return tx.Audit(ctx, store.AuditEntry{
				Action: "journal.void", Entity: "journal_entry", EntityID: id,
				Actor: actor, Detail: c.Reversal.VoucherNumber + ": " + reason,
			})
		})
	})
	if err != nil {
		return nil, e.fail(ctx, "journal.void", err)
	}

	e.log.Info("journal voided",
		"id", id,
		"voucher", c.Original.VoucherNumber,
		"reversal", c.Reversal.VoucherNumber)
	return c, nil
}

// Reclassify moves one line of a posted entry to a different account. The
// original is voided and a corrected copy is posted, linked by
// ReclassifiedFrom.
func (e *Engine) Reclassify(ctx context.Context, id string, lineIndex int, target ledger.PostingLine, actor string) (*Correction, error) {
	if err := e.checkHalted(); err != nil {
		return nil, err
	}
	orig, err := e.store.Reader().GetJournal(ctx, id)
	if err != nil {
		return nil, e.fail(ctx, "journal.reclassify", err)
	}
	if lineIndex < 0 || lineIndex >= len(orig.Lines) {
		return nil, &ledger.ValidationError{
			Check:  ledger.CheckLines,
			Reason: fmt.Sprintf("Voucher %s has no line %d", orig.VoucherNumber, lineIndex+1),
			Err:    ledger.ErrInvalidLine,
		}
	}
	if target.AccountCode != 0 && target.AccountCode == orig.Lines[lineIndex].AccountCode {
		return nil, &ledger.ValidationError{
			Check:  ledger.CheckLines,
			Reason: fmt.Sprintf("Line %d already posts to account %d", lineIndex+1, target.AccountCode),
			Err:    ledger.ErrInvalidLine,
		}
	}

	req := ledger.PostingRequest{
		VoucherType:   orig.VoucherType,
		Date:          orig.Date,
		FinancialYear: orig.FinancialYear,
		Narration:     orig.Narration,
		Reference:     orig.Reference,
		PaymentMode:   orig.PaymentMode,
		PartyName:     orig.PartyName,
		CreatedBy:     actor,
	}
	for i, l := range orig.Lines {
		pl := ledger.PostingLine{AccountCode: l.AccountCode, Debit: l.Debit, Credit: l.Credit}
		if i == lineIndex {
			pl.AccountCode = target.AccountCode
			pl.AccountName = target.AccountName
			pl.AccountType = target.AccountType
		}
		req.Lines = append(req.Lines, pl)
	}
	ve, err := e.Validate(ctx, req)
	if err != nil {
		return nil, err
	}
	ve.ReclassifiedFrom = orig.ID

	keys := entryKeys(orig)
	keys = append(keys, accountKey(ve.Lines[lineIndex]))
	unlock := e.locks.Lock(keys...)
	defer unlock()

	var c *Correction
	err = withRetry(ctx, e.retry, e.log, "journal.reclassify", func() error {
		return e.store.WithTx(ctx, func(tx *store.Tx) error {
			var err error
			if c, err = e.voidInTx(ctx, tx, id, "reclassified", actor); err != nil {
				return err
			}
			if c.Replacement, err = e.postInTx(ctx, tx, ve); err != nil {
				return err
			}
			return tx.Audit(ctx, store.AuditEntry{
				Action: "journal.reclassify", Entity: "journal_entry", EntityID: id, Actor: actor,
				Detail: fmt.Sprintf("line %d: %d -> %d (%s)", lineIndex+1, orig.Lines[lineIndex].AccountCode,
					c.Replacement.Lines[lineIndex].AccountCode, c.Replacement.VoucherNumber),
			})
		})
	})
	if err != nil {
		return nil, e.fail(ctx, "journal.reclassify", err)
	}

	e.log.Info("journal reclassified",
		"id", id,
		"reversal", c.Reversal.VoucherNumber,
		"replacement", c.Replacement.VoucherNumber)
	return c, nil
}

// CloseYear locks a financial year. Its POSTED entries become LOCKED and
// the validator rejects further postings dated inside it.
func (e *Engine) CloseYear(ctx context.Context, fy ledger.FinancialYear, actor string) (int64, error) {
	if err := e.checkHalted(); err != nil {
		return 0, err
	}
	if err := e.Verify(ctx); err != nil {
		return 0, err
	}
	var n int64
	err := withRetry(ctx, e.retry, e.log, "year.close", func() error {
		return e.store.WithTx(ctx, func(tx *store.Tx) error {
			var err error
			if n, err = tx.LockYear(ctx, fy, e.now().UTC()); err != nil {
				return err
			}
			return tx.Audit(ctx, store.AuditEntry{
				Action: "year.close", Entity: "financial_year", EntityID: fy.Code(),
				Actor: actor, Detail: strconv.FormatInt(n, 10) + " entries locked",
			})
		})
	})
	if err != nil {
		return 0, e.fail(ctx, "year.close", err)
	}
	e.log.Info("financial year closed", "fy", fy.Code(), "entries", n)
	return n, nil
}

func (e *Engine) postInTx(ctx context.Context, tx *store.Tx, ve *ledger.ValidatedEntry) (*ledger.JournalEntry, error) {
	locked, err := tx.IsYearLocked(ctx, ve.FinancialYear)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, &ledger.ValidationError{
			Check:  ledger.CheckPeriod,
			Reason: fmt.Sprintf("Financial year %s is closed", ve.FinancialYear.Code()),
			Err:    ledger.ErrPeriodLocked,
		}
	}

	entry := &ledger.JournalEntry{
		ID:               uuid.Must(uuid.NewV7()).String(),
		VoucherType:      ve.VoucherType,
		Date:             ve.Date,
		FinancialYear:    ve.FinancialYear,
		Narration:        ve.Narration,
		Reference:        ve.Reference,
		PaymentMode:      ve.PaymentMode,
		PartyName:        ve.PartyName,
		Status:           ledger.StatusPosted,
		TotalDebit:       ve.TotalDebit,
		TotalCredit:      ve.TotalCredit,
		CreatedAt:        e.now().UTC(),
		CreatedBy:        ve.CreatedBy,
		ReversalOf:       ve.ReversalOf,
		ReclassifiedFrom: ve.ReclassifiedFrom,
	}

	for i, pl := range ve.Lines {
		var acct *ledger.Account
		if ve.ReversalOf != "" {
			// Reversals must go through even if the account was deactivated since.
			acct, err = tx.GetAccount(ctx, pl.AccountCode)
		} else {
			acct, err = tx.ResolveAccount(ctx, pl)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		entry.Lines = append(entry.Lines, ledger.JournalLine{
			Index:       i,
			AccountCode: acct.Code,
			AccountName: acct.Name,
			Debit:       pl.Debit,
			Credit:      pl.Credit,
		})
	}

	if entry.VoucherNumber, err = e.numbers.reserve(ctx, tx, ve.VoucherType, ve.FinancialYear); err != nil {
		return nil, err
	}
	if err := tx.InsertJournal(ctx, entry); err != nil {
		return nil, err
	}

	touched := make(map[int]bool)
	for i, l := range entry.Lines {
		le := &ledger.LedgerEntry{
			JournalID:     entry.ID,
			LineIndex:     l.Index,
			AccountCode:   l.AccountCode,
			Date:          entry.Date,
			VoucherNumber: entry.VoucherNumber,
			VoucherType:   entry.VoucherType,
			Particulars:   ledger.Counterparty(entry.Lines, i),
			Debit:         l.Debit,
			Credit:        l.Credit,
		}
		if err := tx.InsertLedgerEntry(ctx, le); err != nil {
			return nil, err
		}
		debit, err := ledger.ToPaise(l.Debit)
		if err != nil {
			return nil, err
		}
		credit, err := ledger.ToPaise(l.Credit)
		if err != nil {
			return nil, err
		}
		if err := tx.AdjustBalance(ctx, l.AccountCode, debit-credit); err != nil {
			return nil, err
		}
		touched[l.AccountCode] = true
	}
	for code := range touched {
		if err := tx.RecomputeRunningBalances(ctx, code, entry.Date); err != nil {
			return nil, err
		}
	}

	if err := checkEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (e *Engine) voidInTx(ctx context.Context, tx *store.Tx, id, reason, actor string) (*Correction, error) {
	orig, err := tx.GetJournal(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case orig.Status == ledger.StatusLocked:
		return nil, fmt.Errorf("%w: %s belongs to closed year %s", ledger.ErrPeriodLocked, orig.VoucherNumber, orig.FinancialYear.Code())
	case orig.Status == ledger.StatusVoid:
		return nil, fmt.Errorf("%w: %s is already void", ledger.ErrInvalidStatus, orig.VoucherNumber)
	case orig.IsReversal():
		return nil, fmt.Errorf("%w: %s is a reversal and cannot be voided", ledger.ErrInvalidStatus, orig.VoucherNumber)
	}
	// A bank match is permanent, so a matched entry can only be corrected
	// by a further journal.
	rows, err := tx.JournalLedgerEntries(ctx, orig.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r.Recon == ledger.ReconReconciled {
			return nil, fmt.Errorf("%w: %s line %d is reconciled with the bank statement; post a correcting journal instead",
				ledger.ErrInvalidStatus, orig.VoucherNumber, r.LineIndex+1)
		}
	}

	narration := "Reversal of " + orig.VoucherNumber
	if reason != "" {
		narration += ": " + reason
	}
	ve := &ledger.ValidatedEntry{
		VoucherType:   orig.VoucherType,
		Date:          orig.Date,
		FinancialYear: orig.FinancialYear,
		Narration:     narration,
		Reference:     orig.Reference,
		PaymentMode:   orig.PaymentMode,
		PartyName:     orig.PartyName,
		CreatedBy:     actor,
		Lines:         ledger.ReversalLines(orig.Lines),
		TotalDebit:    orig.TotalCredit,
		TotalCredit:   orig.TotalDebit,
		ReversalOf:    orig.ID,
	}
	rev, err := e.postInTx(ctx, tx, ve)
	if err != nil {
		return nil, err
	}

	if err := tx.MarkVoid(ctx, orig.ID, rev.ID); err != nil {
		return nil, err
	}
	if err := tx.MarkReversed(ctx, orig.ID); err != nil {
		return nil, err
	}
	if err := tx.MarkReversed(ctx, rev.ID); err != nil {
		return nil, err
	}
	orig.Status = ledger.StatusVoid
	orig.ReversedBy = rev.ID
	return &Correction{Original: orig, Reversal: rev}, nil
}

// checkEntry re-reads the rows just written and confirms they balance and
// match the voucher totals.
func checkEntry(ctx context.Context, tx *store.Tx, entry *ledger.JournalEntry) error {
	rows, err := tx.JournalLedgerEntries(ctx, entry.ID)
	if err != nil {
		return err
	}
	debit, credit := decimal.Zero, decimal.Zero
	for _, r := range rows {
		debit = debit.Add(r.Debit)
		credit = credit.Add(r.Credit)
	}
	switch {
	case len(rows) != len(entry.Lines):
		return &ledger.InvariantViolation{Check: "entry_rows",
			Detail: fmt.Sprintf("%s has %d lines but %d ledger rows", entry.VoucherNumber, len(entry.Lines), len(rows))}
	case !debit.Equal(credit):
		return &ledger.InvariantViolation{Check: "entry_balance",
			Detail: fmt.Sprintf("%s ledger rows debit %s credit %s", entry.VoucherNumber, debit.StringFixed(2), credit.StringFixed(2))}
	case !debit.Equal(entry.TotalDebit):
		return &ledger.InvariantViolation{Check: "entry_totals",
			Detail: fmt.Sprintf("%s ledger rows total %s, voucher says %s", entry.VoucherNumber, debit.StringFixed(2), entry.TotalDebit.StringFixed(2))}
	}
	return nil
}

func accountKey(l ledger.PostingLine) string {
	if l.AccountCode != 0 {
		return "account:" + strconv.Itoa(l.AccountCode)
	}
	return "account:name:" + ledger.NameKey(l.AccountName)
}

func entryKeys(e *ledger.JournalEntry) []string {
	keys := []string{counterKey(e.VoucherType, e.FinancialYear)}
	for _, l := range e.Lines {
		keys = append(keys, "account:"+strconv.Itoa(l.AccountCode))
	}
	return keys
}

// domainErrors pass through to callers unchanged; anything else is an
// internal failure and gets a reference id.
var domainErrors = []error{
	ledger.ErrAccountNotFound,
	ledger.ErrAccountInactive,
	ledger.ErrAccountExists,
	ledger.ErrAccountCodesExhausted,
	ledger.ErrInvalidClassification,
	ledger.ErrInvalidAccountCode,
	ledger.ErrCodeClassMismatch,
	ledger.ErrEmptyAccountName,
	ledger.ErrEntryNotFound,
	ledger.ErrInvalidStatus,
	ledger.ErrPeriodLocked,
	ledger.ErrNumberingConflict,
	ledger.ErrBooksHalted,
	ledger.ErrUnknownVoucherType,
	ledger.ErrAmountOutOfRange,
	context.Canceled,
	context.DeadlineExceeded,
}

func isDomainError(err error) bool {
	var ve *ledger.ValidationError
	if errors.As(err, &ve) {
		return true
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (e *Engine) fail(ctx context.Context, op string, err error) error {
	var iv *ledger.InvariantViolation
	if errors.As(err, &iv) {
		e.halt(ctx, op, iv)
		return iv
	}
	if isDomainError(err) {
		return err
	}

	ref := uuid.NewString()
	e.log.Error("operation failed", "op", op, "ref", ref, "err", err)
	auditErr := e.store.Audit(context.WithoutCancel(ctx), store.AuditEntry{
		Action: op + ".error", Ref: ref, Detail: err.Error(),
	})
	if auditErr != nil {
		e.log.Error("audit write failed", "ref", ref, "err", auditErr)
	}
	return &ledger.InternalError{Ref: ref, Op: op, Err: err}
}
