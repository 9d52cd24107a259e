package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/store"
)

// Engine reconciles bank transactions against pending ledger rows. Candidate
// lookup runs on read snapshots; only the claim of a ledger row and the
// record that goes with it are written, in one short transaction.
type Engine struct {
	store *store.Store
	cfg   Config
	log   *slog.Logger
	now   func() time.Time
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

func NewEngine(st *store.Store, cfg Config, opts ...Option) *Engine {
	e := &Engine{store: st, cfg: cfg, log: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// errClaimLost means another reconciliation marked the chosen ledger row
// first; the caller retries without it.
var errClaimLost = errors.New("ledger movement already claimed")

// Import stores statement lines without matching them and reports how many
// were new.
func (e *Engine) Import(ctx context.Context, txns []ledger.BankTransaction) (int, error) {
	for i := range txns {
		if err := e.prepare(&txns[i]); err != nil {
			return 0, err
		}
	}
	inserted := 0
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		for i := range txns {
			ok, err := tx.InsertBankTransaction(ctx, &txns[i])
			if err != nil {
				return err
			}
			if ok {
				inserted++
			}
		}
		if inserted > 0 {
			return tx.Audit(ctx, store.AuditEntry{
				Action: "recon.import", Entity: "bank_transaction", Detail: fmt.Sprintf("%d of %d new", inserted, len(txns)),
			})
		}
		return nil
	})
	if err != nil {
		return 0, e.fail(ctx, "recon.import", err)
	}
	e.log.Info("bank statement imported", "lines", len(txns), "new", inserted)
	return inserted, nil
}

func (e *Engine) prepare(txn *ledger.BankTransaction) error {
	if txn.AccountCode == 0 {
		txn.AccountCode = e.cfg.BankAccount
	}
	txn.Amount = ledger.Round(txn.Amount)
	txn.Date = ledger.Day(txn.Date)
	return txn.Validate()
}

// Reconcile stores txn if it is new and links it to a pending ledger row.
// A transaction that is already MATCHED returns its existing record
// unchanged, and one still without a match keeps its NEEDS_REVIEW record
// instead of gaining a duplicate.
func (e *Engine) Reconcile(ctx context.Context, txn ledger.BankTransaction) (*ledger.ReconciliationRecord, error) {
	if err := e.prepare(&txn); err != nil {
		return nil, err
	}

	var stored *ledger.BankTransaction
	var latest *ledger.ReconciliationRecord
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.InsertBankTransaction(ctx, &txn); err != nil {
			return err
		}
		var err error
		if stored, err = tx.GetBankTransaction(ctx, txn.ID); err != nil {
			return err
		}
		latest, err = tx.LatestReconciliation(ctx, txn.ID)
		return err
	})
	if err != nil {
		return nil, e.fail(ctx, "recon.reconcile", err)
	}
	if latest != nil && latest.Status == ledger.ReconMatched {
		return latest, nil
	}
	return e.reconcileStored(ctx, *stored)
}

func (e *Engine) reconcileStored(ctx context.Context, txn ledger.BankTransaction) (*ledger.ReconciliationRecord, error) {
	exclude := map[int64]bool{}
	for {
		candidates, err := e.candidates(ctx, txn, exclude)
		if err != nil {
			return nil, e.fail(ctx, "recon.reconcile", err)
		}
		res := Match(txn, candidates, e.cfg)

		rec, err := e.commit(ctx, txn, res, "reconciler")
		if errors.Is(err, errClaimLost) {
			e.log.Debug("candidate claimed elsewhere, retrying", "bank_txn", txn.ID, "ledger_entry", res.Movement.LedgerEntryID)
			exclude[res.Movement.LedgerEntryID] = true
			continue
		}
		if err != nil {
			return nil, e.fail(ctx, "recon.reconcile", err)
		}
		return rec, nil
	}
}

func (e *Engine) candidates(ctx context.Context, txn ledger.BankTransaction, exclude map[int64]bool) ([]ledger.Movement, error) {
	window := time.Duration(e.cfg.CandidateWindow()) * 24 * time.Hour
	var out []ledger.Movement
	err := e.store.View(ctx, func(r *store.Reader) error {
		byDate, err := r.PendingMovements(ctx, txn.AccountCode, txn.Date.Add(-window), txn.Date.Add(window))
		if err != nil {
			return err
		}
		byRef, err := r.PendingByReference(ctx, txn.AccountCode, txn.ReferenceNumber)
		if err != nil {
			return err
		}
		out = mergeCandidates(exclude, byDate, byRef)
		return nil
	})
	return out, err
}

// commit writes the outcome of one match. The latest record is re-read
// inside the transaction so that two workers reconciling the same bank
// transaction cannot both record it.
func (e *Engine) commit(ctx context.Context, txn ledger.BankTransaction, res Result, actor string) (*ledger.ReconciliationRecord, error) {
	var out *ledger.ReconciliationRecord
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		latest, err := tx.LatestReconciliation(ctx, txn.ID)
		if err != nil {
			return err
		}
		if latest != nil && latest.Status == ledger.ReconMatched {
			out = latest
			return nil
		}

		if !res.Matched() {
			if latest != nil {
				out = latest
				return nil
			}
			rec := &ledger.ReconciliationRecord{
				BankTransactionID: txn.ID,
				MatchType:         ledger.MatchNone,
				AmountDifference:  txn.Amount,
				Status:            ledger.ReconNeedsReview,
				Reason:            res.Reason,
				CreatedAt:         e.now().UTC(),
			}
			if err := tx.AppendReconciliation(ctx, rec); err != nil {
				return err
			}
			out = rec
			return tx.Audit(ctx, store.AuditEntry{
				Action: "recon.review", Entity: "bank_transaction", EntityID: txn.ID, Actor: actor, Detail: res.Reason,
			})
		}

		claimed, err := tx.ClaimMovement(ctx, res.Movement.LedgerEntryID)
		if err != nil {
			return err
		}
		if !claimed {
			return errClaimLost
		}
		rec := &ledger.ReconciliationRecord{
			BankTransactionID:    txn.ID,
			MatchedJournalID:     res.Movement.JournalID,
			MatchedLedgerEntryID: res.Movement.LedgerEntryID,
			MatchType:            res.Type,
			Confidence:           res.Confidence,
			AmountDifference:     res.Difference,
			Status:               ledger.ReconMatched,
			Reason:               res.Reason,
			CreatedAt:            e.now().UTC(),
		}
		if err := tx.AppendReconciliation(ctx, rec); err != nil {
			return err
		}
		out = rec
		return tx.Audit(ctx, store.AuditEntry{
			Action: "recon.match", Entity: "bank_transaction", EntityID: txn.ID, Actor: actor,
			Detail: fmt.Sprintf("%s %s confidence %.2f", res.Type, res.Movement.VoucherNumber, res.Confidence),
		})
	})
	if err != nil {
		return nil, err
	}
	if out.Status == ledger.ReconMatched {
		e.log.Info("bank transaction matched",
			"bank_txn", txn.ID,
			"type", out.MatchType,
			"confidence", out.Confidence,
			"journal", out.MatchedJournalID)
	} else {
		e.log.Info("bank transaction needs review", "bank_txn", txn.ID, "reason", out.Reason)
	}
	return out, nil
}

// ReconcileStatement reconciles each line independently on a bounded pool
// of workers. Records come back in input order.
func (e *Engine) ReconcileStatement(ctx context.Context, txns []ledger.BankTransaction) ([]ledger.ReconciliationRecord, error) {
	out := make([]ledger.ReconciliationRecord, len(txns))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.cfg.Workers, 1))
	for i := range txns {
		g.Go(func() error {
			rec, err := e.Reconcile(ctx, txns[i])
			if err != nil {
				return fmt.Errorf("line %d (%s): %w", i+1, txns[i].ID, err)
			}
			out[i] = *rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReconcilePending re-runs matching for every stored transaction on the
// account that has no MATCHED record yet.
func (e *Engine) ReconcilePending(ctx context.Context, accountCode int) ([]ledger.ReconciliationRecord, error) {
	if accountCode == 0 {
		accountCode = e.cfg.BankAccount
	}
	txns, err := e.store.Reader().ListBankTransactions(ctx, store.BankTxnFilter{AccountCode: accountCode, Unmatched: true})
	if err != nil {
		return nil, e.fail(ctx, "recon.pending", err)
	}
	return e.ReconcileStatement(ctx, txns)
}

// MatchManually links a bank transaction to a ledger row chosen by a person,
// typically one the matchers left in NEEDS_REVIEW.
func (e *Engine) MatchManually(ctx context.Context, bankTxnID string, ledgerEntryID int64, actor string) (*ledger.ReconciliationRecord, error) {
	var out *ledger.ReconciliationRecord
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		bt, err := tx.GetBankTransaction(ctx, bankTxnID)
		if err != nil {
			return err
		}
		latest, err := tx.LatestReconciliation(ctx, bankTxnID)
		if err != nil {
			return err
		}
		if latest != nil && latest.Status == ledger.ReconMatched {
			return fmt.Errorf("%w: bank transaction %s is matched to %s", ledger.ErrAlreadyMatched, bankTxnID, latest.MatchedJournalID)
		}
		le, err := tx.GetLedgerEntry(ctx, ledgerEntryID)
		if err != nil {
			return err
		}
		if le.AccountCode != bt.AccountCode {
			return &ledger.ValidationError{
				Reason: fmt.Sprintf("ledger entry %d is on account %d, bank transaction is on %d", le.ID, le.AccountCode, bt.AccountCode),
				Err:    ledger.ErrInvalidBankTxn,
			}
		}
		claimed, err := tx.ClaimMovement(ctx, ledgerEntryID)
		if err != nil {
			return err
		}
		if !claimed {
			return fmt.Errorf("%w: ledger entry %d", ledger.ErrAlreadyMatched, ledgerEntryID)
		}
		rec := &ledger.ReconciliationRecord{
			BankTransactionID:    bankTxnID,
			MatchedJournalID:     le.JournalID,
			MatchedLedgerEntryID: le.ID,
			MatchType:            ledger.MatchManual,
			Confidence:           1.0,
			AmountDifference:     bt.Amount.Sub(le.Net()),
			Status:               ledger.ReconMatched,
			Reason:               "matched by " + actor,
			CreatedAt:            e.now().UTC(),
		}
		if err := tx.AppendReconciliation(ctx, rec); err != nil {
			return err
		}
		out = rec
		return tx.Audit(ctx, store.AuditEntry{
			Action: "recon.manual", Entity: "bank_transaction", EntityID: bankTxnID, Actor: actor, Detail: le.VoucherNumber,
		})
	})
	if err != nil {
		return nil, e.fail(ctx, "recon.manual", err)
	}
	e.log.Info("bank transaction matched manually", "bank_txn", bankTxnID, "journal", out.MatchedJournalID, "actor", actor)
	return out, nil
}

// Summary counts a batch of records by outcome.
type Summary struct {
	Total       int                      `json:"total"`
	Matched     int                      `json:"matched"`
	NeedsReview int                      `json:"needs_review"`
	ByType      map[ledger.MatchType]int `json:"by_type"`
}

func Summarize(records []ledger.ReconciliationRecord) Summary {
	s := Summary{Total: len(records), ByType: map[ledger.MatchType]int{}}
	for _, r := range records {
		if r.Status == ledger.ReconMatched {
			s.Matched++
		} else {
			s.NeedsReview++
		}
		s.ByType[r.MatchType]++
	}
	return s
}

var domainErrors = []error{
	ledger.ErrInvalidBankTxn,
	ledger.ErrBankTxnNotFound,
	ledger.ErrMovementNotFound,
	ledger.ErrAlreadyMatched,
	ledger.ErrAmountOutOfRange,
	context.Canceled,
	context.DeadlineExceeded,
}

func (e *Engine) fail(ctx context.Context, op string, err error) error {
	var ve *ledger.ValidationError
	if errors.As(err, &ve) {
		return err
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}

	ref := uuid.NewString()
	e.log.Error("operation failed", "op", op, "ref", ref, "err", err)
	if auditErr := e.store.Audit(context.WithoutCancel(ctx), store.AuditEntry{
		Action: op + ".error", Ref: ref, Detail: err.Error(),
	}); auditErr != nil {
		e.log.Error("audit write failed", "ref", ref, "err", auditErr)
	}
	return &ledger.InternalError{Ref: ref, Op: op, Err: err}
}
