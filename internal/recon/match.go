// Package recon links imported bank statement lines to the ledger rows
// they correspond to, or queues them for review.
package recon

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/simonvc/khata/internal/ledger"
)

// Config holds the matcher thresholds.
type Config struct {
	// BankAccount is used for transactions imported without an account code.
	BankAccount int `yaml:"bank_account" envconfig:"BANK_ACCOUNT" validate:"gte=1000,lte=1999"`
	// AmountTolerance is the relative amount difference the fuzzy matcher
	// accepts, 0.01 meaning 1% of the bank amount.
	AmountTolerance     decimal.Decimal `yaml:"amount_tolerance" envconfig:"AMOUNT_TOLERANCE"`
	FuzzyDateWindow     int             `yaml:"fuzzy_date_window" envconfig:"FUZZY_DATE_WINDOW" validate:"gte=0,lte=31"`
	FuzzyMinConfidence  float64         `yaml:"fuzzy_min_confidence" envconfig:"FUZZY_MIN_CONFIDENCE" validate:"gte=0,lte=1"`
	ReferenceConfidence float64         `yaml:"reference_confidence" envconfig:"REFERENCE_CONFIDENCE" validate:"gte=0,lte=1"`
	PatternDateWindow   int             `yaml:"pattern_date_window" envconfig:"PATTERN_DATE_WINDOW" validate:"gte=0,lte=31"`
	PatternMinScore     float64         `yaml:"pattern_min_score" envconfig:"PATTERN_MIN_SCORE" validate:"gte=0,lte=1"`
	Workers             int             `yaml:"workers" envconfig:"WORKERS" validate:"gte=1,lte=64"`
}

func DefaultConfig() Config {
	return Config{
		BankAccount:         ledger.CodeBank,
		AmountTolerance:     decimal.NewFromFloat(0.01),
		FuzzyDateWindow:     3,
		FuzzyMinConfidence:  0.85,
		ReferenceConfidence: 0.95,
		PatternDateWindow:   7,
		PatternMinScore:     0.80,
		Workers:             4,
	}
}

// CandidateWindow is the widest date window any matcher looks at.
func (c Config) CandidateWindow() int {
	return max(c.FuzzyDateWindow, c.PatternDateWindow)
}

// Result is the outcome of matching one bank transaction. Movement is nil
// when nothing matched.
type Result struct {
	Movement   *ledger.Movement
	Type       ledger.MatchType
	Confidence float64
	Difference decimal.Decimal
	Reason     string
}

func (r Result) Matched() bool { return r.Movement != nil }

// Match runs the matchers in priority order and returns the first success.
// Candidates on the other side of the books (a deposit against a credit
// row) are never considered.
func Match(txn ledger.BankTransaction, candidates []ledger.Movement, cfg Config) Result {
	pool := make([]ledger.Movement, 0, len(candidates))
	for _, m := range candidates {
		if m.Amount.Sign() == txn.Amount.Sign() {
			pool = append(pool, m)
		}
	}
	if len(pool) == 0 {
		return noMatch("no pending ledger movement on the same side of the books")
	}

	if r, ok := matchExact(txn, pool); ok {
		return r
	}
	if r, ok := matchFuzzy(txn, pool, cfg); ok {
		return r
	}
	if r, ok := matchReference(txn, pool, cfg); ok {
		return r
	}
	if r, ok := matchPattern(txn, pool, cfg); ok {
		return r
	}
	return noMatch(fmt.Sprintf("%d candidates, none above threshold", len(pool)))
}

func noMatch(reason string) Result {
	return Result{Type: ledger.MatchNone, Difference: decimal.Zero, Reason: reason}
}

func matched(txn ledger.BankTransaction, m ledger.Movement, t ledger.MatchType, confidence float64, reason string) Result {
	return Result{
		Movement:   &m,
		Type:       t,
		Confidence: confidence,
		Difference: txn.Amount.Sub(m.Amount),
		Reason:     reason,
	}
}

func matchExact(txn ledger.BankTransaction, pool []ledger.Movement) (Result, bool) {
	for _, m := range pool {
		if m.Amount.Equal(txn.Amount) && ledger.Day(m.Date).Equal(ledger.Day(txn.Date)) {
			return matched(txn, m, ledger.MatchExact, 1.0, "amount and date agree"), true
		}
	}
	return Result{}, false
}

// amountRatio is |bank - movement| / |bank|.
func amountRatio(txn ledger.BankTransaction, m ledger.Movement) decimal.Decimal {
	return txn.Amount.Sub(m.Amount).Abs().Div(txn.Amount.Abs())
}

func matchFuzzy(txn ledger.BankTransaction, pool []ledger.Movement, cfg Config) (Result, bool) {
	var best *ledger.Movement
	var bestDiff decimal.Decimal
	var bestDays int
	for i := range pool {
		m := &pool[i]
		days := ledger.DaysBetween(txn.Date, m.Date)
		if days > cfg.FuzzyDateWindow || amountRatio(txn, *m).GreaterThan(cfg.AmountTolerance) {
			continue
		}
		diff := txn.Amount.Sub(m.Amount).Abs()
		if best == nil || diff.LessThan(bestDiff) || (diff.Equal(bestDiff) && days < bestDays) {
			best, bestDiff, bestDays = m, diff, days
		}
	}
	if best == nil {
		return Result{}, false
	}
	confidence := 1 - amountRatio(txn, *best).InexactFloat64()
	if confidence <= cfg.FuzzyMinConfidence {
		return Result{}, false
	}
	reason := fmt.Sprintf("amount off by %s, %d days apart", bestDiff.StringFixed(2), bestDays)
	return matched(txn, *best, ledger.MatchFuzzy, confidence, reason), true
}

func matchReference(txn ledger.BankTransaction, pool []ledger.Movement, cfg Config) (Result, bool) {
	ref := normalizeRef(txn.ReferenceNumber)
	if ref == "" {
		return Result{}, false
	}
	for _, m := range pool {
		if normalizeRef(m.Reference) == ref || normalizeRef(m.VoucherNumber) == ref {
			return matched(txn, m, ledger.MatchReference, cfg.ReferenceConfidence, "reference "+txn.ReferenceNumber), true
		}
	}
	return Result{}, false
}

func normalizeRef(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func matchPattern(txn ledger.BankTransaction, pool []ledger.Movement, cfg Config) (Result, bool) {
	words := Keywords(txn.Description)
	if len(words) == 0 {
		return Result{}, false
	}
	var best *ledger.Movement
	var bestScore float64
	var bestHits int
	for i := range pool {
		m := &pool[i]
		if ledger.DaysBetween(txn.Date, m.Date) > cfg.PatternDateWindow {
			continue
		}
		have := keywordSet(m.Narration, m.Particulars, m.PartyName, m.Reference)
		hits := 0
		for _, w := range words {
			if have[w] {
				hits++
			}
		}
		amountScore := 1 - amountRatio(txn, *m).InexactFloat64()
		if amountScore < 0 {
			amountScore = 0
		}
		score := 0.6*float64(hits)/float64(len(words)) + 0.4*amountScore
		if best == nil || score > bestScore {
			best, bestScore, bestHits = m, score, hits
		}
	}
	if best == nil || bestScore <= cfg.PatternMinScore {
		return Result{}, false
	}
	reason := fmt.Sprintf("%d of %d keywords, score %.2f", bestHits, len(words), bestScore)
	return matched(txn, *best, ledger.MatchPattern, bestScore, reason), true
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "to": true, "of": true, "for": true,
	"by": true, "from": true, "in": true, "on": true, "at": true, "with": true, "via": true,
	"ac": true, "txn": true, "ref": true, "no": true,
}

// Keywords splits a description into distinct lower-case words, dropping
// stopwords and single characters, in order of first appearance.
func Keywords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func keywordSet(texts ...string) map[string]bool {
	set := map[string]bool{}
	for _, t := range texts {
		for _, w := range Keywords(t) {
			set[w] = true
		}
	}
	return set
}

// mergeCandidates joins candidate lists, dropping repeats and excluded
// rows, and returns them in book order.
func mergeCandidates(exclude map[int64]bool, lists ...[]ledger.Movement) []ledger.Movement {
	seen := map[int64]bool{}
	var out []ledger.Movement
	for _, list := range lists {
		for _, m := range list {
			if seen[m.LedgerEntryID] || exclude[m.LedgerEntryID] {
				continue
			}
			seen[m.LedgerEntryID] = true
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if c := ledger.CompareVoucherNumbers(a.VoucherNumber, b.VoucherNumber); c != 0 {
			return c < 0
		}
		return a.LedgerEntryID < b.LedgerEntryID
	})
	return out
}
