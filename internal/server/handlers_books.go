package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/simonvc/khata/internal/ledger"
)

// dateRange reads from/to, or the bounds of ?fy= when given.
func dateRange(r *http.Request) (from, to time.Time, err error) {
	if v := r.URL.Query().Get("fy"); v != "" {
		fy, err := ledger.ParseFinancialYear(v)
		if err != nil {
			return from, to, err
		}
		return fy.Start(), fy.End(), nil
	}
	if from, err = dateQuery(r, "from"); err != nil {
		return
	}
	to, err = dateQuery(r, "to")
	return
}

func (s *Server) ledgerView(w http.ResponseWriter, r *http.Request) {
	code, err := codeParam(r)
	if err != nil {
		s.fail(w, r, "books.ledger", err)
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		s.fail(w, r, "books.ledger", err)
		return
	}
	view, err := s.books.LedgerView(r.Context(), code, from, to)
	if err != nil {
		s.fail(w, r, "books.ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateQuery(r, "as_of")
	if err != nil {
		s.fail(w, r, "books.trial_balance", err)
		return
	}
	tb, err := s.books.TrialBalance(r.Context(), asOf)
	if err != nil {
		s.fail(w, r, "books.trial_balance", err)
		return
	}
	writeJSON(w, http.StatusOK, tb)
}

// cashBook combines ?account=1001,1002 or every cash and bank account.
func (s *Server) cashBook(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		s.fail(w, r, "books.cash_book", err)
		return
	}
	var codes []int
	if v := r.URL.Query().Get("account"); v != "" {
		for _, part := range strings.Split(v, ",") {
			code, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				s.fail(w, r, "books.cash_book", ledger.ErrInvalidAccountCode)
				return
			}
			codes = append(codes, code)
		}
	}
	cb, err := s.books.CashBook(r.Context(), from, to, codes...)
	if err != nil {
		s.fail(w, r, "books.cash_book", err)
		return
	}
	writeJSON(w, http.StatusOK, cb)
}

func (s *Server) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		s.fail(w, r, "books.profit_loss", err)
		return
	}
	pl, err := s.books.ProfitAndLoss(r.Context(), from, to)
	if err != nil {
		s.fail(w, r, "books.profit_loss", err)
		return
	}
	writeJSON(w, http.StatusOK, pl)
}

func (s *Server) balanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateQuery(r, "as_of")
	if err != nil {
		s.fail(w, r, "books.balance_sheet", err)
		return
	}
	bs, err := s.books.BalanceSheet(r.Context(), asOf)
	if err != nil {
		s.fail(w, r, "books.balance_sheet", err)
		return
	}
	writeJSON(w, http.StatusOK, bs)
}

type verifyResponse struct {
	OK      bool   `json:"ok"`
	Halted  bool   `json:"halted"`
	Message string `json:"message,omitempty"`
}

// verify checks the global invariants; a violation halts posting and is
// reported with 503.
func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	if err := s.posting.Verify(r.Context()); err != nil {
		s.fail(w, r, "books.verify", err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{OK: true, Halted: s.posting.Halted() != nil})
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	if err := s.posting.Resume(r.Context(), actor(r)); err != nil {
		s.fail(w, r, "books.resume", err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{OK: true, Message: "posting resumed"})
}
