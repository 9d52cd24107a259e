package server

import (
	"fmt"
	"net/http"

	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/store"
)

type createAccountRequest struct {
	Code           int                   `json:"code" validate:"omitempty,gte=1000,lte=5999"`
	Name           string                `json:"name" validate:"required,max=120"`
	Classification ledger.Classification `json:"classification"`
	Group          string                `json:"group,omitempty" validate:"max=80"`
	CashOrBank     bool                  `json:"cash_or_bank,omitempty"`
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, "account.create", err)
		return
	}

	// Classification follows the code when only a code is given.
	if req.Classification == "" && req.Code != 0 {
		c, err := ledger.ClassificationForCode(req.Code)
		if err != nil {
			s.fail(w, r, "account.create", err)
			return
		}
		req.Classification = c
	}
	if req.Classification != "" {
		c, err := ledger.ParseClassification(string(req.Classification))
		if err != nil {
			s.fail(w, r, "account.create", err)
			return
		}
		req.Classification = c
	}

	acct := &ledger.Account{
		Code:           req.Code,
		Name:           req.Name,
		Classification: req.Classification,
		Group:          req.Group,
		CashOrBank:     req.CashOrBank,
	}
	err := s.store.WithTx(r.Context(), func(tx *store.Tx) error {
		if err := tx.CreateAccount(r.Context(), acct); err != nil {
			return err
		}
		return tx.Audit(r.Context(), store.AuditEntry{
			Action: "account.create", Entity: "account", EntityID: fmt.Sprint(acct.Code), Actor: actor(r), Detail: acct.Name,
		})
	})
	if err != nil {
		s.fail(w, r, "account.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	filter := store.AccountFilter{
		ActiveOnly:   boolQuery(r, "active"),
		CashBankOnly: boolQuery(r, "cash_bank"),
	}
	if c := r.URL.Query().Get("classification"); c != "" {
		class, err := ledger.ParseClassification(c)
		if err != nil {
			s.fail(w, r, "account.list", err)
			return
		}
		filter.Classification = class
	}

	accounts, err := s.store.Reader().ListAccounts(r.Context(), filter)
	if err != nil {
		s.fail(w, r, "account.list", err)
		return
	}
	if accounts == nil {
		accounts = []ledger.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	code, err := codeParam(r)
	if err != nil {
		s.fail(w, r, "account.get", err)
		return
	}
	acct, err := s.store.Reader().GetAccount(r.Context(), code)
	if err != nil {
		s.fail(w, r, "account.get", err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	s.setAccountActive(w, r, false)
}

func (s *Server) activateAccount(w http.ResponseWriter, r *http.Request) {
	s.setAccountActive(w, r, true)
}

// Accounts are never deleted; deactivation stops new postings to them while
// their history stays in every book.
func (s *Server) setAccountActive(w http.ResponseWriter, r *http.Request, active bool) {
	op := "account.deactivate"
	if active {
		op = "account.activate"
	}
	code, err := codeParam(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	err = s.store.WithTx(r.Context(), func(tx *store.Tx) error {
		if err := tx.SetAccountActive(r.Context(), code, active); err != nil {
			return err
		}
		return tx.Audit(r.Context(), store.AuditEntry{Action: op, Entity: "account", EntityID: fmt.Sprint(code), Actor: actor(r)})
	})
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	acct, err := s.store.Reader().GetAccount(r.Context(), code)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) getChart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ledger.DefaultChart)
}
