package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/recon"
	"github.com/simonvc/khata/internal/store"
)

type bankTxnRequest struct {
	ID              string          `json:"id" validate:"required,max=80"`
	AccountCode     int             `json:"account_code,omitempty" validate:"omitempty,gte=1000,lte=1999"`
	Date            string          `json:"date" validate:"required,datetime=2006-01-02"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description" validate:"max=300"`
	ReferenceNumber string          `json:"reference_number,omitempty" validate:"max=80"`
}

type importRequest struct {
	Transactions []bankTxnRequest `json:"transactions" validate:"required,min=1,dive"`
	// Reconcile matches the lines straight after storing them.
	Reconcile bool `json:"reconcile,omitempty"`
}

type importResponse struct {
	Lines    int                           `json:"lines"`
	Imported int                           `json:"imported"`
	Records  []ledger.ReconciliationRecord `json:"records,omitempty"`
	Summary  *recon.Summary                `json:"summary,omitempty"`
}

func (s *Server) importBankTransactions(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, "recon.import", err)
		return
	}
	txns := make([]ledger.BankTransaction, 0, len(req.Transactions))
	for _, t := range req.Transactions {
		date, err := ledger.ParseDate(t.Date)
		if err != nil {
			s.fail(w, r, "recon.import", err)
			return
		}
		txns = append(txns, ledger.BankTransaction{
			ID:              t.ID,
			AccountCode:     t.AccountCode,
			Date:            date,
			Amount:          t.Amount,
			Description:     t.Description,
			ReferenceNumber: t.ReferenceNumber,
		})
	}
	s.importAndReconcile(w, r, txns, req.Reconcile || boolQuery(r, "reconcile"))
}

// importStatement takes a CSV statement body for ?account=.
func (s *Server) importStatement(w http.ResponseWriter, r *http.Request) {
	account, err := intQuery(r, "account")
	if err != nil {
		s.fail(w, r, "recon.import", err)
		return
	}
	if account == 0 {
		account = s.recon.Config().BankAccount
	}
	txns, err := recon.ParseStatement(r.Body, account)
	if err != nil {
		s.fail(w, r, "recon.import", err)
		return
	}
	s.importAndReconcile(w, r, txns, boolQuery(r, "reconcile"))
}

func (s *Server) importAndReconcile(w http.ResponseWriter, r *http.Request, txns []ledger.BankTransaction, reconcile bool) {
	n, err := s.recon.Import(r.Context(), txns)
	if err != nil {
		s.fail(w, r, "recon.import", err)
		return
	}
	resp := importResponse{Lines: len(txns), Imported: n}
	if reconcile {
		records, err := s.recon.ReconcileStatement(r.Context(), txns)
		if err != nil {
			s.fail(w, r, "recon.reconcile", err)
			return
		}
		summary := recon.Summarize(records)
		resp.Records, resp.Summary = records, &summary
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) listBankTransactions(w http.ResponseWriter, r *http.Request) {
	f := store.BankTxnFilter{Unmatched: boolQuery(r, "unmatched")}
	var err error
	if f.AccountCode, err = intQuery(r, "account"); err != nil {
		s.fail(w, r, "recon.list", err)
		return
	}
	if f.From, err = dateQuery(r, "from"); err != nil {
		s.fail(w, r, "recon.list", err)
		return
	}
	if f.To, err = dateQuery(r, "to"); err != nil {
		s.fail(w, r, "recon.list", err)
		return
	}
	if f.Limit, err = intQuery(r, "limit"); err != nil {
		s.fail(w, r, "recon.list", err)
		return
	}
	if f.Offset, err = intQuery(r, "offset"); err != nil {
		s.fail(w, r, "recon.list", err)
		return
	}
	txns, err := s.store.Reader().ListBankTransactions(r.Context(), f)
	if err != nil {
		s.fail(w, r, "recon.list", err)
		return
	}
	if txns == nil {
		txns = []ledger.BankTransaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

type reconcileResponse struct {
	Records []ledger.ReconciliationRecord `json:"records"`
	Summary recon.Summary                 `json:"summary"`
}

// reconcilePending retries every unmatched line on ?account=.
func (s *Server) reconcilePending(w http.ResponseWriter, r *http.Request) {
	account, err := intQuery(r, "account")
	if err != nil {
		s.fail(w, r, "recon.pending", err)
		return
	}
	records, err := s.recon.ReconcilePending(r.Context(), account)
	if err != nil {
		s.fail(w, r, "recon.pending", err)
		return
	}
	if records == nil {
		records = []ledger.ReconciliationRecord{}
	}
	writeJSON(w, http.StatusOK, reconcileResponse{Records: records, Summary: recon.Summarize(records)})
}

func (s *Server) reconcileOne(w http.ResponseWriter, r *http.Request) {
	txn, err := s.store.Reader().GetBankTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "recon.reconcile", err)
		return
	}
	rec, err := s.recon.Reconcile(r.Context(), *txn)
	if err != nil {
		s.fail(w, r, "recon.reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type manualMatchRequest struct {
	LedgerEntryID int64 `json:"ledger_entry_id" validate:"required,gt=0"`
}

func (s *Server) matchManually(w http.ResponseWriter, r *http.Request) {
	var req manualMatchRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, "recon.manual", err)
		return
	}
	rec, err := s.recon.MatchManually(r.Context(), chi.URLParam(r, "id"), req.LedgerEntryID, actor(r))
	if err != nil {
		s.fail(w, r, "recon.manual", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) listReconciliations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ReconFilter{
		BankTransactionID: q.Get("bank_txn"),
		Status:            ledger.ReconStatus(strings.ToUpper(q.Get("status"))),
		LatestOnly:        boolQuery(r, "latest"),
	}
	var err error
	if f.Limit, err = intQuery(r, "limit"); err != nil {
		s.fail(w, r, "recon.history", err)
		return
	}
	if f.Offset, err = intQuery(r, "offset"); err != nil {
		s.fail(w, r, "recon.history", err)
		return
	}
	records, err := s.store.Reader().ListReconciliations(r.Context(), f)
	if err != nil {
		s.fail(w, r, "recon.history", err)
		return
	}
	if records == nil {
		records = []ledger.ReconciliationRecord{}
	}
	writeJSON(w, http.StatusOK, reconcileResponse{Records: records, Summary: recon.Summarize(records)})
}
