package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/store"
)

type postingLineRequest struct {
	AccountCode int             `json:"account_code,omitempty" validate:"omitempty,gte=1000,lte=5999"`
	AccountName string          `json:"account_name,omitempty" validate:"max=120"`
	AccountType string          `json:"account_type,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// postingRequest is the wire form of ledger.PostingRequest. Dates travel as
// YYYY-MM-DD; everything else the ledger validator checks in its own order.
type postingRequest struct {
	VoucherType   string               `json:"voucher_type"`
	Date          string               `json:"date" validate:"omitempty,datetime=2006-01-02"`
	FinancialYear string               `json:"financial_year,omitempty"`
	Narration     string               `json:"narration" validate:"max=500"`
	Reference     string               `json:"reference,omitempty" validate:"max=80"`
	PaymentMode   string               `json:"payment_mode,omitempty" validate:"max=40"`
	PartyName     string               `json:"party_name,omitempty" validate:"max=120"`
	Lines         []postingLineRequest `json:"lines" validate:"dive"`
}

func (p postingRequest) toLedger(actor string) (ledger.PostingRequest, error) {
	req := ledger.PostingRequest{
		Narration:   p.Narration,
		Reference:   p.Reference,
		PaymentMode: p.PaymentMode,
		PartyName:   p.PartyName,
		CreatedBy:   actor,
	}
	if strings.TrimSpace(p.VoucherType) != "" {
		vt, err := ledger.ParseVoucherType(p.VoucherType)
		if err != nil {
			return req, &ledger.ValidationError{Check: ledger.CheckVoucherType, Reason: err.Error(), Err: ledger.ErrUnknownVoucherType}
		}
		req.VoucherType = vt
	}
	if p.Date != "" {
		d, err := ledger.ParseDate(p.Date)
		if err != nil {
			return req, &ledger.ValidationError{Check: ledger.CheckPeriod, Reason: err.Error(), Err: ledger.ErrInvalidDate}
		}
		req.Date = d
	}
	if p.FinancialYear != "" {
		fy, err := ledger.ParseFinancialYear(p.FinancialYear)
		if err != nil {
			return req, &ledger.ValidationError{Check: ledger.CheckPeriod, Reason: err.Error(), Err: ledger.ErrInvalidFinancialYear}
		}
		req.FinancialYear = fy
	}
	for i, l := range p.Lines {
		line := ledger.PostingLine{
			AccountCode: l.AccountCode,
			AccountName: l.AccountName,
			Debit:       l.Debit,
			Credit:      l.Credit,
		}
		if l.AccountType != "" {
			c, err := ledger.ParseClassification(l.AccountType)
			if err != nil {
				return req, &ledger.ValidationError{
					Check:  ledger.CheckLines,
					Reason: fmt.Sprintf("Line %d: %v", i+1, err),
					Err:    ledger.ErrInvalidClassification,
				}
			}
			line.AccountType = c
		}
		req.Lines = append(req.Lines, line)
	}
	return req, nil
}

func (s *Server) readPosting(r *http.Request) (ledger.PostingRequest, error) {
	var body postingRequest
	if err := s.decode(r, &body); err != nil {
		return ledger.PostingRequest{}, err
	}
	return body.toLedger(actor(r))
}

func (s *Server) postJournal(w http.ResponseWriter, r *http.Request) {
	req, err := s.readPosting(r)
	if err != nil {
		s.fail(w, r, "journal.post", err)
		return
	}
	entry, err := s.posting.Post(r.Context(), req)
	if err != nil {
		s.fail(w, r, "journal.post", err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// validateJournal runs the checks without numbering or posting.
func (s *Server) validateJournal(w http.ResponseWriter, r *http.Request) {
	req, err := s.readPosting(r)
	if err != nil {
		s.fail(w, r, "journal.validate", err)
		return
	}
	ve, err := s.posting.Validate(r.Context(), req)
	if err != nil {
		s.fail(w, r, "journal.validate", err)
		return
	}
	writeJSON(w, http.StatusOK, ve)
}

func (s *Server) listJournals(w http.ResponseWriter, r *http.Request) {
	var f store.JournalFilter
	var err error
	q := r.URL.Query()
	if f.From, err = dateQuery(r, "from"); err != nil {
		s.fail(w, r, "journal.list", err)
		return
	}
	if f.To, err = dateQuery(r, "to"); err != nil {
		s.fail(w, r, "journal.list", err)
		return
	}
	if v := q.Get("type"); v != "" {
		if f.VoucherType, err = ledger.ParseVoucherType(v); err != nil {
			s.fail(w, r, "journal.list", err)
			return
		}
	}
	f.Status = ledger.EntryStatus(strings.ToUpper(q.Get("status")))
	f.Reference = q.Get("reference")
	if f.AccountCode, err = intQuery(r, "account"); err != nil {
		s.fail(w, r, "journal.list", err)
		return
	}
	if f.Limit, err = intQuery(r, "limit"); err != nil {
		s.fail(w, r, "journal.list", err)
		return
	}
	if f.Offset, err = intQuery(r, "offset"); err != nil {
		s.fail(w, r, "journal.list", err)
		return
	}

	entries, err := s.store.Reader().ListJournals(r.Context(), f)
	if err != nil {
		s.fail(w, r, "journal.list", err)
		return
	}
	if entries == nil {
		entries = []ledger.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// getJournal accepts either the entry id or its voucher number.
func (s *Server) getJournal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reader := s.store.Reader()
	entry, err := reader.GetJournal(r.Context(), id)
	if err != nil && strings.Count(id, "-") >= 3 {
		entry, err = reader.GetJournalByNumber(r.Context(), strings.ToUpper(id))
	}
	if err != nil {
		s.fail(w, r, "journal.get", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required,max=200"`
}

func (s *Server) voidJournal(w http.ResponseWriter, r *http.Request) {
	var req voidRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, "journal.void", err)
		return
	}
	c, err := s.posting.Void(r.Context(), chi.URLParam(r, "id"), req.Reason, actor(r))
	if err != nil {
		s.fail(w, r, "journal.void", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type reclassifyRequest struct {
	// Line is 1-based, as printed on the voucher.
	Line        int    `json:"line" validate:"required,gte=1"`
	AccountCode int    `json:"account_code,omitempty" validate:"omitempty,gte=1000,lte=5999"`
	AccountName string `json:"account_name,omitempty" validate:"required_without=AccountCode,max=120"`
	AccountType string `json:"account_type,omitempty"`
}

func (s *Server) reclassifyJournal(w http.ResponseWriter, r *http.Request) {
	var req reclassifyRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, "journal.reclassify", err)
		return
	}
	target := ledger.PostingLine{AccountCode: req.AccountCode, AccountName: req.AccountName}
	if req.AccountType != "" {
		c, err := ledger.ParseClassification(req.AccountType)
		if err != nil {
			s.fail(w, r, "journal.reclassify", err)
			return
		}
		target.AccountType = c
	}
	c, err := s.posting.Reclassify(r.Context(), chi.URLParam(r, "id"), req.Line-1, target, actor(r))
	if err != nil {
		s.fail(w, r, "journal.reclassify", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ledger.Templates)
}

type templateRequest struct {
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	Amount      decimal.Decimal `json:"amount"`
	Narration   string          `json:"narration,omitempty" validate:"max=500"`
	Reference   string          `json:"reference,omitempty" validate:"max=80"`
	PaymentMode string          `json:"payment_mode,omitempty" validate:"max=40"`
	PartyName   string          `json:"party_name,omitempty" validate:"max=120"`
	// Accounts replaces template entry accounts by entry index.
	Accounts map[int]int `json:"accounts,omitempty"`
}

// postTemplate is quick entry: a two-line voucher from a named pattern.
func (s *Server) postTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := ledger.LookupTemplate(chi.URLParam(r, "key"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown template "+chi.URLParam(r, "key"))
		return
	}
	var body templateRequest
	if err := s.decode(r, &body); err != nil {
		s.fail(w, r, "template.post", err)
		return
	}
	if !body.Amount.IsPositive() {
		s.fail(w, r, "template.post", &ledger.ValidationError{
			Check: ledger.CheckLines, Reason: "amount must be positive", Err: errBadRequest,
		})
		return
	}
	date, err := ledger.ParseDate(body.Date)
	if err != nil {
		s.fail(w, r, "template.post", err)
		return
	}

	req := tmpl.Request(body.Amount, body.Narration, body.Accounts)
	req.Date = date
	req.Reference = body.Reference
	req.PaymentMode = body.PaymentMode
	req.PartyName = body.PartyName
	req.CreatedBy = actor(r)

	entry, err := s.posting.Post(r.Context(), req)
	if err != nil {
		s.fail(w, r, "template.post", err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
