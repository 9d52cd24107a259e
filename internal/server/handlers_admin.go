package server

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/store"
)

type healthResponse struct {
	Status string `json:"status"`
	Halted string `json:"halted,omitempty"`
}

// health stays 200 while posting is halted so operators can still reach
// the books; the halt reason is reported instead.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if v := s.posting.Halted(); v != nil {
		resp.Status = "halted"
		resp.Halted = v.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listCounters(w http.ResponseWriter, r *http.Request) {
	counters, err := s.store.Reader().ListCounters(r.Context())
	if err != nil {
		s.fail(w, r, "voucher.list", err)
		return
	}
	if counters == nil {
		counters = []store.VoucherCounter{}
	}
	writeJSON(w, http.StatusOK, counters)
}

type nextVoucherResponse struct {
	VoucherNumber string `json:"voucher_number"`
	Reserved      bool   `json:"reserved"`
}

// nextVoucher previews the next number on GET and issues it on POST. An
// issued number is consumed even if nothing is posted under it.
func (s *Server) nextVoucher(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vt, err := ledger.ParseVoucherType(q.Get("type"))
	if err != nil {
		s.fail(w, r, "voucher.next", err)
		return
	}
	fy := ledger.FinancialYearOf(time.Now())
	if v := q.Get("fy"); v != "" {
		if fy, err = ledger.ParseFinancialYear(v); err != nil {
			s.fail(w, r, "voucher.next", err)
			return
		}
	}

	reserve := r.Method == http.MethodPost
	var number string
	if reserve {
		number, err = s.posting.Numbering().Next(r.Context(), vt, fy)
	} else {
		number, err = s.posting.Numbering().Peek(r.Context(), vt, fy)
	}
	if err != nil {
		s.fail(w, r, "voucher.next", err)
		return
	}
	writeJSON(w, http.StatusOK, nextVoucherResponse{VoucherNumber: number, Reserved: reserve})
}

type yearStatus struct {
	FinancialYear ledger.FinancialYear `json:"financial_year"`
	Start         string               `json:"start"`
	End           string               `json:"end"`
	Locked        bool                 `json:"locked"`
	Vouchers      int64                `json:"vouchers"`
}

// listYears reports every year that has vouchers or a lock, plus the
// current one.
func (s *Server) listYears(w http.ResponseWriter, r *http.Request) {
	var years []yearStatus
	err := s.store.View(r.Context(), func(rd *store.Reader) error {
		locked, err := rd.LockedYears(r.Context())
		if err != nil {
			return err
		}
		counters, err := rd.ListCounters(r.Context())
		if err != nil {
			return err
		}

		vouchers := map[ledger.FinancialYear]int64{ledger.FinancialYearOf(time.Now()): 0}
		for _, c := range counters {
			vouchers[c.FinancialYear] += c.LastNumber
		}
		for fy := range locked {
			if _, ok := vouchers[fy]; !ok {
				vouchers[fy] = 0
			}
		}
		for fy, n := range vouchers {
			years = append(years, yearStatus{
				FinancialYear: fy,
				Start:         fy.Start().Format(ledger.DateLayout),
				End:           fy.End().Format(ledger.DateLayout),
				Locked:        locked.IsLocked(fy),
				Vouchers:      n,
			})
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, "year.list", err)
		return
	}
	sort.Slice(years, func(i, j int) bool { return years[i].FinancialYear < years[j].FinancialYear })
	writeJSON(w, http.StatusOK, years)
}

type closeYearResponse struct {
	FinancialYear ledger.FinancialYear `json:"financial_year"`
	Locked        int64                `json:"entries_locked"`
}

func (s *Server) closeYear(w http.ResponseWriter, r *http.Request) {
	fy, err := ledger.ParseFinancialYear(chi.URLParam(r, "fy"))
	if err != nil {
		s.fail(w, r, "year.close", err)
		return
	}
	n, err := s.posting.CloseYear(r.Context(), fy, actor(r))
	if err != nil {
		s.fail(w, r, "year.close", err)
		return
	}
	writeJSON(w, http.StatusOK, closeYearResponse{FinancialYear: fy, Locked: n})
}

// listAudit looks entries up by ?ref= (from an internal error) or
// ?entity=.
func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		s.fail(w, r, "audit.list", err)
		return
	}
	if limit <= 0 {
		limit = 100
	}
	entries, err := s.store.Reader().ListAudit(r.Context(), store.AuditFilter{
		Ref:      r.URL.Query().Get("ref"),
		EntityID: r.URL.Query().Get("entity"),
		Limit:    limit,
	})
	if err != nil {
		s.fail(w, r, "audit.list", err)
		return
	}
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
