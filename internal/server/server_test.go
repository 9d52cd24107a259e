package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/posting"
	"github.com/simonvc/khata/internal/recon"
	"github.com/simonvc/khata/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pe := posting.NewEngine(st, posting.WithLogger(log))
	re := recon.NewEngine(st, recon.DefaultConfig(), recon.WithLogger(log))
	return New(st, pe, re, Options{Logger: log})
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("X-Actor", "tester")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func postJSON(t *testing.T, s *Server, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(v))
	return do(t, s, http.MethodPost, path, buf.String())
}

func voucher(vt, date, narration string, debit, credit int, amount string) map[string]any {
	return map[string]any{
		"voucher_type": vt,
		"date":         date,
		"narration":    narration,
		"lines": []map[string]any{
			{"account_code": debit, "debit": amount},
			{"account_code": credit, "credit": amount},
		},
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[healthResponse](t, rec).Status)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestPostJournalUpdatesBooks(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s, "/api/v1/journals", voucher("Receipt", "2024-04-01", "Capital introduced", 1001, 3001, "50000"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = postJSON(t, s, "/api/v1/journals", voucher("PAY", "2024-06-05", "June rent", 5101, 1001, "10000"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rent := decodeBody[ledger.JournalEntry](t, rec)
	assert.Equal(t, "PAY-2024-25-0001", rent.VoucherNumber)
	assert.Equal(t, "tester", rent.CreatedBy)

	rec = do(t, s, http.MethodGet, "/api/v1/books/ledger/1001?fy=2024-25", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[ledger.LedgerView](t, rec)
	require.Len(t, view.Rows, 2)
	assert.True(t, view.ClosingBalance.Equal(decimal.NewFromInt(40000)), view.ClosingBalance.String())

	rec = do(t, s, http.MethodGet, "/api/v1/books/trial-balance?as_of=2024-06-30", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tb := decodeBody[ledger.TrialBalance](t, rec)
	assert.True(t, tb.Balanced)
	assert.True(t, tb.TotalDebit.Equal(decimal.NewFromInt(50000)))

	rec = do(t, s, http.MethodGet, "/api/v1/journals/"+strings.ToLower(rent.VoucherNumber), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, rent.ID, decodeBody[ledger.JournalEntry](t, rec).ID)
}

func TestPostJournalRejectsUnbalanced(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{
		"voucher_type": "Journal",
		"date":         "2024-06-05",
		"narration":    "Typo in amount",
		"lines": []map[string]any{
			{"account_code": 5101, "debit": "100"},
			{"account_code": 1001, "credit": "90"},
		},
	}
	rec := postJSON(t, s, "/api/v1/journals", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, ledger.CheckBalance, resp.Check)

	rec = do(t, s, http.MethodGet, "/api/v1/vouchers/next?type=journal&fy=2024-25", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "JNL-2024-25-0001", decodeBody[nextVoucherResponse](t, rec).VoucherNumber)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/v1/journals/abc/void", `{"reason":"dup","force":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/journals/abc/void", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[errorResponse](t, rec).Error, "Reason is required")
}

func TestVoidTwiceConflicts(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s, "/api/v1/templates/capital", map[string]any{"date": "2024-04-01", "amount": "50000"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decodeBody[ledger.JournalEntry](t, rec)
	assert.Equal(t, "REC-2024-25-0001", entry.VoucherNumber)

	rec = postJSON(t, s, "/api/v1/journals/"+entry.ID+"/void", map[string]string{"reason": "posted twice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := decodeBody[posting.Correction](t, rec)
	assert.Equal(t, ledger.StatusVoid, c.Original.Status)

	rec = postJSON(t, s, "/api/v1/journals/"+entry.ID+"/void", map[string]string{"reason": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/audit?entity="+entry.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	audit := decodeBody[[]store.AuditEntry](t, rec)
	require.NotEmpty(t, audit)
	assert.Equal(t, "journal.void", audit[0].Action)
	assert.Equal(t, "tester", audit[0].Actor)
}

func TestUnknownJournalIsNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/v1/journals/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postJSON(t, s, "/api/v1/templates/lottery", map[string]any{"date": "2024-04-01", "amount": "1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNextVoucherReserveOnPost(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/v1/vouchers/next?type=payment&fy=2024-25", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[nextVoucherResponse](t, rec)
	assert.True(t, got.Reserved)
	assert.Equal(t, "PAY-2024-25-0001", got.VoucherNumber)

	rec = do(t, s, http.MethodGet, "/api/v1/vouchers/next?type=payment&fy=2024-25", "")
	assert.Equal(t, "PAY-2024-25-0002", decodeBody[nextVoucherResponse](t, rec).VoucherNumber)

	rec = do(t, s, http.MethodGet, "/api/v1/vouchers/next?type=cheque", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatementImportReconciles(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s, "/api/v1/journals", voucher("Receipt", "2024-06-05", "Sale to Ravi", 1002, 4001, "5000"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	csv := "Date,Amount,Description\n2024-06-05,\"5,000.00\",NEFT RAVI KUMAR\n2024-06-20,-999.00,ATM WDL\n"
	rec = do(t, s, http.MethodPost, "/api/v1/bank/statement?account=1002&reconcile=true", csv)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[importResponse](t, rec)
	assert.Equal(t, 2, resp.Imported)
	require.NotNil(t, resp.Summary)
	assert.Equal(t, 1, resp.Summary.Matched)
	assert.Equal(t, 1, resp.Summary.NeedsReview)
	assert.Equal(t, ledger.MatchExact, resp.Records[0].MatchType)

	rec = do(t, s, http.MethodGet, "/api/v1/bank/transactions?unmatched=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	unmatched := decodeBody[[]ledger.BankTransaction](t, rec)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "1002-20240620--999.00-2", unmatched[0].ID)

	rec = do(t, s, http.MethodGet, "/api/v1/reconciliations?latest=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeBody[reconcileResponse](t, rec).Summary.Total)
}

func TestManualMatch(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s, "/api/v1/journals", voucher("Receipt", "2024-06-05", "Advance from Meena", 1002, 2001, "1200"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decodeBody[ledger.JournalEntry](t, rec)

	rec = postJSON(t, s, "/api/v1/bank/transactions", map[string]any{
		"transactions": []map[string]any{
			{"id": "hdfc-1", "date": "2024-07-30", "amount": "1200", "description": "CASH DEP"},
		},
		"reconcile": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[importResponse](t, rec)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, ledger.ReconNeedsReview, resp.Records[0].Status)

	var bankRow int64
	rows := do(t, s, http.MethodGet, "/api/v1/books/ledger/1002", "")
	for _, r := range decodeBody[ledger.LedgerView](t, rows).Rows {
		if r.JournalID == entry.ID {
			bankRow = r.ID
		}
	}
	require.NotZero(t, bankRow)

	rec = postJSON(t, s, "/api/v1/bank/transactions/hdfc-1/match", map[string]any{"ledger_entry_id": bankRow})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	matched := decodeBody[ledger.ReconciliationRecord](t, rec)
	assert.Equal(t, ledger.MatchManual, matched.MatchType)
	assert.Equal(t, 2, matched.Attempt)

	rec = postJSON(t, s, "/api/v1/bank/transactions/hdfc-1/match", map[string]any{"ledger_entry_id": bankRow})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCloseYearLocksPostings(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s, "/api/v1/journals", voucher("Receipt", "2024-04-01", "Capital introduced", 1001, 3001, "50000"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/years/2024-25/close", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decodeBody[closeYearResponse](t, rec).Locked)

	rec = postJSON(t, s, "/api/v1/journals", voucher("Payment", "2024-06-05", "Late rent", 5101, 1001, "100"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ledger.CheckPeriod, decodeBody[errorResponse](t, rec).Check)

	rec = do(t, s, http.MethodPost, "/api/v1/years/2024-25/close", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/years", "")
	require.Equal(t, http.StatusOK, rec.Code)
	years := decodeBody[[]yearStatus](t, rec)
	var found bool
	for _, y := range years {
		if y.FinancialYear == 2024 {
			found = true
			assert.True(t, y.Locked)
			assert.EqualValues(t, 1, y.Vouchers)
		}
	}
	assert.True(t, found)
}
