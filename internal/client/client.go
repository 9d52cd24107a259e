package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/posting"
	"github.com/simonvc/khata/internal/recon"
	"github.com/simonvc/khata/internal/store"
)

type Client struct {
	baseURL    string
	actor      string
	httpClient *http.Client
}

func New(baseURL, actor string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		actor:   actor,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx reply. Ref is set for internal errors and can be
// looked up in the audit log.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Ref     string `json:"ref,omitempty"`
	Check   int    `json:"check,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

// Line and Voucher are the wire form of a posting request.
type Line struct {
	AccountCode int             `json:"account_code,omitempty"`
	AccountName string          `json:"account_name,omitempty"`
	AccountType string          `json:"account_type,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

type Voucher struct {
	VoucherType   string `json:"voucher_type"`
	Date          string `json:"date"`
	FinancialYear string `json:"financial_year,omitempty"`
	Narration     string `json:"narration"`
	Reference     string `json:"reference,omitempty"`
	PaymentMode   string `json:"payment_mode,omitempty"`
	PartyName     string `json:"party_name,omitempty"`
	Lines         []Line `json:"lines"`
}

// VoucherFrom converts a posting request built in-process.
func VoucherFrom(req ledger.PostingRequest) Voucher {
	v := Voucher{
		Narration:   req.Narration,
		Reference:   req.Reference,
		PaymentMode: req.PaymentMode,
		PartyName:   req.PartyName,
	}
	if req.VoucherType.Valid() {
		v.VoucherType = req.VoucherType.String()
	}
	if !req.Date.IsZero() {
		v.Date = req.Date.Format(ledger.DateLayout)
	}
	if req.FinancialYear != 0 {
		v.FinancialYear = req.FinancialYear.Code()
	}
	for _, l := range req.Lines {
		v.Lines = append(v.Lines, Line{
			AccountCode: l.AccountCode,
			AccountName: l.AccountName,
			AccountType: string(l.AccountType),
			Debit:       l.Debit,
			Credit:      l.Credit,
		})
	}
	return v
}

// Accounts

type NewAccount struct {
	Code           int                   `json:"code,omitempty"`
	Name           string                `json:"name"`
	Classification ledger.Classification `json:"classification,omitempty"`
	Group          string                `json:"group,omitempty"`
	CashOrBank     bool                  `json:"cash_or_bank,omitempty"`
}

func (c *Client) CreateAccount(ctx context.Context, acct NewAccount) (*ledger.Account, error) {
	var result ledger.Account
	if err := c.post(ctx, "/api/v1/accounts", acct, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type AccountQuery struct {
	Classification ledger.Classification
	ActiveOnly     bool
	CashBankOnly   bool
}

func (c *Client) ListAccounts(ctx context.Context, q AccountQuery) ([]ledger.Account, error) {
	params := url.Values{}
	if q.Classification != "" {
		params.Set("classification", string(q.Classification))
	}
	if q.ActiveOnly {
		params.Set("active", "true")
	}
	if q.CashBankOnly {
		params.Set("cash_bank", "true")
	}
	var result []ledger.Account
	if err := c.get(ctx, "/api/v1/accounts", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) GetAccount(ctx context.Context, code int) (*ledger.Account, error) {
	var result ledger.Account
	if err := c.get(ctx, "/api/v1/accounts/"+strconv.Itoa(code), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) SetAccountActive(ctx context.Context, code int, active bool) (*ledger.Account, error) {
	action := "deactivate"
	if active {
		action = "activate"
	}
	var result ledger.Account
	if err := c.post(ctx, "/api/v1/accounts/"+strconv.Itoa(code)+"/"+action, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetChart(ctx context.Context) ([]ledger.ChartEntry, error) {
	var result []ledger.ChartEntry
	if err := c.get(ctx, "/api/v1/chart", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Vouchers

func (c *Client) PostJournal(ctx context.Context, v Voucher) (*ledger.JournalEntry, error) {
	var result ledger.JournalEntry
	if err := c.post(ctx, "/api/v1/journals", v, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ValidateJournal(ctx context.Context, v Voucher) (*ledger.ValidatedEntry, error) {
	var result ledger.ValidatedEntry
	if err := c.post(ctx, "/api/v1/journals/validate", v, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type JournalQuery struct {
	From, To    string
	VoucherType string
	Status      string
	AccountCode int
	Reference   string
	Limit       int
	Offset      int
}

func (c *Client) ListJournals(ctx context.Context, q JournalQuery) ([]ledger.JournalEntry, error) {
	params := url.Values{}
	setNonEmpty(params, "from", q.From)
	setNonEmpty(params, "to", q.To)
	setNonEmpty(params, "type", q.VoucherType)
	setNonEmpty(params, "status", q.Status)
	setNonEmpty(params, "reference", q.Reference)
	setPositive(params, "account", q.AccountCode)
	setPositive(params, "limit", q.Limit)
	setPositive(params, "offset", q.Offset)
	var result []ledger.JournalEntry
	if err := c.get(ctx, "/api/v1/journals", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetJournal takes an entry id or a voucher number.
func (c *Client) GetJournal(ctx context.Context, id string) (*ledger.JournalEntry, error) {
	var result ledger.JournalEntry
	if err := c.get(ctx, "/api/v1/journals/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) VoidJournal(ctx context.Context, id, reason string) (*posting.Correction, error) {
	var result posting.Correction
	body := map[string]string{"reason": reason}
	if err := c.post(ctx, "/api/v1/journals/"+url.PathEscape(id)+"/void", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReclassifyJournal moves line (1-based) to the target account.
func (c *Client) ReclassifyJournal(ctx context.Context, id string, line int, target Line) (*posting.Correction, error) {
	body := map[string]any{"line": line}
	if target.AccountCode != 0 {
		body["account_code"] = target.AccountCode
	}
	if target.AccountName != "" {
		body["account_name"] = target.AccountName
	}
	if target.AccountType != "" {
		body["account_type"] = target.AccountType
	}
	var result posting.Correction
	if err := c.post(ctx, "/api/v1/journals/"+url.PathEscape(id)+"/reclassify", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListTemplates(ctx context.Context) ([]ledger.Template, error) {
	var result []ledger.Template
	if err := c.get(ctx, "/api/v1/templates", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

type TemplateEntry struct {
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Narration   string          `json:"narration,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	PaymentMode string          `json:"payment_mode,omitempty"`
	PartyName   string          `json:"party_name,omitempty"`
	Accounts    map[int]int     `json:"accounts,omitempty"`
}

func (c *Client) PostTemplate(ctx context.Context, key string, e TemplateEntry) (*ledger.JournalEntry, error) {
	var result ledger.JournalEntry
	if err := c.post(ctx, "/api/v1/templates/"+url.PathEscape(key), e, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Numbering and periods

func (c *Client) ListCounters(ctx context.Context) ([]store.VoucherCounter, error) {
	var result []store.VoucherCounter
	if err := c.get(ctx, "/api/v1/vouchers", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

type NextVoucher struct {
	VoucherNumber string `json:"voucher_number"`
	Reserved      bool   `json:"reserved"`
}

// NextVoucher previews the next number, or issues it when reserve is set.
func (c *Client) NextVoucher(ctx context.Context, voucherType, fy string, reserve bool) (*NextVoucher, error) {
	params := url.Values{"type": {voucherType}}
	setNonEmpty(params, "fy", fy)
	var result NextVoucher
	var err error
	if reserve {
		err = c.post(ctx, "/api/v1/vouchers/next?"+params.Encode(), nil, &result)
	} else {
		err = c.get(ctx, "/api/v1/vouchers/next", params, &result)
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type YearStatus struct {
	FinancialYear ledger.FinancialYear `json:"financial_year"`
	Start         string               `json:"start"`
	End           string               `json:"end"`
	Locked        bool                 `json:"locked"`
	Vouchers      int64                `json:"vouchers"`
}

func (c *Client) ListYears(ctx context.Context) ([]YearStatus, error) {
	var result []YearStatus
	if err := c.get(ctx, "/api/v1/years", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

type CloseYearResult struct {
	FinancialYear ledger.FinancialYear `json:"financial_year"`
	Locked        int64                `json:"entries_locked"`
}

func (c *Client) CloseYear(ctx context.Context, fy string) (*CloseYearResult, error) {
	var result CloseYearResult
	if err := c.post(ctx, "/api/v1/years/"+url.PathEscape(fy)+"/close", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Books

// Range selects a report period: FY wins over From/To when set.
type Range struct {
	From, To string
	FY       string
}

func (r Range) values() url.Values {
	params := url.Values{}
	setNonEmpty(params, "fy", r.FY)
	setNonEmpty(params, "from", r.From)
	setNonEmpty(params, "to", r.To)
	return params
}

func (c *Client) Ledger(ctx context.Context, code int, r Range) (*ledger.LedgerView, error) {
	var result ledger.LedgerView
	if err := c.get(ctx, "/api/v1/books/ledger/"+strconv.Itoa(code), r.values(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) TrialBalance(ctx context.Context, asOf string) (*ledger.TrialBalance, error) {
	params := url.Values{}
	setNonEmpty(params, "as_of", asOf)
	var result ledger.TrialBalance
	if err := c.get(ctx, "/api/v1/books/trial-balance", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) CashBook(ctx context.Context, r Range, codes ...int) (*ledger.CashBook, error) {
	params := r.values()
	if len(codes) > 0 {
		parts := make([]string, len(codes))
		for i, code := range codes {
			parts[i] = strconv.Itoa(code)
		}
		params.Set("account", strings.Join(parts, ","))
	}
	var result ledger.CashBook
	if err := c.get(ctx, "/api/v1/books/cash-book", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ProfitAndLoss(ctx context.Context, r Range) (*ledger.ProfitAndLoss, error) {
	var result ledger.ProfitAndLoss
	if err := c.get(ctx, "/api/v1/books/profit-loss", r.values(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) BalanceSheet(ctx context.Context, asOf string) (*ledger.BalanceSheet, error) {
	params := url.Values{}
	setNonEmpty(params, "as_of", asOf)
	var result ledger.BalanceSheet
	if err := c.get(ctx, "/api/v1/books/balance-sheet", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type VerifyResult struct {
	OK      bool   `json:"ok"`
	Halted  bool   `json:"halted"`
	Message string `json:"message,omitempty"`
}

func (c *Client) Verify(ctx context.Context) (*VerifyResult, error) {
	var result VerifyResult
	if err := c.post(ctx, "/api/v1/books/verify", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Resume(ctx context.Context) (*VerifyResult, error) {
	var result VerifyResult
	if err := c.post(ctx, "/api/v1/books/resume", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Bank reconciliation

type ImportResult struct {
	Lines    int                           `json:"lines"`
	Imported int                           `json:"imported"`
	Records  []ledger.ReconciliationRecord `json:"records,omitempty"`
	Summary  *recon.Summary                `json:"summary,omitempty"`
}

type BankLine struct {
	ID              string          `json:"id"`
	AccountCode     int             `json:"account_code,omitempty"`
	Date            string          `json:"date"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
}

func (c *Client) ImportBankTransactions(ctx context.Context, lines []BankLine, reconcile bool) (*ImportResult, error) {
	body := map[string]any{"transactions": lines, "reconcile": reconcile}
	var result ImportResult
	if err := c.post(ctx, "/api/v1/bank/transactions", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ImportStatement uploads a CSV statement for the bank account code.
func (c *Client) ImportStatement(ctx context.Context, account int, csv io.Reader, reconcile bool) (*ImportResult, error) {
	params := url.Values{}
	setPositive(params, "account", account)
	if reconcile {
		params.Set("reconcile", "true")
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/bank/statement?"+params.Encode(), csv)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/csv")
	var result ImportResult
	if err := c.doRequest(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListBankTransactions(ctx context.Context, account int, unmatched bool) ([]ledger.BankTransaction, error) {
	params := url.Values{}
	setPositive(params, "account", account)
	if unmatched {
		params.Set("unmatched", "true")
	}
	var result []ledger.BankTransaction
	if err := c.get(ctx, "/api/v1/bank/transactions", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

type ReconcileResult struct {
	Records []ledger.ReconciliationRecord `json:"records"`
	Summary recon.Summary                 `json:"summary"`
}

func (c *Client) ReconcilePending(ctx context.Context, account int) (*ReconcileResult, error) {
	params := url.Values{}
	setPositive(params, "account", account)
	var result ReconcileResult
	if err := c.post(ctx, "/api/v1/bank/reconcile?"+params.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Reconcile(ctx context.Context, bankTxnID string) (*ledger.ReconciliationRecord, error) {
	var result ledger.ReconciliationRecord
	if err := c.post(ctx, "/api/v1/bank/transactions/"+url.PathEscape(bankTxnID)+"/reconcile", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) MatchManually(ctx context.Context, bankTxnID string, ledgerEntryID int64) (*ledger.ReconciliationRecord, error) {
	body := map[string]int64{"ledger_entry_id": ledgerEntryID}
	var result ledger.ReconciliationRecord
	if err := c.post(ctx, "/api/v1/bank/transactions/"+url.PathEscape(bankTxnID)+"/match", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type ReconQuery struct {
	BankTransactionID string
	Status            string
	LatestOnly        bool
	Limit             int
}

func (c *Client) ListReconciliations(ctx context.Context, q ReconQuery) (*ReconcileResult, error) {
	params := url.Values{}
	setNonEmpty(params, "bank_txn", q.BankTransactionID)
	setNonEmpty(params, "status", q.Status)
	setPositive(params, "limit", q.Limit)
	if q.LatestOnly {
		params.Set("latest", "true")
	}
	var result ReconcileResult
	if err := c.get(ctx, "/api/v1/reconciliations", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Audit

func (c *Client) ListAudit(ctx context.Context, ref, entity string, limit int) ([]store.AuditEntry, error) {
	params := url.Values{}
	setNonEmpty(params, "ref", ref)
	setNonEmpty(params, "entity", entity)
	setPositive(params, "limit", limit)
	var result []store.AuditEntry
	if err := c.get(ctx, "/api/v1/audit", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

type Health struct {
	Status string `json:"status"`
	Halted string `json:"halted,omitempty"`
}

// Ping checks that the server is reachable and reports whether posting is
// halted.
func (c *Client) Ping(ctx context.Context) (*Health, error) {
	var result Health
	if err := c.get(ctx, "/healthz", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func setNonEmpty(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func setPositive(v url.Values, key string, n int) {
	if n > 0 {
		v.Set(key, strconv.Itoa(n))
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.actor != "" {
		req.Header.Set("X-Actor", c.actor)
	}
	return req, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.doRequest(req, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.doRequest(req, result)
}

func (c *Client) doRequest(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(bodyBytes, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(bodyBytes))
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(bodyBytes, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
