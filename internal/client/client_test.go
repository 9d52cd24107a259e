package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/posting"
	"github.com/simonvc/khata/internal/recon"
	"github.com/simonvc/khata/internal/server"
	"github.com/simonvc/khata/internal/store"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := server.New(st,
		posting.NewEngine(st, posting.WithLogger(log)),
		recon.NewEngine(st, recon.DefaultConfig(), recon.WithLogger(log)),
		server.Options{Logger: log})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL+"/", "priya")
}

func TestClientPostAndReport(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	h, err := c.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)

	_, err = c.PostTemplate(ctx, "capital", TemplateEntry{Date: "2024-04-01", Amount: decimal.NewFromInt(50000)})
	require.NoError(t, err)

	req := ledger.PostingRequest{
		VoucherType: ledger.VoucherPayment,
		Date:        day(t, "2024-06-05"),
		Narration:   "June rent",
		Lines: []ledger.PostingLine{
			{AccountCode: 5101, Debit: decimal.NewFromInt(10000)},
			{AccountCode: ledger.CodeCash, Credit: decimal.NewFromInt(10000)},
		},
	}
	entry, err := c.PostJournal(ctx, VoucherFrom(req))
	require.NoError(t, err)
	assert.Equal(t, "PAY-2024-25-0001", entry.VoucherNumber)
	assert.Equal(t, "priya", entry.CreatedBy)

	pl, err := c.ProfitAndLoss(ctx, Range{FY: "2024-25"})
	require.NoError(t, err)
	assert.True(t, pl.NetProfit.Equal(decimal.NewFromInt(-10000)), pl.NetProfit.String())

	cb, err := c.CashBook(ctx, Range{From: "2024-04-01", To: "2024-06-30"}, ledger.CodeCash)
	require.NoError(t, err)
	assert.True(t, cb.ClosingBalance.Equal(decimal.NewFromInt(40000)))

	audit, err := c.ListAudit(ctx, "", entry.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, audit)
	assert.Equal(t, "priya", audit[0].Actor)
}

func TestClientReturnsAPIError(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	_, err := c.PostJournal(ctx, Voucher{VoucherType: "Journal", Date: "2024-06-05", Lines: []Line{
		{AccountCode: 5101, Debit: decimal.NewFromInt(1)},
		{AccountCode: 1001, Credit: decimal.NewFromInt(1)},
	}})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), err)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, ledger.CheckNarration, apiErr.Check)

	_, err = c.GetJournal(ctx, "missing")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestClientStatementUpload(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	res, err := c.ImportStatement(ctx, ledger.CodeBank, strings.NewReader("2024-06-05,-450.00,SMS CHARGES\n"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Nil(t, res.Summary)

	pending, err := c.ReconcilePending(ctx, ledger.CodeBank)
	require.NoError(t, err)
	assert.Equal(t, 1, pending.Summary.NeedsReview)

	again, err := c.ImportStatement(ctx, ledger.CodeBank, strings.NewReader("2024-06-05,-450.00,SMS CHARGES\n"), false)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Imported)
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ledger.ParseDate(s)
	require.NoError(t, err)
	return d
}
