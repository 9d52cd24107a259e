package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/simonvc/khata/internal/client"
	"github.com/simonvc/khata/internal/ledger"
)

type bankLoadedMsg struct {
	txns   []ledger.BankTransaction
	latest map[string]ledger.ReconciliationRecord
	err    error
}

type bankReconciledMsg struct {
	result *client.ReconcileResult
	err    error
}

// bankModel lists imported statement lines with their latest
// reconciliation outcome.
type bankModel struct {
	txns    []ledger.BankTransaction
	latest  map[string]ledger.ReconciliationRecord
	cursor  int
	loading bool
	busy    bool
	err     error
	notice  string
	width   int
	height  int
}

func (m *bankModel) init(c *client.Client) tea.Cmd {
	m.loading = true
	return func() tea.Msg {
		ctx := context.Background()
		txns, err := c.ListBankTransactions(ctx, 0, false)
		if err != nil {
			return bankLoadedMsg{err: err}
		}
		hist, err := c.ListReconciliations(ctx, client.ReconQuery{LatestOnly: true})
		if err != nil {
			return bankLoadedMsg{txns: txns, err: err}
		}
		latest := make(map[string]ledger.ReconciliationRecord, len(hist.Records))
		for _, r := range hist.Records {
			latest[r.BankTransactionID] = r
		}
		return bankLoadedMsg{txns: txns, latest: latest}
	}
}

func (m bankModel) update(msg tea.Msg, c *client.Client) (bankModel, tea.Cmd) {
	switch msg := msg.(type) {
	case bankLoadedMsg:
		m.loading = false
		m.txns = msg.txns
		m.latest = msg.latest
		m.err = msg.err
		if m.cursor >= len(m.txns) {
			m.cursor = max(len(m.txns)-1, 0)
		}

	case bankReconciledMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		s := msg.result.Summary
		m.notice = fmt.Sprintf("%d lines: %d matched, %d need review", s.Total, s.Matched, s.NeedsReview)
		return m, m.init(c)

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.txns)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Reconcile):
			m.busy, m.err, m.notice = true, nil, ""
			return m, func() tea.Msg {
				res, err := c.ReconcilePending(context.Background(), 0)
				return bankReconciledMsg{result: res, err: err}
			}
		case key.Matches(msg, keys.Enter):
			if m.cursor >= len(m.txns) {
				return m, nil
			}
			id := m.txns[m.cursor].ID
			m.busy, m.err, m.notice = true, nil, ""
			return m, func() tea.Msg {
				rec, err := c.Reconcile(context.Background(), id)
				if err != nil {
					return bankReconciledMsg{err: err}
				}
				res := &client.ReconcileResult{Records: []ledger.ReconciliationRecord{*rec}}
				res.Summary.Total = 1
				if rec.Status == ledger.ReconMatched {
					res.Summary.Matched = 1
				} else {
					res.Summary.NeedsReview = 1
				}
				return bankReconciledMsg{result: res}
			}
		}
	}
	return m, nil
}

func (m *bankModel) view() string {
	if m.loading {
		return "Loading bank statement..."
	}
	if m.err != nil && len(m.txns) == 0 {
		return errorStyle.Render("Error: " + m.err.Error())
	}
	if len(m.txns) == 0 {
		return dimStyle.Render("No statement lines imported. Use 'khata bank import' to load a CSV.")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Bank Reconciliation"))
	b.WriteString("\n")

	header := fmt.Sprintf("  %-10s %-32s %16s %-10s %-13s %s", "DATE", "DESCRIPTION", "AMOUNT", "MATCH", "STATUS", "CONF")
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	maxRows := m.height - 6
	if maxRows < 1 {
		maxRows = 10
	}
	start := 0
	if m.cursor >= maxRows {
		start = m.cursor - maxRows + 1
	}

	var matched int
	for _, t := range m.txns {
		if r, ok := m.latest[t.ID]; ok && r.Status == ledger.ReconMatched {
			matched++
		}
	}

	for i := start; i < len(m.txns) && i < start+maxRows; i++ {
		t := m.txns[i]
		matchType, status, conf := "-", "UNREVIEWED", ""
		r, ok := m.latest[t.ID]
		if ok {
			matchType, status = string(r.MatchType), string(r.Status)
			conf = fmt.Sprintf("%.0f%%", r.Confidence*100)
		}
		line := fmt.Sprintf("  %-10s %-32s %16s %-10s %-13s %s",
			t.Date.Format(ledger.DateLayout), truncate(t.Description, 32), formatSigned(t.Amount), matchType, status, conf)
		switch {
		case i == m.cursor:
			b.WriteString(selectedStyle.Render("> " + line[2:]))
		case ok && r.Status == ledger.ReconMatched:
			b.WriteString(successStyle.Render(line))
		case ok:
			b.WriteString(warnStyle.Render(line))
		default:
			b.WriteString(line)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n  %d of %d lines matched", matched, len(m.txns))
	switch {
	case m.busy:
		b.WriteString("\n  " + dimStyle.Render("Reconciling..."))
	case m.err != nil:
		b.WriteString("\n" + errorStyle.Render("  "+m.err.Error()))
	case m.notice != "":
		b.WriteString("\n" + successStyle.Render("  "+m.notice))
	}
	return b.String()
}
