package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/simonvc/khata/internal/client"
	"github.com/simonvc/khata/internal/ledger"
)

type journalsLoadedMsg struct {
	journals []ledger.JournalEntry
	err      error
}

// dayBookModel lists the current financial year's vouchers, newest first.
type dayBookModel struct {
	journals []ledger.JournalEntry
	cursor   int
	loading  bool
	err      error
	width    int
	height   int
}

func (m *dayBookModel) init(c *client.Client) tea.Cmd {
	m.loading = true
	fy := ledger.FinancialYearOf(time.Now())
	return func() tea.Msg {
		journals, err := c.ListJournals(context.Background(), client.JournalQuery{
			From:  fy.Start().Format(ledger.DateLayout),
			To:    fy.End().Format(ledger.DateLayout),
			Limit: 500,
		})
		return journalsLoadedMsg{journals: journals, err: err}
	}
}

func (m dayBookModel) update(msg tea.Msg) (dayBookModel, tea.Cmd) {
	switch msg := msg.(type) {
	case journalsLoadedMsg:
		m.loading = false
		m.journals = msg.journals
		m.err = msg.err
		if m.cursor >= len(m.journals) {
			m.cursor = max(len(m.journals)-1, 0)
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.journals)-1 {
				m.cursor++
			}
		}
	}
	return m, nil
}

func (m *dayBookModel) selectedID() string {
	if m.cursor >= 0 && m.cursor < len(m.journals) {
		return m.journals[m.cursor].ID
	}
	return ""
}

func (m *dayBookModel) view() string {
	if m.loading {
		return "Loading day book..."
	}
	if m.err != nil {
		return errorStyle.Render("Error: " + m.err.Error())
	}
	if len(m.journals) == 0 {
		return dimStyle.Render("No vouchers this year. Press 't' to post one.")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Day Book " + ledger.FinancialYearOf(time.Now()).Code()))
	b.WriteString("\n")

	header := fmt.Sprintf("  %-10s %-18s %-10s %-34s %16s %s", "DATE", "VOUCHER", "TYPE", "NARRATION", "AMOUNT", "STATUS")
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	maxRows := m.height - 5
	if maxRows < 1 {
		maxRows = 10
	}
	start := 0
	if m.cursor >= maxRows {
		start = m.cursor - maxRows + 1
	}

	for i := start; i < len(m.journals) && i < start+maxRows; i++ {
		j := m.journals[i]
		status := string(j.Status)
		if j.ReversalOf != "" {
			status = "REVERSAL"
		}
		line := fmt.Sprintf("  %-10s %-18s %-10s %-34s %16s %s",
			j.Date.Format(ledger.DateLayout), j.VoucherNumber, j.VoucherType, truncate(j.Narration, 34),
			ledger.FormatINR(j.TotalDebit), status)
		switch {
		case i == m.cursor:
			b.WriteString(selectedStyle.Render("> " + line[2:]))
		case j.Status == ledger.StatusVoid:
			b.WriteString(dimStyle.Render(line))
		default:
			b.WriteString(line)
		}
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("\n  %d vouchers", len(m.journals)))
	return b.String()
}
