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

type accountDetailLoadedMsg struct {
	book *ledger.LedgerView
	err  error
}

// accountDetailModel shows an account's ledger for one financial year.
type accountDetailModel struct {
	code    int
	fy      ledger.FinancialYear
	book    *ledger.LedgerView
	offset  int
	loading bool
	err     error
	width   int
	height  int
}

func (m *accountDetailModel) init(c *client.Client, code int) tea.Cmd {
	m.code = code
	m.fy = ledger.FinancialYearOf(time.Now())
	m.offset = 0
	return m.load(c)
}

func (m *accountDetailModel) load(c *client.Client) tea.Cmd {
	m.loading = true
	code, fy := m.code, m.fy
	return func() tea.Msg {
		v, err := c.Ledger(context.Background(), code, client.Range{FY: fy.Code()})
		return accountDetailLoadedMsg{book: v, err: err}
	}
}

func (m accountDetailModel) update(msg tea.Msg, c *client.Client) (accountDetailModel, tea.Cmd) {
	switch msg := msg.(type) {
	case accountDetailLoadedMsg:
		m.loading = false
		m.book = msg.book
		m.err = msg.err

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if m.offset > 0 {
				m.offset--
			}
		case key.Matches(msg, keys.Down):
			if m.book != nil && m.offset < len(m.book.Rows)-1 {
				m.offset++
			}
		case msg.String() == "[":
			m.fy--
			m.offset = 0
			return m, m.load(c)
		case msg.String() == "]":
			m.fy++
			m.offset = 0
			return m, m.load(c)
		}
	}
	return m, nil
}

func (m *accountDetailModel) view() string {
	if m.loading {
		return "Loading ledger..."
	}
	if m.err != nil {
		return errorStyle.Render("Error: " + m.err.Error())
	}
	if m.book == nil {
		return ""
	}
	v := m.book
	a := v.Account

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d %s", a.Code, a.Name)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s / %s\n", labelStyle.Render("Class:"), ledger.ClassificationLabel(a.Classification), a.Group))
	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Nature:"), a.Nature))
	b.WriteString(fmt.Sprintf("%s %s  %s\n", labelStyle.Render("Period:"), m.fy.Code(),
		subtitleStyle.Render(v.From.Format(ledger.DateLayout)+" to "+v.To.Format(ledger.DateLayout))))
	if !a.Active {
		b.WriteString(warnStyle.Render("  inactive: no new postings") + "\n")
	}
	b.WriteString("\n")

	header := fmt.Sprintf("  %-10s %-18s %-28s %14s %14s %18s", "DATE", "VOUCHER", "PARTICULARS", "DEBIT", "CREDIT", "BALANCE")
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %-10s %-18s %-28s %14s %14s %18s\n", "", "", "Opening balance", "", "", balanceLabel(v.OpeningBalance)))

	if len(v.Rows) == 0 {
		b.WriteString(dimStyle.Render("  No postings in this year.") + "\n")
	}

	maxRows := m.height - 12
	if maxRows < 1 {
		maxRows = 10
	}
	for i := m.offset; i < len(v.Rows) && i < m.offset+maxRows; i++ {
		r := v.Rows[i]
		line := fmt.Sprintf("  %-10s %-18s %-28s %14s %14s %18s",
			r.Date.Format(ledger.DateLayout), r.VoucherNumber, truncate(r.Particulars, 28),
			ledger.FormatAmount(r.Debit), ledger.FormatAmount(r.Credit), balanceLabel(r.RunningBalance))
		switch {
		case r.Status == ledger.RowReversed:
			b.WriteString(dimStyle.Render(line + " R"))
		case r.Debit.IsPositive():
			b.WriteString(debitStyle.Render(line))
		default:
			b.WriteString(creditStyle.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("  %s\n", strings.Repeat("─", 108)))
	b.WriteString(fmt.Sprintf("  %-58s %14s %14s %18s\n", "Closing balance",
		v.TotalDebit.StringFixed(2), v.TotalCredit.StringFixed(2), balanceLabel(v.ClosingBalance)))

	b.WriteString("\n" + dimStyle.Render("  [ ] previous/next year   ESC to go back"))
	return b.String()
}
