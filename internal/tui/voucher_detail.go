package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/simonvc/khata/internal/client"
	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/posting"
)

type voucherLoadedMsg struct {
	entry *ledger.JournalEntry
	err   error
}

type voucherVoidedMsg struct {
	correction *posting.Correction
	err        error
}

type voucherDetailModel struct {
	entry   *ledger.JournalEntry
	loading bool
	err     error
	width   int

	voiding bool
	reason  textinput.Model
	// statusMsg is picked up by the app after a successful void.
	statusMsg string
}

func (m *voucherDetailModel) init(c *client.Client, id string) tea.Cmd {
	m.loading = true
	m.voiding = false
	m.statusMsg = ""
	return func() tea.Msg {
		e, err := c.GetJournal(context.Background(), id)
		return voucherLoadedMsg{entry: e, err: err}
	}
}

func (m voucherDetailModel) update(msg tea.Msg, c *client.Client) (voucherDetailModel, tea.Cmd) {
	switch msg := msg.(type) {
	case voucherLoadedMsg:
		m.loading = false
		m.entry = msg.entry
		m.err = msg.err

	case voucherVoidedMsg:
		m.voiding = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.entry = msg.correction.Original
		m.statusMsg = fmt.Sprintf("Voided %s with %s", msg.correction.Original.VoucherNumber, msg.correction.Reversal.VoucherNumber)

	case tea.KeyMsg:
		if m.voiding {
			switch {
			case key.Matches(msg, keys.Escape):
				m.voiding = false
				return m, nil
			case key.Matches(msg, keys.Enter):
				reason := strings.TrimSpace(m.reason.Value())
				if reason == "" {
					m.err = fmt.Errorf("a reason is required to void")
					return m, nil
				}
				id := m.entry.ID
				return m, func() tea.Msg {
					corr, err := c.VoidJournal(context.Background(), id, reason)
					return voucherVoidedMsg{correction: corr, err: err}
				}
			}
			var cmd tea.Cmd
			m.reason, cmd = m.reason.Update(msg)
			return m, cmd
		}

		if key.Matches(msg, keys.Void) && m.entry != nil && m.entry.Status == ledger.StatusPosted && m.entry.ReversalOf == "" {
			m.reason = textinput.New()
			m.reason.Placeholder = "e.g. duplicate entry"
			m.reason.CharLimit = 200
			m.reason.Focus()
			m.voiding = true
			m.err = nil
		}
	}
	return m, nil
}

func (m *voucherDetailModel) view() string {
	if m.loading {
		return "Loading voucher..."
	}
	if m.entry == nil {
		if m.err != nil {
			return errorStyle.Render("Error: " + m.err.Error())
		}
		return ""
	}
	e := m.entry

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s Voucher %s", e.VoucherType, e.VoucherNumber)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Date:"), e.Date.Format(ledger.DateLayout)))
	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Narration:"), e.Narration))
	if e.PartyName != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Party:"), e.PartyName))
	}
	if e.Reference != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Reference:"), e.Reference))
	}
	if e.PaymentMode != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Mode:"), e.PaymentMode))
	}
	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Status:"), e.Status))
	b.WriteString(fmt.Sprintf("%s %s (%s)\n", labelStyle.Render("Entered:"), e.CreatedAt.Local().Format("2006-01-02 15:04"), e.CreatedBy))
	if e.ReversalOf != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Reverses:"), e.ReversalOf))
	}
	if e.ReversedBy != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Reversed by:"), e.ReversedBy))
	}
	if e.ReclassifiedFrom != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Replaces:"), e.ReclassifiedFrom))
	}
	b.WriteString("\n")

	header := fmt.Sprintf("  %-3s %-6s %-30s %16s %16s", "#", "CODE", "ACCOUNT", "DEBIT", "CREDIT")
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")
	for _, l := range e.Lines {
		line := fmt.Sprintf("  %-3d %-6d %-30s %16s %16s",
			l.Index+1, l.AccountCode, truncate(l.AccountName, 30), ledger.FormatAmount(l.Debit), ledger.FormatAmount(l.Credit))
		if l.Debit.IsPositive() {
			b.WriteString(debitStyle.Render(line))
		} else {
			b.WriteString(creditStyle.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("  %s\n", strings.Repeat("─", 76)))
	b.WriteString(fmt.Sprintf("  %-41s %16s %16s\n", "Total", e.TotalDebit.StringFixed(2), e.TotalCredit.StringFixed(2)))

	if m.voiding {
		b.WriteString("\n  Reason for voiding:\n\n")
		b.WriteString("  " + m.reason.View() + "\n")
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.err.Error()) + "\n")
	}
	if m.statusMsg != "" {
		b.WriteString("\n" + successStyle.Render("  "+m.statusMsg) + "\n")
	}

	hint := "  ESC to go back"
	if e.Status == ledger.StatusPosted && e.ReversalOf == "" && !m.voiding {
		hint = "  v: void   ESC to go back"
	}
	b.WriteString("\n" + dimStyle.Render(hint))
	return b.String()
}
