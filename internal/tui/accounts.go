package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"github.com/simonvc/khata/internal/client"
	"github.com/simonvc/khata/internal/ledger"
)

type accountsLoadedMsg struct {
	accounts []ledger.Account
	err      error
}

// accountToggleConfirmedMsg is sent when the user confirms an
// activate/deactivate in the list.
type accountToggleConfirmedMsg struct {
	code   int
	active bool
}

// accountToggledMsg is sent after the server applies the change.
type accountToggledMsg struct {
	account *ledger.Account
	err     error
}

type accountListModel struct {
	accounts      []ledger.Account
	cursor        int
	loading       bool
	err           error
	width         int
	height        int
	confirmToggle bool
}

func (m *accountListModel) init(c *client.Client) tea.Cmd {
	m.loading = true
	return func() tea.Msg {
		accounts, err := c.ListAccounts(context.Background(), client.AccountQuery{})
		return accountsLoadedMsg{accounts: accounts, err: err}
	}
}

func (m accountListModel) update(msg tea.Msg) (accountListModel, tea.Cmd) {
	switch msg := msg.(type) {
	case accountsLoadedMsg:
		m.loading = false
		m.accounts = msg.accounts
		m.err = msg.err
		if m.cursor >= len(m.accounts) {
			m.cursor = max(len(m.accounts)-1, 0)
		}

	case accountToggledMsg:
		m.confirmToggle = false
		if msg.err != nil {
			m.err = msg.err
		}

	case tea.KeyMsg:
		if m.confirmToggle {
			m.confirmToggle = false
			if msg.String() == "y" || msg.String() == "Y" {
				a := m.selected()
				if a == nil {
					return m, nil
				}
				code, active := a.Code, !a.Active
				return m, func() tea.Msg {
					return accountToggleConfirmedMsg{code: code, active: active}
				}
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.accounts)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Toggle):
			if m.selected() != nil {
				m.confirmToggle = true
				m.err = nil
			}
		}
	}
	return m, nil
}

func (m *accountListModel) selected() *ledger.Account {
	if m.cursor >= 0 && m.cursor < len(m.accounts) {
		return &m.accounts[m.cursor]
	}
	return nil
}

func (m *accountListModel) selectedCode() int {
	if a := m.selected(); a != nil {
		return a.Code
	}
	return 0
}

func (m *accountListModel) view() string {
	if m.loading {
		return "Loading accounts..."
	}
	if m.err != nil && len(m.accounts) == 0 {
		return errorStyle.Render("Error: " + m.err.Error())
	}
	if len(m.accounts) == 0 {
		return dimStyle.Render("No accounts found. Press 'n' to create one.")
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Chart of Accounts"))
	b.WriteString("\n")

	header := fmt.Sprintf("  %-5s %-30s %-10s %-22s %18s %s", "CODE", "NAME", "CLASS", "GROUP", "BALANCE", "")
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

	for i := start; i < len(m.accounts) && i < start+maxRows; i++ {
		a := m.accounts[i]
		flag := ""
		if a.CashOrBank {
			flag = "cash/bank"
		}
		if !a.Active {
			flag = "inactive"
		}
		line := fmt.Sprintf("  %-5d %-30s %-10s %-22s %18s %s",
			a.Code, truncate(a.Name, 30), a.Classification, truncate(a.Group, 22), balanceLabel(a.Balance), flag)
		switch {
		case i == m.cursor:
			b.WriteString(selectedStyle.Render("> " + line[2:]))
		case !a.Active:
			b.WriteString(dimStyle.Render(line))
		default:
			b.WriteString(line)
		}
		b.WriteString("\n")
	}

	switch {
	case m.confirmToggle:
		a := m.selected()
		verb := "Deactivate"
		if !a.Active {
			verb = "Activate"
		}
		b.WriteString("\n" + warnStyle.Render(fmt.Sprintf("  %s %d %s? (y/n)", verb, a.Code, a.Name)))
	case m.err != nil:
		b.WriteString("\n" + errorStyle.Render("  "+m.err.Error()))
	default:
		b.WriteString(fmt.Sprintf("\n  %d accounts", len(m.accounts)))
	}

	return b.String()
}

// balanceLabel renders a debit-minus-credit balance as an amount with its
// side, e.g. "₹5,000.00 Dr".
func balanceLabel(d decimal.Decimal) string {
	switch {
	case d.IsZero():
		return "-"
	case d.IsNegative():
		return ledger.FormatINR(d.Neg()) + " Cr"
	default:
		return ledger.FormatINR(d) + " Dr"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-2]) + ".."
}
