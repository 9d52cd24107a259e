package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"github.com/simonvc/khata/internal/client"
	"github.com/simonvc/khata/internal/ledger"
)

type jeStep int

const (
	jeStepType jeStep = iota
	jeStepDate
	jeStepNarration
	jeStepParty
	jeStepLineAccount
	jeStepLineSide
	jeStepLineAmount
	jeStepMore
	jeStepConfirm
)

type entryLine struct {
	code    int
	isDebit bool
	amount  decimal.Decimal
}

type accountsForJEMsg struct {
	accounts []ledger.Account
	err      error
}

type voucherCheckedMsg struct {
	checked *ledger.ValidatedEntry
	err     error
}

type voucherPostedMsg struct {
	entry *ledger.JournalEntry
	err   error
}

type journalEntryModel struct {
	step      jeStep
	typeIdx   int
	date      textinput.Model
	narration textinput.Model
	party     textinput.Model
	lines     []entryLine

	accountInput textinput.Model
	amountInput  textinput.Model
	isDebit      bool
	moreCursor   int // 0 = add another, 1 = done

	accounts []ledger.Account
	checked  *ledger.ValidatedEntry

	err       error
	done      bool
	cancelled bool
	statusMsg string
	width     int
}

func newJournalEntry() journalEntryModel {
	dateInput := textinput.New()
	dateInput.Placeholder = ledger.Day(time.Now()).Format(ledger.DateLayout)
	dateInput.CharLimit = 10

	narration := textinput.New()
	narration.Placeholder = "e.g. Paid June rent"
	narration.CharLimit = 500

	party := textinput.New()
	party.Placeholder = "optional"
	party.CharLimit = 120

	acctInput := textinput.New()
	acctInput.Placeholder = "e.g. 1001"
	acctInput.CharLimit = 4

	amtInput := textinput.New()
	amtInput.Placeholder = "e.g. 5000.00"
	amtInput.CharLimit = 20

	return journalEntryModel{
		step:         jeStepType,
		typeIdx:      2, // Journal
		date:         dateInput,
		narration:    narration,
		party:        party,
		accountInput: acctInput,
		amountInput:  amtInput,
		isDebit:      true,
	}
}

func (m *journalEntryModel) loadAccounts(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		accounts, err := c.ListAccounts(context.Background(), client.AccountQuery{ActiveOnly: true})
		return accountsForJEMsg{accounts: accounts, err: err}
	}
}

func (m journalEntryModel) voucherType() ledger.VoucherType {
	return ledger.AllVoucherTypes[m.typeIdx]
}

func (m journalEntryModel) voucher() client.Voucher {
	date := strings.TrimSpace(m.date.Value())
	if date == "" {
		date = m.date.Placeholder
	}
	v := client.Voucher{
		VoucherType: m.voucherType().String(),
		Date:        date,
		Narration:   strings.TrimSpace(m.narration.Value()),
		PartyName:   strings.TrimSpace(m.party.Value()),
	}
	for _, l := range m.lines {
		line := client.Line{AccountCode: l.code}
		if l.isDebit {
			line.Debit = l.amount
		} else {
			line.Credit = l.amount
		}
		v.Lines = append(v.Lines, line)
	}
	return v
}

func (m journalEntryModel) update(msg tea.Msg, c *client.Client) (journalEntryModel, tea.Cmd) {
	switch msg := msg.(type) {
	case accountsForJEMsg:
		m.accounts = msg.accounts
		return m, nil

	case voucherCheckedMsg:
		m.checked = msg.checked
		m.err = msg.err
		return m, nil

	case voucherPostedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.step = jeStepConfirm
			return m, nil
		}
		m.done = true
		m.statusMsg = fmt.Sprintf("Posted %s", msg.entry.VoucherNumber)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Escape) {
			m.cancelled = true
			return m, nil
		}

		switch m.step {
		case jeStepType:
			return m.updateType(msg)
		case jeStepDate:
			return m.updateDate(msg)
		case jeStepNarration:
			return m.updateNarration(msg)
		case jeStepParty:
			return m.updateParty(msg)
		case jeStepLineAccount:
			return m.updateLineAccount(msg)
		case jeStepLineSide:
			return m.updateLineSide(msg)
		case jeStepLineAmount:
			return m.updateLineAmount(msg)
		case jeStepMore:
			return m.updateMore(msg, c)
		case jeStepConfirm:
			return m.updateConfirm(msg, c)
		}
	}
	return m, nil
}

func (m journalEntryModel) updateType(msg tea.KeyMsg) (journalEntryModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if m.typeIdx > 0 {
			m.typeIdx--
		}
	case key.Matches(msg, keys.Down):
		if m.typeIdx < len(ledger.AllVoucherTypes)-1 {
			m.typeIdx++
		}
	case key.Matches(msg, keys.Enter):
		m.step = jeStepDate
		m.date.Focus()
	}
	return m, nil
}

func (m journalEntryModel) updateDate(msg tea.KeyMsg) (journalEntryModel, tea.Cmd) {
	if key.Matches(msg, keys.Enter) {
		if v := strings.TrimSpace(m.date.Value()); v != "" {
			if _, err := ledger.ParseDate(v); err != nil {
				m.err = err
				return m, nil
			}
		}
		m.err = nil
		m.date.Blur()
		m.step = jeStepNarration
		m.narration.Focus()
		return m, nil
	}
	var cmd tea.Cmd
	m.date, cmd = m.date.Update(msg)
	return m, cmd
}

func (m journalEntryModel) updateNarration(msg tea.KeyMsg) (journalEntryModel, tea.Cmd) {
	if key.Matches(msg, keys.Enter) {
		if strings.TrimSpace(m.narration.Value()) == "" {
			m.err = fmt.Errorf("narration is required")
			return m, nil
		}
		m.err = nil
		m.narration.Blur()
		m.step = jeStepParty
		m.party.Focus()
		return m, nil
	}
	var cmd tea.Cmd
	m.narration, cmd = m.narration.Update(msg)
	return m, cmd
}

func (m journalEntryModel) updateParty(msg tea.KeyMsg) (journalEntryModel, tea.Cmd) {
	if key.Matches(msg, keys.Enter) {
		m.party.Blur()
		return m.startLine(), nil
	}
	var cmd tea.Cmd
	m.party, cmd = m.party.Update(msg)
	return m, cmd
}

func (m journalEntryModel) startLine() journalEntryModel {
	m.step = jeStepLineAccount
	m.accountInput.SetValue("")
	m.accountInput.Focus()
	m.isDebit = len(m.lines) == 0 || m.difference().IsNegative()
	m.err = nil
	return m
}

func (m journalEntryModel) updateLineAccount(msg tea.KeyMsg) (journalEntryModel, tea.Cmd) {
	if key.Matches(msg, keys.Enter) {
		code, err := strconv.Atoi(strings.TrimSpace(m.accountInput.Value()))
		if err != nil {
			m.err = fmt.Errorf("account code must be a number")
			return m, nil
		}
		if m.accounts != nil && m.accountName(code) == "" {
			m.err = fmt.Errorf("no active account %d", code)
			return m, nil
		}
		m.err = nil
		m.accountInput.Blur()
		m.step = jeStepLineSide
		return m, nil
	}
	var cmd tea.Cmd
	m.accountInput, cmd = m.accountInput.Update(msg)
	return m, cmd
}

func (m journalEntryModel) updateLineSide(msg tea.KeyMsg) (journalEntryModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up), key.Matches(msg, keys.Down):
		m.isDebit = !m.isDebit
	case key.Matches(msg, keys.Enter):
		m.step = jeStepLineAmount
		m.amountInput.SetValue("")
		if diff := m.difference(); !diff.IsZero() {
			m.amountInput.SetValue(diff.Abs().StringFixed(2))
		}
		m.amountInput.Focus()
	}
	return m, nil
}

func (m journalEntryModel) updateLineAmount(msg tea.KeyMsg) (journalEntryModel, tea.Cmd) {
	if key.Matches(msg, keys.Enter) {
		amt, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(m.amountInput.Value()), ",", ""))
		if err != nil || !amt.IsPositive() {
			m.err = fmt.Errorf("amount must be a positive number")
			return m, nil
		}
		code, _ := strconv.Atoi(strings.TrimSpace(m.accountInput.Value()))
		m.lines = append(m.lines, entryLine{code: code, isDebit: m.isDebit, amount: ledger.Round(amt)})
		m.amountInput.Blur()
		m.err = nil
		m.moreCursor = 0
		if len(m.lines) >= 2 && m.difference().IsZero() {
			m.moreCursor = 1
		}
		m.step = jeStepMore
		return m, nil
	}
	var cmd tea.Cmd
	m.amountInput, cmd = m.amountInput.Update(msg)
	return m, cmd
}

func (m journalEntryModel) updateMore(msg tea.KeyMsg, c *client.Client) (journalEntryModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up), key.Matches(msg, keys.Down):
		m.moreCursor = 1 - m.moreCursor
	case key.Matches(msg, keys.Enter):
		if m.moreCursor == 0 {
			return m.startLine(), nil
		}
		if len(m.lines) < 2 {
			m.err = fmt.Errorf("need at least 2 lines")
			m.moreCursor = 0
			return m, nil
		}
		m.err = nil
		m.checked = nil
		m.step = jeStepConfirm
		v := m.voucher()
		return m, func() tea.Msg {
			checked, err := c.ValidateJournal(context.Background(), v)
			return voucherCheckedMsg{checked: checked, err: err}
		}
	}
	return m, nil
}

func (m journalEntryModel) updateConfirm(msg tea.KeyMsg, c *client.Client) (journalEntryModel, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		if m.checked == nil {
			return m, nil
		}
		v := m.voucher()
		return m, func() tea.Msg {
			entry, err := c.PostJournal(context.Background(), v)
			return voucherPostedMsg{entry: entry, err: err}
		}
	case "n", "N":
		m.cancelled = true
	case "e", "E":
		m.step = jeStepMore
		m.moreCursor = 0
		m.err = nil
	}
	return m, nil
}

// difference is debits minus credits over the lines entered so far.
func (m journalEntryModel) difference() decimal.Decimal {
	diff := decimal.Zero
	for _, l := range m.lines {
		if l.isDebit {
			diff = diff.Add(l.amount)
		} else {
			diff = diff.Sub(l.amount)
		}
	}
	return diff
}

func (m journalEntryModel) accountName(code int) string {
	for _, a := range m.accounts {
		if a.Code == code {
			return a.Name
		}
	}
	return ""
}

func (m *journalEntryModel) balanceSummary() string {
	var dr, cr decimal.Decimal
	for _, l := range m.lines {
		if l.isDebit {
			dr = dr.Add(l.amount)
		} else {
			cr = cr.Add(l.amount)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "  Debits:  %s\n", ledger.FormatINR(dr))
	fmt.Fprintf(&b, "  Credits: %s\n", ledger.FormatINR(cr))
	diff := dr.Sub(cr)
	switch {
	case ledger.WithinTolerance(dr, cr):
		b.WriteString(successStyle.Render("  BALANCED"))
	case diff.IsPositive():
		b.WriteString(errorStyle.Render("  over-debited by " + ledger.FormatINR(diff)))
	default:
		b.WriteString(errorStyle.Render("  over-credited by " + ledger.FormatINR(diff.Neg())))
	}
	return b.String()
}

func (m *journalEntryModel) writeLines(b *strings.Builder, indent string) {
	for _, l := range m.lines {
		side, style := "Dr", debitStyle
		if !l.isDebit {
			side, style = "Cr", creditStyle
		}
		b.WriteString(style.Render(fmt.Sprintf("%s%-3s %-5d %-28s %14s", indent, side, l.code, truncate(m.accountName(l.code), 28), l.amount.StringFixed(2))))
		b.WriteString("\n")
	}
}

func (m *journalEntryModel) view() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("New " + m.voucherType().String() + " Voucher"))
	b.WriteString("\n\n")

	if len(m.lines) > 0 && m.step != jeStepConfirm {
		b.WriteString(dimStyle.Render("  Lines so far:") + "\n")
		m.writeLines(&b, "    ")
		b.WriteString("\n")
		b.WriteString(m.balanceSummary())
		b.WriteString("\n\n")
	}

	switch m.step {
	case jeStepType:
		b.WriteString("  Voucher type:\n\n")
		for i, vt := range ledger.AllVoucherTypes {
			label := fmt.Sprintf("%-11s %s", vt.String(), vt.Prefix())
			if i == m.typeIdx {
				b.WriteString(selectedStyle.Render("  > "+label) + "\n")
			} else {
				b.WriteString("    " + label + "\n")
			}
		}

	case jeStepDate:
		b.WriteString("  Date (blank for today):\n\n")
		b.WriteString("  " + m.date.View() + "\n")

	case jeStepNarration:
		b.WriteString("  Narration:\n\n")
		b.WriteString("  " + m.narration.View() + "\n")

	case jeStepParty:
		b.WriteString("  Party name:\n\n")
		b.WriteString("  " + m.party.View() + "\n")

	case jeStepLineAccount:
		fmt.Fprintf(&b, "  Line %d, account code:\n\n", len(m.lines)+1)
		b.WriteString("  " + m.accountInput.View() + "\n")
		if len(m.accounts) > 0 {
			b.WriteString("\n" + dimStyle.Render("  Accounts:") + "\n")
			typed := strings.TrimSpace(m.accountInput.Value())
			shown := 0
			for _, a := range m.accounts {
				if !strings.HasPrefix(strconv.Itoa(a.Code), typed) {
					continue
				}
				b.WriteString(dimStyle.Render(fmt.Sprintf("    %-5d %s", a.Code, a.Name)) + "\n")
				if shown++; shown == 12 {
					break
				}
			}
		}

	case jeStepLineSide:
		fmt.Fprintf(&b, "  Account: %s %s\n\n", m.accountInput.Value(), m.accountName(m.codeTyped()))
		for _, debit := range []bool{true, false} {
			label := "Debit (Dr)"
			if !debit {
				label = "Credit (Cr)"
			}
			if debit == m.isDebit {
				b.WriteString(selectedStyle.Render("  > "+label) + "\n")
			} else {
				b.WriteString("    " + label + "\n")
			}
		}

	case jeStepLineAmount:
		side := "Debit"
		if !m.isDebit {
			side = "Credit"
		}
		fmt.Fprintf(&b, "  Account: %s | %s\n", m.accountInput.Value(), side)
		b.WriteString("  Amount:\n\n")
		b.WriteString("  " + m.amountInput.View() + "\n")

	case jeStepMore:
		options := []string{"Add another line", "Done, review"}
		if len(m.lines) < 2 {
			options[1] = "Done (need at least 2 lines)"
		}
		b.WriteString("  What next?\n\n")
		for i, opt := range options {
			if i == m.moreCursor {
				b.WriteString(selectedStyle.Render("  > "+opt) + "\n")
			} else {
				b.WriteString("    " + opt + "\n")
			}
		}

	case jeStepConfirm:
		v := m.voucher()
		var summary strings.Builder
		fmt.Fprintf(&summary, "%s %s\n", labelStyle.Render("Date:"), v.Date)
		fmt.Fprintf(&summary, "%s %s\n", labelStyle.Render("Narration:"), v.Narration)
		if v.PartyName != "" {
			fmt.Fprintf(&summary, "%s %s\n", labelStyle.Render("Party:"), v.PartyName)
		}
		summary.WriteString("\n")
		m.writeLines(&summary, "")
		if m.checked != nil {
			fmt.Fprintf(&summary, "\n%-38s %14s\n", "Total", m.checked.TotalDebit.StringFixed(2))
		}
		b.WriteString(boxStyle.Render(summary.String()))
		b.WriteString("\n\n")
		switch {
		case m.checked != nil:
			b.WriteString("  Post this voucher? (y/n, e to edit)\n")
		case m.err == nil:
			b.WriteString(dimStyle.Render("  Checking...") + "\n")
		default:
			b.WriteString("  Press e to edit the lines or n to discard.\n")
		}
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.err.Error()) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("  ESC to cancel"))
	return b.String()
}

func (m journalEntryModel) codeTyped() int {
	code, _ := strconv.Atoi(strings.TrimSpace(m.accountInput.Value()))
	return code
}
