package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/simonvc/khata/internal/client"
	"github.com/simonvc/khata/internal/ledger"
)

type wizardStep int

const (
	stepClass wizardStep = iota
	stepCode
	stepName
	stepGroup
	stepCashBank
	stepConfirm
)

type accountCreatedMsg struct {
	account *ledger.Account
	err     error
}

type wizardModel struct {
	step       wizardStep
	class      ledger.Classification
	classIdx   int
	code       textinput.Model
	name       textinput.Model
	group      textinput.Model
	cashOrBank bool

	err       error
	done      bool
	cancelled bool
	statusMsg string
	width     int
}

func newWizard() wizardModel {
	codeInput := textinput.New()
	codeInput.CharLimit = 4

	nameInput := textinput.New()
	nameInput.Placeholder = "e.g. Petty Cash"
	nameInput.CharLimit = 120

	groupInput := textinput.New()
	groupInput.CharLimit = 60

	return wizardModel{
		step:  stepClass,
		code:  codeInput,
		name:  nameInput,
		group: groupInput,
	}
}

// codeVal returns the typed code, or 0 to let the server assign one.
func (m wizardModel) codeVal() int {
	code, _ := strconv.Atoi(strings.TrimSpace(m.code.Value()))
	return code
}

func (m wizardModel) stepProgress() string {
	total := 5
	if m.class == ledger.Asset {
		total = 6
	}
	n := int(m.step) + 1
	if m.step == stepConfirm {
		n = total
	}
	return fmt.Sprintf("Step %d of %d", n, total)
}

func (m wizardModel) update(msg tea.Msg, c *client.Client) (wizardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case accountCreatedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.step = stepConfirm
			return m, nil
		}
		m.done = true
		m.statusMsg = fmt.Sprintf("Account %d %s created", msg.account.Code, msg.account.Name)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Escape) {
			m.cancelled = true
			return m, nil
		}

		switch m.step {
		case stepClass:
			return m.updateClass(msg)
		case stepCode:
			return m.updateCode(msg)
		case stepName:
			return m.updateName(msg)
		case stepGroup:
			return m.updateGroup(msg)
		case stepCashBank:
			return m.updateCashBank(msg)
		case stepConfirm:
			return m.updateConfirm(msg, c)
		}
	}
	return m, nil
}

func (m wizardModel) updateClass(msg tea.KeyMsg) (wizardModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if m.classIdx > 0 {
			m.classIdx--
		}
	case key.Matches(msg, keys.Down):
		if m.classIdx < len(ledger.AllClassifications)-1 {
			m.classIdx++
		}
	case key.Matches(msg, keys.Enter):
		m.class = ledger.AllClassifications[m.classIdx]
		low, high := ledger.CodeRange(m.class)
		m.code.Placeholder = fmt.Sprintf("%d-%d, blank for next free", low, high)
		m.group.Placeholder = ledger.DefaultGroup(m.class)
		m.step = stepCode
		m.code.Focus()
		m.err = nil
	}
	return m, nil
}

func (m wizardModel) updateCode(msg tea.KeyMsg) (wizardModel, tea.Cmd) {
	if key.Matches(msg, keys.Enter) {
		if v := strings.TrimSpace(m.code.Value()); v != "" {
			code, err := strconv.Atoi(v)
			if err != nil {
				m.err = fmt.Errorf("code must be a number")
				return m, nil
			}
			if class, err := ledger.ClassificationForCode(code); err != nil || class != m.class {
				low, high := ledger.CodeRange(m.class)
				m.err = fmt.Errorf("code must be between %d-%d for %s", low, high, m.class)
				return m, nil
			}
		}
		m.err = nil
		m.code.Blur()
		m.step = stepName
		m.name.Focus()
		return m, nil
	}
	var cmd tea.Cmd
	m.code, cmd = m.code.Update(msg)
	return m, cmd
}

func (m wizardModel) updateName(msg tea.KeyMsg) (wizardModel, tea.Cmd) {
	if key.Matches(msg, keys.Enter) {
		if strings.TrimSpace(m.name.Value()) == "" {
			m.err = fmt.Errorf("name is required")
			return m, nil
		}
		m.err = nil
		m.name.Blur()
		m.step = stepGroup
		m.group.Focus()
		return m, nil
	}
	var cmd tea.Cmd
	m.name, cmd = m.name.Update(msg)
	return m, cmd
}

func (m wizardModel) updateGroup(msg tea.KeyMsg) (wizardModel, tea.Cmd) {
	if key.Matches(msg, keys.Enter) {
		m.group.Blur()
		if m.class == ledger.Asset {
			m.step = stepCashBank
		} else {
			m.step = stepConfirm
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.group, cmd = m.group.Update(msg)
	return m, cmd
}

func (m wizardModel) updateCashBank(msg tea.KeyMsg) (wizardModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up), key.Matches(msg, keys.Down):
		m.cashOrBank = !m.cashOrBank
	case key.Matches(msg, keys.Enter):
		m.step = stepConfirm
	}
	return m, nil
}

func (m wizardModel) updateConfirm(msg tea.KeyMsg, c *client.Client) (wizardModel, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		acct := client.NewAccount{
			Code:           m.codeVal(),
			Name:           strings.TrimSpace(m.name.Value()),
			Classification: m.class,
			Group:          strings.TrimSpace(m.group.Value()),
			CashOrBank:     m.cashOrBank,
		}
		return m, func() tea.Msg {
			created, err := c.CreateAccount(context.Background(), acct)
			return accountCreatedMsg{account: created, err: err}
		}
	case "n", "N":
		m.cancelled = true
	}
	return m, nil
}

func (m *wizardModel) view() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("New Account"))
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render(m.stepProgress()))
	b.WriteString("\n\n")

	switch m.step {
	case stepClass:
		b.WriteString("  Select classification:\n\n")
		for i, class := range ledger.AllClassifications {
			low, high := ledger.CodeRange(class)
			desc := fmt.Sprintf("%-12s codes %d-%d, normally %s", ledger.ClassificationLabel(class), low, high, ledger.NormalBalance(class))
			if i == m.classIdx {
				b.WriteString(selectedStyle.Render("  > "+desc) + "\n")
			} else {
				b.WriteString("    " + desc + "\n")
			}
		}

	case stepCode:
		fmt.Fprintf(&b, "  Classification: %s\n", ledger.ClassificationLabel(m.class))
		b.WriteString("  Account code:\n\n")
		b.WriteString("  " + m.code.View() + "\n")

	case stepName:
		b.WriteString("  Account name:\n\n")
		b.WriteString("  " + m.name.View() + "\n")

	case stepGroup:
		b.WriteString("  Group (blank for default):\n\n")
		b.WriteString("  " + m.group.View() + "\n")

	case stepCashBank:
		b.WriteString("  Is this a cash or bank account?\n\n")
		for _, opt := range []bool{false, true} {
			label := "No"
			if opt {
				label = "Yes, include it in the cash book"
			}
			if opt == m.cashOrBank {
				b.WriteString(selectedStyle.Render("  > "+label) + "\n")
			} else {
				b.WriteString("    " + label + "\n")
			}
		}

	case stepConfirm:
		code := m.code.Value()
		if code == "" {
			code = "(next free)"
		}
		group := m.group.Value()
		if group == "" {
			group = ledger.DefaultGroup(m.class)
		}
		var summary strings.Builder
		fmt.Fprintf(&summary, "%s %s\n", labelStyle.Render("Code:"), code)
		fmt.Fprintf(&summary, "%s %s\n", labelStyle.Render("Name:"), m.name.Value())
		fmt.Fprintf(&summary, "%s %s\n", labelStyle.Render("Class:"), ledger.ClassificationLabel(m.class))
		fmt.Fprintf(&summary, "%s %s\n", labelStyle.Render("Group:"), group)
		if m.class == ledger.Asset {
			fmt.Fprintf(&summary, "%s %v\n", labelStyle.Render("Cash/bank:"), m.cashOrBank)
		}
		b.WriteString(boxStyle.Render(summary.String()))
		b.WriteString("\n\n  Create this account? (y/n)\n")
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.err.Error()) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("  ESC to cancel"))
	return b.String()
}
