package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/simonvc/khata/internal/client"
)

type mode int

const (
	modeAccountList mode = iota
	modeAccountDetail
	modeDayBook
	modeVoucherDetail
	modeReports
	modeBank
	modeWizard
	modeJournalEntry
)

var tabModes = []mode{modeAccountList, modeDayBook, modeReports, modeBank}

func tabLabel(m mode) string {
	switch m {
	case modeAccountList:
		return "Accounts"
	case modeDayBook:
		return "Day Book"
	case modeReports:
		return "Reports"
	case modeBank:
		return "Bank"
	default:
		return ""
	}
}

type healthMsg struct {
	health *client.Health
	err    error
}

type App struct {
	client        *client.Client
	mode          mode
	tabIndex      int
	width, height int
	halted        string
	statusMsg     string

	accountList   accountListModel
	accountDetail accountDetailModel
	dayBook       dayBookModel
	voucherDetail voucherDetailModel
	reports       reportsModel
	bank          bankModel
	wizard        wizardModel
	journalEntry  journalEntryModel
}

func NewApp(c *client.Client) *App {
	return &App{
		client:   c,
		mode:     modeAccountList,
		tabIndex: 0,
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.checkHealth(),
		a.accountList.init(a.client),
		a.dayBook.init(a.client),
		a.reports.init(a.client),
		a.bank.init(a.client),
	)
}

func (a *App) checkHealth() tea.Cmd {
	return func() tea.Msg {
		h, err := a.client.Ping(context.Background())
		return healthMsg{health: h, err: err}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.WindowSizeMsg); ok {
		a.width = msg.Width
		a.height = msg.Height
		a.accountList.width, a.accountList.height = msg.Width, msg.Height-6
		a.accountDetail.width, a.accountDetail.height = msg.Width, msg.Height-6
		a.dayBook.width, a.dayBook.height = msg.Width, msg.Height-6
		a.reports.width, a.reports.height = msg.Width, msg.Height-6
		a.bank.width, a.bank.height = msg.Width, msg.Height-6
		a.voucherDetail.width = msg.Width
		a.wizard.width = msg.Width
		a.journalEntry.width = msg.Width
		return a, nil
	}

	// Loads fire for every tab at start-up, so results are routed to their
	// model whatever the active mode.
	switch typedMsg := msg.(type) {
	case healthMsg:
		a.halted = ""
		if typedMsg.err == nil && typedMsg.health.Halted != "" {
			a.halted = typedMsg.health.Halted
		}
		return a, nil
	case accountsLoadedMsg:
		var cmd tea.Cmd
		a.accountList, cmd = a.accountList.update(msg)
		return a, cmd
	case journalsLoadedMsg:
		var cmd tea.Cmd
		a.dayBook, cmd = a.dayBook.update(msg)
		return a, cmd
	case reportLoadedMsg:
		var cmd tea.Cmd
		a.reports, cmd = a.reports.update(msg, a.client)
		return a, cmd
	case bankLoadedMsg, bankReconciledMsg:
		var cmd tea.Cmd
		a.bank, cmd = a.bank.update(msg, a.client)
		return a, cmd
	case accountDetailLoadedMsg:
		var cmd tea.Cmd
		a.accountDetail, cmd = a.accountDetail.update(msg, a.client)
		return a, cmd
	case voucherLoadedMsg:
		var cmd tea.Cmd
		a.voucherDetail, cmd = a.voucherDetail.update(msg, a.client)
		return a, cmd
	case voucherVoidedMsg:
		var cmd tea.Cmd
		a.voucherDetail, cmd = a.voucherDetail.update(msg, a.client)
		if typedMsg.err != nil {
			return a, cmd
		}
		return a, tea.Batch(cmd, a.dayBook.init(a.client), a.accountList.init(a.client), a.checkHealth())
	case accountToggleConfirmedMsg:
		code, active := typedMsg.code, typedMsg.active
		return a, func() tea.Msg {
			acct, err := a.client.SetAccountActive(context.Background(), code, active)
			return accountToggledMsg{account: acct, err: err}
		}
	case accountToggledMsg:
		a.accountList, _ = a.accountList.update(msg)
		if typedMsg.err != nil {
			return a, nil
		}
		state := "deactivated"
		if typedMsg.account.Active {
			state = "activated"
		}
		a.statusMsg = fmt.Sprintf("Account %d %s", typedMsg.account.Code, state)
		return a, a.accountList.init(a.client)
	}

	// Modal modes take every message until they finish.
	if a.mode == modeWizard {
		var cmd tea.Cmd
		a.wizard, cmd = a.wizard.update(msg, a.client)
		if a.wizard.done {
			a.mode = modeAccountList
			a.statusMsg = a.wizard.statusMsg
			return a, a.accountList.init(a.client)
		}
		if a.wizard.cancelled {
			a.mode = modeAccountList
			a.statusMsg = "Account creation cancelled"
		}
		return a, cmd
	}

	if a.mode == modeJournalEntry {
		var cmd tea.Cmd
		a.journalEntry, cmd = a.journalEntry.update(msg, a.client)
		if a.journalEntry.done {
			a.mode = modeDayBook
			a.statusMsg = a.journalEntry.statusMsg
			return a, tea.Batch(a.dayBook.init(a.client), a.accountList.init(a.client), a.reports.init(a.client))
		}
		if a.journalEntry.cancelled {
			a.mode = modeDayBook
			a.statusMsg = "Voucher discarded"
		}
		return a, cmd
	}

	// Inline prompts own the keyboard while open.
	if (a.mode == modeAccountList && a.accountList.confirmToggle) || (a.mode == modeVoucherDetail && a.voucherDetail.voiding) {
		var cmd tea.Cmd
		if a.mode == modeAccountList {
			a.accountList, cmd = a.accountList.update(msg)
		} else {
			a.voucherDetail, cmd = a.voucherDetail.update(msg, a.client)
		}
		return a, cmd
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit

		case key.Matches(msg, keys.Tab):
			a.tabIndex = (a.tabIndex + 1) % len(tabModes)
			a.mode = tabModes[a.tabIndex]
			a.statusMsg = ""
			return a, a.refreshTab()

		case key.Matches(msg, keys.ShiftTab):
			a.tabIndex = (a.tabIndex - 1 + len(tabModes)) % len(tabModes)
			a.mode = tabModes[a.tabIndex]
			a.statusMsg = ""
			return a, a.refreshTab()

		case key.Matches(msg, keys.Refresh):
			return a, tea.Batch(a.refreshTab(), a.checkHealth())

		case key.Matches(msg, keys.Escape):
			switch a.mode {
			case modeAccountDetail:
				a.mode = modeAccountList
			case modeVoucherDetail:
				a.mode = modeDayBook
			}
			return a, nil

		case key.Matches(msg, keys.New):
			if a.mode == modeAccountList {
				a.mode = modeWizard
				a.wizard = newWizard()
				return a, nil
			}

		case key.Matches(msg, keys.NewVoucher):
			if a.mode == modeDayBook || a.mode == modeAccountList {
				a.mode = modeJournalEntry
				a.journalEntry = newJournalEntry()
				return a, a.journalEntry.loadAccounts(a.client)
			}

		case key.Matches(msg, keys.Enter):
			switch a.mode {
			case modeAccountList:
				if code := a.accountList.selectedCode(); code != 0 {
					a.mode = modeAccountDetail
					return a, a.accountDetail.init(a.client, code)
				}
				return a, nil
			case modeDayBook:
				if id := a.dayBook.selectedID(); id != "" {
					a.mode = modeVoucherDetail
					return a, a.voucherDetail.init(a.client, id)
				}
				return a, nil
			}
		}
	}

	var cmd tea.Cmd
	switch a.mode {
	case modeAccountList:
		a.accountList, cmd = a.accountList.update(msg)
	case modeAccountDetail:
		a.accountDetail, cmd = a.accountDetail.update(msg, a.client)
	case modeDayBook:
		a.dayBook, cmd = a.dayBook.update(msg)
	case modeVoucherDetail:
		a.voucherDetail, cmd = a.voucherDetail.update(msg, a.client)
	case modeReports:
		a.reports, cmd = a.reports.update(msg, a.client)
	case modeBank:
		a.bank, cmd = a.bank.update(msg, a.client)
	}
	return a, cmd
}

func (a *App) refreshTab() tea.Cmd {
	switch a.mode {
	case modeAccountList:
		return a.accountList.init(a.client)
	case modeDayBook:
		return a.dayBook.init(a.client)
	case modeReports:
		return a.reports.init(a.client)
	case modeBank:
		return a.bank.init(a.client)
	}
	return nil
}

func (a *App) helpText() string {
	switch a.mode {
	case modeAccountList:
		return helpLine(keys.Tab, keys.Enter, keys.New, keys.Toggle, keys.NewVoucher, keys.Quit)
	case modeAccountDetail, modeVoucherDetail:
		return helpLine(keys.Escape, keys.Up, keys.Down, keys.Quit)
	case modeDayBook:
		return helpLine(keys.Tab, keys.Enter, keys.NewVoucher, keys.Refresh, keys.Quit)
	case modeReports:
		return helpLine(keys.Tab, keys.Report, keys.Refresh, keys.Quit)
	case modeBank:
		return helpLine(keys.Tab, keys.Reconcile, keys.Enter, keys.Refresh, keys.Quit)
	}
	return ""
}

func (a *App) View() string {
	tabs := ""
	for i, m := range tabModes {
		label := tabLabel(m)
		if i == a.tabIndex && a.mode != modeWizard && a.mode != modeJournalEntry {
			tabs += activeTabStyle.Render(label)
		} else {
			tabs += inactiveTabStyle.Render(label)
		}
		if i < len(tabModes)-1 {
			tabs += " "
		}
	}
	if a.halted != "" {
		tabs += "  " + haltedBannerStyle.Render("POSTING HALTED")
	}

	var content string
	switch a.mode {
	case modeAccountList:
		content = a.accountList.view()
	case modeAccountDetail:
		content = a.accountDetail.view()
	case modeDayBook:
		content = a.dayBook.view()
	case modeVoucherDetail:
		content = a.voucherDetail.view()
	case modeReports:
		content = a.reports.view()
	case modeBank:
		content = a.bank.view()
	case modeWizard:
		content = a.wizard.view()
	case modeJournalEntry:
		content = a.journalEntry.view()
	}

	status := ""
	switch {
	case a.halted != "":
		status = errorStyle.Render(a.halted + " (run 'khata book resume' after fixing)")
	case a.statusMsg != "":
		status = successStyle.Render(a.statusMsg)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		tabs,
		"",
		content,
		"",
		status,
		dimStyle.Render(a.helpText()),
	)
}
