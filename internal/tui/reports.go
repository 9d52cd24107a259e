package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"github.com/simonvc/khata/internal/client"
	"github.com/simonvc/khata/internal/ledger"
)

type reportKind int

const (
	reportTrialBalance reportKind = iota
	reportProfitAndLoss
	reportBalanceSheet
)

func (k reportKind) title() string {
	switch k {
	case reportProfitAndLoss:
		return "PROFIT & LOSS"
	case reportBalanceSheet:
		return "BALANCE SHEET"
	default:
		return "TRIAL BALANCE"
	}
}

type reportLoadedMsg struct {
	kind reportKind
	tb   *ledger.TrialBalance
	pl   *ledger.ProfitAndLoss
	bs   *ledger.BalanceSheet
	err  error
}

// reportsModel cycles through the derived statements for the current
// financial year.
type reportsModel struct {
	kind    reportKind
	tb      *ledger.TrialBalance
	pl      *ledger.ProfitAndLoss
	bs      *ledger.BalanceSheet
	loading bool
	err     error
	width   int
	height  int
}

func (m *reportsModel) init(c *client.Client) tea.Cmd {
	m.loading = true
	kind := m.kind
	fy := ledger.FinancialYearOf(time.Now())
	asOf := ledger.Day(time.Now()).Format(ledger.DateLayout)
	return func() tea.Msg {
		ctx := context.Background()
		msg := reportLoadedMsg{kind: kind}
		switch kind {
		case reportTrialBalance:
			msg.tb, msg.err = c.TrialBalance(ctx, asOf)
		case reportProfitAndLoss:
			msg.pl, msg.err = c.ProfitAndLoss(ctx, client.Range{FY: fy.Code()})
		case reportBalanceSheet:
			msg.bs, msg.err = c.BalanceSheet(ctx, asOf)
		}
		return msg
	}
}

func (m reportsModel) update(msg tea.Msg, c *client.Client) (reportsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case reportLoadedMsg:
		if msg.kind != m.kind {
			return m, nil
		}
		m.loading = false
		m.err = msg.err
		m.tb, m.pl, m.bs = msg.tb, msg.pl, msg.bs

	case tea.KeyMsg:
		if key.Matches(msg, keys.Report) {
			m.kind = (m.kind + 1) % 3
			return m, m.init(c)
		}
	}
	return m, nil
}

func (m *reportsModel) view() string {
	if m.loading {
		return "Loading " + strings.ToLower(m.kind.title()) + "..."
	}
	if m.err != nil {
		return errorStyle.Render("Error: " + m.err.Error())
	}

	w := m.width
	if w < 60 {
		w = 80
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(centerStr(m.kind.title(), w)))
	b.WriteString("\n")

	switch m.kind {
	case reportTrialBalance:
		m.viewTrialBalance(&b, w)
	case reportProfitAndLoss:
		m.viewProfitAndLoss(&b, w)
	case reportBalanceSheet:
		m.viewBalanceSheet(&b, w)
	}
	b.WriteString("\n\n" + dimStyle.Render("  r: next report"))
	return b.String()
}

func (m *reportsModel) viewTrialBalance(b *strings.Builder, w int) {
	tb := m.tb
	if tb == nil {
		return
	}
	b.WriteString(dimStyle.Render(centerStr("as of "+tb.AsOf.Format(ledger.DateLayout), w)))
	b.WriteString("\n\n")
	header := fmt.Sprintf("    %-6s %-32s %-10s %16s %16s", "CODE", "ACCOUNT", "CLASS", "DEBIT", "CREDIT")
	b.WriteString(headerStyle.Render(header) + "\n")
	if len(tb.Lines) == 0 {
		b.WriteString(dimStyle.Render("    (no balances)") + "\n")
	}
	for _, l := range tb.Lines {
		fmt.Fprintf(b, "    %-6d %-32s %-10s %16s %16s\n",
			l.AccountCode, truncate(l.AccountName, 32), l.Classification, ledger.FormatAmount(l.Debit), ledger.FormatAmount(l.Credit))
	}
	fmt.Fprintf(b, "    %s\n", strings.Repeat("═", 84))
	fmt.Fprintf(b, "    %-50s %16s %16s\n", "Total", tb.TotalDebit.StringFixed(2), tb.TotalCredit.StringFixed(2))
	b.WriteString("\n")
	writeBalanced(b, tb.Balanced, tb.Difference)
}

func (m *reportsModel) viewProfitAndLoss(b *strings.Builder, w int) {
	pl := m.pl
	if pl == nil {
		return
	}
	b.WriteString(dimStyle.Render(centerStr(pl.From.Format(ledger.DateLayout)+" to "+pl.To.Format(ledger.DateLayout), w)))
	b.WriteString("\n\n")
	writeSection(b, "Income", pl.Income, pl.TotalRevenue)
	writeSection(b, "Expenses", pl.Expenses, pl.TotalExpenses)
	fmt.Fprintf(b, "    %s\n", strings.Repeat("═", 60))
	label := "Net Profit"
	style := successStyle
	if pl.NetProfit.IsNegative() {
		label = "Net Loss"
		style = errorStyle
	}
	b.WriteString(style.Render(fmt.Sprintf("    %-40s %18s", label, formatSigned(pl.NetProfit))))
	b.WriteString("\n")
	if !pl.TotalRevenue.IsZero() {
		fmt.Fprintf(b, "    %-40s %17s%%\n", "Margin", pl.Margin.Shift(2).StringFixed(2))
	}
}

func (m *reportsModel) viewBalanceSheet(b *strings.Builder, w int) {
	bs := m.bs
	if bs == nil {
		return
	}
	b.WriteString(dimStyle.Render(centerStr("as of "+bs.AsOf.Format(ledger.DateLayout), w)))
	b.WriteString("\n\n")
	writeSection(b, "Assets", bs.Assets, bs.TotalAssets)
	writeSection(b, "Liabilities", bs.Liabilities, bs.TotalLiabilities)
	writeSection(b, "Equity", bs.Equity, bs.TotalEquity)
	fmt.Fprintf(b, "    %s\n", strings.Repeat("═", 60))
	fmt.Fprintf(b, "    %-40s %18s\n", "Total L + E", formatSigned(bs.TotalLiabilities.Add(bs.TotalEquity)))
	b.WriteString("\n")
	writeBalanced(b, bs.Balanced, bs.Difference)
}

func writeSection(b *strings.Builder, title string, lines []ledger.StatementLine, total decimal.Decimal) {
	fmt.Fprintf(b, "  %s\n", headerStyle.Render(title))
	if len(lines) == 0 {
		b.WriteString(dimStyle.Render("    (no entries)") + "\n\n")
		return
	}
	for _, l := range lines {
		name := l.AccountName
		if l.AccountCode != 0 {
			name = fmt.Sprintf("%d %s", l.AccountCode, l.AccountName)
		}
		fmt.Fprintf(b, "    %-40s %18s\n", truncate(name, 40), formatSigned(l.Amount))
	}
	fmt.Fprintf(b, "    %s\n", strings.Repeat("─", 60))
	fmt.Fprintf(b, "    %-40s %18s\n\n", "Total "+title, formatSigned(total))
}

func writeBalanced(b *strings.Builder, balanced bool, diff decimal.Decimal) {
	if balanced {
		b.WriteString(successStyle.Render("    [BALANCED]"))
		return
	}
	b.WriteString(errorStyle.Render("    [OUT BY " + ledger.FormatINR(diff.Abs()) + "]"))
}

func formatSigned(d decimal.Decimal) string {
	if d.IsNegative() {
		return "(" + ledger.FormatINR(d.Neg()) + ")"
	}
	return ledger.FormatINR(d)
}

func centerStr(s string, w int) string {
	n := len([]rune(s))
	if n >= w {
		return s
	}
	return strings.Repeat(" ", (w-n)/2) + s
}
