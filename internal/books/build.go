// Package books derives the summary books from ledger rows. Nothing here is
// stored: every report is a pure function of the rows it is given.
package books

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simonvc/khata/internal/ledger"
)

// BuildLedgerView lists rows with running balances computed from opening.
func BuildLedgerView(acct ledger.Account, from, to time.Time, opening decimal.Decimal, rows []ledger.LedgerEntry) ledger.LedgerView {
	v := ledger.LedgerView{
		Account:        acct,
		From:           from,
		To:             to,
		OpeningBalance: opening,
		Rows:           make([]ledger.LedgerEntry, 0, len(rows)),
		TotalDebit:     decimal.Zero,
		TotalCredit:    decimal.Zero,
	}
	running := opening
	for _, r := range rows {
		running = running.Add(r.Debit).Sub(r.Credit)
		r.RunningBalance = running
		v.TotalDebit = v.TotalDebit.Add(r.Debit)
		v.TotalCredit = v.TotalCredit.Add(r.Credit)
		v.Rows = append(v.Rows, r)
	}
	v.ClosingBalance = opening.Add(v.TotalDebit).Sub(v.TotalCredit)
	return v
}

// BuildTrialBalance splits each account's net balance into the debit or
// credit column. Accounts whose movements net to zero are left out.
func BuildTrialBalance(asOf time.Time, movements []ledger.AccountMovement) ledger.TrialBalance {
	tb := ledger.TrialBalance{
		AsOf:        asOf,
		Lines:       []ledger.TrialBalanceLine{},
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	for _, m := range sortedByCode(movements) {
		net := m.Net()
		if net.IsZero() {
			continue
		}
		line := ledger.TrialBalanceLine{
			AccountCode:    m.Account.Code,
			AccountName:    m.Account.Name,
			Classification: m.Account.Classification,
			Debit:          decimal.Zero,
			Credit:         decimal.Zero,
		}
		if net.IsPositive() {
			line.Debit = net
			tb.TotalDebit = tb.TotalDebit.Add(net)
		} else {
			line.Credit = net.Neg()
			tb.TotalCredit = tb.TotalCredit.Add(line.Credit)
		}
		tb.Lines = append(tb.Lines, line)
	}
	tb.Difference = tb.TotalDebit.Sub(tb.TotalCredit)
	tb.Balanced = ledger.WithinTolerance(tb.TotalDebit, tb.TotalCredit)
	return tb
}

// BuildCashBook merges the rows of the cash and bank accounts into one book.
// Debits are receipts, credits are payments.
func BuildCashBook(accounts []ledger.Account, from, to time.Time, opening decimal.Decimal, rows []ledger.LedgerEntry) ledger.CashBook {
	cb := ledger.CashBook{
		From:           from,
		To:             to,
		Accounts:       accounts,
		OpeningBalance: opening,
		Rows:           make([]ledger.CashBookRow, 0, len(rows)),
		TotalReceipts:  decimal.Zero,
		TotalPayments:  decimal.Zero,
	}
	running := opening
	for _, r := range sortedBookOrder(rows) {
		running = running.Add(r.Debit).Sub(r.Credit)
		cb.Rows = append(cb.Rows, ledger.CashBookRow{
			Date:           r.Date,
			AccountCode:    r.AccountCode,
			VoucherNumber:  r.VoucherNumber,
			VoucherType:    r.VoucherType,
			JournalID:      r.JournalID,
			Particulars:    r.Particulars,
			Receipt:        r.Debit,
			Payment:        r.Credit,
			RunningBalance: running,
			Status:         r.Status,
		})
		cb.TotalReceipts = cb.TotalReceipts.Add(r.Debit)
		cb.TotalPayments = cb.TotalPayments.Add(r.Credit)
	}
	cb.ClosingBalance = opening.Add(cb.TotalReceipts).Sub(cb.TotalPayments)
	return cb
}

// BuildProfitAndLoss nets income (credit - debit) against expenses
// (debit - credit) over the window the movements cover.
func BuildProfitAndLoss(from, to time.Time, movements []ledger.AccountMovement) ledger.ProfitAndLoss {
	pl := ledger.ProfitAndLoss{
		From:          from,
		To:            to,
		Income:        []ledger.StatementLine{},
		Expenses:      []ledger.StatementLine{},
		TotalRevenue:  decimal.Zero,
		TotalExpenses: decimal.Zero,
		Margin:        decimal.Zero,
	}
	for _, m := range sortedByCode(movements) {
		switch m.Account.Classification {
		case ledger.Income:
			amount := m.Net().Neg()
			if amount.IsZero() {
				continue
			}
			pl.Income = append(pl.Income, statementLine(m, amount))
			pl.TotalRevenue = pl.TotalRevenue.Add(amount)
		case ledger.Expense:
			amount := m.Net()
			if amount.IsZero() {
				continue
			}
			pl.Expenses = append(pl.Expenses, statementLine(m, amount))
			pl.TotalExpenses = pl.TotalExpenses.Add(amount)
		}
	}
	pl.NetProfit = pl.TotalRevenue.Sub(pl.TotalExpenses)
	if !pl.TotalRevenue.IsZero() {
		pl.Margin = pl.NetProfit.DivRound(pl.TotalRevenue, 4)
	}
	return pl
}

// BuildBalanceSheet compares assets with liabilities plus equity as of a
// date. Income and expense accounts are not closed into capital, so their
// accumulated result appears as a derived equity line.
func BuildBalanceSheet(asOf time.Time, movements []ledger.AccountMovement) ledger.BalanceSheet {
	bs := ledger.BalanceSheet{
		AsOf:             asOf,
		Assets:           []ledger.StatementLine{},
		Liabilities:      []ledger.StatementLine{},
		Equity:           []ledger.StatementLine{},
		TotalAssets:      decimal.Zero,
		TotalLiabilities: decimal.Zero,
		TotalEquity:      decimal.Zero,
	}
	profit := decimal.Zero
	for _, m := range sortedByCode(movements) {
		net := m.Net()
		switch m.Account.Classification {
		case ledger.Asset:
			if net.IsZero() {
				continue
			}
			bs.Assets = append(bs.Assets, statementLine(m, net))
			bs.TotalAssets = bs.TotalAssets.Add(net)
		case ledger.Liability:
			if net.IsZero() {
				continue
			}
			bs.Liabilities = append(bs.Liabilities, statementLine(m, net.Neg()))
			bs.TotalLiabilities = bs.TotalLiabilities.Add(net.Neg())
		case ledger.Equity:
			if net.IsZero() {
				continue
			}
			bs.Equity = append(bs.Equity, statementLine(m, net.Neg()))
			bs.TotalEquity = bs.TotalEquity.Add(net.Neg())
		case ledger.Income, ledger.Expense:
			profit = profit.Sub(net)
		}
	}
	if !profit.IsZero() {
		bs.Equity = append(bs.Equity, ledger.StatementLine{AccountName: ledger.ProfitLineName, Amount: profit})
		bs.TotalEquity = bs.TotalEquity.Add(profit)
	}
	bs.Difference = bs.TotalAssets.Sub(bs.TotalLiabilities).Sub(bs.TotalEquity)
	bs.Balanced = ledger.WithinTolerance(bs.TotalAssets, bs.TotalLiabilities.Add(bs.TotalEquity))
	return bs
}

func statementLine(m ledger.AccountMovement, amount decimal.Decimal) ledger.StatementLine {
	return ledger.StatementLine{
		AccountCode: m.Account.Code,
		AccountName: m.Account.Name,
		Group:       m.Account.Group,
		Amount:      amount,
	}
}

func sortedByCode(movements []ledger.AccountMovement) []ledger.AccountMovement {
	out := append([]ledger.AccountMovement(nil), movements...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Account.Code < out[j].Account.Code })
	return out
}

func sortedBookOrder(rows []ledger.LedgerEntry) []ledger.LedgerEntry {
	out := append([]ledger.LedgerEntry(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if c := ledger.CompareVoucherNumbers(a.VoucherNumber, b.VoucherNumber); c != 0 {
			return c < 0
		}
		return a.LineIndex < b.LineIndex
	})
	return out
}
