package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerView is one account's ledger over a date range.
type LedgerView struct {
	Account        Account         `json:"account"`
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Rows           []LedgerEntry   `json:"rows"`
	TotalDebit     decimal.Decimal `json:"total_debit"`
	TotalCredit    decimal.Decimal `json:"total_credit"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
}

type TrialBalanceLine struct {
	AccountCode    int             `json:"account_code"`
	AccountName    string          `json:"account_name"`
	Classification Classification  `json:"classification"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
}

type TrialBalance struct {
	AsOf        time.Time          `json:"as_of"`
	Lines       []TrialBalanceLine `json:"lines"`
	TotalDebit  decimal.Decimal    `json:"total_debit"`
	TotalCredit decimal.Decimal    `json:"total_credit"`
	// Difference is TotalDebit - TotalCredit.
	Difference decimal.Decimal `json:"difference"`
	Balanced   bool            `json:"balanced"`
}

type CashBookRow struct {
	Date           time.Time       `json:"date"`
	AccountCode    int             `json:"account_code"`
	VoucherNumber  string          `json:"voucher_number"`
	VoucherType    VoucherType     `json:"voucher_type"`
	JournalID      string          `json:"journal_id"`
	Particulars    string          `json:"particulars"`
	Receipt        decimal.Decimal `json:"receipt"`
	Payment        decimal.Decimal `json:"payment"`
	RunningBalance decimal.Decimal `json:"running_balance"`
	Status         RowStatus       `json:"status"`
}

// CashBook is the combined book of the cash and bank accounts.
type CashBook struct {
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	Accounts       []Account       `json:"accounts"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Rows           []CashBookRow   `json:"rows"`
	TotalReceipts  decimal.Decimal `json:"total_receipts"`
	TotalPayments  decimal.Decimal `json:"total_payments"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
}

type StatementLine struct {
	AccountCode int             `json:"account_code"`
	AccountName string          `json:"account_name"`
	Group       string          `json:"group,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

type ProfitAndLoss struct {
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	Income        []StatementLine `json:"income"`
	Expenses      []StatementLine `json:"expenses"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	NetProfit     decimal.Decimal `json:"net_profit"`
	// Margin is NetProfit / TotalRevenue to four places, zero without revenue.
	Margin decimal.Decimal `json:"margin"`
}

// ProfitLineName labels the derived equity line that carries the
// accumulated result of Income and Expense accounts.
const ProfitLineName = "Profit & Loss A/c"

type BalanceSheet struct {
	AsOf             time.Time       `json:"as_of"`
	Assets           []StatementLine `json:"assets"`
	Liabilities      []StatementLine `json:"liabilities"`
	Equity           []StatementLine `json:"equity"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	TotalEquity      decimal.Decimal `json:"total_equity"`
	Difference       decimal.Decimal `json:"difference"`
	Balanced         bool            `json:"balanced"`
}

// AccountMovement is the aggregated debit and credit total of an account
// over some window.
type AccountMovement struct {
	Account Account
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

func (m AccountMovement) Net() decimal.Decimal { return m.Debit.Sub(m.Credit) }
