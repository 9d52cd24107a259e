package ledger

// ChartEntry represents a predefined entry in the small-business chart of accounts.
type ChartEntry struct {
	Code           int            `json:"code"`
	Name           string         `json:"name"`
	Classification Classification `json:"classification"`
	Group          string         `json:"group"`
	Nature         Nature         `json:"nature"`
	CashOrBank     bool           `json:"cash_or_bank"`
}

// Well-known account codes the engine refers to directly.
const (
	CodeCash      = 1001
	CodeBank      = 1002
	CodeRoundOff  = 5901
	CodeDebtors   = 1101
	CodeCreditors = 2001
)

// DefaultChart is seeded into every new book.
var DefaultChart = []ChartEntry{
	// Assets (1xxx)
	{Code: CodeCash, Name: "Cash", Classification: Asset, Group: "Cash-in-Hand", Nature: NatureReal, CashOrBank: true},
	{Code: CodeBank, Name: "Bank", Classification: Asset, Group: "Bank Accounts", Nature: NatureReal, CashOrBank: true},
	{Code: CodeDebtors, Name: "Sundry Debtors", Classification: Asset, Group: "Sundry Debtors", Nature: NaturePersonal},
	{Code: 1201, Name: "Inventory", Classification: Asset, Group: "Stock-in-Hand", Nature: NatureReal},
	{Code: 1301, Name: "GST Input Credit", Classification: Asset, Group: "Duties & Taxes", Nature: NaturePersonal},
	{Code: 1401, Name: "Furniture & Equipment", Classification: Asset, Group: "Fixed Assets", Nature: NatureReal},

	// Liabilities (2xxx)
	{Code: CodeCreditors, Name: "Sundry Creditors", Classification: Liability, Group: "Sundry Creditors", Nature: NaturePersonal},
	{Code: 2101, Name: "GST Output Payable", Classification: Liability, Group: "Duties & Taxes", Nature: NaturePersonal},
	{Code: 2201, Name: "Loans", Classification: Liability, Group: "Loans (Liability)", Nature: NaturePersonal},

	// Equity (3xxx)
	{Code: 3001, Name: "Capital", Classification: Equity, Group: "Capital Account", Nature: NaturePersonal},
	{Code: 3002, Name: "Drawings", Classification: Equity, Group: "Capital Account", Nature: NaturePersonal},
	{Code: 3101, Name: "Retained Earnings", Classification: Equity, Group: "Reserves & Surplus", Nature: NaturePersonal},

	// Income (4xxx)
	{Code: 4001, Name: "Sales", Classification: Income, Group: "Sales Accounts", Nature: NatureNominal},
	{Code: 4002, Name: "Service Income", Classification: Income, Group: "Direct Incomes", Nature: NatureNominal},
	{Code: 4101, Name: "Interest Income", Classification: Income, Group: "Indirect Incomes", Nature: NatureNominal},
	{Code: 4201, Name: "Other Income", Classification: Income, Group: "Indirect Incomes", Nature: NatureNominal},

	// Expenses (5xxx)
	{Code: 5001, Name: "Purchases", Classification: Expense, Group: "Purchase Accounts", Nature: NatureNominal},
	{Code: 5101, Name: "Rent Expense", Classification: Expense, Group: "Indirect Expenses", Nature: NatureNominal},
	{Code: 5102, Name: "Salaries", Classification: Expense, Group: "Indirect Expenses", Nature: NatureNominal},
	{Code: 5103, Name: "Utilities", Classification: Expense, Group: "Indirect Expenses", Nature: NatureNominal},
	{Code: 5104, Name: "Bank Charges", Classification: Expense, Group: "Indirect Expenses", Nature: NatureNominal},
	{Code: 5105, Name: "Office Expenses", Classification: Expense, Group: "Indirect Expenses", Nature: NatureNominal},
	{Code: 5201, Name: "Depreciation", Classification: Expense, Group: "Indirect Expenses", Nature: NatureNominal},
	{Code: CodeRoundOff, Name: "Round Off", Classification: Expense, Group: "Indirect Expenses", Nature: NatureNominal},
}
