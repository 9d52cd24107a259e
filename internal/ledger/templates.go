package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TemplateEntry is one side of a template voucher. AccountCode is a
// default-chart account the user may override when executing the template.
type TemplateEntry struct {
	AccountCode int    `json:"account_code"`
	Role        string `json:"role"`
	IsDebit     bool   `json:"is_debit"`
}

// Template is a two-line voucher pattern for common day-to-day entries.
type Template struct {
	Key         string          `json:"key"`
	Name        string          `json:"name"`
	VoucherType VoucherType     `json:"voucher_type"`
	Description string          `json:"description"`
	Entries     []TemplateEntry `json:"entries"`
}

var Templates = []Template{
	{
		Key:         "capital",
		Name:        "Capital Introduced",
		VoucherType: VoucherReceipt,
		Description: "Owner brings money into the business. Cash is debited (what comes in), Capital is credited.",
		Entries: []TemplateEntry{
			{AccountCode: CodeCash, Role: "Receiving account", IsDebit: true},
			{AccountCode: 3001, Role: "Capital account", IsDebit: false},
		},
	},
	{
		Key:         "cash-sale",
		Name:        "Cash Sale",
		VoucherType: VoucherSales,
		Description: "Goods sold for cash. Cash is debited, Sales is credited.",
		Entries: []TemplateEntry{
			{AccountCode: CodeCash, Role: "Cash account", IsDebit: true},
			{AccountCode: 4001, Role: "Sales account", IsDebit: false},
		},
	},
	{
		Key:         "credit-sale",
		Name:        "Credit Sale",
		VoucherType: VoucherSales,
		Description: "Goods sold on credit. The customer (debtor) is debited, Sales is credited.",
		Entries: []TemplateEntry{
			{AccountCode: CodeDebtors, Role: "Customer account", IsDebit: true},
			{AccountCode: 4001, Role: "Sales account", IsDebit: false},
		},
	},
	{
		Key:         "receipt",
		Name:        "Receipt from Customer",
		VoucherType: VoucherReceipt,
		Description: "Customer settles an invoice into the bank. Bank is debited, the debtor is credited.",
		Entries: []TemplateEntry{
			{AccountCode: CodeBank, Role: "Bank account", IsDebit: true},
			{AccountCode: CodeDebtors, Role: "Customer account", IsDebit: false},
		},
	},
	{
		Key:         "purchase",
		Name:        "Credit Purchase",
		VoucherType: VoucherPurchase,
		Description: "Goods bought on credit. Purchases is debited, the supplier (creditor) is credited.",
		Entries: []TemplateEntry{
			{AccountCode: 5001, Role: "Purchases account", IsDebit: true},
			{AccountCode: CodeCreditors, Role: "Supplier account", IsDebit: false},
		},
	},
	{
		Key:         "pay-supplier",
		Name:        "Pay Supplier",
		VoucherType: VoucherPayment,
		Description: "Supplier paid from the bank. The creditor is debited, Bank is credited.",
		Entries: []TemplateEntry{
			{AccountCode: CodeCreditors, Role: "Supplier account", IsDebit: true},
			{AccountCode: CodeBank, Role: "Bank account", IsDebit: false},
		},
	},
	{
		Key:         "rent",
		Name:        "Pay Rent",
		VoucherType: VoucherPayment,
		Description: "Rent paid in cash. Rent Expense is debited, Cash is credited.",
		Entries: []TemplateEntry{
			{AccountCode: 5101, Role: "Expense account", IsDebit: true},
			{AccountCode: CodeCash, Role: "Cash account", IsDebit: false},
		},
	},
	{
		Key:         "salaries",
		Name:        "Pay Salaries",
		VoucherType: VoucherPayment,
		Description: "Staff salaries paid from the bank. Salaries is debited, Bank is credited.",
		Entries: []TemplateEntry{
			{AccountCode: 5102, Role: "Salary account", IsDebit: true},
			{AccountCode: CodeBank, Role: "Bank account", IsDebit: false},
		},
	},
	{
		Key:         "deposit",
		Name:        "Cash Deposited in Bank",
		VoucherType: VoucherContra,
		Description: "Cash moved into the bank. Bank is debited, Cash is credited.",
		Entries: []TemplateEntry{
			{AccountCode: CodeBank, Role: "Bank account", IsDebit: true},
			{AccountCode: CodeCash, Role: "Cash account", IsDebit: false},
		},
	},
	{
		Key:         "withdrawal",
		Name:        "Cash Withdrawn from Bank",
		VoucherType: VoucherContra,
		Description: "Cash drawn from the bank for the till. Cash is debited, Bank is credited.",
		Entries: []TemplateEntry{
			{AccountCode: CodeCash, Role: "Cash account", IsDebit: true},
			{AccountCode: CodeBank, Role: "Bank account", IsDebit: false},
		},
	},
	{
		Key:         "bank-charges",
		Name:        "Bank Charges",
		VoucherType: VoucherPayment,
		Description: "Charges deducted by the bank. Bank Charges is debited, Bank is credited.",
		Entries: []TemplateEntry{
			{AccountCode: 5104, Role: "Expense account", IsDebit: true},
			{AccountCode: CodeBank, Role: "Bank account", IsDebit: false},
		},
	},
	{
		Key:         "drawings",
		Name:        "Owner Drawings",
		VoucherType: VoucherPayment,
		Description: "Owner withdraws cash for personal use. Drawings is debited, Cash is credited.",
		Entries: []TemplateEntry{
			{AccountCode: 3002, Role: "Drawings account", IsDebit: true},
			{AccountCode: CodeCash, Role: "Cash account", IsDebit: false},
		},
	},
}

// LookupTemplate finds a template by key or case-insensitive name.
func LookupTemplate(key string) (Template, bool) {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, t := range Templates {
		if t.Key == k || strings.ToLower(t.Name) == k {
			return t, true
		}
	}
	return Template{}, false
}

// Request builds a posting request from the template. overrides maps an
// entry index to a replacement account code.
func (t Template) Request(amount decimal.Decimal, narration string, overrides map[int]int) PostingRequest {
	req := PostingRequest{
		VoucherType: t.VoucherType,
		Narration:   narration,
	}
	if req.Narration == "" {
		req.Narration = fmt.Sprintf("%s of %s", t.Name, FormatINR(amount))
	}
	for i, e := range t.Entries {
		code := e.AccountCode
		if o, ok := overrides[i]; ok {
			code = o
		}
		line := PostingLine{AccountCode: code}
		if e.IsDebit {
			line.Debit = amount
		} else {
			line.Credit = amount
		}
		req.Lines = append(req.Lines, line)
	}
	return req
}
