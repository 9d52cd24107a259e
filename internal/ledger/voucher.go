package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// VoucherType is the closed set of voucher kinds. The zero value is not a
// valid type and stands for "missing".
type VoucherType uint8

const (
	VoucherPayment VoucherType = iota + 1
	VoucherReceipt
	VoucherJournal
	VoucherContra
	VoucherSales
	VoucherPurchase
	VoucherDebitNote
	VoucherCreditNote
	VoucherMemo
)

var AllVoucherTypes = []VoucherType{
	VoucherPayment,
	VoucherReceipt,
	VoucherJournal,
	VoucherContra,
	VoucherSales,
	VoucherPurchase,
	VoucherDebitNote,
	VoucherCreditNote,
	VoucherMemo,
}

func (v VoucherType) String() string {
	switch v {
	case VoucherPayment:
		return "Payment"
	case VoucherReceipt:
		return "Receipt"
	case VoucherJournal:
		return "Journal"
	case VoucherContra:
		return "Contra"
	case VoucherSales:
		return "Sales"
	case VoucherPurchase:
		return "Purchase"
	case VoucherDebitNote:
		return "DebitNote"
	case VoucherCreditNote:
		return "CreditNote"
	case VoucherMemo:
		return "Memo"
	default:
		return fmt.Sprintf("VoucherType(%d)", uint8(v))
	}
}

// Prefix is the series prefix used in voucher numbers.
func (v VoucherType) Prefix() string {
	switch v {
	case VoucherPayment:
		return "PAY"
	case VoucherReceipt:
		return "REC"
	case VoucherJournal:
		return "JNL"
	case VoucherContra:
		return "CON"
	case VoucherSales:
		return "SAL"
	case VoucherPurchase:
		return "PUR"
	case VoucherDebitNote:
		return "DBN"
	case VoucherCreditNote:
		return "CRN"
	case VoucherMemo:
		return "MEM"
	default:
		return ""
	}
}

// Valid reports whether v is one of the known voucher types.
func (v VoucherType) Valid() bool {
	return v.Prefix() != ""
}

// ParseVoucherType accepts a type name ("Payment", "debit note",
// "debit_note") or its prefix ("PAY").
func ParseVoucherType(s string) (VoucherType, error) {
	key := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.TrimSpace(s)))
	for _, v := range AllVoucherTypes {
		if key == strings.ToLower(v.String()) || key == strings.ToLower(v.Prefix()) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVoucherType, s)
}

func (v VoucherType) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVoucherType, uint8(v))
	}
	return []byte(v.String()), nil
}

func (v *VoucherType) UnmarshalText(b []byte) error {
	parsed, err := ParseVoucherType(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FormatVoucherNumber renders {PREFIX}-{FYCODE}-{seq:04d}, e.g. PAY-2024-25-0001.
func FormatVoucherNumber(v VoucherType, fy FinancialYear, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", v.Prefix(), fy.Code(), seq)
}

// VoucherSequence returns the trailing sequence of a voucher number, or 0
// when it has none.
func VoucherSequence(number string) int64 {
	n, err := strconv.ParseInt(number[strings.LastIndexByte(number, '-')+1:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// CompareVoucherNumbers orders by prefix and year as text, then by sequence
// as an integer, so ...-10000 follows ...-9999.
func CompareVoucherNumbers(a, b string) int {
	pa, pb := a[:strings.LastIndexByte(a, '-')+1], b[:strings.LastIndexByte(b, '-')+1]
	if c := strings.Compare(pa, pb); c != 0 {
		return c
	}
	sa, sb := VoucherSequence(a), VoucherSequence(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return strings.Compare(a, b)
}
