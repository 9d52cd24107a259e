package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAccountCode    = errors.New("invalid account code")
	ErrInvalidClassification = errors.New("invalid account classification")
	ErrCodeClassMismatch     = errors.New("account code does not match classification")
	ErrEmptyAccountName      = errors.New("account name is required")
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountInactive       = errors.New("account is inactive")
	ErrAccountExists         = errors.New("account already exists")
	ErrAccountCodesExhausted = errors.New("no free account code left in range")

	ErrUnknownVoucherType = errors.New("unknown voucher type")
	ErrEmptyNarration     = errors.New("narration is required")
	ErrTooFewLines        = errors.New("journal entry must have at least 2 lines")
	ErrInvalidLine        = errors.New("invalid journal line")
	ErrUnbalanced         = errors.New("journal entry does not balance")
	ErrAmountOutOfRange   = errors.New("amount out of range")
	ErrDateOutOfPeriod    = errors.New("date outside financial year")
	ErrPeriodLocked       = errors.New("financial year is locked")

	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidFinancialYear = errors.New("invalid financial year")
	ErrEntryNotFound        = errors.New("journal entry not found")
	ErrInvalidStatus        = errors.New("invalid status transition")
	ErrNumberingConflict    = errors.New("voucher numbering conflict")
	ErrBooksHalted          = errors.New("posting halted after invariant violation")

	ErrInvalidBankTxn   = errors.New("invalid bank transaction")
	ErrBankTxnNotFound  = errors.New("bank transaction not found")
	ErrMovementNotFound = errors.New("ledger movement not found")
	ErrAlreadyMatched   = errors.New("already reconciled")
)

// ValidationError is returned by the journal validator. Reason is an
// actionable message for the person who entered the voucher.
type ValidationError struct {
	Check  int
	Reason string
	Err    error
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Unwrap() error { return e.Err }

// InternalError hides a storage or engine failure behind a reference id that
// is also written to the audit log.
type InternalError struct {
	Ref string
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error (ref %s)", e.Ref)
}

func (e *InternalError) Unwrap() error { return e.Err }

// InvariantViolation signals a bug: the books no longer satisfy an
// arithmetic invariant. Posting stops until an operator resumes it.
type InvariantViolation struct {
	Check  string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s: %s", e.Check, e.Detail)
}
