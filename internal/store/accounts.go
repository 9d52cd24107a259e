package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/simonvc/khata/internal/ledger"
)

type AccountFilter struct {
	Classification ledger.Classification
	ActiveOnly     bool
	CashBankOnly   bool
	Limit          int
	Offset         int
}

const accountColumns = `code, name, classification, grp, nature, cash_bank, active, balance, created_at`

// CreateAccount registers a new account. Code 0 picks the next free code in
// the classification's range.
func (t *Tx) CreateAccount(ctx context.Context, acct *ledger.Account) error {
	if acct.Code == 0 {
		code, err := t.nextFreeCode(ctx, acct.Classification)
		if err != nil {
			return err
		}
		acct.Code = code
	}
	acct.Name = strings.Join(strings.Fields(acct.Name), " ")
	if err := acct.Validate(); err != nil {
		return err
	}
	if acct.Group == "" {
		acct.Group = ledger.DefaultGroup(acct.Classification)
	}
	if acct.Nature == "" {
		acct.Nature = ledger.DefaultNature(acct.Classification, acct.Group)
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}
	acct.Active = true

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO accounts (code, name, name_key, classification, grp, nature, cash_bank, active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		acct.Code, acct.Name, ledger.NameKey(acct.Name), string(acct.Classification), acct.Group, string(acct.Nature),
		boolToInt(acct.CashOrBank), formatTime(acct.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %d %q", ledger.ErrAccountExists, acct.Code, acct.Name)
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// ResolveAccount finds the account a posting line refers to. A line naming
// an unknown account creates it in the same transaction, classified by the
// line's AccountType (expense when absent).
func (t *Tx) ResolveAccount(ctx context.Context, line ledger.PostingLine) (*ledger.Account, error) {
	if line.AccountCode != 0 {
		acct, err := t.GetAccount(ctx, line.AccountCode)
		if err != nil {
			return nil, err
		}
		if !acct.Active {
			return nil, fmt.Errorf("%w: %d %s", ledger.ErrAccountInactive, acct.Code, acct.Name)
		}
		return acct, nil
	}

	acct, err := t.GetAccountByName(ctx, line.AccountName)
	if err == nil {
		if !acct.Active {
			return nil, fmt.Errorf("%w: %d %s", ledger.ErrAccountInactive, acct.Code, acct.Name)
		}
		return acct, nil
	}
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, err
	}

	class := line.AccountType
	if class == "" {
		class = ledger.Expense
	}
	acct = &ledger.Account{Name: line.AccountName, Classification: class}
	if err := t.CreateAccount(ctx, acct); err != nil {
		return nil, fmt.Errorf("create account %q: %w", line.AccountName, err)
	}
	return acct, nil
}

func (t *Tx) SetAccountActive(ctx context.Context, code int, active bool) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE accounts SET active = ? WHERE code = ?`, boolToInt(active), code)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ledger.ErrAccountNotFound, code)
	}
	return nil
}

// AdjustBalance moves the cached cumulative balance by delta paise.
func (t *Tx) AdjustBalance(ctx context.Context, code int, delta int64) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE accounts SET balance = balance + ? WHERE code = ?`, delta, code)
	if err != nil {
		return fmt.Errorf("adjust balance %d: %w", code, err)
	}
	return nil
}

// nextFreeCode returns the lowest unused code above the class base, so
// gaps left below a high code are reused.
func (t *Tx) nextFreeCode(ctx context.Context, c ledger.Classification) (int, error) {
	lo, hi := ledger.CodeRange(c)
	if lo == 0 {
		return 0, fmt.Errorf("%w: %q", ledger.ErrInvalidClassification, c)
	}
	var next sql.NullInt64
	err := t.tx.QueryRowContext(ctx,
		`SELECT MIN(cand.c) FROM (
			SELECT ? AS c
			UNION ALL
			SELECT code + 1 FROM accounts WHERE code BETWEEN ? AND ?
		) AS cand
		WHERE NOT EXISTS (SELECT 1 FROM accounts b WHERE b.code = cand.c)`,
		lo+1, lo+1, hi-1).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next account code: %w", err)
	}
	if !next.Valid {
		return 0, fmt.Errorf("%w: %s", ledger.ErrAccountCodesExhausted, c)
	}
	return int(next.Int64), nil
}

func (r *Reader) GetAccount(ctx context.Context, code int) (*ledger.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = ?`, code)
	acct, err := scanAccount(row)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %d", ledger.ErrAccountNotFound, code)
	}
	return acct, err
}

// GetAccountByName matches case- and whitespace-insensitively.
func (r *Reader) GetAccountByName(ctx context.Context, name string) (*ledger.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE name_key = ?`, ledger.NameKey(name))
	acct, err := scanAccount(row)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %q", ledger.ErrAccountNotFound, name)
	}
	return acct, err
}

func (r *Reader) ListAccounts(ctx context.Context, filter AccountFilter) ([]ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE 1=1`
	args := []any{}

	if filter.Classification != "" {
		query += ` AND classification = ?`
		args = append(args, string(filter.Classification))
	}
	if filter.ActiveOnly {
		query += ` AND active = 1`
	}
	if filter.CashBankOnly {
		query += ` AND cash_bank = 1`
	}

	query += ` ORDER BY code` + limitClause(filter.Limit, filter.Offset)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		acct, err := scanAccountRow(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acct)
	}
	return accounts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccountInto(s scanner) (*ledger.Account, error) {
	var acct ledger.Account
	var cashBank, active int
	var balance int64
	var createdAt string
	err := s.Scan(&acct.Code, &acct.Name, &acct.Classification, &acct.Group, &acct.Nature, &cashBank, &active, &balance, &createdAt)
	if err != nil {
		return nil, err
	}
	acct.CashOrBank = cashBank == 1
	acct.Active = active == 1
	acct.Balance = ledger.FromPaise(balance)
	acct.CreatedAt = parseTime(createdAt)
	return &acct, nil
}

func scanAccount(row *sql.Row) (*ledger.Account, error) {
	acct, err := scanAccountInto(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return acct, nil
}

func scanAccountRow(rows *sql.Rows) (*ledger.Account, error) {
	acct, err := scanAccountInto(rows)
	if err != nil {
		return nil, fmt.Errorf("scan account row: %w", err)
	}
	return acct, nil
}
