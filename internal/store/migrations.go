package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/simonvc/khata/internal/ledger"
)

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Create schema version table
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var version int
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version < 1 {
		if err := migrateV1(ctx, tx); err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
	}

	return tx.Commit()
}

func migrateV1(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		// Accounts: never deleted, only deactivated. balance is in paise.
		`CREATE TABLE IF NOT EXISTS accounts (
			code           INTEGER PRIMARY KEY CHECK (code BETWEEN 1000 AND 5999),
			name           TEXT NOT NULL,
			name_key       TEXT NOT NULL UNIQUE,
			classification TEXT NOT NULL CHECK (classification IN ('asset','liability','equity','income','expense')),
			grp            TEXT NOT NULL DEFAULT '',
			nature         TEXT NOT NULL DEFAULT '',
			cash_bank      INTEGER NOT NULL DEFAULT 0,
			active         INTEGER NOT NULL DEFAULT 1,
			balance        INTEGER NOT NULL DEFAULT 0,
			created_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_classification ON accounts(classification)`,

		`CREATE TRIGGER IF NOT EXISTS trg_accounts_no_delete
		BEFORE DELETE ON accounts
		BEGIN
			SELECT RAISE(ABORT, 'accounts cannot be deleted, deactivate instead');
		END`,

		`CREATE TABLE IF NOT EXISTS financial_years (
			fy        INTEGER PRIMARY KEY,
			locked    INTEGER NOT NULL DEFAULT 0,
			locked_at TEXT
		)`,

		`CREATE TRIGGER IF NOT EXISTS trg_financial_years_no_unlock
		BEFORE UPDATE OF locked ON financial_years
		WHEN OLD.locked = 1 AND NEW.locked = 0
		BEGIN
			SELECT RAISE(ABORT, 'a closed financial year cannot be reopened');
		END`,

		// One counter per (voucher type, financial year).
		`CREATE TABLE IF NOT EXISTS voucher_counters (
			voucher_type   TEXT NOT NULL,
			financial_year INTEGER NOT NULL,
			last_number    INTEGER NOT NULL CHECK (last_number > 0),
			PRIMARY KEY (voucher_type, financial_year)
		)`,

		`CREATE TRIGGER IF NOT EXISTS trg_voucher_counters_monotonic
		BEFORE UPDATE OF last_number ON voucher_counters
		WHEN NEW.last_number <= OLD.last_number
		BEGIN
			SELECT RAISE(ABORT, 'voucher counters only move forward');
		END`,

		`CREATE TABLE IF NOT EXISTS journal_entries (
			id                TEXT PRIMARY KEY,
			voucher_number    TEXT NOT NULL,
			voucher_seq       INTEGER NOT NULL,
			voucher_type      TEXT NOT NULL,
			entry_date        TEXT NOT NULL,
			financial_year    INTEGER NOT NULL,
			narration         TEXT NOT NULL CHECK (length(trim(narration)) > 0),
			reference         TEXT NOT NULL DEFAULT '',
			payment_mode      TEXT NOT NULL DEFAULT '',
			party_name        TEXT NOT NULL DEFAULT '',
			status            TEXT NOT NULL CHECK (status IN ('POSTED','VOID','LOCKED')),
			total_debit       INTEGER NOT NULL,
			total_credit      INTEGER NOT NULL,
			created_at        TEXT NOT NULL,
			created_by        TEXT NOT NULL DEFAULT '',
			reversal_of       TEXT REFERENCES journal_entries(id),
			reversed_by       TEXT REFERENCES journal_entries(id),
			reclassified_from TEXT REFERENCES journal_entries(id),
			UNIQUE (voucher_type, voucher_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_date ON journal_entries(entry_date, voucher_type, voucher_seq)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_fy ON journal_entries(financial_year)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_reference ON journal_entries(reference)`,

		`CREATE TRIGGER IF NOT EXISTS trg_journal_no_delete
		BEFORE DELETE ON journal_entries
		BEGIN
			SELECT RAISE(ABORT, 'journal entries cannot be deleted');
		END`,

		// Only status and the reversed_by link may change once posted.
		`CREATE TRIGGER IF NOT EXISTS trg_journal_immutable
		BEFORE UPDATE ON journal_entries
		WHEN NEW.voucher_number != OLD.voucher_number
			OR NEW.voucher_seq != OLD.voucher_seq
			OR NEW.voucher_type != OLD.voucher_type
			OR NEW.entry_date != OLD.entry_date
			OR NEW.financial_year != OLD.financial_year
			OR NEW.narration != OLD.narration
			OR NEW.total_debit != OLD.total_debit
			OR NEW.total_credit != OLD.total_credit
		BEGIN
			SELECT RAISE(ABORT, 'posted journal entries are immutable');
		END`,

		`CREATE TRIGGER IF NOT EXISTS trg_journal_status
		BEFORE UPDATE OF status ON journal_entries
		WHEN NEW.status != OLD.status AND OLD.status != 'POSTED'
		BEGIN
			SELECT RAISE(ABORT, 'only POSTED entries change status');
		END`,

		`CREATE TABLE IF NOT EXISTS journal_lines (
			journal_id   TEXT NOT NULL REFERENCES journal_entries(id),
			line_index   INTEGER NOT NULL,
			account_code INTEGER NOT NULL REFERENCES accounts(code),
			debit        INTEGER NOT NULL DEFAULT 0 CHECK (debit >= 0),
			credit       INTEGER NOT NULL DEFAULT 0 CHECK (credit >= 0),
			CHECK ((debit > 0 AND credit = 0) OR (credit > 0 AND debit = 0)),
			PRIMARY KEY (journal_id, line_index)
		)`,

		`CREATE TRIGGER IF NOT EXISTS trg_journal_lines_no_update
		BEFORE UPDATE ON journal_lines
		BEGIN
			SELECT RAISE(ABORT, 'journal lines are immutable');
		END`,
		`CREATE TRIGGER IF NOT EXISTS trg_journal_lines_no_delete
		BEFORE DELETE ON journal_lines
		BEGIN
			SELECT RAISE(ABORT, 'journal lines are immutable');
		END`,

		// One row per journal line, materialised into the account ledger.
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			journal_id      TEXT NOT NULL REFERENCES journal_entries(id),
			line_index      INTEGER NOT NULL,
			account_code    INTEGER NOT NULL REFERENCES accounts(code),
			entry_date      TEXT NOT NULL,
			voucher_number  TEXT NOT NULL,
			voucher_seq     INTEGER NOT NULL,
			voucher_type    TEXT NOT NULL,
			particulars     TEXT NOT NULL DEFAULT '',
			debit           INTEGER NOT NULL DEFAULT 0 CHECK (debit >= 0),
			credit          INTEGER NOT NULL DEFAULT 0 CHECK (credit >= 0),
			running_balance INTEGER NOT NULL DEFAULT 0,
			status          TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE','REVERSED')),
			recon_status    TEXT NOT NULL DEFAULT 'PENDING' CHECK (recon_status IN ('PENDING','RECONCILED')),
			UNIQUE (journal_id, line_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account_order ON ledger_entries(account_code, entry_date, voucher_type, voucher_seq, line_index)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_recon ON ledger_entries(account_code, recon_status, entry_date)`,

		`CREATE TRIGGER IF NOT EXISTS trg_ledger_no_delete
		BEFORE DELETE ON ledger_entries
		BEGIN
			SELECT RAISE(ABORT, 'ledger entries cannot be deleted');
		END`,

		`CREATE TRIGGER IF NOT EXISTS trg_ledger_immutable
		BEFORE UPDATE ON ledger_entries
		WHEN NEW.account_code != OLD.account_code
			OR NEW.entry_date != OLD.entry_date
			OR NEW.voucher_number != OLD.voucher_number
			OR NEW.voucher_seq != OLD.voucher_seq
			OR NEW.debit != OLD.debit
			OR NEW.credit != OLD.credit
			OR NEW.journal_id != OLD.journal_id
		BEGIN
			SELECT RAISE(ABORT, 'ledger amounts are immutable');
		END`,

		`CREATE TRIGGER IF NOT EXISTS trg_ledger_status
		BEFORE UPDATE OF status ON ledger_entries
		WHEN OLD.status = 'REVERSED' AND NEW.status != 'REVERSED'
		BEGIN
			SELECT RAISE(ABORT, 'reversed ledger entries stay reversed');
		END`,

		`CREATE TRIGGER IF NOT EXISTS trg_ledger_recon
		BEFORE UPDATE OF recon_status ON ledger_entries
		WHEN OLD.recon_status = 'RECONCILED' AND NEW.recon_status != 'RECONCILED'
		BEGIN
			SELECT RAISE(ABORT, 'reconciled ledger entries stay reconciled');
		END`,

		`CREATE TABLE IF NOT EXISTS bank_transactions (
			id               TEXT PRIMARY KEY,
			account_code     INTEGER NOT NULL REFERENCES accounts(code),
			txn_date         TEXT NOT NULL,
			amount           INTEGER NOT NULL CHECK (amount != 0),
			description      TEXT NOT NULL DEFAULT '',
			reference_number TEXT NOT NULL DEFAULT '',
			imported_at      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bank_txn_date ON bank_transactions(account_code, txn_date)`,

		`CREATE TABLE IF NOT EXISTS reconciliation_records (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			bank_txn_id        TEXT NOT NULL REFERENCES bank_transactions(id),
			attempt            INTEGER NOT NULL,
			matched_journal_id TEXT REFERENCES journal_entries(id),
			matched_ledger_id  INTEGER REFERENCES ledger_entries(id),
			match_type         TEXT NOT NULL CHECK (match_type IN ('EXACT','FUZZY','REFERENCE','PATTERN','MANUAL','NONE')),
			confidence         REAL NOT NULL CHECK (confidence BETWEEN 0 AND 1),
			amount_difference  INTEGER NOT NULL DEFAULT 0,
			status             TEXT NOT NULL CHECK (status IN ('MATCHED','NEEDS_REVIEW')),
			reason             TEXT NOT NULL DEFAULT '',
			created_at         TEXT NOT NULL,
			UNIQUE (bank_txn_id, attempt)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_recon_claim ON reconciliation_records(matched_ledger_id) WHERE status = 'MATCHED'`,

		`CREATE TRIGGER IF NOT EXISTS trg_recon_no_update
		BEFORE UPDATE ON reconciliation_records
		BEGIN
			SELECT RAISE(ABORT, 'reconciliation records are append-only');
		END`,
		`CREATE TRIGGER IF NOT EXISTS trg_recon_no_delete
		BEFORE DELETE ON reconciliation_records
		BEGIN
			SELECT RAISE(ABORT, 'reconciliation records are append-only');
		END`,

		`CREATE TABLE IF NOT EXISTS audit_log (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			at        TEXT NOT NULL,
			action    TEXT NOT NULL,
			entity    TEXT NOT NULL DEFAULT '',
			entity_id TEXT NOT NULL DEFAULT '',
			ref       TEXT NOT NULL DEFAULT '',
			actor     TEXT NOT NULL DEFAULT '',
			detail    TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_ref ON audit_log(ref)`,

		// Record schema version
		`INSERT INTO schema_version (version) VALUES (1)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			head := stmt
			if len(head) > 60 {
				head = head[:60]
			}
			return fmt.Errorf("exec %q: %w", head, err)
		}
	}

	// Seed the default chart of accounts
	for _, ce := range ledger.DefaultChart {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO accounts (code, name, name_key, classification, grp, nature, cash_bank) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ce.Code, ce.Name, ledger.NameKey(ce.Name), string(ce.Classification), ce.Group, string(ce.Nature), boolToInt(ce.CashOrBank),
		)
		if err != nil {
			return fmt.Errorf("seed account %d: %w", ce.Code, err)
		}
	}

	return nil
}
