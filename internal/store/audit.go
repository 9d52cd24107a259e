package store

import (
	"context"
	"fmt"
	"time"
)

// AuditEntry is one line of the append-only audit log.
type AuditEntry struct {
	ID       int64     `json:"id"`
	At       time.Time `json:"at"`
	Action   string    `json:"action"`
	Entity   string    `json:"entity,omitempty"`
	EntityID string    `json:"entity_id,omitempty"`
	Ref      string    `json:"ref,omitempty"`
	Actor    string    `json:"actor,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

func (t *Tx) Audit(ctx context.Context, a AuditEntry) error {
	return insertAudit(ctx, t.tx, a)
}

// Audit writes an entry in its own transaction. Used to record failures
// whose transaction was rolled back.
func (s *Store) Audit(ctx context.Context, a AuditEntry) error {
	return insertAudit(ctx, s.writer, a)
}

func insertAudit(ctx context.Context, q querier, a AuditEntry) error {
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO audit_log (at, action, entity, entity_id, ref, actor, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		formatTime(a.At), a.Action, a.Entity, a.EntityID, a.Ref, a.Actor, a.Detail)
	if err != nil {
		return fmt.Errorf("audit %s: %w", a.Action, err)
	}
	return nil
}

type AuditFilter struct {
	Ref      string
	EntityID string
	Limit    int
}

// ListAudit returns the newest entries first.
func (r *Reader) ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	query := `SELECT id, at, action, entity, entity_id, ref, actor, detail FROM audit_log WHERE 1=1`
	args := []any{}
	if f.Ref != "" {
		query += ` AND ref = ?`
		args = append(args, f.Ref)
	}
	if f.EntityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, f.EntityID)
	}
	query += ` ORDER BY id DESC` + limitClause(f.Limit, 0)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var a AuditEntry
		var at string
		if err := rows.Scan(&a.ID, &at, &a.Action, &a.Entity, &a.EntityID, &a.Ref, &a.Actor, &a.Detail); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		a.At = parseTime(at)
		out = append(out, a)
	}
	return out, rows.Err()
}
