package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notegate/notegate/internal/platform/db"
)

// AuditEntry records an administrative action.
type AuditEntry struct {
	ID         int64
	ActorEmail string
	Action     string
	Subject    string
	OccurredAt time.Time
}

// RecordAudit persists an administrative action. The entry shares the
// mutation path of the action it describes only in spirit; it is written in
// its own transaction so a failed audit write never blocks the action.
func (s *Store) RecordAudit(ctx context.Context, actorEmail, action, subject string) error {
	if action == "" || subject == "" {
		return errors.New("store: audit entry requires action and subject")
	}
	return s.mutate(ctx, func(ctx context.Context, tx db.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO audit_logs (actor_email, action, subject, occurred_at) VALUES (?, ?, ?, ?)`,
			NormalizeEmail(actorEmail), action, subject, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("store: record audit: %w", err)
		}
		return nil
	})
}

// ListAuditEntries returns the most recent administrative actions.
func (s *Store) ListAuditEntries(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.handle.QueryContext(ctx,
		`SELECT id, actor_email, action, subject, occurred_at FROM audit_logs ORDER BY occurred_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		if err := rows.Scan(&entry.ID, &entry.ActorEmail, &entry.Action, &entry.Subject, &entry.OccurredAt); err != nil {
			return nil, fmt.Errorf("store: scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
