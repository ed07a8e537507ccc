package store

import (
	"context"
	"fmt"
	"time"

	"github.com/notegate/notegate/internal/platform/db"
)

// AddNote creates a note owned by the user.
func (s *Store) AddNote(ctx context.Context, userID int64, content string) (*Note, error) {
	var note *Note
	err := s.mutate(ctx, func(ctx context.Context, tx db.DBTX) error {
		now := time.Now().UTC()
		result, err := tx.ExecContext(ctx,
			`INSERT INTO notes (user_id, content, created_at) VALUES (?, ?, ?)`, userID, content, now)
		if err != nil {
			return fmt.Errorf("store: add note: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("store: new note id: %w", err)
		}
		note = &Note{ID: id, UserID: userID, Content: content, CreatedAt: now}
		return nil
	})
	return note, err
}

// ListNotes returns the user's notes, newest first.
func (s *Store) ListNotes(ctx context.Context, userID int64) ([]Note, error) {
	rows, err := s.handle.QueryContext(ctx,
		`SELECT id, user_id, content, created_at FROM notes WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var note Note
		if err := rows.Scan(&note.ID, &note.UserID, &note.Content, &note.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan note: %w", err)
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// DeleteNote removes a note only when it belongs to the user. Reports
// whether a row was deleted.
func (s *Store) DeleteNote(ctx context.Context, noteID, userID int64) (bool, error) {
	var deleted bool
	err := s.mutate(ctx, func(ctx context.Context, tx db.DBTX) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM notes WHERE id = ? AND user_id = ?`, noteID, userID)
		if err != nil {
			return fmt.Errorf("store: delete note: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: delete note: %w", err)
		}
		deleted = affected > 0
		return nil
	})
	return deleted, err
}
