// Package db opens the embedded SQLite database and provides small
// transaction helpers shared by repositories.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"

	"github.com/notegate/notegate/internal/shared"
)

// Open creates a database handle for the single-file SQLite store.
//
// WAL mode permits concurrent readers while writers serialize at the
// engine; busy_timeout makes contending writers wait instead of failing.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", url.PathEscape(path))
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: open %s: %w", path, shared.ErrStorageUnavailable)
	}

	if err := handle.PingContext(ctx); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("platform/db: ping %s: %w", path, shared.ErrStorageUnavailable)
	}

	return handle, nil
}
