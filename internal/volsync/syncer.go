// Package volsync bridges ephemeral container storage to durable external
// storage: after a successful local commit the database file is flushed to
// a network-backed replica.
package volsync

import "context"

// Syncer flushes the storage volume to its durable replica.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Noop performs no replication. Used in development and tests.
type Noop struct{}

// Sync implements Syncer.
func (Noop) Sync(context.Context) error { return nil }
