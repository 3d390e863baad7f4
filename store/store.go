// Package store defines the aggregate persistence interface. Each subsystem
// (session, journal) defines its own store interface. The composite Store
// composes them. Backends: Postgres, SQLite, Redis, and Memory.
package store

import (
	"context"

	"github.com/xraph/walkthrough/journal"
	"github.com/xraph/walkthrough/session"
)

// Store is the aggregate persistence interface.
// A single backend (postgres, sqlite, redis, memory) implements all of them.
type Store interface {
	session.Store
	journal.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
