// Package store persists agents and their inbox messages.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aki/agentpost/internal/core/agent"
	"github.com/aki/agentpost/internal/core/inbox"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// ErrClosed is returned after Close
var ErrClosed = errors.New("store is closed")

// ErrConflict is returned when a write loses to a concurrent writer: the
// message ID is already taken, or the stored row changed since it was read.
var ErrConflict = errors.New("message changed concurrently")

// Store is the persistence boundary for the message manager and the shared
// state of every process using the same database. Rows are the source of
// truth; inboxes are rebuilt from them before each operation.
type Store interface {
	SaveAgent(ctx context.Context, a agent.Agent) error
	ListAgents(ctx context.Context) ([]agent.Agent, error)
	DeleteAgent(ctx context.Context, id string) error

	// InsertMessage stores a new message and returns the arrival sequence
	// the store assigned to it. An ID already held for the recipient yields
	// ErrConflict.
	InsertMessage(ctx context.Context, msg inbox.ManagedMessage) (uint64, error)
	// UpdateMessage writes msg only if the stored row still has prev's
	// state and last-updated time. Otherwise it returns ErrConflict, or
	// ErrNotFound when the row is gone.
	UpdateMessage(ctx context.Context, msg, prev inbox.ManagedMessage) error
	LoadMessages(ctx context.Context, agentID string) ([]inbox.ManagedMessage, error)
	DeleteMessages(ctx context.Context, agentID string, ids ...string) error

	Close() error
}

// Open returns the store for driver. path is ignored by the memory driver.
func Open(ctx context.Context, driver, path string) (Store, error) {
	switch driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite", "":
		return OpenSQLite(ctx, path)
	}
	return nil, fmt.Errorf("unsupported storage driver: %s", driver)
}
