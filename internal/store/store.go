// Package store persists the session state and the append-only event log.
//
// The session state is read-modify-written as a whole: invariants that span
// multiple fields (context image + page URL + derived fields) are preserved
// because Update applies the full mutation atomically, never as sequential
// per-key writes.
package store

import (
	"context"

	"github.com/tmoreaux/detectlab/internal/model"
)

// Store defines the persistence interface for the experiment.
type Store interface {
	// State returns a copy of the current session state.
	State(ctx context.Context) (model.SessionState, error)

	// Update applies mutate to the state atomically. When mutate returns an
	// error nothing is written and the error is returned unchanged.
	Update(ctx context.Context, mutate func(s *model.SessionState) error) error

	// AppendLog appends one immutable entry and returns the new log length.
	AppendLog(ctx context.Context, entry model.LogEntry) (int, error)

	// Logs returns all entries in append order.
	Logs(ctx context.Context) ([]model.LogEntry, error)

	// LogCount returns the number of entries.
	LogCount(ctx context.Context) (int, error)

	// ClearLogs removes every entry. Irreversible.
	ClearLogs(ctx context.Context) error

	// Lifecycle
	Close() error
}
