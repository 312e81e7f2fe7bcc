// Package store provides document retrieval and patch-run audit persistence.
// Three backends exist: filesystem (read-only document source, default),
// SQLite (zero-config) and PostgreSQL. Backends are selected by config.
package store

import (
	"context"
	"errors"

	"github.com/jkaninda/sindano/internal/domain"
)

// ErrNotFound is returned when a document identity does not resolve.
var ErrNotFound = errors.New("document not found")

// Store is the unified persistence interface implemented by the database
// backends. It covers both sides the engine needs: the document-retrieval
// collaborator and the audit trail.
type Store interface {
	// Read returns a document's content by identity.
	// Consumed once per pipeline run — not cached, not retried.
	Read(ctx context.Context, identity string) (string, error)

	// PutDocument creates or replaces a document.
	PutDocument(ctx context.Context, identity, content string) error

	// Record appends one patch-run audit record. Append-only.
	Record(ctx context.Context, run *domain.PatchRun) error

	// ListRuns returns audit records, newest first. Empty identity = all.
	// Limit defaults to 100 when <= 0.
	ListRuns(ctx context.Context, identity string, limit int) ([]domain.PatchRun, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error

	// Driver returns the backend name ("sqlite" or "postgres").
	Driver() string
}
