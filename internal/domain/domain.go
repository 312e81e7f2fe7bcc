// Package domain defines cross-cutting entity types used across the system.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// PatchRun is the persisted audit record of one document's pipeline run.
// It captures what the engine did, not the patched text itself — the full
// outcome (original/patched content) stays in memory with the caller.
type PatchRun struct {
	ID             uuid.UUID
	Identity       string // Document identity as given to the engine.
	MarkersFound   int
	PatchesApplied int
	Executed       bool     // False when the pipeline halted before the sandbox stage.
	Errors         []string // Error descriptors, empty for a clean run.
	DurationMs     int64
	CreatedAt      time.Time
}

// Clean reports whether the run completed without any recorded error.
func (r *PatchRun) Clean() bool {
	return len(r.Errors) == 0
}
