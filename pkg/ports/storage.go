package ports

import (
	"context"

	"github.com/flowdhq/flowd/pkg/domain"
	"github.com/flowdhq/flowd/pkg/schema"
)

// RunStore persists runs. Implementations hand out and accept deep
// copies, so callers never share memory with the stored record.
type RunStore interface {
	// CreateRun stores a new run. The stored run starts at version 0.
	CreateRun(ctx context.Context, run *domain.Run) error

	// GetRun returns the run with the given id, or an error matching
	// domain.ErrNotFound.
	GetRun(ctx context.Context, id string) (*domain.Run, error)

	// UpdateRun replaces the stored run only if its version still
	// equals expectedVersion, bumping the version on success. A stale
	// expectation fails with domain.ErrVersionConflict and leaves the
	// stored run untouched.
	UpdateRun(ctx context.Context, run *domain.Run, expectedVersion int64) error

	// ListRuns returns a snapshot of all runs of the given kind.
	ListRuns(ctx context.Context, kind domain.RunKind) ([]*domain.Run, error)

	// Close releases the store's resources.
	Close() error
}

// FlowStore persists flow documents keyed by flow id.
type FlowStore interface {
	// SaveFlow stores the document, replacing any document with the
	// same id.
	SaveFlow(ctx context.Context, doc *schema.FlowDocument) error

	// GetFlow returns the document with the given id, or an error
	// matching domain.ErrNotFound.
	GetFlow(ctx context.Context, id string) (*schema.FlowDocument, error)

	// ListFlows returns a snapshot of all stored documents.
	ListFlows(ctx context.Context) ([]*schema.FlowDocument, error)

	// DeleteFlow removes the document with the given id, or fails with
	// an error matching domain.ErrNotFound.
	DeleteFlow(ctx context.Context, id string) error

	// Close releases the store's resources.
	Close() error
}
