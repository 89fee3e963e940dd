package storage

import (
	"context"

	"github.com/evalgo-org/diagramhub/diagramspec"
)

// Engine is the full C4 Storage Engine contract. Protected (C5) wraps any
// Engine with a circuit breaker and metrics while exposing the identical
// interface, so callers never know which one they hold.
type Engine interface {
	Create(ctx context.Context, name, project string, spec *diagramspec.Spec, opts CreateOptions) (*Diagram, error)
	Get(ctx context.Context, id string) (*Diagram, error)

	// Update returns exactly one of: (diagram, nil, nil) on success,
	// (nil, conflict, nil) on an optimistic-lock miss, or (nil, nil, nil)
	// when id does not exist.
	Update(ctx context.Context, id string, spec *diagramspec.Spec, message string, baseVersion *int64) (*Diagram, *Conflict, error)
	ForceUpdate(ctx context.Context, id string, spec *diagramspec.Spec, message string) (*Diagram, error)
	Transform(ctx context.Context, id string, fn func(*diagramspec.Spec) (*diagramspec.Spec, error), message string, maxRetries int) (*Diagram, error)
	Delete(ctx context.Context, id string) (bool, error)

	List(ctx context.Context, project string) ([]Diagram, error)
	ListPaginated(ctx context.Context, filter ListFilter) (*ListResult, error)
	ListForUser(ctx context.Context, userID *string, filter UserListFilter) (*ListResult, error)

	CreateVersion(ctx context.Context, diagramID string, spec *diagramspec.Spec, message string) (*Version, error)
	GetVersions(ctx context.Context, diagramID string) ([]Version, error)
	GetVersionsPaginated(ctx context.Context, diagramID string, limit, offset int) ([]Version, int64, error)
	GetVersionsMetadata(ctx context.Context, diagramID string) ([]Version, error)
	GetVersion(ctx context.Context, diagramID string, version int64) (*Version, error)
	GetLatestVersion(ctx context.Context, diagramID string) (*Version, error)
	RestoreVersion(ctx context.Context, diagramID string, version int64) (*Diagram, error)

	Fork(ctx context.Context, id, newName, project string) (*Diagram, error)

	UpdateOwner(ctx context.Context, id, ownerID string) error
	SetPublic(ctx context.Context, id string, isPublic bool) error
	UpdateShares(ctx context.Context, id string, shares []Share) (bool, error)
	AddShare(ctx context.Context, id, userID, permission string) (bool, error)
	RemoveShare(ctx context.Context, id, userID string) (bool, error)

	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

var _ Engine = (*SQLite)(nil)
