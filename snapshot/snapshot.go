// Package snapshot defines the append-only store of immutable grid snapshots
// that edit sessions commit against.
//
// A project's history is a linear chain of snapshots. The only mutable state
// is the project's "latest" pointer, which AppendSnapshot advances with a
// compare-and-append on expectedLatest.
package snapshot

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/grid"
)

// InitialMessage is the message of the first snapshot of every project.
const InitialMessage = "Created project"

var (
	ErrNoSuchProject          = stderrors.New("no such project")
	ErrNoSuchSnapshot         = stderrors.New("no such snapshot")
	ErrConcurrentModification = stderrors.New("latest snapshot changed")
	ErrStoreClosed            = stderrors.New("store is closed")
)

// Snapshot is an immutable grid state. Callers must not modify Grid.
type Snapshot struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Parent    string     `json:"parent,omitempty"`
	Grid      *grid.Grid `json:"grid"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}

// Version returns the history record of s.
func (s *Snapshot) Version() ProjectVersion {
	return ProjectVersion{ID: s.ID, Date: s.CreatedAt, Message: s.Message}
}

// ProjectVersion is a named, timestamped pointer to a snapshot.
type ProjectVersion struct {
	ID      string    `json:"id"`
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
}

type Project struct {
	ID          string    `json:"id"`
	DateCreated time.Time `json:"date_created"`
}

// Store holds immutable snapshots with a linear history per project.
type Store interface {
	// CreateProject creates a project whose first snapshot is an all-white
	// rows × cols grid.
	CreateProject(ctx context.Context, rows, cols int) (Project, *Snapshot, error)

	GetLatest(ctx context.Context, projectID string) (*Snapshot, error)
	GetByID(ctx context.Context, projectID, snapshotID string) (*Snapshot, error)

	// DiffCells returns the sorted indices whose colors differ between two
	// snapshots of the same project.
	DiffCells(ctx context.Context, projectID, a, b string) ([]int, error)

	// AppendSnapshot stores g as the project's new latest snapshot, provided
	// the latest is still expectedLatest. Otherwise it fails with
	// ErrConcurrentModification and stores nothing.
	AppendSnapshot(ctx context.Context, projectID, expectedLatest string, g *grid.Grid, message string) (string, error)

	// History returns the project's versions, newest first.
	History(ctx context.Context, projectID string) ([]ProjectVersion, error)

	Close() error
}

// Getter is the read path DiffCells needs.
type Getter interface {
	GetByID(ctx context.Context, projectID, snapshotID string) (*Snapshot, error)
}

// Diff implements DiffCells on top of any Getter.
func Diff(ctx context.Context, g Getter, projectID, a, b string) ([]int, error) {
	if a == b {
		if _, err := g.GetByID(ctx, projectID, a); err != nil {
			return nil, err
		}
		return []int{}, nil
	}
	left, err := g.GetByID(ctx, projectID, a)
	if err != nil {
		return nil, err
	}
	right, err := g.GetByID(ctx, projectID, b)
	if err != nil {
		return nil, err
	}
	cells, err := grid.Diff(left.Grid, right.Grid)
	if err != nil {
		return nil, errors.E(errors.Op("snapshot.Diff"), errors.KindInternal, err)
	}
	return cells, nil
}

// NoSuchProject wraps ErrNoSuchProject with its kind.
func NoSuchProject(op errors.Op, projectID string) error {
	e := errors.E(op, errors.KindNoSuchProject, ErrNoSuchProject).(*errors.Error)
	e.Metadata = map[string]interface{}{"project_id": projectID}
	return e
}

// NoSuchSnapshot wraps ErrNoSuchSnapshot with its kind.
func NoSuchSnapshot(op errors.Op, projectID, snapshotID string) error {
	e := errors.E(op, errors.KindNoSuchSnapshot, ErrNoSuchSnapshot).(*errors.Error)
	e.Metadata = map[string]interface{}{"project_id": projectID, "snapshot_id": snapshotID}
	return e
}

// ConcurrentModification wraps ErrConcurrentModification. It is retryable.
func ConcurrentModification(op errors.Op, projectID, expected string) error {
	e := errors.E(op, errors.KindConcurrentModification, ErrConcurrentModification).(*errors.Error)
	e.Retryable = true
	e.Metadata = map[string]interface{}{"project_id": projectID, "expected_latest": expected}
	return e
}

// ValidateAppend checks the arguments of AppendSnapshot against the latest
// snapshot's shape.
func ValidateAppend(op errors.Op, latest *Snapshot, g *grid.Grid, message string) error {
	if g == nil {
		return errors.E(op, errors.KindInvalid, "grid is nil")
	}
	if err := g.Validate(); err != nil {
		return errors.E(op, err)
	}
	if latest != nil && (g.Rows != latest.Grid.Rows || g.Cols != latest.Grid.Cols) {
		return errors.E(op, errors.KindInvalid, "grid dimensions differ from project")
	}
	if message == "" {
		return errors.E(op, errors.KindInvalid, "commit message is empty")
	}
	return nil
}
