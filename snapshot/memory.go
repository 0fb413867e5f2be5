package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/grid"
)

const (
	opMemCreate  = errors.Op("memory.CreateProject")
	opMemLatest  = errors.Op("memory.GetLatest")
	opMemGet     = errors.Op("memory.GetByID")
	opMemAppend  = errors.Op("memory.AppendSnapshot")
	opMemHistory = errors.Op("memory.History")
)

type memProject struct {
	created   time.Time
	snapshots map[string]*Snapshot
	order     []string
}

func (p *memProject) latest() *Snapshot {
	return p.snapshots[p.order[len(p.order)-1]]
}

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	closed   bool
	projects map[string]*memProject
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{projects: make(map[string]*memProject)}
}

func (m *MemoryStore) CreateProject(ctx context.Context, rows, cols int) (Project, *Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Project{}, nil, err
	}
	g, err := grid.New(rows, cols, grid.White)
	if err != nil {
		return Project{}, nil, errors.E(opMemCreate, err)
	}

	now := time.Now().UTC()
	project := Project{ID: NewProjectID(), DateCreated: now}
	snap := &Snapshot{
		ID:        NewSnapshotID(),
		ProjectID: project.ID,
		Grid:      g,
		Message:   InitialMessage,
		CreatedAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Project{}, nil, errors.E(opMemCreate, ErrStoreClosed)
	}
	m.projects[project.ID] = &memProject{
		created:   now,
		snapshots: map[string]*Snapshot{snap.ID: snap},
		order:     []string{snap.ID},
	}
	return project, snap, nil
}

func (m *MemoryStore) project(op errors.Op, projectID string) (*memProject, error) {
	if m.closed {
		return nil, errors.E(op, ErrStoreClosed)
	}
	p, ok := m.projects[projectID]
	if !ok {
		return nil, NoSuchProject(op, projectID)
	}
	return p, nil
}

func (m *MemoryStore) GetLatest(ctx context.Context, projectID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, err := m.project(opMemLatest, projectID)
	if err != nil {
		return nil, err
	}
	return p.latest(), nil
}

func (m *MemoryStore) GetByID(ctx context.Context, projectID, snapshotID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, err := m.project(opMemGet, projectID)
	if err != nil {
		return nil, err
	}
	s, ok := p.snapshots[snapshotID]
	if !ok {
		return nil, NoSuchSnapshot(opMemGet, projectID, snapshotID)
	}
	return s, nil
}

func (m *MemoryStore) DiffCells(ctx context.Context, projectID, a, b string) ([]int, error) {
	return Diff(ctx, m, projectID, a, b)
}

func (m *MemoryStore) AppendSnapshot(ctx context.Context, projectID, expectedLatest string, g *grid.Grid, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.project(opMemAppend, projectID)
	if err != nil {
		return "", err
	}
	latest := p.latest()
	if err := ValidateAppend(opMemAppend, latest, g, message); err != nil {
		return "", err
	}
	if latest.ID != expectedLatest {
		return "", ConcurrentModification(opMemAppend, projectID, expectedLatest)
	}

	snap := &Snapshot{
		ID:        NewSnapshotID(),
		ProjectID: projectID,
		Parent:    latest.ID,
		Grid:      g.Clone(),
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	p.snapshots[snap.ID] = snap
	p.order = append(p.order, snap.ID)
	return snap.ID, nil
}

func (m *MemoryStore) History(ctx context.Context, projectID string) ([]ProjectVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, err := m.project(opMemHistory, projectID)
	if err != nil {
		return nil, err
	}
	versions := make([]ProjectVersion, 0, len(p.order))
	for i := len(p.order) - 1; i >= 0; i-- {
		versions = append(versions, p.snapshots[p.order[i]].Version())
	}
	return versions, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
