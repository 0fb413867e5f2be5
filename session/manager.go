package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/logging"
	"github.com/c0deZ3R0/pixel-chunk/resolver"
	"github.com/c0deZ3R0/pixel-chunk/snapshot"
)

// Manager owns the open sessions of a server.
type Manager struct {
	store    snapshot.Store
	resolver *resolver.Resolver
	logger   *logging.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(store snapshot.Store, r *resolver.Resolver, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.WithComponent(logging.Component(component))
	}
	return &Manager{
		store:    store,
		resolver: r,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Open starts a session on projectID based on its current latest snapshot.
func (m *Manager) Open(ctx context.Context, projectID string) (*Session, error) {
	latest, err := m.store.GetLatest(ctx, projectID)
	if err != nil {
		return nil, errors.E(errors.OpOpen, component, err)
	}

	s := newSession(projectID, latest.ID, latest.Grid.Rows, latest.Grid.Cols, m.resolver, m.logger)
	s.onClose = m.forget

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Session opened",
		logging.SessionAttr(s.id), logging.ProjectAttr(projectID), logging.SnapshotAttr(latest.ID))
	return s, nil
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Len is the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	_, ok := m.sessions[s.id]
	delete(m.sessions, s.id)
	m.mu.Unlock()
	if ok {
		m.logger.Info("Session closed", logging.SessionAttr(s.id), logging.ProjectAttr(s.projectID))
	}
}

// Close ends the session with the given id, if open.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
		m.logger.Info("Session closed", logging.SessionAttr(id), logging.ProjectAttr(s.projectID))
	}
}

// CloseAll ends every open session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if len(sessions) > 0 {
		m.logger.Info("Closed all sessions", slog.Int("count", len(sessions)))
	}
}
