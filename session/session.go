// Package session implements the server half of an edit session: one client
// editing one project against a fixed base snapshot.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/grid"
	"github.com/c0deZ3R0/pixel-chunk/logging"
	"github.com/c0deZ3R0/pixel-chunk/protocol"
	"github.com/c0deZ3R0/pixel-chunk/resolver"
)

const component = errors.Component("session")

// State is the server-side state of a session.
type State int

const (
	StateActive State = iota
	StateCommitting
	StateConflicted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitting:
		return "committing"
	case StateConflicted:
		return "conflicted"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session is one client's edit session on a project.
//
// While Conflicted the session keeps the changes of the rejected commit, so
// that a rebase_commit (which carries no changes) can retry them. A new
// commit received while Conflicted replaces them.
type Session struct {
	id        string
	projectID string
	rows      int
	cols      int
	resolver  *resolver.Resolver
	logger    *logging.Logger
	onClose   func(*Session)

	mu       sync.Mutex
	state    State
	base     string
	pending  []grid.UpdateAction
	conflict *resolver.Conflict
}

func newSession(projectID, base string, rows, cols int, r *resolver.Resolver, logger *logging.Logger) *Session {
	id := ulid.Make().String()
	return &Session{
		id:        id,
		projectID: projectID,
		rows:      rows,
		cols:      cols,
		resolver:  r,
		logger:    logger.WithAttrs(logging.SessionAttr(id), logging.ProjectAttr(projectID)),
		state:     StateActive,
		base:      base,
	}
}

func (s *Session) ID() string        { return s.id }
func (s *Session) ProjectID() string { return s.projectID }

// Base returns the snapshot the session's next commit is checked against.
func (s *Session) Base() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready is the first message sent to the client.
func (s *Session) Ready() protocol.Ready {
	return protocol.Ready{ProjectID: s.projectID, BaseSnapshot: s.Base(), Rows: s.rows, Cols: s.cols}
}

// HandleMessage decodes and handles one client message.
func (s *Session) HandleMessage(ctx context.Context, data []byte) protocol.Result {
	req, err := protocol.DecodeRequest(data)
	if err != nil {
		return s.fail(err)
	}
	return s.Handle(ctx, req)
}

// Handle processes one request. A Failure with Fatal set means the session
// is closed and the connection should be dropped.
func (s *Session) Handle(ctx context.Context, req protocol.Request) protocol.Result {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return protocol.FailureFrom(errors.E(errors.OpCommit, component, errors.KindInvalidState, "session is closed"), true)
	case StateCommitting:
		s.mu.Unlock()
		return s.fail(errors.E(errors.OpCommit, component, errors.KindInvalidState, "a commit is already in flight"))
	}

	if err := req.Validate(s.rows * s.cols); err != nil {
		s.mu.Unlock()
		return s.fail(err)
	}

	var (
		changes  []grid.UpdateAction
		message  string
		strategy protocol.Strategy
		op       = errors.OpCommit
	)
	switch r := req.(type) {
	case protocol.Commit:
		changes, message = r.Changes, r.Message
		if s.state == StateConflicted {
			s.logger.DebugContext(ctx, "New commit discards conflict")
		}
	case protocol.RebaseCommit:
		op = errors.OpRebase
		if s.state != StateConflicted {
			state := s.state
			s.mu.Unlock()
			return s.fail(errors.E(op, component, errors.KindInvalidState,
				fmt.Sprintf("rebase_commit received while %s", state)))
		}
		changes, message, strategy = s.pending, r.Message, r.Strategy
	default:
		s.mu.Unlock()
		return s.fail(errors.E(op, component, errors.KindInvalid, fmt.Sprintf("unsupported request %T", req)))
	}

	prev := s.state
	base := s.base
	s.state = StateCommitting
	s.mu.Unlock()

	var (
		outcome resolver.Outcome
		err     error
	)
	if strategy != "" {
		outcome, err = s.resolver.Rebase(ctx, s.projectID, base, changes, message, strategy)
	} else {
		outcome, err = s.resolver.Commit(ctx, s.projectID, base, changes, message)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		// Closed while committing; the commit itself completed or failed atomically.
		if err != nil {
			return protocol.FailureFrom(err, true)
		}
		return outcome.Result()
	}

	switch {
	case err != nil && recoverable(err):
		s.state = prev
		return s.fail(err)
	case err != nil:
		s.closeLocked()
		s.logger.LogError(ctx, err, "Session terminated")
		return protocol.FailureFrom(err, true)
	case outcome.Conflicted():
		s.state = StateConflicted
		s.pending = changes
		s.conflict = outcome.Conflict
	default:
		s.state = StateActive
		s.base = outcome.Snapshot
		s.pending = nil
		s.conflict = nil
	}
	return outcome.Result()
}

// recoverable errors are reported to the client without ending the session.
func recoverable(err error) bool {
	switch errors.KindOf(err) {
	case errors.KindInvalid, errors.KindOutOfRange, errors.KindInvalidState, errors.KindCommitFailed:
		return true
	}
	return false
}

func (s *Session) fail(err error) protocol.Failure {
	s.logger.Debug("Request rejected", slog.String("error", err.Error()))
	return protocol.FailureFrom(err, false)
}

// Conflict returns the conflict the session is waiting to resolve, if any.
func (s *Session) Conflict() *resolver.Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conflict
}

// Close ends the session, discarding any retained changes.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	s.pending = nil
	s.conflict = nil
	if s.onClose != nil {
		go s.onClose(s)
	}
}
