// Package client implements the client half of an edit session: local edits
// buffered against a base snapshot and committed over a Transport.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c0deZ3R0/pixel-chunk/buffer"
	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/grid"
	"github.com/c0deZ3R0/pixel-chunk/logging"
	"github.com/c0deZ3R0/pixel-chunk/protocol"
)

const component = errors.Component("client")

// Transport carries protocol messages for one session.
type Transport interface {
	Send(ctx context.Context, req protocol.Request) error
	Receive(ctx context.Context) (protocol.Result, error)
	Close() error
}

// Dialer opens a Transport to the edit endpoint of a project.
type Dialer interface {
	Dial(ctx context.Context, projectID string) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, projectID string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, projectID string) (Transport, error) {
	return f(ctx, projectID)
}

type State int

const (
	StateClosed State = iota
	StateConnecting
	StateActive
	StateCommitting
	StateConflicted
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateCommitting:
		return "committing"
	case StateConflicted:
		return "conflicted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// EditSession is a client's edit session on one project.
//
// Edits recorded while a commit is in flight, or while a conflict awaits a
// strategy, are queued separately and join the buffer once the commit
// succeeds, so a rebase only ever retries the edits that conflicted.
type EditSession struct {
	transport Transport
	projectID string
	rows      int
	cols      int
	logger    *logging.Logger

	mu       sync.Mutex
	state    State
	base     string
	buffer   *buffer.Buffer
	queued   *buffer.Buffer
	conflict *protocol.Conflict
}

// Option configures Enter.
type Option func(*EditSession)

func WithLogger(l *logging.Logger) Option {
	return func(s *EditSession) { s.logger = l }
}

// Enter opens an edit session on projectID and waits for the server's ready
// message, which fixes the session's base snapshot.
func Enter(ctx context.Context, dialer Dialer, projectID string, opts ...Option) (*EditSession, error) {
	s := &EditSession{projectID: projectID, state: StateConnecting}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.WithComponent(logging.Component(component))
	}

	transport, err := dialer.Dial(ctx, projectID)
	if err != nil {
		return nil, errors.E(errors.OpOpen, component, err)
	}

	result, err := transport.Receive(ctx)
	if err != nil {
		transport.Close()
		return nil, errors.E(errors.OpOpen, component, errors.KindConnectionLost, err)
	}
	switch r := result.(type) {
	case protocol.Ready:
		s.transport = transport
		s.base = r.BaseSnapshot
		s.rows, s.cols = r.Rows, r.Cols
		s.buffer = buffer.New(r.Rows * r.Cols)
		s.queued = buffer.New(r.Rows * r.Cols)
		s.state = StateActive
	case protocol.Failure:
		transport.Close()
		return nil, errors.E(errors.OpOpen, component, r.Err())
	default:
		transport.Close()
		return nil, errors.E(errors.OpOpen, component, errors.KindInvalidState,
			fmt.Sprintf("expected ready, got %s", result.ResultKind()))
	}

	s.logger = s.logger.WithAttrs(logging.ProjectAttr(projectID))
	s.logger.DebugContext(ctx, "Entered edit mode", logging.SnapshotAttr(s.base))
	return s, nil
}

func (s *EditSession) ProjectID() string { return s.projectID }

// Dimensions returns the grid's rows and cols.
func (s *EditSession) Dimensions() (int, int) { return s.rows, s.cols }

func (s *EditSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *EditSession) Base() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// Conflict returns the last reported conflict while Conflicted.
func (s *EditSession) Conflict() *protocol.Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conflict
}

// Pending returns the buffered edits followed by the queued ones.
func (s *EditSession) Pending() []grid.UpdateAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	return append(s.buffer.Actions(), s.queued.Actions()...)
}

// Record buffers one edit.
func (s *EditSession) Record(index int, color grid.Color) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateActive:
		return s.buffer.Record(index, color)
	case StateCommitting, StateConflicted:
		return s.queued.Record(index, color)
	}
	return errors.E(errors.OpRecord, component, errors.KindInvalidState,
		fmt.Sprintf("cannot record while %s", s.state))
}

// Overlay returns base with every pending edit applied, last write winning.
func (s *EditSession) Overlay(base []grid.Color) []grid.Color {
	return grid.Overlay(base, s.Pending())
}

// Commit sends the buffered edits. It returns protocol.Success or
// protocol.Conflict; rejected requests and transport failures are errors.
func (s *EditSession) Commit(ctx context.Context, message string) (protocol.Result, error) {
	s.mu.Lock()
	if s.state != StateActive {
		state := s.state
		s.mu.Unlock()
		return nil, errors.E(errors.OpCommit, component, errors.KindInvalidState,
			fmt.Sprintf("cannot commit while %s", state))
	}
	if s.buffer.Len() == 0 {
		s.mu.Unlock()
		return nil, errors.E(errors.OpCommit, component, errors.KindInvalid, "nothing to commit")
	}
	req := protocol.Commit{Message: message, Changes: s.buffer.Actions()}
	if err := req.Validate(s.buffer.Size()); err != nil {
		s.mu.Unlock()
		return nil, errors.E(errors.OpCommit, component, err)
	}
	s.state = StateCommitting
	s.mu.Unlock()

	return s.roundTrip(ctx, errors.OpCommit, req, StateActive)
}

// Rebase retries the conflicted commit, settling conflicted cells with
// strategy. Only valid while Conflicted.
func (s *EditSession) Rebase(ctx context.Context, message string, strategy protocol.Strategy) (protocol.Result, error) {
	s.mu.Lock()
	if s.state != StateConflicted {
		state := s.state
		s.mu.Unlock()
		return nil, errors.E(errors.OpRebase, component, errors.KindInvalidState,
			fmt.Sprintf("cannot rebase while %s", state))
	}
	req := protocol.RebaseCommit{Message: message, Strategy: strategy}
	if err := req.Validate(0); err != nil {
		s.mu.Unlock()
		return nil, errors.E(errors.OpRebase, component, err)
	}
	s.state = StateCommitting
	s.mu.Unlock()

	return s.roundTrip(ctx, errors.OpRebase, req, StateConflicted)
}

func (s *EditSession) roundTrip(ctx context.Context, op errors.Op, req protocol.Request, prev State) (protocol.Result, error) {
	result, err := s.exchange(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.closeLocked()
		s.logger.LogError(ctx, err, "Connection lost")
		return nil, errors.E(op, component, errors.KindConnectionLost, err)
	}

	switch r := result.(type) {
	case protocol.Success:
		s.base = r.LatestSnapshot
		s.conflict = nil
		s.buffer.Clear()
		s.promoteQueuedLocked()
		s.state = StateActive
		s.logger.InfoContext(ctx, "Committed", logging.SnapshotAttr(r.LatestSnapshot))
		return r, nil
	case protocol.Conflict:
		s.conflict = &r
		s.state = StateConflicted
		s.logger.InfoContext(ctx, "Commit conflicts",
			slog.String("failed_at_snapshot", r.FailedAtSnapshot),
			slog.Int("cells", len(r.ConflictedChunks)))
		return r, nil
	case protocol.Failure:
		if r.Fatal {
			s.closeLocked()
		} else {
			s.state = prev
			// A conflict still owns the buffer; queued edits wait for the rebase.
			if prev == StateActive {
				s.promoteQueuedLocked()
			}
		}
		return nil, errors.E(op, component, r.Err())
	}

	s.closeLocked()
	return nil, errors.E(op, component, errors.KindInvalidState,
		fmt.Sprintf("unexpected %s result", result.ResultKind()))
}

// promoteQueuedLocked moves edits recorded during a round trip behind the
// buffered ones. Both buffers share the grid size, so Append cannot fail.
func (s *EditSession) promoteQueuedLocked() {
	if err := s.buffer.Append(s.queued.Actions()...); err != nil {
		s.logger.Error("Dropping queued edits", slog.String("error", err.Error()))
	}
	s.queued.Clear()
}

func (s *EditSession) exchange(ctx context.Context, req protocol.Request) (protocol.Result, error) {
	if err := s.transport.Send(ctx, req); err != nil {
		return nil, err
	}
	return s.transport.Receive(ctx)
}

// Cancel discards pending edits and any conflict, keeping the base.
func (s *EditSession) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateActive, StateConflicted:
		s.buffer.Clear()
		s.queued.Clear()
		s.conflict = nil
		s.state = StateActive
		return nil
	}
	return errors.E(errors.OpCancel, component, errors.KindInvalidState,
		fmt.Sprintf("cannot cancel while %s", s.state))
}

// Exit leaves edit mode, discarding everything pending.
func (s *EditSession) Exit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	return s.closeLocked()
}

func (s *EditSession) closeLocked() error {
	s.state = StateClosed
	s.buffer.Clear()
	s.queued.Clear()
	s.conflict = nil
	return s.transport.Close()
}
