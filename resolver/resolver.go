// Package resolver decides whether pending changes can be committed on top of
// a project's latest snapshot, and commits them.
//
// A session's base snapshot never advances on its own. Cells changed between
// base and the latest snapshot are "remote"; cells in the pending changes are
// "local". A commit conflicts only when the two sets intersect. A clean commit
// is applied to the latest snapshot, not to base.
//
// Check-and-append is serialized per project in process, and the store's
// compare-and-append catches writers in other processes. A lost race is
// retried against the new latest snapshot up to the configured number of
// attempts.
package resolver

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/grid"
	"github.com/c0deZ3R0/pixel-chunk/logging"
	"github.com/c0deZ3R0/pixel-chunk/protocol"
	"github.com/c0deZ3R0/pixel-chunk/snapshot"
)

// DefaultMaxAttempts bounds check-and-append attempts per request.
const DefaultMaxAttempts = 5

const component = errors.Component("resolver")

// Hooks provides optional callbacks for observability around commits.
// All hooks are optional; nil functions are safe no-ops.
type Hooks struct {
	OnConflict  func(c Conflict)
	OnCommitted func(projectID, snapshotID string, decision string)
	OnRetry     func(projectID string, attempt int, err error)
	OnError     func(projectID string, err error)
}

type resolverOptions struct {
	maxAttempts int
	hooks       Hooks
	metrics     MetricsCollector
	logger      *logging.Logger
}

// Option configures a Resolver.
type Option interface{ apply(*resolverOptions) }

type optionFn func(*resolverOptions)

func (f optionFn) apply(o *resolverOptions) { f(o) }

// WithMaxAttempts bounds how often a lost store race is retried.
func WithMaxAttempts(n int) Option {
	return optionFn(func(o *resolverOptions) { o.maxAttempts = n })
}

// WithHooks sets optional observability hooks. Zero-value safe.
func WithHooks(h Hooks) Option { return optionFn(func(o *resolverOptions) { o.hooks = h }) }

func WithMetrics(m MetricsCollector) Option {
	return optionFn(func(o *resolverOptions) { o.metrics = m })
}

func WithLogger(l *logging.Logger) Option {
	return optionFn(func(o *resolverOptions) { o.logger = l })
}

// Resolver commits pending changes against a snapshot.Store.
type Resolver struct {
	store       snapshot.Store
	maxAttempts int
	hooks       Hooks
	metrics     MetricsCollector
	logger      *logging.Logger

	locksMu sync.Mutex
	locks   map[string]*projectLock
}

// projectLock serializes commits to one project. Entries are dropped once
// no request holds or waits on them.
type projectLock struct {
	mu   sync.Mutex
	refs int
}

// New constructs a Resolver.
func New(store snapshot.Store, opts ...Option) (*Resolver, error) {
	cfg := &resolverOptions{maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt.apply(cfg)
	}

	if store == nil {
		return nil, errors.E(errors.Op("resolver.New"), component, errors.KindInvalid, "store is required")
	}
	if cfg.maxAttempts < 1 {
		return nil, errors.E(errors.Op("resolver.New"), component, errors.KindInvalid, "max attempts must be at least 1")
	}
	if cfg.metrics == nil {
		cfg.metrics = &NoOpMetricsCollector{}
	}
	if cfg.logger == nil {
		cfg.logger = logging.WithComponent(logging.Component(component))
	}

	return &Resolver{
		store:       store,
		maxAttempts: cfg.maxAttempts,
		hooks:       cfg.hooks,
		metrics:     cfg.metrics,
		logger:      cfg.logger,
	}, nil
}

func (r *Resolver) lock(projectID string) func() {
	r.locksMu.Lock()
	if r.locks == nil {
		r.locks = make(map[string]*projectLock)
	}
	l, ok := r.locks[projectID]
	if !ok {
		l = &projectLock{}
		r.locks[projectID] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, projectID)
		}
		r.locksMu.Unlock()
	}
}

// Outcome is the result of a commit: a new snapshot or a conflict.
type Outcome struct {
	Snapshot string
	Decision string
	Conflict *Conflict
}

// Conflicted reports whether the commit was rejected with a conflict.
func (o Outcome) Conflicted() bool { return o.Conflict != nil }

// Result converts o to its wire form.
func (o Outcome) Result() protocol.Result {
	if o.Conflict != nil {
		return o.Conflict.Result()
	}
	return protocol.Success{LatestSnapshot: o.Snapshot}
}

// Report describes a conflict check without committing.
type Report struct {
	Latest        *snapshot.Snapshot
	RemoteTouched []int
	LocalTouched  []int
	Conflicts     []int
}

// Check computes the conflict set of changes made against base.
func (r *Resolver) Check(ctx context.Context, projectID, base string, changes []grid.UpdateAction) (Report, error) {
	const op = errors.Op("resolver.Check")

	latest, err := r.store.GetLatest(ctx, projectID)
	if err != nil {
		return Report{}, errors.E(op, component, err)
	}
	if err := grid.CheckBounds(latest.Grid.Len(), changes); err != nil {
		return Report{}, errors.E(op, component, err)
	}

	remote := []int{}
	if base != latest.ID {
		remote, err = r.store.DiffCells(ctx, projectID, base, latest.ID)
		if err != nil {
			return Report{}, errors.E(op, component, err)
		}
	} else if _, err := r.store.GetByID(ctx, projectID, base); err != nil {
		return Report{}, errors.E(op, component, err)
	}
	local := grid.Touched(changes)

	return Report{
		Latest:        latest,
		RemoteTouched: remote,
		LocalTouched:  local,
		Conflicts:     grid.Intersect(remote, local),
	}, nil
}

// Commit applies changes to the latest snapshot unless a cell they touch was
// changed by another commit since base.
func (r *Resolver) Commit(ctx context.Context, projectID, base string, changes []grid.UpdateAction, message string) (Outcome, error) {
	return r.run(ctx, errors.Op("resolver.Commit"), "commit", projectID, base, changes, message, nil)
}

// Rebase applies changes to the latest snapshot, settling conflicted cells
// with strategy. It never reports a conflict.
func (r *Resolver) Rebase(ctx context.Context, projectID, base string, changes []grid.UpdateAction, message string, strategy protocol.Strategy) (Outcome, error) {
	const op = errors.Op("resolver.Rebase")
	resolver, err := ForStrategy(strategy)
	if err != nil {
		return Outcome{}, errors.E(op, component, err)
	}
	return r.run(ctx, op, "rebase", projectID, base, changes, message, resolver)
}

func (r *Resolver) run(ctx context.Context, op errors.Op, name, projectID, base string, changes []grid.UpdateAction, message string, strategy StrategyResolver) (outcome Outcome, err error) {
	start := time.Now()
	retries := 0
	defer func() {
		r.metrics.RecordDuration(name, time.Since(start))
		r.metrics.RecordRetries(name, retries)
		switch {
		case err != nil:
			r.metrics.RecordOutcome(name, "error")
			if r.hooks.OnError != nil {
				r.hooks.OnError(projectID, err)
			}
		case outcome.Conflicted():
			r.metrics.RecordOutcome(name, "conflict")
		default:
			r.metrics.RecordOutcome(name, "success")
		}
	}()

	if strings.TrimSpace(message) == "" {
		return Outcome{}, errors.E(op, component, errors.KindInvalid, "commit message is empty")
	}

	unlock := r.lock(projectID)
	defer unlock()

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{}, errors.E(op, component, err)
		}

		report, err := r.Check(ctx, projectID, base, changes)
		if err != nil {
			return Outcome{}, errors.E(op, err)
		}
		latest := report.Latest

		apply, decision := changes, "clean"
		if len(report.Conflicts) > 0 {
			conflict := Conflict{ProjectID: projectID, Source: base, FailedAt: latest.ID, Cells: report.Conflicts}
			if strategy == nil {
				r.metrics.RecordConflictCells(len(conflict.Cells))
				if r.hooks.OnConflict != nil {
					r.hooks.OnConflict(conflict)
				}
				r.logger.InfoContext(ctx, "Commit conflicts",
					logging.ProjectAttr(projectID),
					slog.String("source_snapshot", base),
					slog.String("failed_at_snapshot", latest.ID),
					slog.Int("cells", len(conflict.Cells)))
				return Outcome{Conflict: &conflict}, nil
			}
			resolution := strategy.Resolve(conflict, changes)
			apply, decision = resolution.Changes, resolution.Decision
		}

		next, err := latest.Grid.Apply(apply)
		if err != nil {
			return Outcome{}, errors.E(op, component, err)
		}

		id, err := r.store.AppendSnapshot(ctx, projectID, latest.ID, next, message)
		if errors.Is(errors.KindConcurrentModification, err) {
			retries++
			if r.hooks.OnRetry != nil {
				r.hooks.OnRetry(projectID, attempt, err)
			}
			r.logger.WarnContext(ctx, "Latest snapshot moved during commit, retrying",
				logging.ProjectAttr(projectID), slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return Outcome{}, errors.E(op, component, err)
		}

		if r.hooks.OnCommitted != nil {
			r.hooks.OnCommitted(projectID, id, decision)
		}
		r.logger.InfoContext(ctx, "Snapshot committed",
			logging.ProjectAttr(projectID),
			logging.SnapshotAttr(id),
			slog.String("parent", latest.ID),
			slog.String("decision", decision),
			slog.Int("changes", len(apply)))
		return Outcome{Snapshot: id, Decision: decision}, nil
	}

	return Outcome{}, errors.E(op, component, errors.KindCommitFailed,
		"latest snapshot kept changing; giving up")
}
