package postgres

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/logging"
	"github.com/c0deZ3R0/pixel-chunk/snapshot"
)

const opListen = errors.Op("postgres.Listen")

// VersionNotification is the payload announced on VersionChannel.
type VersionNotification struct {
	ProjectID string `json:"project_id"`
	snapshot.ProjectVersion
}

func parseNotification(extra string) (VersionNotification, error) {
	var n VersionNotification
	if err := json.Unmarshal([]byte(extra), &n); err != nil {
		return n, errors.E(opListen, component, errors.KindInvalid, "failed to parse notification payload", err)
	}
	return n, nil
}

// Listener fans VersionChannel notifications out to per-project waiters.
type Listener struct {
	listener *pq.Listener
	logger   *logging.Logger

	mu      sync.Mutex
	waiters map[string]map[chan struct{}]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewListener creates a listener. Call Start to begin receiving.
func NewListener(connectionString string, minReconnect, maxReconnect time.Duration, logger *logging.Logger) *Listener {
	if logger == nil {
		logger = logging.WithComponent(logging.Component(component))
	}
	l := &Listener{
		logger:  logger,
		waiters: make(map[string]map[chan struct{}]struct{}),
		done:    make(chan struct{}),
	}
	l.listener = pq.NewListener(connectionString, minReconnect, maxReconnect, l.eventCallback)
	return l
}

func (l *Listener) eventCallback(event pq.ListenerEventType, err error) {
	switch event {
	case pq.ListenerEventConnected:
		l.logger.Debug("Connected to PostgreSQL for LISTEN/NOTIFY")
	case pq.ListenerEventDisconnected:
		l.logger.Warn("Disconnected from PostgreSQL", slog.Any("error", err))
	case pq.ListenerEventReconnected:
		l.logger.Info("Reconnected to PostgreSQL")
	case pq.ListenerEventConnectionAttemptFailed:
		l.logger.Warn("Connection attempt failed", slog.Any("error", err))
	}
}

// Start subscribes to VersionChannel and dispatches until ctx is done or
// the listener is closed.
func (l *Listener) Start(ctx context.Context) error {
	if err := l.listener.Listen(VersionChannel); err != nil {
		return errors.E(opListen, component, errors.KindInternal, err)
	}
	go l.listenLoop(ctx)
	return nil
}

func (l *Listener) listenLoop(ctx context.Context) {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case n := <-l.listener.Notify:
			if n == nil {
				// Reconnected; notifications may have been lost.
				l.wakeAll()
				continue
			}
			payload, err := parseNotification(n.Extra)
			if err != nil {
				l.logger.LogError(ctx, err, "Dropping notification")
				continue
			}
			l.wake(payload.ProjectID)
		case <-ping.C:
			go func() {
				if err := l.listener.Ping(); err != nil {
					l.logger.Warn("Ping failed", slog.Any("error", err))
				}
			}()
		}
	}
}

// Notify returns a channel that receives a value whenever a version is
// appended to projectID. The channel coalesces bursts. Call cancel to stop.
func (l *Listener) Notify(projectID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	l.mu.Lock()
	if l.waiters[projectID] == nil {
		l.waiters[projectID] = make(map[chan struct{}]struct{})
	}
	l.waiters[projectID][ch] = struct{}{}
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.waiters[projectID], ch)
		if len(l.waiters[projectID]) == 0 {
			delete(l.waiters, projectID)
		}
	}
	return ch, cancel
}

func (l *Listener) wake(projectID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.waiters[projectID] {
		signal(ch)
	}
}

func (l *Listener) wakeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, set := range l.waiters {
		for ch := range set {
			signal(ch)
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.listener.Close()
	})
	return err
}
