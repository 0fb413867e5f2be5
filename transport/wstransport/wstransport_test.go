package wstransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/pixel-chunk/client"
	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/grid"
	"github.com/c0deZ3R0/pixel-chunk/logging"
	"github.com/c0deZ3R0/pixel-chunk/protocol"
	"github.com/c0deZ3R0/pixel-chunk/resolver"
	"github.com/c0deZ3R0/pixel-chunk/session"
	"github.com/c0deZ3R0/pixel-chunk/snapshot"
)

var (
	red  = grid.MustParseColor("#ff0000ff")
	blue = grid.MustParseColor("#0000ffff")
)

type fixture struct {
	store   *snapshot.MemoryStore
	manager *session.Manager
	server  *Server
	ts      *httptest.Server
	project string
	dialer  *Dialer
}

func newFixture(t *testing.T, settings *Settings) *fixture {
	t.Helper()
	store := snapshot.NewMemoryStore()
	project, _, err := store.CreateProject(context.Background(), 4, 4)
	require.NoError(t, err)

	r, err := resolver.New(store, resolver.WithLogger(logging.Discard()))
	require.NoError(t, err)
	manager := session.NewManager(store, r, logging.Discard())
	server := NewServer(manager, settings, logging.Discard())

	router := mux.NewRouter()
	router.Handle("/projects/{id}/edit", server.Handler()).Methods(http.MethodGet)
	ts := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		ts.Close()
	})

	return &fixture{
		store:   store,
		manager: manager,
		server:  server,
		ts:      ts,
		project: project.ID,
		dialer:  NewDialer(ts.URL, settings),
	}
}

func (f *fixture) enter(t *testing.T) *client.EditSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := client.Enter(ctx, f.dialer, f.project, client.WithLogger(logging.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Exit() })
	return s
}

func (f *fixture) latest(t *testing.T) *snapshot.Snapshot {
	t.Helper()
	s, err := f.store.GetLatest(context.Background(), f.project)
	require.NoError(t, err)
	return s
}

func TestEditURL(t *testing.T) {
	for _, tc := range []struct {
		base, want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/projects/p1/edit"},
		{"https://example.com/api/", "wss://example.com/api/projects/p1/edit"},
		{"ws://h", "ws://h/projects/p1/edit"},
	} {
		got, err := EditURL(tc.base, "p1")
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := EditURL("ftp://h", "p1")
	assert.Error(t, err)
}

func TestSettingsDefaults(t *testing.T) {
	s := settingsOrDefault(&Settings{PingInterval: time.Minute})
	assert.Equal(t, 3*time.Minute, s.ReadTimeout)
	assert.Equal(t, DefaultSettings().WriteTimeout, s.WriteTimeout)
	assert.Equal(t, *DefaultSettings(), settingsOrDefault(nil))
}

func TestEnterAndCommit(t *testing.T) {
	f := newFixture(t, nil)
	initial := f.latest(t)

	s := f.enter(t)
	assert.Equal(t, initial.ID, s.Base())
	rows, cols := s.Dimensions()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 4, cols)

	require.NoError(t, s.Record(5, red))
	result, err := s.Commit(context.Background(), "paint")
	require.NoError(t, err)

	success, ok := result.(protocol.Success)
	require.True(t, ok)
	latest := f.latest(t)
	assert.Equal(t, latest.ID, success.LatestSnapshot)
	assert.Equal(t, red, latest.Grid.Cells[5])
	assert.Equal(t, client.StateActive, s.State())
}

func TestConflictThenRebase(t *testing.T) {
	f := newFixture(t, nil)
	a := f.enter(t)
	b := f.enter(t)

	require.NoError(t, a.Record(0, red))
	_, err := a.Commit(context.Background(), "a")
	require.NoError(t, err)

	require.NoError(t, b.Record(0, blue))
	require.NoError(t, b.Record(1, blue))
	result, err := b.Commit(context.Background(), "b")
	require.NoError(t, err)
	conflict, ok := result.(protocol.Conflict)
	require.True(t, ok)
	assert.Equal(t, []int{0}, conflict.ConflictedChunks)
	assert.Equal(t, client.StateConflicted, b.State())

	_, err = b.Rebase(context.Background(), "b again", protocol.StrategyTheirs)
	require.NoError(t, err)
	latest := f.latest(t)
	assert.Equal(t, red, latest.Grid.Cells[0])
	assert.Equal(t, blue, latest.Grid.Cells[1])
}

func TestEnterUnknownProject(t *testing.T) {
	f := newFixture(t, nil)
	_, err := client.Enter(context.Background(), f.dialer, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(errors.KindNoSuchProject, err))
	assert.Equal(t, 0, f.manager.Len())
}

func TestHeartbeatKeepsIdleSessionOpen(t *testing.T) {
	settings := &Settings{PingInterval: 20 * time.Millisecond, ReadTimeout: 80 * time.Millisecond}
	f := newFixture(t, settings)
	s := f.enter(t)

	time.Sleep(300 * time.Millisecond)

	require.NoError(t, s.Record(0, red))
	_, err := s.Commit(context.Background(), "after idle")
	require.NoError(t, err)
}

func TestServerCloseDropsConnection(t *testing.T) {
	f := newFixture(t, nil)
	s := f.enter(t)
	require.Eventually(t, func() bool { return f.server.Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, f.server.Close())

	require.NoError(t, s.Record(0, red))
	_, err := s.Commit(context.Background(), "too late")
	require.Error(t, err)
	assert.True(t, errors.Is(errors.KindConnectionLost, err))
	assert.Equal(t, client.StateClosed, s.State())
	assert.Eventually(t, func() bool { return f.manager.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestMalformedFrameIsRecoverable(t *testing.T) {
	f := newFixture(t, nil)
	u, err := EditURL(f.ts.URL, f.project)
	require.NoError(t, err)

	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer ws.Close()

	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"ready"`)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	_, data, err = ws.ReadMessage()
	require.NoError(t, err)
	result, err := protocol.DecodeResult(data)
	require.NoError(t, err)
	failure, ok := result.(protocol.Failure)
	require.True(t, ok)
	assert.Equal(t, errors.KindInvalid, failure.Code)
	assert.False(t, failure.Fatal)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"commit","message":"raw","changes":[{"index":3,"color":"#00ff00ff"}]}`)))
	_, data, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"kind":"success"`), string(data))
}

func TestExitClosesServerSession(t *testing.T) {
	f := newFixture(t, nil)
	s := f.enter(t)
	require.Eventually(t, func() bool { return f.manager.Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Exit())
	assert.Eventually(t, func() bool { return f.manager.Len() == 0 }, time.Second, 10*time.Millisecond)
}
