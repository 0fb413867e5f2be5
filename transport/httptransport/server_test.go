package httptransport

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/grid"
	"github.com/c0deZ3R0/pixel-chunk/logging"
	"github.com/c0deZ3R0/pixel-chunk/snapshot"
	"github.com/c0deZ3R0/pixel-chunk/snapshot/snapshottest"
)

func newTestServer(t *testing.T, opts ...ServerOption) (*snapshot.MemoryStore, *Server, *httptest.Server) {
	t.Helper()
	store := snapshot.NewMemoryStore()
	srv := NewServer(store, logging.Discard(), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return store, srv, ts
}

func TestCreateProject(t *testing.T) {
	store, _, ts := newTestServer(t)
	c := NewClient(ts.URL, ts.Client())

	project, err := c.CreateProject(context.Background(), 3, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, project.ID)
	assert.False(t, project.DateCreated.IsZero())

	latest, err := store.GetLatest(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Grid.Rows)
	assert.Equal(t, 5, latest.Grid.Cols)
	assert.Equal(t, snapshot.InitialMessage, latest.Message)
}

func TestCreateProjectDefaults(t *testing.T) {
	store, _, ts := newTestServer(t, WithDefaultDimensions(8, 2))

	project, err := NewClient(ts.URL, ts.Client()).CreateProject(context.Background(), 0, 0)
	require.NoError(t, err)

	latest, err := store.GetLatest(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, latest.Grid.Rows)
	assert.Equal(t, 2, latest.Grid.Cols)
}

func TestCreateProjectInvalid(t *testing.T) {
	_, _, ts := newTestServer(t)

	for _, query := range []string{"rows=0&cols=4", "rows=4&cols=257", "rows=abc"} {
		t.Run(query, func(t *testing.T) {
			resp, err := ts.Client().Post(ts.URL+"/projects?"+query, "", nil)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body errorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, string(errors.KindInvalid), body.Kind)
		})
	}
}

func TestGetProject(t *testing.T) {
	store, _, ts := newTestServer(t)
	ctx := context.Background()
	c := NewClient(ts.URL, ts.Client())

	project, initial, err := store.CreateProject(ctx, 2, 2)
	require.NoError(t, err)
	red := grid.MustParseColor("#ff0000ff")
	next, err := store.AppendSnapshot(ctx, project.ID, initial.ID, snapshottest.Paint(t, initial, 3, red), "paint")
	require.NoError(t, err)

	state, err := c.GetProject(ctx, project.ID, "")
	require.NoError(t, err)
	assert.Equal(t, project.ID, state.ID)
	assert.Equal(t, red, state.State.Cells[3])
	require.Len(t, state.Versions, 2)
	assert.Equal(t, next, state.Versions[0].ID)
	assert.Equal(t, "paint", state.Versions[0].Message)
	assert.Equal(t, initial.ID, state.Versions[1].ID)

	old, err := c.GetProject(ctx, project.ID, initial.ID)
	require.NoError(t, err)
	assert.Equal(t, grid.White, old.State.Cells[3])
	assert.Len(t, old.Versions, 2)
}

func TestGetProjectWireFormat(t *testing.T) {
	store, _, ts := newTestServer(t, WithCompression(false))
	project, _, err := store.CreateProject(context.Background(), 1, 2)
	require.NoError(t, err)

	resp, err := ts.Client().Get(ts.URL + "/projects/" + project.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.JSONEq(t, `{"rows":1,"cols":2,"chunks":["#ffffffff","#ffffffff"]}`, string(body["state"]))
	assert.Contains(t, string(body["versions"]), `"message":"Created project"`)
}

func TestGetProjectNotFound(t *testing.T) {
	store, _, ts := newTestServer(t)
	c := NewClient(ts.URL, ts.Client())

	_, err := c.GetProject(context.Background(), "missing", "")
	assert.True(t, errors.Is(errors.KindNoSuchProject, err))

	project, _, err := store.CreateProject(context.Background(), 2, 2)
	require.NoError(t, err)
	_, err = c.GetProject(context.Background(), project.ID, "missing")
	assert.True(t, errors.Is(errors.KindNoSuchSnapshot, err))

	resp, err := ts.Client().Get(ts.URL + "/projects/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGzipResponses(t *testing.T) {
	store, _, ts := newTestServer(t, WithCompressionThreshold(64))
	project, _, err := store.CreateProject(context.Background(), 32, 32)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/projects/"+project.ID, nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	gz, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	var state ProjectState
	require.NoError(t, json.Unmarshal(data, &state))
	assert.Len(t, state.State.Cells, 32*32)

	viaClient, err := NewClient(ts.URL, ts.Client()).GetProject(context.Background(), project.ID, "")
	require.NoError(t, err)
	assert.Equal(t, state.State.Cells, viaClient.State.Cells)
}

func TestClientResponseLimit(t *testing.T) {
	store, _, ts := newTestServer(t, WithCompression(false))
	project, _, err := store.CreateProject(context.Background(), 32, 32)
	require.NoError(t, err)

	c := NewClient(ts.URL, ts.Client(), WithClientCompression(false), WithMaxResponseSize(128))
	_, err = c.GetProject(context.Background(), project.ID, "")
	assert.Error(t, err)
}

func TestMountedHandlers(t *testing.T) {
	store := snapshot.NewMemoryStore()
	srv := NewServer(store, logging.Discard())
	srv.Feed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	srv.Edit = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/projects/p/versions/stream")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	resp, err = ts.Client().Get(ts.URL + "/projects/p/edit")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLoggerTo(&buf, logging.Config{Level: "info", Format: "json"})
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("nope"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects/x", nil))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "handled", line["msg"])
	assert.Equal(t, "GET", line["method"])
	assert.EqualValues(t, http.StatusNotFound, line["status"])
	assert.EqualValues(t, 4, line["bytes"])
}

func TestCreateProjectLogsOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLoggerTo(&buf, logging.Config{Level: "debug", Format: "json"})
	srv := NewServer(snapshot.NewMemoryStore(), logger)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/projects?rows=2&cols=2", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var completed map[string]interface{}
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var line map[string]interface{}
		require.NoError(t, dec.Decode(&line))
		if line["msg"] == "operation completed" {
			completed = line
		}
	}
	require.NotNil(t, completed)
	assert.Equal(t, string(errors.OpCreate), completed["operation"])
	assert.Equal(t, string(component), completed["component"])
	assert.Equal(t, true, completed["success"])
}
