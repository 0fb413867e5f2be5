package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/docopt/docopt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/pixel-chunk/grid"
	"github.com/c0deZ3R0/pixel-chunk/logging"
	"github.com/c0deZ3R0/pixel-chunk/resolver"
	"github.com/c0deZ3R0/pixel-chunk/session"
	"github.com/c0deZ3R0/pixel-chunk/snapshot"
	"github.com/c0deZ3R0/pixel-chunk/transport/httptransport"
	"github.com/c0deZ3R0/pixel-chunk/transport/wstransport"
)

func newCtl(t *testing.T) (*ctl, *bytes.Buffer, snapshot.Store) {
	t.Helper()
	store := snapshot.NewMemoryStore()
	r, err := resolver.New(store, resolver.WithLogger(logging.Discard()))
	require.NoError(t, err)
	edit := wstransport.NewServer(session.NewManager(store, r, logging.Discard()), nil, logging.Discard())

	api := httptransport.NewServer(store, logging.Discard(), httptransport.WithDefaultDimensions(2, 3))
	api.Edit = edit.Handler()
	ts := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		edit.Close()
		ts.Close()
	})

	var out bytes.Buffer
	return &ctl{server: ts.URL, out: &out}, &out, store
}

func parse(t *testing.T, args ...string) docopt.Opts {
	t.Helper()
	opts, err := docopt.ParseArgs(usage, args, version)
	require.NoError(t, err)
	return opts
}

func TestCreateAndShow(t *testing.T) {
	c, out, _ := newCtl(t)
	ctx := context.Background()

	code, err := c.create(ctx, parse(t, "create", "--rows=2"))
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	projectID := strings.TrimSpace(out.String())
	require.NotEmpty(t, projectID)

	out.Reset()
	code, err = c.show(ctx, parse(t, "show", projectID))
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "(2x3)")
	assert.Contains(t, out.String(), "Created project")
}

func TestPaint(t *testing.T) {
	c, out, store := newCtl(t)
	ctx := context.Background()
	project, initial, err := store.CreateProject(ctx, 2, 3)
	require.NoError(t, err)

	code, err := c.paint(ctx, parse(t, "paint", project.ID, "first", "0,1=#ff0000ff"))
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	latest, err := store.GetLatest(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, grid.MustParseColor("#ff0000ff"), latest.Grid.Cells[1])
	assert.NotEqual(t, initial.ID, latest.ID)
	assert.Equal(t, latest.ID+"\n", out.String())

	blocker := latest.Grid.Clone()
	blocker.Cells[2] = grid.MustParseColor("#00ff00ff")
	_, err = store.AppendSnapshot(ctx, project.ID, latest.ID, blocker, "other")
	require.NoError(t, err)

	// each paint enters at the newest snapshot
	out.Reset()
	code, err = c.paint(ctx, parse(t, "paint", project.ID, "again", "2=#0000ffff"))
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	code, err = c.paint(ctx, parse(t, "paint", project.ID, "bad", "9=#0000ffff"))
	assert.Error(t, err)
	assert.Equal(t, 1, code)
}

func TestPaintUnknownProject(t *testing.T) {
	c, _, _ := newCtl(t)
	code, err := c.paint(context.Background(), parse(t, "paint", "missing", "m", "0=#ff0000ff"))
	assert.Error(t, err)
	assert.Equal(t, 1, code)
}
