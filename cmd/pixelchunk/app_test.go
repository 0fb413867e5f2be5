package main

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/pixel-chunk/client"
	"github.com/c0deZ3R0/pixel-chunk/config"
	"github.com/c0deZ3R0/pixel-chunk/grid"
	"github.com/c0deZ3R0/pixel-chunk/logging"
	"github.com/c0deZ3R0/pixel-chunk/protocol"
	"github.com/c0deZ3R0/pixel-chunk/transport/httptransport"
	"github.com/c0deZ3R0/pixel-chunk/transport/sse"
	"github.com/c0deZ3R0/pixel-chunk/transport/wstransport"
)

func startApp(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	a, err := newApp(cfg, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, a.start(context.Background()))
	ts := httptest.NewServer(a.handler())
	t.Cleanup(func() {
		a.edit.Close()
		ts.Close()
		a.close()
	})
	return ts
}

func TestEndToEnd(t *testing.T) {
	for _, driver := range []string{config.DriverMemory, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage.Driver = driver
			if driver == config.DriverSQLite {
				cfg.Storage.DSN = filepath.Join(t.TempDir(), "chunks.db")
			}
			cfg.Grid.DefaultRows, cfg.Grid.DefaultCols = 4, 4
			cfg.Feed.PollInterval = time.Hour
			require.NoError(t, cfg.Validate())

			ts := startApp(t, cfg)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			api := httptransport.NewClient(ts.URL, ts.Client())
			project, err := api.CreateProject(ctx, 0, 0)
			require.NoError(t, err)
			initial, err := api.GetProject(ctx, project.ID, "")
			require.NoError(t, err)
			require.Len(t, initial.Versions, 1)
			assert.Equal(t, 4, initial.State.Rows)

			events := make(chan sse.VersionEvent, 4)
			go sse.NewClient(ts.URL, ts.Client()).Subscribe(ctx, project.ID, initial.Versions[0].ID,
				func(ev sse.VersionEvent) error {
					events <- ev
					return nil
				})

			editor, err := client.Enter(ctx, wstransport.NewDialer(ts.URL, nil), project.ID,
				client.WithLogger(logging.Discard()))
			require.NoError(t, err)
			defer editor.Exit()

			red := grid.MustParseColor("#ff0000ff")
			require.NoError(t, editor.Record(6, red))
			result, err := editor.Commit(ctx, "paint one")
			require.NoError(t, err)
			success, ok := result.(protocol.Success)
			require.True(t, ok)

			select {
			case ev := <-events:
				assert.Equal(t, success.LatestSnapshot, ev.ID)
				assert.Equal(t, "paint one", ev.Message)
			case <-ctx.Done():
				t.Fatal("no version event")
			}

			state, err := api.GetProject(ctx, project.ID, "")
			require.NoError(t, err)
			assert.Equal(t, red, state.State.Cells[6])
			require.Len(t, state.Versions, 2)
			assert.Equal(t, success.LatestSnapshot, state.Versions[0].ID)
		})
	}
}

func TestNewAppRejectsBadDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "redis"
	_, err := newApp(cfg, logging.Discard())
	assert.Error(t, err)
}
