// Command chunkctl creates, inspects, paints and watches pixel chunk projects.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/docopt/docopt-go"

	"github.com/c0deZ3R0/pixel-chunk/client"
	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/logging"
	"github.com/c0deZ3R0/pixel-chunk/protocol"
	"github.com/c0deZ3R0/pixel-chunk/transport/httptransport"
	"github.com/c0deZ3R0/pixel-chunk/transport/sse"
	"github.com/c0deZ3R0/pixel-chunk/transport/wstransport"
)

const version = "0.1.0"

const usage = `Pixel chunk control.

The default server is http://localhost:8080.

Usage:
    chunkctl create [--server=<url>] [--rows=<rows>] [--cols=<cols>]
    chunkctl show [--server=<url>] <project> [--at=<snapshot>]
    chunkctl paint [--server=<url>] [--strategy=<strategy>] <project> <message> <cell>...
    chunkctl watch [--server=<url>] <project> [--since=<snapshot>]
    chunkctl -h | --help
    chunkctl --version

Cells are written index=color or row,col=color, for example 5=#ff0000ff or 0,3=00ff00ff.

Options:
    -h --help               Show this screen.
    --version               Show version.
    --server=<url>          Server base url [default: http://localhost:8080].
    --rows=<rows>           Grid rows, server default when omitted.
    --cols=<cols>           Grid cols, server default when omitted.
    --at=<snapshot>         Show the project at this snapshot.
    --strategy=<strategy>   On conflict, rebase keeping ours or theirs.
    --since=<snapshot>      Replay versions after this snapshot first.`

// exitConflict is returned when a paint conflicts and no strategy was given.
const exitConflict = 2

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		logging.Fatalf("parse arguments: %v", err)
	}

	logging.Init(logging.GetConfigFromEnv())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := &ctl{out: os.Stdout}
	c.server, _ = opts.String("--server")

	var code int
	if create_, _ := opts.Bool("create"); create_ {
		code, err = c.create(ctx, opts)
	} else if show_, _ := opts.Bool("show"); show_ {
		code, err = c.show(ctx, opts)
	} else if paint_, _ := opts.Bool("paint"); paint_ {
		code, err = c.paint(ctx, opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		code, err = c.watch(ctx, opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "chunkctl: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	os.Exit(code)
}

type ctl struct {
	server string
	out    io.Writer
}

func (c *ctl) api() *httptransport.Client {
	return httptransport.NewClient(c.server, nil)
}

func optionalInt(opts docopt.Opts, key string) (int, error) {
	raw, _ := opts.String(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func (c *ctl) create(ctx context.Context, opts docopt.Opts) (int, error) {
	rows, err := optionalInt(opts, "--rows")
	if err != nil {
		return 1, err
	}
	cols, err := optionalInt(opts, "--cols")
	if err != nil {
		return 1, err
	}
	project, err := c.api().CreateProject(ctx, rows, cols)
	if err != nil {
		return 1, err
	}
	fmt.Fprintln(c.out, project.ID)
	return 0, nil
}

func (c *ctl) show(ctx context.Context, opts docopt.Opts) (int, error) {
	projectID, _ := opts.String("<project>")
	snapshotID, _ := opts.String("--at")
	state, err := c.api().GetProject(ctx, projectID, snapshotID)
	if err != nil {
		return 1, err
	}
	printState(c.out, state)
	return 0, nil
}

func printState(w io.Writer, state httptransport.ProjectState) {
	g := state.State
	fmt.Fprintf(w, "project %s (%dx%d)\n", state.ID, g.Rows, g.Cols)
	for row := 0; row < g.Rows; row++ {
		cells := make([]string, g.Cols)
		for col := range cells {
			cells[col] = g.Cells[g.Index(row, col)].String()
		}
		fmt.Fprintln(w, strings.Join(cells, " "))
	}
	fmt.Fprintln(w, "versions:")
	for _, v := range state.Versions {
		fmt.Fprintf(w, "  %s  %s  %s\n", v.ID, v.Date.Format("2006-01-02 15:04:05"), v.Message)
	}
}

func (c *ctl) paint(ctx context.Context, opts docopt.Opts) (int, error) {
	projectID, _ := opts.String("<project>")
	message, _ := opts.String("<message>")
	rawCells, _ := opts["<cell>"].([]string)

	var strategy protocol.Strategy
	if raw, _ := opts.String("--strategy"); raw != "" {
		s, err := protocol.ParseStrategy(raw)
		if err != nil {
			return 1, err
		}
		strategy = s
	}

	editor, err := client.Enter(ctx, wstransport.NewDialer(c.server, nil), projectID)
	if err != nil {
		return 1, err
	}
	defer editor.Exit()

	rows, cols := editor.Dimensions()
	actions, err := parseCells(rawCells, rows, cols)
	if err != nil {
		return 1, err
	}
	for _, a := range actions {
		if err := editor.Record(a.Index, a.Color); err != nil {
			return 1, err
		}
	}

	result, err := editor.Commit(ctx, message)
	if err != nil {
		return 1, err
	}
	if conflict, ok := result.(protocol.Conflict); ok {
		fmt.Fprintf(c.out, "conflict with %s on cells %v\n", conflict.FailedAtSnapshot, conflict.ConflictedChunks)
		if strategy == "" {
			return exitConflict, errors.E(errors.OpCommit, errors.KindConcurrentModification,
				"rerun with --strategy=ours or --strategy=theirs")
		}
		result, err = editor.Rebase(ctx, message, strategy)
		if err != nil {
			return 1, err
		}
	}

	if success, ok := result.(protocol.Success); ok {
		fmt.Fprintln(c.out, success.LatestSnapshot)
	}
	return 0, nil
}

func (c *ctl) watch(ctx context.Context, opts docopt.Opts) (int, error) {
	projectID, _ := opts.String("<project>")
	since, _ := opts.String("--since")
	err := sse.NewClient(c.server, nil).Subscribe(ctx, projectID, since, func(ev sse.VersionEvent) error {
		_, err := fmt.Fprintf(c.out, "%s  %s  %s\n", ev.ID, ev.Date.Format("2006-01-02 15:04:05"), ev.Message)
		return err
	})
	if err != nil {
		return 1, err
	}
	return 0, nil
}
