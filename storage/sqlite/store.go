// Package sqlite provides a SQLite implementation of snapshot.Store.
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/grid"
	"github.com/c0deZ3R0/pixel-chunk/logging"
	"github.com/c0deZ3R0/pixel-chunk/snapshot"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// Operation constants for consistent error reporting
const (
	opNew           = errors.Op("sqlite.New")
	opCreateProject = errors.Op("sqlite.CreateProject")
	opGetLatest     = errors.Op("sqlite.GetLatest")
	opGetByID       = errors.Op("sqlite.GetByID")
	opAppend        = errors.Op("sqlite.AppendSnapshot")
	opHistory       = errors.Op("sqlite.History")

	component = errors.Component("storage/sqlite")
)

// Config holds configuration options for the Store.
//
// Production-ready defaults are applied by DefaultConfig() including:
//   - WAL mode enabled for better concurrency
//   - Immediate transactions with a 5s busy timeout, so competing appends
//     queue on the write lock instead of failing
//   - Connection pool with 25 max open, 5 max idle connections
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	// Example: "file:pixels.db"
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging mode.
	EnableWAL bool

	// BusyTimeout is how long a connection waits on a locked database.
	BusyTimeout time.Duration

	// Logger defaults to logging.Default() with a component attribute.
	Logger *logging.Logger

	// Connection pool settings.
	// Defaults: MaxOpen=25, MaxIdle=5, Lifetime=1h, IdleTime=5m
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// setDefaults applies default values to the config
func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = logging.WithComponent(logging.Component(component))
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	// Every connection to :memory: opens its own database.
	if isMemory(c.DataSourceName) {
		c.MaxOpenConns = 1
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
}

// dsn returns DataSourceName with the driver parameters the store relies on.
func (c *Config) dsn() string {
	dsn := c.DataSourceName
	add := func(key, value string) {
		if strings.Contains(dsn, key+"=") {
			return
		}
		if strings.Contains(dsn, "?") {
			dsn += "&"
		} else {
			dsn += "?"
		}
		dsn += key + "=" + value
	}
	if c.EnableWAL && !isMemory(c.DataSourceName) {
		add("_journal_mode", "WAL")
	}
	add("_txlock", "immediate")
	add("_busy_timeout", formatMillis(c.BusyTimeout))
	add("_foreign_keys", "on")
	return dsn
}

// DefaultConfig returns a Config with production-ready defaults for SQLite.
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
	}
	config.setDefaults()
	return config
}

// NewWithDataSource is a convenience constructor
func NewWithDataSource(dataSourceName string) (*Store, error) {
	return New(DefaultConfig(dataSourceName))
}

// Store implements snapshot.Store on SQLite. The projects table holds each
// project's latest pointer; AppendSnapshot advances it with a conditional
// UPDATE inside the transaction that inserts the snapshot.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	logger *logging.Logger
}

// Compile-time check to ensure Store satisfies the snapshot.Store interface
var _ snapshot.Store = (*Store)(nil)

// New creates a new Store from a Config.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, errors.E(opNew, component, errors.KindInvalid, "config cannot be nil")
	}
	config.setDefaults()
	if config.DataSourceName == "" {
		return nil, errors.E(opNew, component, errors.KindInvalid, "DataSourceName is required")
	}

	logger := config.Logger
	logger.InfoContext(context.Background(), "Opening SQLite database",
		slog.String("data_source", config.DataSourceName),
		slog.Bool("wal_enabled", config.EnableWAL),
	)

	db, err := sql.Open("sqlite3", config.dsn())
	if err != nil {
		return nil, errors.E(opNew, component, errors.KindInternal, "failed to open sqlite database", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	logger.DebugContext(context.Background(), "Connection pool configured",
		slog.Int("max_open_conns", config.MaxOpenConns),
		slog.Int("max_idle_conns", config.MaxIdleConns),
		slog.Duration("conn_max_lifetime", config.ConnMaxLifetime),
		slog.Duration("conn_max_idle_time", config.ConnMaxIdleTime),
	)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.E(opNew, component, errors.KindInternal, "failed to connect to sqlite database", err)
	}

	store := &Store{db: db, logger: logger}
	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, errors.E(opNew, component, errors.KindInternal, "failed to setup database schema", err)
	}

	logger.InfoContext(context.Background(), "SQLite snapshot store initialized")
	return store, nil
}

func (s *Store) setupSchema() error {
	query := `
    CREATE TABLE IF NOT EXISTS projects (
        id          TEXT PRIMARY KEY,
        grid_rows   INTEGER NOT NULL,
        grid_cols   INTEGER NOT NULL,
        latest      TEXT NOT NULL,
        created_at  INTEGER NOT NULL
    );
    CREATE TABLE IF NOT EXISTS snapshots (
        seq         INTEGER PRIMARY KEY AUTOINCREMENT,
        id          TEXT NOT NULL UNIQUE,
        project_id  TEXT NOT NULL REFERENCES projects (id),
        parent      TEXT NOT NULL DEFAULT '',
        cells       BLOB NOT NULL,
        message     TEXT NOT NULL,
        created_at  INTEGER NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_snapshots_project ON snapshots (project_id, seq);
    `
	_, err := s.db.Exec(query)
	return err
}

func (s *Store) checkOpen(op errors.Op) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.E(op, component, snapshot.ErrStoreClosed)
	}
	return nil
}

func (s *Store) CreateProject(ctx context.Context, rows, cols int) (snapshot.Project, *snapshot.Snapshot, error) {
	if err := s.checkOpen(opCreateProject); err != nil {
		return snapshot.Project{}, nil, err
	}
	g, err := grid.New(rows, cols, grid.White)
	if err != nil {
		return snapshot.Project{}, nil, errors.E(opCreateProject, component, err)
	}

	now := time.Now().UTC()
	project := snapshot.Project{ID: snapshot.NewProjectID(), DateCreated: now}
	first := &snapshot.Snapshot{
		ID:        snapshot.NewSnapshotID(),
		ProjectID: project.ID,
		Grid:      g,
		Message:   snapshot.InitialMessage,
		CreatedAt: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return snapshot.Project{}, nil, errors.NewStorageError(opCreateProject, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO projects (id, grid_rows, grid_cols, latest, created_at) VALUES (?, ?, ?, ?, ?)`,
		project.ID, rows, cols, first.ID, now.UnixNano()); err != nil {
		return snapshot.Project{}, nil, errors.NewStorageError(opCreateProject, err)
	}
	if err := insertSnapshot(ctx, tx, first); err != nil {
		return snapshot.Project{}, nil, errors.NewStorageError(opCreateProject, err)
	}
	if err := tx.Commit(); err != nil {
		return snapshot.Project{}, nil, errors.NewStorageError(opCreateProject, err)
	}

	s.logger.InfoContext(ctx, "Project created",
		logging.ProjectAttr(project.ID), logging.SnapshotAttr(first.ID))
	return project, first, nil
}

func insertSnapshot(ctx context.Context, tx *sql.Tx, snap *snapshot.Snapshot) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, project_id, parent, cells, message, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.ProjectID, snap.Parent, grid.EncodeCells(snap.Grid.Cells), snap.Message, snap.CreatedAt.UnixNano())
	return err
}

const selectSnapshot = `
    SELECT s.id, s.parent, s.cells, s.message, s.created_at, p.grid_rows, p.grid_cols
    FROM snapshots s JOIN projects p ON p.id = s.project_id`

func (s *Store) scanSnapshot(op errors.Op, projectID string, row *sql.Row) (*snapshot.Snapshot, error) {
	var (
		snap       = &snapshot.Snapshot{ProjectID: projectID}
		cells      []byte
		createdAt  int64
		rows, cols int
	)
	if err := row.Scan(&snap.ID, &snap.Parent, &cells, &snap.Message, &createdAt, &rows, &cols); err != nil {
		return nil, err
	}
	g, err := grid.DecodeCells(cells, rows, cols)
	if err != nil {
		return nil, errors.E(op, component, errors.KindInternal, err)
	}
	snap.Grid = g
	snap.CreatedAt = time.Unix(0, createdAt).UTC()
	return snap, nil
}

func (s *Store) projectExists(ctx context.Context, projectID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, projectID).Scan(&one)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) GetLatest(ctx context.Context, projectID string) (*snapshot.Snapshot, error) {
	if err := s.checkOpen(opGetLatest); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, selectSnapshot+` WHERE p.id = ? AND s.id = p.latest`, projectID)
	snap, err := s.scanSnapshot(opGetLatest, projectID, row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, snapshot.NoSuchProject(opGetLatest, projectID)
	}
	if err != nil {
		return nil, errors.WrapOpComponent(err, string(opGetLatest), string(component))
	}
	return snap, nil
}

func (s *Store) GetByID(ctx context.Context, projectID, snapshotID string) (*snapshot.Snapshot, error) {
	if err := s.checkOpen(opGetByID); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, selectSnapshot+` WHERE s.project_id = ? AND s.id = ?`, projectID, snapshotID)
	snap, err := s.scanSnapshot(opGetByID, projectID, row)
	if stderrors.Is(err, sql.ErrNoRows) {
		exists, existsErr := s.projectExists(ctx, projectID)
		switch {
		case existsErr != nil:
			return nil, errors.WrapOpComponent(existsErr, string(opGetByID), string(component))
		case !exists:
			return nil, snapshot.NoSuchProject(opGetByID, projectID)
		}
		return nil, snapshot.NoSuchSnapshot(opGetByID, projectID, snapshotID)
	}
	if err != nil {
		return nil, errors.WrapOpComponent(err, string(opGetByID), string(component))
	}
	return snap, nil
}

func (s *Store) DiffCells(ctx context.Context, projectID, a, b string) ([]int, error) {
	return snapshot.Diff(ctx, s, projectID, a, b)
}

// AppendSnapshot inserts g and moves the latest pointer from expectedLatest
// to the new snapshot in one immediate transaction.
func (s *Store) AppendSnapshot(ctx context.Context, projectID, expectedLatest string, g *grid.Grid, message string) (string, error) {
	if err := s.checkOpen(opAppend); err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.NewStorageError(opAppend, err)
	}
	defer tx.Rollback()

	var (
		latest     string
		rows, cols int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT latest, grid_rows, grid_cols FROM projects WHERE id = ?`, projectID).Scan(&latest, &rows, &cols)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", snapshot.NoSuchProject(opAppend, projectID)
	}
	if err != nil {
		return "", errors.NewStorageError(opAppend, err)
	}

	shape := &snapshot.Snapshot{Grid: &grid.Grid{Rows: rows, Cols: cols}}
	if err := snapshot.ValidateAppend(opAppend, shape, g, message); err != nil {
		return "", err
	}
	if latest != expectedLatest {
		return "", snapshot.ConcurrentModification(opAppend, projectID, expectedLatest)
	}

	snap := &snapshot.Snapshot{
		ID:        snapshot.NewSnapshotID(),
		ProjectID: projectID,
		Parent:    latest,
		Grid:      g,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := insertSnapshot(ctx, tx, snap); err != nil {
		return "", errors.NewStorageError(opAppend, err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE projects SET latest = ? WHERE id = ? AND latest = ?`, snap.ID, projectID, expectedLatest)
	if err != nil {
		return "", errors.NewStorageError(opAppend, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return "", errors.NewStorageError(opAppend, err)
	} else if n == 0 {
		return "", snapshot.ConcurrentModification(opAppend, projectID, expectedLatest)
	}

	if err := tx.Commit(); err != nil {
		return "", errors.NewStorageError(opAppend, err)
	}

	s.logger.DebugContext(ctx, "Snapshot appended",
		logging.ProjectAttr(projectID), logging.SnapshotAttr(snap.ID), slog.String("parent", latest))
	return snap.ID, nil
}

func (s *Store) History(ctx context.Context, projectID string) ([]snapshot.ProjectVersion, error) {
	if err := s.checkOpen(opHistory); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message, created_at FROM snapshots WHERE project_id = ? ORDER BY seq DESC`, projectID)
	if err != nil {
		return nil, errors.WrapOpComponent(err, string(opHistory), string(component))
	}
	defer rows.Close()

	var versions []snapshot.ProjectVersion
	for rows.Next() {
		var (
			v         snapshot.ProjectVersion
			createdAt int64
		)
		if err := rows.Scan(&v.ID, &v.Message, &createdAt); err != nil {
			return nil, errors.WrapOpComponent(err, string(opHistory), string(component))
		}
		v.Date = time.Unix(0, createdAt).UTC()
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapOpComponent(err, string(opHistory), string(component))
	}
	if len(versions) == 0 {
		return nil, snapshot.NoSuchProject(opHistory, projectID)
	}
	return versions, nil
}

// Stats returns database statistics for monitoring
func (s *Store) Stats() sql.DBStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return sql.DBStats{}
	}
	return s.db.Stats()
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func formatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}
