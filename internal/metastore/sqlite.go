package metastore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, registers as "sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Named constants for pragma/version values.
const (
	walJournalSizeLimit = 67108864 // 64 MiB WAL journal size limit
	schemaVersion       = 1        // current expected schema version
)

// ErrStore wraps a transactional or I/O failure inside the store. Fatal to
// the run per §7.
var ErrStore = errors.New("metastore: store error")

// SQLiteStore implements Store using an embedded SQLite database in WAL
// mode. All mutations go through a single *sql.DB (database/sql already
// serializes writers on the one physical connection SQLite allows), so
// MetaStore is single-writer by construction, per §5.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	itemStmts   itemStatements
	runStmts    runStatements
	cursorStmts cursorStatements
}

type itemStatements struct {
	upsert, get, updateState, updateLocalPath, byState, children, deleteByID *sql.Stmt
}

type runStatements struct {
	create, updateProgress, complete, latest *sql.Stmt
}

type cursorStatements struct {
	put, get *sql.Stmt
}

// Open creates a new SQLiteStore, opening the database at dbPath, applying
// migrations, and preparing all repeated statements. Use ":memory:" for
// tests.
func Open(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening sync state database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrStore, err) //nolint:errorlint
	}

	// SQLite allows only one writer; cap the pool so database/sql never
	// hands out a second connection that would see a locked database.
	db.SetMaxOpenConns(1)

	ctx := context.Background()

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.prepareAll(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: prepare statements: %v", ErrStore, err) //nolint:errorlint
	}

	logger.Info("sync state database ready", "path", dbPath)

	return s, nil
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%w: set pragma %q: %v", ErrStore, p, err) //nolint:errorlint
		}
	}

	return nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	var currentVersion int

	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("%w: read schema version: %v", ErrStore, err) //nolint:errorlint
	}

	if currentVersion >= schemaVersion {
		return nil
	}

	for v := currentVersion + 1; v <= schemaVersion; v++ {
		if err := applyMigration(ctx, db, logger, v); err != nil {
			return err
		}
	}

	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, logger *slog.Logger, version int) error {
	filename := fmt.Sprintf("migrations/%06d_initial_schema.up.sql", version)

	migrationSQL, err := fs.ReadFile(migrationsFS, filename)
	if err != nil {
		return fmt.Errorf("%w: read migration %d: %v", ErrStore, version, err) //nolint:errorlint
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin migration tx %d: %v", ErrStore, version, err) //nolint:errorlint
	}

	if _, execErr := tx.ExecContext(ctx, string(migrationSQL)); execErr != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: exec migration %d: %v", ErrStore, version, execErr) //nolint:errorlint
	}

	versionSQL := fmt.Sprintf("PRAGMA user_version = %d", version)
	if _, execErr := tx.ExecContext(ctx, versionSQL); execErr != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: stamp version %d: %v", ErrStore, version, execErr) //nolint:errorlint
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit migration %d: %v", ErrStore, version, err) //nolint:errorlint
	}

	logger.Info("applied migration", "version", version)

	return nil
}

// --- SQL query constants ---

const itemColumns = `id, name, kind, mime_type, parent_id, local_path,
	remote_checksum, modified_at, size, sync_state, last_synced_at,
	error_message, shortcut_target_id, created_at, updated_at`

const (
	sqlUpsertItem = `INSERT INTO items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name               = excluded.name,
			kind               = excluded.kind,
			mime_type          = excluded.mime_type,
			parent_id          = excluded.parent_id,
			local_path         = excluded.local_path,
			remote_checksum    = excluded.remote_checksum,
			modified_at        = excluded.modified_at,
			size               = excluded.size,
			sync_state         = excluded.sync_state,
			last_synced_at     = excluded.last_synced_at,
			error_message      = excluded.error_message,
			shortcut_target_id = excluded.shortcut_target_id,
			updated_at         = excluded.updated_at`

	sqlGetItem = `SELECT ` + itemColumns + ` FROM items WHERE id = ?`

	sqlUpdateState = `UPDATE items
		SET sync_state = ?, last_synced_at = ?, error_message = ?, updated_at = ?
		WHERE id = ?`

	sqlUpdateLocalPath = `UPDATE items SET local_path = ?, updated_at = ? WHERE id = ?`

	sqlByState = `SELECT ` + itemColumns + ` FROM items WHERE sync_state = ?`

	sqlChildren = `SELECT ` + itemColumns + ` FROM items WHERE parent_id = ?`

	sqlDeleteItem = `DELETE FROM items WHERE id = ?`
)

const (
	sqlCreateRun = `INSERT INTO sync_runs
		(started_at, status, start_cursor) VALUES (?, ?, ?)`

	sqlUpdateRunProgress = `UPDATE sync_runs
		SET files_processed = ?, bytes_downloaded = ? WHERE run_id = ?`

	sqlCompleteRun = `UPDATE sync_runs
		SET completed_at = ?, status = ?, error_message = ? WHERE run_id = ?`

	sqlLatestRun = `SELECT run_id, started_at, completed_at, status,
		files_processed, bytes_downloaded, start_cursor, error_message
		FROM sync_runs ORDER BY run_id DESC LIMIT 1`
)

const (
	sqlPutCursor = `INSERT INTO change_cursor (id, cursor, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET cursor = excluded.cursor, updated_at = excluded.updated_at`

	sqlGetCursor = `SELECT cursor, updated_at FROM change_cursor WHERE id = 1`
)

type stmtDef struct {
	dest **sql.Stmt
	sql  string
}

func prepareAll(ctx context.Context, db *sql.DB, defs []stmtDef) error {
	for i := range defs {
		stmt, err := db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}

		*defs[i].dest = stmt
	}

	return nil
}

func (s *SQLiteStore) prepareAll(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.itemStmts.upsert, sqlUpsertItem},
		{&s.itemStmts.get, sqlGetItem},
		{&s.itemStmts.updateState, sqlUpdateState},
		{&s.itemStmts.updateLocalPath, sqlUpdateLocalPath},
		{&s.itemStmts.byState, sqlByState},
		{&s.itemStmts.children, sqlChildren},
		{&s.itemStmts.deleteByID, sqlDeleteItem},
		{&s.runStmts.create, sqlCreateRun},
		{&s.runStmts.updateProgress, sqlUpdateRunProgress},
		{&s.runStmts.complete, sqlCompleteRun},
		{&s.runStmts.latest, sqlLatestRun},
		{&s.cursorStmts.put, sqlPutCursor},
		{&s.cursorStmts.get, sqlGetCursor},
	})
}

// --- scanning helpers ---

func scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	item := &Item{}

	var (
		modifiedAt   int64
		lastSyncedAt *int64
		createdAt    int64
		updatedAt    int64
	)

	err := row.Scan(
		&item.ID, &item.Name, &item.Kind, &item.MimeType, &item.ParentID,
		&item.LocalPath, &item.RemoteChecksum, &modifiedAt, &item.Size,
		&item.SyncState, &lastSyncedAt, &item.ErrorMessage,
		&item.ShortcutTargetID, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.ModifiedAt = time.Unix(0, modifiedAt)
	item.CreatedAt = time.Unix(0, createdAt)
	item.UpdatedAt = time.Unix(0, updatedAt)

	if lastSyncedAt != nil {
		t := time.Unix(0, *lastSyncedAt)
		item.LastSyncedAt = &t
	}

	return item, nil
}

func scanItemRows(rows *sql.Rows) ([]*Item, error) {
	var items []*Item

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item rows: %w", err)
	}

	return items, nil
}

// --- Item operations ---

// Upsert inserts or updates an item in the state database. Single-item
// writes are atomic and immediately visible, per §4.2.
func (s *SQLiteStore) Upsert(ctx context.Context, item *Item) error {
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}

	item.UpdatedAt = now

	var lastSyncedAt *int64
	if item.LastSyncedAt != nil {
		v := item.LastSyncedAt.UnixNano()
		lastSyncedAt = &v
	}

	_, err := s.itemStmts.upsert.ExecContext(ctx,
		item.ID, item.Name, item.Kind, item.MimeType, item.ParentID,
		item.LocalPath, item.RemoteChecksum, item.ModifiedAt.UnixNano(),
		item.Size, item.SyncState, lastSyncedAt, item.ErrorMessage,
		item.ShortcutTargetID, item.CreatedAt.UnixNano(), item.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert item %s: %v", ErrStore, item.ID, err) //nolint:errorlint
	}

	return nil
}

// Get retrieves a single item by id. Returns (nil, nil) if no item exists.
func (s *SQLiteStore) Get(ctx context.Context, id ItemID) (*Item, error) {
	item, err := scanItem(s.itemStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // nil item means "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("%w: get item %s: %v", ErrStore, id, err) //nolint:errorlint
	}

	return item, nil
}

// UpdateState transitions an item's syncState and optionally stamps
// lastSyncedAt/errorMessage, per the Downloader state machine (§4.5).
func (s *SQLiteStore) UpdateState(
	ctx context.Context, id ItemID, state SyncState, lastSyncedAt *time.Time, errorMessage string,
) error {
	var lastSyncedAtNano *int64
	if lastSyncedAt != nil {
		v := lastSyncedAt.UnixNano()
		lastSyncedAtNano = &v
	}

	_, err := s.itemStmts.updateState.ExecContext(ctx,
		state, lastSyncedAtNano, errorMessage, time.Now().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("%w: update state %s: %v", ErrStore, id, err) //nolint:errorlint
	}

	return nil
}

// UpdateLocalPath rewrites an item's localPath in place, for when conflict
// resolution (§4.4.3) assigns a different on-disk name than the one
// computed at path-assembly time.
func (s *SQLiteStore) UpdateLocalPath(ctx context.Context, id ItemID, localPath string) error {
	_, err := s.itemStmts.updateLocalPath.ExecContext(ctx, localPath, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("%w: update local path %s: %v", ErrStore, id, err) //nolint:errorlint
	}

	return nil
}

// ByState returns all items currently in the given state.
func (s *SQLiteStore) ByState(ctx context.Context, state SyncState) ([]*Item, error) {
	rows, err := s.itemStmts.byState.QueryContext(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("%w: by state %s: %v", ErrStore, state, err) //nolint:errorlint
	}
	defer rows.Close()

	return scanItemRows(rows)
}

// ByStates returns all items currently in any of the given states — the
// pending set drained by the Downloader (§4.6.3, GLOSSARY).
func (s *SQLiteStore) ByStates(ctx context.Context, states ...SyncState) ([]*Item, error) {
	var all []*Item

	for _, st := range states {
		items, err := s.ByState(ctx, st)
		if err != nil {
			return nil, err
		}

		all = append(all, items...)
	}

	return all, nil
}

// Children returns all items whose parentID matches.
func (s *SQLiteStore) Children(ctx context.Context, parentID ItemID) ([]*Item, error) {
	rows, err := s.itemStmts.children.QueryContext(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("%w: children of %s: %v", ErrStore, parentID, err) //nolint:errorlint
	}
	defer rows.Close()

	return scanItemRows(rows)
}

// Delete physically removes an item record (§3.4's destruction case).
func (s *SQLiteStore) Delete(ctx context.Context, id ItemID) error {
	_, err := s.itemStmts.deleteByID.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: delete item %s: %v", ErrStore, id, err) //nolint:errorlint
	}

	return nil
}

// --- Run operations ---

// CreateRun inserts a new SyncRun row with status Running and returns its
// runID.
func (s *SQLiteStore) CreateRun(ctx context.Context, startedAt time.Time, startCursor string) (int64, error) {
	res, err := s.runStmts.create.ExecContext(ctx, startedAt.UnixNano(), RunRunning, startCursor)
	if err != nil {
		return 0, fmt.Errorf("%w: create run: %v", ErrStore, err) //nolint:errorlint
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: create run: read id: %v", ErrStore, err) //nolint:errorlint
	}

	return id, nil
}

// UpdateRunProgress updates the running totals for an in-progress run. Used
// to keep Progress events and the persisted run record consistent.
func (s *SQLiteStore) UpdateRunProgress(ctx context.Context, runID int64, filesProcessed, bytesDownloaded int64) error {
	_, err := s.runStmts.updateProgress.ExecContext(ctx, filesProcessed, bytesDownloaded, runID)
	if err != nil {
		return fmt.Errorf("%w: update run progress %d: %v", ErrStore, runID, err) //nolint:errorlint
	}

	return nil
}

// CompleteRun finalizes a run with a terminal status.
func (s *SQLiteStore) CompleteRun(
	ctx context.Context, runID int64, completedAt time.Time, status RunStatus, errorMessage string,
) error {
	_, err := s.runStmts.complete.ExecContext(ctx, completedAt.UnixNano(), status, errorMessage, runID)
	if err != nil {
		return fmt.Errorf("%w: complete run %d: %v", ErrStore, runID, err) //nolint:errorlint
	}

	return nil
}

// LatestRun returns the most recently created SyncRun, or nil if none exists.
// Used by the Resume path to detect an interrupted prior run (§4.6.3).
func (s *SQLiteStore) LatestRun(ctx context.Context) (*SyncRun, error) {
	row := s.runStmts.latest.QueryRowContext(ctx)

	r := &SyncRun{}

	var (
		startedAt   int64
		completedAt *int64
	)

	err := row.Scan(
		&r.RunID, &startedAt, &completedAt, &r.Status,
		&r.FilesProcessed, &r.BytesDownloaded, &r.StartCursor, &r.ErrorMessage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // nil run means "no runs yet"
	}

	if err != nil {
		return nil, fmt.Errorf("%w: latest run: %v", ErrStore, err) //nolint:errorlint
	}

	r.StartedAt = time.Unix(0, startedAt)

	if completedAt != nil {
		t := time.Unix(0, *completedAt)
		r.CompletedAt = &t
	}

	return r, nil
}

// --- Cursor operations ---

// PutCursor persists the change cursor. Called only when a run completes
// successfully and its changes have been fully reconciled.
func (s *SQLiteStore) PutCursor(ctx context.Context, cursor string, updatedAt time.Time) error {
	_, err := s.cursorStmts.put.ExecContext(ctx, cursor, updatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: put cursor: %v", ErrStore, err) //nolint:errorlint
	}

	return nil
}

// GetCursor returns the persisted change cursor, or nil if none has been set.
func (s *SQLiteStore) GetCursor(ctx context.Context) (*ChangeCursor, error) {
	var (
		cursor    string
		updatedAt int64
	)

	err := s.cursorStmts.get.QueryRowContext(ctx).Scan(&cursor, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // nil cursor means "never set"
	}

	if err != nil {
		return nil, fmt.Errorf("%w: get cursor: %v", ErrStore, err) //nolint:errorlint
	}

	return &ChangeCursor{Cursor: cursor, UpdatedAt: time.Unix(0, updatedAt)}, nil
}

// --- Statistics ---

// Statistics computes the aggregate summary backing getSyncStatus (§6.3).
func (s *SQLiteStore) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM items`)
	if err := row.Scan(&stats.TotalItems, &stats.TotalSize); err != nil {
		return nil, fmt.Errorf("%w: statistics: %v", ErrStore, err) //nolint:errorlint
	}

	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE sync_state IN (?, ?)`,
		StatePending, StateDownloading)
	if err := row.Scan(&stats.PendingCount); err != nil {
		return nil, fmt.Errorf("%w: statistics pending: %v", ErrStore, err) //nolint:errorlint
	}

	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE sync_state = ?`, StateError)
	if err := row.Scan(&stats.ErrorCount); err != nil {
		return nil, fmt.Errorf("%w: statistics errors: %v", ErrStore, err) //nolint:errorlint
	}

	return stats, nil
}

// --- Maintenance ---

// Checkpoint forces a WAL checkpoint, consolidating the WAL file into the
// main database file at the end of a run.
func (s *SQLiteStore) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return fmt.Errorf("%w: checkpoint: %v", ErrStore, err) //nolint:errorlint
	}

	return nil
}

// Close closes all prepared statements and the database connection.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{
		s.itemStmts.upsert, s.itemStmts.get, s.itemStmts.updateState, s.itemStmts.updateLocalPath,
		s.itemStmts.byState, s.itemStmts.children, s.itemStmts.deleteByID,
		s.runStmts.create, s.runStmts.updateProgress, s.runStmts.complete, s.runStmts.latest,
		s.cursorStmts.put, s.cursorStmts.get,
	}

	for _, stmt := range stmts {
		if stmt != nil {
			_ = stmt.Close()
		}
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrStore, err) //nolint:errorlint
	}

	return nil
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)
