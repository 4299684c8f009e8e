package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/tnicklin/metronome/clock"
	"github.com/tnicklin/metronome/logger"
	"github.com/tnicklin/metronome/tick"
)

var _ Store = (*SQLiteStore)(nil)

//go:embed schema/*.sql
var migrations embed.FS

const defaultDebounce = 5 * time.Second

const (
	upsertClock = `INSERT INTO clocks (name, tick_rate_ms, elapsed_ns, saved_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
    tick_rate_ms = excluded.tick_rate_ms,
    elapsed_ns   = excluded.elapsed_ns,
    saved_at     = excluded.saved_at`
	selectClock  = `SELECT tick_rate_ms, elapsed_ns, saved_at FROM clocks WHERE name = ?`
	selectClocks = `SELECT name, tick_rate_ms, elapsed_ns, saved_at FROM clocks ORDER BY name`
	deleteClock  = `DELETE FROM clocks WHERE name = ?`
)

// Each store gets its own shared-cache memory database.
var memorySeq atomic.Int64

// SQLiteStore keeps clocks in an in-memory SQLite database and mirrors it
// to a file on disk with a debounced backup.
type SQLiteStore struct {
	mu           sync.RWMutex
	db           *sql.DB
	snapshotPath string
	logger       logger.Logger
	clock        clock.Clock

	flushDebounce time.Duration
	flushTimer    *time.Timer
	flushMu       sync.Mutex
	dirty         bool
	ctx           context.Context
	cancel        context.CancelFunc
}

type Params struct {
	// Path is the on-disk database file. Empty disables persistence.
	Path   string
	Logger logger.Logger
	// Clock stamps saved records. Defaults to the system clock.
	Clock clock.Clock
}

func NewSQLiteStore(p Params) *SQLiteStore {
	return &SQLiteStore{
		snapshotPath:  p.Path,
		flushDebounce: defaultDebounce,
		logger:        p.Logger,
		clock:         sourceOrSystem(p.Clock),
	}
}

func (s *SQLiteStore) log() logger.Logger {
	return logOrNop(s.logger)
}

// SetFlushDebounce sets the debounce duration for disk flushes.
// Must be called before Open().
func (s *SQLiteStore) SetFlushDebounce(d time.Duration) {
	s.flushDebounce = d
}

// Open creates the in-memory database and, when a snapshot file exists,
// restores its contents.
func (s *SQLiteStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	dsn := fmt.Sprintf("file:metronome-%d?mode=memory&cache=shared&_busy_timeout=5000", memorySeq.Add(1))
	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return err
	}
	database.SetMaxOpenConns(1)
	database.SetMaxIdleConns(1)

	if err = database.PingContext(ctx); err != nil {
		_ = database.Close()
		return err
	}

	// The store stays closed unless the schema and the snapshot both load.
	if err := s.applyMigrations(ctx, database); err != nil {
		_ = database.Close()
		return err
	}
	if err := s.restore(ctx, database, s.snapshotPath); err != nil {
		_ = database.Close()
		return err
	}

	s.db = database
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return nil
}

// Close closes the database without flushing. Use Shutdown for graceful shutdown.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushMu.Lock()
	s.stopFlushTimer()
	s.flushMu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Shutdown performs a final flush to disk and closes the database.
func (s *SQLiteStore) Shutdown(ctx context.Context) error {
	s.flushMu.Lock()
	s.stopFlushTimer()
	dirty := s.dirty
	s.flushMu.Unlock()

	if dirty && s.snapshotPath != "" {
		if err := s.FlushToDisk(ctx, s.snapshotPath); err != nil {
			s.log().ErrorW("shutdown flush failed", "path", s.snapshotPath, "error", err)
		} else {
			s.flushMu.Lock()
			s.dirty = false
			s.flushMu.Unlock()
		}
	}

	return s.Close()
}

// RestoreFromDisk replaces the in-memory contents with the database at path.
// A missing file is not an error.
func (s *SQLiteStore) RestoreFromDisk(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.restoreLocked(ctx, path)
}

func (s *SQLiteStore) restoreLocked(ctx context.Context, path string) error {
	if s.db == nil {
		return ErrNotOpen
	}
	return s.restore(ctx, s.db, path)
}

func (s *SQLiteStore) restore(ctx context.Context, db *sql.DB, path string) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	fileDB, err := sql.Open("sqlite3", sqliteFileDSN(path))
	if err != nil {
		return err
	}
	defer fileDB.Close()

	if err := s.backup(ctx, fileDB, db); err != nil {
		return fmt.Errorf("restore %s: %w", path, err)
	}
	s.log().DebugW("store restored from disk", "path", path)

	return s.applyMigrations(ctx, db)
}

func (s *SQLiteStore) FlushToDisk(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flushLocked(ctx, path)
}

func (s *SQLiteStore) Save(ctx context.Context, name string, c tick.Reader) error {
	snap, err := snapshotOf(name, c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrNotOpen
	}

	savedAt := s.clock.Now().UTC()
	_, err = s.db.ExecContext(ctx, upsertClock,
		name,
		int64(snap.TickRateMS),
		int64(snap.Elapsed),
		savedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		s.log().ErrorW("failed to save clock", "name", name, "error", err)
		return err
	}

	s.log().DebugW("clock saved",
		"name", name,
		"tick_rate_ms", snap.TickRateMS,
		"elapsed", snap.Elapsed,
	)

	s.scheduleFlush()
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, name string) (Record, error) {
	if err := validateName(name); err != nil {
		return Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return Record{}, ErrNotOpen
	}

	var (
		rate, elapsed int64
		savedAt       string
	)
	err := s.db.QueryRowContext(ctx, selectClock, name).Scan(&rate, &elapsed, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("clock %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Record{}, err
	}
	return newRecord(name, rate, elapsed, savedAt)
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx, selectClocks)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			name          string
			rate, elapsed int64
			savedAt       string
		)
		if err := rows.Scan(&name, &rate, &elapsed, &savedAt); err != nil {
			return nil, err
		}
		rec, err := newRecord(name, rate, elapsed, savedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.log().DebugW("clocks listed", "count", len(out))
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrNotOpen
	}

	res, err := s.db.ExecContext(ctx, deleteClock, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("clock %q: %w", name, ErrNotFound)
	}

	s.log().DebugW("clock deleted", "name", name)
	s.scheduleFlush()
	return nil
}

func newRecord(name string, rate, elapsed int64, savedAt string) (Record, error) {
	at, err := time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return Record{}, fmt.Errorf("clock %q: saved_at: %w", name, err)
	}
	if rate < 1 || rate > math.MaxUint32 {
		return Record{}, fmt.Errorf("clock %q: %w: tick rate %dms", name, tick.ErrInvalidSnapshot, rate)
	}
	snap := tick.Snapshot{TickRateMS: uint32(rate), Elapsed: time.Duration(elapsed)}
	if err := snap.Validate(); err != nil {
		return Record{}, fmt.Errorf("clock %q: %w", name, err)
	}
	return Record{Name: name, Snapshot: snap, SavedAt: at}, nil
}

func (s *SQLiteStore) scheduleFlush() {
	if s.snapshotPath == "" {
		return
	}

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.dirty = true
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}

	s.flushTimer = time.AfterFunc(s.flushDebounce, s.performScheduledFlush)
}

func (s *SQLiteStore) performScheduledFlush() {
	s.flushMu.Lock()
	if !s.dirty {
		s.flushMu.Unlock()
		return
	}
	s.flushMu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	if err := s.FlushToDisk(ctx, s.snapshotPath); err != nil {
		s.log().ErrorW("scheduled flush failed", "path", s.snapshotPath, "error", err)
		return
	}

	s.flushMu.Lock()
	s.dirty = false
	s.flushMu.Unlock()
}

// stopFlushTimer must be called with flushMu held.
func (s *SQLiteStore) stopFlushTimer() {
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
}

func (s *SQLiteStore) flushLocked(ctx context.Context, path string) error {
	if s.db == nil {
		return ErrNotOpen
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	fileDB, err := sql.Open("sqlite3", sqliteFileDSN(path))
	if err != nil {
		return err
	}
	defer fileDB.Close()

	if err := s.backup(ctx, s.db, fileDB); err != nil {
		return err
	}
	s.log().DebugW("store flushed to disk", "path", path)
	return nil
}

func (s *SQLiteStore) backup(ctx context.Context, src *sql.DB, dst *sql.DB) error {
	srcConn, err := src.Conn(ctx)
	if err != nil {
		return err
	}
	defer srcConn.Close()

	dstConn, err := dst.Conn(ctx)
	if err != nil {
		return err
	}
	defer dstConn.Close()

	return dstConn.Raw(func(dstDriver any) error {
		return srcConn.Raw(func(srcDriver any) error {
			dstSQLite, ok := dstDriver.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected destination driver: %T", dstDriver)
			}
			srcSQLite, ok := srcDriver.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected source driver: %T", srcDriver)
			}

			backup, err := dstSQLite.Backup("main", srcSQLite, "main")
			if err != nil {
				return err
			}
			defer backup.Finish()

			_, err = backup.Step(-1)
			return err
		})
	})
}

func (s *SQLiteStore) applyMigrations(ctx context.Context, db *sql.DB) error {
	entries, err := fs.ReadDir(migrations, "schema")
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		content, err := fs.ReadFile(migrations, "schema/"+name)
		if err != nil {
			return err
		}
		sqlText := strings.TrimSpace(string(content))
		if sqlText == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

func sqliteFileDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000", path)
}
