package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Disk is a cache persisted in a SQLite database.
type Disk struct {
	db        *sql.DB
	path      string
	ttl       time.Duration
	closeOnce sync.Once
	scheduler *Scheduler

	getStmt     *sql.Stmt
	setStmt     *sql.Stmt
	deleteStmt  *sql.Stmt
	cleanupStmt *sql.Stmt

	// now is replaced in tests.
	now func() time.Time
}

// NewDisk opens (or creates) the cache database at path.
func NewDisk(path string, ttl time.Duration) (*Disk, error) {
	if path == "" {
		return nil, errors.New("db path cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	d := &Disk{
		db:   db,
		path: path,
		ttl:  ttl,
		now:  time.Now,
	}

	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := d.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return d, nil
}

func (d *Disk) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cache_expires_at ON cache_entries(expires_at);
	`
	_, err := d.db.Exec(schema)
	return err
}

func (d *Disk) prepareStatements() error {
	var err error

	d.getStmt, err = d.db.Prepare(`SELECT value, expires_at FROM cache_entries WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("prepare get: %w", err)
	}

	d.setStmt, err = d.db.Prepare(`
		INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at
	`)
	if err != nil {
		return fmt.Errorf("prepare set: %w", err)
	}

	d.deleteStmt, err = d.db.Prepare(`DELETE FROM cache_entries WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}

	d.cleanupStmt, err = d.db.Prepare(`DELETE FROM cache_entries WHERE expires_at <= ?`)
	if err != nil {
		return fmt.Errorf("prepare cleanup: %w", err)
	}

	return nil
}

// Get implements Cache. An expired entry is deleted and reported as a miss.
func (d *Disk) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt int64
	)
	err := d.getStmt.QueryRowContext(ctx, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if expiresAt <= d.now().UnixMilli() {
		if _, err := d.deleteStmt.ExecContext(ctx, key); err != nil {
			return nil, false, fmt.Errorf("failed to delete expired entry: %w", err)
		}
		return nil, false, nil
	}

	return value, true, nil
}

// Set implements Cache.
func (d *Disk) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = d.ttl
	}
	expiresAt := d.now().Add(ttl).UnixMilli()
	if _, err := d.setStmt.ExecContext(ctx, key, value, expiresAt); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete implements Cache.
func (d *Disk) Delete(ctx context.Context, key string) error {
	if _, err := d.deleteStmt.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Cleanup removes every expired entry and returns how many were removed.
func (d *Disk) Cleanup(ctx context.Context) (int64, error) {
	res, err := d.cleanupStmt.ExecContext(ctx, d.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up cache: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the cleanup scheduler and closes the database.
func (d *Disk) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.scheduler != nil {
			d.scheduler.Stop()
		}
		for _, stmt := range []*sql.Stmt{d.getStmt, d.setStmt, d.deleteStmt, d.cleanupStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = d.db.Close()
	})
	return err
}
