// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database. It lives inside the Go binary and stores
// everything in a single file. No separate database server to run, which
// suits a small photo-sharing API and makes tests trivial (":memory:").
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite. No CGo, no C toolchain, and
// cross-compilation keeps working.
//
// ONE POOL, SHARED BY EVERY REQUEST:
// New is called once at startup. The returned *DB wraps a sql.DB pool that
// all concurrent requests reuse; nothing reconnects per request.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/photo-share/internal/repository"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and hands out per-collection repositories.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/photoshare.db"  → file-based database (persistent)
//   - ":memory:"            → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// SQLite allows one writer at a time. A single pooled connection turns
	// concurrent writes into a queue instead of SQLITE_BUSY errors, and it
	// keeps ":memory:" databases from splitting across connections.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. photos.user_id and the tags
	// bridge rely on them.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Users returns the users collection.
func (db *DB) Users() repository.UserRepository {
	return &UserDB{conn: db.conn}
}

// Photos returns the photos collection.
func (db *DB) Photos() repository.PhotoRepository {
	return &PhotoDB{conn: db.conn}
}

// Tags returns the tags bridge collection.
func (db *DB) Tags() repository.TagRepository {
	return &TagDB{conn: db.conn}
}

// migrate creates the three collections.
//
// CREATE TABLE IF NOT EXISTS is idempotent, so this runs on every start.
func (db *DB) migrate(ctx context.Context) error {
	// github_login is the natural key: one row per GitHub account.
	// github_token is looked up on every authenticated request, hence the index.
	_, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			github_login TEXT PRIMARY KEY,
			name         TEXT NOT NULL DEFAULT '',
			avatar       TEXT NOT NULL DEFAULT '',
			github_token TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_users_github_token ON users(github_token);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS photos (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL DEFAULT 'PORTRAIT',
			user_id     TEXT NOT NULL REFERENCES users(github_login),
			created     DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_photos_user_id ON photos(user_id);
		CREATE INDEX IF NOT EXISTS idx_photos_created ON photos(created);
	`)
	if err != nil {
		return fmt.Errorf("creating photos table: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tags (
			photo_id TEXT NOT NULL REFERENCES photos(id),
			user_id  TEXT NOT NULL REFERENCES users(github_login),
			PRIMARY KEY (photo_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_tags_user_id ON tags(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating tags table: %w", err)
	}

	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
