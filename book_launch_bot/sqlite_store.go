package booklaunchbot

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite" // SQLite3 driver
)

// SQLiteStore is a KVStore backed by a single SQLite table.
// Expired rows are invisible to reads and are purged whenever keys are listed.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// formatQuery
func formatQuery(query string) string {
	query = strings.ReplaceAll(query, "\n", " ")
	query = strings.TrimSpace(query)
	return query
}

// NewSQLiteStore opens the database at dbPath and creates the entries table if needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	createTableSQLs := []string{
		`CREATE TABLE IF NOT EXISTS entries (
		key TEXT NOT NULL PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);`,
		"CREATE INDEX IF NOT EXISTS idx_entries_expires_at ON entries(expires_at);",
	}
	for _, createTableSQL := range createTableSQLs {
		_, err = db.Exec(formatQuery(createTableSQL))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func withTransaction(ctx context.Context, db *sql.DB, txFunc func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		pkgLogger.Error("transaction error", "error", err)
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // re-throw panic after Rollback
		} else if err != nil {
			pkgLogger.Error("transaction rollback", "error", err)
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	err = txFunc(tx)
	return err
}

// ListKeys purges expired rows and returns the remaining keys in key order.
func (s *SQLiteStore) ListKeys(ctx context.Context) ([]string, error) {
	now := s.now().Unix()
	var keys []string
	err := withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE expires_at <= ?;`, now)
		if err != nil {
			return fmt.Errorf("failed to purge expired entries: %w", err)
		}
		if purged, err := res.RowsAffected(); err == nil && purged > 0 {
			pkgLogger.Debug("Purged expired entries", "count", purged)
		}

		rows, err := tx.QueryContext(ctx, `SELECT key FROM entries ORDER BY key;`)
		if err != nil {
			return fmt.Errorf("failed to list keys: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				return fmt.Errorf("failed to scan key: %w", err)
			}
			keys = append(keys, key)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Get returns the value of a live entry.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := formatQuery(`
	SELECT value
	FROM entries
	WHERE key = ? AND expires_at > ?;
	`)
	var value []byte
	err := s.db.QueryRowContext(ctx, query, key, s.now().Unix()).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get entry %s: %w", key, err)
	}
	return value, true, nil
}

// Put inserts or replaces the entry under key.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	upsertSQL := formatQuery(`
	INSERT INTO entries (key, value, expires_at, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at;
	`)
	err := withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, upsertSQL, key, value, expiresAt.Unix(), s.now().UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to put entry %s: %w", key, err)
	}
	return nil
}
