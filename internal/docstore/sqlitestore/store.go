package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/annostore/internal/docstore"
	"github.com/roach88/annostore/internal/record"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Expression index on the head discriminator
const currentSchemaVersion = 1

// Store is a docstore.Store backed by SQLite.
type Store struct {
	db          *sql.DB
	keys        docstore.KeyGenerator
	maxIn       int
	maxAttempts int
	logger      *slog.Logger
}

var _ docstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithKeyGenerator replaces the UUIDv7 key generator.
func WithKeyGenerator(g docstore.KeyGenerator) Option {
	return func(s *Store) { s.keys = g }
}

// WithMaxInValues sets the membership predicate cap.
func WithMaxInValues(n int) Option {
	return func(s *Store) { s.maxIn = n }
}

// WithMaxAttempts sets how many times Transact runs its function.
func WithMaxAttempts(n int) Option {
	return func(s *Store) { s.maxAttempts = n }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Immediate transaction locking
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:          db,
		keys:        docstore.UUIDv7Generator{},
		maxIn:       docstore.DefaultMaxInValues,
		maxAttempts: docstore.DefaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate"
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// MaxInValues implements docstore.Store.
func (s *Store) MaxInValues() int {
	return s.maxIn
}

// NewKey implements docstore.Store.
func (s *Store) NewKey(collection string) string {
	return s.keys.Generate()
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, key string) (record.Record, error) {
	return getDocument(ctx, s.db, collection, key)
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, collection, key string, doc record.Record) error {
	return setDocument(ctx, s.db, collection, key, doc)
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND key = ?`, collection, key)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	return nil
}

// Query implements docstore.Store.
func (s *Store) Query(ctx context.Context, collection string, pred docstore.Predicate) ([]docstore.Document, error) {
	if err := docstore.Validate(pred, s.maxIn); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	query, params, err := compileQuery(collection, pred)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("query %s: scan: %w", collection, err)
		}
		rec, err := record.Decode([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("query %s: document %s: %w", collection, key, err)
		}
		docs = append(docs, docstore.Document{Key: key, Fields: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return docs, nil
}

// Transact implements docstore.Store.
func (s *Store) Transact(ctx context.Context, fn func(tx docstore.Tx) error) error {
	attempt := 0
	return docstore.RunWithRetry(ctx, s.maxAttempts, isBusy, func() error {
		attempt++
		if attempt > 1 {
			s.logger.Debug("retrying sqlite transaction", "attempt", attempt)
		}

		sqlTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if err := fn(&txn{ctx: ctx, tx: sqlTx}); err != nil {
			_ = sqlTx.Rollback()
			return err
		}
		if err := sqlTx.Commit(); err != nil {
			_ = sqlTx.Rollback()
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

// txn adapts *sql.Tx to docstore.Tx.
type txn struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *txn) Get(collection, key string) (record.Record, error) {
	return getDocument(t.ctx, t.tx, collection, key)
}

func (t *txn) Set(collection, key string, doc record.Record) error {
	return setDocument(t.ctx, t.tx, collection, key, doc)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDocument(ctx context.Context, db execer, collection, key string) (record.Record, error) {
	var body string
	err := db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND key = ?`,
		collection, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	rec, err := record.Decode([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return rec, nil
}

func setDocument(ctx context.Context, db execer, collection, key string, doc record.Record) error {
	body, err := record.MarshalCanonical(map[string]any(doc))
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, key, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, body)
		VALUES (?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET body = excluded.body
	`, collection, key, string(body))
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, key, err)
	}
	return nil
}

// isBusy reports SQLite lock contention worth retrying.
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 indexes head lookups, the most frequent unversioned query.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_documents_head
		ON documents(collection, json_type(body, %s))
	`, jsonPath(record.FieldHead)))
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
