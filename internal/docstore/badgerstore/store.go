// Package badgerstore implements docstore.Store on BadgerDB.
//
// Documents are stored under "<collection>\x00<key>" as canonical JSON.
// Badger transactions are optimistic: a commit that raced another writer
// fails with badger.ErrConflict and the whole transaction function runs
// again. Queries are prefix scans filtered with docstore.Match.
package badgerstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/annostore/internal/docstore"
	"github.com/roach88/annostore/internal/record"
)

// Config holds configuration for a Badger-backed store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger

	// MaxInValues caps membership predicates.
	MaxInValues int

	// MaxAttempts bounds transaction retries on conflict.
	MaxAttempts int

	// Keys allocates document keys. Defaults to UUIDv7.
	Keys docstore.KeyGenerator
}

// DefaultConfig returns production defaults for a store at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		SyncWrites:  true,
		MaxInValues: docstore.DefaultMaxInValues,
		MaxAttempts: docstore.DefaultMaxAttempts,
	}
}

// InMemoryConfig returns configuration optimized for testing.
func InMemoryConfig() Config {
	return Config{
		InMemory:    true,
		MaxInValues: docstore.DefaultMaxInValues,
		MaxAttempts: docstore.DefaultMaxAttempts,
	}
}

// Store is a docstore.Store backed by BadgerDB.
type Store struct {
	db          *badger.DB
	keys        docstore.KeyGenerator
	maxIn       int
	maxAttempts int
	logger      *slog.Logger
}

var _ docstore.Store = (*Store)(nil)

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens a Badger database with the given configuration.
//
// The returned Store is safe for concurrent use. Callers must Close it.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{
		db:          db,
		keys:        cfg.Keys,
		maxIn:       cfg.MaxInValues,
		maxAttempts: cfg.MaxAttempts,
		logger:      cfg.Logger,
	}
	if s.keys == nil {
		s.keys = docstore.UUIDv7Generator{}
	}
	if s.maxIn <= 0 {
		s.maxIn = docstore.DefaultMaxInValues
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = docstore.DefaultMaxAttempts
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
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
	var doc record.Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = getDocument(txn, collection, key)
		return err
	})
	return doc, err
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, collection, key string, doc record.Record) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return setDocument(txn, collection, key, doc)
	})
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Delete(documentKey(collection, key)); err != nil {
			return fmt.Errorf("delete %s/%s: %w", collection, key, err)
		}
		return nil
	})
}

// Query implements docstore.Store.
func (s *Store) Query(ctx context.Context, collection string, pred docstore.Predicate) ([]docstore.Document, error) {
	if err := docstore.Validate(pred, s.maxIn); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	prefix := collectionPrefix(collection)
	var docs []docstore.Document
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(bytes.TrimPrefix(item.Key(), prefix))
			var doc record.Record
			err := item.Value(func(val []byte) error {
				var err error
				doc, err = record.Decode(val)
				return err
			})
			if err != nil {
				return fmt.Errorf("document %s: %w", key, err)
			}
			if docstore.Match(pred, doc) {
				docs = append(docs, docstore.Document{Key: key, Fields: doc})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return docs, nil
}

// Transact implements docstore.Store.
func (s *Store) Transact(ctx context.Context, fn func(tx docstore.Tx) error) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return fn(&tx{txn: txn})
	})
}

// update runs fn in a read-write transaction, retrying on conflict.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	attempt := 0
	return docstore.RunWithRetry(ctx, s.maxAttempts, isConflict, func() error {
		attempt++
		if attempt > 1 {
			s.logger.Debug("retrying badger transaction", "attempt", attempt)
		}
		return s.db.Update(fn)
	})
}

// tx adapts *badger.Txn to docstore.Tx.
type tx struct {
	txn *badger.Txn
}

func (t *tx) Get(collection, key string) (record.Record, error) {
	return getDocument(t.txn, collection, key)
}

func (t *tx) Set(collection, key string, doc record.Record) error {
	return setDocument(t.txn, collection, key, doc)
}

func getDocument(txn *badger.Txn, collection, key string) (record.Record, error) {
	item, err := txn.Get(documentKey(collection, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	var doc record.Record
	err = item.Value(func(val []byte) error {
		var err error
		doc, err = record.Decode(val)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return doc, nil
}

func setDocument(txn *badger.Txn, collection, key string, doc record.Record) error {
	body, err := record.MarshalCanonical(map[string]any(doc))
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, key, err)
	}
	if err := txn.Set(documentKey(collection, key), body); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, key, err)
	}
	return nil
}

func isConflict(err error) bool {
	return errors.Is(err, badger.ErrConflict)
}

// collectionPrefix is the key prefix shared by a collection's documents.
// The NUL separator keeps "a" from matching keys of collection "ab".
func collectionPrefix(collection string) []byte {
	return []byte(collection + "\x00")
}

func documentKey(collection, key string) []byte {
	return append(collectionPrefix(collection), key...)
}
