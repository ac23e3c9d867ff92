package annotations

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/annostore/internal/docstore"
	"github.com/roach88/annostore/internal/docstore/badgerstore"
	"github.com/roach88/annostore/internal/docstore/sqlitestore"
	"github.com/roach88/annostore/internal/record"
	"github.com/roach88/annostore/internal/testutil"
)

var testScope = Scope{Dataset: "hemibrain", Kind: "neurons"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBadgerStore(t *testing.T) docstore.Store {
	t.Helper()
	cfg := badgerstore.InMemoryConfig()
	cfg.Keys = testutil.NewSequentialKeys("arch")
	s, err := badgerstore.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newSQLiteStore(t *testing.T) docstore.Store {
	t.Helper()
	s, err := sqlitestore.Open(filepath.Join(t.TempDir(), "test.db"),
		sqlitestore.WithKeyGenerator(testutil.NewSequentialKeys("arch")),
		sqlitestore.WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestEngine returns an engine over an in-memory Badger store with a
// deterministic clock (timestamps 1, 2, ...) and keys arch-0001, arch-0002, ...
// Every Write allocates one key, so the n-th write's archive key is arch-000n.
func newTestEngine(t *testing.T, opts ...Option) (*Engine, docstore.Store) {
	t.Helper()
	store := newBadgerStore(t)
	return newEngineOver(store, opts...), store
}

func newEngineOver(store docstore.Store, opts ...Option) *Engine {
	base := []Option{
		WithClock(testutil.NewDeterministicClock()),
		WithLogger(discardLogger()),
	}
	return New(store, append(base, opts...)...)
}

// forEachBackend runs fn against both store implementations.
func forEachBackend(t *testing.T, fn func(t *testing.T, e *Engine, s docstore.Store)) {
	backends := map[string]func(t *testing.T) docstore.Store{
		"badger": newBadgerStore,
		"sqlite": newSQLiteStore,
	}
	for _, name := range []string{"badger", "sqlite"} {
		t.Run(name, func(t *testing.T) {
			s := backends[name](t)
			fn(t, newEngineOver(s), s)
		})
	}
}

func mustWrite(t *testing.T, e *Engine, payload record.Record, opts WriteOptions) WriteResult {
	t.Helper()
	res, err := e.Write(context.Background(), testScope, payload, opts)
	require.NoError(t, err)
	return res
}

func mustHead(t *testing.T, e *Engine, id any) record.Record {
	t.Helper()
	rev, err := e.Head(context.Background(), testScope, id)
	require.NoError(t, err)
	return rev.Record
}

func mustGet(t *testing.T, s docstore.Store, key string) record.Record {
	t.Helper()
	doc, err := s.Get(context.Background(), testScope.Collection(), key)
	require.NoError(t, err)
	return doc
}

// recordingStore wraps a store and records every query predicate.
type recordingStore struct {
	docstore.Store

	mu      sync.Mutex
	queries []docstore.Predicate
}

func (r *recordingStore) Query(ctx context.Context, collection string, pred docstore.Predicate) ([]docstore.Document, error) {
	r.mu.Lock()
	r.queries = append(r.queries, pred)
	r.mu.Unlock()
	return r.Store.Query(ctx, collection, pred)
}

func (r *recordingStore) recorded() []docstore.Predicate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]docstore.Predicate(nil), r.queries...)
}

// conflictStore fails every transaction as an exhausted retry budget.
type conflictStore struct {
	docstore.Store
}

func (conflictStore) Transact(ctx context.Context, fn func(tx docstore.Tx) error) error {
	return docstore.RunWithRetry(ctx, 3, func(error) bool { return true }, func() error {
		return errBusy
	})
}

type busyError struct{}

func (busyError) Error() string { return "busy" }

var errBusy error = busyError{}

// replayStore runs each transaction function twice: once against a
// throwaway handle, then for real, the way an optimistic store retries.
type replayStore struct {
	docstore.Store

	mu      sync.Mutex
	sets    [][]string
	newKeys int
}

func (r *replayStore) NewKey(collection string) string {
	r.mu.Lock()
	r.newKeys++
	r.mu.Unlock()
	return r.Store.NewKey(collection)
}

func (r *replayStore) Transact(ctx context.Context, fn func(tx docstore.Tx) error) error {
	dry := &dryTx{store: r.Store, ctx: ctx}
	if err := fn(dry); err != nil {
		return err
	}
	r.mu.Lock()
	r.sets = append(r.sets, dry.keys)
	r.mu.Unlock()

	return r.Store.Transact(ctx, func(tx docstore.Tx) error {
		rec := &recordingTx{Tx: tx}
		if err := fn(rec); err != nil {
			return err
		}
		r.mu.Lock()
		r.sets = append(r.sets, rec.keys)
		r.mu.Unlock()
		return nil
	})
}

type dryTx struct {
	store docstore.Store
	ctx   context.Context
	keys  []string
}

func (d *dryTx) Get(collection, key string) (record.Record, error) {
	return d.store.Get(d.ctx, collection, key)
}

func (d *dryTx) Set(collection, key string, doc record.Record) error {
	d.keys = append(d.keys, key)
	return nil
}

type recordingTx struct {
	docstore.Tx
	keys []string
}

func (r *recordingTx) Set(collection, key string, doc record.Record) error {
	r.keys = append(r.keys, key)
	return r.Tx.Set(collection, key, doc)
}

// fieldSink records RecordFields calls.
type fieldSink struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *fieldSink) RecordFields(ctx context.Context, scope Scope, fields []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fields)
	return f.err
}
