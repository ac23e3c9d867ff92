// Package storetest is a conformance suite for docstore.Store backends.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/annostore/internal/docstore"
	"github.com/roach88/annostore/internal/record"
)

// Factory opens a fresh, empty store. The store must allow at least
// three membership values per In predicate and enough transaction
// attempts to absorb modest contention.
type Factory func(t *testing.T) docstore.Store

// Run exercises the docstore contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s docstore.Store)
	}{
		{"GetMissing", testGetMissing},
		{"SetGet", testSetGet},
		{"Overwrite", testOverwrite},
		{"Delete", testDelete},
		{"QueryAll", testQueryAll},
		{"QueryEquals", testQueryEquals},
		{"QueryTypes", testQueryTypes},
		{"QueryIn", testQueryIn},
		{"QueryInCap", testQueryInCap},
		{"QueryAnd", testQueryAnd},
		{"TransactCommit", testTransactCommit},
		{"TransactRollback", testTransactRollback},
		{"TransactConcurrent", testTransactConcurrent},
		{"NewKey", testNewKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func testGetMissing(t *testing.T, s docstore.Store) {
	_, err := s.Get(context.Background(), "c", "nope")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func testSetGet(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	doc := record.Record{
		"bodyid": int64(9007199254740993),
		"score":  1.5,
		"name":   "neuron",
		"tags":   []any{"a", int64(2)},
		"nested": map[string]any{"ok": true},
		"none":   nil,
	}
	require.NoError(t, s.Set(ctx, "c", "k1", doc))

	got, err := s.Get(ctx, "c", "k1")
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	_, err = s.Get(ctx, "other", "k1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func testOverwrite(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "c", "k", record.Record{"a": int64(1), "b": int64(2)}))
	require.NoError(t, s.Set(ctx, "c", "k", record.Record{"a": int64(3)}))

	got, err := s.Get(ctx, "c", "k")
	require.NoError(t, err)
	assert.Equal(t, record.Record{"a": int64(3)}, got)
}

func testDelete(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "c", "k", record.Record{"a": int64(1)}))
	require.NoError(t, s.Delete(ctx, "c", "k"))

	_, err := s.Get(ctx, "c", "k")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	assert.NoError(t, s.Delete(ctx, "c", "k"), "deleting a missing document is not an error")
}

func seed(t *testing.T, s docstore.Store, collection string, docs map[string]record.Record) {
	t.Helper()
	for key, doc := range docs {
		require.NoError(t, s.Set(context.Background(), collection, key, doc))
	}
}

func keysOf(docs []docstore.Document) []string {
	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = d.Key
	}
	return keys
}

func testQueryAll(t *testing.T, s docstore.Store) {
	seed(t, s, "c", map[string]record.Record{
		"b": {"n": int64(2)},
		"a": {"n": int64(1)},
		"c": {"n": int64(3)},
	})
	seed(t, s, "c2", map[string]record.Record{"z": {"n": int64(1)}})

	docs, err := s.Query(context.Background(), "c", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keysOf(docs))
	assert.Equal(t, record.Record{"n": int64(1)}, docs[0].Fields)
}

func testQueryEquals(t *testing.T, s docstore.Store) {
	seed(t, s, "c", map[string]record.Record{
		"k1": {"bodyid": int64(1), "status": "done"},
		"k2": {"bodyid": int64(2), "status": "todo"},
		"k3": {"bodyid": int64(1), "status": "todo"},
	})
	ctx := context.Background()

	docs, err := s.Query(ctx, "c", docstore.Eq("bodyid", int64(1)))
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k3"}, keysOf(docs))

	docs, err = s.Query(ctx, "c", docstore.Eq("bodyid", 1.0))
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k3"}, keysOf(docs), "numbers compare by value")

	docs, err = s.Query(ctx, "c", docstore.Eq("status", "todo"))
	require.NoError(t, err)
	assert.Equal(t, []string{"k2", "k3"}, keysOf(docs))

	docs, err = s.Query(ctx, "c", docstore.Eq("missing", "x"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func testQueryTypes(t *testing.T, s docstore.Store) {
	seed(t, s, "c", map[string]record.Record{
		"bool":   {"v": true},
		"one":    {"v": int64(1)},
		"text":   {"v": "1"},
		"null":   {"v": nil},
		"absent": {"w": int64(1)},
	})
	ctx := context.Background()

	cases := []struct {
		value any
		want  []string
	}{
		{true, []string{"bool"}},
		{int64(1), []string{"one"}},
		{"1", []string{"text"}},
		{nil, []string{"null"}},
	}
	for _, c := range cases {
		docs, err := s.Query(ctx, "c", docstore.Eq("v", c.value))
		require.NoError(t, err)
		assert.Equal(t, c.want, keysOf(docs), "value %#v", c.value)
	}
}

func testQueryIn(t *testing.T, s docstore.Store) {
	seed(t, s, "c", map[string]record.Record{
		"k1": {"bodyid": int64(1)},
		"k2": {"bodyid": int64(2)},
		"k3": {"bodyid": int64(3)},
		"k4": {"bodyid": "2"},
	})

	docs, err := s.Query(context.Background(), "c", docstore.In{
		Field:  "bodyid",
		Values: []any{int64(3), int64(1), "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k3", "k4"}, keysOf(docs))
}

func testQueryInCap(t *testing.T, s docstore.Store) {
	values := make([]any, s.MaxInValues()+1)
	for i := range values {
		values[i] = int64(i)
	}
	_, err := s.Query(context.Background(), "c", docstore.In{Field: "bodyid", Values: values})
	assert.ErrorIs(t, err, docstore.ErrTooManyValues)
}

func testQueryAnd(t *testing.T, s docstore.Store) {
	seed(t, s, "c", map[string]record.Record{
		"h1": {"bodyid": int64(1), "_head": true},
		"a1": {"bodyid": int64(1)},
		"h2": {"bodyid": int64(2), "_head": true},
	})

	docs, err := s.Query(context.Background(), "c", docstore.AllOf(
		docstore.Eq("_head", true),
		docstore.In{Field: "bodyid", Values: []any{int64(1), int64(2)}},
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "h2"}, keysOf(docs))
}

func testTransactCommit(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "c", "head", record.Record{"n": int64(1)}))

	err := s.Transact(ctx, func(tx docstore.Tx) error {
		head, err := tx.Get("c", "head")
		if err != nil {
			return err
		}
		if err := tx.Set("c", "archived", head); err != nil {
			return err
		}
		if err := tx.Set("c", "head", record.Record{"n": int64(2)}); err != nil {
			return err
		}
		staged, err := tx.Get("c", "head")
		if err != nil {
			return err
		}
		if n, _ := staged.Int64("n"); n != 2 {
			return fmt.Errorf("transaction does not see its own write: %v", staged)
		}
		return nil
	})
	require.NoError(t, err)

	head, err := s.Get(ctx, "c", "head")
	require.NoError(t, err)
	assert.Equal(t, record.Record{"n": int64(2)}, head)

	archived, err := s.Get(ctx, "c", "archived")
	require.NoError(t, err)
	assert.Equal(t, record.Record{"n": int64(1)}, archived)
}

func testTransactRollback(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Transact(ctx, func(tx docstore.Tx) error {
		if err := tx.Set("c", "k", record.Record{"n": int64(1)}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Get(ctx, "c", "k")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func testTransactConcurrent(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "c", "counter", record.Record{"n": int64(0)}))

	const workers, increments = 4, 5
	var wg sync.WaitGroup
	errs := make(chan error, workers*increments)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < increments; i++ {
				errs <- s.Transact(ctx, func(tx docstore.Tx) error {
					doc, err := tx.Get("c", "counter")
					if err != nil {
						return err
					}
					n, _ := doc.Int64("n")
					return tx.Set("c", "counter", record.Record{"n": n + 1})
				})
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	doc, err := s.Get(ctx, "c", "counter")
	require.NoError(t, err)
	n, _ := doc.Int64("n")
	assert.Equal(t, int64(workers*increments), n)
}

func testNewKey(t *testing.T, s docstore.Store) {
	a := s.NewKey("c")
	b := s.NewKey("c")
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
