package badgerstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/annostore/internal/docstore"
	"github.com/roach88/annostore/internal/docstore/storetest"
	"github.com/roach88/annostore/internal/record"
)

func openInMemory(t *testing.T, mutate func(*Config)) *Store {
	t.Helper()
	cfg := InMemoryConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store {
		return openInMemory(t, func(cfg *Config) {
			cfg.MaxInValues = 3
			cfg.MaxAttempts = 50
		})
	})
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpen_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "c", "k", record.Record{"n": int64(1)}))
	require.NoError(t, s1.Close())

	s2, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer s2.Close()

	doc, err := s2.Get(ctx, "c", "k")
	require.NoError(t, err)
	assert.Equal(t, record.Record{"n": int64(1)}, doc)
}

func TestOpen_Defaults(t *testing.T) {
	s := openInMemory(t, func(cfg *Config) {
		cfg.MaxInValues = 0
		cfg.MaxAttempts = 0
	})
	assert.Equal(t, docstore.DefaultMaxInValues, s.MaxInValues())
	assert.Equal(t, docstore.DefaultMaxAttempts, s.maxAttempts)
	assert.Len(t, s.NewKey("c"), 36)
}

func TestCollectionPrefixIsolation(t *testing.T) {
	s := openInMemory(t, nil)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "a", "k", record.Record{"n": int64(1)}))
	require.NoError(t, s.Set(ctx, "ab", "k", record.Record{"n": int64(2)}))

	docs, err := s.Query(ctx, "a", nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, record.Record{"n": int64(1)}, docs[0].Fields)
}

func TestQuery_HonorsCancellation(t *testing.T) {
	s := openInMemory(t, nil)
	require.NoError(t, s.Set(context.Background(), "c", "k", record.Record{"n": int64(1)}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Query(ctx, "c", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
