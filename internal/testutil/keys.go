package testutil

import (
	"fmt"
	"sync"
)

// SequentialKeys generates predictable document keys: prefix-0001,
// prefix-0002, and so on.
//
// Implements docstore.KeyGenerator. Keys sort in allocation order, which
// keeps golden snapshots stable.
//
// Thread-safety: Generate is safe for concurrent use.
type SequentialKeys struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialKeys creates a generator. An empty prefix defaults to "key".
func NewSequentialKeys(prefix string) *SequentialKeys {
	if prefix == "" {
		prefix = "key"
	}
	return &SequentialKeys{prefix: prefix}
}

// Generate returns the next key.
func (g *SequentialKeys) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts numbering at 1.
func (g *SequentialKeys) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
