package docstore

import (
	"context"
	"errors"

	"github.com/roach88/annostore/internal/record"
)

// DefaultMaxInValues is the membership-set cap of the reference backend.
const DefaultMaxInValues = 10

// DefaultMaxAttempts bounds how often Transact runs its function.
const DefaultMaxAttempts = 5

var (
	// ErrNotFound is returned by Get when no document exists.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned by Transact once retries are exhausted.
	ErrConflict = errors.New("transaction conflict")

	// ErrTooManyValues is returned by Query for an In predicate over the cap.
	ErrTooManyValues = errors.New("too many membership values")
)

// Document is a stored record together with its key.
type Document struct {
	Key    string
	Fields record.Record
}

// Store is the storage contract consumed by the annotation engine.
type Store interface {
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context, collection, key string) (record.Record, error)

	// Set creates or replaces a document.
	Set(ctx context.Context, collection, key string, doc record.Record) error

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, key string) error

	// NewKey allocates a fresh key. It performs no I/O.
	NewKey(collection string) string

	// Query returns documents matching pred, ordered by key.
	// A nil predicate matches every document in the collection.
	Query(ctx context.Context, collection string, pred Predicate) ([]Document, error)

	// Transact runs fn inside a transaction, re-running it on conflict.
	Transact(ctx context.Context, fn func(tx Tx) error) error

	// MaxInValues is the largest In predicate Query accepts.
	MaxInValues() int

	// Close releases backend resources.
	Close() error
}

// Tx is the transactional handle passed to Transact functions.
type Tx interface {
	// Get returns the document or ErrNotFound.
	Get(collection, key string) (record.Record, error)

	// Set stages a create-or-replace, applied on commit.
	Set(collection, key string, doc record.Record) error
}

// RunWithRetry calls attempt up to maxAttempts times while retryable
// reports the returned error as a transient conflict. When the budget is
// exhausted the last error is wrapped with ErrConflict.
func RunWithRetry(ctx context.Context, maxAttempts int, retryable func(error) bool, attempt func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for i := 0; i < maxAttempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = attempt()
		if err == nil || !retryable(err) {
			return err
		}
	}
	return errors.Join(ErrConflict, err)
}
