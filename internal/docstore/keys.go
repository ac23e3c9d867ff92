package docstore

import (
	"github.com/google/uuid"
)

// KeyGenerator allocates document keys.
// Implemented by UUIDv7Generator (production) and testutil.SequentialKeys (tests).
type KeyGenerator interface {
	Generate() string
}

// UUIDv7Generator produces time-sortable UUIDv7 keys.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7 string.
// Panics if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
