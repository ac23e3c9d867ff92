package annotations

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/annostore/internal/docstore"
	"github.com/roach88/annostore/internal/record"
)

// DefaultIDField is the id field used when a request names none.
const DefaultIDField = "bodyid"

// CollectionPrefix is the first path segment of annotation collections.
const CollectionPrefix = "annotations"

// Clock supplies record timestamps in unix nanoseconds.
// Implemented by SystemClock (production) and testutil.DeterministicClock (tests).
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time in unix nanoseconds.
func (SystemClock) Now() int64 {
	return time.Now().UnixNano()
}

// FieldRecorder is notified with the field names of every committed write.
// Implemented by metadata.Registry.
type FieldRecorder interface {
	RecordFields(ctx context.Context, scope Scope, fields []string) error
}

// Scope selects one logical collection: a record kind within a dataset.
type Scope struct {
	Dataset string
	Kind    string
}

// Collection returns the collection path "annotations/<kind>/<dataset>".
func (s Scope) Collection() string {
	return CollectionPrefix + "/" + s.Kind + "/" + s.Dataset
}

// String implements fmt.Stringer.
func (s Scope) String() string {
	return s.Dataset + "/" + s.Kind
}

// Validate rejects empty or path-like scope segments.
func (s Scope) Validate() error {
	for _, seg := range [][2]string{{"dataset", s.Dataset}, {"kind", s.Kind}} {
		name, v := seg[0], seg[1]
		if v == "" {
			return &Error{Code: CodeInvalidRequest, Message: "empty " + name}
		}
		if strings.Contains(v, "/") {
			return &Error{Code: CodeInvalidRequest, Message: fmt.Sprintf("%s %q contains '/'", name, v)}
		}
	}
	return nil
}

// Revision is one stored record together with its storage key.
type Revision struct {
	Key    string
	Head   bool
	Record record.Record
}

// Public returns the record without chain navigation fields.
func (r Revision) Public() record.Record {
	return r.Record.Public()
}

// Version returns the record's encoded version.
func (r Revision) Version() int64 {
	return r.Record.Version()
}

// Engine is the versioned annotation store.
//
// Thread-safety: all methods are safe for concurrent use. Writes to the
// same id are serialized by the store's transactions.
type Engine struct {
	store    docstore.Store
	clock    Clock
	logger   *slog.Logger
	metrics  *Metrics
	fields   FieldRecorder
	idField  string
	maxQuery int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithFieldRecorder registers payload field names after each write.
func WithFieldRecorder(r FieldRecorder) Option {
	return func(e *Engine) { e.fields = r }
}

// WithDefaultIDField changes the id field used when requests name none.
func WithDefaultIDField(field string) Option {
	return func(e *Engine) { e.idField = field }
}

// WithMaxQueryValues lowers the membership cap below the store's own.
func WithMaxQueryValues(n int) Option {
	return func(e *Engine) { e.maxQuery = n }
}

// New creates an Engine over store.
func New(store docstore.Store, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		clock:   SystemClock{},
		logger:  slog.Default(),
		idField: DefaultIDField,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// maxInValues is the effective membership cap.
func (e *Engine) maxInValues() int {
	n := e.store.MaxInValues()
	if e.maxQuery > 0 && e.maxQuery < n {
		n = e.maxQuery
	}
	if n < 1 {
		n = 1
	}
	return n
}

// IDField returns the default id field.
func (e *Engine) IDField() string {
	return e.idField
}

func (e *Engine) resolveIDField(field string) string {
	if field == "" {
		return e.idField
	}
	return field
}

// HeadKey returns the deterministic Head key for an id value: "id<n>" for
// integers and "ids<s>" for strings, so 7 and "7" are different ids.
// Ids are integers or non-empty strings; integral floats count as integers.
func HeadKey(id any) (string, error) {
	s, err := FormatID(id)
	if err != nil {
		return "", err
	}
	if _, ok := id.(string); ok {
		return "ids" + s, nil
	}
	return "id" + s, nil
}

// FormatID renders an id value for keys and error messages.
func FormatID(id any) (string, error) {
	switch v := id.(type) {
	case string:
		if v == "" {
			return "", &Error{Code: CodeInvalidRequest, Message: "empty id"}
		}
		return v, nil
	case int64, int, float64:
		n, ok := record.ToInt64(v)
		if !ok {
			return "", &Error{Code: CodeInvalidRequest, Message: fmt.Sprintf("id %v is not an integer", v)}
		}
		return strconv.FormatInt(n, 10), nil
	default:
		return "", &Error{Code: CodeInvalidRequest, Message: fmt.Sprintf("id must be an integer or string, got %T", id)}
	}
}

// normalizeID converts caller-supplied ids to the stored form.
func normalizeID(id any) (any, error) {
	v, err := record.Normalize(id)
	if err != nil {
		return nil, &Error{Code: CodeInvalidRequest, Message: err.Error()}
	}
	if f, ok := v.(float64); ok {
		if n, ok := record.ToInt64(f); ok {
			return n, nil
		}
	}
	if _, err := FormatID(v); err != nil {
		return nil, err
	}
	return v, nil
}

// ParseIDs splits a comma-separated id list as typed on a command line or
// in a URL. Integer text becomes an integer id, anything else a string id.
func ParseIDs(raw string) ([]any, error) {
	parts := strings.Split(raw, ",")
	ids := make([]any, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, &Error{Code: CodeInvalidRequest, Message: fmt.Sprintf("empty id in %q", raw)}
		}
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			ids = append(ids, n)
			continue
		}
		ids = append(ids, p)
	}
	return ids, nil
}
