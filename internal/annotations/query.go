package annotations

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/annostore/internal/docstore"
	"github.com/roach88/annostore/internal/record"
	"github.com/roach88/annostore/internal/version"
)

// ReadOptions are the per-request read parameters.
type ReadOptions struct {
	// IDField names the id field. Empty means the engine default.
	IDField string

	// Version selects the state at or below this tag. Empty means Head.
	Version string

	// Changes returns each matching id's full history instead of one record.
	Changes bool
}

// Match is one id's result from Query or Fetch.
type Match struct {
	ID       any
	Revision Revision

	// Changes is the Head followed by the whole chain, set only when
	// ReadOptions.Changes was requested.
	Changes []Revision
}

// Query returns the records matching where.
//
// Each key of where is a field name. The id field filters by id and may
// hold a list of any length; those ids are split into chunks. Other list
// values become membership tests limited to the store's cap. Scalars
// become equality tests. All constraints are ANDed.
func (e *Engine) Query(ctx context.Context, scope Scope, where map[string]any, opts ReadOptions) ([]Match, error) {
	const op = "query"
	if err := scope.Validate(); err != nil {
		return nil, withOp(err, op)
	}
	idField := e.resolveIDField(opts.IDField)

	pred, ids, err := e.translate(where, idField)
	if err != nil {
		return nil, withOp(err, op)
	}
	if ids != nil {
		return e.runOnIDs(ctx, scope, ids, pred, opts, idField)
	}
	return e.runQuery(ctx, scope, pred, opts, idField)
}

// QueryAny runs each query object and ORs the results. Matches keep
// first-seen order and every id appears once.
func (e *Engine) QueryAny(ctx context.Context, scope Scope, wheres []map[string]any, opts ReadOptions) ([]Match, error) {
	var out []Match
	seen := make(map[string]bool)
	for i, where := range wheres {
		matches, err := e.Query(ctx, scope, where, opts)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		for _, m := range matches {
			key, err := HeadKey(m.ID)
			if err != nil || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, m)
		}
	}
	return out, nil
}

// Fetch returns the records of the given ids. Unknown ids are omitted.
func (e *Engine) Fetch(ctx context.Context, scope Scope, ids []any, opts ReadOptions) ([]Match, error) {
	const op = "get"
	if err := scope.Validate(); err != nil {
		return nil, withOp(err, op)
	}
	return e.runOnIDs(ctx, scope, ids, nil, opts, e.resolveIDField(opts.IDField))
}

// translate turns a query object into a predicate over non-id fields and
// the id list, which is nil when the id field is not constrained.
func (e *Engine) translate(where map[string]any, idField string) (docstore.Predicate, []any, error) {
	fields := make([]string, 0, len(where))
	for f := range where {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var preds []docstore.Predicate
	var ids []any
	for _, field := range fields {
		if err := docstore.Validate(docstore.Eq(field, nil), 0); err != nil {
			return nil, nil, &Error{Code: CodeInvalidRequest, Field: field, Message: err.Error()}
		}
		value, err := record.Normalize(where[field])
		if err != nil {
			return nil, nil, &Error{Code: CodeInvalidRequest, Field: field, Message: err.Error()}
		}

		if field == idField {
			switch v := value.(type) {
			case []any:
				ids = v
			default:
				ids = []any{v}
			}
			continue
		}

		switch v := value.(type) {
		case []any:
			if len(v) > e.maxInValues() {
				return nil, nil, &Error{
					Code:    CodeTooManyQueryValues,
					Field:   field,
					Message: fmt.Sprintf("%d values, at most %d allowed", len(v), e.maxInValues()),
				}
			}
			for _, elem := range v {
				if !isScalar(elem) {
					return nil, nil, &Error{Code: CodeInvalidRequest, Field: field, Message: "membership values must be scalars"}
				}
			}
			if len(v) == 0 {
				preds = append(preds, docstore.In{Field: field})
				continue
			}
			preds = append(preds, docstore.In{Field: field, Values: v})
		case map[string]any:
			return nil, nil, &Error{Code: CodeInvalidRequest, Field: field, Message: "object values cannot be queried"}
		default:
			preds = append(preds, docstore.Eq(field, v))
		}
	}

	switch len(preds) {
	case 0:
		return nil, ids, nil
	case 1:
		return preds[0], ids, nil
	default:
		return docstore.AllOf(preds...), ids, nil
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, bool, string, int64, float64:
		return true
	}
	return false
}

// hasEmptyIn reports a membership test with no values, which matches nothing.
func hasEmptyIn(p docstore.Predicate) bool {
	switch pred := p.(type) {
	case docstore.In:
		return len(pred.Values) == 0
	case docstore.And:
		for _, sub := range pred.Predicates {
			if hasEmptyIn(sub) {
				return true
			}
		}
	}
	return false
}

// runQuery reconciles one predicate query against the collection.
func (e *Engine) runQuery(ctx context.Context, scope Scope, pred docstore.Predicate, opts ReadOptions, idField string) ([]Match, error) {
	const op = "query"
	if hasEmptyIn(pred) {
		return nil, nil
	}

	var target int64
	if opts.Version != "" {
		var err error
		if target, err = version.Parse(opts.Version); err != nil {
			return nil, &Error{Code: CodeInvalidVersion, Op: op, Message: fmt.Sprintf("tag %q", opts.Version), Err: err}
		}
	}

	if opts.Version == "" {
		preds := []docstore.Predicate{docstore.Eq(record.FieldHead, true)}
		if pred != nil {
			preds = append(preds, pred)
		}
		docs, err := e.query(ctx, scope, docstore.AllOf(preds...))
		if err != nil {
			return nil, err
		}
		var out []Match
		for _, doc := range docs {
			id, ok := doc.Fields[idField]
			if !ok {
				continue
			}
			out = append(out, Match{ID: id, Revision: Revision{Key: doc.Key, Head: true, Record: doc.Fields}})
		}
		return e.withChanges(ctx, scope, out, opts)
	}

	docs, err := e.query(ctx, scope, pred)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		id        any
		key       string
		version   int64
		timestamp int64
	}
	best := make(map[string]candidate)
	for _, doc := range docs {
		id, ok := doc.Fields[idField]
		if !ok {
			continue
		}
		headKey, err := HeadKey(id)
		if err != nil {
			continue
		}
		v := doc.Fields.Version()
		if v > target {
			continue
		}
		ts := doc.Fields.Timestamp()
		c, seen := best[headKey]
		if !seen || v > c.version || (v == c.version && ts > c.timestamp) {
			best[headKey] = candidate{id: id, key: doc.Key, version: v, timestamp: ts}
		}
	}

	headKeys := make([]string, 0, len(best))
	for k := range best {
		headKeys = append(headKeys, k)
	}
	sort.Strings(headKeys)

	var out []Match
	for _, hk := range headKeys {
		c := best[hk]
		rev, ok, err := e.GetBest(ctx, scope, c.id, opts.Version)
		if err != nil {
			return nil, withOp(err, op)
		}
		if !ok || rev.Key != c.key {
			e.logger.Debug("discarding superseded query match",
				"scope", scope.String(), "key", c.key, "authoritative", rev.Key)
			continue
		}
		out = append(out, Match{ID: c.id, Revision: rev})
	}
	return e.withChanges(ctx, scope, out, opts)
}

// query runs a store query and maps its errors.
func (e *Engine) query(ctx context.Context, scope Scope, pred docstore.Predicate) ([]docstore.Document, error) {
	const op = "query"
	docs, err := e.store.Query(ctx, scope.Collection(), pred)
	if errors.Is(err, docstore.ErrTooManyValues) {
		return nil, &Error{Code: CodeTooManyQueryValues, Op: op, Err: err}
	}
	if err != nil {
		return nil, storageError(op, "", err)
	}
	return docs, nil
}

func (e *Engine) withChanges(ctx context.Context, scope Scope, matches []Match, opts ReadOptions) ([]Match, error) {
	if !opts.Changes {
		return matches, nil
	}
	for i := range matches {
		changes, err := e.Changes(ctx, scope, matches[i].ID, "")
		if err != nil {
			return nil, withOp(err, "query")
		}
		matches[i].Changes = changes
	}
	return matches, nil
}
