package annotations

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/annostore/internal/docstore"
	"github.com/roach88/annostore/internal/version"
)

// Head returns the current Head record of id.
func (e *Engine) Head(ctx context.Context, scope Scope, id any) (Revision, error) {
	return e.head(ctx, scope, id, "get")
}

func (e *Engine) head(ctx context.Context, scope Scope, id any, op string) (Revision, error) {
	if err := scope.Validate(); err != nil {
		return Revision{}, withOp(err, op)
	}
	nid, err := normalizeID(id)
	if err != nil {
		return Revision{}, withOp(err, op)
	}
	idStr, _ := FormatID(nid)
	key, _ := HeadKey(nid)

	doc, err := e.store.Get(ctx, scope.Collection(), key)
	if errors.Is(err, docstore.ErrNotFound) {
		return Revision{}, &Error{Code: CodeNotFound, Op: op, ID: idStr, Message: "no annotation in " + scope.String()}
	}
	if err != nil {
		return Revision{}, storageError(op, idStr, err)
	}
	return Revision{Key: key, Head: true, Record: doc}, nil
}

// GetBest returns the authoritative record of id at the version named by
// tag: the Head for an empty tag or any version at or above the Head,
// otherwise the newest archived state at or below it.
//
// The bool result is false when the requested version predates every
// known state of the id. That is not an error. Unknown ids are NOT_FOUND.
func (e *Engine) GetBest(ctx context.Context, scope Scope, id any, tag string) (Revision, bool, error) {
	const op = "get"
	var v int64
	if tag != "" {
		var err error
		if v, err = version.Parse(tag); err != nil {
			return Revision{}, false, &Error{Code: CodeInvalidVersion, Op: op, Message: fmt.Sprintf("tag %q", tag), Err: err}
		}
	}

	head, err := e.head(ctx, scope, id, op)
	if err != nil {
		return Revision{}, false, err
	}
	if tag == "" || v >= head.Version() {
		return head, true, nil
	}

	idStr := idString(id)
	versions, keys, err := chainOf(head.Record)
	if err != nil {
		return Revision{}, false, &Error{Code: CodeChainConsistency, Op: op, ID: idStr, Err: err}
	}
	for i, archived := range versions {
		if archived <= v {
			rev, err := e.archived(ctx, scope, keys[i], op, idStr)
			if err != nil {
				return Revision{}, false, err
			}
			return rev, true, nil
		}
	}
	return Revision{}, false, nil
}

// Changes returns the history of id starting at fromKey: the Head (when
// fromKey is empty or the Head key) followed by every archived record from
// that position to the end of the chain. Each call re-reads the store.
func (e *Engine) Changes(ctx context.Context, scope Scope, id any, fromKey string) ([]Revision, error) {
	const op = "changes"
	head, err := e.head(ctx, scope, id, op)
	if err != nil {
		return nil, err
	}
	idStr := idString(id)

	_, keys, err := chainOf(head.Record)
	if err != nil {
		return nil, &Error{Code: CodeChainConsistency, Op: op, ID: idStr, Err: err}
	}

	var out []Revision
	start := 0
	if fromKey == "" || fromKey == head.Key {
		out = append(out, head)
	} else {
		start = -1
		for i, k := range keys {
			if k == fromKey {
				start = i
				break
			}
		}
		if start < 0 {
			return nil, &Error{Code: CodeChainConsistency, Op: op, ID: idStr, Message: fmt.Sprintf("key %q is not in the chain", fromKey)}
		}
	}

	for _, k := range keys[start:] {
		rev, err := e.archived(ctx, scope, k, op, idStr)
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, nil
}

// archived fetches a chain entry. A dangling key is a consistency error.
func (e *Engine) archived(ctx context.Context, scope Scope, key, op, idStr string) (Revision, error) {
	doc, err := e.store.Get(ctx, scope.Collection(), key)
	if errors.Is(err, docstore.ErrNotFound) {
		return Revision{}, &Error{Code: CodeChainConsistency, Op: op, ID: idStr, Message: fmt.Sprintf("archived key %q does not resolve", key)}
	}
	if err != nil {
		return Revision{}, storageError(op, idStr, err)
	}
	return Revision{Key: key, Record: doc}, nil
}

// idString formats an id already accepted by normalizeID.
func idString(id any) string {
	nid, err := normalizeID(id)
	if err != nil {
		return fmt.Sprint(id)
	}
	s, _ := FormatID(nid)
	return s
}
