package annotations

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/annostore/internal/docstore"
	"github.com/roach88/annostore/internal/record"
	"github.com/roach88/annostore/internal/version"
)

// WriteOptions are the per-request write parameters.
type WriteOptions struct {
	// IDField names the payload field holding the id. Empty means the
	// engine default ("bodyid").
	IDField string

	// Version is the target version tag. Empty means the current Head
	// version, an in-place update.
	Version string

	// Conditional fields are dropped from the payload when the Head
	// already holds a non-empty value for them.
	Conditional []string

	// Replace drops Head fields absent from the payload instead of
	// merging.
	Replace bool

	// User identifies the writer.
	User string
}

// Outcome says where a write landed.
type Outcome string

const (
	// OutcomeCreated is the first write for an id.
	OutcomeCreated Outcome = "create"

	// OutcomeHead promoted the payload to Head and archived the old Head.
	OutcomeHead Outcome = "head"

	// OutcomeArchived inserted the payload into the chain below the Head.
	OutcomeArchived Outcome = "archive"
)

// WriteResult describes a committed write.
type WriteResult struct {
	ID      any
	Key     string
	Version int64
	Outcome Outcome
}

// Write stores payload for the id it carries.
//
// The payload must contain the id field and no reserved ("_"-prefixed)
// fields. The transaction function only touches the Tx handle; the
// archive key and timestamp are fixed before it runs so a retried
// attempt writes the same documents.
func (e *Engine) Write(ctx context.Context, scope Scope, payload record.Record, opts WriteOptions) (WriteResult, error) {
	const op = "write"
	if err := scope.Validate(); err != nil {
		return WriteResult{}, withOp(err, op)
	}

	idField := e.resolveIDField(opts.IDField)
	incoming, id, err := e.validatePayload(payload, idField)
	if err != nil {
		return WriteResult{}, err
	}
	idStr, _ := FormatID(id)
	headKey, _ := HeadKey(id)

	var target int64
	hasTarget := opts.Version != ""
	if hasTarget {
		target, err = version.Parse(opts.Version)
		if err != nil {
			return WriteResult{}, &Error{Code: CodeInvalidVersion, Op: op, ID: idStr, Message: fmt.Sprintf("tag %q", opts.Version), Err: err}
		}
	}

	coll := scope.Collection()
	archiveKey := e.store.NewKey(coll)
	now := e.clock.Now()

	var result WriteResult
	err = e.store.Transact(ctx, func(tx docstore.Tx) error {
		head, err := tx.Get(coll, headKey)
		if errors.Is(err, docstore.ErrNotFound) {
			doc := stamp(incoming.Clone(), target, now, opts.User, true)
			doc.SetChain(nil, nil)
			result = WriteResult{ID: id, Key: headKey, Version: target, Outcome: OutcomeCreated}
			return tx.Set(coll, headKey, doc)
		}
		if err != nil {
			return err
		}

		versions, keys, err := chainOf(head)
		if err != nil {
			return &Error{Code: CodeChainConsistency, Op: op, ID: idStr, Err: err}
		}

		headVersion := head.Version()
		tv := headVersion
		if hasTarget {
			tv = target
		}

		data := incoming.Clone()
		protected := protectedFields(head, data, opts.Conditional)
		for _, f := range protected {
			delete(data, f)
		}

		if tv >= headVersion {
			archived := head.UserFields()
			stamp(archived, headVersion, head.Timestamp(), head.User(), false)

			var next record.Record
			if opts.Replace {
				next = data
				prior := head.UserFields()
				for _, f := range protected {
					next[f] = prior[f]
				}
			} else {
				next = head.UserFields()
				for k, v := range data {
					next[k] = v
				}
			}
			if prior, ok := head[idField]; ok {
				next[idField] = prior
			}
			stamp(next, tv, now, opts.User, true)
			next.SetChain(
				append([]int64{headVersion}, versions...),
				append([]string{archiveKey}, keys...),
			)

			if err := tx.Set(coll, archiveKey, archived); err != nil {
				return err
			}
			result = WriteResult{ID: id, Key: headKey, Version: tv, Outcome: OutcomeHead}
			return tx.Set(coll, headKey, next)
		}

		i := insertPosition(versions, tv)
		versions = insertAt(versions, i, tv)
		keys = insertAt(keys, i, archiveKey)

		updated := head.Clone()
		updated.SetChain(versions, keys)

		if err := tx.Set(coll, archiveKey, stamp(data, tv, now, opts.User, false)); err != nil {
			return err
		}
		result = WriteResult{ID: id, Key: archiveKey, Version: tv, Outcome: OutcomeArchived}
		return tx.Set(coll, headKey, updated)
	})
	if err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			e.logger.Warn("write conflict", "scope", scope.String(), "id", idStr, "err", err)
			e.metrics.conflict(scope)
			return WriteResult{}, &Error{Code: CodeWriteConflict, Op: op, ID: idStr, Message: "transaction retries exhausted", Err: err}
		}
		return WriteResult{}, storageError(op, idStr, err)
	}

	e.logger.Debug("annotation written",
		"scope", scope.String(),
		"id", idStr,
		"version", result.Version,
		"outcome", string(result.Outcome))
	e.metrics.write(scope, result.Outcome)

	if e.fields != nil {
		if err := e.fields.RecordFields(ctx, scope, incoming.SortedKeys()); err != nil {
			return result, &Error{Code: CodeStorage, Op: op, ID: idStr, Message: "write committed but field registry update failed", Err: err}
		}
	}
	return result, nil
}

// WriteMany writes payloads in order and stops at the first failure.
// Results of the writes that committed are returned alongside the error.
func (e *Engine) WriteMany(ctx context.Context, scope Scope, payloads []record.Record, opts WriteOptions) ([]WriteResult, error) {
	results := make([]WriteResult, 0, len(payloads))
	for i, p := range payloads {
		res, err := e.Write(ctx, scope, p, opts)
		if err != nil {
			// a committed write can still report a field registry failure
			if res.Key != "" {
				results = append(results, res)
			}
			return results, fmt.Errorf("payload %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// validatePayload normalizes the payload and extracts its id.
func (e *Engine) validatePayload(payload record.Record, idField string) (record.Record, any, error) {
	const op = "write"
	if reserved := payload.ReservedFields(); len(reserved) > 0 {
		return nil, nil, &Error{
			Code:    CodeReservedFieldConflict,
			Op:      op,
			Field:   reserved[0],
			Message: "payload contains reserved field",
		}
	}

	raw, ok := payload[idField]
	if !ok || raw == nil {
		return nil, nil, &Error{Code: CodeMissingIDField, Op: op, Field: idField, Message: "payload has no id"}
	}

	normalized, err := record.Normalize(map[string]any(payload))
	if err != nil {
		return nil, nil, &Error{Code: CodeInvalidRequest, Op: op, Message: err.Error()}
	}
	incoming := record.Record(normalized.(map[string]any))

	id, err := normalizeID(incoming[idField])
	if err != nil {
		return nil, nil, withField(withOp(err, op), idField)
	}
	incoming[idField] = id
	return incoming, id, nil
}

// stamp sets the system fields shared by Head and Archived records.
func stamp(doc record.Record, ver, ts int64, user string, head bool) record.Record {
	doc[record.FieldVersion] = ver
	doc[record.FieldTimestamp] = ts
	doc[record.FieldUser] = user
	doc[record.FieldHead] = head
	return doc
}

// protectedFields lists conditional fields present in data that the Head
// already holds with a non-empty value.
func protectedFields(head, data record.Record, conditional []string) []string {
	var out []string
	for _, f := range conditional {
		if _, incoming := data[f]; !incoming {
			continue
		}
		if v, ok := head[f]; ok && !record.IsEmpty(v) {
			out = append(out, f)
		}
	}
	return out
}

// chainOf reads and checks the chain arrays of a Head record.
func chainOf(head record.Record) ([]int64, []string, error) {
	versions, err := head.ArchivedVersions()
	if err != nil {
		return nil, nil, err
	}
	keys, err := head.ArchivedKeys()
	if err != nil {
		return nil, nil, err
	}
	if len(versions) != len(keys) {
		return nil, nil, fmt.Errorf("chain length mismatch: %d versions, %d keys", len(versions), len(keys))
	}
	return versions, keys, nil
}

// insertPosition returns the first index whose version is <= v, or
// len(versions) when every entry is newer.
func insertPosition(versions []int64, v int64) int {
	for i, existing := range versions {
		if existing <= v {
			return i
		}
	}
	return len(versions)
}

func insertAt[T any](s []T, i int, v T) []T {
	out := make([]T, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, v)
	return append(out, s[i:]...)
}

func withOp(err error, op string) error {
	var e *Error
	if errors.As(err, &e) && e.Op == "" {
		cp := *e
		cp.Op = op
		return &cp
	}
	return err
}

func withField(err error, field string) error {
	var e *Error
	if errors.As(err, &e) && e.Field == "" {
		cp := *e
		cp.Field = field
		return &cp
	}
	return err
}
