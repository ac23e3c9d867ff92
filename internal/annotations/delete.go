package annotations

import (
	"context"
)

// Delete removes id entirely: every archived record, then the Head.
// It returns the number of documents removed.
//
// Delete is an administrative operation outside the versioning model and
// is not transactional. A failure part way leaves the Head in place, so
// a retry finds the remaining chain.
func (e *Engine) Delete(ctx context.Context, scope Scope, id any) (int, error) {
	const op = "delete"
	head, err := e.head(ctx, scope, id, op)
	if err != nil {
		return 0, err
	}
	idStr := idString(id)

	_, keys, err := chainOf(head.Record)
	if err != nil {
		return 0, &Error{Code: CodeChainConsistency, Op: op, ID: idStr, Err: err}
	}

	coll := scope.Collection()
	removed := 0
	for _, k := range keys {
		if err := e.store.Delete(ctx, coll, k); err != nil {
			return removed, storageError(op, idStr, err)
		}
		removed++
	}
	if err := e.store.Delete(ctx, coll, head.Key); err != nil {
		return removed, storageError(op, idStr, err)
	}
	removed++

	e.logger.Info("annotation deleted", "scope", scope.String(), "id", idStr, "documents", removed)
	e.metrics.delete(scope)
	return removed, nil
}
