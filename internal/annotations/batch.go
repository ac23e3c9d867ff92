package annotations

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/annostore/internal/docstore"
)

// maxConcurrentChunks bounds in-flight chunk queries per request.
const maxConcurrentChunks = 8

// runOnIDs runs a query restricted to ids in chunks no larger than the
// membership cap and concatenates the results in chunk order.
//
// A chunk of one id uses an equality predicate. Membership tests with a
// single value are unreliable on the reference document database.
// Duplicate ids are collapsed first so chunks are disjoint and each id
// yields at most one match.
func (e *Engine) runOnIDs(ctx context.Context, scope Scope, ids []any, base docstore.Predicate, opts ReadOptions, idField string) ([]Match, error) {
	unique, err := uniqueIDs(ids)
	if err != nil {
		return nil, withField(withOp(err, "query"), idField)
	}
	chunks := chunkIDs(unique, e.maxInValues())
	if len(chunks) == 0 {
		return nil, nil
	}

	results := make([][]Match, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChunks)
	for i, chunk := range chunks {
		g.Go(func() error {
			pred := idPredicate(idField, chunk)
			if base != nil {
				pred = docstore.AllOf(base, pred)
			}
			matches, err := e.runQuery(gctx, scope, pred, opts, idField)
			if err != nil {
				return err
			}
			results[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Match
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// uniqueIDs normalizes ids and drops repeats, keeping first occurrences.
func uniqueIDs(ids []any) ([]any, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]any, 0, len(ids))
	for _, raw := range ids {
		id, err := normalizeID(raw)
		if err != nil {
			return nil, err
		}
		key, _ := HeadKey(id)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, id)
	}
	return out, nil
}

// chunkIDs partitions ids into consecutive slices of at most size.
func chunkIDs(ids []any, size int) [][]any {
	var chunks [][]any
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func idPredicate(field string, ids []any) docstore.Predicate {
	if len(ids) == 1 {
		return docstore.Eq(field, ids[0])
	}
	return docstore.In{Field: field, Values: ids}
}
