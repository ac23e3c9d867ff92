package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/annostore/internal/annotations"
	"github.com/roach88/annostore/internal/docstore"
	"github.com/roach88/annostore/internal/docstore/badgerstore"
	"github.com/roach88/annostore/internal/docstore/sqlitestore"
	"github.com/roach88/annostore/internal/record"
	"github.com/roach88/annostore/internal/testutil"
	"github.com/roach88/annostore/internal/version"
)

// Harness executes the steps of one scenario against one engine.
type Harness struct {
	engine *annotations.Engine
	scope  annotations.Scope
	seq    int64
}

// Run executes a scenario in a fresh store and returns the result.
//
// The returned error reports infrastructure failures only. Failed
// expectations and assertions are listed in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, cleanup, err := openStore(scenario.Backend, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer cleanup()

	opts := []annotations.Option{
		annotations.WithClock(testutil.NewDeterministicClock()),
		annotations.WithLogger(logger),
	}
	if scenario.IDField != "" {
		opts = append(opts, annotations.WithDefaultIDField(scenario.IDField))
	}
	if scenario.MaxQueryValues > 0 {
		opts = append(opts, annotations.WithMaxQueryValues(scenario.MaxQueryValues))
	}

	h := &Harness{
		engine: annotations.New(store, opts...),
		scope:  scopeOf(scenario),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		h.execute(ctx, i, step, result)
	}
	for i, a := range scenario.Assertions {
		if err := h.evaluate(ctx, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d] (%s): %v", i, a.Type, err))
		}
	}
	return result, nil
}

func scopeOf(s *Scenario) annotations.Scope {
	scope := annotations.Scope{Dataset: s.Dataset, Kind: s.Kind}
	if scope.Dataset == "" {
		scope.Dataset = "test"
	}
	if scope.Kind == "" {
		scope.Kind = "neurons"
	}
	return scope
}

// openStore opens an isolated store whose archive keys are arch-0001,
// arch-0002, and so on.
func openStore(backend string, logger *slog.Logger) (docstore.Store, func(), error) {
	keys := testutil.NewSequentialKeys("arch")
	if backend == "sqlite" {
		dir, err := os.MkdirTemp("", "annostore-harness-")
		if err != nil {
			return nil, nil, err
		}
		s, err := sqlitestore.Open(filepath.Join(dir, "scenario.db"),
			sqlitestore.WithKeyGenerator(keys),
			sqlitestore.WithLogger(logger))
		if err != nil {
			os.RemoveAll(dir)
			return nil, nil, err
		}
		return s, func() {
			s.Close()
			os.RemoveAll(dir)
		}, nil
	}

	cfg := badgerstore.InMemoryConfig()
	cfg.Keys = keys
	cfg.Logger = logger
	s, err := badgerstore.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { s.Close() }, nil
}

func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) {
	h.seq++
	event := TraceEvent{Seq: h.seq, Op: step.Op}
	var selected record.Record
	var err error

	switch step.Op {
	case OpWrite:
		selected, err = h.write(ctx, step, &event)
	case OpGet:
		selected, err = h.get(ctx, step, &event)
	case OpFetch:
		err = h.fetch(ctx, step, &event)
	case OpQuery:
		err = h.query(ctx, step, &event)
	case OpChanges:
		err = h.changes(ctx, step, &event)
	case OpDelete:
		err = h.delete(ctx, step, &event)
	default:
		err = fmt.Errorf("unknown op %q", step.Op)
	}
	if err != nil {
		event.Error = string(annotations.CodeOf(err))
		if event.Error == "" {
			event.Error = "ERROR"
		}
	}
	result.Trace = append(result.Trace, event)

	for _, msg := range checkExpect(step.Expect, event, selected, err) {
		result.AddError(fmt.Sprintf("steps[%d] (%s): %s", index, step.Op, msg))
	}
}

func (h *Harness) write(ctx context.Context, step Step, event *TraceEvent) (record.Record, error) {
	payload, err := record.Normalize(step.Payload)
	if err != nil {
		return nil, err
	}
	res, err := h.engine.Write(ctx, h.scope, record.Record(payload.(map[string]any)), annotations.WriteOptions{
		Version:     step.Version,
		Conditional: step.Conditional,
		Replace:     step.Replace,
		User:        step.User,
	})
	if err != nil {
		event.ID = normalized(step.Payload[h.engine.IDField()])
		return nil, err
	}
	event.ID = res.ID
	event.Outcome = string(res.Outcome)
	event.Version = version.Format(res.Version)
	event.Key = res.Key

	head, err := h.engine.Head(ctx, h.scope, res.ID)
	if err != nil {
		return nil, err
	}
	return head.Public(), nil
}

func (h *Harness) get(ctx context.Context, step Step, event *TraceEvent) (record.Record, error) {
	event.ID = normalized(step.ID)
	rev, found, err := h.engine.GetBest(ctx, h.scope, event.ID, step.Version)
	if err != nil {
		return nil, err
	}
	event.Found = &found
	if !found {
		return nil, nil
	}
	event.Version = version.Format(rev.Version())
	event.Key = rev.Key
	return rev.Public(), nil
}

func (h *Harness) fetch(ctx context.Context, step Step, event *TraceEvent) error {
	ids := make([]any, len(step.IDs))
	for i, id := range step.IDs {
		ids[i] = normalized(id)
	}
	matches, err := h.engine.Fetch(ctx, h.scope, ids, annotations.ReadOptions{Version: step.Version})
	if err != nil {
		return err
	}
	event.IDs = matchIDs(matches)
	return nil
}

func (h *Harness) query(ctx context.Context, step Step, event *TraceEvent) error {
	where, err := record.Normalize(step.Where)
	if err != nil {
		return err
	}
	matches, err := h.engine.Query(ctx, h.scope, where.(map[string]any), annotations.ReadOptions{Version: step.Version})
	if err != nil {
		return err
	}
	event.IDs = matchIDs(matches)
	return nil
}

func (h *Harness) changes(ctx context.Context, step Step, event *TraceEvent) error {
	event.ID = normalized(step.ID)
	revs, err := h.engine.Changes(ctx, h.scope, event.ID, "")
	if err != nil {
		return err
	}
	event.Versions = revisionVersions(revs)
	return nil
}

func (h *Harness) delete(ctx context.Context, step Step, event *TraceEvent) error {
	event.ID = normalized(step.ID)
	n, err := h.engine.Delete(ctx, h.scope, event.ID)
	event.Deleted = n
	return err
}

func matchIDs(matches []annotations.Match) []any {
	ids := make([]any, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return ids
}

func revisionVersions(revs []annotations.Revision) []string {
	out := make([]string, len(revs))
	for i, r := range revs {
		out[i] = version.Format(r.Version())
	}
	return out
}

// normalized converts YAML-decoded values into the record value set.
// Values that cannot be normalized are passed through for the engine to
// reject.
func normalized(v any) any {
	n, err := record.Normalize(v)
	if err != nil {
		return v
	}
	return n
}
