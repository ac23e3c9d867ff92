package harness

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/annostore/internal/record"
	"github.com/roach88/annostore/internal/version"
)

// checkExpect compares a step's outcome with its expectation and returns
// one message per mismatch.
func checkExpect(exp *Expect, event TraceEvent, selected record.Record, err error) []string {
	if exp == nil {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
		return nil
	}

	if exp.Error != "" {
		if err == nil {
			return []string{fmt.Sprintf("expected error %s, got success", exp.Error)}
		}
		if event.Error != exp.Error {
			return []string{fmt.Sprintf("expected error %s, got %v", exp.Error, err)}
		}
		return nil
	}
	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	var msgs []string
	if exp.Outcome != "" && exp.Outcome != event.Outcome {
		msgs = append(msgs, fmt.Sprintf("outcome: expected %s, got %s", exp.Outcome, event.Outcome))
	}
	if exp.Version != "" {
		if msg := compareVersion(exp.Version, event.Version); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	if exp.Found != nil {
		found := event.Found != nil && *event.Found
		if found != *exp.Found {
			msgs = append(msgs, fmt.Sprintf("found: expected %v, got %v", *exp.Found, found))
		}
	}
	if exp.Record != nil {
		msgs = append(msgs, subsetMismatches(exp.Record, selected)...)
	}
	if exp.IDs != nil {
		want, _ := record.Normalize(exp.IDs)
		if !record.Equal(want, event.IDs) {
			msgs = append(msgs, fmt.Sprintf("ids: expected %v, got %v", exp.IDs, event.IDs))
		}
	}
	if exp.Versions != nil {
		if msg := compareVersions(exp.Versions, event.Versions); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	if exp.Deleted != nil && *exp.Deleted != event.Deleted {
		msgs = append(msgs, fmt.Sprintf("deleted: expected %d, got %d", *exp.Deleted, event.Deleted))
	}
	return msgs
}

// subsetMismatches checks that every expected field is present in got with
// an equal value. A null expectation requires the field to be absent.
func subsetMismatches(want map[string]any, got record.Record) []string {
	if got == nil {
		return []string{"record: expected a record, got none"}
	}
	fields := make([]string, 0, len(want))
	for f := range want {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var msgs []string
	for _, f := range fields {
		w, err := record.Normalize(want[f])
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("record.%s: %v", f, err))
			continue
		}
		g, ok := got[f]
		switch {
		case w == nil && ok:
			msgs = append(msgs, fmt.Sprintf("record.%s: expected absent, got %v", f, g))
		case w != nil && !ok:
			msgs = append(msgs, fmt.Sprintf("record.%s: expected %v, missing", f, w))
		case w != nil && !record.Equal(w, g):
			msgs = append(msgs, fmt.Sprintf("record.%s: expected %v, got %v", f, w, g))
		}
	}
	return msgs
}

// compareVersion compares tags by encoded value, so "v1" equals "v1.0.0".
func compareVersion(want, got string) string {
	w, err := version.Parse(want)
	if err != nil {
		return fmt.Sprintf("version: bad expectation %q: %v", want, err)
	}
	g, err := version.Parse(got)
	if err != nil || g != w {
		return fmt.Sprintf("version: expected %s, got %s", want, got)
	}
	return ""
}

func compareVersions(want, got []string) string {
	if len(want) != len(got) {
		return fmt.Sprintf("versions: expected %v, got %v", want, got)
	}
	for i := range want {
		if compareVersion(want[i], got[i]) != "" {
			return fmt.Sprintf("versions: expected %v, got %v", want, got)
		}
	}
	return ""
}

// evaluate checks one final-state assertion.
func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	id := normalized(a.ID)
	switch a.Type {
	case AssertChain:
		return h.assertChain(ctx, id, a.Versions)
	case AssertHeadVersion:
		head, err := h.engine.Head(ctx, h.scope, id)
		if err != nil {
			return err
		}
		if msg := compareVersion(a.Version, version.Format(head.Version())); msg != "" {
			return fmt.Errorf("%s", msg)
		}
		return nil
	case AssertRecord:
		rev, found, err := h.engine.GetBest(ctx, h.scope, id, a.Version)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no record at or before %q", a.Version)
		}
		if msgs := subsetMismatches(a.Expect, rev.Public()); len(msgs) > 0 {
			return fmt.Errorf("%v", msgs)
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertChain verifies the structural chain invariants of id: the Head
// comes first, archived versions strictly follow in non-increasing order
// below the Head version, and every archived record is marked non-head.
func (h *Harness) assertChain(ctx context.Context, id any, want []string) error {
	revs, err := h.engine.Changes(ctx, h.scope, id, "")
	if err != nil {
		return err
	}
	if len(revs) == 0 || !revs[0].Head {
		return fmt.Errorf("history does not start with the head")
	}
	head := revs[0].Version()
	for i, r := range revs[1:] {
		if r.Head {
			return fmt.Errorf("archived record %s is marked head", r.Key)
		}
		if r.Version() > head {
			return fmt.Errorf("archived %s above head %s", version.Format(r.Version()), version.Format(head))
		}
		if i > 0 && r.Version() > revs[i].Version() {
			return fmt.Errorf("chain not descending at %d: %s after %s", i+1,
				version.Format(r.Version()), version.Format(revs[i].Version()))
		}
		if r.Record.IsHead() {
			return fmt.Errorf("archived record %s has _head true", r.Key)
		}
	}
	if want != nil {
		if msg := compareVersions(want, revisionVersions(revs)); msg != "" {
			return fmt.Errorf("%s", msg)
		}
	}
	return nil
}
