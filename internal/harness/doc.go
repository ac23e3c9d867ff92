// Package harness runs annotation-store conformance scenarios.
//
// A scenario is a YAML file listing engine operations against a fresh
// store, each with an optional expectation, followed by assertions on the
// final chain state. Every run produces a trace that can be compared with
// a golden snapshot.
//
// # Scenario Format
//
//	name: promote_then_backfill
//	description: "A late write for an older version lands in the chain"
//	backend: badger            # or sqlite
//	dataset: hemibrain
//	kind: neurons
//	steps:
//	  - op: write
//	    version: v0.2
//	    payload: { bodyid: 7, status: Traced }
//	    expect: { outcome: create }
//	  - op: write
//	    version: v0.1
//	    payload: { bodyid: 7, status: Roughly traced }
//	    expect: { outcome: archive }
//	  - op: get
//	    id: 7
//	    version: v0.1.5
//	    expect: { record: { status: Roughly traced } }
//	assertions:
//	  - type: chain
//	    id: 7
//	    versions: [v0.2.0, v0.1.0]
//
// # Operations
//
//   - write: payload, version, conditional, replace, user, id_field
//   - get: id, version
//   - fetch: ids, version
//   - query: where, version
//   - changes: id
//   - delete: id
//
// # Assertion Types
//
//   - chain: the id's history is ordered newest first, every archived key
//     resolves, and (if given) the versions match
//   - head_version: the Head carries the given version
//   - record: the record selected for a version holds the given fields
//
// # Deterministic Testing
//
// Scenarios run with testutil.DeterministicClock timestamps and
// testutil.SequentialKeys archive keys ("arch-0001", ...), so traces are
// byte-identical across runs and backends.
package harness
