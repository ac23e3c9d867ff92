// Package record defines AnnotationRecord, the generic field map stored for
// every annotation, and its serialization.
//
// A Record maps field names to JSON-compatible values. After decoding,
// values are always normalized to one of:
//
//	nil, bool, string, int64, float64, []any, map[string]any
//
// Integers never pass through float64, so ids beyond 2^53 survive a round
// trip through storage.
//
// # Reserved fields
//
// Field names starting with "_" are reserved for the store. Head records
// carry all six system fields; archived records carry only the first four:
//
//	_version            encoded version (see package version)
//	_timestamp          unix nanoseconds when this record was written
//	_user               writer identity
//	_head               true for the Head record of an id
//	_archived_versions  Head only: prior versions, strictly descending
//	_archived_keys      Head only: storage keys index-aligned with versions
//
// # Canonical JSON
//
// MarshalCanonical produces deterministic JSON: object keys ordered by
// UTF-16 code units, strings NFC-normalized, no HTML escaping. Stored
// documents and golden snapshots both use it.
package record
