// Package sqlitestore implements docstore.Store on a single SQLite table.
//
// Every document is one row of (collection, key, body) where body is the
// canonical JSON encoding of the record. Predicates compile to
// json_extract comparisons, so queries run inside SQLite rather than as
// scans in Go.
//
// Transactions run on a single connection with BEGIN IMMEDIATE, which
// serializes writers. SQLITE_BUSY and SQLITE_LOCKED from other processes
// sharing the file are retried up to the configured attempt budget.
package sqlitestore
