// Package state holds the live character record and the values derived from it.
//
// Store is the single source of truth for the record. It is addressed by key
// paths, notifies subscribers of the exact path that changed, and can buffer
// notifications inside Batch so that dependents observe one consistent state.
//
// Engine keeps computed properties: named values that are pure functions of
// the record, each declared with the paths it depends on. Computed values live
// in a side table, never in the record, and are addressed with the pseudo-path
// "_computed.<key>". Engine also acts as the read/subscribe facade over both
// namespaces, so display code can depend on raw and computed paths alike.
//
// Everything in this package runs on the caller's goroutine. The only
// concurrent access expected is Store.Snapshot from a save timer, which the
// store's lock manager makes safe.
package state
