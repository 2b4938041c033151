// Package record models the character record as a JSON-shaped tree.
//
// A record is a Map whose values are nil, bool, float64, string, Map or []any.
// Locations inside a record are addressed by key paths: dot-separated segments
// such as "characteristics.ws.initial" or "weapons.0.enc". Numeric segments
// index into slices when the value at that level is a slice.
//
// Absence is a normal state. Get returns nil for any path that does not
// resolve, and the coercion helpers Number and Text turn absent or loosely
// typed values into the defaults the sheet displays (0 and "").
package record
