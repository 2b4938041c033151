// Package dom is an in-memory control tree standing in for the browser form.
//
// It implements the collaborator contract the sheet core depends on: every
// control has a read path (Value), a write path that never raises change
// events (Show), and a subscription to user edits (OnChange). Input simulates
// a user edit. Containers and rows implement section.RowView and section.Row.
package dom
