package section

// RowView is the on-screen container of a section's rows.
type RowView interface {
	// Clear removes every row.
	Clear()
	// AppendRow creates a row at the end of the container.
	AppendRow(spec RowSpec) Row
	// Rows returns the rows currently present, in display order.
	Rows() []Row
}

// RowSpec describes a row to create.
type RowSpec struct {
	Mode   Mode
	Fields []Field
	// Values holds the display text of each field.
	Values map[string]string
	// Derived names an extra read-only cell, empty for none.
	Derived string
	// Removable rows carry a remove control that detaches the row.
	Removable bool
}

// Row is one rendered entry.
//
// Value and Show are separate read and write paths: Show updates what is
// displayed without raising change events.
type Row interface {
	// Value returns the current text of a field's control, and false when
	// the row has no such control.
	Value(field string) (string, bool)
	// Show displays text in a field's control.
	Show(field, text string)
	// OnChange registers a handler for user edits.
	OnChange(fn func(field string))
	// OnRemove registers a handler run after the row's remove control has
	// detached it.
	OnRemove(fn func())
}
