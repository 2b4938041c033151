package dom

import (
	"fmt"

	"github.com/arthur-debert/charsheet/charsheet/section"
	"github.com/google/uuid"
)

// Container is the element holding a section's rows.
type Container struct {
	id   string
	rows []*Row
}

// ID returns the container's element id.
func (c *Container) ID() string { return c.id }

// Clear implements section.RowView.
func (c *Container) Clear() {
	for _, r := range c.rows {
		r.container = nil
	}
	c.rows = nil
}

// AppendRow implements section.RowView.
func (c *Container) AppendRow(spec section.RowSpec) section.Row {
	r := &Row{
		id:        uuid.NewString(),
		container: c,
		cells:     make(map[string]*Control, len(spec.Fields)+1),
		removable: spec.Removable,
	}
	for _, f := range spec.Fields {
		cell := &Control{
			id:       r.id + "." + f.Name,
			value:    spec.Values[f.Name],
			readOnly: !f.EditableIn(spec.Mode),
		}
		name := f.Name
		cell.OnChange(func(string) { r.changed(name) })
		r.cells[f.Name] = cell
		r.order = append(r.order, f.Name)
	}
	if spec.Derived != "" {
		if _, exists := r.cells[spec.Derived]; !exists {
			r.cells[spec.Derived] = &Control{id: r.id + "." + spec.Derived, readOnly: true}
			r.order = append(r.order, spec.Derived)
		}
	}
	c.rows = append(c.rows, r)
	return r
}

// Rows implements section.RowView.
func (c *Container) Rows() []section.Row {
	out := make([]section.Row, len(c.rows))
	for i, r := range c.rows {
		out[i] = r
	}
	return out
}

// Len returns the number of rows.
func (c *Container) Len() int { return len(c.rows) }

// RowAt returns the row at index i.
func (c *Container) RowAt(i int) (*Row, error) {
	if i < 0 || i >= len(c.rows) {
		return nil, fmt.Errorf("row %d of %s: %w", i, c.id, ErrNoControl)
	}
	return c.rows[i], nil
}

func (c *Container) detach(r *Row) {
	for i, row := range c.rows {
		if row == r {
			c.rows = append(c.rows[:i:i], c.rows[i+1:]...)
			return
		}
	}
}

// Row is one rendered entry of a section.
type Row struct {
	id        string
	container *Container
	cells     map[string]*Control
	order     []string
	removable bool
	onChange  []func(field string)
	onRemove  []func()
}

// ID returns the row's element id.
func (r *Row) ID() string { return r.id }

// Cells returns the row's cell names in display order.
func (r *Row) Cells() []string { return append([]string(nil), r.order...) }

// Cell returns the control of a cell.
func (r *Row) Cell(field string) (*Control, bool) {
	c, ok := r.cells[field]
	return c, ok
}

// Value implements section.Row.
func (r *Row) Value(field string) (string, bool) {
	c, ok := r.cells[field]
	if !ok {
		return "", false
	}
	return c.Value(), true
}

// Show implements section.Row.
func (r *Row) Show(field, text string) {
	if c, ok := r.cells[field]; ok {
		c.Show(text)
	}
}

// OnChange implements section.Row.
func (r *Row) OnChange(fn func(field string)) {
	r.onChange = append(r.onChange, fn)
}

// OnRemove implements section.Row.
func (r *Row) OnRemove(fn func()) {
	r.onRemove = append(r.onRemove, fn)
}

// Removable reports whether the row has a remove control.
func (r *Row) Removable() bool { return r.removable }

// Input simulates the user editing a cell.
func (r *Row) Input(field, text string) error {
	c, ok := r.cells[field]
	if !ok {
		return fmt.Errorf("cell %q: %w", field, ErrNoControl)
	}
	return c.Input(text)
}

// Remove simulates pressing the row's remove control: the row leaves its
// container, then the remove handlers run.
func (r *Row) Remove() error {
	if !r.removable {
		return fmt.Errorf("row %s has no remove control: %w", r.id, ErrNoControl)
	}
	if r.container != nil {
		r.container.detach(r)
		r.container = nil
	}
	for _, fn := range r.onRemove {
		fn()
	}
	return nil
}

func (r *Row) changed(field string) {
	for _, fn := range r.onChange {
		fn(field)
	}
}
