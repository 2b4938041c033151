package dom

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrReadOnly is returned when input is sent to a read-only control.
	ErrReadOnly = errors.New("control is read-only")
	// ErrNoControl is returned when a control or cell does not exist.
	ErrNoControl = errors.New("no such control")
)

// Control is a single input element.
type Control struct {
	id       string
	value    string
	readOnly bool
	handlers []func(value string)
}

// ID returns the control's element id.
func (c *Control) ID() string { return c.id }

// ReadOnly reports whether the control accepts user input.
func (c *Control) ReadOnly() bool { return c.readOnly }

// Value returns the displayed text.
func (c *Control) Value() string { return c.value }

// Show sets the displayed text without raising change events.
func (c *Control) Show(text string) { c.value = text }

// OnChange registers a handler for user edits.
func (c *Control) OnChange(fn func(value string)) {
	c.handlers = append(c.handlers, fn)
}

// Input simulates the user typing text into the control.
func (c *Control) Input(text string) error {
	if c.readOnly {
		return fmt.Errorf("%s: %w", c.id, ErrReadOnly)
	}
	c.value = text
	for _, fn := range c.handlers {
		fn(text)
	}
	return nil
}

// Document holds the controls and section containers of one sheet.
type Document struct {
	mu         sync.Mutex
	controls   map[string]*Control
	containers map[string]*Container
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{
		controls:   make(map[string]*Control),
		containers: make(map[string]*Container),
	}
}

// AddControl creates a control, or returns the existing one with that id.
func (d *Document) AddControl(id string, readOnly bool) *Control {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.controls[id]; ok {
		return c
	}
	c := &Control{id: id, readOnly: readOnly}
	d.controls[id] = c
	return c
}

// Control looks up a control by id.
func (d *Document) Control(id string) (*Control, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.controls[id]
	return c, ok
}

// ControlIDs returns every control id in sorted order.
func (d *Document) ControlIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.controls))
	for id := range d.controls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Container returns the container with id, creating it on first use.
func (d *Document) Container(id string) *Container {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.containers[id]; ok {
		return c
	}
	c := &Container{id: id}
	d.containers[id] = c
	return c
}
