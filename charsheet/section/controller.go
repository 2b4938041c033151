package section

import (
	"log/slog"

	"github.com/arthur-debert/charsheet/charsheet/record"
	"github.com/arthur-debert/charsheet/charsheet/state"
)

// Source reads and watches record and computed paths.
type Source interface {
	Get(path string) any
	Subscribe(path string, cb state.Callback) func()
}

// Writer writes record paths.
type Writer interface {
	Set(path string, value any) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithMode sets the mode the controller starts in. Nothing is rendered
// until Render or SetMode is called.
func WithMode(m Mode) Option {
	return func(c *Controller) {
		c.mode = m
	}
}

// Controller keeps one section's rows and its backing list consistent.
//
// Editability is section-wide: in View mode rows are read-only (apart from
// ViewEditable fields), in Edit mode every field is editable and rows can be
// added and removed. Leaving Edit mode commits the rows first, so switching
// modes never loses what is on screen.
type Controller struct {
	spec   Spec
	view   RowView
	src    Source
	out    Writer
	logger *slog.Logger

	mode    Mode
	busy    bool
	removed int
	unsubs  []func()
}

// New creates a controller and subscribes it to its backing list and derived
// values. An external replacement of the list (an import, say) re-renders the
// section from the record without harvesting the rows.
func New(spec Spec, view RowView, src Source, out Writer, opts ...Option) *Controller {
	if spec.Derived != "" && spec.DerivedField == "" {
		spec.DerivedField = "total"
	}
	c := &Controller{
		spec:   spec,
		view:   view,
		src:    src,
		out:    out,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("section", spec.Name)

	c.unsubs = append(c.unsubs, src.Subscribe(spec.Path, func(_, _ any, _ string) {
		if c.busy {
			return
		}
		c.logger.Debug("section replaced externally, re-rendering")
		c.Refresh()
	}))
	if spec.Derived != "" {
		c.unsubs = append(c.unsubs, src.Subscribe(state.ComputedPath(spec.Derived), func(_, _ any, _ string) {
			c.showDerived()
		}))
	}
	return c
}

// Close detaches the controller from the record.
func (c *Controller) Close() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

// Spec returns the section configuration.
func (c *Controller) Spec() Spec {
	return c.spec
}

// Mode returns the current render mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// Entries returns the backing list as stored in the record.
func (c *Controller) Entries() []record.Map {
	return record.List(c.src.Get(c.spec.Path))
}

// Render clears the view and recreates one row per backing entry in mode.
// Rows are built from the record alone; nothing on screen is harvested.
func (c *Controller) Render(mode Mode) {
	c.busy = true
	defer func() { c.busy = false }()

	c.mode = mode
	c.removed = 0
	c.view.Clear()
	for _, entry := range c.Entries() {
		c.appendRow(entry)
	}
	c.showDerived()
}

// Refresh re-renders the current mode from the record.
func (c *Controller) Refresh() {
	c.Render(c.mode)
}

// SetMode switches to mode. When leaving Edit mode, or re-entering it, the
// rows on screen are committed before the section is re-rendered.
func (c *Controller) SetMode(mode Mode) error {
	if c.mode == Edit {
		if _, err := c.Commit(); err != nil {
			return err
		}
	}
	c.Render(mode)
	return nil
}

// Toggle switches between View and Edit.
func (c *Controller) Toggle() error {
	if c.mode == Edit {
		return c.SetMode(View)
	}
	return c.SetMode(Edit)
}

// AddEntry appends a row built from the field defaults overlaid with
// defaults. It does nothing outside Edit mode, so a stray add trigger cannot
// alter a read-only section. The record is only written at the next commit.
func (c *Controller) AddEntry(defaults record.Map) bool {
	if c.mode != Edit {
		c.logger.Debug("ignoring add outside edit mode")
		return false
	}
	c.busy = true
	defer func() { c.busy = false }()
	c.appendRow(c.spec.Entry(defaults))
	return true
}

// Commit harvests every row into an ordered list and writes it to the
// section path with a single Set.
//
// Blank controls become "" or 0; a row whose fields are all blank is still an
// entry. With no rows on screen the backing list is left untouched, unless the
// rows were removed through their remove controls since the last render: the
// controller only clears data it has seen being removed.
func (c *Controller) Commit() (bool, error) {
	rows := c.view.Rows()
	if len(rows) == 0 && c.removed == 0 {
		return false, nil
	}

	entries := make([]any, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, c.harvest(row))
	}

	c.busy = true
	defer func() { c.busy = false }()
	if err := c.out.Set(c.spec.Path, entries); err != nil {
		c.logger.Error("committing section failed", "error", err)
		return false, err
	}
	c.removed = 0
	return true, nil
}

func (c *Controller) harvest(row Row) record.Map {
	entry := make(record.Map, len(c.spec.Fields))
	for _, f := range c.spec.Fields {
		text, ok := row.Value(f.Name)
		if !ok {
			entry[f.Name] = f.Blank()
			continue
		}
		entry[f.Name] = f.Parse(text)
	}
	return entry
}

func (c *Controller) appendRow(entry record.Map) {
	values := make(map[string]string, len(c.spec.Fields))
	for _, f := range c.spec.Fields {
		v, ok := entry[f.Name]
		if !ok {
			v = f.Blank()
		}
		values[f.Name] = f.Format(v)
	}

	row := c.view.AppendRow(RowSpec{
		Mode:      c.mode,
		Fields:    c.spec.Fields,
		Values:    values,
		Derived:   c.spec.DerivedField,
		Removable: c.mode == Edit,
	})
	row.OnChange(c.onRowChange)
	row.OnRemove(c.onRowRemove)
}

func (c *Controller) onRowChange(field string) {
	if c.busy {
		return
	}
	f, ok := c.spec.Field(field)
	if !ok {
		return
	}
	switch {
	case c.mode == Edit && c.spec.Live:
	case c.mode == View && f.ViewEditable:
	default:
		return
	}
	if _, err := c.Commit(); err != nil {
		c.logger.Warn("live commit failed", "field", field, "error", err)
	}
}

func (c *Controller) onRowRemove() {
	c.removed++
	if c.mode == Edit && c.spec.Live && !c.busy {
		if _, err := c.Commit(); err != nil {
			c.logger.Warn("live commit after remove failed", "error", err)
		}
	}
}

// showDerived writes the derived cell of every row through the
// non-triggering write path.
func (c *Controller) showDerived() {
	if c.spec.Derived == "" {
		return
	}
	values := record.List(c.src.Get(state.ComputedPath(c.spec.Derived)))
	for i, row := range c.view.Rows() {
		text := ""
		if i < len(values) {
			text = record.Text(record.Number(values[i][c.spec.DerivedField]))
		}
		row.Show(c.spec.DerivedField, text)
	}
}
