// Package charsheet assembles a live character sheet: the record store, the
// computed properties, one controller per repeatable section, the display
// bindings of the scalar fields, and the persistence bridge.
package charsheet

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/arthur-debert/charsheet/charsheet/dom"
	"github.com/arthur-debert/charsheet/charsheet/persist"
	"github.com/arthur-debert/charsheet/charsheet/record"
	"github.com/arthur-debert/charsheet/charsheet/rules"
	"github.com/arthur-debert/charsheet/charsheet/section"
	"github.com/arthur-debert/charsheet/charsheet/state"
)

// Option configures a Sheet.
type Option func(*options)

type options struct {
	rules  *rules.Rules
	doc    *dom.Document
	logger *slog.Logger
	bridge []persist.Option
}

// WithRules sets the game rules. The built-in rules are used otherwise.
func WithRules(r *rules.Rules) Option {
	return func(o *options) {
		o.rules = r
	}
}

// WithDocument renders into an existing document.
func WithDocument(doc *dom.Document) Option {
	return func(o *options) {
		o.doc = doc
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithKey sets the storage key of the record.
func WithKey(key string) Option {
	return func(o *options) {
		o.bridge = append(o.bridge, persist.WithKey(key))
	}
}

// WithDebounce sets the quiet window before a save.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		o.bridge = append(o.bridge, persist.WithDebounce(d))
	}
}

// WithClock sets the clock of the save timer.
func WithClock(c persist.Clock) Option {
	return func(o *options) {
		o.bridge = append(o.bridge, persist.WithClock(c))
	}
}

// Sheet is one open character.
type Sheet struct {
	rules    *rules.Rules
	doc      *dom.Document
	logger   *slog.Logger
	store    *state.Store
	engine   *state.Engine
	bridge   *persist.Bridge
	binder   *dom.Binder
	sections map[string]*section.Controller
	order    []string
	unwatch  func()
	closed   bool
}

// Open loads the character saved in durable, or a fresh one, and builds the
// sheet around it.
func Open(ctx context.Context, durable persist.Durable, opts ...Option) (*Sheet, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.rules == nil {
		r, err := rules.Load()
		if err != nil {
			return nil, err
		}
		o.rules = r
	}
	if o.doc == nil {
		o.doc = dom.NewDocument()
	}

	s := &Sheet{
		rules:    o.rules,
		doc:      o.doc,
		logger:   o.logger,
		sections: make(map[string]*section.Controller),
	}
	s.bridge = persist.New(durable, s.rules.DefaultRecord, append(o.bridge, persist.WithLogger(o.logger))...)
	s.store = state.NewStore(s.bridge.LoadRecord(ctx), state.WithStoreLogger(o.logger))
	s.engine = state.NewEngine(s.store, state.WithEngineLogger(o.logger))
	if err := s.rules.RegisterComputed(s.engine); err != nil {
		s.engine.Close()
		return nil, fmt.Errorf("failed to register computed properties: %w", err)
	}

	s.binder = dom.NewBinder(s.doc, s.engine, s.store, o.logger)
	for _, b := range s.bindings() {
		s.doc.AddControl(b.Control, state.IsComputed(b.Path))
		s.binder.Bind(b)
	}

	for _, spec := range s.rules.Specs() {
		ctrl := section.New(spec, s.doc.Container(spec.Name), s.engine, s.store, section.WithLogger(o.logger))
		ctrl.Render(section.View)
		s.sections[spec.Name] = ctrl
		s.order = append(s.order, spec.Name)
	}

	s.unwatch = s.store.Observe(s.refreshSections)
	s.bridge.Attach(s.store, s.engine)
	s.binder.SyncAll()
	s.logger.Debug("sheet opened", "key", s.bridge.Key(), "sections", len(s.order))
	return s, nil
}

// bindings lists one control per scalar field of the default record, per
// basic skill and per scalar computed property. Control ids are the paths.
func (s *Sheet) bindings() []dom.Binding {
	var out []dom.Binding
	defaults := s.rules.DefaultRecord()
	for _, path := range record.Leaves(defaults) {
		kind := section.Text
		if _, ok := record.Get(defaults, path).(float64); ok {
			kind = section.Number
		}
		out = append(out, dom.Binding{Control: path, Path: path, Kind: kind})
	}
	for _, skill := range s.rules.BasicSkills {
		path := record.Join("skills", skill.Name)
		out = append(out, dom.Binding{Control: path, Path: path, Kind: section.Number})
	}
	for _, key := range s.engine.Keys() {
		v, _ := s.engine.Value(key)
		if _, ok := v.(float64); !ok {
			continue
		}
		path := state.ComputedPath(key)
		out = append(out, dom.Binding{Control: path, Path: path, Kind: section.Number})
	}
	return out
}

// Rules returns the rules the sheet was built with.
func (s *Sheet) Rules() *rules.Rules { return s.rules }

// Document returns the control tree.
func (s *Sheet) Document() *dom.Document { return s.doc }

// Store returns the record store.
func (s *Sheet) Store() *state.Store { return s.store }

// Engine returns the computed property engine.
func (s *Sheet) Engine() *state.Engine { return s.engine }

// Bridge returns the persistence bridge.
func (s *Sheet) Bridge() *persist.Bridge { return s.bridge }

// Get resolves a record or computed path.
func (s *Sheet) Get(path string) any {
	return s.engine.Get(path)
}

// Set writes a record path. Computed paths are read-only.
func (s *Sheet) Set(path string, value any) error {
	if state.IsComputed(path) {
		return fmt.Errorf("%s is computed and cannot be set", path)
	}
	if err := s.store.Set(path, record.Normalize(value)); err != nil {
		return err
	}
	// A write above a bound leaf (a whole sub-map) only notifies its own path.
	s.binder.SyncAll()
	return nil
}

// refreshSections re-renders view-mode sections when a path below their list
// changed. Writes of the list itself reach the controller's own subscription.
// Sections in edit mode keep their rows: what is on screen is committed when
// the section leaves edit mode.
func (s *Sheet) refreshSections(paths []string) {
	for _, name := range s.order {
		ctrl := s.sections[name]
		if ctrl.Mode() != section.View {
			continue
		}
		base := ctrl.Spec().Path
		for _, p := range paths {
			if p != base && record.HasPrefix(p, base) {
				s.logger.Debug("section entry changed, re-rendering", "section", name, "path", p)
				ctrl.Refresh()
				break
			}
		}
	}
}

// Section returns the controller of a repeatable section.
func (s *Sheet) Section(name string) (*section.Controller, error) {
	ctrl, ok := s.sections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", section.ErrUnknownSection, name)
	}
	return ctrl, nil
}

// Sections returns the section names in rules order.
func (s *Sheet) Sections() []string {
	return append([]string(nil), s.order...)
}

// Computed returns the current value of every computed property, by key.
func (s *Sheet) Computed() map[string]any {
	out := make(map[string]any)
	for _, key := range s.engine.Keys() {
		out[key], _ = s.engine.Value(key)
	}
	return out
}

// ComputedKeys returns the computed keys, sorted.
func (s *Sheet) ComputedKeys() []string {
	keys := s.engine.Keys()
	sort.Strings(keys)
	return keys
}

// Export returns the record as indented JSON.
func (s *Sheet) Export() (string, error) {
	return s.bridge.Export()
}

// Import replaces the record with text. Sections re-render from the imported
// lists; no rows are harvested.
func (s *Sheet) Import(text string) error {
	if err := s.bridge.Import(text); err != nil {
		return err
	}
	s.binder.SyncAll()
	return nil
}

// Reset replaces the record with the defaults.
func (s *Sheet) Reset() error {
	if err := s.bridge.Reset(); err != nil {
		return err
	}
	s.binder.SyncAll()
	return nil
}

// Flush writes a pending save immediately.
func (s *Sheet) Flush(ctx context.Context) error {
	return s.bridge.Flush(ctx)
}

// Close commits sections still in edit mode, flushes the pending save and
// detaches every component.
func (s *Sheet) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	for _, name := range s.order {
		ctrl := s.sections[name]
		if ctrl.Mode() == section.Edit {
			if _, err := ctrl.Commit(); err != nil {
				s.logger.Warn("failed to commit section on close", "section", name, "error", err)
			}
		}
	}
	err := s.bridge.Close(ctx)
	s.unwatch()
	for _, name := range s.order {
		s.sections[name].Close()
	}
	s.binder.Close()
	s.engine.Close()
	return err
}
