package dom

import (
	"log/slog"

	"github.com/arthur-debert/charsheet/charsheet/record"
	"github.com/arthur-debert/charsheet/charsheet/section"
	"github.com/arthur-debert/charsheet/charsheet/state"
)

// Binding ties a control to a record or computed path.
type Binding struct {
	Control string
	Path    string
	Kind    section.Kind
}

// Binder keeps bound controls and the record in step.
//
// State flows to controls through Control.Show, which raises no events, and
// user edits flow back through the control's change handler. A binding whose
// control is missing from the document is skipped.
type Binder struct {
	doc      *Document
	src      section.Source
	out      section.Writer
	logger   *slog.Logger
	bindings []Binding
	unsubs   []func()
}

// NewBinder creates a binder over doc.
func NewBinder(doc *Document, src section.Source, out section.Writer, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{doc: doc, src: src, out: out, logger: logger}
}

// Bind connects a control to path and shows the current value. It reports
// whether the control exists.
func (b *Binder) Bind(binding Binding) bool {
	ctl, ok := b.doc.Control(binding.Control)
	if !ok {
		b.logger.Debug("no control for binding, skipping", "control", binding.Control, "path", binding.Path)
		return false
	}
	b.bindings = append(b.bindings, binding)

	b.unsubs = append(b.unsubs, b.src.Subscribe(binding.Path, func(newValue, _ any, _ string) {
		ctl.Show(format(binding.Kind, newValue))
	}))

	if !ctl.ReadOnly() && !state.IsComputed(binding.Path) {
		ctl.OnChange(func(text string) {
			var value any = text
			if binding.Kind == section.Number {
				value = record.Number(text)
			}
			if err := b.out.Set(binding.Path, value); err != nil {
				b.logger.Warn("writing bound field failed", "path", binding.Path, "error", err)
			}
		})
	}

	ctl.Show(format(binding.Kind, b.src.Get(binding.Path)))
	return true
}

// Bindings returns the active bindings.
func (b *Binder) Bindings() []Binding {
	return append([]Binding(nil), b.bindings...)
}

// SyncAll shows the current value of every bound path.
func (b *Binder) SyncAll() {
	for _, binding := range b.bindings {
		ctl, ok := b.doc.Control(binding.Control)
		if !ok {
			continue
		}
		ctl.Show(format(binding.Kind, b.src.Get(binding.Path)))
	}
}

// Close removes the binder's subscriptions.
func (b *Binder) Close() {
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil
}

func format(kind section.Kind, v any) string {
	if kind == section.Number {
		return record.Text(record.Number(v))
	}
	return record.Text(v)
}
