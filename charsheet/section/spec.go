// Package section edits one repeatable list of the character record, such as
// weapons or talents, through a row-based view.
//
// A Controller owns a Spec (the list's path and fields) and a View (the rows
// on screen). It renders the backing list in one of two modes and harvests
// the rows back into the record on commit.
package section

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arthur-debert/charsheet/charsheet/record"
)

// ErrUnknownSection is returned when a section name is not configured.
var ErrUnknownSection = errors.New("unknown section")

// Mode is the render mode of a section.
type Mode int

const (
	// View renders rows read-only.
	View Mode = iota
	// Edit renders rows with editable controls and remove buttons.
	Edit
)

func (m Mode) String() string {
	switch m {
	case View:
		return "view"
	case Edit:
		return "edit"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Kind is the value type of a field.
type Kind int

const (
	Text Kind = iota
	Number
	Choice
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Number:
		return "number"
	case Choice:
		return "choice"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a kind name to a Kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text":
		return Text, nil
	case "number":
		return Number, nil
	case "choice":
		return Choice, nil
	}
	return Text, fmt.Errorf("unknown field kind %q", name)
}

// Field describes one column of a section.
type Field struct {
	Name    string
	Label   string
	Kind    Kind
	Default any
	Choices []string
	// ViewEditable fields stay editable in view mode and commit on change.
	ViewEditable bool
}

// EditableIn reports whether the field has an editable control in mode.
func (f Field) EditableIn(m Mode) bool {
	return m == Edit || f.ViewEditable
}

// Blank returns the value stored for an empty control.
func (f Field) Blank() any {
	switch f.Kind {
	case Number:
		return 0.0
	case Choice:
		if f.Default != nil {
			return record.Text(f.Default)
		}
		if len(f.Choices) > 0 {
			return f.Choices[0]
		}
		return ""
	default:
		return ""
	}
}

// Zero returns the value of the field in a freshly added entry.
func (f Field) Zero() any {
	if f.Default != nil {
		return f.Parse(record.Text(f.Default))
	}
	return f.Blank()
}

// Parse converts the text of a control into the stored value.
func (f Field) Parse(text string) any {
	switch f.Kind {
	case Number:
		return record.Number(text)
	case Choice:
		trimmed := strings.TrimSpace(text)
		for _, c := range f.Choices {
			if strings.EqualFold(c, trimmed) {
				return c
			}
		}
		return f.Blank()
	default:
		return text
	}
}

// Format renders a stored value as control text.
func (f Field) Format(v any) string {
	switch f.Kind {
	case Number:
		return record.Text(record.Number(v))
	default:
		return record.Text(v)
	}
}

// Spec configures a section.
type Spec struct {
	Name   string
	Path   string
	Fields []Field
	// Derived names a computed property whose value is a list aligned with
	// the entries. Its DerivedField is shown in a read-only cell per row.
	Derived      string
	DerivedField string
	// Live sections commit on every edit in edit mode, so derived values
	// follow typing.
	Live bool
}

// Field returns the field called name.
func (s Spec) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Entry builds a new entry from the field defaults overlaid with values.
func (s Spec) Entry(values record.Map) record.Map {
	entry := make(record.Map, len(s.Fields))
	for _, f := range s.Fields {
		entry[f.Name] = f.Zero()
	}
	for k, v := range values {
		if f, ok := s.Field(k); ok {
			entry[k] = f.Parse(record.Text(v))
		}
	}
	return entry
}
