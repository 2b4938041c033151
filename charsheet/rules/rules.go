// Package rules holds the static game data the sheet is configured with:
// characteristics, the basic skill table, the repeatable sections and the
// default character. It also declares the computed properties derived from
// that data.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/arthur-debert/charsheet/charsheet/record"
	"github.com/arthur-debert/charsheet/charsheet/section"
	"gopkg.in/yaml.v3"
)

//go:embed wfrp4e.yaml
var builtin []byte

// ErrUnknownCharacteristic is returned for an abbreviation that names no
// characteristic.
var ErrUnknownCharacteristic = errors.New("unknown characteristic")

// Characteristic is one of the primary attributes.
type Characteristic struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
}

// Skill is a row of the basic skill table.
type Skill struct {
	Name           string `yaml:"name"`
	Characteristic string `yaml:"characteristic"`
}

// FieldDef is the YAML form of a section field.
type FieldDef struct {
	Name         string   `yaml:"name"`
	Label        string   `yaml:"label"`
	Kind         string   `yaml:"kind"`
	Default      any      `yaml:"default"`
	Choices      []string `yaml:"choices"`
	ViewEditable bool     `yaml:"viewEditable"`
}

// SectionDef is the YAML form of a repeatable section.
type SectionDef struct {
	Name    string     `yaml:"name"`
	Path    string     `yaml:"path"`
	Derived string     `yaml:"derived"`
	Live    bool       `yaml:"live"`
	Fields  []FieldDef `yaml:"fields"`
}

// Rules is a complete rules configuration.
type Rules struct {
	Characteristics []Characteristic `yaml:"characteristics"`
	BasicSkills     []Skill          `yaml:"basicSkills"`
	Sections        []SectionDef     `yaml:"sections"`
	Defaults        map[string]any   `yaml:"defaults"`
}

// Load returns the built-in rules.
func Load() (*Rules, error) {
	return Parse(builtin)
}

// LoadFile reads rules from a YAML file.
func LoadFile(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML rules.
func Parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.Defaults, _ = record.Normalize(r.Defaults).(record.Map)
	if r.Defaults == nil {
		r.Defaults = record.Map{}
	}
	return &r, nil
}

// Validate checks that the rules are internally consistent.
func (r *Rules) Validate() error {
	if len(r.Characteristics) == 0 {
		return errors.New("rules: no characteristics")
	}
	seen := make(map[string]bool)
	for _, c := range r.Characteristics {
		if c.Key == "" {
			return errors.New("rules: characteristic without key")
		}
		if seen[c.Key] {
			return fmt.Errorf("rules: duplicate characteristic %q", c.Key)
		}
		seen[c.Key] = true
	}
	for _, s := range r.BasicSkills {
		if _, err := r.CharacteristicKey(s.Characteristic); err != nil {
			return fmt.Errorf("rules: skill %q: %w", s.Name, err)
		}
	}
	names := make(map[string]bool)
	for _, def := range r.Sections {
		if def.Name == "" || def.Path == "" {
			return errors.New("rules: section needs a name and a path")
		}
		if names[def.Name] {
			return fmt.Errorf("rules: duplicate section %q", def.Name)
		}
		names[def.Name] = true
		if _, err := def.Spec(); err != nil {
			return err
		}
	}
	return nil
}

// CharacteristicKey resolves an abbreviation such as "Ag", "AG" or "ag" to
// its characteristic key.
func (r *Rules) CharacteristicKey(abbr string) (string, error) {
	want := strings.ToLower(strings.TrimSpace(abbr))
	for _, c := range r.Characteristics {
		if c.Key == want || strings.ToLower(c.Label) == want {
			return c.Key, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCharacteristic, abbr)
}

// DefaultRecord returns a fresh all-defaults character.
func (r *Rules) DefaultRecord() record.Map {
	return record.CloneMap(r.Defaults)
}

// Specs converts every section definition.
func (r *Rules) Specs() []section.Spec {
	specs := make([]section.Spec, 0, len(r.Sections))
	for _, def := range r.Sections {
		spec, err := def.Spec()
		if err != nil {
			// Validate has already rejected these.
			continue
		}
		specs = append(specs, spec)
	}
	return specs
}

// Spec converts the definition to a section spec.
func (d SectionDef) Spec() (section.Spec, error) {
	spec := section.Spec{
		Name:    d.Name,
		Path:    d.Path,
		Derived: d.Derived,
		Live:    d.Live,
	}
	for _, fd := range d.Fields {
		kind, err := section.ParseKind(fd.Kind)
		if err != nil {
			return section.Spec{}, fmt.Errorf("rules: section %q field %q: %w", d.Name, fd.Name, err)
		}
		spec.Fields = append(spec.Fields, section.Field{
			Name:         fd.Name,
			Label:        fd.Label,
			Kind:         kind,
			Default:      record.Normalize(fd.Default),
			Choices:      fd.Choices,
			ViewEditable: fd.ViewEditable,
		})
	}
	return spec, nil
}

var slugStrip = regexp.MustCompile(`[()]`)

// SkillSlug turns a skill name into the key used for its computed total:
// "Melee (Basic)" becomes "melee-basic".
func SkillSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	return slugStrip.ReplaceAllString(slug, "")
}

// CurrentKey is the computed key of a characteristic's current value.
func CurrentKey(char string) string {
	return "current" + strings.ToUpper(char)
}
