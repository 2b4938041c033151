package record

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Separator joins key path segments.
const Separator = "."

// ErrInvalidPath is returned when a path cannot be written.
var ErrInvalidPath = errors.New("invalid key path")

// Map is a record or any nested mapping inside one.
type Map = map[string]any

// Split breaks a key path into its segments. The empty path has no segments.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, Separator)
}

// Join builds a key path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, Separator)
}

// HasPrefix reports whether prefix names path itself or one of its ancestors,
// comparing whole segments ("weapons" is a prefix of "weapons.0.enc" but not
// of "weaponsmith").
func HasPrefix(path, prefix string) bool {
	if prefix == "" || path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix) && path[len(prefix)] == Separator[0]
}

// Related reports whether a and b overlap: one is the other or an ancestor of it.
func Related(a, b string) bool {
	return HasPrefix(a, b) || HasPrefix(b, a)
}

// Lookup returns the value at path and whether every segment resolved.
// It never panics on missing or mistyped intermediate values.
func Lookup(root Map, path string) (any, bool) {
	if root == nil {
		return nil, false
	}
	var current any = root
	for _, seg := range Split(path) {
		switch node := current.(type) {
		case Map:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Get returns the value at path, or nil when the path does not resolve.
func Get(root Map, path string) any {
	v, _ := Lookup(root, path)
	return v
}

// Assign writes value at path, creating intermediate maps as needed.
// An intermediate scalar is replaced by a new map. Slices are never grown:
// a numeric segment must index an existing element.
func Assign(root Map, path string, value any) error {
	segs := Split(path)
	if len(segs) == 0 || root == nil {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	var parent any = root
	for i, seg := range segs[:len(segs)-1] {
		switch node := parent.(type) {
		case Map:
			next := node[seg]
			switch next.(type) {
			case Map, []any:
			default:
				next = Map{}
				node[seg] = next
			}
			parent = next
		case []any:
			idx, err := index(node, seg)
			if err != nil {
				return fmt.Errorf("%w: %q at segment %d: %v", ErrInvalidPath, path, i, err)
			}
			next := node[idx]
			switch next.(type) {
			case Map, []any:
			default:
				next = Map{}
				node[idx] = next
			}
			parent = next
		}
	}

	last := segs[len(segs)-1]
	switch node := parent.(type) {
	case Map:
		node[last] = value
	case []any:
		idx, err := index(node, last)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidPath, path, err)
		}
		node[idx] = value
	}
	return nil
}

func index(s []any, seg string) (int, error) {
	idx, err := strconv.Atoi(seg)
	if err != nil {
		return 0, fmt.Errorf("segment %q does not index a list", seg)
	}
	if idx < 0 || idx >= len(s) {
		return 0, fmt.Errorf("index %d out of range [0,%d)", idx, len(s))
	}
	return idx, nil
}

// Leaves returns the sorted paths of every scalar inside m, descending into
// nested maps but not into lists.
func Leaves(m Map) []string {
	var out []string
	var walk func(prefix string, node Map)
	walk = func(prefix string, node Map) {
		for key, v := range node {
			path := key
			if prefix != "" {
				path = prefix + Separator + key
			}
			switch child := v.(type) {
			case Map:
				walk(path, child)
			case []any:
			default:
				out = append(out, path)
			}
		}
	}
	walk("", m)
	sort.Strings(out)
	return out
}
