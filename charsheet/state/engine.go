package state

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arthur-debert/charsheet/charsheet/record"
	"github.com/google/go-cmp/cmp"
)

// ComputedPrefix is the path namespace under which computed values are
// addressed. It is never present in the record itself.
const ComputedPrefix = "_computed"

// ErrDuplicateKey is returned when a computed key is registered twice.
var ErrDuplicateKey = errors.New("computed key already registered")

// Reader resolves key paths, including "_computed.<key>" paths.
type Reader interface {
	Get(path string) any
}

// ComputeFunc derives a value from the current record. It must not keep
// state of its own: the engine may call it at any time and expects the same
// result for the same record.
type ComputeFunc func(r Reader) (any, error)

// ComputedPath returns the pseudo-path under which key is addressed.
func ComputedPath(key string) string {
	return ComputedPrefix + record.Separator + key
}

// IsComputed reports whether path addresses the computed namespace.
func IsComputed(path string) bool {
	return record.HasPrefix(path, ComputedPrefix)
}

type entry struct {
	key   string
	path  string
	fn    ComputeFunc
	deps  []string
	value any
	ready bool
}

func (e *entry) dependsOn(path string) bool {
	for _, dep := range e.deps {
		if record.Related(dep, path) {
			return true
		}
	}
	return false
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger used for contained compute failures.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine maintains computed properties over a Store.
//
// When the store commits a change set, every computed entry with a
// dependency related to a changed path (either is a prefix of the other) is
// recomputed. Entries that depend on a recomputed key follow, in dependency
// order, so each entry is evaluated at most once per change set. A recomputed
// value equal to the cached one is not republished.
type Engine struct {
	store     *Store
	logger    *slog.Logger
	entries   map[string]*entry
	ordered   []*entry
	listeners *registry
	unobserve func()
}

// NewEngine creates an engine observing store.
func NewEngine(store *Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:   store,
		logger:  slog.Default(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.listeners = newRegistry(e.logger)
	e.unobserve = store.Observe(e.onChange)
	return e
}

// Close detaches the engine from its store.
func (e *Engine) Close() {
	if e.unobserve != nil {
		e.unobserve()
		e.unobserve = nil
	}
}

// Store returns the store the engine observes.
func (e *Engine) Store() *Store {
	return e.store
}

// Register declares a computed property and computes its initial value.
// Dependencies are record paths or "_computed.<key>" paths of other
// properties.
func (e *Engine) Register(key string, fn ComputeFunc, deps ...string) error {
	if key == "" {
		return fmt.Errorf("register: empty computed key")
	}
	if _, exists := e.entries[key]; exists {
		return fmt.Errorf("register %q: %w", key, ErrDuplicateKey)
	}
	en := &entry{
		key:  key,
		path: ComputedPath(key),
		fn:   fn,
		deps: append([]string(nil), deps...),
	}
	e.entries[key] = en
	e.ordered = append(e.ordered, en)

	e.evaluate(map[*entry]bool{en: true})
	return nil
}

// Value returns the cached value of key and whether key is registered.
func (e *Engine) Value(key string) (any, bool) {
	en, ok := e.entries[key]
	if !ok {
		return nil, false
	}
	return en.value, true
}

// Keys returns the registered keys in registration order.
func (e *Engine) Keys() []string {
	keys := make([]string, len(e.ordered))
	for i, en := range e.ordered {
		keys[i] = en.key
	}
	return keys
}

// Get resolves path against the record, or against the computed table when
// path starts with "_computed.". Paths below a computed key
// ("_computed.advancedSkillTotals.0.total") descend into its value.
func (e *Engine) Get(path string) any {
	if !IsComputed(path) {
		return e.store.Get(path)
	}
	rest := strings.TrimPrefix(path, ComputedPrefix)
	rest = strings.TrimPrefix(rest, record.Separator)
	if en, ok := e.entries[rest]; ok {
		return en.value
	}
	for _, en := range e.ordered {
		if record.HasPrefix(rest, en.key) {
			return descend(en.value, strings.TrimPrefix(rest, en.key+record.Separator))
		}
	}
	return nil
}

// descend resolves sub inside a computed value.
func descend(value any, sub string) any {
	return record.Get(record.Map{"v": value}, record.Join("v", sub))
}

// Subscribe registers cb for path. Computed paths are served by the engine,
// everything else by the store. A path below a computed key is notified when
// the value it resolves to changes.
func (e *Engine) Subscribe(path string, cb Callback) func() {
	if IsComputed(path) {
		return e.listeners.add(path, cb)
	}
	return e.store.Subscribe(path, cb)
}

// RecomputeAll re-evaluates every computed property.
func (e *Engine) RecomputeAll() {
	all := make(map[*entry]bool, len(e.ordered))
	for _, en := range e.ordered {
		all[en] = true
	}
	e.evaluate(all)
}

func (e *Engine) onChange(paths []string) {
	dirty := make(map[*entry]bool)
	for _, en := range e.ordered {
		for _, p := range paths {
			if en.dependsOn(p) {
				dirty[en] = true
				break
			}
		}
	}
	if len(dirty) > 0 {
		e.evaluate(dirty)
	}
}

// evaluate recomputes the directly dirty entries and everything downstream
// of them, in dependency order.
func (e *Engine) evaluate(direct map[*entry]bool) {
	affected := e.downstream(direct)
	order, stuck := e.sort(affected)
	for _, en := range stuck {
		e.logger.Warn("computed dependency cycle, skipping", "key", en.key)
	}

	var changed []string
	for _, en := range order {
		if !direct[en] && !dependsOnAny(en, changed) {
			continue
		}
		if e.recompute(en) {
			changed = append(changed, en.path)
		}
	}
}

func dependsOnAny(en *entry, paths []string) bool {
	for _, p := range paths {
		if en.dependsOn(p) {
			return true
		}
	}
	return false
}

func (e *Engine) downstream(seed map[*entry]bool) map[*entry]bool {
	affected := make(map[*entry]bool, len(seed))
	queue := make([]*entry, 0, len(seed))
	for _, en := range e.ordered {
		if seed[en] {
			affected[en] = true
			queue = append(queue, en)
		}
	}
	for len(queue) > 0 {
		up := queue[0]
		queue = queue[1:]
		for _, en := range e.ordered {
			if !affected[en] && en.dependsOn(up.path) {
				affected[en] = true
				queue = append(queue, en)
			}
		}
	}
	return affected
}

// sort orders the affected entries so that every entry comes after the
// entries it depends on. Entries caught in a cycle are returned as stuck.
func (e *Engine) sort(affected map[*entry]bool) (order, stuck []*entry) {
	indegree := make(map[*entry]int, len(affected))
	for en := range affected {
		indegree[en] = 0
	}
	for en := range affected {
		for up := range affected {
			if up != en && en.dependsOn(up.path) {
				indegree[en]++
			}
		}
		if en.dependsOn(en.path) {
			indegree[en]++
		}
	}

	done := make(map[*entry]bool, len(affected))
	for progress := true; progress; {
		progress = false
		for _, en := range e.ordered {
			if !affected[en] || done[en] || indegree[en] > 0 {
				continue
			}
			done[en] = true
			order = append(order, en)
			progress = true
			for _, down := range e.ordered {
				if affected[down] && !done[down] && down != en && down.dependsOn(en.path) {
					indegree[down]--
				}
			}
		}
	}
	for _, en := range e.ordered {
		if affected[en] && !done[en] {
			stuck = append(stuck, en)
		}
	}
	return order, stuck
}

// recompute evaluates en and publishes the result if it changed. A failing
// compute function keeps the previous value.
func (e *Engine) recompute(en *entry) bool {
	value, err := e.compute(en)
	if err != nil {
		e.logger.Error("computing property failed", "key", en.key, "error", err)
		return false
	}
	if en.ready && equal(en.value, value) {
		return false
	}
	old := en.value
	en.value = value
	en.ready = true
	e.listeners.notify(en.path, value, old)
	for _, path := range e.listeners.below(en.path) {
		sub := strings.TrimPrefix(path, en.path+record.Separator)
		next, prev := descend(value, sub), descend(old, sub)
		if !equal(next, prev) {
			e.listeners.notify(path, next, prev)
		}
	}
	return true
}

func (e *Engine) compute(en *entry) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return en.fn(e)
}

func equal(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return cmp.Equal(a, b)
}
