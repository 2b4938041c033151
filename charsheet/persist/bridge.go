// Package persist connects the live record to a durable string store. It
// saves the record after edits settle, restores it at startup with missing
// fields back-filled from the default shape, and exports or imports it as
// JSON text.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/arthur-debert/charsheet/charsheet/record"
	"github.com/arthur-debert/charsheet/charsheet/state"
	"github.com/arthur-debert/charsheet/charsheet/storage"
)

const (
	// DefaultKey is the storage key of the character record.
	DefaultKey = "wfrp-character"
	// DefaultDebounce is the quiet window before a save.
	DefaultDebounce = 500 * time.Millisecond
)

var (
	// ErrNotObject is returned when imported JSON is not an object.
	ErrNotObject = errors.New("record must be a JSON object")
	// ErrEmptyImport is returned when the imported text is blank.
	ErrEmptyImport = errors.New("nothing to import")
)

// Durable is the store the bridge saves to. Load returns
// storage.ErrNotFound for a key that was never saved.
type Durable interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, value string) error
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithKey sets the storage key.
func WithKey(key string) Option {
	return func(b *Bridge) {
		b.key = key
	}
}

// WithDebounce sets the quiet window before a save.
func WithDebounce(d time.Duration) Option {
	return func(b *Bridge) {
		b.delay = d
	}
}

// WithClock sets the clock driving the debounce timer.
func WithClock(c Clock) Option {
	return func(b *Bridge) {
		b.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// Bridge persists one record.
type Bridge struct {
	durable  Durable
	defaults func() record.Map
	key      string
	delay    time.Duration
	clock    Clock
	logger   *slog.Logger

	store     *state.Store
	engine    *state.Engine
	debouncer *Debouncer
	unobserve func()

	// saveMu serializes saves from the timer and from Flush.
	saveMu sync.Mutex
}

// New creates a bridge. defaults must return a fresh all-defaults record on
// every call.
func New(durable Durable, defaults func() record.Map, opts ...Option) *Bridge {
	b := &Bridge{
		durable:  durable,
		defaults: defaults,
		key:      DefaultKey,
		delay:    DefaultDebounce,
		clock:    SystemClock,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.debouncer = NewDebouncer(b.clock, b.delay, func() {
		// Errors are logged by save.
		_ = b.save(context.Background())
	})
	return b
}

// Key returns the storage key.
func (b *Bridge) Key() string {
	return b.key
}

// LoadRecord reads the saved record and back-fills it against the default
// shape. A missing or unreadable record yields the defaults.
func (b *Bridge) LoadRecord(ctx context.Context) record.Map {
	text, err := b.durable.Load(ctx, b.key)
	if errors.Is(err, storage.ErrNotFound) {
		b.logger.Debug("no saved record, using defaults", "key", b.key)
		return b.defaults()
	}
	if err != nil {
		b.logger.Warn("failed to load saved record, using defaults", "key", b.key, "error", err)
		return b.defaults()
	}
	saved, err := Decode(text)
	if err != nil {
		b.logger.Warn("saved record is unreadable, using defaults", "key", b.key, "error", err)
		return b.defaults()
	}
	return record.Backfill(b.defaults(), saved)
}

// Attach starts saving store after every committed change. engine, when
// not nil, is recomputed after an import.
func (b *Bridge) Attach(store *state.Store, engine *state.Engine) {
	b.Detach()
	b.store = store
	b.engine = engine
	b.unobserve = store.Observe(func([]string) {
		b.debouncer.Trigger()
	})
}

// Detach stops observing the store. A pending save is kept.
func (b *Bridge) Detach() {
	if b.unobserve != nil {
		b.unobserve()
		b.unobserve = nil
	}
}

// Pending reports whether a save is scheduled.
func (b *Bridge) Pending() bool {
	return b.debouncer.Pending()
}

// Flush writes a pending save immediately.
func (b *Bridge) Flush(ctx context.Context) error {
	if !b.debouncer.Cancel() {
		return nil
	}
	return b.save(ctx)
}

// Close detaches the bridge and flushes a pending save.
func (b *Bridge) Close(ctx context.Context) error {
	b.Detach()
	return b.Flush(ctx)
}

// Save writes the record now, whether or not a save is pending.
func (b *Bridge) Save(ctx context.Context) error {
	b.debouncer.Cancel()
	return b.save(ctx)
}

func (b *Bridge) save(ctx context.Context) error {
	if b.store == nil {
		return errors.New("persist: bridge is not attached")
	}
	b.saveMu.Lock()
	defer b.saveMu.Unlock()

	data, err := json.Marshal(b.store.Snapshot())
	if err != nil {
		b.logger.Error("failed to encode record", "key", b.key, "error", err)
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := b.durable.Save(ctx, b.key, string(data)); err != nil {
		b.logger.Error("failed to save record", "key", b.key, "error", err)
		return fmt.Errorf("failed to save record: %w", err)
	}
	b.logger.Debug("record saved", "key", b.key, "bytes", len(data))
	return nil
}

// Export renders the record as indented JSON. Computed values are not part
// of the record and never appear.
func (b *Bridge) Export() (string, error) {
	if b.store == nil {
		return "", errors.New("persist: bridge is not attached")
	}
	data, err := json.MarshalIndent(b.store.Snapshot(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}
	return string(data), nil
}

// Import replaces the record with text back-filled against the current
// record, as one batch. Lists in text replace the current lists; a field
// text leaves out keeps its current value.
func (b *Bridge) Import(text string) error {
	if b.store == nil {
		return errors.New("persist: bridge is not attached")
	}
	imported, err := Decode(text)
	if err != nil {
		return err
	}
	merged := record.Backfill(b.store.Snapshot(), imported)
	if err := b.store.Replace(merged); err != nil {
		return fmt.Errorf("failed to apply import: %w", err)
	}
	if b.engine != nil {
		b.engine.RecomputeAll()
	}
	return nil
}

// Reset replaces the record with the defaults.
func (b *Bridge) Reset() error {
	if b.store == nil {
		return errors.New("persist: bridge is not attached")
	}
	return b.store.Replace(b.defaults())
}

// Decode parses record text. The root must be a JSON object.
func Decode(text string) (record.Map, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyImport
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	m, ok := v.(record.Map)
	if !ok {
		return nil, ErrNotObject
	}
	return m, nil
}
