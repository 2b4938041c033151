package state

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/arthur-debert/charsheet/charsheet/record"
	"github.com/google/go-cmp/cmp"
)

type change struct {
	newValue, oldValue any
	path               string
}

func recorder(changes *[]change) Callback {
	return func(newValue, oldValue any, path string) {
		*changes = append(*changes, change{newValue, oldValue, path})
	}
}

func TestStoreGetSet(t *testing.T) {
	t.Run("round trips values including nested-creating paths", func(t *testing.T) {
		s := NewStore(nil)
		values := map[string]any{
			"name":                       "Gunther",
			"characteristics.ws.initial": 30.0,
			"wealth.gc":                  2.0,
			"ambitions.short":            "",
			"talents":                    []any{record.Map{"name": "Luck"}},
		}
		for path, v := range values {
			if err := s.Set(path, v); err != nil {
				t.Fatalf("set %s: %v", path, err)
			}
		}
		for path, want := range values {
			if got := s.Get(path); !record.Same(got, want) {
				t.Errorf("get %s = %v, want %v", path, got, want)
			}
		}
	})

	t.Run("missing paths read as nil", func(t *testing.T) {
		s := NewStore(record.Map{"name": "X"})
		if got := s.Get("wounds.sb"); got != nil {
			t.Errorf("expected nil, got %v", got)
		}
		if got := s.Get("name.first"); got != nil {
			t.Errorf("expected nil through scalar, got %v", got)
		}
	})

	t.Run("notifies with new value, old value and path", func(t *testing.T) {
		s := NewStore(record.Map{"fate": 1.0})
		var changes []change
		s.Subscribe("fate", recorder(&changes))

		if err := s.Set("fate", 2.0); err != nil {
			t.Fatalf("set: %v", err)
		}

		want := []change{{2.0, 1.0, "fate"}}
		if diff := cmp.Diff(want, changes, cmp.AllowUnexported(change{})); diff != "" {
			t.Errorf("changes mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("identical value is a no-op", func(t *testing.T) {
		s := NewStore(nil)
		calls := 0
		s.Subscribe("fate", func(_, _ any, _ string) { calls++ })
		observed := 0
		s.Observe(func([]string) { observed++ })

		_ = s.Set("fate", 3.0)
		_ = s.Set("fate", 3.0)

		if calls != 1 {
			t.Errorf("expected 1 notification, got %d", calls)
		}
		if observed != 1 {
			t.Errorf("expected 1 observed change set, got %d", observed)
		}
	})

	t.Run("go numbers are stored as float64", func(t *testing.T) {
		s := NewStore(record.Map{"fate": 30.0})
		calls := 0
		s.Subscribe("fate", func(_, _ any, _ string) { calls++ })

		_ = s.Set("fate", 30)
		if calls != 0 {
			t.Errorf("int 30 over 30.0 notified %d times", calls)
		}
		_ = s.Set("fate", int64(31))
		if got := s.Get("fate"); got != 31.0 {
			t.Errorf("expected float64 31, got %#v", got)
		}
	})

	t.Run("same list reference is a no-op", func(t *testing.T) {
		weapons := []any{record.Map{"name": "Dagger"}}
		s := NewStore(record.Map{"weapons": weapons})
		calls := 0
		s.Subscribe("weapons", func(_, _ any, _ string) { calls++ })

		_ = s.Set("weapons", weapons)
		if calls != 0 {
			t.Errorf("expected no notification, got %d", calls)
		}
	})

	t.Run("only the exact path is notified", func(t *testing.T) {
		s := NewStore(nil)
		calls := 0
		s.Subscribe("characteristics", func(_, _ any, _ string) { calls++ })
		_ = s.Set("characteristics.ws.initial", 30.0)
		if calls != 0 {
			t.Errorf("parent subscriber should not fire, got %d", calls)
		}
	})

	t.Run("invalid path returns error without notifying", func(t *testing.T) {
		s := NewStore(record.Map{"weapons": []any{}})
		calls := 0
		s.Subscribe("weapons.4.enc", func(_, _ any, _ string) { calls++ })
		err := s.Set("weapons.4.enc", 1.0)
		if !errors.Is(err, record.ErrInvalidPath) {
			t.Errorf("expected ErrInvalidPath, got %v", err)
		}
		if calls != 0 {
			t.Errorf("expected no notification, got %d", calls)
		}
	})
}

func TestStoreSubscribe(t *testing.T) {
	t.Run("multiple subscribers each receive changes", func(t *testing.T) {
		s := NewStore(nil)
		a, b := 0, 0
		s.Subscribe("name", func(_, _ any, _ string) { a++ })
		s.Subscribe("name", func(_, _ any, _ string) { b++ })

		_ = s.Set("name", "A")
		_ = s.Set("name", "B")

		if a != 2 || b != 2 {
			t.Errorf("expected 2 and 2, got %d and %d", a, b)
		}
	})

	t.Run("unsubscribe removes only that callback", func(t *testing.T) {
		s := NewStore(nil)
		a, b := 0, 0
		unsubA := s.Subscribe("name", func(_, _ any, _ string) { a++ })
		s.Subscribe("name", func(_, _ any, _ string) { b++ })

		unsubA()
		unsubA()
		_ = s.Set("name", "A")

		if a != 0 || b != 1 {
			t.Errorf("expected 0 and 1, got %d and %d", a, b)
		}
		if n := s.SubscriberCount("name"); n != 1 {
			t.Errorf("expected 1 subscriber left, got %d", n)
		}
	})

	t.Run("empty subscriber sets are dropped", func(t *testing.T) {
		s := NewStore(nil)
		unsub := s.Subscribe("name", func(_, _ any, _ string) {})
		unsub()
		if n := s.listeners.size(); n != 0 {
			t.Errorf("expected empty registry, got %d paths", n)
		}
	})

	t.Run("panicking subscriber does not stop the others", func(t *testing.T) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, nil))
		s := NewStore(nil, WithStoreLogger(logger))

		reached := false
		s.Subscribe("name", func(_, _ any, _ string) { panic("boom") })
		s.Subscribe("name", func(_, _ any, _ string) { reached = true })

		if err := s.Set("name", "A"); err != nil {
			t.Fatalf("set returned error: %v", err)
		}
		if !reached {
			t.Error("second subscriber was not called")
		}
		if !strings.Contains(logs.String(), "boom") {
			t.Errorf("expected failure to be logged, got %q", logs.String())
		}
	})

	t.Run("subscriber may unsubscribe itself while notified", func(t *testing.T) {
		s := NewStore(nil)
		calls := 0
		var unsub func()
		unsub = s.Subscribe("name", func(_, _ any, _ string) {
			calls++
			unsub()
		})
		_ = s.Set("name", "A")
		_ = s.Set("name", "B")
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})
}

func TestStoreBatch(t *testing.T) {
	t.Run("defers notifications until the batch ends", func(t *testing.T) {
		s := NewStore(nil)
		counts := map[string]int{}
		for _, p := range []string{"a", "b", "c"} {
			s.Subscribe(p, func(_, _ any, path string) { counts[path]++ })
		}
		var observed [][]string
		s.Observe(func(paths []string) { observed = append(observed, paths) })

		err := s.Batch(func() error {
			_ = s.Set("a", 1.0)
			_ = s.Set("b", 2.0)
			_ = s.Set("c", 3.0)
			if len(counts) != 0 {
				t.Errorf("expected no synchronous notifications, got %v", counts)
			}
			if got := s.Get("b"); got != 2.0 {
				t.Errorf("write not visible inside batch: %v", got)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("batch: %v", err)
		}

		for _, p := range []string{"a", "b", "c"} {
			if counts[p] != 1 {
				t.Errorf("path %s notified %d times, want 1", p, counts[p])
			}
		}
		if len(observed) != 1 || len(observed[0]) != 3 {
			t.Errorf("expected one change set of three paths, got %v", observed)
		}
	})

	t.Run("deduplicates repeated writes and reports the pre-batch value", func(t *testing.T) {
		s := NewStore(record.Map{"fate": 1.0})
		var changes []change
		s.Subscribe("fate", recorder(&changes))

		_ = s.Batch(func() error {
			_ = s.Set("fate", 2.0)
			_ = s.Set("fate", 3.0)
			return nil
		})

		want := []change{{3.0, 1.0, "fate"}}
		if diff := cmp.Diff(want, changes, cmp.AllowUnexported(change{})); diff != "" {
			t.Errorf("changes mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("reverted paths are not notified", func(t *testing.T) {
		s := NewStore(record.Map{"fate": 1.0})
		calls := 0
		s.Subscribe("fate", func(_, _ any, _ string) { calls++ })
		_ = s.Batch(func() error {
			_ = s.Set("fate", 2.0)
			_ = s.Set("fate", 1.0)
			return nil
		})
		if calls != 0 {
			t.Errorf("expected no notification, got %d", calls)
		}
	})

	t.Run("flushes when fn fails", func(t *testing.T) {
		s := NewStore(nil)
		calls := 0
		s.Subscribe("a", func(_, _ any, _ string) { calls++ })
		boom := errors.New("boom")

		err := s.Batch(func() error {
			_ = s.Set("a", 1.0)
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("expected fn error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected flush after failure, got %d calls", calls)
		}
		if s.Batching() {
			t.Error("batch still open")
		}
	})

	t.Run("flushes when fn panics", func(t *testing.T) {
		s := NewStore(nil)
		calls := 0
		s.Subscribe("a", func(_, _ any, _ string) { calls++ })

		func() {
			defer func() { _ = recover() }()
			_ = s.Batch(func() error {
				_ = s.Set("a", 1.0)
				panic("boom")
			})
		}()

		if calls != 1 {
			t.Errorf("expected flush after panic, got %d calls", calls)
		}
		if s.Batching() {
			t.Error("batch still open")
		}
	})

	t.Run("nested batches flush once at the outermost exit", func(t *testing.T) {
		s := NewStore(nil)
		calls := 0
		s.Subscribe("a", func(_, _ any, _ string) { calls++ })

		_ = s.Batch(func() error {
			_ = s.Batch(func() error {
				_ = s.Set("a", 1.0)
				return nil
			})
			if calls != 0 {
				t.Errorf("inner batch flushed early")
			}
			_ = s.Set("a", 2.0)
			return nil
		})
		if calls != 1 {
			t.Errorf("expected 1 notification, got %d", calls)
		}
	})
}

func TestStoreReplaceAndSnapshot(t *testing.T) {
	t.Run("replace signals changed keys once", func(t *testing.T) {
		s := NewStore(record.Map{"name": "A", "fate": 1.0, "old": "x"})
		counts := map[string]int{}
		for _, p := range []string{"name", "fate", "old"} {
			s.Subscribe(p, func(_, _ any, path string) { counts[path]++ })
		}

		err := s.Replace(record.Map{"name": "B", "fate": 1.0})
		if err != nil {
			t.Fatalf("replace: %v", err)
		}

		if counts["name"] != 1 || counts["fate"] != 0 || counts["old"] != 1 {
			t.Errorf("unexpected notification counts: %v", counts)
		}
		if s.Get("old") != nil {
			t.Error("stale key survived replace")
		}
	})

	t.Run("snapshot is detached", func(t *testing.T) {
		s := NewStore(record.Map{"wounds": record.Map{"sb": 1.0}})
		snap := s.Snapshot()
		snap["wounds"].(record.Map)["sb"] = 5.0
		if got := s.Get("wounds.sb"); got != 1.0 {
			t.Errorf("snapshot shares data with store: %v", got)
		}
	})
}
