package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// exercise runs the contract every backend must satisfy.
func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx, "wfrp-character"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before the first save, got %v", err)
	}
	if err := s.Save(ctx, "wfrp-character", `{"name":"Ulrika"}`); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, "other", `{}`); err != nil {
		t.Fatalf("save other: %v", err)
	}
	if err := s.Save(ctx, "wfrp-character", `{"name":"Gunnar"}`); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := s.Load(ctx, "wfrp-character")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != `{"name":"Gunnar"}` {
		t.Errorf("expected the last saved value, got %q", got)
	}
	if got, _ := s.Load(ctx, "other"); got != `{}` {
		t.Errorf("other key was clobbered: %q", got)
	}
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())

	m := NewMemory()
	m.SaveError = errors.New("quota exceeded")
	if err := m.Save(context.Background(), "k", "v"); err == nil {
		t.Error("expected injected save error")
	}
	if m.SaveCount() != 1 {
		t.Errorf("expected one save attempt, got %d", m.SaveCount())
	}
}

func TestFile(t *testing.T) {
	t.Run("on disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "character.json")
		f, err := NewFile(path)
		if err != nil {
			t.Fatalf("new file store: %v", err)
		}
		exercise(t, f)

		// A second instance sees the same data.
		g, err := NewFile(path)
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		if got, _ := g.Load(context.Background(), "wfrp-character"); got != `{"name":"Gunnar"}` {
			t.Errorf("reopened store returned %q", got)
		}
		if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
			t.Error("temp file left behind")
		}
	})

	t.Run("envelope carries revision and timestamps", func(t *testing.T) {
		fs := NewMockFileSystem()
		now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		f, err := NewFile("/data/character.json",
			WithFileSystem(fs),
			WithFileLockFactory(NewMockFileLockFactory()),
			WithTimeFunc(func() time.Time { return now }))
		if err != nil {
			t.Fatal(err)
		}
		ctx := context.Background()
		if err := f.Save(ctx, "k", "v1"); err != nil {
			t.Fatal(err)
		}
		first, _ := f.Revision(ctx, "k")
		if err := f.Save(ctx, "k", "v2"); err != nil {
			t.Fatal(err)
		}
		second, _ := f.Revision(ctx, "k")
		if first == "" || first == second {
			t.Errorf("expected a fresh revision per save, got %q then %q", first, second)
		}

		raw, err := fs.ReadFile("/data/character.json")
		if err != nil {
			t.Fatal(err)
		}
		var data fileData
		if err := json.Unmarshal(raw, &data); err != nil {
			t.Fatalf("stored file is not JSON: %v", err)
		}
		if data.Metadata.Version != fileFormatVersion || !data.Entries["k"].UpdatedAt.Equal(now) {
			t.Errorf("unexpected envelope %+v", data)
		}
		if fs.Exists("/data/character.json.tmp") {
			t.Error("temp file left behind")
		}
	})

	t.Run("lock is released after each operation", func(t *testing.T) {
		locks := NewMockFileLockFactory()
		f, _ := NewFile("/data/c.json", WithFileSystem(NewMockFileSystem()), WithFileLockFactory(locks))
		_ = f.Save(context.Background(), "k", "v")
		_, _ = f.Load(context.Background(), "k")

		lock := locks.GetLock("/data/c.json.lock")
		if lock.IsLocked() {
			t.Error("lock still held")
		}
		if lock.LockAttempts != 2 || lock.UnlockAttempts != 2 {
			t.Errorf("expected 2 lock/unlock pairs, got %d/%d", lock.LockAttempts, lock.UnlockAttempts)
		}
	})

	t.Run("lock errors are returned", func(t *testing.T) {
		locks := NewMockFileLockFactory()
		f, _ := NewFile("/data/c.json", WithFileSystem(NewMockFileSystem()), WithFileLockFactory(locks))
		locks.GetLock("/data/c.json.lock").SetLockError(errors.New("busy"))
		if err := f.Save(context.Background(), "k", "v"); err == nil {
			t.Error("expected lock error")
		}
	})

	t.Run("failed rename keeps the old file", func(t *testing.T) {
		fs := NewMockFileSystem()
		f, _ := NewFile("/data/c.json", WithFileSystem(fs), WithFileLockFactory(NewMockFileLockFactory()))
		_ = f.Save(context.Background(), "k", "old")

		fs.RenameError = errors.New("disk full")
		if err := f.Save(context.Background(), "k", "new"); err == nil {
			t.Fatal("expected rename error")
		}
		fs.RenameError = nil
		if got, _ := f.Load(context.Background(), "k"); got != "old" {
			t.Errorf("expected old value to survive, got %q", got)
		}
		if fs.Exists("/data/c.json.tmp") {
			t.Error("temp file left behind")
		}
	})

	t.Run("corrupt file is an error", func(t *testing.T) {
		fs := NewMockFileSystem()
		_ = fs.WriteFile("/data/c.json", []byte("{not json"), 0644)
		f, _ := NewFile("/data/c.json", WithFileSystem(fs), WithFileLockFactory(NewMockFileLockFactory()))
		if _, err := f.Load(context.Background(), "k"); err == nil || errors.Is(err, ErrNotFound) {
			t.Errorf("expected parse error, got %v", err)
		}
	})
}

func TestBolt(t *testing.T) {
	b, err := NewBolt(filepath.Join(t.TempDir(), "charsheet.db"))
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	defer func() { _ = b.Close() }()
	exercise(t, b)
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("CHARSHEET_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHARSHEET_TEST_REDIS_ADDR not set")
	}
	r, err := NewRedis(RedisConfig{Addr: addr, Prefix: "charsheet-test:" + time.Now().Format(time.RFC3339Nano) + ":"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = r.Close() }()
	exercise(t, r)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		cfg     Config
		want    string
		wantErr bool
	}{
		{cfg: Config{Path: filepath.Join(dir, "a.json")}, want: "*storage.File"},
		{cfg: Config{Backend: "FILE", Path: filepath.Join(dir, "b.json")}, want: "*storage.File"},
		{cfg: Config{Backend: BackendBolt, Path: filepath.Join(dir, "c.db")}, want: "*storage.Bolt"},
		{cfg: Config{Backend: BackendMemory}, want: "*storage.Memory"},
		{cfg: Config{Backend: BackendRedis}, wantErr: true},
		{cfg: Config{Backend: "s3"}, wantErr: true},
	}
	for _, tt := range tests {
		s, err := Open(tt.cfg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Open(%+v): expected error", tt.cfg)
			}
			continue
		}
		if err != nil {
			t.Errorf("Open(%+v): %v", tt.cfg, err)
			continue
		}
		if got := typeName(s); got != tt.want {
			t.Errorf("Open(%+v) = %s, want %s", tt.cfg, got, tt.want)
		}
		_ = s.Close()
	}
}

func typeName(s Store) string {
	switch s.(type) {
	case *File:
		return "*storage.File"
	case *Bolt:
		return "*storage.Bolt"
	case *Memory:
		return "*storage.Memory"
	case *Redis:
		return "*storage.Redis"
	}
	return "unknown"
}
