package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func key(x int32) PreviewKey {
	return PreviewKey{Seed: 1, Scale: 10, X: x, Z: -x, Size: 256, Format: "jpeg"}
}

func exercise(t *testing.T, c Cache) {
	t.Helper()
	if c.Has(key(1)) {
		t.Fatal("empty cache reports Has")
	}
	if _, ok := c.Get(key(1)); ok {
		t.Fatal("empty cache returned a value")
	}

	c.Set(key(1), []byte("one"))
	c.Set(key(2), []byte("two"))

	if got, ok := c.Get(key(1)); !ok || !bytes.Equal(got, []byte("one")) {
		t.Errorf("Get(1) = %q, %v", got, ok)
	}
	if !c.Has(key(2)) {
		t.Error("Has(2) = false")
	}

	other := key(1)
	other.Format = "webp"
	if c.Has(other) {
		t.Error("format is not part of the key")
	}

	c.Clear()
	if c.Has(key(1)) || c.Has(key(2)) {
		t.Error("entries survive Clear")
	}
}

func TestMemoryCache(t *testing.T) {
	c, err := NewMemoryCache(8)
	if err != nil {
		t.Fatal(err)
	}
	exercise(t, c)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewMemoryCache(2)
	if err != nil {
		t.Fatal(err)
	}
	c.Set(key(1), []byte("a"))
	c.Set(key(2), []byte("b"))
	c.Get(key(1))
	c.Set(key(3), []byte("c"))

	if c.Has(key(2)) {
		t.Error("least recently used entry kept")
	}
	if !c.Has(key(1)) || !c.Has(key(3)) {
		t.Error("recent entries evicted")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestMemoryCacheRejectsZeroSize(t *testing.T) {
	if _, err := NewMemoryCache(0); err == nil {
		t.Error("NewMemoryCache(0) succeeded")
	}
}

func TestFileCache(t *testing.T) {
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	exercise(t, c)
}

func TestFileCacheSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	first, err := NewFileCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	first.Set(key(7), []byte("seven"))

	second, err := NewFileCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Has(key(7)) {
		t.Fatal("preview lost across instances")
	}
	if got, ok := second.Get(key(7)); !ok || string(got) != "seven" {
		t.Errorf("Get(7) = %q, %v", got, ok)
	}

	want := filepath.Join(dir, "1_10_0000000000000000_256", "7_-7.jpeg")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("preview not stored at %s: %v", want, err)
	}
	tmps, _ := filepath.Glob(filepath.Join(dir, "*", "*.tmp"))
	if len(tmps) != 0 {
		t.Errorf("temp files left behind: %v", tmps)
	}
}

func TestFileCacheSeparatesWorlds(t *testing.T) {
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	edited := key(1)
	edited.World = 0xfeed

	c.Set(key(1), []byte("old"))
	if c.Has(edited) {
		t.Fatal("edited world served the old preview")
	}
	c.Set(edited, []byte("new"))
	if got, _ := c.Get(key(1)); string(got) != "old" {
		t.Errorf("Get(original) = %q", got)
	}
	if got, _ := c.Get(edited); string(got) != "new" {
		t.Errorf("Get(edited) = %q", got)
	}
}

func TestNoopCache(t *testing.T) {
	c := NewNoopCache()
	c.Set(key(1), []byte("x"))
	if c.Has(key(1)) {
		t.Error("noop cache stored a value")
	}
}

func TestNewCache(t *testing.T) {
	log := zaptest.NewLogger(t)
	for _, typ := range []string{"memory", "file", "disabled"} {
		if _, err := NewCache(typ, t.TempDir(), 4, log); err != nil {
			t.Errorf("NewCache(%q) = %v", typ, err)
		}
	}
	if _, err := NewCache("redis", "", 4, log); err == nil {
		t.Error("NewCache(redis) succeeded")
	}
}
