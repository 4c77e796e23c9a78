package cache

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// writeSlot creates a slot file for key with the given mtime.
func writeSlot(t *testing.T, root, key string, mtime time.Time) string {
	t.Helper()
	p := Resolve(root, key)
	if err := os.WriteFile(p.Content, []byte(key), 0o600); err != nil {
		t.Fatalf("write slot: %v", err)
	}
	if err := os.Chtimes(p.Content, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	return p.ID
}

func TestSweepKeepsNewestSlots(t *testing.T) {
	c, clock, metrics := newTestCache(t, 3)
	base := clock.Now()

	var ids []string
	for i, key := range []string{"k0", "k1", "k2", "k3", "k4"} {
		ids = append(ids, writeSlot(t, c.Root(), key, base.Add(time.Duration(i)*time.Second)))
	}
	// lock artifacts are never counted or removed
	if err := os.WriteFile(filepath.Join(c.Root(), ids[0]+".lock"), nil, 0o600); err != nil {
		t.Fatalf("write lock: %v", err)
	}

	removed, err := c.Sweep()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 evictions, got %d", removed)
	}
	for _, id := range ids[:2] {
		if _, err := os.Stat(filepath.Join(c.Root(), id)); !os.IsNotExist(err) {
			t.Fatalf("oldest slot %s should be evicted", id)
		}
	}
	for _, id := range ids[2:] {
		if _, err := os.Stat(filepath.Join(c.Root(), id)); err != nil {
			t.Fatalf("newer slot %s should survive: %v", id, err)
		}
	}
	if _, err := os.Stat(filepath.Join(c.Root(), ids[0]+".lock")); err != nil {
		t.Fatalf("lock artifact must survive sweep: %v", err)
	}
	if metrics.evicted.Load() != 2 {
		t.Fatalf("evicted metric = %d", metrics.evicted.Load())
	}
}

func TestSweepBreaksTiesByID(t *testing.T) {
	c, clock, _ := newTestCache(t, 1)
	same := clock.Now()
	a := writeSlot(t, c.Root(), "x", same)
	b := writeSlot(t, c.Root(), "y", same)

	if _, err := c.Sweep(); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	survivor, victim := a, b
	if a < b {
		survivor, victim = b, a
	}
	if _, err := os.Stat(filepath.Join(c.Root(), victim)); !os.IsNotExist(err) {
		t.Fatalf("lower id %s should be evicted on tie", victim)
	}
	if _, err := os.Stat(filepath.Join(c.Root(), survivor)); err != nil {
		t.Fatalf("higher id %s should survive: %v", survivor, err)
	}
}

func TestSweepUnderCapacityIsNoop(t *testing.T) {
	c, clock, _ := newTestCache(t, 5)
	writeSlot(t, c.Root(), "only", clock.Now())
	removed, err := c.Sweep()
	if err != nil || removed != 0 {
		t.Fatalf("expected no-op, got removed=%d err=%v", removed, err)
	}
}

func TestSweepRemovesOrphanedTempFiles(t *testing.T) {
	c, clock, _ := newTestCache(t, 5)
	id := SlotID("k")
	oldTemp := filepath.Join(c.Root(), id+"1234567")
	newTemp := filepath.Join(c.Root(), id+"7654321")
	for _, p := range []string{oldTemp, newTemp} {
		if err := os.WriteFile(p, []byte("partial"), 0o600); err != nil {
			t.Fatalf("write temp: %v", err)
		}
	}
	old := clock.Now().Add(-time.Hour)
	if err := os.Chtimes(oldTemp, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if err := os.Chtimes(newTemp, clock.Now(), clock.Now()); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if _, err := c.Sweep(); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, err := os.Stat(oldTemp); !os.IsNotExist(err) {
		t.Fatalf("abandoned temp file should be removed")
	}
	if _, err := os.Stat(newTemp); err != nil {
		t.Fatalf("in-flight temp file must be kept: %v", err)
	}
}

func TestBoundedSizeAfterManyInserts(t *testing.T) {
	const size = 3
	c, clock, _ := newTestCache(t, size)
	var calls atomic.Int64
	keys := []string{"k1", "k2", "k3", "k4", "k5", "k6"}
	for _, key := range keys {
		mustProcess(t, c, key, time.Hour, staticGen(key, &calls))
		clock.Advance(time.Second)
	}

	got := map[string]bool{}
	for e, err := range c.List() {
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		got[e.ID] = true
	}
	if len(got) != size {
		t.Fatalf("expected %d slots, got %d", size, len(got))
	}
	for _, key := range keys[len(keys)-size:] {
		if !got[SlotID(key)] {
			t.Fatalf("recent key %s should be retained", key)
		}
	}
}
