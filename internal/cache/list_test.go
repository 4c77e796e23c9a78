package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestListSkipsArtifactsAndIsRestartable(t *testing.T) {
	c, clock, _ := newTestCache(t, 10)
	var calls atomic.Int64
	mustProcess(t, c, "a", time.Hour, staticGen("AAAA", &calls))
	mustProcess(t, c, "b", time.Hour, staticGen("BB", &calls))
	if err := os.WriteFile(c.Paths("a").Lock, nil, 0o600); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	if err := os.WriteFile(filepath.Join(c.Root(), "README"), nil, 0o600); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	collect := func() []Entry {
		var entries []Entry
		for e, err := range c.List() {
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			entries = append(entries, e)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
		return entries
	}

	want := []Entry{
		{ID: SlotID("a"), Size: 4, ModTime: clock.Now()},
		{ID: SlotID("b"), Size: 2, ModTime: clock.Now()},
	}
	sort.Slice(want, func(i, j int) bool { return want[i].ID < want[j].ID })

	first := collect()
	if diff := cmp.Diff(want, first, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Fatalf("listing mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(first, collect(), cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Fatalf("second listing differs:\n%s", diff)
	}
}

func TestListStopsEarly(t *testing.T) {
	c, clock, _ := newTestCache(t, 10)
	for _, key := range []string{"a", "b", "c"} {
		writeSlot(t, c.Root(), key, clock.Now())
	}
	seen := 0
	for range c.List() {
		seen++
		break
	}
	if seen != 1 {
		t.Fatalf("iteration should stop when the consumer breaks, saw %d", seen)
	}
}

func TestListMissingRootYieldsError(t *testing.T) {
	for _, err := range listRoot(filepath.Join(t.TempDir(), "missing")) {
		if err == nil {
			t.Fatalf("expected error for missing root")
		}
		return
	}
	t.Fatalf("expected one error entry")
}

func TestWriteListingFormatsSlots(t *testing.T) {
	c, _, _ := newTestCache(t, 10)
	var calls atomic.Int64
	mustProcess(t, c, "page", time.Hour, staticGen(strings.Repeat("x", 2048), &calls))

	var buf bytes.Buffer
	if err := c.WriteListing(&buf); err != nil {
		t.Fatalf("listing: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, SlotID("page")) {
		t.Fatalf("listing should contain slot id: %s", out)
	}
	if !strings.Contains(out, "2048") || !strings.Contains(out, "1 slots, 2.0 KiB") {
		t.Fatalf("listing should report sizes: %s", out)
	}

	var pkg bytes.Buffer
	if code := List(c.Root(), &pkg); code != 0 {
		t.Fatalf("List returned %d", code)
	}
	if !strings.Contains(pkg.String(), SlotID("page")) {
		t.Fatalf("package listing mismatch: %s", pkg.String())
	}
	if code := List(filepath.Join(t.TempDir(), "missing"), &pkg); code == 0 {
		t.Fatalf("missing root should fail")
	}
}
