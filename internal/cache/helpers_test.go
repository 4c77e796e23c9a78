package cache

import (
	"bytes"
	"context"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingMetrics struct {
	hits, misses, stale, busy, generated, failed, evicted atomic.Int64
}

func (m *countingMetrics) Hit()             { m.hits.Add(1) }
func (m *countingMetrics) Miss()            { m.misses.Add(1) }
func (m *countingMetrics) Stale()           { m.stale.Add(1) }
func (m *countingMetrics) Busy()            { m.busy.Add(1) }
func (m *countingMetrics) Generated()       { m.generated.Add(1) }
func (m *countingMetrics) GeneratorFailed() { m.failed.Add(1) }
func (m *countingMetrics) Evicted(n int)    { m.evicted.Add(int64(n)) }

// newTestCache returns a Cache rooted in a temporary directory with a
// controllable clock and discarded logs.
func newTestCache(t *testing.T, size int) (*Cache, *testClock, *countingMetrics) {
	t.Helper()
	return newTestCacheAt(t, t.TempDir(), size)
}

func newTestCacheAt(t *testing.T, root string, size int) (*Cache, *testClock, *countingMetrics) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	clock := newTestClock()
	metrics := &countingMetrics{}
	c, err := New(Options{
		Root:        root,
		Size:        size,
		LockTimeout: 10 * time.Minute,
		Logger:      logger,
		Metrics:     metrics,
		Now:         clock.Now,
	})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c, clock, metrics
}

// staticGen writes body and counts invocations.
func staticGen(body string, calls *atomic.Int64) Generator {
	return GeneratorFunc(func(ctx context.Context, w io.Writer) error {
		calls.Add(1)
		_, err := io.WriteString(w, body)
		return err
	})
}

func mustProcess(t *testing.T, c *Cache, key string, ttl time.Duration, gen Generator) string {
	t.Helper()
	var out bytes.Buffer
	if err := c.Process(context.Background(), &out, key, ttl, gen); err != nil {
		t.Fatalf("process %q: %v", key, err)
	}
	return out.String()
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}
