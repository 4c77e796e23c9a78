// Package metrics exports cache engine events as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/any-hub/pagecache/internal/cache"
)

// Adapter implements cache.Metrics with Prometheus counters.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	lookups   *prometheus.CounterVec
	busy      prometheus.Counter
	generated prometheus.Counter
	failures  prometheus.Counter
	evictions prometheus.Counter
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "lookups_total",
				Help:        "Cache lookups by result (hit, miss, stale)",
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),
		busy: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "busy_total",
			Help:        "Requests that found the slot locked by another generator",
			ConstLabels: constLabels,
		}),
		generated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "generated_total",
			Help:        "Slots generated and published",
			ConstLabels: constLabels,
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "generator_failures_total",
			Help:        "Content generator failures",
			ConstLabels: constLabels,
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "evictions_total",
			Help:        "Slots removed by the eviction sweep",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.lookups, a.busy, a.generated, a.failures, a.evictions)
	return a
}

// Hit counts a fresh slot served without generation.
func (a *Adapter) Hit() { a.lookups.WithLabelValues("hit").Inc() }

// Miss counts a lookup with no slot on disk.
func (a *Adapter) Miss() { a.lookups.WithLabelValues("miss").Inc() }

// Stale counts a lookup that found an expired slot.
func (a *Adapter) Stale() { a.lookups.WithLabelValues("stale").Inc() }

func (a *Adapter) Busy()            { a.busy.Inc() }
func (a *Adapter) Generated()       { a.generated.Inc() }
func (a *Adapter) GeneratorFailed() { a.failures.Inc() }

// Evicted adds n removed slots.
func (a *Adapter) Evicted(n int) {
	if n > 0 {
		a.evictions.Add(float64(n))
	}
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
