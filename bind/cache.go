package bind

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chaisql/databind/types"
)

// ConverterCache memoizes converters by type. It is shared by every
// operation of a Root and safe for concurrent use. Entries are never
// replaced: when two operations build the converter of the same type
// concurrently, the first one stored wins and both use it.
// Cached converters are not contextualized.
type ConverterCache[C any] struct {
	m       sync.Map // type key -> C
	size    atomic.Int64
	kind    string
	metrics *prometheus.CounterVec
}

func newConverterCache[C any](kind string, metrics *prometheus.CounterVec) *ConverterCache[C] {
	return &ConverterCache[C]{kind: kind, metrics: metrics}
}

func (c *ConverterCache[C]) observe(result string) {
	if c.metrics != nil {
		c.metrics.WithLabelValues(c.kind, result).Inc()
	}
}

// Load returns the converter cached for t.
func (c *ConverterCache[C]) Load(t *types.Descriptor) (C, bool) {
	v, ok := c.m.Load(t.Key())
	if !ok {
		c.observe("miss")
		var zero C
		return zero, false
	}
	c.observe("hit")
	return v.(C), true
}

// LoadOrStore caches conv for t unless a converter was stored first,
// and returns the cached converter.
func (c *ConverterCache[C]) LoadOrStore(t *types.Descriptor, conv C) (C, bool) {
	v, loaded := c.m.LoadOrStore(t.Key(), conv)
	if loaded {
		c.observe("race")
	} else {
		c.size.Add(1)
		c.observe("store")
	}
	return v.(C), loaded
}

// Len returns the number of cached converters.
func (c *ConverterCache[C]) Len() int {
	return int(c.size.Load())
}

// Flush removes every cached converter.
func (c *ConverterCache[C]) Flush() {
	c.m.Range(func(k, _ any) bool {
		if _, ok := c.m.LoadAndDelete(k); ok {
			c.size.Add(-1)
		}
		return true
	})
}

func newCacheMetrics() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "databind",
		Name:      "converter_cache_total",
		Help:      "Converter cache lookups and insertions, by converter kind and result.",
	}, []string{"kind", "result"})
}
