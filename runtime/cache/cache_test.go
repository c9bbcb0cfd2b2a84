package cache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetOrCompute(t *testing.T) {
	svc := New()
	store := NewStore[string, int](svc, "lengths")

	calls := 0
	compute := func() int {
		calls++
		return 7
	}

	assert.Equal(t, 7, store.GetOrCompute("shop.Route", compute))
	assert.Equal(t, 7, store.GetOrCompute("shop.Route", compute))
	assert.Equal(t, 1, calls)

	v, ok := store.Get("shop.Route")
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = store.Get("shop.Missing")
	assert.False(t, ok)

	stats := store.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.Equal(t, 1, stats.Len)
}

func TestAddKeepsFirstValue(t *testing.T) {
	svc := New()
	store := NewStore[string, int](svc, "first")

	assert.Equal(t, 1, store.Add("shop.Route", 1))
	assert.Equal(t, 1, store.Add("shop.Route", 2))

	stats := store.Stats()
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
	assert.Equal(t, 1, stats.Len)
	assert.Equal(t, float64(0), testutil.ToFloat64(svc.lookups.WithLabelValues("first", "miss")))
}

func TestStoreBounded(t *testing.T) {
	svc := New(WithSize(2))
	assert.Equal(t, 2, svc.Size())

	store := NewStore[int, int](svc, "bounded")
	for i := 0; i < 5; i++ {
		store.GetOrCompute(i, func() int { return i * i })
	}
	assert.Equal(t, 2, store.Len())

	_, ok := store.Get(0)
	assert.False(t, ok)
	v, ok := store.Get(4)
	assert.True(t, ok)
	assert.Equal(t, 16, v)
}

func TestWithSizeIgnoresNonPositive(t *testing.T) {
	assert.Equal(t, DefaultSize, New(WithSize(0)).Size())
	assert.Equal(t, DefaultSize, New(WithSize(-3)).Size())
}

func TestClear(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	svc := New(WithLogger(zap.New(core)))

	first := NewStore[string, string](svc, "first")
	second := NewStore[int, bool](svc, "second")
	assert.Equal(t, []string{"first", "second"}, svc.Stores())

	first.GetOrCompute("a", func() string { return "A" })
	second.GetOrCompute(1, func() bool { return true })

	svc.Clear()

	assert.Zero(t, first.Len())
	assert.Zero(t, second.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(svc.clears))

	entries := logs.FilterMessage("caches cleared").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["stores"])
}

func TestRegister(t *testing.T) {
	svc := New()
	store := NewStore[string, int](svc, "tables")
	store.GetOrCompute("x", func() int { return 1 })
	store.Get("x")

	reg := prometheus.NewRegistry()
	require.NoError(t, svc.Register(reg))

	assert.Equal(t, float64(1), testutil.ToFloat64(svc.lookups.WithLabelValues("tables", "hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(svc.lookups.WithLabelValues("tables", "miss")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "metatags_cache_lookups_total")

	err = svc.Register(reg)
	assert.ErrorContains(t, err, "failed to register cache lookups metric")
}

func TestConcurrentGetOrCompute(t *testing.T) {
	svc := New()
	store := NewStore[int, *int](svc, "shared")

	var computed atomic.Int32
	results := make([]*int, 64)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = store.GetOrCompute(42, func() *int {
				computed.Add(1)
				v := 42
				return &v
			})
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, computed.Load(), int32(1))
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}
