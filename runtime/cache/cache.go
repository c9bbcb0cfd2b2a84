// Package cache provides the process-wide caches used by the merge engine.
//
// A Service owns any number of typed stores. Stores are filled lazily with
// insert-if-absent semantics: concurrent first computations for one key are
// allowed and merely redundant, the first inserted value is kept and a value
// is never mutated after insertion. Stores are bounded so that entries for
// types that are no longer queried are evicted under pressure. Clear drops
// every entry, e.g. when the host unloads a module.
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DefaultSize is the default capacity of every store
const DefaultSize = 4096

// Service is a lifecycle-managed group of caches
type Service struct {
	size   int
	logger *zap.Logger

	mu     sync.Mutex
	stores []purger

	lookups *prometheus.CounterVec
	clears  prometheus.Counter
}

type purger interface {
	name() string
	purge()
}

// Option configures a Service
type Option func(*Service)

// WithSize sets the capacity of every store
func WithSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.size = size
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty cache service
func New(opts ...Option) *Service {
	s := &Service{
		size:   DefaultSize,
		logger: zap.NewNop(),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metatags",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by store and result.",
		}, []string{"store", "result"}),
		clears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metatags",
			Subsystem: "cache",
			Name:      "clears_total",
			Help:      "Number of explicit cache clears.",
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register exports the cache metrics to reg
func (s *Service) Register(reg prometheus.Registerer) error {
	if err := reg.Register(s.lookups); err != nil {
		return fmt.Errorf("failed to register cache lookups metric: %w", err)
	}
	if err := reg.Register(s.clears); err != nil {
		return fmt.Errorf("failed to register cache clears metric: %w", err)
	}
	return nil
}

// Size returns the capacity of each store
func (s *Service) Size() int {
	return s.size
}

// Clear drops every entry of every store
func (s *Service) Clear() {
	s.mu.Lock()
	stores := make([]purger, len(s.stores))
	copy(stores, s.stores)
	s.mu.Unlock()

	for _, store := range stores {
		store.purge()
	}
	s.clears.Inc()
	s.logger.Debug("caches cleared", zap.Int("stores", len(stores)))
}

// Stores returns the names of the registered stores
func (s *Service) Stores() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.stores))
	for i, store := range s.stores {
		names[i] = store.name()
	}
	return names
}

func (s *Service) register(p purger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores = append(s.stores, p)
}

// Stats reports lookup counts of a store
type Stats struct {
	Hits   uint64
	Misses uint64
	Len    int
}

// Store is a typed, bounded cache owned by a Service
type Store[K comparable, V any] struct {
	label   string
	entries *lru.Cache
	hits    atomic.Uint64
	misses  atomic.Uint64
	hitC    prometheus.Counter
	missC   prometheus.Counter
}

// NewStore creates a store and registers it with svc
func NewStore[K comparable, V any](svc *Service, name string) *Store[K, V] {
	entries, err := lru.New(svc.size)
	if err != nil {
		// lru.New only rejects non-positive sizes, which WithSize never sets
		panic(fmt.Sprintf("cache: invalid size %d: %v", svc.size, err))
	}
	s := &Store[K, V]{
		label:   name,
		entries: entries,
		hitC:    svc.lookups.WithLabelValues(name, "hit"),
		missC:   svc.lookups.WithLabelValues(name, "miss"),
	}
	svc.register(s)
	return s
}

// Get returns the cached value for key
func (s *Store[K, V]) Get(key K) (V, bool) {
	if v, ok := s.entries.Get(key); ok {
		s.hits.Add(1)
		s.hitC.Inc()
		return v.(V), true
	}
	s.misses.Add(1)
	s.missC.Inc()
	var zero V
	return zero, false
}

// GetOrCompute returns the cached value for key, computing and inserting it
// if absent. When two callers race, both compute and the first insertion is
// returned to both.
func (s *Store[K, V]) GetOrCompute(key K, compute func() V) V {
	if v, ok := s.Get(key); ok {
		return v
	}
	return s.Add(key, compute())
}

// Add inserts v for key unless an entry is already present, in which case
// the cached value is returned. Add does not count as a lookup.
func (s *Store[K, V]) Add(key K, v V) V {
	if previous, ok, _ := s.entries.PeekOrAdd(key, v); ok {
		return previous.(V)
	}
	return v
}

// Len returns the number of cached entries
func (s *Store[K, V]) Len() int {
	return s.entries.Len()
}

// Stats returns the lookup counts
func (s *Store[K, V]) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load(), Len: s.entries.Len()}
}

func (s *Store[K, V]) name() string {
	return s.label
}

func (s *Store[K, V]) purge() {
	s.entries.Purge()
}
