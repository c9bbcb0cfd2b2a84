// Package merged builds merged views of the tags present on program
// elements.
//
// A tag type may itself be tagged with meta-tags. A merged view exposes the
// declared tags of an element together with every meta-tag reachable from
// them, with attribute values substituted along alias declarations: an
// explicit value on a closer tag overrides the attribute it aliases on a
// meta-tag.
//
//	engine := merged.NewEngine(merged.WithTagTypes(universe))
//	view := engine.FromStrategy(class, scan.TypeHierarchy)
//	cacheable, err := view.Get("app.Cacheable")
//	ttl, err := cacheable.Int("ttl")
package merged

import (
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/metatags/runtime/attrs"
	"github.com/conduit-lang/metatags/runtime/cache"
	"github.com/conduit-lang/metatags/runtime/element"
	"github.com/conduit-lang/metatags/runtime/filter"
	"github.com/conduit-lang/metatags/runtime/repeatable"
	"github.com/conduit-lang/metatags/runtime/scan"
)

// Engine creates merged views. Every derived structure is cached in the
// engine's cache service. An Engine is safe for concurrent use.
type Engine struct {
	cache    *cache.Service
	tables   *attrs.Tables
	scanner  *scan.Scanner
	mappings *cache.Store[mappingKey, *typeMappings]
	lookup   repeatable.TagTypeLookup
	logger   *zap.Logger
}

type mappingKey struct {
	tagType    *element.TagType
	filter     string
	containers string
}

type options struct {
	cache    *cache.Service
	size     int
	logger   *zap.Logger
	resolver element.GenericResolver
	lookup   repeatable.TagTypeLookup
}

// Option configures an Engine
type Option func(*options)

// WithCache uses svc instead of a private cache service
func WithCache(svc *cache.Service) Option {
	return func(o *options) {
		o.cache = svc
	}
}

// WithCacheSize sets the store capacity of the private cache service
func WithCacheSize(size int) Option {
	return func(o *options) {
		o.size = size
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithResolver sets the generic resolver used for override matching
func WithResolver(resolver element.GenericResolver) Option {
	return func(o *options) {
		o.resolver = resolver
	}
}

// WithTagTypes sets the tag type lookup used by the standard repeatable
// containers
func WithTagTypes(lookup repeatable.TagTypeLookup) Option {
	return func(o *options) {
		o.lookup = lookup
	}
}

// NewEngine creates an engine
func NewEngine(opts ...Option) *Engine {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.cache == nil {
		o.cache = cache.New(cache.WithSize(o.size), cache.WithLogger(o.logger))
	}
	tables := attrs.NewTables(o.cache)
	return &Engine{
		cache:    o.cache,
		tables:   tables,
		scanner:  scan.New(o.cache, tables, o.resolver, o.logger),
		mappings: cache.NewStore[mappingKey, *typeMappings](o.cache, "tag_mappings"),
		lookup:   o.lookup,
		logger:   o.logger,
	}
}

// From returns the directly declared tags of el, unwrapping standard
// repeatable containers
func (e *Engine) From(el element.Element) *View {
	return e.FromStrategy(el, scan.Direct)
}

// FromStrategy returns the tags of el found with strategy
func (e *Engine) FromStrategy(el element.Element, strategy scan.Strategy) *View {
	view, _ := e.FromConfig(el, strategy, repeatable.Standard(e.lookup), filter.Plain)
	return view
}

// FromConfig returns the tags of el found with strategy, unwrapped with
// containers and filtered with f. The foundational namespaces are always
// filtered in addition to f.
func (e *Engine) FromConfig(el element.Element, strategy scan.Strategy, containers repeatable.Containers, f filter.Filter) (*View, error) {
	if f == nil {
		return nil, ErrNilFilter
	}
	if containers == nil {
		return nil, ErrNilContainers
	}
	cfg := &config{engine: e, filter: filter.WithPlain(f), containers: containers}
	return newView(cfg, el, strategy), nil
}

// CheckTagType validates the alias declarations of t and of every meta-tag
// reachable from it
func (e *Engine) CheckTagType(t *element.TagType, containers repeatable.Containers, f filter.Filter) error {
	if f == nil {
		return ErrNilFilter
	}
	if containers == nil {
		return ErrNilContainers
	}
	cfg := &config{engine: e, filter: filter.WithPlain(f), containers: containers}
	return cfg.mappings(t).err
}

// ClearCaches drops every cached structure
func (e *Engine) ClearCaches() {
	e.cache.Clear()
}

// Cache returns the engine's cache service
func (e *Engine) Cache() *cache.Service {
	return e.cache
}

// Scanner returns the engine's hierarchy scanner
func (e *Engine) Scanner() *scan.Scanner {
	return e.scanner
}

// Tables returns the engine's attribute tables
func (e *Engine) Tables() *attrs.Tables {
	return e.tables
}

// config is the immutable configuration shared by a view and the occurrences
// it produces
type config struct {
	engine     *Engine
	filter     filter.Filter
	containers repeatable.Containers
}

func (c *config) mappings(t *element.TagType) *typeMappings {
	key := mappingKey{tagType: t, filter: c.filter.Key(), containers: c.containers.Key()}
	return c.engine.mappings.GetOrCompute(key, func() *typeMappings {
		return buildMappings(c.engine.scanner, c.engine.tables, t, c.filter, c.containers)
	})
}

func (c *config) mergeNested(tag *element.Tag, source element.Element, aggregateIndex int) (Merged, error) {
	if c == nil {
		return Missing, ErrNotPresent
	}
	tm := c.mappings(tag.Type())
	if tm.err != nil {
		return Missing, tm.err
	}
	return newMerged(c, tm.all[0], tag, source, aggregateIndex, OriginDirect)
}

var (
	defaultMu     sync.RWMutex
	defaultEngine = NewEngine()
)

// Default returns the process-wide engine
func Default() *Engine {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultEngine
}

// SetDefault replaces the process-wide engine
func SetDefault(e *Engine) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultEngine = e
}

// From returns the directly declared tags of el using the default engine
func From(el element.Element) *View {
	return Default().From(el)
}

// FromStrategy returns the tags of el found with strategy using the default
// engine
func FromStrategy(el element.Element, strategy scan.Strategy) *View {
	return Default().FromStrategy(el, strategy)
}

// FromConfig is Engine.FromConfig on the default engine
func FromConfig(el element.Element, strategy scan.Strategy, containers repeatable.Containers, f filter.Filter) (*View, error) {
	return Default().FromConfig(el, strategy, containers, f)
}

// ClearCaches clears the caches of the default engine
func ClearCaches() {
	Default().ClearCaches()
}
