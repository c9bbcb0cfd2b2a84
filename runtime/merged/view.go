package merged

import (
	"iter"
	"sort"
	"sync"

	"github.com/conduit-lang/metatags/runtime/element"
	"github.com/conduit-lang/metatags/runtime/repeatable"
	"github.com/conduit-lang/metatags/runtime/scan"
)

// View is the merged view of every tag present on an element. It is safe for
// concurrent use; aggregates are collected once on first enumeration.
type View struct {
	cfg      *config
	element  element.Element
	strategy scan.Strategy
	empty    bool

	once       sync.Once
	aggregates []aggregate
}

// aggregate holds the root tags found at one level of the hierarchy
type aggregate struct {
	index   int
	entries []rootEntry
}

// rootEntry is one declared, unwrapped and unfiltered tag
type rootEntry struct {
	tag      *element.Tag
	source   element.Element
	origin   Origin
	mappings *typeMappings
}

func newView(cfg *config, el element.Element, strategy scan.Strategy) *View {
	return &View{
		cfg:      cfg,
		element:  el,
		strategy: strategy,
		empty:    cfg.engine.scanner.IsKnownEmpty(el, strategy),
	}
}

// Element returns the element the view was created for
func (v *View) Element() element.Element {
	return v.element
}

// Strategy returns the search strategy of the view
func (v *View) Strategy() scan.Strategy {
	return v.strategy
}

// IsPresent reports whether a tag of the named type is declared on the
// searched hierarchy or reachable through meta-tags
func (v *View) IsPresent(tagType string) bool {
	return v.present(tagType, false)
}

// IsDirectlyPresent reports whether a tag of the named type is declared on
// the searched hierarchy, ignoring meta-tags. A repeatable container counts
// as present even though Stream of the container type is empty because its
// items are unwrapped.
func (v *View) IsDirectlyPresent(tagType string) bool {
	return v.present(tagType, true)
}

func (v *View) present(tagType string, directOnly bool) bool {
	if v.empty || v.cfg.filter.Matches(tagType) {
		return false
	}
	p := &presenceProcessor{cfg: v.cfg, tagType: tagType, directOnly: directOnly}
	found, _ := scan.Scan[bool](v.cfg.engine.scanner, v.element, v.strategy, p)
	return found
}

// GetOption customizes Get
type GetOption func(*getOptions)

type getOptions struct {
	predicate func(Merged) bool
	selector  Selector
}

// WithPredicate only considers occurrences matching predicate
func WithPredicate(predicate func(Merged) bool) GetOption {
	return func(o *getOptions) {
		o.predicate = predicate
	}
}

// WithSelector picks among several matching occurrences. The default is
// Nearest.
func WithSelector(selector Selector) GetOption {
	return func(o *getOptions) {
		if selector != nil {
			o.selector = selector
		}
	}
}

// Get returns the selected occurrence of the named type, or Missing. An
// error is returned only when the alias declarations involved in merging
// the occurrence are invalid and no valid occurrence was found before it.
func (v *View) Get(tagType string, opts ...GetOption) (Merged, error) {
	o := getOptions{selector: Nearest()}
	for _, opt := range opts {
		opt(&o)
	}
	if v.empty || v.cfg.filter.Matches(tagType) {
		return Missing, nil
	}
	p := &finderProcessor{cfg: v.cfg, tagType: tagType, opts: o, result: Missing}
	result, _ := scan.Scan[Merged](v.cfg.engine.scanner, v.element, v.strategy, p)
	if p.err != nil {
		return Missing, p.err
	}
	return result, nil
}

// Stream enumerates every occurrence of the named type ordered by aggregate
// index and then by distance. An invalid alias declaration yields an error
// for the affected root tag after the occurrences of its aggregate and
// enumeration continues. The sequence can be
// iterated again without rescanning the hierarchy.
func (v *View) Stream(tagType string) iter.Seq2[Merged, error] {
	return v.stream(func(name string) bool {
		return name == tagType
	})
}

// All enumerates every occurrence of every type, in Stream order
func (v *View) All() iter.Seq2[Merged, error] {
	return v.stream(func(string) bool {
		return true
	})
}

func (v *View) stream(match func(name string) bool) iter.Seq2[Merged, error] {
	return func(yield func(Merged, error) bool) {
		for _, agg := range v.loadAggregates() {
			var candidates []Merged
			var errs []error
			for _, entry := range agg.entries {
				tm := entry.mappings
				relevant := false
				for _, m := range tm.all {
					if match(m.tagType.Name()) {
						relevant = true
						break
					}
				}
				if !relevant {
					continue
				}
				if tm.err != nil {
					errs = append(errs, tm.err)
					continue
				}
				for _, m := range tm.all {
					if !match(m.tagType.Name()) {
						continue
					}
					merged, err := newMerged(v.cfg, m, entry.tag, entry.source, agg.index, entry.origin)
					if err != nil {
						errs = append(errs, err)
						continue
					}
					candidates = append(candidates, merged)
				}
			}
			sort.SliceStable(candidates, func(i, j int) bool {
				return candidates[i].Distance() < candidates[j].Distance()
			})
			for _, c := range candidates {
				if !yield(c, nil) {
					return
				}
			}
			for _, err := range errs {
				if !yield(Missing, err) {
					return
				}
			}
		}
	}
}

func (v *View) loadAggregates() []aggregate {
	v.once.Do(func() {
		if v.empty {
			return
		}
		p := &collectProcessor{cfg: v.cfg}
		scan.Scan[[]aggregate](v.cfg.engine.scanner, v.element, v.strategy, p)
		v.aggregates = p.aggregates
	})
	return v.aggregates
}

// roots unwraps containers and drops filtered or unreadable tags
func (c *config) roots(source element.Element, tags []*element.Tag) []rootEntry {
	entries := make([]rootEntry, 0, len(tags))
	for _, declared := range tags {
		unwrapped := repeatable.Unwrap(c.containers, declared)
		origin := OriginDirect
		if len(unwrapped) != 1 || unwrapped[0] != declared {
			origin = OriginRepeated
		}
		for _, tag := range unwrapped {
			if c.filter.Matches(tag.Type().Name()) {
				continue
			}
			if origin == OriginRepeated && !c.engine.tables.For(tag.Type()).IsValid(tag) {
				continue
			}
			entries = append(entries, rootEntry{
				tag:      tag,
				source:   source,
				origin:   origin,
				mappings: c.mappings(tag.Type()),
			})
		}
	}
	return entries
}

type collectProcessor struct {
	cfg        *config
	aggregates []aggregate
}

func (p *collectProcessor) DoWithAggregate(int) ([]aggregate, bool) {
	return nil, false
}

func (p *collectProcessor) DoWithTags(index int, source element.Element, tags []*element.Tag) ([]aggregate, bool) {
	entries := p.cfg.roots(source, tags)
	if n := len(p.aggregates); n > 0 && p.aggregates[n-1].index == index {
		p.aggregates[n-1].entries = append(p.aggregates[n-1].entries, entries...)
	} else {
		p.aggregates = append(p.aggregates, aggregate{index: index, entries: entries})
	}
	return nil, false
}

func (p *collectProcessor) Finish(result []aggregate, found bool) ([]aggregate, bool) {
	return p.aggregates, true
}

type presenceProcessor struct {
	cfg        *config
	tagType    string
	directOnly bool
}

func (p *presenceProcessor) DoWithAggregate(int) (bool, bool) {
	return false, false
}

func (p *presenceProcessor) DoWithTags(_ int, source element.Element, tags []*element.Tag) (bool, bool) {
	for _, tag := range tags {
		if tag.Type().Name() == p.tagType {
			return true, true
		}
	}
	for _, entry := range p.cfg.roots(source, tags) {
		if entry.tag.Type().Name() == p.tagType {
			return true, true
		}
		if !p.directOnly && entry.mappings.contains(p.tagType) {
			return true, true
		}
	}
	return false, false
}

func (p *presenceProcessor) Finish(result bool, found bool) (bool, bool) {
	return result && found, found
}

// finderProcessor searches for the selected occurrence, stopping as soon as
// the selector reports a best candidate
type finderProcessor struct {
	cfg     *config
	tagType string
	opts    getOptions
	result  Merged
	err     error
}

func (p *finderProcessor) DoWithAggregate(int) (Merged, bool) {
	if p.err != nil {
		return Missing, true
	}
	// farther aggregates never win under Nearest
	if _, ok := p.opts.selector.(nearest); ok && p.result.IsPresent() {
		return p.result, true
	}
	return Missing, false
}

func (p *finderProcessor) DoWithTags(index int, source element.Element, tags []*element.Tag) (Merged, bool) {
	for _, entry := range p.cfg.roots(source, tags) {
		tm := entry.mappings
		if !tm.contains(p.tagType) {
			continue
		}
		if tm.err != nil {
			if p.result.IsPresent() {
				continue
			}
			p.err = tm.err
			return Missing, true
		}
		for _, m := range tm.all {
			if m.tagType.Name() != p.tagType {
				continue
			}
			candidate, err := newMerged(p.cfg, m, entry.tag, entry.source, index, entry.origin)
			if err != nil {
				if p.result.IsPresent() {
					continue
				}
				p.err = err
				return Missing, true
			}
			if p.opts.predicate != nil && !p.opts.predicate(candidate) {
				continue
			}
			if !p.result.IsPresent() {
				p.result = candidate
			} else {
				p.result = p.opts.selector.Select(p.result, candidate)
			}
			if p.opts.selector.IsBest(p.result) {
				return p.result, true
			}
		}
	}
	return Missing, false
}

func (p *finderProcessor) Finish(result Merged, found bool) (Merged, bool) {
	if found {
		return result, true
	}
	return p.result, p.result.IsPresent()
}
