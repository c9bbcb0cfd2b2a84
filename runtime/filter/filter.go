// Package filter decides which tag types are invisible to the merge engine.
package filter

import (
	"sort"
	"strings"
)

// Filter is a predicate over fully-qualified tag type names. Matching names
// are filtered out.
type Filter interface {
	Matches(typeName string) bool

	// Key identifies the filter for caching. Filters with equal keys are
	// interchangeable.
	Key() string
}

// Plain matches the foundational namespaces. It is always applied in
// addition to any configured filter.
var Plain = Packages("lang", "conduit.lang")

// All matches every type name
var All Filter = constant{matches: true}

// None matches no type name
var None Filter = constant{matches: false}

type constant struct {
	matches bool
}

func (c constant) Matches(string) bool {
	return c.matches
}

func (c constant) Key() string {
	if c.matches {
		return "all"
	}
	return "none"
}

func (c constant) String() string {
	return c.Key()
}

// PackagesFilter matches names that start with one of its package prefixes
type PackagesFilter struct {
	prefixes []string
	key      string
}

// Packages creates a filter for the given packages. Prefixes are normalized
// to end with "." so that "foo" does not match "foobar.X".
func Packages(packages ...string) *PackagesFilter {
	set := make(map[string]struct{}, len(packages))
	for _, p := range packages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasSuffix(p, ".") {
			p += "."
		}
		set[p] = struct{}{}
	}
	prefixes := make([]string, 0, len(set))
	for p := range set {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return &PackagesFilter{
		prefixes: prefixes,
		key:      "packages[" + strings.Join(prefixes, ",") + "]",
	}
}

// Matches implements Filter
func (f *PackagesFilter) Matches(typeName string) bool {
	for _, p := range f.prefixes {
		if strings.HasPrefix(typeName, p) {
			return true
		}
	}
	return false
}

// Key implements Filter
func (f *PackagesFilter) Key() string {
	return f.key
}

// Prefixes returns the sorted, normalized prefixes
func (f *PackagesFilter) Prefixes() []string {
	result := make([]string, len(f.prefixes))
	copy(result, f.prefixes)
	return result
}

// Equal reports whether both filters have the same prefix set
func (f *PackagesFilter) Equal(other *PackagesFilter) bool {
	return other != nil && f.key == other.key
}

func (f *PackagesFilter) String() string {
	return f.key
}

// WithPlain returns a filter matching f or the foundational namespaces
func WithPlain(f Filter) Filter {
	if f == nil || f == Plain || f.Key() == Plain.Key() {
		return Plain
	}
	if f == All {
		return All
	}
	return withPlain{f}
}

type withPlain struct {
	Filter
}

func (w withPlain) Matches(typeName string) bool {
	return Plain.Matches(typeName) || w.Filter.Matches(typeName)
}

func (w withPlain) Key() string {
	return "plain+" + w.Filter.Key()
}
