// Package attrs computes the ordered attribute accessors of tag types.
package attrs

import (
	"errors"
	"fmt"
	"sort"

	"github.com/conduit-lang/metatags/runtime/cache"
	"github.com/conduit-lang/metatags/runtime/element"
)

// ValidationError reports an attribute that could not be read
type ValidationError struct {
	Tag       string
	Attribute string
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("could not read attribute '%s' of tag [%s]: %v", e.Attribute, e.Tag, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Table holds the attribute accessors of one tag type sorted by name
type Table struct {
	tagType     *element.TagType
	accessors   []*element.AttributeDecl
	mayFail     []bool
	canFail     bool
	hasDefaults bool
	hasNested   bool
}

// Compute builds the table for t without caching
func Compute(t *element.TagType) *Table {
	table := &Table{tagType: t}
	for _, m := range t.Members() {
		if m.IsAccessor() {
			table.accessors = append(table.accessors, m)
		}
	}
	sort.SliceStable(table.accessors, func(i, j int) bool {
		return table.accessors[i].Name < table.accessors[j].Name
	})
	table.mayFail = make([]bool, len(table.accessors))
	for i, a := range table.accessors {
		table.mayFail[i] = a.Type.MayFail()
		table.canFail = table.canFail || table.mayFail[i]
		table.hasDefaults = table.hasDefaults || a.HasDefault()
		table.hasNested = table.hasNested || a.Type.IsNestedTag()
	}
	return table
}

// TagType returns the tag type the table describes
func (t *Table) TagType() *element.TagType {
	return t.tagType
}

// Len returns the number of accessors
func (t *Table) Len() int {
	return len(t.accessors)
}

// Get returns the accessor at index i
func (t *Table) Get(i int) *element.AttributeDecl {
	return t.accessors[i]
}

// IndexOf returns the index of the named accessor, or -1
func (t *Table) IndexOf(name string) int {
	for i, a := range t.accessors {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the accessor names in table order
func (t *Table) Names() []string {
	names := make([]string, len(t.accessors))
	for i, a := range t.accessors {
		names[i] = a.Name
	}
	return names
}

// MayFail reports whether reading accessor i can fail
func (t *Table) MayFail(i int) bool {
	return t.mayFail[i]
}

// CanFail reports whether reading any accessor can fail
func (t *Table) CanFail() bool {
	return t.canFail
}

// HasDefaultValues reports whether any accessor declares a default
func (t *Table) HasDefaultValues() bool {
	return t.hasDefaults
}

// HasNestedTags reports whether any accessor returns a tag or tag array
func (t *Table) HasNestedTags() bool {
	return t.hasNested
}

// IsValid reads every accessor that may fail and reports whether all of
// them can be read
func (t *Table) IsValid(tag *element.Tag) bool {
	return t.check(tag) == nil
}

// Validate reads every accessor that may fail and returns a
// *ValidationError for the first one that cannot be read
func (t *Table) Validate(tag *element.Tag) error {
	return t.check(tag)
}

func (t *Table) check(tag *element.Tag) error {
	if !t.canFail {
		return nil
	}
	for i, a := range t.accessors {
		if !t.mayFail[i] {
			continue
		}
		if _, err := tag.Get(a.Name); err != nil {
			return &ValidationError{Tag: t.tagType.Name(), Attribute: a.Name, Err: err}
		}
	}
	return nil
}

// IsUnavailable reports whether err was caused by a missing referenced symbol
func IsUnavailable(err error) bool {
	return errors.Is(err, element.ErrUnavailable)
}

// Tables caches tables per tag type
type Tables struct {
	store *cache.Store[*element.TagType, *Table]
}

// NewTables creates a table cache owned by svc
func NewTables(svc *cache.Service) *Tables {
	return &Tables{store: cache.NewStore[*element.TagType, *Table](svc, "attribute_tables")}
}

// For returns the cached table for t
func (ts *Tables) For(t *element.TagType) *Table {
	return ts.store.GetOrCompute(t, func() *Table {
		return Compute(t)
	})
}
