package merged

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/metatags/runtime/element"
)

// Origin tells how a merged occurrence was produced
type Origin int

const (
	// OriginMissing is the origin of the Missing sentinel
	OriginMissing Origin = iota

	// OriginDirect is a tag declared on the searched hierarchy
	OriginDirect

	// OriginRepeated is a tag unpacked from a repeatable container
	OriginRepeated

	// OriginMeta is a meta-tag whose attributes are resolved through aliases
	OriginMeta
)

func (o Origin) String() string {
	switch o {
	case OriginDirect:
		return "direct"
	case OriginRepeated:
		return "repeated"
	case OriginMeta:
		return "meta"
	default:
		return "missing"
	}
}

// Merged is one merged tag occurrence with fully resolved attributes.
// The zero value is Missing.
type Merged struct {
	cfg            *config
	mapping        *mapping
	rootTag        *element.Tag
	source         element.Element
	aggregateIndex int
	origin         Origin
	values         map[string]element.Value
	sources        map[string]*element.Tag
}

// Missing is returned when a requested tag is not present
var Missing = Merged{}

// newMerged resolves every attribute of m for the concrete root occurrence
func newMerged(cfg *config, m *mapping, rootTag *element.Tag, source element.Element, aggregateIndex int, rootOrigin Origin) (Merged, error) {
	origin := rootOrigin
	if m.distance > 0 {
		origin = OriginMeta
	}
	merged := Merged{
		cfg:            cfg,
		mapping:        m,
		rootTag:        rootTag,
		source:         source,
		aggregateIndex: aggregateIndex,
		origin:         origin,
		values:         make(map[string]element.Value, m.table.Len()),
		sources:        make(map[string]*element.Tag, m.table.Len()),
	}
	for i := 0; i < m.table.Len(); i++ {
		name := m.table.Get(i).Name
		value, from, err := merged.resolve(i)
		if err != nil {
			return Missing, err
		}
		merged.values[name] = value
		merged.sources[name] = from
	}
	return merged, nil
}

// instance returns the concrete occurrence for a level of the chain
func (m Merged) instance(level int) *element.Tag {
	if level == 0 {
		return m.rootTag
	}
	return m.mapping.chain[level].metaTag
}

// resolve walks the alias group of attribute i from the root outward. The
// first level supplying an explicit value wins; otherwise the default of the
// closest member applies.
func (m Merged) resolve(i int) (element.Value, *element.Tag, error) {
	group := m.mapping.groups[i]
	for level, names := range group.levels {
		inst := m.instance(level)
		var found element.Value
		foundAttr := ""
		for _, name := range names {
			if !inst.IsExplicit(name) {
				continue
			}
			v, err := inst.Get(name)
			if err != nil {
				return nil, nil, err
			}
			if foundAttr != "" && !element.Equal(found, v) {
				return nil, nil, &MirrorConflictError{
					Tag:    inst.Type().Name(),
					Source: m.sourceName(),
					First:  foundAttr,
					Second: name,
					Values: [2]string{element.FormatValue(found), element.FormatValue(v)},
				}
			}
			found, foundAttr = v, name
		}
		if foundAttr != "" {
			return m.conform(i, found), inst, nil
		}
	}
	for level, names := range group.levels {
		inst := m.instance(level)
		for _, name := range names {
			if attr := inst.Type().Attribute(name); attr != nil && attr.HasDefault() {
				v, err := inst.Get(name)
				if err != nil {
					return nil, nil, err
				}
				return m.conform(i, v), inst, nil
			}
		}
	}
	name := m.mapping.table.Get(i).Name
	return nil, nil, fmt.Errorf("no value for mandatory attribute '%s' of tag [%s]", name, m.mapping.tagType.Name())
}

// conform wraps a scalar supplied by an alias into the array attribute it
// targets
func (m Merged) conform(i int, v element.Value) element.Value {
	if !m.mapping.table.Get(i).Type.Array {
		return v
	}
	if _, ok := v.([]element.Value); ok {
		return v
	}
	return []element.Value{v}
}

func (m Merged) sourceName() string {
	if m.source == nil {
		return "<unknown>"
	}
	return m.source.Name()
}

// IsPresent reports whether m is an actual occurrence
func (m Merged) IsPresent() bool {
	return m.mapping != nil
}

// IsDirectlyPresent reports whether m was declared on the hierarchy rather
// than reached through meta-tags
func (m Merged) IsDirectlyPresent() bool {
	return m.IsPresent() && m.mapping.distance == 0
}

// IsMetaPresent reports whether m was reached through meta-tags
func (m Merged) IsMetaPresent() bool {
	return m.IsPresent() && m.mapping.distance > 0
}

// Type returns the tag type name, or "" for Missing
func (m Merged) Type() string {
	if !m.IsPresent() {
		return ""
	}
	return m.mapping.tagType.Name()
}

// TagType returns the tag type, or nil for Missing
func (m Merged) TagType() *element.TagType {
	if !m.IsPresent() {
		return nil
	}
	return m.mapping.tagType
}

// Distance returns the number of meta-tag hops from the declared tag, or -1
// for Missing
func (m Merged) Distance() int {
	if !m.IsPresent() {
		return -1
	}
	return m.mapping.distance
}

// AggregateIndex returns the hierarchy level the declared tag was found at,
// or -1 for Missing
func (m Merged) AggregateIndex() int {
	if !m.IsPresent() {
		return -1
	}
	return m.aggregateIndex
}

// Source returns the element that declares the root tag
func (m Merged) Source() element.Element {
	return m.source
}

// Origin returns how the occurrence was produced
func (m Merged) Origin() Origin {
	if !m.IsPresent() {
		return OriginMissing
	}
	return m.origin
}

// MetaTypes returns the tag type names from the declared tag to this one
func (m Merged) MetaTypes() []string {
	if !m.IsPresent() {
		return nil
	}
	return m.mapping.metaTypes()
}

// Tag returns the concrete occurrence backing m: the declared tag for
// distance 0, otherwise the meta-tag instance
func (m Merged) Tag() *element.Tag {
	if !m.IsPresent() {
		return nil
	}
	return m.instance(m.mapping.distance)
}

// Root returns the merged occurrence of the declared tag m was reached from
func (m Merged) Root() Merged {
	if !m.IsPresent() || m.mapping.distance == 0 {
		return m
	}
	root, err := newMerged(m.cfg, m.mapping.root, m.rootTag, m.source, m.aggregateIndex, m.rootOrigin())
	if err != nil {
		return Missing
	}
	return root
}

func (m Merged) rootOrigin() Origin {
	if m.origin == OriginMeta {
		return OriginDirect
	}
	return m.origin
}

// Attribute returns the resolved value of an attribute
func (m Merged) Attribute(name string) (element.Value, error) {
	if !m.IsPresent() {
		return nil, ErrNotPresent
	}
	v, ok := m.values[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s' on tag [%s]", element.ErrNoAttribute, name, m.Type())
	}
	return v, nil
}

// Attributes returns a copy of every resolved attribute
func (m Merged) Attributes() map[string]element.Value {
	result := make(map[string]element.Value, len(m.values))
	for k, v := range m.values {
		result[k] = v
	}
	return result
}

// SourceOf returns the concrete occurrence that supplied an attribute value
func (m Merged) SourceOf(name string) (*element.Tag, error) {
	if !m.IsPresent() {
		return nil, ErrNotPresent
	}
	src, ok := m.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s' on tag [%s]", element.ErrNoAttribute, name, m.Type())
	}
	return src, nil
}

// HasDefaultValue reports whether the resolved value equals the declared
// default of the attribute
func (m Merged) HasDefaultValue(name string) (bool, error) {
	v, err := m.Attribute(name)
	if err != nil {
		return false, err
	}
	attr := m.mapping.tagType.Attribute(name)
	return attr.HasDefault() && element.Equal(v, attr.Default), nil
}

// HasNonDefaultValue is the inverse of HasDefaultValue
func (m Merged) HasNonDefaultValue(name string) (bool, error) {
	isDefault, err := m.HasDefaultValue(name)
	if err != nil {
		return false, err
	}
	return !isDefault, nil
}

// String returns a string attribute
func (m Merged) String(name string) (string, error) {
	return typed[string](m, name)
}

// Int returns an int attribute
func (m Merged) Int(name string) (int64, error) {
	return typed[int64](m, name)
}

// Bool returns a bool attribute
func (m Merged) Bool(name string) (bool, error) {
	return typed[bool](m, name)
}

// Float returns a float attribute
func (m Merged) Float(name string) (float64, error) {
	return typed[float64](m, name)
}

// Enum returns an enum attribute
func (m Merged) Enum(name string) (element.EnumValue, error) {
	return typed[element.EnumValue](m, name)
}

// TypeRef returns a type-reference attribute
func (m Merged) TypeRef(name string) (element.TypeRef, error) {
	return typed[element.TypeRef](m, name)
}

// Strings returns a string array attribute
func (m Merged) Strings(name string) ([]string, error) {
	items, err := typed[[]element.Value](m, name)
	if err != nil {
		return nil, err
	}
	result := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("attribute '%s' of tag [%s] is not a string array", name, m.Type())
		}
		result[i] = s
	}
	return result, nil
}

// Nested returns the merged view of a nested tag attribute
func (m Merged) Nested(name string) (Merged, error) {
	nested, err := typed[*element.Tag](m, name)
	if err != nil {
		return Missing, err
	}
	return m.cfg.mergeNested(nested, m.source, m.aggregateIndex)
}

// NestedArray returns the merged views of a nested tag array attribute
func (m Merged) NestedArray(name string) ([]Merged, error) {
	items, err := typed[[]element.Value](m, name)
	if err != nil {
		return nil, err
	}
	result := make([]Merged, 0, len(items))
	for _, item := range items {
		nested, ok := item.(*element.Tag)
		if !ok {
			return nil, fmt.Errorf("attribute '%s' of tag [%s] is not a tag array", name, m.Type())
		}
		merged, err := m.cfg.mergeNested(nested, m.source, m.aggregateIndex)
		if err != nil {
			return nil, err
		}
		result = append(result, merged)
	}
	return result, nil
}

func (m Merged) Format(f fmt.State, verb rune) {
	fmt.Fprint(f, m.describe())
}

func (m Merged) describe() string {
	if !m.IsPresent() {
		return "<missing>"
	}
	names := make([]string, 0, len(m.values))
	for name := range m.values {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + element.FormatValue(m.values[name])
	}
	return "@" + m.Type() + "(" + strings.Join(parts, ", ") + ")"
}

func typed[T any](m Merged, name string) (T, error) {
	var zero T
	v, err := m.Attribute(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("attribute '%s' of tag [%s] has type %T, not %T", name, m.Type(), v, zero)
	}
	return t, nil
}
