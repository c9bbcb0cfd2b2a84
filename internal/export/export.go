// Package export captures the merged tag view of a model as a plain
// snapshot that can be encoded as JSON, YAML, MessagePack or CBOR.
package export

import (
	"errors"
	"fmt"
	"sort"

	"github.com/conduit-lang/metatags/internal/loader"
	"github.com/conduit-lang/metatags/runtime/element"
	"github.com/conduit-lang/metatags/runtime/filter"
	"github.com/conduit-lang/metatags/runtime/merged"
	"github.com/conduit-lang/metatags/runtime/repeatable"
	"github.com/conduit-lang/metatags/runtime/scan"
)

// Snapshot is the exported form of a model
type Snapshot struct {
	Model    string        `json:"model" yaml:"model" msgpack:"model" cbor:"model"`
	Strategy string        `json:"strategy" yaml:"strategy" msgpack:"strategy" cbor:"strategy"`
	TagTypes []TagType     `json:"tag_types" yaml:"tag_types" msgpack:"tag_types" cbor:"tag_types"`
	Elements []ElementTags `json:"elements" yaml:"elements" msgpack:"elements" cbor:"elements"`
}

// TagType describes a declared tag type
type TagType struct {
	Name       string      `json:"name" yaml:"name" msgpack:"name" cbor:"name"`
	Inherited  bool        `json:"inherited,omitempty" yaml:"inherited,omitempty" msgpack:"inherited,omitempty" cbor:"inherited,omitempty"`
	Container  string      `json:"container,omitempty" yaml:"container,omitempty" msgpack:"container,omitempty" cbor:"container,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty" yaml:"attributes,omitempty" msgpack:"attributes,omitempty" cbor:"attributes,omitempty"`
	MetaTags   []string    `json:"meta_tags,omitempty" yaml:"meta_tags,omitempty" msgpack:"meta_tags,omitempty" cbor:"meta_tags,omitempty"`
}

// Attribute describes an attribute declaration
type Attribute struct {
	Name     string `json:"name" yaml:"name" msgpack:"name" cbor:"name"`
	Type     string `json:"type" yaml:"type" msgpack:"type" cbor:"type"`
	Default  any    `json:"default,omitempty" yaml:"default,omitempty" msgpack:"default,omitempty" cbor:"default,omitempty"`
	AliasFor string `json:"alias_for,omitempty" yaml:"alias_for,omitempty" msgpack:"alias_for,omitempty" cbor:"alias_for,omitempty"`
}

// ElementTags lists the merged occurrences visible from one element
type ElementTags struct {
	Element     string       `json:"element" yaml:"element" msgpack:"element" cbor:"element"`
	Occurrences []Occurrence `json:"occurrences" yaml:"occurrences" msgpack:"occurrences" cbor:"occurrences"`
}

// Occurrence is one merged tag. Error is set instead of Attributes when the
// occurrence could not be merged.
type Occurrence struct {
	Type           string         `json:"type" yaml:"type" msgpack:"type" cbor:"type"`
	Origin         string         `json:"origin" yaml:"origin" msgpack:"origin" cbor:"origin"`
	Distance       int            `json:"distance" yaml:"distance" msgpack:"distance" cbor:"distance"`
	AggregateIndex int            `json:"aggregate_index" yaml:"aggregate_index" msgpack:"aggregate_index" cbor:"aggregate_index"`
	Source         string         `json:"source,omitempty" yaml:"source,omitempty" msgpack:"source,omitempty" cbor:"source,omitempty"`
	MetaTypes      []string       `json:"meta_types,omitempty" yaml:"meta_types,omitempty" msgpack:"meta_types,omitempty" cbor:"meta_types,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty" msgpack:"attributes,omitempty" cbor:"attributes,omitempty"`
	Error          string         `json:"error,omitempty" yaml:"error,omitempty" msgpack:"error,omitempty" cbor:"error,omitempty"`
}

// Options selects how each element is searched
type Options struct {
	Strategy   scan.Strategy
	Containers repeatable.Containers
	Filter     filter.Filter
}

// Build captures every type of the model together with its methods and
// fields
func Build(engine *merged.Engine, model *loader.Model, opts Options) (*Snapshot, error) {
	snapshot := &Snapshot{
		Model:    model.Path,
		Strategy: opts.Strategy.String(),
	}

	for _, name := range model.TagTypes {
		if t := model.Universe.TagType(name); t != nil {
			snapshot.TagTypes = append(snapshot.TagTypes, describeTagType(t))
		}
	}

	for _, el := range model.Elements() {
		view, err := engine.FromConfig(el, opts.Strategy, opts.Containers, opts.Filter)
		if err != nil {
			return nil, err
		}
		snapshot.Elements = append(snapshot.Elements, Collect(view))
	}

	return snapshot, nil
}

// Collect lists every occurrence of a view in stream order
func Collect(view *merged.View) ElementTags {
	result := ElementTags{
		Element:     view.Element().Name(),
		Occurrences: []Occurrence{},
	}
	for m, err := range view.All() {
		result.Occurrences = append(result.Occurrences, Describe(m, err))
	}
	return result
}

// Describe converts one streamed occurrence
func Describe(m merged.Merged, err error) Occurrence {
	if err != nil {
		occ := Occurrence{Origin: merged.OriginMissing.String(), Distance: -1, AggregateIndex: -1, Error: err.Error()}
		var aliasErr *merged.AliasConfigError
		if errors.As(err, &aliasErr) {
			occ.Type = aliasErr.Tag
		}
		return occ
	}

	occ := Occurrence{
		Type:           m.Type(),
		Origin:         m.Origin().String(),
		Distance:       m.Distance(),
		AggregateIndex: m.AggregateIndex(),
		MetaTypes:      m.MetaTypes(),
		Attributes:     make(map[string]any),
	}
	if src := m.Source(); src != nil {
		occ.Source = src.Name()
	}
	for name, v := range m.Attributes() {
		occ.Attributes[name] = Plain(v)
	}
	return occ
}

func describeTagType(t *element.TagType) TagType {
	result := TagType{
		Name:      t.Name(),
		Inherited: t.IsInherited(),
	}
	if rep := t.MetaTag(element.RepeatableTag); rep != nil {
		if v, err := rep.Get("value"); err == nil {
			result.Container = fmt.Sprint(Plain(v))
		}
	}
	for _, attr := range t.Members() {
		if !attr.IsAccessor() {
			continue
		}
		a := Attribute{
			Name: attr.Name,
			Type: attr.Type.String(),
		}
		if attr.HasDefault() {
			a.Default = Plain(attr.Default)
		}
		if attr.Alias != nil {
			a.AliasFor = aliasTarget(t, attr)
		}
		result.Attributes = append(result.Attributes, a)
	}
	if tags, err := t.DeclaredTags(); err == nil {
		for _, tag := range tags {
			if !filter.Plain.Matches(tag.Type().Name()) {
				result.MetaTags = append(result.MetaTags, tag.Type().Name())
			}
		}
	}
	return result
}

func aliasTarget(t *element.TagType, attr *element.AttributeDecl) string {
	tag, name := attr.Alias.Tag, attr.Alias.Attribute
	if tag == "" {
		tag = t.Name()
	}
	if name == "" {
		name = attr.Name
	}
	return tag + "#" + name
}

// Plain converts an attribute value to basic types understood by every
// encoder. Enums and type references become their qualified names, nested
// tags become maps with an "@type" key.
func Plain(v element.Value) any {
	switch v := v.(type) {
	case element.EnumValue:
		return v.String()
	case element.TypeRef:
		return v.Name
	case *element.Tag:
		out := map[string]any{"@type": v.Type().Name()}
		for _, attr := range v.Type().Members() {
			if !attr.IsAccessor() {
				continue
			}
			if raw, ok := v.Raw(attr.Name); ok {
				out[attr.Name] = Plain(raw)
			}
		}
		return out
	case []element.Value:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Plain(item)
		}
		return out
	default:
		return v
	}
}

// Names lists the element names of a snapshot in order
func (s *Snapshot) Names() []string {
	names := make([]string, len(s.Elements))
	for i, e := range s.Elements {
		names[i] = e.Element
	}
	return names
}

// SortedAttributes returns the attribute names of an occurrence in order
func (o Occurrence) SortedAttributes() []string {
	names := make([]string, 0, len(o.Attributes))
	for name := range o.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
