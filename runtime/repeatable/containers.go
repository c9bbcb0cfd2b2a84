// Package repeatable unpacks repeatable-container tags into the tags they
// hold before merging.
package repeatable

import (
	"fmt"

	"github.com/conduit-lang/metatags/runtime/element"
)

// ValueAttribute is the container attribute holding the repeated tags
const ValueAttribute = "value"

// Containers is a strategy for recognizing container tags
type Containers interface {
	// Repeated returns the tags held by a container, and false when tag is
	// not a container known to the strategy
	Repeated(tag *element.Tag) ([]*element.Tag, bool)

	// Key identifies the strategy for caching
	Key() string
}

// Unwrap returns the repeated tags of a container, or tag itself
func Unwrap(c Containers, tag *element.Tag) []*element.Tag {
	if c != nil {
		if repeated, ok := c.Repeated(tag); ok {
			return repeated
		}
	}
	return []*element.Tag{tag}
}

// TagTypeLookup resolves tag types by name
type TagTypeLookup interface {
	TagType(name string) *element.TagType
}

type none struct{}

// None disables unwrapping
func None() Containers {
	return none{}
}

func (none) Repeated(*element.Tag) ([]*element.Tag, bool) {
	return nil, false
}

func (none) Key() string {
	return "none"
}

type standard struct {
	lookup TagTypeLookup
	parent Containers
}

// Standard recognizes containers through the lang.Repeatable marker: a
// container has an array-of-tag "value" attribute whose element tag type is
// marked repeatable with the container named as its value. Lookup resolves
// the element tag type so that empty containers are recognized; when it is
// nil the held tags themselves are inspected.
func Standard(lookup TagTypeLookup) Containers {
	return standard{lookup: lookup}
}

func (s standard) Repeated(tag *element.Tag) ([]*element.Tag, bool) {
	if repeated, ok := s.repeated(tag); ok {
		return repeated, true
	}
	if s.parent != nil {
		return s.parent.Repeated(tag)
	}
	return nil, false
}

func (s standard) repeated(tag *element.Tag) ([]*element.Tag, bool) {
	container := tag.Type()
	attr := container.Attribute(ValueAttribute)
	if attr == nil || !attr.Type.Array || attr.Type.Kind != element.KindTag {
		return nil, false
	}
	raw, _ := tag.Raw(ValueAttribute)
	items, _ := raw.([]element.Value)

	var repeatedType *element.TagType
	if s.lookup != nil {
		repeatedType = s.lookup.TagType(attr.Type.Ref)
	}
	if repeatedType == nil && len(items) > 0 {
		if first, ok := items[0].(*element.Tag); ok {
			repeatedType = first.Type()
		}
	}
	if repeatedType == nil || !marksContainer(repeatedType, container.Name()) {
		return nil, false
	}
	return tags(items), true
}

// Key includes the identity of the lookup, which resolves container
// element types against one universe
func (s standard) Key() string {
	key := "standard"
	if s.lookup != nil {
		key = fmt.Sprintf("standard[%T@%p]", s.lookup, s.lookup)
	}
	if s.parent != nil {
		return key + "+" + s.parent.Key()
	}
	return key
}

// marksContainer reports whether repeated carries lang.Repeatable naming container
func marksContainer(repeated *element.TagType, container string) bool {
	marker := repeated.MetaTag(element.RepeatableTag)
	if marker == nil {
		return false
	}
	v, _ := marker.Raw("value")
	ref, ok := v.(element.TypeRef)
	return ok && ref.Name == container
}

type explicit struct {
	repeatable string
	container  string
	parent     Containers
}

// Of registers an explicit repeatable/container pair. The container must
// declare an array-of-repeatable "value" attribute.
func Of(repeatable, container *element.TagType) (Containers, error) {
	if repeatable == nil || container == nil {
		return nil, fmt.Errorf("repeatable and container tag types are required")
	}
	attr := container.Attribute(ValueAttribute)
	if attr == nil {
		return nil, fmt.Errorf("invalid container tag type [%s]: no '%s' attribute",
			container.Name(), ValueAttribute)
	}
	if !attr.Type.Array || attr.Type.Kind != element.KindTag || attr.Type.Ref != repeatable.Name() {
		return nil, fmt.Errorf("container tag type [%s] must declare a '%s' attribute of type %s[], found %s",
			container.Name(), ValueAttribute, repeatable.Name(), attr.Type)
	}
	return explicit{repeatable: repeatable.Name(), container: container.Name()}, nil
}

func (e explicit) Repeated(tag *element.Tag) ([]*element.Tag, bool) {
	if tag.Type().Name() == e.container {
		raw, _ := tag.Raw(ValueAttribute)
		items, _ := raw.([]element.Value)
		return tags(items), true
	}
	if e.parent != nil {
		return e.parent.Repeated(tag)
	}
	return nil, false
}

func (e explicit) Key() string {
	key := "of[" + e.repeatable + "->" + e.container + "]"
	if e.parent != nil {
		key += "+" + e.parent.Key()
	}
	return key
}

// And returns a strategy that consults c first and then parent
func And(c, parent Containers) Containers {
	if c == nil {
		return parent
	}
	if parent == nil {
		return c
	}
	if _, ok := parent.(none); ok {
		return c
	}
	switch s := c.(type) {
	case standard:
		s.parent = And(s.parent, parent)
		return s
	case explicit:
		s.parent = And(s.parent, parent)
		return s
	case none:
		return parent
	}
	return c
}

func tags(items []element.Value) []*element.Tag {
	result := make([]*element.Tag, 0, len(items))
	for _, item := range items {
		if t, ok := item.(*element.Tag); ok {
			result = append(result, t)
		}
	}
	return result
}
