package element

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnavailable is wrapped by every UnavailableValueError
	ErrUnavailable = errors.New("referenced symbol unavailable")

	// ErrNoAttribute is returned when reading an attribute the tag type does not declare
	ErrNoAttribute = errors.New("no such attribute")
)

// UnavailableValueError reports an attribute whose value references a type
// or enum constant that the host cannot resolve.
type UnavailableValueError struct {
	Tag       string
	Attribute string
	Symbol    string
}

func (e *UnavailableValueError) Error() string {
	return fmt.Sprintf("attribute '%s' of tag [%s] references unavailable symbol '%s'",
		e.Attribute, e.Tag, e.Symbol)
}

func (e *UnavailableValueError) Unwrap() error {
	return ErrUnavailable
}

// AliasFor declares that an attribute is an alias for another attribute.
// An empty Tag targets the declaring tag type; an empty Attribute targets
// the attribute with the same name.
type AliasFor struct {
	Tag       string
	Attribute string
}

// AttributeDecl is a member declared by a tag type. Only members with no
// parameters and a non-void type are attributes.
type AttributeDecl struct {
	Name    string
	Params  int
	Type    ValueType
	Default Value
	Alias   *AliasFor
}

// HasDefault reports whether the attribute declares a default value
func (a *AttributeDecl) HasDefault() bool {
	return a.Default != nil
}

// IsAccessor reports whether the member is an attribute accessor
func (a *AttributeDecl) IsAccessor() bool {
	return a.Params == 0 && a.Type.Kind != KindVoid
}

// TagType is a declared tag type. Its own declared tags are its meta-tags.
// A TagType is built in two steps (NewTagType, then AddTags) so that tag
// types may meta-tag each other; it must not be changed once published.
type TagType struct {
	name    string
	members []*AttributeDecl
	byName  map[string]*AttributeDecl
	tags    []*Tag
}

// NewTagType creates a tag type with the given declared members
func NewTagType(name string, members ...*AttributeDecl) *TagType {
	t := &TagType{
		name:    name,
		members: members,
		byName:  make(map[string]*AttributeDecl, len(members)),
	}
	for _, m := range members {
		if m.IsAccessor() {
			t.byName[m.Name] = m
		}
	}
	return t
}

// AddTags attaches meta-tags to the tag type
func (t *TagType) AddTags(tags ...*Tag) {
	t.tags = append(t.tags, tags...)
}

// Name returns the fully-qualified tag type name
func (t *TagType) Name() string {
	return t.name
}

// Members returns every declared member, accessor or not
func (t *TagType) Members() []*AttributeDecl {
	return t.members
}

// Attribute returns the accessor with the given name, or nil
func (t *TagType) Attribute(name string) *AttributeDecl {
	return t.byName[name]
}

// DeclaredTags returns the meta-tags declared on the tag type
func (t *TagType) DeclaredTags() ([]*Tag, error) {
	return t.tags, nil
}

// HasMetaTag reports whether a meta-tag of the named type is declared directly
func (t *TagType) HasMetaTag(name string) bool {
	return t.MetaTag(name) != nil
}

// MetaTag returns the first directly declared meta-tag of the named type
func (t *TagType) MetaTag(name string) *Tag {
	for _, tag := range t.tags {
		if tag.Type().Name() == name {
			return tag
		}
	}
	return nil
}

// IsInherited reports whether the tag type carries the inherited marker
func (t *TagType) IsInherited() bool {
	return t.HasMetaTag(InheritedTag)
}

func (t *TagType) String() string {
	return t.name
}

// Tag is a concrete occurrence of a tag type on an element
type Tag struct {
	typ     *TagType
	values  map[string]Value
	symbols Symbols
}

// NewTag creates a tag occurrence. Every mandatory attribute must be supplied
// and every supplied value must match the declared type. A scalar supplied for
// an array attribute is wrapped into a one-element array.
func NewTag(t *TagType, values map[string]Value, symbols Symbols) (*Tag, error) {
	if t == nil {
		return nil, fmt.Errorf("tag type cannot be nil")
	}
	normalized := make(map[string]Value, len(values))
	for name, v := range values {
		attr := t.Attribute(name)
		if attr == nil {
			return nil, fmt.Errorf("tag [%s] has no attribute '%s'", t.name, name)
		}
		nv, err := conform(attr.Type, v)
		if err != nil {
			return nil, fmt.Errorf("tag [%s] attribute '%s': %w", t.name, name, err)
		}
		normalized[name] = nv
	}
	for _, attr := range t.members {
		if !attr.IsAccessor() || attr.HasDefault() {
			continue
		}
		if _, ok := normalized[attr.Name]; !ok {
			return nil, fmt.Errorf("tag [%s] is missing mandatory attribute '%s'", t.name, attr.Name)
		}
	}
	return &Tag{typ: t, values: normalized, symbols: symbols}, nil
}

// MustTag is like NewTag but panics on error. Intended for fixtures.
func MustTag(t *TagType, values map[string]Value) *Tag {
	tag, err := NewTag(t, values, nil)
	if err != nil {
		panic(err)
	}
	return tag
}

// Type returns the tag type
func (t *Tag) Type() *TagType {
	return t.typ
}

// Get reads an attribute value, falling back to the declared default.
// Enum and type references are resolved against the host symbols.
func (t *Tag) Get(name string) (Value, error) {
	v, ok := t.Raw(name)
	if !ok {
		return nil, fmt.Errorf("%w: '%s' on tag [%s]", ErrNoAttribute, name, t.typ.name)
	}
	if missing, ok := checkAvailable(t.symbols, v); !ok {
		return nil, &UnavailableValueError{Tag: t.typ.name, Attribute: name, Symbol: missing}
	}
	return v, nil
}

// Raw returns the attribute value without resolving references
func (t *Tag) Raw(name string) (Value, bool) {
	attr := t.typ.Attribute(name)
	if attr == nil {
		return nil, false
	}
	if v, ok := t.values[name]; ok {
		return v, true
	}
	return attr.Default, attr.HasDefault()
}

// IsExplicit reports whether the attribute was supplied with a value that
// differs from its default
func (t *Tag) IsExplicit(name string) bool {
	v, ok := t.values[name]
	if !ok {
		return false
	}
	attr := t.typ.Attribute(name)
	return attr != nil && (!attr.HasDefault() || !Equal(v, attr.Default))
}

// Equal reports whether both tags have the same type and attribute values
func (t *Tag) Equal(other *Tag) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil || t.typ != other.typ {
		return false
	}
	for _, attr := range t.typ.members {
		if !attr.IsAccessor() {
			continue
		}
		a, _ := t.Raw(attr.Name)
		b, _ := other.Raw(attr.Name)
		if !Equal(a, b) {
			return false
		}
	}
	return true
}

func (t *Tag) String() string {
	names := make([]string, 0, len(t.values))
	for name := range t.values {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + FormatValue(t.values[name])
	}
	return "@" + t.typ.name + "(" + strings.Join(parts, ", ") + ")"
}

// conform checks v against the declared type
func conform(vt ValueType, v Value) (Value, error) {
	if vt.Array {
		items, ok := v.([]Value)
		if !ok {
			items = []Value{v}
		}
		out := make([]Value, len(items))
		for i, item := range items {
			if err := conformScalar(vt.Scalar(), item); err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = item
		}
		return out, nil
	}
	if err := conformScalar(vt, v); err != nil {
		return nil, err
	}
	return v, nil
}

func conformScalar(vt ValueType, v Value) error {
	ok := false
	switch vt.Kind {
	case KindBool:
		_, ok = v.(bool)
	case KindInt:
		_, ok = v.(int64)
	case KindFloat:
		_, ok = v.(float64)
	case KindString:
		_, ok = v.(string)
	case KindEnum:
		var e EnumValue
		e, ok = v.(EnumValue)
		ok = ok && (vt.Ref == "" || e.Type == vt.Ref)
	case KindType:
		_, ok = v.(TypeRef)
	case KindTag:
		var nested *Tag
		nested, ok = v.(*Tag)
		ok = ok && nested != nil && (vt.Ref == "" || nested.typ.name == vt.Ref)
	}
	if !ok {
		return fmt.Errorf("value %s is not assignable to %s", FormatValue(v), vt)
	}
	return nil
}
