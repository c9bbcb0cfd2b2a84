package element

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Common value types
var (
	BoolType   = ValueType{Kind: KindBool}
	IntType    = ValueType{Kind: KindInt}
	FloatType  = ValueType{Kind: KindFloat}
	StringType = ValueType{Kind: KindString}
	ClassType  = ValueType{Kind: KindType}
)

// ArrayOf returns the array type with element type t
func ArrayOf(t ValueType) ValueType {
	t.Array = true
	return t
}

// TagOf returns the nested tag type for the named tag type
func TagOf(name string) ValueType {
	return ValueType{Kind: KindTag, Ref: name}
}

// EnumOf returns the enum type for the named enum
func EnumOf(name string) ValueType {
	return ValueType{Kind: KindEnum, Ref: name}
}

// Universe is a static, in-memory element model. It resolves type and enum
// references for the tags created through it.
type Universe struct {
	mu       sync.RWMutex
	classes  map[string]*Class
	tagTypes map[string]*TagType
	enums    map[string]map[string]bool
}

// NewUniverse creates a universe holding the foundational types
func NewUniverse() *Universe {
	u := &Universe{
		classes:  make(map[string]*Class),
		tagTypes: make(map[string]*TagType),
		enums:    make(map[string]map[string]bool),
	}
	u.classes[ObjectType] = &Class{universe: u, name: ObjectType}
	for _, name := range []string{"lang.String", "lang.Integer", "lang.Boolean"} {
		u.classes[name] = &Class{universe: u, name: name, super: u.classes[ObjectType]}
	}
	u.tagTypes[InheritedTag] = NewTagType(InheritedTag)
	u.tagTypes[RepeatableTag] = NewTagType(RepeatableTag, &AttributeDecl{Name: "value", Type: ClassType})
	return u
}

// AddTagType registers a tag type
func (u *Universe) AddTagType(t *TagType) *TagType {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tagTypes[t.Name()] = t
	return t
}

// TagType returns a registered tag type, or nil
func (u *Universe) TagType(name string) *TagType {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.tagTypes[name]
}

// TagTypes returns every registered tag type sorted by name
func (u *Universe) TagTypes() []*TagType {
	u.mu.RLock()
	defer u.mu.RUnlock()
	result := make([]*TagType, 0, len(u.tagTypes))
	for _, t := range u.tagTypes {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// AddEnum registers an enum type and its constants
func (u *Universe) AddEnum(name string, constants ...string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	set := make(map[string]bool, len(constants))
	for _, c := range constants {
		set[c] = true
	}
	u.enums[name] = set
}

// HasType implements Symbols
func (u *Universe) HasType(name string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, isClass := u.classes[name]
	_, isTag := u.tagTypes[name]
	_, isEnum := u.enums[name]
	return isClass || isTag || isEnum
}

// HasEnumConstant implements Symbols
func (u *Universe) HasEnumConstant(enumType, name string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.enums[enumType][name]
}

// Tag creates an occurrence of a registered tag type whose references are
// resolved against the universe
func (u *Universe) Tag(typeName string, values map[string]Value) (*Tag, error) {
	t := u.TagType(typeName)
	if t == nil {
		return nil, fmt.Errorf("unknown tag type: %s", typeName)
	}
	return NewTag(t, values, u)
}

// MustTag is like Tag but panics on error. Intended for fixtures.
func (u *Universe) MustTag(typeName string, values map[string]Value) *Tag {
	tag, err := u.Tag(typeName, values)
	if err != nil {
		panic(err)
	}
	return tag
}

// NewClass creates and registers a class extending lang.Object
func (u *Universe) NewClass(name string) *Class {
	u.mu.Lock()
	defer u.mu.Unlock()
	c := &Class{universe: u, name: name, super: u.classes[ObjectType]}
	u.classes[name] = c
	return c
}

// NewInterface creates and registers an interface type
func (u *Universe) NewInterface(name string) *Class {
	u.mu.Lock()
	defer u.mu.Unlock()
	c := &Class{universe: u, name: name, isInterface: true}
	u.classes[name] = c
	return c
}

// Class returns a registered class, or nil
func (u *Universe) Class(name string) *Class {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.classes[name]
}

// Classes returns every registered class sorted by name
func (u *Universe) Classes() []*Class {
	u.mu.RLock()
	defer u.mu.RUnlock()
	result := make([]*Class, 0, len(u.classes))
	for _, c := range u.classes {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].name < result[j].name })
	return result
}

// Lookup resolves an element address: "pkg.Type" for a type or tag type,
// "pkg.Type#member" for a field or method, and "pkg.Type#method(p1,p2)" to
// select a method by parameter types.
func (u *Universe) Lookup(address string) (Element, error) {
	typeName, member, hasMember := strings.Cut(address, "#")
	if !hasMember {
		if c := u.Class(typeName); c != nil {
			return c, nil
		}
		if t := u.TagType(typeName); t != nil {
			return t, nil
		}
		return nil, fmt.Errorf("element not found: %s", address)
	}
	c := u.Class(typeName)
	if c == nil {
		return nil, fmt.Errorf("type not found: %s", typeName)
	}
	name, params, hasParams := strings.Cut(member, "(")
	for _, m := range c.methods {
		if m.name != name {
			continue
		}
		if !hasParams || m.paramSignature() == strings.TrimSuffix(params, ")") {
			return m, nil
		}
	}
	if !hasParams {
		for _, f := range c.fields {
			if f.name == name {
				return f, nil
			}
		}
	}
	return nil, fmt.Errorf("member not found: %s", address)
}

// Class is a static TypeElement
type Class struct {
	universe    *Universe
	name        string
	super       *Class
	interfaces  []*Class
	enclosing   string
	isInterface bool
	tags        []*Tag
	methods     []*Method
	fields      []*Field
	bindings    map[string]string
}

// Extends sets the superclass
func (c *Class) Extends(super *Class) *Class {
	c.super = super
	return c
}

// Implements adds implemented interfaces
func (c *Class) Implements(interfaces ...*Class) *Class {
	c.interfaces = append(c.interfaces, interfaces...)
	return c
}

// EnclosedBy records the name of the enclosing type. The name is resolved
// lazily; an unknown name makes EnclosingType fail.
func (c *Class) EnclosedBy(name string) *Class {
	c.enclosing = name
	return c
}

// Tagged adds declared tags
func (c *Class) Tagged(tags ...*Tag) *Class {
	c.tags = append(c.tags, tags...)
	return c
}

// Bind binds a type variable of a supertype to a concrete erasure
func (c *Class) Bind(variable, erasure string) *Class {
	if c.bindings == nil {
		c.bindings = make(map[string]string)
	}
	c.bindings[variable] = erasure
	return c
}

// Binding returns the erasure bound to a type variable by this type
func (c *Class) Binding(variable string) (string, bool) {
	erasure, ok := c.bindings[variable]
	return erasure, ok
}

// AddMethod declares a method
func (c *Class) AddMethod(name string, params ...Param) *Method {
	m := &Method{name: name, declaring: c, params: params}
	c.methods = append(c.methods, m)
	return m
}

// AddField declares a field
func (c *Class) AddField(name string) *Field {
	f := &Field{name: name, declaring: c}
	c.fields = append(c.fields, f)
	return f
}

// Name implements Element
func (c *Class) Name() string {
	return c.name
}

// DeclaredTags implements Element
func (c *Class) DeclaredTags() ([]*Tag, error) {
	return c.tags, nil
}

// Superclass implements TypeElement
func (c *Class) Superclass() TypeElement {
	if c.super == nil {
		return nil
	}
	return c.super
}

// Interfaces implements TypeElement
func (c *Class) Interfaces() []TypeElement {
	result := make([]TypeElement, len(c.interfaces))
	for i, iface := range c.interfaces {
		result[i] = iface
	}
	return result
}

// EnclosingType implements TypeElement
func (c *Class) EnclosingType() (TypeElement, error) {
	if c.enclosing == "" {
		return nil, nil
	}
	enclosing := c.universe.Class(c.enclosing)
	if enclosing == nil {
		return nil, fmt.Errorf("enclosing type %s of %s cannot be loaded", c.enclosing, c.name)
	}
	return enclosing, nil
}

// IsInterface implements TypeElement
func (c *Class) IsInterface() bool {
	return c.isInterface
}

// Methods implements TypeElement
func (c *Class) Methods() []MethodElement {
	result := make([]MethodElement, len(c.methods))
	for i, m := range c.methods {
		result[i] = m
	}
	return result
}

// Fields returns the declared fields
func (c *Class) Fields() []*Field {
	return c.fields
}

func (c *Class) String() string {
	return c.name
}

// Method is a static MethodElement
type Method struct {
	name      string
	declaring *Class
	params    []Param
	private   bool
	bridge    *Method
	tags      []*Tag
}

// Tagged adds declared tags
func (m *Method) Tagged(tags ...*Tag) *Method {
	m.tags = append(m.tags, tags...)
	return m
}

// Private marks the method private
func (m *Method) Private() *Method {
	m.private = true
	return m
}

// BridgeTo marks the method as a bridge delegating to target
func (m *Method) BridgeTo(target *Method) *Method {
	m.bridge = target
	return m
}

// Name implements Element
func (m *Method) Name() string {
	return m.declaring.name + "#" + m.name + "(" + m.paramSignature() + ")"
}

// MethodName implements MethodElement
func (m *Method) MethodName() string {
	return m.name
}

// DeclaredTags implements Element
func (m *Method) DeclaredTags() ([]*Tag, error) {
	return m.tags, nil
}

// DeclaringType implements MethodElement
func (m *Method) DeclaringType() TypeElement {
	return m.declaring
}

// Params implements MethodElement
func (m *Method) Params() []Param {
	return m.params
}

// IsPrivate implements MethodElement
func (m *Method) IsPrivate() bool {
	return m.private
}

// BridgeTarget implements MethodElement
func (m *Method) BridgeTarget() MethodElement {
	if m.bridge == nil {
		return nil
	}
	return m.bridge
}

func (m *Method) paramSignature() string {
	types := make([]string, len(m.params))
	for i, p := range m.params {
		types[i] = p.Type
	}
	return strings.Join(types, ",")
}

// Field is a static FieldElement
type Field struct {
	name      string
	declaring *Class
	tags      []*Tag
}

// Tagged adds declared tags
func (f *Field) Tagged(tags ...*Tag) *Field {
	f.tags = append(f.tags, tags...)
	return f
}

// Name implements Element
func (f *Field) Name() string {
	return f.declaring.name + "#" + f.name
}

// DeclaredTags implements Element
func (f *Field) DeclaredTags() ([]*Tag, error) {
	return f.tags, nil
}

// DeclaringType implements FieldElement
func (f *Field) DeclaringType() TypeElement {
	return f.declaring
}
