// Package loader builds a static element model from YAML or JSON model
// files.
package loader

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/metatags/runtime/element"
)

// Model is a loaded element model
type Model struct {
	Path     string
	Universe *element.Universe

	// TagTypes and Types list the declared names in file order
	TagTypes []string
	Types    []string
}

// LoadError reports a model that could not be loaded
type LoadError struct {
	Path    string
	Context string
	Err     error
}

func (e *LoadError) Error() string {
	location := e.Path
	if location == "" {
		location = "<model>"
	}
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %v", location, e.Context, e.Err)
	}
	return fmt.Sprintf("%s: %v", location, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads and builds the model file at path
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	model, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.Path = path
			return nil, le
		}
		return nil, &LoadError{Path: path, Err: err}
	}
	model.Path = path
	return model, nil
}

// Parse builds a model from YAML or JSON data
func Parse(data []byte) (*Model, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &LoadError{Context: "invalid model syntax", Err: err}
	}
	return Build(&file)
}

// Build creates the element model described by file. Tag types are created
// first so that tags may reference each other in any order.
func Build(file *File) (*Model, error) {
	b := &builder{
		u:       element.NewUniverse(),
		classes: make(map[string]*element.Class),
	}
	model := &Model{Universe: b.u}

	for _, spec := range file.Enums {
		if spec.Name == "" {
			return nil, &LoadError{Context: "enum", Err: fmt.Errorf("name is required")}
		}
		b.u.AddEnum(spec.Name, spec.Constants...)
	}

	tagTypes := make([]*element.TagType, len(file.Tags))
	for i, spec := range file.Tags {
		t, err := b.declareTagType(spec)
		if err != nil {
			return nil, &LoadError{Context: "tag type " + spec.Name, Err: err}
		}
		tagTypes[i] = t
		model.TagTypes = append(model.TagTypes, spec.Name)
	}
	for i, spec := range file.Tags {
		if err := b.defineDefaults(tagTypes[i], spec); err != nil {
			return nil, &LoadError{Context: "tag type " + spec.Name, Err: err}
		}
	}
	for i, spec := range file.Tags {
		if err := b.attachMetaTags(tagTypes[i], spec); err != nil {
			return nil, &LoadError{Context: "tag type " + spec.Name, Err: err}
		}
	}

	for _, spec := range file.Types {
		if err := b.declareType(spec); err != nil {
			return nil, &LoadError{Context: "type " + spec.Name, Err: err}
		}
		model.Types = append(model.Types, spec.Name)
	}
	for _, spec := range file.Types {
		if err := b.completeType(spec); err != nil {
			return nil, &LoadError{Context: "type " + spec.Name, Err: err}
		}
	}
	if err := b.checkCycles(); err != nil {
		return nil, &LoadError{Err: err}
	}
	return model, nil
}

type builder struct {
	u       *element.Universe
	classes map[string]*element.Class
}

func (b *builder) declareTagType(spec TagTypeSpec) (*element.TagType, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if b.u.TagType(spec.Name) != nil {
		return nil, fmt.Errorf("declared twice")
	}
	members := make([]*element.AttributeDecl, 0, len(spec.Attributes))
	seen := make(map[string]bool, len(spec.Attributes))
	for _, a := range spec.Attributes {
		if a.Name == "" {
			return nil, fmt.Errorf("attribute name is required")
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("attribute '%s' declared twice", a.Name)
		}
		seen[a.Name] = true
		vt, err := valueType(a)
		if err != nil {
			return nil, fmt.Errorf("attribute '%s': %w", a.Name, err)
		}
		decl := &element.AttributeDecl{Name: a.Name, Params: a.Params, Type: vt}
		if a.Alias != nil {
			decl.Alias = &element.AliasFor{Tag: a.Alias.Tag, Attribute: a.Alias.Attribute}
		}
		members = append(members, decl)
	}
	return b.u.AddTagType(element.NewTagType(spec.Name, members...)), nil
}

// defineDefaults converts the declared defaults once every tag type is known
func (b *builder) defineDefaults(t *element.TagType, spec TagTypeSpec) error {
	for _, a := range t.Members() {
		if a.Type.Kind == element.KindTag && b.u.TagType(a.Type.Ref) == nil {
			return fmt.Errorf("attribute '%s' references unknown tag type %s", a.Name, a.Type.Ref)
		}
	}
	for i, a := range spec.Attributes {
		decl := t.Members()[i]
		if a.Default == nil || !decl.IsAccessor() {
			continue
		}
		v, err := b.value(decl.Type, a.Default)
		if err != nil {
			return fmt.Errorf("default of attribute '%s': %w", a.Name, err)
		}
		decl.Default = v
	}
	return nil
}

// attachMetaTags adds the marker and declared meta-tags of a tag type
func (b *builder) attachMetaTags(t *element.TagType, spec TagTypeSpec) error {
	if spec.Inherited {
		t.AddTags(b.u.MustTag(element.InheritedTag, nil))
	}
	if spec.Repeatable != "" {
		t.AddTags(b.u.MustTag(element.RepeatableTag, map[string]element.Value{
			"value": element.TypeRef{Name: spec.Repeatable},
		}))
	}
	tags, err := b.tags(spec.Tags)
	if err != nil {
		return err
	}
	t.AddTags(tags...)
	return nil
}

func (b *builder) declareType(spec TypeSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("name is required")
	}
	if b.u.Class(spec.Name) != nil {
		return fmt.Errorf("declared twice")
	}
	var c *element.Class
	switch strings.ToLower(spec.Kind) {
	case "", "class":
		c = b.u.NewClass(spec.Name)
	case "interface":
		c = b.u.NewInterface(spec.Name)
	default:
		return fmt.Errorf("unknown kind %q (expected class or interface)", spec.Kind)
	}
	b.classes[spec.Name] = c
	return nil
}

func (b *builder) completeType(spec TypeSpec) error {
	c := b.classes[spec.Name]
	if spec.Extends != "" {
		super := b.u.Class(spec.Extends)
		if super == nil {
			return fmt.Errorf("extends unknown type %s", spec.Extends)
		}
		if super.IsInterface() {
			return fmt.Errorf("cannot extend interface %s", spec.Extends)
		}
		c.Extends(super)
	}
	for _, name := range spec.Implements {
		iface := b.u.Class(name)
		if iface == nil {
			return fmt.Errorf("implements unknown type %s", name)
		}
		if !iface.IsInterface() {
			return fmt.Errorf("%s is not an interface", name)
		}
		c.Implements(iface)
	}
	if spec.Enclosing != "" {
		// resolved lazily so that a missing enclosing type only affects scans
		// that walk enclosing types
		c.EnclosedBy(spec.Enclosing)
	}
	for variable, erasure := range spec.Bindings {
		c.Bind(variable, erasure)
	}
	tags, err := b.tags(spec.Tags)
	if err != nil {
		return err
	}
	c.Tagged(tags...)

	methods := make(map[string]*element.Method, len(spec.Methods))
	for _, ms := range spec.Methods {
		params := make([]element.Param, len(ms.Params))
		types := make([]string, len(ms.Params))
		for i, p := range ms.Params {
			if p.Type == "" {
				return fmt.Errorf("method %s: parameter %d has no type", ms.Name, i)
			}
			params[i] = element.Param{Type: p.Type, Var: p.Var}
			types[i] = p.Type
		}
		key := ms.Name + "(" + strings.Join(types, ",") + ")"
		if _, ok := methods[key]; ok {
			return fmt.Errorf("method %s declared twice", key)
		}
		m := c.AddMethod(ms.Name, params...)
		if ms.Private {
			m.Private()
		}
		tags, err := b.tags(ms.Tags)
		if err != nil {
			return fmt.Errorf("method %s: %w", key, err)
		}
		m.Tagged(tags...)
		methods[key] = m
	}
	for _, ms := range spec.Methods {
		if ms.Bridge == nil {
			continue
		}
		types := make([]string, len(ms.Params))
		for i, p := range ms.Params {
			types[i] = p.Type
		}
		key := ms.Name + "(" + strings.Join(types, ",") + ")"
		target, ok := methods[ms.Name+"("+*ms.Bridge+")"]
		if !ok {
			return fmt.Errorf("method %s: bridge target %s(%s) not found", key, ms.Name, *ms.Bridge)
		}
		methods[key].BridgeTo(target)
	}

	for _, fs := range spec.Fields {
		tags, err := b.tags(fs.Tags)
		if err != nil {
			return fmt.Errorf("field %s: %w", fs.Name, err)
		}
		c.AddField(fs.Name).Tagged(tags...)
	}
	return nil
}

// checkCycles rejects superclass chains that loop
func (b *builder) checkCycles() error {
	for name, c := range b.classes {
		seen := map[string]bool{}
		for t := element.TypeElement(c); t != nil; t = t.Superclass() {
			if seen[t.Name()] {
				return fmt.Errorf("type %s: superclass cycle through %s", name, t.Name())
			}
			seen[t.Name()] = true
		}
	}
	return nil
}

func (b *builder) tags(specs []TagSpec) ([]*element.Tag, error) {
	tags := make([]*element.Tag, 0, len(specs))
	for _, spec := range specs {
		tag, err := b.tag(spec.Type, spec.Values)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func (b *builder) tag(typeName string, raw map[string]any) (*element.Tag, error) {
	t := b.u.TagType(typeName)
	if t == nil {
		return nil, fmt.Errorf("unknown tag type %s", typeName)
	}
	values := make(map[string]element.Value, len(raw))
	for name, rv := range raw {
		attr := t.Attribute(name)
		if attr == nil {
			return nil, fmt.Errorf("tag [%s] has no attribute '%s'", typeName, name)
		}
		v, err := b.value(attr.Type, rv)
		if err != nil {
			return nil, fmt.Errorf("tag [%s] attribute '%s': %w", typeName, name, err)
		}
		values[name] = v
	}
	return element.NewTag(t, values, b.u)
}

// value converts a decoded YAML value to the declared value type
func (b *builder) value(vt element.ValueType, raw any) (element.Value, error) {
	if vt.Array {
		items, ok := raw.([]any)
		if !ok {
			items = []any{raw}
		}
		result := make([]element.Value, len(items))
		for i, item := range items {
			v, err := b.value(vt.Scalar(), item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			result[i] = v
		}
		return result, nil
	}
	switch vt.Kind {
	case element.KindBool:
		if v, ok := raw.(bool); ok {
			return v, nil
		}
	case element.KindInt:
		switch v := raw.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case uint64:
			return int64(v), nil
		}
	case element.KindFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		}
	case element.KindString:
		if v, ok := raw.(string); ok {
			return v, nil
		}
	case element.KindEnum:
		if v, ok := raw.(string); ok {
			enumType, constant := vt.Ref, v
			if i := strings.LastIndex(v, "."); i > 0 {
				enumType, constant = v[:i], v[i+1:]
			}
			if vt.Ref != "" && enumType != vt.Ref {
				return nil, fmt.Errorf("enum constant %s is not of type %s", v, vt.Ref)
			}
			return element.EnumValue{Type: enumType, Name: constant}, nil
		}
	case element.KindType:
		if v, ok := raw.(string); ok {
			return element.TypeRef{Name: v}, nil
		}
	case element.KindTag:
		values := map[string]any{}
		if raw != nil {
			m, ok := raw.(map[string]any)
			if !ok {
				break
			}
			values = m
		}
		return b.tag(vt.Ref, values)
	}
	return nil, fmt.Errorf("value %v is not assignable to %s", raw, vt)
}

func valueType(a AttributeSpec) (element.ValueType, error) {
	name, isArray := strings.CutSuffix(strings.TrimSpace(a.Type), "[]")
	kind, err := element.ParseKind(name)
	if err != nil {
		return element.ValueType{}, err
	}
	vt := element.ValueType{Kind: kind, Ref: a.Ref, Array: a.Array || isArray}
	if kind == element.KindTag && a.Ref == "" {
		return vt, fmt.Errorf("tag attributes must name the tag type in ref")
	}
	return vt, nil
}

// Elements returns every declared type followed by its methods and fields,
// in file order
func (m *Model) Elements() []element.Element {
	var result []element.Element
	for _, name := range m.Types {
		class := m.Universe.Class(name)
		if class == nil {
			continue
		}
		result = append(result, class)
		for _, method := range class.Methods() {
			result = append(result, method)
		}
		for _, field := range class.Fields() {
			result = append(result, field)
		}
	}
	return result
}
