package element

// Names with a fixed meaning to the engine. Every name in the "lang"
// namespace is foundational and never appears in a merged view.
const (
	// ObjectType is the universal root type
	ObjectType = "lang.Object"

	// InheritedTag marks a tag type whose occurrences are inherited by subclasses
	InheritedTag = "lang.Inherited"

	// RepeatableTag marks a repeatable tag type; its "value" names the container
	RepeatableTag = "lang.Repeatable"
)

// Element is a program element that can carry tags
type Element interface {
	// Name returns a stable, human-readable identifier
	Name() string

	// DeclaredTags returns the tags declared directly on the element.
	// An error means the element could not be introspected.
	DeclaredTags() ([]*Tag, error)
}

// TypeElement is a class-like or interface-like type
type TypeElement interface {
	Element

	// Superclass returns the direct superclass, or nil
	Superclass() TypeElement

	// Interfaces returns the directly implemented interfaces
	Interfaces() []TypeElement

	// EnclosingType returns the lexically enclosing type, or nil. Probing the
	// enclosing type may fail in hosts that load types lazily.
	EnclosingType() (TypeElement, error)

	IsInterface() bool

	// Methods returns the methods declared by the type
	Methods() []MethodElement
}

// Param is a method parameter: its raw (erased) type name and, when declared
// through a type variable, the variable name.
type Param struct {
	Type string
	Var  string
}

// MethodElement is a method-like callable member
type MethodElement interface {
	Element

	// MethodName returns the simple method name used for override matching
	MethodName() string

	DeclaringType() TypeElement
	Params() []Param
	IsPrivate() bool

	// BridgeTarget returns the method a compiler-generated bridge delegates
	// to, or nil when the method is not a bridge
	BridgeTarget() MethodElement
}

// FieldElement is a declared member that is not callable
type FieldElement interface {
	Element
	DeclaringType() TypeElement
}

// GenericResolver resolves the erasure of a method parameter in the context
// of a concrete descendant type
type GenericResolver interface {
	ResolveParameter(m MethodElement, index int, context TypeElement) (string, bool)
}

// IsAssignable reports whether ancestor is descendant itself or one of its
// supertypes
func IsAssignable(ancestor, descendant TypeElement) bool {
	if ancestor == nil || descendant == nil {
		return false
	}
	if ancestor.Name() == ObjectType {
		return true
	}
	visited := make(map[string]bool)
	queue := []TypeElement{descendant}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current.Name()] {
			continue
		}
		visited[current.Name()] = true
		if current.Name() == ancestor.Name() {
			return true
		}
		if super := current.Superclass(); super != nil {
			queue = append(queue, super)
		}
		queue = append(queue, current.Interfaces()...)
	}
	return false
}
