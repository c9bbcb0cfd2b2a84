package element

import (
	"fmt"
	"strings"
)

// Kind identifies the category of an attribute value.
type Kind int

const (
	KindVoid Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindEnum
	KindType
	KindTag
)

// String returns the model-file spelling of the kind
func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindEnum:
		return "enum"
	case KindType:
		return "type"
	case KindTag:
		return "tag"
	default:
		return "unknown"
	}
}

// ParseKind parses the model-file spelling of a kind
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "void", "":
		return KindVoid, nil
	case "bool", "boolean":
		return KindBool, nil
	case "int", "long", "integer":
		return KindInt, nil
	case "float", "double":
		return KindFloat, nil
	case "string":
		return KindString, nil
	case "enum":
		return KindEnum, nil
	case "type", "class":
		return KindType, nil
	case "tag", "annotation":
		return KindTag, nil
	default:
		return KindVoid, fmt.Errorf("unknown value kind: %s", s)
	}
}

// ValueType is the declared type of an attribute.
// Ref names the enum type for KindEnum and the tag type for KindTag.
type ValueType struct {
	Kind  Kind
	Ref   string
	Array bool
}

// Scalar returns the element type of an array type, or t itself
func (t ValueType) Scalar() ValueType {
	return ValueType{Kind: t.Kind, Ref: t.Ref}
}

// MayFail reports whether reading a value of this type can fail because a
// referenced symbol is absent from the host
func (t ValueType) MayFail() bool {
	return t.Kind == KindEnum || t.Kind == KindType
}

// IsNestedTag reports whether the type is a tag or an array of tags
func (t ValueType) IsNestedTag() bool {
	return t.Kind == KindTag
}

func (t ValueType) String() string {
	s := t.Kind.String()
	if t.Ref != "" {
		s += "<" + t.Ref + ">"
	}
	if t.Array {
		s += "[]"
	}
	return s
}

// Value is an attribute value. The dynamic type is one of bool, int64,
// float64, string, EnumValue, TypeRef, *Tag or []Value.
type Value any

// EnumValue references a constant of an enum type
type EnumValue struct {
	Type string
	Name string
}

func (e EnumValue) String() string {
	return e.Type + "." + e.Name
}

// TypeRef references a type by its fully-qualified name
type TypeRef struct {
	Name string
}

func (r TypeRef) String() string {
	return r.Name
}

// Symbols reports which referenced types and enum constants are available
// in the host. A nil Symbols treats every reference as available.
type Symbols interface {
	HasType(name string) bool
	HasEnumConstant(enumType, name string) bool
}

// Equal compares two attribute values structurally
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case []Value:
		bv, ok := b.([]Value)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case *Tag:
		bv, ok := b.(*Tag)
		if !ok {
			return false
		}
		return av.Equal(bv)
	default:
		return a == b
	}
}

// FormatValue renders a value for display
func FormatValue(v Value) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return fmt.Sprintf("%q", val)
	case []Value:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = FormatValue(item)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Tag:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// checkAvailable verifies that every enum or type reference inside v
// resolves against symbols
func checkAvailable(symbols Symbols, v Value) (string, bool) {
	if symbols == nil {
		return "", true
	}
	switch val := v.(type) {
	case TypeRef:
		if !symbols.HasType(val.Name) {
			return val.Name, false
		}
	case EnumValue:
		if !symbols.HasEnumConstant(val.Type, val.Name) {
			return val.String(), false
		}
	case []Value:
		for _, item := range val {
			if missing, ok := checkAvailable(symbols, item); !ok {
				return missing, false
			}
		}
	}
	return "", true
}
