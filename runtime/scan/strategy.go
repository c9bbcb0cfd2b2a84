package scan

import (
	"fmt"
	"strings"
)

// Strategy selects how much of an element's hierarchy is searched
type Strategy int

const (
	// Direct searches only the element's own declared tags
	Direct Strategy = iota

	// InheritedAnnotations searches the superclass chain for tags whose type
	// is marked inherited. Only meaningful for types.
	InheritedAnnotations

	// Superclass searches the element and every superclass, ignoring interfaces
	Superclass

	// TypeHierarchy searches superclasses and implemented interfaces
	TypeHierarchy

	// TypeHierarchyAndEnclosing also searches lexically enclosing types
	TypeHierarchyAndEnclosing
)

var strategyNames = map[Strategy]string{
	Direct:                    "direct",
	InheritedAnnotations:      "inherited",
	Superclass:                "superclass",
	TypeHierarchy:             "type_hierarchy",
	TypeHierarchyAndEnclosing: "type_hierarchy_and_enclosing",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy parses a strategy name. Dashes and underscores are
// interchangeable and matching is case-insensitive.
func ParseStrategy(name string) (Strategy, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for s, n := range strategyNames {
		if n == normalized {
			return s, nil
		}
	}
	return Direct, fmt.Errorf("unknown search strategy: %s", name)
}

// Strategies returns every strategy name
func Strategies() []string {
	return []string{
		Direct.String(),
		InheritedAnnotations.String(),
		Superclass.String(),
		TypeHierarchy.String(),
		TypeHierarchyAndEnclosing.String(),
	}
}
