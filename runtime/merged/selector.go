package merged

// Selector picks one occurrence when several of the requested type match
type Selector interface {
	// IsBest reports whether candidate cannot be improved on, which stops
	// the search
	IsBest(candidate Merged) bool

	// Select returns the preferred of existing and candidate
	Select(existing, candidate Merged) Merged
}

type nearest struct{}

// Nearest prefers the lowest aggregate index and, within one aggregate, the
// lowest distance. It selects the first occurrence in stream order.
func Nearest() Selector {
	return nearest{}
}

func (nearest) IsBest(candidate Merged) bool {
	return candidate.AggregateIndex() == 0 && candidate.Distance() == 0
}

func (nearest) Select(existing, candidate Merged) Merged {
	if candidate.AggregateIndex() < existing.AggregateIndex() {
		return candidate
	}
	if candidate.AggregateIndex() == existing.AggregateIndex() && candidate.Distance() < existing.Distance() {
		return candidate
	}
	return existing
}

type firstDirectlyDeclared struct{}

// FirstDirectlyDeclared prefers the first occurrence declared directly on
// any level of the hierarchy over occurrences reached through meta-tags
func FirstDirectlyDeclared() Selector {
	return firstDirectlyDeclared{}
}

func (firstDirectlyDeclared) IsBest(candidate Merged) bool {
	return candidate.Distance() == 0
}

func (firstDirectlyDeclared) Select(existing, candidate Merged) Merged {
	if existing.Distance() > 0 && candidate.Distance() == 0 {
		return candidate
	}
	return existing
}

// SelectorFunc adapts a comparison function to a Selector that never
// short-circuits
type SelectorFunc func(existing, candidate Merged) Merged

func (f SelectorFunc) IsBest(Merged) bool {
	return false
}

func (f SelectorFunc) Select(existing, candidate Merged) Merged {
	return f(existing, candidate)
}
