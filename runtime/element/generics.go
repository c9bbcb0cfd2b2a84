package element

// Binder is implemented by types that bind type variables of their supertypes
type Binder interface {
	Binding(variable string) (string, bool)
}

// BindingResolver resolves generic parameters through the type-variable
// bindings declared along the context type's hierarchy. The closest binding
// wins; a binding to another variable is followed. Unbound variables resolve
// to the parameter's raw erasure.
type BindingResolver struct{}

// ResolveParameter implements GenericResolver
func (BindingResolver) ResolveParameter(m MethodElement, index int, context TypeElement) (string, bool) {
	params := m.Params()
	if index < 0 || index >= len(params) {
		return "", false
	}
	p := params[index]
	if p.Var == "" {
		return p.Type, true
	}
	variable := p.Var
	seen := map[string]bool{variable: true}
	for {
		bound, ok := lookupBinding(context, variable)
		if !ok {
			return p.Type, true
		}
		if seen[bound] {
			return p.Type, true
		}
		// a binding to another variable of a closer type keeps resolving
		if _, isVar := lookupBinding(context, bound); isVar {
			seen[bound] = true
			variable = bound
			continue
		}
		return bound, true
	}
}

func lookupBinding(context TypeElement, variable string) (string, bool) {
	visited := make(map[string]bool)
	queue := []TypeElement{context}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == nil || visited[current.Name()] {
			continue
		}
		visited[current.Name()] = true
		if b, ok := current.(Binder); ok {
			if bound, found := b.Binding(variable); found {
				return bound, true
			}
		}
		if super := current.Superclass(); super != nil {
			queue = append(queue, super)
		}
		queue = append(queue, current.Interfaces()...)
	}
	return "", false
}
