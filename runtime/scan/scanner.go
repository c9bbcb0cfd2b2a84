// Package scan walks the hierarchy of a program element and reports the
// tags declared at each level.
//
// Each visited level is an aggregate, numbered from 0 outward from the root
// element. A Processor sees every aggregate in order and can stop the walk
// early by returning a result.
package scan

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/metatags/runtime/attrs"
	"github.com/conduit-lang/metatags/runtime/cache"
	"github.com/conduit-lang/metatags/runtime/element"
	"github.com/conduit-lang/metatags/runtime/filter"
)

// Processor receives the tags found during a scan
type Processor[R any] interface {
	// DoWithAggregate is called before an aggregate is searched. Returning
	// true stops the scan with the given result.
	DoWithAggregate(aggregateIndex int) (R, bool)

	// DoWithTags is called with the tags declared on source. Returning true
	// stops the scan with the given result.
	DoWithTags(aggregateIndex int, source element.Element, tags []*element.Tag) (R, bool)

	// Finish post-processes the scan result. found is false when no call
	// stopped the scan.
	Finish(result R, found bool) (R, bool)
}

// IntrospectionError reports an element of the hierarchy that could not be
// introspected. The scan skips that branch and continues.
type IntrospectionError struct {
	Element string
	Err     error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("failed to introspect %s: %v", e.Element, e.Err)
}

func (e *IntrospectionError) Unwrap() error {
	return e.Err
}

// Scanner walks element hierarchies. It is safe for concurrent use.
type Scanner struct {
	declared    *cache.Store[element.Element, []*element.Tag]
	baseMethods *cache.Store[element.TypeElement, []element.MethodElement]
	tables      *attrs.Tables
	resolver    element.GenericResolver
	logger      *zap.Logger
}

// New creates a scanner whose caches are owned by svc
func New(svc *cache.Service, tables *attrs.Tables, resolver element.GenericResolver, logger *zap.Logger) *Scanner {
	if resolver == nil {
		resolver = element.BindingResolver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		declared:    cache.NewStore[element.Element, []*element.Tag](svc, "declared_tags"),
		baseMethods: cache.NewStore[element.TypeElement, []element.MethodElement](svc, "base_type_methods"),
		tables:      tables,
		resolver:    resolver,
		logger:      logger,
	}
}

// Scan walks el using strategy and feeds every aggregate to p
func Scan[R any](s *Scanner, el element.Element, strategy Strategy, p Processor[R]) (R, bool) {
	result, found := process(s, el, strategy, p)
	return p.Finish(result, found)
}

func process[R any](s *Scanner, el element.Element, strategy Strategy, p Processor[R]) (R, bool) {
	switch e := el.(type) {
	case element.TypeElement:
		return processType(s, e, strategy, p)
	case element.MethodElement:
		return processMethod(s, e, strategy, p)
	default:
		return processElement(s, el, p)
	}
}

func processType[R any](s *Scanner, t element.TypeElement, strategy Strategy, p Processor[R]) (R, bool) {
	switch strategy {
	case InheritedAnnotations:
		return processInherited(s, t, p)
	case Superclass:
		index := 0
		return processTypeHierarchy(s, &index, t, p, false, false)
	case TypeHierarchy:
		index := 0
		return processTypeHierarchy(s, &index, t, p, true, false)
	case TypeHierarchyAndEnclosing:
		index := 0
		return processTypeHierarchy(s, &index, t, p, true, true)
	default:
		return processElement(s, t, p)
	}
}

func processElement[R any](s *Scanner, el element.Element, p Processor[R]) (R, bool) {
	if result, ok := p.DoWithAggregate(0); ok {
		return result, true
	}
	return p.DoWithTags(0, el, s.DeclaredTags(el))
}

// processInherited walks the superclass chain collecting only the tags that
// the root type carries by declaration or inheritance
func processInherited[R any](s *Scanner, root element.TypeElement, p Processor[R]) (R, bool) {
	if s.isWithoutHierarchy(root, InheritedAnnotations) {
		return processElement(s, root, p)
	}
	relevant := s.inheritedTags(root)
	remaining := len(relevant)
	aggregateIndex := 0
	for source := element.TypeElement(root); source != nil && remaining > 0 && !IsFoundational(source); source = source.Superclass() {
		if result, ok := p.DoWithAggregate(aggregateIndex); ok {
			return result, true
		}
		declared := s.DeclaredTags(source)
		matched := make([]*element.Tag, 0, len(declared))
		for _, tag := range declared {
			for i, r := range relevant {
				if r != nil && r.Type() == tag.Type() {
					relevant[i] = nil
					remaining--
					matched = append(matched, tag)
					break
				}
			}
		}
		if result, ok := p.DoWithTags(aggregateIndex, source, matched); ok {
			return result, true
		}
		aggregateIndex++
	}
	var zero R
	return zero, false
}

// inheritedTags returns the tags visible on root: every declared tag plus
// inherited-marked tags of superclasses whose type root does not already carry
func (s *Scanner) inheritedTags(root element.TypeElement) []*element.Tag {
	var result []*element.Tag
	seen := make(map[*element.TagType]bool)
	for _, tag := range s.DeclaredTags(root) {
		seen[tag.Type()] = true
		result = append(result, tag)
	}
	for t := root.Superclass(); t != nil && !IsFoundational(t); t = t.Superclass() {
		for _, tag := range s.DeclaredTags(t) {
			if tag.Type().IsInherited() && !seen[tag.Type()] {
				seen[tag.Type()] = true
				result = append(result, tag)
			}
		}
	}
	return result
}

func processTypeHierarchy[R any](s *Scanner, index *int, source element.TypeElement, p Processor[R], includeInterfaces, includeEnclosing bool) (R, bool) {
	var zero R
	if result, ok := p.DoWithAggregate(*index); ok {
		return result, true
	}
	if IsFoundational(source) {
		return zero, false
	}
	if result, ok := p.DoWithTags(*index, source, s.DeclaredTags(source)); ok {
		return result, true
	}
	*index++
	if includeInterfaces {
		for _, iface := range source.Interfaces() {
			if result, ok := processTypeHierarchy(s, index, iface, p, true, includeEnclosing); ok {
				return result, true
			}
		}
	}
	if super := source.Superclass(); super != nil && super.Name() != element.ObjectType {
		if result, ok := processTypeHierarchy(s, index, super, p, includeInterfaces, includeEnclosing); ok {
			return result, true
		}
	}
	if includeEnclosing {
		enclosing, err := source.EnclosingType()
		if err != nil {
			s.reportFailure(source, err)
			return zero, false
		}
		if enclosing != nil {
			if result, ok := processTypeHierarchy(s, index, enclosing, p, includeInterfaces, true); ok {
				return result, true
			}
		}
	}
	return zero, false
}

func processMethod[R any](s *Scanner, m element.MethodElement, strategy Strategy, p Processor[R]) (R, bool) {
	switch strategy {
	case Superclass:
		index := 0
		return processMethodHierarchy(s, &index, m.DeclaringType(), p, m, false)
	case TypeHierarchy, TypeHierarchyAndEnclosing:
		index := 0
		return processMethodHierarchy(s, &index, m.DeclaringType(), p, m, true)
	default:
		if result, ok := p.DoWithAggregate(0); ok {
			return result, true
		}
		return processMethodTags(s, 0, m, p)
	}
}

func processMethodHierarchy[R any](s *Scanner, index *int, sourceType element.TypeElement, p Processor[R], root element.MethodElement, includeInterfaces bool) (R, bool) {
	var zero R
	if result, ok := p.DoWithAggregate(*index); ok {
		return result, true
	}
	if IsFoundational(sourceType) {
		return zero, false
	}
	calledProcessor := false
	if sourceType.Name() == root.DeclaringType().Name() {
		if result, ok := processMethodTags(s, *index, root, p); ok {
			return result, true
		}
		calledProcessor = true
	} else {
		for _, candidate := range s.BaseTypeMethods(sourceType) {
			if !s.IsOverride(root, candidate) {
				continue
			}
			if result, ok := processMethodTags(s, *index, candidate, p); ok {
				return result, true
			}
			calledProcessor = true
		}
	}
	if root.IsPrivate() {
		return zero, false
	}
	if calledProcessor {
		*index++
	}
	if includeInterfaces {
		for _, iface := range sourceType.Interfaces() {
			if result, ok := processMethodHierarchy(s, index, iface, p, root, true); ok {
				return result, true
			}
		}
	}
	if super := sourceType.Superclass(); super != nil && super.Name() != element.ObjectType {
		if result, ok := processMethodHierarchy(s, index, super, p, root, includeInterfaces); ok {
			return result, true
		}
	}
	return zero, false
}

// processMethodTags reports the tags of m, followed by the tags of its
// bridge target that m does not already declare
func processMethodTags[R any](s *Scanner, index int, m element.MethodElement, p Processor[R]) (R, bool) {
	tags := s.DeclaredTags(m)
	if result, ok := p.DoWithTags(index, m, tags); ok {
		return result, true
	}
	target := m.BridgeTarget()
	if target == nil {
		var zero R
		return zero, false
	}
	var bridged []*element.Tag
	for _, candidate := range s.DeclaredTags(target) {
		if !containsEqual(tags, candidate) {
			bridged = append(bridged, candidate)
		}
	}
	return p.DoWithTags(index, m, bridged)
}

func containsEqual(tags []*element.Tag, tag *element.Tag) bool {
	for _, t := range tags {
		if t.Equal(tag) {
			return true
		}
	}
	return false
}

// DeclaredTags returns the tags declared on el that survive the foundational
// filter and whose attributes can all be read. Results are cached; an element
// that cannot be introspected yields no tags and is not cached.
func (s *Scanner) DeclaredTags(el element.Element) []*element.Tag {
	if tags, ok := s.declared.Get(el); ok {
		return tags
	}
	raw, err := el.DeclaredTags()
	if err != nil {
		s.reportFailure(el, err)
		return nil
	}
	tags := make([]*element.Tag, 0, len(raw))
	for _, tag := range raw {
		if tag == nil || filter.Plain.Matches(tag.Type().Name()) {
			continue
		}
		if err := s.tables.For(tag.Type()).Validate(tag); err != nil {
			s.logger.Debug("ignoring tag with unreadable attribute",
				zap.String("element", el.Name()),
				zap.String("tag", tag.Type().Name()),
				zap.Error(err))
			continue
		}
		tags = append(tags, tag)
	}
	return s.declared.Add(el, tags)
}

// BaseTypeMethods returns the methods of t that may be overridden and
// carry at least one tag
func (s *Scanner) BaseTypeMethods(t element.TypeElement) []element.MethodElement {
	if IsFoundational(t) {
		return nil
	}
	return s.baseMethods.GetOrCompute(t, func() []element.MethodElement {
		var methods []element.MethodElement
		for _, m := range t.Methods() {
			if m.IsPrivate() || len(s.DeclaredTags(m)) == 0 {
				continue
			}
			methods = append(methods, m)
		}
		return methods
	})
}

// IsOverride reports whether candidate, declared in an ancestor of root's
// declaring type, is overridden by root
func (s *Scanner) IsOverride(root, candidate element.MethodElement) bool {
	return !candidate.IsPrivate() &&
		candidate.MethodName() == root.MethodName() &&
		s.hasSameParameterTypes(root, candidate)
}

func (s *Scanner) hasSameParameterTypes(root, candidate element.MethodElement) bool {
	rootParams := root.Params()
	candidateParams := candidate.Params()
	if len(rootParams) != len(candidateParams) {
		return false
	}
	same := true
	for i := range rootParams {
		if rootParams[i].Type != candidateParams[i].Type {
			same = false
			break
		}
	}
	if same {
		return true
	}
	// parameters declared through type variables of the ancestor
	rootType := root.DeclaringType()
	if !element.IsAssignable(candidate.DeclaringType(), rootType) {
		return false
	}
	for i := range rootParams {
		resolved, ok := s.resolver.ResolveParameter(candidate, i, rootType)
		if !ok || resolved != rootParams[i].Type {
			return false
		}
	}
	return true
}

// IsKnownEmpty reports whether el provably carries no tags under strategy
func (s *Scanner) IsKnownEmpty(el element.Element, strategy Strategy) bool {
	if IsFoundational(el) {
		return true
	}
	if strategy != Direct && !s.isWithoutHierarchy(el, strategy) {
		return false
	}
	if m, ok := el.(element.MethodElement); ok && m.BridgeTarget() != nil {
		return false
	}
	return len(s.DeclaredTags(el)) == 0
}

func (s *Scanner) isWithoutHierarchy(el element.Element, strategy Strategy) bool {
	switch e := el.(type) {
	case element.TypeElement:
		if e.Name() == element.ObjectType {
			return true
		}
		super := e.Superclass()
		noSuperTypes := (super == nil || super.Name() == element.ObjectType) && len(e.Interfaces()) == 0
		if strategy == TypeHierarchyAndEnclosing {
			enclosing, err := e.EnclosingType()
			return noSuperTypes && err == nil && enclosing == nil
		}
		return noSuperTypes
	case element.MethodElement:
		return e.IsPrivate() || s.isWithoutHierarchy(e.DeclaringType(), strategy)
	default:
		return true
	}
}

func (s *Scanner) reportFailure(el element.Element, err error) {
	failure := &IntrospectionError{Element: el.Name(), Err: err}
	s.logger.Debug("introspection failure, skipping branch",
		zap.String("element", el.Name()),
		zap.Error(failure))
}

// IsFoundational reports whether el belongs to a foundational namespace and
// therefore cannot carry mergeable tags
func IsFoundational(el element.Element) bool {
	switch e := el.(type) {
	case element.MethodElement:
		return filter.Plain.Matches(e.DeclaringType().Name())
	case element.FieldElement:
		return filter.Plain.Matches(e.DeclaringType().Name())
	default:
		return filter.Plain.Matches(el.Name())
	}
}
