package merged

import (
	"fmt"

	"github.com/conduit-lang/metatags/runtime/attrs"
	"github.com/conduit-lang/metatags/runtime/element"
	"github.com/conduit-lang/metatags/runtime/filter"
	"github.com/conduit-lang/metatags/runtime/repeatable"
)

// attrKey identifies an attribute by declaring tag type and name
type attrKey struct {
	tag  string
	attr string
}

// mapping is one tag type reachable from a root tag type through meta-tags
type mapping struct {
	tagType  *element.TagType
	table    *attrs.Table
	source   *mapping
	root     *mapping
	distance int

	// metaTag is the occurrence declared on the source's tag type; nil for the root
	metaTag *element.Tag

	// chain lists the mappings from the root to this one
	chain []*mapping

	// groups holds, per accessor of table, the alias group members found at
	// each level of chain
	groups []aliasGroup
}

// aliasGroup lists, per chain level, the attribute names belonging to one group
type aliasGroup struct {
	levels [][]string
}

func newMapping(source *mapping, t *element.TagType, metaTag *element.Tag, tables *attrs.Tables) *mapping {
	m := &mapping{
		tagType: t,
		table:   tables.For(t),
		source:  source,
		metaTag: metaTag,
	}
	if source == nil {
		m.root = m
		m.chain = []*mapping{m}
		return m
	}
	m.root = source.root
	m.distance = source.distance + 1
	m.chain = make([]*mapping, 0, len(source.chain)+1)
	m.chain = append(m.chain, source.chain...)
	m.chain = append(m.chain, m)
	return m
}

// inChain reports whether a tag type of the given name is on the chain
func (m *mapping) inChain(name string) bool {
	for _, c := range m.chain {
		if c.tagType.Name() == name {
			return true
		}
	}
	return false
}

// descendsFrom reports whether ancestor is on m's chain before m itself
func (m *mapping) descendsFrom(ancestor *mapping) bool {
	for _, c := range m.chain[:len(m.chain)-1] {
		if c == ancestor {
			return true
		}
	}
	return false
}

// metaTypes returns the tag type names from the root to m
func (m *mapping) metaTypes() []string {
	names := make([]string, len(m.chain))
	for i, c := range m.chain {
		names[i] = c.tagType.Name()
	}
	return names
}

// typeMappings holds every mapping of a root tag type in breadth-first
// order. err is set when an alias declaration in the hierarchy is invalid;
// presence checks still work in that case, merging does not.
type typeMappings struct {
	root *element.TagType
	all  []*mapping
	err  error
}

type metaTagSource interface {
	DeclaredTags(el element.Element) []*element.Tag
}

func buildMappings(tags metaTagSource, tables *attrs.Tables, root *element.TagType, f filter.Filter, c repeatable.Containers) *typeMappings {
	tm := &typeMappings{root: root}
	queue := []*mapping{newMapping(nil, root, nil, tables)}
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		tm.all = append(tm.all, m)
		if filter.Plain.Matches(m.tagType.Name()) {
			continue
		}
		for _, declared := range tags.DeclaredTags(m.tagType) {
			for _, meta := range repeatable.Unwrap(c, declared) {
				name := meta.Type().Name()
				if f.Matches(name) || m.inChain(name) {
					continue
				}
				// tags taken out of a container were never validated
				if meta != declared && !tables.For(meta.Type()).IsValid(meta) {
					continue
				}
				queue = append(queue, newMapping(m, meta.Type(), meta, tables))
			}
		}
	}
	tm.err = tm.processAliases()
	return tm
}

// contains reports whether a mapping of the named tag type exists
func (tm *typeMappings) contains(name string) bool {
	for _, m := range tm.all {
		if m.tagType.Name() == name {
			return true
		}
	}
	return false
}

func (tm *typeMappings) processAliases() error {
	targets := make(map[attrKey]attrKey)
	for _, m := range tm.all {
		for i := 0; i < m.table.Len(); i++ {
			attr := m.table.Get(i)
			if attr.Alias == nil {
				continue
			}
			target, err := tm.resolveTarget(m, attr)
			if err != nil {
				return err
			}
			targets[attrKey{m.tagType.Name(), attr.Name}] = target
		}
	}
	for _, m := range tm.all {
		m.groups = make([]aliasGroup, m.table.Len())
		for i := range m.groups {
			m.groups[i] = collectGroup(m, m.table.Get(i).Name, targets)
		}
	}
	for _, m := range tm.all {
		if err := validateMirrors(m); err != nil {
			return err
		}
	}
	return nil
}

// resolveTarget validates the alias declared on attr of m's tag type
func (tm *typeMappings) resolveTarget(m *mapping, attr *element.AttributeDecl) (attrKey, error) {
	own := m.tagType.Name()
	tagName := attr.Alias.Tag
	if tagName == "" {
		tagName = own
	}
	attrName := attr.Alias.Attribute
	if attrName == "" {
		attrName = attr.Name
	}
	fail := func(format string, args ...any) (attrKey, error) {
		return attrKey{}, &AliasConfigError{Tag: own, Attribute: attr.Name, Message: fmt.Sprintf(format, args...)}
	}

	targetType := m.tagType
	if tagName == own {
		if attrName == attr.Name {
			return fail("alias points to itself; name a meta-tag to alias a same-named attribute there")
		}
	} else {
		targetType = tm.findBelow(m, tagName)
		if targetType == nil {
			return fail("declares an alias for attribute '%s' in tag [%s] which is not meta-present", attrName, tagName)
		}
	}
	target := targetType.Attribute(attrName)
	if target == nil {
		if tagName == own {
			return fail("declares an alias for '%s' which is not present", attrName)
		}
		return fail("declares an alias for attribute '%s' in tag [%s] which is not present", attrName, tagName)
	}
	if !compatibleTypes(attr.Type, target.Type) {
		return fail("alias and its target '%s' in tag [%s] must declare the same value type, found %s and %s",
			attrName, tagName, attr.Type, target.Type)
	}
	if tagName == own && target.Alias != nil {
		backTag := target.Alias.Tag
		if backTag == "" {
			backTag = own
		}
		backAttr := target.Alias.Attribute
		if backAttr == "" {
			backAttr = target.Name
		}
		if backTag != own || backAttr != attr.Name {
			return fail("'%s' must be declared as an alias for '%s', not for '%s' in tag [%s]",
				target.Name, attr.Name, backAttr, backTag)
		}
	}
	return attrKey{tagName, attrName}, nil
}

// findBelow returns the tag type of the given name among the meta-tags
// reachable from m
func (tm *typeMappings) findBelow(m *mapping, name string) *element.TagType {
	for _, candidate := range tm.all {
		if candidate.tagType.Name() == name && candidate.descendsFrom(m) {
			return candidate.tagType
		}
	}
	return nil
}

// collectGroup gathers every attribute on m's chain that aliases the named
// attribute of m, directly or transitively
func collectGroup(m *mapping, name string, targets map[attrKey]attrKey) aliasGroup {
	members := map[attrKey]bool{{m.tagType.Name(), name}: true}
	group := aliasGroup{levels: make([][]string, len(m.chain))}
	for level := len(m.chain) - 1; level >= 0; level-- {
		c := m.chain[level]
		tagName := c.tagType.Name()
		for changed := true; changed; {
			changed = false
			for _, attrName := range c.table.Names() {
				key := attrKey{tagName, attrName}
				if members[key] {
					continue
				}
				target, ok := targets[key]
				if ok && members[target] {
					members[key] = true
					changed = true
					continue
				}
				// the reverse direction of a same-type pair
				if back, ok := reverseTarget(targets, key, members); ok && back.tag == tagName {
					members[key] = true
					changed = true
				}
			}
		}
		for _, attrName := range c.table.Names() {
			if members[attrKey{tagName, attrName}] {
				group.levels[level] = append(group.levels[level], attrName)
			}
		}
	}
	return group
}

// reverseTarget finds a member that declares key as its alias target
func reverseTarget(targets map[attrKey]attrKey, key attrKey, members map[attrKey]bool) (attrKey, bool) {
	for from, to := range targets {
		if to == key && members[from] {
			return from, true
		}
	}
	return attrKey{}, false
}

// validateMirrors checks that same-level members of every group declare
// one shared default
func validateMirrors(m *mapping) error {
	for _, group := range m.groups {
		for level, names := range group.levels {
			if len(names) < 2 {
				continue
			}
			t := m.chain[level].tagType
			first := t.Attribute(names[0])
			for _, name := range names {
				attr := t.Attribute(name)
				if !attr.HasDefault() {
					return &AliasConfigError{Tag: t.Name(), Attribute: name,
						Message: fmt.Sprintf("aliases '%s' and '%s' must declare default values", names[0], name)}
				}
				if !element.Equal(attr.Default, first.Default) {
					return &AliasConfigError{Tag: t.Name(), Attribute: name,
						Message: fmt.Sprintf("aliases '%s' and '%s' must declare the same default value", names[0], name)}
				}
			}
		}
	}
	return nil
}

// compatibleTypes reports whether an alias of type a may target type b
func compatibleTypes(a, b element.ValueType) bool {
	return a == b || (b.Array && !a.Array && a == b.Scalar())
}
