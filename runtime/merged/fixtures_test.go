package merged

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/metatags/runtime/element"
)

func attr(name string, t element.ValueType, def element.Value) *element.AttributeDecl {
	return &element.AttributeDecl{Name: name, Type: t, Default: def}
}

func alias(name string, t element.ValueType, def element.Value, tag, target string) *element.AttributeDecl {
	return &element.AttributeDecl{Name: name, Type: t, Default: def, Alias: &element.AliasFor{Tag: tag, Attribute: target}}
}

// fixture builds a universe with a small tag vocabulary:
//
//	app.Role(value)                          plain tag
//	app.Cacheable(ttl=60, region)            plain tag
//	app.FastCache(seconds -> Cacheable.ttl)  meta-tagged @Cacheable
//	app.Service(name)                        plain tag
//	app.Controller(name -> Service.name)     meta-tagged @Service
//	app.Route(path <-> value)                mirror pair
//	app.Schedule(cron <-> expression)        repeatable in app.Schedules
//	app.Transactional(readOnly)              plain tag, inherited
type fixture struct {
	u      *element.Universe
	engine *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	u := element.NewUniverse()

	u.AddTagType(element.NewTagType("app.Role", attr("value", element.StringType, nil)))

	u.AddTagType(element.NewTagType("app.Cacheable",
		attr("ttl", element.IntType, int64(60)),
		attr("region", element.StringType, "default"),
	))
	fast := u.AddTagType(element.NewTagType("app.FastCache",
		alias("seconds", element.IntType, nil, "app.Cacheable", "ttl"),
	))
	fast.AddTags(u.MustTag("app.Cacheable", nil))

	u.AddTagType(element.NewTagType("app.Service", attr("name", element.StringType, "")))
	controller := u.AddTagType(element.NewTagType("app.Controller",
		alias("name", element.StringType, "", "app.Service", "name"),
	))
	controller.AddTags(u.MustTag("app.Service", nil))

	u.AddTagType(element.NewTagType("app.Route",
		alias("path", element.StringType, "", "", "value"),
		alias("value", element.StringType, "", "", "path"),
	))

	schedule := u.AddTagType(element.NewTagType("app.Schedule",
		alias("cron", element.StringType, "", "", "expression"),
		alias("expression", element.StringType, "", "", "cron"),
	))
	u.AddTagType(element.NewTagType("app.Schedules",
		attr("value", element.ArrayOf(element.TagOf("app.Schedule")), nil),
	))
	schedule.AddTags(u.MustTag(element.RepeatableTag, map[string]element.Value{
		"value": element.TypeRef{Name: "app.Schedules"},
	}))

	transactional := u.AddTagType(element.NewTagType("app.Transactional",
		attr("readOnly", element.BoolType, false),
	))
	transactional.AddTags(u.MustTag(element.InheritedTag, nil))

	opts = append([]Option{WithTagTypes(u)}, opts...)
	return &fixture{u: u, engine: NewEngine(opts...)}
}

func (f *fixture) tag(t *testing.T, name string, values map[string]element.Value) *element.Tag {
	t.Helper()
	tag, err := f.u.Tag(name, values)
	require.NoError(t, err)
	return tag
}

func values(kv ...any) map[string]element.Value {
	m := make(map[string]element.Value, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

// collect drains a stream, failing on the first error
func collect(t *testing.T, seq func(func(Merged, error) bool)) []Merged {
	t.Helper()
	var result []Merged
	for m, err := range seq {
		require.NoError(t, err)
		result = append(result, m)
	}
	return result
}
