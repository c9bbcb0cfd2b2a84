package attrs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/metatags/runtime/cache"
	"github.com/conduit-lang/metatags/runtime/element"
)

func routeUniverse() *element.Universe {
	u := element.NewUniverse()
	u.AddEnum("web.Method", "GET", "POST")
	u.AddTagType(element.NewTagType("web.Header", &element.AttributeDecl{Name: "name", Type: element.StringType}))
	u.AddTagType(element.NewTagType("web.Route",
		&element.AttributeDecl{Name: "path", Type: element.StringType, Default: ""},
		&element.AttributeDecl{Name: "methods", Type: element.ArrayOf(element.EnumOf("web.Method")), Default: []element.Value{}},
		&element.AttributeDecl{Name: "handler", Type: element.ClassType, Default: element.TypeRef{Name: element.ObjectType}},
		&element.AttributeDecl{Name: "headers", Type: element.ArrayOf(element.TagOf("web.Header")), Default: []element.Value{}},
		&element.AttributeDecl{Name: "describe", Params: 1, Type: element.StringType},
		&element.AttributeDecl{Name: "reset"},
	))
	u.AddTagType(element.NewTagType("web.Public"))
	return u
}

func TestCompute(t *testing.T) {
	u := routeUniverse()
	table := Compute(u.TagType("web.Route"))

	assert.Same(t, u.TagType("web.Route"), table.TagType())
	assert.Equal(t, []string{"handler", "headers", "methods", "path"}, table.Names())
	assert.Equal(t, 4, table.Len())
	assert.Equal(t, "methods", table.Get(2).Name)
	assert.Equal(t, 3, table.IndexOf("path"))
	assert.Equal(t, -1, table.IndexOf("describe"))
	assert.Equal(t, -1, table.IndexOf("reset"))

	assert.True(t, table.MayFail(table.IndexOf("handler")))
	assert.True(t, table.MayFail(table.IndexOf("methods")))
	assert.False(t, table.MayFail(table.IndexOf("path")))
	assert.True(t, table.CanFail())
	assert.True(t, table.HasDefaultValues())
	assert.True(t, table.HasNestedTags())

	empty := Compute(u.TagType("web.Public"))
	assert.Zero(t, empty.Len())
	assert.False(t, empty.CanFail())
	assert.False(t, empty.HasDefaultValues())
	assert.False(t, empty.HasNestedTags())
}

func TestValidate(t *testing.T) {
	u := routeUniverse()
	table := Compute(u.TagType("web.Route"))

	ok := u.MustTag("web.Route", map[string]element.Value{
		"methods": element.EnumValue{Type: "web.Method", Name: "GET"},
	})
	assert.True(t, table.IsValid(ok))
	assert.NoError(t, table.Validate(ok))

	broken := u.MustTag("web.Route", map[string]element.Value{
		"handler": element.TypeRef{Name: "web.GoneHandler"},
	})
	assert.False(t, table.IsValid(broken))

	err := table.Validate(broken)
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "web.Route", validation.Tag)
	assert.Equal(t, "handler", validation.Attribute)
	assert.True(t, IsUnavailable(err))
	assert.Contains(t, err.Error(), "could not read attribute 'handler' of tag [web.Route]")

	assert.False(t, IsUnavailable(errors.New("boom")))
}

func TestTablesCache(t *testing.T) {
	u := routeUniverse()
	svc := cache.New()
	tables := NewTables(svc)

	route := u.TagType("web.Route")
	first := tables.For(route)
	assert.Same(t, first, tables.For(route))
	assert.Contains(t, svc.Stores(), "attribute_tables")

	svc.Clear()
	assert.NotSame(t, first, tables.For(route))
}
