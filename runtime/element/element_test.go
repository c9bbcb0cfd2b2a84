package element

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShop(t *testing.T) *Universe {
	t.Helper()
	u := NewUniverse()
	u.AddEnum("shop.Level", "LOW", "HIGH")
	u.AddTagType(NewTagType("shop.Priority",
		&AttributeDecl{Name: "level", Type: EnumOf("shop.Level"), Default: EnumValue{Type: "shop.Level", Name: "LOW"}},
		&AttributeDecl{Name: "handler", Type: ClassType, Default: TypeRef{Name: ObjectType}},
		&AttributeDecl{Name: "tags", Type: ArrayOf(StringType), Default: []Value{}},
		&AttributeDecl{Name: "weight", Type: IntType},
		&AttributeDecl{Name: "compute", Params: 1, Type: IntType},
	))
	return u
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"bool", KindBool},
		{"Boolean", KindBool},
		{"long", KindInt},
		{"double", KindFloat},
		{"string", KindString},
		{"enum", KindEnum},
		{"class", KindType},
		{"annotation", KindTag},
		{"", KindVoid},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseKind("pointer")
	assert.ErrorContains(t, err, "unknown value kind")
}

func TestValueType(t *testing.T) {
	arr := ArrayOf(EnumOf("shop.Level"))
	assert.Equal(t, "enum<shop.Level>[]", arr.String())
	assert.Equal(t, EnumOf("shop.Level"), arr.Scalar())
	assert.True(t, arr.MayFail())
	assert.True(t, ClassType.MayFail())
	assert.False(t, StringType.MayFail())
	assert.True(t, ArrayOf(TagOf("a.B")).IsNestedTag())
}

func TestNewTag(t *testing.T) {
	u := newShop(t)
	priority := u.TagType("shop.Priority")

	tag, err := u.Tag("shop.Priority", map[string]Value{"weight": int64(3), "tags": "x"})
	require.NoError(t, err)
	assert.Same(t, priority, tag.Type())

	tags, err := tag.Get("tags")
	require.NoError(t, err)
	assert.Equal(t, []Value{"x"}, tags)

	level, err := tag.Get("level")
	require.NoError(t, err)
	assert.Equal(t, EnumValue{Type: "shop.Level", Name: "LOW"}, level)

	assert.True(t, tag.IsExplicit("weight"))
	assert.False(t, tag.IsExplicit("level"))

	_, err = tag.Get("compute")
	assert.True(t, errors.Is(err, ErrNoAttribute))
}

func TestNewTagErrors(t *testing.T) {
	u := newShop(t)

	_, err := u.Tag("shop.Priority", nil)
	assert.ErrorContains(t, err, "missing mandatory attribute 'weight'")

	_, err = u.Tag("shop.Priority", map[string]Value{"weight": 3})
	assert.ErrorContains(t, err, "not assignable to int")

	_, err = u.Tag("shop.Priority", map[string]Value{"weight": int64(1), "nope": true})
	assert.ErrorContains(t, err, "has no attribute 'nope'")

	_, err = u.Tag("shop.Priority", map[string]Value{"weight": int64(1), "level": EnumValue{Type: "other.Level", Name: "LOW"}})
	assert.ErrorContains(t, err, "not assignable")

	_, err = u.Tag("shop.Missing", nil)
	assert.ErrorContains(t, err, "unknown tag type")

	_, err = NewTag(nil, nil, nil)
	assert.Error(t, err)
}

func TestUnavailableValues(t *testing.T) {
	u := newShop(t)

	tag := u.MustTag("shop.Priority", map[string]Value{
		"weight":  int64(1),
		"handler": TypeRef{Name: "shop.Gone"},
		"level":   EnumValue{Type: "shop.Level", Name: "MEDIUM"},
	})

	_, err := tag.Get("handler")
	var unavailable *UnavailableValueError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "shop.Gone", unavailable.Symbol)
	assert.Equal(t, "handler", unavailable.Attribute)
	assert.True(t, errors.Is(err, ErrUnavailable))

	_, err = tag.Get("level")
	assert.ErrorContains(t, err, "shop.Level.MEDIUM")

	raw, ok := tag.Raw("handler")
	assert.True(t, ok)
	assert.Equal(t, TypeRef{Name: "shop.Gone"}, raw)

	// tags built without symbols treat every reference as available
	detached := MustTag(u.TagType("shop.Priority"), map[string]Value{
		"weight":  int64(1),
		"handler": TypeRef{Name: "shop.Gone"},
	})
	_, err = detached.Get("handler")
	assert.NoError(t, err)
}

func TestTagEqualAndString(t *testing.T) {
	u := newShop(t)
	a := u.MustTag("shop.Priority", map[string]Value{"weight": int64(1)})
	b := u.MustTag("shop.Priority", map[string]Value{"weight": int64(1), "level": EnumValue{Type: "shop.Level", Name: "LOW"}})
	c := u.MustTag("shop.Priority", map[string]Value{"weight": int64(2)})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, Equal([]Value{a}, []Value{b}))
	assert.False(t, Equal([]Value{a}, []Value{a, b}))
	assert.Equal(t, "@shop.Priority(weight=2)", c.String())
	assert.Equal(t, `{"a", 1}`, FormatValue([]Value{"a", int64(1)}))
}

func TestTagTypeMetaTags(t *testing.T) {
	u := NewUniverse()
	audited := u.AddTagType(NewTagType("app.Audited"))
	audited.AddTags(u.MustTag(InheritedTag, nil))

	assert.True(t, audited.IsInherited())
	assert.True(t, audited.HasMetaTag(InheritedTag))
	assert.Nil(t, audited.MetaTag(RepeatableTag))
	assert.Nil(t, audited.Attribute("compute"))
}

func TestLookup(t *testing.T) {
	u := newShop(t)
	orders := u.NewClass("shop.Orders")
	save := orders.AddMethod("save", Param{Type: "shop.Order"})
	orders.AddMethod("save", Param{Type: "lang.Object"}, Param{Type: "lang.String"})
	field := orders.AddField("repo")

	tests := []struct {
		address string
		want    Element
	}{
		{"shop.Orders", orders},
		{"shop.Priority", u.TagType("shop.Priority")},
		{"shop.Orders#save", save},
		{"shop.Orders#save(shop.Order)", save},
		{"shop.Orders#repo", field},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			got, err := u.Lookup(tt.address)
			require.NoError(t, err)
			assert.Same(t, tt.want, got)
		})
	}

	two, err := u.Lookup("shop.Orders#save(lang.Object,lang.String)")
	require.NoError(t, err)
	assert.Equal(t, "shop.Orders#save(lang.Object,lang.String)", two.Name())

	for _, bad := range []string{"shop.Nope", "shop.Nope#x", "shop.Orders#save(int)", "shop.Orders#repo()"} {
		_, err := u.Lookup(bad)
		assert.Error(t, err, bad)
	}
}

func TestClassHierarchy(t *testing.T) {
	u := NewUniverse()
	repo := u.NewInterface("app.Repo")
	base := u.NewClass("app.Base")
	impl := u.NewClass("app.Impl").Extends(base).Implements(repo)
	inner := u.NewClass("app.Impl.Inner").EnclosedBy("app.Impl")
	lost := u.NewClass("app.Lost").EnclosedBy("app.Gone")

	assert.Equal(t, ObjectType, base.Superclass().Name())
	assert.Nil(t, repo.Superclass())
	assert.True(t, repo.IsInterface())

	assert.True(t, IsAssignable(repo, impl))
	assert.True(t, IsAssignable(base, impl))
	assert.True(t, IsAssignable(u.Class(ObjectType), repo))
	assert.False(t, IsAssignable(impl, base))
	assert.False(t, IsAssignable(nil, impl))

	enclosing, err := inner.EnclosingType()
	require.NoError(t, err)
	assert.Equal(t, "app.Impl", enclosing.Name())

	none, err := impl.EnclosingType()
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = lost.EnclosingType()
	assert.ErrorContains(t, err, "cannot be loaded")

	assert.True(t, u.HasType("app.Repo"))
	assert.True(t, u.HasType(InheritedTag))
	assert.False(t, u.HasType("app.Gone"))
}

func TestBindingResolver(t *testing.T) {
	u := NewUniverse()
	crud := u.NewInterface("app.Crud")
	save := crud.AddMethod("save", Param{Type: ObjectType, Var: "T"})
	find := crud.AddMethod("find", Param{Type: "lang.String"})

	base := u.NewClass("app.Base").Implements(crud).Bind("T", "E")
	users := u.NewClass("app.Users").Extends(base).Bind("E", "app.User")
	raw := u.NewClass("app.Raw").Implements(crud)

	var r BindingResolver
	got, ok := r.ResolveParameter(save, 0, users)
	require.True(t, ok)
	assert.Equal(t, "app.User", got)

	got, _ = r.ResolveParameter(save, 0, raw)
	assert.Equal(t, ObjectType, got)

	got, _ = r.ResolveParameter(find, 0, users)
	assert.Equal(t, "lang.String", got)

	_, ok = r.ResolveParameter(save, 1, users)
	assert.False(t, ok)
}
