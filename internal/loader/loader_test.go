package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/metatags/runtime/element"
	"github.com/conduit-lang/metatags/runtime/merged"
	"github.com/conduit-lang/metatags/runtime/scan"
)

func loadShop(t *testing.T) *Model {
	t.Helper()
	model, err := Load(filepath.Join("testdata", "shop.yaml"))
	require.NoError(t, err)
	return model
}

func TestLoad(t *testing.T) {
	model := loadShop(t)

	assert.Equal(t, filepath.Join("testdata", "shop.yaml"), model.Path)
	assert.Equal(t, []string{
		"shop.Cacheable", "shop.FastCache", "shop.Transactional",
		"shop.Route", "shop.Schedule", "shop.Schedules",
	}, model.TagTypes)
	assert.Equal(t, []string{
		"shop.Repository", "shop.BaseService", "shop.OrderService", "shop.OrderService.Lines",
	}, model.Types)

	u := model.Universe
	tx := u.TagType("shop.Transactional")
	require.NotNil(t, tx)
	assert.True(t, tx.IsInherited())
	assert.Equal(t, element.EnumValue{Type: "shop.Isolation", Name: "DEFAULT"}, tx.Attribute("isolation").Default)

	route := u.TagType("shop.Route")
	assert.Equal(t, element.ArrayOf(element.StringType), route.Attribute("methods").Type)
	assert.Equal(t, &element.AliasFor{Attribute: "value"}, route.Attribute("path").Alias)

	schedule := u.TagType("shop.Schedule")
	assert.True(t, schedule.HasMetaTag(element.RepeatableTag))

	repo := u.Class("shop.Repository")
	require.NotNil(t, repo)
	assert.True(t, repo.IsInterface())

	orders := u.Class("shop.OrderService")
	require.NotNil(t, orders)
	assert.Equal(t, "shop.BaseService", orders.Superclass().Name())
	require.Len(t, orders.Interfaces(), 1)
	binding, ok := orders.Binding("T")
	assert.True(t, ok)
	assert.Equal(t, "shop.Order", binding)

	lines := u.Class("shop.OrderService.Lines")
	enclosing, err := lines.EnclosingType()
	require.NoError(t, err)
	assert.Equal(t, "shop.OrderService", enclosing.Name())
}

func TestLoadedModelMerges(t *testing.T) {
	model := loadShop(t)
	u := model.Universe
	engine := merged.NewEngine(merged.WithTagTypes(u))

	orders, err := u.Lookup("shop.OrderService")
	require.NoError(t, err)
	view := engine.FromStrategy(orders, scan.TypeHierarchy)

	cacheable, err := view.Get("shop.Cacheable")
	require.NoError(t, err)
	ttl, err := cacheable.Int("ttl")
	require.NoError(t, err)
	assert.Equal(t, int64(30), ttl)

	route, err := view.Get("shop.Route")
	require.NoError(t, err)
	path, err := route.String("path")
	require.NoError(t, err)
	assert.Equal(t, "/orders", path)
	methods, err := route.Strings("methods")
	require.NoError(t, err)
	assert.Equal(t, []string{"GET"}, methods)

	tx, err := view.Get("shop.Transactional")
	require.NoError(t, err)
	// OrderService, then Repository, then BaseService
	assert.Equal(t, 2, tx.AggregateIndex())
	isolation, err := tx.Enum("isolation")
	require.NoError(t, err)
	assert.Equal(t, "SERIALIZABLE", isolation.Name)

	save, err := u.Lookup("shop.OrderService#save(shop.Order)")
	require.NoError(t, err)
	assert.True(t, engine.FromStrategy(save, scan.TypeHierarchy).IsPresent("shop.Transactional"))

	nightly, err := u.Lookup("shop.OrderService#nightly")
	require.NoError(t, err)
	count := 0
	for m, err := range engine.From(nightly).Stream("shop.Schedule") {
		require.NoError(t, err)
		assert.Equal(t, merged.OriginRepeated, m.Origin())
		count++
	}
	assert.Equal(t, 2, count)

	field, err := u.Lookup("shop.OrderService#repository")
	require.NoError(t, err)
	assert.True(t, engine.From(field).IsDirectlyPresent("shop.Cacheable"))

	lines, err := u.Lookup("shop.OrderService.Lines")
	require.NoError(t, err)
	assert.True(t, engine.FromStrategy(lines, scan.TypeHierarchyAndEnclosing).IsPresent("shop.Route"))
}

func TestParseJSON(t *testing.T) {
	model, err := Parse([]byte(`{
		"tags": [{"name": "app.Role", "attributes": [{"name": "value", "type": "string"}]}],
		"types": [{"name": "app.Admin", "tags": [{"type": "app.Role", "values": {"value": "admin"}}]}]
	}`))
	require.NoError(t, err)
	admin := model.Universe.Class("app.Admin")
	require.NotNil(t, admin)
	tags, err := admin.DeclaredTags()
	require.NoError(t, err)
	require.Len(t, tags, 1)
	v, err := tags[0].Get("value")
	require.NoError(t, err)
	assert.Equal(t, "admin", v)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		message string
	}{
		{
			name:    "syntax",
			model:   "tags: [",
			message: "invalid model syntax",
		},
		{
			name:    "unknown kind",
			model:   "tags: [{name: a.T, attributes: [{name: x, type: pointer}]}]",
			message: "unknown value kind",
		},
		{
			name:    "tag without ref",
			model:   "tags: [{name: a.T, attributes: [{name: x, type: tag}]}]",
			message: "must name the tag type",
		},
		{
			name:    "unknown nested tag type",
			model:   "tags: [{name: a.T, attributes: [{name: x, type: tag, ref: a.Missing}]}]",
			message: "unknown tag type a.Missing",
		},
		{
			name:    "duplicate tag type",
			model:   "tags: [{name: a.T}, {name: a.T}]",
			message: "declared twice",
		},
		{
			name:    "unknown meta-tag",
			model:   "tags: [{name: a.T, tags: [{type: a.Missing}]}]",
			message: "unknown tag type a.Missing",
		},
		{
			name:    "missing mandatory value",
			model:   "tags: [{name: a.T, attributes: [{name: x, type: int}]}]\ntypes: [{name: a.C, tags: [{type: a.T}]}]",
			message: "missing mandatory attribute 'x'",
		},
		{
			name:    "wrong value type",
			model:   "tags: [{name: a.T, attributes: [{name: x, type: int}]}]\ntypes: [{name: a.C, tags: [{type: a.T, values: {x: nope}}]}]",
			message: "not assignable to int",
		},
		{
			name:    "unknown attribute",
			model:   "tags: [{name: a.T}]\ntypes: [{name: a.C, tags: [{type: a.T, values: {x: 1}}]}]",
			message: "has no attribute 'x'",
		},
		{
			name:    "unknown superclass",
			model:   "types: [{name: a.C, extends: a.Missing}]",
			message: "extends unknown type a.Missing",
		},
		{
			name:    "extends interface",
			model:   "types: [{name: a.I, kind: interface}, {name: a.C, extends: a.I}]",
			message: "cannot extend interface",
		},
		{
			name:    "implements class",
			model:   "types: [{name: a.B}, {name: a.C, implements: [a.B]}]",
			message: "is not an interface",
		},
		{
			name:    "unknown type kind",
			model:   "types: [{name: a.C, kind: struct}]",
			message: "unknown kind",
		},
		{
			name:    "superclass cycle",
			model:   "types: [{name: a.A, extends: a.B}, {name: a.B, extends: a.A}]",
			message: "superclass cycle",
		},
		{
			name:    "missing bridge target",
			model:   "types: [{name: a.C, methods: [{name: run, params: [{type: lang.Object}], bridge: lang.String}]}]",
			message: "bridge target run(lang.String) not found",
		},
		{
			name:    "enum of another type",
			model:   "enums: [{name: a.E, constants: [X]}]\ntags: [{name: a.T, attributes: [{name: e, type: enum, ref: a.E, default: b.F.X}]}]",
			message: "is not of type a.E",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.model))
			require.Error(t, err)
			var loadErr *LoadError
			assert.True(t, errors.As(err, &loadErr))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadReportsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("types: [{name: a.C, extends: a.Missing}]"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
	assert.Contains(t, err.Error(), "type a.C")
}

func TestModelElements(t *testing.T) {
	model := loadShop(t)

	var names []string
	for _, el := range model.Elements() {
		names = append(names, el.Name())
	}
	assert.Equal(t, []string{
		"shop.Repository",
		"shop.Repository#save(lang.Object)",
		"shop.BaseService",
		"shop.OrderService",
		"shop.OrderService#save(shop.Order)",
		"shop.OrderService#nightly()",
		"shop.OrderService#repository",
		"shop.OrderService.Lines",
	}, names)
}
