package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableRender(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, true, "TAG", "DISTANCE", "SOURCE")
	table.AddRow("shop.FastCache", "0", "shop.OrderService")
	table.AddRow("shop.Cacheable", "1")
	table.Render()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "TAG             DISTANCE  SOURCE", lines[0])
	assert.Equal(t, strings.Repeat("─", 14)+"  "+strings.Repeat("─", 8)+"  "+strings.Repeat("─", 17), lines[1])
	assert.Equal(t, "shop.FastCache  0         shop.OrderService", lines[2])
	assert.Equal(t, "shop.Cacheable  1         ", lines[3])
	assert.Equal(t, 2, table.Len())
}

func TestTableNoHeaders(t *testing.T) {
	var buf bytes.Buffer
	NewTable(&buf, true).Render()
	assert.Empty(t, buf.String())
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewKeyValueTable(&buf, true)
	table.AddRow("ttl", "30")
	table.AddRow("region", `"default"`)
	table.Render()

	assert.Equal(t, "ttl:    30\nregion: \"default\"\n", buf.String())
}

func TestHeader(t *testing.T) {
	var buf bytes.Buffer
	Header(&buf, "shop.OrderService", true)
	assert.Equal(t, "shop.OrderService\n"+strings.Repeat("─", 17)+"\n", buf.String())
}

func TestMessageFormat(t *testing.T) {
	msg := Message{
		Context:     "element not found",
		Problem:     "shop.OrderServce",
		Suggestions: []string{"shop.OrderService"},
		Hints:       []string{"List elements"},
		NoColor:     true,
	}
	out := msg.Format()
	assert.Contains(t, out, "✗ ELEMENT NOT FOUND: shop.OrderServce")
	assert.Contains(t, out, "Did you mean: shop.OrderService?")
	assert.Contains(t, out, "→ List elements")

	var buf bytes.Buffer
	msg.Write(&buf)
	assert.Equal(t, out, buf.String())
}

func TestMessageLevels(t *testing.T) {
	assert.True(t, strings.HasPrefix(Warning("stale cache", true), "! stale cache"))
	info := Message{Level: LevelInfo, Problem: "reloaded", NoColor: true}.Format()
	assert.Equal(t, "i reloaded\n", info)
	assert.Equal(t, "✓ model is valid", Success("model is valid", true))
}

func TestNotFound(t *testing.T) {
	msg := NotFound("tag type", "shop.Cachable", []string{"shop.Cacheable", "shop.Route"}, true)
	assert.Equal(t, []string{"shop.Cacheable"}, msg.Suggestions)
	assert.Contains(t, msg.Format(), "TAG TYPE NOT FOUND: shop.Cachable")
}

func TestFindSimilar(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		candidates []string
		want       []string
	}{
		{
			name:       "typo",
			target:     "shop.OrderServce",
			candidates: []string{"shop.OrderService", "shop.BaseService", "shop.Repository"},
			want:       []string{"shop.OrderService"},
		},
		{
			name:       "case insensitive",
			target:     "SHOP.ROUTE",
			candidates: []string{"shop.Route"},
			want:       []string{"shop.Route"},
		},
		{
			name:       "simple name",
			target:     "Routes",
			candidates: []string{"shop.Route", "shop.Schedule"},
			want:       []string{"shop.Route"},
		},
		{
			name:       "member",
			target:     "shop.OrderService#sav",
			candidates: []string{"shop.OrderService#save", "shop.OrderService#nightly"},
			want:       []string{"shop.OrderService#save"},
		},
		{
			name:       "nothing close",
			target:     "zzzzzzzz",
			candidates: []string{"shop.Route"},
			want:       []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindSimilar(tt.target, tt.candidates, 0, 0))
		})
	}
}

func TestFindSimilarLimits(t *testing.T) {
	candidates := []string{"ab", "abc", "abcd", "abcde"}
	assert.Equal(t, []string{"ab", "abc"}, FindSimilar("ab", candidates, 1, 0))
	assert.Equal(t, []string{"ab"}, FindSimilar("ab", candidates, 3, 1))
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, Distance("", ""))
	assert.Equal(t, 3, Distance("", "abc"))
	assert.Equal(t, 3, Distance("kitten", "sitting"))
	assert.Equal(t, 1, Distance("ttl", "tl"))
}
