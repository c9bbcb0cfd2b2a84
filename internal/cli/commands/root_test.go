package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/metatags/internal/export"
)

var shopModel = filepath.Join("..", "..", "loader", "testdata", "shop.yaml")

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runContext(t, context.Background(), args...)
}

func runContext(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "metatags", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, expected := range []string{"version", "inspect", "validate", "export", "watch"} {
		assert.Contains(t, names, expected)
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	BuildDate = "2026-01-01"
	GoVersion = "go1.23"

	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "metatags version: 1.0.0-test")
	assert.Contains(t, out, "Git commit: abc123")
	assert.Contains(t, out, "Go version: go1.23")
}

func TestInspectTable(t *testing.T) {
	out, _, err := run(t, "inspect", shopModel, "shop.OrderService")
	require.NoError(t, err)

	assert.Contains(t, out, "shop.OrderService\n")
	assert.Contains(t, out, "ATTRIBUTES")
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "shop.Cacheable") {
			assert.Contains(t, line, "meta")
			assert.Contains(t, line, `region="default", ttl=30`)
		}
		if strings.HasPrefix(line, "shop.Route") {
			assert.Contains(t, line, `methods=["GET"]`)
		}
	}
}

func TestInspectJSON(t *testing.T) {
	out, _, err := run(t, "inspect", shopModel, "shop.OrderService", "--type", "shop.Cacheable", "--format", "json")
	require.NoError(t, err)

	var results []export.ElementTags
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	require.Len(t, results[0].Occurrences, 1)
	occ := results[0].Occurrences[0]
	assert.Equal(t, "shop.Cacheable", occ.Type)
	assert.Equal(t, 1, occ.Distance)
	assert.Equal(t, float64(30), occ.Attributes["ttl"])
}

func TestInspectSelector(t *testing.T) {
	out, _, err := run(t, "inspect", shopModel, "shop.OrderService#save",
		"--type", "shop.Transactional", "--select", "first-direct", "--format", "json")
	require.NoError(t, err)

	var results []export.ElementTags
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results[0].Occurrences, 1)
	assert.Equal(t, "shop.Repository#save(lang.Object)", results[0].Occurrences[0].Source)

	_, _, err = run(t, "inspect", shopModel, "shop.OrderService", "--select", "nearest")
	assert.ErrorContains(t, err, "--select requires --type")
}

func TestInspectMatch(t *testing.T) {
	out, _, err := run(t, "inspect", shopModel, "--match", "shop.OrderService#*", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "element: shop.OrderService#save(shop.Order)")
	assert.Contains(t, out, "element: shop.OrderService#nightly()")
	assert.Contains(t, out, "element: shop.OrderService#repository")
	assert.NotContains(t, out, "element: shop.Repository")

	_, stderr, err := run(t, "inspect", shopModel, "--match", "nothing.*")
	require.NoError(t, err)
	assert.Contains(t, stderr, `no element matches "nothing.*"`)
}

func TestInspectRepeatableNone(t *testing.T) {
	out, _, err := run(t, "inspect", shopModel, "shop.OrderService#nightly",
		"--strategy", "direct", "--repeatable", "none", "--format", "json")
	require.NoError(t, err)

	var results []export.ElementTags
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results[0].Occurrences, 1)
	assert.Equal(t, "shop.Schedules", results[0].Occurrences[0].Type)
}

func TestInspectFilter(t *testing.T) {
	out, _, err := run(t, "inspect", shopModel, "shop.OrderService", "--filter", "shop", "--format", "json")
	require.NoError(t, err)

	var results []export.ElementTags
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Empty(t, results[0].Occurrences)
}

func TestInspectUnknownNames(t *testing.T) {
	_, stderr, err := run(t, "inspect", shopModel, "shop.OrderServce")
	require.Error(t, err)
	assert.Contains(t, stderr, "ELEMENT NOT FOUND: shop.OrderServce")
	assert.Contains(t, stderr, "Did you mean: shop.OrderService")

	_, stderr, err = run(t, "inspect", shopModel, "shop.OrderService", "--type", "shop.Cachable")
	require.ErrorContains(t, err, "unknown tag type")
	assert.Contains(t, stderr, "Did you mean: shop.Cacheable?")
}

func TestInspectErrors(t *testing.T) {
	_, _, err := run(t, "inspect", shopModel)
	assert.ErrorContains(t, err, "no elements given")

	_, _, err = run(t, "inspect", shopModel, "shop.OrderService", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")

	_, _, err = run(t, "inspect", shopModel, "shop.OrderService", "--strategy", "sideways")
	assert.ErrorContains(t, err, "unknown search strategy")

	_, stderr, err := run(t, "inspect", filepath.Join(t.TempDir(), "absent.yaml"), "a.B")
	assert.ErrorContains(t, err, "failed to load model")
	assert.Contains(t, stderr, "MODEL ERROR")
}

func TestInspectStats(t *testing.T) {
	out, _, err := run(t, "inspect", shopModel, "shop.OrderService", "--stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Cache\n")
	assert.Contains(t, out, "metatags_cache_lookups_total")
}

func TestValidate(t *testing.T) {
	out, _, err := run(t, "validate", shopModel, "--progress")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+shopModel+" is valid: 6 tag types, 4 types")
}

func TestValidateReportsProblems(t *testing.T) {
	model := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(model, []byte(`
tags:
  - name: app.Route
    attributes:
      - {name: path, type: string, default: "", alias: {attribute: value}}
      - {name: value, type: string, default: "/", alias: {attribute: path}}
  - name: app.Handler
    attributes:
      - {name: target, type: type}
types:
  - name: app.Api
    tags:
      - type: app.Handler
        values: {target: app.Missing}
`), 0o644))

	out, _, err := run(t, "validate", model)
	require.ErrorContains(t, err, "2 problem(s) found")
	assert.Contains(t, out, "APP.API")
	assert.Contains(t, out, "app.Missing")
	assert.Contains(t, out, "APP.ROUTE")
}

func TestValidateDirectory(t *testing.T) {
	data, err := os.ReadFile(shopModel)
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shop.yaml"), data, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "billing"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing", "invoices.json"),
		[]byte(`{"tags": [{"name": "billing.Audited"}], "types": [{"name": "billing.Invoice", "tags": [{"type": "billing.Audited"}]}]}`), 0o644))

	out, _, err := run(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "invoices.json is valid: 1 tag types, 1 types")
	assert.Contains(t, out, "shop.yaml is valid: 6 tag types, 4 types")

	_, _, err = run(t, "validate", t.TempDir())
	assert.ErrorContains(t, err, "no model files found")
}

func TestExport(t *testing.T) {
	out, _, err := run(t, "export", shopModel)
	require.NoError(t, err)

	var snapshot export.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snapshot))
	assert.Len(t, snapshot.Elements, 8)
	assert.Len(t, snapshot.TagTypes, 6)
	assert.Equal(t, "type_hierarchy", snapshot.Strategy)
}

func TestExportToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.cbor")
	_, stderr, err := run(t, "export", shopModel, "--format", "cbor", "--output", path, "--strategy", "direct")
	require.NoError(t, err)
	assert.Contains(t, stderr, "wrote 8 elements to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snapshot export.Snapshot
	require.NoError(t, cbor.Unmarshal(data, &snapshot))
	assert.Equal(t, "direct", snapshot.Strategy)

	_, _, err = run(t, "export", shopModel, "--format", "toml")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestWatchSessionReload(t *testing.T) {
	data, err := os.ReadFile(shopModel)
	require.NoError(t, err)
	model := filepath.Join(t.TempDir(), "shop.yaml")
	require.NoError(t, os.WriteFile(model, data, 0o644))

	a := &app{noColor: true}
	require.NoError(t, a.setup())

	var stdout, stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	session, err := a.newWatchSession(cmd, model, []string{"shop.OrderService"}, &searchConfig{})
	require.NoError(t, err)
	session.render()
	assert.Contains(t, stdout.String(), "ttl=30")

	updated := strings.Replace(string(data), "values: {seconds: 30}", "values: {seconds: 45}", 1)
	require.NoError(t, os.WriteFile(model, []byte(updated), 0o644))
	require.NoError(t, session.reload([]string{model}))
	assert.Contains(t, stdout.String(), "ttl=45")

	require.NoError(t, os.WriteFile(model, []byte("tags: ["), 0o644))
	assert.Error(t, session.reload([]string{model}))
	assert.Contains(t, stderr.String(), "MODEL ERROR")
	assert.Equal(t, 1, session.reloads)

	stdout.Reset()
	session.render()
	assert.Contains(t, stdout.String(), "ttl=45")
}

func TestWatchStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	out, stderr, err := runContext(t, ctx, "watch", shopModel, "shop.OrderService")
	require.NoError(t, err)
	assert.Contains(t, out, "shop.FastCache")
	assert.Contains(t, stderr, "Watching "+shopModel)
}

func TestWatchRequiresKnownElement(t *testing.T) {
	_, stderr, err := run(t, "watch", shopModel, "shop.Nope")
	require.Error(t, err)
	assert.Contains(t, stderr, "ELEMENT NOT FOUND")
}
