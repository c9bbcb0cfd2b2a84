package commands

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/metatags/internal/cli/config"
	"github.com/conduit-lang/metatags/internal/cli/ui"
	"github.com/conduit-lang/metatags/internal/export"
	"github.com/conduit-lang/metatags/internal/loader"
	"github.com/conduit-lang/metatags/runtime/element"
	"github.com/conduit-lang/metatags/runtime/merged"
)

type inspectOptions struct {
	search   searchConfig
	tagType  string
	match    []string
	format   string
	stats    bool
	selector string
}

func newInspectCommand(a *app) *cobra.Command {
	opts := &inspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect <model> [element...]",
		Short: "Show the merged tags of model elements",
		Long: `Show the merged tags of model elements.

Elements are addressed as "pkg.Type", "pkg.Type#field", "pkg.Type#method" or
"pkg.Type#method(pkg.Param)". Use --match to select elements by glob instead.
Each occurrence lists where it was declared (aggregate index), how many
meta-tag hops away it is (distance) and its resolved attributes.`,
		Example: `  # Merged tags of a type, searching superclasses and interfaces
  metatags inspect shop.yaml shop.OrderService

  # Only one tag type, as JSON
  metatags inspect shop.yaml shop.OrderService --type shop.Cacheable --format json

  # Every method of every type
  metatags inspect shop.yaml --match 'shop.*#*'

  # Declared tags only, without unpacking repeatable containers
  metatags inspect shop.yaml 'shop.OrderService#nightly' --strategy direct --repeatable none`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInspect(cmd, args[0], args[1:], opts)
		},
	}

	opts.search.bind(cmd)
	cmd.Flags().StringVar(&opts.tagType, "type", "", "Only show occurrences of this tag type")
	cmd.Flags().StringSliceVar(&opts.match, "match", nil, "Glob over element names, e.g. 'shop.*#save*'")
	cmd.Flags().StringVar(&opts.format, "format", "", "Output format: table, json or yaml")
	cmd.Flags().StringVar(&opts.selector, "select", "", "With --type, show a single occurrence: nearest or first-direct")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "Print cache statistics after the result")

	return cmd
}

func (a *app) runInspect(cmd *cobra.Command, modelPath string, addresses []string, opts *inspectOptions) error {
	format := a.cfg.Output.Format
	if opts.format != "" {
		format = opts.format
	}
	if !config.ValidFormat(format) {
		return fmt.Errorf("unknown format %q (expected one of %s)", format, strings.Join(config.Formats, ", "))
	}
	if len(addresses) == 0 && len(opts.match) == 0 {
		return fmt.Errorf("no elements given: pass element addresses or --match")
	}
	if opts.selector != "" && opts.tagType == "" {
		return fmt.Errorf("--select requires --type")
	}

	model, err := a.loadModel(cmd, modelPath)
	if err != nil {
		return err
	}
	if opts.tagType != "" && model.Universe.TagType(opts.tagType) == nil {
		ui.NotFound("tag type", opts.tagType, model.TagTypes, a.noColor).Write(cmd.ErrOrStderr())
		return fmt.Errorf("unknown tag type %s", opts.tagType)
	}

	elements, err := a.selectElements(cmd, model, addresses, opts.match)
	if err != nil {
		return err
	}

	engine, err := a.newEngine(model.Universe)
	if err != nil {
		return err
	}
	search, err := opts.search.resolve(a.cfg, model.Universe)
	if err != nil {
		return err
	}

	results := make([]export.ElementTags, 0, len(elements))
	for _, el := range elements {
		view, err := search.view(engine, el)
		if err != nil {
			return err
		}
		result, err := inspectView(view, opts)
		if err != nil {
			return err
		}
		results = append(results, result)
	}

	out := cmd.OutOrStdout()
	if format == "table" {
		renderTables(out, results, a.noColor)
	} else if err := export.Encode(out, results, format); err != nil {
		return err
	}

	if opts.stats {
		renderStats(out, a, a.noColor)
	}
	return nil
}

// inspectView lists the occurrences of one view selected by the options
func inspectView(view *merged.View, opts *inspectOptions) (export.ElementTags, error) {
	if opts.tagType == "" {
		return export.Collect(view), nil
	}

	result := export.ElementTags{
		Element:     view.Element().Name(),
		Occurrences: []export.Occurrence{},
	}
	if opts.selector != "" {
		var selector merged.Selector
		switch opts.selector {
		case "nearest":
			selector = merged.Nearest()
		case "first-direct":
			selector = merged.FirstDirectlyDeclared()
		default:
			return result, fmt.Errorf("unknown selector %q (expected nearest or first-direct)", opts.selector)
		}
		m, err := view.Get(opts.tagType, merged.WithSelector(selector))
		if err != nil || m.IsPresent() {
			result.Occurrences = append(result.Occurrences, export.Describe(m, err))
		}
		return result, nil
	}

	for m, err := range view.Stream(opts.tagType) {
		result.Occurrences = append(result.Occurrences, export.Describe(m, err))
	}
	return result, nil
}

// selectElements resolves addresses and glob matches in order, without
// duplicates
func (a *app) selectElements(cmd *cobra.Command, model *loader.Model, addresses, patterns []string) ([]element.Element, error) {
	var result []element.Element
	seen := make(map[string]bool)
	add := func(el element.Element) {
		if !seen[el.Name()] {
			seen[el.Name()] = true
			result = append(result, el)
		}
	}

	for _, address := range addresses {
		el, err := model.Universe.Lookup(address)
		if err != nil {
			ui.NotFound("element", address, elementNames(model), a.noColor).Write(cmd.ErrOrStderr())
			return nil, err
		}
		add(el)
	}

	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid --match pattern %q", pattern)
		}
		matched := false
		for _, el := range model.Elements() {
			if ok, _ := doublestar.Match(pattern, el.Name()); ok {
				add(el)
				matched = true
			}
		}
		if !matched {
			ui.Message{
				Level:   ui.LevelWarning,
				Problem: fmt.Sprintf("no element matches %q", pattern),
				NoColor: a.noColor,
			}.Write(cmd.ErrOrStderr())
		}
	}

	return result, nil
}

func elementNames(model *loader.Model) []string {
	var names []string
	for _, el := range model.Elements() {
		names = append(names, el.Name())
		if m, ok := el.(element.MethodElement); ok {
			names = append(names, m.DeclaringType().Name()+"#"+m.MethodName())
		}
	}
	return names
}

func renderTables(w io.Writer, results []export.ElementTags, noColor bool) {
	for i, result := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		ui.Header(w, result.Element, noColor)
		if len(result.Occurrences) == 0 {
			gray := color.New(color.FgHiBlack)
			if noColor {
				gray.DisableColor()
			}
			gray.Fprintln(w, "(no tags)")
			continue
		}

		table := ui.NewTable(w, noColor, "TAG", "ORIGIN", "AGG", "DIST", "SOURCE", "ATTRIBUTES")
		for _, occ := range result.Occurrences {
			if occ.Error != "" {
				table.AddRow(occ.Type, "error", "-", "-", "", occ.Error)
				continue
			}
			table.AddRow(
				occ.Type,
				occ.Origin,
				strconv.Itoa(occ.AggregateIndex),
				strconv.Itoa(occ.Distance),
				occ.Source,
				formatAttributes(occ),
			)
		}
		table.Render()
	}
}

func formatAttributes(occ export.Occurrence) string {
	names := occ.SortedAttributes()
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + formatPlain(occ.Attributes[name])
	}
	return strings.Join(parts, ", ")
}

func formatPlain(v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case []any:
		items := make([]string, len(v))
		for i, item := range v {
			items[i] = formatPlain(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			if k != "@type" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + formatPlain(v[k])
		}
		return fmt.Sprintf("@%v(%s)", v["@type"], strings.Join(parts, ", "))
	default:
		return fmt.Sprint(v)
	}
}

// renderStats prints the cache counters gathered from the invocation's
// metrics registry
func renderStats(w io.Writer, a *app, noColor bool) {
	families, err := a.registry.Gather()
	if err != nil {
		fmt.Fprint(w, ui.Warning("could not gather cache metrics: "+err.Error(), noColor))
		return
	}

	fmt.Fprintln(w)
	ui.Header(w, "Cache", noColor)
	table := ui.NewTable(w, noColor, "METRIC", "LABELS", "VALUE")
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, label := range metric.GetLabel() {
				labels = append(labels, label.GetName()+"="+label.GetValue())
			}
			table.AddRow(
				family.GetName(),
				strings.Join(labels, ","),
				strconv.FormatFloat(metric.GetCounter().GetValue(), 'f', -1, 64),
			)
		}
	}
	table.Render()
}
