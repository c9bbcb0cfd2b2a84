package commands

import (
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/metatags/internal/cli/config"
	"github.com/conduit-lang/metatags/internal/cli/ui"
	"github.com/conduit-lang/metatags/internal/loader"
	"github.com/conduit-lang/metatags/runtime/cache"
	"github.com/conduit-lang/metatags/runtime/element"
	"github.com/conduit-lang/metatags/runtime/filter"
	"github.com/conduit-lang/metatags/runtime/merged"
	"github.com/conduit-lang/metatags/runtime/repeatable"
	"github.com/conduit-lang/metatags/runtime/scan"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// app holds the state shared by every subcommand of one invocation
type app struct {
	configPath string
	noColor    bool
	logLevel   string

	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	caches   *cache.Service
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "metatags",
		Short: "Inspect merged tags and meta-tags of element models",
		Long: color.CyanString(`metatags - merged tag inspection

metatags loads an element model (types, methods, fields and the tags declared
on them) and shows the merged view of its tags: meta-tags reached through
other tags, attribute aliases resolved, repeatable containers unpacked, and
inherited tags found along the type hierarchy.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default ./metatags.yaml)")
	rootCmd.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(newInspectCommand(a))
	rootCmd.AddCommand(newValidateCommand(a))
	rootCmd.AddCommand(newExportCommand(a))
	rootCmd.AddCommand(newWatchCommand(a))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the metatags version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			out := cmd.OutOrStdout()
			titleColor := color.New(color.FgCyan, color.Bold)
			valueColor := color.New(color.FgWhite)

			titleColor.Fprint(out, "metatags version: ")
			valueColor.Fprintln(out, Version)

			titleColor.Fprint(out, "Git commit: ")
			valueColor.Fprintln(out, GitCommit)

			titleColor.Fprint(out, "Build date: ")
			valueColor.Fprintln(out, BuildDate)

			titleColor.Fprint(out, "Go version: ")
			valueColor.Fprintln(out, goVer)
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

func (a *app) setup() error {
	if a.noColor {
		color.NoColor = true
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.registry = prometheus.NewRegistry()
	return nil
}

// newEngine creates an engine. Engines of one invocation share a cache
// service whose metrics are exported to the invocation's registry.
func (a *app) newEngine(lookup repeatable.TagTypeLookup) (*merged.Engine, error) {
	if a.caches == nil {
		svc := cache.New(cache.WithSize(a.cfg.Cache.Size), cache.WithLogger(a.logger))
		if err := svc.Register(a.registry); err != nil {
			return nil, err
		}
		a.caches = svc
	}
	return merged.NewEngine(
		merged.WithCache(a.caches),
		merged.WithLogger(a.logger),
		merged.WithTagTypes(lookup),
	), nil
}

// loadModel loads a model file, printing a formatted diagnostic on failure
func (a *app) loadModel(cmd *cobra.Command, path string) (*loader.Model, error) {
	model, err := loader.Load(path)
	if err != nil {
		ui.Message{
			Context: "model error",
			Problem: err.Error(),
			Hints:   []string{"Check the model file: metatags validate " + path},
			NoColor: a.noColor,
		}.Write(cmd.ErrOrStderr())
		return nil, fmt.Errorf("failed to load model %s", path)
	}
	a.logger.Debug("model loaded",
		zap.String("path", path),
		zap.Int("tag_types", len(model.TagTypes)),
		zap.Int("types", len(model.Types)))
	return model, nil
}

// searchOptions is the resolved form of searchConfig
type searchOptions struct {
	strategy   scan.Strategy
	containers repeatable.Containers
	filter     filter.Filter
}

// view opens the merged view of el
func (o searchOptions) view(engine *merged.Engine, el element.Element) (*merged.View, error) {
	return engine.FromConfig(el, o.strategy, o.containers, o.filter)
}

// searchConfig holds the flags that select how elements are searched
type searchConfig struct {
	strategy   string
	packages   []string
	repeatable string
}

func (s *searchConfig) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.strategy, "strategy", "", "Search strategy: "+strings.Join(scan.Strategies(), ", "))
	cmd.Flags().StringSliceVar(&s.packages, "filter", nil, "Tag namespaces to exclude (repeatable)")
	cmd.Flags().StringVar(&s.repeatable, "repeatable", "", "Repeatable containers: standard or none")
}

// resolve applies the flags on top of the loaded config
func (s *searchConfig) resolve(cfg *config.Config, lookup repeatable.TagTypeLookup) (searchOptions, error) {
	effective := *cfg
	if s.strategy != "" {
		effective.Strategy = s.strategy
	}
	if s.repeatable != "" {
		effective.Repeatable = s.repeatable
	}
	packages := cfg.Filter.Packages
	if len(s.packages) > 0 {
		packages = s.packages
	}

	strategy, err := scan.ParseStrategy(effective.Strategy)
	if err != nil {
		return searchOptions{}, err
	}

	var containers repeatable.Containers
	switch effective.Repeatable {
	case config.RepeatableStandard:
		containers = repeatable.Standard(lookup)
	case config.RepeatableNone:
		containers = repeatable.None()
	default:
		return searchOptions{}, fmt.Errorf("repeatable must be %q or %q, got: %s",
			config.RepeatableStandard, config.RepeatableNone, effective.Repeatable)
	}

	var f filter.Filter = filter.None
	if len(packages) > 0 {
		f = filter.Packages(packages...)
	}

	return searchOptions{strategy: strategy, containers: containers, filter: f}, nil
}

// universeRef is a tag type lookup that follows model reloads
type universeRef struct {
	current atomic.Pointer[element.Universe]
}

func newUniverseRef(u *element.Universe) *universeRef {
	r := &universeRef{}
	r.current.Store(u)
	return r
}

func (r *universeRef) TagType(name string) *element.TagType {
	return r.current.Load().TagType(name)
}

func (r *universeRef) Store(u *element.Universe) {
	r.current.Store(u)
}
