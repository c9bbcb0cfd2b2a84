package commands

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/conduit-lang/metatags/internal/cli/ui"
	"github.com/conduit-lang/metatags/internal/loader"
	"github.com/conduit-lang/metatags/internal/utils"
	"github.com/conduit-lang/metatags/runtime/element"
	"github.com/conduit-lang/metatags/runtime/merged"
)

// issue is one problem found in a model
type issue struct {
	subject string
	message string
}

func newValidateCommand(a *app) *cobra.Command {
	var search searchConfig
	var progress bool

	cmd := &cobra.Command{
		Use:   "validate <model|dir>",
		Short: "Check alias declarations and tag values of a model",
		Long: `Check alias declarations and tag values of a model.

Every tag type is checked together with the meta-tags reachable from it:
alias targets must exist with compatible types, alias pairs must point back
at each other, mirrored attributes must declare equal defaults, and
attributes on other tag types may only be targeted when that tag type is
present as a meta-tag. Every declared tag is also checked for enum and type
references that cannot be resolved.

When given a directory, every .yaml, .yml and .json file below it is
validated as a separate model.`,
		Example: `  metatags validate shop.yaml
  metatags validate shop.yaml --filter audit.
  metatags validate models/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := modelPaths(args[0])
			if err != nil {
				return err
			}
			problems := 0
			for _, path := range paths {
				n, err := a.validatePath(cmd, path, &search, progress)
				if err != nil {
					return err
				}
				problems += n
			}
			if problems > 0 {
				return fmt.Errorf("%d problem(s) found in %s", problems, args[0])
			}
			return nil
		},
	}

	search.bind(cmd)
	cmd.Flags().BoolVar(&progress, "progress", false, "Show a progress bar on stderr")
	return cmd
}

// modelPaths expands a directory argument into the model files below it
func modelPaths(arg string) ([]string, error) {
	info, err := os.Stat(arg)
	if err != nil || !info.IsDir() {
		return []string{arg}, nil
	}
	paths, err := utils.FindModelFiles(arg)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", arg, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no model files found in %s", arg)
	}
	return paths, nil
}

// validatePath validates one model file and returns the number of problems
func (a *app) validatePath(cmd *cobra.Command, path string, search *searchConfig, progress bool) (int, error) {
	model, err := a.loadModel(cmd, path)
	if err != nil {
		return 0, err
	}
	engine, err := a.newEngine(model.Universe)
	if err != nil {
		return 0, err
	}
	opts, err := search.resolve(a.cfg, model.Universe)
	if err != nil {
		return 0, err
	}

	var bar *ui.Progress
	if progress {
		bar = ui.NewProgress(cmd.ErrOrStderr(), "tag types", len(model.TagTypes), a.noColor)
	}
	issues, err := validateModel(cmd, engine, model, opts, bar, a.logger)
	if err != nil {
		return 0, err
	}

	out := cmd.OutOrStdout()
	if len(issues) == 0 {
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("%s is valid: %d tag types, %d types",
			path, len(model.TagTypes), len(model.Types)), a.noColor))
		return 0, nil
	}
	for _, is := range issues {
		ui.Message{Context: is.subject, Problem: is.message, NoColor: a.noColor}.Write(out)
	}
	return len(issues), nil
}

// validateModel checks tag types concurrently and then checks declared tags.
// Issues are sorted by subject.
func validateModel(cmd *cobra.Command, engine *merged.Engine, model *loader.Model, opts searchOptions, bar *ui.Progress, logger *zap.Logger) ([]issue, error) {
	var mu sync.Mutex
	var issues []issue
	report := func(subject, message string) {
		mu.Lock()
		defer mu.Unlock()
		issues = append(issues, issue{subject: subject, message: message})
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, name := range model.TagTypes {
		t := model.Universe.TagType(name)
		if t == nil {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := engine.CheckTagType(t, opts.containers, opts.filter); err != nil {
				logger.Debug("invalid tag type", zap.String("tag_type", t.Name()), zap.Error(err))
				report(t.Name(), err.Error())
			}
			if bar != nil {
				bar.Step()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if bar != nil {
		bar.Done()
	}

	tables := engine.Tables()
	checkTags := func(el element.Element) {
		tags, err := el.DeclaredTags()
		if err != nil {
			report(el.Name(), err.Error())
			return
		}
		for _, tag := range tags {
			if err := tables.For(tag.Type()).Validate(tag); err != nil {
				report(el.Name(), err.Error())
			}
		}
	}
	for _, name := range model.TagTypes {
		if t := model.Universe.TagType(name); t != nil {
			checkTags(t)
		}
	}
	for _, el := range model.Elements() {
		checkTags(el)
	}

	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].subject < issues[j].subject
	})
	return issues, nil
}
