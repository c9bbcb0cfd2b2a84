package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/metatags/internal/cli/ui"
	"github.com/conduit-lang/metatags/internal/export"
	"github.com/conduit-lang/metatags/internal/loader"
	"github.com/conduit-lang/metatags/internal/watch"
	"github.com/conduit-lang/metatags/runtime/element"
	"github.com/conduit-lang/metatags/runtime/merged"
)

func newWatchCommand(a *app) *cobra.Command {
	var search searchConfig
	var delay time.Duration

	cmd := &cobra.Command{
		Use:   "watch <model> <element>...",
		Short: "Re-inspect elements whenever the model file changes",
		Long: `Re-inspect elements whenever the model file changes.

The model is reloaded after each save and the engine caches are cleared, so
the printed view always reflects the file on disk. A model that fails to load
is reported and the previous view is kept. Press Ctrl+C to stop.`,
		Example: `  metatags watch shop.yaml shop.OrderService 'shop.OrderService#save'`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := a.newWatchSession(cmd, args[0], args[1:], &search)
			if err != nil {
				return err
			}
			session.render()

			w, err := watch.New([]string{args[0]}, session.reload,
				watch.WithDelay(delay), watch.WithLogger(a.logger))
			if err != nil {
				return err
			}
			if err := w.Start(); err != nil {
				return err
			}
			defer w.Stop()

			cyan := color.New(color.FgCyan)
			if a.noColor {
				cyan.DisableColor()
			}
			cyan.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", args[0])

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}

	search.bind(cmd)
	cmd.Flags().DurationVar(&delay, "delay", watch.DefaultDelay, "Wait this long for writes to settle")
	return cmd
}

// watchSession re-renders a fixed set of element addresses against the
// latest successfully loaded model
type watchSession struct {
	app       *app
	out       io.Writer
	errOut    io.Writer
	path      string
	addresses []string
	search    *searchConfig

	mu       sync.Mutex
	model    *loader.Model
	universe *universeRef
	engine   *merged.Engine
	reloads  int
}

func (a *app) newWatchSession(cmd *cobra.Command, path string, addresses []string, search *searchConfig) (*watchSession, error) {
	model, err := a.loadModel(cmd, path)
	if err != nil {
		return nil, err
	}
	universe := newUniverseRef(model.Universe)
	engine, err := a.newEngine(universe)
	if err != nil {
		return nil, err
	}
	s := &watchSession{
		app:       a,
		out:       cmd.OutOrStdout(),
		errOut:    cmd.ErrOrStderr(),
		path:      path,
		addresses: addresses,
		search:    search,
		model:     model,
		universe:  universe,
		engine:    engine,
	}
	if _, err := s.resolve(); err != nil {
		return nil, err
	}
	return s, nil
}

// reload is the watcher callback
func (s *watchSession) reload(files []string) error {
	model, err := loader.Load(s.path)
	if err != nil {
		ui.Message{
			Context: "model error",
			Problem: err.Error(),
			Hints:   []string{"Keeping the previous model until the file loads again"},
			NoColor: s.app.noColor,
		}.Write(s.errOut)
		return err
	}

	s.mu.Lock()
	s.model = model
	s.universe.Store(model.Universe)
	s.engine.ClearCaches()
	s.reloads++
	s.mu.Unlock()

	s.app.logger.Info("model reloaded", zap.Strings("files", files))
	s.render()
	return nil
}

// resolve looks up the watched elements in the current model
func (s *watchSession) resolve() ([]element.Element, error) {
	elements := make([]element.Element, 0, len(s.addresses))
	for _, address := range s.addresses {
		el, err := s.model.Universe.Lookup(address)
		if err != nil {
			ui.NotFound("element", address, elementNames(s.model), s.app.noColor).Write(s.errOut)
			return nil, err
		}
		elements = append(elements, el)
	}
	return elements, nil
}

func (s *watchSession) render() {
	s.mu.Lock()
	defer s.mu.Unlock()

	elements, err := s.resolve()
	if err != nil {
		return
	}
	opts, err := s.search.resolve(s.app.cfg, s.universe)
	if err != nil {
		fmt.Fprint(s.errOut, ui.Warning(err.Error(), s.app.noColor))
		return
	}

	results := make([]export.ElementTags, 0, len(elements))
	for _, el := range elements {
		view, err := opts.view(s.engine, el)
		if err != nil {
			fmt.Fprint(s.errOut, ui.Warning(err.Error(), s.app.noColor))
			return
		}
		results = append(results, export.Collect(view))
	}
	if s.reloads > 0 {
		fmt.Fprintln(s.out)
	}
	renderTables(s.out, results, s.app.noColor)
}
