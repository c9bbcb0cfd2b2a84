package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/metatags/internal/cli/ui"
	"github.com/conduit-lang/metatags/internal/export"
)

func newExportCommand(a *app) *cobra.Command {
	var search searchConfig
	var format, output string

	cmd := &cobra.Command{
		Use:   "export <model>",
		Short: "Export the merged tags of every element",
		Long: `Export the merged tags of every element of a model.

The snapshot lists the declared tag types followed by every type, method and
field with its merged occurrences. Binary formats (msgpack, cbor) are best
written to a file with --output.`,
		Example: `  metatags export shop.yaml --format yaml
  metatags export shop.yaml --format cbor --output shop.cbor`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := a.loadModel(cmd, args[0])
			if err != nil {
				return err
			}
			engine, err := a.newEngine(model.Universe)
			if err != nil {
				return err
			}
			opts, err := search.resolve(a.cfg, model.Universe)
			if err != nil {
				return err
			}

			snapshot, err := export.Build(engine, model, export.Options{
				Strategy:   opts.strategy,
				Containers: opts.containers,
				Filter:     opts.filter,
			})
			if err != nil {
				return err
			}

			if output == "" {
				return export.Encode(cmd.OutOrStdout(), snapshot, format)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if err := export.Encode(f, snapshot, format); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), ui.Success(fmt.Sprintf("wrote %d elements to %s", len(snapshot.Elements), output), a.noColor))
			return nil
		},
	}

	search.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "json", "Output format: "+strings.Join(export.Formats, ", "))
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}
