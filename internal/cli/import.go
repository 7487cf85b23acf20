package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tradejournal/internal/core"
)

type importOptions struct {
	owner  string
	asJSON bool
	strict bool
	dryRun bool
}

func newImportCmd(ro *rootOptions) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <snapshot.zip>",
		Short: "Import a snapshot archive for an owner",
		Long: `Import every table of a snapshot archive in dependency order.

Rows already present for the owner are skipped, so the same archive can be
imported again safely. Row failures are reported and do not stop the run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read archive: %w", err)
			}

			ctx := cmd.Context()
			svc, db, err := ro.openService(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if opts.dryRun {
				preview, err := svc.PreviewSnapshot(ctx, data)
				if err != nil {
					return err
				}
				if opts.asJSON {
					return printJSON(out, preview)
				}
				printPreview(out, preview, 5)
				return nil
			}

			ctx = core.ContextWithUserAgent(ctx, "journalimport/"+Version)
			res, err := svc.ImportSnapshot(ctx, opts.owner, data)
			if res == nil {
				return err
			}

			if opts.asJSON {
				if err := printJSON(out, res); err != nil {
					return err
				}
			} else {
				printResult(out, res)
			}

			switch {
			case err != nil:
				return err
			case res.TimedOut:
				return fmt.Errorf("import timed out after %s; committed stages were kept", ro.cfg.Import.Timeout)
			case opts.strict && res.Totals.Failed > 0:
				return fmt.Errorf("%d rows failed", res.Totals.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.owner, "owner", "", "Owner id to import for (required)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Exit non-zero when any row failed")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Validate the archive without writing")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		opts.owner = strings.TrimSpace(opts.owner)
		if opts.owner == "" && !opts.dryRun {
			return fmt.Errorf("--owner is required")
		}
		return nil
	}

	return cmd
}

func newPreviewCmd(ro *rootOptions) *cobra.Command {
	var (
		asJSON  bool
		samples int
	)

	cmd := &cobra.Command{
		Use:     "preview <snapshot.zip>",
		Aliases: []string{"validate"},
		Short:   "Validate a snapshot archive without importing it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read archive: %w", err)
			}

			ctx := cmd.Context()
			svc, db, err := ro.openService(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			preview, err := svc.PreviewSnapshot(ctx, data)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), preview)
			}
			printPreview(cmd.OutOrStdout(), preview, samples)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the preview as JSON")
	cmd.Flags().IntVar(&samples, "samples", 5, "Error rows to show per table")
	return cmd
}

// printResult writes a run summary with one line per imported entity.
func printResult(w io.Writer, res *core.ImportResult) {
	fmt.Fprintf(w, "run %s %s in %s\n\n", res.RunID, res.Status, res.Duration.Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tIMPORTED\tSKIPPED\tFAILED")
	for _, def := range core.Ordered() {
		c, ok := res.Entities[def.Info.Key]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", def.Info.Key, c.Imported, c.Skipped, c.Failed)
	}
	fmt.Fprintf(tw, "total\t%d\t%d\t%d\n", res.Totals.Imported, res.Totals.Skipped, res.Totals.Failed)
	tw.Flush()

	fmt.Fprintf(w, "\nreferences: explicit=%d heuristic=%d none=%d\n",
		res.Resolution.Explicit, res.Resolution.Heuristic, res.Resolution.None)
	fmt.Fprintf(w, "attachments: migrated=%d fallback=%d missing=%d\n",
		res.Assets.Migrated, res.Assets.Fallback, res.Assets.Missing)

	if len(res.FailedRows) > 0 {
		fmt.Fprintln(w, "\nfailed rows:")
		for _, fr := range res.FailedRows {
			fmt.Fprintf(w, "  %s line %d", fr.Entity, fr.Line)
			if fr.OldID != "" {
				fmt.Fprintf(w, " (%s)", fr.OldID)
			}
			fmt.Fprintf(w, " [%s] %s\n", fr.Code, fr.Reason)
		}
	}
}

// printPreview writes per-table validation counts and up to samples error
// rows per table.
func printPreview(w io.Writer, p *core.PreviewResponse, samples int) {
	fmt.Fprintf(w, "snapshot version %s", p.Manifest.Version)
	if p.Manifest.Source != "" {
		fmt.Fprintf(w, " from %s", p.Manifest.Source)
	}
	fmt.Fprintf(w, ": %d tables, %d rows, %d with errors\n\n",
		p.Summary.Tables, p.Summary.TotalRows, p.Summary.ErrorRows)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tROWS\tVALID\tERRORS\tNOTES")
	for _, t := range p.Tables {
		if !t.Present {
			continue
		}
		var notes []string
		if len(t.MissingColumns) > 0 {
			notes = append(notes, "missing columns: "+strings.Join(t.MissingColumns, ", "))
		}
		if t.DeclaredRows > 0 && t.DeclaredRows != t.TotalRows {
			notes = append(notes, fmt.Sprintf("manifest declares %d rows", t.DeclaredRows))
		}
		if t.Error != "" {
			notes = append(notes, t.Error)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", t.Entity, t.TotalRows, t.ValidRows, t.ErrorRows, strings.Join(notes, "; "))
	}
	tw.Flush()

	for _, t := range p.Tables {
		if len(t.ErrorSamples) == 0 || samples <= 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", t.Entity)
		for i, e := range t.ErrorSamples {
			if i == samples {
				fmt.Fprintf(w, "  ... %d more\n", t.ErrorRows-samples)
				break
			}
			msgs := make([]string, 0, len(e.Errors))
			for _, ve := range e.Errors {
				msgs = append(msgs, ve.Error())
			}
			fmt.Fprintf(w, "  line %d: %s\n", e.LineNumber, strings.Join(msgs, "; "))
		}
	}
}
