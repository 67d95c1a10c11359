package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvpreview/internal/cli"
	"github.com/JonMunkholm/csvpreview/internal/preview"
	"github.com/JonMunkholm/csvpreview/internal/source"
)

// NewPreviewCommand creates the preview command
func NewPreviewCommand() *cobra.Command {
	var flags previewFlags

	cmd := &cobra.Command{
		Use:   "preview <file|glob>...",
		Short: "Show the first rows of CSV files and what is wrong with them",
		Long: `Preview reads the first 10 rows and 20 columns of each file, detects the
delimiter and encoding, and reports header problems and malformed rows.
Gzip, bzip2 and xz compressed files are read transparently.

The command exits with an error when any file has problems.

Examples:
  # Preview one file
  csvpreview preview people.csv

  # Preview every CSV below a directory
  csvpreview preview 'exports/**/*.csv'

  # Force a delimiter and print JSON
  csvpreview preview -d semicolon -o json people.csv`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd, args, &flags)
		},
	}

	flags.register(cmd)
	return cmd
}

func runPreview(cmd *cobra.Command, args []string, flags *previewFlags) error {
	outputFlag, _ := cmd.Flags().GetString("output")
	format, err := cli.ParseFormat(outputFlag)
	if err != nil {
		return err
	}

	opts, deps, err := flags.options(cmd)
	if err != nil {
		return err
	}

	paths, err := cli.ExpandPaths(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	reports := make([]cli.Report, 0, len(paths))
	invalid := 0
	for _, path := range paths {
		res, err := previewPath(ctx, path, opts, deps)
		if err != nil {
			return err
		}
		report := cli.NewReport(path, res)
		if !report.Valid {
			invalid++
		}
		reports = append(reports, report)
	}

	if err := cli.OutputResults(cmd.OutOrStdout(), format, reports, cli.Width(100)); err != nil {
		return err
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d file(s) have problems", invalid, len(reports))
	}
	return nil
}

// previewPath previews one file. A file that cannot be opened is reported
// like any other problem rather than aborting the whole run.
func previewPath(ctx context.Context, path string, opts preview.ParseOptions, deps preview.Deps) (preview.Result, error) {
	f, err := source.Path(path)
	if err != nil {
		slog.Debug("cannot open file", "path", path, "error", err)
		return preview.Result{
			FileName: path,
			Options:  opts,
			Errors:   []string{fmt.Sprintf("Unable to read file - %v", err)},
			Warnings: []string{},
		}, nil
	}
	return preview.Compute(ctx, f, opts, deps)
}
