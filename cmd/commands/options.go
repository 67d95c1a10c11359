// Package commands implements the csvpreview subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvpreview/internal/cli"
	"github.com/JonMunkholm/csvpreview/internal/config"
	"github.com/JonMunkholm/csvpreview/internal/logging"
	"github.com/JonMunkholm/csvpreview/internal/preview"
)

// previewFlags are the parse settings shared by preview and watch.
type previewFlags struct {
	delimiter string
	encoding  string
	maxBytes  int64
}

func (f *previewFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.delimiter, "delimiter", "d", "", "Delimiter: comma, tab, space, semicolon, pipe or a single character (default: detect)")
	cmd.Flags().StringVarP(&f.encoding, "encoding", "e", "", "Input encoding, e.g. windows-1252 (default: detect)")
	cmd.Flags().Int64Var(&f.maxBytes, "max-bytes", 0, "Largest file size to preview (default: PREVIEW_MAX_BYTES or 1GiB)")
}

// options returns the parse options and dependencies the flags describe.
// Unset flags fall back to the environment configuration.
func (f *previewFlags) options(cmd *cobra.Command) (preview.ParseOptions, preview.Deps, error) {
	delimiter, err := cli.ParseDelimiter(f.delimiter)
	if err != nil {
		return preview.ParseOptions{}, preview.Deps{}, err
	}

	maxBytes := f.maxBytes
	if !cmd.Flags().Changed("max-bytes") {
		cfg, _, err := config.LoadEnv(envFile)
		if err != nil {
			return preview.ParseOptions{}, preview.Deps{}, err
		}
		maxBytes = cfg.Preview.MaxBytes
	}
	if maxBytes <= 0 {
		return preview.ParseOptions{}, preview.Deps{}, fmt.Errorf("--max-bytes must be positive")
	}

	opts := preview.ParseOptions{Delimiter: delimiter, Encoding: f.encoding}
	deps := preview.Deps{MaxBytes: maxBytes, Logger: slog.Default()}
	return opts, deps, nil
}

var (
	logLevel string
	envFile  string
)

// RegisterGlobalFlags adds the flags every command understands and sets up
// logging before a command runs.
func RegisterGlobalFlags(root *cobra.Command) {
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file with PREVIEW_* settings")
	root.PersistentFlags().StringP("output", "o", "text", "Output format: text, json, yaml")

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		slog.SetDefault(logging.New(os.Stderr, logLevel, "text"))
	}
}
