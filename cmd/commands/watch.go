package commands

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvpreview/internal/logging"
	"github.com/JonMunkholm/csvpreview/internal/preview"
	"github.com/JonMunkholm/csvpreview/internal/tui"
)

// NewWatchCommand creates the watch command
func NewWatchCommand() *cobra.Command {
	var flags previewFlags

	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Interactively preview a file and follow changes to it",
		Long: `Watch opens an interactive preview of a CSV file. The preview re-runs
whenever the file is saved or a parse option changes.

Keys:
  tab / shift+tab  cycle the delimiter
  r                reload the file
  c                copy errors and warnings to the clipboard
  q                quit`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args[0], &flags)
		},
	}

	flags.register(cmd)
	return cmd
}

func runWatch(cmd *cobra.Command, path string, flags *previewFlags) error {
	opts, deps, err := flags.options(cmd)
	if err != nil {
		return err
	}

	// The TUI owns the terminal; keep log output away from it.
	deps.Logger = logging.Discard()

	p := preview.NewPreviewer(deps)
	defer p.Close()
	if opts != (preview.ParseOptions{}) {
		p.SetParseOptions(opts)
	}

	model := tui.NewWatchModel(path, p)
	program := tea.NewProgram(model, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := watchFile(ctx, path, func() { program.Send(tui.FileChangedMsg{}) }); err != nil {
		return err
	}

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to start the terminal user interface: %w", err)
	}
	return nil
}

// watchFile calls onChange whenever path is written, created or renamed
// into place. The directory is watched because editors often replace the
// file instead of writing to it.
func watchFile(ctx context.Context, path string, onChange func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					onChange()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}
