// Package app runs the interactive browser.
package app

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"sizescope/internal/config"
	"sizescope/internal/state"
	"sizescope/internal/ui"
)

type Options struct {
	Config  config.Config
	Backend ui.Backend
	// Loader receives the preferences on exit. Nil skips saving.
	Loader *config.Loader
	Logger zerolog.Logger
	Status string
	Input  io.Reader
	Output io.Writer
}

// Run shows the browser until the user quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	initialState := state.NewState(opts.Config)
	model := ui.NewModel(initialState, opts.Backend,
		ui.WithScanOptions(opts.Config.ScanOptions()),
		ui.WithLogger(opts.Logger),
	).WithStatus(opts.Status)

	programOpts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if opts.Input != nil {
		programOpts = append(programOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		programOpts = append(programOpts, tea.WithOutput(opts.Output))
	}
	program := tea.NewProgram(model, programOpts...)
	finalModel, err := program.Run()
	if err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	final, ok := finalModel.(ui.Model)
	if !ok || opts.Loader == nil {
		return nil
	}
	path, err := opts.Loader.SavePreferences(final.Preferences())
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	opts.Logger.Debug().Str("file", path).Msg("preferences saved")
	return nil
}
