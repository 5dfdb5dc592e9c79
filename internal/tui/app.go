package tui

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joe/server-sync/internal/lifecycle"
)

// Run shows the interactive UI until the operator quits. A cycle still in
// flight when the program exits is stopped and saved before Run returns.
func Run(opts Options) error {
	model := NewModel(opts)
	defer model.Close()

	programOpts := []tea.ProgramOption{tea.WithContext(model.ctx)}
	if opts.AltScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}

	program := tea.NewProgram(model, programOpts...)

	_, runErr := program.Run()
	if errors.Is(runErr, tea.ErrProgramKilled) && model.ctx.Err() != nil {
		runErr = nil
	}

	var cycleErr error
	if opts.Controller.Status() != lifecycle.Offline {
		opts.Controller.RequestStop()
		cycleErr = opts.Controller.Wait()
	}

	if runErr != nil {
		return fmt.Errorf("interactive UI: %w", runErr)
	}

	return cycleErr
}
