package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/onion-topology/internal/model"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrEditorCancelled is returned when the editor is left without saving.
var ErrEditorCancelled = errors.New("classification editor closed without saving")

// EditClassifications runs the editor over doors and returns the resulting record.
// It returns ErrEditorCancelled when the operator discards their changes.
func EditClassifications(ctx context.Context, doors []model.Door, record model.ClassificationRecord, opts ...Option) (model.ClassificationRecord, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	programOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if cfg.Input != nil {
		programOpts = append(programOpts, tea.WithInput(cfg.Input))
	}
	if cfg.Output != nil {
		programOpts = append(programOpts, tea.WithOutput(cfg.Output))
	}
	if cfg.AltScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}

	final, err := tea.NewProgram(New(doors, record, cfg), programOpts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("classification editor failed: %w", err)
	}

	m, ok := final.(Model)
	if !ok {
		return nil, fmt.Errorf("classification editor returned unexpected model %T", final)
	}
	if !m.Saved() {
		return nil, ErrEditorCancelled
	}

	slog.Debug("classification editor saved", "doors", len(doors), "edited", m.Edited())
	return m.Record(), nil
}
