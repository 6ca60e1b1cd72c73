package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/onion-topology/internal/session"
	"github.com/schollz/progressbar/v3"
)

// ProgressObserver draws a progress bar over the pipeline stages. It implements
// session.Observer and can be reused across runs.
type ProgressObserver struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
	done   int
	mu     sync.Mutex
}

// NewProgressObserver creates a progress observer writing to writer.
func NewProgressObserver(writer io.Writer) *ProgressObserver {
	return &ProgressObserver{writer: writer}
}

func (p *ProgressObserver) newBar() *progressbar.ProgressBar {
	return progressbar.NewOptions(len(session.Stages),
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription("[magenta][bold]Peeling the onion...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// StageStarted implements session.Observer.
func (p *ProgressObserver) StageStarted(stage session.Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		p.bar = p.newBar()
		p.done = 0
	}
	p.bar.Describe(fmt.Sprintf("[magenta][bold]%s[reset]", stageLabel(stage)))
}

// StageFinished implements session.Observer.
func (p *ProgressObserver) StageFinished(session.Stage, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		return
	}
	p.done++
	if err := p.bar.Add(1); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// RunFinished implements session.Observer.
func (p *ProgressObserver) RunFinished(status session.Status, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar != nil {
		if status == session.StatusFailed {
			_ = p.bar.Exit()
		} else if err := p.bar.Finish(); err != nil {
			slog.Warn("Failed to finish progress bar", "error", err)
		}
	}
	p.bar = nil

	var line string
	switch status {
	case session.StatusCompleted:
		line = FormatSuccess(fmt.Sprintf("Session generated in %s", elapsed.Round(time.Millisecond)))
	case session.StatusEmpty:
		line = FormatWarning("No usable events after cleaning")
	default:
		line = FormatError(fmt.Sprintf("Generation failed after %d of %d stages", p.done, len(session.Stages)))
	}
	if _, err := fmt.Fprintln(p.writer, "\n"+line); err != nil {
		slog.Warn("Failed to write run summary", "error", err)
	}
}

func stageLabel(stage session.Stage) string {
	switch stage {
	case session.StageNormalize:
		return "Cleaning events"
	case session.StageClassify:
		return "Resolving classifications"
	case session.StageGraph:
		return "Layering doors"
	case session.StagePaths:
		return "Tracing paths"
	case session.StageStats:
		return "Computing statistics"
	default:
		return string(stage)
	}
}
