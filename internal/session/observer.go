package session

import "time"

// Stage names one step of the pipeline.
type Stage string

// Pipeline stages, in execution order.
const (
	StageNormalize Stage = "normalize"
	StageClassify  Stage = "classify"
	StageGraph     Stage = "graph"
	StagePaths     Stage = "paths"
	StageStats     Stage = "stats"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageNormalize, StageClassify, StageGraph, StagePaths, StageStats}

// Status is the outcome of a run.
type Status string

const (
	// StatusCompleted indicates every stage ran over a non-empty event log.
	StatusCompleted Status = "completed"
	// StatusEmpty indicates no events survived cleaning.
	StatusEmpty Status = "empty"
	// StatusFailed indicates a stage aborted the run.
	StatusFailed Status = "failed"
)

// Observer is notified as a run progresses. Implementations must not block.
type Observer interface {
	StageStarted(stage Stage)
	StageFinished(stage Stage, elapsed time.Duration)
	RunFinished(status Status, elapsed time.Duration)
}

// NopObserver ignores every notification.
type NopObserver struct{}

// StageStarted implements Observer.
func (NopObserver) StageStarted(Stage) {}

// StageFinished implements Observer.
func (NopObserver) StageFinished(Stage, time.Duration) {}

// RunFinished implements Observer.
func (NopObserver) RunFinished(Status, time.Duration) {}

// Observers fans notifications out to several observers in order.
type Observers []Observer

// StageStarted implements Observer.
func (o Observers) StageStarted(stage Stage) {
	for _, obs := range o {
		obs.StageStarted(stage)
	}
}

// StageFinished implements Observer.
func (o Observers) StageFinished(stage Stage, elapsed time.Duration) {
	for _, obs := range o {
		obs.StageFinished(stage, elapsed)
	}
}

// RunFinished implements Observer.
func (o Observers) RunFinished(status Status, elapsed time.Duration) {
	for _, obs := range o {
		obs.RunFinished(status, elapsed)
	}
}

// Combine resolves a set of optional observers into one. Nil entries are dropped.
func Combine(observers ...Observer) Observer {
	var out Observers
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return NopObserver{}
	case 1:
		return out[0]
	default:
		return out
	}
}
