// Package session runs the onion pipeline for one upload and owns the resulting
// Session Context.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Veraticus/onion-topology/internal/classification"
	"github.com/Veraticus/onion-topology/internal/common"
	"github.com/Veraticus/onion-topology/internal/config"
	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/normalize"
	"github.com/Veraticus/onion-topology/internal/onion"
	"github.com/Veraticus/onion-topology/internal/paths"
	"github.com/Veraticus/onion-topology/internal/stats"
	"github.com/google/uuid"
)

var sessionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/Veraticus/onion-topology/session"))

// Request is everything a generate action supplies.
type Request struct {
	// Classifications, when non-nil and ManualEnabled is set, replaces the record
	// saved for this file layout before the run.
	Classifications model.ClassificationRecord
	Mapping         model.ColumnMapping
	Table           model.RawTable
	// Raw is the uploaded file as received; it determines the session ID.
	Raw           []byte
	ManualEnabled bool
}

// Context is the complete state of one processing run. It is built once and never
// updated; a new upload produces a new Context.
type Context struct {
	Graph              *onion.Graph        `json:"-" yaml:"-"`
	Stats              stats.Bundle        `json:"stats" yaml:"stats"`
	ID                 string              `json:"session_id" yaml:"session_id"`
	Fingerprint        string              `json:"header_fingerprint" yaml:"header_fingerprint"`
	Status             Status              `json:"status" yaml:"status"`
	Events             []model.Event       `json:"cleaned_table" yaml:"cleaned_table"`
	Doors              []model.Door        `json:"door_attributes" yaml:"door_attributes"`
	ConfirmedEntrances []string            `json:"confirmed_entrances" yaml:"confirmed_entrances"`
	Flags              []model.AnomalyFlag `json:"anomaly_flags" yaml:"anomaly_flags"`
	Paths              paths.Aggregates    `json:"path_aggregates" yaml:"path_aggregates"`
	Cleaning           CleaningSummary     `json:"cleaning" yaml:"cleaning"`
	OriginalRowCount   int                 `json:"original_row_count" yaml:"original_row_count"`
	CleanedRowCount    int                 `json:"cleaned_row_count" yaml:"cleaned_row_count"`
	ManualEnabled      bool                `json:"manual_classification" yaml:"manual_classification"`
}

// CleaningSummary accounts for every row the normalizer removed.
type CleaningSummary struct {
	UnparseableRows int `json:"unparseable_rows" yaml:"unparseable_rows"`
	FilteredRows    int `json:"filtered_rows" yaml:"filtered_rows"`
	DuplicateEvents int `json:"duplicate_events" yaml:"duplicate_events"`
	PingPongEvents  int `json:"ping_pong_events" yaml:"ping_pong_events"`
}

// Door returns the resolved door record for id.
func (c *Context) Door(id string) (model.Door, bool) {
	for _, d := range c.Doors {
		if d.DoorID == id {
			return d, true
		}
	}
	return model.Door{}, false
}

// ID derives the deterministic session ID for an upload.
func ID(req Request) string {
	content := req.Raw
	if len(content) == 0 {
		// json.Marshal on string slices cannot fail.
		content, _ = json.Marshal(req.Table)
	}
	return uuid.NewSHA1(sessionNamespace, content).String()
}

// Run executes the whole pipeline synchronously and returns a fresh Context together
// with the classification cache updated for this upload.
//
// Any fatal error yields a nil Context and the cache unchanged. When no events
// survive cleaning, the Context is returned in its empty state alongside an
// *common.EmptyDataError.
func Run(req Request, cache classification.Cache, cfg config.Processing, obs Observer) (*Context, classification.Cache, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	start := time.Now()
	fail := func(err error) (*Context, classification.Cache, error) {
		obs.RunFinished(StatusFailed, time.Since(start))
		return nil, cache, err
	}

	ctx := &Context{
		ID:            ID(req),
		Fingerprint:   string(req.Table.Fingerprint()),
		ManualEnabled: req.ManualEnabled,
	}

	normOpts, err := normalize.OptionsFromConfig(cfg)
	if err != nil {
		return fail(err)
	}

	done := stage(obs, StageNormalize)
	cleaned, err := normalize.Normalize(req.Table, req.Mapping, normOpts)
	if err != nil {
		return fail(fmt.Errorf("normalize: %w", err))
	}
	done()

	ctx.Events = cleaned.Events
	ctx.OriginalRowCount = cleaned.OriginalRowCount
	ctx.CleanedRowCount = cleaned.CleanedRowCount()
	ctx.Cleaning = CleaningSummary{
		UnparseableRows: cleaned.UnparseableRows,
		FilteredRows:    cleaned.FilteredRows,
		DuplicateEvents: cleaned.DuplicateEvents,
		PingPongEvents:  cleaned.PingPongEvents,
	}

	fp := req.Table.Fingerprint()
	if req.ManualEnabled && req.Classifications != nil {
		cache = cache.With(fp, req.Classifications)
	}

	done = stage(obs, StageClassify)
	manual, _ := cache.Lookup(fp)
	resolution := classification.Resolve(classification.Input{
		DoorIDs:            doorIDs(cleaned.Events),
		Manual:             manual,
		ManualEnabled:      req.ManualEnabled,
		HeuristicEntrances: onion.HeuristicEntrances(cleaned.Events, cfg.TopNHeuristicEntrances, cfg.EntranceTieBreak),
		NumFloors:          cfg.NumFloors,
	})
	ctx.ConfirmedEntrances = resolution.ConfirmedEntrances
	done()

	done = stage(obs, StageGraph)
	ctx.Graph = onion.Build(cleaned.Events, resolution.Doors, resolution.ConfirmedEntrances, onion.OptionsFromConfig(cfg))
	done()

	done = stage(obs, StagePaths)
	ctx.Paths = paths.Infer(cleaned.Events, ctx.Graph, paths.OptionsFromConfig(cfg))
	done()

	ctx.Doors = make([]model.Door, len(ctx.Graph.Nodes))
	for i, d := range ctx.Graph.Nodes {
		d.MostCommonNext = ctx.Paths.MostCommonNext[d.DoorID]
		ctx.Doors[i] = d
	}

	done = stage(obs, StageStats)
	ctx.Stats = stats.Compute(stats.Input{
		Events:           cleaned.Events,
		Doors:            ctx.Doors,
		OriginalRowCount: cleaned.OriginalRowCount,
		DuplicateEvents:  cleaned.DuplicateEvents,
	}, stats.OptionsFromConfig(cfg))
	done()

	ctx.Flags = append(ctx.Flags, resolution.Flags...)
	ctx.Flags = append(ctx.Flags, ctx.Graph.Flags...)
	ctx.Flags = append(ctx.Flags, ctx.Stats.Flags...)

	if len(cleaned.Events) == 0 {
		ctx.Status = StatusEmpty
		obs.RunFinished(StatusEmpty, time.Since(start))
		return ctx, cache, &common.EmptyDataError{OriginalRows: cleaned.OriginalRowCount}
	}

	ctx.Status = StatusCompleted
	obs.RunFinished(StatusCompleted, time.Since(start))

	common.LogDebug("Session complete", common.Fields{
		"session_id":    ctx.ID,
		"original":      ctx.OriginalRowCount,
		"cleaned":       ctx.CleanedRowCount,
		"doors":         len(ctx.Doors),
		"anomaly_flags": len(ctx.Flags),
	})

	return ctx, cache, nil
}

func stage(obs Observer, s Stage) func() {
	obs.StageStarted(s)
	start := time.Now()
	return func() {
		obs.StageFinished(s, time.Since(start))
	}
}

func doorIDs(events []model.Event) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, ev := range events {
		if !seen[ev.DoorID] {
			seen[ev.DoorID] = true
			ids = append(ids, ev.DoorID)
		}
	}
	return ids
}
