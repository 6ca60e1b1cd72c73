// Package paths splits each user's events into visits and aggregates the
// door-to-door transitions observed within them.
package paths

import (
	"sort"
	"time"

	"github.com/Veraticus/onion-topology/internal/common"
	"github.com/Veraticus/onion-topology/internal/config"
	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/onion"
)

// Options controls visit segmentation.
type Options struct {
	SessionBoundary time.Duration
	TopTransitions  int
}

// OptionsFromConfig derives path options from the processing config.
func OptionsFromConfig(p config.Processing) Options {
	return Options{
		SessionBoundary: p.SessionBoundary,
		TopTransitions:  p.TopDevices,
	}
}

// Transition is an aggregated door-to-door movement.
type Transition struct {
	LastSeen time.Time `json:"last_seen" yaml:"last_seen"`
	Source   string    `json:"source" yaml:"source"`
	Target   string    `json:"target" yaml:"target"`
	Count    int       `json:"count" yaml:"count"`
}

// Aggregates are the network-wide path statistics for one session.
type Aggregates struct {
	MostCommonNext    map[string]string `json:"most_common_next" yaml:"most_common_next"`
	Transitions       []Transition      `json:"transitions" yaml:"transitions"`
	TopTransitions    []Transition      `json:"top_transitions" yaml:"top_transitions"`
	Visits            int               `json:"visits" yaml:"visits"`
	SingleHopVisits   int               `json:"single_hop_visits" yaml:"single_hop_visits"`
	MultiHopVisits    int               `json:"multi_hop_visits" yaml:"multi_hop_visits"`
	AveragePathLength float64           `json:"average_path_length" yaml:"average_path_length"`
	SingleHopShare    float64           `json:"single_hop_share" yaml:"single_hop_share"`
	MultiHopShare     float64           `json:"multi_hop_share" yaml:"multi_hop_share"`
	Deepening         int               `json:"deepening" yaml:"deepening"`
	Surfacing         int               `json:"surfacing" yaml:"surfacing"`
	Lateral           int               `json:"lateral" yaml:"lateral"`
}

type pair struct {
	source string
	target string
}

// Infer segments events into visits and counts transitions between consecutive
// distinct doors. A new visit starts when a user's gap exceeds SessionBoundary.
// When g is non-nil, transitions are also classified by layer change.
func Infer(events []model.Event, g *onion.Graph, opts Options) Aggregates {
	agg := Aggregates{MostCommonNext: make(map[string]string)}
	if len(events) == 0 {
		return agg
	}

	byUser := make(map[string][]model.Event)
	for _, ev := range events {
		byUser[ev.UserID] = append(byUser[ev.UserID], ev)
	}

	counts := make(map[pair]*Transition)
	totalDoors := 0

	users := make([]string, 0, len(byUser))
	for u := range byUser {
		users = append(users, u)
	}
	sort.Strings(users)

	for _, user := range users {
		for _, visit := range Visits(byUser[user], opts.SessionBoundary) {
			agg.Visits++
			totalDoors += len(visit)
			if len(visit) == 1 {
				agg.SingleHopVisits++
				continue
			}
			agg.MultiHopVisits++
			for i := 1; i < len(visit); i++ {
				key := pair{source: visit[i-1].DoorID, target: visit[i].DoorID}
				tr, ok := counts[key]
				if !ok {
					tr = &Transition{Source: key.source, Target: key.target}
					counts[key] = tr
				}
				tr.Count++
				if visit[i].Timestamp.After(tr.LastSeen) {
					tr.LastSeen = visit[i].Timestamp
				}
			}
		}
	}

	agg.AveragePathLength = float64(totalDoors) / float64(agg.Visits)
	agg.SingleHopShare = float64(agg.SingleHopVisits) / float64(agg.Visits)
	agg.MultiHopShare = float64(agg.MultiHopVisits) / float64(agg.Visits)

	agg.Transitions = make([]Transition, 0, len(counts))
	for _, tr := range counts {
		agg.Transitions = append(agg.Transitions, *tr)
	}
	sort.Slice(agg.Transitions, func(i, j int) bool {
		return rank(agg.Transitions[i], agg.Transitions[j])
	})

	for _, tr := range agg.Transitions {
		// Transitions are ranked, so the first one seen per source wins.
		if _, ok := agg.MostCommonNext[tr.Source]; !ok {
			agg.MostCommonNext[tr.Source] = tr.Target
		}
		if g != nil {
			classify(&agg, g, tr)
		}
	}

	n := opts.TopTransitions
	if n <= 0 || n > len(agg.Transitions) {
		n = len(agg.Transitions)
	}
	agg.TopTransitions = append([]Transition(nil), agg.Transitions[:n]...)

	common.LogDebug("Inferred paths", common.Fields{
		"visits":      agg.Visits,
		"transitions": len(agg.Transitions),
		"avg_length":  agg.AveragePathLength,
	})

	return agg
}

// Visits splits one user's events into visits. Events are ordered by time first, and
// repeated taps at the same door within a visit are collapsed.
func Visits(events []model.Event, boundary time.Duration) [][]model.Event {
	seq := append([]model.Event(nil), events...)
	sort.SliceStable(seq, func(i, j int) bool { return seq[i].Timestamp.Before(seq[j].Timestamp) })

	var (
		visits  [][]model.Event
		current []model.Event
	)
	for i, ev := range seq {
		if i > 0 && boundary > 0 && ev.Timestamp.Sub(seq[i-1].Timestamp) > boundary {
			visits = append(visits, current)
			current = nil
		}
		if len(current) > 0 && current[len(current)-1].DoorID == ev.DoorID {
			continue
		}
		current = append(current, ev)
	}
	if len(current) > 0 {
		visits = append(visits, current)
	}
	return visits
}

// rank orders transitions by count, then most recently seen, then source and target.
func rank(a, b Transition) bool {
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	if !a.LastSeen.Equal(b.LastSeen) {
		return a.LastSeen.After(b.LastSeen)
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return a.Target < b.Target
}

func classify(agg *Aggregates, g *onion.Graph, tr Transition) {
	from, okFrom := g.Layers[tr.Source]
	to, okTo := g.Layers[tr.Target]
	if !okFrom || !okTo {
		return
	}
	switch {
	case to > from:
		agg.Deepening += tr.Count
	case to < from:
		agg.Surfacing += tr.Count
	default:
		agg.Lateral += tr.Count
	}
}
