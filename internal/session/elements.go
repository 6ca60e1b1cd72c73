package session

import (
	"sort"

	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/onion"
)

// NodeRecord is a door as handed to an external graph renderer.
type NodeRecord struct {
	ID             string              `json:"id" yaml:"id"`
	Label          string              `json:"label" yaml:"label"`
	Floor          string              `json:"floor" yaml:"floor"`
	SecurityLevel  model.SecurityLevel `json:"security_level" yaml:"security_level"`
	MostCommonNext string              `json:"most_common_next,omitempty" yaml:"most_common_next,omitempty"`
	Layer          int                 `json:"layer" yaml:"layer"`
	IsEntranceExit bool                `json:"is_entrance_exit" yaml:"is_entrance_exit"`
	IsCritical     bool                `json:"is_critical" yaml:"is_critical"`
}

// EdgeRecord is a directed edge as handed to an external graph renderer.
type EdgeRecord struct {
	Source string         `json:"source" yaml:"source"`
	Target string         `json:"target" yaml:"target"`
	Kind   onion.EdgeKind `json:"kind" yaml:"kind"`
	Weight int            `json:"weight" yaml:"weight"`
}

// Elements is the flat, render-ready view of a session's graph.
type Elements struct {
	Nodes []NodeRecord `json:"nodes" yaml:"nodes"`
	Edges []EdgeRecord `json:"edges" yaml:"edges"`
}

// Elements flattens the session into node and edge records. Observed transitions
// come first, followed by one most_common_next edge per door that has one.
func (c *Context) Elements() Elements {
	out := Elements{
		Nodes: make([]NodeRecord, 0, len(c.Doors)),
		Edges: []EdgeRecord{},
	}
	for _, d := range c.Doors {
		out.Nodes = append(out.Nodes, NodeRecord{
			ID:             d.DoorID,
			Label:          d.DoorID,
			Layer:          d.OnionLayer,
			Floor:          d.Floor,
			IsEntranceExit: d.IsEntranceExit,
			SecurityLevel:  d.SecurityLevel,
			IsCritical:     d.IsCritical,
			MostCommonNext: d.MostCommonNext,
		})
	}

	if c.Graph != nil {
		for _, e := range c.Graph.Edges {
			out.Edges = append(out.Edges, EdgeRecord{Source: e.Source, Target: e.Target, Weight: e.Weight, Kind: e.Kind})
		}
	}

	weights := make(map[[2]string]int, len(c.Paths.Transitions))
	for _, tr := range c.Paths.Transitions {
		weights[[2]string{tr.Source, tr.Target}] = tr.Count
	}
	sources := make([]string, 0, len(c.Paths.MostCommonNext))
	for src := range c.Paths.MostCommonNext {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	for _, src := range sources {
		dst := c.Paths.MostCommonNext[src]
		out.Edges = append(out.Edges, EdgeRecord{
			Source: src,
			Target: dst,
			Weight: weights[[2]string{src, dst}],
			Kind:   onion.EdgeMostCommonNext,
		})
	}
	return out
}
