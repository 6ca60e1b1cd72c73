// Package onion builds the door transition graph and assigns each door its onion
// layer: the number of hops from the nearest facility entrance.
package onion

import (
	"fmt"
	"sort"
	"time"

	"github.com/Veraticus/onion-topology/internal/common"
	"github.com/Veraticus/onion-topology/internal/config"
	"github.com/Veraticus/onion-topology/internal/model"
)

// EdgeKind distinguishes observed transitions from derived edges.
type EdgeKind string

// Edge kinds.
const (
	EdgeTransition     EdgeKind = "transition"
	EdgeMostCommonNext EdgeKind = "most_common_next"
)

// Edge is a directed door-to-door transition. Weight is the number of times it was
// observed.
type Edge struct {
	Source string   `json:"source" yaml:"source"`
	Target string   `json:"target" yaml:"target"`
	Kind   EdgeKind `json:"kind" yaml:"kind"`
	Weight int      `json:"weight" yaml:"weight"`
}

// Options controls graph construction.
type Options struct {
	TieBreak             string
	EdgeMaxGap           time.Duration
	TopN                 int
	CriticalTrafficShare float64
}

// OptionsFromConfig derives graph options from the processing config.
func OptionsFromConfig(p config.Processing) Options {
	return Options{
		EdgeMaxGap:           p.EdgeMaxGap,
		TopN:                 p.TopNHeuristicEntrances,
		TieBreak:             p.EntranceTieBreak,
		CriticalTrafficShare: p.CriticalTrafficShare,
	}
}

// Graph is the layered door graph for one session.
type Graph struct {
	Layers   map[string]int
	out      map[string]map[string]int
	in       map[string]map[string]int
	Nodes    []model.Door
	Edges    []Edge
	Seeds    []string
	Isolated []string
	Flags    []model.AnomalyFlag
	MaxLayer int
	NoData   bool
}

// Door returns the node for id.
func (g *Graph) Door(id string) (model.Door, bool) {
	for _, d := range g.Nodes {
		if d.DoorID == id {
			return d, true
		}
	}
	return model.Door{}, false
}

// Successors returns the doors reachable from id in one hop, sorted.
func (g *Graph) Successors(id string) []string {
	return sortedTargets(g.out[id])
}

// Predecessors returns the doors with an edge into id, sorted.
func (g *Graph) Predecessors(id string) []string {
	return sortedTargets(g.in[id])
}

// Weight returns the number of observed source→target transitions.
func (g *Graph) Weight(source, target string) int {
	return g.out[source][target]
}

// Build constructs the transition graph and layers it from the entrances.
//
// Edges join consecutive events of the same user at different doors no more than
// EdgeMaxGap apart. Layer 0 is seeded at every confirmed entrance present in doors,
// or at the top heuristic entrances when none is confirmed. Doors unreachable from
// any seed are placed one layer past the deepest reachable door and flagged.
func Build(events []model.Event, doors map[string]model.Door, entrances []string, opts Options) *Graph {
	g := &Graph{
		Layers: make(map[string]int),
		out:    make(map[string]map[string]int),
		in:     make(map[string]map[string]int),
	}

	if len(events) == 0 {
		g.NoData = true
		g.Flags = append(g.Flags, model.AnomalyFlag{
			Kind:    model.AnomalyNoData,
			Message: "no usable events after cleaning; the graph is empty",
		})
		return g
	}

	counts := make(map[string]int)
	byUser := make(map[string][]model.Event)
	for _, ev := range events {
		counts[ev.DoorID]++
		byUser[ev.UserID] = append(byUser[ev.UserID], ev)
	}

	for _, seq := range byUser {
		sort.SliceStable(seq, func(i, j int) bool { return seq[i].Timestamp.Before(seq[j].Timestamp) })
		for i := 1; i < len(seq); i++ {
			prev, cur := seq[i-1], seq[i]
			if prev.DoorID == cur.DoorID {
				continue
			}
			if opts.EdgeMaxGap > 0 && cur.Timestamp.Sub(prev.Timestamp) > opts.EdgeMaxGap {
				continue
			}
			g.addEdge(prev.DoorID, cur.DoorID)
		}
	}

	g.Seeds = seeds(events, doors, counts, entrances, opts)
	g.layer(counts)

	g.Nodes = make([]model.Door, 0, len(counts))
	for id, n := range counts {
		door, ok := doors[id]
		if !ok {
			door = model.Door{DoorID: id, Floor: model.DefaultFloor, SecurityLevel: model.SecurityUnclassified}
		}
		door.EventCount = n
		door.OnionLayer = g.Layers[id]
		door.IsCritical = door.SecurityLevel == model.SecurityRed ||
			(opts.CriticalTrafficShare > 0 && float64(n)/float64(len(events)) >= opts.CriticalTrafficShare)
		g.Nodes = append(g.Nodes, door)
	}

	isolated := make(map[string]bool, len(g.Isolated))
	for _, id := range g.Isolated {
		isolated[id] = true
	}
	for i := range g.Nodes {
		g.Nodes[i].Isolated = isolated[g.Nodes[i].DoorID]
	}
	SortDoors(g.Nodes)

	for _, d := range g.Nodes {
		if d.OnionLayer == 0 && d.SecurityLevel == model.SecurityRed {
			g.Flags = append(g.Flags, model.AnomalyFlag{
				Kind:    model.AnomalyRestrictedEntrance,
				DoorID:  d.DoorID,
				Message: fmt.Sprintf("door %q is classified red but sits at layer 0 like an entrance", d.DoorID),
			})
		}
	}
	for _, id := range g.Isolated {
		common.LogWarn("Door unreachable from entrances", common.Fields{
			"door_id": id,
			"layer":   g.Layers[id],
			"error":   common.ErrGraphUnreachable.Error(),
		})
		g.Flags = append(g.Flags, model.AnomalyFlag{
			Kind:    model.AnomalyGraphUnreachable,
			DoorID:  id,
			Message: fmt.Sprintf("door %q cannot be reached from any entrance", id),
		})
	}

	g.Edges = make([]Edge, 0, len(g.out))
	for _, src := range sortedTargets(counts) {
		for _, dst := range sortedTargets(g.out[src]) {
			g.Edges = append(g.Edges, Edge{Source: src, Target: dst, Weight: g.out[src][dst], Kind: EdgeTransition})
		}
	}

	common.LogDebug("Built onion graph", common.Fields{
		"doors":     len(g.Nodes),
		"edges":     len(g.Edges),
		"seeds":     len(g.Seeds),
		"isolated":  len(g.Isolated),
		"max_layer": g.MaxLayer,
	})

	return g
}

// SortDoors orders doors by layer, then most restricted first, then door ID.
func SortDoors(doors []model.Door) {
	sort.SliceStable(doors, func(i, j int) bool {
		a, b := doors[i], doors[j]
		if a.OnionLayer != b.OnionLayer {
			return a.OnionLayer < b.OnionLayer
		}
		if a.SecurityLevel.Severity() != b.SecurityLevel.Severity() {
			return a.SecurityLevel.Severity() > b.SecurityLevel.Severity()
		}
		return a.DoorID < b.DoorID
	})
}

func (g *Graph) addEdge(src, dst string) {
	if g.out[src] == nil {
		g.out[src] = make(map[string]int)
	}
	if g.in[dst] == nil {
		g.in[dst] = make(map[string]int)
	}
	g.out[src][dst]++
	g.in[dst][src]++
}

func seeds(events []model.Event, doors map[string]model.Door, counts map[string]int, entrances []string, opts Options) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range entrances {
		if _, inLog := counts[id]; !inLog || seen[id] {
			continue
		}
		if d, ok := doors[id]; ok && !d.IsEntranceExit {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		out = HeuristicEntrances(events, opts.TopN, opts.TieBreak)
	}
	sort.Strings(out)
	return out
}

type bfsEntry struct {
	doorID string
	layer  int
}

// layer runs a multi-source breadth-first search from the seeds. A door's layer is
// one more than the smallest layer among its predecessors.
func (g *Graph) layer(counts map[string]int) {
	visited := make(map[string]bool, len(counts))
	queue := make([]bfsEntry, 0, len(g.Seeds))
	for _, id := range g.Seeds {
		visited[id] = true
		g.Layers[id] = 0
		queue = append(queue, bfsEntry{doorID: id})
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range sortedTargets(g.out[current.doorID]) {
			if visited[next] {
				continue
			}
			visited[next] = true
			g.Layers[next] = current.layer + 1
			if current.layer+1 > g.MaxLayer {
				g.MaxLayer = current.layer + 1
			}
			queue = append(queue, bfsEntry{doorID: next, layer: current.layer + 1})
		}
	}

	for _, id := range sortedTargets(counts) {
		if !visited[id] {
			g.Isolated = append(g.Isolated, id)
		}
	}
	if len(g.Isolated) == 0 {
		return
	}
	isolatedLayer := g.MaxLayer + 1
	for _, id := range g.Isolated {
		g.Layers[id] = isolatedLayer
	}
	g.MaxLayer = isolatedLayer
}

func sortedTargets(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
