package graph

import (
	"fmt"
	"sort"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// KHopFeatures counts neighbors reachable within k hops over both edge
// directions, excluding the node itself.
func (e *Engine) KHopFeatures(addr string, kValues []int) model.Vector {
	f := model.Vector{}
	for _, k := range kValues {
		f[fmt.Sprintf("k%d_neighbors", k)] = 0
	}
	if !e.Has(addr) {
		return f
	}
	for _, k := range kValues {
		f[fmt.Sprintf("k%d_neighbors", k)] = float64(len(e.khopSet(addr, k)))
	}
	return f
}

// CycleFeatures reports whether addr sits on a directed cycle within its
// local neighborhood, and the minimal such cycle's length. The search is
// bounded to cycleHops hops around the node; cycles that only close
// through more distant nodes are invisible on purpose, a full-graph
// search would be exponential.
func (e *Engine) CycleFeatures(addr string) model.Vector {
	f := model.Vector{"in_cycle": 0, "cycle_length": 0}
	if !e.Has(addr) {
		return f
	}

	allowed := e.khopSet(addr, e.cycleHops)
	allowed[addr] = struct{}{}

	// shortest directed path addr -> ... -> addr inside the subgraph
	if _, ok := e.out[addr][addr]; ok {
		f["in_cycle"] = 1
		f["cycle_length"] = 1
		return f
	}

	dist := map[string]int{addr: 0}
	frontier := []string{addr}
	best := 0
	for len(frontier) > 0 && best == 0 {
		var next []string
		for _, n := range frontier {
			for to := range e.out[n] {
				if _, ok := allowed[to]; !ok {
					continue
				}
				if to == addr {
					best = dist[n] + 1
					break
				}
				if _, ok := dist[to]; ok {
					continue
				}
				dist[to] = dist[n] + 1
				next = append(next, to)
			}
			if best > 0 {
				break
			}
		}
		frontier = next
	}

	if best > 0 {
		f["in_cycle"] = 1
		f["cycle_length"] = float64(best)
	}
	return f
}

// CentralityFeatures: degree counts plus degree centrality normalized by
// the maximum possible degree. Graphs of size <= 1 degenerate to 0.
func (e *Engine) CentralityFeatures(addr string) model.Vector {
	f := model.Vector{"degree_centrality": 0, "in_degree": 0, "out_degree": 0}
	if !e.Has(addr) {
		return f
	}
	in := len(e.in[addr])
	out := len(e.out[addr])
	f["in_degree"] = float64(in)
	f["out_degree"] = float64(out)
	if n := len(e.nodes); n > 1 {
		f["degree_centrality"] = float64(in+out) / float64(n-1)
	}
	return f
}

// CommunityFeatures labels connected components of the undirected
// projection. Component ids are assigned in lexicographic order of each
// component's smallest member, so they are stable for a given graph.
func (e *Engine) CommunityFeatures(addr string) model.Vector {
	f := model.Vector{"community_id": 0, "community_size": 0}
	if !e.Has(addr) {
		return f
	}
	if len(e.nodes) < 2 {
		f["community_size"] = 1
		return f
	}

	names := make([]string, 0, len(e.nodes))
	for n := range e.nodes {
		names = append(names, n)
	}
	sort.Strings(names)

	visited := make(map[string]int, len(e.nodes)) // node -> component id
	id := 0
	for _, root := range names {
		if _, ok := visited[root]; ok {
			continue
		}
		stack := []string{root}
		visited[root] = id
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, nb := range e.neighbors(n) {
				if _, ok := visited[nb]; ok {
					continue
				}
				visited[nb] = id
				stack = append(stack, nb)
			}
		}
		id++
	}

	own := visited[addr]
	size := 0
	for _, cid := range visited {
		if cid == own {
			size++
		}
	}
	f["community_id"] = float64(own)
	f["community_size"] = float64(size)
	return f
}

// NodeFeatures is the full structural set for one node. K-hop counts
// are emitted for every k up to maxKHop so the feature schema is fixed
// for a given config.
func (e *Engine) NodeFeatures(addr string) model.Vector {
	ks := make([]int, e.maxKHop)
	for i := range ks {
		ks[i] = i + 1
	}
	f := e.KHopFeatures(addr, ks)
	f.Merge("", e.CycleFeatures(addr))
	f.Merge("", e.CentralityFeatures(addr))
	f.Merge("", e.CommunityFeatures(addr))
	return f
}

// TxFeatures assembles the structural slice for one transaction: both
// endpoints' node features prefixed, plus whole-graph aggregates.
func (e *Engine) TxFeatures(tx model.Tx) model.Vector {
	f := model.Vector{}
	if tx.From != "" {
		f.Merge("from_", e.NodeFeatures(tx.From))
	}
	if tx.To != "" {
		f.Merge("to_", e.NodeFeatures(tx.To))
	}
	m := e.Metrics()
	f["graph_num_nodes"] = m.Get("num_nodes")
	f["graph_num_edges"] = m.Get("num_edges")
	f["graph_density"] = m.Get("density")
	return f
}
