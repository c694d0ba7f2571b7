// Package graph maintains a time-windowed directed interaction graph of
// addresses and contracts, and derives structural features from it.
package graph

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/logging"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

type NodeType string

const (
	NodeAddress  NodeType = "address"
	NodeContract NodeType = "contract"
)

type Node struct {
	Type      NodeType
	FirstSeen int64
}

type Edge struct {
	From       string
	To         string
	Weight     int64
	TotalValue float64
	FirstTx    string
	LastTx     string
	FirstSeen  int64
	LastSeen   int64
}

type Engine struct {
	windowSec int64
	cycleHops int
	maxKHop   int

	nodes map[string]*Node
	out   map[string]map[string]*Edge
	in    map[string]map[string]*Edge

	edgeCount int

	now func() int64
	log zerolog.Logger
}

func NewEngine(windowSec int64, cycleHops, maxKHop int) *Engine {
	if windowSec <= 0 {
		windowSec = 300
	}
	if cycleHops <= 0 {
		cycleHops = 2
	}
	if maxKHop <= 0 {
		maxKHop = 3
	}
	return &Engine{
		windowSec: windowSec,
		cycleHops: cycleHops,
		maxKHop:   maxKHop,
		nodes:     make(map[string]*Node),
		out:       make(map[string]map[string]*Edge),
		in:        make(map[string]map[string]*Edge),
		now:       func() int64 { return time.Now().Unix() },
		log:       logging.For("graph"),
	}
}

// Add records one transaction as an edge update. Transactions missing
// either endpoint are ignored.
func (e *Engine) Add(tx model.Tx) {
	if tx.From == "" || tx.To == "" {
		return
	}
	ts := tx.Timestamp
	if ts == 0 {
		ts = e.now()
	}

	e.ensureNode(tx.From, NodeAddress, ts)

	// contract heuristic: call data present or zero value (best-effort)
	toType := NodeAddress
	if tx.HasCallData() || tx.Value == 0 {
		toType = NodeContract
	}
	e.ensureNode(tx.To, toType, ts)

	if edge, ok := e.out[tx.From][tx.To]; ok {
		edge.Weight++
		edge.TotalValue += tx.Value
		edge.LastTx = tx.Hash
		edge.LastSeen = ts
		return
	}

	edge := &Edge{
		From:       tx.From,
		To:         tx.To,
		Weight:     1,
		TotalValue: tx.Value,
		FirstTx:    tx.Hash,
		LastTx:     tx.Hash,
		FirstSeen:  ts,
		LastSeen:   ts,
	}
	if e.out[tx.From] == nil {
		e.out[tx.From] = make(map[string]*Edge)
	}
	if e.in[tx.To] == nil {
		e.in[tx.To] = make(map[string]*Edge)
	}
	e.out[tx.From][tx.To] = edge
	e.in[tx.To][tx.From] = edge
	e.edgeCount++
}

func (e *Engine) ensureNode(addr string, typ NodeType, ts int64) {
	if _, ok := e.nodes[addr]; ok {
		return
	}
	e.nodes[addr] = &Node{Type: typ, FirstSeen: ts}
}

// EvictStale removes edges not seen within the horizon, then nodes left
// with degree 0. Safe to call repeatedly; with no new input a second
// call changes nothing.
func (e *Engine) EvictStale() {
	cut := e.now() - e.windowSec
	edgesBefore := e.edgeCount

	for from, fanout := range e.out {
		for to, edge := range fanout {
			if edge.LastSeen < cut {
				delete(fanout, to)
				delete(e.in[to], from)
				if len(e.in[to]) == 0 {
					delete(e.in, to)
				}
				e.edgeCount--
			}
		}
		if len(fanout) == 0 {
			delete(e.out, from)
		}
	}

	nodesDropped := 0
	for addr := range e.nodes {
		if e.degree(addr) == 0 {
			delete(e.nodes, addr)
			nodesDropped++
		}
	}
	if edgesBefore > e.edgeCount || nodesDropped > 0 {
		e.log.Debug().
			Int("edges", edgesBefore-e.edgeCount).
			Int("nodes", nodesDropped).
			Msg("evicted stale graph entries")
	}
}

func (e *Engine) degree(addr string) int {
	return len(e.out[addr]) + len(e.in[addr])
}

func (e *Engine) Has(addr string) bool {
	_, ok := e.nodes[addr]
	return ok
}

func (e *Engine) NumNodes() int { return len(e.nodes) }
func (e *Engine) NumEdges() int { return e.edgeCount }

// neighbors returns adjacent nodes over both edge directions.
func (e *Engine) neighbors(addr string) []string {
	seen := make(map[string]struct{}, e.degree(addr))
	for to := range e.out[addr] {
		seen[to] = struct{}{}
	}
	for from := range e.in[addr] {
		seen[from] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return out
}

// khopSet collects all nodes within k undirected hops, excluding start.
func (e *Engine) khopSet(start string, k int) map[string]struct{} {
	reached := map[string]struct{}{start: {}}
	frontier := []string{start}
	for hop := 0; hop < k && len(frontier) > 0; hop++ {
		var next []string
		for _, n := range frontier {
			for _, nb := range e.neighbors(n) {
				if _, ok := reached[nb]; ok {
					continue
				}
				reached[nb] = struct{}{}
				next = append(next, nb)
			}
		}
		frontier = next
	}
	delete(reached, start)
	return reached
}

// Metrics reports whole-graph aggregates for operational visibility.
func (e *Engine) Metrics() model.Vector {
	m := model.Vector{
		"num_nodes":  float64(len(e.nodes)),
		"num_edges":  float64(e.edgeCount),
		"avg_degree": 0,
		"density":    0,
	}
	n := len(e.nodes)
	if n == 0 {
		return m
	}
	var degSum int
	for addr := range e.nodes {
		degSum += e.degree(addr)
	}
	m["avg_degree"] = float64(degSum) / float64(n)
	if n > 1 {
		m["density"] = float64(e.edgeCount) / float64(n*(n-1))
	}
	return m
}
