package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

func newTestEngine(windowSec int64, now *int64) *Engine {
	e := NewEngine(windowSec, 2, 3)
	e.now = func() int64 { return *now }
	return e
}

func edgeTx(from, to string, value float64, ts int64) model.Tx {
	return model.Tx{
		Hash:      fmt.Sprintf("0x%s-%s-%d", from, to, ts),
		From:      from,
		To:        to,
		Value:     value,
		Timestamp: ts,
	}
}

func TestEvictStaleRemovesEdgesAndIsolatedNodes(t *testing.T) {
	now := int64(1000)
	e := newTestEngine(100, &now)

	e.Add(edgeTx("a", "b", 1, 850))
	e.Add(edgeTx("b", "c", 1, 990))

	now = 1000
	e.EvictStale() // cut = 900: a->b gone, a isolated

	assert.False(t, e.Has("a"))
	assert.True(t, e.Has("b"))
	assert.True(t, e.Has("c"))
	assert.Equal(t, 1, e.NumEdges())

	// idempotence: a second pass with no new input changes nothing
	nodes, edges := e.NumNodes(), e.NumEdges()
	e.EvictStale()
	assert.Equal(t, nodes, e.NumNodes())
	assert.Equal(t, edges, e.NumEdges())
}

func TestStarGraphCentrality(t *testing.T) {
	now := int64(1000)
	e := newTestEngine(300, &now)

	leaves := []string{"l1", "l2", "l3", "l4", "l5"}
	for _, leaf := range leaves {
		e.Add(edgeTx("center", leaf, 10, 990))
	}

	center := e.CentralityFeatures("center")
	assert.Equal(t, 5.0, center.Get("out_degree"))
	assert.Equal(t, 0.0, center.Get("in_degree"))
	assert.Equal(t, 1.0, center.Get("degree_centrality")) // 5/(6-1)

	for _, leaf := range leaves {
		lf := e.CentralityFeatures(leaf)
		assert.Greater(t, center.Get("degree_centrality"), lf.Get("degree_centrality"))
	}
}

func TestKHopNeighbors(t *testing.T) {
	now := int64(1000)
	e := newTestEngine(300, &now)

	// chain a -> b -> c -> d
	e.Add(edgeTx("a", "b", 1, 990))
	e.Add(edgeTx("b", "c", 1, 991))
	e.Add(edgeTx("c", "d", 1, 992))

	f := e.KHopFeatures("a", []int{1, 2, 3})
	assert.Equal(t, 1.0, f.Get("k1_neighbors"))
	assert.Equal(t, 2.0, f.Get("k2_neighbors"))
	assert.Equal(t, 3.0, f.Get("k3_neighbors"))

	unknown := e.KHopFeatures("zz", []int{1, 2, 3})
	assert.Equal(t, 0.0, unknown.Get("k1_neighbors"))
}

func TestCycleDetectionBounded(t *testing.T) {
	now := int64(1000)
	e := newTestEngine(300, &now)

	// triangle a -> b -> c -> a
	e.Add(edgeTx("a", "b", 1, 990))
	e.Add(edgeTx("b", "c", 1, 991))
	e.Add(edgeTx("c", "a", 1, 992))

	f := e.CycleFeatures("a")
	assert.Equal(t, 1.0, f.Get("in_cycle"))
	assert.Equal(t, 3.0, f.Get("cycle_length"))

	// node off the cycle
	e.Add(edgeTx("a", "x", 1, 993))
	fx := e.CycleFeatures("x")
	assert.Equal(t, 0.0, fx.Get("in_cycle"))

	// two-node cycle is minimal even when the triangle also exists
	e.Add(edgeTx("b", "a", 1, 994))
	fa := e.CycleFeatures("a")
	assert.Equal(t, 2.0, fa.Get("cycle_length"))
}

func TestCommunityFeatures(t *testing.T) {
	now := int64(1000)
	e := newTestEngine(300, &now)

	e.Add(edgeTx("a", "b", 1, 990))
	e.Add(edgeTx("x", "y", 1, 991))

	fa := e.CommunityFeatures("a")
	fb := e.CommunityFeatures("b")
	fx := e.CommunityFeatures("x")

	assert.Equal(t, fa.Get("community_id"), fb.Get("community_id"))
	assert.NotEqual(t, fa.Get("community_id"), fx.Get("community_id"))
	assert.Equal(t, 2.0, fa.Get("community_size"))
	assert.Equal(t, 2.0, fx.Get("community_size"))
}
