package graphbuild

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGraphAddEdgeCreatesEndpoints(t *testing.T) {
	g := NewGraph()
	g.AddEdge("a", "b", map[string]any{"w": 1})

	require.True(t, g.HasNode("a"))
	require.True(t, g.HasNode("b"))
	require.True(t, g.HasEdge("a", "b"))
	require.Equal(t, 1, g.EdgeCount())
	require.Equal(t, 1, g.Degree("a"))
}

func TestGraphAddEdgeReplacesAttrs(t *testing.T) {
	g := NewGraph()
	g.AddEdge("a", "b", map[string]any{"w": 1})
	g.AddEdge("a", "b", map[string]any{"w": 2})

	require.Equal(t, 1, g.EdgeCount())
	require.Equal(t, 2, g.EdgeAttrs(EdgeKey{"a", "b"})["w"])
}

func TestGraphAddNodeMergesAttrs(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", map[string]any{"x": 1})
	g.AddNode("a", map[string]any{"y": 2})

	attrs := g.NodeAttrs("a")
	require.Equal(t, 1, attrs["x"])
	require.Equal(t, 2, attrs["y"])
	require.Equal(t, 1, g.NodeCount())
}

func TestGraphRemoveNodeDropsIncidentEdges(t *testing.T) {
	g := NewGraph()
	g.AddEdge("a", "b", nil)
	g.AddEdge("b", "c", nil)
	g.AddEdge("c", "a", nil)

	g.RemoveNode("b")

	require.False(t, g.HasNode("b"))
	require.False(t, g.HasEdge("a", "b"))
	require.False(t, g.HasEdge("b", "c"))
	require.True(t, g.HasEdge("c", "a"))
	require.Equal(t, 1, g.EdgeCount())
}

func TestGraphRelabel(t *testing.T) {
	g := NewGraph()
	g.AddNode("old", map[string]any{"name": "n"})
	g.AddEdge("old", "x", map[string]any{"w": 1})
	g.AddEdge("y", "old", nil)

	require.NoError(t, g.Relabel(map[string]string{"old": "new"}))

	require.False(t, g.HasNode("old"))
	require.True(t, g.HasNode("new"))
	require.Equal(t, "n", g.NodeAttrs("new")["name"])
	require.True(t, g.HasEdge("new", "x"))
	require.True(t, g.HasEdge("y", "new"))
	require.Equal(t, 1, g.EdgeAttrs(EdgeKey{"new", "x"})["w"])
}

func TestGraphRelabelConflict(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)

	require.Error(t, g.Relabel(map[string]string{"a": "b"}))
}

func TestGraphDeterministicOrder(t *testing.T) {
	g := NewGraph()
	g.AddEdge("c", "a", nil)
	g.AddEdge("b", "c", nil)
	g.AddNode("d", nil)

	require.Equal(t, []string{"a", "b", "c", "d"}, g.NodeIDs())
	require.Equal(t, []EdgeKey{{"b", "c"}, {"c", "a"}}, g.EdgeKeys())
}
