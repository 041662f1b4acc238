package routing

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"controlplane/topology"
)

// diamond: two 2-hop routes plus one 3-hop route from s1 to s4.
func diamondSnapshot(t *testing.T) *topology.Snapshot {
	t.Helper()
	return buildSnapshot(t,
		[]string{"s1", "s2", "s3", "s4", "s5"},
		[]edgeSpec{
			{"s1", "s2", 100}, {"s2", "s4", 100},
			{"s1", "s3", 100}, {"s3", "s4", 100},
			{"s2", "s5", 100}, {"s5", "s4", 100},
		})
}

func TestKShortestOrderingAndDistinctness(t *testing.T) {
	snap := diamondSnapshot(t)
	paths, err := KShortestPaths(snap, "s1", "s4", 3, Options{})
	require.NoError(t, err)
	require.Len(t, paths, 3)

	assert.Equal(t, []string{"s1", "s2", "s4"}, paths[0].Nodes)
	assert.Equal(t, []string{"s1", "s3", "s4"}, paths[1].Nodes)
	assert.Equal(t, []string{"s1", "s2", "s5", "s4"}, paths[2].Nodes)

	for i := 1; i < len(paths); i++ {
		assert.LessOrEqual(t, paths[i-1].Weight, paths[i].Weight)
		assert.False(t, sameNodes(paths[i-1].Nodes, paths[i].Nodes))
	}
}

func TestKShortestFewerThanK(t *testing.T) {
	snap := buildSnapshot(t, []string{"s1", "s2", "s3"},
		[]edgeSpec{{"s1", "s2", 100}, {"s2", "s3", 100}})

	paths, err := KShortestPaths(snap, "s1", "s3", 5, Options{})
	require.NoError(t, err)
	require.Len(t, paths, 1, "only one simple path exists")
	assert.Equal(t, []string{"s1", "s2", "s3"}, paths[0].Nodes)
}

func TestKShortestNoPath(t *testing.T) {
	snap := buildSnapshot(t, []string{"s1", "s2"}, nil)
	paths, err := KShortestPaths(snap, "s1", "s2", 3, Options{})
	require.NoError(t, err)
	assert.Nil(t, paths)
}

func TestKShortestZeroK(t *testing.T) {
	snap := diamondSnapshot(t)
	paths, err := KShortestPaths(snap, "s1", "s4", 0, Options{})
	require.NoError(t, err)
	assert.Nil(t, paths)
}

func TestKShortestPathsAreSimple(t *testing.T) {
	snap := diamondSnapshot(t)
	paths, err := KShortestPaths(snap, "s1", "s4", 10, Options{})
	require.NoError(t, err)
	for _, p := range paths {
		seen := make(map[string]bool)
		for _, node := range p.Nodes {
			assert.False(t, seen[node], "path %v revisits %s", p.Nodes, node)
			seen[node] = true
		}
	}
}

func TestKShortestDeterministic(t *testing.T) {
	snap := diamondSnapshot(t)
	first, err := KShortestPaths(snap, "s1", "s4", 3, Options{})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := KShortestPaths(snap, "s1", "s4", 3, Options{})
		require.NoError(t, err)
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].Nodes, again[j].Nodes)
		}
	}
}

// enumerateSimplePaths lists every simple path from src to dst by DFS, for
// cross-checking Yen's output on small random graphs.
func enumerateSimplePaths(snap *topology.Snapshot, src, dst string) []Path {
	var out []Path
	var walk func(cur string, visited map[string]bool, trail []string)
	walk = func(cur string, visited map[string]bool, trail []string) {
		if cur == dst {
			nodes := append([]string{}, trail...)
			w, _ := pathWeight(snap, nodes, WeightHop)
			out = append(out, Path{Nodes: nodes, Weight: w})
			return
		}
		for _, nb := range snap.Neighbors(cur) {
			if visited[nb] {
				continue
			}
			edge, ok := snap.EdgeBetween(cur, nb)
			if !ok || !edge.Health.Usable() {
				continue
			}
			visited[nb] = true
			walk(nb, visited, append(trail, nb))
			visited[nb] = false
		}
	}
	walk(src, map[string]bool{src: true}, []string{src})
	sort.Slice(out, func(i, j int) bool { return pathLess(out[i], out[j]) })
	return out
}

func TestKShortestRandomAgainstEnumeration(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 15; trial++ {
		n := 5 + rng.Intn(3)
		nodes := make([]string, n)
		for i := range nodes {
			nodes[i] = fmt.Sprintf("s%02d", i)
		}
		var edges []edgeSpec
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if rng.Float64() < 0.5 {
					edges = append(edges, edgeSpec{nodes[i], nodes[j], 100})
				}
			}
		}
		snap := buildSnapshot(t, nodes, edges)
		src, dst := nodes[0], nodes[n-1]

		all := enumerateSimplePaths(snap, src, dst)
		k := 4
		got, err := KShortestPaths(snap, src, dst, k, Options{})
		require.NoError(t, err, "trial %d", trial)

		wantLen := len(all)
		if wantLen > k {
			wantLen = k
		}
		require.Len(t, got, wantLen, "trial %d", trial)
		for i := range got {
			assert.Equal(t, all[i].Nodes, got[i].Nodes, "trial %d rank %d", trial, i)
		}
	}
}
