package routing

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"controlplane/topology"
)

type edgeSpec struct {
	a, b     string
	capacity float64
}

func buildSnapshot(t *testing.T, nodes []string, edges []edgeSpec) *topology.Snapshot {
	t.Helper()
	s := topology.NewStore()
	for _, id := range nodes {
		require.NoError(t, s.AddNode(topology.Node{ID: id, Kind: topology.KindSwitch}))
	}
	for _, e := range edges {
		require.NoError(t, s.AddEdge(e.a, e.b, e.capacity))
	}
	return s.Snapshot()
}

func TestShortestPath(t *testing.T) {
	cases := []struct {
		name  string
		nodes []string
		edges []edgeSpec
		src   string
		dst   string
		want  []string
	}{
		{
			name:  "line",
			nodes: []string{"s1", "s2", "s3"},
			edges: []edgeSpec{{"s1", "s2", 100}, {"s2", "s3", 100}},
			src:   "s1", dst: "s3",
			want: []string{"s1", "s2", "s3"},
		},
		{
			name:  "triangle prefers direct hop",
			nodes: []string{"s1", "s2", "s3"},
			edges: []edgeSpec{{"s1", "s2", 100}, {"s2", "s3", 100}, {"s1", "s3", 100}},
			src:   "s1", dst: "s3",
			want: []string{"s1", "s3"},
		},
		{
			name:  "equal length breaks ties lexicographically",
			nodes: []string{"s1", "s2", "s4", "s9"},
			edges: []edgeSpec{{"s1", "s2", 100}, {"s2", "s9", 100}, {"s1", "s4", 100}, {"s4", "s9", 100}},
			src:   "s1", dst: "s9",
			want: []string{"s1", "s2", "s9"},
		},
		{
			name:  "source equals destination",
			nodes: []string{"s1"},
			edges: nil,
			src:   "s1", dst: "s1",
			want: []string{"s1"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := buildSnapshot(t, tc.nodes, tc.edges)
			got, err := ShortestPath(snap, tc.src, tc.dst, Options{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestShortestPathDisconnected(t *testing.T) {
	snap := buildSnapshot(t, []string{"s1", "s2", "s3", "s4"},
		[]edgeSpec{{"s1", "s2", 100}, {"s3", "s4", 100}})
	_, err := ShortestPath(snap, "s1", "s4", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPath))
}

func TestShortestPathUnknownEndpoint(t *testing.T) {
	snap := buildSnapshot(t, []string{"s1"}, nil)
	_, err := ShortestPath(snap, "s1", "nope", Options{})
	assert.True(t, errors.Is(err, topology.ErrNotFound))
	_, err = ShortestPath(snap, "nope", "s1", Options{})
	assert.True(t, errors.Is(err, topology.ErrNotFound))
}

func TestShortestPathSkipsFailedEdges(t *testing.T) {
	s := topology.NewStore()
	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, s.AddNode(topology.Node{ID: id, Kind: topology.KindSwitch}))
	}
	require.NoError(t, s.AddEdge("s1", "s3", 100))
	require.NoError(t, s.AddEdge("s1", "s2", 100))
	require.NoError(t, s.AddEdge("s2", "s3", 100))
	require.NoError(t, s.SetHealth("s1", "s3", topology.HealthFailed))

	path, err := ShortestPath(s.Snapshot(), "s1", "s3", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, path)

	// Degraded edges stay routable.
	require.NoError(t, s.SetHealth("s1", "s3", topology.HealthDegraded))
	path, err = ShortestPath(s.Snapshot(), "s1", "s3", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s3"}, path)
}

func TestShortestPathAvoidConstraints(t *testing.T) {
	snap := buildSnapshot(t, []string{"s1", "s2", "s3"},
		[]edgeSpec{{"s1", "s3", 100}, {"s1", "s2", 100}, {"s2", "s3", 100}})

	path, err := ShortestPath(snap, "s1", "s3", Options{
		AvoidEdges: map[topology.EdgeKey]bool{topology.MakeEdgeKey("s1", "s3"): true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, path)

	_, err = ShortestPath(snap, "s1", "s3", Options{
		AvoidEdges: map[topology.EdgeKey]bool{topology.MakeEdgeKey("s1", "s3"): true},
		AvoidNodes: map[string]bool{"s2": true},
	})
	assert.True(t, errors.Is(err, ErrNoPath))
}

func TestShortestPathInverseCapacity(t *testing.T) {
	// Two hops of 1000 beat one hop of 1 under inverse-capacity weighting.
	snap := buildSnapshot(t, []string{"s1", "s2", "s3"},
		[]edgeSpec{{"s1", "s3", 1}, {"s1", "s2", 1000}, {"s2", "s3", 1000}})

	path, err := ShortestPath(snap, "s1", "s3", Options{Weighting: WeightInverseCapacity})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, path)

	path, err = ShortestPath(snap, "s1", "s3", Options{Weighting: WeightHop})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s3"}, path)
}

// bfsDistance is an independent reference for hop distance.
func bfsDistance(snap *topology.Snapshot, src, dst string) (int, bool) {
	if src == dst {
		return 0, true
	}
	dist := map[string]int{src: 0}
	queue := []string{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nb := range snap.Neighbors(cur) {
			edge, ok := snap.EdgeBetween(cur, nb)
			if !ok || !edge.Health.Usable() {
				continue
			}
			if _, seen := dist[nb]; seen {
				continue
			}
			dist[nb] = dist[cur] + 1
			if nb == dst {
				return dist[nb], true
			}
			queue = append(queue, nb)
		}
	}
	return 0, false
}

func TestShortestPathRandomAgainstBFS(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		n := 8 + rng.Intn(8)
		nodes := make([]string, n)
		for i := range nodes {
			nodes[i] = fmt.Sprintf("s%02d", i)
		}
		var edges []edgeSpec
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if rng.Float64() < 0.3 {
					edges = append(edges, edgeSpec{nodes[i], nodes[j], 100})
				}
			}
		}
		snap := buildSnapshot(t, nodes, edges)

		for pair := 0; pair < 10; pair++ {
			src := nodes[rng.Intn(n)]
			dst := nodes[rng.Intn(n)]
			want, reachable := bfsDistance(snap, src, dst)
			path, err := ShortestPath(snap, src, dst, Options{})
			if !reachable {
				assert.True(t, errors.Is(err, ErrNoPath), "trial %d %s->%s", trial, src, dst)
				continue
			}
			require.NoError(t, err, "trial %d %s->%s", trial, src, dst)
			assert.Equal(t, want, len(path)-1, "trial %d %s->%s hop count", trial, src, dst)
			assert.True(t, snap.ValidPath(path) || src == dst, "trial %d %s->%s path must be valid", trial, src, dst)
		}
	}
}
