package topology

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func switchNode(id string) Node {
	return Node{ID: id, Kind: KindSwitch}
}

func hostNode(id, mac string) Node {
	return Node{ID: id, Kind: KindHost, MAC: mac}
}

// buildTriangle creates s1-s2, s2-s3, s3-s1 with hosts h1 on s1 and h2 on s3.
func buildTriangle(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, s.AddNode(switchNode(id)))
	}
	require.NoError(t, s.AddNode(hostNode("h1", "00:00:00:00:00:01")))
	require.NoError(t, s.AddNode(hostNode("h2", "00:00:00:00:00:02")))
	require.NoError(t, s.AddEdge("s1", "s2", 100))
	require.NoError(t, s.AddEdge("s2", "s3", 100))
	require.NoError(t, s.AddEdge("s3", "s1", 100))
	require.NoError(t, s.AddEdge("h1", "s1", 1000))
	require.NoError(t, s.AddEdge("h2", "s3", 1000))
	return s
}

func TestAddNodeConflict(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddNode(switchNode("s1")))
	err := s.AddNode(switchNode("s1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestRemoveNodeNotFound(t *testing.T) {
	s := NewStore()
	err := s.RemoveNode("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRemoveNodeCascadesEdges(t *testing.T) {
	s := buildTriangle(t)
	require.NoError(t, s.RemoveNode("s2"))

	snap := s.Snapshot()
	_, hasS2 := snap.Nodes["s2"]
	assert.False(t, hasS2)
	_, ok := snap.EdgeBetween("s1", "s2")
	assert.False(t, ok)
	_, ok = snap.EdgeBetween("s2", "s3")
	assert.False(t, ok)
	// Unrelated edges survive.
	_, ok = snap.EdgeBetween("s3", "s1")
	assert.True(t, ok)
}

func TestAddEdgeErrors(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddNode(switchNode("s1")))
	require.NoError(t, s.AddNode(switchNode("s2")))

	err := s.AddEdge("s1", "missing", 10)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.AddEdge("s1", "s2", 10))
	// Duplicate in either orientation is a conflict.
	assert.True(t, errors.Is(s.AddEdge("s1", "s2", 10), ErrConflict))
	assert.True(t, errors.Is(s.AddEdge("s2", "s1", 10), ErrConflict))
}

func TestEdgeRoundTrip(t *testing.T) {
	s := buildTriangle(t)
	before := s.Snapshot()

	require.NoError(t, s.RemoveEdge("s1", "s2"))
	after := s.Snapshot()
	assert.False(t, before.Equal(after))
	assert.Greater(t, after.Version, before.Version)

	require.NoError(t, s.AddEdge("s1", "s2", 100))
	restored := s.Snapshot()
	assert.True(t, before.Equal(restored), "re-adding an identical edge must restore graph equality")
}

func TestSnapshotIsolation(t *testing.T) {
	s := buildTriangle(t)
	snap := s.Snapshot()

	require.NoError(t, s.RemoveEdge("s1", "s2"))
	require.NoError(t, s.UpdateUtilization("s2", "s3", 42))

	// The snapshot still sees the pre-mutation state.
	_, ok := snap.EdgeBetween("s1", "s2")
	assert.True(t, ok)
	edge, _ := snap.EdgeBetween("s2", "s3")
	assert.Equal(t, 0.0, edge.Utilization)
}

func TestSnapshotVersionMonotonic(t *testing.T) {
	s := NewStore()
	v0 := s.Snapshot().Version
	require.NoError(t, s.AddNode(switchNode("s1")))
	v1 := s.Snapshot().Version
	require.NoError(t, s.AddNode(switchNode("s2")))
	v2 := s.Snapshot().Version
	assert.Greater(t, v1, v0)
	assert.Greater(t, v2, v1)
}

func TestApplyFailuresSingleBump(t *testing.T) {
	s := buildTriangle(t)
	before := s.Snapshot().Version

	s.ApplyFailures([]EdgeKey{
		MakeEdgeKey("s1", "s2"),
		MakeEdgeKey("s2", "s3"),
	})

	snap := s.Snapshot()
	assert.Equal(t, before+1, snap.Version, "a failure sequence is one atomic mutation")
	e1, _ := snap.EdgeBetween("s1", "s2")
	e2, _ := snap.EdgeBetween("s2", "s3")
	assert.Equal(t, HealthFailed, e1.Health)
	assert.Equal(t, HealthFailed, e2.Health)
}

func TestLearnHostIdempotent(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddSwitch("s1", []int{1, 2}))

	id1, err := s.LearnHost("aa:bb:cc:dd:ee:ff", "s1", 1, 0)
	require.NoError(t, err)
	id2, err := s.LearnHost("aa:bb:cc:dd:ee:ff", "s1", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	snap := s.Snapshot()
	host := snap.Nodes[id1]
	require.NotNil(t, host)
	assert.Equal(t, KindHost, host.Kind)
	assert.Equal(t, "s1", host.AttachedSwitch)
	_, ok := snap.EdgeBetween("s1", id1)
	assert.True(t, ok)
}

func TestResolvePort(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddSwitch("s1", []int{1, 2}))
	require.NoError(t, s.AddSwitch("s2", []int{1}))
	require.NoError(t, s.AddEdgeWithPorts("s1", 2, "s2", 1, 100))

	key, ok := s.ResolvePort("s1", 2)
	require.True(t, ok)
	assert.Equal(t, MakeEdgeKey("s1", "s2"), key)

	_, ok = s.ResolvePort("s1", 7)
	assert.False(t, ok)
}

func TestMutationHookFires(t *testing.T) {
	s := NewStore()
	var mu sync.Mutex
	calls := 0
	s.OnMutate(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, s.AddNode(switchNode("s1")))
	require.NoError(t, s.AddNode(switchNode("s2")))
	require.NoError(t, s.AddEdge("s1", "s2", 10))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	s := buildTriangle(t)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Snapshot()
				// A snapshot is internally consistent: every edge's
				// endpoints exist.
				for key := range snap.Edges {
					if _, ok := snap.Nodes[key.A]; !ok {
						t.Errorf("edge %v references missing node %s", key, key.A)
						return
					}
					if _, ok := snap.Nodes[key.B]; !ok {
						t.Errorf("edge %v references missing node %s", key, key.B)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		_ = s.RemoveEdge("s1", "s2")
		_ = s.AddEdge("s1", "s2", 100)
	}
	close(stop)
	wg.Wait()
}

func TestHealthStateStrings(t *testing.T) {
	cases := []struct {
		health Health
		want   string
		usable bool
	}{
		{HealthUp, "Up", true},
		{HealthDegraded, "Degraded", true},
		{HealthFailed, "Failed", false},
		{HealthRecovering, "Recovering", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.health.String())
		assert.Equal(t, tc.usable, tc.health.Usable())
	}
}
