package routing

import (
	"fmt"
	"math"

	"controlplane/topology"
)

// PathMetrics summarizes a path for policy decisions. Aggregate utilization
// is the maximum along the path: the most loaded edge is what congests first.
type PathMetrics struct {
	HopCount           int
	BottleneckCapacity float64
	MaxUtilization     float64
	AvailableCapacity  float64 // bottleneck of per-edge (capacity - utilization)
	Score              float64 // available capacity per hop; higher is better
}

// Metrics computes metrics for a path over the snapshot. The path must be a
// valid route on the snapshot.
func Metrics(snap *topology.Snapshot, path []string) (PathMetrics, error) {
	if len(path) < 2 {
		return PathMetrics{}, fmt.Errorf("path too short (%d nodes)", len(path))
	}
	m := PathMetrics{
		HopCount:           len(path) - 1,
		BottleneckCapacity: math.Inf(1),
		AvailableCapacity:  math.Inf(1),
	}
	for i := 1; i < len(path); i++ {
		edge, ok := snap.EdgeBetween(path[i-1], path[i])
		if !ok {
			return PathMetrics{}, fmt.Errorf("edge %s-%s: %w", path[i-1], path[i], topology.ErrNotFound)
		}
		if edge.Capacity < m.BottleneckCapacity {
			m.BottleneckCapacity = edge.Capacity
		}
		if edge.Utilization > m.MaxUtilization {
			m.MaxUtilization = edge.Utilization
		}
		if avail := edge.Available(); avail < m.AvailableCapacity {
			m.AvailableCapacity = avail
		}
	}
	m.Score = m.AvailableCapacity / float64(m.HopCount)
	return m, nil
}

// Better reports whether candidate is a materially better route than current:
// strictly fewer hops, or strictly higher bottleneck capacity. Used when a
// recovered edge makes re-optimization possible.
func Better(candidate, current PathMetrics) bool {
	if candidate.HopCount < current.HopCount {
		return true
	}
	return candidate.BottleneckCapacity > current.BottleneckCapacity
}
