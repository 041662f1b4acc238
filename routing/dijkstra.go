package routing

import (
	"container/heap"
	"errors"
	"fmt"

	"controlplane/topology"
)

// ErrNoPath is returned when source and destination are disconnected.
var ErrNoPath = errors.New("no path")

// Weighting selects the edge weight function.
type Weighting int

const (
	// WeightHop counts every edge as 1; shortest path is minimum hop count.
	WeightHop Weighting = iota
	// WeightInverseCapacity weights each edge by 1/capacity, preferring
	// high-capacity links.
	WeightInverseCapacity
)

// Options tune path computation.
type Options struct {
	Weighting Weighting

	// AvoidEdges and AvoidNodes constrain the search; used for backup-path
	// disjointness and Yen's spur computation.
	AvoidEdges map[topology.EdgeKey]bool
	AvoidNodes map[string]bool
}

func edgeWeight(e *topology.Edge, w Weighting) float64 {
	if w == WeightInverseCapacity && e.Capacity > 0 {
		return 1 / e.Capacity
	}
	return 1
}

// ShortestPath computes the minimum-weight path from src to dst over the
// snapshot via Dijkstra. Failed and Recovering edges are skipped. Among
// equal-weight paths the lexicographically smallest node sequence wins, so
// results are deterministic. Returns ErrNoPath when disconnected.
func ShortestPath(snap *topology.Snapshot, src, dst string, opts Options) ([]string, error) {
	if _, ok := snap.Nodes[src]; !ok {
		return nil, fmt.Errorf("source %s: %w", src, topology.ErrNotFound)
	}
	if _, ok := snap.Nodes[dst]; !ok {
		return nil, fmt.Errorf("destination %s: %w", dst, topology.ErrNotFound)
	}
	if src == dst {
		return []string{src}, nil
	}

	dist := map[string]float64{src: 0}
	paths := map[string][]string{src: {src}}
	done := make(map[string]bool)

	pq := &nodeQueue{}
	heap.Init(pq)
	heap.Push(pq, nodeItem{id: src, dist: 0})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(nodeItem)
		if done[item.id] {
			continue
		}
		done[item.id] = true
		if item.id == dst {
			break
		}
		for _, nb := range snap.Neighbors(item.id) {
			if done[nb] || (opts.AvoidNodes != nil && opts.AvoidNodes[nb]) {
				continue
			}
			edge, ok := snap.EdgeBetween(item.id, nb)
			if !ok || !edge.Health.Usable() {
				continue
			}
			if opts.AvoidEdges != nil && opts.AvoidEdges[edge.Key] {
				continue
			}
			alt := dist[item.id] + edgeWeight(edge, opts.Weighting)
			cur, seen := dist[nb]
			candidate := append(append([]string{}, paths[item.id]...), nb)
			if !seen || alt < cur || (alt == cur && lexLess(candidate, paths[nb])) {
				dist[nb] = alt
				paths[nb] = candidate
				heap.Push(pq, nodeItem{id: nb, dist: alt})
			}
		}
	}

	path, ok := paths[dst]
	if !ok || !done[dst] {
		return nil, fmt.Errorf("%s -> %s: %w", src, dst, ErrNoPath)
	}
	return path, nil
}

func lexLess(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// pathWeight sums edge weights along a path. Unusable or missing edges make
// the path invalid (ok=false).
func pathWeight(snap *topology.Snapshot, path []string, w Weighting) (float64, bool) {
	var total float64
	for i := 1; i < len(path); i++ {
		edge, ok := snap.EdgeBetween(path[i-1], path[i])
		if !ok || !edge.Health.Usable() {
			return 0, false
		}
		total += edgeWeight(edge, w)
	}
	return total, true
}

type nodeItem struct {
	id   string
	dist float64
}

type nodeQueue []nodeItem

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].id < q[j].id
}
func (q nodeQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x interface{}) { *q = append(*q, x.(nodeItem)) }
func (q *nodeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
