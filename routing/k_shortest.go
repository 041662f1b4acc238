package routing

import (
	"errors"

	"controlplane/topology"
)

// Path is a computed route with its total weight.
type Path struct {
	Nodes  []string
	Weight float64
}

func pathLess(a, b Path) bool {
	if a.Weight != b.Weight {
		return a.Weight < b.Weight
	}
	return lexLess(a.Nodes, b.Nodes)
}

func sameNodes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// KShortestPaths returns up to k distinct simple paths from src to dst,
// ascending by total weight, ties broken by lexicographically smaller node
// sequence (Yen's algorithm over Dijkstra). Returning fewer than k paths is
// not an error; it means fewer simple paths exist.
func KShortestPaths(snap *topology.Snapshot, src, dst string, k int, opts Options) ([]Path, error) {
	if k <= 0 {
		return nil, nil
	}
	first, err := ShortestPath(snap, src, dst, opts)
	if err != nil {
		if errors.Is(err, ErrNoPath) {
			return nil, nil
		}
		return nil, err
	}
	w, _ := pathWeight(snap, first, opts.Weighting)
	found := []Path{{Nodes: first, Weight: w}}

	var candidates candidateHeap

	for len(found) < k {
		prev := found[len(found)-1].Nodes
		// The spur node ranges from the first node to the next to last
		// node of the previously accepted path.
		for i := 0; i < len(prev)-1; i++ {
			spur := prev[i]
			root := prev[:i+1]

			spurOpts := Options{
				Weighting:  opts.Weighting,
				AvoidEdges: make(map[topology.EdgeKey]bool),
				AvoidNodes: make(map[string]bool),
			}
			for key := range opts.AvoidEdges {
				spurOpts.AvoidEdges[key] = true
			}
			for id := range opts.AvoidNodes {
				spurOpts.AvoidNodes[id] = true
			}
			// Ban the next edge of every accepted path sharing this root.
			for _, p := range found {
				if len(p.Nodes) > i && sameNodes(p.Nodes[:i+1], root) {
					spurOpts.AvoidEdges[topology.MakeEdgeKey(p.Nodes[i], p.Nodes[i+1])] = true
				}
			}
			// Ban root nodes except the spur so the total path stays simple.
			for _, id := range root[:len(root)-1] {
				spurOpts.AvoidNodes[id] = true
			}

			spurPath, err := ShortestPath(snap, spur, dst, spurOpts)
			if err != nil {
				continue
			}

			total := make([]string, 0, len(root)-1+len(spurPath))
			total = append(total, root[:len(root)-1]...)
			total = append(total, spurPath...)
			weight, ok := pathWeight(snap, total, opts.Weighting)
			if !ok {
				continue
			}
			candidate := Path{Nodes: total, Weight: weight}
			if !candidates.contains(candidate) && !containsPath(found, candidate) {
				candidates.insert(candidate)
			}
		}
		if len(candidates) == 0 {
			break
		}
		found = append(found, candidates.popMin())
	}
	return found, nil
}

func containsPath(paths []Path, p Path) bool {
	for _, existing := range paths {
		if sameNodes(existing.Nodes, p.Nodes) {
			return true
		}
	}
	return false
}

// min-heap of candidate paths ordered by (weight, lexicographic nodes)
type candidateHeap []Path

func (h candidateHeap) shiftDown(start, end int) {
	dad := start
	son := dad*2 + 1
	for son <= end {
		if son+1 <= end && pathLess(h[son+1], h[son]) {
			son++
		}
		if !pathLess(h[son], h[dad]) {
			break
		}
		h[dad], h[son] = h[son], h[dad]
		dad = son
		son = dad*2 + 1
	}
}

func (h candidateHeap) shiftUp(start int) {
	son := start
	dad := (son - 1) / 2
	for dad >= 0 {
		if !pathLess(h[son], h[dad]) {
			break
		}
		h[dad], h[son] = h[son], h[dad]
		son = dad
		if son == 0 {
			break
		}
		dad = (son - 1) / 2
	}
}

func (h *candidateHeap) insert(p Path) {
	*h = append(*h, p)
	h.shiftUp(len(*h) - 1)
}

func (h *candidateHeap) popMin() Path {
	min := (*h)[0]
	(*h)[0] = (*h)[len(*h)-1]
	*h = (*h)[:len(*h)-1]
	if len(*h) > 0 {
		h.shiftDown(0, len(*h)-1)
	}
	return min
}

func (h candidateHeap) contains(p Path) bool {
	for i := range h {
		if sameNodes(h[i].Nodes, p.Nodes) {
			return true
		}
	}
	return false
}
