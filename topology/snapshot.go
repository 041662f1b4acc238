package topology

import "sort"

// Snapshot is an immutable point-in-time copy of the graph. Algorithmic code
// runs against snapshots only, so it can proceed concurrently with writers
// without additional locking.
type Snapshot struct {
	Version uint64
	Nodes   map[string]*Node
	Edges   map[EdgeKey]*Edge

	adj map[string]map[string]EdgeKey
}

// Snapshot returns a deep copy of the full graph plus its version number.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Version: s.version,
		Nodes:   make(map[string]*Node, len(s.nodes)),
		Edges:   make(map[EdgeKey]*Edge, len(s.edges)),
		adj:     make(map[string]map[string]EdgeKey, len(s.adj)),
	}
	for id, n := range s.nodes {
		snap.Nodes[id] = n.clone()
	}
	for key, e := range s.edges {
		snap.Edges[key] = e.clone()
	}
	for id, neighbors := range s.adj {
		m := make(map[string]EdgeKey, len(neighbors))
		for nb, key := range neighbors {
			m[nb] = key
		}
		snap.adj[id] = m
	}
	return snap
}

// Neighbors returns the adjacent node IDs in deterministic (sorted) order.
func (sn *Snapshot) Neighbors(id string) []string {
	m, ok := sn.adj[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(m))
	for nb := range m {
		out = append(out, nb)
	}
	sort.Strings(out)
	return out
}

// EdgeBetween returns the edge connecting a and b, if any.
func (sn *Snapshot) EdgeBetween(a, b string) (*Edge, bool) {
	e, ok := sn.Edges[MakeEdgeKey(a, b)]
	return e, ok
}

// HostByMAC resolves a host node by its MAC address.
func (sn *Snapshot) HostByMAC(mac string) (*Node, bool) {
	for _, n := range sn.Nodes {
		if n.Kind == KindHost && n.MAC == mac {
			return n, true
		}
	}
	return nil, false
}

// PortTo returns the local port on a switch that leads to the given neighbor.
func (sn *Snapshot) PortTo(switchID, neighbor string) (int, bool) {
	n, ok := sn.Nodes[switchID]
	if !ok || n.Kind != KindSwitch {
		return 0, false
	}
	for p, peer := range n.Ports {
		if peer.NodeID == neighbor {
			return p, true
		}
	}
	return 0, false
}

// NodeIDs returns all node IDs in sorted order.
func (sn *Snapshot) NodeIDs() []string {
	out := make([]string, 0, len(sn.Nodes))
	for id := range sn.Nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// EdgeKeys returns all edge keys sorted by endpoints.
func (sn *Snapshot) EdgeKeys() []EdgeKey {
	out := make([]EdgeKey, 0, len(sn.Edges))
	for key := range sn.Edges {
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// ValidPath reports whether every consecutive pair on the path is still
// connected by a usable edge. Stale paths referencing removed or failed
// edges must be repaired before reuse.
func (sn *Snapshot) ValidPath(path []string) bool {
	if len(path) < 2 {
		return false
	}
	seen := make(map[string]bool, len(path))
	for i, node := range path {
		if seen[node] {
			return false
		}
		seen[node] = true
		if _, ok := sn.Nodes[node]; !ok {
			return false
		}
		if i == 0 {
			continue
		}
		edge, ok := sn.EdgeBetween(path[i-1], node)
		if !ok || !edge.Health.Usable() {
			return false
		}
	}
	return true
}

// Equal compares graph content (nodes, edges, capacities, utilization,
// health) ignoring the version counter.
func (sn *Snapshot) Equal(other *Snapshot) bool {
	if len(sn.Nodes) != len(other.Nodes) || len(sn.Edges) != len(other.Edges) {
		return false
	}
	for id, n := range sn.Nodes {
		o, ok := other.Nodes[id]
		if !ok || n.Kind != o.Kind || n.MAC != o.MAC {
			return false
		}
	}
	for key, e := range sn.Edges {
		o, ok := other.Edges[key]
		if !ok || e.Capacity != o.Capacity || e.Utilization != o.Utilization || e.Health != o.Health {
			return false
		}
	}
	return true
}
