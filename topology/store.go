package topology

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Store owns the live network graph. All mutations run under an exclusive
// lock and bump a monotonically increasing version; readers obtain immutable
// snapshots and never observe a half-applied mutation.
type Store struct {
	mu      sync.RWMutex
	nodes   map[string]*Node
	edges   map[EdgeKey]*Edge
	adj     map[string]map[string]EdgeKey // node -> neighbor -> edge
	version uint64

	invalidators []func()
}

func NewStore() *Store {
	return &Store{
		nodes: make(map[string]*Node),
		edges: make(map[EdgeKey]*Edge),
		adj:   make(map[string]map[string]EdgeKey),
	}
}

// OnMutate registers a hook invoked after every version bump. The routing
// cache registers its wholesale invalidation here.
func (s *Store) OnMutate(fn func()) {
	s.mu.Lock()
	s.invalidators = append(s.invalidators, fn)
	s.mu.Unlock()
}

// bumped must be called with the write lock held.
func (s *Store) bumped() {
	s.version++
	for _, fn := range s.invalidators {
		fn()
	}
}

// AddNode inserts a node. Fails with ErrConflict if the ID is taken.
func (s *Store) AddNode(n Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[n.ID]; exists {
		return fmt.Errorf("node %s: %w", n.ID, ErrConflict)
	}
	stored := n.clone()
	if stored.Kind == KindSwitch && stored.Ports == nil {
		stored.Ports = make(map[int]PortPeer)
	}
	s.nodes[n.ID] = stored
	s.adj[n.ID] = make(map[string]EdgeKey)
	s.bumped()
	log.Infof("topology: added %s %s", n.Kind, n.ID)
	return nil
}

// RemoveNode deletes a node and cascades removal of its incident edges.
func (s *Store) RemoveNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, exists := s.nodes[id]
	if !exists {
		return fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	for neighbor, key := range s.adj[id] {
		s.dropEdgeLocked(key)
		log.Infof("topology: cascaded removal of edge %s-%s", key.A, key.B)
		_ = neighbor
	}
	delete(s.adj, id)
	delete(s.nodes, id)
	s.bumped()
	log.Infof("topology: removed %s %s", node.Kind, id)
	return nil
}

// AddEdge creates an undirected edge with the given capacity. Port numbers on
// switch endpoints are auto-assigned; use AddEdgeWithPorts when discovery
// reports the concrete wiring.
func (s *Store) AddEdge(a, b string, capacity float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addEdgeLocked(a, -1, b, -1, capacity)
}

// AddEdgeWithPorts creates an edge and records the exact port wiring reported
// by the switch-session collaborator.
func (s *Store) AddEdgeWithPorts(a string, aPort int, b string, bPort int, capacity float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addEdgeLocked(a, aPort, b, bPort, capacity)
}

func (s *Store) addEdgeLocked(a string, aPort int, b string, bPort int, capacity float64) error {
	if a == b {
		return fmt.Errorf("edge %s-%s: self loop: %w", a, b, ErrConflict)
	}
	na, ok := s.nodes[a]
	if !ok {
		return fmt.Errorf("node %s: %w", a, ErrNotFound)
	}
	nb, ok := s.nodes[b]
	if !ok {
		return fmt.Errorf("node %s: %w", b, ErrNotFound)
	}
	key := MakeEdgeKey(a, b)
	if _, exists := s.edges[key]; exists {
		return fmt.Errorf("edge %s-%s: %w", key.A, key.B, ErrConflict)
	}

	s.edges[key] = &Edge{Key: key, Capacity: capacity, Health: HealthUp}
	s.adj[a][b] = key
	s.adj[b][a] = key
	s.wirePorts(na, aPort, nb, bPort)
	s.bumped()
	log.Infof("topology: added edge %s-%s capacity=%.1f", key.A, key.B, capacity)
	return nil
}

func (s *Store) wirePorts(na *Node, aPort int, nb *Node, bPort int) {
	if na.Kind == KindSwitch {
		if aPort < 0 {
			aPort = nextFreePort(na.Ports)
		}
		na.Ports[aPort] = PortPeer{NodeID: nb.ID, Port: bPort}
	}
	if nb.Kind == KindSwitch {
		if bPort < 0 {
			bPort = nextFreePort(nb.Ports)
		}
		nb.Ports[bPort] = PortPeer{NodeID: na.ID, Port: aPort}
		if na.Kind == KindSwitch {
			na.Ports[aPort] = PortPeer{NodeID: nb.ID, Port: bPort}
		}
	}
	if na.Kind == KindHost {
		na.AttachedSwitch = nb.ID
		na.AttachedPort = bPort
	}
	if nb.Kind == KindHost {
		nb.AttachedSwitch = na.ID
		nb.AttachedPort = aPort
	}
}

func nextFreePort(ports map[int]PortPeer) int {
	p := 1
	for {
		if _, taken := ports[p]; !taken {
			return p
		}
		p++
	}
}

// RemoveEdge deletes the edge between a and b.
func (s *Store) RemoveEdge(a, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := MakeEdgeKey(a, b)
	if _, exists := s.edges[key]; !exists {
		return fmt.Errorf("edge %s-%s: %w", key.A, key.B, ErrNotFound)
	}
	s.dropEdgeLocked(key)
	s.bumped()
	log.Infof("topology: removed edge %s-%s", key.A, key.B)
	return nil
}

func (s *Store) dropEdgeLocked(key EdgeKey) {
	delete(s.edges, key)
	if m, ok := s.adj[key.A]; ok {
		delete(m, key.B)
	}
	if m, ok := s.adj[key.B]; ok {
		delete(m, key.A)
	}
	if na, ok := s.nodes[key.A]; ok {
		unwirePort(na, key.B)
	}
	if nb, ok := s.nodes[key.B]; ok {
		unwirePort(nb, key.A)
	}
}

func unwirePort(n *Node, neighbor string) {
	if n.Kind == KindSwitch {
		for p, peer := range n.Ports {
			if peer.NodeID == neighbor {
				delete(n.Ports, p)
			}
		}
	} else if n.AttachedSwitch == neighbor {
		n.AttachedSwitch = ""
		n.AttachedPort = 0
	}
}

// UpdateUtilization sets the current utilization on an edge.
func (s *Store) UpdateUtilization(a, b string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edge, exists := s.edges[MakeEdgeKey(a, b)]
	if !exists {
		return fmt.Errorf("edge %s-%s: %w", a, b, ErrNotFound)
	}
	edge.Utilization = value
	s.bumped()
	return nil
}

// UpdateStats replaces the raw counters on an edge.
func (s *Store) UpdateStats(a, b string, stats LinkStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edge, exists := s.edges[MakeEdgeKey(a, b)]
	if !exists {
		return fmt.Errorf("edge %s-%s: %w", a, b, ErrNotFound)
	}
	edge.Stats = stats
	s.bumped()
	return nil
}

// SetHealth transitions the health state of an edge.
func (s *Store) SetHealth(a, b string, h Health) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edge, exists := s.edges[MakeEdgeKey(a, b)]
	if !exists {
		return fmt.Errorf("edge %s-%s: %w", a, b, ErrNotFound)
	}
	old := edge.Health
	edge.Health = h
	s.bumped()
	log.Infof("topology: edge %s-%s health %s -> %s", edge.Key.A, edge.Key.B, old, h)
	return nil
}

// ApplyFailures marks every edge of a finalized failure sequence as Failed in
// one exclusive scope with a single version bump, so path recomputation sees
// all removals at once.
func (s *Store) ApplyFailures(keys []EdgeKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if edge, exists := s.edges[key]; exists {
			edge.Health = HealthFailed
		}
	}
	s.bumped()
	log.Warnf("topology: applied failure of %d edge(s)", len(keys))
}

// EdgeHealth returns the current health of an edge.
func (s *Store) EdgeHealth(a, b string) (Health, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edge, exists := s.edges[MakeEdgeKey(a, b)]
	if !exists {
		return HealthUp, fmt.Errorf("edge %s-%s: %w", a, b, ErrNotFound)
	}
	return edge.Health, nil
}

// AddSwitch handles a feature-negotiation event: the switch and its port list
// become known. Idempotent for an already-known switch.
func (s *Store) AddSwitch(id string, ports []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.nodes[id]; ok {
		if existing.Kind != KindSwitch {
			return fmt.Errorf("node %s is a %s: %w", id, existing.Kind, ErrConflict)
		}
		return nil
	}
	portMap := make(map[int]PortPeer, len(ports))
	s.nodes[id] = &Node{ID: id, Kind: KindSwitch, Ports: portMap}
	s.adj[id] = make(map[string]EdgeKey)
	s.bumped()
	log.Infof("topology: switch %s connected with %d port(s)", id, len(ports))
	return nil
}

// LearnHost records an observed (MAC, switch, port) tuple from the
// packet-ingestion collaborator. The host node and its access edge are
// created once; repeat observations are no-ops.
func (s *Store) LearnHost(mac, switchID string, port int, capacity float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.nodes {
		if n.Kind == KindHost && n.MAC == mac {
			return n.ID, nil
		}
	}
	sw, ok := s.nodes[switchID]
	if !ok || sw.Kind != KindSwitch {
		return "", fmt.Errorf("switch %s: %w", switchID, ErrNotFound)
	}

	if capacity <= 0 {
		capacity = defaultAccessCapacity
	}
	hostID := "host_" + sanitizeMAC(mac)
	s.nodes[hostID] = &Node{ID: hostID, Kind: KindHost, MAC: mac}
	s.adj[hostID] = make(map[string]EdgeKey)
	if err := s.addEdgeLocked(switchID, port, hostID, -1, capacity); err != nil {
		delete(s.nodes, hostID)
		delete(s.adj, hostID)
		return "", err
	}
	log.Infof("topology: host %s (%s) attached to switch %s port %d", hostID, mac, switchID, port)
	return hostID, nil
}

// Access links default to 1 Gbps unless discovery says otherwise.
const defaultAccessCapacity = 1000.0

func sanitizeMAC(mac string) string {
	out := make([]byte, 0, len(mac))
	for i := 0; i < len(mac); i++ {
		if mac[i] != ':' {
			out = append(out, mac[i])
		}
	}
	return string(out)
}

// ResolvePort maps a (switch, port) pair from a port-status event to the edge
// it belongs to.
func (s *Store) ResolvePort(switchID string, port int) (EdgeKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[switchID]
	if !ok || n.Kind != KindSwitch {
		return EdgeKey{}, false
	}
	peer, ok := n.Ports[port]
	if !ok {
		return EdgeKey{}, false
	}
	key := MakeEdgeKey(switchID, peer.NodeID)
	_, exists := s.edges[key]
	return key, exists
}

// Version returns the current topology version.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
