package topology

import "errors"

var (
	// ErrNotFound is returned when a referenced node or edge does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a node or edge with the same identity already exists.
	ErrConflict = errors.New("already exists")
)

// NodeKind distinguishes forwarding elements from attached endpoints.
type NodeKind int

const (
	KindSwitch NodeKind = iota
	KindHost
)

func (k NodeKind) String() string {
	switch k {
	case KindSwitch:
		return "switch"
	case KindHost:
		return "host"
	default:
		return "unknown"
	}
}

// Health is the per-edge state machine driven by the failure manager:
// Up -> Degraded -> Failed -> Recovering -> Up.
type Health int

const (
	HealthUp Health = iota
	HealthDegraded
	HealthFailed
	HealthRecovering
)

func (h Health) String() string {
	switch h {
	case HealthUp:
		return "Up"
	case HealthDegraded:
		return "Degraded"
	case HealthFailed:
		return "Failed"
	case HealthRecovering:
		return "Recovering"
	default:
		return "Unknown"
	}
}

// Usable reports whether routing may place traffic on an edge in this state.
// Degraded edges still carry traffic; Failed and Recovering edges do not.
func (h Health) Usable() bool {
	return h == HealthUp || h == HealthDegraded
}

// PortPeer records what the far side of a switch port connects to.
type PortPeer struct {
	NodeID string
	Port   int
}

// Node is a switch or a host in the topology.
// Switches carry a local-port wiring map; hosts carry their attachment point.
type Node struct {
	ID   string
	Kind NodeKind
	MAC  string // hosts only

	Ports map[int]PortPeer // switches: local port -> (neighbor, neighbor port)

	AttachedSwitch string // hosts: owning switch
	AttachedPort   int    // hosts: port on the owning switch
}

func (n *Node) clone() *Node {
	c := *n
	if n.Ports != nil {
		c.Ports = make(map[int]PortPeer, len(n.Ports))
		for p, peer := range n.Ports {
			c.Ports[p] = peer
		}
	}
	return &c
}

// EdgeKey is the canonical identity of an undirected edge: A < B.
type EdgeKey struct {
	A, B string
}

// MakeEdgeKey canonicalizes an endpoint pair.
func MakeEdgeKey(a, b string) EdgeKey {
	if b < a {
		a, b = b, a
	}
	return EdgeKey{A: a, B: b}
}

// LinkStats are the raw counters pulled from the switch-session collaborator.
type LinkStats struct {
	RxPackets uint64
	TxPackets uint64
	RxBytes   uint64
	TxBytes   uint64
	RxErrors  uint64
	TxErrors  uint64
}

// ErrorRate is the fraction of errored packets over total packets.
func (s LinkStats) ErrorRate() float64 {
	total := s.RxPackets + s.TxPackets
	if total == 0 {
		return 0
	}
	return float64(s.RxErrors+s.TxErrors) / float64(total)
}

// Edge is an undirected link. Capacity and Utilization are in Mbps.
type Edge struct {
	Key         EdgeKey
	Capacity    float64
	Utilization float64
	Health      Health
	Stats       LinkStats
}

// Available is the remaining headroom on the edge, clamped at zero.
func (e *Edge) Available() float64 {
	avail := e.Capacity - e.Utilization
	if avail < 0 {
		return 0
	}
	return avail
}

func (e *Edge) clone() *Edge {
	c := *e
	return &c
}
