package failover

import (
	"fmt"

	"controlplane/topology"
)

// EventKind classifies the inputs the failure manager consumes: port and
// switch events from the switch-session collaborator, host observations from
// packet ingestion, the periodic stats feed, and operator fault injection.
type EventKind int

const (
	EventSwitchJoin EventKind = iota
	EventHostSeen
	EventPortDown
	EventPortUp
	EventPortModified
	EventLinkStats
	EventSimulateFailure
	EventLinkRestore

	// eventRecoveryConfirm fires internally after the stability interval.
	eventRecoveryConfirm
)

func (k EventKind) String() string {
	switch k {
	case EventSwitchJoin:
		return "switch_join"
	case EventHostSeen:
		return "host_seen"
	case EventPortDown:
		return "port_down"
	case EventPortUp:
		return "port_up"
	case EventPortModified:
		return "port_modified"
	case EventLinkStats:
		return "link_stats"
	case EventSimulateFailure:
		return "simulate_failure"
	case EventLinkRestore:
		return "link_restore"
	case eventRecoveryConfirm:
		return "recovery_confirm"
	default:
		return "unknown"
	}
}

// Event is one unit of work for the processing loop. Fields are populated
// according to Kind.
type Event struct {
	Kind EventKind

	Switch string
	Port   int
	Ports  []int // switch join: advertised port list

	MAC string // host seen

	EdgeA, EdgeB string // explicit edge reference (simulate/restore/stats)

	Stats       topology.LinkStats
	Utilization float64 // Mbps, from the stats feed
	TrafficLost bool    // stats feed flagged a counter flatline
}

func (e Event) String() string {
	switch e.Kind {
	case EventPortDown, EventPortUp, EventPortModified:
		return fmt.Sprintf("%s sw=%s port=%d", e.Kind, e.Switch, e.Port)
	case EventSimulateFailure, EventLinkRestore, EventLinkStats:
		return fmt.Sprintf("%s %s-%s", e.Kind, e.EdgeA, e.EdgeB)
	case EventHostSeen:
		return fmt.Sprintf("%s mac=%s sw=%s port=%d", e.Kind, e.MAC, e.Switch, e.Port)
	default:
		return e.Kind.String()
	}
}
