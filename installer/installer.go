// Package installer defines the interface to the flow-installation
// collaborator: the component that programs concrete flow entries into
// switches. The control-plane core emits requests fire-and-forget; delivery
// failures drive bounded retries, never a blocking wait inside the core.
package installer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInstallFailure is returned when the external switch rejected a flow
// program after all retries.
var ErrInstallFailure = errors.New("flow install failure")

// Op is the kind of flow-table change requested.
type Op int

const (
	OpAdd Op = iota
	OpModify
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// Match carries the match criteria for a flow entry.
type Match struct {
	SrcMAC string
	DstMAC string
	SrcIP  string
	DstIP  string
}

// Action is one entry of the ordered action list.
type Action struct {
	OutputPort   int
	DSCPMark     int // 0 = no marking; 46 = expedited forwarding
	RateLimitKbs int // 0 = no rate limit
}

// Request is a single flow-programming instruction for one switch.
type Request struct {
	Op          Op
	Switch      string
	Match       Match
	Actions     []Action
	Priority    int
	Weight      float64 // load-balancing share, 0 when not split
	IdleTimeout time.Duration
	HardTimeout time.Duration
}

func (r Request) String() string {
	return fmt.Sprintf("%s sw=%s %s->%s prio=%d actions=%d weight=%.3f",
		r.Op, r.Switch, r.Match.SrcMAC, r.Match.DstMAC, r.Priority, len(r.Actions), r.Weight)
}

// Installer is the external collaborator programming switches.
type Installer interface {
	Install(ctx context.Context, req Request) error
	// QueryFlowStats asks the collaborator to trigger a flow-statistics
	// pull for one switch; results arrive through the stats feed.
	QueryFlowStats(ctx context.Context, switchID string) error
}
