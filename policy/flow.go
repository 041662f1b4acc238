package policy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"controlplane/metrics"
)

// ErrBackupUnavailable is a warning, not a failure: a critical flow could not
// get a disjoint or alternate backup and proceeds with its primary only.
var ErrBackupUnavailable = errors.New("backup unavailable")

// Priority tiers. Arbitrary intermediate integers (0-65535) are accepted;
// only these carry special meaning.
const (
	PriorityCritical = 300
	PriorityHigh     = 200
	PriorityNormal   = 100
	PriorityLow      = 50
)

// FlowState is the lifecycle state of a flow.
type FlowState int

const (
	FlowActive FlowState = iota
	FlowDown
	FlowAtRisk
)

func (s FlowState) String() string {
	switch s {
	case FlowActive:
		return "Active"
	case FlowDown:
		return "Down"
	case FlowAtRisk:
		return "AtRisk"
	default:
		return "Unknown"
	}
}

// FlowKey identifies a flow by its endpoint MAC pair.
type FlowKey struct {
	Src string
	Dst string
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%s -> %s", k.Src, k.Dst)
}

// Flow is the controller's record of one traffic flow.
type Flow struct {
	Key      FlowKey
	SrcNode  string // resolved host node IDs
	DstNode  string
	Priority int
	Critical bool
	State    FlowState

	Primary []string // active path, node IDs
	Backup  []string // precomputed alternate for critical flows
	// BackupVersion is the topology version the backup was computed
	// against; backup assurance is a no-op while it matches.
	BackupVersion uint64

	// LBPaths and Weights are set when the flow is split across paths.
	LBPaths [][]string
	Weights []float64

	InstalledOn []string // switches carrying entries, for cleanup

	CreatedAt     time.Time
	LastUpdatedAt time.Time
}

func (f *Flow) clone() *Flow {
	c := *f
	c.Primary = append([]string(nil), f.Primary...)
	c.Backup = append([]string(nil), f.Backup...)
	c.InstalledOn = append([]string(nil), f.InstalledOn...)
	c.Weights = append([]float64(nil), f.Weights...)
	if f.LBPaths != nil {
		c.LBPaths = make([][]string, len(f.LBPaths))
		for i, p := range f.LBPaths {
			c.LBPaths[i] = append([]string(nil), p...)
		}
	}
	return &c
}

// FlowTable holds all flow records. Guarded by one RWMutex; mutation happens
// through the policy engine and the failure manager only.
type FlowTable struct {
	mu    sync.RWMutex
	flows map[FlowKey]*Flow
}

func NewFlowTable() *FlowTable {
	return &FlowTable{flows: make(map[FlowKey]*Flow)}
}

func (t *FlowTable) upsert(f *Flow) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f.LastUpdatedAt = time.Now()
	if existing, ok := t.flows[f.Key]; ok {
		f.CreatedAt = existing.CreatedAt
	} else if f.CreatedAt.IsZero() {
		f.CreatedAt = f.LastUpdatedAt
	}
	t.flows[f.Key] = f
	t.updateGaugesLocked()
}

// Get returns a copy of the flow record.
func (t *FlowTable) Get(key FlowKey) (*Flow, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.flows[key]
	if !ok {
		return nil, false
	}
	return f.clone(), true
}

// List returns copies of all flows ordered by key for deterministic output.
func (t *FlowTable) List() []*Flow {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Flow, 0, len(t.flows))
	for _, f := range t.flows {
		out = append(out, f.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Src != out[j].Key.Src {
			return out[i].Key.Src < out[j].Key.Src
		}
		return out[i].Key.Dst < out[j].Key.Dst
	})
	return out
}

// Delete removes a flow record.
func (t *FlowTable) Delete(key FlowKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.flows[key]; !ok {
		return false
	}
	delete(t.flows, key)
	t.updateGaugesLocked()
	log.Infof("policy: removed flow %s", key)
	return true
}

// mutate applies fn to the live record under the write lock.
func (t *FlowTable) mutate(key FlowKey, fn func(*Flow)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.flows[key]
	if !ok {
		return false
	}
	fn(f)
	f.LastUpdatedAt = time.Now()
	t.updateGaugesLocked()
	return true
}

func (t *FlowTable) updateGaugesLocked() {
	var active, down int
	for _, f := range t.flows {
		switch f.State {
		case FlowDown:
			down++
		default:
			active++
		}
	}
	metrics.FlowsActive.Set(float64(active))
	metrics.FlowsDown.Set(float64(down))
}

// Count returns the number of flows.
func (t *FlowTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.flows)
}
