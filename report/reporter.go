// Package report is the read-only adapter consumed by CLI and visualization
// collaborators. It only reads snapshots and flow records; rendering
// technology behind it can be swapped freely.
package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"controlplane/policy"
	"controlplane/routing"
	"controlplane/topology"
)

// Reporter answers topology, flow, and statistics queries.
type Reporter struct {
	store *topology.Store
	flows *policy.FlowTable
	opts  routing.Options
}

func NewReporter(store *topology.Store, flows *policy.FlowTable, opts routing.Options) *Reporter {
	return &Reporter{store: store, flows: flows, opts: opts}
}

// Topology returns a full snapshot of the graph.
func (r *Reporter) Topology() *topology.Snapshot {
	return r.store.Snapshot()
}

// Flows returns all flow records (active, backup, critical, down).
func (r *Reporter) Flows() []*policy.Flow {
	return r.flows.List()
}

// LinkStat is one row of the per-edge statistics view.
type LinkStat struct {
	Edge        topology.EdgeKey
	Capacity    float64
	Utilization float64
	Health      topology.Health
	Stats       topology.LinkStats
}

// LinkStats returns per-edge capacity, utilization, health, and counters in
// deterministic order.
func (r *Reporter) LinkStats() []LinkStat {
	snap := r.store.Snapshot()
	keys := snap.EdgeKeys()
	out := make([]LinkStat, 0, len(keys))
	for _, key := range keys {
		e := snap.Edges[key]
		out = append(out, LinkStat{
			Edge:        key,
			Capacity:    e.Capacity,
			Utilization: e.Utilization,
			Health:      e.Health,
			Stats:       e.Stats,
		})
	}
	return out
}

// ShortestPath resolves host MACs and returns the current route between them.
func (r *Reporter) ShortestPath(srcMAC, dstMAC string) ([]string, error) {
	snap := r.store.Snapshot()
	src, dst, err := resolve(snap, srcMAC, dstMAC)
	if err != nil {
		return nil, err
	}
	return routing.ShortestPath(snap, src, dst, r.opts)
}

// AllShortestPaths returns up to k routes between two hosts.
func (r *Reporter) AllShortestPaths(srcMAC, dstMAC string, k int) ([]routing.Path, error) {
	snap := r.store.Snapshot()
	src, dst, err := resolve(snap, srcMAC, dstMAC)
	if err != nil {
		return nil, err
	}
	return routing.KShortestPaths(snap, src, dst, k, r.opts)
}

// PathMetrics computes metrics for an explicit path.
func (r *Reporter) PathMetrics(path []string) (routing.PathMetrics, error) {
	return routing.Metrics(r.store.Snapshot(), path)
}

func resolve(snap *topology.Snapshot, srcMAC, dstMAC string) (string, string, error) {
	src, ok := snap.HostByMAC(srcMAC)
	if !ok {
		return "", "", fmt.Errorf("source host %s: %w", srcMAC, topology.ErrNotFound)
	}
	dst, ok := snap.HostByMAC(dstMAC)
	if !ok {
		return "", "", fmt.Errorf("destination host %s: %w", dstMAC, topology.ErrNotFound)
	}
	return src.ID, dst.ID, nil
}

// ProcessStats reports the controller's own resource usage.
type ProcessStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	Goroutines int     `json:"-"`
}

// ProcessStats samples CPU and memory of the controller process.
func (r *Reporter) ProcessStats() (ProcessStats, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ProcessStats{}, fmt.Errorf("reading process stats: %w", err)
	}
	var out ProcessStats
	if cpu, err := proc.CPUPercent(); err == nil {
		out.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		out.RSSBytes = mem.RSS
	}
	return out, nil
}

// FormatPath renders a path the way the operator surface prints routes.
func FormatPath(path []string) string {
	return strings.Join(path, " -> ")
}
