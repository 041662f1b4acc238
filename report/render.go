package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"controlplane/topology"
)

// RenderTopology writes the node and link tables for show_topology.
func (r *Reporter) RenderTopology(w io.Writer) {
	snap := r.Topology()

	nodes := tablewriter.NewWriter(w)
	nodes.SetHeader([]string{"Node", "Kind", "MAC", "Attached"})
	for _, id := range snap.NodeIDs() {
		n := snap.Nodes[id]
		attached := ""
		if n.Kind == topology.KindHost && n.AttachedSwitch != "" {
			attached = fmt.Sprintf("%s:%d", n.AttachedSwitch, n.AttachedPort)
		}
		nodes.Append([]string{n.ID, n.Kind.String(), n.MAC, attached})
	}
	nodes.Render()

	links := tablewriter.NewWriter(w)
	links.SetHeader([]string{"Link", "Capacity", "Utilization", "Health"})
	for _, key := range snap.EdgeKeys() {
		e := snap.Edges[key]
		links.Append([]string{
			key.A + " <-> " + key.B,
			fmt.Sprintf("%.1f", e.Capacity),
			fmt.Sprintf("%.1f", e.Utilization),
			e.Health.String(),
		})
	}
	links.Render()
}

// RenderFlows writes the flow table for show_flows.
func (r *Reporter) RenderFlows(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Flow", "Priority", "State", "Critical", "Primary", "Backup"})
	for _, f := range r.Flows() {
		table.Append([]string{
			f.Key.String(),
			strconv.Itoa(f.Priority),
			f.State.String(),
			strconv.FormatBool(f.Critical),
			FormatPath(f.Primary),
			FormatPath(f.Backup),
		})
	}
	table.Render()

	// Load-balanced flows additionally list their split.
	for _, f := range r.Flows() {
		if len(f.LBPaths) < 2 {
			continue
		}
		fmt.Fprintf(w, "flow %s split:\n", f.Key)
		for i, p := range f.LBPaths {
			fmt.Fprintf(w, "  %.3f  %s\n", f.Weights[i], FormatPath(p))
		}
	}
}

// RenderStats writes per-link counters for show_stats.
func (r *Reporter) RenderStats(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Link", "Health", "RX Pkts", "TX Pkts", "RX Bytes", "TX Bytes", "RX Err", "TX Err"})
	for _, ls := range r.LinkStats() {
		table.Append([]string{
			ls.Edge.A + " <-> " + ls.Edge.B,
			ls.Health.String(),
			strconv.FormatUint(ls.Stats.RxPackets, 10),
			strconv.FormatUint(ls.Stats.TxPackets, 10),
			strconv.FormatUint(ls.Stats.RxBytes, 10),
			strconv.FormatUint(ls.Stats.TxBytes, 10),
			strconv.FormatUint(ls.Stats.RxErrors, 10),
			strconv.FormatUint(ls.Stats.TxErrors, 10),
		})
	}
	table.Render()

	if ps, err := r.ProcessStats(); err == nil {
		fmt.Fprintf(w, "controller: cpu=%.1f%% rss=%d bytes\n", ps.CPUPercent, ps.RSSBytes)
	}
}
