package policy

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"controlplane/installer"
	"controlplane/metrics"
	"controlplane/routing"
	"controlplane/topology"
)

// FlowsUsingEdges returns the keys of flows whose primary path crosses any of
// the given edges.
func (e *Engine) FlowsUsingEdges(keys []topology.EdgeKey) []FlowKey {
	set := make(map[topology.EdgeKey]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	var out []FlowKey
	for _, f := range e.flows.List() {
		if pathUsesAny(f.Primary, set) {
			out = append(out, f.Key)
		}
	}
	return out
}

// FlowKeys returns every flow key; recovery re-optimization considers all
// flows since a restored edge can improve any route.
func (e *Engine) FlowKeys() []FlowKey {
	flows := e.flows.List()
	out := make([]FlowKey, len(flows))
	for i, f := range flows {
		out[i] = f.Key
	}
	return out
}

func pathUsesAny(path []string, edges map[topology.EdgeKey]bool) bool {
	for i := 1; i < len(path); i++ {
		if edges[topology.MakeEdgeKey(path[i-1], path[i])] {
			return true
		}
	}
	return false
}

// ActivateBackup switches a critical flow onto its precomputed backup. The
// backup must still be valid on the snapshot; the caller falls back to
// Reroute when it is not.
func (e *Engine) ActivateBackup(snap *topology.Snapshot, key FlowKey) error {
	flow, ok := e.flows.Get(key)
	if !ok {
		return fmt.Errorf("flow %s: %w", key, topology.ErrNotFound)
	}
	if len(flow.Backup) == 0 || !snap.ValidPath(flow.Backup) {
		return fmt.Errorf("flow %s: %w: no valid backup", key, ErrBackupUnavailable)
	}

	e.flows.mutate(key, func(f *Flow) {
		f.Primary = f.Backup
		f.Backup = nil
		f.BackupVersion = 0
		f.State = FlowActive
		f.InstalledOn = mergeSwitches(f.InstalledOn, switchesOn(snap, f.Primary))
	})
	// Promote the pre-installed backup entries to full priority.
	e.out.SubmitAll(e.pathRequests(snap, key, flow.Backup, flow.Priority, installer.OpModify, 0))
	metrics.BackupActivations.Inc()
	log.Warnf("policy: flow %s failed over to backup %v", key, flow.Backup)
	return nil
}

// Reroute recomputes a flow's primary from the snapshot and installs it.
// With no route left the flow transitions to Down and the error is surfaced.
func (e *Engine) Reroute(snap *topology.Snapshot, key FlowKey) error {
	flow, ok := e.flows.Get(key)
	if !ok {
		return fmt.Errorf("flow %s: %w", key, topology.ErrNotFound)
	}

	path, err := e.shortestPath(snap, flow.SrcNode, flow.DstNode)
	if err != nil {
		e.flows.mutate(key, func(f *Flow) {
			f.State = FlowDown
			f.Primary = nil
			f.Backup = nil
			f.BackupVersion = 0
		})
		log.Errorf("policy: flow %s is down: %v", key, err)
		return fmt.Errorf("flow %s: %w", key, err)
	}

	e.flows.mutate(key, func(f *Flow) {
		f.Primary = path
		f.State = FlowActive
		f.InstalledOn = mergeSwitches(f.InstalledOn, switchesOn(snap, path))
	})
	e.out.SubmitAll(e.pathRequests(snap, key, path, flow.Priority, installer.OpAdd, 0))
	metrics.Reroutes.Inc()
	log.Infof("policy: rerouted flow %s over %v", key, path)

	if flow.Critical {
		if err := e.EnsureBackup(key); err != nil && !errors.Is(err, ErrBackupUnavailable) {
			return err
		}
	}
	return nil
}

// RepairIfStale recomputes the primary when it references removed or failed
// edges. Valid paths are left alone.
func (e *Engine) RepairIfStale(snap *topology.Snapshot, key FlowKey) error {
	flow, ok := e.flows.Get(key)
	if !ok {
		return fmt.Errorf("flow %s: %w", key, topology.ErrNotFound)
	}
	if flow.State == FlowActive && snap.ValidPath(flow.Primary) {
		return nil
	}
	return e.Reroute(snap, key)
}

// Reoptimize re-evaluates a flow after an edge recovery and switches back
// only when the recomputed route is strictly better (fewer hops, or higher
// bottleneck capacity). Superseded entries are deleted from switches that
// drop off the path.
func (e *Engine) Reoptimize(snap *topology.Snapshot, key FlowKey) error {
	flow, ok := e.flows.Get(key)
	if !ok {
		return fmt.Errorf("flow %s: %w", key, topology.ErrNotFound)
	}
	if flow.State == FlowDown || len(flow.Primary) < 2 {
		// A down flow has nothing to compare against; just try to route it.
		return e.Reroute(snap, key)
	}

	candidate, err := routing.ShortestPath(snap, flow.SrcNode, flow.DstNode, e.routingOpts())
	if err != nil {
		return nil // current path stands
	}
	if samePath(candidate, flow.Primary) {
		return nil
	}
	candMetrics, err := routing.Metrics(snap, candidate)
	if err != nil {
		return nil
	}
	curMetrics, err := routing.Metrics(snap, flow.Primary)
	if err != nil {
		// Current path no longer measurable: treat as stale.
		return e.Reroute(snap, key)
	}
	if !routing.Better(candMetrics, curMetrics) {
		return nil
	}

	oldSwitches := switchesOn(snap, flow.Primary)
	newSwitches := switchesOn(snap, candidate)
	e.flows.mutate(key, func(f *Flow) {
		f.Primary = candidate
		f.InstalledOn = newSwitches
		f.State = FlowActive
	})
	e.out.SubmitAll(e.pathRequests(snap, key, candidate, flow.Priority, installer.OpAdd, 0))
	for _, sw := range diffSwitches(oldSwitches, newSwitches) {
		e.out.Submit(installer.Request{
			Op:     installer.OpDelete,
			Switch: sw,
			Match:  installer.Match{SrcMAC: key.Src, DstMAC: key.Dst},
		})
	}
	metrics.Reroutes.Inc()
	log.Infof("policy: flow %s switched back to better path %v", key, candidate)

	if flow.Critical {
		if err := e.EnsureBackup(key); err != nil && !errors.Is(err, ErrBackupUnavailable) {
			return err
		}
	}
	return nil
}

// PrepareBackups ensures backups exist for flows crossing a degraded edge.
func (e *Engine) PrepareBackups(edge topology.EdgeKey) {
	for _, key := range e.FlowsUsingEdges([]topology.EdgeKey{edge}) {
		if err := e.EnsureBackup(key); err != nil && !errors.Is(err, ErrBackupUnavailable) {
			log.Warnf("policy: backup preparation for %s failed: %v", key, err)
		}
	}
}

func diffSwitches(old, new []string) []string {
	keep := make(map[string]bool, len(new))
	for _, sw := range new {
		keep[sw] = true
	}
	var out []string
	for _, sw := range old {
		if !keep[sw] {
			out = append(out, sw)
		}
	}
	return out
}
