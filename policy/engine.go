package policy

import (
	"errors"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"controlplane/installer"
	"controlplane/routing"
	"controlplane/topology"
)

// dscpExpedited is set on flows at or above PriorityHigh.
const dscpExpedited = 46

// Options configure the policy engine.
type Options struct {
	// Algorithm is the registry name used for multi-path computation.
	Algorithm string
	// Weighting is passed through to the path computer.
	Weighting routing.Weighting
	// DefaultK bounds backup-candidate search.
	DefaultK int
}

// Engine derives per-flow policy and turns path decisions into flow-install
// instructions. It reads topology through snapshots only.
type Engine struct {
	store    *topology.Store
	cache    *routing.Cache
	registry *routing.Registry
	out      *installer.Dispatcher
	flows    *FlowTable
	opts     Options
}

func NewEngine(store *topology.Store, cache *routing.Cache, registry *routing.Registry, out *installer.Dispatcher, opts Options) *Engine {
	if opts.Algorithm == "" {
		opts.Algorithm = routing.AlgorithmKShortest
	}
	if opts.DefaultK <= 0 {
		opts.DefaultK = 3
	}
	return &Engine{
		store:    store,
		cache:    cache,
		registry: registry,
		out:      out,
		flows:    NewFlowTable(),
		opts:     opts,
	}
}

// Table exposes the flow table to the failure manager and reporting adapter.
func (e *Engine) Table() *FlowTable {
	return e.flows
}

func (e *Engine) routingOpts() routing.Options {
	return routing.Options{Weighting: e.opts.Weighting}
}

// shortestPath consults the path cache before running Dijkstra.
func (e *Engine) shortestPath(snap *topology.Snapshot, src, dst string) ([]string, error) {
	if e.cache != nil {
		if path, ok := e.cache.Get(src, dst, snap.Version); ok {
			return path, nil
		}
	}
	path, err := routing.ShortestPath(snap, src, dst, e.routingOpts())
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Put(src, dst, snap.Version, path)
	}
	return path, nil
}

func (e *Engine) resolveHosts(snap *topology.Snapshot, srcMAC, dstMAC string) (*topology.Node, *topology.Node, error) {
	src, ok := snap.HostByMAC(srcMAC)
	if !ok {
		return nil, nil, fmt.Errorf("source host %s: %w", srcMAC, topology.ErrNotFound)
	}
	dst, ok := snap.HostByMAC(dstMAC)
	if !ok {
		return nil, nil, fmt.Errorf("destination host %s: %w", dstMAC, topology.ErrNotFound)
	}
	return src, dst, nil
}

// InjectFlow creates a flow between two hosts and installs its primary path.
// A flow with no route is recorded in the Down state and the NoPath error is
// returned; the flow is never silently dropped.
func (e *Engine) InjectFlow(srcMAC, dstMAC string, priority int) (*Flow, error) {
	snap := e.store.Snapshot()
	src, dst, err := e.resolveHosts(snap, srcMAC, dstMAC)
	if err != nil {
		return nil, err
	}

	flow := &Flow{
		Key:      FlowKey{Src: srcMAC, Dst: dstMAC},
		SrcNode:  src.ID,
		DstNode:  dst.ID,
		Priority: priority,
	}

	path, err := e.shortestPath(snap, src.ID, dst.ID)
	if err != nil {
		flow.State = FlowDown
		e.flows.upsert(flow)
		log.Errorf("policy: flow %s has no route: %v", flow.Key, err)
		return flow.clone(), fmt.Errorf("flow %s: %w", flow.Key, err)
	}

	flow.Primary = path
	flow.State = FlowActive
	flow.InstalledOn = switchesOn(snap, path)
	e.flows.upsert(flow)
	e.out.SubmitAll(e.pathRequests(snap, flow.Key, path, priority, installer.OpAdd, 0))
	log.Infof("policy: injected flow %s priority=%d path=%v", flow.Key, priority, path)

	if priority > PriorityHigh {
		if err := e.EnsureBackup(flow.Key); err != nil && !errors.Is(err, ErrBackupUnavailable) {
			return flow.clone(), err
		}
	}
	f, _ := e.flows.Get(flow.Key)
	return f, nil
}

// DeleteFlow removes a flow and emits delete instructions for its entries.
func (e *Engine) DeleteFlow(key FlowKey) error {
	flow, ok := e.flows.Get(key)
	if !ok {
		return fmt.Errorf("flow %s: %w", key, topology.ErrNotFound)
	}
	for _, sw := range flow.InstalledOn {
		e.out.Submit(installer.Request{
			Op:     installer.OpDelete,
			Switch: sw,
			Match:  installer.Match{SrcMAC: key.Src, DstMAC: key.Dst},
		})
	}
	e.flows.Delete(key)
	return nil
}

// SetTrafficPriority updates a flow's priority and reinstalls its entries.
// Raising the priority above PriorityHigh invokes backup assurance before
// returning.
func (e *Engine) SetTrafficPriority(key FlowKey, priority int) error {
	flow, ok := e.flows.Get(key)
	if !ok {
		return fmt.Errorf("flow %s: %w", key, topology.ErrNotFound)
	}
	e.flows.mutate(key, func(f *Flow) {
		f.Priority = priority
	})
	if flow.State == FlowActive && len(flow.Primary) > 1 {
		snap := e.store.Snapshot()
		e.out.SubmitAll(e.pathRequests(snap, key, flow.Primary, priority, installer.OpModify, 0))
	}
	log.Infof("policy: flow %s priority set to %d", key, priority)

	if priority > PriorityHigh {
		if err := e.EnsureBackup(key); err != nil && !errors.Is(err, ErrBackupUnavailable) {
			return err
		}
	}
	return nil
}

// SetCriticalFlow marks or unmarks a flow as critical. Critical flows get a
// precomputed backup path; when none exists the flow degrades to best-effort
// (AtRisk) and the install proceeds on the primary alone.
func (e *Engine) SetCriticalFlow(key FlowKey, critical bool) error {
	if _, ok := e.flows.Get(key); !ok {
		return fmt.Errorf("flow %s: %w", key, topology.ErrNotFound)
	}
	e.flows.mutate(key, func(f *Flow) {
		f.Critical = critical
		if !critical {
			f.Backup = nil
			f.BackupVersion = 0
			if f.State == FlowAtRisk {
				f.State = FlowActive
			}
		}
	})
	if !critical {
		log.Infof("policy: flow %s unmarked critical", key)
		return nil
	}
	log.Infof("policy: flow %s marked critical", key)
	err := e.EnsureBackup(key)
	if errors.Is(err, ErrBackupUnavailable) {
		log.Warnf("policy: %v", err)
		return err
	}
	return err
}

// EnsureBackup computes and installs a backup path for a flow. The choice
// prefers an edge-disjoint alternate, then one avoiding the primary's
// interior nodes, then any distinct simple path. Idempotent: a backup that
// is still valid at the current topology version is left untouched.
func (e *Engine) EnsureBackup(key FlowKey) error {
	flow, ok := e.flows.Get(key)
	if !ok {
		return fmt.Errorf("flow %s: %w", key, topology.ErrNotFound)
	}
	if len(flow.Primary) < 2 {
		return fmt.Errorf("flow %s: %w: no primary path", key, ErrBackupUnavailable)
	}

	snap := e.store.Snapshot()
	if len(flow.Backup) > 0 && flow.BackupVersion == snap.Version && snap.ValidPath(flow.Backup) {
		return nil
	}

	backup := e.computeBackup(snap, flow.SrcNode, flow.DstNode, flow.Primary)
	if backup == nil {
		e.flows.mutate(key, func(f *Flow) {
			f.Backup = nil
			f.State = FlowAtRisk
		})
		return fmt.Errorf("flow %s: %w", key, ErrBackupUnavailable)
	}

	e.flows.mutate(key, func(f *Flow) {
		f.Backup = backup
		f.BackupVersion = snap.Version
		if f.State == FlowAtRisk {
			f.State = FlowActive
		}
		f.InstalledOn = mergeSwitches(f.InstalledOn, switchesOn(snap, backup))
	})
	// Backups are pre-installed at reduced priority so failover is a
	// priority flip, not a recomputation.
	e.out.SubmitAll(e.pathRequests(snap, key, backup, flow.Priority-10, installer.OpAdd, 0))
	log.Infof("policy: flow %s backup path %v", key, backup)
	return nil
}

// computeBackup walks the disjointness preference ladder.
func (e *Engine) computeBackup(snap *topology.Snapshot, src, dst string, primary []string) []string {
	// Edge-disjoint: ban every primary edge.
	avoidEdges := make(map[topology.EdgeKey]bool, len(primary)-1)
	for i := 1; i < len(primary); i++ {
		avoidEdges[topology.MakeEdgeKey(primary[i-1], primary[i])] = true
	}
	opts := e.routingOpts()
	opts.AvoidEdges = avoidEdges
	if path, err := routing.ShortestPath(snap, src, dst, opts); err == nil {
		return path
	}

	// Node-disjoint on interior nodes.
	avoidNodes := make(map[string]bool)
	for _, id := range primary[1 : len(primary)-1] {
		avoidNodes[id] = true
	}
	opts = e.routingOpts()
	opts.AvoidNodes = avoidNodes
	if path, err := routing.ShortestPath(snap, src, dst, opts); err == nil && !samePath(path, primary) {
		return path
	}

	// Any alternate simple path distinct from the primary.
	paths, err := routing.KShortestPaths(snap, src, dst, e.opts.DefaultK+1, e.routingOpts())
	if err != nil {
		return nil
	}
	for _, p := range paths {
		if !samePath(p.Nodes, primary) {
			return p.Nodes
		}
	}
	return nil
}

// ImplementLoadBalancing splits traffic between two hosts over up to numPaths
// routes. Each path's weight is its available bottleneck capacity divided by
// its length, normalized so the weights sum to 1. Splitting mechanics
// (hashing) belong to the flow installer.
func (e *Engine) ImplementLoadBalancing(srcMAC, dstMAC string, numPaths int) ([]routing.Path, []float64, error) {
	if numPaths < 1 {
		return nil, nil, fmt.Errorf("num_paths must be >= 1, got %d", numPaths)
	}
	snap := e.store.Snapshot()
	src, dst, err := e.resolveHosts(snap, srcMAC, dstMAC)
	if err != nil {
		return nil, nil, err
	}

	alg, err := e.registry.Get(e.opts.Algorithm)
	if err != nil {
		return nil, nil, err
	}
	paths, err := alg.ComputePaths(snap, src.ID, dst.ID, numPaths, e.routingOpts())
	if err != nil {
		return nil, nil, err
	}
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("%s -> %s: %w", srcMAC, dstMAC, routing.ErrNoPath)
	}

	weights := make([]float64, len(paths))
	var total float64
	for i, p := range paths {
		m, merr := routing.Metrics(snap, p.Nodes)
		if merr != nil {
			continue
		}
		weights[i] = m.AvailableCapacity / float64(len(p.Nodes))
		total += weights[i]
	}
	if total <= 0 {
		// Saturated or zero-capacity paths: split evenly.
		for i := range weights {
			weights[i] = 1 / float64(len(weights))
		}
	} else {
		for i := range weights {
			weights[i] /= total
		}
	}

	key := FlowKey{Src: srcMAC, Dst: dstMAC}
	priority := PriorityNormal
	if existing, ok := e.flows.Get(key); ok {
		priority = existing.Priority
	}

	var installed []string
	for i, p := range paths {
		installed = mergeSwitches(installed, switchesOn(snap, p.Nodes))
		e.out.SubmitAll(e.pathRequests(snap, key, p.Nodes, priority, installer.OpAdd, weights[i]))
	}

	flow := &Flow{
		Key:         key,
		SrcNode:     src.ID,
		DstNode:     dst.ID,
		Priority:    priority,
		State:       FlowActive,
		Primary:     paths[0].Nodes,
		InstalledOn: installed,
	}
	flow.LBPaths = make([][]string, len(paths))
	for i, p := range paths {
		flow.LBPaths[i] = p.Nodes
	}
	flow.Weights = weights
	if existing, ok := e.flows.Get(key); ok {
		flow.Critical = existing.Critical
		flow.Backup = existing.Backup
		flow.BackupVersion = existing.BackupVersion
	}
	e.flows.upsert(flow)
	log.Infof("policy: load balancing %s across %d path(s), weights=%v", key, len(paths), weights)
	return paths, weights, nil
}

// pathRequests builds one install instruction per switch hop on the path.
func (e *Engine) pathRequests(snap *topology.Snapshot, key FlowKey, path []string, priority int, op installer.Op, weight float64) []installer.Request {
	if priority < 0 {
		priority = 0
	}
	var reqs []installer.Request
	for i := 0; i < len(path)-1; i++ {
		node, ok := snap.Nodes[path[i]]
		if !ok || node.Kind != topology.KindSwitch {
			continue
		}
		port, ok := snap.PortTo(path[i], path[i+1])
		if !ok {
			log.Warnf("policy: no port from %s to %s, skipping hop", path[i], path[i+1])
			continue
		}
		action := installer.Action{OutputPort: port}
		if priority >= PriorityHigh {
			action.DSCPMark = dscpExpedited
		}
		reqs = append(reqs, installer.Request{
			Op:       op,
			Switch:   path[i],
			Match:    installer.Match{SrcMAC: key.Src, DstMAC: key.Dst},
			Actions:  []installer.Action{action},
			Priority: priority,
			Weight:   weight,
		})
	}
	return reqs
}

func switchesOn(snap *topology.Snapshot, path []string) []string {
	var out []string
	for _, id := range path {
		if n, ok := snap.Nodes[id]; ok && n.Kind == topology.KindSwitch {
			out = append(out, id)
		}
	}
	return out
}

func mergeSwitches(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, sw := range existing {
		seen[sw] = true
	}
	for _, sw := range extra {
		if !seen[sw] {
			seen[sw] = true
			out = append(out, sw)
		}
	}
	return out
}

func samePath(a, b []string) bool {
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

// weightSumTolerance documents the normalization guarantee for tests.
const weightSumTolerance = 1e-6

// WeightsNormalized reports whether weights sum to 1 within tolerance.
func WeightsNormalized(weights []float64) bool {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	return math.Abs(sum-1) <= weightSumTolerance
}
