package failover

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"

	"controlplane/metrics"
	"controlplane/policy"
	"controlplane/topology"
)

// Config tunes failure handling. The correlation window and stability
// interval are policy, not fixed constants.
type Config struct {
	// CorrelationWindow merges failures arriving close together into one
	// sequence; it re-arms on every new failure and the sequence finalizes
	// when it elapses quietly.
	CorrelationWindow time.Duration
	// StabilityInterval guards recovery against flapping: a recovering
	// edge returns to service only after this long without errors.
	StabilityInterval time.Duration
	// ErrorRateThreshold degrades an edge (default 0.01 = 1%).
	ErrorRateThreshold float64
	// UtilizationThreshold degrades an edge when utilization exceeds this
	// fraction of capacity.
	UtilizationThreshold float64
	// PoolSize bounds concurrent per-flow recomputation.
	PoolSize int
	// QueueSize is the event queue depth.
	QueueSize int
}

func (c *Config) applyDefaults() {
	if c.CorrelationWindow <= 0 {
		c.CorrelationWindow = 500 * time.Millisecond
	}
	if c.StabilityInterval <= 0 {
		c.StabilityInterval = 2 * time.Second
	}
	if c.ErrorRateThreshold <= 0 {
		c.ErrorRateThreshold = 0.01
	}
	if c.UtilizationThreshold <= 0 {
		c.UtilizationThreshold = 0.9
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 32
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
}

// Sequence is a correlated group of link failures handled as one atomic
// reconfiguration unit.
type Sequence struct {
	ID        uuid.UUID
	StartedAt time.Time
	Edges     []topology.EdgeKey
	seen      map[topology.EdgeKey]bool
}

func newSequence() *Sequence {
	return &Sequence{
		ID:        uuid.New(),
		StartedAt: time.Now(),
		seen:      make(map[topology.EdgeKey]bool),
	}
}

func (s *Sequence) add(key topology.EdgeKey) bool {
	if s.seen[key] {
		return false
	}
	s.seen[key] = true
	s.Edges = append(s.Edges, key)
	return true
}

// Manager consumes link-state events, correlates concurrent failures, and
// drives rerouting through the policy engine. All mutation happens on the
// single consumer goroutine: a failure sequence runs to completion before the
// next event is dispatched, so no failure is ever handled against a
// partially-updated topology.
type Manager struct {
	store  *topology.Store
	engine *policy.Engine
	cfg    Config

	events   chan Event
	handlers map[EventKind]func(Event)

	seq    *Sequence
	window *time.Timer

	// recoveryDirty marks recovering edges that saw errors before their
	// stability interval elapsed.
	recoveryDirty map[topology.EdgeKey]bool

	pool *ants.Pool

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

func NewManager(store *topology.Store, engine *policy.Engine, cfg Config) (*Manager, error) {
	cfg.applyDefaults()
	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("failover: creating worker pool: %w", err)
	}
	m := &Manager{
		store:         store,
		engine:        engine,
		cfg:           cfg,
		events:        make(chan Event, cfg.QueueSize),
		recoveryDirty: make(map[topology.EdgeKey]bool),
		pool:          pool,
		stopped:       make(chan struct{}),
		done:          make(chan struct{}),
	}
	m.window = time.NewTimer(time.Hour)
	if !m.window.Stop() {
		<-m.window.C
	}
	// Explicit dispatch table; handlers are plain methods registered once.
	m.handlers = map[EventKind]func(Event){
		EventSwitchJoin:      m.handleSwitchJoin,
		EventHostSeen:        m.handleHostSeen,
		EventPortDown:        m.handlePortDown,
		EventPortUp:          m.handlePortUp,
		EventPortModified:    m.handlePortModified,
		EventLinkStats:       m.handleLinkStats,
		EventSimulateFailure: m.handleSimulateFailure,
		EventLinkRestore:     m.handleLinkRestore,
		eventRecoveryConfirm: m.handleRecoveryConfirm,
	}
	return m, nil
}

// Enqueue submits an event for processing. Events queue behind any failure
// handling in progress; they never preempt it.
func (m *Manager) Enqueue(ev Event) {
	select {
	case <-m.stopped:
		log.Warnf("failover: manager stopped, dropping event %s", ev)
	case m.events <- ev:
	}
}

// Run is the single-consumer processing loop. It returns when ctx is
// cancelled; an in-flight failure sequence still runs to completion first.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			m.dispatch(ev)
		case <-m.window.C:
			m.finalizeSequence()
		}
	}
}

// Stop shuts the manager down after Run has returned.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopped)
	})
	<-m.done
	m.pool.Release()
}

func (m *Manager) dispatch(ev Event) {
	handler, ok := m.handlers[ev.Kind]
	if !ok {
		log.Warnf("failover: no handler for event %s", ev)
		return
	}
	log.Debugf("failover: dispatching %s", ev)
	handler(ev)
}

func (m *Manager) handleSwitchJoin(ev Event) {
	if err := m.store.AddSwitch(ev.Switch, ev.Ports); err != nil {
		log.Errorf("failover: switch join %s: %v", ev.Switch, err)
	}
}

func (m *Manager) handleHostSeen(ev Event) {
	if _, err := m.store.LearnHost(ev.MAC, ev.Switch, ev.Port, 0); err != nil {
		log.Warnf("failover: host %s on %s:%d: %v", ev.MAC, ev.Switch, ev.Port, err)
	}
}

func (m *Manager) handlePortDown(ev Event) {
	key, ok := m.store.ResolvePort(ev.Switch, ev.Port)
	if !ok {
		log.Warnf("failover: port-down for unknown port %s:%d", ev.Switch, ev.Port)
		return
	}
	m.recordFailure(key)
}

func (m *Manager) handleSimulateFailure(ev Event) {
	key := topology.MakeEdgeKey(ev.EdgeA, ev.EdgeB)
	if _, err := m.store.EdgeHealth(key.A, key.B); err != nil {
		log.Errorf("failover: simulate failure: %v", err)
		return
	}
	m.recordFailure(key)
}

// recordFailure merges a failed edge into the open failure sequence, opening
// one when none is active, and re-arms the correlation window.
func (m *Manager) recordFailure(key topology.EdgeKey) {
	health, err := m.store.EdgeHealth(key.A, key.B)
	if err != nil {
		return
	}
	if health == topology.HealthFailed {
		return
	}
	if m.seq == nil {
		m.seq = newSequence()
		log.Warnf("failover: opened failure sequence %s", m.seq.ID)
	}
	if m.seq.add(key) {
		log.Warnf("failover: sequence %s now covers edge %s-%s", m.seq.ID, key.A, key.B)
	}
	if !m.window.Stop() {
		select {
		case <-m.window.C:
		default:
		}
	}
	m.window.Reset(m.cfg.CorrelationWindow)
}

// finalizeSequence closes the open sequence: every edge removal is applied in
// one exclusive topology mutation, then all affected flows are recomputed
// once against the post-failure snapshot. This runs as one uninterruptible
// unit with respect to other failure processing.
func (m *Manager) finalizeSequence() {
	if m.seq == nil {
		return
	}
	seq := m.seq
	m.seq = nil

	start := time.Now()
	metrics.FailureSequences.Inc()
	log.Warnf("failover: finalizing sequence %s with %d edge(s)", seq.ID, len(seq.Edges))

	m.store.ApplyFailures(seq.Edges)
	snap := m.store.Snapshot()

	affected := m.engine.FlowsUsingEdges(seq.Edges)
	m.rerouteAll(snap, affected)

	metrics.FailoverDuration.Observe(time.Since(start).Seconds())
	log.Warnf("failover: sequence %s handled, %d flow(s) reconfigured in %s",
		seq.ID, len(affected), time.Since(start))
}

// rerouteAll fans per-flow recomputation out on the worker pool. Every task
// reads the same immutable snapshot, so they are safe to run concurrently.
func (m *Manager) rerouteAll(snap *topology.Snapshot, keys []policy.FlowKey) {
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		flowKey := key
		err := m.pool.Submit(func() {
			defer wg.Done()
			m.rerouteOne(snap, flowKey)
		})
		if err != nil {
			wg.Done()
			m.rerouteOne(snap, flowKey)
		}
	}
	wg.Wait()
}

func (m *Manager) rerouteOne(snap *topology.Snapshot, key policy.FlowKey) {
	flow, ok := m.engine.Table().Get(key)
	if !ok {
		return
	}
	// Critical flows with a valid precomputed backup fail over without
	// recomputation; everyone else gets a fresh shortest path.
	if flow.Critical && len(flow.Backup) > 0 && snap.ValidPath(flow.Backup) {
		if err := m.engine.ActivateBackup(snap, key); err == nil {
			return
		}
	}
	if err := m.engine.Reroute(snap, key); err != nil {
		log.Errorf("failover: %v", err)
	}
}

func (m *Manager) handlePortUp(ev Event) {
	key, ok := m.store.ResolvePort(ev.Switch, ev.Port)
	if !ok {
		log.Warnf("failover: port-up for unknown port %s:%d", ev.Switch, ev.Port)
		return
	}
	m.beginRecovery(key)
}

func (m *Manager) handleLinkRestore(ev Event) {
	key := topology.MakeEdgeKey(ev.EdgeA, ev.EdgeB)
	m.beginRecovery(key)
}

// beginRecovery moves a failed edge to Recovering and schedules the stability
// confirmation. The confirm arrives through the event queue so it serializes
// with everything else.
func (m *Manager) beginRecovery(key topology.EdgeKey) {
	health, err := m.store.EdgeHealth(key.A, key.B)
	if err != nil {
		log.Errorf("failover: recovery: %v", err)
		return
	}
	if health != topology.HealthFailed {
		return
	}
	if err := m.store.SetHealth(key.A, key.B, topology.HealthRecovering); err != nil {
		return
	}
	delete(m.recoveryDirty, key)
	m.scheduleConfirm(key)
	log.Infof("failover: edge %s-%s recovering, confirming in %s", key.A, key.B, m.cfg.StabilityInterval)
}

func (m *Manager) scheduleConfirm(key topology.EdgeKey) {
	time.AfterFunc(m.cfg.StabilityInterval, func() {
		m.Enqueue(Event{Kind: eventRecoveryConfirm, EdgeA: key.A, EdgeB: key.B})
	})
}

func (m *Manager) handleRecoveryConfirm(ev Event) {
	key := topology.MakeEdgeKey(ev.EdgeA, ev.EdgeB)
	health, err := m.store.EdgeHealth(key.A, key.B)
	if err != nil || health != topology.HealthRecovering {
		return
	}
	if m.recoveryDirty[key] {
		// Errors during the interval: start the confirmation over.
		delete(m.recoveryDirty, key)
		m.scheduleConfirm(key)
		log.Warnf("failover: edge %s-%s flapped during recovery, re-arming", key.A, key.B)
		return
	}
	if err := m.store.SetHealth(key.A, key.B, topology.HealthUp); err != nil {
		return
	}
	log.Infof("failover: edge %s-%s back in service", key.A, key.B)

	// A restored edge can improve any route; re-optimize everything and
	// switch back only where the new path is strictly better.
	snap := m.store.Snapshot()
	var wg sync.WaitGroup
	for _, key := range m.engine.FlowKeys() {
		wg.Add(1)
		flowKey := key
		err := m.pool.Submit(func() {
			defer wg.Done()
			if err := m.engine.Reoptimize(snap, flowKey); err != nil {
				log.Warnf("failover: reoptimize %s: %v", flowKey, err)
			}
		})
		if err != nil {
			wg.Done()
			if rerr := m.engine.Reoptimize(snap, flowKey); rerr != nil {
				log.Warnf("failover: reoptimize %s: %v", flowKey, rerr)
			}
		}
	}
	wg.Wait()
}

func (m *Manager) handlePortModified(ev Event) {
	// A modified port is a degradation hint; the stats feed decides.
	key, ok := m.store.ResolvePort(ev.Switch, ev.Port)
	if !ok {
		return
	}
	log.Infof("failover: port modified on edge %s-%s, awaiting stats", key.A, key.B)
}

func (m *Manager) handleLinkStats(ev Event) {
	key := topology.MakeEdgeKey(ev.EdgeA, ev.EdgeB)
	if err := m.store.UpdateStats(key.A, key.B, ev.Stats); err != nil {
		log.Warnf("failover: stats for unknown edge %s-%s", key.A, key.B)
		return
	}
	if ev.Utilization > 0 {
		_ = m.store.UpdateUtilization(key.A, key.B, ev.Utilization)
	}

	health, err := m.store.EdgeHealth(key.A, key.B)
	if err != nil {
		return
	}
	errRate := ev.Stats.ErrorRate()

	switch health {
	case topology.HealthRecovering:
		if errRate > 0 {
			m.recoveryDirty[key] = true
		}
	case topology.HealthUp:
		if errRate > m.cfg.ErrorRateThreshold || m.utilizationBreached(key, ev.Utilization) {
			if err := m.store.SetHealth(key.A, key.B, topology.HealthDegraded); err == nil {
				log.Warnf("failover: edge %s-%s degraded (error rate %.4f)", key.A, key.B, errRate)
				m.engine.PrepareBackups(key)
			}
		}
	case topology.HealthDegraded:
		if ev.TrafficLost {
			log.Warnf("failover: edge %s-%s lost all traffic while degraded", key.A, key.B)
			m.recordFailure(key)
		}
	}
}

func (m *Manager) utilizationBreached(key topology.EdgeKey, utilization float64) bool {
	if utilization <= 0 {
		return false
	}
	snap := m.store.Snapshot()
	edge, ok := snap.Edges[key]
	if !ok || edge.Capacity <= 0 {
		return false
	}
	return utilization/edge.Capacity > m.cfg.UtilizationThreshold
}

// SimulateFailure validates the edge and injects a failure event, giving the
// operator surface the same code path as real port-down events.
func (m *Manager) SimulateFailure(a, b string) error {
	if _, err := m.store.EdgeHealth(a, b); err != nil {
		return err
	}
	m.Enqueue(Event{Kind: EventSimulateFailure, EdgeA: a, EdgeB: b})
	return nil
}

// RestoreLink injects a recovery event for a previously failed edge.
func (m *Manager) RestoreLink(a, b string) error {
	health, err := m.store.EdgeHealth(a, b)
	if err != nil {
		return err
	}
	if health != topology.HealthFailed {
		return fmt.Errorf("edge %s-%s is %s, not Failed", a, b, health)
	}
	m.Enqueue(Event{Kind: EventLinkRestore, EdgeA: a, EdgeB: b})
	return nil
}
