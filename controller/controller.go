// Package controller wires the control-plane components into one context
// object with an explicit lifecycle. All state lives here; there are no
// process-wide mutable globals.
package controller

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"controlplane/command"
	"controlplane/config"
	"controlplane/failover"
	"controlplane/installer"
	"controlplane/metrics"
	"controlplane/policy"
	"controlplane/report"
	"controlplane/routing"
	"controlplane/topology"
)

// Controller owns every core component. Constructed at startup, torn down at
// shutdown; components receive their collaborators by reference.
type Controller struct {
	Config   *config.Config
	Store    *topology.Store
	Cache    *routing.Cache
	Registry *routing.Registry
	Engine   *policy.Engine
	Failover *failover.Manager
	Out      *installer.Dispatcher
	Reporter *report.Reporter
	Commands *command.Registry

	statsSource failover.StatsSource
	httpServer  *http.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a controller around the given flow installer and optional
// statistics source.
func New(cfg *config.Config, inst installer.Installer, stats failover.StatsSource) (*Controller, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	store := topology.NewStore()
	cache := routing.NewCache(cfg.Routing.CacheTTL())
	store.OnMutate(cache.InvalidateAll)

	registry := routing.NewRegistry()
	out := installer.NewDispatcher(inst, cfg.Installer.QueueSize, cfg.Installer.RetryLimit, cfg.Installer.RetryBackoff())

	weighting := routing.WeightHop
	if cfg.Routing.Weighting == "inverse_capacity" {
		weighting = routing.WeightInverseCapacity
	}
	engine := policy.NewEngine(store, cache, registry, out, policy.Options{
		Algorithm: cfg.Routing.Algorithm,
		Weighting: weighting,
		DefaultK:  cfg.Routing.DefaultK,
	})

	fm, err := failover.NewManager(store, engine, failover.Config{
		CorrelationWindow:    cfg.Failover.CorrelationWindow(),
		StabilityInterval:    cfg.Failover.StabilityInterval(),
		ErrorRateThreshold:   cfg.Failover.ErrorRateThreshold,
		UtilizationThreshold: cfg.Failover.UtilizationThreshold,
		PoolSize:             cfg.Failover.PoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	reporter := report.NewReporter(store, engine.Table(), routing.Options{Weighting: weighting})
	commands := command.NewRegistry(store, engine, fm, reporter)

	c := &Controller{
		Config:      cfg,
		Store:       store,
		Cache:       cache,
		Registry:    registry,
		Engine:      engine,
		Failover:    fm,
		Out:         out,
		Reporter:    reporter,
		Commands:    commands,
		statsSource: stats,
	}
	store.OnMutate(c.publishTopologyMetrics)
	return c, nil
}

func (c *Controller) publishTopologyMetrics() {
	// Called under the store's write lock via the mutation hook; only
	// cheap gauge updates happen here.
	metrics.TopologyVersion.Inc()
}

// Start launches the event loop, the stats poller, and the status API.
func (c *Controller) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Failover.Run(ctx)
	}()

	if c.statsSource != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.Failover.PollStats(ctx, c.statsSource, c.Config.Failover.StatsInterval())
		}()
	}

	c.wg.Add(1)
	go c.refreshGauges(ctx)

	c.httpServer = &http.Server{
		Addr:    c.Config.HTTP.ListenAddr,
		Handler: c.Reporter.Router(),
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		log.Infof("controller: status API listening on %s", c.Config.HTTP.ListenAddr)
		if err := c.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("controller: status API: %v", err)
		}
	}()

	log.Infof("controller: started")
	return nil
}

func (c *Controller) refreshGauges(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := c.Store.Snapshot()
			metrics.Nodes.Set(float64(len(snap.Nodes)))
			metrics.Edges.Set(float64(len(snap.Edges)))
		}
	}
}

// Stop tears the controller down: the event loop finishes its current unit
// of work, the install queue drains, the API stops.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = c.httpServer.Shutdown(shutdownCtx)
	}
	c.Failover.Stop()
	c.wg.Wait()
	c.Out.Stop()
	log.Infof("controller: stopped")
}
