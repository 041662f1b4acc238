// Package metrics exposes prometheus instrumentation for the controller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TopologyVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "controlplane_topology_version",
		Help: "Current topology version counter.",
	})
	Nodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "controlplane_topology_nodes",
		Help: "Number of nodes in the topology.",
	})
	Edges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "controlplane_topology_edges",
		Help: "Number of edges in the topology.",
	})
	FlowsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "controlplane_flows_active",
		Help: "Flows with an installed primary path.",
	})
	FlowsDown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "controlplane_flows_down",
		Help: "Flows with no usable route.",
	})
	FailureSequences = promauto.NewCounter(prometheus.CounterOpts{
		Name: "controlplane_failure_sequences_total",
		Help: "Finalized failure sequences.",
	})
	Reroutes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "controlplane_reroutes_total",
		Help: "Flow reroutes triggered by failures or recoveries.",
	})
	BackupActivations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "controlplane_backup_activations_total",
		Help: "Critical-flow failovers onto a precomputed backup path.",
	})
	InstallRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "controlplane_install_retries_total",
		Help: "Retried flow-install deliveries.",
	})
	InstallFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "controlplane_install_failures_total",
		Help: "Flow installs abandoned after bounded retries.",
	})
	FailoverDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "controlplane_failover_duration_seconds",
		Help:    "Time from failure-sequence finalization to emitted installs.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})
)
