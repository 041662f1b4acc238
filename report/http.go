package report

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"controlplane/topology"
)

// Router builds the read-only HTTP status API: topology, flow, statistics,
// and path queries plus prometheus metrics. Everything served here comes
// from snapshots.
func (r *Reporter) Router() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)

	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Get("/topology", r.handleTopology)
	mux.Get("/flows", r.handleFlows)
	mux.Get("/stats", r.handleStats)
	mux.Get("/paths", r.handlePaths)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

type nodeView struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	MAC      string `json:"mac,omitempty"`
	Attached string `json:"attached,omitempty"`
}

type edgeView struct {
	A           string  `json:"a"`
	B           string  `json:"b"`
	Capacity    float64 `json:"capacity"`
	Utilization float64 `json:"utilization"`
	Health      string  `json:"health"`
}

type topologyView struct {
	Version uint64     `json:"version"`
	Nodes   []nodeView `json:"nodes"`
	Edges   []edgeView `json:"edges"`
}

func (r *Reporter) handleTopology(w http.ResponseWriter, _ *http.Request) {
	snap := r.Topology()
	view := topologyView{Version: snap.Version}
	for _, id := range snap.NodeIDs() {
		n := snap.Nodes[id]
		nv := nodeView{ID: n.ID, Kind: n.Kind.String(), MAC: n.MAC}
		if n.Kind == topology.KindHost && n.AttachedSwitch != "" {
			nv.Attached = n.AttachedSwitch + ":" + strconv.Itoa(n.AttachedPort)
		}
		view.Nodes = append(view.Nodes, nv)
	}
	for _, key := range snap.EdgeKeys() {
		e := snap.Edges[key]
		view.Edges = append(view.Edges, edgeView{
			A: key.A, B: key.B,
			Capacity: e.Capacity, Utilization: e.Utilization,
			Health: e.Health.String(),
		})
	}
	writeJSON(w, view)
}

type flowView struct {
	Src      string     `json:"src"`
	Dst      string     `json:"dst"`
	Priority int        `json:"priority"`
	Critical bool       `json:"critical"`
	State    string     `json:"state"`
	Primary  []string   `json:"primary,omitempty"`
	Backup   []string   `json:"backup,omitempty"`
	Paths    [][]string `json:"paths,omitempty"`
	Weights  []float64  `json:"weights,omitempty"`
}

func (r *Reporter) handleFlows(w http.ResponseWriter, _ *http.Request) {
	flows := r.Flows()
	views := make([]flowView, 0, len(flows))
	for _, f := range flows {
		views = append(views, flowView{
			Src:      f.Key.Src,
			Dst:      f.Key.Dst,
			Priority: f.Priority,
			Critical: f.Critical,
			State:    f.State.String(),
			Primary:  f.Primary,
			Backup:   f.Backup,
			Paths:    f.LBPaths,
			Weights:  f.Weights,
		})
	}
	writeJSON(w, views)
}

type statsView struct {
	Links   []linkStatView `json:"links"`
	Process *ProcessStats  `json:"process,omitempty"`
}

type linkStatView struct {
	A           string  `json:"a"`
	B           string  `json:"b"`
	Capacity    float64 `json:"capacity"`
	Utilization float64 `json:"utilization"`
	Health      string  `json:"health"`
	RxPackets   uint64  `json:"rx_packets"`
	TxPackets   uint64  `json:"tx_packets"`
	RxBytes     uint64  `json:"rx_bytes"`
	TxBytes     uint64  `json:"tx_bytes"`
	RxErrors    uint64  `json:"rx_errors"`
	TxErrors    uint64  `json:"tx_errors"`
}

func (r *Reporter) handleStats(w http.ResponseWriter, _ *http.Request) {
	var view statsView
	for _, ls := range r.LinkStats() {
		view.Links = append(view.Links, linkStatView{
			A: ls.Edge.A, B: ls.Edge.B,
			Capacity: ls.Capacity, Utilization: ls.Utilization,
			Health:    ls.Health.String(),
			RxPackets: ls.Stats.RxPackets, TxPackets: ls.Stats.TxPackets,
			RxBytes: ls.Stats.RxBytes, TxBytes: ls.Stats.TxBytes,
			RxErrors: ls.Stats.RxErrors, TxErrors: ls.Stats.TxErrors,
		})
	}
	if ps, err := r.ProcessStats(); err == nil {
		view.Process = &ps
	}
	writeJSON(w, view)
}

func (r *Reporter) handlePaths(w http.ResponseWriter, req *http.Request) {
	src := req.URL.Query().Get("src")
	dst := req.URL.Query().Get("dst")
	if src == "" || dst == "" {
		http.Error(w, "src and dst query parameters required", http.StatusBadRequest)
		return
	}
	k := 1
	if kq := req.URL.Query().Get("k"); kq != "" {
		if parsed, err := strconv.Atoi(kq); err == nil && parsed > 0 {
			k = parsed
		}
	}
	paths, err := r.AllShortestPaths(src, dst, k)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	type pathView struct {
		Nodes  []string `json:"nodes"`
		Weight float64  `json:"weight"`
	}
	views := make([]pathView, 0, len(paths))
	for _, p := range paths {
		views = append(views, pathView{Nodes: p.Nodes, Weight: p.Weight})
	}
	writeJSON(w, views)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("report: encoding response: %v", err)
	}
}
