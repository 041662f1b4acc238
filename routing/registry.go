package routing

import (
	"fmt"
	"sync"

	"controlplane/topology"
)

// PathAlgorithm is implemented by every registered routing algorithm.
type PathAlgorithm interface {
	// ComputePaths returns up to k paths from src to dst over the snapshot,
	// best first.
	ComputePaths(snap *topology.Snapshot, src, dst string, k int, opts Options) ([]Path, error)
}

// Registry maps algorithm names to implementations so the policy engine can
// select one by configuration.
type Registry struct {
	mu         sync.RWMutex
	algorithms map[string]PathAlgorithm
}

const (
	AlgorithmDijkstra  = "dijkstra"
	AlgorithmKShortest = "k_shortest"
)

// NewRegistry returns a registry with the built-in algorithms registered.
func NewRegistry() *Registry {
	r := &Registry{algorithms: make(map[string]PathAlgorithm)}
	r.algorithms[AlgorithmDijkstra] = dijkstraAlgorithm{}
	r.algorithms[AlgorithmKShortest] = kShortestAlgorithm{}
	return r
}

func (r *Registry) Register(name string, alg PathAlgorithm) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.algorithms[name]; exists {
		return fmt.Errorf("algorithm %q: %w", name, topology.ErrConflict)
	}
	r.algorithms[name] = alg
	return nil
}

func (r *Registry) Get(name string) (PathAlgorithm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	alg, exists := r.algorithms[name]
	if !exists {
		return nil, fmt.Errorf("algorithm %q: %w", name, topology.ErrNotFound)
	}
	return alg, nil
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.algorithms))
	for name := range r.algorithms {
		names = append(names, name)
	}
	return names
}

type dijkstraAlgorithm struct{}

func (dijkstraAlgorithm) ComputePaths(snap *topology.Snapshot, src, dst string, k int, opts Options) ([]Path, error) {
	nodes, err := ShortestPath(snap, src, dst, opts)
	if err != nil {
		return nil, err
	}
	w, _ := pathWeight(snap, nodes, opts.Weighting)
	return []Path{{Nodes: nodes, Weight: w}}, nil
}

type kShortestAlgorithm struct{}

func (kShortestAlgorithm) ComputePaths(snap *topology.Snapshot, src, dst string, k int, opts Options) ([]Path, error) {
	return KShortestPaths(snap, src, dst, k, opts)
}
