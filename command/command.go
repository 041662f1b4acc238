// Package command is the operator command surface: every command maps 1:1
// onto a core operation, so operator input and discovery events share one
// authoritative code path for topology and flow mutation. The interactive
// shell consuming this surface is an external collaborator.
package command

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"controlplane/failover"
	"controlplane/policy"
	"controlplane/report"
	"controlplane/topology"
)

// Handler executes one operator command and returns its output.
type Handler func(args []string) (string, error)

type commandEntry struct {
	usage   string
	help    string
	handler Handler
}

// Registry dispatches operator commands by name.
type Registry struct {
	commands map[string]commandEntry

	store    *topology.Store
	engine   *policy.Engine
	failover *failover.Manager
	reporter *report.Reporter
}

func NewRegistry(store *topology.Store, engine *policy.Engine, fm *failover.Manager, reporter *report.Reporter) *Registry {
	r := &Registry{
		commands: make(map[string]commandEntry),
		store:    store,
		engine:   engine,
		failover: fm,
		reporter: reporter,
	}
	r.register("add_node", "add_node <switch|host> <id> [mac]", "Add a node", r.addNode)
	r.register("remove_node", "remove_node <id>", "Remove a node and its links", r.removeNode)
	r.register("add_link", "add_link <node1> <node2> [capacity_mbps]", "Add a link", r.addLink)
	r.register("remove_link", "remove_link <node1> <node2>", "Remove a link", r.removeLink)
	r.register("inject_flow", "inject_flow <src_mac> <dst_mac> <priority>", "Inject a traffic flow", r.injectFlow)
	r.register("delete_flow", "delete_flow <src_mac> <dst_mac>", "Delete a flow", r.deleteFlow)
	r.register("set_priority", "set_priority <src_mac> <dst_mac> <priority>", "Set flow priority", r.setPriority)
	r.register("set_critical", "set_critical <src_mac> <dst_mac> <true|false>", "Mark a flow critical", r.setCritical)
	r.register("load_balance", "load_balance <src_mac> <dst_mac> <num_paths>", "Split a flow across paths", r.loadBalance)
	r.register("simulate_failure", "simulate_failure <node1> <node2>", "Simulate a link failure", r.simulateFailure)
	r.register("restore_link", "restore_link <node1> <node2>", "Restore a failed link", r.restoreLink)
	r.register("query_route", "query_route <src_mac> <dst_mac>", "Query the routing path", r.queryRoute)
	r.register("show_topology", "show_topology", "Show current topology", r.showTopology)
	r.register("show_flows", "show_flows", "Show active flows", r.showFlows)
	r.register("show_stats", "show_stats", "Show link statistics", r.showStats)
	r.register("help", "help", "List available commands", r.help)
	return r
}

func (r *Registry) register(name, usage, help string, h Handler) {
	r.commands[name] = commandEntry{usage: usage, help: help, handler: h}
}

// Execute runs a command line. Rejected commands (NotFound, Conflict, bad
// arguments) leave state unchanged.
func (r *Registry) Execute(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return r.Run(strings.ToLower(fields[0]), fields[1:])
}

// Run dispatches a named command with pre-split arguments.
func (r *Registry) Run(name string, args []string) (string, error) {
	entry, ok := r.commands[name]
	if !ok {
		return "", fmt.Errorf("unknown command %q, try 'help'", name)
	}
	out, err := entry.handler(args)
	if err != nil {
		log.Warnf("command: %s rejected: %v", name, err)
	}
	return out, err
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func usageError(entry string) error {
	return fmt.Errorf("usage: %s", entry)
}

func (r *Registry) addNode(args []string) (string, error) {
	if len(args) < 2 || len(args) > 3 {
		return "", usageError(r.commands["add_node"].usage)
	}
	kind := args[0]
	id := args[1]
	switch kind {
	case "switch":
		if err := r.store.AddNode(topology.Node{ID: id, Kind: topology.KindSwitch}); err != nil {
			return "", err
		}
		return fmt.Sprintf("added switch %s", id), nil
	case "host":
		mac := randomMAC()
		if len(args) == 3 {
			mac = args[2]
		}
		if err := r.store.AddNode(topology.Node{ID: id, Kind: topology.KindHost, MAC: mac}); err != nil {
			return "", err
		}
		return fmt.Sprintf("added host %s (mac %s)", id, mac), nil
	default:
		return "", fmt.Errorf("node type must be 'switch' or 'host', got %q", kind)
	}
}

func randomMAC() string {
	parts := make([]string, 6)
	for i := range parts {
		parts[i] = fmt.Sprintf("%02x", rand.Intn(256))
	}
	return strings.Join(parts, ":")
}

func (r *Registry) removeNode(args []string) (string, error) {
	if len(args) != 1 {
		return "", usageError(r.commands["remove_node"].usage)
	}
	if err := r.store.RemoveNode(args[0]); err != nil {
		return "", err
	}
	return fmt.Sprintf("removed node %s", args[0]), nil
}

func (r *Registry) addLink(args []string) (string, error) {
	if len(args) < 2 || len(args) > 3 {
		return "", usageError(r.commands["add_link"].usage)
	}
	capacity := 1000.0
	if len(args) == 3 {
		parsed, err := strconv.ParseFloat(args[2], 64)
		if err != nil || parsed <= 0 {
			return "", fmt.Errorf("capacity must be a positive number, got %q", args[2])
		}
		capacity = parsed
	}
	if err := r.store.AddEdge(args[0], args[1], capacity); err != nil {
		return "", err
	}
	return fmt.Sprintf("added link %s <-> %s (%.1f Mbps)", args[0], args[1], capacity), nil
}

func (r *Registry) removeLink(args []string) (string, error) {
	if len(args) != 2 {
		return "", usageError(r.commands["remove_link"].usage)
	}
	if err := r.store.RemoveEdge(args[0], args[1]); err != nil {
		return "", err
	}
	return fmt.Sprintf("removed link %s <-> %s", args[0], args[1]), nil
}

func (r *Registry) injectFlow(args []string) (string, error) {
	if len(args) != 3 {
		return "", usageError(r.commands["inject_flow"].usage)
	}
	priority, err := strconv.Atoi(args[2])
	if err != nil || priority < 0 || priority > 65535 {
		return "", fmt.Errorf("priority must be an integer in [0, 65535], got %q", args[2])
	}
	flow, err := r.engine.InjectFlow(args[0], args[1], priority)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("injected flow %s priority=%d path=%s",
		flow.Key, priority, report.FormatPath(flow.Primary)), nil
}

func (r *Registry) deleteFlow(args []string) (string, error) {
	if len(args) != 2 {
		return "", usageError(r.commands["delete_flow"].usage)
	}
	key := policy.FlowKey{Src: args[0], Dst: args[1]}
	if err := r.engine.DeleteFlow(key); err != nil {
		return "", err
	}
	return fmt.Sprintf("deleted flow %s", key), nil
}

func (r *Registry) setPriority(args []string) (string, error) {
	if len(args) != 3 {
		return "", usageError(r.commands["set_priority"].usage)
	}
	priority, err := strconv.Atoi(args[2])
	if err != nil || priority < 0 || priority > 65535 {
		return "", fmt.Errorf("priority must be an integer in [0, 65535], got %q", args[2])
	}
	key := policy.FlowKey{Src: args[0], Dst: args[1]}
	if err := r.engine.SetTrafficPriority(key, priority); err != nil {
		return "", err
	}
	return fmt.Sprintf("flow %s priority set to %d", key, priority), nil
}

func (r *Registry) setCritical(args []string) (string, error) {
	if len(args) != 3 {
		return "", usageError(r.commands["set_critical"].usage)
	}
	critical, err := strconv.ParseBool(args[2])
	if err != nil {
		return "", fmt.Errorf("expected true or false, got %q", args[2])
	}
	key := policy.FlowKey{Src: args[0], Dst: args[1]}
	err = r.engine.SetCriticalFlow(key, critical)
	if err != nil {
		if critical && errors.Is(err, policy.ErrBackupUnavailable) {
			return fmt.Sprintf("flow %s marked critical, WARNING: no backup available (at risk)", key), nil
		}
		return "", err
	}
	if critical {
		return fmt.Sprintf("flow %s marked critical", key), nil
	}
	return fmt.Sprintf("flow %s unmarked critical", key), nil
}

func (r *Registry) loadBalance(args []string) (string, error) {
	if len(args) != 3 {
		return "", usageError(r.commands["load_balance"].usage)
	}
	numPaths, err := strconv.Atoi(args[2])
	if err != nil || numPaths < 1 {
		return "", fmt.Errorf("num_paths must be >= 1, got %q", args[2])
	}
	paths, weights, err := r.engine.ImplementLoadBalancing(args[0], args[1], numPaths)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "balancing %s -> %s across %d path(s):\n", args[0], args[1], len(paths))
	for i, p := range paths {
		fmt.Fprintf(&b, "  %.3f  %s\n", weights[i], report.FormatPath(p.Nodes))
	}
	return b.String(), nil
}

func (r *Registry) simulateFailure(args []string) (string, error) {
	if len(args) != 2 {
		return "", usageError(r.commands["simulate_failure"].usage)
	}
	if err := r.failover.SimulateFailure(args[0], args[1]); err != nil {
		return "", err
	}
	return fmt.Sprintf("simulated failure of link %s <-> %s", args[0], args[1]), nil
}

func (r *Registry) restoreLink(args []string) (string, error) {
	if len(args) != 2 {
		return "", usageError(r.commands["restore_link"].usage)
	}
	if err := r.failover.RestoreLink(args[0], args[1]); err != nil {
		return "", err
	}
	return fmt.Sprintf("restoring link %s <-> %s", args[0], args[1]), nil
}

func (r *Registry) queryRoute(args []string) (string, error) {
	if len(args) != 2 {
		return "", usageError(r.commands["query_route"].usage)
	}
	path, err := r.reporter.ShortestPath(args[0], args[1])
	if err != nil {
		return "", err
	}
	return report.FormatPath(path), nil
}

func (r *Registry) showTopology(args []string) (string, error) {
	var b strings.Builder
	r.reporter.RenderTopology(&b)
	return b.String(), nil
}

func (r *Registry) showFlows(args []string) (string, error) {
	var b strings.Builder
	r.reporter.RenderFlows(&b)
	return b.String(), nil
}

func (r *Registry) showStats(args []string) (string, error) {
	var b strings.Builder
	r.reporter.RenderStats(&b)
	return b.String(), nil
}

func (r *Registry) help(args []string) (string, error) {
	var b strings.Builder
	b.WriteString("available commands:\n")
	for _, name := range r.Names() {
		entry := r.commands[name]
		fmt.Fprintf(&b, "  %-48s %s\n", entry.usage, entry.help)
	}
	return b.String(), nil
}
