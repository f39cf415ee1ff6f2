// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry owns the set of known Nodes: manual registration,
// subnet discovery, bulk health checks, and persistence to disk. It is
// component C of the system — the only place that may construct or
// delete a node.Node.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/sollol/internal/cluster"
	"github.com/AleutianAI/sollol/internal/node"
	"github.com/AleutianAI/sollol/internal/orcherr"
)

// EventPublisher is the narrow event-emission surface the registry needs;
// satisfied structurally by eventbus.Bus.NodeBridge so this package does
// not import internal/eventbus directly.
type EventPublisher interface {
	Publish(topic string, payload any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

var tracer = otel.Tracer("sollol.registry")

const (
	defaultOllamaPort   = 11434
	discoveryMaxWorkers = 50
	healthCheckWorkers  = 10
)

// Registry holds every known node, keyed by URL, plus any clusters built
// from them. It resolves hostnames to IPs to reject duplicate nodes that
// are reachable under more than one name.
type Registry struct {
	mu        sync.RWMutex
	nodes     map[string]*node.Node
	clusters  map[string]*cluster.Cluster
	ipCache   map[string]string
	resolver  func(hostname string) (string, error)
	publisher EventPublisher
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		nodes:     make(map[string]*node.Node),
		clusters:  make(map[string]*cluster.Cluster),
		ipCache:   make(map[string]string),
		resolver:  defaultResolve,
		publisher: nopPublisher{},
	}
}

// SetPublisher wires an EventBus bridge for dedup warnings and health
// transitions. Safe to call once at construction time before the registry
// is shared across goroutines.
func (r *Registry) SetPublisher(p EventPublisher) {
	if p == nil {
		p = nopPublisher{}
	}
	r.mu.Lock()
	r.publisher = p
	r.mu.Unlock()
}

func (r *Registry) publish(topic string, payload map[string]any) {
	r.mu.RLock()
	p := r.publisher
	r.mu.RUnlock()
	p.Publish(topic, payload)
}

func defaultResolve(hostname string) (string, error) {
	ips, err := net.LookupHost(hostname)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("no addresses for %s", hostname)
	}
	return ips[0], nil
}

func hostnameOf(rawURL string) string {
	if h, _, err := net.SplitHostPort(trimScheme(rawURL)); err == nil {
		return h
	}
	return trimScheme(rawURL)
}

func trimScheme(rawURL string) string {
	for _, scheme := range []string{"http://", "https://"} {
		if len(rawURL) > len(scheme) && rawURL[:len(scheme)] == scheme {
			return rawURL[len(scheme):]
		}
	}
	return rawURL
}

// resolveIPLocked resolves a node URL's hostname to an IP, caching the
// result. When resolution fails the raw hostname is returned, matching
// the registry's "best effort" dedup behavior. Callers must already hold
// r.mu for writing; this never takes the lock itself, since its only
// callers (duplicateOfLocked, in turn called from AddNode and probeIP)
// already hold it.
func (r *Registry) resolveIPLocked(rawURL string) string {
	host := hostnameOf(rawURL)

	if ip, cached := r.ipCache[host]; cached {
		return ip
	}

	ip, err := r.resolver(host)
	if err != nil {
		return host
	}

	r.ipCache[host] = ip
	return ip
}

// duplicateOfLocked returns the URL of an already-registered node that
// resolves to the same IP as rawURL, or "" if none does. Callers must
// hold r.mu for writing.
func (r *Registry) duplicateOfLocked(rawURL string) string {
	newIP := r.resolveIPLocked(rawURL)
	for existingURL := range r.nodes {
		if r.resolveIPLocked(existingURL) == newIP {
			return existingURL
		}
	}
	return ""
}

// AddNode registers url as a new node, probing health and capabilities
// before returning it. If url (or an IP-equivalent URL) is already
// registered, the existing node is returned instead of a new one.
func (r *Registry) AddNode(ctx context.Context, url, name string, priority int, limiterRPS float64) (*node.Node, error) {
	ctx, span := tracer.Start(ctx, "registry.add_node")
	defer span.End()

	r.mu.Lock()
	if existing, ok := r.nodes[url]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	if dup := r.duplicateOfLocked(url); dup != "" {
		existing := r.nodes[dup]
		r.mu.Unlock()
		r.publish("node_duplicate", map[string]any{"requested_url": url, "existing_url": dup})
		return existing, nil
	}
	r.mu.Unlock()

	if name == "" {
		name = url
	}
	n := node.New(url, name, priority, limiterRPS)

	if !n.ProbeHealth(ctx, 3*time.Second) {
		return nil, orcherr.Wrap(orcherr.ErrUnreachable, "registry.add_node", url, "")
	}
	n.ProbeCapabilities(ctx, 3*time.Second)

	r.mu.Lock()
	r.nodes[url] = n
	r.mu.Unlock()
	return n, nil
}

// RemoveNode deletes url from the registry. It reports whether a node
// was actually removed.
func (r *Registry) RemoveNode(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[url]; !ok {
		return false
	}
	delete(r.nodes, url)
	return true
}

// GetNodeByURL returns the node registered under url, or nil.
func (r *Registry) GetNodeByURL(url string) *node.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes[url]
}

// All returns every registered node, in no particular order.
func (r *Registry) All() []*node.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*node.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

// Len reports how many nodes are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// GetHealthyNodes returns every node currently marked healthy.
func (r *Registry) GetHealthyNodes() []*node.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*node.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		if n.IsHealthy() {
			out = append(out, n)
		}
	}
	return out
}

// GetGPUNodes returns every healthy node reporting GPU capability.
func (r *Registry) GetGPUNodes() []*node.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*node.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		snap := n.Snapshot()
		if snap.Metrics.IsHealthy && snap.Capabilities.HasGPU {
			out = append(out, n)
		}
	}
	return out
}

// HealthCheckAll re-probes every registered node concurrently and returns
// a URL-to-healthy map.
func (r *Registry) HealthCheckAll(ctx context.Context, timeout time.Duration) map[string]bool {
	ctx, span := tracer.Start(ctx, "registry.health_check_all")
	defer span.End()

	nodes := r.All()
	results := make(map[string]bool, len(nodes))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(healthCheckWorkers)
	for _, n := range nodes {
		n := n
		wasHealthy := n.IsHealthy()
		g.Go(func() error {
			healthy := n.ProbeHealth(gctx, timeout)
			mu.Lock()
			results[n.URL] = healthy
			mu.Unlock()
			if healthy != wasHealthy {
				topic := EventNodeHealthy
				if !healthy {
					topic = EventNodeUnhealthy
				}
				r.publish(topic, map[string]any{"url": n.URL})
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Event topics the registry emits, named here so callers can match on
// them without importing internal/eventbus (see EventPublisher).
const (
	EventNodeHealthy   = "node_healthy"
	EventNodeUnhealthy = "node_unhealthy"
)

// Discover scans cidr for reachable Ollama endpoints on port and
// registers every one that responds to a health probe. Scanning is
// bounded to discoveryMaxWorkers concurrent probes.
func (r *Registry) Discover(ctx context.Context, cidr string, port int, timeout time.Duration) ([]*node.Node, error) {
	ctx, span := tracer.Start(ctx, "registry.discover")
	defer span.End()

	if port == 0 {
		port = defaultOllamaPort
	}

	ips, err := expandCIDR(cidr)
	if err != nil {
		return nil, orcherr.Wrap(err, "registry.discover", "", "")
	}

	var mu sync.Mutex
	discovered := make([]*node.Node, 0)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(discoveryMaxWorkers)
	for _, ip := range ips {
		ip := ip
		g.Go(func() error {
			n := r.probeIP(gctx, ip, port, timeout)
			if n == nil {
				return nil
			}
			mu.Lock()
			discovered = append(discovered, n)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return discovered, nil
}

func (r *Registry) probeIP(ctx context.Context, ip string, port int, timeout time.Duration) *node.Node {
	addr := fmt.Sprintf("%s:%d", ip, port)
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil
	}
	conn.Close()

	url := fmt.Sprintf("http://%s", addr)
	n := node.New(url, fmt.Sprintf("ollama-%s", ip), 0, 0)
	if !n.ProbeHealth(ctx, timeout) {
		return nil
	}
	n.ProbeCapabilities(ctx, timeout)

	r.mu.Lock()
	if _, exists := r.nodes[url]; !exists {
		if dup := r.duplicateOfLocked(url); dup == "" {
			r.nodes[url] = n
		}
	}
	r.mu.Unlock()

	return n
}

// expandCIDR enumerates every usable host address within cidr (excluding
// the network and broadcast addresses for /30 or larger blocks).
func expandCIDR(cidr string) ([]string, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
	}

	var ips []string
	for ip := ipNet.IP.Mask(ipNet.Mask); ipNet.Contains(ip); incIP(ip) {
		ips = append(ips, ip.String())
	}

	if len(ips) > 2 {
		ips = ips[1 : len(ips)-1]
	}
	return ips, nil
}

func incIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			return
		}
	}
}

// nodeConfigEntry is the persisted shape of one node, per spec.md §6.
type nodeConfigEntry struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

type persistedConfig struct {
	Nodes []nodeConfigEntry `json:"nodes"`
}

// SaveConfig writes the registry's node list to path as JSON.
func (r *Registry) SaveConfig(path string) error {
	r.mu.RLock()
	cfg := persistedConfig{Nodes: make([]nodeConfigEntry, 0, len(r.nodes))}
	for _, n := range r.nodes {
		snap := n.Snapshot()
		cfg.Nodes = append(cfg.Nodes, nodeConfigEntry{URL: snap.URL, Name: snap.Name, Priority: snap.Priority})
	}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return orcherr.Wrap(err, "registry.save_config", "", "")
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadConfig reads a node list from path and registers each entry,
// skipping (and reporting) any that fail to come up.
func (r *Registry) LoadConfig(ctx context.Context, path string) ([]error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, orcherr.Wrap(err, "registry.load_config", "", "")
	}

	var cfg persistedConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, orcherr.Wrap(err, "registry.load_config", "", "")
	}

	var loadErrs []error
	for _, entry := range cfg.Nodes {
		if _, err := r.AddNode(ctx, entry.URL, entry.Name, entry.Priority, 0); err != nil {
			loadErrs = append(loadErrs, fmt.Errorf("%s: %w", entry.URL, err))
		}
	}
	return loadErrs, nil
}

// minClusterBackends is the spec.md §3 invariant: a Cluster holds at
// least two backends.
const minClusterBackends = 2

// CreateCluster builds a Cluster out of already-registered, healthy
// nodes. Each node URL's host is reused as the RPC backend address on
// the same port; at least two nodes are required. The new cluster is
// registered with name as its key and returned.
func (r *Registry) CreateCluster(name string, nodeURLs []string, model, strategy string) (*cluster.Cluster, error) {
	if len(nodeURLs) < minClusterBackends {
		return nil, orcherr.Wrap(fmt.Errorf("cluster %q needs at least %d backends, got %d", name, minClusterBackends, len(nodeURLs)), "registry.create_cluster", "", "")
	}

	r.mu.RLock()
	backends := make([]*cluster.Backend, 0, len(nodeURLs))
	for _, url := range nodeURLs {
		n, ok := r.nodes[url]
		if !ok || !n.IsHealthy() {
			r.mu.RUnlock()
			return nil, orcherr.Wrap(orcherr.ErrNoCapacity, "registry.create_cluster", url, "")
		}
		host, port := hostPortOf(url)
		backends = append(backends, &cluster.Backend{Host: host, Port: port})
	}
	r.mu.RUnlock()

	c := cluster.NewCluster(name, model, strategy, backends)

	r.mu.Lock()
	r.clusters[name] = c
	r.mu.Unlock()

	return c, nil
}

// hostPortOf splits a node URL's host and port, defaulting to the Ollama
// port when none is present.
func hostPortOf(rawURL string) (string, int) {
	hostport := trimScheme(rawURL)
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, defaultOllamaPort
	}
	port := defaultOllamaPort
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

// GetClusterByName returns a previously created cluster, or nil.
func (r *Registry) GetClusterByName(name string) *cluster.Cluster {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clusters[name]
}

// AllClusters returns every registered cluster, in no particular order.
// Used by internal/dashboard to populate the rpc_hosts section of the
// snapshot contract (spec.md §6).
func (r *Registry) AllClusters() []*cluster.Cluster {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*cluster.Cluster, 0, len(r.clusters))
	for _, c := range r.clusters {
		out = append(out, c)
	}
	return out
}

// Worker is the result of GetWorkerForModel: exactly one of Node or
// Cluster is set.
type Worker struct {
	Node    *node.Node
	Cluster *cluster.Cluster
}

// GetWorkerForModel returns the best backend to serve model. When the
// model requires RPC sharding and preferCluster is true, a matching
// healthy cluster is returned if one exists; otherwise the least-loaded
// healthy node is returned. hybrid supplies the parameter-count
// classification (internal/cluster.HybridRouter.Decide).
func (r *Registry) GetWorkerForModel(model string, preferCluster bool, hybrid *cluster.HybridRouter) (Worker, error) {
	healthyNodes := r.GetHealthyNodes()
	if len(healthyNodes) == 0 {
		return Worker{}, orcherr.Wrap(orcherr.ErrNoCapacity, "registry.get_worker_for_model", "", "")
	}

	if hybrid != nil && preferCluster {
		snapshots := make([]node.Snapshot, len(healthyNodes))
		for i, n := range healthyNodes {
			snapshots[i] = n.Snapshot()
		}
		decision, err := hybrid.Decide(model, snapshots)
		if err == nil && decision.UseDistributed && decision.Cluster != nil {
			return Worker{Cluster: decision.Cluster}, nil
		}
	}

	best := healthyNodes[0]
	bestScore := best.ComputeLoadScore()
	for _, n := range healthyNodes[1:] {
		if s := n.ComputeLoadScore(); s < bestScore {
			best, bestScore = n, s
		}
	}
	return Worker{Node: best}, nil
}
