// Package capability tracks which speech backends are online on the bus.
package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-interview/internal/bus"
	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/loqalabs/loqa-interview/internal/protocol"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Transcription is the capability a `serve` process advertises.
const Transcription = "stt"

var ErrNoProvider = errors.New("no node offers the requested capability")

type Capability = protocol.Capability

type NodeInfo struct {
	ID           string
	Role         string
	Capabilities []Capability
	LastSeen     time.Time
	Healthy      bool
}

// Has reports whether the node advertises the named capability.
func (n NodeInfo) Has(name string) bool {
	for _, c := range n.Capabilities {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Options describe the local node. A node with no capabilities only watches.
type Options struct {
	NodeID       string
	Role         string
	Capabilities []Capability
}

type Registry struct {
	opts      Options
	cfg       config.BusConfig
	log       *slog.Logger
	bus       *bus.Client
	mu        sync.RWMutex
	nodes     map[string]*NodeInfo
	changed   chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}
	subs      []*nats.Subscription
	meter     metric.Meter
	reg       metric.Registration
	nodeGauge metric.Int64ObservableGauge
}

func NewRegistry(ctx context.Context, opts Options, cfg config.BusConfig, busClient *bus.Client, log *slog.Logger) (*Registry, error) {
	if opts.NodeID == "" {
		opts.NodeID = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		opts:    opts,
		cfg:     cfg,
		log:     log.With(slog.String("component", "capability-registry"), slog.String("node_id", opts.NodeID)),
		bus:     busClient,
		nodes:   make(map[string]*NodeInfo),
		changed: make(chan struct{}),
		cancel:  cancel,
		done:    make(chan struct{}),
		meter:   otel.Meter("github.com/loqalabs/loqa-interview/internal/capability"),
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	if err := r.subscribe(); err != nil {
		r.cancel()
		r.unsubscribe()
		return nil, err
	}

	go r.run(ctx)

	if r.announcing() {
		if err := r.announce(); err != nil {
			r.log.Warn("failed to announce node", slog.String("error", err.Error()))
		}
	}
	// ask nodes that are already up to introduce themselves
	if err := r.bus.PublishJSON(protocol.SubjectNodeQuery, protocol.NodeAnnounce{NodeID: opts.NodeID, Role: opts.Role, Timestamp: time.Now().UTC()}); err != nil {
		r.log.Warn("failed to query nodes", slog.String("error", err.Error()))
	}
	return r, nil
}

func (r *Registry) NodeID() string {
	return r.opts.NodeID
}

// Close withdraws the local node and stops listening.
func (r *Registry) Close() {
	r.cancel()
	<-r.done
	if r.announcing() {
		msg := protocol.NodeAnnounce{NodeID: r.opts.NodeID, Role: r.opts.Role, Timestamp: time.Now().UTC()}
		if err := r.bus.PublishJSON(protocol.SubjectNodeGone, msg); err != nil {
			r.log.Warn("failed to withdraw node", slog.String("error", err.Error()))
		}
	}
	r.unsubscribe()
	if r.reg != nil {
		_ = r.reg.Unregister()
	}
}

func (r *Registry) announcing() bool {
	return len(r.opts.Capabilities) > 0
}

func (r *Registry) subscribe() error {
	conn := r.bus.Conn()
	announceSub, err := conn.Subscribe(protocol.SubjectNodeAnnounce, r.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	r.subs = append(r.subs, announceSub)

	goneSub, err := conn.Subscribe(protocol.SubjectNodeGone, r.handleGone)
	if err != nil {
		return fmt.Errorf("subscribe gone: %w", err)
	}
	r.subs = append(r.subs, goneSub)

	if r.announcing() {
		querySub, err := conn.Subscribe(protocol.SubjectNodeQuery, r.handleQuery)
		if err != nil {
			return fmt.Errorf("subscribe query: %w", err)
		}
		r.subs = append(r.subs, querySub)
	}
	return conn.Flush()
}

func (r *Registry) unsubscribe() {
	for _, sub := range r.subs {
		_ = sub.Unsubscribe()
	}
	r.subs = nil
}

func (r *Registry) run(ctx context.Context) {
	defer close(r.done)
	heartbeat := time.NewTicker(time.Duration(r.cfg.HeartbeatInterval) * time.Millisecond)
	defer heartbeat.Stop()
	health := time.NewTicker(time.Second)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if !r.announcing() {
				continue
			}
			if err := r.announce(); err != nil {
				r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		case <-health.C:
			r.evaluateHealth(time.Now())
		}
	}
}

func (r *Registry) announce() error {
	msg := protocol.NodeAnnounce{
		NodeID:       r.opts.NodeID,
		Role:         r.opts.Role,
		Capabilities: r.opts.Capabilities,
		Timestamp:    time.Now().UTC(),
	}
	return r.bus.PublishJSON(protocol.SubjectNodeAnnounce, msg)
}

func (r *Registry) handleAnnounce(msg *nats.Msg) {
	var announcement protocol.NodeAnnounce
	if err := json.Unmarshal(msg.Data, &announcement); err != nil {
		r.log.Warn("invalid announce message", slog.String("error", err.Error()))
		return
	}
	if announcement.NodeID == "" {
		return
	}
	// sender clocks may drift, so liveness is judged by local receive time
	r.updateNode(announcement.NodeID, announcement.Role, announcement.Capabilities, time.Now())
}

func (r *Registry) handleGone(msg *nats.Msg) {
	var gone protocol.NodeAnnounce
	if err := json.Unmarshal(msg.Data, &gone); err != nil {
		r.log.Warn("invalid gone message", slog.String("error", err.Error()))
		return
	}
	r.mu.Lock()
	delete(r.nodes, gone.NodeID)
	r.mu.Unlock()
	r.log.Info("node left", slog.String("node", gone.NodeID))
}

func (r *Registry) handleQuery(msg *nats.Msg) {
	var query protocol.NodeAnnounce
	if err := json.Unmarshal(msg.Data, &query); err == nil && query.NodeID == r.opts.NodeID {
		return
	}
	if err := r.announce(); err != nil {
		r.log.Warn("failed to answer presence query", slog.String("error", err.Error()))
	}
}

func (r *Registry) updateNode(nodeID, role string, capabilities []Capability, seen time.Time) {
	r.mu.Lock()
	node, ok := r.nodes[nodeID]
	if !ok {
		node = &NodeInfo{ID: nodeID}
		r.nodes[nodeID] = node
		r.log.Info("node joined", slog.String("node", nodeID), slog.String("role", role))
	}
	if role != "" {
		node.Role = role
	}
	if len(capabilities) > 0 {
		node.Capabilities = capabilities
	}
	node.LastSeen = seen
	node.Healthy = true
	// wake everyone blocked in WaitFor
	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()
}

func (r *Registry) evaluateHealth(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timeout := time.Duration(r.cfg.HeartbeatTimeout) * time.Millisecond
	for _, node := range r.nodes {
		if node.Healthy && now.Sub(node.LastSeen) > timeout {
			node.Healthy = false
			r.log.Warn("node missed heartbeats", slog.String("node", node.ID))
		}
	}
}

// Query returns known nodes sorted by id, optionally filtered.
func (r *Registry) Query(filter func(NodeInfo) bool) []NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []NodeInfo
	for _, node := range r.nodes {
		n := *node
		if filter == nil || filter(n) {
			results = append(results, n)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results
}

// WaitFor blocks until a healthy remote node offers the capability.
func (r *Registry) WaitFor(ctx context.Context, name string) (NodeInfo, error) {
	filter := func(n NodeInfo) bool {
		return n.Healthy && n.ID != r.opts.NodeID && n.Has(name)
	}
	for {
		r.mu.RLock()
		changed := r.changed
		r.mu.RUnlock()
		if nodes := r.Query(filter); len(nodes) > 0 {
			return nodes[0], nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return NodeInfo{}, fmt.Errorf("%w: %s", ErrNoProvider, name)
		}
	}
}

func (r *Registry) initMetrics() error {
	gauge, err := r.meter.Int64ObservableGauge("interview.bus.nodes", metric.WithDescription("Healthy nodes by capability"))
	if err != nil {
		return err
	}
	r.nodeGauge = gauge
	r.reg, err = r.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		for name, count := range r.healthyByCapability() {
			obs.ObserveInt64(gauge, count, metric.WithAttributes(attribute.String("capability", name)))
		}
		return nil
	}, gauge)
	return err
}

func (r *Registry) healthyByCapability() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int64)
	for _, node := range r.nodes {
		if !node.Healthy {
			continue
		}
		for _, c := range node.Capabilities {
			counts[c.Name]++
		}
	}
	return counts
}
