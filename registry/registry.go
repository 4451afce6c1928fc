// Package registry maintains the in-memory directory of execution nodes
// ("rooms"): their capability sets, instrument inventories and health. The
// conductor and the cross-room composition consult it to decide where work
// should run.
//
// The registry is a single owned structure behind explicit read/write
// operations. Readers observe a consistent snapshot per call (nodes are
// cloned on the way out) but never block writers; concurrent heartbeats for
// the same node are last-writer-wins.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/maestrohq/maestro/core"
	"github.com/maestrohq/maestro/logging"
)

// DefaultHeartbeatTimeout is how stale a node's heartbeat may be before the
// registry flips it offline.
const DefaultHeartbeatTimeout = 90 * time.Second

// Registry is the thread-safe node directory. The zero value is not usable;
// construct with New.
type Registry struct {
	mu               sync.RWMutex
	nodes            map[string]*core.Node
	heartbeatTimeout time.Duration
	logger           logging.Logger
	now              func() time.Time
}

// Options configures a Registry.
type Options struct {
	// HeartbeatTimeout overrides DefaultHeartbeatTimeout when positive.
	HeartbeatTimeout time.Duration
	// Logger defaults to NoOpLogger when nil.
	Logger logging.Logger
}

// New constructs an empty registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{HeartbeatTimeout: DefaultHeartbeatTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Registry{
		nodes:            make(map[string]*core.Node),
		heartbeatTimeout: opts.HeartbeatTimeout,
		logger:           opts.Logger,
		now:              time.Now,
	}
}

// Register adds or replaces a node. The node's heartbeat is stamped to now
// and its status defaults to online when unset.
func (r *Registry) Register(node *core.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := node.Clone()
	entry.LastHeartbeat = r.now()
	if entry.Status == "" {
		entry.Status = core.NodeStatusOnline
	}
	r.nodes[entry.ID] = entry
	r.logger.Info("node registered", "node_id", entry.ID, "type", string(entry.Type))
}

// RegisterLocalNode registers the process's own node. It is always of type
// server, always online, and exempt from heartbeat timeout checks.
func (r *Registry) RegisterLocalNode(capabilities, instruments []string) *core.Node {
	node := &core.Node{
		ID:           core.ServerNodeID,
		Name:         "server",
		Type:         core.NodeTypeServer,
		Capabilities: capabilities,
		Instruments:  instruments,
		Status:       core.NodeStatusOnline,
	}
	r.Register(node)
	return node.Clone()
}

// Deregister removes a node. Removing an unknown id is a no-op.
func (r *Registry) Deregister(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[nodeID]; ok {
		delete(r.nodes, nodeID)
		r.logger.Info("node deregistered", "node_id", nodeID)
	}
}

// Heartbeat records a liveness report from a node, updating its status and
// optionally its capability set. Unknown ids yield UnknownNodeError; a
// heartbeat never implicitly re-registers a node.
func (r *Registry) Heartbeat(nodeID string, status core.NodeStatus, capabilities []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[nodeID]
	if !ok {
		return &core.UnknownNodeError{ID: nodeID}
	}

	node.LastHeartbeat = r.now()
	if status != "" {
		node.Status = status
	}
	if capabilities != nil {
		node.Capabilities = append([]string(nil), capabilities...)
	}
	return nil
}

// Node returns a snapshot of the node with the given id, or an error if it
// is unknown.
func (r *Registry) Node(nodeID string) (*core.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node, ok := r.nodes[nodeID]
	if !ok {
		return nil, &core.UnknownNodeError{ID: nodeID}
	}
	return node.Clone(), nil
}

// Nodes returns a snapshot of every known node, ordered by id.
func (r *Registry) Nodes() []*core.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		out = append(out, node.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OnlineNodes re-evaluates each node's status against the heartbeat timeout,
// then returns snapshots of the nodes still online. A node whose last
// heartbeat is older than the timeout is flipped offline as a side effect of
// this check; there is no separate sweep goroutine. The server node is
// exempt from the timeout.
func (r *Registry) OnlineNodes() []*core.Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireStaleLocked()

	out := make([]*core.Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		if node.Status == core.NodeStatusOnline {
			out = append(out, node.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TaskQuery narrows node selection for one piece of work.
type TaskQuery struct {
	// RequiredCapabilities must all be present on a candidate node.
	RequiredCapabilities []string
	// PreferLocal biases scoring toward local-type nodes (privacy hint).
	PreferLocal bool
	// PreferredType, when set, gives nodes of that type a scoring bonus.
	PreferredType core.NodeType
}

// BestNodeForTask filters to online nodes satisfying the required capability
// set and returns the top-scoring candidate, or nil when no node qualifies.
// Scoring: a strong bonus for local-type nodes when PreferLocal is set, a
// capability-breadth bonus otherwise, plus a preferred-type bonus. Ties break
// by node id for determinism.
func (r *Registry) BestNodeForTask(q TaskQuery) *core.Node {
	candidates := r.OnlineNodes()

	var best *core.Node
	bestScore := -1
	for _, node := range candidates {
		if !node.HasCapabilities(q.RequiredCapabilities) {
			continue
		}
		score := r.scoreNode(node, q)
		// Candidates arrive sorted by id, so keeping the first winner on
		// equal scores yields the lowest id.
		if score > bestScore {
			best = node
			bestScore = score
		}
	}
	return best
}

func (r *Registry) scoreNode(node *core.Node, q TaskQuery) int {
	score := 0
	if q.PreferLocal {
		if node.Type == core.NodeTypeLocal {
			score += 100
		}
	} else {
		score += len(node.Capabilities)
	}
	if q.PreferredType != "" && node.Type == q.PreferredType {
		score += 50
	}
	return score
}

// LocalCapableNode picks a node for work that must stay local: a local-type
// node if any is known, even a degraded one, otherwise the server node.
// Offline nodes are never returned.
func (r *Registry) LocalCapableNode() *core.Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireStaleLocked()

	var fallback *core.Node
	for _, node := range r.nodes {
		if node.Status == core.NodeStatusOffline {
			continue
		}
		if node.Type == core.NodeTypeLocal {
			return node.Clone()
		}
		if node.ID == core.ServerNodeID {
			fallback = node
		}
	}
	if fallback != nil {
		return fallback.Clone()
	}
	return nil
}

// DegradationStatus aggregates system health for callers that need a single
// picture of what the mesh can still do.
type DegradationStatus struct {
	// FullyOperational is true only when no node is degraded or offline.
	FullyOperational bool     `json:"fully_operational"`
	OnlineNodes      []string `json:"online_nodes"`
	DegradedNodes    []string `json:"degraded_nodes"`
	OfflineNodes     []string `json:"offline_nodes"`
	// AvailableCapabilities is the union of capabilities over online nodes
	// only: a capability disappears once every node providing it is degraded
	// or down, even if other nodes remain up.
	AvailableCapabilities []string `json:"available_capabilities"`
}

// GetDegradationStatus re-evaluates heartbeats and reports aggregate health.
func (r *Registry) GetDegradationStatus() DegradationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireStaleLocked()

	status := DegradationStatus{FullyOperational: true}
	capSet := map[string]struct{}{}
	for _, node := range r.nodes {
		switch node.Status {
		case core.NodeStatusOnline:
			status.OnlineNodes = append(status.OnlineNodes, node.ID)
			for _, c := range node.Capabilities {
				capSet[c] = struct{}{}
			}
		case core.NodeStatusDegraded:
			status.DegradedNodes = append(status.DegradedNodes, node.ID)
			status.FullyOperational = false
		default:
			status.OfflineNodes = append(status.OfflineNodes, node.ID)
			status.FullyOperational = false
		}
	}
	sort.Strings(status.OnlineNodes)
	sort.Strings(status.DegradedNodes)
	sort.Strings(status.OfflineNodes)
	for c := range capSet {
		status.AvailableCapabilities = append(status.AvailableCapabilities, c)
	}
	sort.Strings(status.AvailableCapabilities)
	return status
}

// expireStaleLocked flips nodes whose heartbeat aged past the timeout to
// offline. Caller must hold the write lock. The server node never expires.
func (r *Registry) expireStaleLocked() {
	cutoff := r.now().Add(-r.heartbeatTimeout)
	for _, node := range r.nodes {
		if node.ID == core.ServerNodeID {
			continue
		}
		if node.Status != core.NodeStatusOffline && node.LastHeartbeat.Before(cutoff) {
			node.Status = core.NodeStatusOffline
			r.logger.Warn("node heartbeat expired", "node_id", node.ID, "last_heartbeat", node.LastHeartbeat)
		}
	}
}
