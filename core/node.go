package core

import "time"

// NodeType categorizes an execution location. The local process always
// registers itself as NodeTypeServer; user devices register as NodeTypeLocal.
type NodeType string

const (
	// NodeTypeServer is the process's own node, registered once at startup.
	NodeTypeServer NodeType = "server"
	// NodeTypeLocal is an end-user device node (phone, desktop companion).
	NodeTypeLocal NodeType = "local"
	// NodeTypeOther is any remote node that is neither the server nor a
	// user device.
	NodeTypeOther NodeType = "other"
)

// NodeStatus is the health classification maintained by the node registry.
type NodeStatus string

const (
	NodeStatusOnline   NodeStatus = "online"
	NodeStatusDegraded NodeStatus = "degraded"
	NodeStatusOffline  NodeStatus = "offline"
)

// ServerNodeID is the registry id of the local process's own node. Failover
// always lands here.
const ServerNodeID = "server"

// Node describes one execution location (a "room"): where it is, what it can
// do, and how healthy it is. Registry entries are mutated only through
// register/heartbeat/deregister and the lazy heartbeat-timeout check.
type Node struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Type          NodeType   `json:"type"`
	Address       string     `json:"address,omitempty"`
	Capabilities  []string   `json:"capabilities,omitempty"`
	Instruments   []string   `json:"instruments,omitempty"`
	Status        NodeStatus `json:"status"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`
}

// Clone returns a deep copy so registry readers observe a consistent snapshot
// without blocking writers.
func (n *Node) Clone() *Node {
	clone := *n
	clone.Capabilities = copyStrings(n.Capabilities)
	clone.Instruments = copyStrings(n.Instruments)
	return &clone
}

// HasCapabilities reports whether the node's capability set is a superset of
// the required set. An empty requirement is satisfied by every node.
func (n *Node) HasCapabilities(required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(n.Capabilities))
	for _, c := range n.Capabilities {
		have[c] = struct{}{}
	}
	for _, c := range required {
		if _, ok := have[c]; !ok {
			return false
		}
	}
	return true
}

// HasInstrument reports whether the node advertises the named instrument.
func (n *Node) HasInstrument(name string) bool {
	for _, i := range n.Instruments {
		if i == name {
			return true
		}
	}
	return false
}
