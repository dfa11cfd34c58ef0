package node

import (
	"fmt"
	"sync"

	"github.com/gossipring/cassandra/internal/config"
)

// Manager runs several Nodes in one process, for the dashboard's demo
// cluster. Generalized from the teacher's create/delete-node Manager: each
// new node is seeded with the addresses of nodes already running, so the
// in-process cluster actually gossips and partitions instead of each node
// standing alone.
type Manager struct {
	nodes       []*Node
	nodeMap     map[string]int
	mu          sync.RWMutex
	portCounter int
	nextID      int
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		nodes:       make([]*Node, 0),
		nodeMap:     make(map[string]int),
		portCounter: 9042,
		nextID:      1,
	}
}

// CreateNode builds, starts, and registers a new node, seeded against every
// node already running in this Manager.
func (m *Manager) CreateNode() (*Node, error) {
	m.mu.Lock()

	listenPort := m.portCounter
	adminPort := m.portCounter + 1000
	m.portCounter++

	nodeID := fmt.Sprintf("node-%d", m.nextID)
	m.nextID++

	cfg := config.DefaultConfig(nodeID)
	cfg.Conn.ListenAddr = fmt.Sprintf("127.0.0.1:%d", listenPort)
	cfg.Conn.AdminAddr = fmt.Sprintf("127.0.0.1:%d", adminPort)
	cfg.Storager.DatafileDir = fmt.Sprintf("data/%s", nodeID)

	seeds := make([]string, 0, len(m.nodes))
	for _, existing := range m.nodes {
		seeds = append(seeds, existing.Config().Conn.ListenAddr)
	}
	cfg.Conn.Seeds = seeds
	if len(seeds) > 0 {
		cfg.Conn.Bootstrapper = seeds[0]
	}

	m.mu.Unlock()

	newNode, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("node manager: create node: %w", err)
	}
	if err := newNode.Start(); err != nil {
		return nil, fmt.Errorf("node manager: start node: %w", err)
	}

	m.mu.Lock()
	m.nodes = append(m.nodes, newNode)
	m.nodeMap[nodeID] = len(m.nodes) - 1
	m.mu.Unlock()

	return newNode, nil
}

// DeleteNode stops and removes the node at index.
func (m *Manager) DeleteNode(index int) error {
	m.mu.Lock()
	if index < 0 || index >= len(m.nodes) {
		m.mu.Unlock()
		return fmt.Errorf("node manager: invalid node index %d", index)
	}

	target := m.nodes[index]
	nodeID := target.Config().NodeID

	m.nodes = append(m.nodes[:index], m.nodes[index+1:]...)
	delete(m.nodeMap, nodeID)
	for i, n := range m.nodes {
		m.nodeMap[n.Config().NodeID] = i
	}
	m.mu.Unlock()

	return target.Stop()
}

// GetNodes returns a snapshot of every managed node, in creation order.
func (m *Manager) GetNodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	return nodes
}

// StopAll stops every managed node.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	m.mu.Unlock()

	var errs []error
	for _, n := range nodes {
		if err := n.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("node manager: errors stopping nodes: %v", errs)
	}
	return nil
}
