// Package node assembles one cluster member's full component set: the
// messaging substrate (pool, server, sender, controller), the gossip
// engine, ring partitioner, storage engine, coordinator, and an admin
// diagnostics service. It generalizes the teacher's single gRPC-heartbeat
// Node into the wiring facade for spec.md's whole component graph.
package node

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gossipring/cassandra/admin"
	"github.com/gossipring/cassandra/coordinator"
	"github.com/gossipring/cassandra/gossip"
	"github.com/gossipring/cassandra/internal/config"
	"github.com/gossipring/cassandra/internal/logger"
	"github.com/gossipring/cassandra/messaging"
	"github.com/gossipring/cassandra/partitioner"
	"github.com/gossipring/cassandra/pool"
	"github.com/gossipring/cassandra/storage"
)

// Node owns one cluster member's components and their lifecycle.
type Node struct {
	config *config.Config

	pool       *pool.Pool
	server     *messaging.Server
	sender     *messaging.Sender
	controller *messaging.Controller
	hub        *messaging.Hub

	gossip      *gossip.Engine
	ring        *partitioner.Ring
	storage     *storage.Engine
	coordinator *coordinator.Coordinator
	admin       *admin.GRPCServer

	mu     sync.RWMutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New wires every component from cfg without starting any of them.
func New(cfg *config.Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("node: invalid config: %w", err)
	}

	p := pool.New()
	controller := messaging.NewController(p, cfg.Conn.ListenAddr, cfg.Conn.Bootstrapper)
	sender := messaging.NewSender(cfg.Conn.ListenAddr, cfg.Server.MaxRetry, p, controller)
	controller.AttachSender(sender)
	server := messaging.NewServer(cfg.Conn.ListenAddr, cfg.Conn.MaxConnections, p, controller)
	hub := messaging.NewHub(controller, sender)

	gossipEngine := gossip.NewEngine(hub, cfg.Conn.ListenAddr, cfg.Conn.Seeds, cfg.Server.GossipInterval)

	ring := partitioner.New(cfg.Partitioner.VNode, cfg.Partitioner.Replica)
	ring.NewPhysicalNode(cfg.Conn.ListenAddr)

	storageEngine, err := storage.NewEngine(hub, cfg.Storager.DatafileDir, cfg.Storager.MaxIndicesInMemory, cfg.Storager.MaxDataPerSSTable)
	if err != nil {
		return nil, fmt.Errorf("node: storage engine: %w", err)
	}

	coord := coordinator.New(hub, ring, cfg.Conn.ListenAddr, cfg.Server.ResponseProtocol, cfg.Partitioner.VNode, cfg.Server.Interval, cfg.Server.ResponseTimeout)

	var adminSrv *admin.GRPCServer
	if cfg.Conn.AdminAddr != "" {
		adminSrv = admin.NewGRPCServer(cfg.Conn.AdminAddr, cfg.NodeID, gossipEngine, ring, storageEngine)
	}

	return &Node{
		config:      cfg,
		pool:        p,
		server:      server,
		sender:      sender,
		controller:  controller,
		hub:         hub,
		gossip:      gossipEngine,
		ring:        ring,
		storage:     storageEngine,
		coordinator: coord,
		admin:       adminSrv,
	}, nil
}

// Start binds the listening socket and launches every component's run loop,
// collecting their errors with an errgroup the way the teacher's node.go
// used a sync.WaitGroup, generalized to several long-running actors instead
// of one gRPC server.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.server.Start(); err != nil {
		return fmt.Errorf("node: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	group, groupCtx := errgroup.WithContext(ctx)
	n.group = group

	group.Go(func() error { n.server.Run(groupCtx); return nil })
	group.Go(func() error { n.sender.Run(); return nil })
	group.Go(func() error { n.controller.Run(groupCtx); return nil })
	group.Go(func() error { n.gossip.Run(groupCtx); return nil })

	ringStop := make(chan struct{})
	go func() {
		<-groupCtx.Done()
		close(ringStop)
	}()
	group.Go(func() error { partitioner.Run(n.hub, n.ring, ringStop); return nil })
	group.Go(func() error { n.storage.Run(groupCtx); return nil })
	group.Go(func() error { n.coordinator.Run(groupCtx); return nil })

	if n.admin != nil {
		group.Go(func() error {
			if err := n.admin.Start(); err != nil {
				logger.Errorf(n.config.NodeID, "admin server: %v", err)
			}
			return nil
		})
	}

	logger.Infof(n.config.NodeID, "node started on %s", n.config.Conn.ListenAddr)
	return nil
}

// Stop cancels every component's context, waits for their run loops to
// return, and flushes the storage engine.
func (n *Node) Stop() error {
	n.mu.Lock()
	cancel := n.cancel
	group := n.group
	sender := n.sender
	adminSrv := n.admin
	n.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if adminSrv != nil {
		adminSrv.Stop()
	}
	_ = sender.Stop()
	if group != nil {
		_ = group.Wait()
	}

	logger.Infof(n.config.NodeID, "node stopped")
	return nil
}

// Config returns the node's configuration.
func (n *Node) Config() *config.Config {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.config
}

// Gossip returns the node's gossip engine, for diagnostics and tests.
func (n *Node) Gossip() *gossip.Engine { return n.gossip }

// Ring returns the node's partitioner ring, for diagnostics and tests.
func (n *Node) Ring() *partitioner.Ring { return n.ring }

// Storage returns the node's storage engine, for diagnostics and tests.
func (n *Node) Storage() *storage.Engine { return n.storage }
