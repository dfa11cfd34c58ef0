package messaging

import (
	"context"
	"sync"

	"github.com/gossipring/cassandra/internal/logger"
	"github.com/gossipring/cassandra/internal/wire"
	"github.com/gossipring/cassandra/pool"
)

const inboxCapacity = 256
const inboundQueueCapacity = 1024

// Controller is the pub/sub router of spec.md §4.5. Applications register
// interest in a wire.Code and receive a private inbox channel; the
// Controller's run loop drains one shared inbound queue and fans each item
// out to every subscriber of its code.
type Controller struct {
	mu      sync.Mutex
	subs    map[wire.Code][]string
	inboxes map[string]chan Message

	pool         *pool.Pool
	sender       *Sender
	inbound      chan inboundItem
	localAddr    string
	bootstrapper string
}

// NewController builds a Controller. bootstrapper may be empty.
func NewController(p *pool.Pool, localAddr, bootstrapper string) *Controller {
	return &Controller{
		subs:         make(map[wire.Code][]string),
		inboxes:      make(map[string]chan Message),
		pool:         p,
		inbound:      make(chan inboundItem, inboundQueueCapacity),
		localAddr:    localAddr,
		bootstrapper: bootstrapper,
	}
}

// AttachSender wires the Sender the Controller uses to issue the startup
// bootstrap NEW_CONNECTION. NewSender takes the Controller, so the Sender is
// built second and attached here once both exist.
func (c *Controller) AttachSender(s *Sender) {
	c.sender = s
}

// Register subscribes subscriber to code, idempotently, and returns its
// private inbox. Calling Register again for the same (code, subscriber)
// pair is a no-op beyond returning the existing inbox.
func (c *Controller) Register(code wire.Code, subscriber string) chan Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	inbox, ok := c.inboxes[subscriber]
	if !ok {
		inbox = make(chan Message, inboxCapacity)
		c.inboxes[subscriber] = inbox
	}

	for _, s := range c.subs[code] {
		if s == subscriber {
			return inbox
		}
	}
	c.subs[code] = append(c.subs[code], subscriber)
	return inbox
}

// Run drains the inbound queue until ctx is cancelled. On startup, if a
// bootstrapper is configured, it enqueues a NEW_CONNECTION to the Sender.
func (c *Controller) Run(ctx context.Context) {
	if c.bootstrapper != "" && c.sender != nil {
		c.sender.EnqueueNewConnection(c.bootstrapper)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case item := <-c.inbound:
			c.dispatch(item)
		}
	}
}

func (c *Controller) postReceived(identifier string, m Message) {
	c.inbound <- inboundItem{kind: itemReceived, identifier: identifier, message: m}
}

func (c *Controller) postNewConnection(identifier string) {
	c.inbound <- inboundItem{kind: itemNewConnection, identifier: identifier}
}

func (c *Controller) postConnectionLost(identifier string) {
	c.inbound <- inboundItem{kind: itemConnectionLost, identifier: identifier}
}

// PostNotification lets an Application publish an intra-process NOTIFICATION
// item, dispatched to subscribers of message.Code exactly as if it had
// arrived over the wire.
func (c *Controller) PostNotification(m Message) {
	c.inbound <- inboundItem{kind: itemNotification, message: m}
}

func (c *Controller) dispatch(item inboundItem) {
	switch item.kind {
	case itemReceived:
		c.dispatchReceived(item)
	case itemNewConnection:
		c.publish(wire.CodeNewConnection, Message{Code: wire.CodeNewConnection, SourceAddr: item.identifier})
	case itemConnectionLost:
		c.publish(wire.CodeConnectionLost, Message{Code: wire.CodeConnectionLost, SourceAddr: item.identifier})
	case itemNotification:
		c.publish(item.message.Code, item.message)
	default:
		logger.Errorf("controller", "unexpected inbound item kind %d", item.kind)
	}
}

func (c *Controller) dispatchReceived(item inboundItem) {
	m := item.message
	if m.Code == wire.CodeNewConnectionHandshake {
		if err := c.pool.Update(item.identifier, m.SourceAddr); err != nil {
			logger.Errorf("controller", "handshake alias update for %s -> %s failed: %v", item.identifier, m.SourceAddr, err)
			return
		}
		c.publish(wire.CodeNewConnection, Message{Code: wire.CodeNewConnection, SourceAddr: m.SourceAddr})
		return
	}
	c.publish(m.Code, m)
}

func (c *Controller) publish(code wire.Code, m Message) {
	c.mu.Lock()
	subscribers := append([]string(nil), c.subs[code]...)
	inboxes := make([]chan Message, 0, len(subscribers))
	for _, s := range subscribers {
		if inbox, ok := c.inboxes[s]; ok {
			inboxes = append(inboxes, inbox)
		}
	}
	c.mu.Unlock()

	for _, inbox := range inboxes {
		select {
		case inbox <- m:
		default:
			logger.Errorf("controller", "subscriber inbox full, dropping %s message", code)
		}
	}
}
