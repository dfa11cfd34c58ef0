package messaging

import "github.com/gossipring/cassandra/internal/wire"

// Hub is the single dependency in-node Applications take on the messaging
// substrate (spec.md §2): it wraps the Controller and Sender behind three
// verbs so gossip, the partitioner, storage, and the coordinator never hold
// a direct reference to either.
type Hub struct {
	controller *Controller
	sender     *Sender
}

// NewHub builds a Hub over an already-wired Controller/Sender pair.
func NewHub(c *Controller, s *Sender) *Hub {
	return &Hub{controller: c, sender: s}
}

// Register subscribes subscriber to code and returns its private inbox.
func (h *Hub) Register(code wire.Code, subscriber string) chan Message {
	return h.controller.Register(code, subscriber)
}

// Send enqueues an outbound message to identifier (a live alias or raw
// remote address; the local address loops back in-process).
func (h *Hub) Send(identifier string, m Message) {
	h.sender.EnqueueSend(identifier, m)
}

// Notify publishes an intra-process notification to every subscriber of
// m.Code, without touching the network.
func (h *Hub) Notify(m Message) {
	h.controller.PostNotification(m)
}
