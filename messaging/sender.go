package messaging

import (
	"net"
	"time"

	"github.com/gossipring/cassandra/internal/logger"
	"github.com/gossipring/cassandra/internal/wire"
	"github.com/gossipring/cassandra/pool"
)

const senderQueueCapacity = 256

// Sender is the single actor that owns all outbound I/O (spec.md §4.4). It
// consumes a work queue of SEND_MESSAGE / NEW_CONNECTION items; no other
// actor ever writes to a peer socket.
type Sender struct {
	localAddr  string
	maxRetry   int
	pool       *pool.Pool
	controller *Controller

	work     chan senderItem
	shutdown chan chan error
}

// NewSender builds a Sender bound to localAddr (used both for loopback
// detection and as the source address stamped on outgoing frames).
func NewSender(localAddr string, maxRetry int, p *pool.Pool, c *Controller) *Sender {
	return &Sender{
		localAddr:  localAddr,
		maxRetry:   maxRetry,
		pool:       p,
		controller: c,
		work:       make(chan senderItem, senderQueueCapacity),
		shutdown:   make(chan chan error),
	}
}

// Enqueue submits work to the Sender. Safe for concurrent use.
func (s *Sender) Enqueue(item senderItem) {
	s.work <- item
}

// EnqueueSend is the public form of a SEND_MESSAGE work item.
func (s *Sender) EnqueueSend(identifier string, m Message) {
	s.Enqueue(senderItem{kind: senderItemSend, identifier: identifier, message: m})
}

// EnqueueNewConnection is the public form of a NEW_CONNECTION work item.
func (s *Sender) EnqueueNewConnection(identifier string) {
	s.Enqueue(senderItem{kind: senderItemNewConnection, identifier: identifier})
}

// Run processes the work queue until Stop is called.
func (s *Sender) Run() {
	for {
		select {
		case respCh := <-s.shutdown:
			respCh <- nil
			return
		case item := <-s.work:
			switch item.kind {
			case senderItemSend:
				s.handleSend(item.identifier, item.message)
			case senderItemNewConnection:
				s.handleNewConnection(item.identifier)
			}
		}
	}
}

// Stop signals the run loop to exit and waits for the acknowledgement.
func (s *Sender) Stop() error {
	errCh := make(chan error)
	s.shutdown <- errCh
	return <-errCh
}

func (s *Sender) handleSend(identifier string, m Message) {
	if identifier == s.localAddr {
		s.controller.postReceived(identifier, m)
		return
	}

	conn, err := s.pool.Get(identifier)
	if err != nil {
		if m.RetryCounter >= s.maxRetry {
			logger.Errorf("sender", "giving up on %s after %d retries", identifier, m.RetryCounter)
			return
		}
		s.Enqueue(senderItem{kind: senderItemNewConnection, identifier: identifier})
		retry := m
		retry.RetryCounter++
		s.Enqueue(senderItem{kind: senderItemSend, identifier: identifier, message: retry})
		return
	}

	frame := wire.Frame{Code: m.Code, SourceAddr: s.localAddr, Payload: m.Data}
	encoded, err := wire.Encode(frame)
	if err != nil {
		logger.Errorf("sender", "encode message for %s: %v", identifier, err)
		return
	}
	if _, err := conn.Socket.Write(encoded); err != nil {
		s.pool.Remove(conn.RemoteAddr)
		logger.Errorf("sender", "write to %s failed: %v", identifier, err)
	}
}

func (s *Sender) handleNewConnection(identifier string) {
	go s.establishConnection(identifier)
}

func (s *Sender) establishConnection(identifier string) {
	conn, err := s.dialWithRetry(identifier)
	if err != nil {
		logger.Errorf("sender", "failed to connect to %s: %v", identifier, err)
		return
	}

	if _, err := s.pool.Add(identifier, conn, identifier); err != nil {
		logger.Errorf("sender", "pool.Add(%s): %v", identifier, err)
		conn.Close()
		return
	}

	recv := NewReceiver(conn, identifier, s.pool, s.controller)
	go recv.Run()

	s.controller.postNewConnection(identifier)

	handshake := wire.Frame{Code: wire.CodeNewConnectionHandshake, SourceAddr: s.localAddr}
	encoded, err := wire.Encode(handshake)
	if err != nil {
		logger.Errorf("sender", "encode handshake for %s: %v", identifier, err)
		return
	}
	if _, err := conn.Write(encoded); err != nil {
		logger.Errorf("sender", "handshake write to %s failed: %v", identifier, err)
	}
}

func (s *Sender) dialWithRetry(identifier string) (net.Conn, error) {
	backoff := time.Second
	var lastErr error
	for attempt := 0; attempt < s.maxRetry; attempt++ {
		conn, err := net.Dial("tcp", identifier)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt < s.maxRetry-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return nil, lastErr
}
