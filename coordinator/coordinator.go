// Package coordinator implements the request fan-out/quorum-reconciliation
// actor of spec.md §4.9: it accepts client REQUESTs, fans get/put operations
// out to the owning replica set via the ring partitioner, and answers the
// client with the majority response once enough replicas have answered.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"reflect"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gossipring/cassandra/internal/logger"
	"github.com/gossipring/cassandra/internal/wire"
	"github.com/gossipring/cassandra/messaging"
	"github.com/gossipring/cassandra/partitioner"
)

const subscriberName = "coordinator"

type pendingEntry struct {
	clientAddr string
	replicas   []string
	responses  map[string]*wire.ResponsePayload // addr -> response, nil until filled
	createdAt  time.Time
}

// Coordinator fans REQUESTs out to replicas and reconciles their RESPONSEs.
// pending is guarded by its own mutex, per spec.md §5's explicit carve-out
// alongside the connection pool as the system's only other shared state.
type Coordinator struct {
	mu      sync.Mutex
	pending map[int32]*pendingEntry

	configMu sync.RWMutex
	config   map[string]string

	hub              *messaging.Hub
	ring             *partitioner.Ring
	localAddr        string
	responseProtocol string
	vnode            int
	interval         time.Duration
	responseTimeout  time.Duration
}

// New builds a Coordinator. responseProtocol is "any", "all", or a decimal
// integer threshold, per spec.md §6's SERVER.response_protocol key.
func New(hub *messaging.Hub, ring *partitioner.Ring, localAddr, responseProtocol string, vnode int, interval, responseTimeout time.Duration) *Coordinator {
	return &Coordinator{
		pending:          make(map[int32]*pendingEntry),
		config:           make(map[string]string),
		hub:              hub,
		ring:             ring,
		localAddr:        localAddr,
		responseProtocol: responseProtocol,
		vnode:            vnode,
		interval:         interval,
		responseTimeout:  responseTimeout,
	}
}

// Run subscribes to REQUEST and RESPONSE and drives the timeout sweep.
func (c *Coordinator) Run(ctx context.Context) {
	inbox := c.hub.Register(wire.CodeRequest, subscriberName)
	c.hub.Register(wire.CodeResponse, subscriberName)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepExpired()
		case m := <-inbox:
			switch m.Code {
			case wire.CodeRequest:
				c.handleRequest(m)
			case wire.CodeResponse:
				c.handleResponse(m)
			}
		}
	}
}

func (c *Coordinator) handleRequest(m messaging.Message) {
	var req wire.RequestPayload
	if err := json.Unmarshal(m.Data, &req); err != nil {
		logger.Errorf("coordinator", "decode request from %s: %v", m.SourceAddr, err)
		return
	}

	if req.RequestHash != requestHash(req.ClientAddr, req.Request) {
		c.reply(req.ClientAddr, req.RequestHash, false, "request hash mismatch")
		return
	}

	if len(req.Request) == 0 {
		c.reply(req.ClientAddr, req.RequestHash, false, "empty request")
		return
	}
	op, _ := req.Request[0].(string)

	switch op {
	case "get", "put":
		if len(req.Request) < 2 {
			c.reply(req.ClientAddr, req.RequestHash, false, fmt.Sprintf("%s requires a key", op))
			return
		}
		key, _ := req.Request[1].(string)
		replicas, err := c.ring.FindReplicas(key)
		if err != nil {
			c.reply(req.ClientAddr, req.RequestHash, false, err.Error())
			return
		}
		c.fanOut(req, replicas)

	case "set":
		c.handleSet(req)

	default:
		c.reply(req.ClientAddr, req.RequestHash, false, fmt.Sprintf("unknown operation %q", op))
	}
}

func (c *Coordinator) fanOut(req wire.RequestPayload, replicas []string) {
	c.mu.Lock()
	if _, exists := c.pending[req.RequestHash]; exists {
		c.mu.Unlock()
		logger.Errorf("coordinator", "request_hash %d already pending, dropping duplicate from %s", req.RequestHash, req.ClientAddr)
		return
	}

	responses := make(map[string]*wire.ResponsePayload, len(replicas))
	for _, addr := range replicas {
		responses[addr] = nil
	}
	c.pending[req.RequestHash] = &pendingEntry{
		clientAddr: req.ClientAddr,
		replicas:   replicas,
		responses:  responses,
		createdAt:  time.Now(),
	}
	c.mu.Unlock()

	payload, err := json.Marshal(wire.RequestPayload{Request: req.Request, RequestHash: req.RequestHash, ClientAddr: req.ClientAddr})
	if err != nil {
		logger.Errorf("coordinator", "encode fan-out request: %v", err)
		return
	}
	for _, addr := range replicas {
		c.hub.Send(addr, messaging.Message{Code: wire.CodeRequest, Data: payload})
	}
}

func (c *Coordinator) handleSet(req wire.RequestPayload) {
	if len(req.Request) < 3 {
		c.reply(req.ClientAddr, req.RequestHash, false, "set requires a key and a value")
		return
	}
	key, _ := req.Request[1].(string)
	value, _ := req.Request[2].(string)

	c.configMu.Lock()
	c.config[key] = value
	c.configMu.Unlock()

	c.reply(req.ClientAddr, req.RequestHash, true, fmt.Sprintf("%s=%s", key, value))
}

func (c *Coordinator) handleResponse(m messaging.Message) {
	var resp wire.ResponsePayload
	if err := json.Unmarshal(m.Data, &resp); err != nil {
		logger.Errorf("coordinator", "decode response from %s: %v", m.SourceAddr, err)
		return
	}

	c.mu.Lock()
	entry, known := c.pending[resp.RequestHash]
	if !known {
		c.mu.Unlock()
		logger.Infof("coordinator", "dropping response for unknown request_hash %d from %s", resp.RequestHash, m.SourceAddr)
		return
	}
	if existing, slotted := entry.responses[m.SourceAddr]; !slotted {
		c.mu.Unlock()
		logger.Errorf("coordinator", "response from %s not in replica set for request_hash %d", m.SourceAddr, resp.RequestHash)
		return
	} else if existing != nil {
		c.mu.Unlock()
		logger.Infof("coordinator", "duplicate response from %s for request_hash %d, dropping", m.SourceAddr, resp.RequestHash)
		return
	}

	respCopy := resp
	entry.responses[m.SourceAddr] = &respCopy

	if !c.quorumReachedLocked(entry) {
		c.mu.Unlock()
		return
	}

	winner := modalResponse(entry.responses)
	clientAddr := entry.clientAddr
	delete(c.pending, resp.RequestHash)
	c.mu.Unlock()

	payload, err := json.Marshal(winner)
	if err != nil {
		logger.Errorf("coordinator", "encode client reply: %v", err)
		return
	}
	c.hub.Send(clientAddr, messaging.Message{Code: wire.CodeResponse, Data: payload})
}

// quorumReachedLocked reports whether enough replicas have answered, per the
// response_protocol policy. Caller must hold mu.
func (c *Coordinator) quorumReachedLocked(entry *pendingEntry) bool {
	threshold := c.quorumThreshold()
	answered := 0
	for _, r := range entry.responses {
		if r != nil {
			answered++
		}
	}
	return answered >= threshold
}

func (c *Coordinator) quorumThreshold() int {
	switch c.responseProtocol {
	case "any":
		return 1
	case "all":
		return c.vnode
	default:
		if n, err := strconv.Atoi(c.responseProtocol); err == nil && n > 0 {
			return n
		}
		return 1
	}
}

// modalResponse picks the majority response by deep-equal value. Responses
// are visited in ascending address order, and a tie goes to the bucket
// whose first member has the lowest address, so selection is deterministic.
func modalResponse(responses map[string]*wire.ResponsePayload) wire.ResponsePayload {
	addrs := make([]string, 0, len(responses))
	for addr := range responses {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	type bucket struct {
		value wire.ResponsePayload
		count int
	}
	var buckets []bucket
	for _, addr := range addrs {
		r := responses[addr]
		if r == nil {
			continue
		}
		placed := false
		for i := range buckets {
			if reflect.DeepEqual(buckets[i].value, *r) {
				buckets[i].count++
				placed = true
				break
			}
		}
		if !placed {
			buckets = append(buckets, bucket{value: *r, count: 1})
		}
	}

	best := buckets[0]
	for _, b := range buckets[1:] {
		if b.count > best.count {
			best = b
		}
	}
	return best.value
}

func (c *Coordinator) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-c.responseTimeout)
	for hash, entry := range c.pending {
		if entry.createdAt.Before(cutoff) {
			delete(c.pending, hash)
			logger.Infof("coordinator", "pending request_hash %d expired without quorum", hash)
		}
	}
}

func (c *Coordinator) reply(clientAddr string, requestHash int32, status bool, description interface{}) {
	payload, err := json.Marshal(wire.ResponsePayload{Status: status, Description: description, RequestHash: requestHash})
	if err != nil {
		logger.Errorf("coordinator", "encode reply to %s: %v", clientAddr, err)
		return
	}
	c.hub.Send(clientAddr, messaging.Message{Code: wire.CodeResponse, Data: payload})
}

// requestHash mirrors the client-side hash so the coordinator can reject
// tampered or malformed requests before committing resources to them.
func requestHash(clientAddr string, request []interface{}) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientAddr))
	encoded, _ := json.Marshal(request)
	_, _ = h.Write(encoded)
	return int32(h.Sum32())
}

// RequestHash is the exported form clients use to stamp outgoing requests.
func RequestHash(clientAddr string, request []interface{}) int32 {
	return requestHash(clientAddr, request)
}
