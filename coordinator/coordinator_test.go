package coordinator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gossipring/cassandra/internal/wire"
	"github.com/gossipring/cassandra/messaging"
	"github.com/gossipring/cassandra/partitioner"
	"github.com/gossipring/cassandra/pool"
)

func newTestCoordinator(t *testing.T, responseProtocol string, vnode int) (*Coordinator, *messaging.Controller, *messaging.Sender) {
	t.Helper()
	p := pool.New()
	controller := messaging.NewController(p, "coord:1", "")
	sender := messaging.NewSender("coord:1", 3, p, controller)
	hub := messaging.NewHub(controller, sender)

	ring := partitioner.New(3, 3)
	ring.NewPhysicalNode("a:1")
	ring.NewPhysicalNode("b:1")
	ring.NewPhysicalNode("c:1")

	return New(hub, ring, "coord:1", responseProtocol, vnode, time.Hour, time.Hour), controller, sender
}

func TestQuorumThresholds(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "any", 3)
	if got := c.quorumThreshold(); got != 1 {
		t.Fatalf("any: expected 1, got %d", got)
	}
	c.responseProtocol = "all"
	if got := c.quorumThreshold(); got != 3 {
		t.Fatalf("all: expected 3 (vnode), got %d", got)
	}
	c.responseProtocol = "2"
	if got := c.quorumThreshold(); got != 2 {
		t.Fatalf("integer: expected 2, got %d", got)
	}
}

func TestModalResponseSelectsMajority(t *testing.T) {
	stale := wire.ResponsePayload{Status: true, Description: []interface{}{"stale", float64(1)}, RequestHash: 1}
	fresh := wire.ResponsePayload{Status: true, Description: []interface{}{"fresh", float64(2)}, RequestHash: 1}

	responses := map[string]*wire.ResponsePayload{
		"a:1": &stale,
		"b:1": &fresh,
		"c:1": &fresh,
	}

	got := modalResponse(responses)
	if got.Description.([]interface{})[0] != "fresh" {
		t.Fatalf("expected modal response 'fresh', got %+v", got)
	}
}

func TestPendingEntryTracksExactReplicaSet(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "all", 3)

	req := wire.RequestPayload{Request: []interface{}{"get", "mykey"}, ClientAddr: "client:1"}
	req.RequestHash = RequestHash(req.ClientAddr, req.Request)

	replicas, err := c.ring.FindReplicas("mykey")
	if err != nil {
		t.Fatalf("FindReplicas: %v", err)
	}
	c.fanOut(req, replicas)

	c.mu.Lock()
	entry, ok := c.pending[req.RequestHash]
	c.mu.Unlock()
	if !ok {
		t.Fatal("expected pending entry after fanOut")
	}
	if len(entry.responses) != len(replicas) {
		t.Fatalf("expected %d response slots, got %d", len(replicas), len(entry.responses))
	}
	for addr, r := range entry.responses {
		if r != nil {
			t.Fatalf("expected nil response slot for %s before any reply", addr)
		}
	}
}

func TestSweepExpiredRemovesStalePendingEntries(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "all", 3)
	c.responseTimeout = time.Millisecond

	req := wire.RequestPayload{Request: []interface{}{"get", "k"}, ClientAddr: "client:1"}
	req.RequestHash = RequestHash(req.ClientAddr, req.Request)
	replicas, _ := c.ring.FindReplicas("k")
	c.fanOut(req, replicas)

	time.Sleep(5 * time.Millisecond)
	c.sweepExpired()

	c.mu.Lock()
	_, stillPending := c.pending[req.RequestHash]
	c.mu.Unlock()
	if stillPending {
		t.Fatal("expected expired pending entry to be swept")
	}
}

func TestRequestHashMismatchIsRejected(t *testing.T) {
	c, controller, sender := newTestCoordinator(t, "any", 3)
	inbox := controller.Register(wire.CodeResponse, "test-client")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go controller.Run(ctx)
	go sender.Run()
	defer sender.Stop()

	req := wire.RequestPayload{Request: []interface{}{"get", "k"}, ClientAddr: "coord:1", RequestHash: 12345}
	data, _ := json.Marshal(req)

	c.handleRequest(messaging.Message{Code: wire.CodeRequest, Data: data})

	select {
	case m := <-inbox:
		var resp wire.ResponsePayload
		if err := json.Unmarshal(m.Data, &resp); err != nil {
			t.Fatalf("decode reply: %v", err)
		}
		if resp.Status {
			t.Fatal("expected status=false for hash mismatch")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for rejection reply")
	}
}
