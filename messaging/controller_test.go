package messaging

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gossipring/cassandra/internal/wire"
	"github.com/gossipring/cassandra/pool"
)

func runController(t *testing.T, c *Controller) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	return cancel
}

func TestRegisterIsIdempotent(t *testing.T) {
	c := NewController(pool.New(), "127.0.0.1:1", "")
	inbox1 := c.Register(wire.CodeGossip, "gossiper")
	inbox2 := c.Register(wire.CodeGossip, "gossiper")
	if inbox1 != inbox2 {
		t.Fatal("expected Register to return the same inbox on repeat calls")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	c := NewController(pool.New(), "127.0.0.1:1", "")
	a := c.Register(wire.CodeRequest, "coordinator")
	b := c.Register(wire.CodeRequest, "storage")
	cancel := runController(t, c)
	defer cancel()

	c.postReceived("10.0.0.1:1", Message{Code: wire.CodeRequest, SourceAddr: "10.0.0.1:1", Data: []byte("x")})

	for _, inbox := range []chan Message{a, b} {
		select {
		case m := <-inbox:
			if m.Code != wire.CodeRequest {
				t.Fatalf("unexpected code %v", m.Code)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for dispatched message")
		}
	}
}

func TestHandshakeUpdatesAliasAndSynthesizesNewConnection(t *testing.T) {
	p := pool.New()
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	p.Add("10.0.0.5:5000", client, "")

	c := NewController(p, "127.0.0.1:1", "")
	inbox := c.Register(wire.CodeNewConnection, "gossiper")
	cancel := runController(t, c)
	defer cancel()

	c.postReceived("10.0.0.5:5000", Message{Code: wire.CodeNewConnectionHandshake, SourceAddr: "10.0.0.5:9042"})

	select {
	case m := <-inbox:
		if m.SourceAddr != "10.0.0.5:9042" {
			t.Fatalf("expected synthesized NEW_CONNECTION to carry the canonical alias, got %q", m.SourceAddr)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for synthesized NEW_CONNECTION")
	}

	conn, err := p.Get("10.0.0.5:9042")
	if err != nil {
		t.Fatalf("expected alias to resolve after handshake: %v", err)
	}
	if conn.RemoteAddr != "10.0.0.5:5000" {
		t.Fatalf("unexpected remote addr %q", conn.RemoteAddr)
	}
}

func TestConnectionLostPublishesToSubscribers(t *testing.T) {
	c := NewController(pool.New(), "127.0.0.1:1", "")
	inbox := c.Register(wire.CodeConnectionLost, "gossiper")
	cancel := runController(t, c)
	defer cancel()

	c.postConnectionLost("10.0.0.9:9000")

	select {
	case m := <-inbox:
		if m.SourceAddr != "10.0.0.9:9000" {
			t.Fatalf("unexpected source addr %q", m.SourceAddr)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for CONNECTION_LOST")
	}
}
