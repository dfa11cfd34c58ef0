package node

import (
	"testing"
	"time"

	"github.com/gossipring/cassandra/internal/config"
)

func testConfig(t *testing.T, listenAddr string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig("test-node")
	cfg.Conn.ListenAddr = listenAddr
	cfg.Conn.AdminAddr = ""
	cfg.Storager.DatafileDir = t.TempDir()
	cfg.Server.GossipInterval = 50 * time.Millisecond
	return cfg
}

func TestNewWiresEveryComponent(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:19142")
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n.Gossip() == nil || n.Ring() == nil || n.Storage() == nil {
		t.Fatal("expected gossip, ring, and storage engines to be wired")
	}
}

func TestStopOnUnstartedNodeIsNoOp(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:19143")
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Stop(); err != nil {
		t.Fatalf("Stop on unstarted node: %v", err)
	}
}

func TestStartThenStopShutsDownCleanly(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:19144")
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := n.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestManagerSeedsNewNodesWithExistingAddresses(t *testing.T) {
	m := NewManager()
	t.Cleanup(func() { _ = m.StopAll() })

	first, err := m.CreateNode()
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	second, err := m.CreateNode()
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	seeds := second.Config().Conn.Seeds
	if len(seeds) != 1 || seeds[0] != first.Config().Conn.ListenAddr {
		t.Fatalf("expected second node seeded with %s, got %+v", first.Config().Conn.ListenAddr, seeds)
	}
	if len(m.GetNodes()) != 2 {
		t.Fatalf("expected 2 managed nodes, got %d", len(m.GetNodes()))
	}
}

func TestManagerDeleteNodeRemovesAndStops(t *testing.T) {
	m := NewManager()
	t.Cleanup(func() { _ = m.StopAll() })

	if _, err := m.CreateNode(); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if err := m.DeleteNode(0); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	if len(m.GetNodes()) != 0 {
		t.Fatalf("expected 0 managed nodes after delete, got %d", len(m.GetNodes()))
	}
}
