package admin

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gossipring/cassandra/gossip"
	"github.com/gossipring/cassandra/messaging"
	"github.com/gossipring/cassandra/partitioner"
	"github.com/gossipring/cassandra/pool"
	"github.com/gossipring/cassandra/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestComponents(t *testing.T) (*gossip.Engine, *partitioner.Ring, *storage.Engine) {
	t.Helper()
	p := pool.New()
	controller := messaging.NewController(p, "node:1", "")
	sender := messaging.NewSender("node:1", 3, p, controller)
	hub := messaging.NewHub(controller, sender)

	g := gossip.NewEngine(hub, "node:1", nil, time.Hour)
	g.SetLocalAppState(gossip.AppStateStatus, "NORMAL")

	r := partitioner.New(3, 3)
	r.NewPhysicalNode("node:1")

	s, err := storage.NewEngine(hub, t.TempDir(), 32, 1<<20)
	if err != nil {
		t.Fatalf("storage.NewEngine: %v", err)
	}
	if _, err := s.Put("k", "v"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	return g, r, s
}

func TestGetStatusReportsComponents(t *testing.T) {
	g, r, s := newTestComponents(t)
	srv := NewServer("node:1", g, r, s)

	resp, err := srv.GetStatus(context.Background(), &StatusRequest{})
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if resp.NodeID != "node:1" {
		t.Fatalf("expected node:1, got %q", resp.NodeID)
	}
	if len(resp.Endpoints) != 1 {
		t.Fatalf("expected 1 endpoint, got %+v", resp.Endpoints)
	}
	if resp.Endpoints[0].AppStates["STATUS"] != "NORMAL" {
		t.Fatalf("expected STATUS=NORMAL, got %+v", resp.Endpoints[0].AppStates)
	}
	if len(resp.Ring) != 1 || len(resp.Ring[0].Tokens) != 3 {
		t.Fatalf("expected 1 physical node with 3 tokens, got %+v", resp.Ring)
	}
	if resp.Storage.MemtableKeys != 1 {
		t.Fatalf("expected 1 memtable key, got %+v", resp.Storage)
	}
}

func TestGRPCServerServesStatusOverJSONCodec(t *testing.T) {
	g, r, s := newTestComponents(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	grpcSrv := grpc.NewServer()
	RegisterStatusServiceServer(grpcSrv, NewServer("node:1", g, r, s))
	go grpcSrv.Serve(listener)
	defer grpcSrv.Stop()

	conn, err := grpc.NewClient(listener.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()

	resp := new(StatusResponse)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Invoke(ctx, "/admin.StatusService/GetStatus", &StatusRequest{}, resp); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.NodeID != "node:1" {
		t.Fatalf("expected node:1, got %q", resp.NodeID)
	}
}
