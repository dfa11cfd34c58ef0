// Package admin implements the read-only gRPC status/diagnostics service:
// a nodetool-style introspection surface over gossip membership, ring
// tokens, and storage footprint, kept separate from the client/peer wire
// protocol (internal/wire) that spec.md §6 mandates as raw framed TCP.
//
// There is no .proto file and no generated stubs here (see codec.go):
// the ServiceDesc below is written by hand the way protoc-gen-go-grpc would
// generate it, just pointed at a JSON codec instead of protobuf wire
// format.
package admin

import (
	"context"
	"fmt"
	"net"

	"github.com/gossipring/cassandra/gossip"
	"github.com/gossipring/cassandra/internal/logger"
	"github.com/gossipring/cassandra/partitioner"
	"github.com/gossipring/cassandra/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

// StatusServiceServer is the interface grpc.ServiceDesc's HandlerType binds
// against, matching the shape protoc-gen-go-grpc would emit for a one-RPC
// service.
type StatusServiceServer interface {
	GetStatus(context.Context, *StatusRequest) (*StatusResponse, error)
}

// Server implements StatusServiceServer against a node's live components.
type Server struct {
	nodeID  string
	gossip  *gossip.Engine
	ring    *partitioner.Ring
	storage *storage.Engine
}

// NewServer builds a status server reading from the given node's components.
func NewServer(nodeID string, g *gossip.Engine, r *partitioner.Ring, s *storage.Engine) *Server {
	return &Server{nodeID: nodeID, gossip: g, ring: r, storage: s}
}

// GetStatus reports gossip membership, ring token ownership, and storage
// footprint as of the call.
func (s *Server) GetStatus(_ context.Context, _ *StatusRequest) (*StatusResponse, error) {
	snapshot := s.gossip.Snapshot()
	endpoints := make([]EndpointStatus, 0, len(snapshot))
	for ep, es := range snapshot {
		appStates := make(map[string]string, len(es.AppStates))
		for k, v := range es.AppStates {
			appStates[string(k)] = v.Value
		}
		endpoints = append(endpoints, EndpointStatus{
			Endpoint:   string(ep),
			Generation: es.Heartbeat.Generation,
			Version:    es.Heartbeat.Version,
			IsAlive:    es.IsAlive,
			AppStates:  appStates,
		})
	}

	tokens := s.ring.Tokens()
	ringStatus := make([]RingStatus, 0, len(tokens))
	for phyID, toks := range tokens {
		ringStatus = append(ringStatus, RingStatus{PhysicalNode: phyID, Tokens: toks})
	}

	stats := s.storage.Stats()

	return &StatusResponse{
		NodeID:    s.nodeID,
		Endpoints: endpoints,
		Ring:      ringStatus,
		Storage: StorageStatus{
			MemtableKeys: stats.MemtableKeys,
			MemtableSize: stats.MemtableSize,
			SSTables:     stats.SSTables,
		},
	}, nil
}

func _StatusService_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServiceServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/admin.StatusService/GetStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatusServiceServer).GetStatus(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the hand-written equivalent of a protoc-gen-go-grpc
// _ServiceDesc for a single-RPC StatusService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "admin.StatusService",
	HandlerType: (*StatusServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: _StatusService_GetStatus_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "admin/service.go",
}

// GRPCServer wraps a grpc.Server bound to the status service, mirroring the
// teacher's transport.GRPC lifecycle (setupTcp/Start) but serving
// diagnostics instead of the heartbeat RPC it replaces.
type GRPCServer struct {
	addr string
	srv  *grpc.Server
	lis  net.Listener
}

// NewGRPCServer builds a GRPCServer listening on addr and registers status
// against it, backed by the given node components.
func NewGRPCServer(addr, nodeID string, g *gossip.Engine, r *partitioner.Ring, s *storage.Engine) *GRPCServer {
	srv := grpc.NewServer()
	RegisterStatusServiceServer(srv, NewServer(nodeID, g, r, s))
	reflection.Register(srv)
	return &GRPCServer{addr: addr, srv: srv}
}

// RegisterStatusServiceServer registers s against srv, the hand-rolled
// equivalent of the generated RegisterXServer helper.
func RegisterStatusServiceServer(srv *grpc.Server, s StatusServiceServer) {
	srv.RegisterService(&ServiceDesc, s)
}

// Start listens on addr and serves until Stop is called. It blocks, like
// grpc.Server.Serve, so callers run it in its own goroutine.
func (g *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("admin: listen on %s: %w", g.addr, err)
	}
	g.lis = lis
	logger.Infof("admin", "status service listening on %s", g.addr)
	return g.srv.Serve(g.lis)
}

// Stop gracefully drains in-flight calls and shuts the server down.
func (g *GRPCServer) Stop() {
	g.srv.GracefulStop()
}
