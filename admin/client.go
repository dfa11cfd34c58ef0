package admin

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// FetchStatus dials addr's status service and returns its current snapshot.
// The dashboard command does not call it; it reads its in-process nodes
// directly.
func FetchStatus(ctx context.Context, addr string) (*StatusResponse, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp := new(StatusResponse)
	if err := conn.Invoke(ctx, "/admin.StatusService/GetStatus", &StatusRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
