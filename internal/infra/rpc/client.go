package rpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"

	"github.com/vietddude/rowstream/internal/metrics"
)

const (
	readRowsMethod   = "/rowstream.v1.Data/ReadRows"
	mutateRowsMethod = "/rowstream.v1.Data/MutateRows"
	mutateRowMethod  = "/rowstream.v1.Data/MutateRow"
)

var (
	readRowsDesc = &grpc.StreamDesc{
		StreamName:    "ReadRows",
		ServerStreams: true,
	}
	mutateRowsDesc = &grpc.StreamDesc{
		StreamName:    "MutateRows",
		ServerStreams: true,
	}
)

// DataClient issues the data-plane RPCs over one gRPC connection.
// It implements StreamOpener, BatchInvoker and UnaryInvoker.
type DataClient struct {
	conn grpc.ClientConnInterface
}

// NewDataClient creates a client on an established connection.
func NewDataClient(conn grpc.ClientConnInterface) *DataClient {
	return &DataClient{conn: conn}
}

// OpenReadStream starts a server-streaming ReadRows call.
func (c *DataClient) OpenReadStream(ctx context.Context, req *ReadRowsRequest) (RowStream, error) {
	cs, err := c.conn.NewStream(ctx, readRowsDesc, readRowsMethod, grpc.ForceCodec(jsonCodec{}))
	if err != nil {
		return nil, fmt.Errorf("failed to open read stream: %w", err)
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, fmt.Errorf("failed to send read request: %w", err)
	}
	if err := cs.CloseSend(); err != nil {
		return nil, fmt.Errorf("failed to close send side: %w", err)
	}
	return &grpcRowStream{cs: cs}, nil
}

type grpcRowStream struct {
	cs grpc.ClientStream
}

func (s *grpcRowStream) Recv() (*ReadFrame, error) {
	var f ReadFrame
	if err := s.cs.RecvMsg(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// OpenMutateStream starts a server-streaming MutateRows call.
func (c *DataClient) OpenMutateStream(
	ctx context.Context,
	req *MutateRowsRequest,
) (ResultStream, error) {
	cs, err := c.conn.NewStream(ctx, mutateRowsDesc, mutateRowsMethod, grpc.ForceCodec(jsonCodec{}))
	if err != nil {
		return nil, fmt.Errorf("failed to open mutate stream: %w", err)
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, fmt.Errorf("failed to send mutate request: %w", err)
	}
	if err := cs.CloseSend(); err != nil {
		return nil, fmt.Errorf("failed to close send side: %w", err)
	}
	return &grpcResultStream{cs: cs}, nil
}

type grpcResultStream struct {
	cs grpc.ClientStream
}

func (s *grpcResultStream) Recv() ([]EntryResult, error) {
	var batch struct {
		Entries []EntryResult `json:"entries"`
	}
	if err := s.cs.RecvMsg(&batch); err != nil {
		return nil, err
	}
	return batch.Entries, nil
}

// MutateRow performs a unary single-row write.
func (c *DataClient) MutateRow(ctx context.Context, req *MutateRowRequest) error {
	start := time.Now()
	err := c.conn.Invoke(
		ctx,
		mutateRowMethod,
		req,
		&MutateRowResponse{},
		grpc.ForceCodec(jsonCodec{}),
	)
	metrics.RPCLatency.WithLabelValues("MutateRow").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("mutate row failed: %w", err)
	}
	return nil
}
