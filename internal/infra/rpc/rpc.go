// Package rpc provides the wire types and transport capabilities the client
// engine is built on.
//
// This package contains:
//   - request/response types for the data-plane RPCs (ReadRows, MutateRows,
//     MutateRow), mirroring the server's wire protocol
//   - StreamOpener / BatchInvoker / UnaryInvoker: the injected capabilities
//     consumed by the read and write engines
//   - GRPCProvider: connection lifecycle management
//   - DataClient: the gRPC-backed implementation of the capabilities
package rpc

import (
	"context"

	statuspb "google.golang.org/genproto/googleapis/rpc/status"

	"github.com/vietddude/rowstream/internal/core/domain"
)

// ReadRowsRequest asks the server to stream back the cells of the selected
// rows.
type ReadRowsRequest struct {
	Table  string        `json:"table_name"`
	Rows   domain.RowSet `json:"rows"`
	Filter domain.Filter `json:"filter,omitempty"`

	// RowsLimit caps the number of rows returned. 0 means unlimited.
	RowsLimit int64 `json:"rows_limit,omitempty"`
}

// ReadFrame is one streamed ReadRows response message.
type ReadFrame struct {
	Chunks []domain.CellChunk `json:"chunks"`
}

// RowStream is one open server-streaming read call. Recv returns io.EOF once
// the server has closed the stream cleanly; any other error is the terminal
// status of the attempt.
type RowStream interface {
	Recv() (*ReadFrame, error)
}

// StreamOpener opens a server-streaming read call for a request.
type StreamOpener interface {
	OpenReadStream(ctx context.Context, req *ReadRowsRequest) (RowStream, error)
}

// RequestEntry tags a batch entry with the caller's original index so partial
// responses can be matched back to the submitted batch.
type RequestEntry struct {
	Index int          `json:"index"`
	Entry domain.Entry `json:"entry"`
}

// MutateRowsRequest carries a batch of independent per-row mutation entries.
type MutateRowsRequest struct {
	Table   string         `json:"table_name"`
	Entries []RequestEntry `json:"entries"`
}

// EntryResult is one per-entry outcome reported by the batch write stream.
type EntryResult struct {
	Index  int              `json:"index"`
	Status *statuspb.Status `json:"status"`
}

// ResultStream is one open batch write call. Recv returns io.EOF once every
// reported result has been delivered; any other error is the batch-level
// failure status.
type ResultStream interface {
	Recv() ([]EntryResult, error)
}

// BatchInvoker opens a batch mutate call for a request.
type BatchInvoker interface {
	OpenMutateStream(ctx context.Context, req *MutateRowsRequest) (ResultStream, error)
}

// MutateRowRequest is the unary single-row write.
type MutateRowRequest struct {
	Table     string            `json:"table_name"`
	RowKey    []byte            `json:"row_key"`
	Mutations []domain.Mutation `json:"mutations"`
}

// MutateRowResponse is empty: a unary mutation either succeeds or fails as a
// whole through the RPC status.
type MutateRowResponse struct{}

// UnaryInvoker performs single-shot calls with the same request/response
// shape as the batch capability.
type UnaryInvoker interface {
	MutateRow(ctx context.Context, req *MutateRowRequest) error
}
