package transport

import (
	"fmt"

	"github.com/scylladb/cql-native-driver/frame"
	"github.com/scylladb/cql-native-driver/frame/response"
)

// QueryResult is the Request Handler's view of a RESULT frame: the rows
// (if any), paging continuation state, and the metadata needed to
// interpret each row's raw column bytes.
type QueryResult struct {
	Rows         []frame.Row
	Metadata     *frame.ResultMetadata
	HasMorePages bool
	PagingState  frame.Bytes
	Keyspace     string // set for SetKeyspace results (a bare `USE`)
}

// MakeQueryResult adapts a parsed RESULT response into a QueryResult,
// falling back to stmtMetadata when the server elided per-row metadata
//.
func MakeQueryResult(resp frame.Response, stmtMetadata *frame.ResultMetadata) (QueryResult, error) {
	switch r := resp.(type) {
	case *response.VoidResult:
		return QueryResult{}, nil
	case *response.SetKeyspaceResult:
		return QueryResult{Keyspace: r.Keyspace}, nil
	case *response.RowsResult:
		meta := &r.Metadata
		if len(meta.Columns) == 0 && stmtMetadata != nil {
			meta = stmtMetadata
		}
		return QueryResult{
			Rows:         r.Rows,
			Metadata:     meta,
			HasMorePages: r.HasMorePages,
			PagingState:  r.PagingState,
		}, nil
	case *response.SchemaChangeResult:
		return QueryResult{}, nil
	case nil:
		return QueryResult{}, fmt.Errorf("empty result response")
	default:
		return QueryResult{}, fmt.Errorf("unexpected result response %T", resp)
	}
}

// ResponseHandler carries a single asynchronous QueryResult or error back
// to the caller that issued an AsyncRunQuery.
type ResponseHandler chan AsyncResult

// AsyncResult is what flows through a ResponseHandler.
type AsyncResult struct {
	Result QueryResult
	Err    error
}

// MakeResponseHandler returns an unbuffered-from-the-caller's-perspective
// handler (capacity 1, so the producer never blocks waiting for the caller
// to receive).
func MakeResponseHandler() ResponseHandler {
	return make(ResponseHandler, 1)
}

// MakeResponseHandlerWithError returns a handler that is already resolved,
// used when a request fails before it could even be submitted.
func MakeResponseHandlerWithError(err error) ResponseHandler {
	h := make(ResponseHandler, 1)
	h <- AsyncResult{Err: err}
	return h
}
