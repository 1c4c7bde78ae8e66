package transport

import (
	"context"
	"fmt"

	"github.com/scylladb/cql-native-driver/frame"
	"github.com/scylladb/cql-native-driver/frame/request"
	"github.com/scylladb/cql-native-driver/frame/response"
)

func (s Statement) queryParams(pagingState frame.Bytes) request.QueryParams {
	return request.QueryParams{
		Consistency:       s.Consistency,
		Values:            s.Values,
		SerialConsistency: s.SerialConsistency,
		PageSize:          s.PageSize,
		PagingState:       pagingState,
		SkipMetadata:      s.Metadata != nil && !s.NoSkipMetadata,
		Keyspace:          s.Keyspace,
	}
}

func (s Statement) toRequest(pagingState frame.Bytes) frame.Request {
	if s.QueryID != nil {
		return &request.Execute{QueryID: s.QueryID, Params: s.queryParams(pagingState)}
	}
	return &request.Query{Statement: s.Content, Params: s.queryParams(pagingState)}
}

// RunQuery sends stmt as a QUERY (ad hoc) or EXECUTE (already prepared,
// QueryID set), driving the compression flag from the Connection's
// negotiated configuration.
func (c *Conn) RunQuery(ctx context.Context, stmt Statement, pagingState frame.Bytes) (QueryResult, error) {
	resp, err := c.Send(ctx, stmt.toRequest(pagingState))
	if err != nil {
		return QueryResult{}, err
	}
	return MakeQueryResult(resp, stmt.Metadata)
}

// AsyncRunQuery is RunQuery's non-blocking counterpart: it submits the
// request and resolves h once the response (or an error) arrives, letting
// the caller pipeline several in-flight requests at once.
func (c *Conn) AsyncRunQuery(ctx context.Context, stmt Statement, pagingState frame.Bytes, h ResponseHandler) {
	go func() {
		res, err := c.RunQuery(ctx, stmt, pagingState)
		h <- AsyncResult{Result: res, Err: err}
	}()
}

// PrepareStatement sends a PREPARE for stmt.Content and returns a Statement
// with QueryID/Metadata/PkIndexes populated from the server's response,
// ready to be bound and sent with RunQuery.
func (c *Conn) PrepareStatement(ctx context.Context, stmt Statement) (Statement, error) {
	resp, err := c.Send(ctx, &request.Prepare{Statement: stmt.Content, Keyspace: stmt.Keyspace})
	if err != nil {
		return Statement{}, err
	}

	prepared, ok := resp.(*response.PreparedResult)
	if !ok {
		return Statement{}, fmt.Errorf("unexpected PREPARE response %T", resp)
	}

	out := stmt
	out.QueryID = prepared.QueryID
	out.Metadata = &prepared.ResultMetadata
	out.PkIndexes = prepared.PkIndexes
	out.PkCnt = len(prepared.PkIndexes)
	out.Values = make([]frame.Value, len(prepared.Metadata.Columns))
	for i := range prepared.Metadata.Columns {
		out.Values[i] = frame.Value{Type: &prepared.Metadata.Columns[i].Type}
	}
	return out, nil
}
