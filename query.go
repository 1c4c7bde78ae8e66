package cqldriver

import (
	"context"
	"fmt"

	"github.com/scylladb/cql-native-driver/frame"
	"github.com/scylladb/cql-native-driver/transport"
)

var ErrNoMoreRows = fmt.Errorf("no more rows left")

// Iter pages through a statement's results one Session.Execute call at a time,
// threading the server's PagingState through successive requests.
type Iter struct {
	session *Session
	qi      transport.QueryInfo
	stmt    transport.Statement

	result transport.QueryResult
	pos    int
	done   bool
	err    error
}

// Iter begins paging stmt. The first page is fetched lazily on the first
// call to Next.
func (s *Session) Iter(ctx context.Context, stmt transport.Statement) (*Iter, error) {
	qi, err := s.queryInfo(stmt)
	if err != nil {
		return nil, err
	}
	return &Iter{session: s, qi: qi, stmt: stmt}, nil
}

// Next returns the next row, fetching another page from the server once
// the current page is exhausted. It returns ErrNoMoreRows once the result
// set is exhausted.
func (it *Iter) Next(ctx context.Context) (frame.Row, error) {
	if it.err != nil {
		return nil, it.err
	}

	for it.pos >= len(it.result.Rows) {
		if it.done {
			return nil, ErrNoMoreRows
		}

		res, err := it.session.Execute(ctx, it.stmt, it.result.PagingState)
		if err != nil {
			it.err = err
			return nil, err
		}
		it.result = res
		it.pos = 0
		it.done = !res.HasMorePages
	}

	row := it.result.Rows[it.pos]
	it.pos++
	return row, nil
}

// Columns returns the result set's column metadata, valid once the first
// page has been fetched.
func (it *Iter) Columns() []frame.ColumnSpec {
	if it.result.Metadata == nil {
		return nil
	}
	return it.result.Metadata.Columns
}

// PagingState returns the current page's continuation token, usable to
// resume iteration later via a fresh Statement.
func (it *Iter) PagingState() []byte {
	return it.result.PagingState
}
