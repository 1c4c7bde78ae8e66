package request

import (
	"github.com/scylladb/cql-native-driver/frame"
)

// QueryFlag is one bit of a QUERY/EXECUTE/BATCH frame's <query flags> byte
// (an [int] for protocol v5, a single byte for v2-v4).
type QueryFlag uint32

const (
	FlagValues                QueryFlag = 0x0001
	FlagSkipMetadata          QueryFlag = 0x0002
	FlagPageSize              QueryFlag = 0x0004
	FlagWithPagingState       QueryFlag = 0x0008
	FlagWithSerialConsistency QueryFlag = 0x0010
	FlagWithDefaultTimestamp  QueryFlag = 0x0020
	FlagWithNamesForValues    QueryFlag = 0x0040
	FlagWithKeyspace          QueryFlag = 0x0080 // protocol v5
	FlagWithPageSizeBytes     QueryFlag = 0x0100 // DSE continuous paging
)

// QueryParams is the <query_parameters> struct shared by QUERY, EXECUTE and
// each BATCH child statement.
type QueryParams struct {
	Consistency       frame.Consistency
	Values            []frame.Value
	Names             []string // only meaningful alongside Values, protocol v3+
	SkipMetadata      bool
	PageSize          int32
	PagingState       frame.Bytes
	SerialConsistency frame.Consistency
	Timestamp         int64
	HasTimestamp      bool
	Keyspace          string // protocol v5 per-request keyspace override
}

func (p *QueryParams) flags() QueryFlag {
	var f QueryFlag
	if len(p.Values) > 0 {
		f |= FlagValues
		if len(p.Names) > 0 {
			f |= FlagWithNamesForValues
		}
	}
	if p.SkipMetadata {
		f |= FlagSkipMetadata
	}
	if p.PageSize > 0 {
		f |= FlagPageSize
	}
	if p.PagingState != nil {
		f |= FlagWithPagingState
	}
	if p.SerialConsistency != 0 {
		f |= FlagWithSerialConsistency
	}
	if p.HasTimestamp {
		f |= FlagWithDefaultTimestamp
	}
	if p.Keyspace != "" {
		f |= FlagWithKeyspace
	}
	return f
}

func (p *QueryParams) writeTo(b *frame.Buffer) {
	b.WriteConsistency(p.Consistency)
	b.WriteByte(byte(p.flags()))

	if len(p.Values) > 0 {
		b.WriteShort(frame.Short(len(p.Values)))
		for i, v := range p.Values {
			if len(p.Names) > 0 {
				b.WriteString(p.Names[i])
			}
			b.WriteBytes(v.Bytes)
		}
	}
	if p.PageSize > 0 {
		b.WriteInt(p.PageSize)
	}
	if p.PagingState != nil {
		b.WriteBytes(p.PagingState)
	}
	if p.SerialConsistency != 0 {
		b.WriteConsistency(p.SerialConsistency)
	}
	if p.HasTimestamp {
		b.WriteLong(p.Timestamp)
	}
	if p.Keyspace != "" {
		b.WriteString(p.Keyspace)
	}
}

// Query is a QUERY request: an ad hoc CQL statement plus its parameters.
type Query struct {
	Statement string
	Params    QueryParams
}

var _ frame.Request = (*Query)(nil)

func (q *Query) WriteTo(b *frame.Buffer) {
	b.WriteLongString(q.Statement)
	q.Params.writeTo(b)
}

func (*Query) OpCode() frame.OpCode {
	return frame.OpQuery
}

// Prepare requests the server parse and bind-plan a statement, returning an
// opaque query id for later EXECUTE calls.
type Prepare struct {
	Statement string
	Keyspace  string // protocol v5
}

var _ frame.Request = (*Prepare)(nil)

func (p *Prepare) WriteTo(b *frame.Buffer) {
	b.WriteLongString(p.Statement)
	if p.Keyspace != "" {
		b.WriteByte(0x01)
		b.WriteString(p.Keyspace)
	} else {
		b.WriteByte(0x00)
	}
}

func (*Prepare) OpCode() frame.OpCode {
	return frame.OpPrepare
}

// Execute runs a previously prepared statement identified by QueryID.
type Execute struct {
	QueryID []byte
	Params  QueryParams
}

var _ frame.Request = (*Execute)(nil)

func (e *Execute) WriteTo(b *frame.Buffer) {
	b.WriteShortBytes(e.QueryID)
	e.Params.writeTo(b)
}

func (*Execute) OpCode() frame.OpCode {
	return frame.OpExecute
}
