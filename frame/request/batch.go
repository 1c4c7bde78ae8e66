package request

import (
	"github.com/scylladb/cql-native-driver/frame"
)

// BatchType selects the server-side batch semantics.
type BatchType byte

const (
	BatchLogged   BatchType = 0x00
	BatchUnlogged BatchType = 0x01
	BatchCounter  BatchType = 0x02
)

// BatchStatement is one child of a BATCH request: either a bare query
// string (QueryID nil) or a reference to a prepared statement.
type BatchStatement struct {
	QueryID   []byte // nil for a plain string statement
	Statement string
	Values    []frame.Value
	Names     []string
}

// Batch executes several DML statements as one atomic unit.
type Batch struct {
	Type              BatchType
	Statements        []BatchStatement
	Consistency       frame.Consistency
	SerialConsistency frame.Consistency
	Timestamp         int64
	HasTimestamp      bool
}

var _ frame.Request = (*Batch)(nil)

func (bt *Batch) WriteTo(b *frame.Buffer) {
	b.WriteByte(byte(bt.Type))
	b.WriteShort(frame.Short(len(bt.Statements)))
	for _, s := range bt.Statements {
		if s.QueryID != nil {
			b.WriteByte(0x01)
			b.WriteShortBytes(s.QueryID)
		} else {
			b.WriteByte(0x00)
			b.WriteLongString(s.Statement)
		}
		b.WriteShort(frame.Short(len(s.Values)))
		for i, v := range s.Values {
			if len(s.Names) > 0 {
				b.WriteString(s.Names[i])
			}
			b.WriteBytes(v.Bytes)
		}
	}

	b.WriteConsistency(bt.Consistency)

	var flags QueryFlag
	if bt.SerialConsistency != 0 {
		flags |= FlagWithSerialConsistency
	}
	if bt.HasTimestamp {
		flags |= FlagWithDefaultTimestamp
	}
	b.WriteByte(byte(flags))
	if bt.SerialConsistency != 0 {
		b.WriteConsistency(bt.SerialConsistency)
	}
	if bt.HasTimestamp {
		b.WriteLong(bt.Timestamp)
	}
}

func (*Batch) OpCode() frame.OpCode {
	return frame.OpBatch
}
