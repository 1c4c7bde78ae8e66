package transport

import "github.com/scylladb/cql-native-driver/frame"

// Statement is a CQL statement ready to be sent: either ad hoc (Metadata
// nil, Values built positionally as bind markers are filled in) or the
// result of a successful PREPARE.
type Statement struct {
	Content  string
	Keyspace string

	QueryID  []byte
	Metadata *frame.ResultMetadata
	PkIndexes []uint16
	PkCnt     int

	Values []frame.Value

	Consistency       frame.Consistency
	SerialConsistency frame.Consistency
	PageSize          int32
	Compression       bool
	Idempotent        bool
	NoSkipMetadata    bool
}

// Clone deep-copies the mutable Values slice so concurrent executions of
// the same prepared Statement (e.g. one per page, or one per speculative
// attempt) don't race on each other's bound parameters.
func (s Statement) Clone() Statement {
	v := s
	v.Values = make([]frame.Value, len(s.Values))
	copy(v.Values, s.Values)
	return v
}
