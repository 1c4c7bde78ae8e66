package response

import (
	"github.com/scylladb/cql-native-driver/frame"
)

// ResultKind is the <kind> [int] at the start of a RESULT body.
type ResultKind frame.Int

const (
	ResultVoid         ResultKind = 0x0001
	ResultRows         ResultKind = 0x0002
	ResultSetKeyspace  ResultKind = 0x0003
	ResultPrepared     ResultKind = 0x0004
	ResultSchemaChange ResultKind = 0x0005
)

// Result is implemented by every RESULT body kind.
type Result interface {
	frame.Response
	Kind() ResultKind
}

type VoidResult struct{}

func (*VoidResult) OpCode() frame.OpCode { return frame.OpResult }
func (*VoidResult) Kind() ResultKind     { return ResultVoid }

type SetKeyspaceResult struct {
	Keyspace string
}

func (*SetKeyspaceResult) OpCode() frame.OpCode { return frame.OpResult }
func (*SetKeyspaceResult) Kind() ResultKind     { return ResultSetKeyspace }

// RowsResult carries <metadata> plus the row payload.
type RowsResult struct {
	Metadata     frame.ResultMetadata
	RowCount     int32
	Rows         []frame.Row
	HasMorePages bool
	PagingState  frame.Bytes
}

func (*RowsResult) OpCode() frame.OpCode { return frame.OpResult }
func (*RowsResult) Kind() ResultKind     { return ResultRows }

// PreparedResult answers a PREPARE request: the opaque query id, its bind
// variable metadata and its result-set metadata.
type PreparedResult struct {
	QueryID        []byte
	Metadata       frame.ResultMetadata
	PkIndexes      []uint16
	ResultMetadata frame.ResultMetadata
}

func (*PreparedResult) OpCode() frame.OpCode { return frame.OpResult }
func (*PreparedResult) Kind() ResultKind     { return ResultPrepared }

type SchemaChangeResult struct {
	Event
}

func (*SchemaChangeResult) OpCode() frame.OpCode { return frame.OpResult }
func (*SchemaChangeResult) Kind() ResultKind     { return ResultSchemaChange }

func parseResultMetadata(b *frame.Buffer) frame.ResultMetadata {
	var m frame.ResultMetadata
	m.Flags = b.Int()
	m.ColumnCount = b.Int()

	const (
		flagGlobalTableSpec frame.Int = 0x0001
		flagHasMorePages    frame.Int = 0x0002
		flagNoMetadata      frame.Int = 0x0004
		flagMetadataChanged frame.Int = 0x0008
	)

	if m.Flags&flagMetadataChanged != 0 {
		m.NewMetadataID = b.ShortBytes()
	}
	if m.Flags&flagHasMorePages != 0 {
		m.PagingState = b.ReadBytes()
	}
	if m.Flags&flagNoMetadata != 0 {
		return m
	}

	globalSpec := m.Flags&flagGlobalTableSpec != 0
	m.GlobalTableSpec = globalSpec
	if globalSpec {
		m.Keyspace = b.String()
		m.Table = b.String()
	}

	m.Columns = make([]frame.ColumnSpec, m.ColumnCount)
	for i := range m.Columns {
		cs := frame.ColumnSpec{Keyspace: m.Keyspace, Table: m.Table}
		if !globalSpec {
			cs.Keyspace = b.String()
			cs.Table = b.String()
		}
		cs.Name = b.String()
		cs.Type = parseOption(b)
		m.Columns[i] = cs
	}
	return m
}

// parsePreparedMetadata parses the bind-variable <metadata> block specific
// to PREPARED results, which interleaves a <pk_count>/<pk_index...> pair
// between the
// column count and the column specs that the generic result metadata lacks.
func parsePreparedMetadata(b *frame.Buffer) (frame.ResultMetadata, []uint16) {
	var m frame.ResultMetadata
	m.Flags = b.Int()
	m.ColumnCount = b.Int()

	const flagGlobalTableSpec frame.Int = 0x0001

	pkCount := b.Short()
	pk := make([]uint16, pkCount)
	for i := range pk {
		pk[i] = uint16(b.Short())
	}

	globalSpec := m.Flags&flagGlobalTableSpec != 0
	m.GlobalTableSpec = globalSpec
	if globalSpec {
		m.Keyspace = b.String()
		m.Table = b.String()
	}

	m.Columns = make([]frame.ColumnSpec, m.ColumnCount)
	for i := range m.Columns {
		cs := frame.ColumnSpec{Keyspace: m.Keyspace, Table: m.Table}
		if !globalSpec {
			cs.Keyspace = b.String()
			cs.Table = b.String()
		}
		cs.Name = b.String()
		cs.Type = parseOption(b)
		m.Columns[i] = cs
	}
	return m, pk
}

func parseOption(b *frame.Buffer) frame.Option {
	id := frame.OptionID(b.Short())
	opt := frame.Option{ID: id}
	switch id {
	case frame.CustomID:
		opt.Custom = b.String()
	case frame.ListID, frame.SetID:
		elem := parseOption(b)
		opt.List = &frame.ListOption{Element: elem}
	case frame.MapID:
		key := parseOption(b)
		val := parseOption(b)
		opt.Map = &frame.MapOption{Key: key, Value: val}
	case frame.UDTID:
		u := &frame.UDTOption{
			Keyspace: b.String(),
			Name:     b.String(),
		}
		n := int(b.Short())
		u.FieldNames = make([]string, n)
		u.FieldTypes = make([]frame.Option, n)
		for i := 0; i < n; i++ {
			u.FieldNames[i] = b.String()
			u.FieldTypes[i] = parseOption(b)
		}
		opt.UDT = u
	case frame.TupleID:
		n := int(b.Short())
		t := &frame.TupleOption{Elements: make([]frame.Option, n)}
		for i := 0; i < n; i++ {
			t.Elements[i] = parseOption(b)
		}
		opt.Tuple = t
	}
	return opt
}

func parseRows(b *frame.Buffer, meta frame.ResultMetadata) ([]frame.Row, int32) {
	count := b.Int()
	rows := make([]frame.Row, count)
	for i := range rows {
		row := make(frame.Row, meta.ColumnCount)
		for j := range row {
			row[j] = b.ReadBytes()
		}
		rows[i] = row
	}
	return rows, count
}

// ParseResult parses any RESULT body by its <kind> discriminator.
func ParseResult(b *frame.Buffer) Result {
	switch ResultKind(b.Int()) {
	case ResultVoid:
		return &VoidResult{}
	case ResultSetKeyspace:
		return &SetKeyspaceResult{Keyspace: b.String()}
	case ResultRows:
		meta := parseResultMetadata(b)
		rows, count := parseRows(b, meta)
		return &RowsResult{
			Metadata:     meta,
			RowCount:     count,
			Rows:         rows,
			HasMorePages: meta.PagingState != nil,
			PagingState:  meta.PagingState,
		}
	case ResultPrepared:
		queryID := b.ShortBytes()
		meta, pk := parsePreparedMetadata(b)
		resultMeta := parseResultMetadata(b)
		return &PreparedResult{
			QueryID:        queryID,
			Metadata:       meta,
			PkIndexes:      pk,
			ResultMetadata: resultMeta,
		}
	case ResultSchemaChange:
		return &SchemaChangeResult{Event: *parseEventBody(b)}
	default:
		return nil
	}
}

// parseEventBody parses the SCHEMA_CHANGE event body shared by the EVENT
// opcode and RESULT's ResultSchemaChange kind, which omits the leading
// <event type> string that a pushed EVENT frame carries.
func parseEventBody(b *frame.Buffer) *Event {
	e := &Event{Type: "SCHEMA_CHANGE"}
	e.SchemaChangeType = b.String()
	e.SchemaTarget = b.String()
	switch e.SchemaTarget {
	case "KEYSPACE":
		e.Keyspace = b.String()
	case "TABLE", "TYPE":
		e.Keyspace = b.String()
		e.Object = b.String()
	case "FUNCTION", "AGGREGATE":
		e.Keyspace = b.String()
		e.Object = b.String()
		e.Arguments = b.StringList()
	}
	return e
}
