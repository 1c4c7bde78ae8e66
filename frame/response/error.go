package response

import (
	"fmt"

	"github.com/scylladb/cql-native-driver/frame"
)

// ErrorCode is the server-defined <error code> field of an ERROR response.
type ErrorCode frame.Int

const (
	ErrServerError         ErrorCode = 0x0000
	ErrProtocolError       ErrorCode = 0x000A
	ErrAuthenticationError ErrorCode = 0x0100
	ErrUnavailable         ErrorCode = 0x1000
	ErrOverloaded          ErrorCode = 0x1001
	ErrIsBootstrapping     ErrorCode = 0x1002
	ErrTruncateError       ErrorCode = 0x1003
	ErrWriteTimeout        ErrorCode = 0x1100
	ErrReadTimeout         ErrorCode = 0x1200
	ErrReadFailure         ErrorCode = 0x1300
	ErrFunctionFailure     ErrorCode = 0x1400
	ErrWriteFailure        ErrorCode = 0x1500
	ErrSyntaxError         ErrorCode = 0x2000
	ErrUnauthorized        ErrorCode = 0x2100
	ErrInvalid             ErrorCode = 0x2200
	ErrConfigError         ErrorCode = 0x2300
	ErrAlreadyExists       ErrorCode = 0x2400
	ErrUnprepared          ErrorCode = 0x2500
)

func (c ErrorCode) String() string {
	switch c {
	case ErrServerError:
		return "SERVER_ERROR"
	case ErrProtocolError:
		return "PROTOCOL_ERROR"
	case ErrAuthenticationError:
		return "AUTHENTICATION_ERROR"
	case ErrUnavailable:
		return "UNAVAILABLE"
	case ErrOverloaded:
		return "OVERLOADED"
	case ErrIsBootstrapping:
		return "IS_BOOTSTRAPPING"
	case ErrTruncateError:
		return "TRUNCATE_ERROR"
	case ErrWriteTimeout:
		return "WRITE_TIMEOUT"
	case ErrReadTimeout:
		return "READ_TIMEOUT"
	case ErrReadFailure:
		return "READ_FAILURE"
	case ErrFunctionFailure:
		return "FUNCTION_FAILURE"
	case ErrWriteFailure:
		return "WRITE_FAILURE"
	case ErrSyntaxError:
		return "SYNTAX_ERROR"
	case ErrUnauthorized:
		return "UNAUTHORIZED"
	case ErrInvalid:
		return "INVALID"
	case ErrConfigError:
		return "CONFIG_ERROR"
	case ErrAlreadyExists:
		return "ALREADY_EXISTS"
	case ErrUnprepared:
		return "UNPREPARED"
	default:
		return fmt.Sprintf("UNKNOWN(0x%04x)", frame.Int(c))
	}
}

// CodedError is implemented by every parsed ERROR response so that callers
// (transport.responseAsError) can extract the server's error code without a
// type switch over every concrete *Error subtype.
type CodedError interface {
	error
	Code() ErrorCode
}

// Error is the generic ERROR response; sub-code-specific fields are parsed
// into the typed additions below (UnavailableError, WriteTimeoutError, ...),
// which all embed Error and satisfy CodedError.
type Error struct {
	ErrCode ErrorCode
	Message string
}

func (e *Error) Code() ErrorCode { return e.ErrCode }

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.ErrCode, e.Message)
}

func (*Error) OpCode() frame.OpCode { return frame.OpError }

type UnavailableError struct {
	Error
	Consistency frame.Consistency
	Required    int32
	Alive       int32
}

type WriteTimeoutError struct {
	Error
	Consistency frame.Consistency
	Received    int32
	BlockFor    int32
	WriteType   string
}

type ReadTimeoutError struct {
	Error
	Consistency frame.Consistency
	Received    int32
	BlockFor    int32
	DataPresent bool
}

type WriteFailureError struct {
	Error
	Consistency frame.Consistency
	Received    int32
	BlockFor    int32
	NumFailures int32
	WriteType   string
}

type ReadFailureError struct {
	Error
	Consistency frame.Consistency
	Received    int32
	BlockFor    int32
	NumFailures int32
	DataPresent bool
}

type FunctionFailureError struct {
	Error
	Keyspace string
	Function string
	ArgTypes frame.StringList
}

type AlreadyExistsError struct {
	Error
	Keyspace string
	Table    string
}

// UnpreparedError identifies a query id the coordinator no longer knows.
// Session.Execute handles it by invalidating the PreparedCache entry,
// re-preparing on the first node of the query plan and running the
// statement once more through the plan; neither step is pinned to the
// connection or host that reported the error.
type UnpreparedError struct {
	Error
	QueryID []byte
}

// ParseError parses any ERROR response body, returning the most specific
// CodedError subtype it knows for the wire error code, or a bare *Error for
// codes with no extra payload (SYNTAX_ERROR, INVALID, UNAUTHORIZED, ...).
func ParseError(b *frame.Buffer) CodedError {
	base := Error{
		ErrCode: ErrorCode(b.Int()),
		Message: b.String(),
	}

	switch base.ErrCode {
	case ErrUnavailable:
		return &UnavailableError{
			Error:       base,
			Consistency: b.ReadConsistency(),
			Required:    b.Int(),
			Alive:       b.Int(),
		}
	case ErrWriteTimeout:
		return &WriteTimeoutError{
			Error:       base,
			Consistency: b.ReadConsistency(),
			Received:    b.Int(),
			BlockFor:    b.Int(),
			WriteType:   b.String(),
		}
	case ErrReadTimeout:
		return &ReadTimeoutError{
			Error:       base,
			Consistency: b.ReadConsistency(),
			Received:    b.Int(),
			BlockFor:    b.Int(),
			DataPresent: b.Byte() != 0,
		}
	case ErrWriteFailure:
		return &WriteFailureError{
			Error:       base,
			Consistency: b.ReadConsistency(),
			Received:    b.Int(),
			BlockFor:    b.Int(),
			NumFailures: b.Int(),
			WriteType:   b.String(),
		}
	case ErrReadFailure:
		return &ReadFailureError{
			Error:       base,
			Consistency: b.ReadConsistency(),
			Received:    b.Int(),
			BlockFor:    b.Int(),
			NumFailures: b.Int(),
			DataPresent: b.Byte() != 0,
		}
	case ErrFunctionFailure:
		return &FunctionFailureError{
			Error:    base,
			Keyspace: b.String(),
			Function: b.String(),
			ArgTypes: b.StringList(),
		}
	case ErrAlreadyExists:
		return &AlreadyExistsError{
			Error:    base,
			Keyspace: b.String(),
			Table:    b.String(),
		}
	case ErrUnprepared:
		return &UnpreparedError{
			Error:   base,
			QueryID: b.ShortBytes(),
		}
	default:
		return &base
	}
}
