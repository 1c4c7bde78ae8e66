package frame

import "fmt"

// ProtocolError signals a codec-level violation: a truncated length, an
// unknown opcode, or a reserved flag bit set. The connection that
// produced it can no longer be trusted and must be closed — the stream
// table's contents are no longer verifiable.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func NewProtocolError(format string, args ...any) *ProtocolError {
	return &ProtocolError{Err: fmt.Errorf(format, args...)}
}
