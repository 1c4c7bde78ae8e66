package transport

import (
	"fmt"

	"github.com/scylladb/cql-native-driver/frame"
)

// BusyConnection is returned when a Connection's stream-id space is fully
// allocated; the caller should move to the next host.
type BusyConnection struct {
	Host string
}

func (e *BusyConnection) Error() string {
	return fmt.Sprintf("busy connection: stream-id space exhausted on %s", e.Host)
}

// streamIDAllocator hands out free stream-ids from a fixed-size space,
// sized by the negotiated protocol version (128 ids for v1/v2, since a
// pre-v3 stream-id is a signed byte and only its non-negative half is
// usable; 32768 for v3+, a signed 16-bit space minus the negative half). A
// stream-id is free iff it is not present in the in-use set.
type streamIDAllocator struct {
	free []frame.StreamID
	used []bool
}

func newStreamIDAllocator(version frame.ProtocolVersion) streamIDAllocator {
	n := 32768
	if version < frame.ProtocolVersion3 {
		n = 128
	}
	s := streamIDAllocator{
		free: make([]frame.StreamID, n),
		used: make([]bool, n),
	}
	for i := range s.free {
		s.free[i] = frame.StreamID(n - 1 - i)
	}
	return s
}

func (s *streamIDAllocator) Alloc() (frame.StreamID, error) {
	if len(s.free) == 0 {
		return 0, &BusyConnection{}
	}
	id := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	s.used[id] = true
	return id, nil
}

func (s *streamIDAllocator) Free(id frame.StreamID) {
	if int(id) >= len(s.used) || !s.used[id] {
		return
	}
	s.used[id] = false
	s.free = append(s.free, id)
}

// InUse returns the number of currently-allocated stream-ids.
func (s *streamIDAllocator) InUse() int {
	return len(s.used) - len(s.free)
}

func (s *streamIDAllocator) Capacity() int {
	return len(s.used)
}
