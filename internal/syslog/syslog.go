// Package syslog implements the bounded audit ring buffer of syscall
// request/response events (spec §4.5). It never participates in replay —
// only the CommitLog does — and exists purely for audit and postmortem.
package syslog

import (
	"sync"

	"github.com/orbital/kernel/internal/kerntypes"
)

const DefaultCapacity = 10_000

// OverflowSink receives events the ring evicts from its head before
// capacity is exceeded, so a configured durable store (internal/storage)
// can retain audit history beyond the ring's window without the ring's
// own in-memory semantics changing (SPEC_FULL §4.5 expansion).
type OverflowSink interface {
	Evicted(kerntypes.SysEvent)
}

// SysLog is a FIFO ring buffer of SysEvents with a monotonic next_id.
type SysLog struct {
	mu       sync.Mutex
	cap      int
	events   []kerntypes.SysEvent
	head     int // index of the oldest event
	size     int
	nextId   uint64
	sink     OverflowSink
}

func New(capacity int) *SysLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &SysLog{cap: capacity, events: make([]kerntypes.SysEvent, capacity)}
}

// SetOverflowSink configures a sink for events dropped on ring overflow.
func (s *SysLog) SetOverflowSink(sink OverflowSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

func (s *SysLog) push(e kerntypes.SysEvent) {
	if s.size == s.cap {
		if s.sink != nil {
			s.sink.Evicted(s.events[s.head])
		}
		s.events[s.head] = e
		s.head = (s.head + 1) % s.cap
		return
	}
	idx := (s.head + s.size) % s.cap
	s.events[idx] = e
	s.size++
}

// LogRequest appends a Request event and returns its id, used by the
// gateway as the correlation id for the commits and Response the same
// syscall will produce.
func (s *SysLog) LogRequest(sender kerntypes.ProcessId, syscallNum kerntypes.SyscallNum, args [4]uint32, timestamp uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextId
	s.nextId++
	s.push(kerntypes.SysEvent{
		Id:         id,
		Sender:     sender,
		Timestamp:  timestamp,
		Kind:       kerntypes.SysRequest,
		SyscallNum: syscallNum,
		Args:       args,
	})
	return id
}

// LogResponse appends a Response event bracketing requestId.
func (s *SysLog) LogResponse(sender kerntypes.ProcessId, requestId uint64, result int64, timestamp uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextId
	s.nextId++
	s.push(kerntypes.SysEvent{
		Id:        id,
		Sender:    sender,
		Timestamp: timestamp,
		Kind:      kerntypes.SysResponse,
		RequestId: requestId,
		Result:    result,
	})
	return id
}

// Len returns the number of events currently retained.
func (s *SysLog) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// NextId returns the id that will be assigned to the next logged event,
// used by tests and the monotonic-id invariant (§8).
func (s *SysLog) NextId() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextId
}

// Tail returns up to n of the most recently logged events, oldest first.
func (s *SysLog) Tail(n int) []kerntypes.SysEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > s.size {
		n = s.size
	}
	out := make([]kerntypes.SysEvent, 0, n)
	start := s.head + s.size - n
	for i := 0; i < n; i++ {
		idx := (start + i) % s.cap
		if idx < 0 {
			idx += s.cap
		}
		out = append(out, s.events[idx])
	}
	return out
}

// Since returns every retained event with Id >= sinceId, oldest first,
// used by the admin API's /v1/syslog?since= tailing endpoint.
func (s *SysLog) Since(sinceId uint64) []kerntypes.SysEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]kerntypes.SysEvent, 0, s.size)
	for i := 0; i < s.size; i++ {
		idx := (s.head + i) % s.cap
		if s.events[idx].Id >= sinceId {
			out = append(out, s.events[idx])
		}
	}
	return out
}
