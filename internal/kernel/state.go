// Package kernel implements the pure state machine at the center of the
// CORE: Process/Endpoint/CapSpace state plus the Step function (spec §4.2,
// §4.3). KernelState is exclusively owned and mutated by the Axiom
// Gateway; nothing here ever touches a log or the wall clock except
// through the timestamp/now values the caller passes in.
package kernel

import (
	"sort"

	"github.com/orbital/kernel/internal/axiomcheck"
	"github.com/orbital/kernel/internal/kerntypes"
)

// Process owns a name, a lifecycle state, and running totals (spec §3).
type Process struct {
	Id            kerntypes.ProcessId
	Parent        kerntypes.ProcessId
	Name          string
	State         kerntypes.ProcessState
	MessagesSent  uint64
	MessagesRecv  uint64
	BytesSent     uint64
	BytesRecv     uint64
	Syscalls      uint64
	LastActive    uint64
	StartTime     uint64
	MemorySize    uint64
}

// Endpoint is owned by exactly one process and carries a FIFO message
// queue plus per-endpoint metrics (spec §3).
type Endpoint struct {
	Id             kerntypes.EndpointId
	Owner          kerntypes.ProcessId
	Pending        []kerntypes.Envelope
	QueueDepth     int
	HighWaterMark  int
	TotalSent      uint64
	TotalReceived  uint64
}

// KernelState is the map ProcessId→Process, ProcessId→CapSpace,
// EndpointId→Endpoint plus the monotonic id counters (spec §3 Component
// C). It is mutated in place by Step under the Gateway's single-writer
// discipline (spec §5): there is exactly one owner, so in-place mutation
// gives the same observable purity as returning a new value would, without
// the allocation cost of rebuilding the whole map graph on every syscall.
type KernelState struct {
	Processes map[kerntypes.ProcessId]*Process
	CapSpaces map[kerntypes.ProcessId]*axiomcheck.CapSpace
	Endpoints map[kerntypes.EndpointId]*Endpoint

	NextPid      kerntypes.ProcessId
	NextEndpoint kerntypes.EndpointId
	NextCapId    kerntypes.CapId

	// MaxQueueDepth is the hard per-endpoint queue cap referenced by
	// spec §9's open question. We pin a documented default (see
	// DESIGN.md) rather than leave it unbounded.
	MaxQueueDepth int
}

// DefaultMaxQueueDepth is the hard cap on pending messages per endpoint.
const DefaultMaxQueueDepth = 256

// New creates an empty KernelState. EndpointId and CapId allocation start
// at 1; Pid allocation starts at 2 because 0 (supervisor) and 1 (init)
// are reserved, and neither is
// auto-created — the supervisor exists implicitly as a caller identity,
// and init is created by the one-time register_process bootstrap
// exception (spec §4.2.1, see kernel/lifecycle.go).
func New() *KernelState {
	return &KernelState{
		Processes:     make(map[kerntypes.ProcessId]*Process),
		CapSpaces:     make(map[kerntypes.ProcessId]*axiomcheck.CapSpace),
		Endpoints:     make(map[kerntypes.EndpointId]*Endpoint),
		NextPid:       2,
		NextEndpoint:  1,
		NextCapId:     1,
		MaxQueueDepth: DefaultMaxQueueDepth,
	}
}

// ProcessList projects every live process into the PS wire shape, sorted
// by pid for deterministic output.
func (s *KernelState) ProcessList() []kerntypes.ProcessInfo {
	out := make([]kerntypes.ProcessInfo, 0, len(s.Processes))
	for _, p := range s.Processes {
		out = append(out, kerntypes.ProcessInfo{Pid: p.Id, Name: p.Name, State: p.State})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pid < out[j].Pid })
	return out
}

// allocCapId returns the next globally unique capability id.
func (s *KernelState) allocCapId() kerntypes.CapId {
	id := s.NextCapId
	s.NextCapId++
	return id
}
