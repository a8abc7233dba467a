package kerntypes

// SysEventKind distinguishes a Request from a Response entry in the
// SysLog. Events never point to commit ids; a Response points back to its
// Request by RequestId (§3).
type SysEventKind int

const (
	SysRequest SysEventKind = iota
	SysResponse

	// SysTrace is never written to the SysLog ring buffer itself — it is
	// an audit-bus-only kind internal/synctap uses to forward raw eBPF
	// trace records, reusing SysEvent's shape rather than inventing a
	// parallel one.
	SysTrace
)

type SysEvent struct {
	Id        uint64
	Sender    ProcessId
	Timestamp uint64
	Kind      SysEventKind

	// Populated when Kind == SysRequest.
	SyscallNum SyscallNum
	Args       [4]uint32

	// Populated when Kind == SysResponse.
	RequestId uint64
	Result    int64
}
