package kerntypes

// TransferredCap is a capability riding inside a message envelope. The
// permissions carried are always a subset of what the sender held — send()
// never widens rights, it only copies a (possibly narrower) view.
type TransferredCap struct {
	ObjectType  ObjectType
	ObjectId    uint64
	Permissions Permissions
}

// Envelope is a single IPC message, queued FIFO at the receiving endpoint.
type Envelope struct {
	From            ProcessId
	Tag             uint32
	Data            []byte
	TransferredCaps []TransferredCap
}

// CapEntry pairs a slot with the capability installed there, used by
// list_caps() and by receive()'s installed-slot reporting.
type CapEntry struct {
	Slot CapSlot
	Cap  Capability
}

// Capability is a token granting a specific right on a specific object.
type Capability struct {
	Id          CapId
	ObjectType  ObjectType
	ObjectId    uint64
	Permissions Permissions
	Generation  uint64
	ExpiresAt   uint64 // 0 means never expires; unit matches GetTime (ns since boot)
}

// ProcessInfo is the ps() projection of a process: pid, name, lifecycle
// state only — metrics are not part of the PS wire record (§6.1).
type ProcessInfo struct {
	Pid   ProcessId
	Name  string
	State ProcessState
}

// CapInfoData is the cap_info() projection of a single capability.
type CapInfoData struct {
	ObjectType  ObjectType
	Permissions Permissions
	ObjectId    uint64
	Generation  uint64
	ExpiresAt   uint64
}
