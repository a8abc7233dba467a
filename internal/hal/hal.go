// Package hal defines the boundary between the core and the platform it
// runs on (spec §6.4). The core never touches an OS primitive directly —
// process lifecycle, time, entropy, the diagnostic sink, and mailbox
// memory all go through this interface, so the same core binary can run
// against an in-process backend under test and a container-backed
// backend in production without changing a line of kernel code.
package hal

import "github.com/orbital/kernel/internal/kerntypes"

// HAL is the platform boundary the core consumes. No wire format is
// defined beyond these calls; each backend is free to implement them
// however its deployment model requires.
type HAL interface {
	// SpawnProcessWithPID starts a sandboxed binary under the given pid,
	// which the core has already allocated. The HAL does not choose pids.
	SpawnProcessWithPID(pid kerntypes.ProcessId, name string, binary []byte) error

	// KillProcess forcibly terminates the sandbox backing pid. It is not
	// an error to kill a pid that is already dead.
	KillProcess(pid kerntypes.ProcessId) error

	// IsAlive reports whether the sandbox backing pid is still running,
	// independent of what KernelState believes — used to detect sandboxes
	// that died without going through exit/fault.
	IsAlive(pid kerntypes.ProcessId) bool

	// MemorySize returns the sandbox's current resident memory in bytes.
	MemorySize(pid kerntypes.ProcessId) (uint64, error)

	// NowNanos and WallclockMs report the platform's clocks. The gateway
	// does not read them: get_time/get_wallclock use the gateway's own
	// injected Clock, which is what replay and tests substitute.
	NowNanos() uint64
	WallclockMs() uint64

	// RandomBytes fills buf with entropy for sandboxes that need it. Not
	// consumed by the core itself.
	RandomBytes(buf []byte) error

	// DebugWrite is the sink for SYS_DEBUG; the HAL decides where it goes
	// (stderr, a per-sandbox log, a bus) — the core never interprets it.
	DebugWrite(pid kerntypes.ProcessId, msg string) error

	// ReadMailbox and WriteMailbox give the dispatcher access to a pid's
	// mailbox region, whatever form it takes for this backend (a plain
	// byte slice for halmem, a Redis hash for haldocker).
	ReadMailbox(pid kerntypes.ProcessId) ([]byte, error)
	WriteMailbox(pid kerntypes.ProcessId, data []byte) error

	// LoadBinary is the optional binary catalog; backends without one
	// return ErrNotSupported.
	LoadBinary(name string) ([]byte, error)
}
