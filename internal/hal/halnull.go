package hal

import "github.com/orbital/kernel/internal/kerntypes"

// Null is a HAL backend that refuses every operation with HalError. It
// backs orbitalctl's dry-run mode, which calls it directly, with no
// gateway and no daemon, and never touches a platform.
type Null struct{}

func (Null) err(op string) error { return kerntypes.NewError(op, kerntypes.ErrHal, nil) }

func (n Null) SpawnProcessWithPID(kerntypes.ProcessId, string, []byte) error {
	return n.err("spawn_process_with_pid")
}

func (n Null) KillProcess(kerntypes.ProcessId) error { return n.err("kill_process") }

func (n Null) IsAlive(kerntypes.ProcessId) bool { return false }

func (n Null) MemorySize(kerntypes.ProcessId) (uint64, error) { return 0, n.err("memory_size") }

func (n Null) NowNanos() uint64 { return 0 }

func (n Null) WallclockMs() uint64 { return 0 }

func (n Null) RandomBytes([]byte) error { return n.err("random_bytes") }

func (n Null) DebugWrite(kerntypes.ProcessId, string) error { return n.err("debug_write") }

func (n Null) ReadMailbox(kerntypes.ProcessId) ([]byte, error) { return nil, n.err("read_mailbox") }

func (n Null) WriteMailbox(kerntypes.ProcessId, []byte) error { return n.err("write_mailbox") }

func (n Null) LoadBinary(string) ([]byte, error) { return nil, n.err("load_binary") }

var _ HAL = Null{}
