package hal

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/orbital/kernel/internal/kerntypes"
	"github.com/orbital/kernel/internal/mailbox"
)

// memProcess tracks what halmem knows about a sandbox it "spawned" —
// there is no real isolation here, only bookkeeping good enough for
// tests and single-binary mode to exercise the HAL contract.
type memProcess struct {
	name  string
	alive bool
	box   *mailbox.Box
}

// Mem is the in-process HAL: mailboxes are plain heap-allocated byte
// slices shared by reference (no actual sandboxing), and "spawning" a
// process just records it as alive. It is the default backend for unit
// tests and the single-binary deployment mode.
type Mem struct {
	mu        sync.Mutex
	processes map[kerntypes.ProcessId]*memProcess
	binaries  map[string][]byte
	logger    *slog.Logger
	start     time.Time
}

// NewMem constructs an empty in-process HAL. binaries is an optional
// preloaded catalog for LoadBinary; nil disables it.
func NewMem(binaries map[string][]byte) *Mem {
	return &Mem{
		processes: make(map[kerntypes.ProcessId]*memProcess),
		binaries:  binaries,
		logger:    slog.Default().With("component", "hal.mem"),
		start:     time.Now(),
	}
}

func (m *Mem) SpawnProcessWithPID(pid kerntypes.ProcessId, name string, binary []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.processes[pid]; exists {
		return kerntypes.NewError("spawn_process_with_pid", kerntypes.ErrHal, fmt.Errorf("pid %d already spawned", pid))
	}
	m.processes[pid] = &memProcess{name: name, alive: true, box: mailbox.New()}
	m.logger.Info("spawned process", "pid", pid, "name", name, "image_bytes", len(binary))
	return nil
}

func (m *Mem) KillProcess(pid kerntypes.ProcessId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.processes[pid]
	if !ok {
		return nil
	}
	p.alive = false
	return nil
}

func (m *Mem) IsAlive(pid kerntypes.ProcessId) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.processes[pid]
	return ok && p.alive
}

func (m *Mem) MemorySize(pid kerntypes.ProcessId) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.processes[pid]; !ok {
		return 0, kerntypes.NewError("memory_size", kerntypes.ErrProcessNotFound, nil)
	}
	return mailbox.Size, nil
}

func (m *Mem) NowNanos() uint64 { return uint64(time.Now().UnixNano()) }

func (m *Mem) WallclockMs() uint64 { return uint64(time.Now().UnixMilli()) }

func (m *Mem) RandomBytes(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}

func (m *Mem) DebugWrite(pid kerntypes.ProcessId, msg string) error {
	m.logger.Info("debug_write", "pid", pid, "msg", msg)
	return nil
}

func (m *Mem) box(pid kerntypes.ProcessId) (*mailbox.Box, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.processes[pid]
	if !ok {
		return nil, kerntypes.NewError("mailbox", kerntypes.ErrProcessNotFound, nil)
	}
	return p.box, nil
}

// Box exposes a pid's live mailbox directly, for callers that share
// real memory with it (the sandboxed process runtime itself, and tests)
// rather than going through the Snapshot/Overwrite copy ReadMailbox and
// WriteMailbox use to stay backend-agnostic.
func (m *Mem) Box(pid kerntypes.ProcessId) (*mailbox.Box, error) {
	return m.box(pid)
}

// ReadMailbox and WriteMailbox hand back/accept a copy of the mailbox's
// raw bytes rather than the live box — the dispatcher wraps them with
// mailbox.Wrap when it needs word-level access, keeping the HAL
// interface backend-agnostic (haldocker has no *mailbox.Box at all).
func (m *Mem) ReadMailbox(pid kerntypes.ProcessId) ([]byte, error) {
	b, err := m.box(pid)
	if err != nil {
		return nil, err
	}
	return b.Snapshot(), nil
}

func (m *Mem) WriteMailbox(pid kerntypes.ProcessId, data []byte) error {
	b, err := m.box(pid)
	if err != nil {
		return err
	}
	return b.Overwrite(data)
}

func (m *Mem) LoadBinary(name string) ([]byte, error) {
	if m.binaries == nil {
		return nil, kerntypes.NewError("load_binary", kerntypes.ErrNotSupported, nil)
	}
	b, ok := m.binaries[name]
	if !ok {
		return nil, kerntypes.NewError("load_binary", kerntypes.ErrProcessNotFound, fmt.Errorf("binary %q not in catalog", name))
	}
	return b, nil
}

var _ HAL = (*Mem)(nil)
