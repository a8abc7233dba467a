// Package synctap is an optional, best-effort, Linux-only observer that
// attaches to an eBPF ring buffer carrying raw (pid, syscall_num) trace
// records and forwards them into the audit bus as an out-of-band signal
// (SPEC_FULL §4.8 expansion). It can never affect Step or the gateway's
// own SysLog/CommitLog entries — it is read-only instrumentation,
// grounded directly on the teacher's internal/ringbuf/reader.go, down to
// its "mock mode" fallback when the BPF object isn't loaded.
package synctap

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"

	"github.com/orbital/kernel/internal/auditbus"
	"github.com/orbital/kernel/internal/kerntypes"
)

// TraceEvent mirrors the C struct the pinned BPF program writes: u32
// pid, u32 syscall_num, u32 len, u8 payload[tracePayloadMax].
const tracePayloadMax = 64

const traceHeaderLen = 12 // pid + syscall_num + len, all u32 LE

// TypeTrace is the audit bus CloudEvents type for a forwarded trace
// record, distinct from auditbus.TypeCommit/TypeSysEvent since a trace
// record is an out-of-band kernel-side observation, not a gateway fact.
const TypeTrace = "orbital.synctap.trace"

// Tap attaches to a pinned ring buffer map and forwards decoded trace
// records onto an audit bus. A Tap with no ring buffer attached runs in
// mock mode: Start logs once and returns without starting a goroutine,
// exactly like the teacher's Reader does when r.ring is nil.
type Tap struct {
	ring   *ringbuf.Reader
	bus    auditbus.Bus
	logger *slog.Logger
}

// New attempts to raise RLIMIT_MEMLOCK, a precondition for any eBPF ring
// buffer map regardless of whether one is actually attached yet. It
// never fails the caller over a missing BPF object — attaching a ring
// buffer is left to AttachPinned, called only when the deployment
// actually has the kernel module loaded.
func New(bus auditbus.Bus) (*Tap, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("synctap: remove memlock: %w", err)
	}
	return &Tap{bus: bus, logger: slog.Default().With("component", "synctap")}, nil
}

// AttachPinned attaches a ring buffer reader the caller has already
// opened on the map a separately loaded BPF program pinned; it opens
// nothing itself. Orbital does not ship or load the BPF object
// itself — that is an operator/deployment concern, same division of
// responsibility as the teacher's reader.
func (t *Tap) AttachPinned(r *ringbuf.Reader) {
	t.ring = r
}

// Start begins forwarding trace records in its own goroutine. With no
// ring buffer attached it logs and returns immediately — mock mode,
// identical in spirit to the teacher's "No BPF RingBuffer attached"
// fallback.
func (t *Tap) Start() {
	if t.ring == nil {
		t.logger.Info("no BPF ring buffer attached, running in mock mode")
		return
	}
	go t.run()
}

func (t *Tap) run() {
	for {
		record, err := t.ring.Read()
		if err != nil {
			if err == ringbuf.ErrClosed {
				return
			}
			t.logger.Warn("ring buffer read error", "error", err)
			continue
		}
		if len(record.RawSample) < traceHeaderLen {
			continue
		}

		pid := binary.LittleEndian.Uint32(record.RawSample[0:4])
		syscallNum := binary.LittleEndian.Uint32(record.RawSample[4:8])
		dataLen := binary.LittleEndian.Uint32(record.RawSample[8:12])

		payload := record.RawSample[traceHeaderLen:]
		if int(dataLen) < len(payload) {
			payload = payload[:dataLen]
		}

		t.forward(kerntypes.ProcessId(pid), kerntypes.SyscallNum(syscallNum), payload)
	}
}

func (t *Tap) forward(pid kerntypes.ProcessId, num kerntypes.SyscallNum, payload []byte) {
	if t.bus == nil {
		return
	}
	// synctap has no CloudEvents method of its own on the Bus interface
	// (it isn't a commit or a SysEvent) — it piggybacks on EmitSysEvent
	// with a dedicated Kind so subscribers can filter it out of the
	// gateway's own request/response stream.
	t.bus.EmitSysEvent(kerntypes.SysEvent{
		Sender:     pid,
		Kind:       kerntypes.SysTrace,
		SyscallNum: num,
		Timestamp:  uint64(time.Now().UnixNano()),
	})
}
