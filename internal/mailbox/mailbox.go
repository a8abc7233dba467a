// Package mailbox implements the shared-memory protocol a sandboxed
// process and the core dispatcher use to cross the sandbox boundary
// (spec §4.8, §6.3). The layout is fixed in 32-bit words; everything
// from word 7 onward is the data buffer. pid (word 14) and the
// cooperative-yield wait word (word 15) sit inside that numeric range
// but are never touched while a syscall's data is in flight: pid is
// written once by the dispatcher during process init, before the
// mailbox ever carries a live payload, and the yield word is only
// touched while the process is parked in a blocking wait.
package mailbox

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"github.com/orbital/kernel/internal/kerntypes"
)

var errSizeMismatch = errors.New("mailbox: overwrite size mismatch")

// Status values for word 0.
type Status uint32

const (
	StatusIdle    Status = 0
	StatusPending Status = 1
	StatusReady   Status = 2
)

const (
	offStatus     = 0
	offSyscallNum = 1
	offArg0       = 2
	offArg1       = 3
	offArg2       = 4
	offResult     = 5
	offDataLen    = 6
	offData       = 7
	offPid        = 14
	offReserved   = 15
)

// Size is the total region size in bytes: the 7-word header plus the
// MaxPayload-byte data buffer starting at word 7.
const Size = offData*4 + kerntypes.MaxPayload

// Box is one process's mailbox, backed by a byte slice the HAL is
// responsible for actually sharing with the sandbox (e.g., an mmap'd
// region, or — for the in-process HAL — a plain heap allocation). All
// cross-boundary fields are accessed through sync/atomic, matching the
// acquire/release discipline §4.8 requires.
type Box struct {
	mem []byte
}

// New allocates a zeroed mailbox of the standard size.
func New() *Box {
	return &Box{mem: make([]byte, Size)}
}

// Wrap adapts an existing byte slice (e.g., HAL-provided shared memory)
// as a Box without copying, panicking if it is undersized.
func Wrap(mem []byte) *Box {
	if len(mem) < Size {
		panic("mailbox: underlying buffer too small")
	}
	return &Box{mem: mem}
}

// wordPtr returns a pointer to the offset'th 32-bit word of the mailbox,
// for atomic access. Callers never hold this across a resize — mem is
// allocated once at the box's full fixed Size and never reallocated.
func (b *Box) wordPtr(offset int) *uint32 {
	return (*uint32)(unsafe.Pointer(&b.mem[offset*4]))
}

func (b *Box) loadWord(offset int) uint32 {
	return atomic.LoadUint32(b.wordPtr(offset))
}

func (b *Box) storeWord(offset int, v uint32) {
	atomic.StoreUint32(b.wordPtr(offset), v)
}

func (b *Box) LoadStatus() Status { return Status(b.loadWord(offStatus)) }

// StoreStatus is the release-ordered flip the dispatcher and the process
// use to hand control across the boundary; sync/atomic on amd64/arm64
// gives us the required ordering without an explicit fence.
func (b *Box) StoreStatus(s Status) { b.storeWord(offStatus, uint32(s)) }

func (b *Box) SetPid(pid kerntypes.ProcessId) { b.storeWord(offPid, uint32(pid)) }
func (b *Box) Pid() kerntypes.ProcessId       { return kerntypes.ProcessId(b.loadWord(offPid)) }

// WriteRequest is the process side of step 1-2: stages syscall_num,
// args, and the data buffer, then the caller must StoreStatus(Pending).
func (b *Box) WriteRequest(call kerntypes.Syscall) {
	b.storeWord(offSyscallNum, uint32(call.Num))
	b.storeWord(offArg0, call.Args[0])
	b.storeWord(offArg1, call.Args[1])
	b.storeWord(offArg2, call.Args[2])
	n := len(call.Data)
	if n > kerntypes.MaxPayload {
		n = kerntypes.MaxPayload
	}
	copy(b.mem[offData*4:], call.Data[:n])
	b.storeWord(offDataLen, uint32(n))
}

// ReadRequest is the dispatcher side of step 4's read: reconstructs the
// Syscall the process staged.
func (b *Box) ReadRequest() kerntypes.Syscall {
	n := b.loadWord(offDataLen)
	if int(n) > kerntypes.MaxPayload {
		n = kerntypes.MaxPayload
	}
	data := make([]byte, n)
	copy(data, b.mem[offData*4:offData*4+int(n)])
	return kerntypes.Syscall{
		Num:  kerntypes.SyscallNum(b.loadWord(offSyscallNum)),
		Args: [4]uint32{b.loadWord(offArg0), b.loadWord(offArg1), b.loadWord(offArg2), 0},
		Data: data,
	}
}

// WriteResponse is the dispatcher side of step 4's write: result and
// response bytes are written before status flips to Ready, so the
// process never observes Ready with a stale result. result is a single
// 32-bit word per §4.8's layout table; values that do not fit (a packed
// (slot, endpoint_id) handle, a CapList) are instead serialized whole
// into the data region by the dispatcher, with result left as a
// presence flag — see internal/dispatcher.
func (b *Box) WriteResponse(result int32, data []byte) {
	n := len(data)
	if n > kerntypes.MaxPayload {
		n = kerntypes.MaxPayload
	}
	copy(b.mem[offData*4:], data[:n])
	b.storeWord(offDataLen, uint32(n))
	b.storeWord(offResult, uint32(result))
}

// Snapshot copies out the raw mailbox bytes, for HAL backends that hand
// mailbox contents across a process or network boundary instead of
// sharing the Box directly.
func (b *Box) Snapshot() []byte {
	out := make([]byte, len(b.mem))
	copy(out, b.mem)
	return out
}

// Overwrite replaces the mailbox contents from a raw byte slice produced
// by Snapshot (or an equivalent transport). Unlike Wrap, it does not
// panic on a size mismatch; it returns an error and leaves the mailbox
// unchanged.
func (b *Box) Overwrite(data []byte) error {
	if len(data) != len(b.mem) {
		return errSizeMismatch
	}
	copy(b.mem, data)
	return nil
}

// ReadResponse is the process side of step 5.
func (b *Box) ReadResponse() (int32, []byte) {
	result := int32(b.loadWord(offResult))
	n := b.loadWord(offDataLen)
	if int(n) > kerntypes.MaxPayload {
		n = kerntypes.MaxPayload
	}
	data := make([]byte, n)
	copy(data, b.mem[offData*4:offData*4+int(n)])
	return result, data
}
