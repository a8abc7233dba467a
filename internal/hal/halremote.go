package hal

import (
	"context"
	"time"

	"github.com/orbital/kernel/internal/kerntypes"
	"github.com/orbital/kernel/pb"
)

// Remote is a HAL backend whose mailbox I/O crosses a gRPC connection
// to a pb.KernelHALClient (SPEC_FULL §6.6) instead of touching local
// memory or a local Redis connection directly — everything else about
// process lifecycle is still delegated to a local backend, since
// spawning and killing sandboxes is not part of the remote-HAL surface
// pb/kernel.go defines. It exists to give that transport contract a
// caller; it is not wired into orbitald's default configuration.
type Remote struct {
	local  HAL
	client pb.KernelHALClient
}

// NewRemote wraps local for everything but mailbox access, which it
// routes through client instead.
func NewRemote(local HAL, client pb.KernelHALClient) *Remote {
	return &Remote{local: local, client: client}
}

func (r *Remote) SpawnProcessWithPID(pid kerntypes.ProcessId, name string, binary []byte) error {
	return r.local.SpawnProcessWithPID(pid, name, binary)
}

func (r *Remote) KillProcess(pid kerntypes.ProcessId) error { return r.local.KillProcess(pid) }

func (r *Remote) IsAlive(pid kerntypes.ProcessId) bool { return r.local.IsAlive(pid) }

func (r *Remote) MemorySize(pid kerntypes.ProcessId) (uint64, error) { return r.local.MemorySize(pid) }

func (r *Remote) NowNanos() uint64 { return r.local.NowNanos() }

func (r *Remote) WallclockMs() uint64 { return r.local.WallclockMs() }

func (r *Remote) RandomBytes(buf []byte) error { return r.local.RandomBytes(buf) }

func (r *Remote) DebugWrite(pid kerntypes.ProcessId, msg string) error {
	return r.local.DebugWrite(pid, msg)
}

func (r *Remote) ReadMailbox(pid kerntypes.ProcessId) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	img, err := r.client.ReadMailbox(ctx, &pb.MailboxRequest{Pid: uint64(pid)})
	if err != nil {
		return nil, kerntypes.NewError("read_mailbox", kerntypes.ErrProcessNotFound, err)
	}
	return img.Image, nil
}

func (r *Remote) WriteMailbox(pid kerntypes.ProcessId, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ack, err := r.client.WriteMailbox(ctx, &pb.MailboxImage{Pid: uint64(pid), Image: data})
	if err != nil {
		return kerntypes.NewError("write_mailbox", kerntypes.ErrHal, err)
	}
	if !ack.Ok {
		return kerntypes.NewError("write_mailbox", kerntypes.ErrHal, nil)
	}
	return nil
}

// WaitForWake lets internal/dispatcher treat Remote the same way it
// treats haldocker.Backend: a real wake primitive rather than a
// spin-poll fallback.
func (r *Remote) WaitForWake(ctx context.Context, pid kerntypes.ProcessId) error {
	_, err := r.client.WaitForWake(ctx, &pb.WakeRequest{Pid: uint64(pid)})
	return err
}

func (r *Remote) LoadBinary(name string) ([]byte, error) { return r.local.LoadBinary(name) }

var _ HAL = (*Remote)(nil)
