package kernel

import "github.com/orbital/kernel/internal/kerntypes"

// GetTime implements get_time (spec §4.2.4): the gateway-provided logical
// timestamp, same value every syscall in the batch sees as "now".
func (s *KernelState) GetTime(now uint64) uint64 { return now }

// GetWallclock implements get_wallclock (spec §4.2.4): distinct from
// GetTime only in naming at this layer — the gateway is the sole source
// of both, preserving determinism under replay since neither ever reads
// an actual OS clock from inside Step.
func (s *KernelState) GetWallclock(now uint64) uint64 { return now }

// GetPid implements get_pid (spec §4.2.4).
func (s *KernelState) GetPid(sender kerntypes.ProcessId) kerntypes.ProcessId { return sender }

// Yield implements yield (spec §4.2.4): a no-op at the state-machine
// level — there is no scheduler here to yield to, only the dispatcher's
// round-robin over mailboxes, so Step records nothing.
func (s *KernelState) Yield() {}

// Ps implements ps (spec §4.2.4), supervisor-only: lists every live
// process.
func (s *KernelState) Ps(sender kerntypes.ProcessId) ([]kerntypes.ProcessInfo, error) {
	if sender != kerntypes.SupervisorPid {
		return nil, kerntypes.NewError("ps", kerntypes.ErrPermissionDenied, nil)
	}
	return s.ProcessList(), nil
}
