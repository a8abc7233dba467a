package kernel

import (
	"github.com/orbital/kernel/internal/axiomcheck"
	"github.com/orbital/kernel/internal/kerntypes"
)

// Attestor verifies a binary image before spawn_process is allowed to
// hand it to the HAL (SPEC_FULL §4.2.5 expansion). It lives outside
// KernelState — Step never performs I/O or cryptography itself. Nothing
// in the repository uses this interface: the gateway attests spawn
// images through attestation.Attestor before Step runs.
type Attestor interface {
	Attest(image []byte) error
}

// LoadBinary implements load_binary (spec §4.2.5), init-only (ABI table,
// spec.md:445): hands a binary image to the kernel layer, which the
// caller of Step is responsible for staging wherever the HAL expects it.
// Step itself does not retain binary bytes in KernelState — they never
// belong in a commit (§4.4: commits are small, structured facts).
func (s *KernelState) LoadBinary(sender kerntypes.ProcessId) error {
	if sender != kerntypes.InitPid {
		return kerntypes.NewError("load_binary", kerntypes.ErrPermissionDenied, nil)
	}
	return nil
}

// SpawnProcess implements spawn_process (spec §4.2.5), init-only (ABI
// table, spec.md:445): registers the new process in KernelState exactly
// like RegisterProcess, attributed to init as parent, without the
// bootstrap restriction — spawn is the steady-state way new processes
// come into existence once init is running. attestErr, when non-nil,
// means the caller's Attestor rejected the binary image; SpawnProcess
// surfaces that as ErrSpawnFailed rather than attempting to register the
// process.
func (s *KernelState) SpawnProcess(sender kerntypes.ProcessId, name string, attestErr error, now uint64) (kerntypes.ProcessId, []kerntypes.CommitType, error) {
	if sender != kerntypes.InitPid {
		return 0, nil, kerntypes.NewError("spawn_process", kerntypes.ErrPermissionDenied, nil)
	}
	if attestErr != nil {
		return 0, nil, kerntypes.NewError("spawn_process", kerntypes.ErrSpawnFailed, attestErr)
	}

	pid := s.NextPid
	s.NextPid++
	s.Processes[pid] = &Process{
		Id:        pid,
		Parent:    sender,
		Name:      name,
		State:     kerntypes.Running,
		StartTime: now,
	}
	s.CapSpaces[pid] = axiomcheck.NewCapSpace()

	commits := []kerntypes.CommitType{kerntypes.ProcessCreated{Pid: pid, Parent: sender, Name: name}}
	commits = append(commits, s.mintProcessCapability(sender, pid)...)
	return pid, commits, nil
}
