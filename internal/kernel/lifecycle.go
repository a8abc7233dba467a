package kernel

import (
	"sort"
	"strconv"

	"github.com/orbital/kernel/internal/axiomcheck"
	"github.com/orbital/kernel/internal/kerntypes"
)

// RegisterProcess implements register_process (spec §4.2.1). In steady
// state only init (pid 1) may register a new process. The one exception
// is the bootstrap: the supervisor (pid 0) registers init itself, the
// first time, before init exists. Once init exists the exception is
// closed — the supervisor can never register again.
func (s *KernelState) RegisterProcess(sender kerntypes.ProcessId, name string, now uint64) (kerntypes.ProcessId, []kerntypes.CommitType, error) {
	_, initExists := s.Processes[kerntypes.InitPid]

	bootstrapping := sender == kerntypes.SupervisorPid && !initExists
	if sender != kerntypes.InitPid && !bootstrapping {
		return 0, nil, kerntypes.NewError("register_process", kerntypes.ErrPermissionDenied, nil)
	}

	var pid kerntypes.ProcessId
	if bootstrapping {
		pid = kerntypes.InitPid
	} else {
		pid = s.NextPid
		s.NextPid++
	}

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

// mintProcessCapability installs a Process{read,write} capability over
// child into parent's own CapSpace, right after child is created — the
// authority kill_process(target) later checks (spec §4.2.1). The
// supervisor never holds a CapSpace of its own (it exists only as a
// caller identity, spec §4.2.1), so bootstrapping init under the
// supervisor mints nothing; init acquires kill authority over its own
// children once it starts spawning them.
func (s *KernelState) mintProcessCapability(parent, child kerntypes.ProcessId) []kerntypes.CommitType {
	cs, ok := s.CapSpaces[parent]
	if !ok {
		return nil
	}
	cap_ := kerntypes.Capability{
		Id:          s.allocCapId(),
		ObjectType:  kerntypes.ObjectProcess,
		ObjectId:    uint64(child),
		Permissions: kerntypes.PermRead | kerntypes.PermWrite,
	}
	slot := cs.Insert(cap_)
	return []kerntypes.CommitType{kerntypes.CapInserted{
		Pid: parent, Slot: slot, CapId: cap_.Id,
		ObjectType: cap_.ObjectType, ObjectId: cap_.ObjectId, Perms: cap_.Permissions,
	}}
}

// destroyOwnedEndpoints tears down every endpoint a departing process
// owns, discarding pending messages, per §5 "A process that exits causes
// its endpoints to be destroyed". Capabilities others hold into those
// endpoints are left in their slots — they will simply fail axiom_check
// once the endpoint no longer resolves.
func (s *KernelState) destroyOwnedEndpoints(pid kerntypes.ProcessId) []kerntypes.CommitType {
	var ids []kerntypes.EndpointId
	for id, ep := range s.Endpoints {
		if ep.Owner == pid {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	commits := make([]kerntypes.CommitType, 0, len(ids))
	for _, id := range ids {
		delete(s.Endpoints, id)
		commits = append(commits, kerntypes.EndpointDestroyed{Id: id})
	}
	return commits
}

// Exit implements exit (spec §4.2.1, §5): the caller marks itself Zombie
// and every endpoint it owns is destroyed.
func (s *KernelState) Exit(sender kerntypes.ProcessId, code uint32) ([]kerntypes.CommitType, error) {
	p, ok := s.Processes[sender]
	if !ok {
		return nil, kerntypes.NewError("exit", kerntypes.ErrProcessNotFound, nil)
	}
	p.State = kerntypes.Zombie
	commits := append([]kerntypes.CommitType{kerntypes.ProcessExited{Pid: sender, Code: int32(code)}}, s.destroyOwnedEndpoints(sender)...)
	return commits, nil
}

// Fault implements fault (spec §4.2.1): records a fault reason against
// the caller, marks it Zombie (distinct from a clean Exit so replay and
// audit can tell the two apart), and destroys its owned endpoints.
func (s *KernelState) Fault(sender kerntypes.ProcessId, reason uint32, description string) ([]kerntypes.CommitType, error) {
	p, ok := s.Processes[sender]
	if !ok {
		return nil, kerntypes.NewError("fault", kerntypes.ErrProcessNotFound, nil)
	}
	p.State = kerntypes.Zombie
	commits := append([]kerntypes.CommitType{kerntypes.ProcessFaulted{Pid: sender, Reason: strconv.FormatUint(uint64(reason), 10), Description: description}}, s.destroyOwnedEndpoints(sender)...)
	return commits, nil
}

// KillProcess implements kill_process (spec §4.2.1): requires the sender
// hold a Process capability with write over target — minted for a
// process's parent at creation time by mintProcessCapability — then
// forces the target Zombie regardless of its own cooperation, and
// destroys its owned endpoints exactly as Exit would. The supervisor
// holds no CapSpace of its own, so it can never satisfy this check; kill
// authority belongs to whichever process actually created target.
func (s *KernelState) KillProcess(sender, target kerntypes.ProcessId, now uint64) ([]kerntypes.CommitType, error) {
	cs, err := s.capSpace(sender)
	if err != nil {
		return nil, kerntypes.NewError("kill_process", kerntypes.ErrPermissionDenied, err)
	}
	if _, ok := cs.FindByObject(kerntypes.ObjectProcess, uint64(target), kerntypes.PermWrite, now); !ok {
		return nil, kerntypes.NewError("kill_process", kerntypes.ErrPermissionDenied, nil)
	}
	p, ok := s.Processes[target]
	if !ok {
		return nil, kerntypes.NewError("kill_process", kerntypes.ErrProcessNotFound, nil)
	}
	p.State = kerntypes.Zombie
	commits := append([]kerntypes.CommitType{kerntypes.ProcessExited{Pid: target, Code: 0}}, s.destroyOwnedEndpoints(target)...)
	return commits, nil
}
