package kernel

import (
	"github.com/orbital/kernel/internal/axiomcheck"
	"github.com/orbital/kernel/internal/kerntypes"
)

func (s *KernelState) capSpace(pid kerntypes.ProcessId) (*axiomcheck.CapSpace, error) {
	cs, ok := s.CapSpaces[pid]
	if !ok {
		return nil, kerntypes.NewError("capspace", kerntypes.ErrProcessNotFound, nil)
	}
	return cs, nil
}

func axiomErrToKind(err error) kerntypes.ErrorKind {
	ae, ok := err.(*axiomcheck.AxiomError)
	if !ok {
		return kerntypes.ErrInvalidArgument
	}
	switch ae.Kind {
	case axiomcheck.SlotEmpty, axiomcheck.WrongType, axiomcheck.InsufficientRights, axiomcheck.Expired:
		return kerntypes.ErrPermissionDenied
	default:
		return kerntypes.ErrInvalidArgument
	}
}

// Grant implements grant (spec §4.2.2): installs a new capability in the
// target's CapSpace derived from one the sender already holds, with
// rights that must be a subset of the source's (no escalation, §4.1
// Invariant).
func (s *KernelState) Grant(sender kerntypes.ProcessId, sourceSlot kerntypes.CapSlot, newPerms kerntypes.Permissions, target kerntypes.ProcessId, now uint64) (kerntypes.CapSlot, []kerntypes.CommitType, error) {
	srcSpace, err := s.capSpace(sender)
	if err != nil {
		return 0, nil, err
	}
	dstSpace, err := s.capSpace(target)
	if err != nil {
		return 0, nil, err
	}

	res, err := axiomcheck.Grant(srcSpace, sourceSlot, newPerms, now, s.allocCapId(), dstSpace)
	if err != nil {
		return 0, nil, kerntypes.NewError("grant", axiomErrToKind(err), err)
	}

	commits := []kerntypes.CommitType{
		kerntypes.CapInserted{
			Pid: target, Slot: res.Slot, CapId: res.Cap.Id,
			ObjectType: res.Cap.ObjectType, ObjectId: res.Cap.ObjectId, Perms: res.Cap.Permissions,
		},
		kerntypes.CapGranted{From: sender, To: target, FromSlot: sourceSlot, ToSlot: res.Slot, NewCapId: res.Cap.Id, Perms: res.Cap.Permissions},
	}
	return res.Slot, commits, nil
}

// Delete implements delete (spec §4.2.2): removes a capability from the
// caller's own CapSpace. Deleting an empty slot is a no-op success, not
// an error — idempotent per axiomcheck.Remove.
func (s *KernelState) Delete(sender kerntypes.ProcessId, slot kerntypes.CapSlot) ([]kerntypes.CommitType, error) {
	cs, err := s.capSpace(sender)
	if err != nil {
		return nil, err
	}
	if _, existed := cs.Remove(slot); !existed {
		return nil, nil
	}
	return []kerntypes.CommitType{kerntypes.CapRemoved{Pid: sender, Slot: slot}}, nil
}

// CapList implements cap_list (spec §4.2.2): enumerates the caller's own
// CapSpace. No commit — pure read.
func (s *KernelState) CapList(sender kerntypes.ProcessId) ([]kerntypes.CapEntry, error) {
	cs, err := s.capSpace(sender)
	if err != nil {
		return nil, err
	}
	return cs.List(), nil
}

// CapInfo implements cap_info (spec §4.2.2): introspects a single slot in
// the caller's own CapSpace, without performing any rights check — the
// caller is only ever shown its own slots.
func (s *KernelState) CapInfo(sender kerntypes.ProcessId, slot kerntypes.CapSlot) (kerntypes.CapInfoData, error) {
	cs, err := s.capSpace(sender)
	if err != nil {
		return kerntypes.CapInfoData{}, err
	}
	cap_, ok := cs.Get(slot)
	if !ok {
		return kerntypes.CapInfoData{}, kerntypes.NewError("cap_info", kerntypes.ErrInvalidCapability, nil)
	}
	return kerntypes.CapInfoData{
		ObjectType: cap_.ObjectType, Permissions: cap_.Permissions,
		ObjectId: cap_.ObjectId, Generation: cap_.Generation, ExpiresAt: cap_.ExpiresAt,
	}, nil
}
