// Package axiomcheck implements the capability space and the single
// verification point, axiom_check, that converts a slot handle into typed
// authority (spec §4.1). No other package may reach inside a CapSpace's
// map directly — every read of stored authority goes through Check.
package axiomcheck

import "github.com/orbital/kernel/internal/kerntypes"

// AxiomErrorKind enumerates the ways a slot fails to resolve to the
// requested authority. These are a narrower taxonomy than
// kerntypes.ErrorKind — the kernel layer folds every one of them into
// ErrPermissionDenied when it builds a syscall Result, keeping the
// "insufficient rights" and "slot doesn't exist" cases indistinguishable
// from outside the kernel (spec §4.2.2: "otherwise PermissionDenied").
type AxiomErrorKind int

const (
	SlotEmpty AxiomErrorKind = iota
	WrongType
	InsufficientRights
	Expired
)

func (k AxiomErrorKind) String() string {
	switch k {
	case SlotEmpty:
		return "SlotEmpty"
	case WrongType:
		return "WrongType"
	case InsufficientRights:
		return "InsufficientRights"
	case Expired:
		return "Expired"
	default:
		return "Unknown"
	}
}

type AxiomError struct {
	Kind AxiomErrorKind
}

func (e *AxiomError) Error() string { return "axiom_check: " + e.Kind.String() }

// CapSpace is a per-process map from slot to capability, plus the
// monotone next_slot counter (§3). Slots are allocated in insertion order
// and never reused while the process lives.
type CapSpace struct {
	slots    map[kerntypes.CapSlot]kerntypes.Capability
	nextSlot kerntypes.CapSlot
}

func NewCapSpace() *CapSpace {
	return &CapSpace{slots: make(map[kerntypes.CapSlot]kerntypes.Capability)}
}

// Check is axiom_check: the sole conversion point from slot handle to
// typed authority. It succeeds only by returning the same object_id and
// type that were previously inserted — it never synthesizes or widens.
func (cs *CapSpace) Check(slot kerntypes.CapSlot, requiredType kerntypes.ObjectType, requiredPerms kerntypes.Permissions, now uint64) (kerntypes.Capability, error) {
	cap, ok := cs.slots[slot]
	if !ok {
		return kerntypes.Capability{}, &AxiomError{Kind: SlotEmpty}
	}
	if cap.ObjectType != requiredType {
		return kerntypes.Capability{}, &AxiomError{Kind: WrongType}
	}
	if !requiredPerms.Subset(cap.Permissions) {
		return kerntypes.Capability{}, &AxiomError{Kind: InsufficientRights}
	}
	if cap.ExpiresAt != 0 && now > cap.ExpiresAt {
		return kerntypes.Capability{}, &AxiomError{Kind: Expired}
	}
	return cap, nil
}

// Insert places cap at the current next_slot and returns that slot. The
// caller (kernel layer) is responsible for allocating cap.Id from the
// kernel-wide monotone counter before calling Insert — CapId uniqueness is
// a CommitLog-wide property, not a per-CapSpace one.
func (cs *CapSpace) Insert(cap kerntypes.Capability) kerntypes.CapSlot {
	slot := cs.nextSlot
	cs.nextSlot++
	cs.slots[slot] = cap
	return slot
}

// InsertAt is used only by the replay engine, which must reproduce the
// exact slot a CapInserted commit recorded rather than allocate a new one.
func (cs *CapSpace) InsertAt(slot kerntypes.CapSlot, cap kerntypes.Capability) {
	cs.slots[slot] = cap
	if slot >= cs.nextSlot {
		cs.nextSlot = slot + 1
	}
}

// Remove deletes a slot, idempotently. It frees the slot's reference but
// never lowers next_slot, so slots are never reused.
func (cs *CapSpace) Remove(slot kerntypes.CapSlot) (kerntypes.Capability, bool) {
	cap, ok := cs.slots[slot]
	if ok {
		delete(cs.slots, slot)
	}
	return cap, ok
}

// List returns every (slot, capability) pair in the space. Order is
// unspecified to callers beyond "stable for a given map state"; the
// kernel layer sorts before returning a CapList result.
func (cs *CapSpace) List() []kerntypes.CapEntry {
	out := make([]kerntypes.CapEntry, 0, len(cs.slots))
	for slot, cap := range cs.slots {
		out = append(out, kerntypes.CapEntry{Slot: slot, Cap: cap})
	}
	return out
}

// Get returns the raw capability at slot without rights checking; used
// by cap_info (which requires no particular rights, only slot existence,
// per §4.2.2) and by tests. Grant does not use it.
func (cs *CapSpace) Get(slot kerntypes.CapSlot) (kerntypes.Capability, bool) {
	cap, ok := cs.slots[slot]
	return cap, ok
}

// FindByObject scans for a live capability over (objectType, objectId)
// carrying at least requiredPerms, unexpired as of now. Unlike Check, the
// caller has no slot to name — kill_process(target) carries only a
// target pid, so authority has to be established by object identity
// instead (spec §4.2.1). Order among multiple matching slots is
// unspecified; the first live match is returned.
func (cs *CapSpace) FindByObject(objectType kerntypes.ObjectType, objectId uint64, requiredPerms kerntypes.Permissions, now uint64) (kerntypes.Capability, bool) {
	for _, cap := range cs.slots {
		if cap.ObjectType != objectType || cap.ObjectId != objectId {
			continue
		}
		if !requiredPerms.Subset(cap.Permissions) {
			continue
		}
		if cap.ExpiresAt != 0 && now > cap.ExpiresAt {
			continue
		}
		return cap, true
	}
	return kerntypes.Capability{}, false
}

// GrantResult is the outcome of a successful Grant: the new capability
// installed in the target's space, and the slot it landed at.
type GrantResult struct {
	Slot kerntypes.CapSlot
	Cap  kerntypes.Capability
}

// CheckAny is axiom_check without a type constraint — used where the
// caller only cares about rights on whatever object a slot addresses,
// such as grant()'s {grant} check on the source slot and send()'s
// {read} check before transferring a capability (§4.3).
func (cs *CapSpace) CheckAny(slot kerntypes.CapSlot, requiredPerms kerntypes.Permissions, now uint64) (kerntypes.Capability, error) {
	cap, ok := cs.slots[slot]
	if !ok {
		return kerntypes.Capability{}, &AxiomError{Kind: SlotEmpty}
	}
	if !requiredPerms.Subset(cap.Permissions) {
		return kerntypes.Capability{}, &AxiomError{Kind: InsufficientRights}
	}
	if cap.ExpiresAt != 0 && now > cap.ExpiresAt {
		return kerntypes.Capability{}, &AxiomError{Kind: Expired}
	}
	return cap, nil
}

// Grant implements §4.1's grant: axiom_check the source slot requiring
// {grant}; verify newPerms is a subset of the source capability's
// permissions; insert a fresh capability (newCapId, caller-allocated) into
// target's space. It never widens rights: newPerms ⊄ source.Permissions is
// rejected before any mutation.
func Grant(source *CapSpace, sourceSlot kerntypes.CapSlot, newPerms kerntypes.Permissions, now uint64, newCapId kerntypes.CapId, target *CapSpace) (GrantResult, error) {
	srcCap, err := source.CheckAny(sourceSlot, kerntypes.PermGrant, now)
	if err != nil {
		return GrantResult{}, err
	}
	if !newPerms.Subset(srcCap.Permissions) {
		return GrantResult{}, &AxiomError{Kind: InsufficientRights}
	}
	newCap := kerntypes.Capability{
		Id:          newCapId,
		ObjectType:  srcCap.ObjectType,
		ObjectId:    srcCap.ObjectId,
		Permissions: newPerms,
		Generation:  0,
		ExpiresAt:   0,
	}
	slot := target.Insert(newCap)
	return GrantResult{Slot: slot, Cap: newCap}, nil
}
