package kernel

import (
	"github.com/orbital/kernel/internal/kerntypes"
)

// CreateEndpoint implements create_endpoint (spec §4.2.3): the caller
// becomes the new endpoint's owner. Emits EndpointCreated then
// CapInserted, in that order.
func (s *KernelState) CreateEndpoint(sender kerntypes.ProcessId) (kerntypes.EndpointId, kerntypes.CapSlot, []kerntypes.CommitType, error) {
	if _, ok := s.Processes[sender]; !ok {
		return 0, 0, nil, kerntypes.NewError("create_endpoint", kerntypes.ErrProcessNotFound, nil)
	}
	return s.createEndpointIn(sender)
}

// CreateEndpointFor implements create_endpoint_for (spec §4.2.3): only
// init may invoke it, and the capability lands in target_pid's space
// instead of the caller's.
func (s *KernelState) CreateEndpointFor(sender, owner kerntypes.ProcessId) (kerntypes.EndpointId, kerntypes.CapSlot, []kerntypes.CommitType, error) {
	if sender != kerntypes.InitPid {
		return 0, 0, nil, kerntypes.NewError("create_endpoint_for", kerntypes.ErrPermissionDenied, nil)
	}
	if _, ok := s.Processes[owner]; !ok {
		return 0, 0, nil, kerntypes.NewError("create_endpoint_for", kerntypes.ErrProcessNotFound, nil)
	}
	return s.createEndpointIn(owner)
}

func (s *KernelState) createEndpointIn(owner kerntypes.ProcessId) (kerntypes.EndpointId, kerntypes.CapSlot, []kerntypes.CommitType, error) {
	id := s.NextEndpoint
	s.NextEndpoint++
	s.Endpoints[id] = &Endpoint{Id: id, Owner: owner}

	capId := s.allocCapId()
	cs, err := s.capSpace(owner)
	if err != nil {
		return 0, 0, nil, err
	}
	slot := cs.Insert(kerntypes.Capability{Id: capId, ObjectType: kerntypes.ObjectEndpoint, ObjectId: uint64(id), Permissions: kerntypes.PermAll})

	commits := []kerntypes.CommitType{
		kerntypes.EndpointCreated{Id: id, Owner: owner},
		kerntypes.CapInserted{Pid: owner, Slot: slot, CapId: capId, ObjectType: kerntypes.ObjectEndpoint, ObjectId: uint64(id), Perms: kerntypes.PermAll},
	}
	return id, slot, commits, nil
}

// Send implements send (spec §4.3): axiom_check the endpoint capability
// for {write}, capture (not install) any transferred capabilities, and
// enqueue at the target endpoint's tail. Capability installation and its
// CapInserted commits happen at Receive time, not here — Send only ever
// emits MessageSent.
func (s *KernelState) Send(sender kerntypes.ProcessId, slot kerntypes.CapSlot, tag uint32, data []byte, transfers []kerntypes.CapSlot, now uint64) ([]kerntypes.CommitType, error) {
	if len(data) > kerntypes.MaxMessageSize {
		return nil, kerntypes.NewError("send", kerntypes.ErrInvalidArgument, nil)
	}
	if len(transfers) > kerntypes.MaxCapsPerMessage {
		return nil, kerntypes.NewError("send", kerntypes.ErrInvalidArgument, nil)
	}

	srcSpace, err := s.capSpace(sender)
	if err != nil {
		return nil, err
	}
	cap_, err := srcSpace.Check(slot, kerntypes.ObjectEndpoint, kerntypes.PermWrite, now)
	if err != nil {
		return nil, kerntypes.NewError("send", axiomErrToKind(err), err)
	}
	epId := kerntypes.EndpointId(cap_.ObjectId)
	ep, ok := s.Endpoints[epId]
	if !ok {
		return nil, kerntypes.NewError("send", kerntypes.ErrEndpointNotFound, nil)
	}
	if len(ep.Pending) >= s.MaxQueueDepth {
		return nil, kerntypes.NewError("send", kerntypes.ErrWouldBlock, nil)
	}

	env := kerntypes.Envelope{From: sender, Tag: tag, Data: append([]byte(nil), data...)}
	for _, srcSlot := range transfers {
		srcCap, terr := srcSpace.CheckAny(srcSlot, kerntypes.PermRead, now)
		if terr != nil {
			return nil, kerntypes.NewError("send", axiomErrToKind(terr), terr)
		}
		env.TransferredCaps = append(env.TransferredCaps, kerntypes.TransferredCap{
			ObjectType: srcCap.ObjectType, ObjectId: srcCap.ObjectId, Permissions: srcCap.Permissions,
		})
	}

	ep.Pending = append(ep.Pending, env)
	ep.QueueDepth = len(ep.Pending)
	if ep.QueueDepth > ep.HighWaterMark {
		ep.HighWaterMark = ep.QueueDepth
	}
	ep.TotalSent++
	if p, ok := s.Processes[sender]; ok {
		p.MessagesSent++
		p.BytesSent += uint64(len(data))
	}
	return []kerntypes.CommitType{kerntypes.MessageSent{From: sender, ToEndpoint: epId, MsgTag: tag, Size: uint32(len(data))}}, nil
}

// Receive implements receive (spec §4.3): dequeues the oldest pending
// envelope at an endpoint the caller owns, installing any transferred
// capabilities fresh into the caller's own space and emitting a
// CapInserted per installation.
func (s *KernelState) Receive(sender kerntypes.ProcessId, slot kerntypes.CapSlot, now uint64) (kerntypes.Envelope, []kerntypes.CapSlot, []kerntypes.CommitType, bool, error) {
	cs, err := s.capSpace(sender)
	if err != nil {
		return kerntypes.Envelope{}, nil, nil, false, err
	}
	cap_, err := cs.Check(slot, kerntypes.ObjectEndpoint, kerntypes.PermRead, now)
	if err != nil {
		return kerntypes.Envelope{}, nil, nil, false, kerntypes.NewError("receive", axiomErrToKind(err), err)
	}
	epId := kerntypes.EndpointId(cap_.ObjectId)
	ep, ok := s.Endpoints[epId]
	if !ok {
		return kerntypes.Envelope{}, nil, nil, false, kerntypes.NewError("receive", kerntypes.ErrEndpointNotFound, nil)
	}
	// Endpoints are owner-read only even if a read-cap somehow leaked.
	if ep.Owner != sender {
		return kerntypes.Envelope{}, nil, nil, false, kerntypes.NewError("receive", kerntypes.ErrPermissionDenied, nil)
	}
	if len(ep.Pending) == 0 {
		return kerntypes.Envelope{}, nil, nil, false, nil
	}

	env := ep.Pending[0]
	ep.Pending = ep.Pending[1:]
	ep.QueueDepth = len(ep.Pending)
	ep.TotalReceived++
	if p, ok := s.Processes[sender]; ok {
		p.MessagesRecv++
		p.BytesRecv += uint64(len(env.Data))
	}

	var installed []kerntypes.CapSlot
	var commits []kerntypes.CommitType
	for _, tc := range env.TransferredCaps {
		newId := s.allocCapId()
		newSlot := cs.Insert(kerntypes.Capability{Id: newId, ObjectType: tc.ObjectType, ObjectId: tc.ObjectId, Permissions: tc.Permissions})
		installed = append(installed, newSlot)
		commits = append(commits, kerntypes.CapInserted{
			Pid: sender, Slot: newSlot, CapId: newId, ObjectType: tc.ObjectType, ObjectId: tc.ObjectId, Perms: tc.Permissions,
		})
	}

	return env, installed, commits, true, nil
}
