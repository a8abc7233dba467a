package kernel

import "github.com/orbital/kernel/internal/kerntypes"

// Step is the kernel's single entry point (spec §4.2, §5): given the
// current state, the caller's pid, a syscall, and the gateway's logical
// "now", it mutates state in place and returns the commits that mutation
// produced plus the syscall's Result. KernelState has exactly one writer
// (the gateway), so Step never needs its own locking.
func (s *KernelState) Step(sender kerntypes.ProcessId, call kerntypes.Syscall, now uint64) ([]kerntypes.CommitType, kerntypes.Result) {
	switch call.Num {
	case kerntypes.SysDebug:
		return nil, kerntypes.Ok(0)

	case kerntypes.SysGetTime:
		return nil, kerntypes.Ok(s.GetTime(now))

	case kerntypes.SysGetWallclock:
		return nil, kerntypes.Ok(s.GetWallclock(now))

	case kerntypes.SysGetPid:
		return nil, kerntypes.Ok(uint64(s.GetPid(sender)))

	case kerntypes.SysYield:
		s.Yield()
		return nil, kerntypes.Ok(0)

	case kerntypes.SysExit:
		commits, err := s.Exit(sender, call.Args[0])
		if err != nil {
			return nil, errResult(err)
		}
		return commits, kerntypes.Ok(0)

	case kerntypes.SysFault:
		commits, err := s.Fault(sender, call.Args[0], string(call.Data))
		if err != nil {
			return nil, errResult(err)
		}
		return commits, kerntypes.Ok(0)

	case kerntypes.SysKill:
		commits, err := s.KillProcess(sender, kerntypes.ProcessId(call.Args[0]), now)
		if err != nil {
			return nil, errResult(err)
		}
		return commits, kerntypes.Ok(0)

	case kerntypes.SysRegisterProcess:
		pid, commits, err := s.RegisterProcess(sender, string(call.Data), now)
		if err != nil {
			return nil, errResult(err)
		}
		return commits, kerntypes.Ok(uint64(pid))

	case kerntypes.SysSpawnProcess:
		// Attestation happens in the gateway before Step is ever called
		// (SPEC_FULL §4.2.5 expansion): a rejected image never reaches
		// here, so attestErr is always nil on this path.
		pid, commits, err := s.SpawnProcess(sender, string(call.Data), nil, now)
		if err != nil {
			return nil, errResult(err)
		}
		return commits, kerntypes.Ok(uint64(pid))

	case kerntypes.SysCreateEndpoint:
		id, slot, commits, err := s.CreateEndpoint(sender)
		if err != nil {
			return nil, errResult(err)
		}
		return commits, kerntypes.Ok(endpointHandle(slot, id))

	case kerntypes.SysCreateEndpointFor:
		owner := kerntypes.ProcessId(call.Args[0])
		id, slot, commits, err := s.CreateEndpointFor(sender, owner)
		if err != nil {
			return nil, errResult(err)
		}
		return commits, kerntypes.Ok(endpointHandle(slot, id))

	case kerntypes.SysGrant:
		sourceSlot := kerntypes.CapSlot(call.Args[0])
		newPerms := kerntypes.Permissions(call.Args[1])
		target := kerntypes.ProcessId(call.Args[2])
		slot, commits, err := s.Grant(sender, sourceSlot, newPerms, target, now)
		if err != nil {
			return nil, errResult(err)
		}
		return commits, kerntypes.Ok(uint64(slot))

	case kerntypes.SysDelete:
		commits, err := s.Delete(sender, kerntypes.CapSlot(call.Args[0]))
		if err != nil {
			return nil, errResult(err)
		}
		return commits, kerntypes.Ok(0)

	case kerntypes.SysCapList:
		caps, err := s.CapList(sender)
		if err != nil {
			return nil, errResult(err)
		}
		return nil, kerntypes.CapList(caps)

	case kerntypes.SysCapInfo:
		info, err := s.CapInfo(sender, kerntypes.CapSlot(call.Args[0]))
		if err != nil {
			return nil, errResult(err)
		}
		return nil, kerntypes.CapInfoResult(info)

	case kerntypes.SysSend:
		slot := kerntypes.CapSlot(call.Args[0])
		tag := call.Args[1]
		transfers := decodeSlots(call.Args[2], call.Args[3])
		commits, err := s.Send(sender, slot, tag, call.Data, transfers, now)
		if err != nil {
			return nil, errResult(err)
		}
		return commits, kerntypes.Ok(0)

	case kerntypes.SysReceive:
		slot := kerntypes.CapSlot(call.Args[0])
		env, installed, commits, ok, err := s.Receive(sender, slot, now)
		if err != nil {
			return nil, errResult(err)
		}
		if !ok {
			return nil, kerntypes.WouldBlock()
		}
		if len(installed) > 0 {
			return commits, kerntypes.MessageWithCaps(env, installed)
		}
		return commits, kerntypes.Message(env)

	case kerntypes.SysPs:
		procs, err := s.Ps(sender)
		if err != nil {
			return nil, errResult(err)
		}
		return nil, kerntypes.ProcessList(procs)

	case kerntypes.SysLoadBinary:
		if err := s.LoadBinary(sender); err != nil {
			return nil, errResult(err)
		}
		return nil, kerntypes.Ok(0)

	default:
		return nil, kerntypes.Err(kerntypes.ErrNotSupported)
	}
}

func errResult(err error) kerntypes.Result {
	if ke, ok := err.(*kerntypes.KernelError); ok {
		return kerntypes.Err(ke.Kind)
	}
	return kerntypes.Err(kerntypes.ErrInvalidArgument)
}

// endpointHandle packs (slot, endpoint id) into the single i64 ABI value
// create_endpoint/create_endpoint_for return, per §4.2.3's
// (slot << 32) | endpoint_id encoding.
func endpointHandle(slot kerntypes.CapSlot, id kerntypes.EndpointId) uint64 {
	return uint64(slot)<<32 | (uint64(id) & 0xFFFFFFFF)
}

// decodeSlots unpacks up to two capability slots passed inline in syscall
// args, treating 0 as "no slot". It never returns more than two entries;
// a send cannot transfer more than two caps through this path. The
// mailbox carries only three argument words, so a call that arrives
// through the dispatcher always has b == 0.
func decodeSlots(a, b uint32) []kerntypes.CapSlot {
	var out []kerntypes.CapSlot
	if a != 0 {
		out = append(out, kerntypes.CapSlot(a))
	}
	if b != 0 {
		out = append(out, kerntypes.CapSlot(b))
	}
	return out
}
