package dispatcher

import (
	"encoding/binary"

	"github.com/orbital/kernel/internal/kerntypes"
	"github.com/orbital/kernel/internal/mailbox"
)

// encodeResult writes a syscall's Result into the mailbox response
// (§6.1, §4.8 step 4). Scalar results (Ok, Err, WouldBlock) fit in the
// result word alone via AbiValue. Rich variants don't fit a single i64,
// so the dispatcher serializes them whole into the data region instead,
// leaving the result word as a count/presence flag the caller's runtime
// already knows how to interpret for that syscall (§6.1) — CommitIds
// ride along in the same data region for syscalls that produce commits,
// since a process's own supervisor tooling (not the sandboxed code
// itself) is the only consumer that cares about commit ids.
func encodeResult(box *mailbox.Box, result kerntypes.Result, commitIds gatewayCommitIds) {
	switch result.Kind {
	case kerntypes.ResultOk, kerntypes.ResultErr, kerntypes.ResultWouldBlock:
		box.WriteResponse(int32(result.AbiValue()), encodeCommitIds(commitIds))
	case kerntypes.ResultMessage:
		box.WriteResponse(1, encodeEnvelope(*result.Envelope, nil))
	case kerntypes.ResultMessageWithCaps:
		box.WriteResponse(1, encodeEnvelope(*result.Envelope, result.InstalledSlots))
	case kerntypes.ResultCapList:
		box.WriteResponse(int32(len(result.Caps)), encodeCapList(result.Caps))
	case kerntypes.ResultProcessList:
		box.WriteResponse(int32(len(result.Processes)), encodeProcessList(result.Processes))
	case kerntypes.ResultCapInfo:
		box.WriteResponse(1, encodeCapInfo(*result.CapInfo))
	default:
		box.WriteResponse(int32(kerntypes.AbiInvalidArgument), nil)
	}
}

// gatewayCommitIds is an alias for the commit id slice gateway.Syscall
// returns, for readability at call sites.
type gatewayCommitIds = []([32]byte)

func encodeCommitIds(ids gatewayCommitIds) []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ids)))
	for _, id := range ids {
		buf = append(buf, id[:]...)
	}
	return buf
}

func putString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func encodeEnvelope(e kerntypes.Envelope, installedSlots []kerntypes.CapSlot) []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, uint32(e.From))
	buf = binary.LittleEndian.AppendUint32(buf, e.Tag)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.Data)))
	buf = append(buf, e.Data...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.TransferredCaps)))
	for _, c := range e.TransferredCaps {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(c.ObjectType))
		buf = binary.LittleEndian.AppendUint64(buf, c.ObjectId)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(c.Permissions))
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(installedSlots)))
	for _, s := range installedSlots {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(s))
	}
	return buf
}

func encodeCapList(caps []kerntypes.CapEntry) []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(caps)))
	for _, entry := range caps {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(entry.Slot))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(entry.Cap.Id))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(entry.Cap.ObjectType))
		buf = binary.LittleEndian.AppendUint64(buf, entry.Cap.ObjectId)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(entry.Cap.Permissions))
		buf = binary.LittleEndian.AppendUint64(buf, entry.Cap.Generation)
		buf = binary.LittleEndian.AppendUint64(buf, entry.Cap.ExpiresAt)
	}
	return buf
}

func encodeProcessList(ps []kerntypes.ProcessInfo) []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ps)))
	for _, p := range ps {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(p.Pid))
		buf = putString(buf, p.Name)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(p.State))
	}
	return buf
}

func encodeCapInfo(info kerntypes.CapInfoData) []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, uint32(info.ObjectType))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(info.Permissions))
	buf = binary.LittleEndian.AppendUint64(buf, info.ObjectId)
	buf = binary.LittleEndian.AppendUint64(buf, info.Generation)
	buf = binary.LittleEndian.AppendUint64(buf, info.ExpiresAt)
	return buf
}
