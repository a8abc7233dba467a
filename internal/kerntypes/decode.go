package kerntypes

import (
	"bytes"
	"fmt"
	"io"
)

// readUint64LE/readUint32LE/readByte/readString are the inverse of
// put{Uint64LE,Uint32LE,Byte,String} in wire.go — used to decode a
// CommitType body back out of storage.StoredCommit.Body on orbitald's
// restore path (SPEC_FULL §4.4 expansion), and by DecodeSpawnProcessData
// to split a spawn_process payload; the hot path never decodes a commit,
// it only ever encodes one to feed the hash.

func readUint64LE(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v, nil
}

func readUint32LE(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(b[i]) << (8 * i)
	}
	return v, nil
}

func readByte(r *bytes.Reader) (byte, error) { return r.ReadByte() }

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32LE(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// DecodeSpawnProcessData splits a SPAWN_PROCESS syscall's Data payload
// into the process name and the binary image, per the ABI table's
// [name_len u32][name][binary] wire layout (§6.1).
func DecodeSpawnProcessData(data []byte) (name string, binary []byte, err error) {
	r := bytes.NewReader(data)
	name, err = readString(r)
	if err != nil {
		return "", nil, fmt.Errorf("kerntypes: decode spawn_process data: %w", err)
	}
	binary = make([]byte, r.Len())
	if _, err := io.ReadFull(r, binary); err != nil {
		return "", nil, fmt.Errorf("kerntypes: decode spawn_process data: %w", err)
	}
	if len(binary) == 0 {
		return "", nil, fmt.Errorf("kerntypes: spawn_process binary is empty")
	}
	return name, binary, nil
}

// DecodeCommitType reconstructs the CommitType a Tag()/EncodeBody() pair
// originally came from, for callers restoring a CommitLog from
// storage.StoredCommit rows.
func DecodeCommitType(tag byte, body []byte) (CommitType, error) {
	r := bytes.NewReader(body)
	switch tag {
	case TagGenesis:
		return GenesisCommit{}, nil

	case TagProcessCreated:
		pid, err := readUint64LE(r)
		if err != nil {
			return nil, err
		}
		parent, err := readUint64LE(r)
		if err != nil {
			return nil, err
		}
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		return ProcessCreated{Pid: ProcessId(pid), Parent: ProcessId(parent), Name: name}, nil

	case TagProcessExited:
		pid, err := readUint64LE(r)
		if err != nil {
			return nil, err
		}
		code, err := readUint32LE(r)
		if err != nil {
			return nil, err
		}
		return ProcessExited{Pid: ProcessId(pid), Code: int32(code)}, nil

	case TagProcessFaulted:
		pid, err := readUint64LE(r)
		if err != nil {
			return nil, err
		}
		reason, err := readString(r)
		if err != nil {
			return nil, err
		}
		desc, err := readString(r)
		if err != nil {
			return nil, err
		}
		return ProcessFaulted{Pid: ProcessId(pid), Reason: reason, Description: desc}, nil

	case TagCapInserted:
		pid, err := readUint64LE(r)
		if err != nil {
			return nil, err
		}
		slot, err := readUint32LE(r)
		if err != nil {
			return nil, err
		}
		capId, err := readUint64LE(r)
		if err != nil {
			return nil, err
		}
		objType, err := readByte(r)
		if err != nil {
			return nil, err
		}
		objId, err := readUint64LE(r)
		if err != nil {
			return nil, err
		}
		perms, err := readByte(r)
		if err != nil {
			return nil, err
		}
		return CapInserted{
			Pid: ProcessId(pid), Slot: CapSlot(slot), CapId: CapId(capId),
			ObjectType: ObjectType(objType), ObjectId: objId, Perms: Permissions(perms),
		}, nil

	case TagCapRemoved:
		pid, err := readUint64LE(r)
		if err != nil {
			return nil, err
		}
		slot, err := readUint32LE(r)
		if err != nil {
			return nil, err
		}
		return CapRemoved{Pid: ProcessId(pid), Slot: CapSlot(slot)}, nil

	case TagCapGranted:
		from, err := readUint64LE(r)
		if err != nil {
			return nil, err
		}
		to, err := readUint64LE(r)
		if err != nil {
			return nil, err
		}
		fromSlot, err := readUint32LE(r)
		if err != nil {
			return nil, err
		}
		toSlot, err := readUint32LE(r)
		if err != nil {
			return nil, err
		}
		newCapId, err := readUint64LE(r)
		if err != nil {
			return nil, err
		}
		perms, err := readByte(r)
		if err != nil {
			return nil, err
		}
		return CapGranted{
			From: ProcessId(from), To: ProcessId(to), FromSlot: CapSlot(fromSlot),
			ToSlot: CapSlot(toSlot), NewCapId: CapId(newCapId), Perms: Permissions(perms),
		}, nil

	case TagEndpointCreated:
		id, err := readUint64LE(r)
		if err != nil {
			return nil, err
		}
		owner, err := readUint64LE(r)
		if err != nil {
			return nil, err
		}
		return EndpointCreated{Id: EndpointId(id), Owner: ProcessId(owner)}, nil

	case TagEndpointDestroyed:
		id, err := readUint64LE(r)
		if err != nil {
			return nil, err
		}
		return EndpointDestroyed{Id: EndpointId(id)}, nil

	case TagMessageSent:
		from, err := readUint64LE(r)
		if err != nil {
			return nil, err
		}
		toEndpoint, err := readUint64LE(r)
		if err != nil {
			return nil, err
		}
		msgTag, err := readUint32LE(r)
		if err != nil {
			return nil, err
		}
		size, err := readUint32LE(r)
		if err != nil {
			return nil, err
		}
		return MessageSent{From: ProcessId(from), ToEndpoint: EndpointId(toEndpoint), MsgTag: msgTag, Size: size}, nil

	default:
		return nil, fmt.Errorf("kerntypes: unknown commit tag %d", tag)
	}
}
