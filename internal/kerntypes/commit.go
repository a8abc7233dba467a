package kerntypes

import "bytes"

// CommitType is the sum type over every state mutation the CORE can
// record (§3). Each variant's Tag is the one byte the canonical wire
// format (§6.2) discriminates on; EncodeBody produces the canonical
// little-endian, length-prefixed body bytes that feed the commit hash.
type CommitType interface {
	Tag() byte
	EncodeBody() []byte
}

const (
	TagGenesis           byte = 0
	TagProcessCreated    byte = 1
	TagProcessExited     byte = 2
	TagProcessFaulted    byte = 3
	TagCapInserted       byte = 4
	TagCapRemoved        byte = 5
	TagCapGranted        byte = 6
	TagEndpointCreated   byte = 7
	TagEndpointDestroyed byte = 8
	TagMessageSent       byte = 9
)

type GenesisCommit struct{}

func (GenesisCommit) Tag() byte        { return TagGenesis }
func (GenesisCommit) EncodeBody() []byte { return nil }

type ProcessCreated struct {
	Pid    ProcessId
	Parent ProcessId
	Name   string
}

func (c ProcessCreated) Tag() byte { return TagProcessCreated }
func (c ProcessCreated) EncodeBody() []byte {
	var buf bytes.Buffer
	putUint64LE(&buf, uint64(c.Pid))
	putUint64LE(&buf, uint64(c.Parent))
	putString(&buf, c.Name)
	return buf.Bytes()
}

type ProcessExited struct {
	Pid  ProcessId
	Code int32
}

func (c ProcessExited) Tag() byte { return TagProcessExited }
func (c ProcessExited) EncodeBody() []byte {
	var buf bytes.Buffer
	putUint64LE(&buf, uint64(c.Pid))
	putUint32LE(&buf, uint32(c.Code))
	return buf.Bytes()
}

type ProcessFaulted struct {
	Pid         ProcessId
	Reason      string
	Description string
}

func (c ProcessFaulted) Tag() byte { return TagProcessFaulted }
func (c ProcessFaulted) EncodeBody() []byte {
	var buf bytes.Buffer
	putUint64LE(&buf, uint64(c.Pid))
	putString(&buf, c.Reason)
	putString(&buf, c.Description)
	return buf.Bytes()
}

type CapInserted struct {
	Pid        ProcessId
	Slot       CapSlot
	CapId      CapId
	ObjectType ObjectType
	ObjectId   uint64
	Perms      Permissions
}

func (c CapInserted) Tag() byte { return TagCapInserted }
func (c CapInserted) EncodeBody() []byte {
	var buf bytes.Buffer
	putUint64LE(&buf, uint64(c.Pid))
	putUint32LE(&buf, uint32(c.Slot))
	putUint64LE(&buf, uint64(c.CapId))
	putByte(&buf, byte(c.ObjectType))
	putUint64LE(&buf, c.ObjectId)
	putByte(&buf, byte(c.Perms))
	return buf.Bytes()
}

type CapRemoved struct {
	Pid  ProcessId
	Slot CapSlot
}

func (c CapRemoved) Tag() byte { return TagCapRemoved }
func (c CapRemoved) EncodeBody() []byte {
	var buf bytes.Buffer
	putUint64LE(&buf, uint64(c.Pid))
	putUint32LE(&buf, uint32(c.Slot))
	return buf.Bytes()
}

// CapGranted is informational audit only; the state change it accompanies
// is always a sibling CapInserted commit on the target (§4.7).
type CapGranted struct {
	From      ProcessId
	To        ProcessId
	FromSlot  CapSlot
	ToSlot    CapSlot
	NewCapId  CapId
	Perms     Permissions
}

func (c CapGranted) Tag() byte { return TagCapGranted }
func (c CapGranted) EncodeBody() []byte {
	var buf bytes.Buffer
	putUint64LE(&buf, uint64(c.From))
	putUint64LE(&buf, uint64(c.To))
	putUint32LE(&buf, uint32(c.FromSlot))
	putUint32LE(&buf, uint32(c.ToSlot))
	putUint64LE(&buf, uint64(c.NewCapId))
	putByte(&buf, byte(c.Perms))
	return buf.Bytes()
}

type EndpointCreated struct {
	Id    EndpointId
	Owner ProcessId
}

func (c EndpointCreated) Tag() byte { return TagEndpointCreated }
func (c EndpointCreated) EncodeBody() []byte {
	var buf bytes.Buffer
	putUint64LE(&buf, uint64(c.Id))
	putUint64LE(&buf, uint64(c.Owner))
	return buf.Bytes()
}

type EndpointDestroyed struct {
	Id EndpointId
}

func (c EndpointDestroyed) Tag() byte { return TagEndpointDestroyed }
func (c EndpointDestroyed) EncodeBody() []byte {
	var buf bytes.Buffer
	putUint64LE(&buf, uint64(c.Id))
	return buf.Bytes()
}

// MessageSent never carries payload bytes in the commit (§3) — only
// enough to audit that a send happened.
type MessageSent struct {
	From       ProcessId
	ToEndpoint EndpointId
	MsgTag     uint32
	Size       uint32
}

func (c MessageSent) Tag() byte { return TagMessageSent }
func (c MessageSent) EncodeBody() []byte {
	var buf bytes.Buffer
	putUint64LE(&buf, uint64(c.From))
	putUint64LE(&buf, uint64(c.ToEndpoint))
	putUint32LE(&buf, c.MsgTag)
	putUint32LE(&buf, c.Size)
	return buf.Bytes()
}

// Commit is one hash-chained entry in the CommitLog (§3, §6.2).
type Commit struct {
	Seq        uint64
	Id         [32]byte
	PrevCommit [32]byte
	Timestamp  uint64
	RequestId  *uint64
	CommitType CommitType
}
