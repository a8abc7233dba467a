package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbital/kernel/internal/commitlog"
	"github.com/orbital/kernel/internal/kerntypes"
)

func TestToStoredRoundTripsCommitFields(t *testing.T) {
	log := commitlog.New(0)
	rid := uint64(5)
	c := log.Append(kerntypes.ProcessCreated{Pid: 1, Parent: 0, Name: "init"}, &rid, 1)

	sc := ToStored(c)
	assert.Equal(t, c.Seq, sc.Seq)
	assert.Equal(t, c.Id, sc.Id)
	assert.Equal(t, kerntypes.TagProcessCreated, sc.Tag)
	require.NotNil(t, sc.RequestId)
	assert.Equal(t, rid, *sc.RequestId)
	assert.Equal(t, c.CommitType.EncodeBody(), sc.Body)
}

func TestFromStoredReversesToStored(t *testing.T) {
	log := commitlog.New(0)
	rid := uint64(5)
	c := log.Append(kerntypes.CapInserted{Pid: 1, Slot: 2, CapId: 3, ObjectType: kerntypes.ObjectEndpoint, ObjectId: 7, Perms: kerntypes.PermRead}, &rid, 1)

	restored, err := FromStored([]StoredCommit{ToStored(log.Commits()[0]), ToStored(c)})
	require.NoError(t, err)
	require.Len(t, restored, 2)
	assert.Equal(t, c.Id, restored[1].Id)
	assert.Equal(t, c.CommitType, restored[1].CommitType)
}

func TestMemoryEvictedRecordsSysEvents(t *testing.T) {
	m := NewMemory()
	m.Evicted(kerntypes.SysEvent{Id: 1, Sender: 7, Kind: kerntypes.SysRequest, SyscallNum: kerntypes.SysDebug})
	m.Evicted(kerntypes.SysEvent{Id: 2, Sender: 7, Kind: kerntypes.SysResponse})

	evicted := m.Evictions()
	require.Len(t, evicted, 2)
	assert.Equal(t, uint64(1), evicted[0].Id)
	assert.Equal(t, uint64(2), evicted[1].Id)
}

func TestMemoryAppendAndLoadAll(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Append(StoredCommit{Seq: 0, Tag: kerntypes.TagGenesis}))
	require.NoError(t, m.Append(StoredCommit{Seq: 1, Tag: kerntypes.TagProcessCreated, Body: []byte("x")}))

	rows, err := m.LoadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, uint64(1), rows[1].Seq)
}
