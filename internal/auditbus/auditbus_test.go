package auditbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbital/kernel/internal/commitlog"
	"github.com/orbital/kernel/internal/kerntypes"
)

func TestInProcessDeliversToSubscriber(t *testing.T) {
	b := NewInProcess()
	ch, cancel := b.Subscribe()
	defer cancel()

	log := commitlog.New(0)
	c := log.Append(kerntypes.ProcessCreated{Pid: 1, Parent: 0, Name: "init"}, nil, 1)
	b.EmitCommit(c)

	select {
	case e := <-ch:
		assert.Equal(t, TypeCommit, e.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestInProcessCancelStopsDelivery(t *testing.T) {
	b := NewInProcess()
	ch, cancel := b.Subscribe()
	cancel()

	log := commitlog.New(0)
	c := log.Append(kerntypes.ProcessCreated{Pid: 1, Parent: 0, Name: "init"}, nil, 1)
	b.EmitCommit(c)

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after cancel")
}

func TestInProcessSysEventDelivery(t *testing.T) {
	b := NewInProcess()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.EmitSysEvent(kerntypes.SysEvent{Id: 1, Sender: 1, Kind: kerntypes.SysRequest, SyscallNum: kerntypes.SysGetPid})

	e := <-ch
	assert.Equal(t, TypeSysEvent, e.Type)
}
