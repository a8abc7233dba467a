package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbital/kernel/internal/kerntypes"
)

func bootstrapInit(t *testing.T, s *KernelState) {
	t.Helper()
	_, commits, err := s.RegisterProcess(kerntypes.SupervisorPid, "init", 0)
	require.NoError(t, err)
	require.Len(t, commits, 1)
}

func TestRegisterProcessBootstrapThenLocksDown(t *testing.T) {
	s := New()
	bootstrapInit(t, s)
	require.Contains(t, s.Processes, kerntypes.InitPid)

	// Supervisor can no longer register once init exists.
	_, _, err := s.RegisterProcess(kerntypes.SupervisorPid, "evil", 0)
	require.Error(t, err)
	assert.Equal(t, kerntypes.ErrPermissionDenied, err.(*kerntypes.KernelError).Kind)

	// Init, steady state, can register further processes. It also now
	// holds a CapSpace, so registering mints it a Process capability over
	// the new child alongside the ProcessCreated commit.
	pid, commits, err := s.RegisterProcess(kerntypes.InitPid, "shell", 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pid)
	require.Len(t, commits, 2)
}

func TestExitMarksZombie(t *testing.T) {
	s := New()
	bootstrapInit(t, s)
	commits, err := s.Exit(kerntypes.InitPid, 0)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, kerntypes.Zombie, s.Processes[kerntypes.InitPid].State)
}

func TestKillProcessRequiresProcessCapability(t *testing.T) {
	s := New()
	bootstrapInit(t, s)

	child, commits, err := s.RegisterProcess(kerntypes.InitPid, "child", 0)
	require.NoError(t, err)
	require.Len(t, commits, 2) // ProcessCreated + init's minted Process capability over child

	other, _, err := s.RegisterProcess(kerntypes.InitPid, "other", 0)
	require.NoError(t, err)

	// other holds no capability over child.
	_, err = s.KillProcess(other, child, 0)
	require.Error(t, err)
	assert.Equal(t, kerntypes.ErrPermissionDenied, err.(*kerntypes.KernelError).Kind)

	// init minted a Process{write} capability over child at creation time.
	commits, err = s.KillProcess(kerntypes.InitPid, child, 0)
	require.NoError(t, err)
	require.NotEmpty(t, commits)
	assert.Equal(t, kerntypes.Zombie, s.Processes[child].State)

	// The supervisor holds no CapSpace of its own, so it can never kill.
	_, err = s.KillProcess(kerntypes.SupervisorPid, kerntypes.InitPid, 0)
	require.Error(t, err)
	assert.Equal(t, kerntypes.ErrPermissionDenied, err.(*kerntypes.KernelError).Kind)
}

func TestCreateEndpointAndSendReceive(t *testing.T) {
	s := New()
	bootstrapInit(t, s)
	receiver, _, err := s.RegisterProcess(kerntypes.InitPid, "receiver", 0)
	require.NoError(t, err)

	epId, slot, commits, err := s.CreateEndpointFor(kerntypes.InitPid, receiver)
	require.NoError(t, err)
	require.Len(t, commits, 2)

	sender, _, err := s.RegisterProcess(kerntypes.InitPid, "sender", 0)
	require.NoError(t, err)

	// Grant the sender a write-only view of the receiver's endpoint.
	senderCS := s.CapSpaces[sender]
	writeSlot := senderCS.Insert(kerntypes.Capability{
		Id: s.allocCapId(), ObjectType: kerntypes.ObjectEndpoint, ObjectId: uint64(epId), Permissions: kerntypes.PermWrite,
	})

	commits, err = s.Send(sender, writeSlot, 7, []byte("hello"), nil, 10)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, kerntypes.TagMessageSent, commits[0].Tag())

	env, installed, rcommits, ok, err := s.Receive(receiver, slot, 11)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, installed)
	assert.Empty(t, rcommits)
	assert.Equal(t, sender, env.From)
	assert.Equal(t, []byte("hello"), env.Data)

	_, _, _, ok, err = s.Receive(receiver, slot, 12)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSendRejectsOversizedPayload(t *testing.T) {
	s := New()
	bootstrapInit(t, s)
	epId, _, _, err := s.CreateEndpointFor(kerntypes.InitPid, kerntypes.InitPid)
	require.NoError(t, err)

	cs := s.CapSpaces[kerntypes.InitPid]
	slot := cs.Insert(kerntypes.Capability{Id: s.allocCapId(), ObjectType: kerntypes.ObjectEndpoint, ObjectId: uint64(epId), Permissions: kerntypes.PermAll})

	big := make([]byte, kerntypes.MaxPayload+1)
	_, err = s.Send(kerntypes.InitPid, slot, 0, big, nil, 0)
	require.Error(t, err)
	assert.Equal(t, kerntypes.ErrInvalidArgument, err.(*kerntypes.KernelError).Kind)
}

func TestGrantRejectsEscalationThroughKernel(t *testing.T) {
	s := New()
	bootstrapInit(t, s)
	other, _, err := s.RegisterProcess(kerntypes.InitPid, "other", 0)
	require.NoError(t, err)

	cs := s.CapSpaces[kerntypes.InitPid]
	roSlot := cs.Insert(kerntypes.Capability{Id: s.allocCapId(), ObjectType: kerntypes.ObjectEndpoint, ObjectId: 1, Permissions: kerntypes.PermRead | kerntypes.PermGrant})

	_, _, err = s.Grant(kerntypes.InitPid, roSlot, kerntypes.PermAll, other, 0)
	require.Error(t, err)

	slot, commits, err := s.Grant(kerntypes.InitPid, roSlot, kerntypes.PermRead, other, 0)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	got, ok := s.CapSpaces[other].Get(slot)
	require.True(t, ok)
	assert.Equal(t, kerntypes.PermRead, got.Permissions)
}

func TestStepDispatchGetPidRegisterAndUnsupported(t *testing.T) {
	s := New()
	bootstrapInit(t, s)

	_, res := s.Step(kerntypes.InitPid, kerntypes.Syscall{Num: kerntypes.SysGetPid}, 5)
	assert.EqualValues(t, kerntypes.InitPid, res.OkValue)

	_, res = s.Step(kerntypes.InitPid, kerntypes.Syscall{Num: kerntypes.SysRegisterProcess, Data: []byte("shell")}, 5)
	require.False(t, res.IsErr())
	assert.EqualValues(t, 2, res.OkValue)

	_, res = s.Step(999, kerntypes.Syscall{Num: kerntypes.SysGetPid}, 5)
	assert.EqualValues(t, 999, res.OkValue)

	_, res = s.Step(kerntypes.InitPid, kerntypes.Syscall{Num: 0xFFFF}, 5)
	require.True(t, res.IsErr())
	assert.Equal(t, kerntypes.ErrNotSupported, res.Err)
}
