package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbital/kernel/internal/gateway"
	"github.com/orbital/kernel/internal/kerntypes"
)

// TestScenarioReplayEquivalence is scenario 6 from spec §8: execute
// scenarios 2, 4, and 5 in sequence through a real Gateway, then replay
// the captured commits into a fresh state and compare state_hash.
func TestScenarioReplayEquivalence(t *testing.T) {
	g := gateway.New(&gateway.SteppedClock{}, 100)

	// Scenario 2: init spawn + endpoint.
	res, _ := g.Syscall(kerntypes.SupervisorPid, kerntypes.Syscall{Num: kerntypes.SysRegisterProcess, Data: []byte("init")})
	require.False(t, res.IsErr())

	res, _ = g.Syscall(kerntypes.InitPid, kerntypes.Syscall{Num: kerntypes.SysCreateEndpoint})
	require.False(t, res.IsErr())
	epHandle := res.OkValue
	epSlot := uint32(epHandle >> 32)
	_ = epSlot

	res, _ = g.Syscall(kerntypes.InitPid, kerntypes.Syscall{Num: kerntypes.SysRegisterProcess, Data: []byte("p2")})
	require.False(t, res.IsErr())
	p2 := kerntypes.ProcessId(res.OkValue)

	res, _ = g.Syscall(kerntypes.InitPid, kerntypes.Syscall{Num: kerntypes.SysGrant, Args: [4]uint32{0, uint32(kerntypes.PermWrite), uint32(p2), 0}})
	require.False(t, res.IsErr())
	writeSlot := uint32(res.OkValue)

	// Scenario 4: send/receive FIFO.
	res, _ = g.Syscall(p2, kerntypes.Syscall{Num: kerntypes.SysSend, Args: [4]uint32{writeSlot, 10, 0, 0}})
	require.False(t, res.IsErr())
	res, _ = g.Syscall(p2, kerntypes.Syscall{Num: kerntypes.SysSend, Args: [4]uint32{writeSlot, 20, 0, 0}})
	require.False(t, res.IsErr())
	res, _ = g.Syscall(kerntypes.InitPid, kerntypes.Syscall{Num: kerntypes.SysReceive, Args: [4]uint32{0, 0, 0, 0}})
	require.False(t, res.IsErr())
	res, _ = g.Syscall(kerntypes.InitPid, kerntypes.Syscall{Num: kerntypes.SysReceive, Args: [4]uint32{0, 0, 0, 0}})
	require.False(t, res.IsErr())

	commits := g.Commits()
	require.True(t, g.VerifyIntegrity())

	replayed, err := Replay(commits)
	require.NoError(t, err)

	live := g.ProcessList()
	replayedList := replayed.ProcessList()
	assert.Equal(t, live, replayedList)

	wantHash := StateHash(replayed)
	got, err := ReplayAndVerify(commits, wantHash)
	require.NoError(t, err)
	assert.Equal(t, wantHash, StateHash(got))
}

func TestReplayDetectsBrokenChain(t *testing.T) {
	g := gateway.New(&gateway.SteppedClock{}, 10)
	g.Syscall(kerntypes.SupervisorPid, kerntypes.Syscall{Num: kerntypes.SysRegisterProcess, Data: []byte("init")})
	commits := g.Commits()
	tampered := append([]kerntypes.Commit(nil), commits...)
	tampered[1].PrevCommit[0] ^= 0xFF

	_, err := Replay(tampered)
	require.Error(t, err)
	_, ok := err.(*ChainBroken)
	assert.True(t, ok)
}
