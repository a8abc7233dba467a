package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbital/kernel/internal/gateway"
	"github.com/orbital/kernel/internal/hal"
	"github.com/orbital/kernel/internal/kerntypes"
	"github.com/orbital/kernel/internal/mailbox"
)

func waitForStatus(t *testing.T, box *mailbox.Box, want mailbox.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if box.LoadStatus() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for mailbox status %v", want)
}

func TestDispatchOnceRoundTripsScalarResult(t *testing.T) {
	h := hal.NewMem(nil)
	require.NoError(t, h.SpawnProcessWithPID(kerntypes.SupervisorPid, "supervisor", nil))

	gw := gateway.New(gateway.FixedClock(0), 10)
	d := New(h, gw, time.Millisecond)

	box, err := h.Box(kerntypes.SupervisorPid)
	require.NoError(t, err)

	box.WriteRequest(kerntypes.Syscall{Num: kerntypes.SysGetPid})
	box.StoreStatus(mailbox.StatusPending)

	require.NoError(t, d.dispatchOnce(kerntypes.SupervisorPid))

	assert.Equal(t, mailbox.StatusReady, box.LoadStatus())
	result, _ := box.ReadResponse()
	assert.Equal(t, int32(kerntypes.SupervisorPid), result)
}

func TestDispatchOnceSurfacesSyscallErrorsWithoutDispatcherError(t *testing.T) {
	h := hal.NewMem(nil)
	require.NoError(t, h.SpawnProcessWithPID(kerntypes.ProcessId(9), "ghost", nil))

	gw := gateway.New(gateway.FixedClock(0), 10)
	d := New(h, gw, time.Millisecond)

	box, err := h.Box(kerntypes.ProcessId(9))
	require.NoError(t, err)

	// register_process from a pid that is neither init nor the
	// bootstrapping supervisor is rejected by the kernel — a normal
	// failed-syscall round trip, not a
	// dispatcher-level error.
	box.WriteRequest(kerntypes.Syscall{Num: kerntypes.SysRegisterProcess, Data: []byte("nope")})
	box.StoreStatus(mailbox.StatusPending)

	require.NoError(t, d.dispatchOnce(kerntypes.ProcessId(9)))

	result, _ := box.ReadResponse()
	assert.Less(t, result, int32(0))
}

func TestWatchDispatchesUntilUnwatched(t *testing.T) {
	h := hal.NewMem(nil)
	require.NoError(t, h.SpawnProcessWithPID(kerntypes.SupervisorPid, "supervisor", nil))

	gw := gateway.New(gateway.FixedClock(0), 10)
	d := New(h, gw, time.Millisecond)

	box, err := h.Box(kerntypes.SupervisorPid)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Watch(ctx, kerntypes.SupervisorPid)

	box.WriteRequest(kerntypes.Syscall{Num: kerntypes.SysGetTime})
	box.StoreStatus(mailbox.StatusPending)
	waitForStatus(t, box, mailbox.StatusReady)

	d.Unwatch(kerntypes.SupervisorPid)

	d.mu.Lock()
	_, stillWatched := d.cancels[kerntypes.SupervisorPid]
	d.mu.Unlock()
	assert.False(t, stillWatched)
}

func TestEncodeResultCapListFillsDataRegion(t *testing.T) {
	box := mailbox.New()
	caps := []kerntypes.CapEntry{{
		Slot: 3,
		Cap: kerntypes.Capability{
			Id:          7,
			ObjectType:  kerntypes.ObjectEndpoint,
			ObjectId:    1,
			Permissions: kerntypes.PermRead,
		},
	}}
	encodeResult(box, kerntypes.CapList(caps), nil)
	result, data := box.ReadResponse()
	assert.Equal(t, int32(1), result)
	assert.NotEmpty(t, data)
}
