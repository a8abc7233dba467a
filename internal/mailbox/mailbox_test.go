package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbital/kernel/internal/kerntypes"
)

func TestRequestResponseRoundTrip(t *testing.T) {
	b := New()
	require.Equal(t, StatusIdle, b.LoadStatus())

	b.SetPid(7)
	b.WriteRequest(kerntypes.Syscall{Num: kerntypes.SysGetPid, Args: [4]uint32{1, 2, 3, 0}, Data: []byte("hi")})
	b.StoreStatus(StatusPending)

	assert.Equal(t, StatusPending, b.LoadStatus())
	assert.EqualValues(t, 7, b.Pid())

	call := b.ReadRequest()
	assert.Equal(t, kerntypes.SysGetPid, call.Num)
	assert.EqualValues(t, 1, call.Args[0])
	assert.Equal(t, []byte("hi"), call.Data)

	b.WriteResponse(42, []byte("ok"))
	b.StoreStatus(StatusReady)

	require.Equal(t, StatusReady, b.LoadStatus())
	result, data := b.ReadResponse()
	assert.EqualValues(t, 42, result)
	assert.Equal(t, []byte("ok"), data)

	b.StoreStatus(StatusIdle)
	assert.Equal(t, StatusIdle, b.LoadStatus())
}

func TestWrapRejectsUndersizedBuffer(t *testing.T) {
	assert.Panics(t, func() { Wrap(make([]byte, 4)) })
}
