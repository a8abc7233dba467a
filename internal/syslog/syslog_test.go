package syslog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbital/kernel/internal/kerntypes"
)

func TestLogRequestResponse(t *testing.T) {
	s := New(10)
	rid := s.LogRequest(1, kerntypes.SysGetTime, [4]uint32{}, 100)
	s.LogResponse(1, rid, 42, 101)
	assert.EqualValues(t, 2, s.Len())
	assert.EqualValues(t, 2, s.NextId())
}

type captureSink struct{ evicted []kerntypes.SysEvent }

func (c *captureSink) Evicted(e kerntypes.SysEvent) { c.evicted = append(c.evicted, e) }

func TestRingOverflowFIFODrop(t *testing.T) {
	s := New(3)
	sink := &captureSink{}
	s.SetOverflowSink(sink)

	for i := 0; i < 5; i++ {
		s.LogRequest(1, kerntypes.SysGetTime, [4]uint32{}, uint64(i))
	}

	require.EqualValues(t, 3, s.Len())
	tail := s.Tail(3)
	// oldest retained should be request id 2 (0 and 1 evicted).
	assert.EqualValues(t, 2, tail[0].Id)
	assert.EqualValues(t, 4, tail[2].Id)
	require.Len(t, sink.evicted, 2)
	assert.EqualValues(t, 0, sink.evicted[0].Id)
	assert.EqualValues(t, 1, sink.evicted[1].Id)
}

func TestSince(t *testing.T) {
	s := New(10)
	for i := 0; i < 5; i++ {
		s.LogRequest(1, kerntypes.SysGetTime, [4]uint32{}, uint64(i))
	}
	out := s.Since(3)
	require.Len(t, out, 2)
	assert.EqualValues(t, 3, out[0].Id)
	assert.EqualValues(t, 4, out[1].Id)
}
