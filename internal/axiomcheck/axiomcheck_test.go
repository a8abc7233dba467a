package axiomcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbital/kernel/internal/kerntypes"
)

func TestCheckSlotEmpty(t *testing.T) {
	cs := NewCapSpace()
	_, err := cs.Check(0, kerntypes.ObjectEndpoint, kerntypes.PermRead, 0)
	require.Error(t, err)
	assert.Equal(t, SlotEmpty, err.(*AxiomError).Kind)
}

func TestCheckWrongType(t *testing.T) {
	cs := NewCapSpace()
	slot := cs.Insert(kerntypes.Capability{Id: 1, ObjectType: kerntypes.ObjectEndpoint, Permissions: kerntypes.PermRead})
	_, err := cs.Check(slot, kerntypes.ObjectProcess, kerntypes.PermRead, 0)
	require.Error(t, err)
	assert.Equal(t, WrongType, err.(*AxiomError).Kind)
}

func TestCheckInsufficientRights(t *testing.T) {
	cs := NewCapSpace()
	slot := cs.Insert(kerntypes.Capability{Id: 1, ObjectType: kerntypes.ObjectEndpoint, Permissions: kerntypes.PermRead})
	_, err := cs.Check(slot, kerntypes.ObjectEndpoint, kerntypes.PermWrite, 0)
	require.Error(t, err)
	assert.Equal(t, InsufficientRights, err.(*AxiomError).Kind)
}

func TestCheckExpired(t *testing.T) {
	cs := NewCapSpace()
	slot := cs.Insert(kerntypes.Capability{Id: 1, ObjectType: kerntypes.ObjectEndpoint, Permissions: kerntypes.PermRead, ExpiresAt: 100})
	_, err := cs.Check(slot, kerntypes.ObjectEndpoint, kerntypes.PermRead, 101)
	require.Error(t, err)
	assert.Equal(t, Expired, err.(*AxiomError).Kind)

	// Not yet expired, and expires_at == 0 means never.
	_, err = cs.Check(slot, kerntypes.ObjectEndpoint, kerntypes.PermRead, 100)
	require.NoError(t, err)

	slot2 := cs.Insert(kerntypes.Capability{Id: 2, ObjectType: kerntypes.ObjectEndpoint, Permissions: kerntypes.PermRead, ExpiresAt: 0})
	_, err = cs.Check(slot2, kerntypes.ObjectEndpoint, kerntypes.PermRead, 1<<40)
	require.NoError(t, err)
}

func TestCheckSucceedsReturnsSameObject(t *testing.T) {
	cs := NewCapSpace()
	slot := cs.Insert(kerntypes.Capability{Id: 7, ObjectType: kerntypes.ObjectConsole, ObjectId: 42, Permissions: kerntypes.PermAll})
	cap, err := cs.Check(slot, kerntypes.ObjectConsole, kerntypes.PermRead|kerntypes.PermWrite, 0)
	require.NoError(t, err)
	assert.Equal(t, kerntypes.ObjectConsole, cap.ObjectType)
	assert.EqualValues(t, 42, cap.ObjectId)
}

func TestRemoveIdempotent(t *testing.T) {
	cs := NewCapSpace()
	slot := cs.Insert(kerntypes.Capability{Id: 1, ObjectType: kerntypes.ObjectEndpoint, Permissions: kerntypes.PermRead})
	_, ok := cs.Remove(slot)
	assert.True(t, ok)
	_, ok = cs.Remove(slot)
	assert.False(t, ok)
}

func TestSlotsNeverReused(t *testing.T) {
	cs := NewCapSpace()
	s1 := cs.Insert(kerntypes.Capability{Id: 1, ObjectType: kerntypes.ObjectEndpoint, Permissions: kerntypes.PermRead})
	cs.Remove(s1)
	s2 := cs.Insert(kerntypes.Capability{Id: 2, ObjectType: kerntypes.ObjectEndpoint, Permissions: kerntypes.PermRead})
	assert.NotEqual(t, s1, s2)
	assert.Greater(t, s2, s1)
}

func TestGrantRejectsEscalation(t *testing.T) {
	source := NewCapSpace()
	target := NewCapSpace()
	slot := source.Insert(kerntypes.Capability{Id: 1, ObjectType: kerntypes.ObjectEndpoint, Permissions: kerntypes.PermRead | kerntypes.PermWrite | kerntypes.PermGrant})

	_, err := Grant(source, slot, kerntypes.PermRead|kerntypes.PermWrite|kerntypes.PermGrant, 0, 2, target)
	require.NoError(t, err)

	// Escalation attempt: source only has read+write (no grant) at a
	// different slot — grant() itself must require {grant} to even try.
	noGrantSlot := source.Insert(kerntypes.Capability{Id: 3, ObjectType: kerntypes.ObjectEndpoint, Permissions: kerntypes.PermRead | kerntypes.PermWrite})
	_, err = Grant(source, noGrantSlot, kerntypes.PermRead, 0, 4, target)
	require.Error(t, err)
	assert.Equal(t, InsufficientRights, err.(*AxiomError).Kind)
}

func TestGrantNewPermsMustBeSubset(t *testing.T) {
	source := NewCapSpace()
	target := NewCapSpace()
	slot := source.Insert(kerntypes.Capability{Id: 1, ObjectType: kerntypes.ObjectEndpoint, Permissions: kerntypes.PermRead | kerntypes.PermWrite})

	_, err := Grant(source, slot, kerntypes.PermRead|kerntypes.PermWrite|kerntypes.PermGrant, 0, 2, target)
	require.Error(t, err)
	assert.Equal(t, InsufficientRights, err.(*AxiomError).Kind)
}

func TestGrantInstallsFreshCapability(t *testing.T) {
	source := NewCapSpace()
	target := NewCapSpace()
	slot := source.Insert(kerntypes.Capability{Id: 1, ObjectType: kerntypes.ObjectConsole, ObjectId: 9, Permissions: kerntypes.PermWrite | kerntypes.PermGrant})

	res, err := Grant(source, slot, kerntypes.PermWrite, 0, 99, target)
	require.NoError(t, err)
	assert.EqualValues(t, 99, res.Cap.Id)
	assert.Equal(t, kerntypes.ObjectConsole, res.Cap.ObjectType)
	assert.EqualValues(t, 9, res.Cap.ObjectId)

	installed, ok := target.Get(res.Slot)
	require.True(t, ok)
	assert.Equal(t, res.Cap, installed)
}
