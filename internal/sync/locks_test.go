package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockerMutualExclusion(t *testing.T) {
	locker := NewLocker()

	token, ok := locker.TryLock("C-1")
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok = locker.TryLock("C-1")
	assert.False(t, ok)

	// Other contracts are independent.
	other, ok := locker.TryLock("C-2")
	require.True(t, ok)
	locker.Release("C-2", other)

	locker.Release("C-1", token)
	_, ok = locker.TryLock("C-1")
	assert.True(t, ok)
}

func TestLockerStaleTokenCannotRelease(t *testing.T) {
	locker := NewLocker()

	token, ok := locker.TryLock("C-1")
	require.True(t, ok)

	locker.Release("C-1", "not-the-token")
	_, ok = locker.TryLock("C-1")
	assert.False(t, ok)

	locker.Release("C-1", token)
	_, ok = locker.TryLock("C-1")
	assert.True(t, ok)
}

func TestLockerEmptyContractNeverLocks(t *testing.T) {
	locker := NewLocker()

	_, ok := locker.TryLock("")
	assert.False(t, ok)
}
