package semaphore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLease_AcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sweeper")
	lease := New(path)

	locked, err := Locked(path)
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, lease.TryAcquire("sweeper-a"))
	assert.True(t, lease.Held())
	require.NoError(t, lease.TryAcquire("sweeper-a"), "re-acquiring a held lease is a no-op")

	holder, err := ReadHolder(path)
	require.NoError(t, err)
	assert.Equal(t, "sweeper-a", holder.ID)
	assert.Equal(t, os.Getpid(), holder.PID)
	assert.False(t, holder.AcquiredAt.IsZero())

	locked, err = Locked(path)
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, lease.Release())
	assert.False(t, lease.Held())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "holder file is removed on release")

	assert.ErrorIs(t, lease.Release(), ErrNotHeld)
}

func TestLease_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweeper")
	first := New(path)
	second := New(path)

	require.NoError(t, first.TryAcquire("first"))

	err := second.TryAcquire("second")
	var held *ErrHeld
	require.True(t, errors.As(err, &held))
	assert.Equal(t, "first", held.Holder.ID)
	assert.Contains(t, err.Error(), "first")
	assert.False(t, second.Held())

	require.NoError(t, first.Release())
	require.NoError(t, second.TryAcquire("second"))
	require.NoError(t, second.Release())
}

func TestErrHeld_UnknownHolder(t *testing.T) {
	err := &ErrHeld{}
	assert.Equal(t, "lease is held by another process", err.Error())
}

func TestReadHolder_Missing(t *testing.T) {
	_, err := ReadHolder(filepath.Join(t.TempDir(), "none"))
	assert.True(t, os.IsNotExist(err))
}
