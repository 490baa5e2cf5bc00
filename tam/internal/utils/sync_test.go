package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionalMutexLocks(t *testing.T) {
	m := OptionalMutex{UseMutex: true}

	m.Lock()
	require.False(t, m.Mutex.TryLock())
	m.Unlock()

	require.True(t, m.Mutex.TryLock())
	m.Mutex.Unlock()
}

func TestOptionalMutexDisabled(t *testing.T) {
	m := OptionalMutex{}

	m.Lock()
	m.Lock()
	require.True(t, m.Mutex.TryLock())
	m.Mutex.Unlock()
	m.Unlock()
}
