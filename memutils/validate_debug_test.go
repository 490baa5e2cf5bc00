//go:build debug_mem_utils

package memutils

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

type validateFunc func() error

func (f validateFunc) Validate() error { return f() }

func TestDebugValidate(t *testing.T) {
	require.NotPanics(t, func() {
		DebugValidate(validateFunc(func() error { return nil }))
	})
	require.Panics(t, func() {
		DebugValidate(validateFunc(func() error { return errors.New("broken") }))
	})
	require.Panics(t, func() {
		DebugCheckPow2(uintptr(0x3000), "granularity")
	})
}

func TestMagicValue(t *testing.T) {
	data := make([]byte, 64)
	require.False(t, ValidateMagicValue(data, 0))

	WriteMagicValue(data, 0)
	require.True(t, ValidateMagicValue(data, 0))

	data[DebugMargin-1] ^= 0xFF
	require.False(t, ValidateMagicValue(data, 0))
	require.False(t, ValidateMagicValue(data, len(data)-4))
}
