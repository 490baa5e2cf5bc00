//go:build amd64 || arm64 || riscv64 || ppc64le || s390x || loong64

package tam

import (
	"testing"

	"github.com/hookwrapper/arsenal/vmem"
	"github.com/hookwrapper/arsenal/vmem/vmemtest"
	"github.com/stretchr/testify/require"
)

func TestPlacementWindowHighOrigin(t *testing.T) {
	info := vmemtest.DefaultInfo()
	origin := uintptr(0x7FF0_0000_0000)

	w := placement{radius: testRadius}.Window(info, origin)
	require.True(t, w.bounded)
	require.Equal(t, uintptr(0x7FEF_C000_0000), w.min)
	require.Equal(t, uintptr(0x7FF0_4000_0000-(BlockSize-1)), w.max)

	require.True(t, w.Contains(origin-testRadius))
	require.False(t, w.Contains(origin-testRadius-1))
	require.True(t, w.Contains(origin+testRadius-BlockSize))
	require.False(t, w.Contains(origin+testRadius-BlockSize+2))

	// The top of the address space cuts the window short
	w = placement{radius: testRadius}.Window(info, 0x7FFF_FFF0_0000)
	require.Equal(t, info.MaxAddress-(BlockSize-1), w.max)
}

func TestAcquireHighOrigin(t *testing.T) {
	space := vmemtest.NewAddressSpace(vmemtest.DefaultInfo())
	allocator := readyAllocator(t, space, CreateOptions{})
	origin := uintptr(0x7FF0_0000_0000)

	addr, err := allocator.AcquireSlot(origin)
	require.NoError(t, err)
	require.Equal(t, uintptr(0x7FEF_FFFF_0000)+firstSlotOffset, addr)
	requireReachable(t, origin, addr)

	// With everything below the origin taken, the block goes above it
	space2 := vmemtest.NewAddressSpace(vmemtest.DefaultInfo())
	space2.Map(0x7FEF_C000_0000, testRadius, vmem.ProtectReadOnly)
	allocator2 := readyAllocator(t, space2, CreateOptions{})

	addr, err = allocator2.AcquireSlot(origin)
	require.NoError(t, err)
	require.Equal(t, uintptr(0x7FF0_0001_0000)+firstSlotOffset, addr)
	requireReachable(t, origin, addr)

	// A block reachable from one high origin is not reused for a distant one
	addr, err = allocator.AcquireSlot(0x7FF1_0000_0000)
	require.NoError(t, err)
	require.Equal(t, uintptr(0x7FF0_FFFF_0000)+firstSlotOffset, addr)
	require.Len(t, space.ReservedBlocks(), 2)

	require.NoError(t, allocator.Destroy())
	require.NoError(t, allocator2.Destroy())
}
