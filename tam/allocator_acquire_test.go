package tam

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/hookwrapper/arsenal/vmem"
	"github.com/hookwrapper/arsenal/vmem/vmemtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAcquireFirstSlotReservesAtFirstFreeQuery(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper := vmemtest.NewMockMapper(ctrl)
	data := make([]byte, BlockSize)

	gomock.InOrder(
		mapper.EXPECT().AddressSpaceInfo().Return(testInfo, nil),
		mapper.EXPECT().QueryRegion(uintptr(0x5FFF_0000)).Return(vmem.RegionInfo{
			BaseAddress: 0x5FFF_0000,
			RegionSize:  0x10000,
			State:       vmem.StateFree,
		}, nil),
		mapper.EXPECT().ReserveAndCommit(uintptr(0x5FFF_0000), BlockSize, vmem.ProtectExecuteReadWrite).Return(uintptr(0x5FFF_0000), nil),
		mapper.EXPECT().Bytes(uintptr(0x5FFF_0000), BlockSize).Return(data),
	)

	allocator := readyAllocator(t, mapper, CreateOptions{})

	addr, err := allocator.AcquireSlot(0x6000_1234)
	require.NoError(t, err)
	require.Equal(t, uintptr(0x5FFF_0000+firstSlotOffset), addr)
	requireReachable(t, 0x6000_1234, addr)

	// The second slot comes from the same block without consulting the address space layout
	// beyond the window calculation
	mapper.EXPECT().AddressSpaceInfo().Return(testInfo, nil)

	second, err := allocator.AcquireSlot(0x6000_1234)
	require.NoError(t, err)
	require.Equal(t, addr-SlotSize, second)

	mapper.EXPECT().Release(uintptr(0x5FFF_0000), BlockSize).Return(nil)
	require.NoError(t, allocator.Destroy())
}

func TestAcquireFillsBlockThenCreatesAnother(t *testing.T) {
	space := readySpace()
	allocator := readyAllocator(t, space, CreateOptions{})

	const origin = 0x6000_1234
	seen := make(map[uintptr]bool)

	for i := 0; i < slotsPerBlock; i++ {
		addr, err := allocator.AcquireSlot(origin)
		require.NoError(t, err)

		require.False(t, seen[addr], "slot 0x%x handed out twice", addr)
		seen[addr] = true

		require.Zero(t, addr%SlotSize)
		require.GreaterOrEqual(t, addr, uintptr(0x5FFF_0000+blockHeaderSize))
		require.Less(t, addr, uintptr(0x5FFF_0000+BlockSize))
		requireReachable(t, origin, addr)
	}
	require.Equal(t, []uintptr{0x5FFF_0000}, space.ReservedBlocks())

	addr, err := allocator.AcquireSlot(origin)
	require.NoError(t, err)
	require.False(t, seen[addr])

	// The next preceding candidate skips over the first block
	require.Equal(t, []uintptr{0x5FFE_0000, 0x5FFF_0000}, space.ReservedBlocks())
	require.Equal(t, uintptr(0x5FFE_0000+firstSlotOffset), addr)

	require.NoError(t, allocator.Validate())
	require.NoError(t, allocator.Destroy())
}

func TestAcquireReusesBlockInsideWindow(t *testing.T) {
	space := readySpace()
	allocator := readyAllocator(t, space, CreateOptions{})

	first, err := allocator.AcquireSlot(0x6000_0000)
	require.NoError(t, err)

	nearby, err := allocator.AcquireSlot(0x6800_0000)
	require.NoError(t, err)
	require.Equal(t, first-SlotSize, nearby)
	require.Len(t, space.ReservedBlocks(), 1)

	// 0x5FFF0000 is more than MaxMemoryRange below this origin
	far, err := allocator.AcquireSlot(0xA000_0000)
	require.NoError(t, err)
	requireReachable(t, 0xA000_0000, far)
	require.Len(t, space.ReservedBlocks(), 2)

	// The newest block is searched first
	again, err := allocator.AcquireSlot(0x8000_0000)
	require.NoError(t, err)
	require.Equal(t, far-SlotSize, again)

	require.NoError(t, allocator.Destroy())
}

func TestAcquireTakesNextPrecedingCandidateWhenAddressIsTaken(t *testing.T) {
	space := readySpace()
	space.Deny(0x5FFF_0000, nil)

	allocator := readyAllocator(t, space, CreateOptions{})

	addr, err := allocator.AcquireSlot(0x6000_0000)
	require.NoError(t, err)
	require.Equal(t, uintptr(0x5FFE_0000+firstSlotOffset), addr)
	require.Equal(t, []uintptr{0x5FFF_0000, 0x5FFE_0000}, space.ReserveTrace())

	require.NoError(t, allocator.Destroy())
}

func TestAcquireSearchesFollowingOnlyAfterPreceding(t *testing.T) {
	space := readySpace()
	// Everything between the bottom of the window and the origin is mapped
	space.Map(0x1000_0000, 0x5000_0000, vmem.ProtectReadWrite)
	space.Deny(0x6001_0000, nil)

	allocator := readyAllocator(t, space, CreateOptions{})

	addr, err := allocator.AcquireSlot(0x6000_0000)
	require.NoError(t, err)
	require.Equal(t, uintptr(0x6002_0000+firstSlotOffset), addr)
	requireReachable(t, 0x6000_0000, addr)
	require.Equal(t, []uintptr{0x6001_0000, 0x6002_0000}, space.ReserveTrace())

	require.NoError(t, allocator.Destroy())
}

func TestAcquireSearchesFollowingAfterPrecedingQueryFails(t *testing.T) {
	space := readySpace()
	space.FailQueryAt(0x5FFF_0000)

	allocator := readyAllocator(t, space, CreateOptions{})

	addr, err := allocator.AcquireSlot(0x6000_0000)
	require.NoError(t, err)
	require.Equal(t, uintptr(0x6001_0000+firstSlotOffset), addr)

	require.NoError(t, allocator.Destroy())
}

func TestAcquireExhausted(t *testing.T) {
	space := readySpace()
	// Both sides of the origin are mapped as far as the window reaches
	space.Map(0x1000_0000, 0x9000_0000, vmem.ProtectReadWrite)

	allocator := readyAllocator(t, space, CreateOptions{})

	_, err := allocator.AcquireSlot(0x6000_0000)
	require.True(t, errors.Is(err, ErrExhausted))
	require.Empty(t, space.ReserveTrace())

	// Exhaustion is not fatal: a reachable origin still works
	addr, err := allocator.AcquireSlot(0xC000_0000)
	require.NoError(t, err)
	requireReachable(t, 0xC000_0000, addr)

	require.NoError(t, allocator.Destroy())
}

func TestAcquireExhaustedAfterEveryCandidateIsTaken(t *testing.T) {
	space := readySpace()
	// A single free granule below the origin, and nothing free above it within reach
	space.Map(0x1000_0000, 0x4FFF_0000, vmem.ProtectReadWrite)
	space.Map(0x6001_0000, 0x4000_0000, vmem.ProtectReadWrite)
	space.Deny(0x5FFF_0000, nil)

	allocator := readyAllocator(t, space, CreateOptions{})

	_, err := allocator.AcquireSlot(0x6000_8000)
	require.True(t, errors.Is(err, ErrExhausted))
	require.True(t, errors.Is(err, vmem.ErrAddressUnavailable))
	require.Equal(t, []uintptr{0x5FFF_0000}, space.ReserveTrace())
}

func TestAcquireAbortsOnMapperFailure(t *testing.T) {
	space := readySpace()
	space.Deny(0x5FFF_0000, errors.Mark(errors.New("refused"), vmem.ErrAccessDenied))

	allocator := readyAllocator(t, space, CreateOptions{})

	_, err := allocator.AcquireSlot(0x6000_0000)
	require.True(t, errors.Is(err, ErrExhausted))
	require.True(t, errors.Is(err, vmem.ErrAccessDenied))
	require.Equal(t, []uintptr{0x5FFF_0000}, space.ReserveTrace())
	require.Empty(t, space.ReservedBlocks())

	require.NoError(t, allocator.Validate())
}

func TestAcquireMaxBlockCount(t *testing.T) {
	space := readySpace()
	allocator := readyAllocator(t, space, CreateOptions{MaxBlockCount: 1})

	for i := 0; i < slotsPerBlock; i++ {
		_, err := allocator.AcquireSlot(0x6000_0000)
		require.NoError(t, err)
	}

	_, err := allocator.AcquireSlot(0x6000_0000)
	require.True(t, errors.Is(err, ErrExhausted))
	require.True(t, errors.Is(err, vmem.ErrNoSpace))
	require.Len(t, space.ReservedBlocks(), 1)

	require.NoError(t, allocator.Destroy())
}

func TestAcquireAddressSpaceInfoFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper := vmemtest.NewMockMapper(ctrl)

	mapper.EXPECT().AddressSpaceInfo().Return(vmem.AddressSpaceInfo{}, errors.Mark(errors.New("nope"), vmem.ErrUnsupported))

	allocator := readyAllocator(t, mapper, CreateOptions{})

	_, err := allocator.AcquireSlot(0x6000_0000)
	require.True(t, errors.Is(err, vmem.ErrUnsupported))
}

func TestAcquireUnboundedPlacement(t *testing.T) {
	space := readySpace()
	allocator, err := newAllocator(testLogger(), space, CreateOptions{}, placement{})
	require.NoError(t, err)

	first, err := allocator.AcquireSlot(0x6000_0000)
	require.NoError(t, err)

	// The origin does not matter: any block with room serves every request
	second, err := allocator.AcquireSlot(0xF000_0000)
	require.NoError(t, err)
	require.Equal(t, first-SlotSize, second)

	require.Equal(t, []uintptr{0}, space.ReserveTrace())
	require.Zero(t, space.QueryCount())

	require.NoError(t, allocator.Destroy())
}

func TestAcquireUnboundedPlacementFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper := vmemtest.NewMockMapper(ctrl)

	mapper.EXPECT().AddressSpaceInfo().Return(testInfo, nil)
	mapper.EXPECT().ReserveAndCommit(uintptr(0), BlockSize, vmem.ProtectExecuteReadWrite).Return(uintptr(0), errors.Mark(errors.New("oom"), vmem.ErrNoSpace))

	allocator, err := newAllocator(testLogger(), mapper, CreateOptions{}, placement{})
	require.NoError(t, err)

	_, err = allocator.AcquireSlot(0x6000_0000)
	require.True(t, errors.Is(err, ErrExhausted))
	require.True(t, errors.Is(err, vmem.ErrNoSpace))
}
