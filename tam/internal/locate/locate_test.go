package locate

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/hookwrapper/arsenal/vmem"
	"github.com/hookwrapper/arsenal/vmem/vmemtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const granularity = 0x10000

func TestPrecedingFreeImmediately(t *testing.T) {
	space := vmemtest.NewAddressSpace(vmemtest.DefaultInfo())

	addr, found := FindPrecedingFreeRegion(space, 0x7000_1234, 0x7000_1234-0x4000_0000, granularity)
	require.True(t, found)
	require.Equal(t, uintptr(0x6FFF_0000), addr)
	require.Equal(t, 1, space.QueryCount())
}

func TestPrecedingSkipsWholeReservations(t *testing.T) {
	space := vmemtest.NewAddressSpace(vmemtest.DefaultInfo())
	// Three adjacent mappings below the origin
	space.Map(0x5FFF_0000, 0x10000, vmem.ProtectReadOnly)
	space.Map(0x5FF0_0000, 0xF0000, vmem.ProtectExecuteRead)
	space.Map(0x5F00_0000, 0xF00000, vmem.ProtectReadWrite)

	addr, found := FindPrecedingFreeRegion(space, 0x6000_0000, 0x1000_0000, granularity)
	require.True(t, found)
	require.Equal(t, uintptr(0x5EFF_0000), addr)
	require.Equal(t, 4, space.QueryCount())
}

func TestPrecedingRespectsLowerBound(t *testing.T) {
	space := vmemtest.NewAddressSpace(vmemtest.DefaultInfo())
	space.Map(0x5F00_0000, 0x100_0000, vmem.ProtectReadWrite)

	_, found := FindPrecedingFreeRegion(space, 0x6000_0000, 0x5F00_0000, granularity)
	require.False(t, found)

	// The bound itself is an acceptable answer
	space = vmemtest.NewAddressSpace(vmemtest.DefaultInfo())
	addr, found := FindPrecedingFreeRegion(space, 0x6000_0000, 0x5FFF_0000, granularity)
	require.True(t, found)
	require.Equal(t, uintptr(0x5FFF_0000), addr)
}

func TestPrecedingStopsOnQueryFailure(t *testing.T) {
	space := vmemtest.NewAddressSpace(vmemtest.DefaultInfo())
	space.Map(0x5FFF_0000, 0x10000, vmem.ProtectReadOnly)
	space.FailQueryAt(0x5FFE_0000)

	_, found := FindPrecedingFreeRegion(space, 0x6000_0000, 0x1000_0000, granularity)
	require.False(t, found)
	require.Equal(t, 2, space.QueryCount())
}

func TestPrecedingNearZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper := vmemtest.NewMockMapper(ctrl)

	_, found := FindPrecedingFreeRegion(mapper, 0xFFFF, 0, granularity)
	require.False(t, found)

	mapper.EXPECT().QueryRegion(uintptr(0)).Return(vmem.RegionInfo{
		BaseAddress:    0,
		AllocationBase: 0x8000,
		RegionSize:     0x10000,
		State:          vmem.StateReserved,
	}, nil)
	_, found = FindPrecedingFreeRegion(mapper, 0x1FFFF, 0, granularity)
	require.False(t, found)
}

func TestFollowingFreeImmediately(t *testing.T) {
	space := vmemtest.NewAddressSpace(vmemtest.DefaultInfo())

	addr, found := FindFollowingFreeRegion(space, 0x6000_1234, 0x7000_0000, granularity)
	require.True(t, found)
	require.Equal(t, uintptr(0x6001_0000), addr)
}

func TestFollowingSkipsMappedRegions(t *testing.T) {
	space := vmemtest.NewAddressSpace(vmemtest.DefaultInfo())
	space.Map(0x6001_0000, 0x23000, vmem.ProtectExecuteRead)
	space.Map(0x6004_0000, 0x10000, vmem.ProtectReadOnly)

	addr, found := FindFollowingFreeRegion(space, 0x6000_0000, 0x7000_0000, granularity)
	require.True(t, found)
	require.Equal(t, uintptr(0x6005_0000), addr)
	require.Equal(t, 3, space.QueryCount())
}

func TestFollowingRespectsUpperBound(t *testing.T) {
	space := vmemtest.NewAddressSpace(vmemtest.DefaultInfo())
	space.Map(0x6001_0000, 0x100_0000, vmem.ProtectReadWrite)

	_, found := FindFollowingFreeRegion(space, 0x6000_0000, 0x6100_0000, granularity)
	require.False(t, found)

	addr, found := FindFollowingFreeRegion(space, 0x6000_0000, 0x6101_0000, granularity)
	require.True(t, found)
	require.Equal(t, uintptr(0x6101_0000), addr)
}

func TestFollowingStopsOnQueryFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper := vmemtest.NewMockMapper(ctrl)

	mapper.EXPECT().QueryRegion(uintptr(0x6001_0000)).Return(vmem.RegionInfo{}, errors.Mark(errors.New("no"), vmem.ErrQueryFailed))

	_, found := FindFollowingFreeRegion(mapper, 0x6000_0000, 0x7000_0000, granularity)
	require.False(t, found)
}

func TestFollowingStopsAtTopOfAddressSpace(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper := vmemtest.NewMockMapper(ctrl)

	top := ^uintptr(0) &^ (granularity - 1)
	mapper.EXPECT().QueryRegion(top).Return(vmem.RegionInfo{
		BaseAddress:    top,
		AllocationBase: top,
		RegionSize:     granularity,
		State:          vmem.StateCommitted,
	}, nil)

	_, found := FindFollowingFreeRegion(mapper, top-1, ^uintptr(0), granularity)
	require.False(t, found)

	_, found = FindFollowingFreeRegion(mapper, top, ^uintptr(0), granularity)
	require.False(t, found)
}
