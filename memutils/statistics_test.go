package memutils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetailedStatisticsAddBlock(t *testing.T) {
	var stats DetailedStatistics
	stats.Clear()

	stats.AddBlock(0x5FFF_0000, 4096, 64, 63, 63)
	stats.AddBlock(0x6001_0000, 4096, 64, 63, 0)
	stats.AddBlock(0x5FFE_0000, 4096, 64, 63, 10)

	require.Equal(t, 3, stats.BlockCount)
	require.Equal(t, 3*4096, stats.BlockBytes)
	require.Equal(t, 73, stats.AllocationCount)
	require.Equal(t, 73*64, stats.AllocationBytes)
	require.Equal(t, 63+53, stats.FreeSlotCount)
	require.Equal(t, 1, stats.FullBlockCount)
	require.Equal(t, 1, stats.EmptyBlockCount)
	require.Equal(t, uintptr(0x5FFE_0000), stats.LowestBlockBase)
	require.Equal(t, uintptr(0x6001_0000), stats.HighestBlockBase)
}

func TestDetailedStatisticsMerge(t *testing.T) {
	var total, part DetailedStatistics
	total.Clear()
	part.Clear()

	part.AddBlock(0x1000_0000, 4096, 64, 63, 1)
	part.BlocksReserved = 4
	part.BlocksReleased = 3

	total.AddDetailedStatistics(&part)
	total.AddDetailedStatistics(&part)

	require.Equal(t, 2, total.BlockCount)
	require.Equal(t, 2, total.AllocationCount)
	require.Equal(t, int64(8), total.BlocksReserved)
	require.Equal(t, int64(6), total.BlocksReleased)
	require.Equal(t, uintptr(0x1000_0000), total.LowestBlockBase)
	require.Equal(t, uintptr(0x1000_0000), total.HighestBlockBase)

	total.Clear()
	require.Zero(t, total.BlockCount)
	require.Zero(t, total.HighestBlockBase)
}
