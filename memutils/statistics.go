package memutils

import "math"

// Statistics is a snapshot of how many blocks an allocator holds and how much of them
// has been handed out
type Statistics struct {
	BlockCount      int
	AllocationCount int
	BlockBytes      int
	AllocationBytes int
}

func (s *Statistics) Clear() {
	s.BlockCount = 0
	s.AllocationCount = 0
	s.BlockBytes = 0
	s.AllocationBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.BlockCount += other.BlockCount
	s.AllocationCount += other.AllocationCount
	s.BlockBytes += other.BlockBytes
	s.AllocationBytes += other.AllocationBytes
}

// DetailedStatistics extends Statistics with free slot counts, block fill states, the
// address span covered by blocks, and cumulative reservation counters
type DetailedStatistics struct {
	Statistics
	FreeSlotCount    int
	FullBlockCount   int
	EmptyBlockCount  int
	LowestBlockBase  uintptr
	HighestBlockBase uintptr

	BlocksReserved int64
	BlocksReleased int64
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.FreeSlotCount = 0
	s.FullBlockCount = 0
	s.EmptyBlockCount = 0
	s.LowestBlockBase = math.MaxUint
	s.HighestBlockBase = 0
	s.BlocksReserved = 0
	s.BlocksReleased = 0
}

// AddBlock records a single block with the given base address, capacity in slots and number of
// slots in use
func (s *DetailedStatistics) AddBlock(base uintptr, blockSize, slotSize, capacity, used int) {
	s.BlockCount++
	s.BlockBytes += blockSize
	s.AllocationCount += used
	s.AllocationBytes += used * slotSize
	s.FreeSlotCount += capacity - used

	if used == capacity {
		s.FullBlockCount++
	}
	if used == 0 {
		s.EmptyBlockCount++
	}

	if base < s.LowestBlockBase {
		s.LowestBlockBase = base
	}
	if base > s.HighestBlockBase {
		s.HighestBlockBase = base
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.FreeSlotCount += other.FreeSlotCount
	s.FullBlockCount += other.FullBlockCount
	s.EmptyBlockCount += other.EmptyBlockCount
	s.BlocksReserved += other.BlocksReserved
	s.BlocksReleased += other.BlocksReleased

	if other.LowestBlockBase < s.LowestBlockBase {
		s.LowestBlockBase = other.LowestBlockBase
	}

	if other.HighestBlockBase > s.HighestBlockBase {
		s.HighestBlockBase = other.HighestBlockBase
	}
}
