package osmem

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/hookwrapper/arsenal/memutils"
	"github.com/hookwrapper/arsenal/vmem"
)

// MemoryCallbacks is notified after each block is reserved from, and before each block is
// returned to, the operating system
type MemoryCallbacks interface {
	Allocate(base uintptr, size int)
	Free(base uintptr, size int)
}

// Mapping sits between an allocator and its vmem.Mapper. It enforces the block limit, keeps
// running totals of the blocks and slots that are live, and fires the memory callbacks.
// Counters are updated atomically so statistics can be read without the allocator's lock.
type Mapping struct {
	// Number of blocks currently reserved from the operating system
	blockCount int32
	// Number of slots handed out from those blocks
	allocationCount int32
	// Size of all blocks currently reserved from the operating system
	blockBytes int64
	// Size of all slots handed out from those blocks
	allocationBytes int64

	// Lifetime totals
	blocksReserved int64
	blocksReleased int64

	maxBlockCount   int
	memoryCallbacks MemoryCallbacks
	mapper          vmem.Mapper
}

// NewMapping wraps mapper. A maxBlockCount of zero or less means no limit; memoryCallbacks may
// be nil.
func NewMapping(mapper vmem.Mapper, maxBlockCount int, memoryCallbacks MemoryCallbacks) (*Mapping, error) {
	if mapper == nil {
		return nil, errors.New("a vmem.Mapper must be provided")
	}

	return &Mapping{
		maxBlockCount:   maxBlockCount,
		memoryCallbacks: memoryCallbacks,
		mapper:          mapper,
	}, nil
}

// AddressSpaceInfo fetches the current layout from the mapper and checks that its page size and
// allocation granularity are usable
func (m *Mapping) AddressSpaceInfo() (vmem.AddressSpaceInfo, error) {
	info, err := m.mapper.AddressSpaceInfo()
	if err != nil {
		return info, err
	}

	err = memutils.CheckPow2(info.PageSize, "address space page size")
	if err != nil {
		return info, err
	}
	err = memutils.CheckPow2(info.AllocationGranularity, "address space allocation granularity")
	if err != nil {
		return info, err
	}
	if info.MaxAddress < info.MinAddress {
		return info, errors.Newf("address space maximum 0x%x is below its minimum 0x%x", info.MaxAddress, info.MinAddress)
	}

	return info, nil
}

func (m *Mapping) QueryRegion(addr uintptr) (vmem.RegionInfo, error) {
	return m.mapper.QueryRegion(addr)
}

// ReserveBlock reserves and commits size bytes of read/write/execute memory at hint, or anywhere
// when hint is zero, and returns the block's address along with a writable view of it. Reaching
// the block limit produces an error marked vmem.ErrNoSpace.
func (m *Mapping) ReserveBlock(hint uintptr, size int) (base uintptr, data []byte, err error) {
	newBlockCount := atomic.AddInt32(&m.blockCount, 1)
	defer func() {
		// If we failed out, roll back the block count
		if err != nil {
			atomic.AddInt32(&m.blockCount, -1)
		}
	}()

	if m.maxBlockCount > 0 && int(newBlockCount) > m.maxBlockCount {
		return 0, nil, errors.Mark(errors.Newf("the limit of %d blocks has been reached", m.maxBlockCount), vmem.ErrNoSpace)
	}

	base, err = m.mapper.ReserveAndCommit(hint, size, vmem.ProtectExecuteReadWrite)
	if err != nil {
		return 0, nil, err
	}

	if base == 0 {
		return 0, nil, errors.Newf("mapper returned a null address for a block requested at 0x%x", hint)
	}
	if hint != 0 && base != hint {
		releaseErr := m.mapper.Release(base, size)
		err = errors.Mark(errors.Newf("mapper placed a block requested at 0x%x at 0x%x", hint, base), vmem.ErrAddressUnavailable)
		return 0, nil, errors.CombineErrors(err, releaseErr)
	}

	atomic.AddInt64(&m.blockBytes, int64(size))
	atomic.AddInt64(&m.blocksReserved, 1)

	data = m.mapper.Bytes(base, size)

	if m.memoryCallbacks != nil {
		m.memoryCallbacks.Allocate(base, size)
	}

	return base, data, nil
}

// ReleaseBlock returns a block obtained from ReserveBlock to the operating system
func (m *Mapping) ReleaseBlock(base uintptr, size int) error {
	if m.memoryCallbacks != nil {
		m.memoryCallbacks.Free(base, size)
	}

	err := m.mapper.Release(base, size)
	if err != nil {
		return errors.Wrapf(err, "failed to release block at 0x%x", base)
	}

	newBytes := atomic.AddInt64(&m.blockBytes, int64(-size))
	if newBytes < 0 {
		panic(fmt.Sprintf("block bytes went negative after releasing 0x%x", base))
	}

	newCount := atomic.AddInt32(&m.blockCount, -1)
	if newCount < 0 {
		panic(fmt.Sprintf("block count went negative after releasing 0x%x", base))
	}

	atomic.AddInt64(&m.blocksReleased, 1)
	return nil
}

func (m *Mapping) AddAllocation(size int) {
	atomic.AddInt64(&m.allocationBytes, int64(size))
	atomic.AddInt32(&m.allocationCount, 1)
}

func (m *Mapping) RemoveAllocation(size int) {
	newBytes := atomic.AddInt64(&m.allocationBytes, int64(-size))
	if newBytes < 0 {
		panic("allocation bytes went negative")
	}

	newCount := atomic.AddInt32(&m.allocationCount, -1)
	if newCount < 0 {
		panic("allocation count went negative")
	}
}

// RemoveAllocations drops count slots of the provided size at once, for blocks that are released
// with slots still live
func (m *Mapping) RemoveAllocations(count, size int) {
	newBytes := atomic.AddInt64(&m.allocationBytes, int64(-count*size))
	if newBytes < 0 {
		panic("allocation bytes went negative")
	}

	newCount := atomic.AddInt32(&m.allocationCount, int32(-count))
	if newCount < 0 {
		panic("allocation count went negative")
	}
}

// Statistics writes the live totals into stats
func (m *Mapping) Statistics(stats *memutils.Statistics) {
	stats.BlockCount = int(atomic.LoadInt32(&m.blockCount))
	stats.AllocationCount = int(atomic.LoadInt32(&m.allocationCount))
	stats.BlockBytes = int(atomic.LoadInt64(&m.blockBytes))
	stats.AllocationBytes = int(atomic.LoadInt64(&m.allocationBytes))
}

// Lifetime returns the number of blocks reserved and released since the Mapping was created
func (m *Mapping) Lifetime() (reserved, released int64) {
	return atomic.LoadInt64(&m.blocksReserved), atomic.LoadInt64(&m.blocksReleased)
}

// BlockCount returns the number of blocks currently reserved
func (m *Mapping) BlockCount() int {
	return int(atomic.LoadInt32(&m.blockCount))
}
