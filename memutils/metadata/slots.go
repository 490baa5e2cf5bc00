package metadata

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/errors"
	"github.com/hookwrapper/arsenal/memutils"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// linkSize is the number of bytes at the start of a free slot that hold the free list link
const linkSize = 4

// SlotBlockMetadata is a BlockMetadata implementation that carves a block into equally-sized slots and
// keeps the free ones on a LIFO singly linked list threaded through the slots themselves. A free slot's
// first four bytes hold the little-endian index of the next free slot plus one, with zero terminating
// the list. The contents of a slot are undefined between Free and the next Alloc that returns it.
//
// An in-use bitset is kept beside the list so that double frees can be rejected and Validate can cross
// check the list against it.
type SlotBlockMetadata struct {
	BlockMetadataBase

	data     []byte
	capacity int
	freeHead uint32
	used     int
	inUse    *bitset.BitSet
}

var _ BlockMetadata = &SlotBlockMetadata{}

func NewSlotBlockMetadata(slotSize, headerSize int) *SlotBlockMetadata {
	return &SlotBlockMetadata{
		BlockMetadataBase: NewBlockMetadata(slotSize, headerSize),
	}
}

func (m *SlotBlockMetadata) Init(data []byte) {
	m.BlockMetadataBase.Init(len(data))
	m.data = data

	m.capacity = Capacity(len(data), m.headerSize, m.slotSize)
	m.inUse = bitset.New(uint(m.capacity))

	if m.hasMarker() {
		memutils.WriteMagicValue(m.data, 0)
	}

	m.carve()
}

// carve threads every slot onto the free list in ascending address order, so the highest slot
// ends up at the head
func (m *SlotBlockMetadata) carve() {
	m.freeHead = 0
	m.used = 0
	m.inUse.ClearAll()

	for index := 0; index < m.capacity; index++ {
		m.writeLink(SlotHandle(index), m.freeHead)
		m.freeHead = uint32(index) + 1
	}
}

// hasMarker reports whether the header area is large enough to hold the debug marker
func (m *SlotBlockMetadata) hasMarker() bool {
	return memutils.DebugMargin > 0 && m.FirstSlotOffset() >= memutils.DebugMargin && len(m.data) >= memutils.DebugMargin
}

func (m *SlotBlockMetadata) slotOffset(handle SlotHandle) int {
	return m.FirstSlotOffset() + int(handle)*m.slotSize
}

func (m *SlotBlockMetadata) readLink(handle SlotHandle) uint32 {
	offset := m.slotOffset(handle)
	return binary.LittleEndian.Uint32(m.data[offset : offset+linkSize])
}

func (m *SlotBlockMetadata) writeLink(handle SlotHandle, next uint32) {
	offset := m.slotOffset(handle)
	binary.LittleEndian.PutUint32(m.data[offset:offset+linkSize], next)
}

func (m *SlotBlockMetadata) Capacity() int { return m.capacity }

func (m *SlotBlockMetadata) AllocationCount() int { return m.used }

func (m *SlotBlockMetadata) FreeCount() int { return m.capacity - m.used }

func (m *SlotBlockMetadata) HasFreeSlot() bool { return m.freeHead != 0 }

func (m *SlotBlockMetadata) IsEmpty() bool { return m.used == 0 }

func (m *SlotBlockMetadata) Validate() error {
	if m.data == nil {
		return errors.New("slot block metadata has not been initialized")
	}
	if m.used < 0 || m.used > m.capacity {
		return errors.Newf("used slot count %d is outside of block capacity %d", m.used, m.capacity)
	}
	if int(m.inUse.Count()) != m.used {
		return errors.Newf("used slot count %d does not match the %d slots marked in use", m.used, m.inUse.Count())
	}
	if (m.freeHead == 0) != (m.used == m.capacity) {
		return errors.Newf("free list head %d is inconsistent with %d of %d slots used", m.freeHead, m.used, m.capacity)
	}

	visited := bitset.New(uint(m.capacity))
	freeCount := 0
	err := m.VisitFreeList(func(handle SlotHandle, offset int) error {
		if visited.Test(uint(handle)) {
			return errors.Wrapf(memutils.CorruptionError, "slot %d appears twice in the free list", handle)
		}
		if m.inUse.Test(uint(handle)) {
			return errors.Wrapf(memutils.CorruptionError, "slot %d is in the free list but marked in use", handle)
		}
		visited.Set(uint(handle))
		freeCount++
		return nil
	})
	if err != nil {
		return err
	}

	if freeCount != m.capacity-m.used {
		return errors.Newf("free list holds %d slots but %d of %d slots are in use", freeCount, m.used, m.capacity)
	}

	return nil
}

func (m *SlotBlockMetadata) VisitAllSlots(handleSlot func(handle SlotHandle, offset int, free bool) error) error {
	for index := 0; index < m.capacity; index++ {
		handle := SlotHandle(index)
		err := handleSlot(handle, m.slotOffset(handle), !m.inUse.Test(uint(index)))
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *SlotBlockMetadata) VisitFreeList(handleSlot func(handle SlotHandle, offset int) error) error {
	// A well-formed list can't be longer than the block, so anything longer has a cycle
	steps := 0
	for next := m.freeHead; next != 0; {
		if int(next) > m.capacity {
			return errors.Wrapf(memutils.CorruptionError, "free list link %d points outside of block capacity %d", next-1, m.capacity)
		}
		if steps > m.capacity {
			return errors.Wrap(memutils.CorruptionError, "free list contains a cycle")
		}

		handle := SlotHandle(next - 1)
		err := handleSlot(handle, m.slotOffset(handle))
		if err != nil {
			return err
		}

		next = m.readLink(handle)
		steps++
	}

	return nil
}

func (m *SlotBlockMetadata) SlotOffset(handle SlotHandle) (int, error) {
	if int(handle) >= m.capacity {
		return -1, errors.Wrapf(InvalidSlotError, "slot handle %d is outside of block capacity %d", handle, m.capacity)
	}

	return m.slotOffset(handle), nil
}

func (m *SlotBlockMetadata) HandleForOffset(offset int) (SlotHandle, error) {
	first := m.FirstSlotOffset()
	if offset < first || offset >= first+m.capacity*m.slotSize {
		return NoSlot, errors.Wrapf(InvalidSlotError, "offset %d is outside of the carved slot range", offset)
	}
	if (offset-first)%m.slotSize != 0 {
		return NoSlot, errors.Wrapf(InvalidSlotError, "offset %d is not aligned to slot size %d", offset, m.slotSize)
	}

	return SlotHandle((offset - first) / m.slotSize), nil
}

func (m *SlotBlockMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.BlockBytes += m.size
	stats.AllocationCount += m.used
	stats.AllocationBytes += m.used * m.slotSize
}

func (m *SlotBlockMetadata) AddDetailedStatistics(base uintptr, stats *memutils.DetailedStatistics) {
	stats.AddBlock(base, m.size, m.slotSize, m.capacity, m.used)
}

func (m *SlotBlockMetadata) Clear() {
	m.carve()
}

func (m *SlotBlockMetadata) BlockJsonData(json jwriter.ObjectState) {
	m.BlockMetadataBase.BlockJsonData(json, m.capacity, m.used)
}

func (m *SlotBlockMetadata) CheckCorruption() error {
	if m.hasMarker() && !memutils.ValidateMagicValue(m.data, 0) {
		return errors.Wrap(memutils.CorruptionError, "block header marker was overwritten")
	}

	return m.Validate()
}

func (m *SlotBlockMetadata) Alloc() (SlotHandle, error) {
	if m.freeHead == 0 {
		return NoSlot, NoFreeSlotError
	}
	if int(m.freeHead) > m.capacity {
		return NoSlot, errors.Wrapf(memutils.CorruptionError, "free list head %d points outside of block capacity %d", m.freeHead-1, m.capacity)
	}

	handle := SlotHandle(m.freeHead - 1)
	if m.inUse.Test(uint(handle)) {
		return NoSlot, errors.Wrapf(memutils.CorruptionError, "free list head %d is already in use", handle)
	}

	m.freeHead = m.readLink(handle)
	m.inUse.Set(uint(handle))
	m.used++

	memutils.DebugValidate(m)
	return handle, nil
}

func (m *SlotBlockMetadata) Free(handle SlotHandle) error {
	if int(handle) >= m.capacity {
		return errors.Wrapf(InvalidSlotError, "slot handle %d is outside of block capacity %d", handle, m.capacity)
	}
	if !m.inUse.Test(uint(handle)) {
		return errors.Wrapf(SlotNotInUseError, "slot %d", handle)
	}

	m.writeLink(handle, m.freeHead)
	m.freeHead = uint32(handle) + 1
	m.inUse.Clear(uint(handle))
	m.used--

	memutils.DebugValidate(m)
	return nil
}
