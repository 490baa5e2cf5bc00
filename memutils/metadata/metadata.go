package metadata

import (
	"github.com/hookwrapper/arsenal/memutils"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// BlockMetadata represents a single reservation of memory that has been carved into fixed-size slots.
// It hands slots out and takes them back, and can be enumerated and validated. The implementation owns
// the free list and any link data it threads through free slots; consumers must never write to a slot
// that is not currently allocated to them.
type BlockMetadata interface {
	// Init must be called before the BlockMetadata is used. data is the full byte view of the block
	// this metadata manages; the block is carved into slots and every slot is placed on the free list.
	Init(data []byte)
	// Size retrieves the size in bytes that the block was initialized with
	Size() int
	// SlotSize retrieves the size in bytes of a single slot
	SlotSize() int
	// Capacity returns the number of slots carved from the block
	Capacity() int

	// Validate performs internal consistency checks on the metadata: the free list is walked to
	// verify that it contains no cycles, no duplicates and no allocated slots, and that its length
	// agrees with the allocation count.
	Validate() error
	// AllocationCount returns the number of slots currently handed out
	AllocationCount() int
	// FreeCount returns the number of slots currently on the free list
	FreeCount() int
	// HasFreeSlot returns true if Alloc would succeed
	HasFreeSlot() bool
	// IsEmpty will return true if this block has no live slots
	IsEmpty() bool

	// VisitAllSlots calls the provided callback once for each slot in the block, in address order
	VisitAllSlots(handleSlot func(handle SlotHandle, offset int, free bool) error) error
	// VisitFreeList calls the provided callback once for each slot on the free list, in the order
	// Alloc would hand them out
	VisitFreeList(handleSlot func(handle SlotHandle, offset int) error) error

	// SlotOffset returns the byte offset within the block of the provided slot
	SlotOffset(handle SlotHandle) (int, error)
	// HandleForOffset returns the slot that begins at the provided byte offset within the block.
	// An error wrapping InvalidSlotError is returned if no slot begins there.
	HandleForOffset(offset int) (SlotHandle, error)

	// AddStatistics sums this block's allocation statistics into the provided memutils.Statistics
	AddStatistics(stats *memutils.Statistics)
	// AddDetailedStatistics sums this block's allocation statistics into the provided
	// memutils.DetailedStatistics, recording base as the block's address
	AddDetailedStatistics(base uintptr, stats *memutils.DetailedStatistics)

	// Clear instantly frees all slots
	Clear()
	// BlockJsonData populates a json object with information about this block
	BlockJsonData(json jwriter.ObjectState)

	// CheckCorruption returns nil if the debug markers written into the block header are intact
	// and the free list is consistent. Markers are only written when memutils is built with the
	// build flag `debug_mem_utils`.
	CheckCorruption() error

	// Alloc pops a slot off the free list. An error wrapping NoFreeSlotError is returned when the
	// block is full.
	Alloc() (SlotHandle, error)
	// Free pushes a slot back onto the free list. An error wrapping SlotNotInUseError is returned
	// if the slot is already free.
	Free(handle SlotHandle) error
}

// BlockMetadataBase is a simple struct that provides a few shared utilities for BlockMetadata
// implementations in the memutils module.
type BlockMetadataBase struct {
	size       int
	slotSize   int
	headerSize int
}

// NewBlockMetadata creates a new BlockMetadataBase from a slot size and the number of bytes at the
// start of each block reserved for the header. The first slot starts at the header size rounded up
// to the slot size so every slot is slot-aligned.
func NewBlockMetadata(slotSize, headerSize int) BlockMetadataBase {
	memutils.DebugCheckPow2(slotSize, "slotSize")

	return BlockMetadataBase{
		slotSize:   slotSize,
		headerSize: headerSize,
	}
}

// Init sizes the block in bytes based on the parameter size.
func (m *BlockMetadataBase) Init(size int) {
	m.size = size
}

// Size returns the size of the block in bytes
func (m *BlockMetadataBase) Size() int { return m.size }

// SlotSize returns the size of a single slot in bytes
func (m *BlockMetadataBase) SlotSize() int { return m.slotSize }

// FirstSlotOffset returns the offset of the first slot within the block
func (m *BlockMetadataBase) FirstSlotOffset() int {
	return memutils.AlignUp(m.headerSize, m.slotSize)
}

// BlockJsonData populates a json object with information about this block
func (m *BlockMetadataBase) BlockJsonData(json jwriter.ObjectState, capacity, usedCount int) {
	json.Name("TotalBytes").Int(m.Size())
	json.Name("SlotSize").Int(m.slotSize)
	json.Name("Capacity").Int(capacity)
	json.Name("UsedSlots").Int(usedCount)
	json.Name("FreeSlots").Int(capacity - usedCount)
}

// Capacity returns the number of slots of slotSize bytes carved from a block of blockSize bytes
// whose first headerSize bytes are kept back. Slots start at headerSize rounded up to slotSize, so
// the result is (blockSize - AlignUp(headerSize, slotSize)) / slotSize. When blockSize is a multiple
// of slotSize this equals floor((blockSize - headerSize) / slotSize).
func Capacity(blockSize, headerSize, slotSize int) int {
	if slotSize <= 0 {
		return 0
	}

	first := memutils.AlignUp(headerSize, slotSize)
	if blockSize <= first {
		return 0
	}
	return (blockSize - first) / slotSize
}
