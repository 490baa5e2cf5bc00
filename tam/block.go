package tam

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/hookwrapper/arsenal/memutils/metadata"
	"github.com/hookwrapper/arsenal/tam/internal/osmem"
)

const (
	// SlotSize is the size in bytes of every slot: 64 on 64-bit targets, 32 on 32-bit targets
	SlotSize = 32 << (^uintptr(0) >> 63)
	// BlockSize is the size in bytes of each reservation made from the operating system
	BlockSize = 4096

	// blockHeaderSize is the number of bytes at the start of each block kept out of the slot range.
	// Slots begin at the header rounded up to SlotSize.
	blockHeaderSize = 16
)

// slotBlock is a single reservation of executable memory carved into slots. Blocks are kept on an
// intrusive singly linked list, most recently created first.
type slotBlock struct {
	id     int
	base   uintptr
	data   []byte
	logger *slog.Logger

	metadata metadata.BlockMetadata
	next     *slotBlock
}

func (b *slotBlock) Init(logger *slog.Logger, id int, base uintptr, data []byte) {
	if b.data != nil {
		panic("attempting to initialize a slot block that is already in use")
	}

	b.id = id
	b.base = base
	b.data = data
	b.logger = logger
	b.next = nil

	b.metadata = metadata.NewSlotBlockMetadata(SlotSize, blockHeaderSize)
	b.metadata.Init(data)
}

// Contains reports whether addr falls anywhere inside the block, header included
func (b *slotBlock) Contains(addr uintptr) bool {
	return addr >= b.base && addr-b.base < uintptr(len(b.data))
}

// Acquire pops the most recently freed slot and returns its address
func (b *slotBlock) Acquire() (uintptr, error) {
	handle, err := b.metadata.Alloc()
	if err != nil {
		return 0, err
	}

	offset, err := b.metadata.SlotOffset(handle)
	if err != nil {
		return 0, err
	}

	initializeSlot(b.data[offset : offset+SlotSize])

	return b.base + uintptr(offset), nil
}

// Release pushes the slot starting at addr back onto the block's free list
func (b *slotBlock) Release(addr uintptr) error {
	handle, err := b.metadata.HandleForOffset(int(addr - b.base))
	if errors.Is(err, metadata.InvalidSlotError) {
		return errors.Wrapf(ErrInvalidSlot, "0x%x in block %d at 0x%x", addr, b.id, b.base)
	} else if err != nil {
		return err
	}

	err = b.metadata.Free(handle)
	if errors.Is(err, metadata.SlotNotInUseError) {
		return errors.Wrapf(ErrDoubleRelease, "slot at 0x%x", addr)
	}
	return err
}

func (b *slotBlock) Destroy(mapping *osmem.Mapping) error {
	if b.data == nil {
		panic("attempting to destroy a slot block that has no backing memory")
	}

	if !b.metadata.IsEmpty() {
		// Log all remaining slots
		err := b.metadata.VisitAllSlots(func(handle metadata.SlotHandle, offset int, free bool) error {
			if free {
				return nil
			}

			b.logUnreleasedSlot(offset)
			return nil
		})
		if err != nil {
			b.logger.LogAttrs(context.Background(),
				slog.LevelError,
				"[UNRELEASED MEMORY] error while iterating unreleased slots",
				slog.Any("error", err))
		}
	}

	err := mapping.ReleaseBlock(b.base, len(b.data))
	if err != nil {
		return err
	}

	mapping.RemoveAllocations(b.metadata.AllocationCount(), SlotSize)
	b.data = nil
	b.metadata = nil
	return nil
}

// slotFillPattern is an int3 instruction on x86
const slotFillPattern byte = 0xCC

func initializeSlot(slot []byte) {
	if !InitializeSlots {
		return
	}

	for i := range slot {
		slot[i] = slotFillPattern
	}
}

func (b *slotBlock) logUnreleasedSlot(offset int) {
	b.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] live slot at teardown",
		slog.Int("block.id", b.id),
		slog.String("address", fmt.Sprintf("0x%x", b.base+uintptr(offset))),
		slog.Int("offset", offset),
		slog.Int("size", SlotSize),
	)
}

func (b *slotBlock) Validate() error {
	if b.data == nil {
		return errors.Newf("block %d has no backing memory", b.id)
	}
	if len(b.data) != BlockSize {
		return errors.Newf("block %d is %d bytes, expected %d", b.id, len(b.data), BlockSize)
	}

	return b.metadata.Validate()
}
