package tam

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/hookwrapper/arsenal/memutils"
	"github.com/hookwrapper/arsenal/tam/internal/locate"
	"github.com/hookwrapper/arsenal/tam/internal/osmem"
	"github.com/hookwrapper/arsenal/tam/internal/utils"
	"github.com/hookwrapper/arsenal/vmem"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Allocator hands out executable slots near caller-supplied addresses. It is safe for concurrent
// use unless it was created with CreateExternallySynchronized.
type Allocator struct {
	logger      *slog.Logger
	createFlags CreateFlags
	placement   placement

	mutex     utils.OptionalMutex
	mapping   *osmem.Mapping
	blocks    slotBlockList
	destroyed bool
}

// AcquireSlot returns the address of a SlotSize-byte slot of executable memory. On amd64 and 386
// the slot lies within MaxMemoryRange of origin; elsewhere origin is ignored. The contents of the
// slot are undefined.
//
// An error wrapping ErrExhausted is returned if no reachable memory could be found. Errors from
// the mapper other than an unavailable address end the search early and are wrapped as well.
func (a *Allocator) AcquireSlot(origin uintptr) (uintptr, error) {
	a.logger.Debug("Allocator::AcquireSlot")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.destroyed {
		return 0, ErrDestroyed
	}

	info, err := a.mapping.AddressSpaceInfo()
	if err != nil {
		return 0, err
	}

	w := a.placement.Window(info, origin)

	block := a.blocks.FindAvailable(w)
	if block != nil {
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Returned from existing block", slog.Int("block.id", block.id))
	} else {
		block, err = a.createReachableBlock(info, origin, w)
		if err != nil {
			a.logger.LogAttrs(context.Background(), slog.LevelDebug, "  AcquireSlot FAILED",
				slog.String("origin", fmt.Sprintf("0x%x", origin)),
				slog.Any("error", err))
			return 0, err
		}
	}

	addr, err := block.Acquire()
	if err != nil {
		return 0, err
	}
	a.mapping.AddAllocation(SlotSize)

	return addr, nil
}

func (a *Allocator) createReachableBlock(info vmem.AddressSpaceInfo, origin uintptr, w window) (*slotBlock, error) {
	if !w.bounded {
		block, err := a.blocks.CreateBlock(0)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "failed to reserve a block"), ErrExhausted)
		}
		return block, nil
	}

	granularity := info.AllocationGranularity
	var lastErr error

	tryReserve := func(hint uintptr) (*slotBlock, bool, error) {
		if !w.Contains(hint) {
			return nil, false, nil
		}

		block, err := a.blocks.CreateBlock(hint)
		if err == nil {
			return block, true, nil
		}
		if !errors.Is(err, vmem.ErrAddressUnavailable) {
			return nil, false, errors.Mark(errors.Wrapf(err, "failed to reserve a block at 0x%x", hint), ErrExhausted)
		}

		// Something else took the address between the query and the reservation
		lastErr = err
		return nil, false, nil
	}

	for hint, found := locate.FindPrecedingFreeRegion(a.mapping, origin, w.min, granularity); found; hint, found = locate.FindPrecedingFreeRegion(a.mapping, hint, w.min, granularity) {
		block, ok, err := tryReserve(hint)
		if err != nil || ok {
			return block, err
		}
	}

	for hint, found := locate.FindFollowingFreeRegion(a.mapping, origin, w.max, granularity); found; hint, found = locate.FindFollowingFreeRegion(a.mapping, hint, w.max, granularity) {
		block, ok, err := tryReserve(hint)
		if err != nil || ok {
			return block, err
		}
	}

	if lastErr != nil {
		return nil, errors.Mark(errors.Wrapf(lastErr, "no block could be reserved within reach of 0x%x", origin), ErrExhausted)
	}
	return nil, errors.Wrapf(ErrExhausted, "no free region within reach of 0x%x", origin)
}

// ReleaseSlot returns a slot obtained from AcquireSlot to the allocator. Its memory stays mapped and
// executable until the slot is handed out again, unless the allocator was created with
// CreateReclaimEmptyBlocks and the slot was the last live one in its block.
func (a *Allocator) ReleaseSlot(addr uintptr) error {
	a.logger.Debug("Allocator::ReleaseSlot")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.destroyed {
		return ErrDestroyed
	}

	block := a.blocks.FindOwner(addr)
	if block == nil {
		return errors.Wrapf(ErrUnknownSlot, "0x%x", addr)
	}

	err := block.Release(addr)
	if err != nil {
		return err
	}
	a.mapping.RemoveAllocation(SlotSize)

	if a.createFlags&CreateReclaimEmptyBlocks != 0 && block.metadata.IsEmpty() {
		err = a.blocks.DestroyBlock(block)
		if err != nil {
			a.logger.Error("failed to release an empty block", slog.Any("error", err))
			return err
		}
	}

	return nil
}

// Owns reports whether addr is the start of, or inside, a slot carved from one of this
// allocator's blocks
func (a *Allocator) Owns(addr uintptr) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	block := a.blocks.FindOwner(addr)
	if block == nil {
		return false
	}

	offset := int(addr - block.base)
	slotOffset := memutils.AlignDown(offset, SlotSize)
	_, err := block.metadata.HandleForOffset(slotOffset)
	return err == nil
}

// IsExecutable reports whether addr lies in committed memory that allows instruction fetch,
// according to the allocator's mapper
func (a *Allocator) IsExecutable(addr uintptr) bool {
	a.logger.Debug("Allocator::IsExecutable")

	return vmem.IsExecutable(a.mapping, addr)
}

// Reset returns every block to the operating system. Every slot handed out so far becomes invalid.
// The allocator remains usable, and the next AcquireSlot behaves as the first one did.
func (a *Allocator) Reset() error {
	a.logger.Debug("Allocator::Reset")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.destroyed {
		return ErrDestroyed
	}

	return a.blocks.Destroy()
}

// Destroy returns every block to the operating system and retires the allocator. Slots that were
// never released are logged. Every call on the allocator after Destroy, including a second
// Destroy, returns ErrDestroyed.
func (a *Allocator) Destroy() error {
	a.logger.Debug("Allocator::Destroy")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.destroyed {
		return ErrDestroyed
	}
	a.destroyed = true

	return a.blocks.Destroy()
}

// Validate checks the registry and every block's free list for consistency
func (a *Allocator) Validate() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.destroyed {
		return ErrDestroyed
	}

	err := a.blocks.Validate()
	if err != nil {
		return err
	}

	if reserved := a.mapping.BlockCount(); reserved != a.blocks.Count() {
		return errors.Newf("%d blocks are reserved but %d are registered", reserved, a.blocks.Count())
	}

	var accounted, carved memutils.Statistics
	a.mapping.Statistics(&accounted)
	a.blocks.AddStatistics(&carved)
	if accounted.AllocationCount != carved.AllocationCount {
		return errors.Newf("%d slots are accounted for but %d are in use", accounted.AllocationCount, carved.AllocationCount)
	}

	return nil
}

// CheckCorruption verifies the debug markers in every block header and walks every free list.
// Markers are only written when memutils is built with the build tag `debug_mem_utils`.
func (a *Allocator) CheckCorruption() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.destroyed {
		return ErrDestroyed
	}

	return a.blocks.CheckCorruption()
}

// Statistics populates stats with the number of blocks and slots currently held
func (a *Allocator) Statistics(stats *memutils.Statistics) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	stats.Clear()
	a.blocks.AddStatistics(stats)
}

// DetailedStatistics populates stats with per-block detail in addition to the totals
func (a *Allocator) DetailedStatistics(stats *memutils.DetailedStatistics) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.detailedStatistics(stats)
}

func (a *Allocator) detailedStatistics(stats *memutils.DetailedStatistics) {
	stats.Clear()
	a.blocks.AddDetailedStatistics(stats)
	stats.BlocksReserved, stats.BlocksReleased = a.mapping.Lifetime()
}

// PrintDetailedMap writes a JSON object describing every block and its live slots
func (a *Allocator) PrintDetailedMap(writer *jwriter.Writer) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.blocks.PrintDetailedMap(writer)
}

// BuildStatsString returns a JSON document of the allocator's statistics. If detailedMap is true,
// the document includes the map of every block.
func (a *Allocator) BuildStatsString(detailedMap bool) string {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	var stats memutils.DetailedStatistics
	a.detailedStatistics(&stats)

	writer := jwriter.NewWriter()
	obj := writer.Object()

	obj.Name("Flags").String(a.createFlags.String())
	obj.Name("SlotSize").Int(SlotSize)
	obj.Name("BlockSize").Int(BlockSize)
	obj.Name("MaxMemoryRange").String(fmt.Sprintf("0x%x", uintptr(MaxMemoryRange)))

	total := obj.Name("Total").Object()
	total.Name("BlockCount").Int(stats.BlockCount)
	total.Name("BlockBytes").Int(stats.BlockBytes)
	total.Name("AllocationCount").Int(stats.AllocationCount)
	total.Name("AllocationBytes").Int(stats.AllocationBytes)
	total.Name("FreeSlotCount").Int(stats.FreeSlotCount)
	total.Name("FullBlockCount").Int(stats.FullBlockCount)
	total.Name("EmptyBlockCount").Int(stats.EmptyBlockCount)
	total.Name("BlocksReserved").Int(int(stats.BlocksReserved))
	total.Name("BlocksReleased").Int(int(stats.BlocksReleased))
	if stats.BlockCount > 0 {
		total.Name("LowestBlockBase").String(fmt.Sprintf("0x%x", stats.LowestBlockBase))
		total.Name("HighestBlockBase").String(fmt.Sprintf("0x%x", stats.HighestBlockBase))
	}
	total.End()

	if detailedMap {
		obj.Name("Blocks")
		a.blocks.PrintDetailedMap(&writer)
	}

	obj.End()

	return string(writer.Bytes())
}
