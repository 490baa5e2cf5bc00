package tam

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/hookwrapper/arsenal/memutils"
	"github.com/hookwrapper/arsenal/memutils/metadata"
	"github.com/hookwrapper/arsenal/tam/internal/osmem"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// slotBlockList is the registry of every block an allocator owns. Blocks are searched in list
// order, most recently created first, and are indexed by base address so a slot's owner can be
// found without walking the list.
type slotBlockList struct {
	logger  *slog.Logger
	mapping *osmem.Mapping

	head        *slotBlock
	count       int
	byBase      *swiss.Map[uintptr, *slotBlock]
	nextBlockId int
}

func (l *slotBlockList) Init(logger *slog.Logger, mapping *osmem.Mapping, index *swiss.Map[uintptr, *slotBlock]) {
	l.logger = logger
	l.mapping = mapping
	l.byBase = index
}

func (l *slotBlockList) Count() int { return l.count }

// FindAvailable returns the first block in list order whose base is inside w and which has a
// free slot
func (l *slotBlockList) FindAvailable(w window) *slotBlock {
	for block := l.head; block != nil; block = block.next {
		if w.Contains(block.base) && block.metadata.HasFreeSlot() {
			return block
		}
	}

	return nil
}

// FindOwner returns the block containing addr, or nil
func (l *slotBlockList) FindOwner(addr uintptr) *slotBlock {
	block, ok := l.byBase.Get(memutils.AlignDown(addr, uintptr(BlockSize)))
	if !ok || !block.Contains(addr) {
		return nil
	}

	return block
}

// CreateBlock reserves a block at hint, or anywhere when hint is zero, carves it and pushes it to
// the front of the list
func (l *slotBlockList) CreateBlock(hint uintptr) (*slotBlock, error) {
	base, data, err := l.mapping.ReserveBlock(hint, BlockSize)
	if err != nil {
		return nil, err
	}

	if !memutils.IsAligned(base, uintptr(BlockSize)) {
		err = errors.Newf("block reserved at 0x%x is not aligned to the block size", base)
		return nil, errors.CombineErrors(err, l.mapping.ReleaseBlock(base, BlockSize))
	}

	block := &slotBlock{}
	block.Init(l.logger, l.nextBlockId, base, data)
	l.nextBlockId++

	block.next = l.head
	l.head = block
	l.count++
	l.byBase.Put(base, block)

	l.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Created new block",
		slog.Int("block.id", block.id),
		slog.String("base", fmt.Sprintf("0x%x", base)),
	)

	memutils.DebugValidate(l)
	return block, nil
}

func (l *slotBlockList) remove(block *slotBlock) {
	if l.head == block {
		l.head = block.next
	} else {
		for prev := l.head; prev != nil; prev = prev.next {
			if prev.next == block {
				prev.next = block.next
				break
			}
		}
	}

	block.next = nil
	l.byBase.Delete(block.base)
	l.count--
}

// DestroyBlock returns a block to the operating system and unlinks it. A block that could not be
// released stays registered.
func (l *slotBlockList) DestroyBlock(block *slotBlock) error {
	err := block.Destroy(l.mapping)
	if err != nil {
		return err
	}

	l.remove(block)
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Deleted block", slog.Int("block.id", block.id))

	memutils.DebugValidate(l)
	return nil
}

// Destroy returns every block to the operating system. A failure to release one block does not
// stop the others from being released; all failures are returned together, and the blocks that
// failed stay registered in their original order.
func (l *slotBlockList) Destroy() error {
	var err error
	var kept, keptTail *slotBlock

	for block := l.head; block != nil; {
		next := block.next
		block.next = nil

		destroyErr := block.Destroy(l.mapping)
		if destroyErr != nil {
			l.logger.LogAttrs(context.Background(), slog.LevelError, "failed to release block",
				slog.Int("block.id", block.id),
				slog.Any("error", destroyErr))
			err = errors.CombineErrors(err, destroyErr)

			if keptTail == nil {
				kept = block
			} else {
				keptTail.next = block
			}
			keptTail = block
		} else {
			l.byBase.Delete(block.base)
			l.count--
		}

		block = next
	}

	l.head = kept

	return err
}

func (l *slotBlockList) AddStatistics(stats *memutils.Statistics) {
	for block := l.head; block != nil; block = block.next {
		block.metadata.AddStatistics(stats)
	}
}

func (l *slotBlockList) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	for block := l.head; block != nil; block = block.next {
		block.metadata.AddDetailedStatistics(block.base, stats)
	}
}

func (l *slotBlockList) Validate() error {
	actualCount := 0
	for block := l.head; block != nil; block = block.next {
		actualCount++

		indexed, ok := l.byBase.Get(block.base)
		if !ok || indexed != block {
			return errors.Newf("block %d at 0x%x is missing from the base index", block.id, block.base)
		}

		err := block.Validate()
		if err != nil {
			return errors.Wrapf(err, "block %d", block.id)
		}
	}

	if actualCount != l.count {
		return errors.Newf("the listed number of blocks (%d) does not match the actual number of blocks (%d)", l.count, actualCount)
	}
	if l.byBase.Count() != l.count {
		return errors.Newf("the base index holds %d blocks but the list holds %d", l.byBase.Count(), l.count)
	}

	return nil
}

func (l *slotBlockList) CheckCorruption() error {
	for block := l.head; block != nil; block = block.next {
		err := block.metadata.CheckCorruption()
		if err != nil {
			return errors.Wrapf(err, "block %d at 0x%x", block.id, block.base)
		}
	}

	return nil
}

func (l *slotBlockList) PrintDetailedMap(writer *jwriter.Writer) {
	objState := writer.Object()
	defer objState.End()

	for block := l.head; block != nil; block = block.next {
		blockObj := objState.Name(strconv.Itoa(block.id)).Object()

		blockObj.Name("Base").String(fmt.Sprintf("0x%x", block.base))
		block.metadata.BlockJsonData(blockObj)

		l.printDetailedMapSlots(block, blockObj)

		blockObj.End()
	}
}

func (l *slotBlockList) printDetailedMapSlots(block *slotBlock, json jwriter.ObjectState) {
	arrayState := json.Name("Slots").Array()
	defer arrayState.End()

	_ = block.metadata.VisitAllSlots(func(handle metadata.SlotHandle, offset int, free bool) error {
		if free {
			return nil
		}

		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Slot").Int(int(handle))
		obj.Name("Address").String(fmt.Sprintf("0x%x", block.base+uintptr(offset)))

		return nil
	})
}
