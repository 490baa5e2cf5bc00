package metadata

import "github.com/cockroachdb/errors"

var (
	// NoFreeSlotError is returned from Alloc when every slot in the block is in use
	NoFreeSlotError = errors.New("block has no free slots")
	// InvalidSlotError is returned when an offset or handle does not name a slot carved from the block
	InvalidSlotError = errors.New("not a slot in this block")
	// SlotNotInUseError is returned from Free when the slot is already on the free list
	SlotNotInUseError = errors.New("slot is not in use")
)
