package tam

import "github.com/cockroachdb/errors"

var (
	// ErrExhausted is returned from AcquireSlot when no block with a free slot is reachable from the
	// origin and no new block could be placed within reach. When a reservation failed along the way,
	// the returned error also wraps that failure.
	ErrExhausted = errors.New("tam: no executable memory within reach")
	// ErrDestroyed is returned from every operation on an Allocator after Destroy has been called
	ErrDestroyed = errors.New("tam: allocator has been destroyed")
	// ErrUnknownSlot is returned from ReleaseSlot when the address does not belong to any block
	// owned by the allocator
	ErrUnknownSlot = errors.New("tam: address was not allocated by this allocator")
	// ErrInvalidSlot is returned from ReleaseSlot when the address is inside a block but is not the
	// start of a slot
	ErrInvalidSlot = errors.New("tam: address is not the start of a slot")
	// ErrDoubleRelease is returned from ReleaseSlot when the slot is already free
	ErrDoubleRelease = errors.New("tam: slot has already been released")
)
