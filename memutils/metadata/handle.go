package metadata

import "math"

// SlotHandle identifies a single slot within a block by its index in the carved slot array
type SlotHandle uint32

const (
	NoSlot SlotHandle = math.MaxUint32
)
