package tam

import "github.com/hookwrapper/arsenal/vmem"

// window is the inclusive range of block base addresses reachable from an origin. An unbounded
// window accepts every address.
type window struct {
	bounded bool
	min     uintptr
	max     uintptr
}

func (w window) Contains(base uintptr) bool {
	return !w.bounded || (base >= w.min && base <= w.max)
}

// placement decides which blocks can serve an origin. A radius of zero places blocks anywhere.
type placement struct {
	radius uintptr
}

func (p placement) Bounded() bool {
	return p.radius != 0
}

// Window computes the range of block bases that lie entirely within radius of origin and inside
// the address space
func (p placement) Window(info vmem.AddressSpaceInfo, origin uintptr) window {
	if !p.Bounded() {
		return window{}
	}

	w := window{bounded: true, min: info.MinAddress}
	if origin > p.radius && origin-p.radius > w.min {
		w.min = origin - p.radius
	}

	hi := info.MaxAddress
	if reach := origin + p.radius; reach >= origin && reach < hi {
		hi = reach
	}

	if hi < BlockSize-1 {
		// Nothing fits, leave the window empty
		w.min, w.max = 1, 0
		return w
	}
	w.max = hi - (BlockSize - 1)

	return w
}
