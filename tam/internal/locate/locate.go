// Package locate walks the process address space looking for unmapped, granularity-aligned
// addresses on either side of a starting point.
//
// Both searches skip over whole mapped regions at a time, so their cost is proportional to the
// number of distinct mappings between the start and the bound rather than to the distance.
// A failed query ends the search in that direction; it is not an error.
package locate

import (
	"github.com/hookwrapper/arsenal/memutils"
	"github.com/hookwrapper/arsenal/vmem"
)

// FindPrecedingFreeRegion returns the highest granularity-aligned address strictly below start
// whose region is free, stopping at lowerBound. The returned address is never below lowerBound.
func FindPrecedingFreeRegion(q vmem.Querier, start, lowerBound, granularity uintptr) (uintptr, bool) {
	aligned := memutils.AlignDown(start, granularity)
	if aligned < granularity {
		return 0, false
	}

	for try := aligned - granularity; try >= lowerBound; {
		info, err := q.QueryRegion(try)
		if err != nil {
			return 0, false
		}
		if info.State == vmem.StateFree {
			return try, true
		}

		// Jump past the start of the whole reservation try landed in
		if info.AllocationBase < granularity {
			return 0, false
		}
		next := memutils.AlignDown(info.AllocationBase, granularity) - granularity
		if next >= try {
			return 0, false
		}
		try = next
	}

	return 0, false
}

// FindFollowingFreeRegion returns the lowest granularity-aligned address strictly above start
// whose region is free, stopping at upperBound. The returned address is never above upperBound.
func FindFollowingFreeRegion(q vmem.Querier, start, upperBound, granularity uintptr) (uintptr, bool) {
	try := memutils.AlignDown(start, granularity) + granularity
	if try < start {
		// Wrapped past the top of the address space
		return 0, false
	}

	for try <= upperBound {
		info, err := q.QueryRegion(try)
		if err != nil {
			return 0, false
		}
		if info.State == vmem.StateFree {
			return try, true
		}

		end := info.End()
		next := memutils.AlignUp(end, granularity)
		if next <= try || next < end {
			return 0, false
		}
		try = next
	}

	return 0, false
}
