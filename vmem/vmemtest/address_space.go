// Package vmemtest provides vmem.Mapper implementations for tests: AddressSpace, a deterministic
// simulated address space, and MockMapper, a gomock mock.
package vmemtest

import (
	"math"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hookwrapper/arsenal/vmem"
)

type region struct {
	base     uintptr
	size     uintptr
	state    vmem.RegionState
	protect  vmem.Protection
	reserved bool
	backing  []byte
}

func (r *region) end() uintptr { return r.base + r.size }

// AddressSpace simulates a process address space with Windows-like semantics: reservations are
// made at exactly the requested address, rounded up to whole pages, and the gaps between regions
// are reported as free. Queries outside of [MinAddress, MaxAddress] fail. Memory reserved through
// ReserveAndCommit is backed by ordinary byte slices so Bytes returns writable views.
//
// AddressSpace is safe for concurrent use.
type AddressSpace struct {
	mutex   sync.Mutex
	info    vmem.AddressSpaceInfo
	regions []*region
	denied  map[uintptr]error

	queries       int
	reserveTrace  []uintptr
	releaseTrace  []uintptr
	failQueriesAt map[uintptr]bool
}

var _ vmem.Mapper = &AddressSpace{}

// NewAddressSpace creates an empty address space with the provided layout
func NewAddressSpace(info vmem.AddressSpaceInfo) *AddressSpace {
	return &AddressSpace{
		info:          info,
		denied:        make(map[uintptr]error),
		failQueriesAt: make(map[uintptr]bool),
	}
}

// DefaultInfo is a Windows-like layout with 4KB pages and 64KB allocation granularity. The
// highest address is that of a 64-bit process, or of a 32-bit one on 32-bit targets.
func DefaultInfo() vmem.AddressSpaceInfo {
	maxAddress := uint64(0x7FFF_FFFE_FFFF)
	if ^uintptr(0) == math.MaxUint32 {
		maxAddress = 0x7FFE_FFFF
	}

	return vmem.AddressSpaceInfo{
		PageSize:              0x1000,
		AllocationGranularity: 0x10000,
		MinAddress:            0x10000,
		MaxAddress:            uintptr(maxAddress),
	}
}

func (s *AddressSpace) roundToPage(size uintptr) uintptr {
	return (size + s.info.PageSize - 1) &^ (s.info.PageSize - 1)
}

// find returns the index of the first region whose end is above addr
func (s *AddressSpace) find(addr uintptr) int {
	return sort.Search(len(s.regions), func(i int) bool {
		return s.regions[i].end() > addr
	})
}

func (s *AddressSpace) overlaps(base, size uintptr) bool {
	index := s.find(base)
	return index < len(s.regions) && s.regions[index].base < base+size
}

func (s *AddressSpace) insert(r *region) {
	index := s.find(r.base)
	s.regions = append(s.regions, nil)
	copy(s.regions[index+1:], s.regions[index:])
	s.regions[index] = r
}

// Map occupies [base, base+size) with a committed region that was not created through
// ReserveAndCommit, as if some other component of the process had mapped it. It panics if the
// range overlaps an existing region.
func (s *AddressSpace) Map(base, size uintptr, protect vmem.Protection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	size = s.roundToPage(size)
	if s.overlaps(base, size) {
		panic(errors.AssertionFailedf("mapping [0x%x, 0x%x) overlaps an existing region", base, base+size))
	}

	s.insert(&region{base: base, size: size, state: vmem.StateCommitted, protect: protect})
}

// Reserve occupies [base, base+size) with a reserved, uncommitted region
func (s *AddressSpace) Reserve(base, size uintptr) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	size = s.roundToPage(size)
	if s.overlaps(base, size) {
		panic(errors.AssertionFailedf("reservation [0x%x, 0x%x) overlaps an existing region", base, base+size))
	}

	s.insert(&region{base: base, size: size, state: vmem.StateReserved, protect: vmem.ProtectNoAccess})
}

// Deny causes every ReserveAndCommit at exactly addr to fail with the provided error, even though
// queries report the address as free. A nil error denies with an ErrAddressUnavailable error, which
// mimics another thread winning a race for the address.
func (s *AddressSpace) Deny(addr uintptr, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err == nil {
		err = errors.Mark(errors.Newf("address 0x%x was taken", addr), vmem.ErrAddressUnavailable)
	}
	s.denied[addr] = err
}

// FailQueryAt causes QueryRegion to fail at exactly addr
func (s *AddressSpace) FailQueryAt(addr uintptr) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.failQueriesAt[addr] = true
}

// QueryCount returns the number of QueryRegion calls made so far
func (s *AddressSpace) QueryCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.queries
}

// ReserveTrace returns every hint passed to ReserveAndCommit, in call order
func (s *AddressSpace) ReserveTrace() []uintptr {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return append([]uintptr(nil), s.reserveTrace...)
}

// ReleaseTrace returns every address passed to Release, in call order
func (s *AddressSpace) ReleaseTrace() []uintptr {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return append([]uintptr(nil), s.releaseTrace...)
}

// ReservedBlocks returns the base of every live region created through ReserveAndCommit
func (s *AddressSpace) ReservedBlocks() []uintptr {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var bases []uintptr
	for _, r := range s.regions {
		if r.reserved {
			bases = append(bases, r.base)
		}
	}
	return bases
}

func (s *AddressSpace) AddressSpaceInfo() (vmem.AddressSpaceInfo, error) {
	return s.info, nil
}

func (s *AddressSpace) ReserveAndCommit(hint uintptr, size int, protect vmem.Protection) (uintptr, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.reserveTrace = append(s.reserveTrace, hint)

	if size <= 0 {
		return 0, errors.Newf("invalid reservation size %d", size)
	}
	rounded := s.roundToPage(uintptr(size))

	if hint == 0 {
		var found bool
		hint, found = s.lowestFit(rounded)
		if !found {
			return 0, errors.Mark(errors.Newf("no free range of %d bytes", rounded), vmem.ErrNoSpace)
		}
	} else {
		if err, denied := s.denied[hint]; denied {
			return 0, err
		}
		if hint&(s.info.PageSize-1) != 0 {
			return 0, errors.Mark(errors.Newf("address 0x%x is not page aligned", hint), vmem.ErrAddressUnavailable)
		}
		if hint < s.info.MinAddress || hint+rounded-1 > s.info.MaxAddress || hint+rounded < hint {
			return 0, errors.Mark(errors.Newf("range at 0x%x is outside of the address space", hint), vmem.ErrAddressUnavailable)
		}
		if s.overlaps(hint, rounded) {
			return 0, errors.Mark(errors.Newf("address 0x%x is in use", hint), vmem.ErrAddressUnavailable)
		}
	}

	s.insert(&region{
		base:     hint,
		size:     rounded,
		state:    vmem.StateCommitted,
		protect:  protect,
		reserved: true,
		backing:  make([]byte, rounded),
	})

	return hint, nil
}

// lowestFit finds the lowest granularity-aligned address with room for size bytes
func (s *AddressSpace) lowestFit(size uintptr) (uintptr, bool) {
	granularity := s.info.AllocationGranularity
	candidate := (s.info.MinAddress + granularity - 1) &^ (granularity - 1)

	for _, r := range s.regions {
		if candidate+size <= r.base {
			return candidate, true
		}
		if r.end() > candidate {
			candidate = (r.end() + granularity - 1) &^ (granularity - 1)
		}
	}

	if candidate+size-1 <= s.info.MaxAddress && candidate+size > candidate {
		return candidate, true
	}
	return 0, false
}

func (s *AddressSpace) Release(addr uintptr, size int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.releaseTrace = append(s.releaseTrace, addr)

	index := s.find(addr)
	if index >= len(s.regions) || s.regions[index].base != addr || !s.regions[index].reserved {
		return errors.Newf("0x%x is not the base of a reservation", addr)
	}

	s.regions = append(s.regions[:index], s.regions[index+1:]...)
	return nil
}

func (s *AddressSpace) QueryRegion(addr uintptr) (vmem.RegionInfo, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.queries++

	if addr < s.info.MinAddress || addr > s.info.MaxAddress || s.failQueriesAt[addr] {
		return vmem.RegionInfo{}, errors.Mark(errors.Newf("cannot query 0x%x", addr), vmem.ErrQueryFailed)
	}

	index := s.find(addr)
	if index < len(s.regions) && s.regions[index].base <= addr {
		r := s.regions[index]
		return vmem.RegionInfo{
			BaseAddress:    r.base,
			AllocationBase: r.base,
			RegionSize:     r.size,
			State:          r.state,
			Protect:        r.protect,
		}, nil
	}

	base := addr &^ (s.info.PageSize - 1)
	end := s.info.MaxAddress + 1
	if index < len(s.regions) {
		end = s.regions[index].base
	}

	return vmem.RegionInfo{
		BaseAddress: base,
		RegionSize:  end - base,
		State:       vmem.StateFree,
	}, nil
}

// Bytes returns a view into the backing of a region created by ReserveAndCommit. It panics if the
// range is not inside such a region.
func (s *AddressSpace) Bytes(addr uintptr, size int) []byte {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	index := s.find(addr)
	if index >= len(s.regions) || s.regions[index].base > addr || !s.regions[index].reserved {
		panic(errors.AssertionFailedf("0x%x is not inside a reservation", addr))
	}

	r := s.regions[index]
	offset := addr - r.base
	if offset+uintptr(size) > r.size {
		panic(errors.AssertionFailedf("range [0x%x, 0x%x) runs past its reservation", addr, addr+uintptr(size)))
	}

	return r.backing[offset : offset+uintptr(size)]
}
