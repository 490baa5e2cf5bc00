package vmem

import (
	"fmt"
	"strings"
)

// RegionState describes whether an address range is mapped
type RegionState uint32

const (
	StateCommitted RegionState = 0x1000
	StateReserved  RegionState = 0x2000
	StateFree      RegionState = 0x10000
)

var regionStateMapping = map[RegionState]string{
	StateCommitted: "Committed",
	StateReserved:  "Reserved",
	StateFree:      "Free",
}

func (s RegionState) String() string {
	str, ok := regionStateMapping[s]
	if !ok {
		return fmt.Sprintf("RegionState(0x%x)", uint32(s))
	}

	return str
}

// Protection is the set of access rights of a committed region
type Protection uint32

const (
	ProtectNoAccess         Protection = 0x01
	ProtectReadOnly         Protection = 0x02
	ProtectReadWrite        Protection = 0x04
	ProtectWriteCopy        Protection = 0x08
	ProtectExecute          Protection = 0x10
	ProtectExecuteRead      Protection = 0x20
	ProtectExecuteReadWrite Protection = 0x40
	ProtectExecuteWriteCopy Protection = 0x80

	// ProtectExecuteMask covers every protection that allows instructions to be fetched
	ProtectExecuteMask = ProtectExecute | ProtectExecuteRead | ProtectExecuteReadWrite | ProtectExecuteWriteCopy
)

var protectionMapping = []struct {
	flag Protection
	name string
}{
	{ProtectNoAccess, "NoAccess"},
	{ProtectReadOnly, "ReadOnly"},
	{ProtectReadWrite, "ReadWrite"},
	{ProtectWriteCopy, "WriteCopy"},
	{ProtectExecute, "Execute"},
	{ProtectExecuteRead, "ExecuteRead"},
	{ProtectExecuteReadWrite, "ExecuteReadWrite"},
	{ProtectExecuteWriteCopy, "ExecuteWriteCopy"},
}

func (p Protection) String() string {
	if p == 0 {
		return "None"
	}

	var names []string
	for _, entry := range protectionMapping {
		if p&entry.flag != 0 {
			names = append(names, entry.name)
		}
	}
	if rest := p &^ (ProtectExecuteMask | ProtectNoAccess | ProtectReadOnly | ProtectReadWrite | ProtectWriteCopy); rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(rest)))
	}

	return strings.Join(names, "|")
}

// IsExecutable reports whether the protection allows instruction fetch
func (p Protection) IsExecutable() bool {
	return p&ProtectExecuteMask != 0
}

// AddressSpaceInfo is a snapshot of the process address space layout
type AddressSpaceInfo struct {
	// PageSize is the size in bytes of a native page
	PageSize uintptr
	// AllocationGranularity is the alignment that reservation addresses are rounded to
	AllocationGranularity uintptr
	// MinAddress is the lowest address an application may map
	MinAddress uintptr
	// MaxAddress is the highest address an application may map, inclusive
	MaxAddress uintptr
}

// RegionInfo describes the run of pages around a queried address that share a state and protection
type RegionInfo struct {
	// BaseAddress is the first address of the run
	BaseAddress uintptr
	// AllocationBase is the address of the reservation the run belongs to. It is zero for free regions.
	AllocationBase uintptr
	// RegionSize is the length in bytes of the run
	RegionSize uintptr
	State      RegionState
	Protect    Protection
}

// End returns the first address past the region, saturating at the top of the address space
func (r RegionInfo) End() uintptr {
	end := r.BaseAddress + r.RegionSize
	if end < r.BaseAddress {
		return ^uintptr(0)
	}
	return end
}

// Mapper is the operating system's virtual memory service
type Mapper interface {
	// AddressSpaceInfo returns the current address space layout
	AddressSpaceInfo() (AddressSpaceInfo, error)
	// ReserveAndCommit reserves and commits size bytes with the provided protection. If hint is
	// nonzero the mapping must begin exactly at hint, and an error marked ErrAddressUnavailable is
	// returned if that is not possible. A zero hint lets the system choose the address.
	ReserveAndCommit(hint uintptr, size int, protect Protection) (uintptr, error)
	// Release unmaps a region previously returned by ReserveAndCommit. Releasing the same region
	// twice is undefined.
	Release(addr uintptr, size int) error
	// QueryRegion describes the region containing addr. An error marked ErrQueryFailed is returned
	// when addr is outside of the address space the system will describe.
	QueryRegion(addr uintptr) (RegionInfo, error)
	// Bytes returns a view of size bytes of committed memory starting at addr
	Bytes(addr uintptr, size int) []byte
}
