//go:build linux

package vmem

import (
	"os"
	"strconv"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

const (
	mmapMinAddrPath    = "/proc/sys/vm/mmap_min_addr"
	defaultMmapMinAddr = 0x10000
)

// userAddressLimit is the highest user space address, inclusive. 64-bit kernels hand out
// 47 bits of user address space by default.
func userAddressLimit() uintptr {
	if unsafe.Sizeof(uintptr(0)) == 8 {
		limit := uint64(1)<<47 - 1
		return uintptr(limit)
	}

	var limit uint32 = 0xBFFFFFFF
	return uintptr(limit)
}

type osMapper struct{}

func (osMapper) AddressSpaceInfo() (AddressSpaceInfo, error) {
	pageSize := uintptr(unix.Getpagesize())

	minAddress := uintptr(defaultMmapMinAddr)
	if raw, err := os.ReadFile(mmapMinAddrPath); err == nil {
		if value, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64); err == nil && value > 0 {
			minAddress = uintptr(value)
		}
	}
	minAddress = (minAddress + pageSize - 1) &^ (pageSize - 1)

	return AddressSpaceInfo{
		PageSize:              pageSize,
		AllocationGranularity: pageSize,
		MinAddress:            minAddress,
		MaxAddress:            userAddressLimit(),
	}, nil
}

func protectionFlags(protect Protection) int {
	var prot int
	if protect&(ProtectReadOnly|ProtectReadWrite|ProtectWriteCopy|ProtectExecuteRead|ProtectExecuteReadWrite|ProtectExecuteWriteCopy) != 0 {
		prot |= unix.PROT_READ
	}
	if protect&(ProtectReadWrite|ProtectWriteCopy|ProtectExecuteReadWrite|ProtectExecuteWriteCopy) != 0 {
		prot |= unix.PROT_WRITE
	}
	if protect.IsExecutable() {
		prot |= unix.PROT_EXEC
	}
	return prot
}

func classifyErrno(err error) error {
	switch {
	case errors.Is(err, unix.EEXIST):
		return errors.Mark(err, ErrAddressUnavailable)
	case errors.Is(err, unix.ENOMEM), errors.Is(err, unix.EAGAIN):
		return errors.Mark(err, ErrNoSpace)
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return errors.Mark(err, ErrAccessDenied)
	}
	return err
}

func (osMapper) ReserveAndCommit(hint uintptr, size int, protect Protection) (uintptr, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	if hint != 0 {
		flags |= unix.MAP_FIXED_NOREPLACE
	}

	ptr, err := unix.MmapPtr(-1, 0, unsafe.Pointer(hint), uintptr(size), protectionFlags(protect), flags)
	if err != nil {
		return 0, errors.Wrapf(classifyErrno(err), "mmap %d bytes at 0x%x", size, hint)
	}

	addr := uintptr(ptr)
	if hint != 0 && addr != hint {
		// Kernels older than 4.17 treat MAP_FIXED_NOREPLACE as a plain hint
		_ = unix.MunmapPtr(ptr, uintptr(size))
		return 0, errors.Mark(errors.Newf("mmap placed 0x%x at 0x%x", hint, addr), ErrAddressUnavailable)
	}

	return addr, nil
}

func (osMapper) Release(addr uintptr, size int) error {
	err := unix.MunmapPtr(unsafe.Pointer(addr), uintptr(size))
	if err != nil {
		return errors.Wrapf(classifyErrno(err), "munmap %d bytes at 0x%x", size, addr)
	}
	return nil
}

func mapProtection(perms *procfs.ProcMapPermissions) Protection {
	if perms == nil {
		return ProtectNoAccess
	}

	switch {
	case perms.Execute && perms.Write:
		return ProtectExecuteReadWrite
	case perms.Execute && perms.Read:
		return ProtectExecuteRead
	case perms.Execute:
		return ProtectExecute
	case perms.Write:
		return ProtectReadWrite
	case perms.Read:
		return ProtectReadOnly
	}
	return ProtectNoAccess
}

// QueryRegion answers from /proc/self/maps. Each mapping line is its own allocation; the gaps
// between lines are free regions.
func (m osMapper) QueryRegion(addr uintptr) (RegionInfo, error) {
	info, err := m.AddressSpaceInfo()
	if err != nil {
		return RegionInfo{}, err
	}
	if addr < info.MinAddress || addr > info.MaxAddress {
		return RegionInfo{}, errors.Mark(errors.Newf("address 0x%x is outside of user space", addr), ErrQueryFailed)
	}

	proc, err := procfs.Self()
	if err != nil {
		return RegionInfo{}, errors.Mark(errors.Wrap(err, "open /proc/self"), ErrQueryFailed)
	}
	maps, err := proc.ProcMaps()
	if err != nil {
		return RegionInfo{}, errors.Mark(errors.Wrap(err, "read /proc/self/maps"), ErrQueryFailed)
	}

	gapStart := info.MinAddress
	for _, mapping := range maps {
		if addr < mapping.StartAddr {
			break
		}
		if addr < mapping.EndAddr {
			return RegionInfo{
				BaseAddress:    mapping.StartAddr,
				AllocationBase: mapping.StartAddr,
				RegionSize:     mapping.EndAddr - mapping.StartAddr,
				State:          StateCommitted,
				Protect:        mapProtection(mapping.Perms),
			}, nil
		}
		if mapping.EndAddr > gapStart {
			gapStart = mapping.EndAddr
		}
	}

	gapEnd := info.MaxAddress + 1
	for _, mapping := range maps {
		if mapping.StartAddr > addr {
			gapEnd = mapping.StartAddr
			break
		}
	}

	base := addr &^ (info.PageSize - 1)
	if base < gapStart {
		base = gapStart
	}

	return RegionInfo{
		BaseAddress: base,
		RegionSize:  gapEnd - base,
		State:       StateFree,
	}, nil
}

func (osMapper) Bytes(addr uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}
