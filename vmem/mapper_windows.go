//go:build windows

package vmem

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/windows"
)

var (
	kernel32          = windows.NewLazySystemDLL("kernel32.dll")
	procGetSystemInfo = kernel32.NewProc("GetSystemInfo")
)

// systemInfo mirrors SYSTEM_INFO
type systemInfo struct {
	ProcessorArchitecture     uint16
	Reserved                  uint16
	PageSize                  uint32
	MinimumApplicationAddress uintptr
	MaximumApplicationAddress uintptr
	ActiveProcessorMask       uintptr
	NumberOfProcessors        uint32
	ProcessorType             uint32
	AllocationGranularity     uint32
	ProcessorLevel            uint16
	ProcessorRevision         uint16
}

type osMapper struct{}

func (osMapper) AddressSpaceInfo() (AddressSpaceInfo, error) {
	if err := procGetSystemInfo.Find(); err != nil {
		return AddressSpaceInfo{}, errors.Wrap(err, "locate GetSystemInfo")
	}

	var si systemInfo
	// GetSystemInfo returns void, so there is no error to check
	_, _, _ = procGetSystemInfo.Call(uintptr(unsafe.Pointer(&si)))

	return AddressSpaceInfo{
		PageSize:              uintptr(si.PageSize),
		AllocationGranularity: uintptr(si.AllocationGranularity),
		MinAddress:            si.MinimumApplicationAddress,
		MaxAddress:            si.MaximumApplicationAddress,
	}, nil
}

func classifyErrno(err error) error {
	switch {
	case errors.Is(err, windows.ERROR_INVALID_ADDRESS):
		return errors.Mark(err, ErrAddressUnavailable)
	case errors.Is(err, windows.ERROR_NOT_ENOUGH_MEMORY), errors.Is(err, windows.ERROR_COMMITMENT_LIMIT):
		return errors.Mark(err, ErrNoSpace)
	case errors.Is(err, windows.ERROR_ACCESS_DENIED):
		return errors.Mark(err, ErrAccessDenied)
	}
	return err
}

func (osMapper) ReserveAndCommit(hint uintptr, size int, protect Protection) (uintptr, error) {
	addr, err := windows.VirtualAlloc(hint, uintptr(size), windows.MEM_RESERVE|windows.MEM_COMMIT, uint32(protect))
	if err != nil {
		return 0, errors.Wrapf(classifyErrno(err), "VirtualAlloc %d bytes at 0x%x", size, hint)
	}

	if hint != 0 && addr != hint {
		_ = windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
		return 0, errors.Mark(errors.Newf("VirtualAlloc placed 0x%x at 0x%x", hint, addr), ErrAddressUnavailable)
	}

	return addr, nil
}

func (osMapper) Release(addr uintptr, size int) error {
	// MEM_RELEASE frees the entire reservation and requires a zero size
	err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
	if err != nil {
		return errors.Wrapf(classifyErrno(err), "VirtualFree 0x%x", addr)
	}
	return nil
}

func (osMapper) QueryRegion(addr uintptr) (RegionInfo, error) {
	var mbi windows.MemoryBasicInformation
	err := windows.VirtualQuery(addr, &mbi, unsafe.Sizeof(mbi))
	if err != nil {
		return RegionInfo{}, errors.Mark(errors.Wrapf(err, "VirtualQuery 0x%x", addr), ErrQueryFailed)
	}

	return RegionInfo{
		BaseAddress:    mbi.BaseAddress,
		AllocationBase: mbi.AllocationBase,
		RegionSize:     mbi.RegionSize,
		State:          RegionState(mbi.State),
		Protect:        Protection(mbi.Protect),
	}, nil
}

func (osMapper) Bytes(addr uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}
