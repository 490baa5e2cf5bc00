//go:build !linux && !windows

package vmem

type osMapper struct{}

func (osMapper) AddressSpaceInfo() (AddressSpaceInfo, error) {
	return AddressSpaceInfo{}, ErrUnsupported
}

func (osMapper) ReserveAndCommit(hint uintptr, size int, protect Protection) (uintptr, error) {
	return 0, ErrUnsupported
}

func (osMapper) Release(addr uintptr, size int) error {
	return ErrUnsupported
}

func (osMapper) QueryRegion(addr uintptr) (RegionInfo, error) {
	return RegionInfo{}, ErrUnsupported
}

func (osMapper) Bytes(addr uintptr, size int) []byte {
	return nil
}
