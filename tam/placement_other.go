//go:build !amd64 && !386

package tam

// MaxMemoryRange is zero on this architecture: trampolines are reached with absolute branches, so
// a block anywhere in the address space serves every origin.
const MaxMemoryRange = 0

func defaultPlacement() placement {
	return placement{}
}
