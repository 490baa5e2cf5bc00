//go:build amd64 || 386

package tam

// MaxMemoryRange is the farthest a block may be from the origin it is allocated for. It is the
// reach of a 32-bit relative jump, rounded down to leave room for the instruction itself.
const MaxMemoryRange = 0x4000_0000

func defaultPlacement() placement {
	return placement{radius: MaxMemoryRange}
}
