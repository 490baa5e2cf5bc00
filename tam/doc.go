// Package tam is a trampoline memory allocator: it hands out small executable slots located close
// enough to a target address that a relative branch at the target can reach them.
//
// Memory is reserved from the operating system one 4KB block at a time, with read, write and
// execute access, and each block is carved into fixed-size slots (64 bytes on 64-bit targets, 32
// bytes on 32-bit targets). On amd64 and 386, where a relative jump reaches ±2GB, a block is only
// used for a request if it lies within MaxMemoryRange of the request's origin, and new blocks are
// placed by walking the address space outward from the origin looking for unmapped space. On other
// architectures any block will do and the operating system chooses where new blocks go.
//
// Slots are never moved. By default they are never returned either: hook trampolines generally
// live as long as the process. ReleaseSlot is available for callers that do tear hooks down, and
// CreateReclaimEmptyBlocks returns blocks to the operating system once their last slot is released.
//
// Most callers create an Allocator with New. The package-level AcquireSlot and IsExecutable use a
// process-wide allocator backed by the operating system, created on first use and torn down by
// Shutdown.
package tam
