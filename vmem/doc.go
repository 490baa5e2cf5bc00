// Package vmem describes the operating system's virtual memory primitives that the slot allocator
// consumes: reserving and committing memory at an exact address, releasing it, and asking what
// occupies the region around an address. Mapper is the contract; OS returns the backend for the
// running platform.
//
// Region states and protection flags use the Windows numeric values on every platform, so a
// RegionInfo reads the same whichever backend produced it.
package vmem
