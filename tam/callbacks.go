package tam

// AllocateBlockCallback is called after a block of executable memory is reserved from the
// operating system
type AllocateBlockCallback func(
	allocator *Allocator,
	base uintptr,
	size int,
	userData interface{},
)

// FreeBlockCallback is called before a block of executable memory is returned to the operating
// system
type FreeBlockCallback func(
	allocator *Allocator,
	base uintptr,
	size int,
	userData interface{},
)

type MemoryCallbackOptions struct {
	Allocate AllocateBlockCallback
	Free     FreeBlockCallback
	UserData interface{}
}

type memoryCallbacks struct {
	Callbacks *MemoryCallbackOptions
	Allocator *Allocator
}

func (c *memoryCallbacks) Allocate(base uintptr, size int) {
	if c.Callbacks != nil && c.Callbacks.Allocate != nil {
		c.Callbacks.Allocate(c.Allocator, base, size, c.Callbacks.UserData)
	}
}

func (c *memoryCallbacks) Free(base uintptr, size int) {
	if c.Callbacks != nil && c.Callbacks.Free != nil {
		c.Callbacks.Free(c.Allocator, base, size, c.Callbacks.UserData)
	}
}
