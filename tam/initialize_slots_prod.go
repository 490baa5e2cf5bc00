//go:build !debug_init_allocs

package tam

const (
	// InitializeSlots causes every slot to be filled with int3 breakpoints when it is handed out.
	// Build with the tag `debug_init_allocs` to activate it.
	InitializeSlots bool = false
)
