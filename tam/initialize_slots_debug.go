//go:build debug_init_allocs

package tam

const (
	// InitializeSlots causes every slot to be filled with int3 breakpoints when it is handed out,
	// so a jump into a trampoline that was never written traps immediately instead of running
	// whatever the slot held before. It should generally be left deactivated.
	InitializeSlots bool = true
)
