package tam

import (
	"log/slog"
	"sync"

	"github.com/hookwrapper/arsenal/vmem"
)

var (
	defaultOnce      sync.Once
	defaultAllocator *Allocator
	defaultErr       error
	shutdownOnce     sync.Once
)

// Default returns the process-wide allocator, creating it on first use. It reserves memory through
// vmem.OS() and logs to slog.Default(). After Shutdown, the allocator it returns fails every call
// with ErrDestroyed.
func Default() (*Allocator, error) {
	defaultOnce.Do(func() {
		defaultAllocator, defaultErr = New(slog.Default(), vmem.OS(), CreateOptions{})
	})

	return defaultAllocator, defaultErr
}

// AcquireSlot acquires a slot near origin from the process-wide allocator
func AcquireSlot(origin uintptr) (uintptr, error) {
	allocator, err := Default()
	if err != nil {
		return 0, err
	}

	return allocator.AcquireSlot(origin)
}

// IsExecutable reports whether addr lies in committed executable memory of the running process
func IsExecutable(addr uintptr) bool {
	return vmem.IsExecutable(vmem.OS(), addr)
}

// Shutdown destroys the process-wide allocator, returning all of its memory to the operating
// system. Only the first call does anything; later calls return ErrDestroyed.
func Shutdown() error {
	err := ErrDestroyed
	shutdownOnce.Do(func() {
		var allocator *Allocator
		allocator, err = Default()
		if err != nil {
			return
		}

		err = allocator.Destroy()
	})

	return err
}
