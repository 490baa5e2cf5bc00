package tam

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/hookwrapper/arsenal/tam/internal/osmem"
	"github.com/hookwrapper/arsenal/tam/internal/utils"
	"github.com/hookwrapper/arsenal/vmem"
)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

const (
	// CreateExternallySynchronized ensures that this allocator will not be synchronized internally.
	// The consumer must guarantee it is used from only one goroutine at a time or is synchronized by
	// some other mechanism, but performance may improve because internal mutexes are not used.
	CreateExternallySynchronized CreateFlags = 1 << iota
	// CreateReclaimEmptyBlocks causes a block to be returned to the operating system as soon as its
	// last slot is released. Without it, blocks are kept until Reset or Destroy.
	CreateReclaimEmptyBlocks
)

var createFlagsMapping = []struct {
	flag CreateFlags
	name string
}{
	{CreateExternallySynchronized, "CreateExternallySynchronized"},
	{CreateReclaimEmptyBlocks, "CreateReclaimEmptyBlocks"},
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	remaining := f
	for _, entry := range createFlagsMapping {
		if f&entry.flag != 0 {
			names = append(names, entry.name)
			remaining &^= entry.flag
		}
	}
	if remaining != 0 {
		names = append(names, fmt.Sprintf("CreateFlags(0x%x)", int32(remaining)))
	}

	return strings.Join(names, "|")
}

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags

	// MaxBlockCount limits how many blocks the allocator will hold at once. Zero means no limit.
	// When the limit is reached, AcquireSlot fails with an error wrapping both ErrExhausted and
	// vmem.ErrNoSpace.
	MaxBlockCount int

	// MemoryCallbackOptions is an optional set of callbacks that will be executed when blocks are
	// reserved from or returned to the operating system
	MemoryCallbackOptions *MemoryCallbackOptions
}

// New creates a new Allocator
//
// logger - Receives a debug trace of every call and error reports from teardown
//
// mapper - The virtual memory service blocks are reserved from, usually vmem.OS()
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, mapper vmem.Mapper, options CreateOptions) (*Allocator, error) {
	return newAllocator(logger, mapper, options, defaultPlacement())
}

func newAllocator(logger *slog.Logger, mapper vmem.Mapper, options CreateOptions, placement placement) (*Allocator, error) {
	if logger == nil {
		return nil, errors.New("tam.New requires a logger")
	}
	if options.MaxBlockCount < 0 {
		return nil, errors.Newf("tam.CreateOptions.MaxBlockCount must not be negative, but was %d", options.MaxBlockCount)
	}

	useMutex := options.Flags&CreateExternallySynchronized == 0

	allocator := &Allocator{
		logger:      logger,
		createFlags: options.Flags,
		placement:   placement,
		mutex:       utils.OptionalMutex{UseMutex: useMutex},
	}

	callbacks := &memoryCallbacks{
		Callbacks: options.MemoryCallbackOptions,
		Allocator: allocator,
	}

	var err error
	allocator.mapping, err = osmem.NewMapping(mapper, options.MaxBlockCount, callbacks)
	if err != nil {
		return nil, err
	}

	allocator.blocks.Init(logger, allocator.mapping, swiss.NewMap[uintptr, *slotBlock](8))

	logger.Debug("Allocator::New", slog.String("Flags", options.Flags.String()), slog.Bool("Windowed", placement.Bounded()))

	return allocator, nil
}
