package vmem

import "github.com/cockroachdb/errors"

var (
	// ErrAddressUnavailable marks a reservation that failed because the requested address is in use
	// or cannot be mapped; another address may succeed
	ErrAddressUnavailable = errors.New("vmem: address unavailable")
	// ErrNoSpace marks a reservation that failed because the system is out of memory or commit charge
	ErrNoSpace = errors.New("vmem: out of memory")
	// ErrAccessDenied marks an operation the system refused for permission reasons
	ErrAccessDenied = errors.New("vmem: access denied")
	// ErrQueryFailed marks a region query the system could not answer
	ErrQueryFailed = errors.New("vmem: region query failed")
	// ErrUnsupported is returned by every operation on platforms without a backend
	ErrUnsupported = errors.New("vmem: unsupported platform")
)
