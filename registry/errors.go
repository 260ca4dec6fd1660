package registry

import "errors"

var (
	// ErrDriverNotInitialized is returned by operations that require
	// Initialize to have completed successfully first.
	ErrDriverNotInitialized = errors.New("registry: driver not initialized")
	// ErrAlreadyWatching is returned by NatsDriver.Watch when called more
	// than once on the same driver instance.
	ErrAlreadyWatching = errors.New("registry: already watching")
	// ErrGateNotFound is the sentinel for a routing-table miss.
	// RoutingTable.Lookup reports a miss through its bool result and does
	// not return it.
	ErrGateNotFound = errors.New("registry: gate not found")
)
