// Grounded on actor/errors.go: a flat set of sentinel errors used across
// the package so callers can errors.Is against stable values instead of
// matching on strings.
package reactor

import "errors"

var (
	// ErrDuplicateReactorID is returned by SpawnChild when the system
	// already has a registered reactor with the same reactor id (spec.md
	// §3 uniqueness invariant).
	ErrDuplicateReactorID = errors.New("reactor: duplicate reactor id")
	// ErrReactorNotFound is returned when a reactor id does not resolve
	// in the system's arena.
	ErrReactorNotFound = errors.New("reactor: not found")
	// ErrSystemShuttingDown is returned for new sends once the owning
	// system has begun shutdown.
	ErrSystemShuttingDown = errors.New("reactor: system is shutting down")
	// ErrMailboxDisposed is the sentinel for a context whose mailbox has
	// already been disposed (post-termination). Mailbox methods report only
	// a DeliveryStatus, so no code in this package returns it.
	ErrMailboxDisposed = errors.New("reactor: mailbox disposed")
	// ErrNameRequired is returned when a reactor is spawned without a
	// human-readable name.
	ErrNameRequired = errors.New("reactor: name is required")
	// ErrAlreadyStopping is returned by Stop when called more than once
	// on the same context.
	ErrAlreadyStopping = errors.New("reactor: already stopping")
)
