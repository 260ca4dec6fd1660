package driver

import "errors"

// ErrDriverNotInitialized is the sentinel for a driver used before
// InitDriverLoop has completed successfully. LocalDriver and journal.Driver
// do not return it: neither checks for a completed init before sending.
var ErrDriverNotInitialized = errors.New("driver: not initialized")

// ErrDriverAlreadyStopped is the sentinel for a driver that is already torn
// down. LocalDriver and journal.Driver do not return it: their
// CleanDriverLoop is idempotent and always returns nil.
var ErrDriverAlreadyStopped = errors.New("driver: already stopped")
