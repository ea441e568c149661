package atombase

import "errors"

// Sentinel errors surfaced at the FFI boundary (§7), matching the teacher's
// plain-sentinel style (e.g. backend.ErrMetaDoesNotExist) rather than a
// custom error-code enum.
var (
	// ErrMissingCollection is returned when a query or insert names a
	// collection that was never created.
	ErrMissingCollection = errors.New("atombase: missing collection")

	// ErrReleaseBuffer is returned when release_insert_buffer's pointer was
	// not issued by any bin in the named collection. The buffer it pointed
	// to remains permanently Acquired-but-never-Active; this is documented,
	// not treated as fatal (§7 "Reported; buffer leaks (documented)").
	ErrReleaseBuffer = errors.New("atombase: release: pointer not found in collection")

	// ErrNotInitialized names the state of the package-level singleton
	// before Initialize has run. No function in this package returns it: the
	// Engine methods work on whichever Engine they are called on.
	ErrNotInitialized = errors.New("atombase: engine not initialized")

	// ErrAlreadyInitialized guards Initialize against being called twice
	// (§9 "a process-wide handle initialized exactly once").
	ErrAlreadyInitialized = errors.New("atombase: engine already initialized")
)
