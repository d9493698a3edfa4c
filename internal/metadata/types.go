package metadata

import "errors"

// Errors returned by the Metadata Store. Callers map these to HTTP status
// codes at the API boundary rather than inspecting gorm errors directly.
var (
	// ErrSessionNotFound indicates the upload session does not exist.
	ErrSessionNotFound = errors.New("upload session not found")

	// ErrChunkOutOfOrder indicates a chunk arrived with an index that does
	// not match the session's expected received_chunks pointer, or the
	// session was no longer in a mutable status when the update ran.
	ErrChunkOutOfOrder = errors.New("chunk index out of order")

	// ErrSessionNotMutable indicates an operation that mutates session
	// state was attempted against a session in a terminal status.
	ErrSessionNotMutable = errors.New("upload session is not in a mutable state")

	// ErrFileNotFound indicates the finalized file record does not exist.
	ErrFileNotFound = errors.New("file record not found")
)
