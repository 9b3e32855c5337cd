package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Descriptor errors
	ErrInvalidMetadata = errors.New("invalid metadata")
	ErrFileNotTracked  = errors.New("file is not tracked")

	// Transfer errors
	ErrChunkCorrupted   = errors.New("chunk integrity check failed")
	ErrChunkRefused     = errors.New("peer refused chunk request")
	ErrChunkNotFound    = errors.New("chunk not found")
	ErrNoPeersAvailable = errors.New("no peers available for download")

	// Wire errors
	ErrHeaderTooLarge = errors.New("invalid header")
	ErrShortPayload   = errors.New("short chunk payload")

	// Tracker errors
	ErrTrackerUnavailable = errors.New("tracker is unreachable")
	ErrFileNotFound       = errors.New("file not found")
)
