package snapshot

import "errors"

var (
	// ErrChecksumMismatch is returned by Restore when the restored bytes do
	// not match the manifest checksum.
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	// ErrInvalidManifest is returned when a manifest cannot be decoded or
	// does not describe its data blob.
	ErrInvalidManifest = errors.New("snapshot: invalid manifest")
	// ErrTooLarge is returned by Load when a manifest describes more data
	// than the configured limit.
	ErrTooLarge = errors.New("snapshot: data exceeds limit")
)
