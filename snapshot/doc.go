// Package snapshot exports the committed region of an append buffer to a
// blob store and restores it into a new buffer.
//
// A snapshot is two blobs: the data blob, a sequence of independently
// compressed blocks, and name+".manifest", a deterministic CBOR Manifest
// listing the blocks and a keyed BLAKE3 checksum of the uncompressed bytes.
//
//	m, err := snapshot.Export(ctx, buf, store, "daily",
//	    snapshot.WithCompression(snapshot.CompressionZSTD))
//
//	restored, err := snapshot.Restore(ctx, store, "daily", "/data/restored.buf", 64<<20)
//
// Restore verifies the checksum before the target file is created.
package snapshot
