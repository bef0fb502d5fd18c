package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/mmapappend"
	"github.com/hupe1980/mmapappend/blobstore"
)

// ReadManifest loads and validates the manifest of snapshot name.
func ReadManifest(ctx context.Context, store blobstore.BlobStore, name string) (*Manifest, error) {
	data, err := blobstore.Get(ctx, store, name+ManifestSuffix)
	if err != nil {
		return nil, err
	}
	return UnmarshalManifest(data)
}

// Load reads snapshot name and returns its verified committed bytes.
func Load(ctx context.Context, store blobstore.BlobStore, name string, opts ...Option) ([]byte, *Manifest, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	m, err := ReadManifest(ctx, store, name)
	if err != nil {
		return nil, nil, err
	}
	data, err := load(ctx, store, name, m, o.workers, o.maxData)
	if err != nil {
		return nil, nil, err
	}
	return data, m, nil
}

// load reads and verifies the data blob. It refuses manifests describing more
// than limit bytes before allocating.
func load(ctx context.Context, store blobstore.BlobStore, name string, m *Manifest, workers int, limit int64) ([]byte, error) {
	if m.DataLength > limit {
		return nil, fmt.Errorf("%w: %s holds %d bytes, limit %d", ErrTooLarge, name, m.DataLength, limit)
	}

	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = blob.Close() }()

	if blob.Size() != m.StoredLength() {
		return nil, fmt.Errorf("%w: data blob is %d bytes, manifest expects %d",
			ErrInvalidManifest, blob.Size(), m.StoredLength())
	}

	out := make([]byte, m.DataLength)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var rawOff int64
	for i, bi := range m.Blocks {
		dst := out[rawOff : rawOff+bi.RawLength]
		rawOff += bi.RawLength

		g.Go(func() error {
			stored := make([]byte, bi.Length)
			n, err := blob.ReadAt(gctx, stored, bi.Offset)
			if err != nil && !(errors.Is(err, io.EOF) && n == len(stored)) {
				return fmt.Errorf("snapshot: read block %d: %w", i, err)
			}
			if err := decompressBlock(dst, stored, bi.Compressed, m.Compression); err != nil {
				return fmt.Errorf("snapshot: decompress block %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if sum := Sum(out); sum != m.Checksum {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, sum, m.Checksum)
	}
	return out, nil
}

// Restore creates a new buffer of size bytes at path holding the committed
// bytes of snapshot name, appended in a single append and flushed.
//
// The snapshot is verified before path is touched. If size cannot hold the
// data the error matches mmapappend.ErrCapacityExceeded.
func Restore(ctx context.Context, store blobstore.BlobStore, name, path string, size int64, opts ...Option) (*mmapappend.AppendBuffer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	start := time.Now()

	m, err := ReadManifest(ctx, store, name)
	if err != nil {
		return nil, err
	}
	if available := size - mmapappend.HeaderSize; m.DataLength > available {
		return nil, &mmapappend.CapacityError{
			Offset:    mmapappend.HeaderSize,
			Requested: m.DataLength,
			Available: max(available, 0),
		}
	}

	data, err := load(ctx, store, name, m, o.workers, size-mmapappend.HeaderSize)
	if err != nil {
		return nil, err
	}

	buf, err := mmapappend.Create(path, size, o.bufferOpts...)
	if err != nil {
		return nil, err
	}
	if err := fill(ctx, buf, data); err != nil {
		_ = buf.Close()
		_ = os.Remove(path)
		return nil, err
	}

	o.logger.InfoContext(ctx, "snapshot restored",
		"name", name,
		"path", path,
		"append_offset", m.AppendOffset,
		"bytes", m.DataLength,
		"duration", time.Since(start),
	)
	return buf, nil
}

func fill(ctx context.Context, buf *mmapappend.AppendBuffer, data []byte) error {
	if len(data) > 0 {
		if _, err := buf.AppendContext(ctx, data); err != nil {
			return err
		}
	}
	return buf.Flush()
}
