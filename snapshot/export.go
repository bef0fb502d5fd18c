package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/mmapappend"
	"github.com/hupe1980/mmapappend/blobstore"
	"github.com/hupe1980/mmapappend/internal/resource"
)

type aborter interface {
	Abort() error
}

// Export writes the committed bytes of buf to store as name, plus a
// manifest named name+ManifestSuffix.
//
// The append offset is observed once; appends that land while Export runs
// are not included. Unless WithOverwrite is given, Export fails with an error
// matching blobstore.ErrConflict when the snapshot already exists.
func Export(ctx context.Context, buf *mmapappend.AppendBuffer, store blobstore.BlobStore, name string, opts ...Option) (*Manifest, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if buf.Closed() {
		return nil, mmapappend.ErrClosed
	}
	start := time.Now()

	manifestName := name + ManifestSuffix
	if !o.overwrite {
		if err := checkAbsent(ctx, store, manifestName); err != nil {
			return nil, err
		}
	}

	data := buf.Committed()
	m := &Manifest{
		Version:      ManifestVersion,
		Compression:  o.compression,
		BlockSize:    int64(o.blockSize),
		AppendOffset: mmapappend.HeaderSize + int64(len(data)),
		DataLength:   int64(len(data)),
		Checksum:     Sum(data),
	}

	blocks, err := compressBlocks(ctx, data, o)
	if err != nil {
		return nil, err
	}

	var off int64
	for i, blk := range blocks {
		end := min((i+1)*o.blockSize, len(data))
		m.Blocks = append(m.Blocks, BlockInfo{
			Offset:     off,
			Length:     int64(len(blk.data)),
			RawLength:  int64(end - i*o.blockSize),
			Compressed: blk.compressed,
		})
		off += int64(len(blk.data))
	}

	if err := writeData(ctx, store, name, blocks, o.controller); err != nil {
		return nil, fmt.Errorf("snapshot: write %s: %w", name, err)
	}

	encoded, err := MarshalManifest(m)
	if err != nil {
		return nil, err
	}
	if err := putManifest(ctx, store, manifestName, encoded, o.overwrite); err != nil {
		return nil, err
	}

	o.logger.InfoContext(ctx, "snapshot exported",
		"name", name,
		"append_offset", m.AppendOffset,
		"bytes", m.DataLength,
		"stored_bytes", off,
		"blocks", len(m.Blocks),
		"compression", o.compression.String(),
		"duration", time.Since(start),
	)
	return m, nil
}

func checkAbsent(ctx context.Context, store blobstore.BlobStore, name string) error {
	b, err := store.Open(ctx, name)
	if err == nil {
		_ = b.Close()
		return fmt.Errorf("snapshot: %s: %w", name, blobstore.ErrConflict)
	}
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil
	}
	return err
}

type block struct {
	data       []byte
	compressed bool
}

func compressBlocks(ctx context.Context, data []byte, o options) ([]block, error) {
	n := (len(data) + o.blockSize - 1) / o.blockSize
	blocks := make([]block, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			raw := data[i*o.blockSize : min((i+1)*o.blockSize, len(data))]
			out, compressed, err := compressBlock(raw, o.compression)
			if err != nil {
				return fmt.Errorf("snapshot: compress block %d: %w", i, err)
			}
			blocks[i] = block{data: out, compressed: compressed}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}

func writeData(ctx context.Context, store blobstore.BlobStore, name string, blocks []block, rc *mmapappend.ResourceController) error {
	w, err := store.Create(ctx, name)
	if err != nil {
		return err
	}
	var out io.Writer = w
	if rc != nil {
		out = resource.NewRateLimitedWriter(ctx, w, rc)
	}
	for _, blk := range blocks {
		if _, err := out.Write(blk.data); err != nil {
			if a, ok := w.(aborter); ok {
				_ = a.Abort()
			} else {
				_ = w.Close()
			}
			return err
		}
	}
	if err := w.Sync(); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func putManifest(ctx context.Context, store blobstore.BlobStore, name string, data []byte, overwrite bool) error {
	if cp, ok := store.(blobstore.ConditionalPutter); ok && !overwrite {
		if err := cp.PutIfNotExists(ctx, name, data); err != nil {
			return fmt.Errorf("snapshot: %s: %w", name, err)
		}
		return nil
	}
	return store.Put(ctx, name, data)
}
