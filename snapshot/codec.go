package snapshot

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the block compression algorithm.
type Compression uint8

const (
	// CompressionNone stores blocks as-is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio, slower).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// UnmarshalText parses "none", "lz4" or "zstd".
func (c *Compression) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "none", "":
		*c = CompressionNone
	case "lz4":
		*c = CompressionLZ4
	case "zstd":
		*c = CompressionZSTD
	default:
		return fmt.Errorf("snapshot: unknown compression %q", text)
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (c Compression) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

var errSizeMismatch = errors.New("snapshot: decompressed size mismatch")

// ZSTD encoder/decoder pools
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// compressBlock compresses data with c. The second result is false when the
// block is stored raw because compression did not save at least 10%.
func compressBlock(data []byte, c Compression) ([]byte, bool, error) {
	if c == CompressionNone || len(data) == 0 {
		return data, false, nil
	}

	var compressed []byte
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, false, err
		}
		compressed = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, false, fmt.Errorf("snapshot: unknown compression %d", c)
	}

	// n == 0 means lz4 found the block incompressible.
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		return data, false, nil
	}
	return compressed, true, nil
}

// decompressBlock decodes a stored block into dst, which must have exactly
// the uncompressed length.
func decompressBlock(dst, stored []byte, compressed bool, c Compression) error {
	if !compressed {
		if len(stored) != len(dst) {
			return errSizeMismatch
		}
		copy(dst, stored)
		return nil
	}

	switch c {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(stored, dst)
		if err != nil {
			return err
		}
		if n != len(dst) {
			return errSizeMismatch
		}
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		decoded, err := dec.DecodeAll(stored, dst[:0])
		if err != nil {
			return err
		}
		if len(decoded) != len(dst) {
			return errSizeMismatch
		}
	default:
		return fmt.Errorf("snapshot: unknown compression %d", c)
	}
	return nil
}
