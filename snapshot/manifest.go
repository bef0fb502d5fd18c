package snapshot

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ManifestVersion is the manifest format written by Export.
const ManifestVersion = 1

// ManifestSuffix is appended to a snapshot name to form its manifest blob name.
const ManifestSuffix = ".manifest"

// Manifest describes an exported snapshot. It is stored as deterministic
// CBOR next to the data blob.
type Manifest struct {
	Version      int         `cbor:"1,keyasint"`
	Compression  Compression `cbor:"2,keyasint"`
	BlockSize    int64       `cbor:"3,keyasint"`
	AppendOffset int64       `cbor:"4,keyasint"`
	DataLength   int64       `cbor:"5,keyasint"`
	Checksum     Checksum    `cbor:"6,keyasint"`
	Blocks       []BlockInfo `cbor:"7,keyasint"`
}

// BlockInfo locates one block inside the data blob.
type BlockInfo struct {
	Offset     int64 `cbor:"1,keyasint"` // position in the data blob
	Length     int64 `cbor:"2,keyasint"` // stored length
	RawLength  int64 `cbor:"3,keyasint"` // uncompressed length
	Compressed bool  `cbor:"4,keyasint"`
}

// encMode uses Core Deterministic Encoding so identical snapshots produce
// identical manifests.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}
}

// MarshalManifest encodes m as CBOR.
func MarshalManifest(m *Manifest) ([]byte, error) {
	return encMode.Marshal(m)
}

// UnmarshalManifest decodes and validates a manifest.
func UnmarshalManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that the blocks tile the data exactly.
func (m *Manifest) Validate() error {
	var errs []error
	if m.Version != ManifestVersion {
		errs = append(errs, fmt.Errorf("unsupported version %d", m.Version))
	}
	if m.Compression > CompressionZSTD {
		errs = append(errs, fmt.Errorf("unknown compression %d", m.Compression))
	}
	if m.DataLength < 0 || m.AppendOffset < 0 {
		errs = append(errs, fmt.Errorf("negative length"))
	}
	if m.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("block size %d", m.BlockSize))
	}

	var raw, stored int64
	for i, b := range m.Blocks {
		if b.Offset != stored || b.Length < 0 || b.RawLength <= 0 {
			errs = append(errs, fmt.Errorf("block %d out of sequence", i))
			break
		}
		if b.RawLength > m.BlockSize {
			errs = append(errs, fmt.Errorf("block %d: %d raw bytes exceed block size %d", i, b.RawLength, m.BlockSize))
		}
		if !b.Compressed && b.Length != b.RawLength {
			errs = append(errs, fmt.Errorf("block %d: raw length mismatch", i))
		}
		raw += b.RawLength
		stored += b.Length
	}
	if raw != m.DataLength {
		errs = append(errs, fmt.Errorf("blocks cover %d bytes, want %d", raw, m.DataLength))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, errors.Join(errs...))
	}
	return nil
}

// StoredLength is the size of the data blob.
func (m *Manifest) StoredLength() int64 {
	var n int64
	for _, b := range m.Blocks {
		n += b.Length
	}
	return n
}
