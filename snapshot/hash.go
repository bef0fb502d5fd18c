package snapshot

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Checksum is a keyed BLAKE3 digest of the committed bytes.
type Checksum [32]byte

func (c Checksum) String() string {
	return hex.EncodeToString(c[:])
}

// checksumKey separates snapshot digests from any other BLAKE3 use of the
// same bytes. Changing it invalidates every existing manifest.
var checksumKey = [32]byte{
	'm', 'm', 'a', 'p', 'a', 'p', 'p', 'e', 'n', 'd', '.', 's', 'n', 'a', 'p', 's',
	'h', 'o', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

func newHasher() *blake3.Hasher {
	h, err := blake3.NewKeyed(checksumKey[:])
	if err != nil {
		panic("snapshot: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return h
}

// Sum returns the snapshot checksum of data.
func Sum(data []byte) Checksum {
	h := newHasher()
	_, _ = h.Write(data)
	var sum Checksum
	copy(sum[:], h.Sum(nil))
	return sum
}
