package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest() *Manifest {
	return &Manifest{
		Version:      ManifestVersion,
		Compression:  CompressionLZ4,
		BlockSize:    8,
		AppendOffset: 16 + 12,
		DataLength:   12,
		Checksum:     Sum([]byte("hello world!")),
		Blocks: []BlockInfo{
			{Offset: 0, Length: 8, RawLength: 8},
			{Offset: 8, Length: 3, RawLength: 4, Compressed: true},
		},
	}
}

func TestManifest_Encoding(t *testing.T) {
	m := testManifest()

	a, err := MarshalManifest(m)
	require.NoError(t, err)
	b, err := MarshalManifest(testManifest())
	require.NoError(t, err)
	assert.Equal(t, a, b, "encoding must be deterministic")

	got, err := UnmarshalManifest(a)
	require.NoError(t, err)
	assert.Equal(t, m, got)
	assert.Equal(t, int64(11), got.StoredLength())
}

func TestManifest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Manifest)
	}{
		{"version", func(m *Manifest) { m.Version = 99 }},
		{"compression", func(m *Manifest) { m.Compression = 7 }},
		{"gap", func(m *Manifest) { m.Blocks[1].Offset = 9 }},
		{"raw length", func(m *Manifest) { m.Blocks[0].Length = 7 }},
		{"coverage", func(m *Manifest) { m.DataLength = 13 }},
		{"empty block", func(m *Manifest) { m.Blocks[1].RawLength = 0 }},
		{"block size", func(m *Manifest) { m.BlockSize = 0 }},
		{"oversized block", func(m *Manifest) {
			m.Blocks[1].RawLength = 1 << 40
			m.DataLength = 8 + 1<<40
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testManifest()
			tt.mutate(m)
			assert.ErrorIs(t, m.Validate(), ErrInvalidManifest)
		})
	}

	assert.NoError(t, testManifest().Validate())
}

func TestUnmarshalManifest_Garbage(t *testing.T) {
	_, err := UnmarshalManifest([]byte{0xff, 0x00})
	assert.ErrorIs(t, err, ErrInvalidManifest)
}
