package compress

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Kind
	}{
		{"gzip", []byte{0x1F, 0x8B, 0x08, 0x00}, KindGzip},
		{"bzip2", []byte("BZh91AY"), KindBzip2},
		{"xz", []byte{0xFD, '7', 'z', 'X', 'Z', 0x00, 0x00}, KindXZ},
		{"raw lzma", []byte{0x5D, 0x00, 0x00, 0x01}, KindRawLZMA},
		{"not compressed", []byte{0x7f, 'E', 'L', 'F'}, KindNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sniff(tt.data))
		})
	}
}

func TestDecompressGzipRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte("hello debug info"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	out, err := Decompress(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "hello debug info", string(out))
}

func TestDecompressNotCompressed(t *testing.T) {
	_, err := Decompress([]byte{0x7f, 'E', 'L', 'F'})
	require.ErrorIs(t, err, ErrNotCompressed)
}
