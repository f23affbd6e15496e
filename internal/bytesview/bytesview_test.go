package bytesview

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULEB128(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected uint64
	}{
		{"zero", []byte{0x00}, 0},
		{"127", []byte{0x7F}, 127},
		{"128", []byte{0x80, 0x01}, 128},
		{"max uint64", []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01}, math.MaxUint64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor(New(tt.input, LittleEndian))
			got, err := c.ULEB128()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, len(tt.input), c.Pos())
		})
	}
}

func TestSLEB128(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected int64
	}{
		{"zero", []byte{0x00}, 0},
		{"positive single byte", []byte{0x08}, 8},
		{"positive max single byte", []byte{0x3F}, 63},
		{"negative single byte (-1)", []byte{0x7F}, -1},
		{"negative single byte (-64)", []byte{0x40}, -64},
		{"positive two bytes (128)", []byte{0x80, 0x01}, 128},
		{"negative two bytes (-128)", []byte{0x80, 0x7F}, -128},
		{"large positive value", []byte{0xE5, 0x8E, 0x26}, 624485},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor(New(tt.input, LittleEndian))
			got, err := c.SLEB128()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLEB128RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 1 << 20, math.MaxUint32, math.MaxUint64}
	for _, v := range values {
		enc := EncodeULEB128(nil, v)
		c := NewCursor(New(enc, LittleEndian))
		got, err := c.ULEB128()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	signed := []int64{0, 1, -1, 63, -64, 128, -128, 624485, math.MaxInt32, math.MinInt32}
	for _, v := range signed {
		enc := EncodeSLEB128(nil, v)
		c := NewCursor(New(enc, LittleEndian))
		got, err := c.SLEB128()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestTruncated(t *testing.T) {
	c := NewCursor(New([]byte{0x01}, LittleEndian))
	_, err := c.U32()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestInitialLength(t *testing.T) {
	t.Run("32-bit", func(t *testing.T) {
		c := NewCursor(New([]byte{0x10, 0x00, 0x00, 0x00}, LittleEndian))
		length, is64, err := c.InitialLength()
		require.NoError(t, err)
		assert.Equal(t, uint64(0x10), length)
		assert.False(t, is64)
	})
	t.Run("64-bit", func(t *testing.T) {
		data := []byte{0xff, 0xff, 0xff, 0xff, 0x20, 0, 0, 0, 0, 0, 0, 0}
		c := NewCursor(New(data, LittleEndian))
		length, is64, err := c.InitialLength()
		require.NoError(t, err)
		assert.Equal(t, uint64(0x20), length)
		assert.True(t, is64)
	})
}

func TestCString(t *testing.T) {
	c := NewCursor(New([]byte("exit\x00rest"), LittleEndian))
	s, err := c.CString()
	require.NoError(t, err)
	assert.Equal(t, "exit", s)
	assert.Equal(t, 5, c.Pos())
}
