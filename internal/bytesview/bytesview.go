// Package bytesview provides a bounds-checked, endian-aware cursor over a
// borrowed byte slice. It is the sole place in elfkit that reaches past a
// []byte boundary; every higher package reads through it instead of
// indexing raw slices directly.
package bytesview

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrTruncated is returned (possibly wrapped) whenever a read would run
// past the end of the underlying bytes.
var ErrTruncated = errors.New("bytesview: truncated input")

// Order is the byte order of a View, mirroring the ELF EI_DATA field.
type Order int

const (
	LittleEndian Order = iota
	BigEndian
)

func (o Order) binary() binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// View is an immutable, borrowed span of bytes qualified by byte order and
// (for DWARF callers) an offset size. A View never copies the backing
// array; callers must ensure it outlives every View built from it.
type View struct {
	data       []byte
	order      Order
	addrSize   int // 4 or 8; 0 if not yet known
	offsetSize int // 4 ("32-bit DWARF") or 8 ("64-bit DWARF"); 0 if not yet known
}

// New builds a View over data with the given byte order.
func New(data []byte, order Order) *View {
	return &View{data: data, order: order}
}

// Len returns the number of bytes in the view.
func (v *View) Len() int { return len(v.data) }

// Bytes returns the raw backing slice. Callers must not mutate it.
func (v *View) Bytes() []byte { return v.data }

// Order returns the view's byte order.
func (v *View) Order() Order { return v.order }

// WithAddrSize returns a shallow copy of v that reports addrSize (4 or 8)
// from Cursor.ReadAddr.
func (v *View) WithAddrSize(addrSize int) *View {
	cp := *v
	cp.addrSize = addrSize
	return &cp
}

// WithOffsetSize returns a shallow copy of v tagged with the DWARF offset
// size (4 for 32-bit DWARF, 8 for 64-bit DWARF).
func (v *View) WithOffsetSize(offsetSize int) *View {
	cp := *v
	cp.offsetSize = offsetSize
	return &cp
}

// Slice returns a new View over data[off:off+n], sharing the same order,
// addrSize and offsetSize. It fails if the range is out of bounds.
func (v *View) Slice(off, n int) (*View, error) {
	if off < 0 || n < 0 || off+n < off || off+n > len(v.data) {
		return nil, fmt.Errorf("bytesview: slice [%d:%d] out of range (len=%d): %w", off, off+n, len(v.data), ErrTruncated)
	}
	cp := *v
	cp.data = v.data[off : off+n]
	return &cp, nil
}

// Cursor walks forward through a View, accumulating an offset. Cursors are
// cheap to copy; cloning one lets a caller reparse a subtree on demand
// without disturbing the original's position (DESIGN.md: arena + cursor
// DIE trees, not pointer graphs).
type Cursor struct {
	v   *View
	pos int
}

// NewCursor returns a Cursor positioned at the start of v.
func NewCursor(v *View) *Cursor { return &Cursor{v: v} }

// At returns a Cursor over v positioned at byte offset pos.
func At(v *View, pos int) *Cursor { return &Cursor{v: v, pos: pos} }

// Pos returns the cursor's current byte offset.
func (c *Cursor) Pos() int { return c.pos }

// SeekTo repositions the cursor at an absolute offset.
func (c *Cursor) SeekTo(pos int) { c.pos = pos }

// View returns the underlying view the cursor reads from.
func (c *Cursor) View() *View { return c.v }

// Remaining reports how many bytes are left to read.
func (c *Cursor) Remaining() int { return len(c.v.data) - c.pos }

// Clone returns an independent copy of the cursor at the same position.
func (c *Cursor) Clone() *Cursor { return &Cursor{v: c.v, pos: c.pos} }

func (c *Cursor) need(n int) error {
	if n < 0 || c.pos+n < c.pos || c.pos+n > len(c.v.data) {
		return fmt.Errorf("bytesview: need %d bytes at offset %d (len=%d): %w", n, c.pos, len(c.v.data), ErrTruncated)
	}
	return nil
}

// U8 reads one byte and advances the cursor.
func (c *Cursor) U8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.v.data[c.pos]
	c.pos++
	return b, nil
}

// U16 reads a 2-byte unsigned integer in the view's byte order.
func (c *Cursor) U16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	x := c.v.order.binary().Uint16(c.v.data[c.pos:])
	c.pos += 2
	return x, nil
}

// U32 reads a 4-byte unsigned integer in the view's byte order.
func (c *Cursor) U32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	x := c.v.order.binary().Uint32(c.v.data[c.pos:])
	c.pos += 4
	return x, nil
}

// U64 reads an 8-byte unsigned integer in the view's byte order.
func (c *Cursor) U64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	x := c.v.order.binary().Uint64(c.v.data[c.pos:])
	c.pos += 8
	return x, nil
}

// I16 reads a signed 2-byte integer.
func (c *Cursor) I16() (int16, error) {
	x, err := c.U16()
	return int16(x), err
}

// I32 reads a signed 4-byte integer.
func (c *Cursor) I32() (int32, error) {
	x, err := c.U32()
	return int32(x), err
}

// I64 reads a signed 8-byte integer.
func (c *Cursor) I64() (int64, error) {
	x, err := c.U64()
	return int64(x), err
}

// Bytes reads n raw bytes without interpretation.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.v.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadAddr reads an address-sized value (4 or 8 bytes, per the view's
// addrSize, set via WithAddrSize) as a uint64.
func (c *Cursor) ReadAddr() (uint64, error) {
	switch c.v.addrSize {
	case 4:
		x, err := c.U32()
		return uint64(x), err
	case 8:
		return c.U64()
	default:
		return 0, fmt.Errorf("bytesview: address size not set on view")
	}
}

// ReadOffset reads a section-offset-sized value (4 or 8 bytes, per the
// view's DWARF offset size) as a uint64.
func (c *Cursor) ReadOffset() (uint64, error) {
	switch c.v.offsetSize {
	case 4:
		x, err := c.U32()
		return uint64(x), err
	case 8:
		return c.U64()
	default:
		return 0, fmt.Errorf("bytesview: offset size not set on view")
	}
}

// CString reads bytes up to (and consuming) a NUL terminator, returning the
// string without the terminator.
func (c *Cursor) CString() (string, error) {
	start := c.pos
	for {
		if c.pos >= len(c.v.data) {
			return "", fmt.Errorf("bytesview: unterminated string starting at %d: %w", start, ErrTruncated)
		}
		if c.v.data[c.pos] == 0 {
			s := string(c.v.data[start:c.pos])
			c.pos++
			return s, nil
		}
		c.pos++
	}
}

// ULEB128 decodes an unsigned LEB128 integer. Per DESIGN.md/spec.md §9, on
// truncated input this returns math.MaxUint64 as a sentinel alongside the
// error, preserving the source's "exhausted input yields a max value"
// contract for callers that only check the error.
func (c *Cursor) ULEB128() (uint64, error) {
	var result uint64
	var shift uint
	for {
		if c.pos >= len(c.v.data) {
			return math.MaxUint64, fmt.Errorf("bytesview: truncated uleb128 at %d: %w", c.pos, ErrTruncated)
		}
		b := c.v.data[c.pos]
		c.pos++
		if shift < 64 {
			result |= uint64(b&0x7f) << shift
		}
		shift += 7
		if b&0x80 == 0 {
			return result, nil
		}
	}
}

// SLEB128 decodes a signed LEB128 integer, with the same truncated-input
// sentinel convention as ULEB128 (returns math.MinInt64).
func (c *Cursor) SLEB128() (int64, error) {
	var result int64
	var shift uint
	var b byte
	for {
		if c.pos >= len(c.v.data) {
			return math.MinInt64, fmt.Errorf("bytesview: truncated sleb128 at %d: %w", c.pos, ErrTruncated)
		}
		b = c.v.data[c.pos]
		c.pos++
		if shift < 64 {
			result |= int64(b&0x7f) << shift
		}
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
}

// InitialLength reads a DWARF "initial length" field: a 4-byte value that,
// if equal to 0xffffffff, is followed by the real 8-byte length (64-bit
// DWARF); otherwise the 4-byte value is the length (32-bit DWARF). It
// returns the length and whether the 64-bit form was used.
func (c *Cursor) InitialLength() (length uint64, is64Bit bool, err error) {
	first, err := c.U32()
	if err != nil {
		return 0, false, err
	}
	if first == 0xffffffff {
		l, err := c.U64()
		if err != nil {
			return 0, false, err
		}
		return l, true, nil
	}
	if first >= 0xfffffff0 {
		return 0, false, fmt.Errorf("bytesview: reserved initial-length value 0x%x", first)
	}
	return uint64(first), false, nil
}

// EncodeULEB128 appends the ULEB128 encoding of x to dst and returns it.
// Its callers are the tests, which use it to build DWARF fixtures.
func EncodeULEB128(dst []byte, x uint64) []byte {
	for {
		b := byte(x & 0x7f)
		x >>= 7
		if x != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if x == 0 {
			return dst
		}
	}
}

// EncodeSLEB128 appends the SLEB128 encoding of x to dst and returns it.
func EncodeSLEB128(dst []byte, x int64) []byte {
	for {
		b := byte(x & 0x7f)
		x >>= 7
		signBitSet := b&0x40 != 0
		if (x == 0 && !signBitSet) || (x == -1 && signBitSet) {
			dst = append(dst, b)
			return dst
		}
		dst = append(dst, b|0x80)
	}
}
