package dwarf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manu343726/elfkit/internal/bytesview"
)

// buildAbbrevTable encodes: code 1 = DW_TAG_compile_unit, children=yes,
// attrs (DW_AT_name, DW_FORM_strp); code 2 = DW_TAG_subprogram, no
// children, attrs (DW_AT_name, DW_FORM_string).
func buildAbbrevTable() []byte {
	var b []byte
	b = bytesview.EncodeULEB128(b, 1)
	b = bytesview.EncodeULEB128(b, uint64(TagCompileUnit))
	b = append(b, 1) // has children
	b = bytesview.EncodeULEB128(b, uint64(AttrName))
	b = bytesview.EncodeULEB128(b, uint64(FormStrp))
	b = append(b, 0, 0) // terminator

	b = bytesview.EncodeULEB128(b, 2)
	b = bytesview.EncodeULEB128(b, uint64(TagSubprogram))
	b = append(b, 0) // no children
	b = bytesview.EncodeULEB128(b, uint64(AttrName))
	b = bytesview.EncodeULEB128(b, uint64(FormString))
	b = append(b, 0, 0)

	b = bytesview.EncodeULEB128(b, 0) // table terminator
	return b
}

// buildCU encodes a DWARF4 CU: header + root compile_unit DIE (name=strp
// offset 0 into .debug_str) with one subprogram child DIE (name="main"),
// then a single null terminator ending the root's children.
func buildCU() []byte {
	var body []byte
	// root DIE: code 1, DW_FORM_strp (4-byte offset into .debug_str) = 0
	body = bytesview.EncodeULEB128(body, 1)
	body = append(body, 0, 0, 0, 0) // strp offset 0 ("hello.c")

	// child DIE: code 2, DW_FORM_string inline "main\0"
	body = bytesview.EncodeULEB128(body, 2)
	body = append(body, "main\x00"...)

	body = append(body, 0) // end of root's children
	// no second terminator: root itself isn't nested under anything

	header := []byte{}
	header = append(header, 0, 0, 0, 0) // placeholder length, patched below
	header = append(header, 4, 0)       // version 4 (LE u16)
	header = append(header, 0, 0, 0, 0) // abbrev_offset = 0
	header = append(header, 8)          // address_size = 8

	full := append(header, body...)
	length := uint32(len(full) - 4)
	full[0] = byte(length)
	full[1] = byte(length >> 8)
	full[2] = byte(length >> 16)
	full[3] = byte(length >> 24)
	return full
}

func TestReadDIETreeMinimalCU(t *testing.T) {
	abbrevBytes := buildAbbrevTable()
	cuBytes := buildCU()
	str := []byte("hello.c\x00")

	sec := Sections{
		Info:   bytesview.New(cuBytes, bytesview.LittleEndian),
		Abbrev: bytesview.New(abbrevBytes, bytesview.LittleEndian),
		Str:    bytesview.New(str, bytesview.LittleEndian),
	}
	d := New(sec)

	var units []Unit
	err := d.ScanUnits(func(u Unit) error {
		units = append(units, u)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, units, 1)

	u := units[0]
	assert.Equal(t, uint16(4), u.Version)
	assert.False(t, u.Is64Bit)
	assert.Equal(t, 8, u.AddrSize)

	root, err := d.ReadDIETree(u)
	require.NoError(t, err)
	assert.Equal(t, TagCompileUnit, root.Tag)
	require.Len(t, root.Children, 1)

	nameVal, ok := root.Attr(AttrName)
	require.True(t, ok)
	assert.Equal(t, KindSecOffset, nameVal.Kind)
	name, err := ResolveSecOffsetString(sec.Str, nameVal.Uint)
	require.NoError(t, err)
	assert.Equal(t, "hello.c", name)

	child := root.Children[0]
	assert.Equal(t, TagSubprogram, child.Tag)
	childName, ok := child.Attr(AttrName)
	require.True(t, ok)
	assert.Equal(t, "main", childName.Str)
}

func TestDecodeExprSimple(t *testing.T) {
	// DW_OP_fbreg -16 (0x91, SLEB128 -16 = 0x70)
	data := []byte{0x91, 0x70}
	ops, err := DecodeExpr(data, bytesview.LittleEndian, 8, 4)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.EqualValues(t, byte(0x91), ops[0].Opcode)
	assert.EqualValues(t, uint64(0xfffffffffffffff0), ops[0].Operands[0]) // -16 as uint64
}

func TestLegacyRangeList(t *testing.T) {
	// (0x10, 0x20), then (0,0) terminator, 8-byte addresses.
	var buf []byte
	put8 := func(x uint64) {
		for i := 0; i < 8; i++ {
			buf = append(buf, byte(x>>(8*i)))
		}
	}
	put8(0x10)
	put8(0x20)
	put8(0)
	put8(0)

	v := bytesview.New(buf, bytesview.LittleEndian)
	ranges, err := RangeList(v, 0, 8, 0x1000)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, Range{Low: 0x1010, High: 0x1020}, ranges[0])
}

// buildRnglistsV5 encodes a single-CU .debug_rnglists unit header
// (version 5, address_size 8, segment_selector_size 0,
// offset_entry_count 0 — no offset array, so rnglistx forms are never
// in play) followed by one DW_RLE_start_length entry and the list
// terminator, per spec.md §8's S5 scenario.
func buildRnglistsV5() []byte {
	var body []byte
	body = append(body, 5, 0) // version 5 (LE u16)
	body = append(body, 8)    // address_size
	body = append(body, 0)    // segment_selector_size
	body = append(body, 0, 0, 0, 0) // offset_entry_count = 0

	body = append(body, 0x07) // DW_RLE_start_length
	for i := 0; i < 8; i++ {
		body = append(body, byte(0x400000>>(8*i)))
	}
	body = bytesview.EncodeULEB128(body, 0x20)
	body = append(body, rleEndOfList)

	length := uint32(len(body))
	header := []byte{byte(length), byte(length >> 8), byte(length >> 16), byte(length >> 24)}
	return append(header, body...)
}

func TestRnglistsV5StartLength(t *testing.T) {
	v := bytesview.New(buildRnglistsV5(), bytesview.LittleEndian)

	hdr, err := parseListsHeader(v, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(5), hdr.Version)
	assert.Equal(t, uint8(8), hdr.AddressSize)
	assert.Equal(t, uint32(0), hdr.OffsetEntryCount)

	entries, err := RngListsAt(v.WithAddrSize(int(hdr.AddressSize)), hdr.headerEnd)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, byte(rleStartLength), entries[0].Kind)
	assert.Equal(t, byte(rleEndOfList), entries[1].Kind)

	d := New(Sections{Info: v, Abbrev: v})
	ranges, err := d.ResolveRnglists(CUContext{}, entries, 8)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, Range{Low: 0x400000, High: 0x400020}, ranges[0])
}
