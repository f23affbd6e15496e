package dwarf

import (
	"fmt"
	"math"

	"github.com/Manu343726/elfkit/internal/bytesview"
)

// Range is one resolved [Low, High) program-counter interval, with
// BaseAddress already folded in.
type Range struct {
	Low, High uint64
}

// DWARF5 rnglists/loclists entry kinds, numbered as the DW_LLE_* codes.
// The DW_RLE_* codes agree with them up to offset_pair; .debug_rnglists has
// no default_location entry, so its base_address, start_end and
// start_length codes (5, 6, 7) are one lower, and decodeListsEntries maps
// them onto these constants.
const (
	rleEndOfList     = 0x00
	rleBaseAddressx  = 0x01
	rleStartxEndx    = 0x02
	rleStartxLength  = 0x03
	rleOffsetPair    = 0x04
	rleDefaultLoc    = 0x05
	rleBaseAddress   = 0x06
	rleStartEnd      = 0x07
	rleStartLength   = 0x08
)

// legacyMaxAddr is the all-ones sentinel (DWARF ≤4's "largest representable
// address offset") marking a base-address-selection entry in
// .debug_ranges/.debug_loc.
func legacyMaxAddr(addrSize int) uint64 {
	if addrSize == 4 {
		return 0xffffffff
	}
	return math.MaxUint64
}

// RangeList walks a legacy (.debug_ranges) list starting at byte offset
// off, resolving base-address entries against cuBase (the CU's low_pc,
// used when no (MAX, base) selector entry is seen first).
func RangeList(v *bytesview.View, off int, addrSize int, cuBase uint64) ([]Range, error) {
	cur := bytesview.At(v, off)
	base := cuBase
	maxAddr := legacyMaxAddr(addrSize)
	var out []Range
	for {
		first, err := readAddrN(cur, addrSize)
		if err != nil {
			return nil, err
		}
		second, err := readAddrN(cur, addrSize)
		if err != nil {
			return nil, err
		}
		if first == 0 && second == 0 {
			return out, nil
		}
		if first == maxAddr {
			base = second
			continue
		}
		out = append(out, Range{Low: base + first, High: base + second})
	}
}

// LocEntry is one legacy (.debug_loc) location-list entry: an address
// range plus the raw expression bytes active over it.
type LocEntry struct {
	Range
	Expr []byte
}

// LocList walks a legacy .debug_loc list, the same shape as RangeList but
// with a uint16-length expression appended to each (start,end) pair.
func LocList(v *bytesview.View, off int, addrSize int, cuBase uint64) ([]LocEntry, error) {
	cur := bytesview.At(v, off)
	base := cuBase
	maxAddr := legacyMaxAddr(addrSize)
	var out []LocEntry
	for {
		first, err := readAddrN(cur, addrSize)
		if err != nil {
			return nil, err
		}
		second, err := readAddrN(cur, addrSize)
		if err != nil {
			return nil, err
		}
		if first == 0 && second == 0 {
			return out, nil
		}
		if first == maxAddr {
			base = second
			continue
		}
		n, err := cur.U16()
		if err != nil {
			return nil, err
		}
		expr, err := cur.Bytes(int(n))
		if err != nil {
			return nil, err
		}
		out = append(out, LocEntry{Range: Range{Low: base + first, High: base + second}, Expr: expr})
	}
}

// RngListsHeader is a DWARF5 .debug_rnglists/.debug_loclists unit header.
type RngListsHeader struct {
	Length           uint64
	Is64Bit          bool
	Version          uint16
	AddressSize      uint8
	SegmentSize      uint8
	OffsetEntryCount uint32
	Offsets          []uint64 // byte offsets, relative to the first byte after this header
	headerEnd        int
}

func parseListsHeader(v *bytesview.View, off int) (RngListsHeader, error) {
	cur := bytesview.At(v, off)
	length, is64, err := cur.InitialLength()
	if err != nil {
		return RngListsHeader{}, err
	}
	version, err := cur.U16()
	if err != nil {
		return RngListsHeader{}, err
	}
	addrSize, err := cur.U8()
	if err != nil {
		return RngListsHeader{}, err
	}
	segSize, err := cur.U8()
	if err != nil {
		return RngListsHeader{}, err
	}
	count, err := cur.U32()
	if err != nil {
		return RngListsHeader{}, err
	}
	offSize := 4
	if is64 {
		offSize = 8
	}
	offsets := make([]uint64, count)
	for i := range offsets {
		o, err := readOffsetN(cur, offSize)
		if err != nil {
			return RngListsHeader{}, err
		}
		offsets[i] = o
	}
	return RngListsHeader{
		Length: length, Is64Bit: is64, Version: version,
		AddressSize: addrSize, SegmentSize: segSize,
		OffsetEntryCount: count, Offsets: offsets,
		headerEnd: cur.Pos(),
	}, nil
}

// RngListsEntry is one decoded DWARF5 rnglists/loclists entry, before
// indexed operands (startx*, base_addressx) have been resolved against a
// CUContext's addr_base — ResolveRnglists below does that.
type RngListsEntry struct {
	Kind      byte
	Operands  []uint64 // raw encoded operands, kind-dependent count/meaning
	ExprBytes []byte   // loclists only: the location expression for this entry
}

// decodeListsEntries parses the entries starting at cur until end_of_list,
// shared by both .debug_rnglists and .debug_loclists (which additionally
// appends a ULEB-length expression to every non-base/terminator entry).
func decodeListsEntries(cur *bytesview.Cursor, isLocList bool) ([]RngListsEntry, error) {
	var out []RngListsEntry
	for {
		kind, err := cur.U8()
		if err != nil {
			return nil, err
		}
		if !isLocList && kind >= rleDefaultLoc {
			kind++ // DW_RLE_base_address/start_end/start_length are 5/6/7
		}
		e := RngListsEntry{Kind: kind}
		switch kind {
		case rleEndOfList:
			return out, nil
		case rleBaseAddressx, rleDefaultLoc:
			if kind == rleBaseAddressx {
				idx, err := cur.ULEB128()
				if err != nil {
					return nil, err
				}
				e.Operands = []uint64{idx}
			}
		case rleStartxEndx:
			a, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			b, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			e.Operands = []uint64{a, b}
		case rleStartxLength:
			a, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			b, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			e.Operands = []uint64{a, b}
		case rleOffsetPair:
			a, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			b, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			e.Operands = []uint64{a, b}
		case rleBaseAddress:
			a, err := cur.ReadAddr()
			if err != nil {
				return nil, err
			}
			e.Operands = []uint64{a}
		case rleStartEnd:
			a, err := cur.ReadAddr()
			if err != nil {
				return nil, err
			}
			b, err := cur.ReadAddr()
			if err != nil {
				return nil, err
			}
			e.Operands = []uint64{a, b}
		case rleStartLength:
			a, err := cur.ReadAddr()
			if err != nil {
				return nil, err
			}
			b, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			e.Operands = []uint64{a, b}
		default:
			return nil, fmt.Errorf("dwarf: unknown rnglists/loclists entry kind 0x%x", kind)
		}
		if isLocList && kind != rleEndOfList && kind != rleBaseAddressx && kind != rleBaseAddress {
			n, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			b, err := cur.Bytes(int(n))
			if err != nil {
				return nil, err
			}
			e.ExprBytes = b
		}
		out = append(out, e)
	}
}

// RngListsAt decodes one DWARF5 .debug_rnglists list at byte offset off
// (typically ctx.RnglistsBase + index*offsetSize, already resolved by the
// caller from a rnglistx form).
func RngListsAt(v *bytesview.View, off int) ([]RngListsEntry, error) {
	cur := bytesview.At(v, off)
	return decodeListsEntries(cur, false)
}

// LocListsAt decodes one DWARF5 .debug_loclists list at byte offset off.
func LocListsAt(v *bytesview.View, off int) ([]RngListsEntry, error) {
	cur := bytesview.At(v, off)
	return decodeListsEntries(cur, true)
}

// ResolveRnglists turns raw entries (as produced by RngListsAt) into
// concrete Ranges, resolving startx/base_addressx indices through
// ResolveAddrx and folding in the running base address.
func (d *Data) ResolveRnglists(ctx CUContext, entries []RngListsEntry, addrSize int) ([]Range, error) {
	var out []Range
	base := uint64(0)
	for _, e := range entries {
		switch e.Kind {
		case rleBaseAddressx:
			a, err := d.ResolveAddrx(ctx, e.Operands[0])
			if err != nil {
				return nil, err
			}
			base = a
		case rleBaseAddress:
			base = e.Operands[0]
		case rleStartxEndx:
			lo, err := d.ResolveAddrx(ctx, e.Operands[0])
			if err != nil {
				return nil, err
			}
			hi, err := d.ResolveAddrx(ctx, e.Operands[1])
			if err != nil {
				return nil, err
			}
			out = append(out, Range{Low: lo, High: hi})
		case rleStartxLength:
			lo, err := d.ResolveAddrx(ctx, e.Operands[0])
			if err != nil {
				return nil, err
			}
			out = append(out, Range{Low: lo, High: lo + e.Operands[1]})
		case rleOffsetPair:
			out = append(out, Range{Low: base + e.Operands[0], High: base + e.Operands[1]})
		case rleStartEnd:
			out = append(out, Range{Low: e.Operands[0], High: e.Operands[1]})
		case rleStartLength:
			out = append(out, Range{Low: e.Operands[0], High: e.Operands[0] + e.Operands[1]})
		case rleDefaultLoc:
			// no range produced; marks "the default location applies
			// outside every other entry's range" for loclists.
		}
	}
	return out, nil
}
