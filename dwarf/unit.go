package dwarf

import (
	"fmt"

	"github.com/Manu343726/elfkit/internal/bytesview"
)

// Sections bundles the borrowed section views a Data needs. Missing
// optional sections are represented as nil Views; required ones
// (Info, Abbrev) must always be present.
type Sections struct {
	Info        *bytesview.View
	Abbrev      *bytesview.View
	Str         *bytesview.View
	LineStr     *bytesview.View
	StrOffsets  *bytesview.View
	Addr        *bytesview.View
	Rnglists    *bytesview.View
	Loclists    *bytesview.View
	Ranges      *bytesview.View // legacy .debug_ranges
	Loc         *bytesview.View // legacy .debug_loc
	Types       *bytesview.View // .debug_types, pre-DWARF5
}

// Data is the entry point for reading DWARF out of one ELF object: an
// abbreviation cache plus the section views it reads from.
type Data struct {
	sec    Sections
	abbrev *abbrevCache
}

// New builds a Data reader over sec. Sections not present in the object
// should be left as the zero Sections field (nil View).
func New(sec Sections) *Data {
	return &Data{sec: sec, abbrev: newAbbrevCache()}
}

// Unit is one compilation/type/skeleton/split unit header, decoded per
// spec.md §4.F.
type Unit struct {
	Offset       uint64 // byte offset of this unit's header in its section
	Length       uint64 // length of the unit body, not counting the initial-length field itself
	Is64Bit      bool
	Version      uint16
	UnitType     UnitType // DWARF5 only; DWARF2-4 synthesize UnitCompile/UnitType_
	AddrSize     int
	AbbrevOff    uint64
	TypeSig      uint64 // type units only
	TypeOffset   uint64 // type units only: offset of the defining type's DIE
	DWOID        uint64 // skeleton/split units only

	headerEnd int // byte offset, within the section, where the DIE tree starts
	fromTypes bool
}

// BodyEnd returns the byte offset, within the unit's section, one past the
// unit's last byte.
func (u Unit) BodyEnd() int {
	lenFieldSize := 4
	if u.Is64Bit {
		lenFieldSize = 12
	}
	return int(u.Offset) + lenFieldSize + int(u.Length)
}

// ScanUnits iterates every unit in .debug_info, calling fn with each
// decoded header, then walks legacy .debug_types the same way when
// sec.Types is set.
func (d *Data) ScanUnits(fn func(Unit) error) error {
	if err := d.scanSection(d.sec.Info, false, fn); err != nil {
		return err
	}
	if d.sec.Types != nil {
		if err := d.scanSection(d.sec.Types, true, fn); err != nil {
			return err
		}
	}
	return nil
}

func (d *Data) scanSection(v *bytesview.View, fromTypes bool, fn func(Unit) error) error {
	if v == nil {
		return nil
	}
	off := 0
	for off < v.Len() {
		u, err := parseUnitHeader(v, off, fromTypes)
		if err != nil {
			return fmt.Errorf("dwarf: unit header at %d: %w", off, err)
		}
		if err := fn(u); err != nil {
			return err
		}
		next := u.BodyEnd()
		if next <= off {
			return fmt.Errorf("dwarf: unit at %d did not advance (next=%d)", off, next)
		}
		off = next
	}
	return nil
}

func parseUnitHeader(v *bytesview.View, off int, fromTypes bool) (Unit, error) {
	cur := bytesview.At(v, off)
	length, is64, err := cur.InitialLength()
	if err != nil {
		return Unit{}, err
	}
	version, err := cur.U16()
	if err != nil {
		return Unit{}, err
	}

	u := Unit{Offset: uint64(off), Length: length, Is64Bit: is64, Version: version, fromTypes: fromTypes}
	offSize := 4
	if is64 {
		offSize = 8
	}

	switch {
	case version >= 5:
		ut, err := cur.U8()
		if err != nil {
			return Unit{}, err
		}
		u.UnitType = UnitType(ut)
		addrSize, err := cur.U8()
		if err != nil {
			return Unit{}, err
		}
		u.AddrSize = int(addrSize)
		abbrevOff, err := readOffsetN(cur, offSize)
		if err != nil {
			return Unit{}, err
		}
		u.AbbrevOff = abbrevOff
		if u.UnitType.HasTypeSignature() {
			sig, err := cur.U64()
			if err != nil {
				return Unit{}, err
			}
			u.TypeSig = sig
			typeOff, err := readOffsetN(cur, offSize)
			if err != nil {
				return Unit{}, err
			}
			u.TypeOffset = typeOff
		}
		if u.UnitType.HasDWOID() {
			id, err := cur.U64()
			if err != nil {
				return Unit{}, err
			}
			u.DWOID = id
		}
	case fromTypes:
		// Pre-DWARF5 .debug_types header: abbrev_offset, address_size,
		// type_signature, type_offset.
		u.UnitType = UnitType_
		abbrevOff, err := readOffsetN(cur, offSize)
		if err != nil {
			return Unit{}, err
		}
		u.AbbrevOff = abbrevOff
		addrSize, err := cur.U8()
		if err != nil {
			return Unit{}, err
		}
		u.AddrSize = int(addrSize)
		sig, err := cur.U64()
		if err != nil {
			return Unit{}, err
		}
		u.TypeSig = sig
		typeOff, err := readOffsetN(cur, offSize)
		if err != nil {
			return Unit{}, err
		}
		u.TypeOffset = typeOff
	default:
		u.UnitType = UnitCompile
		abbrevOff, err := readOffsetN(cur, offSize)
		if err != nil {
			return Unit{}, err
		}
		u.AbbrevOff = abbrevOff
		addrSize, err := cur.U8()
		if err != nil {
			return Unit{}, err
		}
		u.AddrSize = int(addrSize)
	}

	u.headerEnd = cur.Pos()
	return u, nil
}

func readOffsetN(cur *bytesview.Cursor, size int) (uint64, error) {
	if size == 8 {
		return cur.U64()
	}
	v, err := cur.U32()
	return uint64(v), err
}
