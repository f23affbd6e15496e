// Package frame implements the DWARF call-frame interpreter: CIE/FDE
// decoding for .debug_frame and .eh_frame, and execution of their CFI
// programs into a per-PC register-rule table, per spec.md §4.H.
package frame

import (
	"fmt"

	"github.com/Manu343726/elfkit/internal/bytesview"
)

// CIE is one decoded Common Information Entry.
type CIE struct {
	Offset                int
	Version               uint8
	Augmentation          string
	AddressSize           uint8 // DWARF4+ .debug_frame only; 0 (unknown/implied) for CIE v1-3 and .eh_frame
	SegmentSize           uint8
	CodeAlignmentFactor   uint64
	DataAlignmentFactor   int64
	ReturnAddressRegister uint64
	FDEPointerEncoding    byte // from 'z'+'R' augmentation data, default DW_EH_PE_absptr
	HasAugmentationData   bool
	LSDAEncoding          byte
	HasLSDAEncoding       bool
	PersonalityEncoding   byte
	PersonalityRoutine    uint64
	HasPersonality        bool

	initialInstructions []byte
}

// FDE is one decoded Frame Description Entry.
type FDE struct {
	Offset          int
	CIEPointer      int // byte offset (within the same section) of the governing CIE
	InitialLocation uint64
	AddressRange    uint64
	LSDAPointer     uint64
	HasLSDA         bool

	instructions []byte
}

const ehPEOmit = 0xff

// pcrel bit within a DW_EH_PE_* encoding byte.
const ehPEPcrel = 0x10

// ParseSection decodes every CIE/FDE in a .debug_frame or .eh_frame
// section. isEH selects .eh_frame's encoding quirks: CIE ID 0 (vs.
// 0xffffffff/all-ones for .debug_frame) and pc-relative/augmented
// pointers.
func ParseSection(v *bytesview.View, isEH bool) ([]CIE, []FDE, error) {
	var cies []CIE
	var fdes []FDE
	ciesByOffset := map[int]CIE{}

	off := 0
	for off < v.Len() {
		cur := bytesview.At(v, off)
		length, is64, err := cur.InitialLength()
		if err != nil {
			return nil, nil, err
		}
		if length == 0 {
			break // .eh_frame zero-length terminator entry
		}
		lenFieldSize := 4
		if is64 {
			lenFieldSize = 12
		}
		entryEnd := off + lenFieldSize + int(length)
		offSize := 4
		if is64 {
			offSize = 8
		}

		idOrPointer, err := readOffsetN(cur, offSize)
		if err != nil {
			return nil, nil, err
		}

		isCIE := (isEH && idOrPointer == 0) || (!isEH && ((offSize == 4 && idOrPointer == 0xffffffff) || (offSize == 8 && idOrPointer == 0xffffffffffffffff)))
		if isCIE {
			cie, err := parseCIEBody(cur, off, entryEnd)
			if err != nil {
				return nil, nil, err
			}
			cies = append(cies, cie)
			ciesByOffset[off] = cie
		} else {
			cieOffset := int(idOrPointer)
			if isEH {
				// .eh_frame's CIE pointer counts back idOrPointer bytes
				// from the offset of the pointer field itself.
				cieOffset = cur.Pos() - int(idOrPointer) - offSize
			}
			cie, ok := ciesByOffset[cieOffset]
			if !ok {
				return nil, nil, fmt.Errorf("dwarf/frame: FDE at %d references unknown CIE at %d", off, cieOffset)
			}
			fde, err := parseFDEBody(cur, off, entryEnd, cie, isEH)
			if err != nil {
				return nil, nil, err
			}
			fde.CIEPointer = cieOffset
			fdes = append(fdes, fde)
		}

		off = entryEnd
	}
	return cies, fdes, nil
}

func parseCIEBody(cur *bytesview.Cursor, off, entryEnd int) (CIE, error) {
	version, err := cur.U8()
	if err != nil {
		return CIE{}, err
	}
	aug, err := cur.CString()
	if err != nil {
		return CIE{}, err
	}
	c := CIE{Offset: off, Version: version, Augmentation: aug}

	if version >= 4 {
		addrSize, err := cur.U8()
		if err != nil {
			return CIE{}, err
		}
		c.AddressSize = addrSize
		segSize, err := cur.U8()
		if err != nil {
			return CIE{}, err
		}
		c.SegmentSize = segSize
	}

	caf, err := cur.ULEB128()
	if err != nil {
		return CIE{}, err
	}
	c.CodeAlignmentFactor = caf

	daf, err := cur.SLEB128()
	if err != nil {
		return CIE{}, err
	}
	c.DataAlignmentFactor = daf

	if version == 1 {
		r, err := cur.U8()
		if err != nil {
			return CIE{}, err
		}
		c.ReturnAddressRegister = uint64(r)
	} else {
		r, err := cur.ULEB128()
		if err != nil {
			return CIE{}, err
		}
		c.ReturnAddressRegister = r
	}

	c.FDEPointerEncoding = 0x00 // DW_EH_PE_absptr, the default absent 'z'/'R'

	if len(aug) > 0 && aug[0] == 'z' {
		c.HasAugmentationData = true
		augLen, err := cur.ULEB128()
		if err != nil {
			return CIE{}, err
		}
		augDataEnd := cur.Pos() + int(augLen)

		for _, letter := range aug[1:] {
			switch letter {
			case 'R':
				b, err := cur.U8()
				if err != nil {
					return CIE{}, err
				}
				c.FDEPointerEncoding = b
			case 'L':
				b, err := cur.U8()
				if err != nil {
					return CIE{}, err
				}
				c.LSDAEncoding = b
				c.HasLSDAEncoding = true
			case 'P':
				encByte, err := cur.U8()
				if err != nil {
					return CIE{}, err
				}
				c.PersonalityEncoding = encByte
				ptr, err := readEncodedPointer(cur, encByte, 0)
				if err != nil {
					return CIE{}, err
				}
				c.PersonalityRoutine = ptr
				c.HasPersonality = true
			case 'S', 'B', 'G':
				// signal-frame / BTI / GNU_window_save markers: no augmentation data
			default:
				// unknown letter: augLen already bounds the data, safe to ignore
			}
		}
		cur.SeekTo(augDataEnd)
	}

	instr, err := cur.Bytes(entryEnd - cur.Pos())
	if err != nil {
		return CIE{}, err
	}
	c.initialInstructions = instr
	return c, nil
}

func parseFDEBody(cur *bytesview.Cursor, off, entryEnd int, cie CIE, isEH bool) (FDE, error) {
	fde := FDE{Offset: off}

	pcRelBase := uint64(cur.Pos())
	loc, err := readEncodedPointer(cur, cie.FDEPointerEncoding, pcRelBase)
	if err != nil {
		return FDE{}, err
	}
	fde.InitialLocation = loc

	rangeEnc := cie.FDEPointerEncoding &^ ehPEPcrel // address_range is never pc-relative
	rangeVal, err := readEncodedPointer(cur, rangeEnc, 0)
	if err != nil {
		return FDE{}, err
	}
	fde.AddressRange = rangeVal

	if cie.HasAugmentationData {
		augLen, err := cur.ULEB128()
		if err != nil {
			return FDE{}, err
		}
		augEnd := cur.Pos() + int(augLen)
		if cie.HasLSDAEncoding {
			lsdaBase := uint64(cur.Pos())
			lsda, err := readEncodedPointer(cur, cie.LSDAEncoding, lsdaBase)
			if err != nil {
				return FDE{}, err
			}
			fde.LSDAPointer = lsda
			fde.HasLSDA = true
		}
		cur.SeekTo(augEnd)
	}

	instr, err := cur.Bytes(entryEnd - cur.Pos())
	if err != nil {
		return FDE{}, err
	}
	fde.instructions = instr
	return fde, nil
}

// readEncodedPointer decodes a DW_EH_PE_*-encoded pointer. pcRelBase is
// the byte offset (within the section) the pointer is relative to when
// the pcrel bit is set; 0 when not applicable (e.g. address_range, which
// is never pc-relative).
func readEncodedPointer(cur *bytesview.Cursor, enc byte, pcRelBase uint64) (uint64, error) {
	if enc == ehPEOmit {
		return 0, nil
	}
	format := enc & 0x0f
	application := enc & 0x70

	var val uint64
	switch format {
	case 0x00: // DW_EH_PE_absptr / native pointer size; treat as 8 bytes (elfkit targets LP64)
		v, err := cur.U64()
		if err != nil {
			return 0, err
		}
		val = v
	case 0x01: // uleb128
		v, err := cur.ULEB128()
		if err != nil {
			return 0, err
		}
		val = v
	case 0x02: // udata2
		v, err := cur.U16()
		if err != nil {
			return 0, err
		}
		val = uint64(v)
	case 0x03: // udata4
		v, err := cur.U32()
		if err != nil {
			return 0, err
		}
		val = uint64(v)
	case 0x04: // udata8
		v, err := cur.U64()
		if err != nil {
			return 0, err
		}
		val = v
	case 0x09: // sleb128
		v, err := cur.SLEB128()
		if err != nil {
			return 0, err
		}
		val = uint64(v)
	case 0x0a: // sdata2
		v, err := cur.I16()
		if err != nil {
			return 0, err
		}
		val = uint64(v)
	case 0x0b: // sdata4
		v, err := cur.I32()
		if err != nil {
			return 0, err
		}
		val = uint64(v)
	case 0x0c: // sdata8
		v, err := cur.I64()
		if err != nil {
			return 0, err
		}
		val = uint64(v)
	default:
		return 0, fmt.Errorf("dwarf/frame: unsupported pointer encoding format 0x%x", format)
	}

	if application == ehPEPcrel {
		val += pcRelBase
	}
	return val, nil
}

func readOffsetN(cur *bytesview.Cursor, size int) (uint64, error) {
	if size == 8 {
		return cur.U64()
	}
	v, err := cur.U32()
	return uint64(v), err
}
