package dwarf

import (
	"fmt"

	"github.com/Manu343726/elfkit/internal/bytesview"
)

// GNU DebugFission's pre-standard .debug_loc.dwo encoding (DW_LLE_GNU_*),
// used by split-DWARF producers that predate DWARF5's loclists.
const (
	gnuLLEEndOfListEntry       = 0x00
	gnuLLEBaseAddressSelEntry  = 0x01
	gnuLLEStartEndEntry        = 0x02
	gnuLLEStartLengthEntry     = 0x03
	gnuLLEOffsetPairEntry      = 0x04
)

// DWOLocEntry is one decoded .debug_loc.dwo entry.
type DWOLocEntry struct {
	Kind      byte
	Operands  []uint64 // meaning depends on Kind, indices into .debug_addr (DebugFission addresses are always indexed)
	ExprBytes []byte
}

// DWOLocList decodes a GNU DebugFission .debug_loc.dwo list at byte offset
// off, stopping at DW_LLE_GNU_end_of_list_entry.
func DWOLocList(v *bytesview.View, off int) ([]DWOLocEntry, error) {
	cur := bytesview.At(v, off)
	var out []DWOLocEntry
	for {
		kind, err := cur.U8()
		if err != nil {
			return nil, err
		}
		e := DWOLocEntry{Kind: kind}
		switch kind {
		case gnuLLEEndOfListEntry:
			return out, nil
		case gnuLLEBaseAddressSelEntry:
			idx, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			e.Operands = []uint64{idx}
		case gnuLLEStartEndEntry:
			a, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			b, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			e.Operands = []uint64{a, b}
		case gnuLLEStartLengthEntry:
			a, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			b, err := cur.U32()
			if err != nil {
				return nil, err
			}
			e.Operands = []uint64{a, uint64(b)}
		case gnuLLEOffsetPairEntry:
			a, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			b, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			e.Operands = []uint64{a, b}
		default:
			return nil, fmt.Errorf("dwarf: unknown GNU debugfission loc entry kind 0x%x", kind)
		}
		n, err := cur.U16()
		if err != nil {
			return nil, err
		}
		b, err := cur.Bytes(int(n))
		if err != nil {
			return nil, err
		}
		e.ExprBytes = b
		out = append(out, e)
	}
}
