package dwarf

import (
	"github.com/Manu343726/elfkit/internal/bytesview"
)

// Op is one decoded DWARF expression/location operation: its byte offset
// within the expression, its opcode, and its operands in encoding order.
// Operand meaning is opcode-dependent; Operands holds them as uint64s,
// with signed operands (constNs, consts, fbreg, bregN, ...) stored as
// their sign-extended two's-complement bit pattern (fbreg -16 is
// 0xfffffffffffffff0).
type Op struct {
	Offset   int
	Opcode   byte
	Operands []uint64
	// Nested holds the recursively-decoded sub-expression for ops whose
	// operand is itself a DWARF expression (DW_OP_entry_value,
	// DW_OP_GNU_entry_value) or a nested block that looks like one
	// (const_type/regval_type/deref_type carry a DIE ref + block, decoded
	// as plain operands instead — see opcode cases below).
	Nested []Op
}

// DWARF expression opcodes referenced by elfkit's interpreter. Only the
// ones needing operand handling are named; the single-ULEB-operand opcodes
// share one case in decodeExprFrom.
const (
	opAddr          = 0x03
	opDeref         = 0x06
	opConst1u       = 0x08
	opConst1s       = 0x09
	opConst2u       = 0x0a
	opConst2s       = 0x0b
	opConst4u       = 0x0c
	opConst4s       = 0x0d
	opConst8u       = 0x0e
	opConst8s       = 0x0f
	opConstu        = 0x10
	opConsts        = 0x11
	opDup           = 0x12
	opDrop          = 0x13
	opPick          = 0x15
	opPlusUconst    = 0x23
	opSkip          = 0x2f
	opBra           = 0x28
	opBreg0         = 0x70
	opBreg31        = 0x8f
	opRegx          = 0x90
	opFbreg         = 0x91
	opBregx         = 0x92
	opPiece         = 0x93
	opCallFrameCFA  = 0x9c
	opBitPiece      = 0x9d
	opImplicitValue = 0x9e
	opStackValue    = 0x9f
	opImplicitPtr   = 0xa0
	opAddrx         = 0xa1
	opConstx        = 0xa2
	opEntryValue    = 0xa3
	opConstType     = 0xa4
	opRegvalType    = 0xa5
	opDerefType     = 0xa6
	opXderefType    = 0xa7
	opConvert       = 0xa8
	opReinterpret   = 0xa9
	opGNUEntryValue = 0xf3
	opGNUParamRef   = 0xfa
	opGNUAddrIndex  = 0xfb
	opGNUConstIndex = 0xfc
)

// DecodeExpr parses a DWARF expression or location description (the
// contents of an exprloc/block form) into a stream of Ops, per spec.md
// §4.E. addrSize and offsetSize come from the owning CU.
func DecodeExpr(data []byte, order bytesview.Order, addrSize, offsetSize int) ([]Op, error) {
	v := bytesview.New(data, order).WithAddrSize(addrSize).WithOffsetSize(offsetSize)
	cur := bytesview.NewCursor(v)
	return decodeExprFrom(cur, addrSize, offsetSize)
}

func decodeExprFrom(cur *bytesview.Cursor, addrSize, offsetSize int) ([]Op, error) {
	var ops []Op
	for cur.Remaining() > 0 {
		off := cur.Pos()
		opcode, err := cur.U8()
		if err != nil {
			return nil, err
		}
		op := Op{Offset: off, Opcode: opcode}

		switch {
		case opcode == opAddr:
			a, err := cur.ReadAddr()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{a}

		case opcode >= opBreg0 && opcode <= opBreg31:
			a, err := cur.SLEB128()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{uint64(a)}

		case opcode == opConst1u, opcode == opPick:
			b, err := cur.U8()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{uint64(b)}
		case opcode == opConst1s:
			b, err := cur.U8()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{uint64(int8(b))}
		case opcode == opConst2u:
			v, err := cur.U16()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{uint64(v)}
		case opcode == opConst2s:
			v, err := cur.I16()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{uint64(v)}
		case opcode == opSkip, opcode == opBra:
			rel, err := cur.I16()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{uint64(cur.Pos() + int(rel))}
		case opcode == opConst4u:
			v, err := cur.U32()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{uint64(v)}
		case opcode == opConst4s:
			v, err := cur.I32()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{uint64(v)}
		case opcode == opConst8u:
			v, err := cur.U64()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{v}
		case opcode == opConst8s:
			v, err := cur.I64()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{uint64(v)}
		case opcode == opConstu, opcode == opRegx, opcode == opPiece, opcode == opPlusUconst,
			opcode == opAddrx, opcode == opConstx, opcode == opGNUAddrIndex, opcode == opGNUConstIndex:
			v, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{v}
		case opcode == opConsts, opcode == opFbreg:
			v, err := cur.SLEB128()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{uint64(v)}
		case opcode == opBregx:
			reg, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			off2, err := cur.SLEB128()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{reg, uint64(off2)}
		case opcode == opBitPiece:
			size, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			offset, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{size, offset}

		case opcode == opImplicitValue:
			n, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			b, err := cur.Bytes(int(n))
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{n}
			_ = b // block content not needed for the operation stream itself

		case opcode == opImplicitPtr:
			ref, err := readOffsetFromCursor(cur)
			if err != nil {
				return nil, err
			}
			sleb, err := cur.SLEB128()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{ref, uint64(sleb)}

		case opcode == opEntryValue, opcode == opGNUEntryValue:
			n, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			sub, err := cur.Bytes(int(n))
			if err != nil {
				return nil, err
			}
			subCur := bytesview.NewCursor(bytesview.New(sub, cur.View().Order()).WithAddrSize(addrSize).WithOffsetSize(offsetSize))
			nested, err := decodeExprFrom(subCur, addrSize, offsetSize)
			if err != nil {
				return nil, err
			}
			op.Nested = nested

		case opcode == opConstType:
			ref, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			n, err := cur.U8()
			if err != nil {
				return nil, err
			}
			b, err := cur.Bytes(int(n))
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{ref, uint64(n)}
			_ = b

		case opcode == opRegvalType:
			regnum, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			typeOff, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{regnum, typeOff}

		case opcode == opDerefType, opcode == opXderefType:
			size, err := cur.U8()
			if err != nil {
				return nil, err
			}
			typeOff, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{uint64(size), typeOff}

		case opcode == opConvert, opcode == opReinterpret:
			typeOff, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{typeOff}

		case opcode == opGNUParamRef:
			ref, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			op.Operands = []uint64{ref}

		case opcode == opCallFrameCFA, opcode == opDup, opcode == opDrop, opcode == opDeref, opcode == opStackValue:
			// no operands

		default:
			// Unrecognized or no-operand opcode (e.g. lit0-31, reg0-31,
			// and/or/etc. stack ops): treated as operand-less.
		}

		ops = append(ops, op)
	}
	return ops, nil
}

func readOffsetFromCursor(cur *bytesview.Cursor) (uint64, error) {
	return cur.ReadOffset()
}
