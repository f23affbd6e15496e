package dwarf

import (
	"fmt"

	"github.com/Manu343726/elfkit/internal/bytesview"
)

// ValueKind classifies how an AttrValue should be interpreted, independent
// of which exact Form produced it (several forms share a kind — e.g.
// data1/data2/data4/data8/udata are all KindConst, while sdata and
// implicit_const are KindSConst).
type ValueKind int

const (
	KindAddress ValueKind = iota
	KindAddrIndex
	KindConst
	KindSConst
	KindBlock
	KindFlag
	KindRef
	KindRefAddr
	KindRefSig8
	KindRefAlt
	KindSecOffset
	KindString
	KindStrIndex
	KindLoclistIndex
	KindRnglistIndex
)

// AttrValue is the decoded payload of one (attribute, form) pair, per
// spec.md §4.E's form decoding table. Indexed forms (strx*, addrx*,
// loclistx, rnglistx) are left as their raw index in Uint; resolving them
// against a CU's *_base attribute is CUContext's job, since that base is
// itself just another attribute on the same DIE and may not have been
// seen yet when this one is decoded.
type AttrValue struct {
	Kind  ValueKind
	Uint  uint64
	Int   int64
	Bytes []byte
	Str   string
}

// Attribute is one decoded (name, form, value) triple, in source order,
// the attribute walker's contract.
type Attribute struct {
	Attr  Attr
	Form  Form
	Value AttrValue
}

// decodeForm consumes the exact bytes form specifies from cur and returns
// the decoded value, per spec.md §4.E's form table. addrSize/offsetSize
// come from the owning CU.
func decodeForm(cur *bytesview.Cursor, form Form, addrSize, offsetSize int, implicitConst int64) (AttrValue, error) {
	u64 := func(v uint64, err error) (AttrValue, error) {
		return AttrValue{Kind: KindConst, Uint: v}, err
	}
	readN := func(n int) (AttrValue, error) {
		b, err := cur.Bytes(n)
		if err != nil {
			return AttrValue{}, err
		}
		var x uint64
		for _, bb := range b {
			x = x<<8 | uint64(bb)
		}
		// re-decode honoring byte order instead of big-endian assembly above
		switch n {
		case 1:
			return AttrValue{Kind: KindConst, Uint: uint64(b[0])}, nil
		case 2:
			v, _ := decodeFixed2(cur.View(), b)
			return AttrValue{Kind: KindConst, Uint: uint64(v)}, nil
		case 4:
			v, _ := decodeFixed4(cur.View(), b)
			return AttrValue{Kind: KindConst, Uint: uint64(v)}, nil
		case 8:
			v, _ := decodeFixed8(cur.View(), b)
			return AttrValue{Kind: KindConst, Uint: v}, nil
		}
		return AttrValue{Kind: KindConst, Uint: x}, nil
	}
	readOff := func() (AttrValue, error) {
		v, err := readOffsetN(cur, offsetSize)
		return AttrValue{Kind: KindSecOffset, Uint: v}, err
	}
	readBlock := func(n int) (AttrValue, error) {
		b, err := cur.Bytes(n)
		return AttrValue{Kind: KindBlock, Bytes: b}, err
	}

	switch form {
	case FormAddr:
		v, err := readAddrN(cur, addrSize)
		return AttrValue{Kind: KindAddress, Uint: v}, err

	case FormData1:
		return readN(1)
	case FormData2:
		return readN(2)
	case FormData4:
		return readN(4)
	case FormData8:
		return readN(8)
	case FormData16:
		b, err := cur.Bytes(16)
		return AttrValue{Kind: KindBlock, Bytes: b}, err
	case FormUdata:
		v, err := cur.ULEB128()
		return u64(v, err)
	case FormSdata:
		v, err := cur.SLEB128()
		return AttrValue{Kind: KindSConst, Int: v}, err
	case FormImplicitConst:
		return AttrValue{Kind: KindSConst, Int: implicitConst}, nil

	case FormBlock1:
		n, err := cur.U8()
		if err != nil {
			return AttrValue{}, err
		}
		return readBlock(int(n))
	case FormBlock2:
		n, err := cur.U16()
		if err != nil {
			return AttrValue{}, err
		}
		return readBlock(int(n))
	case FormBlock4:
		n, err := cur.U32()
		if err != nil {
			return AttrValue{}, err
		}
		return readBlock(int(n))
	case FormBlock, FormExprloc:
		n, err := cur.ULEB128()
		if err != nil {
			return AttrValue{}, err
		}
		return readBlock(int(n))

	case FormFlag:
		b, err := cur.U8()
		return AttrValue{Kind: KindFlag, Uint: uint64(b)}, err
	case FormFlagPresent:
		return AttrValue{Kind: KindFlag, Uint: 1}, nil

	case FormRef1:
		v, err := cur.U8()
		return AttrValue{Kind: KindRef, Uint: uint64(v)}, err
	case FormRef2:
		v, err := cur.U16()
		return AttrValue{Kind: KindRef, Uint: uint64(v)}, err
	case FormRef4:
		v, err := cur.U32()
		return AttrValue{Kind: KindRef, Uint: uint64(v)}, err
	case FormRef8:
		v, err := cur.U64()
		return AttrValue{Kind: KindRef, Uint: v}, err
	case FormRefUdata:
		v, err := cur.ULEB128()
		return AttrValue{Kind: KindRef, Uint: v}, err
	case FormRefAddr:
		v, err := readOffsetN(cur, offsetSize)
		return AttrValue{Kind: KindRefAddr, Uint: v}, err
	case FormRefSig8:
		v, err := cur.U64()
		return AttrValue{Kind: KindRefSig8, Uint: v}, err
	case FormRefSup4, FormGNURefAlt:
		v, err := cur.U32()
		return AttrValue{Kind: KindRefAlt, Uint: uint64(v)}, err
	case FormRefSup8:
		v, err := cur.U64()
		return AttrValue{Kind: KindRefAlt, Uint: v}, err

	case FormSecOffset:
		return readOff()

	case FormString:
		s, err := cur.CString()
		return AttrValue{Kind: KindString, Str: s}, err
	case FormStrp, FormLineStrp, FormStrpSup, FormGNUStrpAlt:
		v, err := readOffsetN(cur, offsetSize)
		return AttrValue{Kind: KindSecOffset, Uint: v}, err

	case FormStrx:
		v, err := cur.ULEB128()
		return AttrValue{Kind: KindStrIndex, Uint: v}, err
	case FormStrx1:
		v, err := cur.U8()
		return AttrValue{Kind: KindStrIndex, Uint: uint64(v)}, err
	case FormStrx2:
		v, err := cur.U16()
		return AttrValue{Kind: KindStrIndex, Uint: uint64(v)}, err
	case FormStrx3:
		b, err := cur.Bytes(3)
		if err != nil {
			return AttrValue{}, err
		}
		return AttrValue{Kind: KindStrIndex, Uint: uint64(le3(cur.View(), b))}, nil
	case FormStrx4:
		v, err := cur.U32()
		return AttrValue{Kind: KindStrIndex, Uint: uint64(v)}, err
	case FormGNUStrIndex:
		v, err := cur.ULEB128()
		return AttrValue{Kind: KindStrIndex, Uint: v}, err

	case FormAddrx:
		v, err := cur.ULEB128()
		return AttrValue{Kind: KindAddrIndex, Uint: v}, err
	case FormAddrx1:
		v, err := cur.U8()
		return AttrValue{Kind: KindAddrIndex, Uint: uint64(v)}, err
	case FormAddrx2:
		v, err := cur.U16()
		return AttrValue{Kind: KindAddrIndex, Uint: uint64(v)}, err
	case FormAddrx3:
		b, err := cur.Bytes(3)
		if err != nil {
			return AttrValue{}, err
		}
		return AttrValue{Kind: KindAddrIndex, Uint: uint64(le3(cur.View(), b))}, nil
	case FormAddrx4:
		v, err := cur.U32()
		return AttrValue{Kind: KindAddrIndex, Uint: uint64(v)}, err
	case FormGNUAddrIndex:
		v, err := cur.ULEB128()
		return AttrValue{Kind: KindAddrIndex, Uint: v}, err

	case FormLoclistx:
		v, err := cur.ULEB128()
		return AttrValue{Kind: KindLoclistIndex, Uint: v}, err
	case FormRnglistx:
		v, err := cur.ULEB128()
		return AttrValue{Kind: KindRnglistIndex, Uint: v}, err

	case FormIndirect:
		innerForm, err := cur.ULEB128()
		if err != nil {
			return AttrValue{}, err
		}
		return decodeForm(cur, Form(innerForm), addrSize, offsetSize, implicitConst)

	default:
		return AttrValue{}, fmt.Errorf("dwarf: unsupported form 0x%x", uint64(form))
	}
}

func readAddrN(cur *bytesview.Cursor, addrSize int) (uint64, error) {
	if addrSize == 8 {
		return cur.U64()
	}
	v, err := cur.U32()
	return uint64(v), err
}

func decodeFixed2(v *bytesview.View, b []byte) (uint16, error) {
	if v.Order() == bytesview.BigEndian {
		return uint16(b[0])<<8 | uint16(b[1]), nil
	}
	return uint16(b[1])<<8 | uint16(b[0]), nil
}

func decodeFixed4(v *bytesview.View, b []byte) (uint32, error) {
	if v.Order() == bytesview.BigEndian {
		return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
	}
	return uint32(b[3])<<24 | uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0]), nil
}

func decodeFixed8(v *bytesview.View, b []byte) (uint64, error) {
	var x uint64
	if v.Order() == bytesview.BigEndian {
		for i := 0; i < 8; i++ {
			x = x<<8 | uint64(b[i])
		}
		return x, nil
	}
	for i := 7; i >= 0; i-- {
		x = x<<8 | uint64(b[i])
	}
	return x, nil
}

func le3(v *bytesview.View, b []byte) uint32 {
	if v.Order() == bytesview.BigEndian {
		return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	}
	return uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0])
}
