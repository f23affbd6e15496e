// Package line implements the DWARF line-number program interpreter:
// decoding a .debug_line program header (versions 2 through 5) and
// running its state machine to emit line-table rows, per spec.md §4.G.
package line

import (
	"fmt"

	"github.com/Manu343726/elfkit/internal/bytesview"
)

// FileEntry is one decoded file-table row (directory/mtime/size optional
// depending on version; MD5 only present in v5 with that content
// description).
type FileEntry struct {
	Name         string
	DirIndex     uint64
	MTime        uint64
	Size         uint64
	MD5          [16]byte
	HasMD5       bool
}

// Header is a decoded line-number program header.
type Header struct {
	UnitLength           uint64
	Is64Bit              bool
	Version              uint16
	AddressSize          uint8 // v5 only; 0 (unknown) for v2-v4
	SegmentSelectorSize  uint8 // v5 only
	HeaderLength         uint64
	MinimumInstrLength   uint8
	MaxOpsPerInstruction uint8
	DefaultIsStmt        bool
	LineBase             int8
	LineRange            uint8
	OpcodeBase           uint8
	StdOpcodeLengths     []uint8
	IncludeDirectories   []string
	Files                []FileEntry

	programStart int
	programEnd   int
}

// content description codes (DW_LNCT_*), v5 file/directory table schema.
const (
	lnctPath           = 0x1
	lnctDirectoryIndex = 0x2
	lnctTimestamp      = 0x3
	lnctSize           = 0x4
	lnctMD5            = 0x5
)

// ParseHeader decodes one line-number program header starting at byte
// offset off in the .debug_line view.
func ParseHeader(v *bytesview.View, off int) (*Header, error) {
	cur := bytesview.At(v, off)
	length, is64, err := cur.InitialLength()
	if err != nil {
		return nil, err
	}
	lenFieldSize := 4
	if is64 {
		lenFieldSize = 12
	}
	h := &Header{UnitLength: length, Is64Bit: is64, programEnd: off + lenFieldSize + int(length)}

	version, err := cur.U16()
	if err != nil {
		return nil, err
	}
	h.Version = version

	if version >= 5 {
		addrSize, err := cur.U8()
		if err != nil {
			return nil, err
		}
		h.AddressSize = addrSize
		segSize, err := cur.U8()
		if err != nil {
			return nil, err
		}
		h.SegmentSelectorSize = segSize
	}

	offSize := 4
	if is64 {
		offSize = 8
	}
	headerLen, err := readOffsetN(cur, offSize)
	if err != nil {
		return nil, err
	}
	h.HeaderLength = headerLen
	programHeaderLenEnd := cur.Pos() + int(headerLen)

	minInstr, err := cur.U8()
	if err != nil {
		return nil, err
	}
	h.MinimumInstrLength = minInstr

	if version >= 4 {
		maxOps, err := cur.U8()
		if err != nil {
			return nil, err
		}
		h.MaxOpsPerInstruction = maxOps
	} else {
		h.MaxOpsPerInstruction = 1
	}

	defStmt, err := cur.U8()
	if err != nil {
		return nil, err
	}
	h.DefaultIsStmt = defStmt != 0

	lineBase, err := cur.U8()
	if err != nil {
		return nil, err
	}
	h.LineBase = int8(lineBase)

	lineRange, err := cur.U8()
	if err != nil {
		return nil, err
	}
	h.LineRange = lineRange

	opcodeBase, err := cur.U8()
	if err != nil {
		return nil, err
	}
	h.OpcodeBase = opcodeBase

	h.StdOpcodeLengths = make([]uint8, opcodeBase-1)
	for i := range h.StdOpcodeLengths {
		b, err := cur.U8()
		if err != nil {
			return nil, err
		}
		h.StdOpcodeLengths[i] = b
	}

	if version >= 5 {
		if err := parseV5DirsAndFiles(cur, h, offSize); err != nil {
			return nil, err
		}
	} else {
		if err := parseLegacyDirsAndFiles(cur, h); err != nil {
			return nil, err
		}
	}

	h.programStart = programHeaderLenEnd
	return h, nil
}

func parseV5DirsAndFiles(cur *bytesview.Cursor, h *Header, offSize int) error {
	readTable := func() ([]map[uint8]fieldValue, error) {
		formatCount, err := cur.U8()
		if err != nil {
			return nil, err
		}
		type desc struct {
			content uint8
			form    uint8
		}
		descs := make([]desc, formatCount)
		for i := range descs {
			c, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			f, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			descs[i] = desc{content: uint8(c), form: uint8(f)}
		}
		count, err := cur.ULEB128()
		if err != nil {
			return nil, err
		}
		rows := make([]map[uint8]fieldValue, count)
		for i := range rows {
			row := map[uint8]fieldValue{}
			for _, d := range descs {
				val, err := decodeLineField(cur, d.form, offSize)
				if err != nil {
					return nil, err
				}
				row[d.content] = val
			}
			rows[i] = row
		}
		return rows, nil
	}

	dirRows, err := readTable()
	if err != nil {
		return err
	}
	for _, r := range dirRows {
		h.IncludeDirectories = append(h.IncludeDirectories, r[lnctPath].str)
	}

	fileRows, err := readTable()
	if err != nil {
		return err
	}
	for _, r := range fileRows {
		fe := FileEntry{
			Name:     r[lnctPath].str,
			DirIndex: r[lnctDirectoryIndex].uint,
			MTime:    r[lnctTimestamp].uint,
			Size:     r[lnctSize].uint,
		}
		if md5, ok := r[lnctMD5]; ok && len(md5.bytes) == 16 {
			copy(fe.MD5[:], md5.bytes)
			fe.HasMD5 = true
		}
		h.Files = append(h.Files, fe)
	}
	return nil
}

type fieldValue struct {
	uint  uint64
	str   string
	bytes []byte
}

func decodeLineField(cur *bytesview.Cursor, form uint8, offSize int) (fieldValue, error) {
	switch form {
	case 0x08: // DW_FORM_string
		s, err := cur.CString()
		return fieldValue{str: s}, err
	case 0x1f, 0x0e: // DW_FORM_line_strp, DW_FORM_strp: offset, resolved by caller if needed
		o, err := readOffsetN(cur, offSize)
		return fieldValue{uint: o}, err
	case 0x0b: // DW_FORM_data1
		b, err := cur.U8()
		return fieldValue{uint: uint64(b)}, err
	case 0x05: // DW_FORM_data2
		b, err := cur.U16()
		return fieldValue{uint: uint64(b)}, err
	case 0x06: // DW_FORM_data4
		b, err := cur.U32()
		return fieldValue{uint: uint64(b)}, err
	case 0x07: // DW_FORM_data8
		b, err := cur.U64()
		return fieldValue{uint: b}, err
	case 0x1e: // DW_FORM_data16 (MD5)
		b, err := cur.Bytes(16)
		return fieldValue{bytes: b}, err
	case 0x0f: // DW_FORM_udata
		v, err := cur.ULEB128()
		return fieldValue{uint: v}, err
	default:
		return fieldValue{}, fmt.Errorf("dwarf/line: unsupported v5 file/dir form 0x%x", form)
	}
}

// parseLegacyDirsAndFiles decodes the v2-v4 shape: a NUL-terminated list
// of include directories terminated by an empty string, then a list of
// (name, dir_index, mtime, length) tuples terminated by an empty name.
// Directory index 0 always means "the compilation directory".
func parseLegacyDirsAndFiles(cur *bytesview.Cursor, h *Header) error {
	for {
		s, err := cur.CString()
		if err != nil {
			return err
		}
		if s == "" {
			break
		}
		h.IncludeDirectories = append(h.IncludeDirectories, s)
	}
	for {
		name, err := cur.CString()
		if err != nil {
			return err
		}
		if name == "" {
			break
		}
		dirIdx, err := cur.ULEB128()
		if err != nil {
			return err
		}
		mtime, err := cur.ULEB128()
		if err != nil {
			return err
		}
		size, err := cur.ULEB128()
		if err != nil {
			return err
		}
		h.Files = append(h.Files, FileEntry{Name: name, DirIndex: dirIdx, MTime: mtime, Size: size})
	}
	return nil
}

func readOffsetN(cur *bytesview.Cursor, size int) (uint64, error) {
	if size == 8 {
		return cur.U64()
	}
	v, err := cur.U32()
	return uint64(v), err
}
