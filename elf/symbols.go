package elf

import (
	"encoding/binary"

	"github.com/Manu343726/elfkit/internal/bytesview"
)

// uint32At decodes a little/big-endian uint32 at byte offset off in buf,
// per order.
func uint32At(order bytesview.Order, buf []byte, off int) uint32 {
	if order == bytesview.BigEndian {
		return binary.BigEndian.Uint32(buf[off:])
	}
	return binary.LittleEndian.Uint32(buf[off:])
}

// uint16At decodes a little/big-endian uint16 at byte offset off in buf.
func uint16At(order bytesview.Order, buf []byte, off int) uint16 {
	if order == bytesview.BigEndian {
		return binary.BigEndian.Uint16(buf[off:])
	}
	return binary.LittleEndian.Uint16(buf[off:])
}

// Symbol is one Elf32_Sym / Elf64_Sym entry, with its name resolved
// against the linked string table and its section index resolved through
// the SHN_XINDEX escape when needed.
type Symbol struct {
	Name    string
	NameIdx uint32
	Value   uint64
	Size    uint64
	Info    byte
	Other   byte
	Shndx   uint32 // resolved: either a real section index or a reserved SHN_* value
}

// Bind returns the symbol's binding (STB_*).
func (s Symbol) Bind() SymBind { return ST_BIND(s.Info) }

// Type returns the symbol's type (STT_*).
func (s Symbol) Type() SymType { return ST_TYPE(s.Info) }

// Visibility returns the symbol's visibility (STV_*).
func (s Symbol) Visibility() SymVisibility { return SymVisibility(s.Other & 0x3) }

func parseSymbolAt(v *bytesview.View, off int, class Class, strtab []byte) (Symbol, error) {
	c := bytesview.At(v, off)
	var s Symbol

	nameIdx, err := c.U32()
	if err != nil {
		return s, err
	}
	s.NameIdx = nameIdx
	s.Name = cstrAt(strtab, nameIdx)

	if class == Class64 {
		info, err := c.U8()
		if err != nil {
			return s, err
		}
		s.Info = info
		other, err := c.U8()
		if err != nil {
			return s, err
		}
		s.Other = other
		shndx, err := c.U16()
		if err != nil {
			return s, err
		}
		s.Shndx = uint32(shndx)
		if s.Value, err = c.U64(); err != nil {
			return s, err
		}
		if s.Size, err = c.U64(); err != nil {
			return s, err
		}
		return s, nil
	}

	value, err := c.U32()
	if err != nil {
		return s, err
	}
	s.Value = uint64(value)
	size, err := c.U32()
	if err != nil {
		return s, err
	}
	s.Size = uint64(size)
	info, err := c.U8()
	if err != nil {
		return s, err
	}
	s.Info = info
	other, err := c.U8()
	if err != nil {
		return s, err
	}
	s.Other = other
	shndx, err := c.U16()
	if err != nil {
		return s, err
	}
	s.Shndx = uint32(shndx)
	return s, nil
}

// SymbolTable decodes every entry of a SYMTAB/DYNSYM section, resolving
// names through its linked string table and SHN_XINDEX escapes through a
// parallel SYMTAB_SHNDX section if the caller supplies one (xndx may be
// nil).
func (f *File) SymbolTable(sec *Section, xndx *Section) ([]Symbol, error) {
	if sec.Header.Type != SHT_SYMTAB && sec.Header.Type != SHT_DYNSYM {
		return nil, wrap(ErrBadEnum, "section %s is not a symbol table", sec.Name)
	}
	entSize := int(sec.Header.EntSize)
	want := f.header.SymEntrySize()
	if entSize != want {
		return nil, BadEntsizeError(sec.Name, uint64(entSize), uint64(want))
	}
	if int(sec.Header.Link) >= len(f.sections) {
		return nil, BadLinkError(sec.Index, "sh_link", sec.Header.Link)
	}
	strtab, err := f.sections[sec.Header.Link].Data()
	if err != nil {
		return nil, err
	}
	data, err := sec.Data()
	if err != nil {
		return nil, err
	}
	if entSize == 0 {
		return nil, nil
	}
	count := len(data) / entSize

	var xndxData []byte
	if xndx != nil {
		xndxData, err = xndx.Data()
		if err != nil {
			return nil, err
		}
	}

	syms := make([]Symbol, 0, count)
	for i := 0; i < count; i++ {
		s, err := parseSymbolAt(f.view, int(sec.Header.Offset)+i*entSize, f.header.Class, strtab)
		if err != nil {
			return nil, wrap(ErrTruncated, "symbol %d in %s: %v", i, sec.Name, err)
		}
		if s.Shndx == SHN_XINDEX {
			if xndxData == nil || (i+1)*4 > len(xndxData) {
				return nil, wrap(ErrBadRef, "symbol %d in %s: SHN_XINDEX with no SYMTAB_SHNDX section", i, sec.Name)
			}
			s.Shndx = uint32At(f.header.Order(), xndxData, i*4)
		}
		syms = append(syms, s)
	}
	return syms, nil
}

// DefinedSection returns the Section a symbol's Shndx refers to, or nil
// for reserved indices (SHN_UNDEF, SHN_ABS, SHN_COMMON, ...).
func (f *File) DefinedSection(s Symbol) *Section {
	if s.Shndx == SHN_UNDEF || s.Shndx >= SHN_LORESERVE {
		return nil
	}
	return f.Section(int(s.Shndx))
}
