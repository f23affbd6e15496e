package elf

import (
	"fmt"

	"github.com/Manu343726/elfkit/internal/bytesview"
)

// Header is the fixed-size ELF file header (Elf32_Ehdr / Elf64_Ehdr),
// normalized to 64-bit fields regardless of the file's class.
type Header struct {
	Class      Class
	Data       Data
	OSABI      OSABI
	ABIVersion byte
	Type       Type
	Machine    Machine
	Version    uint32
	Entry      uint64
	PhOff      uint64
	ShOff      uint64
	Flags      uint32
	EhSize     uint16
	PhEntSize  uint16
	PhNum      uint16
	ShEntSize  uint16
	ShNum      uint16
	ShStrNdx   uint16
}

var elfMagic = [4]byte{0x7f, 'E', 'L', 'F'}

// ParseHeader decodes the ELF file header from the start of data.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < 16 {
		return nil, wrap(ErrTruncated, "file shorter than e_ident (%d bytes)", len(data))
	}
	if data[0] != elfMagic[0] || data[1] != elfMagic[1] || data[2] != elfMagic[2] || data[3] != elfMagic[3] {
		return nil, wrap(ErrBadMagic, "got % x", data[0:4])
	}

	class := Class(data[4])
	if class != Class32 && class != Class64 {
		return nil, BadEnumError("EI_CLASS", uint64(class))
	}
	dataEnc := Data(data[5])
	if dataEnc != Data2LSB && dataEnc != Data2MSB {
		return nil, BadEnumError("EI_DATA", uint64(dataEnc))
	}

	order := bytesview.LittleEndian
	if dataEnc == Data2MSB {
		order = bytesview.BigEndian
	}

	ehSize := 52
	if class == Class64 {
		ehSize = 64
	}
	if len(data) < ehSize {
		return nil, wrap(ErrTruncated, "file shorter than e_ehsize (%d < %d)", len(data), ehSize)
	}

	v := bytesview.New(data, order)
	c := bytesview.At(v, 16) // past e_ident

	h := &Header{Class: class, Data: dataEnc, OSABI: OSABI(data[7]), ABIVersion: data[8]}

	typ, err := c.U16()
	if err != nil {
		return nil, err
	}
	h.Type = Type(typ)

	mach, err := c.U16()
	if err != nil {
		return nil, err
	}
	h.Machine = Machine(mach)

	h.Version, err = c.U32()
	if err != nil {
		return nil, err
	}

	if class == Class64 {
		h.Entry, err = c.U64()
		if err != nil {
			return nil, err
		}
		h.PhOff, err = c.U64()
		if err != nil {
			return nil, err
		}
		h.ShOff, err = c.U64()
		if err != nil {
			return nil, err
		}
	} else {
		e, err := c.U32()
		if err != nil {
			return nil, err
		}
		h.Entry = uint64(e)
		p, err := c.U32()
		if err != nil {
			return nil, err
		}
		h.PhOff = uint64(p)
		s, err := c.U32()
		if err != nil {
			return nil, err
		}
		h.ShOff = uint64(s)
	}

	h.Flags, err = c.U32()
	if err != nil {
		return nil, err
	}
	h.EhSize, err = c.U16()
	if err != nil {
		return nil, err
	}
	h.PhEntSize, err = c.U16()
	if err != nil {
		return nil, err
	}
	h.PhNum, err = c.U16()
	if err != nil {
		return nil, err
	}
	h.ShEntSize, err = c.U16()
	if err != nil {
		return nil, err
	}
	h.ShNum, err = c.U16()
	if err != nil {
		return nil, err
	}
	h.ShStrNdx, err = c.U16()
	if err != nil {
		return nil, err
	}
	return h, nil
}

// AddrSize returns 4 or 8 depending on Class.
func (h *Header) AddrSize() int {
	if h.Class == Class64 {
		return 8
	}
	return 4
}

// Order returns the bytesview.Order matching Data.
func (h *Header) Order() bytesview.Order {
	if h.Data == Data2MSB {
		return bytesview.BigEndian
	}
	return bytesview.LittleEndian
}

// SectionHeaderEntrySize returns the fixed on-disk size of one section
// header entry for this file's class.
func (h *Header) SectionHeaderEntrySize() int {
	if h.Class == Class64 {
		return 64
	}
	return 40
}

// ProgramHeaderEntrySize returns the fixed on-disk size of one program
// header entry for this file's class.
func (h *Header) ProgramHeaderEntrySize() int {
	if h.Class == Class64 {
		return 56
	}
	return 32
}

// SymEntrySize returns the fixed on-disk size of one symbol table entry.
func (h *Header) SymEntrySize() int {
	if h.Class == Class64 {
		return 24
	}
	return 16
}

func (h *Header) String() string {
	return fmt.Sprintf("%s %s %s machine=%s entry=0x%x", h.Class, h.Type, h.Data, h.Machine, h.Entry)
}
