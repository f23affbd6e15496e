package elf

import "github.com/Manu343726/elfkit/internal/bytesview"

// ProgramHeader is one Elf32_Phdr / Elf64_Phdr entry.
type ProgramHeader struct {
	Type   ProgType
	Flags  ProgFlag
	Offset uint64
	VAddr  uint64
	PAddr  uint64
	FileSz uint64
	MemSz  uint64
	Align  uint64
}

// ContainsOffset reports whether a file offset falls within this segment's
// file image.
func (p ProgramHeader) ContainsOffset(off uint64) bool {
	return off >= p.Offset && off < p.Offset+p.FileSz
}

func parseProgramHeaderAt(v *bytesview.View, off int, class Class) (ProgramHeader, error) {
	c := bytesview.At(v, off)
	var p ProgramHeader

	typ, err := c.U32()
	if err != nil {
		return p, err
	}
	p.Type = ProgType(typ)

	if class == Class64 {
		flags, err := c.U32()
		if err != nil {
			return p, err
		}
		p.Flags = ProgFlag(flags)
		if p.Offset, err = c.U64(); err != nil {
			return p, err
		}
		if p.VAddr, err = c.U64(); err != nil {
			return p, err
		}
		if p.PAddr, err = c.U64(); err != nil {
			return p, err
		}
		if p.FileSz, err = c.U64(); err != nil {
			return p, err
		}
		if p.MemSz, err = c.U64(); err != nil {
			return p, err
		}
		if p.Align, err = c.U64(); err != nil {
			return p, err
		}
		return p, nil
	}

	off32, err := c.U32()
	if err != nil {
		return p, err
	}
	p.Offset = uint64(off32)
	vaddr, err := c.U32()
	if err != nil {
		return p, err
	}
	p.VAddr = uint64(vaddr)
	paddr, err := c.U32()
	if err != nil {
		return p, err
	}
	p.PAddr = uint64(paddr)
	filesz, err := c.U32()
	if err != nil {
		return p, err
	}
	p.FileSz = uint64(filesz)
	memsz, err := c.U32()
	if err != nil {
		return p, err
	}
	p.MemSz = uint64(memsz)
	flags, err := c.U32()
	if err != nil {
		return p, err
	}
	p.Flags = ProgFlag(flags)
	align, err := c.U32()
	if err != nil {
		return p, err
	}
	p.Align = uint64(align)
	return p, nil
}

func (f *File) parseProgramHeaders() error {
	if f.header.PhOff == 0 || f.header.PhNum == 0 {
		return nil
	}
	entSize := int(f.header.PhEntSize)
	if entSize != f.header.ProgramHeaderEntrySize() {
		return BadEntsizeError("program header table", uint64(entSize), uint64(f.header.ProgramHeaderEntrySize()))
	}
	f.progs = make([]ProgramHeader, 0, f.header.PhNum)
	for i := 0; i < int(f.header.PhNum); i++ {
		off := int(f.header.PhOff) + i*entSize
		p, err := parseProgramHeaderAt(f.view, off, f.header.Class)
		if err != nil {
			return wrap(ErrTruncated, "program header %d: %v", i, err)
		}
		f.progs = append(f.progs, p)
	}
	return nil
}

// ProgramHeaders returns every program header in file order.
func (f *File) ProgramHeaders() []ProgramHeader { return f.progs }

// LoadSegments returns only the PT_LOAD entries, in file order.
func (f *File) LoadSegments() []ProgramHeader {
	var out []ProgramHeader
	for _, p := range f.progs {
		if p.Type == PT_LOAD {
			out = append(out, p)
		}
	}
	return out
}
