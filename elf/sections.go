package elf

import (
	"github.com/Manu343726/elfkit/internal/bytesview"
)

// SectionHeader is one Elf32_Shdr / Elf64_Shdr entry, normalized to 64-bit
// fields.
type SectionHeader struct {
	Name      uint32 // index into the section-header string table
	Type      SectionType
	Flags     SectionFlag
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

// Section pairs a SectionHeader with lazy, cached access to its bytes.
// Index is the section's position in the (possibly SHN_XINDEX-extended)
// section table.
type Section struct {
	Index  int
	Header SectionHeader
	Name   string

	file        *File
	decompCache []byte
	decompDone  bool
}

// Data returns the section's content bytes. For SHF_COMPRESSED sections
// this transparently decompresses through elf/compress on first access and
// caches the result (spec.md §4.B point 5); the cached bytes are returned
// with the section's nominal (uncompressed) size from then on. NOBITS
// sections (.bss and similar) have no file content and return nil.
func (s *Section) Data() ([]byte, error) {
	if s.Header.Type == SHT_NOBITS {
		return nil, nil
	}
	if s.decompDone {
		return s.decompCache, nil
	}
	raw, err := s.file.rawRange(s.Header.Offset, s.Header.Size)
	if err != nil {
		return nil, err
	}
	if !s.Header.Flags.Has(SHF_COMPRESSED) {
		return raw, nil
	}
	out, err := s.file.decompressSection(raw)
	if err != nil {
		return nil, wrap(ErrDecompress, "section %s: %v", s.Name, err)
	}
	s.decompCache = out
	s.decompDone = true
	return out, nil
}

// parseSectionHeaderAt decodes one section header entry at byte offset off.
func parseSectionHeaderAt(v *bytesview.View, off int, class Class) (SectionHeader, error) {
	c := bytesview.At(v, off)
	var sh SectionHeader

	name, err := c.U32()
	if err != nil {
		return sh, err
	}
	sh.Name = name

	typ, err := c.U32()
	if err != nil {
		return sh, err
	}
	sh.Type = SectionType(typ)

	if class == Class64 {
		flags, err := c.U64()
		if err != nil {
			return sh, err
		}
		sh.Flags = SectionFlag(flags)
		sh.Addr, err = c.U64()
		if err != nil {
			return sh, err
		}
		sh.Offset, err = c.U64()
		if err != nil {
			return sh, err
		}
		sh.Size, err = c.U64()
		if err != nil {
			return sh, err
		}
	} else {
		flags, err := c.U32()
		if err != nil {
			return sh, err
		}
		sh.Flags = SectionFlag(flags)
		addr, err := c.U32()
		if err != nil {
			return sh, err
		}
		sh.Addr = uint64(addr)
		offset, err := c.U32()
		if err != nil {
			return sh, err
		}
		sh.Offset = uint64(offset)
		size, err := c.U32()
		if err != nil {
			return sh, err
		}
		sh.Size = uint64(size)
	}

	sh.Link, err = c.U32()
	if err != nil {
		return sh, err
	}
	sh.Info, err = c.U32()
	if err != nil {
		return sh, err
	}

	if class == Class64 {
		align, err := c.U64()
		if err != nil {
			return sh, err
		}
		sh.AddrAlign = align
		entsize, err := c.U64()
		if err != nil {
			return sh, err
		}
		sh.EntSize = entsize
	} else {
		align, err := c.U32()
		if err != nil {
			return sh, err
		}
		sh.AddrAlign = uint64(align)
		entsize, err := c.U32()
		if err != nil {
			return sh, err
		}
		sh.EntSize = uint64(entsize)
	}
	return sh, nil
}

// parseSections decodes the whole section header table, applying the
// shnum==0 ("real count in section 0's sh_size") and shstrndx==SHN_XINDEX
// ("real index in section 0's sh_link") escapes from spec.md §4.B point 2.
func (f *File) parseSections() error {
	if f.header.ShOff == 0 || f.header.ShNum == 0 && f.header.ShOff == 0 {
		return nil
	}
	entSize := int(f.header.ShEntSize)
	if entSize == 0 {
		entSize = f.header.SectionHeaderEntrySize()
	}
	if entSize != f.header.SectionHeaderEntrySize() {
		return BadEntsizeError("section header table", uint64(entSize), uint64(f.header.SectionHeaderEntrySize()))
	}

	shnum := int(f.header.ShNum)
	shstrndx := int(f.header.ShStrNdx)

	// Read section 0 first; shnum==0 or shstrndx==SHN_XINDEX redirect
	// through its sh_size / sh_link fields respectively.
	if f.header.ShOff != 0 {
		sh0, err := parseSectionHeaderAt(f.view, int(f.header.ShOff), f.header.Class)
		if err != nil {
			return err
		}
		if shnum == 0 {
			if sh0.Size > uint64(^uint(0)>>1) {
				return wrap(ErrOverflow, "escaped shnum too large")
			}
			shnum = int(sh0.Size)
		}
		if shstrndx == SHN_XINDEX {
			shstrndx = int(sh0.Link)
		}
	}

	f.sections = make([]Section, 0, shnum)
	for i := 0; i < shnum; i++ {
		off := int(f.header.ShOff) + i*entSize
		sh, err := parseSectionHeaderAt(f.view, off, f.header.Class)
		if err != nil {
			return wrap(ErrTruncated, "section header %d: %v", i, err)
		}
		f.sections = append(f.sections, Section{Index: i, Header: sh, file: f})
	}
	f.shstrndx = shstrndx

	if shstrndx != SHN_UNDEF && shstrndx < len(f.sections) {
		strtab, err := f.sections[shstrndx].Data()
		if err != nil {
			return wrap(ErrBadLink, "shstrtab (section %d): %v", shstrndx, err)
		}
		for i := range f.sections {
			f.sections[i].Name = cstrAt(strtab, f.sections[i].Header.Name)
		}
	}
	return nil
}

// cstrAt reads a NUL-terminated string at offset off in a string table,
// returning "" if off is out of range.
func cstrAt(strtab []byte, off uint32) string {
	if int(off) >= len(strtab) {
		return ""
	}
	end := int(off)
	for end < len(strtab) && strtab[end] != 0 {
		end++
	}
	return string(strtab[off:end])
}

// Sections returns every section in file order.
func (f *File) Sections() []Section { return f.sections }

// Section returns the section at index i, or nil if out of range.
func (f *File) Section(i int) *Section {
	if i < 0 || i >= len(f.sections) {
		return nil
	}
	return &f.sections[i]
}

// SectionByName returns the first section with the given name, or nil.
func (f *File) SectionByName(name string) *Section {
	for i := range f.sections {
		if f.sections[i].Name == name {
			return &f.sections[i]
		}
	}
	return nil
}
