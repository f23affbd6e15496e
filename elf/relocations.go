package elf

import "github.com/Manu343726/elfkit/internal/bytesview"

// Relocation is one REL or RELA entry, normalized to always carry an
// Addend (zero, and AddendPresent false, for REL sections — spec.md §3
// "Relocation" lists addend as optional).
type Relocation struct {
	Offset        uint64
	SymbolIndex   uint32
	Type          uint32
	Addend        int64
	AddendPresent bool
}

// rInfo splits a 32-bit or 64-bit r_info field into (symbol index, type),
// matching the gABI's ELF32_R_SYM/TYPE and ELF64_R_SYM/TYPE macros.
func rInfo(class Class, info uint64) (sym uint32, typ uint32) {
	if class == Class64 {
		return uint32(info >> 32), uint32(info)
	}
	return uint32(info >> 8), uint32(info & 0xff)
}

// Relocations decodes every entry of a REL or RELA section.
func (f *File) Relocations(sec *Section) ([]Relocation, error) {
	isRela := sec.Header.Type == SHT_RELA
	if !isRela && sec.Header.Type != SHT_REL {
		return nil, wrap(ErrBadEnum, "section %s is not a relocation table", sec.Name)
	}

	entSize := int(sec.Header.EntSize)
	wantEntSize := f.relEntSize(isRela)
	if entSize != wantEntSize {
		return nil, BadEntsizeError(sec.Name, uint64(entSize), uint64(wantEntSize))
	}
	data, err := sec.Data()
	if err != nil {
		return nil, err
	}
	if entSize == 0 {
		return nil, nil
	}
	count := len(data) / entSize

	relocs := make([]Relocation, 0, count)
	for i := 0; i < count; i++ {
		c := bytesview.At(f.view, int(sec.Header.Offset)+i*entSize)
		var r Relocation
		var info uint64
		if f.header.Class == Class64 {
			off, err := c.U64()
			if err != nil {
				return nil, err
			}
			r.Offset = off
			info, err = c.U64()
			if err != nil {
				return nil, err
			}
		} else {
			off, err := c.U32()
			if err != nil {
				return nil, err
			}
			r.Offset = uint64(off)
			info32, err := c.U32()
			if err != nil {
				return nil, err
			}
			info = uint64(info32)
		}
		r.SymbolIndex, r.Type = rInfo(f.header.Class, info)

		if isRela {
			if f.header.Class == Class64 {
				addend, err := c.I64()
				if err != nil {
					return nil, err
				}
				r.Addend = addend
			} else {
				addend, err := c.I32()
				if err != nil {
					return nil, err
				}
				r.Addend = int64(addend)
			}
			r.AddendPresent = true
		}
		relocs = append(relocs, r)
	}
	return relocs, nil
}

func (f *File) relEntSize(isRela bool) int {
	word := 4
	if f.header.Class == Class64 {
		word = 8
	}
	if isRela {
		return word * 3
	}
	return word * 2
}
