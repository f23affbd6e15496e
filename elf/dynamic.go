package elf

import "github.com/Manu343726/elfkit/internal/bytesview"

// DynEntry is one .dynamic entry: a tag plus a value whose interpretation
// (address, size, flag bits, string-table offset) depends on the tag.
type DynEntry struct {
	Tag DynTag
	Val uint64
}

// DynamicEntries decodes a SHT_DYNAMIC section's entries, stopping at (but
// including) the terminating DT_NULL.
func (f *File) DynamicEntries(sec *Section) ([]DynEntry, error) {
	if sec.Header.Type != SHT_DYNAMIC {
		return nil, wrap(ErrBadEnum, "section %s is not SHT_DYNAMIC", sec.Name)
	}
	word := 4
	if f.header.Class == Class64 {
		word = 8
	}
	entSize := word * 2
	if int(sec.Header.EntSize) != 0 && int(sec.Header.EntSize) != entSize {
		return nil, BadEntsizeError(sec.Name, sec.Header.EntSize, uint64(entSize))
	}
	data, err := sec.Data()
	if err != nil {
		return nil, err
	}
	var out []DynEntry
	for off := 0; off+entSize <= len(data); off += entSize {
		c := bytesview.At(f.view, int(sec.Header.Offset)+off)
		var tag int64
		var val uint64
		if f.header.Class == Class64 {
			t, err := c.I64()
			if err != nil {
				return nil, err
			}
			tag = t
			if val, err = c.U64(); err != nil {
				return nil, err
			}
		} else {
			t, err := c.I32()
			if err != nil {
				return nil, err
			}
			tag = int64(t)
			v, err := c.U32()
			if err != nil {
				return nil, err
			}
			val = uint64(v)
		}
		out = append(out, DynEntry{Tag: DynTag(tag), Val: val})
		if DynTag(tag) == DT_NULL {
			break
		}
	}
	return out, nil
}

// DynString resolves a DT_NEEDED-style string-table offset against the
// .dynstr section named by DT_STRTAB, given the already-decoded entries.
func (f *File) DynString(entries []DynEntry, strOff uint64) (string, error) {
	for _, e := range entries {
		if e.Tag == DT_STRTAB {
			sec := f.sectionContainingAddr(e.Val)
			if sec == nil {
				return "", wrap(ErrBadRef, "DT_STRTAB value 0x%x matches no section", e.Val)
			}
			data, err := sec.Data()
			if err != nil {
				return "", err
			}
			return cstrAt(data, uint32(strOff)), nil
		}
	}
	return "", wrap(ErrBadRef, "no DT_STRTAB entry")
}

func (f *File) sectionContainingAddr(addr uint64) *Section {
	for i := range f.sections {
		s := &f.sections[i]
		if s.Header.Flags.Has(SHF_ALLOC) && addr >= s.Header.Addr && addr < s.Header.Addr+s.Header.Size {
			return s
		}
	}
	return nil
}
