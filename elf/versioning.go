package elf

import "github.com/Manu343726/elfkit/internal/bytesview"

// VersionIndex special values a versym entry may hold besides a real
// verdef/verneed index (VER_NDX_*).
const (
	VER_NDX_LOCAL  = 0
	VER_NDX_GLOBAL = 1
)

// VerDefAux is one verdef auxiliary entry: the version name plus, for
// entries beyond the first (parent versions), nothing elfkit needs beyond
// the name.
type VerDefAux struct {
	Name string
}

// VerDef is one Elf_Verdef entry: a version definition with one or more
// aux (name) entries, the first of which is the version's own name.
type VerDef struct {
	Index uint16 // VER_NDX value symbols reference via versym
	Flags uint16
	Aux   []VerDefAux
}

// VerNeedAux is one verneed auxiliary entry: an imported version name and
// the VER_NDX value versym entries use to reference it.
type VerNeedAux struct {
	Name  string
	Other uint16 // VER_NDX value
}

// VerNeed is one Elf_Verneed entry: a needed shared object plus the
// specific versions imported from it.
type VerNeed struct {
	File string
	Aux  []VerNeedAux
}

// VersionDefs decodes a SHT_GNU_verdef section, resolving names against
// the string table named by its sh_link.
func (f *File) VersionDefs(sec *Section) ([]VerDef, error) {
	if sec.Header.Type != SHT_GNU_verdef {
		return nil, wrap(ErrBadEnum, "section %s is not SHT_GNU_verdef", sec.Name)
	}
	strtab, err := f.linkedStrtab(sec)
	if err != nil {
		return nil, err
	}
	data, err := sec.Data()
	if err != nil {
		return nil, err
	}

	var defs []VerDef
	off := 0
	for off < len(data) {
		c := bytesview.At(f.view, int(sec.Header.Offset)+off)
		if _, err := c.U16(); err != nil { // vd_version
			return nil, err
		}
		flags, err := c.U16()
		if err != nil {
			return nil, err
		}
		ndx, err := c.U16()
		if err != nil {
			return nil, err
		}
		cnt, err := c.U16()
		if err != nil {
			return nil, err
		}
		if _, err := c.U32(); err != nil { // vd_hash
			return nil, err
		}
		auxOff, err := c.U32()
		if err != nil {
			return nil, err
		}
		next, err := c.U32()
		if err != nil {
			return nil, err
		}

		vd := VerDef{Index: ndx, Flags: flags}
		auxPos := off + int(auxOff)
		for i := 0; i < int(cnt); i++ {
			ac := bytesview.At(f.view, int(sec.Header.Offset)+auxPos)
			nameOff, err := ac.U32()
			if err != nil {
				return nil, err
			}
			auxNext, err := ac.U32()
			if err != nil {
				return nil, err
			}
			vd.Aux = append(vd.Aux, VerDefAux{Name: cstrAt(strtab, nameOff)})
			if auxNext == 0 {
				break
			}
			auxPos += int(auxNext)
		}
		defs = append(defs, vd)

		if next == 0 {
			break
		}
		off += int(next)
	}
	return defs, nil
}

// VersionNeeds decodes a SHT_GNU_verneed section.
func (f *File) VersionNeeds(sec *Section) ([]VerNeed, error) {
	if sec.Header.Type != SHT_GNU_verneed {
		return nil, wrap(ErrBadEnum, "section %s is not SHT_GNU_verneed", sec.Name)
	}
	strtab, err := f.linkedStrtab(sec)
	if err != nil {
		return nil, err
	}
	data, err := sec.Data()
	if err != nil {
		return nil, err
	}

	var needs []VerNeed
	off := 0
	for off < len(data) {
		c := bytesview.At(f.view, int(sec.Header.Offset)+off)
		if _, err := c.U16(); err != nil { // vn_version
			return nil, err
		}
		cnt, err := c.U16()
		if err != nil {
			return nil, err
		}
		fileOff, err := c.U32()
		if err != nil {
			return nil, err
		}
		auxOff, err := c.U32()
		if err != nil {
			return nil, err
		}
		next, err := c.U32()
		if err != nil {
			return nil, err
		}

		vn := VerNeed{File: cstrAt(strtab, fileOff)}
		auxPos := off + int(auxOff)
		for i := 0; i < int(cnt); i++ {
			ac := bytesview.At(f.view, int(sec.Header.Offset)+auxPos)
			if _, err := ac.U32(); err != nil { // vna_hash
				return nil, err
			}
			if _, err := ac.U16(); err != nil { // vna_flags
				return nil, err
			}
			other, err := ac.U16()
			if err != nil {
				return nil, err
			}
			nameOff, err := ac.U32()
			if err != nil {
				return nil, err
			}
			auxNext, err := ac.U32()
			if err != nil {
				return nil, err
			}
			vn.Aux = append(vn.Aux, VerNeedAux{Name: cstrAt(strtab, nameOff), Other: other})
			if auxNext == 0 {
				break
			}
			auxPos += int(auxNext)
		}
		needs = append(needs, vn)

		if next == 0 {
			break
		}
		off += int(next)
	}
	return needs, nil
}

// VersionSyms decodes a SHT_GNU_versym section into one uint16 VER_NDX
// value per symbol-table entry.
func (f *File) VersionSyms(sec *Section) ([]uint16, error) {
	if sec.Header.Type != SHT_GNU_versym {
		return nil, wrap(ErrBadEnum, "section %s is not SHT_GNU_versym", sec.Name)
	}
	data, err := sec.Data()
	if err != nil {
		return nil, err
	}
	out := make([]uint16, 0, len(data)/2)
	for i := 0; i+2 <= len(data); i += 2 {
		out = append(out, uint16At(f.header.Order(), data, i))
	}
	return out, nil
}

func (f *File) linkedStrtab(sec *Section) ([]byte, error) {
	if int(sec.Header.Link) >= len(f.sections) {
		return nil, BadLinkError(sec.Index, "sh_link", sec.Header.Link)
	}
	return f.sections[sec.Header.Link].Data()
}
