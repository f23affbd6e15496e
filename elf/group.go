package elf

import "github.com/Manu343726/elfkit/internal/bytesview"

// GroupFlag is a SHT_GROUP section's leading flags word (GRP_*).
type GroupFlag uint32

const (
	GRP_COMDAT GroupFlag = 0x1
)

// Group is a decoded section group: a flags word plus the indices of its
// member sections (sh_link names the symbol table whose symbol — given by
// sh_info — names the group, per the gABI).
type Group struct {
	Flags       GroupFlag
	SymbolIndex uint32 // sh_info: index into the sh_link symbol table
	Members     []uint32
}

// SectionGroup decodes a SHT_GROUP section.
func (f *File) SectionGroup(sec *Section) (*Group, error) {
	if sec.Header.Type != SHT_GROUP {
		return nil, wrap(ErrBadEnum, "section %s is not SHT_GROUP", sec.Name)
	}
	data, err := sec.Data()
	if err != nil {
		return nil, err
	}
	if len(data) < 4 || len(data)%4 != 0 {
		return nil, BadEntsizeError(sec.Name, uint64(len(data)), 4)
	}
	c := bytesview.At(f.view, int(sec.Header.Offset))
	flags, err := c.U32()
	if err != nil {
		return nil, err
	}
	g := &Group{Flags: GroupFlag(flags), SymbolIndex: sec.Header.Info}
	for i := 4; i < len(data); i += 4 {
		m, err := c.U32()
		if err != nil {
			return nil, err
		}
		g.Members = append(g.Members, m)
	}
	return g, nil
}
