package elf

import "github.com/Manu343726/elfkit/internal/bytesview"

// Note is one Elf_Nhdr entry: a name, a type, and a descriptor payload.
// Notes pads names and descriptors to 4-byte words whatever the file's ELF
// class or the containing section's alignment; it does not decode notes
// laid out with 8-byte padding (elflint parses those separately).
type Note struct {
	Name string
	Type NoteType
	Desc []byte
}

// Notes decodes every note record from a SHT_NOTE section's bytes.
func Notes(data []byte, order bytesview.Order) ([]Note, error) {
	v := bytesview.New(data, order)
	c := bytesview.NewCursor(v)
	var notes []Note
	for c.Remaining() > 0 {
		if c.Remaining() < 12 {
			return nil, wrap(ErrTruncated, "partial note header (%d bytes left)", c.Remaining())
		}
		nameSz, err := c.U32()
		if err != nil {
			return nil, err
		}
		descSz, err := c.U32()
		if err != nil {
			return nil, err
		}
		typ, err := c.U32()
		if err != nil {
			return nil, err
		}
		name, err := c.Bytes(int(nameSz))
		if err != nil {
			return nil, wrap(ErrTruncated, "note name (%d bytes): %v", nameSz, err)
		}
		alignTo(c, 4)
		desc, err := c.Bytes(int(descSz))
		if err != nil {
			return nil, wrap(ErrTruncated, "note desc (%d bytes): %v", descSz, err)
		}
		alignTo(c, 4)

		nameStr := string(name)
		if n := len(nameStr); n > 0 && nameStr[n-1] == 0 {
			nameStr = nameStr[:n-1]
		}
		notes = append(notes, Note{Name: nameStr, Type: NoteType(typ), Desc: desc})
	}
	return notes, nil
}

// alignTo advances c to the next multiple of n, clamped to the view's
// length (a trailing partial pad at EOF is tolerated).
func alignTo(c *bytesview.Cursor, n int) {
	rem := c.Pos() % n
	if rem == 0 {
		return
	}
	pad := n - rem
	if pad > c.Remaining() {
		pad = c.Remaining()
	}
	c.SeekTo(c.Pos() + pad)
}

// BuildID returns the bytes of the NT_GNU_BUILD_ID note's descriptor, if
// any .note.* section carries one. Used by debuglink.ResolveByBuildID.
func (f *File) BuildID() ([]byte, error) {
	for i := range f.sections {
		s := &f.sections[i]
		if s.Header.Type != SHT_NOTE {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, err
		}
		notes, err := Notes(data, f.header.Order())
		if err != nil {
			continue
		}
		for _, n := range notes {
			if n.Name == "GNU" && n.Type == NT_GNU_BUILD_ID {
				return n.Desc, nil
			}
		}
	}
	return nil, nil
}
