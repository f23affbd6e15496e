package elf

import "encoding/binary"

// writeHeader serializes h into out[0:ehsize], out being at least ehsize
// long.
func writeHeader(out []byte, h *Header, bo binary.ByteOrder) {
	out[0], out[1], out[2], out[3] = elfMagic[0], elfMagic[1], elfMagic[2], elfMagic[3]
	out[4] = byte(h.Class)
	out[5] = byte(h.Data)
	out[6] = 1 // EI_VERSION
	out[7] = byte(h.OSABI)
	out[8] = h.ABIVersion
	// bytes 9-15 are padding, left zero

	bo.PutUint16(out[16:], uint16(h.Type))
	bo.PutUint16(out[18:], uint16(h.Machine))
	bo.PutUint32(out[20:], h.Version)

	if h.Class == Class64 {
		bo.PutUint64(out[24:], h.Entry)
		bo.PutUint64(out[32:], h.PhOff)
		bo.PutUint64(out[40:], h.ShOff)
		bo.PutUint32(out[48:], h.Flags)
		bo.PutUint16(out[52:], h.EhSize)
		bo.PutUint16(out[54:], h.PhEntSize)
		bo.PutUint16(out[56:], h.PhNum)
		bo.PutUint16(out[58:], h.ShEntSize)
		bo.PutUint16(out[60:], h.ShNum)
		bo.PutUint16(out[62:], h.ShStrNdx)
		return
	}
	bo.PutUint32(out[24:], uint32(h.Entry))
	bo.PutUint32(out[28:], uint32(h.PhOff))
	bo.PutUint32(out[32:], uint32(h.ShOff))
	bo.PutUint32(out[36:], h.Flags)
	bo.PutUint16(out[40:], h.EhSize)
	bo.PutUint16(out[42:], h.PhEntSize)
	bo.PutUint16(out[44:], h.PhNum)
	bo.PutUint16(out[46:], h.ShEntSize)
	bo.PutUint16(out[48:], h.ShNum)
	bo.PutUint16(out[50:], h.ShStrNdx)
}

func writeProgramHeader(out []byte, p ProgramHeader, class Class, bo binary.ByteOrder) {
	if class == Class64 {
		bo.PutUint32(out[0:], uint32(p.Type))
		bo.PutUint32(out[4:], uint32(p.Flags))
		bo.PutUint64(out[8:], p.Offset)
		bo.PutUint64(out[16:], p.VAddr)
		bo.PutUint64(out[24:], p.PAddr)
		bo.PutUint64(out[32:], p.FileSz)
		bo.PutUint64(out[40:], p.MemSz)
		bo.PutUint64(out[48:], p.Align)
		return
	}
	bo.PutUint32(out[0:], uint32(p.Type))
	bo.PutUint32(out[4:], uint32(p.Offset))
	bo.PutUint32(out[8:], uint32(p.VAddr))
	bo.PutUint32(out[12:], uint32(p.PAddr))
	bo.PutUint32(out[16:], uint32(p.FileSz))
	bo.PutUint32(out[20:], uint32(p.MemSz))
	bo.PutUint32(out[24:], uint32(p.Flags))
	bo.PutUint32(out[28:], uint32(p.Align))
}

func writeSectionHeader(out []byte, s SectionHeader, class Class, bo binary.ByteOrder) {
	bo.PutUint32(out[0:], s.Name)
	bo.PutUint32(out[4:], uint32(s.Type))
	if class == Class64 {
		bo.PutUint64(out[8:], uint64(s.Flags))
		bo.PutUint64(out[16:], s.Addr)
		bo.PutUint64(out[24:], s.Offset)
		bo.PutUint64(out[32:], s.Size)
		bo.PutUint32(out[40:], s.Link)
		bo.PutUint32(out[44:], s.Info)
		bo.PutUint64(out[48:], s.AddrAlign)
		bo.PutUint64(out[56:], s.EntSize)
		return
	}
	bo.PutUint32(out[8:], uint32(s.Flags))
	bo.PutUint32(out[12:], uint32(s.Addr))
	bo.PutUint32(out[16:], uint32(s.Offset))
	bo.PutUint32(out[20:], uint32(s.Size))
	bo.PutUint32(out[24:], s.Link)
	bo.PutUint32(out[28:], s.Info)
	bo.PutUint32(out[32:], uint32(s.AddrAlign))
	bo.PutUint32(out[36:], uint32(s.EntSize))
}

// strtabInterner builds a string table that reuses an existing entry when
// the exact same string is interned again; it does not share suffixes.
type strtabInterner struct {
	buf    []byte
	byName map[string]uint32
}

func newStrtabInterner() *strtabInterner {
	return &strtabInterner{buf: []byte{0}, byName: map[string]uint32{"": 0}}
}

func (s *strtabInterner) intern(name string) uint32 {
	if off, ok := s.byName[name]; ok {
		return off
	}
	off := uint32(len(s.buf))
	s.buf = append(s.buf, name...)
	s.buf = append(s.buf, 0)
	s.byName[name] = off
	return off
}

func (s *strtabInterner) bytes() []byte { return s.buf }
