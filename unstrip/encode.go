package unstrip

import (
	"encoding/binary"

	"github.com/Manu343726/elfkit/elf"
)

// buildStrtab serializes syms' names into a fresh string table, leading
// with the mandatory empty string at offset 0.
func buildStrtab(syms []elf.Symbol) ([]byte, []uint32) {
	data := []byte{0}
	offsets := make([]uint32, len(syms))
	seen := map[string]uint32{"": 0}
	for i, s := range syms {
		if off, ok := seen[s.Name]; ok {
			offsets[i] = off
			continue
		}
		off := uint32(len(data))
		data = append(data, s.Name...)
		data = append(data, 0)
		seen[s.Name] = off
		offsets[i] = off
	}
	return data, offsets
}

// encodeSymtab serializes syms in Elf32_Sym/Elf64_Sym on-disk layout,
// mirroring parseSymbolAt's field order in reverse.
func encodeSymtab(syms []elf.Symbol, nameOffsets []uint32, class elf.Class, bo binary.ByteOrder) []byte {
	entSize := 24
	if class == elf.Class32 {
		entSize = 16
	}
	out := make([]byte, entSize*len(syms))
	for i, s := range syms {
		b := out[i*entSize:]
		if class == elf.Class64 {
			bo.PutUint32(b[0:], nameOffsets[i])
			b[4] = s.Info
			b[5] = s.Other
			bo.PutUint16(b[6:], uint16(s.Shndx))
			bo.PutUint64(b[8:], s.Value)
			bo.PutUint64(b[16:], s.Size)
		} else {
			bo.PutUint32(b[0:], nameOffsets[i])
			bo.PutUint32(b[4:], uint32(s.Value))
			bo.PutUint32(b[8:], uint32(s.Size))
			b[12] = s.Info
			b[13] = s.Other
			bo.PutUint16(b[14:], uint16(s.Shndx))
		}
	}
	return out
}

// encodeRelocations serializes relocs in Elf32_Rel(a)/Elf64_Rel(a) on-disk
// layout, mirroring Relocations' decode in reverse.
func encodeRelocations(relocs []elf.Relocation, class elf.Class, bo binary.ByteOrder, isRela bool) []byte {
	word := 4
	if class == elf.Class64 {
		word = 8
	}
	entSize := word * 2
	if isRela {
		entSize = word * 3
	}
	out := make([]byte, entSize*len(relocs))
	for i, r := range relocs {
		b := out[i*entSize:]
		if class == elf.Class64 {
			bo.PutUint64(b[0:], r.Offset)
			bo.PutUint64(b[8:], uint64(r.SymbolIndex)<<32|uint64(r.Type))
			if isRela {
				bo.PutUint64(b[16:], uint64(r.Addend))
			}
		} else {
			bo.PutUint32(b[0:], uint32(r.Offset))
			bo.PutUint32(b[4:], r.SymbolIndex<<8|(r.Type&0xff))
			if isRela {
				bo.PutUint32(b[8:], uint32(r.Addend))
			}
		}
	}
	return out
}
