package unstrip

import (
	"encoding/binary"
	"fmt"

	"github.com/Manu343726/elfkit/elf"
)

// emit lays plan's sections, the reconciled symbol table, and every
// relocation section (rewritten through merged's permutation maps) into
// b, completing spec.md §4.J points 5-8.
func (plan *sectionPlan) emit(b *elf.Builder, stripped, debug *elf.File, merged *mergedSymbols) error {
	bo := byteOrderOf(debug)
	class := debug.Header().Class

	nameToMIndex := map[string]uint32{}
	for i, e := range plan.entries {
		nameToMIndex[e.name] = uint32(i + 1)
	}

	symtabMIndex := uint32(len(plan.entries) + 1)

	for _, e := range plan.entries {
		data, err := e.sectionData(stripped, debug)
		if err != nil {
			return fmt.Errorf("unstrip: section %s: %w", e.name, err)
		}

		h := e.header
		srcFile, srcIdx, perm := relocSource(stripped, debug, merged, e)
		pin := e.alloc

		// Default sh_link fixup: carry through to whichever merged
		// section now holds what the original section linked to (e.g.
		// .dynsym's link to .dynstr, or .gnu.hash/.gnu.version's link
		// to .dynsym). The type-specific cases below override this when
		// a section links to the *static* symtab being reconciled,
		// since that table's layout just changed.
		origLink := h.Link
		linksToMergedSymtab := origLink != 0 && int(origLink) == symtabIndexIn(srcFile)
		h.Link = 0
		if origLink != 0 {
			if name := originalSectionName(srcFile, int(origLink)); name != "" {
				h.Link = nameToMIndex[name]
			}
		}

		switch h.Type {
		case elf.SHT_REL, elf.SHT_RELA:
			sec := srcFile.Section(srcIdx)
			relocs, err := srcFile.Relocations(sec)
			if err != nil {
				return fmt.Errorf("unstrip: decoding relocations in %s: %w", e.name, err)
			}
			if linksToMergedSymtab {
				for i := range relocs {
					if newIdx, ok := perm[int(relocs[i].SymbolIndex)]; ok {
						relocs[i].SymbolIndex = uint32(newIdx)
					}
				}
				h.Link = symtabMIndex
			}
			data = encodeRelocations(relocs, class, bo, h.Type == elf.SHT_RELA)
			h.Info = nameToMIndex[originalSectionName(srcFile, int(sec.Header.Info))]

		case elf.SHT_GROUP:
			if linksToMergedSymtab {
				if n, ok := perm[int(h.Info)]; ok {
					h.Info = uint32(n)
				}
				h.Link = symtabMIndex
			}

		case elf.SHT_HASH:
			// spec.md §4.J step 6: rebuild the hash table over the
			// reconciled symtab (original_source/src/unstrip.c's
			// CONVERT_HASH). A .hash linked to .dynsym instead (the
			// common case) is left untouched: .dynsym is carried
			// through unchanged, so its hash table already matches.
			if linksToMergedSymtab {
				sec := srcFile.Section(srcIdx)
				oldHash, err := srcFile.SysVHashTable(sec)
				if err != nil {
					return fmt.Errorf("unstrip: decoding hash table %s: %w", e.name, err)
				}
				data = encodeSysVHash(rebuildSysVHash(oldHash, perm, len(merged.syms)), bo)
				h.Link = symtabMIndex
				// The rebuilt table's size tracks the merged symbol count,
				// not the original section's slot: an alloc section can no
				// longer keep its old file offset pinned once its length
				// changes, or it would spill into whatever pinned section
				// followed it in the original layout.
				pin = false
			}

		case elf.SHT_GNU_versym:
			// spec.md §4.J step 6: rebuild GNU_versym over the
			// reconciled symtab the same way, per unstrip.c's
			// SHT_GNU_versym case.
			if linksToMergedSymtab {
				sec := srcFile.Section(srcIdx)
				oldVersym, err := srcFile.VersionSyms(sec)
				if err != nil {
					return fmt.Errorf("unstrip: decoding versym table %s: %w", e.name, err)
				}
				data = encodeVersym(rebuildVersym(oldVersym, perm, len(merged.syms)), bo)
				h.Link = symtabMIndex
				pin = false
			}
		}

		b.AddSection(elf.BuilderSection{
			Name:      e.name,
			Header:    h,
			Data:      data,
			NoBits:    h.Type == elf.SHT_NOBITS,
			AlignTo:   h.AddrAlign,
			PinOffset: pin,
		})
	}

	strtabIdx := uint32(len(plan.entries) + 2)

	strtabData, nameOffsets := buildStrtab(merged.syms)
	symtabData := encodeSymtab(merged.syms, nameOffsets, class, bo)

	entSize := 24
	if class == elf.Class32 {
		entSize = 16
	}
	b.AddSection(elf.BuilderSection{
		Name: ".symtab",
		Header: elf.SectionHeader{
			Type:      elf.SHT_SYMTAB,
			Link:      strtabIdx,
			Info:      uint32(merged.firstNonLocal),
			EntSize:   uint64(entSize),
			AddrAlign: 8,
		},
		Data:    symtabData,
		AlignTo: 8,
	})
	b.AddSection(elf.BuilderSection{
		Name:    ".strtab",
		Header:  elf.SectionHeader{Type: elf.SHT_STRTAB},
		Data:    strtabData,
		AlignTo: 1,
	})

	return nil
}

// relocSource picks which original file (and hence which permutation map)
// governs a kept-from-debug vs. filled/new-from-stripped section.
func relocSource(stripped, debug *elf.File, merged *mergedSymbols, e planEntry) (*elf.File, int, map[int]int) {
	if e.kind == kindKeepFromDebug {
		return debug, e.debugIndex, merged.permD
	}
	return stripped, e.strippedIndex, merged.permS
}

func originalSectionName(f *elf.File, index int) string {
	if sec := f.Section(index); sec != nil {
		return sec.Name
	}
	return ""
}

func byteOrderOf(f *elf.File) binary.ByteOrder {
	if f.Header().Data == elf.Data2MSB {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
