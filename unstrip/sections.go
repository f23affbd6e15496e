package unstrip

import (
	"fmt"

	"github.com/Manu343726/elfkit/elf"
	"golang.org/x/exp/slices"
)

// specialSectionNames are synthesized wholesale by mergeSymbols/emit
// rather than matched against one source file's content: the merged
// symbol table and its string table. Everything else, including
// .dynsym/.dynstr/.hash/.gnu.hash/.gnu.version* , goes through the
// generic NOBITS-fill / append pass like any other section, and gets
// its content fixed up (if it needs fixing up at all) by emit's
// per-type switch — the same architecture SHT_REL/SHT_RELA/SHT_GROUP
// already use.
var specialSectionNames = map[string]bool{
	".symtab": true, ".strtab": true, ".shstrtab": true,
}

type planKind int

const (
	kindKeepFromDebug planKind = iota // D's own section, content unchanged
	kindFillFromStripped              // D's section was NOBITS; content comes from S
	kindNewFromStripped               // S has no counterpart in D at all
)

type planEntry struct {
	kind   planKind
	name   string
	header elf.SectionHeader // source header; Offset/Size/Name rewritten at emit time
	alloc  bool

	debugIndex    int // -1 if none
	strippedIndex int // -1 if none
}

type sectionPlan struct {
	entries []planEntry
}

func matchKeyAlloc(h elf.SectionHeader, name string) string {
	return fmt.Sprintf("a:%x:%s:%d", uint64(h.Flags), name, h.Size)
}

func matchKeyUnalloc(h elf.SectionHeader, name string) string {
	return fmt.Sprintf("u:%x:%s", uint64(h.Flags), name)
}

// planSections implements spec.md §4.J steps 3-5: sort S's sections,
// fill D's NOBITS placeholders from S's real content, and append any S
// section with no counterpart in D.
func planSections(stripped, debug *elf.File) (*sectionPlan, error) {
	sSecs := stripped.Sections()
	dSecs := debug.Sections()

	type candidate struct {
		index int
		sec   elf.Section
	}
	allocCandidates := map[string]candidate{}
	unallocCandidates := map[string]candidate{}
	for i := 1; i < len(sSecs); i++ {
		s := sSecs[i]
		if specialSectionNames[s.Name] {
			continue
		}
		if s.Header.Flags.Has(elf.SHF_ALLOC) {
			allocCandidates[matchKeyAlloc(s.Header, s.Name)] = candidate{i, s}
		} else {
			unallocCandidates[matchKeyUnalloc(s.Header, s.Name)] = candidate{i, s}
		}
	}

	plan := &sectionPlan{}
	matchedFromS := map[int]bool{}

	for i := 1; i < len(dSecs); i++ {
		d := dSecs[i]
		if specialSectionNames[d.Name] {
			continue
		}
		alloc := d.Header.Flags.Has(elf.SHF_ALLOC)
		if d.Header.Type == elf.SHT_NOBITS && alloc {
			key := matchKeyAlloc(d.Header, d.Name)
			if c, ok := allocCandidates[key]; ok {
				matchedFromS[c.index] = true
				plan.entries = append(plan.entries, planEntry{
					kind: kindFillFromStripped, name: d.Name, header: c.sec.Header,
					alloc: true, debugIndex: i, strippedIndex: c.index,
				})
				continue
			}
		}
		plan.entries = append(plan.entries, planEntry{
			kind: kindKeepFromDebug, name: d.Name, header: d.Header,
			alloc: alloc, debugIndex: i, strippedIndex: -1,
		})
	}

	var newEntries []planEntry
	for key, c := range allocCandidates {
		_ = key
		if !matchedFromS[c.index] {
			newEntries = append(newEntries, planEntry{
				kind: kindNewFromStripped, name: c.sec.Name, header: c.sec.Header,
				alloc: true, debugIndex: -1, strippedIndex: c.index,
			})
		}
	}
	for key, c := range unallocCandidates {
		_ = key
		newEntries = append(newEntries, planEntry{
			kind: kindNewFromStripped, name: c.sec.Name, header: c.sec.Header,
			alloc: false, debugIndex: -1, strippedIndex: c.index,
		})
	}

	plan.entries = append(plan.entries, newEntries...)

	// spec.md §4.J point 3: allocated sections sort by (address, size,
	// flags, name); unallocated by (flags, name). Applies uniformly so
	// kept/filled/new sections all land in the same deterministic order.
	slices.SortFunc(plan.entries, sectionOrder)
	return plan, nil
}

func sectionOrder(a, b planEntry) int {
	if a.alloc != b.alloc {
		if a.alloc {
			return -1
		}
		return 1
	}
	if a.alloc {
		if a.header.Addr != b.header.Addr {
			return cmpU64(a.header.Addr, b.header.Addr)
		}
		if a.header.Size != b.header.Size {
			return cmpU64(a.header.Size, b.header.Size)
		}
		if a.header.Flags != b.header.Flags {
			return cmpU64(uint64(a.header.Flags), uint64(b.header.Flags))
		}
		return cmpString(a.name, b.name)
	}
	if a.header.Flags != b.header.Flags {
		return cmpU64(uint64(a.header.Flags), uint64(b.header.Flags))
	}
	return cmpString(a.name, b.name)
}

func cmpU64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// sectionData returns the bytes an entry should carry in M, reading from
// whichever source file actually holds its content.
func (e planEntry) sectionData(stripped, debug *elf.File) ([]byte, error) {
	switch e.kind {
	case kindKeepFromDebug:
		sec := debug.Section(e.debugIndex)
		if sec.Header.Type == elf.SHT_NOBITS {
			return nil, nil
		}
		return sec.Data()
	case kindFillFromStripped, kindNewFromStripped:
		sec := stripped.Section(e.strippedIndex)
		if sec.Header.Type == elf.SHT_NOBITS {
			return nil, nil
		}
		return sec.Data()
	}
	return nil, fmt.Errorf("unstrip: unknown plan entry kind %d", e.kind)
}
