package unstrip

import (
	"fmt"
	"sort"

	"github.com/Manu343726/elfkit/elf"
)

// mergedSymbols is the reconciled symbol table plus the old->new index
// permutations needed to rewrite every relocation that referenced either
// source file's table (spec.md §4.J points 6-7).
type mergedSymbols struct {
	syms          []elf.Symbol
	permD         map[int]int
	permS         map[int]int
	firstNonLocal int
}

func findSymtab(f *elf.File) *elf.Section {
	for _, s := range f.Sections() {
		if s.Header.Type == elf.SHT_SYMTAB {
			sec := s
			return &sec
		}
	}
	return nil
}

// symtabIndexIn returns f's own .symtab section index, or -1 if f has
// none. Used to tell a SHT_HASH/SHT_GNU_versym/SHT_REL/SHT_GROUP
// section's sh_link apart: whether it refers to the static symbol table
// being reconciled (needs index remapping through the merge permutation)
// or to something else, like .dynsym (carried through unchanged).
func symtabIndexIn(f *elf.File) int {
	sec := findSymtab(f)
	if sec == nil {
		return -1
	}
	return sec.Index
}

type symKey struct {
	name         string
	value, size  uint64
	info, other  byte
	sectionName  string
	isUndefOrAbs bool
}

func keyFor(f *elf.File, s elf.Symbol) symKey {
	k := symKey{name: s.Name, value: s.Value, size: s.Size, info: s.Info, other: s.Other}
	if def := f.DefinedSection(s); def != nil {
		k.sectionName = def.Name
	} else {
		k.isUndefOrAbs = true
	}
	return k
}

// mergeSymbols builds M's SYMTAB: spec.md §4.J point 6 (dedup+sort+
// permutation) and point 7 (section-symbol top-up). plan gives the final
// section order, so plan section i (0-based) lands at M section index i+1.
func mergeSymbols(stripped, debug *elf.File, plan *sectionPlan) (*mergedSymbols, error) {
	nameToMIndex := map[string]uint32{}
	for i, e := range plan.entries {
		nameToMIndex[e.name] = uint32(i + 1)
	}

	m := &mergedSymbols{permD: map[int]int{}, permS: map[int]int{}}
	m.syms = append(m.syms, elf.Symbol{}) // index 0: the reserved null symbol

	// Section symbols: exactly one per M section, regenerated fresh so
	// their Shndx always matches the merged layout. Any original section
	// symbol (from either file) permutes onto the one for its section's
	// name.
	for i := range plan.entries {
		m.syms = append(m.syms, elf.Symbol{
			Info:  elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION),
			Shndx: uint32(i + 1),
		})
	}
	sectionSymIndex := func(name string) int {
		if idx, ok := nameToMIndex[name]; ok {
			return int(idx)
		}
		return 0
	}

	type nonSectionSym struct {
		sym       elf.Symbol
		dIdx, sIdx int // -1 if absent from that table
		seq       int
	}
	byKey := map[symKey]*nonSectionSym{}
	var order []symKey
	seq := 0

	mergeFrom := func(f *elf.File, isDebug bool) error {
		sec := findSymtab(f)
		if sec == nil {
			return nil
		}
		syms, err := f.SymbolTable(sec, nil)
		if err != nil {
			return fmt.Errorf("unstrip: decoding symtab: %w", err)
		}
		for i, s := range syms {
			if i == 0 {
				continue
			}
			if s.Type() == elf.STT_SECTION {
				if def := f.DefinedSection(s); def != nil {
					newIdx := sectionSymIndex(def.Name)
					if isDebug {
						m.permD[i] = newIdx
					} else {
						m.permS[i] = newIdx
					}
				}
				continue
			}
			k := keyFor(f, s)
			ns, ok := byKey[k]
			if !ok {
				ns = &nonSectionSym{sym: s, dIdx: -1, sIdx: -1, seq: seq}
				seq++
				byKey[k] = ns
				order = append(order, k)
				if def := f.DefinedSection(s); def != nil {
					ns.sym.Shndx = uint32(sectionSymIndex(def.Name))
				}
			}
			if isDebug {
				ns.dIdx = i
			} else {
				ns.sIdx = i
			}
		}
		return nil
	}

	if err := mergeFrom(debug, true); err != nil {
		return nil, err
	}
	if err := mergeFrom(stripped, false); err != nil {
		return nil, err
	}

	// Stable ordering: locals (binutils groups section symbols first,
	// already emitted above, then other locals) before non-locals;
	// first-seen order preserved within each group.
	sort.SliceStable(order, func(i, j int) bool {
		a, b := byKey[order[i]], byKey[order[j]]
		al := a.sym.Bind() == elf.STB_LOCAL
		bl := b.sym.Bind() == elf.STB_LOCAL
		if al != bl {
			return al
		}
		return a.seq < b.seq
	})

	firstNonLocal := -1
	base := len(plan.entries) + 1
	for idx, k := range order {
		ns := byKey[k]
		newIdx := base + idx
		if firstNonLocal == -1 && ns.sym.Bind() != elf.STB_LOCAL {
			firstNonLocal = newIdx
		}
		m.syms = append(m.syms, ns.sym)
		if ns.dIdx >= 0 {
			m.permD[ns.dIdx] = newIdx
		}
		if ns.sIdx >= 0 {
			m.permS[ns.sIdx] = newIdx
		}
	}
	if firstNonLocal == -1 {
		firstNonLocal = len(m.syms)
	}
	m.firstNonLocal = firstNonLocal
	return m, nil
}
