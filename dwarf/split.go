package dwarf

import (
	"fmt"
	"os"
	"strings"
)

// CuID identifies a compilation unit across files: the DWOID carried by a
// skeleton/split unit header (spec.md §4.F point 5 / §9's "Cyclic
// skeleton<->split link" redesign note — a lookup table keyed by unit id,
// never a back-pointer baked into the DIE tree).
type CuID uint64

// SplitLink records that a skeleton unit's split counterpart was found,
// by unit id rather than by pointer.
type SplitLink struct {
	SkeletonCU CuID
	SplitCU    CuID
	SplitPath  string
}

// SplitLinker accumulates SplitLinks as skeleton units are resolved. The
// zero value is ready to use.
type SplitLinker struct {
	links map[CuID]SplitLink
}

// Link records a resolved skeleton/split pairing.
func (s *SplitLinker) Link(skeleton, split CuID, path string) {
	if s.links == nil {
		s.links = map[CuID]SplitLink{}
	}
	s.links[skeleton] = SplitLink{SkeletonCU: skeleton, SplitCU: split, SplitPath: path}
}

// Lookup returns the split pairing for a skeleton unit id, if resolved.
func (s *SplitLinker) Lookup(skeleton CuID) (SplitLink, bool) {
	if s.links == nil {
		return SplitLink{}, false
	}
	l, ok := s.links[skeleton]
	return l, ok
}

// SplitCandidatePath computes the .dwo->.o substitution find-debuginfo.c's
// split-DWARF counterpart of debuglink resolution performs when no
// explicit path is supplied: replacing a trailing ".dwo" with ".o".
func SplitCandidatePath(moduleFile string) string {
	if strings.HasSuffix(moduleFile, ".dwo") {
		return strings.TrimSuffix(moduleFile, ".dwo") + ".o"
	}
	return moduleFile
}

// ResolveSplit locates u's split partner (u must be a skeleton unit — see
// Unit.UnitType.HasDWOID) either at explicitPath or, if empty, at
// SplitCandidatePath(moduleFile). It scans the candidate file's units for
// one whose DWOID matches u's, per spec.md §4.F point 5.
func ResolveSplit(u Unit, moduleFile, explicitPath string, openSplit func(path string) (*Data, error)) (*Data, Unit, string, error) {
	if !u.UnitType.HasDWOID() {
		return nil, Unit{}, "", fmt.Errorf("dwarf: unit at %d is not a skeleton/split-compile unit", u.Offset)
	}
	path := explicitPath
	if path == "" {
		path = SplitCandidatePath(moduleFile)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, Unit{}, "", fmt.Errorf("dwarf: split partner %q for unit at %d: %w", path, u.Offset, err)
	}
	split, err := openSplit(path)
	if err != nil {
		return nil, Unit{}, "", err
	}

	var found *Unit
	err = split.ScanUnits(func(candidate Unit) error {
		if found != nil {
			return nil
		}
		if candidate.UnitType.HasDWOID() && candidate.DWOID == u.DWOID {
			c := candidate
			found = &c
		}
		return nil
	})
	if err != nil {
		return nil, Unit{}, "", err
	}
	if found == nil {
		return nil, Unit{}, "", fmt.Errorf("dwarf: split partner %q has no unit matching DWOID %#x", path, u.DWOID)
	}
	return split, *found, path, nil
}
