package elf

import (
	"encoding/binary"
)

// Builder assembles a brand-new ELF file byte-for-byte. It is the mutable
// counterpart to File: while File borrows and never copies, Builder owns
// every buffer it produces (spec.md §3's "the recombiner's output ELF
// exclusively owns all newly allocated section data and string tables").
// unstrip is its only client.
type Builder struct {
	Header  Header
	Progs   []ProgramHeader
	Secs    []BuilderSection
	StrTabs map[string][]byte // pre-built string tables, keyed by section name
}

// BuilderSection is one output section: a header (Name holds the string,
// not yet an index — NameOff is resolved at Finalize time) plus its bytes.
type BuilderSection struct {
	Name    string
	Header  SectionHeader // Offset/Size/Name(idx) filled in by Finalize
	Data    []byte        // nil for NOBITS
	NoBits  bool
	AlignTo uint64

	// PinOffset marks a section whose Header.Offset the caller has
	// already fixed (unstrip's original-layout preservation pass, spec.md
	// §4.J point 8) and which Finalize must not relocate. Secs must list
	// pinned sections in ascending offset order before any unpinned one
	// that follows them in the file.
	PinOffset bool
}

// NewBuilder starts a Builder seeded with h's scalar fields (class, data
// encoding, type, machine, entry, flags); Progs/Secs/StrTabs start empty.
func NewBuilder(h Header) *Builder {
	return &Builder{Header: h, StrTabs: map[string][]byte{}}
}

// AddSection appends a section to the output, in the order sections
// should appear in the final section header table. Offsets are computed
// by Finalize, not here.
func (b *Builder) AddSection(s BuilderSection) int {
	b.Secs = append(b.Secs, s)
	return len(b.Secs) - 1
}

// Finalize lays out every section's file offset (respecting AlignTo and,
// for sections marked PinOffset, keeping the offset already set by the
// caller — see unstrip's layout pass, which pins LOAD-covered sections and
// leaves Finalize to place the others), builds the
// section-name string table, and serializes the whole file.
func (b *Builder) Finalize() ([]byte, error) {
	var bo binary.ByteOrder = binary.LittleEndian
	if b.Header.Data == Data2MSB {
		bo = binary.BigEndian
	}

	ehSize := 64
	phEntSize := 56
	shEntSize := 64
	if b.Header.Class == Class32 {
		ehSize, phEntSize, shEntSize = 52, 32, 40
	}

	// Build shstrtab, always the last section, from scratch: an interner
	// that reuses existing entries (spec.md §4.J point 5).
	interner := newStrtabInterner()
	for i := range b.Secs {
		b.Secs[i].Header.Name = interner.intern(b.Secs[i].Name)
	}
	shstrtabNameOff := interner.intern(".shstrtab")
	shstrtab := interner.bytes()

	secs := append([]BuilderSection{}, b.Secs...)
	secs = append(secs, BuilderSection{Name: ".shstrtab", Header: SectionHeader{Name: shstrtabNameOff, Type: SHT_STRTAB}, Data: shstrtab})

	// Layout: header, program headers, then every section's content in
	// the order given (callers are responsible for having already sorted
	// LOAD-covered sections to match their original file offsets), then
	// the section header table last.
	cursor := uint64(ehSize)
	if len(b.Progs) > 0 {
		cursor += uint64(len(b.Progs) * phEntSize)
	}

	for i := range secs {
		s := &secs[i]
		if s.NoBits {
			if !s.PinOffset {
				s.Header.Offset = cursor
			}
			// NOBITS already carries its logical size via Header.Size set by caller.
			if s.Header.Offset+0 > cursor {
				cursor = s.Header.Offset
			}
			continue
		}
		if s.PinOffset {
			s.Header.Size = uint64(len(s.Data))
			if end := s.Header.Offset + uint64(len(s.Data)); end > cursor {
				cursor = end
			}
			continue
		}
		align := s.AlignTo
		if align == 0 {
			align = 1
		}
		if rem := cursor % align; rem != 0 {
			cursor += align - rem
		}
		s.Header.Offset = cursor
		s.Header.Size = uint64(len(s.Data))
		cursor += uint64(len(s.Data))
	}

	shoff := cursor
	if rem := shoff % 8; rem != 0 {
		shoff += 8 - rem
	}

	out := make([]byte, shoff+uint64((len(secs)+1)*shEntSize))

	b.Header.PhOff = uint64(ehSize)
	b.Header.ShOff = shoff
	b.Header.EhSize = uint16(ehSize)
	b.Header.PhEntSize = uint16(phEntSize)
	b.Header.PhNum = uint16(len(b.Progs))
	b.Header.ShEntSize = uint16(shEntSize)
	b.Header.ShNum = uint16(len(secs) + 1) // +1 for the null section
	b.Header.ShStrNdx = uint16(len(secs))  // shstrtab is appended last, after the null section at index 0

	writeHeader(out, &b.Header, bo)

	phOff := int(b.Header.PhOff)
	for i, p := range b.Progs {
		writeProgramHeader(out[phOff+i*phEntSize:], p, b.Header.Class, bo)
	}

	for _, s := range secs {
		if s.NoBits || len(s.Data) == 0 {
			continue
		}
		copy(out[s.Header.Offset:], s.Data)
	}

	shOff := int(b.Header.ShOff)
	writeSectionHeader(out[shOff:], SectionHeader{}, b.Header.Class, bo) // null section 0
	for i, s := range secs {
		writeSectionHeader(out[shOff+(i+1)*shEntSize:], s.Header, b.Header.Class, bo)
	}

	return out, nil
}
