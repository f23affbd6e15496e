package elf

import (
	"github.com/Manu343726/elfkit/elf/compress"
	"github.com/Manu343726/elfkit/internal/bytesview"
)

// File is the parsed ELF object model: spec.md Component B. It borrows its
// backing bytes from a FileHandle (or any []byte the caller owns) and
// never copies them except for compressed sections, which are inflated
// once and cached (see Section.Data).
type File struct {
	header   *Header
	view     *bytesview.View
	sections []Section
	progs    []ProgramHeader
	shstrndx int

	data []byte // the full borrowed file content
}

// NewFile parses an ELF file's header, section headers and program
// headers from data. data is borrowed: it must outlive File and every
// Section/Symbol/etc. derived from it, per spec.md §3's ownership rules.
func NewFile(data []byte) (*File, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	v := bytesview.New(data, h.Order()).WithAddrSize(h.AddrSize())

	f := &File{header: h, view: v, data: data}
	if err := f.parseSections(); err != nil {
		return nil, err
	}
	if err := f.parseProgramHeaders(); err != nil {
		return nil, err
	}
	return f, nil
}

// Header returns the file's ELF header.
func (f *File) Header() *Header { return f.header }

// View exposes the underlying byte view for components (dwarf, elflint)
// that need their own cursors over file content.
func (f *File) View() *bytesview.View { return f.view }

// rawRange returns a borrowed sub-slice [offset, offset+size) of the
// file's bytes, bounds-checked against spec.md §3's invariant that every
// offset/size is validated before dereference.
func (f *File) rawRange(offset, size uint64) ([]byte, error) {
	if offset > uint64(len(f.data)) || size > uint64(len(f.data))-offset {
		return nil, wrap(ErrTruncated, "range [%d:+%d] exceeds file length %d", offset, size, len(f.data))
	}
	return f.data[offset : offset+size], nil
}

// decompressSection inflates an SHF_COMPRESSED section's raw bytes: the
// Elf_Chdr prefix names the algorithm (only ELFCOMPRESS_ZLIB is defined by
// the gABI) and the uncompressed size/alignment, followed by the
// compressed payload.
func (f *File) decompressSection(raw []byte) ([]byte, error) {
	chdrSize := 12
	if f.header.Class == Class64 {
		chdrSize = 24
	}
	if len(raw) < chdrSize {
		return nil, wrap(ErrTruncated, "compression header shorter than %d bytes", chdrSize)
	}
	c := bytesview.At(bytesview.New(raw, f.header.Order()), 0)
	algoRaw, err := c.U32()
	if err != nil {
		return nil, err
	}
	algo := CompressionAlgorithm(algoRaw)

	if f.header.Class == Class64 {
		if _, err := c.U32(); err != nil { // ch_reserved
			return nil, err
		}
	}
	var uncompressedSize uint64
	if f.header.Class == Class64 {
		uncompressedSize, err = c.U64()
	} else {
		var sz32 uint32
		sz32, err = c.U32()
		uncompressedSize = uint64(sz32)
	}
	if err != nil {
		return nil, err
	}
	_ = uncompressedSize // informational; we trust the stream's actual length

	if algo != ELFCOMPRESS_ZLIB {
		return nil, wrap(ErrDecompress, "unsupported ch_type %d", algo)
	}
	return compress.ZlibInflate(raw[chdrSize:])
}

// ArchAddrSize returns 4 or 8, matching the file's class.
func (f *File) ArchAddrSize() int { return f.header.AddrSize() }
