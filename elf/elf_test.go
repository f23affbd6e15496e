package elf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildHelloELF64 constructs the S1 scenario from spec.md §8: a minimal
// x86_64 ET_DYN with one LOAD, .text (4 bytes), .dynstr, a two-entry
// .dynsym (null + "exit"), and one .rela.dyn with a single
// R_X86_64_RELATIVE relocation.
func buildHelloELF64(t *testing.T) []byte {
	t.Helper()

	const (
		ehSize  = 64
		phSize  = 56
		shSize  = 64
		symSize = 24
		relaSz  = 24
	)

	text := []byte{0xc3, 0x00, 0x00, 0x00}
	dynstr := []byte("\x00exit\x00")
	// symbol 0: null entry (all zero). symbol 1: "exit", undefined.
	sym1 := make([]byte, symSize)
	sym1[0] = 1 // st_name = 1 ("exit")
	dynsym := append(make([]byte, symSize), sym1...)

	rela := make([]byte, relaSz)
	leU64(rela[0:], 0x1000)                     // r_offset
	leU64(rela[8:], uint64(0)<<32|uint64(8))    // r_info: type=8 (R_X86_64_RELATIVE), sym=0
	leU64(rela[16:], 0x1000)                     // r_addend

	layout := []struct {
		name string
		data []byte
	}{
		{"", nil},
		{".text", text},
		{".dynstr", dynstr},
		{".dynsym", dynsym},
		{".rela.dyn", rela},
		{".shstrtab", nil}, // filled below
	}
	var shstrtab []byte
	nameOff := make([]uint32, len(layout))
	shstrtab = append(shstrtab, 0)
	for i, l := range layout {
		if l.name == "" {
			nameOff[i] = 0
			continue
		}
		nameOff[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, l.name...)
		shstrtab = append(shstrtab, 0)
	}
	layout[len(layout)-1].data = shstrtab

	off := uint64(ehSize + phSize)
	offsets := make([]uint64, len(layout))
	for i, l := range layout {
		offsets[i] = off
		off += uint64(len(l.data))
	}
	shoff := off

	total := shoff + uint64(len(layout))*shSize
	buf := make([]byte, total)

	// ELF header
	copy(buf[0:4], elfMagic[:])
	buf[4] = byte(Class64)
	buf[5] = byte(Data2LSB)
	buf[6] = 1
	leU16(buf[16:], uint16(ET_DYN))
	leU16(buf[18:], uint16(EM_X86_64))
	leU32(buf[20:], 1)
	leU64(buf[32:], ehSize) // e_phoff
	leU64(buf[40:], shoff)  // e_shoff
	leU16(buf[52:], ehSize)
	leU16(buf[54:], phSize)
	leU16(buf[56:], 1) // phnum
	leU16(buf[58:], shSize)
	leU16(buf[60:], uint16(len(layout)))
	leU16(buf[62:], uint16(len(layout)-1)) // shstrndx

	// one PT_LOAD covering the whole file
	leU32(buf[64:], uint32(PT_LOAD))
	leU32(buf[68:], uint32(PF_R|PF_X))
	leU64(buf[72:], 0)
	leU64(buf[80:], 0x400000)
	leU64(buf[88:], 0x400000)
	leU64(buf[96:], total)
	leU64(buf[104:], total)
	leU64(buf[112:], 0x1000)

	for i, l := range layout {
		copy(buf[offsets[i]:], l.data)
	}

	writeSH := func(idx int, typ SectionType, flags SectionFlag, link, info uint32, entsize uint64) {
		base := shoff + uint64(idx)*shSize
		leU32(buf[base:], nameOff[idx])
		leU32(buf[base+4:], uint32(typ))
		leU64(buf[base+8:], uint64(flags))
		leU64(buf[base+24:], offsets[idx])
		leU64(buf[base+32:], uint64(len(layout[idx].data)))
		leU32(buf[base+40:], link)
		leU32(buf[base+44:], info)
		leU64(buf[base+56:], entsize)
	}
	writeSH(0, SHT_NULL, 0, 0, 0, 0)
	writeSH(1, SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, 0, 0, 0)
	writeSH(2, SHT_STRTAB, SHF_ALLOC, 0, 0, 0)
	writeSH(3, SHT_DYNSYM, SHF_ALLOC, 2, 1, symSize)
	writeSH(4, SHT_RELA, SHF_ALLOC, 3, 1, relaSz)
	writeSH(5, SHT_STRTAB, 0, 0, 0, 0)

	return buf
}

func leU16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func leU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
func leU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func TestParseHelloELF64(t *testing.T) {
	data := buildHelloELF64(t)

	f, err := NewFile(data)
	require.NoError(t, err)

	assert.Equal(t, Class64, f.Header().Class)
	assert.Equal(t, ET_DYN, f.Header().Type)
	assert.Equal(t, EM_X86_64, f.Header().Machine)

	text := f.SectionByName(".text")
	require.NotNil(t, text)
	data2, err := text.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xc3, 0, 0, 0}, data2)

	dynsym := f.SectionByName(".dynsym")
	require.NotNil(t, dynsym)
	syms, err := f.SymbolTable(dynsym, nil)
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "", syms[0].Name)
	assert.Equal(t, "exit", syms[1].Name)

	rela := f.SectionByName(".rela.dyn")
	require.NotNil(t, rela)
	relocs, err := f.Relocations(rela)
	require.NoError(t, err)
	require.Len(t, relocs, 1)
	assert.Equal(t, uint64(0x1000), relocs[0].Offset)
	assert.Equal(t, uint32(8), relocs[0].Type)
	assert.EqualValues(t, 0x1000, relocs[0].Addend)

	assert.Len(t, f.ProgramHeaders(), 1)
	assert.Equal(t, PT_LOAD, f.ProgramHeaders()[0].Type)
}

func TestBadMagic(t *testing.T) {
	_, err := ParseHeader([]byte("not an elf file"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestTruncatedHeader(t *testing.T) {
	_, err := ParseHeader([]byte{0x7f, 'E', 'L'})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncated)
}
