package unstrip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manu343726/elfkit/elf"
)

const (
	ehSize  = 64
	phSize  = 56
	shSize  = 64
	symSize = 24
)

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

type secSpec struct {
	name     string
	typ      elf.SectionType
	flags    elf.SectionFlag
	data     []byte
	nobits   bool
	nobitsSz uint64
	align    uint64
	entsize  uint64
	link     uint32
	info     uint32
	addr     uint64
}

// buildRawELF64 assembles a minimal ET_DYN ELF64 file with one PT_LOAD
// (vaddr 0x400000, covering the whole file) and the given sections, in
// the style of elf's own buildHelloELF64 fixture.
func buildRawELF64(t *testing.T, secs []secSpec) []byte {
	t.Helper()

	layout := append([]secSpec{{}}, secs...)
	layout = append(layout, secSpec{name: ".shstrtab"})

	var shstrtab []byte
	nameOff := make([]uint32, len(layout))
	shstrtab = append(shstrtab, 0)
	for i, s := range layout {
		if s.name == "" {
			continue
		}
		nameOff[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, s.name...)
		shstrtab = append(shstrtab, 0)
	}
	layout[len(layout)-1].data = shstrtab

	off := uint64(ehSize) + phSize
	offsets := make([]uint64, len(layout))
	for i, s := range layout {
		offsets[i] = off
		if s.nobits {
			continue
		}
		off += uint64(len(s.data))
	}
	shoff := off
	total := shoff + uint64(len(layout))*shSize
	buf := make([]byte, total)

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = byte(elf.Class64)
	buf[5] = byte(elf.Data2LSB)
	buf[6] = 1
	leU16(buf[16:], uint16(elf.ET_DYN))
	leU16(buf[18:], uint16(elf.EM_X86_64))
	leU32(buf[20:], 1)
	leU64(buf[32:], ehSize)
	leU64(buf[40:], shoff)
	leU16(buf[52:], ehSize)
	leU16(buf[54:], phSize)
	leU16(buf[56:], 1)
	leU16(buf[58:], shSize)
	leU16(buf[60:], uint16(len(layout)))
	leU16(buf[62:], uint16(len(layout)-1))

	leU32(buf[ehSize:], uint32(elf.PT_LOAD))
	leU32(buf[ehSize+4:], uint32(elf.PF_R|elf.PF_X))
	leU64(buf[ehSize+8:], 0)
	leU64(buf[ehSize+16:], 0x400000)
	leU64(buf[ehSize+24:], 0x400000)
	leU64(buf[ehSize+32:], total)
	leU64(buf[ehSize+40:], total)
	leU64(buf[ehSize+48:], 0x1000)

	for i, s := range layout {
		if !s.nobits {
			copy(buf[offsets[i]:], s.data)
		}
	}

	for i, s := range layout {
		base := shoff + uint64(i)*shSize
		leU32(buf[base:], nameOff[i])
		leU32(buf[base+4:], uint32(s.typ))
		leU64(buf[base+8:], uint64(s.flags))
		addr := s.addr
		if s.flags.Has(elf.SHF_ALLOC) && addr == 0 {
			addr = offsets[i] + 0x400000
		}
		leU64(buf[base+16:], addr)
		leU64(buf[base+24:], offsets[i])
		sz := uint64(len(s.data))
		if s.nobits {
			sz = s.nobitsSz
		}
		leU64(buf[base+32:], sz)
		leU32(buf[base+40:], s.link)
		leU32(buf[base+44:], s.info)
		align := s.align
		if align == 0 {
			align = 1
		}
		leU64(buf[base+48:], align)
		leU64(buf[base+56:], s.entsize)
	}

	return buf
}

func buildStrippedELF(t *testing.T) []byte {
	t.Helper()
	text := []byte{0xc3, 0x90, 0x90, 0x90}
	return buildRawELF64(t, []secSpec{
		{name: ".text", typ: elf.SHT_PROGBITS, flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, data: text, align: 0x10},
	})
}

func buildDebugELF(t *testing.T) []byte {
	t.Helper()

	strtab := []byte("\x00main\x00")
	sym0 := make([]byte, symSize)
	sym1 := make([]byte, symSize)
	leU32(sym1[0:], 1) // st_name = 1 ("main")
	sym1[4] = elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)
	leU16(sym1[6:], 1) // st_shndx = 1 (.text)
	leU64(sym1[8:], 0x400000)
	leU64(sym1[16:], 4)
	symtab := append(sym0, sym1...)

	debugInfo := []byte{0xde, 0xad, 0xbe, 0xef}

	// Section indices (1-based, after the null section): 1=.text (NOBITS),
	// 2=.debug_info, 3=.symtab, 4=.strtab, 5=.shstrtab.
	return buildRawELF64(t, []secSpec{
		{name: ".text", typ: elf.SHT_NOBITS, flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, nobits: true, nobitsSz: 4, align: 0x10},
		{name: ".debug_info", typ: elf.SHT_PROGBITS, data: debugInfo, align: 1},
		{name: ".symtab", typ: elf.SHT_SYMTAB, data: symtab, align: 8, entsize: symSize, link: 4, info: 1},
		{name: ".strtab", typ: elf.SHT_STRTAB, data: strtab, align: 1},
	})
}

func TestRecombineMergesDebugSymbolsWithStrippedContent(t *testing.T) {
	sData := buildStrippedELF(t)
	dData := buildDebugELF(t)

	stripped, err := elf.NewFile(sData)
	require.NoError(t, err)
	debug, err := elf.NewFile(dData)
	require.NoError(t, err)

	res, err := Recombine(stripped, debug, Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Merged)

	merged, err := elf.NewFile(res.Merged)
	require.NoError(t, err)

	text := merged.SectionByName(".text")
	require.NotNil(t, text)
	assert.Equal(t, elf.SHT_PROGBITS, text.Header.Type)
	data, err := text.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xc3, 0x90, 0x90, 0x90}, data)

	dbgInfo := merged.SectionByName(".debug_info")
	require.NotNil(t, dbgInfo)
	infoData, err := dbgInfo.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, infoData)

	symtabSec := merged.SectionByName(".symtab")
	require.NotNil(t, symtabSec)
	syms, err := merged.SymbolTable(symtabSec, nil)
	require.NoError(t, err)

	var found bool
	for _, s := range syms {
		if s.Name == "main" {
			found = true
			assert.Equal(t, elf.STB_GLOBAL, s.Bind())
			assert.EqualValues(t, 0x400000, s.Value)
		}
	}
	assert.True(t, found, "merged symtab should contain the debug file's \"main\" symbol")
}

func leU16s(vals ...uint16) []byte {
	out := make([]byte, 2*len(vals))
	for i, v := range vals {
		leU16(out[2*i:], v)
	}
	return out
}

func leU32s(vals ...uint32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		leU32(out[4*i:], v)
	}
	return out
}

// buildStrippedELFWithDynamic is buildStrippedELF plus a minimal dynamic
// symbol table, hash table, and version table, all linked to .dynsym
// (never to the merged static symtab) — the common real-world layout
// where these sections carry unchanged through unstrip, per
// original_source/src/unstrip.c's dynsym handling.
func buildStrippedELFWithDynamic(t *testing.T) []byte {
	t.Helper()
	text := []byte{0xc3, 0x90, 0x90, 0x90}

	dynstr := []byte("\x00foo\x00")
	dynsym0 := make([]byte, symSize)
	dynsym1 := make([]byte, symSize)
	leU32(dynsym1[0:], 1) // st_name = 1 ("foo")
	dynsym1[4] = elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)
	leU16(dynsym1[6:], 1) // st_shndx = 1 (.text)
	leU64(dynsym1[8:], 0x400000)
	leU64(dynsym1[16:], 4)
	dynsym := append(dynsym0, dynsym1...)

	// nbucket=1, nchain=2, bucket[0]=1, chain=[0,0].
	hash := leU32s(1, 2, 1, 0, 0)
	// versym: [VER_NDX_LOCAL, 1] (one entry per dynsym row).
	gnuVersion := leU16s(0, 1)

	// Section indices: 1=.text, 2=.dynsym (link->3), 3=.dynstr,
	// 4=.hash (link->2), 5=.gnu.version (link->2).
	return buildRawELF64(t, []secSpec{
		{name: ".text", typ: elf.SHT_PROGBITS, flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, data: text, align: 0x10},
		{name: ".dynsym", typ: elf.SHT_DYNSYM, flags: elf.SHF_ALLOC, data: dynsym, align: 8, entsize: symSize, link: 3},
		{name: ".dynstr", typ: elf.SHT_STRTAB, flags: elf.SHF_ALLOC, data: dynstr, align: 1},
		{name: ".hash", typ: elf.SHT_HASH, flags: elf.SHF_ALLOC, data: hash, align: 8, entsize: 4, link: 2},
		{name: ".gnu.version", typ: elf.SHT_GNU_versym, flags: elf.SHF_ALLOC, data: gnuVersion, align: 2, entsize: 2, link: 2},
	})
}

func TestRecombineCarriesDynamicSectionsThrough(t *testing.T) {
	sData := buildStrippedELFWithDynamic(t)
	dData := buildDebugELF(t)

	stripped, err := elf.NewFile(sData)
	require.NoError(t, err)
	debug, err := elf.NewFile(dData)
	require.NoError(t, err)

	res, err := Recombine(stripped, debug, Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Merged)

	merged, err := elf.NewFile(res.Merged)
	require.NoError(t, err)

	dynsym := merged.SectionByName(".dynsym")
	require.NotNil(t, dynsym, ".dynsym must not be dropped from the merged file")
	assert.Equal(t, elf.SHT_DYNSYM, dynsym.Header.Type)
	dynstr := merged.SectionByName(".dynstr")
	require.NotNil(t, dynstr, ".dynstr must not be dropped from the merged file")
	assert.EqualValues(t, dynstr.Index, dynsym.Header.Link, ".dynsym's sh_link must point at the merged .dynstr")

	dynsymData, err := dynsym.Data()
	require.NoError(t, err)
	dynsym0 := make([]byte, symSize)
	dynsym1 := make([]byte, symSize)
	leU32(dynsym1[0:], 1)
	dynsym1[4] = elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)
	leU16(dynsym1[6:], 1)
	leU64(dynsym1[8:], 0x400000)
	leU64(dynsym1[16:], 4)
	assert.Equal(t, append(dynsym0, dynsym1...), dynsymData, ".dynsym content must carry through unchanged")

	hash := merged.SectionByName(".hash")
	require.NotNil(t, hash, ".hash must not be dropped from the merged file")
	assert.EqualValues(t, dynsym.Index, hash.Header.Link, ".hash's sh_link must be fixed up to the merged .dynsym")
	hashData, err := hash.Data()
	require.NoError(t, err)
	assert.Equal(t, leU32s(1, 2, 1, 0, 0), hashData, ".hash linked to .dynsym (not the merged symtab) must carry through unchanged")

	versym := merged.SectionByName(".gnu.version")
	require.NotNil(t, versym, ".gnu.version must not be dropped from the merged file")
	assert.EqualValues(t, dynsym.Index, versym.Header.Link, ".gnu.version's sh_link must be fixed up to the merged .dynsym")
	versymData, err := versym.Data()
	require.NoError(t, err)
	assert.Equal(t, leU16s(0, 1), versymData, ".gnu.version linked to .dynsym must carry through unchanged")
}

// buildDebugELFWithHashVersym is buildDebugELF plus a SysV hash table and
// a GNU version table, both linked to .symtab (the table unstrip
// reconciles) — exercising spec.md §4.J step 6's rebuild path.
func buildDebugELFWithHashVersym(t *testing.T) []byte {
	t.Helper()

	strtab := []byte("\x00main\x00")
	sym0 := make([]byte, symSize)
	sym1 := make([]byte, symSize)
	leU32(sym1[0:], 1)
	sym1[4] = elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)
	leU16(sym1[6:], 1)
	leU64(sym1[8:], 0x400000)
	leU64(sym1[16:], 4)
	symtab := append(sym0, sym1...)

	debugInfo := []byte{0xde, 0xad, 0xbe, 0xef}

	// nbucket=1, nchain=2 (== nsym), bucket[0]=1 ("main"), chain=[0,0].
	hash := leU32s(1, 2, 1, 0, 0)
	// versym: [VER_NDX_LOCAL, 1] ("main" carries version index 1).
	gnuVersion := leU16s(0, 1)

	// Section indices: 1=.text (NOBITS), 2=.debug_info, 3=.symtab
	// (link->4), 4=.strtab, 5=.hash (link->3), 6=.gnu.version (link->3).
	return buildRawELF64(t, []secSpec{
		{name: ".text", typ: elf.SHT_NOBITS, flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, nobits: true, nobitsSz: 4, align: 0x10},
		{name: ".debug_info", typ: elf.SHT_PROGBITS, data: debugInfo, align: 1},
		{name: ".symtab", typ: elf.SHT_SYMTAB, data: symtab, align: 8, entsize: symSize, link: 4, info: 1},
		{name: ".strtab", typ: elf.SHT_STRTAB, data: strtab, align: 1},
		{name: ".hash", typ: elf.SHT_HASH, flags: elf.SHF_ALLOC, data: hash, align: 8, entsize: 4, link: 3},
		{name: ".gnu.version", typ: elf.SHT_GNU_versym, flags: elf.SHF_ALLOC, data: gnuVersion, align: 2, entsize: 2, link: 3},
	})
}

func TestRecombineRebuildsHashAndVersymOverMergedSymtab(t *testing.T) {
	sData := buildStrippedELF(t)
	dData := buildDebugELFWithHashVersym(t)

	stripped, err := elf.NewFile(sData)
	require.NoError(t, err)
	debug, err := elf.NewFile(dData)
	require.NoError(t, err)

	res, err := Recombine(stripped, debug, Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Merged)

	merged, err := elf.NewFile(res.Merged)
	require.NoError(t, err)

	symtabSec := merged.SectionByName(".symtab")
	require.NotNil(t, symtabSec)
	syms, err := merged.SymbolTable(symtabSec, nil)
	require.NoError(t, err)

	mainIdx := -1
	for i, s := range syms {
		if s.Name == "main" {
			mainIdx = i
		}
	}
	require.NotEqual(t, -1, mainIdx, "merged symtab must still contain \"main\"")

	hashSec := merged.SectionByName(".hash")
	require.NotNil(t, hashSec)
	assert.EqualValues(t, symtabSec.Index, hashSec.Header.Link, ".hash's sh_link must still point at the merged .symtab")
	hashTable, err := merged.SysVHashTable(hashSec)
	require.NoError(t, err)
	require.Len(t, hashTable.Chains, len(syms), "rebuilt hash chain must have one entry per merged symbol")
	assert.EqualValues(t, mainIdx, hashTable.Buckets[0], "rebuilt hash bucket must point at main's new symbol index")

	versymSec := merged.SectionByName(".gnu.version")
	require.NotNil(t, versymSec)
	assert.EqualValues(t, symtabSec.Index, versymSec.Header.Link, ".gnu.version's sh_link must still point at the merged .symtab")
	versyms, err := merged.VersionSyms(versymSec)
	require.NoError(t, err)
	require.Len(t, versyms, len(syms), "rebuilt versym table must have one entry per merged symbol")
	assert.EqualValues(t, 1, versyms[mainIdx], "main's version index must carry over to its new symbol slot")
}

func TestRecombineRejectsMismatchedMachine(t *testing.T) {
	sData := buildStrippedELF(t)
	dData := buildDebugELF(t)
	leU16(dData[18:], uint16(elf.EM_AARCH64))

	stripped, err := elf.NewFile(sData)
	require.NoError(t, err)
	debug, err := elf.NewFile(dData)
	require.NoError(t, err)

	_, err = Recombine(stripped, debug, Options{})
	assert.ErrorIs(t, err, ErrMismatch)
}

func TestRecombineDryRunDoesNotProduceBytes(t *testing.T) {
	sData := buildStrippedELF(t)
	dData := buildDebugELF(t)

	stripped, err := elf.NewFile(sData)
	require.NoError(t, err)
	debug, err := elf.NewFile(dData)
	require.NoError(t, err)

	res, err := Recombine(stripped, debug, Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.Compared)
	assert.Nil(t, res.Merged)
}
