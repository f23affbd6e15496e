package elflint

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

// progSpec is one program header the test builder emits.
type progSpec struct {
	typ    elf.ProgType
	flags  elf.ProgFlag
	vaddr  uint64
	memsz  uint64
	offset uint64
	filesz uint64
}

// buildConfig controls buildTestELF's output so each test can isolate one
// validator rule at a time.
type buildConfig struct {
	machine     elf.Machine
	textAlign   uint64 // sh_addralign override for .text, 0 means 0x10
	sym1Bind    elf.SymBind
	dynsymInfo  uint32 // sh_info for .dynsym (first non-local index)
	extraProgs  []progSpec
	includeInterpSection bool
}

// buildTestELF constructs a minimal x86_64 (or cfg.machine) ET_DYN ELF64
// file: one PT_LOAD covering the whole file, .text, .dynstr, a two-entry
// .dynsym (null + "exit"), plus whatever extra program headers/sections
// cfg names. Modeled directly on elf's own buildHelloELF64 test fixture.
func buildTestELF(t *testing.T, cfg buildConfig) []byte {
	t.Helper()

	machine := cfg.machine
	if machine == 0 {
		machine = elf.EM_X86_64
	}
	textAlign := cfg.textAlign
	if textAlign == 0 {
		textAlign = 0x10
	}

	text := []byte{0xc3, 0x00, 0x00, 0x00}
	dynstr := []byte("\x00exit\x00")
	sym1 := make([]byte, symSize)
	sym1[0] = 1 // st_name = 1 ("exit")
	sym1[4] = elf.ST_INFO(cfg.sym1Bind, elf.STT_FUNC)
	dynsym := append(make([]byte, symSize), sym1...)

	type namedSec struct {
		name string
		data []byte
	}
	layout := []namedSec{
		{"", nil},
		{".text", text},
		{".dynstr", dynstr},
		{".dynsym", dynsym},
	}
	if cfg.includeInterpSection {
		layout = append(layout, namedSec{".interp", []byte("/lib64/ld.so\x00")})
	}
	layout = append(layout, namedSec{".shstrtab", nil})

	var shstrtab []byte
	nameOff := make([]uint32, len(layout))
	shstrtab = append(shstrtab, 0)
	for i, l := range layout {
		if l.name == "" {
			continue
		}
		nameOff[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, l.name...)
		shstrtab = append(shstrtab, 0)
	}
	layout[len(layout)-1].data = shstrtab

	numExtraProgs := len(cfg.extraProgs)
	totalPhSize := uint64(phSize) * uint64(1+numExtraProgs)

	off := uint64(ehSize) + totalPhSize
	offsets := make([]uint64, len(layout))
	for i, l := range layout {
		offsets[i] = off
		off += uint64(len(l.data))
	}
	shoff := off
	total := shoff + uint64(len(layout))*shSize
	buf := make([]byte, total)

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = byte(elf.Class64)
	buf[5] = byte(elf.Data2LSB)
	buf[6] = 1
	leU16(buf[16:], uint16(elf.ET_DYN))
	leU16(buf[18:], uint16(machine))
	leU32(buf[20:], 1)
	leU64(buf[32:], ehSize)
	leU64(buf[40:], shoff)
	leU16(buf[52:], ehSize)
	leU16(buf[54:], phSize)
	leU16(buf[56:], uint16(1+numExtraProgs))
	leU16(buf[58:], shSize)
	leU16(buf[60:], uint16(len(layout)))
	leU16(buf[62:], uint16(len(layout)-1))

	writePH := func(idx int, p progSpec) {
		base := uint64(ehSize) + uint64(idx)*phSize
		leU32(buf[base:], uint32(p.typ))
		leU32(buf[base+4:], uint32(p.flags))
		leU64(buf[base+8:], p.offset)
		leU64(buf[base+16:], p.vaddr)
		leU64(buf[base+24:], p.vaddr)
		leU64(buf[base+32:], p.filesz)
		leU64(buf[base+40:], p.memsz)
		leU64(buf[base+48:], 0x1000)
	}
	writePH(0, progSpec{typ: elf.PT_LOAD, flags: elf.PF_R | elf.PF_X, vaddr: 0x400000, memsz: total, offset: 0, filesz: total})
	for i, p := range cfg.extraProgs {
		writePH(1+i, p)
	}

	for i, l := range layout {
		copy(buf[offsets[i]:], l.data)
	}

	writeSH := func(idx int, typ elf.SectionType, flags elf.SectionFlag, link, info uint32, entsize, align uint64) {
		base := shoff + uint64(idx)*shSize
		leU32(buf[base:], nameOff[idx])
		leU32(buf[base+4:], uint32(typ))
		leU64(buf[base+8:], uint64(flags))
		leU64(buf[base+16:], offsets[idx]+0x400000) // identity-mapped LOAD: addr = offset + base
		leU64(buf[base+24:], offsets[idx])
		leU64(buf[base+32:], uint64(len(layout[idx].data)))
		leU32(buf[base+40:], link)
		leU32(buf[base+44:], info)
		leU64(buf[base+48:], align)
		leU64(buf[base+56:], entsize)
	}

	dynsymInfo := cfg.dynsymInfo
	if dynsymInfo == 0 {
		dynsymInfo = 1
	}

	idx := 0
	writeSH(idx, elf.SHT_NULL, 0, 0, 0, 0, 0)
	idx++
	writeSH(idx, elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, 0, 0, 0, textAlign)
	idx++
	writeSH(idx, elf.SHT_STRTAB, elf.SHF_ALLOC, 0, 0, 0, 1)
	idx++
	writeSH(idx, elf.SHT_DYNSYM, elf.SHF_ALLOC, 2, dynsymInfo, symSize, 8)
	idx++
	if cfg.includeInterpSection {
		writeSH(idx, elf.SHT_PROGBITS, elf.SHF_ALLOC, 0, 0, 0, 1)
		idx++
	}
	writeSH(idx, elf.SHT_STRTAB, 0, 0, 0, 0, 1)

	return buf
}

func parseTestELF(t *testing.T, data []byte) *elf.File {
	t.Helper()
	f, err := elf.NewFile(data)
	require.NoError(t, err)
	return f
}

func findingsWithRule(findings []Finding, rule string) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Rule == rule {
			out = append(out, f)
		}
	}
	return out
}

func TestValidateCleanFileHasNoStructuralFindings(t *testing.T) {
	data := buildTestELF(t, buildConfig{sym1Bind: elf.STB_GLOBAL})
	f := parseTestELF(t, data)

	findings := Validate(f, Context{})
	for _, fi := range findings {
		t.Logf("unexpected finding: %s", fi)
	}
	assert.Empty(t, findings)
}

func TestValidateBadMachine(t *testing.T) {
	data := buildTestELF(t, buildConfig{machine: elf.Machine(0xbeef), sym1Bind: elf.STB_GLOBAL})
	f := parseTestELF(t, data)

	findings := Validate(f, Context{})
	bad := findingsWithRule(findings, "machine-allowlist")
	require.Len(t, bad, 1)
	assert.Equal(t, SeverityError, bad[0].Severity)
}

func TestValidateSymbolPartitionViolation(t *testing.T) {
	// sym1 is local (STB_LOCAL) but sh_info=1 claims only non-locals
	// follow index 1 — a partition violation.
	data := buildTestELF(t, buildConfig{sym1Bind: elf.STB_LOCAL, dynsymInfo: 1})
	f := parseTestELF(t, data)

	findings := Validate(f, Context{})
	bad := findingsWithRule(findings, "symtab-partition")
	assert.NotEmpty(t, bad)
}

func TestValidateMisalignedSection(t *testing.T) {
	data := buildTestELF(t, buildConfig{sym1Bind: elf.STB_GLOBAL, textAlign: 3})
	f := parseTestELF(t, data)

	findings := Validate(f, Context{})
	bad := findingsWithRule(findings, "alignment")
	require.NotEmpty(t, bad)
}

func TestValidateInterpWithoutSection(t *testing.T) {
	data := buildTestELF(t, buildConfig{
		sym1Bind: elf.STB_GLOBAL,
		extraProgs: []progSpec{
			{typ: elf.PT_INTERP, flags: elf.PF_R, vaddr: 0x400200, memsz: 16, offset: 0x200, filesz: 16},
		},
	})
	f := parseTestELF(t, data)

	findings := Validate(f, Context{})
	bad := findingsWithRule(findings, "interp-consistency")
	require.NotEmpty(t, bad)
}

func TestValidateRelroNotCovered(t *testing.T) {
	data := buildTestELF(t, buildConfig{
		sym1Bind: elf.STB_GLOBAL,
		extraProgs: []progSpec{
			// RELRO range far outside the PT_LOAD's mapped range.
			{typ: elf.PT_GNU_RELRO, flags: elf.PF_R, vaddr: 0x800000, memsz: 0x1000, offset: 0, filesz: 0x1000},
		},
	})
	f := parseTestELF(t, data)

	findings := Validate(f, Context{})
	bad := findingsWithRule(findings, "relro-coverage")
	require.NotEmpty(t, bad)
}
