package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manu343726/elfkit/internal/bytesview"
)

// buildDebugFrameSection builds a minimal .debug_frame: one CIE (version 1,
// empty augmentation, code_alignment_factor=1, data_alignment_factor=-8,
// return_address_register=16, initial program: DW_CFA_def_cfa(reg=7,
// offset=8), DW_CFA_offset(reg=16, factor=1) meaning "return address at
// CFA-8"), followed by one FDE covering [0x1000, 0x1000+0x20) whose program
// advances the location by 4 then does def_cfa_offset 16 (CFA now reg 7
// + 16) then advance_loc by 12 then offset(reg=6) to record the saved
// frame-pointer slot.
func buildDebugFrameSection(t *testing.T) []byte {
	t.Helper()

	// CIE initial instructions: DW_CFA_def_cfa(7, 8); DW_CFA_offset(16, 1)
	cieProg := []byte{
		0x0c, 7, 8, // DW_CFA_def_cfa reg=7 offset=8 (ULEB128s fit in one byte)
		0x80 | 16, 1, // DW_CFA_offset reg=16, factor ULEB128=1 -> offset = 1 * -8 = -8
	}
	cieBody := []byte{}
	cieBody = append(cieBody, 1)       // version
	cieBody = append(cieBody, 0)       // augmentation "" (NUL)
	cieBody = append(cieBody, 1)    // code_alignment_factor ULEB = 1
	cieBody = append(cieBody, 0x78) // data_alignment_factor SLEB128(-8)
	cieBody = append(cieBody, 16)   // return_address_register ULEB = 16
	cieBody = append(cieBody, cieProg...)

	cieLen := uint32(4 + len(cieBody)) // CIE_id field (4 bytes) + body
	var cieEntry []byte
	cieEntry = append(cieEntry, byte(cieLen), byte(cieLen>>8), byte(cieLen>>16), byte(cieLen>>24))
	cieEntry = append(cieEntry, 0xff, 0xff, 0xff, 0xff) // CIE_id sentinel for .debug_frame
	cieEntry = append(cieEntry, cieBody...)

	cieOffset := 0

	// FDE program: advance_loc(4); def_cfa_offset(16); advance_loc(12); offset(reg=6, factor=1)
	fdeProg := []byte{
		0x40 | 4, // DW_CFA_advance_loc, delta=4
		0x0e, 16, // DW_CFA_def_cfa_offset, ULEB=16
		0x40 | 12, // DW_CFA_advance_loc, delta=12
		0x80 | 6, 1, // DW_CFA_offset reg=6, factor=1 -> -8
	}

	fdeBody := []byte{}
	fdeBody = append(fdeBody, le64(0x1000)...)  // initial_location
	fdeBody = append(fdeBody, le64(0x20)...)    // address_range
	fdeBody = append(fdeBody, fdeProg...)

	fdeLen := uint32(4 + len(fdeBody)) // CIE_pointer field (4 bytes) + body
	var fdeEntry []byte
	fdeEntry = append(fdeEntry, byte(fdeLen), byte(fdeLen>>8), byte(fdeLen>>16), byte(fdeLen>>24))
	fdeEntry = append(fdeEntry, byte(cieOffset), byte(cieOffset>>8), byte(cieOffset>>16), byte(cieOffset>>24))
	fdeEntry = append(fdeEntry, fdeBody...)

	var section []byte
	section = append(section, cieEntry...)
	section = append(section, fdeEntry...)
	return section
}

func le64(x uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(x >> (8 * i))
	}
	return b
}

func TestParseSectionDebugFrame(t *testing.T) {
	data := buildDebugFrameSection(t)
	v := bytesview.New(data, bytesview.LittleEndian)

	cies, fdes, err := ParseSection(v, false)
	require.NoError(t, err)
	require.Len(t, cies, 1)
	require.Len(t, fdes, 1)

	cie := cies[0]
	assert.EqualValues(t, 1, cie.Version)
	assert.Equal(t, "", cie.Augmentation)
	assert.EqualValues(t, 1, cie.CodeAlignmentFactor)
	assert.EqualValues(t, -8, cie.DataAlignmentFactor)
	assert.EqualValues(t, 16, cie.ReturnAddressRegister)

	fde := fdes[0]
	assert.EqualValues(t, 0x1000, fde.InitialLocation)
	assert.EqualValues(t, 0x20, fde.AddressRange)
	assert.Equal(t, cie.Offset, fde.CIEPointer)
}

func TestRunCFIProducesWellDefinedEntryRow(t *testing.T) {
	data := buildDebugFrameSection(t)
	v := bytesview.New(data, bytesview.LittleEndian)

	cies, fdes, err := ParseSection(v, false)
	require.NoError(t, err)
	require.Len(t, cies, 1)
	require.Len(t, fdes, 1)

	rows, err := RunCFI(bytesview.LittleEndian, cies[0], fdes[0])
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	// Entry row: CFA is well-defined (register 7 + 8) per the CIE's
	// initial program, and the return address is recoverable at CFA-8.
	entry := rows[0]
	assert.False(t, entry.CFA.IsExpression)
	assert.EqualValues(t, 7, entry.CFA.Reg)
	assert.EqualValues(t, 8, entry.CFA.Offset)
	raRule, ok := entry.Registers[16]
	require.True(t, ok)
	assert.Equal(t, RuleOffset, raRule.Kind)
	assert.EqualValues(t, -8, raRule.Offset)

	// After the FDE program: CFA offset becomes 16, and register 6 (the
	// frame pointer slot) gains an offset rule, while register 16's rule
	// is still inherited from the CIE.
	last := rows[len(rows)-1]
	assert.EqualValues(t, 16, last.CFA.Offset)
	fpRule, ok := last.Registers[6]
	require.True(t, ok)
	assert.Equal(t, RuleOffset, fpRule.Kind)
	assert.EqualValues(t, -8, fpRule.Offset)
	stillRA, ok := last.Registers[16]
	require.True(t, ok)
	assert.Equal(t, RuleOffset, stillRA.Kind)
}

func TestRunCFIRememberAndRestoreState(t *testing.T) {
	cie := CIE{
		Version:             1,
		CodeAlignmentFactor: 1,
		DataAlignmentFactor: -8,
		initialInstructions: []byte{0x0c, 7, 8}, // def_cfa(7, 8)
	}
	fde := FDE{
		InitialLocation: 0x2000,
		AddressRange:    0x10,
		instructions: []byte{
			0x0a,       // remember_state
			0x0e, 32,   // def_cfa_offset 32
			0x0b,       // restore_state
		},
	}

	rows, err := RunCFI(bytesview.LittleEndian, cie, fde)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	last := rows[len(rows)-1]
	assert.EqualValues(t, 8, last.CFA.Offset, "restore_state should revert to the remembered CFA offset")
}
