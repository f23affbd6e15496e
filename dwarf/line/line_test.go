package line

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manu343726/elfkit/internal/bytesview"
)

// buildMinimalProgram builds a DWARF4 .debug_line unit with opcode_base=13,
// line_base=-5, line_range=14, min_instr=1, max_ops=1, an empty directory
// list and one file "main.c", and a program: extended set_address 0x10, special
// opcode (opcode_base + 5*1 + 0, chosen so operation_advance=0 and
// line_increment=0), then end_sequence.
func buildMinimalProgram(t *testing.T) []byte {
	t.Helper()

	const (
		lineBase  = -5
		lineRange = 14
		opcodeBase = 13
	)
	// line_increment=0 requires adjusted%lineRange == -lineBase == 5.
	adjusted := 5
	specialOpcode := byte(opcodeBase + adjusted)

	var prog []byte
	// extended op: set_address 0x10 (8-byte address)
	prog = append(prog, 0x00, 0x09, 0x02)
	prog = append(prog, 0x10, 0, 0, 0, 0, 0, 0, 0)
	prog = append(prog, specialOpcode)
	// extended op: end_sequence
	prog = append(prog, 0x00, 0x01, 0x01)

	return prog
}

func buildHeaderAndProgram(t *testing.T) []byte {
	t.Helper()
	program := buildMinimalProgram(t)

	var afterLen []byte
	afterLen = append(afterLen, 4, 0) // version 4

	var headerBody []byte
	headerBody = append(headerBody, 1) // minimum_instruction_length
	headerBody = append(headerBody, 1) // maximum_operations_per_instruction (v4+)
	headerBody = append(headerBody, 1) // default_is_stmt
	headerBody = append(headerBody, byte(int8(-5))) // line_base
	headerBody = append(headerBody, 14)              // line_range
	headerBody = append(headerBody, 13)               // opcode_base
	// standard_opcode_lengths: 12 entries (opcode_base - 1), the classic DWARF4 table
	headerBody = append(headerBody, 0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1)
	// v2-v4 include_directories: empty list (just terminator)
	headerBody = append(headerBody, 0)
	// v2-v4 file_names: "main.c", dir=0, mtime=0, size=0; then terminator
	headerBody = append(headerBody, []byte("main.c\x00")...)
	headerBody = append(headerBody, 0, 0, 0) // dir_index, mtime, size (ULEB 0s)
	headerBody = append(headerBody, 0)       // terminator

	headerLength := uint32(len(headerBody))
	var headerLenBytes []byte
	headerLenBytes = append(headerLenBytes, byte(headerLength), byte(headerLength>>8), byte(headerLength>>16), byte(headerLength>>24))

	full := append([]byte{}, afterLen...)
	full = append(full, headerLenBytes...)
	full = append(full, headerBody...)
	full = append(full, program...)

	totalLen := uint32(len(full))
	var out []byte
	out = append(out, byte(totalLen), byte(totalLen>>8), byte(totalLen>>16), byte(totalLen>>24))
	out = append(out, full...)
	return out
}

func TestLineProgramMinimal(t *testing.T) {
	data := buildHeaderAndProgram(t)
	v := bytesview.New(data, bytesview.LittleEndian)

	h, err := ParseHeader(v, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 4, h.Version)
	assert.EqualValues(t, 13, h.OpcodeBase)
	require.Len(t, h.Files, 1)
	assert.Equal(t, "main.c", h.Files[0].Name)

	rows, err := Run(v, h)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.EqualValues(t, 0x10, rows[0].Address)
	assert.EqualValues(t, 1, rows[0].Line)
	assert.True(t, rows[0].IsStmt)
	assert.False(t, rows[0].EndSequence)

	assert.EqualValues(t, 0x10, rows[1].Address)
	assert.True(t, rows[1].EndSequence)
}
