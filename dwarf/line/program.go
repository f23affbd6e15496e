package line

import (
	"github.com/Manu343726/elfkit/internal/bytesview"
)

// Row is one committed line-table row, spec.md §4.G's twelve-field tuple.
type Row struct {
	Address        uint64
	OpIndex        uint8
	File           uint64
	Line           int64
	Column         uint64
	IsStmt         bool
	BasicBlock     bool
	EndSequence    bool
	PrologueEnd    bool
	EpilogueBegin  bool
	ISA            uint64
	Discriminator  uint64
}

// standard opcodes (DW_LNS_*).
const (
	lnsCopy             = 0x01
	lnsAdvancePC        = 0x02
	lnsAdvanceLine      = 0x03
	lnsSetFile          = 0x04
	lnsSetColumn        = 0x05
	lnsNegateStmt       = 0x06
	lnsSetBasicBlock    = 0x07
	lnsConstAddPC       = 0x08
	lnsFixedAdvancePC   = 0x09
	lnsSetPrologueEnd   = 0x0a
	lnsSetEpilogueBegin = 0x0b
	lnsSetISA           = 0x0c
)

// extended opcodes (DW_LNE_*).
const (
	lneEndSequence      = 0x01
	lneSetAddress       = 0x02
	lneDefineFile       = 0x03
	lneSetDiscriminator = 0x04
)

type registers struct {
	address       uint64
	opIndex       uint8
	file          uint64
	line          int64
	column        uint64
	isStmt        bool
	basicBlock    bool
	endSequence   bool
	prologueEnd   bool
	epilogueBegin bool
	isa           uint64
	discriminator uint64
}

func (h *Header) initialRegisters() registers {
	return registers{file: 1, line: 1, isStmt: h.DefaultIsStmt}
}

// Run executes h's line-number program (h.programStart..h.programEnd
// within v) and returns every committed row, per spec.md §4.G.
func Run(v *bytesview.View, h *Header) ([]Row, error) {
	cur := bytesview.At(v, h.programStart)
	regs := h.initialRegisters()
	var rows []Row

	emit := func() {
		rows = append(rows, Row{
			Address: regs.address, OpIndex: regs.opIndex, File: regs.file, Line: regs.line,
			Column: regs.column, IsStmt: regs.isStmt, BasicBlock: regs.basicBlock,
			EndSequence: regs.endSequence, PrologueEnd: regs.prologueEnd,
			EpilogueBegin: regs.epilogueBegin, ISA: regs.isa, Discriminator: regs.discriminator,
		})
	}

	advance := func(operationAdvance uint64) {
		maxOps := uint64(h.MaxOpsPerInstruction)
		if maxOps == 0 {
			maxOps = 1
		}
		newOpIndex := uint64(regs.opIndex) + operationAdvance
		regs.address += uint64(h.MinimumInstrLength) * (newOpIndex / maxOps)
		regs.opIndex = uint8(newOpIndex % maxOps)
	}

	for cur.Pos() < h.programEnd {
		opcode, err := cur.U8()
		if err != nil {
			return nil, err
		}

		switch {
		case opcode == 0:
			// extended opcode: ULEB128 length, then the opcode byte + operands
			length, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			start := cur.Pos()
			extOp, err := cur.U8()
			if err != nil {
				return nil, err
			}
			switch extOp {
			case lneEndSequence:
				regs.endSequence = true
				emit()
				regs = h.initialRegisters()
			case lneSetAddress:
				addrBytes := int(length) - 1
				b, err := cur.Bytes(addrBytes)
				if err != nil {
					return nil, err
				}
				regs.address = decodeAddr(v, b)
				regs.opIndex = 0
			case lneDefineFile:
				name, err := cur.CString()
				if err != nil {
					return nil, err
				}
				dirIdx, err := cur.ULEB128()
				if err != nil {
					return nil, err
				}
				mtime, err := cur.ULEB128()
				if err != nil {
					return nil, err
				}
				size, err := cur.ULEB128()
				if err != nil {
					return nil, err
				}
				h.Files = append(h.Files, FileEntry{Name: name, DirIndex: dirIdx, MTime: mtime, Size: size})
			case lneSetDiscriminator:
				d, err := cur.ULEB128()
				if err != nil {
					return nil, err
				}
				regs.discriminator = d
			default:
				// Unknown vendor extension: skip its operand bytes.
			}
			cur.SeekTo(start + int(length))

		case opcode < h.OpcodeBase:
			switch opcode {
			case lnsCopy:
				emit()
				regs.basicBlock = false
				regs.prologueEnd = false
				regs.epilogueBegin = false
				regs.discriminator = 0
			case lnsAdvancePC:
				adv, err := cur.ULEB128()
				if err != nil {
					return nil, err
				}
				advance(adv)
			case lnsAdvanceLine:
				d, err := cur.SLEB128()
				if err != nil {
					return nil, err
				}
				regs.line += d
			case lnsSetFile:
				f, err := cur.ULEB128()
				if err != nil {
					return nil, err
				}
				regs.file = f
			case lnsSetColumn:
				c, err := cur.ULEB128()
				if err != nil {
					return nil, err
				}
				regs.column = c
			case lnsNegateStmt:
				regs.isStmt = !regs.isStmt
			case lnsSetBasicBlock:
				regs.basicBlock = true
			case lnsConstAddPC:
				adjusted := uint8(255) - h.OpcodeBase
				operationAdvance := uint64(adjusted) / uint64(h.LineRange)
				advance(operationAdvance)
			case lnsFixedAdvancePC:
				d, err := cur.U16()
				if err != nil {
					return nil, err
				}
				regs.address += uint64(d)
				regs.opIndex = 0
			case lnsSetPrologueEnd:
				regs.prologueEnd = true
			case lnsSetEpilogueBegin:
				regs.epilogueBegin = true
			case lnsSetISA:
				isa, err := cur.ULEB128()
				if err != nil {
					return nil, err
				}
				regs.isa = isa
			default:
				// Unknown standard opcode: skip its declared operand count.
				n := int(h.StdOpcodeLengths[opcode-1])
				for i := 0; i < n; i++ {
					if _, err := cur.ULEB128(); err != nil {
						return nil, err
					}
				}
			}

		default:
			adjusted := opcode - h.OpcodeBase
			operationAdvance := uint64(adjusted) / uint64(h.LineRange)
			lineIncrement := int64(h.LineBase) + int64(adjusted)%int64(h.LineRange)
			advance(operationAdvance)
			regs.line += lineIncrement
			emit()
			regs.basicBlock = false
			regs.prologueEnd = false
			regs.epilogueBegin = false
			regs.discriminator = 0
		}
	}
	return rows, nil
}

func decodeAddr(v *bytesview.View, b []byte) uint64 {
	var x uint64
	if v.Order() == bytesview.BigEndian {
		for _, bb := range b {
			x = x<<8 | uint64(bb)
		}
		return x
	}
	for i := len(b) - 1; i >= 0; i-- {
		x = x<<8 | uint64(b[i])
	}
	return x
}
