package frame

import (
	"fmt"

	"github.com/Manu343726/elfkit/internal/bytesview"
)

// RuleKind classifies how a register's value at a given PC is recovered.
type RuleKind int

const (
	RuleUndefined RuleKind = iota
	RuleSameValue
	RuleOffset      // value at CFA + N
	RuleValOffset   // value is CFA + N
	RuleRegister    // value is in another register
	RuleExpression  // value at location given by a DWARF expression
	RuleValExpression
	RuleArchitectural
)

// Rule is one register's recovery rule.
type Rule struct {
	Kind   RuleKind
	Offset int64
	Reg    uint64
	Expr   []byte
}

// CFARule describes how to compute the canonical frame address: either
// register+offset, or a DWARF expression.
type CFARule struct {
	IsExpression bool
	Reg          uint64
	Offset       int64
	Expr         []byte
}

// RowState is one row of an FDE's register-rule table: the PC it starts
// applying at, the CFA rule, and every register's Rule.
type RowState struct {
	PC        uint64
	CFA       CFARule
	Registers map[uint64]Rule
	ArgsSize  uint64 // GNU_args_size
}

func (r RowState) clone() RowState {
	regs := make(map[uint64]Rule, len(r.Registers))
	for k, v := range r.Registers {
		regs[k] = v
	}
	return RowState{PC: r.PC, CFA: r.CFA, Registers: regs, ArgsSize: r.ArgsSize}
}

// CFI opcode encoding: the top two bits select one of three high-bit
// opcode families (advance_loc, offset, restore); everything else is a
// full byte opcode.
const (
	dwCFAAdvanceLoc = 0x40
	dwCFAOffset     = 0x80
	dwCFARestore    = 0xc0

	dwCFANop              = 0x00
	dwCFASetLoc           = 0x01
	dwCFAAdvanceLoc1      = 0x02
	dwCFAAdvanceLoc2      = 0x03
	dwCFAAdvanceLoc4      = 0x04
	dwCFAOffsetExtended   = 0x05
	dwCFARestoreExtended  = 0x06
	dwCFAUndefined        = 0x07
	dwCFASameValue        = 0x08
	dwCFARegister         = 0x09
	dwCFARememberState    = 0x0a
	dwCFARestoreState     = 0x0b
	dwCFADefCFA           = 0x0c
	dwCFADefCFARegister   = 0x0d
	dwCFADefCFAOffset     = 0x0e
	dwCFADefCFAExpression = 0x0f
	dwCFAExpression       = 0x10
	dwCFAOffsetExtendedSf = 0x11
	dwCFADefCFASf         = 0x12
	dwCFADefCFAOffsetSf   = 0x13
	dwCFAValOffset        = 0x14
	dwCFAValOffsetSf      = 0x15
	dwCFAValExpression    = 0x16
	dwCFAGNUWindowSave    = 0x2d
	dwCFAGNUArgsSize      = 0x2e
)

// RunCFI executes cie's initial program, then fde's program, producing
// the sequence of RowStates describing how every register is recovered
// across the FDE's PC range (spec.md §4.H's "function from program
// counter to the register-rule table").
func RunCFI(order bytesview.Order, cie CIE, fde FDE) ([]RowState, error) {
	current := RowState{PC: fde.InitialLocation, Registers: map[uint64]Rule{}}
	current.CFA = CFARule{}

	var stack []RowState
	var rows []RowState

	exec := func(instructions []byte) error {
		v := bytesview.New(instructions, order)
		cur := bytesview.NewCursor(v)
		for cur.Remaining() > 0 {
			opcodeByte, err := cur.U8()
			if err != nil {
				return err
			}
			top := opcodeByte & 0xc0
			low := opcodeByte & 0x3f

			switch top {
			case dwCFAAdvanceLoc:
				rows = append(rows, current.clone())
				current.PC += uint64(low) * cie.CodeAlignmentFactor
				continue
			case dwCFAOffset:
				off, err := cur.ULEB128()
				if err != nil {
					return err
				}
				current.Registers[uint64(low)] = Rule{Kind: RuleOffset, Offset: int64(off) * cie.DataAlignmentFactor}
				continue
			case dwCFARestore:
				delete(current.Registers, uint64(low))
				continue
			}

			switch opcodeByte {
			case dwCFANop:
			case dwCFASetLoc:
				loc, err := readEncodedPointer(cur, cie.FDEPointerEncoding, uint64(cur.Pos()))
				if err != nil {
					return err
				}
				rows = append(rows, current.clone())
				current.PC = loc
			case dwCFAAdvanceLoc1:
				d, err := cur.U8()
				if err != nil {
					return err
				}
				rows = append(rows, current.clone())
				current.PC += uint64(d) * cie.CodeAlignmentFactor
			case dwCFAAdvanceLoc2:
				d, err := cur.U16()
				if err != nil {
					return err
				}
				rows = append(rows, current.clone())
				current.PC += uint64(d) * cie.CodeAlignmentFactor
			case dwCFAAdvanceLoc4:
				d, err := cur.U32()
				if err != nil {
					return err
				}
				rows = append(rows, current.clone())
				current.PC += uint64(d) * cie.CodeAlignmentFactor
			case dwCFAOffsetExtended:
				reg, err := cur.ULEB128()
				if err != nil {
					return err
				}
				off, err := cur.ULEB128()
				if err != nil {
					return err
				}
				current.Registers[reg] = Rule{Kind: RuleOffset, Offset: int64(off) * cie.DataAlignmentFactor}
			case dwCFAOffsetExtendedSf:
				reg, err := cur.ULEB128()
				if err != nil {
					return err
				}
				off, err := cur.SLEB128()
				if err != nil {
					return err
				}
				current.Registers[reg] = Rule{Kind: RuleOffset, Offset: off * cie.DataAlignmentFactor}
			case dwCFARestoreExtended:
				reg, err := cur.ULEB128()
				if err != nil {
					return err
				}
				delete(current.Registers, reg)
			case dwCFAUndefined:
				reg, err := cur.ULEB128()
				if err != nil {
					return err
				}
				current.Registers[reg] = Rule{Kind: RuleUndefined}
			case dwCFASameValue:
				reg, err := cur.ULEB128()
				if err != nil {
					return err
				}
				current.Registers[reg] = Rule{Kind: RuleSameValue}
			case dwCFARegister:
				reg, err := cur.ULEB128()
				if err != nil {
					return err
				}
				src, err := cur.ULEB128()
				if err != nil {
					return err
				}
				current.Registers[reg] = Rule{Kind: RuleRegister, Reg: src}
			case dwCFARememberState:
				stack = append(stack, current.clone())
			case dwCFARestoreState:
				if len(stack) == 0 {
					return fmt.Errorf("dwarf/frame: restore_state with empty stack")
				}
				current = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
			case dwCFADefCFA:
				reg, err := cur.ULEB128()
				if err != nil {
					return err
				}
				off, err := cur.ULEB128()
				if err != nil {
					return err
				}
				current.CFA = CFARule{Reg: reg, Offset: int64(off)}
			case dwCFADefCFASf:
				reg, err := cur.ULEB128()
				if err != nil {
					return err
				}
				off, err := cur.SLEB128()
				if err != nil {
					return err
				}
				current.CFA = CFARule{Reg: reg, Offset: off * cie.DataAlignmentFactor}
			case dwCFADefCFARegister:
				reg, err := cur.ULEB128()
				if err != nil {
					return err
				}
				current.CFA.Reg = reg
			case dwCFADefCFAOffset:
				off, err := cur.ULEB128()
				if err != nil {
					return err
				}
				current.CFA.Offset = int64(off)
			case dwCFADefCFAOffsetSf:
				off, err := cur.SLEB128()
				if err != nil {
					return err
				}
				current.CFA.Offset = off * cie.DataAlignmentFactor
			case dwCFADefCFAExpression:
				n, err := cur.ULEB128()
				if err != nil {
					return err
				}
				b, err := cur.Bytes(int(n))
				if err != nil {
					return err
				}
				current.CFA = CFARule{IsExpression: true, Expr: b}
			case dwCFAExpression:
				reg, err := cur.ULEB128()
				if err != nil {
					return err
				}
				n, err := cur.ULEB128()
				if err != nil {
					return err
				}
				b, err := cur.Bytes(int(n))
				if err != nil {
					return err
				}
				current.Registers[reg] = Rule{Kind: RuleExpression, Expr: b}
			case dwCFAValOffset:
				reg, err := cur.ULEB128()
				if err != nil {
					return err
				}
				off, err := cur.ULEB128()
				if err != nil {
					return err
				}
				current.Registers[reg] = Rule{Kind: RuleValOffset, Offset: int64(off) * cie.DataAlignmentFactor}
			case dwCFAValOffsetSf:
				reg, err := cur.ULEB128()
				if err != nil {
					return err
				}
				off, err := cur.SLEB128()
				if err != nil {
					return err
				}
				current.Registers[reg] = Rule{Kind: RuleValOffset, Offset: off * cie.DataAlignmentFactor}
			case dwCFAValExpression:
				reg, err := cur.ULEB128()
				if err != nil {
					return err
				}
				n, err := cur.ULEB128()
				if err != nil {
					return err
				}
				b, err := cur.Bytes(int(n))
				if err != nil {
					return err
				}
				current.Registers[reg] = Rule{Kind: RuleValExpression, Expr: b}
			case dwCFAGNUWindowSave:
				// SPARC register-window save: registers 8-15 become the
				// caller's 24-31; modeled as eight register rules.
				for r := uint64(8); r <= 15; r++ {
					current.Registers[r] = Rule{Kind: RuleRegister, Reg: r + 16}
				}
			case dwCFAGNUArgsSize:
				n, err := cur.ULEB128()
				if err != nil {
					return err
				}
				current.ArgsSize = n
			default:
				return fmt.Errorf("dwarf/frame: unknown CFA opcode 0x%x", opcodeByte)
			}
		}
		return nil
	}

	if err := exec(cie.initialInstructions); err != nil {
		return nil, fmt.Errorf("dwarf/frame: CIE at %d initial program: %w", cie.Offset, err)
	}
	// The FDE program's restore_state operations run against a fresh
	// remember/restore stack; the row captured after the CIE's initial
	// program stays implicit in the row slice built below.
	stack = nil

	if err := exec(fde.instructions); err != nil {
		return nil, fmt.Errorf("dwarf/frame: FDE at %d program: %w", fde.Offset, err)
	}
	rows = append(rows, current.clone())
	return rows, nil
}
