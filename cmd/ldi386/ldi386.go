// Package ldi386 is a thin, read-only front-end over the i386 relocation
// types a static linker would need to apply. It mirrors elfutils'
// i386_ld.c relocate_section switch closely enough to classify every
// relocation an input object carries, but performs no section merging or
// byte patching of its own — the linker backend itself is out of core
// scope (spec.md §1's Non-goals: "the prototype i386 linker
// relocation/PLT code ... duplicates work better done by the ELF
// model"), and its original implementation aborts on the TLS relocation
// types this command instead reports as unsupported.
package ldi386

import (
	"fmt"
	"os"

	"github.com/Manu343726/elfkit/elf"
	"github.com/spf13/cobra"
)

// r386 names the subset of R_386_* relocation type numbers
// i386_ld.c's relocate_section switches on (System V i386 psABI).
var r386 = map[uint32]string{
	0:  "R_386_NONE",
	1:  "R_386_32",
	2:  "R_386_PC32",
	3:  "R_386_GOT32",
	4:  "R_386_PLT32",
	5:  "R_386_COPY",
	6:  "R_386_GLOB_DAT",
	7:  "R_386_JMP_SLOT",
	8:  "R_386_RELATIVE",
	9:  "R_386_GOTOFF",
	10: "R_386_GOTPC",
	14: "R_386_TLS_TPOFF",
	15: "R_386_TLS_IE",
	16: "R_386_TLS_GOTIE",
	17: "R_386_TLS_LE",
	18: "R_386_TLS_GD",
	19: "R_386_TLS_LDM",
	20: "R_386_16",
	21: "R_386_PC16",
	22: "R_386_8",
	23: "R_386_PC8",
	24: "R_386_TLS_GD_32",
	25: "R_386_TLS_GD_PUSH",
	26: "R_386_TLS_GD_CALL",
	27: "R_386_TLS_GD_POP",
	28: "R_386_TLS_LDM_32",
	29: "R_386_TLS_LDM_PUSH",
	30: "R_386_TLS_LDM_CALL",
	31: "R_386_TLS_LDM_POP",
	32: "R_386_TLS_LDO_32",
	33: "R_386_TLS_IE_32",
	34: "R_386_TLS_LE_32",
	35: "R_386_TLS_DTPMOD32",
	36: "R_386_TLS_DTPOFF32",
	37: "R_386_TLS_TPOFF32",
}

// unsupported is the relocation set i386_ld.c's relocate_section aborts
// on (TLS access models the prototype backend never implemented).
var unsupported = map[uint32]bool{
	18: true, 19: true, 24: true, 25: true, 26: true, 27: true,
	28: true, 29: true, 30: true, 31: true, 32: true, 33: true, 34: true,
}

// Cmd is the ldi386 subcommand, added to cmd.RootCmd. It reports what a
// real linker would need to do with an object's relocations without
// doing any of it — combining object files is out of scope here.
var Cmd = &cobra.Command{
	Use:   "ldi386 <object.o>",
	Short: "Classify the i386 relocations a static link of this object would need",
	Long: `ldi386 is a read-only prototype: it lists every relocation in an
i386 relocatable object file's .rel/.rela sections and classifies it as
one a linker could apply, or one (a TLS access model) this prototype
does not support. It does not merge sections, apply relocations, or
write output — see spec.md's Non-goals for why that stays out of core.`,
	Args: cobra.ExactArgs(1),
	Run:  run,
}

func run(cmd *cobra.Command, args []string) {
	fh, err := elf.OpenFileHandle(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		os.Exit(1)
	}
	defer fh.Close()

	f, err := fh.Open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		os.Exit(1)
	}
	if f.Header().Machine != elf.EM_386 {
		fmt.Fprintf(os.Stderr, "%s: not an i386 object (machine=%v)\n", args[0], f.Header().Machine)
		os.Exit(1)
	}

	var unsupportedCount int
	for _, sec := range f.Sections() {
		if sec.Header.Type != elf.SHT_REL && sec.Header.Type != elf.SHT_RELA {
			continue
		}
		relocs, err := f.Relocations(&sec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", sec.Name, err)
			os.Exit(1)
		}
		fmt.Printf("%s (%d entries):\n", sec.Name, len(relocs))
		for _, r := range relocs {
			name, known := r386[r.Type]
			if !known {
				name = fmt.Sprintf("R_386_unknown(%d)", r.Type)
			}
			status := "applicable"
			if unsupported[r.Type] {
				status = "UNSUPPORTED (TLS access model)"
				unsupportedCount++
			}
			fmt.Printf("  offset=0x%x sym=%d type=%s [%s]\n", r.Offset, r.SymbolIndex, name, status)
		}
	}

	if unsupportedCount > 0 {
		fmt.Fprintf(os.Stderr, "%s: %d relocation(s) this prototype cannot link\n", args[0], unsupportedCount)
		os.Exit(1)
	}
}
