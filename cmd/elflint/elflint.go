// Package elflint wires elflint.Validate into a cobra subcommand,
// colorizing its accumulated findings the way cmd/cpu/debug.go colorizes
// debugger output.
package elflint

import (
	"fmt"
	"os"

	"github.com/Manu343726/elfkit/elf"
	"github.com/Manu343726/elfkit/elflint"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	gnuLinker     bool
	strictAlloc   bool
	quiet         bool
	colorError    = color.New(color.FgRed, color.Bold)
	colorWarning  = color.New(color.FgYellow)
	colorSummary  = color.New(color.FgGreen, color.Bold)
)

// Cmd is the elflint subcommand, added to cmd.RootCmd.
var Cmd = &cobra.Command{
	Use:   "elflint <file>",
	Short: "Pedantically validate an ELF object file's structure",
	Args:  cobra.ExactArgs(1),
	Run:   run,
}

func init() {
	Cmd.Flags().BoolVar(&gnuLinker, "gnu-ld", false, "relax checks known to be violated by GNU ld output")
	Cmd.Flags().BoolVar(&strictAlloc, "strict-alloc-coverage", false, "also flag SHF_ALLOC sections with no covering PT_LOAD")
	Cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print a pass/fail summary")
}

func run(cmd *cobra.Command, args []string) {
	fh, err := elf.OpenFileHandle(args[0])
	if err != nil {
		colorError.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		os.Exit(1)
	}
	defer fh.Close()

	f, err := fh.Open()
	if err != nil {
		colorError.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		os.Exit(1)
	}

	findings := elflint.Validate(f, elflint.Context{
		GNULinker:           gnuLinker,
		StrictAllocCoverage: strictAlloc,
	})

	var errCount, warnCount int
	for _, find := range findings {
		if find.Severity == elflint.SeverityWarning {
			warnCount++
		} else {
			errCount++
		}
		if quiet {
			continue
		}
		switch find.Severity {
		case elflint.SeverityWarning:
			colorWarning.Printf("warning: ")
		default:
			colorError.Printf("error: ")
		}
		fmt.Printf("[%s] %s\n", find.Rule, find.Message)
	}

	if errCount == 0 && warnCount == 0 {
		colorSummary.Printf("%s: no issues found\n", args[0])
		return
	}
	fmt.Printf("%s: %d error(s), %d warning(s)\n", args[0], errCount, warnCount)
	if errCount > 0 {
		os.Exit(1)
	}
}
