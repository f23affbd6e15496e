// Package unstrip wires the unstrip.Recombine core into a cobra
// subcommand, including unstrip.c's -n (dry run) and -d (directory)
// modes.
package unstrip

import (
	"fmt"
	"os"

	"github.com/Manu343726/elfkit/elf"
	urec "github.com/Manu343726/elfkit/unstrip"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	outPath string
	dryRun  bool
	dir     string

	colorError = color.New(color.FgRed, color.Bold)
	colorOK    = color.New(color.FgGreen, color.Bold)
)

// Cmd is the unstrip subcommand, added to cmd.RootCmd.
var Cmd = &cobra.Command{
	Use:   "unstrip <stripped> <debug>",
	Short: "Merge a stripped ELF and its separate debug ELF into one file",
	Args:  cobra.MaximumNArgs(2),
	Run:   run,
}

func init() {
	Cmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (default: <stripped>.unstripped)")
	Cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "only check the files match, don't write output")
	Cmd.Flags().StringVarP(&dir, "directory", "d", "", "match <debug> against every file in this directory instead of a single <stripped>")
}

func run(cmd *cobra.Command, args []string) {
	if dir != "" {
		runDir(args)
		return
	}
	if len(args) != 2 {
		colorError.Fprintln(os.Stderr, "unstrip: exactly two files required unless -d is given")
		os.Exit(2)
	}
	runSingle(args[0], args[1])
}

func runSingle(strippedPath, debugPath string) {
	strippedFh, stripped, err := openELF(strippedPath)
	if err != nil {
		colorError.Fprintf(os.Stderr, "%s: %v\n", strippedPath, err)
		os.Exit(1)
	}
	defer strippedFh.Close()

	debugFh, debug, err := openELF(debugPath)
	if err != nil {
		colorError.Fprintf(os.Stderr, "%s: %v\n", debugPath, err)
		os.Exit(1)
	}
	defer debugFh.Close()

	res, err := urec.Recombine(stripped, debug, urec.Options{DryRun: dryRun})
	if err != nil {
		colorError.Fprintf(os.Stderr, "unstrip: %v\n", err)
		os.Exit(1)
	}

	if dryRun {
		colorOK.Printf("%s and %s match\n", strippedPath, debugPath)
		return
	}

	out := outPath
	if out == "" {
		out = strippedPath + ".unstripped"
	}
	if err := os.WriteFile(out, res.Merged, 0o755); err != nil {
		colorError.Fprintf(os.Stderr, "%s: %v\n", out, err)
		os.Exit(1)
	}
	colorOK.Printf("wrote %s\n", out)
}

func runDir(args []string) {
	if len(args) != 1 {
		colorError.Fprintln(os.Stderr, "unstrip -d: exactly one debug file required")
		os.Exit(2)
	}
	results, err := urec.RecombineDir(args[0], dir, urec.Options{DryRun: dryRun})
	if err != nil {
		colorError.Fprintf(os.Stderr, "unstrip: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("matched %d file(s) in %s against %s\n", len(results), dir, args[0])
}

func openELF(path string) (*elf.FileHandle, *elf.File, error) {
	fh, err := elf.OpenFileHandle(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := fh.Open()
	if err != nil {
		fh.Close()
		return nil, nil, err
	}
	return fh, f, nil
}
