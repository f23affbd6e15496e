// Package unstrip recombines a stripped ELF object with its separate
// debuginfo object into a single merged ELF, per spec.md §4.J.
package unstrip

import (
	"errors"
	"fmt"

	"github.com/Manu343726/elfkit/elf"
)

var (
	ErrMismatch       = errors.New("unstrip: stripped and debug files are not the same object")
	ErrUnstrippable   = errors.New("unstrip: debug file has no usable NOBITS/symbol information to merge")
	ErrLayoutOverflow = errors.New("unstrip: merged layout exceeds representable section offsets")
)

// Options controls a single Recombine call. DryRun and the directory batch
// mode (RecombineDir) mirror unstrip.c's -n and -d flags.
type Options struct {
	// DryRun compares stripped and debug without producing merged bytes;
	// Result.Merged is left nil and Result.Compared reports whether the
	// two files describe the same object (same class/machine/phnum/bias).
	DryRun bool
}

// Result is the outcome of recombining one (stripped, debug) pair.
type Result struct {
	Merged   []byte
	Compared bool // set under DryRun: true if the pair would merge cleanly
}

// Recombine merges stripped (S) and debug (D) into a single ELF per
// spec.md §4.J's nine steps. Both must already be parsed via elf.NewFile.
func Recombine(stripped, debug *elf.File, opts Options) (*Result, error) {
	if err := checkMismatch(stripped, debug); err != nil {
		return nil, err
	}
	if err := checkBias(stripped, debug); err != nil {
		return nil, err
	}

	if opts.DryRun {
		return &Result{Compared: true}, nil
	}

	b := elf.NewBuilder(*debug.Header())
	b.Progs = append([]elf.ProgramHeader{}, debug.ProgramHeaders()...)

	plan, err := planSections(stripped, debug)
	if err != nil {
		return nil, err
	}

	merged, err := mergeSymbols(stripped, debug, plan)
	if err != nil {
		return nil, err
	}

	if err := plan.emit(b, stripped, debug, merged); err != nil {
		return nil, err
	}

	out, err := b.Finalize()
	if err != nil {
		return nil, fmt.Errorf("unstrip: %w", err)
	}
	return &Result{Merged: out}, nil
}

func checkMismatch(stripped, debug *elf.File) error {
	sh, dh := stripped.Header(), debug.Header()
	if sh.Class != dh.Class || sh.Machine != dh.Machine {
		return fmt.Errorf("%w: class/machine differ", ErrMismatch)
	}
	if len(stripped.ProgramHeaders()) != len(debug.ProgramHeaders()) {
		return fmt.Errorf("%w: program header count differs (%d vs %d)",
			ErrMismatch, len(stripped.ProgramHeaders()), len(debug.ProgramHeaders()))
	}
	return nil
}

// checkBias compares the virtual address of the first PT_LOAD segment the
// two files share, refusing the merge if prelinking has shifted one
// relative to the other (spec.md §4.J step 1).
func checkBias(stripped, debug *elf.File) error {
	sLoads := stripped.LoadSegments()
	dLoads := debug.LoadSegments()
	if len(sLoads) == 0 || len(dLoads) == 0 {
		return nil // nothing to bias-check; e.g. a relocatable object
	}
	bias := int64(sLoads[0].VAddr) - int64(dLoads[0].VAddr)
	if bias != 0 {
		return fmt.Errorf("%w: nonzero load bias %d (prelinked?)", ErrMismatch, bias)
	}
	return nil
}
