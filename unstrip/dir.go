package unstrip

import (
	"os"
	"path/filepath"

	"github.com/Manu343726/elfkit/elf"
)

// RecombineDir matches unstrip.c's -d mode: one DWARF file checked
// against every regular file in a directory of stripped candidates,
// merging whichever ones pass the mismatch/bias checks.
func RecombineDir(debugPath, strippedDir string, opts Options) ([]Result, error) {
	debugData, err := os.ReadFile(debugPath)
	if err != nil {
		return nil, err
	}
	debug, err := elf.NewFile(debugData)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(strippedDir)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(strippedDir, ent.Name()))
		if err != nil {
			continue
		}
		stripped, err := elf.NewFile(data)
		if err != nil {
			continue // not an ELF object at all
		}
		res, err := Recombine(stripped, debug, opts)
		if err != nil {
			continue // not this file's debug companion
		}
		results = append(results, *res)
	}
	return results, nil
}
