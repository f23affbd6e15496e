package elf

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileHandle owns one open file descriptor and (when supported) its mmap
// mapping. Every File parsed from it, and every Symbol/Section/DIE that
// borrows bytes transitively from that File, must not outlive the
// FileHandle (spec.md §5's shared-resource policy: one handle per opened
// file, decoded views borrow from it).
type FileHandle struct {
	f       *os.File
	mapped  []byte
	ownBuf  []byte // used instead of mapped when mmap isn't available/safe
	usedMap bool
}

// OpenFileHandle opens path and maps it read-only. If mmap fails (e.g. the
// path is a pipe, or we're on a platform without unix.Mmap support for
// this fd), it falls back to a plain read into an owned buffer — the same
// fallback spec.md §4.D describes for CRC32File.
func OpenFileHandle(path string) (*FileHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fh := &FileHandle{f: f}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() == 0 {
		fh.ownBuf = nil
		return fh, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err == nil {
		fh.mapped = data
		fh.usedMap = true
		return fh, nil
	}

	buf := make([]byte, st.Size())
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("elf: read fallback for %s: %w", path, err)
	}
	fh.ownBuf = buf
	return fh, nil
}

// Bytes returns the handle's full borrowed content.
func (fh *FileHandle) Bytes() []byte {
	if fh.usedMap {
		return fh.mapped
	}
	return fh.ownBuf
}

// Open parses an ELF File over the handle's bytes.
func (fh *FileHandle) Open() (*File, error) {
	return NewFile(fh.Bytes())
}

// Close unmaps (if mapped) and closes the underlying descriptor. Every
// File/Section/Symbol derived from this handle becomes invalid.
func (fh *FileHandle) Close() error {
	var err error
	if fh.usedMap && fh.mapped != nil {
		err = unix.Munmap(fh.mapped)
		fh.mapped = nil
	}
	if cerr := fh.f.Close(); err == nil {
		err = cerr
	}
	return err
}
