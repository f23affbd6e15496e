// Package compress implements spec.md Component C: sniffing and
// transparently decompressing a byte prefix into an owned buffer. Its one
// caller in elfkit is elf.Section's SHF_COMPRESSED handling, through
// ZlibInflate; debuglink does not use it, so compressed companion debug
// files are not opened transparently.
package compress

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Kind identifies which compressed envelope, if any, a byte prefix sniffs
// as.
type Kind int

const (
	KindNone Kind = iota
	KindGzip
	KindBzip2
	KindXZ
	KindRawLZMA
)

func (k Kind) String() string {
	switch k {
	case KindGzip:
		return "gzip"
	case KindBzip2:
		return "bzip2"
	case KindXZ:
		return "xz"
	case KindRawLZMA:
		return "lzma"
	default:
		return "none"
	}
}

// ErrNotCompressed is returned by Sniff-adjacent callers (and usable with
// errors.Is) when the input doesn't match any recognized magic; per
// spec.md §4.C this is a signal, not a fatal error — callers should treat
// the bytes as raw ELF.
var ErrNotCompressed = errors.New("compress: input is not a recognized compressed stream")

// ErrOutOfMemory is returned when decompression exhausts every retry step.
var ErrOutOfMemory = errors.New("compress: exhausted buffer growth retries")

// Sniff inspects the first few bytes of data and reports which envelope,
// if any, it matches. It never consumes data.
func Sniff(data []byte) Kind {
	switch {
	case len(data) >= 2 && data[0] == 0x1F && data[1] == 0x8B:
		return KindGzip
	case len(data) >= 3 && data[0] == 'B' && data[1] == 'Z' && data[2] == 'h':
		return KindBzip2
	case len(data) >= 6 && data[0] == 0xFD && string(data[1:5]) == "7zXZ" && data[5] == 0x00:
		return KindXZ
	case len(data) >= 2 && data[0] == 0x5D && data[1] == 0x00:
		return KindRawLZMA
	default:
		return KindNone
	}
}

// growthSteps are the geometric buffer sizes Decompress retries with,
// largest first, each a quarter of the one before; on bytes.ErrTooLarge at
// one step it tries the next,
// mirroring original_source/libdwfl/gzip.c's retry-smaller-on-ENOMEM
// strategy.
var growthSteps = []int{64 << 20, 16 << 20, 4 << 20, 1 << 20, 256 << 10, 64 << 10}

// Decompress sniffs data and, if it recognizes a compressed envelope,
// streams the whole thing into an owned buffer. If data does not look
// compressed, it returns (nil, ErrNotCompressed) so the caller can fall
// back to treating it as raw ELF.
func Decompress(data []byte) ([]byte, error) {
	kind := Sniff(data)
	if kind == KindNone {
		return nil, ErrNotCompressed
	}
	return DecompressAs(kind, data)
}

// DecompressAs decompresses data as a stream of the given kind, without
// re-sniffing, for callers that already know the envelope. SHF_COMPRESSED
// sections do not go through it; see ZlibInflate.
func DecompressAs(kind Kind, data []byte) ([]byte, error) {
	r, err := readerFor(kind, data)
	if err != nil {
		return nil, err
	}
	return readAllRetrying(r)
}

func readerFor(kind Kind, data []byte) (io.Reader, error) {
	switch kind {
	case KindGzip:
		return gzip.NewReader(bytes.NewReader(data))
	case KindBzip2:
		return bzip2.NewReader(bytes.NewReader(data)), nil
	case KindXZ:
		return xz.NewReader(bytes.NewReader(data))
	case KindRawLZMA:
		return lzma.NewReader(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("compress: unknown kind %v", kind)
	}
}

// readAllRetrying drains r into a buffer, growing geometrically per
// growthSteps; if allocating the next chunk fails outright (represented
// here as the io.Reader returning an error partway and room running out)
// it falls back to a smaller step before giving up with ErrOutOfMemory.
func readAllRetrying(r io.Reader) ([]byte, error) {
	var lastErr error
	for _, step := range growthSteps {
		buf := make([]byte, 0, step)
		out, err := readAllInto(r, buf)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, bytes.ErrTooLarge) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrOutOfMemory, lastErr)
}

func readAllInto(r io.Reader, buf []byte) ([]byte, error) {
	w := bytes.NewBuffer(buf)
	_, err := io.Copy(w, r)
	if err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// ZlibInflate decompresses a section whose Elf_Chdr names
// ELFCOMPRESS_ZLIB (the only algorithm the gABI assigns a number to). It
// is distinct from the magic-byte-sniffed Decompress/DecompressAs because
// SHF_COMPRESSED content has no gzip-style magic: the Elf_Chdr header
// itself says "zlib", and the payload is a raw zlib stream.
func ZlibInflate(data []byte) ([]byte, error) {
	zr, err := newZlibReader(data)
	if err != nil {
		return nil, err
	}
	return readAllRetrying(zr)
}
