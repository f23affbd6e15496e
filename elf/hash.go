package elf

import "github.com/Manu343726/elfkit/internal/bytesview"

// SysVHash is a decoded SHT_HASH table: nbucket buckets and nchain chain
// entries, both arrays of 32-bit symbol indices (gABI "Hash Table"
// section).
type SysVHash struct {
	Buckets []uint32
	Chains  []uint32
}

// SysVHashTable decodes a SHT_HASH section.
func (f *File) SysVHashTable(sec *Section) (*SysVHash, error) {
	if sec.Header.Type != SHT_HASH {
		return nil, wrap(ErrBadEnum, "section %s is not SHT_HASH", sec.Name)
	}
	data, err := sec.Data()
	if err != nil {
		return nil, err
	}
	if len(data) < 8 {
		return nil, wrap(ErrTruncated, "hash table shorter than 8 bytes")
	}
	c := bytesview.At(f.view, int(sec.Header.Offset))
	nbucket, err := c.U32()
	if err != nil {
		return nil, err
	}
	nchain, err := c.U32()
	if err != nil {
		return nil, err
	}
	want := 8 + 4*(uint64(nbucket)+uint64(nchain))
	if want > uint64(len(data)) {
		return nil, wrap(ErrTruncated, "hash table declares %d buckets + %d chains, section is only %d bytes", nbucket, nchain, len(data))
	}

	h := &SysVHash{Buckets: make([]uint32, nbucket), Chains: make([]uint32, nchain)}
	for i := range h.Buckets {
		v, err := c.U32()
		if err != nil {
			return nil, err
		}
		h.Buckets[i] = v
	}
	for i := range h.Chains {
		v, err := c.U32()
		if err != nil {
			return nil, err
		}
		h.Chains[i] = v
	}
	return h, nil
}

// SysVHashName computes the gABI's elf_hash() over a symbol name, used to
// pick the bucket a lookup should start from.
func SysVHashName(name string) uint32 {
	var h, g uint32
	for i := 0; i < len(name); i++ {
		h = (h << 4) + uint32(name[i])
		if g = h & 0xf0000000; g != 0 {
			h ^= g >> 24
		}
		h &= ^g
	}
	return h
}

// GNUHash is a decoded SHT_GNU_HASH table (the GNU extension hash table,
// laid out as: nbuckets, symndx, maskwords, shift2, then a bloom filter of
// maskwords address-sized words, then nbuckets 32-bit bucket entries, then
// one 32-bit chain entry per exported dynsym from symndx onward).
type GNUHash struct {
	SymOffset uint32
	MaskWords []uint64
	Shift2    uint32
	Buckets   []uint32
	Chain     []uint32
}

// GNUHashTable decodes a SHT_GNU_HASH section.
func (f *File) GNUHashTable(sec *Section) (*GNUHash, error) {
	if sec.Header.Type != SHT_GNU_HASH {
		return nil, wrap(ErrBadEnum, "section %s is not SHT_GNU_HASH", sec.Name)
	}
	data, err := sec.Data()
	if err != nil {
		return nil, err
	}
	if len(data) < 16 {
		return nil, wrap(ErrTruncated, "gnu hash table shorter than 16 bytes")
	}
	c := bytesview.At(f.view, int(sec.Header.Offset))
	nbuckets, err := c.U32()
	if err != nil {
		return nil, err
	}
	symndx, err := c.U32()
	if err != nil {
		return nil, err
	}
	maskwords, err := c.U32()
	if err != nil {
		return nil, err
	}
	shift2, err := c.U32()
	if err != nil {
		return nil, err
	}

	g := &GNUHash{SymOffset: symndx, Shift2: shift2}
	wordSize := 4
	if f.header.Class == Class64 {
		wordSize = 8
	}
	g.MaskWords = make([]uint64, maskwords)
	for i := range g.MaskWords {
		if wordSize == 8 {
			v, err := c.U64()
			if err != nil {
				return nil, err
			}
			g.MaskWords[i] = v
		} else {
			v, err := c.U32()
			if err != nil {
				return nil, err
			}
			g.MaskWords[i] = uint64(v)
		}
	}
	g.Buckets = make([]uint32, nbuckets)
	for i := range g.Buckets {
		v, err := c.U32()
		if err != nil {
			return nil, err
		}
		g.Buckets[i] = v
	}
	// The chain array runs to the end of the section; its length is not
	// stored explicitly (it depends on dynsym's count, which the caller
	// must cross-reference).
	for c.Remaining() >= 4 {
		v, err := c.U32()
		if err != nil {
			break
		}
		g.Chain = append(g.Chain, v)
	}
	return g, nil
}

// GNUHashName computes the GNU hash function over a symbol name.
func GNUHashName(name string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(name); i++ {
		h = h*33 + uint32(name[i])
	}
	return h
}
