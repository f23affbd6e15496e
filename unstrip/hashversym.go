package unstrip

import (
	"encoding/binary"

	"github.com/Manu343726/elfkit/elf"
)

// rebuildSysVHash grows a SysV SHT_HASH table to cover the merged symbol
// table, per original_source/src/unstrip.c's CONVERT_HASH: the bucket
// count is unchanged, but the chain array is resized to one entry per
// merged symbol and every bucket/chain entry is rewritten through perm
// (the old->new symbol index map for whichever file this hash table came
// from).
func rebuildSysVHash(old *elf.SysVHash, perm map[int]int, newSymCount int) *elf.SysVHash {
	h := &elf.SysVHash{
		Buckets: make([]uint32, len(old.Buckets)),
		Chains:  make([]uint32, newSymCount),
	}
	for i, b := range old.Buckets {
		if b == 0 {
			continue
		}
		if n, ok := perm[int(b)]; ok {
			h.Buckets[i] = uint32(n)
		}
	}
	for i := 1; i < len(old.Chains); i++ {
		c := old.Chains[i]
		if c == 0 {
			continue
		}
		newIdx, ok := perm[i]
		if !ok {
			continue
		}
		if target, ok := perm[int(c)]; ok {
			h.Chains[newIdx] = uint32(target)
		}
	}
	return h
}

func encodeSysVHash(h *elf.SysVHash, bo binary.ByteOrder) []byte {
	out := make([]byte, 8+4*(len(h.Buckets)+len(h.Chains)))
	bo.PutUint32(out[0:], uint32(len(h.Buckets)))
	bo.PutUint32(out[4:], uint32(len(h.Chains)))
	off := 8
	for _, b := range h.Buckets {
		bo.PutUint32(out[off:], b)
		off += 4
	}
	for _, c := range h.Chains {
		bo.PutUint32(out[off:], c)
		off += 4
	}
	return out
}

// rebuildVersym moves a SHT_GNU_versym table's entries to the merged
// symbol indices, per unstrip.c's SHT_GNU_versym case: the array grows to
// one VER_NDX entry per merged symbol, every original entry (besides the
// reserved index 0) is relocated through perm, and newly introduced
// symbol slots default to VER_NDX_LOCAL (0, the zero value).
func rebuildVersym(old []uint16, perm map[int]int, newSymCount int) []uint16 {
	out := make([]uint16, newSymCount)
	for i := 1; i < len(old); i++ {
		if newIdx, ok := perm[i]; ok {
			out[newIdx] = old[i]
		}
	}
	return out
}

func encodeVersym(vals []uint16, bo binary.ByteOrder) []byte {
	out := make([]byte, 2*len(vals))
	for i, v := range vals {
		bo.PutUint16(out[2*i:], v)
	}
	return out
}
