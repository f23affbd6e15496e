package dwarf

import (
	"fmt"

	"github.com/Manu343726/elfkit/internal/bytesview"
)

// CUContext carries the handful of *_base attributes a compilation unit's
// root DIE may declare, needed to resolve the indexed forms (strx, addrx,
// loclistx, rnglistx) spec.md §4.E's form table describes. These bases are
// themselves ordinary sec_offset attributes on the root DIE, so resolving
// an indexed attribute is a two-step process: decode the root DIE first,
// build a CUContext from it, then resolve.
type CUContext struct {
	Unit            Unit
	AddrBase        uint64
	StrOffsetsBase  uint64
	RnglistsBase    uint64
	LoclistsBase    uint64
	HasAddrBase     bool
	HasStrOffsBase  bool
	HasRnglistsBase bool
	HasLoclistsBase bool
}

// NewCUContext builds a CUContext from a unit and its already-decoded root
// DIE's base attributes.
func NewCUContext(u Unit, root *DIE) CUContext {
	ctx := CUContext{Unit: u}
	if v, ok := root.Attr(AttrAddrBase); ok {
		ctx.AddrBase, ctx.HasAddrBase = v.Uint, true
	}
	if v, ok := root.Attr(AttrStrOffsetsBase); ok {
		ctx.StrOffsetsBase, ctx.HasStrOffsBase = v.Uint, true
	}
	if v, ok := root.Attr(AttrRnglistsBase); ok {
		ctx.RnglistsBase, ctx.HasRnglistsBase = v.Uint, true
	}
	if v, ok := root.Attr(AttrLoclistsBase); ok {
		ctx.LoclistsBase, ctx.HasLoclistsBase = v.Uint, true
	}
	return ctx
}

// ResolveAddrx resolves an addrx-family index into an address, indexing
// .debug_addr from ctx.AddrBase.
func (d *Data) ResolveAddrx(ctx CUContext, index uint64) (uint64, error) {
	if d.sec.Addr == nil {
		return 0, fmt.Errorf("dwarf: addrx index %d but no .debug_addr section", index)
	}
	base := ctx.AddrBase
	off := int(base) + int(index)*ctx.Unit.AddrSize
	v, err := d.sec.Addr.Slice(off, ctx.Unit.AddrSize)
	if err != nil {
		return 0, fmt.Errorf("dwarf: resolving addrx %d: %w", index, err)
	}
	c := bytesview.NewCursor(v)
	return readAddrN(c, ctx.Unit.AddrSize)
}

// ResolveStrx resolves a strx-family index into a string, indexing
// .debug_str_offsets from ctx.StrOffsetsBase then .debug_str.
func (d *Data) ResolveStrx(ctx CUContext, index uint64) (string, error) {
	if d.sec.StrOffsets == nil || d.sec.Str == nil {
		return "", fmt.Errorf("dwarf: strx index %d but no .debug_str_offsets/.debug_str", index)
	}
	offSize := offsetSizeOf(ctx.Unit)
	entryOff := int(ctx.StrOffsetsBase) + int(index)*offSize
	v, err := d.sec.StrOffsets.Slice(entryOff, offSize)
	if err != nil {
		return "", fmt.Errorf("dwarf: resolving strx %d: %w", index, err)
	}
	c := bytesview.NewCursor(v)
	strOff, err := readOffsetN(c, offSize)
	if err != nil {
		return "", err
	}
	sv := bytesview.At(d.sec.Str, int(strOff))
	return sv.CString()
}

// ResolveRnglistx resolves a DW_FORM_rnglistx index into an absolute byte
// offset into .debug_rnglists, per DWARF5 §7.28: the CU's own offset array
// starts at ctx.RnglistsBase, and the offsets it holds are themselves
// relative to that same base.
func (d *Data) ResolveRnglistx(ctx CUContext, index uint64) (int, error) {
	return resolveListsIndex(d.sec.Rnglists, ctx.RnglistsBase, ctx.Unit, index)
}

// ResolveLoclistx resolves a DW_FORM_loclistx index into an absolute byte
// offset into .debug_loclists, the loclists counterpart of ResolveRnglistx.
func (d *Data) ResolveLoclistx(ctx CUContext, index uint64) (int, error) {
	return resolveListsIndex(d.sec.Loclists, ctx.LoclistsBase, ctx.Unit, index)
}

func resolveListsIndex(v *bytesview.View, base uint64, u Unit, index uint64) (int, error) {
	if v == nil {
		return 0, fmt.Errorf("dwarf: rnglistx/loclistx index %d but section is absent", index)
	}
	offSize := offsetSizeOf(u)
	cur := bytesview.At(v, int(base)+int(index)*offSize)
	off, err := readOffsetN(cur, offSize)
	if err != nil {
		return 0, fmt.Errorf("dwarf: resolving rnglistx/loclistx index %d: %w", index, err)
	}
	return int(base) + int(off), nil
}

// ResolveSecOffsetString resolves a KindSecOffset value produced by strp,
// line_strp, strp_sup or GNU_strp_alt into its string, given which section
// the offset is relative to.
func ResolveSecOffsetString(sec *bytesview.View, off uint64) (string, error) {
	if sec == nil {
		return "", fmt.Errorf("dwarf: strp-family offset %d but section is absent", off)
	}
	c := bytesview.At(sec, int(off))
	return c.CString()
}
