package dwarf

import (
	"fmt"

	"github.com/Manu343726/elfkit/internal/bytesview"
)

// DIE is one debugging information entry: its tag, its offset (used as the
// cross-reference key for ref1/2/4/8/udata forms), its decoded attributes,
// and its children in source order.
type DIE struct {
	Offset   uint64
	Tag      Tag
	Attrs    []Attribute
	Children []*DIE

	hasSibling    bool
	siblingOffset uint64
}

// Attr returns the first attribute named a on the DIE, and whether one was
// found.
func (d *DIE) Attr(a Attr) (AttrValue, bool) {
	for _, at := range d.Attrs {
		if at.Attr == a {
			return at.Value, true
		}
	}
	return AttrValue{}, false
}

// walkAttrs decodes one DIE's attribute list (but not its children),
// advancing cur past it. This is spec.md §4.E's "attribute walker": given
// a DIE's start, the CU, and its abbreviation, it yields (name, form,
// value) triples in source order.
func walkAttrs(cur *bytesview.Cursor, ab Abbreviation, addrSize, offsetSize int) ([]Attribute, error) {
	out := make([]Attribute, 0, len(ab.Attrs))
	for _, a := range ab.Attrs {
		val, err := decodeForm(cur, a.Form, addrSize, offsetSize, a.ImplicitConst)
		if err != nil {
			return nil, fmt.Errorf("dwarf: decoding %v (form 0x%x): %w", a.Attr, uint64(a.Form), err)
		}
		out = append(out, Attribute{Attr: a.Attr, Form: a.Form, Value: val})
	}
	return out, nil
}

// ReadDIETree decodes the full DIE tree for unit u, rooted at its single
// top-level DIE. Per spec.md §4.F point 4, the tree is built with an
// explicit stack that tracks the current nesting level. This walker always
// decodes every DIE: a DW_AT_sibling attribute, when present, is recorded
// on its DIE but is not used to skip the subtree or to check the tree's
// shape.
func (d *Data) ReadDIETree(u Unit) (*DIE, error) {
	abbrev, err := d.abbrev.Table(d.sec.Abbrev, u.AbbrevOff)
	if err != nil {
		return nil, fmt.Errorf("dwarf: unit at %d: %w", u.Offset, err)
	}

	v := u.sectionView(d)
	cur := bytesview.At(v, u.headerEnd)

	type frame struct {
		die   *DIE
	}
	var stack []frame
	var root *DIE

	for cur.Pos() < u.BodyEnd() {
		dieOff := uint64(cur.Pos())
		code, err := cur.ULEB128()
		if err != nil {
			return nil, err
		}
		if code == 0 {
			if len(stack) == 0 {
				return nil, fmt.Errorf("dwarf: unit at %d: unmatched null DIE at %d", u.Offset, dieOff)
			}
			stack = stack[:len(stack)-1]
			continue
		}
		ab, ok := abbrev[code]
		if !ok {
			return nil, fmt.Errorf("dwarf: unit at %d: unknown abbrev code %d at %d", u.Offset, code, dieOff)
		}
		attrs, err := walkAttrs(cur, ab, u.AddrSize, offsetSizeOf(u))
		if err != nil {
			return nil, err
		}
		die := &DIE{Offset: dieOff, Tag: ab.Tag, Attrs: attrs}
		if sib, ok := die.Attr(AttrSibling); ok {
			die.hasSibling = true
			die.siblingOffset = sib.Uint
		}

		if len(stack) == 0 {
			root = die
		} else {
			parent := stack[len(stack)-1].die
			parent.Children = append(parent.Children, die)
		}
		if ab.HasChildren {
			stack = append(stack, frame{die: die})
		}
	}
	if root == nil {
		return nil, fmt.Errorf("dwarf: unit at %d: empty DIE tree", u.Offset)
	}
	return root, nil
}

func offsetSizeOf(u Unit) int {
	if u.Is64Bit {
		return 8
	}
	return 4
}

// sectionView returns the .debug_info or .debug_types view this unit was
// scanned from.
func (u Unit) sectionView(d *Data) *bytesview.View {
	if u.fromTypes {
		return d.sec.Types
	}
	return d.sec.Info
}
