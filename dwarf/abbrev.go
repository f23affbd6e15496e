package dwarf

import (
	"fmt"

	"github.com/Manu343726/elfkit/internal/bytesview"
)

// AbbrevAttr is one (attribute, form) pair inside an abbreviation, plus the
// implicit_const value when form is FormImplicitConst.
type AbbrevAttr struct {
	Attr           Attr
	Form           Form
	ImplicitConst  int64
}

// Abbreviation is one entry of a .debug_abbrev table: a code, a tag, a
// has-children flag, and its ordered attribute list.
type Abbreviation struct {
	Code        uint64
	Tag         Tag
	HasChildren bool
	Attrs       []AbbrevAttr
}

// AbbrevTable is a parsed .debug_abbrev table, indexed by code as spec.md
// §4.E requires ("Returned abbreviations are indexed by code").
type AbbrevTable map[uint64]Abbreviation

// abbrevCache memoizes AbbrevTable decodes keyed by their section offset,
// so "reading the same table twice reuses the cache" (spec.md §4.E).
type abbrevCache struct {
	tables map[uint64]AbbrevTable
}

func newAbbrevCache() *abbrevCache {
	return &abbrevCache{tables: map[uint64]AbbrevTable{}}
}

// parseAbbrevTable decodes one table starting at byte offset off within
// the .debug_abbrev view, stopping at a zero code.
func parseAbbrevTable(v *bytesview.View, off int) (AbbrevTable, error) {
	cur := bytesview.At(v, off)
	table := AbbrevTable{}
	for {
		code, err := cur.ULEB128()
		if err != nil {
			return nil, fmt.Errorf("dwarf: abbrev table at %d: %w", off, err)
		}
		if code == 0 {
			return table, nil
		}
		tag, err := cur.ULEB128()
		if err != nil {
			return nil, err
		}
		hasChildren, err := cur.U8()
		if err != nil {
			return nil, err
		}
		var attrs []AbbrevAttr
		for {
			attr, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			form, err := cur.ULEB128()
			if err != nil {
				return nil, err
			}
			var implicit int64
			if Form(form) == FormImplicitConst {
				implicit, err = cur.SLEB128()
				if err != nil {
					return nil, err
				}
			}
			if attr == 0 && form == 0 {
				break
			}
			attrs = append(attrs, AbbrevAttr{Attr: Attr(attr), Form: Form(form), ImplicitConst: implicit})
		}
		table[code] = Abbreviation{
			Code:        code,
			Tag:         Tag(tag),
			HasChildren: hasChildren != 0,
			Attrs:       attrs,
		}
	}
}

// Table returns the AbbrevTable at byte offset off in abbrevSec, decoding
// and caching it on first use.
func (c *abbrevCache) Table(abbrevSec *bytesview.View, off uint64) (AbbrevTable, error) {
	if t, ok := c.tables[off]; ok {
		return t, nil
	}
	t, err := parseAbbrevTable(abbrevSec, int(off))
	if err != nil {
		return nil, err
	}
	c.tables[off] = t
	return t, nil
}
