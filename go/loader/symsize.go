package loader

import (
	"sort"

	"github.com/lunixbochs/objimage/go/models"
)

const noSection = -1

// sectionSymbol is a symbol waiting for its size, tagged with the index of
// the section containing it and that section's end address.
type sectionSymbol struct {
	models.Symbol
	section int
	end     uint64
}

// nextInSection sizes each symbol as the distance to the nearest higher
// address in the same section, or to the section end when none is higher.
// Symbols outside any section get size 0. Output order matches input order.
func nextInSection(syms []sectionSymbol) []models.Symbol {
	order := make([]int, len(syms))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := &syms[order[a]], &syms[order[b]]
		if sa.section != sb.section {
			return sa.section < sb.section
		}
		return sa.Addr < sb.Addr
	})
	out := make([]models.Symbol, len(syms))
	for i, idx := range order {
		s := &syms[idx]
		out[idx] = s.Symbol
		if s.section == noSection {
			out[idx].Size = 0
			continue
		}
		end := s.end
		for _, next := range order[i+1:] {
			n := &syms[next]
			if n.section != s.section {
				break
			}
			if n.Addr > s.Addr {
				end = n.Addr
				break
			}
		}
		out[idx].Size = gap(s.Addr, end)
	}
	return out
}

// coffSymbol is a COFF symbol positioned by its offset within a section.
type coffSymbol struct {
	models.Symbol
	section int
	offset  uint64
	limit   uint64
}

// minGap sizes each symbol as the smallest of the distance to its section's
// end and the distance to every other symbol placed strictly after it in
// the same section.
func minGap(syms []coffSymbol) []models.Symbol {
	out := make([]models.Symbol, len(syms))
	for i := range syms {
		s := &syms[i]
		size := gap(s.offset, s.limit)
		for j := range syms {
			o := &syms[j]
			if j == i || o.section != s.section || o.offset <= s.offset {
				continue
			}
			if d := o.offset - s.offset; d < size {
				size = d
			}
		}
		out[i] = s.Symbol
		out[i].Size = size
	}
	return out
}
