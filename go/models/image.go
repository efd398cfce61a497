package models

// Image is the normalized view of one parsed container.
// It is built once by NewImage and never changes afterwards, so it is
// safe to share between goroutines without locking.
type Image struct {
	format   Format
	arch     Arch
	entry    uint64
	segments []Segment
	symbols  []Symbol
	sections []Section
}

// NewImage takes ownership of the slices passed in.
func NewImage(format Format, arch Arch, entry uint64, segments []Segment, symbols []Symbol, sections []Section) *Image {
	return &Image{
		format:   format,
		arch:     arch,
		entry:    entry,
		segments: segments,
		symbols:  symbols,
		sections: sections,
	}
}

func (i *Image) Format() Format { return i.format }
func (i *Image) Arch() Arch     { return i.arch }
func (i *Image) Entry() uint64  { return i.entry }

// Segments, Symbols and Sections return copies; callers may modify them freely.
func (i *Image) Segments() []Segment {
	return append([]Segment(nil), i.segments...)
}

func (i *Image) Symbols() []Symbol {
	return append([]Symbol(nil), i.symbols...)
}

func (i *Image) Sections() []Section {
	return append([]Section(nil), i.sections...)
}

func (i *Image) SegmentAt(addr uint64) (Segment, bool) {
	for _, s := range i.segments {
		if s.ContainsVirt(addr) {
			return s, true
		}
	}
	return Segment{}, false
}

// Section returns the first section named name.
func (i *Image) Section(name string) (Section, bool) {
	for _, s := range i.sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// Symbolicate finds the closest symbol covering addr.
func (i *Image) Symbolicate(addr uint64) (result Symbol, distance uint64, ok bool) {
	var min int64 = -1
	for _, sym := range i.symbols {
		if sym.Addr == 0 || !sym.Contains(addr) {
			continue
		}
		dist := int64(addr - sym.Addr)
		if dist < min || min == -1 {
			result = sym
			min = dist
		}
	}
	if min >= 0 {
		return result, uint64(min), true
	}
	return Symbol{}, 0, false
}

// TODO: index symbols by name if callers start doing this in a loop.
func (i *Image) SymbolLookup(name string) (Symbol, bool) {
	for _, sym := range i.symbols {
		if sym.Name == name {
			return sym, true
		}
	}
	return Symbol{}, false
}
