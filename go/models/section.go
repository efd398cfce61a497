package models

// Section is a raw section-table entry, loaded at runtime or not.
type Section struct {
	Name string
	Addr uint64
	Size uint64
}

func (s Section) Contains(addr uint64) bool {
	return s.Addr <= addr && addr < s.Addr+s.Size
}

func (s Section) End() uint64 {
	return s.Addr + s.Size
}
