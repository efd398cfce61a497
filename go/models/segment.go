package models

// Segment is one region the container marks as loaded at runtime.
type Segment struct {
	Name       string
	Offset     uint64
	Addr, Size uint64
	Readable   bool
	Writable   bool
	Executable bool
}

func (s *Segment) ContainsPhys(off uint64) bool {
	return s.Offset <= off && off < s.Offset+s.Size
}

func (s *Segment) ContainsVirt(addr uint64) bool {
	return s.Addr <= addr && addr < s.Addr+s.Size
}

// Prot renders the permissions in ls-style "rwx" form.
func (s *Segment) Prot() string {
	prot := []byte("---")
	if s.Readable {
		prot[0] = 'r'
	}
	if s.Writable {
		prot[1] = 'w'
	}
	if s.Executable {
		prot[2] = 'x'
	}
	return string(prot)
}

func (s *Segment) Overlaps(o *Segment) bool {
	end, oend := s.Addr+s.Size, o.Addr+o.Size
	return (s.Addr >= o.Addr && s.Addr < oend) || (o.Addr >= s.Addr && o.Addr < end)
}
