package models

// SymKind classifies what a symbol names.
type SymKind int

const (
	SymUnknown SymKind = iota
	SymData
	SymFunction
	SymFile
	SymDebug
	SymOther
)

var symKindNames = map[SymKind]string{
	SymUnknown:  "unknown",
	SymData:     "data",
	SymFunction: "func",
	SymFile:     "file",
	SymDebug:    "debug",
	SymOther:    "other",
}

func (k SymKind) String() string {
	if name, ok := symKindNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k SymKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

type Symbol struct {
	Name string
	Kind SymKind
	Addr uint64
	// Size is read from the container or inferred from neighbouring symbols.
	Size uint64
}

// Contains treats zero-sized symbols as covering only their own address.
func (s Symbol) Contains(addr uint64) bool {
	if s.Size == 0 {
		return addr == s.Addr
	}
	return s.Addr <= addr && addr < s.Addr+s.Size
}
