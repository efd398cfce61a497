package loader

import (
	"bytes"
	"debug/macho"

	"github.com/lunixbochs/objimage/go/models"
)

const (
	machoLoadCmdReqDyld = 0x80000000
	machoLoadCmdMain    = 0x28 | machoLoadCmdReqDyld

	machoTypeStab = 0xe0
	machoTypeMask = 0x0e
	machoTypeSect = 0x0e

	machoSectPureInstructions = 0x80000000
	machoSectSomeInstructions = 0x00000400

	vmProtRead    = 0x1
	vmProtWrite   = 0x2
	vmProtExecute = 0x4
)

var machoCpuMap = map[macho.Cpu]models.Arch{
	macho.Cpu386:   models.ArchX86,
	macho.CpuAmd64: models.ArchX86_64,
	macho.CpuArm:   models.ArchArm,
	macho.CpuArm64: models.ArchArm64,
	macho.CpuPpc:   models.ArchPpc,
	macho.CpuPpc64: models.ArchPpc64,
}

// entry_point_command
type machoEntryPoint struct {
	Cmd       uint32
	Cmdsize   uint32
	Entryoff  uint64
	Stacksize uint64
}

type MachOFile struct {
	imageHeader
	file *macho.File
}

func openMachO(p []byte) (*MachOFile, error) {
	file, err := macho.NewFile(bytes.NewReader(p))
	if err != nil {
		return nil, wrapError(ErrMalformedHeader, StageHeader, err, "mach-o: failed to parse load commands")
	}
	arch, ok := machoCpuMap[file.Cpu]
	if !ok {
		arch = models.ArchUnknown
	}
	return &MachOFile{
		imageHeader: imageHeader{format: models.FormatMachO, arch: arch},
		file:        file,
	}, nil
}

// Entry reads LC_MAIN. The LC_UNIXTHREAD mechanism used by binaries built
// for OS X 10.7 and earlier is not supported.
func (m *MachOFile) Entry() (uint64, error) {
	for i, l := range m.file.Loads {
		data := l.Raw()
		if len(data) < 4 || m.file.ByteOrder.Uint32(data) != machoLoadCmdMain {
			continue
		}
		var cmd machoEntryPoint
		if err := unpackAt(data, &cmd, 0, m.file.ByteOrder); err != nil {
			return 0, wrapError(ErrMalformedHeader, StageEntry, err, "mach-o: LC_MAIN (load command %d)", i)
		}
		return cmd.Entryoff, nil
	}
	return 0, newError(ErrMissingEntryPoint, StageEntry, "mach-o: LC_MAIN not found, binary targets OS X < 10.8")
}

func (m *MachOFile) Segments() ([]models.Segment, error) {
	ret := make([]models.Segment, 0, len(m.file.Loads))
	for _, l := range m.file.Loads {
		s, ok := l.(*macho.Segment)
		if !ok {
			continue
		}
		switch s.Cmd {
		case macho.LoadCmdSegment, macho.LoadCmdSegment64:
			ret = append(ret, models.Segment{
				Name:       s.Name,
				Offset:     s.Offset,
				Addr:       s.Addr,
				Size:       s.Filesz,
				Readable:   s.Prot&vmProtRead != 0,
				Writable:   s.Prot&vmProtWrite != 0,
				Executable: s.Prot&vmProtExecute != 0,
			})
		}
	}
	return ret, nil
}

func (m *MachOFile) Symbols() ([]models.Symbol, error) {
	if m.file.Symtab == nil {
		return []models.Symbol{}, nil
	}
	syms := m.file.Symtab.Syms
	pending := make([]sectionSymbol, 0, len(syms))
	for i, s := range syms {
		sym := sectionSymbol{
			Symbol:  models.Symbol{Name: s.Name, Addr: s.Value},
			section: noSection,
		}
		// n_sect is 1-based, 0 is NO_SECT
		if s.Sect != 0 {
			if int(s.Sect) > len(m.file.Sections) {
				return nil, newError(ErrSymbolResolution, StageSymbols,
					"mach-o: symbol %d (%q) refers to section %d of %d", i, s.Name, s.Sect, len(m.file.Sections))
			}
			sec := m.file.Sections[s.Sect-1]
			sym.section = int(s.Sect)
			sym.end = sec.Addr + sec.Size
		}
		sym.Kind = m.symKind(s)
		pending = append(pending, sym)
	}
	return nextInSection(pending), nil
}

func (m *MachOFile) symKind(s macho.Symbol) models.SymKind {
	switch {
	case s.Type&machoTypeStab != 0:
		return models.SymDebug
	case s.Type&machoTypeMask == machoTypeSect && s.Sect != 0:
		if m.file.Sections[s.Sect-1].Flags&(machoSectPureInstructions|machoSectSomeInstructions) != 0 {
			return models.SymFunction
		}
		return models.SymData
	}
	return models.SymUnknown
}

func (m *MachOFile) listSections() ([]models.Section, error) {
	ret := make([]models.Section, 0, len(m.file.Sections))
	for _, sec := range m.file.Sections {
		ret = append(ret, models.Section{Name: sec.Name, Addr: sec.Addr, Size: sec.Size})
	}
	return ret, nil
}
