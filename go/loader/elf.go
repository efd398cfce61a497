package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/lunixbochs/objimage/go/models"
)

var machineMap = map[elf.Machine]models.Arch{
	elf.EM_386:     models.ArchX86,
	elf.EM_X86_64:  models.ArchX86_64,
	elf.EM_ARM:     models.ArchArm,
	elf.EM_AARCH64: models.ArchArm64,
	elf.EM_MIPS:    models.ArchMips,
	elf.EM_PPC:     models.ArchPpc,
	elf.EM_PPC64:   models.ArchPpc64,
	elf.EM_SPARC:   models.ArchSparc,
	elf.EM_SPARCV9: models.ArchSparc64,
	elf.EM_RISCV:   models.ArchRiscv32,
	elf.EM_S390:    models.ArchS390x,
	elf.EM_68K:     models.ArchM68k,
}

// these machines share one e_machine value across both classes
var machineMap64 = map[elf.Machine]models.Arch{
	elf.EM_MIPS:  models.ArchMips64,
	elf.EM_RISCV: models.ArchRiscv64,
}

// STT_GNU_IFUNC
const elfSymIndirectFunc = elf.STT_LOOS

// elfLayout describes the address width and byte order of one ELF variant.
type elfLayout struct {
	class elf.Class
	order binary.ByteOrder
}

var elfLayouts = map[models.Format]elfLayout{
	models.FormatELF32LE: {elf.ELFCLASS32, binary.LittleEndian},
	models.FormatELF32BE: {elf.ELFCLASS32, binary.BigEndian},
	models.FormatELF64LE: {elf.ELFCLASS64, binary.LittleEndian},
	models.FormatELF64BE: {elf.ELFCLASS64, binary.BigEndian},
}

type elfSym32 struct {
	Name  uint32
	Value uint32
	Size  uint32
	Info  uint8
	Other uint8
	Shndx uint16
}

type elfSym64 struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

func (l elfLayout) symSize() int {
	if l.class == elf.ELFCLASS64 {
		return elf.Sym64Size
	}
	return elf.Sym32Size
}

// readSym decodes one symbol table entry into the 64-bit shape.
func (l elfLayout) readSym(p []byte) (elfSym64, error) {
	if l.class == elf.ELFCLASS64 {
		var sym elfSym64
		err := unpackAt(p, &sym, 0, l.order)
		return sym, err
	}
	var sym elfSym32
	if err := unpackAt(p, &sym, 0, l.order); err != nil {
		return elfSym64{}, err
	}
	return elfSym64{
		Name:  sym.Name,
		Info:  sym.Info,
		Other: sym.Other,
		Shndx: sym.Shndx,
		Value: uint64(sym.Value),
		Size:  uint64(sym.Size),
	}, nil
}

type ElfFile struct {
	imageHeader
	layout elfLayout
	file   *elf.File
}

func openElf(p []byte, format models.Format) (*ElfFile, error) {
	layout, ok := elfLayouts[format]
	if !ok {
		return nil, newError(ErrUnrecognizedFormat, StageHeader, "elf: no layout for %s", format)
	}
	file, err := elf.NewFile(bytes.NewReader(p))
	if err != nil {
		return nil, wrapError(ErrMalformedHeader, StageHeader, err, "elf: failed to parse headers")
	}
	if file.Class != layout.class || file.ByteOrder != layout.order {
		return nil, newError(ErrMalformedHeader, StageHeader, "elf: header decodes as %s/%s, expected %s", file.Class, file.Data, format)
	}
	arch, ok := machineMap[file.Machine]
	if !ok {
		arch = models.ArchUnknown
	}
	if wide, ok := machineMap64[file.Machine]; ok && layout.class == elf.ELFCLASS64 {
		arch = wide
	}
	return &ElfFile{
		imageHeader: imageHeader{format: format, arch: arch},
		layout:      layout,
		file:        file,
	}, nil
}

func (e *ElfFile) Entry() (uint64, error) {
	return e.file.Entry, nil
}

// Segments names each PT_LOAD by its position among all program headers.
func (e *ElfFile) Segments() ([]models.Segment, error) {
	ret := make([]models.Segment, 0, len(e.file.Progs))
	for pos, prog := range e.file.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		ret = append(ret, models.Segment{
			Name:       fmt.Sprintf("%02d", pos),
			Offset:     prog.Off,
			Addr:       prog.Vaddr,
			Size:       prog.Filesz,
			Readable:   prog.Flags&elf.PF_R != 0,
			Writable:   prog.Flags&elf.PF_W != 0,
			Executable: prog.Flags&elf.PF_X != 0,
		})
	}
	return ret, nil
}

// Symbols concatenates every static table, then every dynamic table.
func (e *ElfFile) Symbols() ([]models.Symbol, error) {
	var pending []sectionSymbol
	for _, typ := range []elf.SectionType{elf.SHT_SYMTAB, elf.SHT_DYNSYM} {
		for i, sec := range e.file.Sections {
			if sec.Type != typ {
				continue
			}
			syms, err := e.readSymtab(i, sec)
			if err != nil {
				return nil, err
			}
			pending = append(pending, syms...)
		}
	}
	return nextInSection(pending), nil
}

// extendedIndexes returns the SHT_SYMTAB_SHNDX entries linked to symbol
// table symtab, or nil when it has none.
func (e *ElfFile) extendedIndexes(symtab int, count int) ([]byte, error) {
	for _, sec := range e.file.Sections {
		if sec.Type != elf.SHT_SYMTAB_SHNDX || int(sec.Link) != symtab {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return nil, wrapError(ErrMalformedHeader, StageSymbols, err, "elf: failed to read %s", sec.Name)
		}
		if len(data) < 4*count {
			return nil, newError(ErrMalformedHeader, StageSymbols, "elf: %s holds 0x%x bytes for %d symbols", sec.Name, len(data), count)
		}
		return data, nil
	}
	return nil, nil
}

func (e *ElfFile) readSymtab(secIndex int, sec *elf.Section) ([]sectionSymbol, error) {
	data, err := sec.Data()
	if err != nil {
		return nil, wrapError(ErrMalformedHeader, StageSymbols, err, "elf: failed to read %s", sec.Name)
	}
	size := e.layout.symSize()
	if len(data)%size != 0 {
		return nil, newError(ErrMalformedHeader, StageSymbols, "elf: %s size 0x%x is not a multiple of %d", sec.Name, len(data), size)
	}
	if int(sec.Link) >= len(e.file.Sections) {
		return nil, newError(ErrSymbolResolution, StageSymbols, "elf: %s links to missing string table %d", sec.Name, sec.Link)
	}
	strsec := e.file.Sections[sec.Link]
	strtab, err := strsec.Data()
	if err != nil {
		return nil, wrapError(ErrSymbolResolution, StageSymbols, err, "elf: failed to read string table %s", strsec.Name)
	}
	xindex, err := e.extendedIndexes(secIndex, len(data)/size)
	if err != nil {
		return nil, err
	}
	// entry 0 is the reserved null symbol
	ret := make([]sectionSymbol, 0, len(data)/size)
	for off := size; off < len(data); off += size {
		index := off / size
		raw, err := e.layout.readSym(data[off : off+size])
		if err != nil {
			return nil, wrapError(ErrMalformedHeader, StageSymbols, err, "elf: %s entry %d", sec.Name, index)
		}
		name, ok := cstring(strtab, raw.Name)
		if !ok {
			return nil, newError(ErrSymbolResolution, StageSymbols,
				"elf: %s entry %d name offset 0x%x is outside %s (0x%x bytes)", sec.Name, index, raw.Name, strsec.Name, len(strtab))
		}
		shndx := elf.SectionIndex(raw.Shndx)
		extended := shndx == elf.SHN_XINDEX
		if extended {
			if xindex == nil {
				return nil, newError(ErrSymbolResolution, StageSymbols,
					"elf: %s entry %d (%q) uses SHN_XINDEX but no SHT_SYMTAB_SHNDX table links to it", sec.Name, index, name)
			}
			shndx = elf.SectionIndex(e.layout.order.Uint32(xindex[4*index:]))
		}
		sym := sectionSymbol{
			Symbol: models.Symbol{
				Name: name,
				Kind: elfSymKind(raw.Info, shndx),
				Addr: raw.Value,
			},
			section: noSection,
		}
		switch {
		case shndx == elf.SHN_UNDEF || (!extended && shndx >= elf.SHN_LORESERVE):
			// undefined, absolute or common: no containing section
		case int(shndx) >= len(e.file.Sections):
			return nil, newError(ErrSymbolResolution, StageSymbols,
				"elf: %s entry %d (%q) refers to section %d of %d", sec.Name, index, name, shndx, len(e.file.Sections))
		default:
			container := e.file.Sections[shndx]
			if e.file.Type == elf.ET_REL {
				sym.Addr += container.Addr
			}
			sym.section = int(shndx)
			sym.end = container.Addr + container.Size
		}
		ret = append(ret, sym)
	}
	return ret, nil
}

func elfSymKind(info uint8, shndx elf.SectionIndex) models.SymKind {
	if shndx == elf.SHN_UNDEF {
		return models.SymUnknown
	}
	switch elf.ST_TYPE(info) {
	case elf.STT_FUNC, elfSymIndirectFunc:
		return models.SymFunction
	case elf.STT_OBJECT, elf.STT_COMMON, elf.STT_TLS:
		return models.SymData
	case elf.STT_SECTION:
		return models.SymDebug
	case elf.STT_FILE:
		return models.SymFile
	}
	return models.SymOther
}

func (e *ElfFile) listSections() ([]models.Section, error) {
	ret := make([]models.Section, 0, len(e.file.Sections))
	for _, sec := range e.file.Sections {
		ret = append(ret, models.Section{Name: sec.Name, Addr: sec.Addr, Size: sec.Size})
	}
	return ret, nil
}
