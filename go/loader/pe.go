package loader

import (
	"bytes"
	"debug/pe"
	"encoding/binary"

	"github.com/lunixbochs/objimage/go/models"
)

var peMachineMap = map[uint16]models.Arch{
	pe.IMAGE_FILE_MACHINE_I386:    models.ArchX86,
	pe.IMAGE_FILE_MACHINE_AMD64:   models.ArchX86_64,
	pe.IMAGE_FILE_MACHINE_ARM:     models.ArchArm,
	pe.IMAGE_FILE_MACHINE_ARMNT:   models.ArchArm,
	pe.IMAGE_FILE_MACHINE_THUMB:   models.ArchArm,
	pe.IMAGE_FILE_MACHINE_ARM64:   models.ArchArm64,
	pe.IMAGE_FILE_MACHINE_RISCV32: models.ArchRiscv32,
	pe.IMAGE_FILE_MACHINE_RISCV64: models.ArchRiscv64,
}

const peLoadedSection = pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_CNT_UNINITIALIZED_DATA

const (
	coffFileHeaderSize    = 20
	coffSectionHeaderSize = 40

	coffSymClassStatic   = 3
	coffSymClassFile     = 103
	coffSymDtypeFunction = 2
	coffSymComplexShift  = 4
)

// coffSectionName is the leading name field of a section header.
type coffSectionName struct {
	Name [8]byte
}

type PEFile struct {
	imageHeader
	file      *pe.File
	wide      bool
	imageBase uint64
	entry     uint64
	// raw 8-byte section names, NUL-trimmed
	rawNames []string
}

// openPE reads the optional header variant selected by format: PE32 for
// 4-byte machines and PE32+ for 8-byte ones.
func openPE(p []byte, format models.Format) (*PEFile, error) {
	file, err := pe.NewFile(bytes.NewReader(p))
	if err != nil {
		return nil, wrapError(ErrMalformedHeader, StageHeader, err, "pe: failed to parse headers")
	}
	f := &PEFile{file: file}
	machine := file.FileHeader.Machine
	switch format {
	case models.FormatPE32:
		hdr, ok := file.OptionalHeader.(*pe.OptionalHeader32)
		if !ok || hdr == nil {
			return nil, newError(ErrMalformedHeader, StageHeader, "pe: machine %#x uses 4-byte addresses but has no PE32 optional header", machine)
		}
		f.imageBase = uint64(hdr.ImageBase)
		f.entry = uint64(hdr.AddressOfEntryPoint)
	case models.FormatPE32Plus:
		hdr, ok := file.OptionalHeader.(*pe.OptionalHeader64)
		if !ok || hdr == nil {
			return nil, newError(ErrMalformedHeader, StageHeader, "pe: machine %#x uses 8-byte addresses but has no PE32+ optional header", machine)
		}
		f.wide = true
		f.imageBase = hdr.ImageBase
		f.entry = uint64(hdr.AddressOfEntryPoint)
	default:
		return nil, newError(ErrUnrecognizedFormat, StageHeader, "pe: unexpected format %s", format)
	}
	arch, ok := peMachineMap[machine]
	if !ok {
		arch = models.ArchUnknown
	}
	f.imageHeader = imageHeader{format: format, arch: arch}
	if f.rawNames, err = readSectionNames(p, file); err != nil {
		return nil, err
	}
	return f, nil
}

// readSectionNames re-reads the section table for the raw name fields,
// which debug/pe replaces with string-table names.
func readSectionNames(p []byte, file *pe.File) ([]string, error) {
	lfanew, _, err := peHeaderOffset(p)
	if err != nil {
		return nil, err
	}
	table := uint64(lfanew) + uint64(len(peMagic)) + coffFileHeaderSize + uint64(file.FileHeader.SizeOfOptionalHeader)
	names := make([]string, len(file.Sections))
	for i := range names {
		var raw coffSectionName
		at := table + uint64(i)*coffSectionHeaderSize
		if err := unpackAt(p, &raw, at, binary.LittleEndian); err != nil {
			return nil, wrapError(ErrMalformedHeader, StageHeader, err, "pe: section header %d", i)
		}
		name := raw.Name[:]
		if n := bytes.IndexByte(name, 0); n >= 0 {
			name = name[:n]
		}
		names[i] = string(name)
	}
	return names, nil
}

// addr rebases an RVA onto the image base. PE32 addresses wrap at 32 bits.
func (f *PEFile) addr(rva uint64) uint64 {
	if !f.wide {
		return uint64(uint32(rva + f.imageBase))
	}
	return rva + f.imageBase
}

// Entry is AddressOfEntryPoint as stored, relative to the image base.
func (f *PEFile) Entry() (uint64, error) {
	return f.entry, nil
}

func (f *PEFile) Segments() ([]models.Segment, error) {
	ret := make([]models.Segment, 0, len(f.file.Sections))
	for i, s := range f.file.Sections {
		c := s.Characteristics
		if c&peLoadedSection == 0 {
			continue
		}
		ret = append(ret, models.Segment{
			Name:       f.rawNames[i],
			Offset:     uint64(s.Offset),
			Addr:       f.addr(uint64(s.VirtualAddress)),
			Size:       uint64(s.Size),
			Readable:   c&pe.IMAGE_SCN_MEM_READ != 0,
			Writable:   c&pe.IMAGE_SCN_MEM_WRITE != 0,
			Executable: c&pe.IMAGE_SCN_MEM_EXECUTE != 0,
		})
	}
	return ret, nil
}

// sectionSize is the smaller of VirtualSize and SizeOfRawData. A zero
// VirtualSize, common in object files, yields SizeOfRawData rather than 0.
func sectionSize(s *pe.Section) uint64 {
	if s.VirtualSize != 0 && s.VirtualSize < s.Size {
		return uint64(s.VirtualSize)
	}
	return uint64(s.Size)
}

// Symbols skips entries without a section (undefined, absolute and debug).
func (f *PEFile) Symbols() ([]models.Symbol, error) {
	pending := make([]coffSymbol, 0, len(f.file.Symbols))
	for i, s := range f.file.Symbols {
		if s.SectionNumber <= 0 {
			continue
		}
		if int(s.SectionNumber) > len(f.file.Sections) {
			return nil, newError(ErrSymbolResolution, StageSymbols,
				"pe: symbol %d (%q) refers to section %d of %d", i, s.Name, s.SectionNumber, len(f.file.Sections))
		}
		sec := f.file.Sections[s.SectionNumber-1]
		pending = append(pending, coffSymbol{
			Symbol: models.Symbol{
				Name: s.Name,
				Kind: coffSymKind(s, sec),
				Addr: f.addr(uint64(sec.VirtualAddress) + uint64(s.Value)),
			},
			section: int(s.SectionNumber),
			offset:  uint64(s.Value),
			limit:   sectionSize(sec),
		})
	}
	return minGap(pending), nil
}

func coffSymKind(s *pe.Symbol, sec *pe.Section) models.SymKind {
	switch {
	case (s.Type>>coffSymComplexShift)&0x3 == coffSymDtypeFunction:
		return models.SymFunction
	case s.StorageClass == coffSymClassFile:
		return models.SymFile
	case s.StorageClass == coffSymClassStatic && s.Type == 0 && s.Value == 0 && s.Name == sec.Name:
		return models.SymDebug
	}
	return models.SymData
}

func (f *PEFile) listSections() ([]models.Section, error) {
	ret := make([]models.Section, 0, len(f.file.Sections))
	for _, s := range f.file.Sections {
		ret = append(ret, models.Section{
			Name: s.Name,
			Addr: f.addr(uint64(s.VirtualAddress)),
			Size: sectionSize(s),
		})
	}
	return ret, nil
}
