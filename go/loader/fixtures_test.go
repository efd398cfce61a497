package loader

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/binary"
	"testing"

	"github.com/lunixbochs/struc"
)

func pack(t *testing.T, w *bytes.Buffer, order binary.ByteOrder, vals ...interface{}) {
	t.Helper()
	for _, v := range vals {
		if err := struc.PackWithOrder(w, v, order); err != nil {
			t.Fatal(err, "fixture pack failed")
		}
	}
}

func putUint32(w *bytes.Buffer, order binary.ByteOrder, v uint32) {
	var b [4]byte
	order.PutUint32(b[:], v)
	w.Write(b[:])
}

func padTo(w *bytes.Buffer, off int) {
	if w.Len() < off {
		w.Write(make([]byte, off-w.Len()))
	}
}

type testSection struct {
	name string
	typ  elf.SectionType
	addr uint64
	size uint64
}

type testSym struct {
	name    string
	value   uint64
	shndx   uint16
	info    uint8
	badName bool
}

func funcSym(name string, value uint64, shndx uint16) testSym {
	return testSym{name: name, value: value, shndx: shndx, info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)}
}

type elfFixture struct {
	class    elf.Class
	order    binary.ByteOrder
	typ      elf.Type
	machine  elf.Machine
	entry    uint64
	progs    []elf.Prog64
	sections []testSection
	syms     []testSym
	dynsyms  []testSym
	// xindex, when set, adds a SHT_SYMTAB_SHNDX table for .symtab
	xindex []uint32
}

type elfBlob struct {
	name string
	hdr  elf.Section64
	data []byte
}

// build lays out: header, program headers, section contents, section headers.
// User sections get indexes 1..n, followed by the symbol and string tables.
func (f *elfFixture) build(t *testing.T) []byte {
	t.Helper()
	is64 := f.class == elf.ELFCLASS64
	ehsize, phentsize, shentsize, symsize := 52, 32, 40, elf.Sym32Size
	if is64 {
		ehsize, phentsize, shentsize, symsize = 64, 56, 64, elf.Sym64Size
	}
	typ, machine := f.typ, f.machine
	if typ == elf.ET_NONE {
		typ = elf.ET_EXEC
	}
	if machine == elf.EM_NONE {
		machine = elf.EM_X86_64
	}

	secs := []elfBlob{{}}
	for _, s := range f.sections {
		st := s.typ
		if st == elf.SHT_NULL {
			st = elf.SHT_PROGBITS
		}
		b := elfBlob{name: s.name, hdr: elf.Section64{
			Type:  uint32(st),
			Flags: uint64(elf.SHF_ALLOC),
			Addr:  s.addr,
			Size:  s.size,
		}}
		if st != elf.SHT_NOBITS {
			b.data = make([]byte, s.size)
		}
		secs = append(secs, b)
	}
	addTable := func(name, strName string, st elf.SectionType, syms []testSym) int {
		strtab := []byte{0}
		var symdata bytes.Buffer
		symdata.Write(make([]byte, symsize))
		for _, s := range syms {
			nameOff := uint32(len(strtab))
			strtab = append(append(strtab, s.name...), 0)
			if s.badName {
				nameOff = 0xffff
			}
			if is64 {
				pack(t, &symdata, f.order, &elf.Sym64{Name: nameOff, Info: s.info, Shndx: s.shndx, Value: s.value})
			} else {
				pack(t, &symdata, f.order, &elf.Sym32{Name: nameOff, Info: s.info, Shndx: s.shndx, Value: uint32(s.value)})
			}
		}
		index := len(secs)
		link := uint32(index + 1)
		secs = append(secs,
			elfBlob{name: name, hdr: elf.Section64{Type: uint32(st), Link: link, Entsize: uint64(symsize)}, data: symdata.Bytes()},
			elfBlob{name: strName, hdr: elf.Section64{Type: uint32(elf.SHT_STRTAB)}, data: strtab},
		)
		return index
	}
	if len(f.syms) > 0 {
		symtab := addTable(".symtab", ".strtab", elf.SHT_SYMTAB, f.syms)
		if f.xindex != nil {
			var shndx bytes.Buffer
			putUint32(&shndx, f.order, 0)
			for _, x := range f.xindex {
				putUint32(&shndx, f.order, x)
			}
			secs = append(secs, elfBlob{name: ".symtab_shndx",
				hdr: elf.Section64{Type: uint32(elf.SHT_SYMTAB_SHNDX), Link: uint32(symtab), Entsize: 4}, data: shndx.Bytes()})
		}
	}
	if len(f.dynsyms) > 0 {
		addTable(".dynsym", ".dynstr", elf.SHT_DYNSYM, f.dynsyms)
	}
	secs = append(secs, elfBlob{name: ".shstrtab", hdr: elf.Section64{Type: uint32(elf.SHT_STRTAB)}})
	shstr := []byte{0}
	for i := 1; i < len(secs); i++ {
		secs[i].hdr.Name = uint32(len(shstr))
		shstr = append(append(shstr, secs[i].name...), 0)
	}
	secs[len(secs)-1].data = shstr

	off := ehsize + phentsize*len(f.progs)
	for i := 1; i < len(secs); i++ {
		secs[i].hdr.Off = uint64(off)
		if secs[i].data != nil {
			secs[i].hdr.Size = uint64(len(secs[i].data))
		}
		off += len(secs[i].data)
	}
	shoff := (off + 7) &^ 7

	data := elf.ELFDATA2LSB
	if f.order == binary.BigEndian {
		data = elf.ELFDATA2MSB
	}
	ident := [elf.EI_NIDENT]byte{0x7f, 'E', 'L', 'F', byte(f.class), byte(data), byte(elf.EV_CURRENT)}
	var phoff int
	if len(f.progs) > 0 {
		phoff = ehsize
	}
	out := new(bytes.Buffer)
	if is64 {
		pack(t, out, f.order, &elf.Header64{
			Ident: ident, Type: uint16(typ), Machine: uint16(machine), Version: uint32(elf.EV_CURRENT),
			Entry: f.entry, Phoff: uint64(phoff), Shoff: uint64(shoff),
			Ehsize: uint16(ehsize), Phentsize: uint16(phentsize), Phnum: uint16(len(f.progs)),
			Shentsize: uint16(shentsize), Shnum: uint16(len(secs)), Shstrndx: uint16(len(secs) - 1),
		})
		for i := range f.progs {
			pack(t, out, f.order, &f.progs[i])
		}
	} else {
		pack(t, out, f.order, &elf.Header32{
			Ident: ident, Type: uint16(typ), Machine: uint16(machine), Version: uint32(elf.EV_CURRENT),
			Entry: uint32(f.entry), Phoff: uint32(phoff), Shoff: uint32(shoff),
			Ehsize: uint16(ehsize), Phentsize: uint16(phentsize), Phnum: uint16(len(f.progs)),
			Shentsize: uint16(shentsize), Shnum: uint16(len(secs)), Shstrndx: uint16(len(secs) - 1),
		})
		for _, p := range f.progs {
			pack(t, out, f.order, &elf.Prog32{
				Type: p.Type, Off: uint32(p.Off), Vaddr: uint32(p.Vaddr), Paddr: uint32(p.Paddr),
				Filesz: uint32(p.Filesz), Memsz: uint32(p.Memsz), Flags: p.Flags, Align: uint32(p.Align),
			})
		}
	}
	for _, s := range secs[1:] {
		out.Write(s.data)
	}
	padTo(out, shoff)
	for _, s := range secs {
		h := s.hdr
		if is64 {
			pack(t, out, f.order, &h)
		} else {
			pack(t, out, f.order, &elf.Section32{
				Name: h.Name, Type: h.Type, Flags: uint32(h.Flags), Addr: uint32(h.Addr), Off: uint32(h.Off),
				Size: uint32(h.Size), Link: h.Link, Info: h.Info, Addralign: uint32(h.Addralign), Entsize: uint32(h.Entsize),
			})
		}
	}
	return out.Bytes()
}

type machoFixture struct {
	narrow   bool
	order    binary.ByteOrder
	cpu      uint32
	noMain   bool
	mainLen  int
	entryoff uint64
	syms     []macho.Nlist64
	names    []string
}

const (
	machoTextAddr    = 0x100000000
	machoTextSect    = 0x100000f00
	machoTextAddr32  = 0x1000
	machoTextSect32  = 0x1f00
	machoCpuAmd64    = 0x01000007
	machoCpuPpc      = 18
	machoCmdSeg32    = 0x1
	machoCmdSeg64    = 0x19
	machoCmdSymtab   = 0x2
	machoTextSectLen = 0x40
)

type machoHeader32 struct {
	Magic  uint32
	Cpu    uint32
	SubCpu uint32
	Type   uint32
	Ncmd   uint32
	Cmdsz  uint32
	Flags  uint32
}

type machoHeader64 struct {
	Magic    uint32
	Cpu      uint32
	SubCpu   uint32
	Type     uint32
	Ncmd     uint32
	Cmdsz    uint32
	Flags    uint32
	Reserved uint32
}

type machoSegment32 struct {
	Cmd     uint32
	Len     uint32
	Name    [16]byte
	Addr    uint32
	Memsz   uint32
	Offset  uint32
	Filesz  uint32
	Maxprot uint32
	Prot    uint32
	Nsect   uint32
	Flag    uint32
}

type machoSection32 struct {
	Name     [16]byte
	Seg      [16]byte
	Addr     uint32
	Size     uint32
	Offset   uint32
	Align    uint32
	Reloff   uint32
	Nreloc   uint32
	Flags    uint32
	Reserve1 uint32
	Reserve2 uint32
}

type machoSegment64 struct {
	Cmd     uint32
	Len     uint32
	Name    [16]byte
	Addr    uint64
	Memsz   uint64
	Offset  uint64
	Filesz  uint64
	Maxprot uint32
	Prot    uint32
	Nsect   uint32
	Flag    uint32
}

type machoSection64 struct {
	Name     [16]byte
	Seg      [16]byte
	Addr     uint64
	Size     uint64
	Offset   uint32
	Align    uint32
	Reloff   uint32
	Nreloc   uint32
	Flags    uint32
	Reserve1 uint32
	Reserve2 uint32
	Reserve3 uint32
}

type machoSymtab struct {
	Cmd     uint32
	Len     uint32
	Symoff  uint32
	Nsyms   uint32
	Stroff  uint32
	Strsize uint32
}

func name16(s string) (ret [16]byte) {
	copy(ret[:], s)
	return
}

// textSect is the address of the fixture's only section.
func (f *machoFixture) textSect() uint64 {
	if f.narrow {
		return machoTextSect32
	}
	return machoTextSect
}

// build emits an executable with one __TEXT segment holding one 0x40-byte
// __text section, an optional LC_MAIN and a symtab. The default is a
// 64-bit little-endian x86_64 file; narrow selects LC_SEGMENT and 32-bit
// nlists. mainLen overrides LC_MAIN's cmdsize and truncates the command.
func (f *machoFixture) build(t *testing.T) []byte {
	t.Helper()
	order := f.order
	if order == nil {
		order = binary.LittleEndian
	}
	cpu := f.cpu
	if cpu == 0 {
		cpu = machoCpuAmd64
	}
	mainLen := f.mainLen
	if mainLen == 0 {
		mainLen = 24
	}
	headerSize, segLen, nlistSize := 32, 72+80, 16
	if f.narrow {
		headerSize, segLen, nlistSize = 28, 56+68, 12
	}
	const symtabLen = 24
	sizeofcmds := segLen + symtabLen
	if !f.noMain {
		sizeofcmds += mainLen
	}
	symoff := headerSize + sizeofcmds
	strtab := []byte{' ', 0}
	for _, n := range f.names {
		strtab = append(append(strtab, n...), 0)
	}
	stroff := symoff + nlistSize*len(f.syms)

	var cmds bytes.Buffer
	ncmds := 0
	instructions := uint32(machoSectPureInstructions | machoSectSomeInstructions)
	if f.narrow {
		pack(t, &cmds, order, &machoSegment32{
			Cmd: machoCmdSeg32, Len: uint32(segLen), Name: name16("__TEXT"),
			Addr: machoTextAddr32, Memsz: 0x1000, Offset: 0, Filesz: 0x1000,
			Maxprot: 5, Prot: 5, Nsect: 1,
		}, &machoSection32{
			Name: name16("__text"), Seg: name16("__TEXT"),
			Addr: machoTextSect32, Size: machoTextSectLen, Offset: 0xf00, Flags: instructions,
		})
	} else {
		pack(t, &cmds, order, &machoSegment64{
			Cmd: machoCmdSeg64, Len: uint32(segLen), Name: name16("__TEXT"),
			Addr: machoTextAddr, Memsz: 0x1000, Offset: 0, Filesz: 0x1000,
			Maxprot: 5, Prot: 5, Nsect: 1,
		}, &machoSection64{
			Name: name16("__text"), Seg: name16("__TEXT"),
			Addr: machoTextSect, Size: machoTextSectLen, Offset: 0xf00, Flags: instructions,
		})
	}
	ncmds++
	if !f.noMain {
		var entry bytes.Buffer
		pack(t, &entry, order, &machoEntryPoint{Cmd: machoLoadCmdMain, Cmdsize: uint32(mainLen), Entryoff: f.entryoff})
		cmds.Write(entry.Bytes()[:mainLen])
		ncmds++
	}
	pack(t, &cmds, order, &machoSymtab{
		Cmd: machoCmdSymtab, Len: symtabLen,
		Symoff: uint32(symoff), Nsyms: uint32(len(f.syms)),
		Stroff: uint32(stroff), Strsize: uint32(len(strtab)),
	})
	ncmds++

	out := new(bytes.Buffer)
	if f.narrow {
		pack(t, out, order, &machoHeader32{
			Magic: macho.Magic32, Cpu: cpu, Type: uint32(macho.TypeExec),
			Ncmd: uint32(ncmds), Cmdsz: uint32(sizeofcmds),
		})
	} else {
		pack(t, out, order, &machoHeader64{
			Magic: macho.Magic64, Cpu: cpu, SubCpu: 3, Type: uint32(macho.TypeExec),
			Ncmd: uint32(ncmds), Cmdsz: uint32(sizeofcmds),
		})
	}
	out.Write(cmds.Bytes())
	for i := range f.syms {
		s := f.syms[i]
		if f.narrow {
			pack(t, out, order, &macho.Nlist32{Name: s.Name, Type: s.Type, Sect: s.Sect, Desc: s.Desc, Value: uint32(s.Value)})
		} else {
			pack(t, out, order, &s)
		}
	}
	out.Write(strtab)
	padTo(out, 0x1000)
	return out.Bytes()
}

// addSym appends a symbol; string table offsets start at 2.
func (f *machoFixture) addSym(name string, typ, sect uint8, value uint64) {
	off := uint32(2)
	for _, n := range f.names {
		off += uint32(len(n) + 1)
	}
	f.names = append(f.names, name)
	f.syms = append(f.syms, macho.Nlist64{Name: off, Type: typ, Sect: sect, Value: value})
}

type peSection struct {
	name            string
	va, vsize, size uint32
	characteristics uint32
}

type peSym struct {
	name    string
	value   uint32
	section int16
	typ     uint16
	class   uint8
}

type peFixture struct {
	machine   uint16
	magic     uint16
	imageBase uint64
	entry     uint32
	sections  []peSection
	syms      []peSym
}

type peOptional32 struct {
	Magic               uint16
	Pad1                [14]byte
	AddressOfEntryPoint uint32
	Pad2                [8]byte
	ImageBase           uint32
	Pad3                [60]byte
	NumberOfRvaAndSizes uint32
	Dirs                [128]byte
}

type peOptional64 struct {
	Magic               uint16
	Pad1                [14]byte
	AddressOfEntryPoint uint32
	Pad2                [4]byte
	ImageBase           uint64
	Pad3                [76]byte
	NumberOfRvaAndSizes uint32
	Dirs                [128]byte
}

type coffSym struct {
	Name               [8]byte
	Value              uint32
	SectionNumber      int16
	Type               uint16
	StorageClass       uint8
	NumberOfAuxSymbols uint8
}

const (
	peMagic32   = 0x10b
	peMagic64   = 0x20b
	peTextChars = pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_EXECUTE
)

// build emits DOS header, PE signature at 0x40, file and optional headers,
// the section table, then the COFF symbol table and an empty string table.
func (f *peFixture) build(t *testing.T) []byte {
	t.Helper()
	order := binary.LittleEndian
	magic := f.magic
	if magic == 0 {
		magic = peMagic32
		if peWideMachines[f.machine] {
			magic = peMagic64
		}
	}
	optSize := 224
	if magic == peMagic64 {
		optSize = 240
	}
	const lfanew = 0x40
	table := lfanew + 4 + 20 + optSize
	symtab := table + 40*len(f.sections)
	if len(f.syms) == 0 {
		symtab = 0
	}

	out := new(bytes.Buffer)
	out.WriteString("MZ")
	padTo(out, 0x3c)
	putUint32(out, order, lfanew)
	out.WriteString(peMagic)
	pack(t, out, order, &pe.FileHeader{
		Machine: f.machine, NumberOfSections: uint16(len(f.sections)),
		PointerToSymbolTable: uint32(symtab), NumberOfSymbols: uint32(len(f.syms)),
		SizeOfOptionalHeader: uint16(optSize), Characteristics: pe.IMAGE_FILE_EXECUTABLE_IMAGE,
	})
	if magic == peMagic64 {
		pack(t, out, order, &peOptional64{Magic: magic, AddressOfEntryPoint: f.entry, ImageBase: f.imageBase, NumberOfRvaAndSizes: 16})
	} else {
		pack(t, out, order, &peOptional32{Magic: magic, AddressOfEntryPoint: f.entry, ImageBase: uint32(f.imageBase), NumberOfRvaAndSizes: 16})
	}
	for _, s := range f.sections {
		var name [8]uint8
		copy(name[:], s.name)
		pack(t, out, order, &pe.SectionHeader32{
			Name: name, VirtualSize: s.vsize, VirtualAddress: s.va,
			SizeOfRawData: s.size, PointerToRawData: 0x400, Characteristics: s.characteristics,
		})
	}
	for _, s := range f.syms {
		var name [8]byte
		copy(name[:], s.name)
		pack(t, out, order, &coffSym{Name: name, Value: s.value, SectionNumber: s.section, Type: s.typ, StorageClass: s.class})
	}
	putUint32(out, order, 4)
	return out.Bytes()
}

var archiveFixture = []byte("!<arch>\n" +
	"hello.o/        0           0     0     644     4         `\n" +
	"\x7fELF")
