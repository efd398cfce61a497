package loader

import (
	"bytes"
	"debug/elf"
	"debug/pe"
	"encoding/binary"

	"github.com/lunixbochs/objimage/go/models"
)

var (
	elfMagic      = []byte{0x7f, 'E', 'L', 'F'}
	archiveMagic  = []byte("!<arch>\n")
	thinArchMagic = []byte("!<thin>\n")
	fatMagic      = []byte{0xca, 0xfe, 0xba, 0xbe}
	dosMagic      = []byte("MZ")
	peMagic       = "PE\x00\x00"
)

var machoMagics = [][]byte{
	{0xfe, 0xed, 0xfa, 0xce},
	{0xfe, 0xed, 0xfa, 0xcf},
	{0xce, 0xfa, 0xed, 0xfe},
	{0xcf, 0xfa, 0xed, 0xfe},
}

// class and data bytes of e_ident
type elfIdent struct {
	Magic   string `struc:"[4]byte"`
	Class   uint8
	Data    uint8
	Version uint8
}

type dosHeader struct {
	Magic  string `struc:"[2]byte"`
	Pad    [58]byte
	Lfanew uint32
}

type peSignature struct {
	Magic   string `struc:"[4]byte"`
	Machine uint16
}

// universal headers hold fewer than this many arches; Java class files
// share the magic but carry a larger version number there.
const fatMaxArches = 43

var elfFormats = map[[2]uint8]models.Format{
	{uint8(elf.ELFCLASS32), uint8(elf.ELFDATA2LSB)}: models.FormatELF32LE,
	{uint8(elf.ELFCLASS32), uint8(elf.ELFDATA2MSB)}: models.FormatELF32BE,
	{uint8(elf.ELFCLASS64), uint8(elf.ELFDATA2LSB)}: models.FormatELF64LE,
	{uint8(elf.ELFCLASS64), uint8(elf.ELFDATA2MSB)}: models.FormatELF64BE,
}

// Detect classifies p by its magic bytes. Archives come back as
// FormatArchive together with ErrUnsupportedFormat.
func Detect(p []byte) (models.Format, error) {
	switch {
	case bytes.HasPrefix(p, elfMagic):
		return detectElf(p)
	case bytes.HasPrefix(p, archiveMagic), bytes.HasPrefix(p, thinArchMagic):
		return models.FormatArchive, newError(ErrUnsupportedFormat, StageDetect, "archive")
	case matchMachO(p):
		return models.FormatMachO, nil
	case bytes.HasPrefix(p, fatMagic) && len(p) >= 8 && binary.BigEndian.Uint32(p[4:]) < fatMaxArches:
		return models.FormatUnknown, newError(ErrUnsupportedFormat, StageDetect, "universal mach-o")
	case bytes.HasPrefix(p, dosMagic):
		return detectPE(p)
	}
	return models.FormatUnknown, newError(ErrUnrecognizedFormat, StageDetect, "no known magic in %d-byte buffer", len(p))
}

// matchMachO accepts the 32- and 64-bit thin Mach-O magics in either byte order.
func matchMachO(p []byte) bool {
	for _, magic := range machoMagics {
		if bytes.HasPrefix(p, magic) {
			return true
		}
	}
	return false
}

func detectElf(p []byte) (models.Format, error) {
	var ident elfIdent
	if err := unpackAt(p, &ident, 0, binary.LittleEndian); err != nil {
		return models.FormatUnknown, wrapError(ErrMalformedHeader, StageDetect, err, "elf: truncated e_ident")
	}
	format, ok := elfFormats[[2]uint8{ident.Class, ident.Data}]
	if !ok {
		return models.FormatUnknown, newError(ErrMalformedHeader, StageDetect,
			"elf: invalid class %d / data encoding %d at offset 0x%x", ident.Class, ident.Data, elf.EI_CLASS)
	}
	return format, nil
}

// peHeaderOffset follows e_lfanew and checks the PE signature it points at.
func peHeaderOffset(p []byte) (uint32, *peSignature, error) {
	var dos dosHeader
	if err := unpackAt(p, &dos, 0, binary.LittleEndian); err != nil {
		return 0, nil, wrapError(ErrMalformedHeader, StageDetect, err, "pe: truncated DOS header")
	}
	var sig peSignature
	if err := unpackAt(p, &sig, uint64(dos.Lfanew), binary.LittleEndian); err != nil {
		return 0, nil, wrapError(ErrMalformedHeader, StageDetect, err, "pe: e_lfanew 0x%x (stored at 0x3c) is out of range", dos.Lfanew)
	}
	if sig.Magic != peMagic {
		return 0, nil, newError(ErrMalformedHeader, StageDetect, "pe: bad signature %q at 0x%x", sig.Magic, dos.Lfanew)
	}
	return dos.Lfanew, &sig, nil
}

// peWideMachines declare 8-byte addresses and carry PE32+ optional headers.
var peWideMachines = map[uint16]bool{
	pe.IMAGE_FILE_MACHINE_AMD64:   true,
	pe.IMAGE_FILE_MACHINE_ARM64:   true,
	pe.IMAGE_FILE_MACHINE_IA64:    true,
	pe.IMAGE_FILE_MACHINE_RISCV64: true,
}

func detectPE(p []byte) (models.Format, error) {
	_, sig, err := peHeaderOffset(p)
	if err != nil {
		return models.FormatUnknown, err
	}
	if peWideMachines[sig.Machine] {
		return models.FormatPE32Plus, nil
	}
	return models.FormatPE32, nil
}
