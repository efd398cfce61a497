package models

// Format is the closed set of containers the detector can report.
// Only the ELF, MachO and PE variants ever back an Image.
type Format int

const (
	FormatUnknown Format = iota
	FormatELF32LE
	FormatELF32BE
	FormatELF64LE
	FormatELF64BE
	FormatMachO
	FormatPE32
	FormatPE32Plus
	FormatArchive
)

var formatNames = []string{
	FormatUnknown:  "unknown",
	FormatELF32LE:  "elf32-little",
	FormatELF32BE:  "elf32-big",
	FormatELF64LE:  "elf64-little",
	FormatELF64BE:  "elf64-big",
	FormatMachO:    "mach-o",
	FormatPE32:     "pe32",
	FormatPE32Plus: "pe32+",
	FormatArchive:  "archive",
}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return formatNames[FormatUnknown]
	}
	return formatNames[f]
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f Format) IsELF() bool {
	return f >= FormatELF32LE && f <= FormatELF64BE
}

func (f Format) IsPE() bool {
	return f == FormatPE32 || f == FormatPE32Plus
}
