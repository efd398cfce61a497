package models

// Arch names the machine an image targets.
type Arch string

const (
	ArchUnknown Arch = "unknown"
	ArchX86     Arch = "x86"
	ArchX86_64  Arch = "x86_64"
	ArchArm     Arch = "arm"
	ArchArm64   Arch = "arm64"
	ArchMips    Arch = "mips"
	ArchMips64  Arch = "mips64"
	ArchPpc     Arch = "ppc"
	ArchPpc64   Arch = "ppc64"
	ArchSparc   Arch = "sparc"
	ArchSparc64 Arch = "sparc64"
	ArchRiscv32 Arch = "riscv32"
	ArchRiscv64 Arch = "riscv64"
	ArchS390x   Arch = "s390x"
	ArchM68k    Arch = "m68k"
)

func (a Arch) String() string {
	if a == "" {
		return string(ArchUnknown)
	}
	return string(a)
}

// Bits is the native address width of the arch, or 0 if unknown.
func (a Arch) Bits() int {
	switch a {
	case ArchX86, ArchArm, ArchMips, ArchPpc, ArchSparc, ArchRiscv32, ArchM68k:
		return 32
	case ArchX86_64, ArchArm64, ArchMips64, ArchPpc64, ArchSparc64, ArchRiscv64, ArchS390x:
		return 64
	}
	return 0
}
