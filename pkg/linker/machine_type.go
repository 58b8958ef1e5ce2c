package linker

import (
	"debug/elf"

	"coldld/pkg/utils"
)

type MachineType uint8

const (
	MachineTypeNone MachineType = iota
	MachineTypeX86_64
)

func (m MachineType) String() string {
	switch m {
	case MachineTypeNone:
		return "none"
	case MachineTypeX86_64:
		return "x86_64"
	}
	return "invalid"
}

func GetMachineTypeFromContent(content []byte) MachineType {
	ft := GetFileTypeFromContent(content)
	if ft != FileTypeObject && ft != FileTypeSharedObject {
		return MachineTypeNone
	}

	var machine uint16
	utils.Read[uint16](content[18:], &machine)
	if elf.Machine(machine) == elf.EM_X86_64 &&
		elf.Class(content[4]) == elf.ELFCLASS64 {
		return MachineTypeX86_64
	}
	return MachineTypeNone
}
