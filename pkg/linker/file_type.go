package linker

import (
	"debug/elf"

	"coldld/pkg/utils"
)

type FileType uint8

const (
	FileTypeUnknown FileType = iota
	FileTypeEmpty
	FileTypeObject
	FileTypeSharedObject
)

func GetFileTypeFromContent(content []byte) FileType {
	if len(content) == 0 {
		return FileTypeEmpty
	}
	if CheckMagic(content) && len(content) >= 18 {
		var elfType uint16
		utils.Read[uint16](content[16:], &elfType)
		switch elf.Type(elfType) {
		case elf.ET_REL:
			return FileTypeObject
		case elf.ET_DYN:
			return FileTypeSharedObject
		}
	}
	return FileTypeUnknown
}
