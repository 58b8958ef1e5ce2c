package linker

import (
	"bytes"
)

func CheckMagic(content []byte) bool {
	return bytes.HasPrefix(content, []byte("\177ELF"))
}

func WriteMagic(dst []byte) {
	copy(dst, "\177ELF")
}
