package linker

import (
	"bytes"
	"debug/elf"
	"unsafe"
)

const EhdrSize = int(unsafe.Sizeof(Ehdr{}))
const ShdrSize = int(unsafe.Sizeof(Shdr{}))
const PhdrSize = int(unsafe.Sizeof(Phdr{}))
const SymSize = int(unsafe.Sizeof(Sym{}))
const RelaSize = int(unsafe.Sizeof(Rela{}))
const DynSize = int(unsafe.Sizeof(Dyn{}))

const PageSize = 0x1000
const ImageBase = 0x400000

const DefaultInterp = "/lib64/ld-linux-x86-64.so.2"

type Ehdr struct {
	Ident     [16]uint8
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	PhOff     uint64
	ShOff     uint64
	Flags     uint32
	EhSize    uint16
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrndx  uint16
}

type Shdr struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

type Phdr struct {
	Type     uint32
	Flags    uint32
	Offset   uint64
	VAddr    uint64
	PAddr    uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
}

type Sym struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Val   uint64
	Size  uint64
}

type Rela struct {
	Offset uint64
	Info   uint64
	Addend int64
}

type Dyn struct {
	Tag uint64
	Val uint64
}

func (s *Sym) Binding() uint8 {
	return s.Info >> 4
}

func (s *Sym) Type() uint8 {
	return s.Info & 0xf
}

func (s *Sym) GetShndx(table []uint32, idx uint32) uint32 {
	if elf.SectionIndex(s.Shndx) != elf.SHN_XINDEX {
		return uint32(s.Shndx)
	}
	return table[idx]
}

func (s *Sym) IsAbs() bool {
	return s.Shndx == uint16(elf.SHN_ABS)
}

func (s *Sym) IsUndef() bool {
	return s.Shndx == uint16(elf.SHN_UNDEF)
}

func (s *Sym) IsCommon() bool {
	return s.Shndx == uint16(elf.SHN_COMMON)
}

func (r *Rela) SymIdx() uint32 {
	return uint32(r.Info >> 32)
}

func (r *Rela) Type() uint32 {
	return uint32(r.Info)
}

func RelaInfo(symIdx uint32, typ uint32) uint64 {
	return uint64(symIdx)<<32 | uint64(typ)
}

func ElfGetName(strTab []byte, offset uint32) string {
	length := uint32(bytes.Index(strTab[offset:], []byte{0}))
	return string(strTab[offset : offset+length])
}

// sysvHash is the classic System V PJW-style symbol hash.
func sysvHash(name string) uint32 {
	h := uint32(0)
	for i := 0; i < len(name); i++ {
		h = h<<4 + uint32(name[i])
		g := h & 0xf0000000
		if g != 0 {
			h ^= g >> 24
		}
		h &^= g
	}
	return h
}

func gnuHash(name string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(name); i++ {
		h = h*33 + uint32(name[i])
	}
	return h
}

func checkRange(val int64) bool {
	return val >= -(1<<31) && val < 1<<31
}
