package linker

import (
	"debug/elf"

	"coldld/pkg/utils"
)

// InputFile carries what object files and shared objects have in
// common: the raw header, the section table and the string tables.
type InputFile struct {
	File        *File
	ElfEhdr     Ehdr
	ElfSecHdrs  []Shdr
	ElfSyms     []Sym
	FirstGlobal uint32
	ShStrTab    []byte
	SymStrTab   []byte
}

func NewInputFile(file *File) (InputFile, error) {
	f := InputFile{File: file}

	if len(file.Content) < EhdrSize {
		return f, linkErrorf(ErrBadInput, "%s: file is smaller than Ehdr size", file.Name)
	}
	if !CheckMagic(file.Content) {
		return f, linkErrorf(ErrBadInput, "%s: invalid magic number", file.Name)
	}

	utils.Read[Ehdr](file.Content, &f.ElfEhdr)

	ident := f.ElfEhdr.Ident
	if elf.Class(ident[elf.EI_CLASS]) != elf.ELFCLASS64 ||
		elf.Data(ident[elf.EI_DATA]) != elf.ELFDATA2LSB ||
		elf.Version(ident[elf.EI_VERSION]) != elf.EV_CURRENT ||
		elf.OSABI(ident[elf.EI_OSABI]) != elf.ELFOSABI_NONE {
		return f, linkErrorf(ErrBadInput, "%s: not a little-endian ELF64 System V file", file.Name)
	}
	if elf.Machine(f.ElfEhdr.Machine) != elf.EM_X86_64 {
		return f, linkErrorf(ErrBadInput, "%s: not an x86-64 file", file.Name)
	}
	switch elf.Type(f.ElfEhdr.Type) {
	case elf.ET_REL, elf.ET_DYN:
	default:
		return f, linkErrorf(ErrBadInput, "%s: neither relocatable nor shared object", file.Name)
	}

	if f.ElfEhdr.ShOff+uint64(ShdrSize) > uint64(len(file.Content)) {
		return f, linkErrorf(ErrBadInput, "%s: section header table out of bounds", file.Name)
	}

	secHdrContent := file.Content[f.ElfEhdr.ShOff:]
	shdr := Shdr{}
	utils.Read[Shdr](secHdrContent, &shdr)
	f.ElfSecHdrs = append(f.ElfSecHdrs, shdr)

	// ShNum == 0 escapes to the first header's size field
	numSecs := uint64(f.ElfEhdr.ShNum)
	if numSecs == 0 {
		numSecs = f.ElfSecHdrs[0].Size
	}
	if f.ElfEhdr.ShOff+numSecs*uint64(ShdrSize) > uint64(len(file.Content)) {
		return f, linkErrorf(ErrBadInput, "%s: section header table out of bounds", file.Name)
	}

	for i := uint64(0); i < numSecs-1; i++ {
		secHdrContent = secHdrContent[ShdrSize:]
		shdr = Shdr{}
		utils.Read[Shdr](secHdrContent, &shdr)
		f.ElfSecHdrs = append(f.ElfSecHdrs, shdr)
	}

	shStrndx := uint32(f.ElfEhdr.ShStrndx)
	if shStrndx == uint32(elf.SHN_XINDEX) {
		shStrndx = f.ElfSecHdrs[0].Link
	}
	shStrTab, err := f.GetBytesFromIdx(shStrndx)
	if err != nil {
		return f, err
	}
	f.ShStrTab = shStrTab

	return f, nil
}

func (f *InputFile) GetBytesFromShdr(s *Shdr) ([]byte, error) {
	if s.Type == uint32(elf.SHT_NOBITS) {
		return nil, nil
	}
	end := s.Offset + s.Size
	if end > uint64(len(f.File.Content)) {
		return nil, linkErrorf(ErrBadInput,
			"%s: section [%#x, %#x) exceeds file length", f.File.Name, s.Offset, end)
	}
	return f.File.Content[s.Offset:end], nil
}

func (f *InputFile) GetBytesFromIdx(idx uint32) ([]byte, error) {
	if idx >= uint32(len(f.ElfSecHdrs)) {
		return nil, linkErrorf(ErrBadInput,
			"%s: section index %d exceeds section header table length", f.File.Name, idx)
	}
	return f.GetBytesFromShdr(&f.ElfSecHdrs[idx])
}

func (f *InputFile) FindSectionHdrIdx(secType uint32) int {
	for i := range f.ElfSecHdrs {
		if f.ElfSecHdrs[i].Type == secType {
			return i
		}
	}
	return -1
}

// fillSyms reads the symbol records of the table at shndx and its
// companion string table.
func (f *InputFile) fillSyms(shndx int) error {
	shdr := &f.ElfSecHdrs[shndx]
	f.FirstGlobal = shdr.Info

	bs, err := f.GetBytesFromShdr(shdr)
	if err != nil {
		return err
	}
	if len(bs)%SymSize != 0 {
		return linkErrorf(ErrBadInput, "%s: odd symbol table size", f.File.Name)
	}
	f.ElfSyms = utils.ReadSlice[Sym](bs, SymSize)

	// the null symbol is local whatever sh_info claims
	if len(f.ElfSyms) > 0 && f.FirstGlobal == 0 {
		f.FirstGlobal = 1
	}
	if f.FirstGlobal > uint32(len(f.ElfSyms)) {
		return linkErrorf(ErrBadInput, "%s: sh_info exceeds symbol count", f.File.Name)
	}

	f.SymStrTab, err = f.GetBytesFromIdx(shdr.Link)
	return err
}
