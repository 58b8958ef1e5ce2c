package linker

import (
	"debug/elf"
	"path/filepath"

	"coldld/pkg/utils"
)

// SharedFile is a .so the output will depend on. Only its export list,
// its SONAME and its own DT_NEEDED names matter at link time; none of
// its bytes reach the output.
type SharedFile struct {
	InputFile
	Soname   string
	Needed   []string
	AsNeeded bool
	IsNeeded bool
}

func NewSharedFile(ctx *Context, file *File, asNeeded bool) (*SharedFile, error) {
	inner, err := NewInputFile(file)
	if err != nil {
		return nil, err
	}
	if elf.Type(inner.ElfEhdr.Type) != elf.ET_DYN {
		return nil, linkErrorf(ErrBadInput, "%s: not a shared object", file.Name)
	}

	f := &SharedFile{
		InputFile: inner,
		AsNeeded:  asNeeded,
		IsNeeded:  !asNeeded,
	}

	idx := f.FindSectionHdrIdx(uint32(elf.SHT_DYNSYM))
	if idx < 0 {
		return nil, linkErrorf(ErrBadInput, "%s: shared object carries no .dynsym", file.Name)
	}
	if err := f.fillSyms(idx); err != nil {
		return nil, err
	}
	if err := f.parseDynamic(); err != nil {
		return nil, err
	}
	if f.Soname == "" {
		f.Soname = filepath.Base(file.Name)
	}
	return f, nil
}

func (f *SharedFile) parseDynamic() error {
	idx := f.FindSectionHdrIdx(uint32(elf.SHT_DYNAMIC))
	if idx < 0 {
		return nil
	}
	shdr := &f.ElfSecHdrs[idx]
	content, err := f.GetBytesFromShdr(shdr)
	if err != nil {
		return err
	}
	strTab, err := f.GetBytesFromIdx(shdr.Link)
	if err != nil {
		return err
	}
	if len(content)%DynSize != 0 {
		return linkErrorf(ErrBadInput, "%s: odd dynamic section size", f.File.Name)
	}

	for _, dyn := range utils.ReadSlice[Dyn](content, DynSize) {
		switch elf.DynTag(dyn.Tag) {
		case elf.DT_SONAME:
			f.Soname = ElfGetName(strTab, uint32(dyn.Val))
		case elf.DT_NEEDED:
			f.Needed = append(f.Needed, ElfGetName(strTab, uint32(dyn.Val)))
		case elf.DT_NULL:
			return nil
		}
	}
	return nil
}

// FindExport looks the name up among the defined non-local dynamic
// symbols.
func (f *SharedFile) FindExport(name string) *Sym {
	for i := int(f.FirstGlobal); i < len(f.ElfSyms); i++ {
		esym := &f.ElfSyms[i]
		if esym.IsUndef() {
			continue
		}
		if ElfGetName(f.SymStrTab, esym.Name) == name {
			return esym
		}
	}
	return nil
}
