package linker

import (
	"debug/elf"

	"coldld/pkg/utils"
)

type ObjectFile struct {
	InputFile
	SymtabShndxSec []uint32

	Sections     []*InputSection
	Symbols      []*Symbol
	LocalSymbols []*Symbol
}

func NewObjectFile(ctx *Context, file *File) (*ObjectFile, error) {
	inner, err := NewInputFile(file)
	if err != nil {
		return nil, err
	}
	if elf.Type(inner.ElfEhdr.Type) != elf.ET_REL {
		return nil, linkErrorf(ErrBadInput, "%s: not a relocatable object", file.Name)
	}

	f := &ObjectFile{InputFile: inner}
	if err := f.Parse(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *ObjectFile) Parse(ctx *Context) error {
	if idx := f.FindSectionHdrIdx(uint32(elf.SHT_SYMTAB)); idx >= 0 {
		if err := f.fillSyms(idx); err != nil {
			return err
		}
	}
	if err := f.parseSymtabShndxSec(); err != nil {
		return err
	}
	if err := f.initializeSections(); err != nil {
		return err
	}
	if err := f.attachRelocations(); err != nil {
		return err
	}
	return f.initializeSymbols(ctx)
}

func (f *ObjectFile) parseSymtabShndxSec() error {
	idx := f.FindSectionHdrIdx(uint32(elf.SHT_SYMTAB_SHNDX))
	if idx < 0 {
		return nil
	}
	content, err := f.GetBytesFromShdr(&f.ElfSecHdrs[idx])
	if err != nil {
		return err
	}
	f.SymtabShndxSec = utils.ReadSlice[uint32](content, 4)
	return nil
}

// initializeSections creates an InputSection per allocatable section.
// Bookkeeping sections and non-alloc debris (.comment, .note.GNU-stack)
// have no place in the output image and stay nil.
func (f *ObjectFile) initializeSections() error {
	f.Sections = make([]*InputSection, len(f.ElfSecHdrs))
	for i := range f.ElfSecHdrs {
		shdr := &f.ElfSecHdrs[i]
		switch elf.SectionType(shdr.Type) {
		case elf.SHT_NULL, elf.SHT_SYMTAB, elf.SHT_STRTAB, elf.SHT_REL,
			elf.SHT_RELA, elf.SHT_GROUP, elf.SHT_SYMTAB_SHNDX:
			continue
		}
		if shdr.Flags&uint64(elf.SHF_ALLOC) == 0 {
			continue
		}

		content, err := f.GetBytesFromShdr(shdr)
		if err != nil {
			return err
		}
		f.Sections[i] = NewInputSection(f, ElfGetName(f.ShStrTab, shdr.Name), shdr, content)
	}
	return nil
}

// attachRelocations hands each SHT_RELA list to the section named by
// its sh_info field.
func (f *ObjectFile) attachRelocations() error {
	for i := range f.ElfSecHdrs {
		shdr := &f.ElfSecHdrs[i]
		if elf.SectionType(shdr.Type) != elf.SHT_RELA {
			continue
		}
		if shdr.Info >= uint32(len(f.Sections)) {
			return linkErrorf(ErrBadInput,
				"%s: relocation section targets section %d which does not exist",
				f.File.Name, shdr.Info)
		}
		target := f.Sections[shdr.Info]
		if target == nil {
			continue
		}

		content, err := f.GetBytesFromShdr(shdr)
		if err != nil {
			return err
		}
		if len(content)%RelaSize != 0 {
			return linkErrorf(ErrBadInput, "%s: odd relocation section size", f.File.Name)
		}
		target.Relas = utils.ReadSlice[Rela](content, RelaSize)
	}
	return nil
}

// initializeSymbols wires f.Symbols so that the i-th entry matches the
// i-th record of the input symbol table. Locals are owned here; globals
// intern into the context map and get resolved by a later pass.
func (f *ObjectFile) initializeSymbols(ctx *Context) error {
	f.Symbols = make([]*Symbol, len(f.ElfSyms))
	f.LocalSymbols = make([]*Symbol, 0, f.FirstGlobal)

	for i := range f.ElfSyms {
		esym := &f.ElfSyms[i]
		if uint32(i) >= f.FirstGlobal {
			break
		}

		name := ""
		if i > 0 {
			name = ElfGetName(f.SymStrTab, esym.Name)
		}
		sym := NewSymbol(name)
		sym.File = f
		sym.Binding = esym.Binding()
		sym.SymType = esym.Type()
		sym.Size = esym.Size
		sym.Value = esym.Val
		switch {
		case i == 0 || esym.IsUndef():
			sym.Kind = SymbolKindUndef
		case esym.IsAbs():
			sym.Kind = SymbolKindAbs
		case esym.IsCommon():
			sym.Kind = SymbolKindCommon
		default:
			shndx := esym.GetShndx(f.SymtabShndxSec, uint32(i))
			if shndx >= uint32(len(f.Sections)) {
				return linkErrorf(ErrBadInput,
					"%s: symbol %s refers to section %d which does not exist",
					f.File.Name, sym.Name, shndx)
			}
			if isec := f.Sections[shndx]; isec != nil {
				sym.Kind = SymbolKindDefined
				sym.InputSection = isec
			}
		}
		f.Symbols[i] = sym
		f.LocalSymbols = append(f.LocalSymbols, sym)
	}

	for i := int(f.FirstGlobal); i < len(f.ElfSyms); i++ {
		name := ElfGetName(f.SymStrTab, f.ElfSyms[i].Name)
		f.Symbols[i] = ctx.GetSymbol(name)
	}
	return nil
}

// ResolveSymbols applies this object's global definitions to the
// interned table, in input order. Later inputs may satisfy earlier
// undefined references but can never displace a live strong
// definition.
func (f *ObjectFile) ResolveSymbols(ctx *Context) error {
	for i := int(f.FirstGlobal); i < len(f.ElfSyms); i++ {
		esym := &f.ElfSyms[i]
		sym := f.Symbols[i]

		if esym.IsUndef() {
			continue
		}

		switch {
		case esym.IsCommon():
			if err := f.mergeCommon(sym, esym); err != nil {
				return err
			}
		default:
			if err := f.mergeDefinition(ctx, sym, esym, uint32(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *ObjectFile) mergeDefinition(ctx *Context, sym *Symbol, esym *Sym, idx uint32) error {
	newIsWeak := esym.Binding() == uint8(elf.STB_WEAK)

	switch sym.Kind {
	case SymbolKindUndef, SymbolKindCommon:
		// tentative or missing, any real definition wins
	case SymbolKindDefined, SymbolKindAbs:
		if newIsWeak {
			return nil // weak never displaces a definition
		}
		if !sym.IsWeak() {
			return linkErrorf(ErrMultipleDefinition, "%s: defined in both %s and %s",
				sym.Name, sym.File.File.Name, f.File.Name)
		}
	}

	sym.File = f
	sym.Shared = nil
	sym.Binding = esym.Binding()
	sym.SymType = esym.Type()
	sym.Size = esym.Size
	if esym.IsAbs() {
		sym.Kind = SymbolKindAbs
		sym.InputSection = nil
		sym.Value = esym.Val
		return nil
	}

	shndx := esym.GetShndx(f.SymtabShndxSec, idx)
	if shndx >= uint32(len(f.Sections)) || f.Sections[shndx] == nil {
		return linkErrorf(ErrBadInput,
			"%s: symbol %s defined in discarded section %d", f.File.Name, sym.Name, shndx)
	}
	sym.Kind = SymbolKindDefined
	sym.InputSection = f.Sections[shndx]
	sym.Value = esym.Val
	return nil
}

// mergeCommon implements tentative-definition semantics: commons merge
// taking the largest size and the strictest alignment, and any real
// definition beats them.
func (f *ObjectFile) mergeCommon(sym *Symbol, esym *Sym) error {
	switch sym.Kind {
	case SymbolKindUndef:
		sym.Kind = SymbolKindCommon
		sym.File = f
		sym.Binding = esym.Binding()
		sym.SymType = esym.Type()
		sym.Size = esym.Size
		sym.Value = esym.Val // alignment request for commons
	case SymbolKindCommon:
		if esym.Size > sym.Size {
			sym.Size = esym.Size
			sym.File = f
		}
		if esym.Val > sym.Value {
			sym.Value = esym.Val
		}
	}
	return nil
}

// MarkNeededSharedFiles flips the needed bit on every shared object
// that supplies one of this object's undefined references. Under
// --as-needed only flagged libraries make it into DT_NEEDED.
func (f *ObjectFile) MarkNeededSharedFiles() {
	for i := int(f.FirstGlobal); i < len(f.ElfSyms); i++ {
		if !f.ElfSyms[i].IsUndef() {
			continue
		}
		sym := f.Symbols[i]
		if sym.Kind == SymbolKindExternal && sym.Shared != nil {
			sym.Shared.IsNeeded = true
		}
	}
}
