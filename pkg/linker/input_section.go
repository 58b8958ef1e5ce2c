package linker

import (
	"debug/elf"
	"fmt"

	"coldld/pkg/utils"
)

type InputSection struct {
	ObjFile *ObjectFile
	Name    string
	Shdr    *Shdr
	Content []byte
	Relas   []Rela

	OutputSection *OutputSection
	Offset        uint64 // within the output section
}

func NewInputSection(obj *ObjectFile, name string, shdr *Shdr, content []byte) *InputSection {
	return &InputSection{
		ObjFile: obj,
		Name:    name,
		Shdr:    shdr,
		Content: content,
	}
}

// NewCommonSection makes the zero-initialized backing for a merged
// COMMON symbol. It behaves like a one-symbol .bss contribution.
func NewCommonSection(obj *ObjectFile, size, align uint64) *InputSection {
	if align == 0 {
		align = 1
	}
	return &InputSection{
		ObjFile: obj,
		Name:    ".bss",
		Shdr: &Shdr{
			Type:      uint32(elf.SHT_NOBITS),
			Flags:     uint64(elf.SHF_ALLOC | elf.SHF_WRITE),
			Size:      size,
			AddrAlign: align,
		},
	}
}

func (i *InputSection) GetAddr() uint64 {
	return i.OutputSection.Shdr.Addr + i.Offset
}

func (i *InputSection) IsWritable() bool {
	return i.Shdr.Flags&uint64(elf.SHF_WRITE) != 0
}

func (i *InputSection) WriteTo(ctx *Context, buf []byte) {
	if i.Shdr.Type == uint32(elf.SHT_NOBITS) {
		return
	}
	copy(buf, i.Content)
}

func relaWidth(typ elf.R_X86_64) uint64 {
	switch typ {
	case elf.R_X86_64_NONE:
		return 0
	case elf.R_X86_64_64:
		return 8
	default:
		return 4
	}
}

// ScanRelocations decides, before layout, which synthetic structures
// each relocation will need: PLT stubs for calls that leave the image,
// GOT slots for GOT-relative loads, and dynamic relocations for
// absolute values in a position-independent image.
func (i *InputSection) ScanRelocations(ctx *Context) error {
	for r := range i.Relas {
		rela := &i.Relas[r]
		sym, err := i.relaSymbol(rela)
		if err != nil {
			return err
		}
		typ := elf.R_X86_64(rela.Type())

		switch typ {
		case elf.R_X86_64_64, elf.R_X86_64_32, elf.R_X86_64_32S:
			if sym.IsImported() {
				return linkErrorf(ErrUnsupportedRelocation,
					"%s: absolute relocation against imported symbol %s",
					i.locate(rela), sym.Name)
			}
		}

		switch typ {
		case elf.R_X86_64_NONE:
		case elf.R_X86_64_64:
			if ctx.IsPic() {
				if !i.IsWritable() {
					return linkErrorf(ErrUnsupportedRelocation,
						"%s: absolute relocation against read-only section in position-independent output",
						i.locate(rela))
				}
				ctx.RelaDyn.AddRelative(i, rela.Offset, sym, rela.Addend)
			}
		case elf.R_X86_64_32:
			if ctx.IsPic() {
				return linkErrorf(ErrUnsupportedRelocation,
					"%s: R_X86_64_32 cannot be used in position-independent output",
					i.locate(rela))
			}
		case elf.R_X86_64_32S:
		case elf.R_X86_64_PC32, elf.R_X86_64_PLT32:
			// calls that leave the image go through the PLT; in a
			// shared object an undefined callee may still arrive at
			// load time
			if sym.IsImported() || (ctx.Args.Shared && sym.IsUndef()) {
				sym.Flags |= NeedsPlt
			}
		case elf.R_X86_64_GOTPCREL, elf.R_X86_64_GOTPCRELX, elf.R_X86_64_REX_GOTPCRELX:
			sym.Flags |= NeedsGot
		default:
			return linkErrorf(ErrUnsupportedRelocation, "%s: %v", i.locate(rela), typ)
		}

		if width := relaWidth(typ); width > 0 && rela.Offset+width > i.Shdr.Size {
			return linkErrorf(ErrBadInput,
				"%s: relocation window exceeds section size", i.locate(rela))
		}
	}
	return nil
}

// ApplyRelocations patches this contribution inside the laid-out
// output buffer.
func (i *InputSection) ApplyRelocations(ctx *Context) error {
	if i.Shdr.Type == uint32(elf.SHT_NOBITS) {
		return nil
	}
	base := ctx.Buf[i.OutputSection.Shdr.Offset+i.Offset:]

	for r := range i.Relas {
		rela := &i.Relas[r]
		sym, err := i.relaSymbol(rela)
		if err != nil {
			return err
		}
		typ := elf.R_X86_64(rela.Type())

		// S, A, P of the relocation formulas
		s := int64(sym.GetAddr(ctx))
		a := rela.Addend
		p := int64(i.GetAddr() + rela.Offset)
		loc := base[rela.Offset:]

		switch typ {
		case elf.R_X86_64_NONE:
		case elf.R_X86_64_64:
			utils.Write[uint64](loc, uint64(s+a))
		case elf.R_X86_64_PC32, elf.R_X86_64_PLT32:
			val := s + a - p
			if !checkRange(val) {
				return i.overflow(rela, sym, val)
			}
			utils.Write[uint32](loc, uint32(int32(val)))
		case elf.R_X86_64_32:
			val := s + a
			if val < 0 || val >= 1<<32 {
				return i.overflow(rela, sym, val)
			}
			utils.Write[uint32](loc, uint32(val))
		case elf.R_X86_64_32S:
			val := s + a
			if !checkRange(val) {
				return i.overflow(rela, sym, val)
			}
			utils.Write[uint32](loc, uint32(int32(val)))
		case elf.R_X86_64_GOTPCREL, elf.R_X86_64_GOTPCRELX, elf.R_X86_64_REX_GOTPCRELX:
			val := int64(sym.GotAddr(ctx)) + a - p
			if !checkRange(val) {
				return i.overflow(rela, sym, val)
			}
			utils.Write[uint32](loc, uint32(int32(val)))
		default:
			return linkErrorf(ErrUnsupportedRelocation, "%s: %v", i.locate(rela), typ)
		}
	}
	return nil
}

func (i *InputSection) relaSymbol(rela *Rela) (*Symbol, error) {
	idx := rela.SymIdx()
	if idx >= uint32(len(i.ObjFile.Symbols)) || i.ObjFile.Symbols[idx] == nil {
		return nil, linkErrorf(ErrBadInput,
			"%s: relocation against nonexistent symbol %d", i.locate(rela), idx)
	}
	return i.ObjFile.Symbols[idx], nil
}

func (i *InputSection) locate(rela *Rela) string {
	return fmt.Sprintf("%s(%s+%#x)", i.ObjFile.File.Name, i.Name, rela.Offset)
}

func (i *InputSection) overflow(rela *Rela, sym *Symbol, val int64) error {
	return linkErrorf(ErrRelocationOverflow,
		"%s: value %#x against symbol %s does not fit", i.locate(rela), val, sym.Name)
}
