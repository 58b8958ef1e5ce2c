package linker

import (
	"debug/elf"

	"coldld/pkg/utils"
)

// OutputSymtabWriter is the non-allocated .symtab: the null record,
// every surviving local of every input in command-line order, then the
// interned globals.
type OutputSymtabWriter struct {
	OutputWriter
	locals     []*Symbol
	globals    []*Symbol
	nameOffs   map[*Symbol]uint32
	numEntries int
}

func NewOutputSymtabWriter() *OutputSymtabWriter {
	o := &OutputSymtabWriter{OutputWriter: *NewOutputWriter()}
	o.Name = ".symtab"
	o.Shdr.Type = uint32(elf.SHT_SYMTAB)
	o.Shdr.AddrAlign = 8
	o.Shdr.EntSize = uint64(SymSize)
	return o
}

// Collect walks the inputs and reserves the .strtab names. Must run
// before .strtab freezes its size.
func (o *OutputSymtabWriter) Collect(ctx *Context) {
	o.nameOffs = make(map[*Symbol]uint32)

	for _, obj := range ctx.Objs {
		for i, sym := range obj.LocalSymbols {
			if i == 0 {
				continue
			}
			if sym.Kind != SymbolKindDefined && sym.Kind != SymbolKindAbs {
				continue
			}
			o.locals = append(o.locals, sym)
			o.nameOffs[sym] = ctx.Strtab.Add(sym.Name)
		}
	}

	seen := make(map[*Symbol]bool)
	for _, obj := range ctx.Objs {
		for i := int(obj.FirstGlobal); i < len(obj.ElfSyms); i++ {
			sym := obj.Symbols[i]
			if seen[sym] {
				continue
			}
			seen[sym] = true
			o.globals = append(o.globals, sym)
			o.nameOffs[sym] = ctx.Strtab.Add(sym.Name)
		}
	}

	o.numEntries = 1 + len(o.locals) + len(o.globals)
	o.Shdr.Info = uint32(1 + len(o.locals))
}

func (o *OutputSymtabWriter) UpdateShdr(ctx *Context) {
	o.Shdr.Size = uint64(o.numEntries) * uint64(SymSize)
}

func (o *OutputSymtabWriter) record(ctx *Context, sym *Symbol) Sym {
	esym := Sym{
		Name: o.nameOffs[sym],
		Info: sym.Binding<<4 | sym.SymType,
		Size: sym.Size,
	}
	switch sym.Kind {
	case SymbolKindDefined:
		esym.Shndx = uint16(sym.InputSection.OutputSection.Shndx)
		esym.Val = sym.GetAddr(ctx)
	case SymbolKindAbs:
		esym.Shndx = uint16(elf.SHN_ABS)
		esym.Val = sym.Value
	default:
		esym.Shndx = uint16(elf.SHN_UNDEF)
	}
	return esym
}

func (o *OutputSymtabWriter) CopyBuf(ctx *Context) error {
	base := ctx.Buf[o.Shdr.Offset:]
	utils.Write[Sym](base, Sym{})
	idx := 1
	for _, sym := range o.locals {
		utils.Write[Sym](base[idx*SymSize:], o.record(ctx, sym))
		idx++
	}
	for _, sym := range o.globals {
		utils.Write[Sym](base[idx*SymSize:], o.record(ctx, sym))
		idx++
	}
	return nil
}
