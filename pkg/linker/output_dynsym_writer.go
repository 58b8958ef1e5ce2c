package linker

import (
	"debug/elf"
	"sort"

	"coldld/pkg/utils"
)

// OutputDynsymWriter is .dynsym: a null record, then the imported
// symbols, then the exported ones. The exported tail is ordered by GNU
// hash bucket so .gnu.hash can index it directly.
type OutputDynsymWriter struct {
	OutputWriter
	Imports []*Symbol
	Exports []*Symbol
}

func NewOutputDynsymWriter() *OutputDynsymWriter {
	o := &OutputDynsymWriter{OutputWriter: *NewOutputWriter()}
	o.Name = ".dynsym"
	o.Shdr.Type = uint32(elf.SHT_DYNSYM)
	o.Shdr.Flags = uint64(elf.SHF_ALLOC)
	o.Shdr.AddrAlign = 8
	o.Shdr.EntSize = uint64(SymSize)
	o.Shdr.Info = 1 // only the null record is local
	return o
}

func (o *OutputDynsymWriter) AddImport(ctx *Context, sym *Symbol) {
	if sym.DynsymIdx >= 0 {
		return
	}
	sym.DynsymIdx = 0 // assigned in Finalize
	sym.DynstrOff = ctx.Dynstr.Add(sym.Name)
	o.Imports = append(o.Imports, sym)
}

func (o *OutputDynsymWriter) AddExport(ctx *Context, sym *Symbol) {
	if sym.DynsymIdx >= 0 {
		return
	}
	sym.DynsymIdx = 0
	sym.DynstrOff = ctx.Dynstr.Add(sym.Name)
	o.Exports = append(o.Exports, sym)
}

// NumSyms includes the null record.
func (o *OutputDynsymWriter) NumSyms() uint32 {
	return uint32(1 + len(o.Imports) + len(o.Exports))
}

// FirstExport is the .dynsym index of the first hashed symbol, the
// GNU-hash symoffset.
func (o *OutputDynsymWriter) FirstExport() uint32 {
	return uint32(1 + len(o.Imports))
}

// Finalize pins every symbol's table index. Exports sort by bucket
// first, then by name for a reproducible image.
func (o *OutputDynsymWriter) Finalize(ctx *Context) {
	nbuckets := gnuHashBuckets(len(o.Exports))
	sort.SliceStable(o.Exports, func(a, b int) bool {
		ba := gnuHash(o.Exports[a].Name) % nbuckets
		bb := gnuHash(o.Exports[b].Name) % nbuckets
		if ba != bb {
			return ba < bb
		}
		return o.Exports[a].Name < o.Exports[b].Name
	})

	idx := int32(1)
	for _, sym := range o.Imports {
		sym.DynsymIdx = idx
		idx++
	}
	for _, sym := range o.Exports {
		sym.DynsymIdx = idx
		idx++
	}
	o.Shdr.Size = uint64(o.NumSyms()) * uint64(SymSize)
}

func (o *OutputDynsymWriter) UpdateShdr(ctx *Context) {
	o.Shdr.Size = uint64(o.NumSyms()) * uint64(SymSize)
}

func (o *OutputDynsymWriter) CopyBuf(ctx *Context) error {
	base := ctx.Buf[o.Shdr.Offset:]
	utils.Write[Sym](base, Sym{})

	write := func(sym *Symbol, esym Sym) {
		utils.Write[Sym](base[int(sym.DynsymIdx)*SymSize:], esym)
	}

	for _, sym := range o.Imports {
		write(sym, Sym{
			Name: sym.DynstrOff,
			Info: sym.Binding<<4 | sym.SymType,
			Size: sym.Size,
		})
	}
	for _, sym := range o.Exports {
		esym := Sym{
			Name:  sym.DynstrOff,
			Info:  sym.Binding<<4 | sym.SymType,
			Val:   sym.GetAddr(ctx),
			Size:  sym.Size,
			Shndx: uint16(elf.SHN_ABS),
		}
		if sym.Kind == SymbolKindDefined {
			esym.Shndx = uint16(sym.InputSection.OutputSection.Shndx)
		}
		write(sym, esym)
	}
	return nil
}
