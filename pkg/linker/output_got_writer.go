package linker

import (
	"debug/elf"

	"coldld/pkg/utils"
)

// OutputGotWriter is the data GOT: one 8-byte slot per symbol loaded
// through a GOT-relative relocation.
type OutputGotWriter struct {
	OutputWriter
	Syms []*Symbol
}

func NewOutputGotWriter() *OutputGotWriter {
	o := &OutputGotWriter{OutputWriter: *NewOutputWriter()}
	o.Name = ".got"
	o.Shdr.Type = uint32(elf.SHT_PROGBITS)
	o.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_WRITE)
	o.Shdr.AddrAlign = 8
	o.Shdr.EntSize = 8
	return o
}

func (o *OutputGotWriter) AddGotSymbol(ctx *Context, sym *Symbol) {
	sym.GotIdx = int32(len(o.Syms))
	o.Syms = append(o.Syms, sym)
	o.Shdr.Size += 8

	switch {
	case sym.IsImported() || (sym.IsUndef() && ctx.IsDynamic()):
		ctx.RelaDyn.AddGlobDat(sym)
	case sym.IsUndef():
		// a tolerated weak reference in a static link reads as 0
	case ctx.IsPic():
		// the slot holds an absolute address and must follow the base
		ctx.RelaDyn.AddGotRelative(sym)
	}
}

func (o *OutputGotWriter) CopyBuf(ctx *Context) error {
	base := ctx.Buf[o.Shdr.Offset:]
	for idx, sym := range o.Syms {
		if sym.Kind != SymbolKindDefined && sym.Kind != SymbolKindAbs {
			continue // bound by R_X86_64_GLOB_DAT at load time, or 0
		}
		utils.Write[uint64](base[idx*8:], sym.GetAddr(ctx))
	}
	return nil
}
