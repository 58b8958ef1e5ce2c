package linker

import (
	"debug/elf"

	"coldld/pkg/utils"
)

// OutputGotPltWriter is the PLT companion table. The loader fills
// slots 1 and 2; slot 0 points at .dynamic; the per-function slots
// start out at their PLT push instruction so the first call resolves
// lazily.
type OutputGotPltWriter struct {
	OutputWriter
}

func NewOutputGotPltWriter() *OutputGotPltWriter {
	o := &OutputGotPltWriter{OutputWriter: *NewOutputWriter()}
	o.Name = ".got.plt"
	o.Shdr.Type = uint32(elf.SHT_PROGBITS)
	o.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_WRITE)
	o.Shdr.AddrAlign = 8
	o.Shdr.EntSize = 8
	o.Shdr.Size = GotPltHeaderSlots * 8
	return o
}

func (o *OutputGotPltWriter) SlotAddr(pltIdx int32) uint64 {
	return o.Shdr.Addr + uint64(GotPltHeaderSlots+pltIdx)*8
}

func (o *OutputGotPltWriter) CopyBuf(ctx *Context) error {
	base := ctx.Buf[o.Shdr.Offset:]
	if ctx.Dynamic != nil {
		utils.Write[uint64](base, ctx.Dynamic.Shdr.Addr)
	}
	for i, sym := range ctx.Plt.Syms {
		pushAddr := ctx.Plt.EntryAddr(sym.PltIdx) + 6
		utils.Write[uint64](base[(GotPltHeaderSlots+i)*8:], pushAddr)
	}
	return nil
}
