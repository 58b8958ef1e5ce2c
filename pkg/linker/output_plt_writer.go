package linker

import (
	"debug/elf"

	"coldld/pkg/utils"
)

const PltEntrySize = 16
const GotPltHeaderSlots = 3

// OutputPltWriter holds the lazy-binding stubs. Entry 0 is the
// resolver trampoline; entry 1+i belongs to the i-th imported
// function.
type OutputPltWriter struct {
	OutputWriter
	Syms []*Symbol
}

func NewOutputPltWriter() *OutputPltWriter {
	o := &OutputPltWriter{OutputWriter: *NewOutputWriter()}
	o.Name = ".plt"
	o.Shdr.Type = uint32(elf.SHT_PROGBITS)
	o.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR)
	o.Shdr.AddrAlign = 16
	o.Shdr.EntSize = PltEntrySize
	o.Shdr.Size = PltEntrySize
	return o
}

func (o *OutputPltWriter) AddSymbol(ctx *Context, sym *Symbol) {
	sym.PltIdx = int32(len(o.Syms))
	o.Syms = append(o.Syms, sym)
	o.Shdr.Size += PltEntrySize
	ctx.GotPlt.Shdr.Size += 8
	ctx.RelaPlt.AddJumpSlot(sym)
}

func (o *OutputPltWriter) EntryAddr(pltIdx int32) uint64 {
	return o.Shdr.Addr + uint64(1+pltIdx)*PltEntrySize
}

func (o *OutputPltWriter) CopyBuf(ctx *Context) error {
	base := ctx.Buf[o.Shdr.Offset:]
	pltAddr := o.Shdr.Addr
	gotPltAddr := ctx.GotPlt.Shdr.Addr

	// PLT[0]:
	//   push [got.plt+8]   ; link_map
	//   jmp  *[got.plt+16] ; _dl_runtime_resolve
	copy(base, []byte{0xff, 0x35})
	utils.Write[uint32](base[2:], uint32(int32(gotPltAddr+8-(pltAddr+6))))
	copy(base[6:], []byte{0xff, 0x25})
	utils.Write[uint32](base[8:], uint32(int32(gotPltAddr+16-(pltAddr+12))))
	copy(base[12:], []byte{0x0f, 0x1f, 0x40, 0x00})

	for i := range o.Syms {
		ent := base[(1+i)*PltEntrySize:]
		entAddr := pltAddr + uint64(1+i)*PltEntrySize
		slotAddr := gotPltAddr + uint64(GotPltHeaderSlots+i)*8

		// jmp *[got.plt slot]; push reloc index; jmp PLT[0]
		copy(ent, []byte{0xff, 0x25})
		utils.Write[uint32](ent[2:], uint32(int32(slotAddr-(entAddr+6))))
		ent[6] = 0x68
		utils.Write[uint32](ent[7:], uint32(i))
		ent[11] = 0xe9
		utils.Write[uint32](ent[12:], uint32(int32(pltAddr-(entAddr+16))))
	}
	return nil
}
