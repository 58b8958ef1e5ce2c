package linker

import (
	"debug/elf"
	"sort"

	"coldld/pkg/utils"
)

type relativeRef struct {
	isec   *InputSection
	offset uint64
	sym    *Symbol
	addend int64
}

// OutputRelaWriter backs both .rela.dyn (RELATIVE and GLOB_DAT
// records) and .rela.plt (JUMP_SLOT records). Slots are registered
// during relocation scanning; the records are rendered once addresses
// exist.
type OutputRelaWriter struct {
	OutputWriter
	relatives    []relativeRef
	gotRelatives []*Symbol
	globDats     []*Symbol
	jumpSlots    []*Symbol
}

func NewOutputRelaWriter(name string) *OutputRelaWriter {
	o := &OutputRelaWriter{OutputWriter: *NewOutputWriter()}
	o.Name = name
	o.Shdr.Type = uint32(elf.SHT_RELA)
	o.Shdr.Flags = uint64(elf.SHF_ALLOC)
	o.Shdr.AddrAlign = 8
	o.Shdr.EntSize = uint64(RelaSize)
	return o
}

func (o *OutputRelaWriter) AddRelative(isec *InputSection, offset uint64, sym *Symbol, addend int64) {
	o.relatives = append(o.relatives, relativeRef{isec, offset, sym, addend})
	o.Shdr.Size += uint64(RelaSize)
}

func (o *OutputRelaWriter) AddGotRelative(sym *Symbol) {
	o.gotRelatives = append(o.gotRelatives, sym)
	o.Shdr.Size += uint64(RelaSize)
}

func (o *OutputRelaWriter) AddGlobDat(sym *Symbol) {
	o.globDats = append(o.globDats, sym)
	o.Shdr.Size += uint64(RelaSize)
}

func (o *OutputRelaWriter) AddJumpSlot(sym *Symbol) {
	o.jumpSlots = append(o.jumpSlots, sym)
	o.Shdr.Size += uint64(RelaSize)
}

func (o *OutputRelaWriter) CopyBuf(ctx *Context) error {
	relas := make([]Rela, 0,
		len(o.relatives)+len(o.gotRelatives)+len(o.globDats)+len(o.jumpSlots))

	for _, ref := range o.relatives {
		relas = append(relas, Rela{
			Offset: ref.isec.GetAddr() + ref.offset,
			Info:   RelaInfo(0, uint32(elf.R_X86_64_RELATIVE)),
			Addend: int64(ref.sym.GetAddr(ctx)) + ref.addend,
		})
	}
	for _, sym := range o.gotRelatives {
		relas = append(relas, Rela{
			Offset: sym.GotAddr(ctx),
			Info:   RelaInfo(0, uint32(elf.R_X86_64_RELATIVE)),
			Addend: int64(sym.GetAddr(ctx)),
		})
	}
	// the loader likes RELATIVE entries sorted by address
	sort.Slice(relas, func(a, b int) bool {
		return relas[a].Offset < relas[b].Offset
	})

	for _, sym := range o.globDats {
		relas = append(relas, Rela{
			Offset: sym.GotAddr(ctx),
			Info:   RelaInfo(uint32(sym.DynsymIdx), uint32(elf.R_X86_64_GLOB_DAT)),
		})
	}
	for _, sym := range o.jumpSlots {
		relas = append(relas, Rela{
			Offset: ctx.GotPlt.SlotAddr(sym.PltIdx),
			Info:   RelaInfo(uint32(sym.DynsymIdx), uint32(elf.R_X86_64_JMP_SLOT)),
		})
	}

	base := ctx.Buf[o.Shdr.Offset:]
	for _, rela := range relas {
		utils.Write[Rela](base, rela)
		base = base[RelaSize:]
	}
	return nil
}
