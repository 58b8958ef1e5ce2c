package linker

import (
	"debug/elf"

	"coldld/pkg/utils"
)

// OutputDynamicWriter is .dynamic. The tag set is fixed once the
// synthetic sections exist, so sizing and serialization share one
// builder; only the values change when addresses land.
type OutputDynamicWriter struct {
	OutputWriter
	NeededOffs []uint32 // .dynstr offsets of DT_NEEDED sonames
	SonameOff  uint32
	HasSoname  bool
}

func NewOutputDynamicWriter() *OutputDynamicWriter {
	o := &OutputDynamicWriter{OutputWriter: *NewOutputWriter()}
	o.Name = ".dynamic"
	o.Shdr.Type = uint32(elf.SHT_DYNAMIC)
	o.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_WRITE)
	o.Shdr.AddrAlign = 8
	o.Shdr.EntSize = uint64(DynSize)
	return o
}

func (o *OutputDynamicWriter) makeEntries(ctx *Context) []Dyn {
	entries := make([]Dyn, 0, len(o.NeededOffs)+16)
	tag := func(t elf.DynTag, val uint64) {
		entries = append(entries, Dyn{Tag: uint64(t), Val: val})
	}

	for _, off := range o.NeededOffs {
		tag(elf.DT_NEEDED, uint64(off))
	}
	if o.HasSoname {
		tag(elf.DT_SONAME, uint64(o.SonameOff))
	}
	if ctx.Hash != nil {
		tag(elf.DT_HASH, ctx.Hash.Shdr.Addr)
	}
	if ctx.GnuHash != nil {
		tag(elf.DT_GNU_HASH, ctx.GnuHash.Shdr.Addr)
	}
	tag(elf.DT_STRTAB, ctx.Dynstr.Shdr.Addr)
	tag(elf.DT_SYMTAB, ctx.Dynsym.Shdr.Addr)
	tag(elf.DT_STRSZ, ctx.Dynstr.Size())
	tag(elf.DT_SYMENT, uint64(SymSize))
	if ctx.RelaDyn.Shdr.Size > 0 {
		tag(elf.DT_RELA, ctx.RelaDyn.Shdr.Addr)
		tag(elf.DT_RELASZ, ctx.RelaDyn.Shdr.Size)
		tag(elf.DT_RELAENT, uint64(RelaSize))
	}
	if len(ctx.Plt.Syms) > 0 {
		tag(elf.DT_PLTGOT, ctx.GotPlt.Shdr.Addr)
		tag(elf.DT_PLTRELSZ, ctx.RelaPlt.Shdr.Size)
		tag(elf.DT_PLTREL, uint64(elf.DT_RELA))
		tag(elf.DT_JMPREL, ctx.RelaPlt.Shdr.Addr)
	}
	tag(elf.DT_NULL, 0)
	return entries
}

func (o *OutputDynamicWriter) UpdateShdr(ctx *Context) {
	o.Shdr.Size = uint64(len(o.makeEntries(ctx))) * uint64(DynSize)
}

func (o *OutputDynamicWriter) CopyBuf(ctx *Context) error {
	entries := o.makeEntries(ctx)
	if uint64(len(entries))*uint64(DynSize) != o.Shdr.Size {
		return linkErrorf(ErrInternalLayout, ".dynamic entry count changed after layout")
	}
	base := ctx.Buf[o.Shdr.Offset:]
	for _, dyn := range entries {
		utils.Write[Dyn](base, dyn)
		base = base[DynSize:]
	}
	return nil
}
