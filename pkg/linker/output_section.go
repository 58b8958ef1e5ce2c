package linker

import (
	"debug/elf"
	"strings"

	"coldld/pkg/utils"
)

// output-section identities recognized by name prefix
var outputNamePrefixes = []string{
	".text.", ".rodata.", ".data.rel.ro.", ".data.", ".bss.",
	".init_array.", ".fini_array.", ".tbss.", ".tdata.",
}

func GetOutputName(name string) string {
	for _, prefix := range outputNamePrefixes {
		stem := prefix[:len(prefix)-1]
		if name == stem || strings.HasPrefix(name, prefix) {
			return stem
		}
	}
	return name
}

type OutputSection struct {
	OutputWriter
	Members []*InputSection
	Idx     uint32 // the index in ctx.OutputSections
}

func NewOutputSection(name string, typ uint32, flags uint64, idx uint32) *OutputSection {
	o := &OutputSection{OutputWriter: *NewOutputWriter()}
	o.Name = name
	o.Shdr.Type = typ
	o.Shdr.Flags = flags
	o.Idx = idx
	return o
}

func GetOutputSection(ctx *Context, name string, typ uint32, flags uint64) *OutputSection {
	name = GetOutputName(name)
	flags = flags &^ uint64(elf.SHF_GROUP) &^
		uint64(elf.SHF_COMPRESSED) &^ uint64(elf.SHF_LINK_ORDER) &^
		uint64(elf.SHF_MERGE) &^ uint64(elf.SHF_STRINGS)

	for _, osec := range ctx.OutputSections {
		if name == osec.Name && typ == osec.Shdr.Type && flags == osec.Shdr.Flags {
			return osec
		}
	}

	osec := NewOutputSection(name, typ, flags, uint32(len(ctx.OutputSections)))
	ctx.OutputSections = append(ctx.OutputSections, osec)
	return osec
}

// ComputeMemberOffsets packs the member contributions, bumping a
// cursor up to each member's own alignment.
func (o *OutputSection) ComputeMemberOffsets() {
	offset := uint64(0)
	align := uint64(1)
	for _, isec := range o.Members {
		offset = utils.AlignTo(offset, isec.Shdr.AddrAlign)
		isec.Offset = offset
		offset += isec.Shdr.Size
		if isec.Shdr.AddrAlign > align {
			align = isec.Shdr.AddrAlign
		}
	}
	o.Shdr.Size = offset
	o.Shdr.AddrAlign = align
}

func (o *OutputSection) CopyBuf(ctx *Context) error {
	if o.Shdr.Type != uint32(elf.SHT_NOBITS) {
		base := ctx.Buf[o.Shdr.Offset:]
		for _, isec := range o.Members {
			isec.WriteTo(ctx, base[isec.Offset:])
		}
	}
	for _, isec := range o.Members {
		if err := isec.ApplyRelocations(ctx); err != nil {
			return err
		}
	}
	return nil
}
