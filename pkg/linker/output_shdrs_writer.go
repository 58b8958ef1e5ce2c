package linker

import (
	"coldld/pkg/utils"
)

type OutputShdrsWriter struct {
	OutputWriter
}

func NewOutputShdrsWriter() *OutputShdrsWriter {
	o := &OutputShdrsWriter{OutputWriter: *NewOutputWriter()}
	o.Name = "shdr"
	o.Shdr.AddrAlign = 8
	return o
}

func (o *OutputShdrsWriter) UpdateShdr(ctx *Context) {
	n := int64(0)
	for _, chunk := range ctx.Chunks {
		if chunk.GetShndx() > n {
			n = chunk.GetShndx()
		}
	}
	o.Shdr.Size = uint64(n+1) * uint64(ShdrSize)
}

func (o *OutputShdrsWriter) CopyBuf(ctx *Context) error {
	base := ctx.Buf[o.Shdr.Offset:]
	utils.Write[Shdr](base, Shdr{})

	for _, chunk := range ctx.Chunks {
		if chunk.GetShndx() > 0 {
			utils.Write[Shdr](base[chunk.GetShndx()*int64(ShdrSize):], *chunk.GetShdr())
		}
	}
	return nil
}
