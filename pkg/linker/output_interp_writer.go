package linker

import (
	"debug/elf"
)

// OutputInterpWriter is the NUL-terminated PT_INTERP payload.
type OutputInterpWriter struct {
	OutputWriter
}

func NewOutputInterpWriter() *OutputInterpWriter {
	o := &OutputInterpWriter{OutputWriter: *NewOutputWriter()}
	o.Name = ".interp"
	o.Shdr.Type = uint32(elf.SHT_PROGBITS)
	o.Shdr.Flags = uint64(elf.SHF_ALLOC)
	return o
}

func (o *OutputInterpWriter) UpdateShdr(ctx *Context) {
	o.Shdr.Size = uint64(len(ctx.InterpPath()) + 1)
}

func (o *OutputInterpWriter) CopyBuf(ctx *Context) error {
	copy(ctx.Buf[o.Shdr.Offset:], ctx.InterpPath())
	return nil
}
