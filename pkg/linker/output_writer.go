package linker

// Every piece of the output file, merged or synthesized, is an
// iOutputWriter. UpdateShdr fixes the chunk's size before layout;
// CopyBuf serializes it into the laid-out buffer.
type iOutputWriter interface {
	GetName() string
	GetShdr() *Shdr
	GetShndx() int64
	SetShndx(idx int64)
	UpdateShdr(ctx *Context)
	CopyBuf(ctx *Context) error
}

type OutputWriter struct {
	Name  string
	Shdr  Shdr
	Shndx int64 // output section header index; 0 keeps it out of the table
}

func NewOutputWriter() *OutputWriter {
	return &OutputWriter{
		Shdr: Shdr{
			AddrAlign: 1,
		},
	}
}

func (o *OutputWriter) GetName() string {
	return o.Name
}

func (o *OutputWriter) GetShdr() *Shdr {
	return &o.Shdr
}

func (o *OutputWriter) GetShndx() int64 {
	return o.Shndx
}

func (o *OutputWriter) SetShndx(idx int64) {
	o.Shndx = idx
}

func (o *OutputWriter) UpdateShdr(ctx *Context) {}

func (o *OutputWriter) CopyBuf(ctx *Context) error {
	return nil
}
