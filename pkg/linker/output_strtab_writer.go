package linker

import (
	"debug/elf"
)

// OutputStrtabWriter backs .shstrtab, .strtab and .dynstr. Offset 0 is
// the customary empty string.
type OutputStrtabWriter struct {
	OutputWriter
	content []byte
	offsets map[string]uint32
}

func NewOutputStrtabWriter(name string, alloc bool) *OutputStrtabWriter {
	s := &OutputStrtabWriter{
		OutputWriter: *NewOutputWriter(),
		content:      []byte{0},
		offsets:      map[string]uint32{"": 0},
	}
	s.Name = name
	s.Shdr.Type = uint32(elf.SHT_STRTAB)
	if alloc {
		s.Shdr.Flags = uint64(elf.SHF_ALLOC)
	}
	return s
}

func (s *OutputStrtabWriter) Add(str string) uint32 {
	if off, ok := s.offsets[str]; ok {
		return off
	}
	off := uint32(len(s.content))
	s.content = append(s.content, str...)
	s.content = append(s.content, 0)
	s.offsets[str] = off
	return off
}

func (s *OutputStrtabWriter) Size() uint64 {
	return uint64(len(s.content))
}

func (s *OutputStrtabWriter) UpdateShdr(ctx *Context) {
	s.Shdr.Size = uint64(len(s.content))
}

func (s *OutputStrtabWriter) CopyBuf(ctx *Context) error {
	copy(ctx.Buf[s.Shdr.Offset:], s.content)
	return nil
}
