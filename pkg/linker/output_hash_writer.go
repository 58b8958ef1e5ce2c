package linker

import (
	"debug/elf"

	"coldld/pkg/utils"
)

// OutputHashWriter is the classic SysV .hash table: header, one bucket
// per symbol, and a chain array parallel to .dynsym.
type OutputHashWriter struct {
	OutputWriter
}

func NewOutputHashWriter() *OutputHashWriter {
	o := &OutputHashWriter{OutputWriter: *NewOutputWriter()}
	o.Name = ".hash"
	o.Shdr.Type = uint32(elf.SHT_HASH)
	o.Shdr.Flags = uint64(elf.SHF_ALLOC)
	o.Shdr.AddrAlign = 8
	o.Shdr.EntSize = 4
	return o
}

func (o *OutputHashWriter) UpdateShdr(ctx *Context) {
	nsyms := uint64(ctx.Dynsym.NumSyms())
	o.Shdr.Size = (2 + nsyms + nsyms) * 4
}

func (o *OutputHashWriter) CopyBuf(ctx *Context) error {
	nsyms := ctx.Dynsym.NumSyms()
	nbuckets := nsyms
	buckets := make([]uint32, nbuckets)
	chains := make([]uint32, nsyms)

	insert := func(sym *Symbol) {
		h := sysvHash(sym.Name) % nbuckets
		idx := uint32(sym.DynsymIdx)
		chains[idx] = buckets[h]
		buckets[h] = idx
	}
	for _, sym := range ctx.Dynsym.Imports {
		insert(sym)
	}
	for _, sym := range ctx.Dynsym.Exports {
		insert(sym)
	}

	base := ctx.Buf[o.Shdr.Offset:]
	utils.Write[uint32](base, nbuckets)
	utils.Write[uint32](base[4:], nsyms)
	for i, b := range buckets {
		utils.Write[uint32](base[8+4*i:], b)
	}
	for i, c := range chains {
		utils.Write[uint32](base[8+4*int(nbuckets)+4*i:], c)
	}
	return nil
}

const gnuHashBloomShift = 26

func gnuHashBuckets(nExports int) uint32 {
	if nExports == 0 {
		return 1
	}
	return uint32(nExports)
}

// OutputGnuHashWriter is .gnu.hash: header, a one-word Bloom filter,
// buckets, and the per-export hash chain. Only the exported tail of
// .dynsym is hashed; imports stay below symoffset.
type OutputGnuHashWriter struct {
	OutputWriter
}

func NewOutputGnuHashWriter() *OutputGnuHashWriter {
	o := &OutputGnuHashWriter{OutputWriter: *NewOutputWriter()}
	o.Name = ".gnu.hash"
	o.Shdr.Type = uint32(elf.SHT_GNU_HASH)
	o.Shdr.Flags = uint64(elf.SHF_ALLOC)
	o.Shdr.AddrAlign = 8
	return o
}

func (o *OutputGnuHashWriter) UpdateShdr(ctx *Context) {
	nExports := len(ctx.Dynsym.Exports)
	o.Shdr.Size = 16 + 8 + uint64(gnuHashBuckets(nExports))*4 + uint64(nExports)*4
}

func (o *OutputGnuHashWriter) CopyBuf(ctx *Context) error {
	exports := ctx.Dynsym.Exports
	nbuckets := gnuHashBuckets(len(exports))

	var bloom uint64
	buckets := make([]uint32, nbuckets)
	chain := make([]uint32, len(exports))

	for i, sym := range exports {
		h := gnuHash(sym.Name)
		bloom |= 1 << (h % 64)
		bloom |= 1 << ((h >> gnuHashBloomShift) % 64)

		b := h % nbuckets
		if buckets[b] == 0 {
			buckets[b] = uint32(sym.DynsymIdx)
		}
		chain[i] = h &^ 1
		// the last entry of each bucket terminates its chain
		if i+1 == len(exports) || gnuHash(exports[i+1].Name)%nbuckets != b {
			chain[i] |= 1
		}
	}

	base := ctx.Buf[o.Shdr.Offset:]
	utils.Write[uint32](base, nbuckets)
	utils.Write[uint32](base[4:], ctx.Dynsym.FirstExport())
	utils.Write[uint32](base[8:], 1) // bloom words
	utils.Write[uint32](base[12:], gnuHashBloomShift)
	utils.Write[uint64](base[16:], bloom)
	for i, b := range buckets {
		utils.Write[uint32](base[24+4*i:], b)
	}
	for i, c := range chain {
		utils.Write[uint32](base[24+4*int(nbuckets)+4*i:], c)
	}
	return nil
}
