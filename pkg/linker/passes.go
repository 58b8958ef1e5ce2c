package linker

import (
	"debug/elf"
	"os"

	"coldld/pkg/utils"
)

// Link runs every pass over an already-loaded context and writes the
// output image. The first error aborts; nothing has been created on
// disk before the final write.
func Link(ctx *Context) error {
	if err := ResolveSymbols(ctx); err != nil {
		return err
	}
	ConvertCommonSymbols(ctx)
	BinSections(ctx)
	ComputeSectionSizes(ctx)
	CreateSyntheticSections(ctx)
	if err := ScanRelocations(ctx); err != nil {
		return err
	}
	PrepareDynamic(ctx)
	CollectChunks(ctx)
	AssignSectionIndices(ctx)
	UpdateShdrs(ctx)
	fileSize := SetOutputSectionOffsets(ctx)
	if err := ValidateLayout(ctx, fileSize); err != nil {
		return err
	}
	return WriteOutput(ctx, fileSize)
}

// ReadInputFiles processes the post-option command line in order:
// object files, shared objects, -lNAME lookups and the as-needed
// markers emitted by the argument parser.
func ReadInputFiles(ctx *Context, remaining []string) error {
	asNeeded := false
	for _, arg := range remaining {
		switch arg {
		case "--as-needed":
			asNeeded = true
			continue
		case "--no-as-needed":
			asNeeded = false
			continue
		}

		var file *File
		var err error
		if name, ok := utils.RemovePrefix(arg, "-l"); ok {
			file, err = FindLibrary(ctx, name)
		} else {
			file, err = NewFile(arg)
		}
		if err != nil {
			return err
		}
		if err := readFile(ctx, file, asNeeded); err != nil {
			return err
		}
	}
	return nil
}

func readFile(ctx *Context, file *File, asNeeded bool) error {
	switch GetFileTypeFromContent(file.Content) {
	case FileTypeObject:
		obj, err := NewObjectFile(ctx, file)
		if err != nil {
			return err
		}
		ctx.Objs = append(ctx.Objs, obj)
	case FileTypeSharedObject:
		so, err := NewSharedFile(ctx, file, asNeeded)
		if err != nil {
			return err
		}
		ctx.SharedFiles = append(ctx.SharedFiles, so)
	default:
		return linkErrorf(ErrBadInput, "%s: unknown file type", file.Name)
	}
	return nil
}

// ResolveSymbols applies the ordered override rules across all inputs,
// then hands what is still undefined to the shared objects in load
// order. Whatever survives that is either a tolerated weak reference
// or a link failure.
func ResolveSymbols(ctx *Context) error {
	for _, obj := range ctx.Objs {
		if err := obj.ResolveSymbols(ctx); err != nil {
			return err
		}
	}

	for _, obj := range ctx.Objs {
		for i := int(obj.FirstGlobal); i < len(obj.ElfSyms); i++ {
			sym := obj.Symbols[i]
			if sym.Kind != SymbolKindUndef {
				continue
			}
			for _, so := range ctx.SharedFiles {
				esym := so.FindExport(sym.Name)
				if esym == nil {
					continue
				}
				sym.Kind = SymbolKindExternal
				sym.Shared = so
				sym.SymType = esym.Type()
				sym.Size = esym.Size
				break
			}
		}
	}

	for _, obj := range ctx.Objs {
		obj.MarkNeededSharedFiles()
	}

	// a strong reference with no supplier anywhere is fatal, except
	// when building a shared object that may be completed later
	if !ctx.Args.Shared {
		for _, obj := range ctx.Objs {
			for i := int(obj.FirstGlobal); i < len(obj.ElfSyms); i++ {
				esym := &obj.ElfSyms[i]
				sym := obj.Symbols[i]
				if esym.IsUndef() && sym.Kind == SymbolKindUndef &&
					esym.Binding() != uint8(elf.STB_WEAK) {
					return linkErrorf(ErrUndefinedSymbol, "%s: referenced by %s",
						sym.Name, obj.File.Name)
				}
			}
		}
	}
	return nil
}

// ConvertCommonSymbols turns the surviving tentative definitions into
// zero-filled .bss contributions owned by the object that supplied the
// largest instance.
func ConvertCommonSymbols(ctx *Context) {
	for _, obj := range ctx.Objs {
		for i := int(obj.FirstGlobal); i < len(obj.ElfSyms); i++ {
			sym := obj.Symbols[i]
			if sym.Kind != SymbolKindCommon || sym.File != obj {
				continue
			}
			isec := NewCommonSection(obj, sym.Size, sym.Value)
			obj.Sections = append(obj.Sections, isec)
			sym.Kind = SymbolKindDefined
			sym.InputSection = isec
			sym.Value = 0
		}
	}
}

// BinSections groups input sections into their output identity,
// preserving command-line order of inputs and header order within an
// input.
func BinSections(ctx *Context) {
	for _, obj := range ctx.Objs {
		for _, isec := range obj.Sections {
			if isec == nil {
				continue
			}
			osec := GetOutputSection(ctx, isec.Name, isec.Shdr.Type, isec.Shdr.Flags)
			isec.OutputSection = osec
			osec.Members = append(osec.Members, isec)
		}
	}
}

func ComputeSectionSizes(ctx *Context) {
	for _, osec := range ctx.OutputSections {
		osec.ComputeMemberOffsets()
	}
}

func CreateSyntheticSections(ctx *Context) {
	ctx.Ehdr = NewOutputEhdrWriter()
	ctx.Phdr = NewOutputPhdrsWriter()
	ctx.Shdr = NewOutputShdrsWriter()
	ctx.Shstrtab = NewOutputStrtabWriter(".shstrtab", false)
	ctx.Symtab = NewOutputSymtabWriter()
	ctx.Strtab = NewOutputStrtabWriter(".strtab", false)

	ctx.Got = NewOutputGotWriter()
	ctx.GotPlt = NewOutputGotPltWriter()
	ctx.Plt = NewOutputPltWriter()
	ctx.RelaDyn = NewOutputRelaWriter(".rela.dyn")
	ctx.RelaPlt = NewOutputRelaWriter(".rela.plt")

	if ctx.IsDynamic() {
		if !ctx.Args.Shared {
			ctx.Interp = NewOutputInterpWriter()
		}
		ctx.Dynsym = NewOutputDynsymWriter()
		ctx.Dynstr = NewOutputStrtabWriter(".dynstr", true)
		if ctx.Args.HashStyle.Sysv() {
			ctx.Hash = NewOutputHashWriter()
		}
		if ctx.Args.HashStyle.Gnu() {
			ctx.GnuHash = NewOutputGnuHashWriter()
		}
		ctx.Dynamic = NewOutputDynamicWriter()
	}
}

// ScanRelocations sizes the PLT, the GOT and the dynamic relocation
// tables before layout runs.
func ScanRelocations(ctx *Context) error {
	for _, obj := range ctx.Objs {
		for _, isec := range obj.Sections {
			if isec == nil {
				continue
			}
			if err := isec.ScanRelocations(ctx); err != nil {
				return err
			}
		}
	}

	seen := make(map[*Symbol]bool)
	for _, obj := range ctx.Objs {
		for i := int(obj.FirstGlobal); i < len(obj.ElfSyms); i++ {
			sym := obj.Symbols[i]
			if sym.Flags == 0 || seen[sym] {
				continue
			}
			seen[sym] = true

			if sym.Flags&NeedsPlt != 0 {
				ctx.Plt.AddSymbol(ctx, sym)
			}
			if sym.Flags&NeedsGot != 0 {
				ctx.Got.AddGotSymbol(ctx, sym)
			}
			if sym.IsImported() || (sym.IsUndef() && ctx.IsDynamic()) {
				ctx.Dynsym.AddImport(ctx, sym)
			}
			sym.Flags = 0
		}
	}
	return nil
}

// PrepareDynamic settles everything .dynamic refers to: the export
// set, the DT_NEEDED list and the final .dynsym order.
func PrepareDynamic(ctx *Context) {
	if !ctx.IsDynamic() {
		return
	}

	if ctx.Args.Shared {
		seen := make(map[*Symbol]bool)
		for _, obj := range ctx.Objs {
			for i := int(obj.FirstGlobal); i < len(obj.ElfSyms); i++ {
				sym := obj.Symbols[i]
				if seen[sym] {
					continue
				}
				seen[sym] = true
				if sym.Kind == SymbolKindDefined || sym.Kind == SymbolKindAbs {
					ctx.Dynsym.AddExport(ctx, sym)
				}
			}
		}
	}

	for _, so := range ctx.SharedFiles {
		if !so.IsNeeded {
			continue
		}
		ctx.Dynamic.NeededOffs = append(ctx.Dynamic.NeededOffs, ctx.Dynstr.Add(so.Soname))
		// transitive dependencies only need to exist somewhere the
		// runtime loader will look; -rpath-link lets us check early
		for _, dep := range so.Needed {
			FindDependency(ctx, dep)
		}
	}
	if ctx.Args.Soname != "" {
		ctx.Dynamic.HasSoname = true
		ctx.Dynamic.SonameOff = ctx.Dynstr.Add(ctx.Args.Soname)
	}

	ctx.Dynsym.Finalize(ctx)
}

func chunkRank(ctx *Context, chunk iOutputWriter) int {
	switch chunk {
	case ctx.Ehdr:
		return 0
	case ctx.Phdr:
		return 1
	case ctx.Shdr:
		return 1 << 30
	}

	shdr := chunk.GetShdr()
	if shdr.Flags&uint64(elf.SHF_ALLOC) == 0 {
		switch chunk.GetName() {
		case ".shstrtab":
			return 1<<29 + 0
		case ".symtab":
			return 1<<29 + 1
		}
		return 1<<29 + 2
	}

	switch chunk.GetName() {
	case ".interp":
		return 2
	case ".hash":
		return 3
	case ".gnu.hash":
		return 4
	case ".dynsym":
		return 5
	case ".dynstr":
		return 6
	case ".rela.dyn":
		return 7
	case ".rela.plt":
		return 8
	case ".plt":
		return 9
	case ".text":
		return 10
	case ".dynamic":
		return 20
	case ".got":
		return 21
	case ".got.plt":
		return 22
	}

	writable := shdr.Flags&uint64(elf.SHF_WRITE) != 0
	nobits := shdr.Type == uint32(elf.SHT_NOBITS)
	switch {
	case !writable:
		return 11 // read-only data after .text
	case nobits:
		return 30 // .bss is the tail of the writable image
	default:
		return 23
	}
}

// CollectChunks assembles the output order: headers, the read-only
// then executable image, the writable image with NOBITS at its tail,
// and the non-allocated tables last.
func CollectChunks(ctx *Context) {
	chunks := []iOutputWriter{ctx.Ehdr, ctx.Phdr}

	if ctx.Interp != nil {
		chunks = append(chunks, ctx.Interp)
	}
	if ctx.IsDynamic() {
		if ctx.Hash != nil {
			chunks = append(chunks, ctx.Hash)
		}
		if ctx.GnuHash != nil {
			chunks = append(chunks, ctx.GnuHash)
		}
		chunks = append(chunks, ctx.Dynsym, ctx.Dynstr, ctx.Dynamic)
	}
	if ctx.RelaDyn.Shdr.Size > 0 {
		chunks = append(chunks, ctx.RelaDyn)
	}
	if len(ctx.Plt.Syms) > 0 {
		chunks = append(chunks, ctx.RelaPlt, ctx.Plt, ctx.GotPlt)
	}
	if len(ctx.Got.Syms) > 0 {
		chunks = append(chunks, ctx.Got)
	}
	for _, osec := range ctx.OutputSections {
		if len(osec.Members) > 0 {
			chunks = append(chunks, osec)
		}
	}
	chunks = append(chunks, ctx.Shstrtab, ctx.Symtab, ctx.Strtab, ctx.Shdr)

	sortChunks(ctx, chunks)
	ctx.Chunks = chunks
}

func sortChunks(ctx *Context, chunks []iOutputWriter) {
	// insertion keeps equal ranks in collection order
	for i := 1; i < len(chunks); i++ {
		for j := i; j > 0 && chunkRank(ctx, chunks[j-1]) > chunkRank(ctx, chunks[j]); j-- {
			chunks[j-1], chunks[j] = chunks[j], chunks[j-1]
		}
	}
}

// AssignSectionIndices numbers the real sections, names them in
// .shstrtab and wires the cross-section link fields.
func AssignSectionIndices(ctx *Context) {
	idx := int64(1)
	for _, chunk := range ctx.Chunks {
		switch chunk {
		case ctx.Ehdr, ctx.Phdr, ctx.Shdr:
			continue
		}
		chunk.SetShndx(idx)
		chunk.GetShdr().Name = ctx.Shstrtab.Add(chunk.GetName())
		idx++
	}

	ctx.Symtab.Collect(ctx)
	ctx.Symtab.Shdr.Link = uint32(ctx.Strtab.Shndx)

	if ctx.IsDynamic() {
		ctx.Dynsym.Shdr.Link = uint32(ctx.Dynstr.Shndx)
		ctx.Dynamic.Shdr.Link = uint32(ctx.Dynstr.Shndx)
		if ctx.Hash != nil {
			ctx.Hash.Shdr.Link = uint32(ctx.Dynsym.Shndx)
		}
		if ctx.GnuHash != nil {
			ctx.GnuHash.Shdr.Link = uint32(ctx.Dynsym.Shndx)
		}
		ctx.RelaDyn.Shdr.Link = uint32(ctx.Dynsym.Shndx)
		ctx.RelaPlt.Shdr.Link = uint32(ctx.Dynsym.Shndx)
		ctx.RelaPlt.Shdr.Info = uint32(ctx.GotPlt.Shndx)
	}
}

func UpdateShdrs(ctx *Context) {
	for _, chunk := range ctx.Chunks {
		chunk.UpdateShdr(ctx)
	}
}

// SetOutputSectionOffsets assigns virtual addresses and file offsets.
// For every allocated chunk the file offset mirrors the address
// distance from the base, which keeps p_offset and p_vaddr congruent
// modulo the page size; the writable image starts on a fresh page.
func SetOutputSectionOffsets(ctx *Context) uint64 {
	addr := ctx.BaseAddr()
	base := addr

	var prevFlags uint32
	first := true
	for _, chunk := range ctx.Chunks {
		if !isAlloc(chunk) {
			break
		}
		shdr := chunk.GetShdr()
		flags := loadFlags(chunk)
		if !first && flags != prevFlags {
			addr = utils.AlignTo(addr, PageSize)
		}
		first = false
		prevFlags = flags

		addr = utils.AlignTo(addr, shdr.AddrAlign)
		shdr.Addr = addr
		addr += shdr.Size
	}

	fileoff := uint64(0)
	for _, chunk := range ctx.Chunks {
		shdr := chunk.GetShdr()
		switch {
		case isAlloc(chunk) && !isBSS(chunk):
			shdr.Offset = shdr.Addr - base
			fileoff = shdr.Offset + shdr.Size
		case isAlloc(chunk):
			shdr.Offset = shdr.Addr - base // NOBITS holds no file bytes
		default:
			fileoff = utils.AlignTo(fileoff, shdr.AddrAlign)
			shdr.Offset = fileoff
			fileoff += shdr.Size
		}
	}

	// rebuild the segment records with the final numbers
	ctx.Phdr.UpdateShdr(ctx)
	return fileoff
}

// ValidateLayout re-checks the invariants the rest of the pipeline
// relies on. A failure here is a linker bug, not an input problem.
func ValidateLayout(ctx *Context, fileSize uint64) error {
	var loads []Phdr
	for _, phdr := range ctx.Phdr.Phdrs {
		if phdr.Type == uint32(elf.PT_LOAD) {
			loads = append(loads, phdr)
		}
	}
	for i, phdr := range loads {
		if phdr.VAddr%phdr.Align != phdr.Offset%phdr.Align {
			return linkErrorf(ErrInternalLayout,
				"PT_LOAD %d: vaddr %#x and offset %#x are not congruent", i, phdr.VAddr, phdr.Offset)
		}
		if phdr.FileSize > phdr.MemSize {
			return linkErrorf(ErrInternalLayout, "PT_LOAD %d: file size exceeds memory size", i)
		}
		if i > 0 && loads[i-1].VAddr+loads[i-1].MemSize > phdr.VAddr {
			return linkErrorf(ErrInternalLayout, "PT_LOAD %d overlaps its predecessor", i)
		}
	}

	for _, chunk := range ctx.Chunks {
		shdr := chunk.GetShdr()
		if isBSS(chunk) {
			continue
		}
		if shdr.Offset+shdr.Size > fileSize {
			return linkErrorf(ErrInternalLayout,
				"%s: section window [%#x, %#x) exceeds file size %#x",
				chunk.GetName(), shdr.Offset, shdr.Offset+shdr.Size, fileSize)
		}
		if isAlloc(chunk) && shdr.AddrAlign > 1 && shdr.Addr%shdr.AddrAlign != 0 {
			return linkErrorf(ErrInternalLayout,
				"%s: address %#x breaks its own alignment %d",
				chunk.GetName(), shdr.Addr, shdr.AddrAlign)
		}
	}
	return nil
}

// WriteOutput serializes every chunk and writes the image in one shot.
// The output path is only touched after the whole image exists in
// memory; a failed write removes the leftovers.
func WriteOutput(ctx *Context, fileSize uint64) error {
	ctx.Buf = make([]byte, fileSize)
	for _, chunk := range ctx.Chunks {
		if err := chunk.CopyBuf(ctx); err != nil {
			return err
		}
	}

	if err := os.WriteFile(ctx.Args.Output, ctx.Buf, 0755); err != nil {
		os.Remove(ctx.Args.Output)
		return linkErrorf(ErrIo, "cannot write %s: %v", ctx.Args.Output, err)
	}
	return nil
}
