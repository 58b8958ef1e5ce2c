package linker

type HashStyle uint8

const (
	HashStyleBoth HashStyle = iota
	HashStyleSysv
	HashStyleGnu
)

func (h HashStyle) Sysv() bool { return h == HashStyleSysv || h == HashStyleBoth }
func (h HashStyle) Gnu() bool  { return h == HashStyleGnu || h == HashStyleBoth }

type ContextArgs struct {
	Output        string
	Machine       MachineType
	Shared        bool
	Pie           bool
	DynamicLinker string
	Soname        string
	HashStyle     HashStyle
	LibraryPaths  []string
	RpathLink     []string
}

type Context struct {
	Args ContextArgs
	Buf  []byte

	Objs        []*ObjectFile
	SharedFiles []*SharedFile
	SymbolMap   map[string]*Symbol

	OutputSections []*OutputSection
	Chunks         []iOutputWriter

	Ehdr     *OutputEhdrWriter
	Phdr     *OutputPhdrsWriter
	Shdr     *OutputShdrsWriter
	Interp   *OutputInterpWriter
	Hash     *OutputHashWriter
	GnuHash  *OutputGnuHashWriter
	Dynsym   *OutputDynsymWriter
	Dynstr   *OutputStrtabWriter
	RelaDyn  *OutputRelaWriter
	RelaPlt  *OutputRelaWriter
	Plt      *OutputPltWriter
	Got      *OutputGotWriter
	GotPlt   *OutputGotPltWriter
	Dynamic  *OutputDynamicWriter
	Shstrtab *OutputStrtabWriter
	Symtab   *OutputSymtabWriter
	Strtab   *OutputStrtabWriter
}

func NewContext() *Context {
	return &Context{
		Args: ContextArgs{
			Output:    "a.out",
			Machine:   MachineTypeNone,
			HashStyle: HashStyleBoth,
		},
		SymbolMap: make(map[string]*Symbol),
	}
}

// GetSymbol interns a global symbol by name. Locals never go through
// here.
func (ctx *Context) GetSymbol(name string) *Symbol {
	if sym, ok := ctx.SymbolMap[name]; ok {
		return sym
	}
	sym := NewSymbol(name)
	ctx.SymbolMap[name] = sym
	return sym
}

// IsDynamic reports whether the output needs a dynamic section and its
// companions.
func (ctx *Context) IsDynamic() bool {
	return len(ctx.SharedFiles) > 0 || ctx.Args.Shared ||
		ctx.Args.DynamicLinker != ""
}

// IsPic reports whether the output image is loaded at an arbitrary
// base (PIE or DSO).
func (ctx *Context) IsPic() bool {
	return ctx.Args.Shared || ctx.Args.Pie
}

func (ctx *Context) BaseAddr() uint64 {
	if ctx.IsPic() {
		return 0
	}
	return ImageBase
}

func (ctx *Context) InterpPath() string {
	if ctx.Args.DynamicLinker != "" {
		return ctx.Args.DynamicLinker
	}
	return DefaultInterp
}
