package linker

import "debug/elf"

type SymbolKind uint8

const (
	SymbolKindUndef SymbolKind = iota
	SymbolKindDefined
	SymbolKindCommon
	SymbolKindAbs
	SymbolKindExternal // supplied by a shared object
)

const (
	NeedsGot uint32 = 1 << 0
	NeedsPlt uint32 = 1 << 1
)

type Symbol struct {
	Name    string
	Kind    SymbolKind
	Binding uint8
	SymType uint8
	Size    uint64

	// Defined: containing section plus offset within it.
	File         *ObjectFile
	InputSection *InputSection
	Value        uint64

	// External: the supplying shared object.
	Shared *SharedFile

	Flags     uint32
	GotIdx    int32
	PltIdx    int32
	DynsymIdx int32
	DynstrOff uint32
}

func NewSymbol(name string) *Symbol {
	return &Symbol{
		Name:      name,
		Binding:   uint8(elf.STB_GLOBAL),
		GotIdx:    -1,
		PltIdx:    -1,
		DynsymIdx: -1,
	}
}

func (s *Symbol) IsWeak() bool {
	return s.Binding == uint8(elf.STB_WEAK)
}

func (s *Symbol) IsUndef() bool {
	return s.Kind == SymbolKindUndef
}

func (s *Symbol) IsImported() bool {
	return s.Kind == SymbolKindExternal
}

// GetAddr is the symbol's final virtual address. Valid after layout.
// Unresolved weak references read as 0; an imported function reads as
// its PLT stub so direct calls route through the dynamic loader.
func (s *Symbol) GetAddr(ctx *Context) uint64 {
	switch s.Kind {
	case SymbolKindDefined:
		return s.InputSection.GetAddr() + s.Value
	case SymbolKindAbs:
		return s.Value
	}
	if s.PltIdx >= 0 {
		return ctx.Plt.EntryAddr(s.PltIdx)
	}
	return 0
}

// GotAddr is the address of the symbol's .got slot. Valid after layout
// and only when a slot was allocated during relocation scanning.
func (s *Symbol) GotAddr(ctx *Context) uint64 {
	return ctx.Got.Shdr.Addr + uint64(s.GotIdx)*8
}
