package linker

import (
	"debug/elf"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"coldld/pkg/utils"
)

// test object builder: assembles a minimal but fully valid ET_REL
// x86-64 file out of section, symbol and relocation descriptions

type tSec struct {
	name  string
	typ   uint32
	flags uint64
	align uint64
	data  []byte
	size  uint64 // NOBITS only
}

type tSym struct {
	name  string
	local bool
	bind  uint8
	typ   uint8
	sec   string // section name, "" (undefined), "*ABS*" or "*COM*"
	value uint64
	size  uint64
}

type tRela struct {
	sec    string
	offset uint64
	typ    elf.R_X86_64
	sym    string
	addend int64
}

func buildObject(t *testing.T, secs []tSec, syms []tSym, relas []tRela) []byte {
	t.Helper()

	shstrtab := []byte{0}
	shName := func(n string) uint32 {
		off := uint32(len(shstrtab))
		shstrtab = append(shstrtab, n...)
		shstrtab = append(shstrtab, 0)
		return off
	}
	strtab := []byte{0}
	symName := func(n string) uint32 {
		if n == "" {
			return 0
		}
		off := uint32(len(strtab))
		strtab = append(strtab, n...)
		strtab = append(strtab, 0)
		return off
	}

	secIdx := map[string]uint16{}
	for i, sec := range secs {
		secIdx[sec.name] = uint16(i + 1)
	}

	// null, locals, globals
	ordered := make([]tSym, 0, len(syms))
	for _, sym := range syms {
		if sym.local {
			ordered = append(ordered, sym)
		}
	}
	firstGlobal := uint32(1 + len(ordered))
	for _, sym := range syms {
		if !sym.local {
			ordered = append(ordered, sym)
		}
	}
	symIdx := map[string]uint32{}
	for i, sym := range ordered {
		symIdx[sym.name] = uint32(i + 1)
	}

	symtab := make([]byte, (1+len(ordered))*SymSize)
	for i, sym := range ordered {
		bind := sym.bind
		if sym.local {
			bind = uint8(elf.STB_LOCAL)
		}
		esym := Sym{
			Name: symName(sym.name),
			Info: bind<<4 | sym.typ,
			Val:  sym.value,
			Size: sym.size,
		}
		switch sym.sec {
		case "":
			esym.Shndx = uint16(elf.SHN_UNDEF)
		case "*ABS*":
			esym.Shndx = uint16(elf.SHN_ABS)
		case "*COM*":
			esym.Shndx = uint16(elf.SHN_COMMON)
		default:
			esym.Shndx = secIdx[sym.sec]
		}
		utils.Write[Sym](symtab[(1+i)*SymSize:], esym)
	}

	type rawSec struct {
		shdr Shdr
		data []byte
	}
	raws := []rawSec{{}}
	for _, sec := range secs {
		size := uint64(len(sec.data))
		if sec.typ == uint32(elf.SHT_NOBITS) {
			size = sec.size
		}
		align := sec.align
		if align == 0 {
			align = 1
		}
		raws = append(raws, rawSec{
			shdr: Shdr{
				Name:      shName(sec.name),
				Type:      sec.typ,
				Flags:     sec.flags,
				Size:      size,
				AddrAlign: align,
			},
			data: sec.data,
		})
	}

	symtabIdx := uint32(len(raws) + countRelaSecs(secs, relas))
	strtabIdx := symtabIdx + 1
	shstrtabIdx := strtabIdx + 1

	for _, sec := range secs {
		var data []byte
		for _, rela := range relas {
			if rela.sec != sec.name {
				continue
			}
			record := make([]byte, RelaSize)
			utils.Write[Rela](record, Rela{
				Offset: rela.offset,
				Info:   RelaInfo(symIdx[rela.sym], uint32(rela.typ)),
				Addend: rela.addend,
			})
			data = append(data, record...)
		}
		if data == nil {
			continue
		}
		raws = append(raws, rawSec{
			shdr: Shdr{
				Name:      shName(".rela" + sec.name),
				Type:      uint32(elf.SHT_RELA),
				Link:      symtabIdx,
				Info:      uint32(secIdx[sec.name]),
				Size:      uint64(len(data)),
				AddrAlign: 8,
				EntSize:   uint64(RelaSize),
			},
			data: data,
		})
	}

	raws = append(raws,
		rawSec{
			shdr: Shdr{
				Name:      shName(".symtab"),
				Type:      uint32(elf.SHT_SYMTAB),
				Link:      strtabIdx,
				Info:      firstGlobal,
				Size:      uint64(len(symtab)),
				AddrAlign: 8,
				EntSize:   uint64(SymSize),
			},
			data: symtab,
		},
		rawSec{
			shdr: Shdr{
				Name:      shName(".strtab"),
				Type:      uint32(elf.SHT_STRTAB),
				Size:      uint64(len(strtab)),
				AddrAlign: 1,
			},
			data: strtab,
		},
	)
	shstrtabName := shName(".shstrtab")
	raws = append(raws, rawSec{
		shdr: Shdr{
			Name:      shstrtabName,
			Type:      uint32(elf.SHT_STRTAB),
			Size:      uint64(len(shstrtab)),
			AddrAlign: 1,
		},
		data: shstrtab,
	})

	cursor := uint64(EhdrSize)
	for i := 1; i < len(raws); i++ {
		if raws[i].shdr.Type == uint32(elf.SHT_NOBITS) {
			raws[i].shdr.Offset = cursor
			continue
		}
		cursor = utils.AlignTo(cursor, 8)
		raws[i].shdr.Offset = cursor
		cursor += uint64(len(raws[i].data))
	}
	shOff := utils.AlignTo(cursor, 8)

	out := make([]byte, shOff+uint64(len(raws)*ShdrSize))
	ehdr := Ehdr{
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		ShOff:     shOff,
		EhSize:    uint16(EhdrSize),
		ShEntSize: uint16(ShdrSize),
		ShNum:     uint16(len(raws)),
		ShStrndx:  uint16(shstrtabIdx),
	}
	WriteMagic(ehdr.Ident[:])
	ehdr.Ident[elf.EI_CLASS] = uint8(elf.ELFCLASS64)
	ehdr.Ident[elf.EI_DATA] = uint8(elf.ELFDATA2LSB)
	ehdr.Ident[elf.EI_VERSION] = uint8(elf.EV_CURRENT)
	utils.Write[Ehdr](out, ehdr)
	for i := 1; i < len(raws); i++ {
		if raws[i].shdr.Type != uint32(elf.SHT_NOBITS) {
			copy(out[raws[i].shdr.Offset:], raws[i].data)
		}
	}
	for i, raw := range raws {
		utils.Write[Shdr](out[shOff+uint64(i*ShdrSize):], raw.shdr)
	}
	return out
}

func countRelaSecs(secs []tSec, relas []tRela) int {
	n := 0
	for _, sec := range secs {
		for _, rela := range relas {
			if rela.sec == sec.name {
				n++
				break
			}
		}
	}
	return n
}

// driver helpers

func writeInput(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runLink(t *testing.T, out string, args ...string) error {
	t.Helper()
	ctx := NewContext()
	remaining := ParseArgs(ctx, append([]string{"-o", out}, args...))
	if err := ReadInputFiles(ctx, remaining); err != nil {
		return err
	}
	return Link(ctx)
}

func mustLink(t *testing.T, out string, args ...string) *elf.File {
	t.Helper()
	if err := runLink(t, out, args...); err != nil {
		t.Fatalf("link failed: %v", err)
	}
	f, err := elf.Open(out)
	if err != nil {
		t.Fatalf("output does not parse: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func wantKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	var le *LinkError
	if !errors.As(err, &le) {
		t.Fatalf("got error %v, want LinkError of kind %v", err, kind)
	}
	if le.Kind != kind {
		t.Fatalf("got error kind %v (%v), want %v", le.Kind, le, kind)
	}
}

func findSym(t *testing.T, f *elf.File, name string) elf.Symbol {
	t.Helper()
	syms, err := f.Symbols()
	if err != nil {
		t.Fatal(err)
	}
	for _, sym := range syms {
		if sym.Name == name {
			return sym
		}
	}
	t.Fatalf("symbol %s not found in output", name)
	return elf.Symbol{}
}

func readWord32(t *testing.T, f *elf.File, vaddr uint64) int32 {
	t.Helper()
	for _, sec := range f.Sections {
		if sec.Type == elf.SHT_NOBITS || sec.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		if vaddr >= sec.Addr && vaddr+4 <= sec.Addr+sec.Size {
			data, err := sec.Data()
			if err != nil {
				t.Fatal(err)
			}
			off := vaddr - sec.Addr
			return int32(uint32(data[off]) | uint32(data[off+1])<<8 |
				uint32(data[off+2])<<16 | uint32(data[off+3])<<24)
		}
	}
	t.Fatalf("no section covers address %#x", vaddr)
	return 0
}

// sample programs

var textStub = []byte{
	0xb8, 0x3c, 0x00, 0x00, 0x00, // mov $60, %eax
	0x31, 0xff, // xor %edi, %edi
	0x0f, 0x05, // syscall
}

func startObject(t *testing.T) []byte {
	return buildObject(t,
		[]tSec{{name: ".text", typ: uint32(elf.SHT_PROGBITS),
			flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR), align: 16, data: textStub}},
		[]tSym{{name: "_start", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_FUNC),
			sec: ".text", size: uint64(len(textStub))}},
		nil)
}

// tests

func TestLinkStaticExecutable(t *testing.T) {
	dir := t.TempDir()
	obj := writeInput(t, dir, "start.o", startObject(t))
	out := filepath.Join(dir, "start")

	f := mustLink(t, out, obj)

	if f.Type != elf.ET_EXEC {
		t.Errorf("e_type = %v, want ET_EXEC", f.Type)
	}
	start := findSym(t, f, "_start")
	if f.Entry != start.Value {
		t.Errorf("e_entry = %#x, want _start at %#x", f.Entry, start.Value)
	}
	if f.Entry < ImageBase {
		t.Errorf("entry %#x below image base", f.Entry)
	}

	text := f.Section(".text")
	if text == nil {
		t.Fatal("no .text in output")
	}
	data, err := text.Data()
	if err != nil {
		t.Fatal(err)
	}
	if string(data[:len(textStub)]) != string(textStub) {
		t.Error(".text content does not match the input contribution")
	}
}

func TestLoadSegmentInvariants(t *testing.T) {
	dir := t.TempDir()
	obj := writeInput(t, dir, "start.o", buildObject(t,
		[]tSec{
			{name: ".text", typ: uint32(elf.SHT_PROGBITS),
				flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR), align: 16, data: textStub},
			{name: ".data", typ: uint32(elf.SHT_PROGBITS),
				flags: uint64(elf.SHF_ALLOC | elf.SHF_WRITE), align: 8, data: []byte{1, 2, 3, 4}},
			{name: ".bss", typ: uint32(elf.SHT_NOBITS),
				flags: uint64(elf.SHF_ALLOC | elf.SHF_WRITE), align: 8, size: 64},
		},
		[]tSym{{name: "_start", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_FUNC), sec: ".text"}},
		nil))

	f := mustLink(t, filepath.Join(dir, "out"), obj)

	var loads []*elf.Prog
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_LOAD {
			loads = append(loads, prog)
		}
	}
	if len(loads) != 2 {
		t.Fatalf("got %d PT_LOAD segments, want 2", len(loads))
	}
	for i, prog := range loads {
		if prog.Vaddr%prog.Align != prog.Off%prog.Align {
			t.Errorf("load %d: vaddr %#x and offset %#x not congruent mod %#x",
				i, prog.Vaddr, prog.Off, prog.Align)
		}
		if prog.Align%PageSize != 0 {
			t.Errorf("load %d: alignment %#x not page-multiple", i, prog.Align)
		}
		if i > 0 && loads[i-1].Vaddr+loads[i-1].Memsz > prog.Vaddr {
			t.Errorf("load %d overlaps its predecessor", i)
		}
	}

	rw := loads[1]
	if rw.Memsz <= rw.Filesz {
		t.Errorf("RW segment memsz %#x should exceed filesz %#x for .bss", rw.Memsz, rw.Filesz)
	}
	if rw.Memsz-rw.Filesz < 64 {
		t.Errorf("RW segment does not account for the 64-byte .bss tail")
	}

	bss := f.Section(".bss")
	if bss == nil || bss.Type != elf.SHT_NOBITS {
		t.Fatal(".bss missing or wrong type")
	}
}

func callerCalleePair(t *testing.T) (caller, callee []byte) {
	// caller: call print (PC32 at offset 1), then the exit stub
	callerText := append([]byte{0xe8, 0, 0, 0, 0}, textStub...)
	caller = buildObject(t,
		[]tSec{{name: ".text", typ: uint32(elf.SHT_PROGBITS),
			flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR), align: 16, data: callerText}},
		[]tSym{
			{name: "_start", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_FUNC), sec: ".text"},
			{name: "print", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_FUNC), sec: ""},
		},
		[]tRela{{sec: ".text", offset: 1, typ: elf.R_X86_64_PC32, sym: "print", addend: -4}})

	callee = buildObject(t,
		[]tSec{
			{name: ".text", typ: uint32(elf.SHT_PROGBITS),
				flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR), align: 16, data: []byte{0xc3}},
			{name: ".rodata", typ: uint32(elf.SHT_PROGBITS),
				flags: uint64(elf.SHF_ALLOC), align: 1, data: []byte("Hello world!\n")},
		},
		[]tSym{
			{name: "print", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_FUNC), sec: ".text"},
			{name: "hello", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_OBJECT),
				sec: ".rodata", size: 13},
		},
		nil)
	return caller, callee
}

func TestCrossObjectCall(t *testing.T) {
	caller, callee := callerCalleePair(t)
	dir := t.TempDir()
	a := writeInput(t, dir, "a.o", caller)
	b := writeInput(t, dir, "b.o", callee)

	for _, order := range [][]string{{a, b}, {b, a}} {
		f := mustLink(t, filepath.Join(dir, "out"), order...)

		start := findSym(t, f, "_start")
		print_ := findSym(t, f, "print")

		// the displacement at _start+1 must be S + A - P
		site := start.Value + 1
		want := int64(print_.Value) - 4 - int64(site)
		if got := int64(readWord32(t, f, site)); got != want {
			t.Errorf("order %v: call displacement = %#x, want %#x", order, got, want)
		}
		if f.Entry != start.Value {
			t.Errorf("order %v: entry %#x != _start %#x", order, f.Entry, start.Value)
		}
		f.Close()
	}
}

func TestMultipleDefinition(t *testing.T) {
	def := func() []byte {
		return buildObject(t,
			[]tSec{{name: ".text", typ: uint32(elf.SHT_PROGBITS),
				flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR), data: []byte{0xc3}}},
			[]tSym{{name: "dup", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_FUNC), sec: ".text"}},
			nil)
	}
	dir := t.TempDir()
	a := writeInput(t, dir, "a.o", def())
	b := writeInput(t, dir, "b.o", def())

	err := runLink(t, filepath.Join(dir, "out"), a, b)
	wantKind(t, err, ErrMultipleDefinition)
}

func TestWeakStrongResolution(t *testing.T) {
	weak := buildObject(t,
		[]tSec{{name: ".text", typ: uint32(elf.SHT_PROGBITS),
			flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR), align: 16, data: textStub}},
		[]tSym{
			{name: "_start", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_FUNC), sec: ".text"},
			{name: "impl", bind: uint8(elf.STB_WEAK), typ: uint8(elf.STT_FUNC), sec: ".text", value: 2},
		},
		nil)
	strong := buildObject(t,
		[]tSec{{name: ".text", typ: uint32(elf.SHT_PROGBITS),
			flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR), align: 16, data: []byte{0xc3, 0xc3, 0xc3}}},
		[]tSym{{name: "impl", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_FUNC), sec: ".text", value: 1}},
		nil)

	dir := t.TempDir()
	w := writeInput(t, dir, "weak.o", weak)
	s := writeInput(t, dir, "strong.o", strong)

	// the strong definition wins regardless of order
	for _, order := range [][]string{{w, s}, {s, w}} {
		f := mustLink(t, filepath.Join(dir, "out"), order...)
		impl := findSym(t, f, "impl")
		if elf.ST_BIND(impl.Info) != elf.STB_GLOBAL {
			t.Errorf("order %v: impl bind = %v, want STB_GLOBAL", order, elf.ST_BIND(impl.Info))
		}
		start := findSym(t, f, "_start")
		if impl.Value == start.Value+2 {
			t.Errorf("order %v: weak definition survived", order)
		}
		f.Close()
	}
}

func TestWeakUndefinedResolvesToZero(t *testing.T) {
	obj := buildObject(t,
		[]tSec{
			{name: ".text", typ: uint32(elf.SHT_PROGBITS),
				flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR), align: 16, data: textStub},
			{name: ".data", typ: uint32(elf.SHT_PROGBITS),
				flags: uint64(elf.SHF_ALLOC | elf.SHF_WRITE), align: 8, data: make([]byte, 8)},
		},
		[]tSym{
			{name: "_start", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_FUNC), sec: ".text"},
			{name: "maybe", bind: uint8(elf.STB_WEAK), typ: uint8(elf.STT_NOTYPE), sec: ""},
		},
		[]tRela{{sec: ".data", offset: 0, typ: elf.R_X86_64_64, sym: "maybe", addend: 0}})

	dir := t.TempDir()
	f := mustLink(t, filepath.Join(dir, "out"), writeInput(t, dir, "a.o", obj))

	data, err := f.Section(".data").Data()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 8; i++ {
		if data[i] != 0 {
			t.Fatalf("weak undefined patched to nonzero: % x", data[:8])
		}
	}
}

func TestUndefinedSymbol(t *testing.T) {
	caller, _ := callerCalleePair(t)
	dir := t.TempDir()
	a := writeInput(t, dir, "a.o", caller)

	err := runLink(t, filepath.Join(dir, "out"), a)
	wantKind(t, err, ErrUndefinedSymbol)

	// -shared tolerates it: the definition may arrive at load time
	if err := runLink(t, filepath.Join(dir, "out.so"), "-shared", a); err != nil {
		t.Fatalf("-shared link failed: %v", err)
	}
}

func TestCommonSymbolMerge(t *testing.T) {
	common := func(size uint64) []byte {
		return buildObject(t,
			[]tSec{{name: ".text", typ: uint32(elf.SHT_PROGBITS),
				flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR), align: 16, data: textStub}},
			[]tSym{
				{name: "_start", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_FUNC), sec: ".text"},
				{name: "shared_buf", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_OBJECT),
					sec: "*COM*", value: 8, size: size},
			},
			nil)
	}
	dir := t.TempDir()
	a := writeInput(t, dir, "a.o", common(16))
	b := buildObject(t,
		[]tSec{{name: ".text", typ: uint32(elf.SHT_PROGBITS),
			flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR), data: []byte{0xc3}}},
		[]tSym{
			{name: "aux", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_FUNC), sec: ".text"},
			{name: "shared_buf", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_OBJECT),
				sec: "*COM*", value: 8, size: 64},
		},
		nil)
	bPath := writeInput(t, dir, "b.o", b)

	f := mustLink(t, filepath.Join(dir, "out"), a, bPath)

	sym := findSym(t, f, "shared_buf")
	if sym.Size != 64 {
		t.Errorf("merged common size = %d, want the largest (64)", sym.Size)
	}
	bss := f.Section(".bss")
	if bss == nil {
		t.Fatal("commons were not placed in .bss")
	}
	if sym.Value < bss.Addr || sym.Value+sym.Size > bss.Addr+bss.Size {
		t.Errorf("shared_buf at %#x lies outside .bss [%#x, %#x)",
			sym.Value, bss.Addr, bss.Addr+bss.Size)
	}
	if sym.Value%8 != 0 {
		t.Errorf("common alignment request ignored: %#x", sym.Value)
	}
}

func TestRelocationOverflow(t *testing.T) {
	obj := buildObject(t,
		[]tSec{{name: ".text", typ: uint32(elf.SHT_PROGBITS),
			flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR), align: 16,
			data: append([]byte{0, 0, 0, 0}, textStub...)}},
		[]tSym{{name: "_start", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_FUNC), sec: ".text", value: 4}},
		[]tRela{{sec: ".text", offset: 0, typ: elf.R_X86_64_32, sym: "_start", addend: 1 << 33}})

	dir := t.TempDir()
	err := runLink(t, filepath.Join(dir, "out"), writeInput(t, dir, "a.o", obj))
	wantKind(t, err, ErrRelocationOverflow)
}

func TestAbs32RejectedInPic(t *testing.T) {
	obj := buildObject(t,
		[]tSec{{name: ".text", typ: uint32(elf.SHT_PROGBITS),
			flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR), align: 16,
			data: append([]byte{0, 0, 0, 0}, textStub...)}},
		[]tSym{{name: "fn", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_FUNC), sec: ".text", value: 4}},
		[]tRela{{sec: ".text", offset: 0, typ: elf.R_X86_64_32, sym: "fn", addend: 0}})

	dir := t.TempDir()
	err := runLink(t, filepath.Join(dir, "out.so"), "-shared",
		writeInput(t, dir, "a.o", obj))
	wantKind(t, err, ErrUnsupportedRelocation)
}

func TestLibraryNotFound(t *testing.T) {
	dir := t.TempDir()
	obj := writeInput(t, dir, "a.o", startObject(t))

	err := runLink(t, filepath.Join(dir, "out"), "-L", dir, "-l", "missing", obj)
	wantKind(t, err, ErrLibraryNotFound)
}

func TestGotpcrelStatic(t *testing.T) {
	// mov value(%rip), %rax via GOT: the patched word points at the
	// GOT slot, the slot holds the symbol address
	text := append([]byte{0x48, 0x8b, 0x05, 0, 0, 0, 0}, textStub...)
	obj := buildObject(t,
		[]tSec{
			{name: ".text", typ: uint32(elf.SHT_PROGBITS),
				flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR), align: 16, data: text},
			{name: ".data", typ: uint32(elf.SHT_PROGBITS),
				flags: uint64(elf.SHF_ALLOC | elf.SHF_WRITE), align: 8, data: []byte{9, 9, 9, 9, 9, 9, 9, 9}},
		},
		[]tSym{
			{name: "_start", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_FUNC), sec: ".text"},
			{name: "value", bind: uint8(elf.STB_GLOBAL), typ: uint8(elf.STT_OBJECT), sec: ".data", size: 8},
		},
		[]tRela{{sec: ".text", offset: 3, typ: elf.R_X86_64_REX_GOTPCRELX, sym: "value", addend: -4}})

	dir := t.TempDir()
	f := mustLink(t, filepath.Join(dir, "out"), writeInput(t, dir, "a.o", obj))

	got := f.Section(".got")
	if got == nil {
		t.Fatal("no .got emitted for GOTPCREL")
	}
	start := findSym(t, f, "_start")
	value := findSym(t, f, "value")

	site := start.Value + 3
	disp := int64(readWord32(t, f, site))
	slotAddr := uint64(int64(site) + 4 + disp)
	if slotAddr < got.Addr || slotAddr+8 > got.Addr+got.Size {
		t.Fatalf("GOTPCREL resolves to %#x, outside .got [%#x, %#x)",
			slotAddr, got.Addr, got.Addr+got.Size)
	}

	data, err := got.Data()
	if err != nil {
		t.Fatal(err)
	}
	off := slotAddr - got.Addr
	var slot uint64
	for i := 0; i < 8; i++ {
		slot |= uint64(data[off+uint64(i)]) << (8 * i)
	}
	if slot != value.Value {
		t.Errorf("GOT slot holds %#x, want symbol address %#x", slot, value.Value)
	}
}
