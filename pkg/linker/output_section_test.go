package linker

import (
	"debug/elf"
	"testing"
)

func TestGetOutputName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{".text", ".text"},
		{".text.startup", ".text"},
		{".text.unlikely", ".text"},
		{".rodata", ".rodata"},
		{".rodata.str1.1", ".rodata"},
		{".data", ".data"},
		{".data.rel.ro", ".data.rel.ro"},
		{".data.rel.ro.local", ".data.rel.ro"},
		{".bss", ".bss"},
		{".bss.page_aligned", ".bss"},
		{".note.ABI-tag", ".note.ABI-tag"},
		{".mysection", ".mysection"},
	}
	for _, tt := range tests {
		if got := GetOutputName(tt.in); got != tt.want {
			t.Errorf("GetOutputName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestComputeMemberOffsets(t *testing.T) {
	osec := NewOutputSection(".data", uint32(elf.SHT_PROGBITS),
		uint64(elf.SHF_ALLOC|elf.SHF_WRITE), 0)
	add := func(size, align uint64) *InputSection {
		isec := &InputSection{
			Shdr: &Shdr{Type: uint32(elf.SHT_PROGBITS), Size: size, AddrAlign: align},
		}
		osec.Members = append(osec.Members, isec)
		return isec
	}

	a := add(3, 1)
	b := add(8, 8)
	c := add(1, 0) // alignment 0 behaves like 1
	d := add(16, 16)
	osec.ComputeMemberOffsets()

	if a.Offset != 0 {
		t.Errorf("a at %d", a.Offset)
	}
	if b.Offset != 8 {
		t.Errorf("b at %d, want 8 (bumped to its alignment)", b.Offset)
	}
	if c.Offset != 16 {
		t.Errorf("c at %d, want 16", c.Offset)
	}
	if d.Offset != 32 {
		t.Errorf("d at %d, want 32", d.Offset)
	}
	if osec.Shdr.Size != 48 {
		t.Errorf("section size %d, want 48", osec.Shdr.Size)
	}
	if osec.Shdr.AddrAlign != 16 {
		t.Errorf("section align %d, want max member alignment 16", osec.Shdr.AddrAlign)
	}

	// every contribution starts at or after the previous end
	prevEnd := uint64(0)
	for _, isec := range osec.Members {
		if isec.Offset < prevEnd {
			t.Errorf("contribution at %d overlaps previous end %d", isec.Offset, prevEnd)
		}
		prevEnd = isec.Offset + isec.Shdr.Size
	}
}

func TestOutputSectionIdentity(t *testing.T) {
	ctx := NewContext()
	text1 := GetOutputSection(ctx, ".text.hot", uint32(elf.SHT_PROGBITS),
		uint64(elf.SHF_ALLOC|elf.SHF_EXECINSTR))
	text2 := GetOutputSection(ctx, ".text", uint32(elf.SHT_PROGBITS),
		uint64(elf.SHF_ALLOC|elf.SHF_EXECINSTR))
	if text1 != text2 {
		t.Error(".text.hot and .text must merge")
	}

	rodata := GetOutputSection(ctx, ".rodata.str1.1", uint32(elf.SHT_PROGBITS),
		uint64(elf.SHF_ALLOC|elf.SHF_MERGE|elf.SHF_STRINGS))
	rodata2 := GetOutputSection(ctx, ".rodata", uint32(elf.SHT_PROGBITS),
		uint64(elf.SHF_ALLOC))
	if rodata != rodata2 {
		t.Error("mergeable string sections must fold into .rodata")
	}

	data := GetOutputSection(ctx, ".data", uint32(elf.SHT_PROGBITS),
		uint64(elf.SHF_ALLOC|elf.SHF_WRITE))
	bss := GetOutputSection(ctx, ".bss", uint32(elf.SHT_NOBITS),
		uint64(elf.SHF_ALLOC|elf.SHF_WRITE))
	if data == bss {
		t.Error(".data and .bss must stay distinct")
	}
	if len(ctx.OutputSections) != 4 {
		t.Errorf("created %d output sections, want 4", len(ctx.OutputSections))
	}
}
