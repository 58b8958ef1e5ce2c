package linker

import (
	"testing"
)

func TestSysvHash(t *testing.T) {
	tests := []struct {
		name string
		want uint32
	}{
		{"", 0},
		{"a", 97},
		{"ab", 1650},
		{"exit", 446212},
		{"printf", 0x077905a6}, // the canonical ABI example
	}
	for _, tt := range tests {
		if got := sysvHash(tt.name); got != tt.want {
			t.Errorf("sysvHash(%q) = %#x, want %#x", tt.name, got, tt.want)
		}
	}
}

func TestGnuHash(t *testing.T) {
	tests := []struct {
		name string
		want uint32
	}{
		{"", 5381},
		{"a", 177670},
		{"printf", 0x156b2bb8}, // the canonical example
	}
	for _, tt := range tests {
		if got := gnuHash(tt.name); got != tt.want {
			t.Errorf("gnuHash(%q) = %#x, want %#x", tt.name, got, tt.want)
		}
	}
}

func TestRelaInfoRoundTrip(t *testing.T) {
	rela := Rela{Info: RelaInfo(7, 42)}
	if rela.SymIdx() != 7 || rela.Type() != 42 {
		t.Errorf("round trip gave sym %d type %d", rela.SymIdx(), rela.Type())
	}
}

func TestElfGetName(t *testing.T) {
	strTab := []byte("\x00.text\x00.data\x00")
	if got := ElfGetName(strTab, 1); got != ".text" {
		t.Errorf("got %q", got)
	}
	if got := ElfGetName(strTab, 7); got != ".data" {
		t.Errorf("got %q", got)
	}
	if got := ElfGetName(strTab, 0); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestStructSizes(t *testing.T) {
	// the on-disk record sizes are fixed by the ELF64 spec
	sizes := map[string][2]int{
		"Ehdr": {EhdrSize, 64},
		"Shdr": {ShdrSize, 64},
		"Phdr": {PhdrSize, 56},
		"Sym":  {SymSize, 24},
		"Rela": {RelaSize, 24},
		"Dyn":  {DynSize, 16},
	}
	for name, s := range sizes {
		if s[0] != s[1] {
			t.Errorf("%s size = %d, want %d", name, s[0], s[1])
		}
	}
}
