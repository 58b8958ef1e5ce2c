package utils

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strings"
)

func Fatal(v any) {
	fmt.Fprintf(os.Stderr, "coldld: %v\n", v)
	os.Exit(1)
}

func MustNo(err error) {
	if err != nil {
		Fatal(err)
	}
}

func Assert(res bool) {
	if !res {
		Fatal("assertion failed")
	}
}

func Read[T any](content []byte, val *T) {
	reader := bytes.NewReader(content)
	err := binary.Read(reader, binary.LittleEndian, val) // ELF64 LSB
	MustNo(err)
}

func ReadSlice[T any](content []byte, size int) []T {
	Assert(len(content)%size == 0)
	ret := make([]T, 0, len(content)/size)
	for len(content) > 0 {
		var ele T
		Read[T](content, &ele)
		ret = append(ret, ele)
		content = content[size:]
	}
	return ret
}

func Write[T any](dst []byte, val T) {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, binary.LittleEndian, val)
	MustNo(err)
	copy(dst, buf.Bytes())
}

// align must be a power of two; 0 and 1 both mean byte alignment
func AlignTo(val, align uint64) uint64 {
	if align <= 1 {
		return val
	}
	return (val + align - 1) &^ (align - 1)
}

func RemoveIf[T any](elems []T, condition func(T) bool) []T {
	i := 0
	for _, elem := range elems {
		if condition(elem) {
			continue
		}
		elems[i] = elem
		i++
	}
	return elems[:i]
}

func RemovePrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return strings.TrimPrefix(s, prefix), true
	}
	return s, false
}

// o => -o
// plugin => -plugin, --plugin
func AddDashes(option string) []string {
	if len(option) == 1 {
		return []string{"-" + option}
	}
	return []string{"-" + option, "--" + option}
}
