package linker

import (
	"os"
	"path/filepath"
)

type File struct {
	Name    string
	Content []byte
}

func NewFile(filename string) (*File, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, linkErrorf(ErrIo, "cannot read %s: %v", filename, err)
	}
	return &File{
		Name:    filename,
		Content: content,
	}, nil
}

func OpenLibrary(path string) *File {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return &File{
		Name:    path,
		Content: content,
	}
}

// FindLibrary resolves -lNAME against the -L search path. Only shared
// libraries take part in this design; a libNAME.a next to a missing
// libNAME.so does not satisfy the lookup.
func FindLibrary(ctx *Context, name string) (*File, error) {
	for _, dir := range ctx.Args.LibraryPaths {
		stem := filepath.Join(dir, "lib"+name+".so")
		if f := OpenLibrary(stem); f != nil {
			return f, nil
		}
	}
	return nil, linkErrorf(ErrLibraryNotFound, "-l%s", name)
}

// FindDependency locates a transitive DT_NEEDED name. -rpath-link dirs
// are searched first, then -L dirs. A miss is not fatal; the runtime
// loader may still find the dependency on its own.
func FindDependency(ctx *Context, soname string) *File {
	for _, dir := range ctx.Args.RpathLink {
		if f := OpenLibrary(filepath.Join(dir, soname)); f != nil {
			return f
		}
	}
	for _, dir := range ctx.Args.LibraryPaths {
		if f := OpenLibrary(filepath.Join(dir, soname)); f != nil {
			return f
		}
	}
	return nil
}
