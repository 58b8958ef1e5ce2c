package main

import (
	"os"
	"strings"

	"coldld/pkg/linker"
	"coldld/pkg/utils"
)

// coldld links x86-64 ELF relocatable objects, and optionally shared
// libraries, into an executable or a shared object.
func main() {
	ctx := linker.NewContext()
	remaining := linker.ParseArgs(ctx, os.Args[1:])

	// without -m, take the machine type from the first recognizable
	// input file
	if ctx.Args.Machine == linker.MachineTypeNone {
		for _, filename := range remaining {
			if strings.HasPrefix(filename, "-") {
				continue
			}
			file, err := linker.NewFile(filename)
			utils.MustNo(err)
			mType := linker.GetMachineTypeFromContent(file.Content)
			if mType != linker.MachineTypeNone {
				ctx.Args.Machine = mType
				break
			}
		}
	}
	if ctx.Args.Machine != linker.MachineTypeX86_64 {
		utils.Fatal("unsupported machine type")
	}

	utils.MustNo(linker.ReadInputFiles(ctx, remaining))
	if len(ctx.Objs) == 0 {
		utils.Fatal("no input files")
	}

	utils.MustNo(linker.Link(ctx))
}
