package linker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"coldld/pkg/utils"
)

// ParseArgs fills ctx.Args from the command line and returns the
// remaining entries: object files, shared objects, -lNAME requests and
// the --as-needed / --no-as-needed markers in their original order.
func ParseArgs(ctx *Context, args []string) []string {
	dashes := utils.AddDashes

	arg := ""
	readArg := func(name string) bool {
		for _, opt := range dashes(name) {
			if args[0] == opt {
				if len(args) == 1 {
					utils.Fatal(fmt.Sprintf("option %s: argument missing", opt))
				}
				arg = args[1]
				args = args[2:]
				return true
			}

			prefix := opt
			if len(name) > 1 {
				prefix += "="
			}
			if strings.HasPrefix(args[0], prefix) && len(args[0]) > len(prefix) {
				arg = args[0][len(prefix):]
				args = args[1:]
				return true
			}
		}
		return false
	}

	readFlag := func(name string) bool {
		for _, opt := range dashes(name) {
			if args[0] == opt {
				args = args[1:]
				return true
			}
		}
		return false
	}

	// --push-state / --pop-state scope the as-needed attribute
	asNeeded := false
	stateStack := make([]bool, 0)

	remaining := make([]string, 0)
	for len(args) > 0 {
		if readFlag("help") {
			fmt.Printf("usage: %s [options] file...\n", os.Args[0])
			os.Exit(0)
		}

		if readArg("o") || readArg("output") {
			ctx.Args.Output = arg
		} else if readFlag("shared") {
			ctx.Args.Shared = true
		} else if readFlag("pie") {
			ctx.Args.Pie = true
		} else if readArg("dynamic-linker") {
			ctx.Args.DynamicLinker = arg
		} else if readArg("soname") {
			ctx.Args.Soname = arg
		} else if readArg("hash-style") {
			switch arg {
			case "sysv":
				ctx.Args.HashStyle = HashStyleSysv
			case "gnu":
				ctx.Args.HashStyle = HashStyleGnu
			case "both":
				ctx.Args.HashStyle = HashStyleBoth
			default:
				utils.Fatal(fmt.Sprintf("unknown -hash-style argument: %s", arg))
			}
		} else if readArg("m") {
			if arg == "elf_x86_64" {
				ctx.Args.Machine = MachineTypeX86_64
			} else {
				utils.Fatal(fmt.Sprintf("unknown -m argument: %s", arg))
			}
		} else if readArg("L") {
			ctx.Args.LibraryPaths = append(ctx.Args.LibraryPaths, arg)
		} else if readArg("rpath-link") {
			ctx.Args.RpathLink = append(ctx.Args.RpathLink, arg)
		} else if readArg("l") {
			remaining = append(remaining, "-l"+arg)
		} else if readFlag("as-needed") {
			asNeeded = true
			remaining = append(remaining, "--as-needed")
		} else if readFlag("no-as-needed") {
			asNeeded = false
			remaining = append(remaining, "--no-as-needed")
		} else if readFlag("push-state") {
			stateStack = append(stateStack, asNeeded)
		} else if readFlag("pop-state") {
			if len(stateStack) == 0 {
				utils.Fatal("--pop-state without --push-state")
			}
			asNeeded = stateStack[len(stateStack)-1]
			stateStack = stateStack[:len(stateStack)-1]
			marker := "--no-as-needed"
			if asNeeded {
				marker = "--as-needed"
			}
			remaining = append(remaining, marker)
		} else if readArg("plugin") ||
			readArg("plugin-opt") ||
			readFlag("build-id") ||
			readFlag("eh-frame-hdr") ||
			readFlag("static") ||
			readFlag("start-group") ||
			readFlag("end-group") {
			// Ignored
		} else {
			if args[0][0] == '-' {
				utils.Fatal(fmt.Sprintf("unknown command line option: %s", args[0]))
			}
			remaining = append(remaining, args[0])
			args = args[1:]
		}
	}

	for i, path := range ctx.Args.LibraryPaths {
		ctx.Args.LibraryPaths[i] = filepath.Clean(path)
	}
	return remaining
}
