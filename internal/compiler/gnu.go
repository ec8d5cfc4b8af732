package compiler

import (
	"runtime"
	"strconv"
)

// gnu drives gcc-compatible front ends (gcc, clang, nvcc).
type gnu struct {
	// sharedFlags are passed when linking a shared library.
	sharedFlags []string
}

var _ Backend = (*gnu)(nil)

func (g *gnu) ObjectCommand(compiler string, args, includes []string, src, obj string) Command {
	cmd := fields(compiler)
	cmd = append(cmd, args...)
	for _, inc := range includes {
		cmd = append(cmd, "-I"+inc)
	}
	cmd = append(cmd, "-o", obj, "-c", src)
	return Command{Args: cmd, Output: obj}
}

func (g *gnu) link(l Link, extra ...string) Command {
	cmd := fields(l.Linker)
	cmd = append(cmd, extra...)
	cmd = append(cmd, "-o", l.Out)
	cmd = append(cmd, l.Objects...)
	for _, p := range l.LibraryPaths {
		cmd = append(cmd, "-L"+p)
	}
	for _, lib := range l.Libraries {
		cmd = append(cmd, "-l"+lib)
	}
	cmd = append(cmd, l.End...)
	return Command{Args: cmd, Output: l.Out}
}

func (g *gnu) ExecutableCommand(l Link) Command {
	if l.Mode == ModeStatic {
		return g.link(l, "-static")
	}
	return g.link(l)
}

func (g *gnu) LibraryCommand(l Link) Command {
	return g.link(l, g.sharedFlags...)
}

func (g *gnu) ArchiveCommand(archiver string, objects []string, out string) Command {
	cmd := fields(archiver)
	cmd = append(cmd, out)
	cmd = append(cmd, objects...)
	return Command{Args: cmd, Output: out}
}

func (g *gnu) OptimisationFlags(level uint8) string {
	switch {
	case level == 0:
		return ""
	case level <= 3:
		return "-O" + strconv.Itoa(int(level))
	default:
		return "-O3 -funroll-loops"
	}
}

func (g *gnu) DebugFlags(level uint8) string {
	switch {
	case level == 0:
		return ""
	case level <= 3:
		return "-g" + strconv.Itoa(int(level))
	default:
		return "-g3 -ggdb"
	}
}

func (g *gnu) LibraryFile(name string, mode Mode) string {
	if mode == ModeStatic {
		return "lib" + name + ".a"
	}
	if runtime.GOOS == "darwin" {
		return "lib" + name + ".dylib"
	}
	return "lib" + name + ".so"
}
