package compiler

import "strings"

// msvc drives cl.exe, link.exe and lib.exe.
type msvc struct{}

var _ Backend = (*msvc)(nil)

func (m *msvc) ObjectCommand(compiler string, args, includes []string, src, obj string) Command {
	cmd := fields(compiler)
	cmd = append(cmd, "/nologo")
	cmd = append(cmd, args...)
	for _, inc := range includes {
		cmd = append(cmd, "/I"+inc)
	}
	cmd = append(cmd, "/Fo"+obj, "/c", src)
	return Command{Args: cmd, Output: obj}
}

func (m *msvc) link(l Link, extra ...string) Command {
	cmd := fields(l.Linker)
	cmd = append(cmd, "/NOLOGO")
	cmd = append(cmd, extra...)
	cmd = append(cmd, "/OUT:"+l.Out)
	cmd = append(cmd, l.Objects...)
	for _, p := range l.LibraryPaths {
		cmd = append(cmd, "/LIBPATH:"+p)
	}
	for _, lib := range l.Libraries {
		if !strings.HasSuffix(lib, ".lib") {
			lib += ".lib"
		}
		cmd = append(cmd, lib)
	}
	cmd = append(cmd, l.End...)
	return Command{Args: cmd, Output: l.Out}
}

func (m *msvc) ExecutableCommand(l Link) Command {
	return m.link(l)
}

func (m *msvc) LibraryCommand(l Link) Command {
	return m.link(l, "/DLL")
}

func (m *msvc) ArchiveCommand(archiver string, objects []string, out string) Command {
	cmd := fields(archiver)
	cmd = append(cmd, "/NOLOGO", "/OUT:"+out)
	cmd = append(cmd, objects...)
	return Command{Args: cmd, Output: out}
}

func (m *msvc) OptimisationFlags(level uint8) string {
	switch {
	case level == 0:
		return ""
	case level <= 2:
		return "/OPT:REF"
	default:
		return "/OPT:REF /OPT:ICF /LTCG"
	}
}

func (m *msvc) DebugFlags(level uint8) string {
	if level == 0 {
		return ""
	}
	return "/DEBUG"
}

func (m *msvc) LibraryFile(name string, mode Mode) string {
	if mode == ModeStatic {
		return name + ".lib"
	}
	return name + ".dll"
}
