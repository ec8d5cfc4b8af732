package compiler

import (
	"fmt"
	"strings"
)

// Mode selects how a library or executable is linked.
type Mode int

const (
	ModeNone Mode = iota
	ModeStatic
	ModeShared
)

func (m Mode) String() string {
	switch m {
	case ModeStatic:
		return "static"
	case ModeShared:
		return "shared"
	default:
		return "none"
	}
}

// ParseMode parses the descriptor spelling of a mode. The empty string is ModeNone.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ModeNone, nil
	case "static", "stat":
		return ModeStatic, nil
	case "shared", "shar":
		return ModeShared, nil
	}
	return ModeNone, fmt.Errorf("unknown mode %q", s)
}

// Tools are the programs configured for one file type.
type Tools struct {
	Compiler string
	Linker   string
	Archiver string
}

// Command is a fully constructed process invocation.
type Command struct {
	Args []string
	// Output is the file the command is expected to produce.
	Output string
}

func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// Link carries the inputs shared by every link style.
type Link struct {
	// Linker is the linker program, optionally followed by its own flags.
	Linker string
	// End holds extra arguments placed after objects and libraries.
	End          []string
	Objects      []string
	Libraries    []string
	LibraryPaths []string
	Out          string
	Mode         Mode
}

// Backend builds command lines for one compiler family.
// Implementations are stateless and never run processes.
type Backend interface {
	// ObjectCommand compiles src into obj.
	ObjectCommand(compiler string, args, includes []string, src, obj string) Command
	// ExecutableCommand links an executable.
	ExecutableCommand(l Link) Command
	// LibraryCommand links a shared library.
	LibraryCommand(l Link) Command
	// ArchiveCommand packs objects into a static library.
	ArchiveCommand(archiver string, objects []string, out string) Command

	OptimisationFlags(level uint8) string
	DebugFlags(level uint8) string

	// LibraryFile returns the file name of library name built in mode.
	LibraryFile(name string, mode Mode) string
}

func fields(s ...string) []string {
	var out []string
	for _, v := range s {
		out = append(out, strings.Fields(v)...)
	}
	return out
}
