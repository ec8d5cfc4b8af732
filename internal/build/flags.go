package build

import (
	"strings"

	"github.com/mkn/maiken/internal/app"
	"github.com/mkn/maiken/internal/compiler"
	"github.com/mkn/maiken/internal/settings"
)

// LinkFlags are the link arguments of one artifact, by source.
type LinkFlags struct {
	Optimise string
	Debug    string
	// Suffix is the global linker suffix; it only applies to the root.
	Suffix  string
	All     string
	App     string
	Backend string
}

// NewLinkFlags assembles the link arguments for a, linked by backend b
// registered as base.
func NewLinkFlags(s *settings.Settings, a *app.Application, base string, b compiler.Backend) LinkFlags {
	f := LinkFlags{
		Optimise: b.OptimisationFlags(s.Optimise),
		Debug:    b.DebugFlags(s.Debug),
		All:      s.AllLinker,
		App:      a.Link,
		Backend:  a.CompilerLink[base],
	}
	if a.Root {
		f.Suffix = s.Linker
	}
	return f
}

// Ordered returns every flag in precedence order.
func (f LinkFlags) Ordered() []string {
	return strings.Fields(strings.Join([]string{f.Optimise, f.Debug, f.Suffix, f.All, f.App, f.Backend}, " "))
}

// Linker returns linker followed by the optimisation and debug flags.
func (f LinkFlags) Linker(linker string) string {
	return strings.Join(strings.Fields(strings.Join([]string{linker, f.Optimise, f.Debug}, " ")), " ")
}

// End returns the flags placed after objects and libraries.
func (f LinkFlags) End() []string {
	return strings.Fields(strings.Join([]string{f.Suffix, f.All, f.App, f.Backend}, " "))
}
