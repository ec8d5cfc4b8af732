package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mkn/maiken/internal/compiler"
	"github.com/mkn/maiken/internal/env"
	"github.com/mkn/maiken/internal/project"
)

// DefaultProfile is the profile key used when no profile is requested.
const DefaultProfile = "@"

// Test is one test source and the name of the binary built from it.
type Test struct {
	Path string
	Name string
}

// Application is the build context of one project at one profile.
type Application struct {
	Project *project.Project
	// Profile is the requested profile; "" selects the descriptor root.
	Profile string
	// Root is set only on the top level build target.
	Root bool
	// Nodes enables distribution to remote build nodes for this Application.
	Nodes bool

	// Files maps a file extension to the tools building that type.
	Files        map[string]compiler.Tools
	Libraries    Strings
	LibraryPaths Strings
	Includes     Strings
	Sources      []string
	Tests        []Test

	Main       string
	Lang       string
	Out        string
	BuildDir   string
	InstallDir string
	Mode       compiler.Mode
	// Args are extra compile arguments.
	Args string
	// Link are this Application's own link flags.
	Link string
	// CompilerLink holds extra link flags per backend id.
	CompilerLink map[string]string
	Env          []env.Var
	Deps         []*Application

	reg   *Registry
	props map[string]string
	ready bool
}

func newApplication(reg *Registry, proj *project.Project, profile string) *Application {
	return &Application{
		Project:      proj,
		Profile:      profile,
		Files:        make(map[string]compiler.Tools),
		CompilerLink: make(map[string]string),
		reg:          reg,
		props:        make(map[string]string),
	}
}

// Name returns the declared project name.
func (a *Application) Name() string { return a.Project.Name() }

// Dir returns the canonical project directory.
func (a *Application) Dir() string { return a.Project.Dir() }

// ProfileKey returns the profile normalised for registry lookups.
func (a *Application) ProfileKey() string { return profileKey(a.Profile) }

func (a *Application) String() string {
	s := a.Name() + "[" + a.ProfileKey() + "]"
	if v := a.Project.Version(); v != "" {
		s += "@" + v
	}
	return s + " (" + a.Dir() + ")"
}

// ObjDir is the active object directory.
func (a *Application) ObjDir() string { return filepath.Join(a.BuildDir, "obj") }

// TmpDir is the holding directory for staged objects.
func (a *Application) TmpDir() string { return filepath.Join(a.BuildDir, "tmp") }

// TestDir receives test binaries.
func (a *Application) TestDir() string { return filepath.Join(a.BuildDir, "test") }

// OutDir is where executables and libraries are written.
func (a *Application) OutDir() string {
	if a.InstallDir != "" {
		return a.InstallDir
	}
	return a.BuildDir
}

// OutName returns the artifact base name: the configured out, or the project name.
func (a *Application) OutName() string {
	if a.Out != "" {
		return a.Out
	}
	return a.Name()
}

// BuildsLibrary reports whether the Application produces a library.
func (a *Application) BuildsLibrary() bool {
	return a.Main == "" && len(a.Sources) > 0
}

// Tools returns the tools for file extension ext.
func (a *Application) Tools(ext string) (compiler.Tools, bool) {
	t, ok := a.Files[strings.TrimPrefix(ext, ".")]
	return t, ok
}

// Resolve substitutes ${name} and $name with project properties, falling
// back to the process environment. Unknown references are left as written.
func (a *Application) Resolve(s string) string {
	return os.Expand(s, func(name string) string {
		if v, ok := a.props[name]; ok {
			return v
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return "${" + name + "}"
	})
}

// Environ returns the environment for child processes of this Application.
func (a *Application) Environ() []string {
	return env.Compose(os.Environ(), a.Env)
}

// Backend returns the backend id and Backend for a tool's compiler string.
func (a *Application) Backend(compilerName string) (string, compiler.Backend, error) {
	base, err := a.reg.compilers.Base(compilerName)
	if err != nil {
		return "", nil, err
	}
	b, err := a.reg.compilers.Get(base)
	if err != nil {
		return "", nil, err
	}
	return base, b, nil
}

func (a *Application) errorf(format string, args ...any) error {
	return configErrorf(a.Project.File(), format, args...)
}

func ext(path string) string {
	e := filepath.Ext(path)
	if e == "" {
		return ""
	}
	return e[1:]
}

func profileKey(profile string) string {
	if profile == "" {
		return DefaultProfile
	}
	return profile
}

func testName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (a *Application) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(a.Dir(), path)
}

func (a *Application) describe() string {
	return fmt.Sprintf("%s mode=%s main=%q sources=%d tests=%d", a, a.Mode, a.Main, len(a.Sources), len(a.Tests))
}
