// Package build compiles Applications and links them into executables,
// libraries and test binaries.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mkn/maiken/internal/app"
	"github.com/mkn/maiken/internal/compiler"
)

// Compiler turns (source, object) pairs of an Application into objects.
type Compiler interface {
	Compile(ctx context.Context, a *app.Application, pairs []app.SourceObject, objects *app.Strings) error
}

// LocalCompiler compiles in this process.
type LocalCompiler struct{}

func (LocalCompiler) Compile(ctx context.Context, a *app.Application, pairs []app.SourceObject, objects *app.Strings) error {
	return a.Compile(ctx, pairs, objects)
}

// Sender distributes a built artifact to remote nodes.
type Sender interface {
	Send(ctx context.Context, file string) error
}

// Executioner drives the compile and link steps of Applications.
type Executioner struct {
	reg    *app.Registry
	local  Compiler
	remote Compiler
	sender Sender
}

// Option configures an Executioner.
type Option func(*Executioner)

// WithRemoteCompiler compiles Applications with Nodes set through c when
// remote compilation is enabled.
func WithRemoteCompiler(c Compiler) Option {
	return func(e *Executioner) { e.remote = c }
}

// WithSender sets where artifacts of Applications with Nodes set are sent.
func WithSender(s Sender) Option {
	return func(e *Executioner) { e.sender = s }
}

func New(reg *app.Registry, opts ...Option) *Executioner {
	e := &Executioner{reg: reg, local: LocalCompiler{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executioner) compilerFor(a *app.Application) Compiler {
	if a.Nodes && e.remote != nil && e.reg.Settings().Nodes.Compile {
		return e.remote
	}
	return e.local
}

type artifact int

const (
	executable artifact = iota
	library
)

func (k artifact) String() string {
	if k == library {
		return "lib"
	}
	return "bin"
}

func configError(a *app.Application, format string, args ...any) error {
	return &app.ConfigError{File: a.Project.File(), Msg: fmt.Sprintf(format, args...)}
}

// tools returns the tools for file type ext, failing when the type is
// unknown or has no compiler.
func tools(a *app.Application, ext, artifact string) (compiler.Tools, error) {
	t, ok := a.Tools(ext)
	if !ok {
		return t, configError(a, "Unable to handle artifact: %q - type is not in file list", artifact)
	}
	if t.Compiler == "" {
		return t, configError(a, "No compiler found for filetype %s", ext)
	}
	return t, nil
}

func backend(a *app.Application, t compiler.Tools) (string, compiler.Backend, error) {
	base, b, err := a.Backend(t.Compiler)
	if err != nil {
		if errors.Is(err, compiler.ErrUnsupportedCompiler) {
			return "", nil, fmt.Errorf("UNSUPPORTED COMPILER EXCEPTION: %w", err)
		}
		return "", nil, err
	}
	return base, b, nil
}

// link builds and runs the link command for one artifact.
func (e *Executioner) link(ctx context.Context, a *app.Application, t compiler.Tools, base string, b compiler.Backend,
	objects []string, out string, kind artifact) (compiler.ProcessCapture, error) {
	s := e.reg.Settings()
	flags := NewLinkFlags(s, a, base, b)
	if s.Info && !s.DryRun {
		logList("LIBRARIES", a.Libraries.Slice())
		logList("LIBRARY PATHS", a.LibraryPaths.Slice())
		if end := flags.End(); len(end) > 0 {
			logrus.Infof("LINKER ARGUMENTS\n\t%s", strings.Join(end, " "))
		}
	}

	l := compiler.Link{
		Linker:       flags.Linker(t.Linker),
		End:          flags.End(),
		Objects:      objects,
		Libraries:    a.Libraries.Slice(),
		LibraryPaths: a.LibraryPaths.Slice(),
		Out:          out,
		Mode:         a.Mode,
	}
	var cmd compiler.Command
	switch {
	case kind == executable:
		cmd = b.ExecutableCommand(l)
	case a.Mode == compiler.ModeStatic:
		if t.Archiver == "" {
			return compiler.ProcessCapture{}, configError(a, "No archiver found for filetype %s", a.Lang)
		}
		// archivers take none of the driver optimisation or debug flags
		cmd = b.ArchiveCommand(t.Archiver, objects, out)
	default:
		cmd = b.LibraryCommand(l)
	}

	if s.DryRun {
		fmt.Fprintln(e.reg.Output(), cmd)
		return compiler.NewProcessCapture(cmd.String(), out, true, ""), nil
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return compiler.ProcessCapture{}, err
	}
	capture := e.reg.Runner().Run(ctx, cmd, a.Environ())
	if err := compiler.Check(capture); err != nil {
		return capture, err
	}
	logrus.Info(cmd)
	logrus.Infof("Creating %s: %s", kind, out)

	if a.Nodes && e.sender != nil {
		if err := e.sender.Send(ctx, capture.File()); err != nil {
			return capture, fmt.Errorf("distribute %s: %w", capture.File(), err)
		}
	}
	return capture, nil
}

func logList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	logrus.Infof("%s\n\t%s", title, strings.Join(items, "\n\t"))
}

// BuildExecutable links objects and the object of a.Main into an
// executable. The link mode of a is left untouched.
func (e *Executioner) BuildExecutable(ctx context.Context, a *app.Application, objects []string) (compiler.ProcessCapture, error) {
	t, err := tools(a, ext(a.Main), a.Main)
	if err != nil {
		return compiler.ProcessCapture{}, err
	}
	base, b, err := backend(a, t)
	if err != nil {
		return compiler.ProcessCapture{}, err
	}
	name, err := ObjectName(a.Main, e.reg.Settings().ObjectExt)
	if err != nil {
		return compiler.ProcessCapture{}, err
	}
	if err := promote(a, name); err != nil {
		return compiler.ProcessCapture{}, err
	}
	linked := append(append([]string(nil), objects...), filepath.Join(a.ObjDir(), name))
	out := filepath.Join(a.OutDir(), a.OutName())

	capture, err := e.link(ctx, a, t, base, b, linked, out, executable)
	if err != nil {
		return capture, err
	}
	return capture, relocate(a, name)
}

// BuildLibrary links objects into a library of a.Lang. ModeNone is
// treated as ModeShared.
func (e *Executioner) BuildLibrary(ctx context.Context, a *app.Application, objects []string) (compiler.ProcessCapture, error) {
	t, err := tools(a, a.Lang, a.Lang)
	if err != nil {
		return compiler.ProcessCapture{}, err
	}
	if a.Mode == compiler.ModeNone {
		a.Mode = compiler.ModeShared
	}
	base, b, err := backend(a, t)
	if err != nil {
		return compiler.ProcessCapture{}, err
	}
	out := filepath.Join(a.OutDir(), b.LibraryFile(a.OutName(), a.Mode))
	return e.link(ctx, a, t, base, b, objects, out, library)
}

// BuildTest compiles every test source of a and links each one with
// objects into its own binary under the test directory.
func (e *Executioner) BuildTest(ctx context.Context, a *app.Application, objects []string) error {
	type testObject struct {
		test app.Test
		name string
	}
	var (
		pairs []app.SourceObject
		tests []testObject
	)
	for _, t := range a.Tests {
		if _, ok := a.Tools(ext(t.Path)); !ok {
			continue
		}
		name, err := ObjectName(t.Path, e.reg.Settings().ObjectExt)
		if err != nil {
			return err
		}
		tests = append(tests, testObject{test: t, name: name})
		pairs = append(pairs, app.SourceObject{Source: t.Path, Object: filepath.Join(a.ObjDir(), name)})
	}
	if len(tests) == 0 {
		return nil
	}
	for _, to := range tests {
		if err := promote(a, to.name); err != nil {
			return err
		}
	}
	var compiled app.Strings
	if err := e.compilerFor(a).Compile(ctx, a, pairs, &compiled); err != nil {
		return err
	}
	if _, err := collect(&compiled, pairs, ""); err != nil {
		return err
	}
	for _, to := range tests {
		if err := relocate(a, to.name); err != nil {
			return err
		}
	}

	for _, to := range tests {
		t, err := tools(a, ext(to.test.Path), to.test.Path)
		if err != nil {
			return err
		}
		base, b, err := backend(a, t)
		if err != nil {
			return err
		}
		if err := promote(a, to.name); err != nil {
			return err
		}
		linked := append(append([]string(nil), objects...), filepath.Join(a.ObjDir(), to.name))
		if _, err := e.link(ctx, a, t, base, b, linked, filepath.Join(a.TestDir(), to.test.Name), executable); err != nil {
			return err
		}
		if err := relocate(a, to.name); err != nil {
			return err
		}
	}
	return nil
}

// Options select what Build produces.
type Options struct {
	// Test also builds the tests of root Applications.
	Test bool
}

// Build builds roots and their dependencies, every dependency before the
// Applications that need it. An Application shared by several roots is
// built once.
func (e *Executioner) Build(ctx context.Context, roots []*app.Application, opts Options) error {
	var (
		order   []*app.Application
		visited = make(map[*app.Application]bool)
		visit   func(a *app.Application)
	)
	visit = func(a *app.Application) {
		if visited[a] {
			return
		}
		visited[a] = true
		for _, d := range a.Deps {
			visit(d)
		}
		order = append(order, a)
	}
	for _, r := range roots {
		visit(r)
	}

	for _, a := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.build(ctx, a, opts.Test && a.Root); err != nil {
			return fmt.Errorf("build %s: %w", a.Name(), err)
		}
	}
	return nil
}

func (e *Executioner) build(ctx context.Context, a *app.Application, test bool) error {
	objExt := e.reg.Settings().ObjectExt
	var (
		pairs []app.SourceObject
		names []string
	)
	for _, src := range a.Sources {
		name, err := ObjectName(src, objExt)
		if err != nil {
			return err
		}
		pairs = append(pairs, app.SourceObject{Source: src, Object: filepath.Join(a.ObjDir(), name)})
		names = append(names, name)
	}
	var mainName, mainObj string
	if a.Main != "" {
		name, err := ObjectName(a.Main, objExt)
		if err != nil {
			return err
		}
		mainName, mainObj = name, filepath.Join(a.ObjDir(), name)
		pairs = append(pairs, app.SourceObject{Source: a.Main, Object: mainObj})
		names = append(names, name)
	}
	if len(pairs) == 0 {
		logrus.Debugf("nothing to build for %s", a)
		return nil
	}

	for _, name := range names {
		if err := promote(a, name); err != nil {
			return err
		}
	}
	var compiled app.Strings
	if err := e.compilerFor(a).Compile(ctx, a, pairs, &compiled); err != nil {
		return err
	}
	objects, err := collect(&compiled, pairs, mainObj)
	if err != nil {
		return err
	}
	// the main object waits in the holding directory until the executable link
	if mainName != "" {
		if err := relocate(a, mainName); err != nil {
			return err
		}
	}

	if a.BuildsLibrary() {
		if _, err := e.BuildLibrary(ctx, a, objects); err != nil {
			return err
		}
	}
	if a.Main != "" {
		if _, err := e.BuildExecutable(ctx, a, objects); err != nil {
			return err
		}
	}
	if test {
		return e.BuildTest(ctx, a, objects)
	}
	return nil
}

// collect checks that the compiler reported an object for every pair and
// returns the reported objects in order, leaving out exclude.
func collect(compiled *app.Strings, pairs []app.SourceObject, exclude string) ([]string, error) {
	for _, p := range pairs {
		if !compiled.Contains(p.Object) {
			return nil, fmt.Errorf("no object reported for %s", p.Source)
		}
	}
	var objects []string
	for _, o := range compiled.Slice() {
		if o != exclude {
			objects = append(objects, o)
		}
	}
	return objects, nil
}

func ext(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}
