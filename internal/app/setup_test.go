package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mkn/maiken/internal/compiler"
	"github.com/mkn/maiken/internal/env"
)

const libDescriptor = `
name: base
inc: inc
src: src
mode: shared
`

const appDescriptor = `
name: hello
property:
  std: c++17
main: main.cpp
src: src
inc: inc
lib: m
arg: -std=${std}
link: -pthread
test: test
env:
  - MKN_TEST_VAR=$MKN_TEST_VAR:/extra
dep:
  - name: base
    local: ../base
clink:
  gcc: -Wl,--as-needed
profile:
  - name: dbg
    arg: -DDEBUG
    mode: static
    out: hello_dbg
`

func TestSetup(t *testing.T) {
	t.Setenv("MKN_TEST_VAR", "orig")
	reg, _ := newTestRegistry(t)
	root := t.TempDir()
	writeProject(t, filepath.Join(root, "base"), libDescriptor, "src/base.cpp", "inc/base.hpp")
	proj := writeProject(t, filepath.Join(root, "hello"), appDescriptor,
		"main.cpp", "src/a.cpp", "src/sub/b.cc", "src/notes.txt", "test/t1.cpp")

	a, err := reg.GetOrCreateRoot(context.Background(), proj, "", true)
	if err != nil {
		t.Fatal(err)
	}
	dir := proj.Dir()
	base := filepath.Join(filepath.Dir(dir), "base")

	if a.Main != filepath.Join(dir, "main.cpp") || a.Lang != "cpp" {
		t.Errorf("main/lang = %s/%s", a.Main, a.Lang)
	}
	wantSrc := []string{filepath.Join(dir, "src/a.cpp"), filepath.Join(dir, "src/sub/b.cc")}
	if !reflect.DeepEqual(a.Sources, wantSrc) {
		t.Errorf("Sources = %v, want %v", a.Sources, wantSrc)
	}
	if len(a.Tests) != 1 || a.Tests[0].Name != "t1" {
		t.Errorf("Tests = %v", a.Tests)
	}
	if a.Args != "-std=c++17" || a.Link != "-pthread" {
		t.Errorf("args/link = %q/%q", a.Args, a.Link)
	}
	if a.CompilerLink[compiler.GCC] != "-Wl,--as-needed" {
		t.Errorf("CompilerLink = %v", a.CompilerLink)
	}
	if a.BuildDir != filepath.Join(dir, "bin", "build") || a.OutDir() != a.BuildDir {
		t.Errorf("BuildDir = %s", a.BuildDir)
	}
	if a.Mode != compiler.ModeNone {
		t.Errorf("Mode = %v", a.Mode)
	}
	if want := (env.Var{Name: "MKN_TEST_VAR", Value: "orig:/extra", Mode: env.Replace}); len(a.Env) != 1 || a.Env[0] != want {
		t.Errorf("Env = %v", a.Env)
	}
	if tools, ok := a.Tools("cpp"); !ok || tools.Compiler != "g++" || tools.Linker != "g++" {
		t.Errorf("cpp tools = %+v", tools)
	}

	// dependency library propagation
	if len(a.Deps) != 1 || a.Deps[0].Name() != "base" || a.Deps[0].Root {
		t.Fatalf("Deps = %v", a.Deps)
	}
	if want := []string{"m", "base"}; !reflect.DeepEqual(a.Libraries.Slice(), want) {
		t.Errorf("Libraries = %v, want %v", a.Libraries.Slice(), want)
	}
	if want := []string{filepath.Join(base, "bin", "build")}; !reflect.DeepEqual(a.LibraryPaths.Slice(), want) {
		t.Errorf("LibraryPaths = %v, want %v", a.LibraryPaths.Slice(), want)
	}
	if !a.Includes.Contains(filepath.Join(base, "inc")) || !a.Includes.Contains(filepath.Join(dir, "inc")) {
		t.Errorf("Includes = %v", a.Includes.Slice())
	}
}

func TestSetupProfile(t *testing.T) {
	reg, _ := newTestRegistry(t)
	root := t.TempDir()
	writeProject(t, filepath.Join(root, "base"), libDescriptor, "src/base.cpp")
	proj := writeProject(t, filepath.Join(root, "hello"), appDescriptor, "main.cpp", "src/a.cpp", "test/t1.cpp")

	a, err := reg.GetOrCreate(context.Background(), proj, "dbg", true)
	if err != nil {
		t.Fatal(err)
	}
	if a.Args != "-std=c++17 -DDEBUG" {
		t.Errorf("Args = %q", a.Args)
	}
	if a.Mode != compiler.ModeStatic || a.OutName() != "hello_dbg" {
		t.Errorf("mode/out = %v/%s", a.Mode, a.OutName())
	}
	if a.BuildDir != filepath.Join(proj.Dir(), "bin", "dbg") {
		t.Errorf("BuildDir = %s", a.BuildDir)
	}
}

func TestSetupDependencyCycle(t *testing.T) {
	reg, _ := newTestRegistry(t)
	root := t.TempDir()
	writeProject(t, filepath.Join(root, "b"), "name: b\ndep:\n  - local: ../a\n")
	a := writeProject(t, filepath.Join(root, "a"), "name: a\ndep:\n  - local: ../b\n")

	app, err := reg.GetOrCreateRoot(context.Background(), a, "", true)
	if err != nil {
		t.Fatal(err)
	}
	b := app.Deps[0]
	if len(b.Deps) != 1 || b.Deps[0] != app {
		t.Errorf("cycle did not resolve to the registered application")
	}
}

func TestSetupDependencyErrors(t *testing.T) {
	tests := map[string]string{
		"missing named dep": "name: a\ndep:\n  - name: nowhere\n",
		"empty dep":         "name: a\ndep:\n  - profile: x\n",
		"wrong name":        "name: a\ndep:\n  - name: other\n    local: .\n",
		"bad mode":          "name: a\nmode: dynamic\n",
		"missing src":       "name: a\nsrc: nope\n",
		"bad env":           "name: a\nenv:\n  - NOVALUE\n",
	}
	for name, desc := range tests {
		t.Run(name, func(t *testing.T) {
			reg, _ := newTestRegistry(t)
			proj := writeProject(t, t.TempDir(), desc)
			_, err := reg.GetOrCreate(context.Background(), proj, "", true)
			if err == nil {
				t.Fatal("setup succeeded")
			}
			var ce *ConfigError
			var de *env.DirectiveError
			if !errors.As(err, &ce) && !errors.As(err, &de) {
				t.Errorf("err = %T %v, want a configuration error", err, err)
			}
		})
	}
}

func TestSetupNamedDependencyFromRegistry(t *testing.T) {
	reg, _ := newTestRegistry(t)
	root := t.TempDir()
	base := writeProject(t, filepath.Join(root, "base"), libDescriptor, "src/base.cpp")
	proj := writeProject(t, filepath.Join(root, "app"), "name: app\ndep:\n  - name: base\n")
	ctx := context.Background()

	existing, err := reg.GetOrCreate(ctx, base, "", true)
	if err != nil {
		t.Fatal(err)
	}
	a, err := reg.GetOrCreate(ctx, proj, "", true)
	if err != nil {
		t.Fatal(err)
	}
	if a.Deps[0] != existing {
		t.Error("named dependency did not reuse the registered application")
	}
}

func TestCompile(t *testing.T) {
	reg, runner := newTestRegistry(t)
	proj := writeProject(t, t.TempDir(), "name: a\ninc: inc\narg: -Wall\n", "a.cpp", "b.cpp", "c.zz")
	ctx := context.Background()
	a, err := reg.GetOrCreate(ctx, proj, "", true)
	if err != nil {
		t.Fatal(err)
	}
	reg.Settings().Optimise = 2

	obj := filepath.Join(a.ObjDir(), "a.o")
	var objects Strings
	pairs := []SourceObject{{Source: filepath.Join(proj.Dir(), "a.cpp"), Object: obj}}
	if err := a.Compile(ctx, pairs, &objects); err != nil {
		t.Fatal(err)
	}
	if len(runner.cmds) != 1 {
		t.Fatalf("ran %d commands", len(runner.cmds))
	}
	got := runner.cmds[0].String()
	for _, want := range []string{"g++", "-O2", "-Wall", "-I" + filepath.Join(proj.Dir(), "inc"), "-o " + obj, "-c "} {
		if !strings.Contains(got, want) {
			t.Errorf("command %q lacks %q", got, want)
		}
	}
	if !objects.Contains(obj) {
		t.Error("object not recorded")
	}

	// the object is now newer than its source
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(obj, future, future); err != nil {
		t.Fatal(err)
	}
	if err := a.Compile(ctx, pairs, &objects); err != nil {
		t.Fatal(err)
	}
	if len(runner.cmds) != 1 {
		t.Error("up to date object was rebuilt")
	}

	err = a.Compile(ctx, []SourceObject{{Source: filepath.Join(proj.Dir(), "c.zz"), Object: "c.o"}}, &objects)
	var ce *ConfigError
	if !errors.As(err, &ce) || !strings.Contains(ce.Msg, "No compiler found for filetype zz") {
		t.Errorf("unknown type err = %v", err)
	}

	runner.fail = true
	err = a.Compile(ctx, []SourceObject{{Source: filepath.Join(proj.Dir(), "b.cpp"), Object: filepath.Join(a.ObjDir(), "b.o")}}, &objects)
	var pe *compiler.ProcessError
	if !errors.As(err, &pe) || pe.Capture.Output() != "boom" {
		t.Errorf("failed compile err = %v", err)
	}
}

func TestCompileDryRun(t *testing.T) {
	reg, runner := newTestRegistry(t)
	out := &bytes.Buffer{}
	reg.out = out
	reg.Settings().DryRun = true
	proj := writeProject(t, t.TempDir(), "name: a\n", "a.cpp")
	a, err := reg.GetOrCreate(context.Background(), proj, "", true)
	if err != nil {
		t.Fatal(err)
	}

	var objects Strings
	pairs := []SourceObject{{Source: filepath.Join(proj.Dir(), "a.cpp"), Object: filepath.Join(a.ObjDir(), "a.o")}}
	if err := a.Compile(context.Background(), pairs, &objects); err != nil {
		t.Fatal(err)
	}
	if len(runner.cmds) != 0 {
		t.Error("dry run executed a command")
	}
	if !strings.Contains(out.String(), "-c "+pairs[0].Source) {
		t.Errorf("dry run output = %q", out.String())
	}
}

func TestResolve(t *testing.T) {
	t.Setenv("MKN_RESOLVE", "env")
	a := &Application{props: map[string]string{"p": "prop", "MKN_RESOLVE": "shadow"}}
	tests := map[string]string{
		"${p}/x":         "prop/x",
		"$p":             "prop",
		"${MKN_RESOLVE}": "shadow",
		"${HOME_NOPE_1}": "${HOME_NOPE_1}",
		"plain":          "plain",
	}
	for in, want := range tests {
		if got := a.Resolve(in); got != want {
			t.Errorf("Resolve(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStrings(t *testing.T) {
	var s Strings
	s.Add("b", "a", "b", "", "c", "a")
	if want := []string{"b", "a", "c"}; !reflect.DeepEqual(s.Slice(), want) {
		t.Errorf("Slice = %v, want %v", s.Slice(), want)
	}
	if s.Len() != 3 || !s.Contains("c") || s.Contains("") {
		t.Errorf("Len/Contains wrong: %v", s.Slice())
	}
}
