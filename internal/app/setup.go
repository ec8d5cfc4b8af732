package app

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/mkn/maiken/internal/compiler"
	"github.com/mkn/maiken/internal/env"
	"github.com/mkn/maiken/internal/project"
	"github.com/mkn/maiken/internal/vcs"
)

// setup fills the Application from its descriptor and the selected profile
// and resolves its dependencies through the Registry.
func (a *Application) setup(ctx context.Context) error {
	desc := a.Project.Descriptor()
	f := desc.Fields
	if a.Profile != "" {
		p, ok := desc.Profile(a.Profile)
		if !ok {
			return a.errorf("profile %s does not exist", a.Profile)
		}
		f = overlay(f, p.Fields)
	}
	s := a.reg.settings

	a.props["MKN_OBJ"] = s.ObjectExt
	a.props["MKN_REPO"] = s.RepoDir
	keys := make([]string, 0, len(desc.Property))
	for k := range desc.Property {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		a.props[k] = a.Resolve(desc.Property[k])
	}

	for e, ft := range s.FileTypes {
		a.Files[e] = compiler.Tools{Compiler: ft.Compiler, Linker: ft.Linker, Archiver: ft.Archiver}
	}
	for _, ft := range f.File {
		for _, e := range ft.Extensions() {
			t := a.Files[e]
			if ft.Compiler != "" {
				t.Compiler = a.Resolve(ft.Compiler)
			}
			if ft.Linker != "" {
				t.Linker = a.Resolve(ft.Linker)
			}
			if ft.Archiver != "" {
				t.Archiver = a.Resolve(ft.Archiver)
			}
			a.Files[e] = t
		}
	}
	for e, t := range a.Files {
		if t.Linker == "" {
			t.Linker = t.Compiler
			a.Files[e] = t
		}
	}

	mode, err := compiler.ParseMode(f.Mode)
	if err != nil {
		return a.errorf("%v", err)
	}
	a.Mode = mode
	a.Args = a.Resolve(f.Arg)
	a.Link = a.Resolve(f.Link)
	for base, flags := range f.CLink {
		a.CompilerLink[base] = a.Resolve(flags)
	}
	a.Out = a.Resolve(f.Out)
	if f.Main != "" {
		a.Main = a.abs(a.Resolve(f.Main))
	}
	a.Lang = strings.TrimPrefix(f.Lang, ".")
	if a.Lang == "" && a.Main != "" {
		a.Lang = ext(a.Main)
	}

	dir := "build"
	if a.Profile != "" {
		dir = a.Profile
	}
	a.BuildDir = filepath.Join(a.Dir(), "bin", dir)
	if f.Install != "" {
		a.InstallDir = a.abs(a.Resolve(f.Install))
	}

	for _, inc := range f.Inc {
		a.Includes.Add(a.abs(a.Resolve(inc)))
	}
	for _, p := range f.Path {
		a.LibraryPaths.Add(a.abs(a.Resolve(p)))
	}
	for _, lib := range f.Lib {
		a.Libraries.Add(a.Resolve(lib))
	}
	for i := range f.Env {
		v, err := env.ParseNode(&f.Env[i], a, a.Project.File())
		if err != nil {
			return err
		}
		a.Env = append(a.Env, v)
	}

	tests, err := a.expand(f.Test)
	if err != nil {
		return err
	}
	skip := map[string]bool{a.Main: true}
	for _, t := range tests {
		skip[t] = true
		a.Tests = append(a.Tests, Test{Path: t, Name: testName(t)})
	}
	srcs, err := a.expand(f.Src)
	if err != nil {
		return err
	}
	for _, src := range srcs {
		if !skip[src] {
			a.Sources = append(a.Sources, src)
		}
	}
	if a.Lang == "" && len(a.Sources) > 0 {
		a.Lang = ext(a.Sources[0])
	}

	if err := a.resolveDeps(ctx, f.Dep); err != nil {
		return err
	}
	a.ready = true
	return nil
}

// overlay returns base with the profile fields applied: scalars replace,
// lists and maps extend.
func overlay(base, p project.Fields) project.Fields {
	out := base
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&out.Main, p.Main)
	set(&out.Out, p.Out)
	set(&out.Lang, p.Lang)
	set(&out.Mode, p.Mode)
	set(&out.Install, p.Install)
	out.Link = strings.TrimSpace(base.Link + " " + p.Link)
	out.Arg = strings.TrimSpace(base.Arg + " " + p.Arg)

	out.Src = append(append(project.List{}, base.Src...), p.Src...)
	out.Inc = append(append(project.List{}, base.Inc...), p.Inc...)
	out.Lib = append(append(project.List{}, base.Lib...), p.Lib...)
	out.Path = append(append(project.List{}, base.Path...), p.Path...)
	out.Test = append(append(project.List{}, base.Test...), p.Test...)
	out.File = append(append([]project.FileType{}, base.File...), p.File...)
	out.Env = append(append([]yaml.Node{}, base.Env...), p.Env...)
	out.Dep = append(append([]project.Dependency{}, base.Dep...), p.Dep...)

	out.CLink = make(map[string]string, len(base.CLink)+len(p.CLink))
	for k, v := range base.CLink {
		out.CLink[k] = v
	}
	for k, v := range p.CLink {
		out.CLink[k] = v
	}
	return out
}

// expand turns descriptor paths into source files. Directories are walked
// for files whose extension has configured tools.
func (a *Application) expand(entries project.List) ([]string, error) {
	var files []string
	for _, e := range entries {
		path := a.abs(a.Resolve(e))
		fi, err := os.Stat(path)
		if err != nil {
			return nil, a.errorf("source %s does not exist", path)
		}
		if !fi.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if _, ok := a.Tools(ext(p)); ok {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func (a *Application) resolveDeps(ctx context.Context, deps []project.Dependency) error {
	for _, d := range deps {
		dep, err := a.dependency(ctx, d)
		if err != nil {
			return err
		}
		a.Deps = append(a.Deps, dep)
		// dep is still being set up when it is part of a cycle
		if !dep.ready {
			continue
		}
		a.Includes.Add(dep.Includes.Slice()...)
		if dep.BuildsLibrary() {
			a.Libraries.Add(dep.OutName())
			a.LibraryPaths.Add(dep.OutDir())
		}
		a.Libraries.Add(dep.Libraries.Slice()...)
		a.LibraryPaths.Add(dep.LibraryPaths.Slice()...)
	}
	return nil
}

func (a *Application) dependency(ctx context.Context, d project.Dependency) (*Application, error) {
	var dir string
	switch {
	case d.Local != "":
		dir = a.abs(a.Resolve(d.Local))
	case d.SCM != "":
		fetched, err := a.fetch(ctx, d)
		if err != nil {
			return nil, err
		}
		dir = fetched
	case d.Name != "":
		existing, err := a.reg.GetOrNil(d.Name)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return a.reg.GetOrCreate(ctx, existing.Project, d.Profile, true)
		}
		dir = filepath.Join(a.reg.settings.RepoDir, d.Name, versionDir(a.Resolve(d.Version)))
	default:
		return nil, a.errorf("dependency needs a name, local or scm")
	}

	proj, err := project.Load(dir)
	if err != nil {
		if errors.Is(err, project.ErrMissingDescriptor) && d.Local == "" && d.SCM == "" {
			return nil, a.errorf("dependency %s not found in %s, set local or scm", d.Name, dir)
		}
		return nil, err
	}
	if d.Name != "" && proj.Name() != d.Name {
		return nil, a.errorf("dependency %s resolves to project %s", d.Name, proj.Name())
	}
	return a.reg.GetOrCreate(ctx, proj, d.Profile, true)
}

// fetch checks out an scm dependency under the repository directory and
// returns its location. An existing checkout is reused.
func (a *Application) fetch(ctx context.Context, d project.Dependency) (string, error) {
	remote := a.Resolve(d.SCM)
	ref, err := vcs.Resolve(ctx, a.reg.vcs, remote, a.Resolve(d.Version))
	if err != nil {
		return "", err
	}
	name := d.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(remote), ".git")
	}
	dir := filepath.Join(a.reg.settings.RepoDir, name, versionDir(ref))
	if _, err := os.Stat(filepath.Join(dir, project.FileName)); err == nil {
		return dir, nil
	}
	logrus.Infof("fetching %s %s", remote, ref)
	if err := a.reg.vcs.Sync(ctx, remote, ref, dir); err != nil {
		return "", err
	}
	return dir, nil
}

func versionDir(v string) string {
	if v == "" {
		return "master"
	}
	return v
}
