package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mkn/maiken/internal/compiler"
	"github.com/mkn/maiken/internal/project"
	"github.com/mkn/maiken/internal/settings"
)

// fakeRunner records commands and creates their output file.
type fakeRunner struct {
	mu   sync.Mutex
	cmds []compiler.Command
	fail bool
}

func (f *fakeRunner) Run(_ context.Context, cmd compiler.Command, _ []string) compiler.ProcessCapture {
	f.mu.Lock()
	f.cmds = append(f.cmds, cmd)
	f.mu.Unlock()
	if f.fail {
		return compiler.NewProcessCapture(cmd.String(), cmd.Output, false, "boom")
	}
	if cmd.Output != "" {
		_ = os.WriteFile(cmd.Output, nil, 0o644)
	}
	return compiler.NewProcessCapture(cmd.String(), cmd.Output, true, "")
}

func writeProject(t *testing.T, dir, descriptor string, files ...string) *project.Project {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, project.FileName), []byte(descriptor), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		path := filepath.Join(dir, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("int x;\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	p, err := project.Load(dir)
	if err != nil {
		t.Fatalf("Load %s: %v", dir, err)
	}
	return p
}

func newTestRegistry(t *testing.T) (*Registry, *fakeRunner) {
	t.Helper()
	s := settings.Default()
	s.RepoDir = filepath.Join(t.TempDir(), "repo")
	runner := &fakeRunner{}
	return NewRegistry(s, compiler.NewRegistry(), WithRunner(runner), WithOutput(&bytes.Buffer{})), runner
}

func TestGetOrCreateIdentity(t *testing.T) {
	reg, _ := newTestRegistry(t)
	proj := writeProject(t, t.TempDir(), "name: a\nprofile:\n  - name: dbg\n")
	ctx := context.Background()

	for _, profile := range []string{"", "dbg"} {
		first, err := reg.GetOrCreate(ctx, proj, profile, true)
		if err != nil {
			t.Fatal(err)
		}
		second, err := reg.GetOrCreate(ctx, proj, profile, true)
		if err != nil {
			t.Fatal(err)
		}
		if first != second {
			t.Errorf("profile %q: GetOrCreate returned two instances", profile)
		}
		if first.Root {
			t.Errorf("profile %q: dependency acquisition set root", profile)
		}
	}
	if n := len(reg.Applications()); n != 2 {
		t.Errorf("registry holds %d applications, want 2", n)
	}

	// the same directory through a different path is the same project
	again, err := project.Load(filepath.Join(proj.Dir(), "."))
	if err != nil {
		t.Fatal(err)
	}
	a, _ := reg.GetOrCreate(ctx, again, "", false)
	b, _ := reg.GetOrCreate(ctx, proj, "", false)
	if a != b {
		t.Error("canonical path lookup returned a new instance")
	}
}

func TestGetOrCreateRoot(t *testing.T) {
	reg, _ := newTestRegistry(t)
	proj := writeProject(t, t.TempDir(), "name: a\n")
	ctx := context.Background()

	first, err := reg.GetOrCreateRoot(ctx, proj, "", true)
	if err != nil {
		t.Fatal(err)
	}
	second, err := reg.GetOrCreateRoot(ctx, proj, "", true)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("GetOrCreateRoot returned two instances")
	}
	if !second.Root {
		t.Error("root flag not set")
	}

	// a later dependency acquisition never downgrades the root
	dep, _ := reg.GetOrCreate(ctx, proj, "", true)
	if dep != first || !dep.Root {
		t.Error("dependency acquisition changed the root application")
	}
}

func TestGetOrNil(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	dir := t.TempDir()
	proj := writeProject(t, filepath.Join(dir, "a"), "name: a\nprofile:\n  - name: x\n  - name: y\n")
	other := writeProject(t, filepath.Join(dir, "b"), "name: b\n")

	if a, err := reg.GetOrNil("a"); a != nil || err != nil {
		t.Fatalf("empty registry: %v, %v", a, err)
	}

	x, _ := reg.GetOrCreate(ctx, proj, "x", true)
	_, _ = reg.GetOrCreate(ctx, other, "", true)
	got, err := reg.GetOrNil("a")
	if err != nil || got != x {
		t.Fatalf("single match: %v, %v", got, err)
	}

	_, _ = reg.GetOrCreate(ctx, proj, "y", true)
	got, err = reg.GetOrNil("a")
	var amb *AmbiguityError
	if !errors.As(err, &amb) {
		t.Fatalf("two matches err = %v, want *AmbiguityError", err)
	}
	if got != nil || len(amb.Matches) != 2 || amb.Name != "a" {
		t.Errorf("ambiguity = %+v, app = %v", amb, got)
	}
	if !strings.Contains(err.Error(), "multiple versions") {
		t.Errorf("error %q", err)
	}
}

func TestSetupRestoresWorkingDir(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	proj := writeProject(t, t.TempDir(), "name: a\n")

	if _, err := reg.GetOrCreate(ctx, proj, "missing", true); err == nil {
		t.Fatal("unknown profile accepted")
	} else {
		var ce *ConfigError
		if !errors.As(err, &ce) || ce.File != proj.File() {
			t.Errorf("err = %v, want ConfigError naming the descriptor", err)
		}
	}
	if now, _ := os.Getwd(); now != wd {
		t.Errorf("working directory after failed setup = %s, want %s", now, wd)
	}

	if _, err := reg.GetOrCreate(ctx, proj, "", true); err != nil {
		t.Fatal(err)
	}
	if now, _ := os.Getwd(); now != wd {
		t.Errorf("working directory after setup = %s, want %s", now, wd)
	}
}

func TestPushDir(t *testing.T) {
	wd, _ := os.Getwd()
	dir, _ := project.Canonical(t.TempDir())

	popd, err := PushDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if now, _ := os.Getwd(); now != dir {
		t.Errorf("Getwd = %s, want %s", now, dir)
	}
	popd()
	if now, _ := os.Getwd(); now != wd {
		t.Errorf("Getwd after popd = %s, want %s", now, wd)
	}

	if _, err := PushDir(filepath.Join(dir, "missing")); err == nil {
		t.Error("PushDir into a missing directory succeeded")
	}
}

func TestCreate(t *testing.T) {
	reg, _ := newTestRegistry(t)
	dir := t.TempDir()
	writeProject(t, dir, "name: a\nprofile:\n  - name: x\n  - name: y\n")

	apps, err := reg.Create(context.Background(), Args{ArgDirectory: dir, ArgProfile: "x,y", ArgNodes: "true"})
	if err != nil {
		t.Fatal(err)
	}
	if len(apps) != 2 || apps[0].Profile != "x" || apps[1].Profile != "y" {
		t.Fatalf("apps = %v", apps)
	}
	for _, a := range apps {
		if !a.Root || !a.Nodes {
			t.Errorf("%s root=%v nodes=%v", a, a.Root, a.Nodes)
		}
	}

	apps, err = reg.Create(context.Background(), Args{ArgDirectory: dir})
	if err != nil {
		t.Fatal(err)
	}
	if len(apps) != 1 || apps[0].ProfileKey() != DefaultProfile || apps[0].Nodes {
		t.Errorf("default create = %v", apps)
	}

	if _, err := reg.Create(context.Background(), Args{ArgDirectory: t.TempDir()}); !errors.Is(err, project.ErrMissingDescriptor) {
		t.Errorf("missing descriptor err = %v", err)
	}
}

func TestSetupFailureNotCached(t *testing.T) {
	reg, _ := newTestRegistry(t)
	proj := writeProject(t, t.TempDir(), "name: a\nsrc: missing.cpp\n")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		a, err := reg.GetOrCreateRoot(ctx, proj, "", true)
		if err == nil || !strings.Contains(err.Error(), "missing.cpp") {
			t.Fatalf("attempt %d: app=%v err=%v, want the setup error", i, a, err)
		}
		if n := len(reg.Applications()); n != 0 {
			t.Errorf("attempt %d: registry holds %d applications after a failed setup", i, n)
		}
		if got, _ := reg.GetOrNil("a"); got != nil {
			t.Errorf("attempt %d: GetOrNil found the failed application", i)
		}
	}

	// a dependency that fails takes its dependent with it
	dir := t.TempDir()
	writeProject(t, filepath.Join(dir, "bad"), "name: bad\nsrc: missing.cpp\n")
	top := writeProject(t, filepath.Join(dir, "top"), "name: top\ndep:\n  - local: ../bad\n")
	for i := 0; i < 2; i++ {
		if _, err := reg.GetOrCreate(ctx, top, "", true); err == nil {
			t.Fatalf("attempt %d: dependent of a failed setup resolved", i)
		}
	}
	if n := len(reg.Applications()); n != 0 {
		t.Errorf("registry holds %d applications", n)
	}
}

func TestCreateNodesReachDependencies(t *testing.T) {
	reg, _ := newTestRegistry(t)
	dir := t.TempDir()
	writeProject(t, filepath.Join(dir, "base"), "name: base\nsrc: b.cpp\n", "b.cpp")
	writeProject(t, filepath.Join(dir, "mid"), "name: mid\nsrc: m.cpp\ndep:\n  - local: ../base\n", "m.cpp")
	writeProject(t, filepath.Join(dir, "app"), "name: app\nmain: main.cpp\ndep:\n  - local: ../mid\n", "main.cpp")

	apps, err := reg.Create(context.Background(), Args{ArgDirectory: filepath.Join(dir, "app"), ArgNodes: "true"})
	if err != nil {
		t.Fatal(err)
	}
	all := reg.Applications()
	if len(all) != 3 {
		t.Fatalf("registry holds %d applications, want 3", len(all))
	}
	for _, a := range all {
		if !a.Nodes {
			t.Errorf("%s has nodes disabled", a)
		}
	}
	if apps[0].Deps[0].Root || apps[0].Deps[0].Deps[0].Root {
		t.Error("dependency marked root")
	}
}
