// Package app resolves projects into Applications: one build context per
// project directory and profile, with its dependencies resolved.
package app

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/mod/semver"

	"github.com/mkn/maiken/internal/compiler"
	"github.com/mkn/maiken/internal/project"
	"github.com/mkn/maiken/internal/settings"
	"github.com/mkn/maiken/internal/vcs"
)

// Registry owns every Application of a build. It holds at most one
// Application per canonical project directory and profile.
type Registry struct {
	settings  *settings.Settings
	compilers *compiler.Registry
	runner    compiler.Runner
	vcs       vcs.VCS
	out       io.Writer

	mu    sync.Mutex
	apps  map[string]map[string]*Application
	owned []*Application
}

// Option configures a Registry.
type Option func(*Registry)

// WithRunner sets the runner used to execute compile commands.
func WithRunner(r compiler.Runner) Option {
	return func(reg *Registry) { reg.runner = r }
}

// WithVCS sets the version control client used for scm dependencies.
func WithVCS(v vcs.VCS) Option {
	return func(reg *Registry) { reg.vcs = v }
}

// WithOutput sets where dry-run commands are printed.
func WithOutput(w io.Writer) Option {
	return func(reg *Registry) { reg.out = w }
}

// NewRegistry returns an empty Registry.
func NewRegistry(s *settings.Settings, compilers *compiler.Registry, opts ...Option) *Registry {
	r := &Registry{
		settings:  s,
		compilers: compilers,
		runner:    compiler.ExecRunner{},
		vcs:       vcs.NewGitVCS(),
		out:       os.Stdout,
		apps:      make(map[string]map[string]*Application),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Settings returns the build settings shared by every Application.
func (r *Registry) Settings() *settings.Settings { return r.settings }

// Compilers returns the compiler registry.
func (r *Registry) Compilers() *compiler.Registry { return r.compilers }

// Runner returns the process runner.
func (r *Registry) Runner() compiler.Runner { return r.runner }

// Output returns the writer for dry-run commands.
func (r *Registry) Output() io.Writer { return r.out }

// lookup returns the Application for key, creating and registering it when
// absent. created reports whether this call made it.
func (r *Registry) lookup(proj *project.Project, profile string) (a *Application, created bool) {
	key := profileKey(profile)

	r.mu.Lock()
	defer r.mu.Unlock()
	byProfile, ok := r.apps[proj.Dir()]
	if !ok {
		byProfile = make(map[string]*Application)
		r.apps[proj.Dir()] = byProfile
	}
	if a, ok := byProfile[key]; ok {
		return a, false
	}
	a = newApplication(r, proj, profile)
	byProfile[key] = a
	r.owned = append(r.owned, a)
	return a, true
}

// GetOrCreate returns the Application for proj at profile. A new
// Application is not root; with setup set it is configured with the
// working directory pinned to the project directory. The Application is
// registered before setup runs, so a dependency cycle resolves to it, and
// dropped again if setup fails.
func (r *Registry) GetOrCreate(ctx context.Context, proj *project.Project, profile string, setup bool) (*Application, error) {
	a, created := r.lookup(proj, profile)
	if !created || !setup {
		return a, nil
	}
	if err := r.setupIn(ctx, a); err != nil {
		r.forget(a)
		return nil, err
	}
	return a, nil
}

// GetOrCreateRoot is GetOrCreate for a top level target: the returned
// Application always has Root set.
func (r *Registry) GetOrCreateRoot(ctx context.Context, proj *project.Project, profile string, setup bool) (*Application, error) {
	a, created := r.lookup(proj, profile)
	r.mu.Lock()
	a.Root = true
	r.mu.Unlock()
	if !created || !setup {
		return a, nil
	}
	if err := r.setupIn(ctx, a); err != nil {
		r.forget(a)
		return nil, err
	}
	return a, nil
}

// forget drops a from the registry.
func (r *Registry) forget(a *Application) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if byProfile, ok := r.apps[a.Dir()]; ok && byProfile[a.ProfileKey()] == a {
		delete(byProfile, a.ProfileKey())
	}
	for i, o := range r.owned {
		if o == a {
			r.owned = append(r.owned[:i], r.owned[i+1:]...)
			break
		}
	}
}

// GetOrNil returns the only Application whose project is called name, or
// nil when there is none. More than one match is an *AmbiguityError.
func (r *Registry) GetOrNil(name string) (*Application, error) {
	r.mu.Lock()
	var matches []*Application
	for _, a := range r.owned {
		if a.Name() == name {
			matches = append(matches, a)
		}
	}
	r.mu.Unlock()

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		vi, vj := matches[i].Project.Version(), matches[j].Project.Version()
		if c := semver.Compare(vi, vj); c != 0 {
			return c < 0
		}
		return matches[i].ProfileKey() < matches[j].ProfileKey()
	})
	return nil, &AmbiguityError{Name: name, Matches: matches}
}

// Applications returns every registered Application in creation order.
func (r *Registry) Applications() []*Application {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Application(nil), r.owned...)
}

func (r *Registry) setupIn(ctx context.Context, a *Application) error {
	popd, err := PushDir(a.Dir())
	if err != nil {
		return err
	}
	defer popd()
	if err := a.setup(ctx); err != nil {
		return err
	}
	logrus.Debugf("resolved %s", a.describe())
	return nil
}

// Argument keys understood by Create.
const (
	ArgDirectory = "directory"
	ArgProfile   = "profile"
	ArgNodes     = "nodes"
)

// Args are the build arguments of one invocation, as sent by a client to
// a remote node.
type Args map[string]string

// Create loads the project named by args and returns one root Application
// per requested profile (comma separated; empty selects the default). The
// nodes argument, or the nodes setting, applies to every Application the
// roots depend on.
func (r *Registry) Create(ctx context.Context, args Args) ([]*Application, error) {
	dir := args[ArgDirectory]
	if dir == "" {
		dir = "."
	}
	proj, err := project.Load(dir)
	if err != nil {
		return nil, err
	}
	profiles := []string{""}
	if p := strings.TrimSpace(args[ArgProfile]); p != "" {
		profiles = strings.Split(p, ",")
	}
	nodes := r.settings.Nodes.Enabled
	if v, ok := args[ArgNodes]; ok {
		nodes = v == "true" || v == "1"
	}

	var apps []*Application
	seen := make(map[*Application]bool)
	for _, profile := range profiles {
		a, err := r.GetOrCreateRoot(ctx, proj, strings.TrimSpace(profile), true)
		if err != nil {
			return nil, err
		}
		setNodes(a, nodes, seen)
		apps = append(apps, a)
	}
	return apps, nil
}

func setNodes(a *Application, nodes bool, seen map[*Application]bool) {
	if seen[a] {
		return
	}
	seen[a] = true
	a.Nodes = nodes
	for _, d := range a.Deps {
		setNodes(d, nodes, seen)
	}
}
