// Package project loads the mkn.yaml descriptor of a project directory.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// FileName is the descriptor file looked up in a project directory.
const FileName = "mkn.yaml"

// ErrMissingDescriptor is returned by Load when the directory has no descriptor.
var ErrMissingDescriptor = errors.New("project file does not exist")

// List is a descriptor list. It decodes from a YAML sequence or from a
// whitespace separated scalar.
type List []string

func (l *List) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*l = strings.Fields(n.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := n.Decode(&items); err != nil {
			return err
		}
		*l = nil
		for _, it := range items {
			*l = append(*l, strings.Fields(it)...)
		}
		return nil
	}
	return fmt.Errorf("line %d: expected a list or a string", n.Line)
}

// FileType binds tools to one or more extensions. Type may hold several
// extensions joined by ':'.
type FileType struct {
	Type     string `yaml:"type"`
	Compiler string `yaml:"compiler"`
	Linker   string `yaml:"linker"`
	Archiver string `yaml:"archiver"`
}

// Extensions returns the extensions named by Type.
func (f FileType) Extensions() []string {
	var exts []string
	for _, e := range strings.Split(f.Type, ":") {
		if e = strings.TrimPrefix(strings.TrimSpace(e), "."); e != "" {
			exts = append(exts, e)
		}
	}
	return exts
}

// Dependency names another project. Local points at a directory on disk;
// otherwise SCM is a git remote fetched at Version.
type Dependency struct {
	Name    string `yaml:"name"`
	Profile string `yaml:"profile"`
	Local   string `yaml:"local"`
	SCM     string `yaml:"scm"`
	Version string `yaml:"version"`
}

// Fields are the build settings shared by the descriptor root and its profiles.
type Fields struct {
	Main    string            `yaml:"main"`
	Out     string            `yaml:"out"`
	Lang    string            `yaml:"lang"`
	Mode    string            `yaml:"mode"`
	Src     List              `yaml:"src"`
	Inc     List              `yaml:"inc"`
	Lib     List              `yaml:"lib"`
	Path    List              `yaml:"path"`
	Test    List              `yaml:"test"`
	Link    string            `yaml:"link"`
	Arg     string            `yaml:"arg"`
	Install string            `yaml:"install"`
	File    []FileType        `yaml:"file"`
	Env     []yaml.Node       `yaml:"env"`
	Dep     []Dependency      `yaml:"dep"`
	CLink   map[string]string `yaml:"clink"`
}

// Profile is a named overlay of Fields.
type Profile struct {
	Name   string `yaml:"name"`
	Fields `yaml:",inline"`
}

type Descriptor struct {
	Name     string            `yaml:"name"`
	Version  string            `yaml:"version"`
	Property map[string]string `yaml:"property"`
	Fields   `yaml:",inline"`
	Profiles []Profile `yaml:"profile"`
}

// Project is the read-only view of one directory's descriptor.
type Project struct {
	dir  string
	file string
	desc Descriptor
}

// Load reads the descriptor in dir. The project is identified by the
// canonical form of dir.
func Load(dir string) (*Project, error) {
	canon, err := Canonical(dir)
	if err != nil {
		return nil, err
	}
	file := filepath.Join(canon, FileName)
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w:\n%s", ErrMissingDescriptor, file)
		}
		return nil, err
	}
	return Parse(canon, data)
}

// Parse builds a Project for dir from descriptor data.
func Parse(dir string, data []byte) (*Project, error) {
	p := &Project{dir: dir, file: filepath.Join(dir, FileName)}
	if err := yaml.Unmarshal(data, &p.desc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", p.file, err)
	}
	if p.desc.Name == "" {
		return nil, fmt.Errorf("%s: name is required", p.file)
	}
	if v := p.desc.Version; v != "" && !semver.IsValid(canonicalVersion(v)) {
		return nil, fmt.Errorf("%s: invalid version %q", p.file, v)
	}
	seen := make(map[string]bool)
	for _, prof := range p.desc.Profiles {
		if prof.Name == "" {
			return nil, fmt.Errorf("%s: profile without name", p.file)
		}
		if seen[prof.Name] {
			return nil, fmt.Errorf("%s: duplicate profile %s", p.file, prof.Name)
		}
		seen[prof.Name] = true
	}
	return p, nil
}

// Canonical returns the absolute, symlink-free form of path. Paths that do
// not exist yet are only made absolute.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

func canonicalVersion(v string) string {
	if !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}

// Dir returns the canonical project directory.
func (p *Project) Dir() string { return p.dir }

// File returns the descriptor path.
func (p *Project) File() string { return p.file }

// Name returns the declared project name.
func (p *Project) Name() string { return p.desc.Name }

// Version returns the declared version in semver form, or "" when none is declared.
func (p *Project) Version() string {
	if p.desc.Version == "" {
		return ""
	}
	return canonicalVersion(p.desc.Version)
}

// Descriptor returns the parsed descriptor. Callers must not modify it.
func (p *Project) Descriptor() *Descriptor { return &p.desc }

// Profile returns the profile called name.
func (d *Descriptor) Profile(name string) (*Profile, bool) {
	for i := range d.Profiles {
		if d.Profiles[i].Name == name {
			return &d.Profiles[i], true
		}
	}
	return nil, false
}
