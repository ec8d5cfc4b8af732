package compiler

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// ErrUnsupportedCompiler is returned when a compiler name or backend id
// has no registered Backend.
var ErrUnsupportedCompiler = errors.New("unsupported compiler")

// Backend ids.
const (
	GCC   = "gcc"
	Clang = "clang"
	NVCC  = "nvcc"
	MSVC  = "msvc"
)

// Registry maps displayed compiler names to backend ids and backend ids
// to their Backend. It is populated at startup and read-only afterwards.
type Registry struct {
	bases    map[string]string
	backends map[string]Backend
}

// NewRegistry returns a Registry holding the built-in backends.
func NewRegistry() *Registry {
	r := &Registry{
		bases:    make(map[string]string),
		backends: make(map[string]Backend),
	}
	r.Register(GCC, &gnu{sharedFlags: []string{"-shared"}}, "gcc", "g++", "cc", "c++")
	r.Register(Clang, &gnu{sharedFlags: []string{"-shared"}}, "clang", "clang++")
	r.Register(NVCC, &gnu{sharedFlags: []string{"-shared", "-Xcompiler", "-fPIC"}}, "nvcc")
	r.Register(MSVC, &msvc{}, "cl", "cl.exe")
	return r
}

// Register installs b under base and makes every name resolve to base.
func (r *Registry) Register(base string, b Backend, names ...string) {
	r.backends[base] = b
	r.bases[base] = base
	for _, n := range names {
		r.bases[n] = base
	}
}

// Alias makes name resolve to the existing backend id base.
func (r *Registry) Alias(name, base string) error {
	if _, ok := r.backends[base]; !ok {
		return fmt.Errorf("alias %s: %w: %s", name, ErrUnsupportedCompiler, base)
	}
	r.bases[name] = base
	return nil
}

// Base returns the backend id for a compiler string such as "g++-13 -std=c++17".
// Only the program name counts; a trailing version suffix is ignored.
func (r *Registry) Base(compiler string) (string, error) {
	f := strings.Fields(compiler)
	if len(f) == 0 {
		return "", fmt.Errorf("%w: empty compiler", ErrUnsupportedCompiler)
	}
	name := filepath.Base(f[0])
	if base, ok := r.bases[name]; ok {
		return base, nil
	}
	if base, ok := r.bases[trimVersion(name)]; ok {
		return base, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedCompiler, name)
}

// Get returns the Backend registered for base.
func (r *Registry) Get(base string) (Backend, error) {
	b, ok := r.backends[base]
	if !ok {
		return nil, fmt.Errorf("%w: no backend %s", ErrUnsupportedCompiler, base)
	}
	return b, nil
}

// trimVersion strips a "-13" or "-13.2" suffix from a driver name.
func trimVersion(name string) string {
	i := strings.LastIndexByte(name, '-')
	if i <= 0 {
		return name
	}
	ver := name[i+1:]
	if ver == "" {
		return name
	}
	for _, c := range ver {
		if !unicode.IsDigit(c) && c != '.' {
			return name
		}
	}
	return name[:i]
}
