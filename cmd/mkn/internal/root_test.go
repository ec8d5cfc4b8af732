package internal

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mkn/maiken/internal/compiler"
	"github.com/mkn/maiken/internal/settings"
)

func TestNewRegistryAliases(t *testing.T) {
	s := settings.Default()
	s.Compilers = map[string]string{"my-cc": compiler.GCC}
	reg, err := newRegistry(s)
	if err != nil {
		t.Fatal(err)
	}
	if base, err := reg.Compilers().Base("my-cc -std=c11"); err != nil || base != compiler.GCC {
		t.Errorf("Base(my-cc) = %q, %v", base, err)
	}

	s.Compilers = map[string]string{"x": "fortran"}
	if _, err := newRegistry(s); !errors.Is(err, compiler.ErrUnsupportedCompiler) {
		t.Errorf("unknown backend alias: %v", err)
	}
}

func TestDistOptions(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		hosts   []string
		want    int
	}{
		{"disabled", false, []string{"a:8080"}, 0},
		{"no hosts", true, nil, 0},
		{"enabled", true, []string{"a:8080", "b:8080"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := settings.Default()
			s.Nodes.Enabled = tt.enabled
			s.Nodes.Hosts = tt.hosts
			s.Nodes.DrainTimeout = time.Second
			if got := len(distOptions(s)); got != tt.want {
				t.Errorf("distOptions returned %d options, want %d", got, tt.want)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "v1.2.3"
	defer func() { Version = "" }()

	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	if got := strings.TrimSpace(out.String()); got != "mkn v1.2.3" {
		t.Errorf("version output = %q", got)
	}
}
