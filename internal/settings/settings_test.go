package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	s := Default()
	if s.ObjectExt != "o" {
		t.Errorf("ObjectExt = %q, want %q", s.ObjectExt, "o")
	}
	if s.Nodes.DrainTimeout != 10*time.Second {
		t.Errorf("DrainTimeout = %v, want 10s", s.Nodes.DrainTimeout)
	}
	ft, ok := s.FileTypes["cpp"]
	if !ok {
		t.Fatal("default file types miss cpp")
	}
	if ft.Compiler != "g++" || ft.Archiver != "ar -cr" {
		t.Errorf("cpp file type = %+v", ft)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("default settings invalid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	content := `
optimise: 2
debug: 1
linker: -Wl,-rpath=.
obj: .obj
nodes:
  enabled: true
  hosts: [10.0.0.1:8080, 10.0.0.2:8080]
  drain_timeout: 3s
file:
  cu:
    compiler: nvcc
    linker: nvcc
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Optimise != 2 || s.Debug != 1 {
		t.Errorf("levels = %d/%d, want 2/1", s.Optimise, s.Debug)
	}
	if s.Linker != "-Wl,-rpath=." {
		t.Errorf("Linker = %q", s.Linker)
	}
	if s.ObjectExt != "obj" {
		t.Errorf("ObjectExt = %q, want leading dot trimmed", s.ObjectExt)
	}
	if len(s.Nodes.Hosts) != 2 || s.Nodes.DrainTimeout != 3*time.Second {
		t.Errorf("Nodes = %+v", s.Nodes)
	}
	if s.FileTypes["cu"].Compiler != "nvcc" {
		t.Errorf("cu file type = %+v", s.FileTypes["cu"])
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MKN_OBJ", ".obj")
	t.Setenv("MKN_DRY_RUN", "true")

	s, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ObjectExt != "obj" {
		t.Errorf("ObjectExt = %q, want %q", s.ObjectExt, "obj")
	}
	if !s.DryRun {
		t.Error("DryRun not taken from MKN_DRY_RUN")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit settings file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Settings)
	}{
		{"empty object ext", func(s *Settings) { s.ObjectExt = "" }},
		{"dotted object ext", func(s *Settings) { s.ObjectExt = ".obj" }},
		{"optimise too high", func(s *Settings) { s.Optimise = 10 }},
		{"debug too high", func(s *Settings) { s.Debug = 12 }},
		{"nodes without hosts", func(s *Settings) { s.Nodes.Enabled = true }},
		{"zero drain timeout", func(s *Settings) { s.Nodes.DrainTimeout = 0 }},
		{"zero session ttl", func(s *Settings) { s.Node.SessionTTL = 0 }},
		{"file type without compiler", func(s *Settings) {
			s.FileTypes["f90"] = FileType{Linker: "gfortran"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.modify(s)
			before := *s
			if err := s.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
			if s.ObjectExt != before.ObjectExt {
				t.Errorf("Validate changed ObjectExt from %q to %q", before.ObjectExt, s.ObjectExt)
			}
		})
	}
}
