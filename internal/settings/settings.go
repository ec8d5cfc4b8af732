// Package settings holds the process-wide options that affect a build:
// optimisation and debug levels, global linker flags, the object file
// extension and the remote node configuration.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileType configures the tools used for one file extension.
type FileType struct {
	Compiler string `mapstructure:"compiler"`
	Linker   string `mapstructure:"linker"`
	Archiver string `mapstructure:"archiver"`
}

// Nodes configures distribution to remote build nodes.
type Nodes struct {
	Enabled      bool          `mapstructure:"enabled"`
	Compile      bool          `mapstructure:"compile"`
	Hosts        []string      `mapstructure:"hosts"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// Node configures this process when it serves as a remote build node.
type Node struct {
	Listen       string        `mapstructure:"listen"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	SessionLimit int           `mapstructure:"session_limit"`
	ReceiveDir   string        `mapstructure:"receive_dir"`
}

// Logging configures the logger.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type Settings struct {
	DryRun    bool   `mapstructure:"dry_run"`
	Info      bool   `mapstructure:"info"`
	Optimise  uint8  `mapstructure:"optimise"`
	Debug     uint8  `mapstructure:"debug"`
	Linker    string `mapstructure:"linker"`
	AllLinker string `mapstructure:"all_linker"`
	// ObjectExt is the object file extension without the leading dot.
	ObjectExt string `mapstructure:"obj"`
	RepoDir   string `mapstructure:"repo_dir"`

	Compilers map[string]string   `mapstructure:"compilers"`
	FileTypes map[string]FileType `mapstructure:"file"`

	Nodes   Nodes   `mapstructure:"nodes"`
	Node    Node    `mapstructure:"node"`
	Logging Logging `mapstructure:"logging"`
}

// Default returns the settings used when no file, env or flag overrides them.
func Default() *Settings {
	s := &Settings{}
	v := viper.New()
	setDefaults(v)
	_ = v.Unmarshal(s)
	return s
}

func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	// every key needs a default so AutomaticEnv can reach it through Unmarshal
	v.SetDefault("dry_run", false)
	v.SetDefault("info", false)
	v.SetDefault("optimise", 0)
	v.SetDefault("debug", 0)
	v.SetDefault("linker", "")
	v.SetDefault("all_linker", "")
	v.SetDefault("obj", "o")
	v.SetDefault("repo_dir", filepath.Join(home, ".maiken", "repo"))
	v.SetDefault("file", map[string]any{
		"c":   map[string]any{"compiler": "gcc", "linker": "gcc", "archiver": "ar -cr"},
		"cc":  map[string]any{"compiler": "g++", "linker": "g++", "archiver": "ar -cr"},
		"cpp": map[string]any{"compiler": "g++", "linker": "g++", "archiver": "ar -cr"},
		"cxx": map[string]any{"compiler": "g++", "linker": "g++", "archiver": "ar -cr"},
	})
	v.SetDefault("nodes.enabled", false)
	v.SetDefault("nodes.compile", false)
	v.SetDefault("nodes.hosts", []string{})
	v.SetDefault("nodes.drain_timeout", 10*time.Second)
	v.SetDefault("node.listen", ":8080")
	v.SetDefault("node.session_ttl", 10*time.Minute)
	v.SetDefault("node.session_limit", 64)
	v.SetDefault("node.receive_dir", filepath.Join(home, ".maiken", "recv"))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
}

// New returns a viper instance preloaded with defaults and the MKN_ env prefix.
// Callers may bind flags before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MKN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the settings file (if any) into v and decodes the result.
// An empty path looks for settings.yaml under $HOME/.maiken; its absence is not an error.
func Load(v *viper.Viper, path string) (*Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("settings")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".maiken"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	s.ObjectExt = strings.TrimPrefix(s.ObjectExt, ".")
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// Validate checks the settings for values that would make every build fail.
func (s *Settings) Validate() error {
	if s.ObjectExt == "" {
		return fmt.Errorf("object extension is empty")
	}
	if strings.HasPrefix(s.ObjectExt, ".") {
		return fmt.Errorf("object extension %q has a leading dot", s.ObjectExt)
	}
	if s.Optimise > 9 {
		return fmt.Errorf("invalid optimise level: %d", s.Optimise)
	}
	if s.Debug > 9 {
		return fmt.Errorf("invalid debug level: %d", s.Debug)
	}
	if s.Nodes.Enabled && len(s.Nodes.Hosts) == 0 {
		return fmt.Errorf("nodes enabled but no hosts configured")
	}
	if s.Nodes.DrainTimeout <= 0 {
		return fmt.Errorf("invalid nodes drain timeout: %v", s.Nodes.DrainTimeout)
	}
	if s.Node.SessionTTL <= 0 {
		return fmt.Errorf("invalid node session ttl: %v", s.Node.SessionTTL)
	}
	if s.Node.SessionLimit <= 0 {
		return fmt.Errorf("invalid node session limit: %d", s.Node.SessionLimit)
	}
	for ext, ft := range s.FileTypes {
		if ft.Compiler == "" {
			return fmt.Errorf("no compiler set for file type %s", ext)
		}
	}
	return nil
}
