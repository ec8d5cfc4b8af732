package env

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode says how a variable combines with an existing value.
type Mode int

const (
	Prepend Mode = iota
	Append
	Replace
)

func (m Mode) String() string {
	switch m {
	case Append:
		return "append"
	case Replace:
		return "replace"
	default:
		return "prepend"
	}
}

// Var is one environment directive with its value already resolved.
type Var struct {
	Name  string
	Value string
	Mode  Mode
}

// Resolver substitutes property references in a raw string.
type Resolver interface {
	Resolve(s string) string
}

// DirectiveError reports a malformed env directive.
type DirectiveError struct {
	Directive string
	File      string
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("env string is invalid, expects one '=' only, string %s\n in: %s", e.Directive, e.File)
}

// ParseNode parses an env directive node. A scalar has the form NAME=VALUE
// and yields a Replace directive; a mapping has name, value and an optional
// mode (append, prepend or replace; prepend when absent).
//
// In the scalar form a literal $NAME or ${NAME} in the value that is not
// escaped with a backslash is replaced with the current process value of
// NAME before the value is passed to r. r may be nil; file names the
// directive's origin in errors.
func ParseNode(n *yaml.Node, r Resolver, file string) (Var, error) {
	if file == "" {
		file = "settings file"
	}
	if n.Kind == yaml.ScalarNode {
		bits := escSplit(n.Value, '=')
		if len(bits) != 2 {
			return Var{}, &DirectiveError{Directive: n.Value, File: file}
		}
		name, value := bits[0], bits[1]
		value = replaceUnescaped(value, "${"+name+"}", os.Getenv(name), false)
		value = replaceUnescaped(value, "$"+name, os.Getenv(name), true)
		return Var{Name: name, Value: resolve(r, value), Mode: Replace}, nil
	}

	var d struct {
		Name  string `yaml:"name"`
		Value string `yaml:"value"`
		Mode  string `yaml:"mode"`
	}
	if err := n.Decode(&d); err != nil {
		return Var{}, fmt.Errorf("env directive in %s: %w", file, err)
	}
	if d.Name == "" {
		return Var{}, fmt.Errorf("env directive in %s has no name", file)
	}
	mode := Prepend
	switch d.Mode {
	case "append":
		mode = Append
	case "replace":
		mode = Replace
	}
	return Var{Name: d.Name, Value: resolve(r, d.Value), Mode: mode}, nil
}

func resolve(r Resolver, s string) string {
	if r == nil {
		return s
	}
	return r.Resolve(s)
}

// escSplit splits s on sep where sep is not preceded by a backslash,
// and drops the escaping backslashes.
func escSplit(s string, sep byte) []string {
	var (
		parts []string
		cur   strings.Builder
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) && s[i+1] == sep {
			cur.WriteByte(sep)
			i++
			continue
		}
		if c == sep {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	return append(parts, cur.String())
}

// replaceUnescaped replaces every occurrence of ref in s that is not
// preceded by a backslash. With word set, an occurrence followed by an
// identifier character is left alone so $PATH does not match $PATHEXT.
func replaceUnescaped(s, ref, with string, word bool) string {
	var b strings.Builder
	for {
		i := strings.Index(s, ref)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := i + len(ref)
		skip := i > 0 && s[i-1] == '\\'
		if word && end < len(s) && isIdent(s[end]) {
			skip = true
		}
		b.WriteString(s[:i])
		if skip {
			b.WriteString(ref)
		} else {
			b.WriteString(with)
		}
		s = s[end:]
	}
}

func isIdent(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// Compose applies vars on top of base (KEY=VALUE pairs) and returns a
// sorted environment for a child process. Prepend and Append join with the
// OS path list separator.
func Compose(base []string, vars []Var) []string {
	envMap := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	sep := string(os.PathListSeparator)
	for _, v := range vars {
		cur, ok := envMap[v.Name]
		switch {
		case v.Mode == Replace || !ok || cur == "":
			envMap[v.Name] = v.Value
		case v.Mode == Append:
			envMap[v.Name] = cur + sep + v.Value
		default:
			envMap[v.Name] = v.Value + sep + cur
		}
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}
