package app

import (
	"fmt"
	"strings"
)

// ConfigError reports a descriptor or settings value that makes a target
// impossible to build.
type ConfigError struct {
	File string
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.File == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s\n in: %s", e.Msg, e.File)
}

func configErrorf(file, format string, args ...any) error {
	return &ConfigError{File: file, Msg: fmt.Sprintf(format, args...)}
}

// AmbiguityError reports that the dependency tree holds more than one
// Application with the same project name.
type AmbiguityError struct {
	Name    string
	Matches []*Application
}

func (e *AmbiguityError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cannot deduce project version of %s as there are multiple versions in the dependency tree:", e.Name)
	for _, a := range e.Matches {
		fmt.Fprintf(&b, "\n\t%s", a)
	}
	return b.String()
}
