package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mkn/maiken/internal/compiler"
)

// SourceObject pairs a source file with the object file built from it.
type SourceObject struct {
	Source string `msgpack:"source"`
	Object string `msgpack:"object"`
}

// Compile builds every source into its object. An object newer than its
// source is kept as is. Each object, built or kept, is added to objects.
func (a *Application) Compile(ctx context.Context, pairs []SourceObject, objects *Strings) error {
	s := a.reg.settings
	environ := a.Environ()
	for _, p := range pairs {
		e := ext(p.Source)
		tools, ok := a.Tools(e)
		if !ok || tools.Compiler == "" {
			return a.errorf("No compiler found for filetype %s", e)
		}
		_, backend, err := a.Backend(tools.Compiler)
		if err != nil {
			return err
		}
		if upToDate(p.Source, p.Object) {
			logrus.Debugf("up to date: %s", p.Object)
			objects.Add(p.Object)
			continue
		}

		args := strings.Fields(strings.Join([]string{
			backend.OptimisationFlags(s.Optimise),
			backend.DebugFlags(s.Debug),
			a.Args,
		}, " "))
		cmd := backend.ObjectCommand(tools.Compiler, args, a.Includes.Slice(), p.Source, p.Object)
		if s.DryRun {
			fmt.Fprintln(a.reg.out, cmd)
			objects.Add(p.Object)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p.Object), 0o755); err != nil {
			return err
		}
		capture := a.reg.runner.Run(ctx, cmd, environ)
		if err := compiler.Check(capture); err != nil {
			return err
		}
		logrus.Info(cmd)
		objects.Add(p.Object)
	}
	return nil
}

func upToDate(src, obj string) bool {
	o, err := os.Stat(obj)
	if err != nil {
		return false
	}
	s, err := os.Stat(src)
	if err != nil {
		return false
	}
	return o.ModTime().After(s.ModTime())
}
