package build

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/mkn/maiken/internal/app"
	"github.com/mkn/maiken/internal/project"
)

// ObjectName returns the object file name for source: a digest of the
// canonical source path, the source base name and the object extension.
// Sources with the same base name in different directories never collide.
func ObjectName(source, objectExt string) (string, error) {
	canon, err := project.Canonical(source)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:8]) + "-" + filepath.Base(canon) + "." + objectExt, nil
}

// promote moves a staged object from the holding directory into the
// active object directory. A missing staged object is not an error.
func promote(a *app.Application, name string) error {
	staged := filepath.Join(a.TmpDir(), name)
	if _, err := os.Stat(staged); err != nil {
		logrus.Debugf("Source expected not found (ignoring) %s", staged)
		return nil
	}
	if err := os.MkdirAll(a.ObjDir(), 0o755); err != nil {
		return err
	}
	return os.Rename(staged, filepath.Join(a.ObjDir(), name))
}

// relocate moves an object out of the active object directory into the
// holding directory.
func relocate(a *app.Application, name string) error {
	active := filepath.Join(a.ObjDir(), name)
	if _, err := os.Stat(active); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.MkdirAll(a.TmpDir(), 0o755); err != nil {
		return err
	}
	return os.Rename(active, filepath.Join(a.TmpDir(), name))
}
