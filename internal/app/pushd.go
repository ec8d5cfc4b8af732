package app

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// PushDir changes the working directory to dir. The returned func restores
// the previous directory and must be deferred by the caller.
func PushDir(dir string) (popd func(), err error) {
	prev, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if err := os.Chdir(dir); err != nil {
		return nil, fmt.Errorf("enter %s: %w", dir, err)
	}
	return func() {
		if err := os.Chdir(prev); err != nil {
			logrus.Errorf("restore working directory %s: %v", prev, err)
		}
	}, nil
}
