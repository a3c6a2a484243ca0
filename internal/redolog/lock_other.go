//go:build !unix

package redolog

import (
	"os"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
)

type dirLock struct {
	f    *os.File
	path string
}

func acquireLock(path string) (*dirLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.Wrapf(errors.ErrProviderActive, "%s exists", path)
		}
		return nil, errors.Wrapf(errors.ErrFileOpen, "lock file %s: %v", path, err)
	}
	return &dirLock{f: f, path: path}, nil
}

func (l *dirLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	if rmErr := os.Remove(l.path); err == nil {
		err = rmErr
	}
	return err
}
