//go:build unix

package redolog

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
)

// dirLock holds an exclusive flock on a file in the journal directory so
// that only one provider can own a journal at a time.
type dirLock struct {
	f *os.File
}

func acquireLock(path string) (*dirLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrFileOpen, "lock file %s: %v", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, errors.Wrapf(errors.ErrProviderActive, "%s is locked", path)
		}
		return nil, errors.Wrapf(errors.ErrFileOpen, "lock %s: %v", path, err)
	}
	return &dirLock{f: f}, nil
}

func (l *dirLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
