package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/glitch.audit/internal/fsutil"
	"github.com/banshee-data/glitch.audit/internal/monitoring"
	"github.com/gofrs/flock"
)

// LockFile is created in the output directory while a run writes to it.
const LockFile = ".glitch-audit.lock"

// ErrOutputLocked is returned when another run holds the output directory.
var ErrOutputLocked = errors.New("output directory is locked by another run")

// lockOutputDir creates dir and, on the OS filesystem, takes an exclusive
// advisory lock on it. Other filesystems need no lock.
func lockOutputDir(fsys fsutil.FileSystem, dir string) (func(), error) {
	if _, err := fsutil.EnsureDir(fsys, dir); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if _, ok := fsys.(fsutil.OSFileSystem); !ok {
		return func() {}, nil
	}

	lock := flock.New(filepath.Join(dir, LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire output lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutputLocked, dir)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			monitoring.Warnf("[run] failed to release output lock: %v", err)
		}
	}, nil
}
