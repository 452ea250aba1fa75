// Package lockfile provides a named advisory lock usable both between
// threads of one process and between cooperating processes. OS file locks
// are per-process, so the package keeps a process-wide registry mapping
// canonical paths to a single shared handle; the handle pairs flock(2)
// with an in-process RWMutex so that threads serialize correctly too.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// LockFile is a shared-per-path lock handle. Use Get to obtain one.
type LockFile struct {
	path string
	mu   sync.RWMutex

	fdMu sync.Mutex
	file *os.File
	refs int
}

var (
	registryMu sync.Mutex
	registry   = map[string]*LockFile{}
)

// Get returns the process-wide lock handle for path, creating it on first
// use. Two callers passing paths that resolve to the same canonical path
// receive the same handle.
func Get(path string) (*LockFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("lockfile: resolve %s: %w", path, err)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if lf, ok := registry[abs]; ok {
		return lf, nil
	}
	lf := &LockFile{path: abs}
	registry[abs] = lf
	return lf, nil
}

// LockShared acquires the lock in shared mode. Many holders may share it
// simultaneously. Re-entrant shared acquisition is not supported: a
// goroutine that already holds a shared hold and calls LockShared again
// blocks while an exclusive acquisition is waiting. Upgrading to
// exclusive is not supported either; release first.
func (l *LockFile) LockShared() error {
	l.mu.RLock()
	if err := l.flock(unix.LOCK_SH); err != nil {
		l.mu.RUnlock()
		return err
	}
	return nil
}

// UnlockShared releases one shared hold.
func (l *LockFile) UnlockShared() {
	l.funlock()
	l.mu.RUnlock()
}

// LockExclusive acquires the lock exclusively, blocking until all other
// holders release.
func (l *LockFile) LockExclusive() error {
	l.mu.Lock()
	if err := l.flock(unix.LOCK_EX); err != nil {
		l.mu.Unlock()
		return err
	}
	return nil
}

// UnlockExclusive releases the exclusive hold.
func (l *LockFile) UnlockExclusive() {
	l.funlock()
	l.mu.Unlock()
}

// WithShared runs fn while holding the lock in shared mode, releasing it
// on every exit path.
func (l *LockFile) WithShared(fn func() error) error {
	if err := l.LockShared(); err != nil {
		return err
	}
	defer l.UnlockShared()
	return fn()
}

// WithExclusive runs fn while holding the lock exclusively, releasing it
// on every exit path.
func (l *LockFile) WithExclusive(fn func() error) error {
	if err := l.LockExclusive(); err != nil {
		return err
	}
	defer l.UnlockExclusive()
	return fn()
}

// flock opens the sidecar file on first use and applies the requested
// flock mode. The file stays open while any hold is outstanding so that
// shared holders stack on one descriptor.
func (l *LockFile) flock(how int) error {
	l.fdMu.Lock()
	defer l.fdMu.Unlock()

	if l.file == nil {
		f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return fmt.Errorf("lockfile: open %s: %w", l.path, err)
		}
		l.file = f
	}

	if err := unix.Flock(int(l.file.Fd()), how); err != nil {
		if l.refs == 0 {
			_ = l.file.Close()
			l.file = nil
		}
		return fmt.Errorf("lockfile: flock %s: %w", l.path, err)
	}
	l.refs++
	return nil
}

func (l *LockFile) funlock() {
	l.fdMu.Lock()
	defer l.fdMu.Unlock()

	if l.file == nil {
		return
	}
	l.refs--
	if l.refs > 0 {
		return
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
}

// Path returns the canonical sidecar path backing the lock.
func (l *LockFile) Path() string {
	return l.path
}
