package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
)

// DefaultLockPollInterval is how often ObtainLock retries a held lock.
const DefaultLockPollInterval = time.Second

// Lock is an exclusive, named lock scoped to one directory.
type Lock interface {
	// Obtain tries once to take the lock and reports whether it succeeded.
	Obtain() (bool, error)
	Release() error
	IsLocked() (bool, error)
	String() string
}

// LockFactory creates and force-clears locks.
type LockFactory interface {
	MakeLock(name string) Lock
	ClearLock(name string) error
}

// ObtainLock polls lock every poll until it is taken, timeout elapses or ctx
// is done. A zero timeout tries exactly once.
func ObtainLock(ctx context.Context, lock Lock, timeout, poll time.Duration) error {
	if poll <= 0 {
		poll = DefaultLockPollInterval
	}
	deadline := time.Now().Add(timeout)
	for {
		ok, err := lock.Obtain()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return serrors.Newf(serrors.ErrLockObtainFailed, "obtain lock", lock.String(),
				"Lock obtain timed out after %s", timeout)
		}
		t := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return serrors.Wrap(serrors.ErrAborted, "obtain lock", lock.String(), ctx.Err())
		case <-t.C:
		}
	}
}

// FSLockFactory makes locks that are files created exclusively in the lock
// directory. The file holds a random owner token for diagnostics.
type FSLockFactory struct {
	fs     afero.Fs
	dir    string
	prefix string
}

func NewFSLockFactory(fs afero.Fs, dir string) *FSLockFactory {
	return &FSLockFactory{fs: fs, dir: dir}
}

// SetLockPrefix namespaces lock files when several directories share one
// lock directory.
func (f *FSLockFactory) SetLockPrefix(prefix string) { f.prefix = prefix }

func (f *FSLockFactory) path(name string) string {
	if f.prefix != "" {
		name = f.prefix + "-" + name
	}
	return filepath.Join(f.dir, name)
}

func (f *FSLockFactory) MakeLock(name string) Lock {
	return &fsLock{fs: f.fs, path: f.path(name)}
}

func (f *FSLockFactory) ClearLock(name string) error {
	err := f.fs.Remove(f.path(name))
	if err != nil && !os.IsNotExist(err) {
		return serrors.FromOS("clear lock", name, err)
	}
	return nil
}

type fsLock struct {
	fs    afero.Fs
	path  string
	mu    sync.Mutex
	token string
}

func (l *fsLock) Obtain() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token != "" {
		return false, nil
	}
	f, err := l.fs.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, serrors.FromOS("obtain lock", l.path, err)
	}
	token := uuid.NewString()
	_, werr := f.WriteString(token)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		l.fs.Remove(l.path)
		return false, serrors.FromOS("obtain lock", l.path, serrors.Join(werr, cerr))
	}
	l.token = token
	return true, nil
}

func (l *fsLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token == "" {
		return nil
	}
	l.token = ""
	err := l.fs.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return serrors.FromOS("release lock", l.path, err)
	}
	return nil
}

func (l *fsLock) IsLocked() (bool, error) {
	_, err := l.fs.Stat(l.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, serrors.FromOS("check lock", l.path, err)
}

func (l *fsLock) String() string { return "FSLock@" + l.path }

// SingleInstanceLockFactory keeps locks in process memory. It only guards
// against other users of the same factory.
type SingleInstanceLockFactory struct {
	mu    sync.Mutex
	locks map[string]struct{}
}

func NewSingleInstanceLockFactory() *SingleInstanceLockFactory {
	return &SingleInstanceLockFactory{locks: make(map[string]struct{})}
}

func (f *SingleInstanceLockFactory) MakeLock(name string) Lock {
	return &singleInstanceLock{factory: f, name: name}
}

func (f *SingleInstanceLockFactory) ClearLock(name string) error {
	f.mu.Lock()
	delete(f.locks, name)
	f.mu.Unlock()
	return nil
}

type singleInstanceLock struct {
	factory *SingleInstanceLockFactory
	name    string
	held    bool
}

func (l *singleInstanceLock) Obtain() (bool, error) {
	f := l.factory
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.locks[l.name]; taken {
		return false, nil
	}
	f.locks[l.name] = struct{}{}
	l.held = true
	return true, nil
}

func (l *singleInstanceLock) Release() error {
	f := l.factory
	f.mu.Lock()
	defer f.mu.Unlock()
	if l.held {
		delete(f.locks, l.name)
		l.held = false
	}
	return nil
}

func (l *singleInstanceLock) IsLocked() (bool, error) {
	f := l.factory
	f.mu.Lock()
	defer f.mu.Unlock()
	_, taken := f.locks[l.name]
	return taken, nil
}

func (l *singleInstanceLock) String() string {
	return fmt.Sprintf("SingleInstanceLock: %s", l.name)
}

// NoLockFactory hands out locks that always succeed. Use it only when the
// caller guarantees a single writer by other means.
type NoLockFactory struct{}

func (NoLockFactory) MakeLock(string) Lock { return noLock{} }

func (NoLockFactory) ClearLock(string) error { return nil }

type noLock struct{}

func (noLock) Obtain() (bool, error)   { return true, nil }
func (noLock) Release() error          { return nil }
func (noLock) IsLocked() (bool, error) { return false, nil }
func (noLock) String() string          { return "NoLock" }
