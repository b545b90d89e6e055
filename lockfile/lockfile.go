// Package lockfile enforces the single-recorder-instance rule through an
// OS-level file lock. The lock is released by the OS when the process
// dies, so a crashed recorder never leaves a stale lock behind.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ebailey78/scribe/internal/strescape"
	"github.com/rogpeppe/go-internal/lockedfile"
)

// ErrAlreadyRunning is returned when the lock could not be acquired
// before the context expired.
var ErrAlreadyRunning = errors.New("another scribe instance is running")

// LockFile is a held instance lock.
type LockFile struct {
	f    *lockedfile.File
	path string
}

// Path returns the location of the lock file.
func (lf *LockFile) Path() string { return lf.path }

// Release drops the instance lock.
func (lf *LockFile) Release() error {
	if lf.f == nil {
		return errors.New("lock not held")
	}
	return lf.f.Close()
}

// Acquire takes the instance lock at path, blocking until the lock is
// free or ctx expires. On expiry the returned error wraps
// ErrAlreadyRunning and names the current holder when it can be read
// back.
func Acquire(ctx context.Context, path string) (*LockFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	cf := make(chan *lockedfile.File, 1)
	cerr := make(chan error, 1)
	go func() {
		f, err := lockedfile.Create(path)
		if err != nil {
			cerr <- err
			return
		}
		cf <- f
	}()

	select {
	case f := <-cf:
		writeOwner(f)
		return &LockFile{f: f, path: path}, nil

	case err := <-cerr:
		return nil, err

	case <-ctx.Done():
		// The create may still succeed after the expiry; release the
		// lock if it ever does.
		go func() {
			select {
			case <-cerr:
			case f := <-cf:
				f.Close()
			}
		}()
		if owner := readOwner(path); owner != "" {
			return nil, fmt.Errorf("%w (%s)", ErrAlreadyRunning, owner)
		}
		return nil, ErrAlreadyRunning
	}
}

// writeOwner records the owning process in the lock file to ease
// debugging contended locks. Best effort, the lock works without it.
func writeOwner(f *lockedfile.File) {
	host, _ := os.Hostname()
	proc := ""
	if len(os.Args) > 0 {
		proc = os.Args[0]
	}
	fmt.Fprintf(f, "PID=%d\nHost=%q\nProcess=%q\n", os.Getpid(), host, proc)
}

// readOwner reads back whatever owner information the current holder
// recorded in the lock file, flattened to a single line.
func readOwner(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strescape.SingleLine(string(data))
}
