// Package lockfile provides a cross-process mutual-exclusion lock built on
// atomic marker-file creation.
//
// The lock works between unrelated processes: the only shared state is the
// filesystem. Acquire creates a marker file with O_CREATE|O_EXCL, which the
// kernel guarantees to be a single indivisible operation - exactly one of N
// concurrent callers can win. The marker holds the winner's owner token so
// that Release can refuse to delete a lock it does not own.
//
// Known limitation: a crashed owner that never released leaves the marker
// behind until Cleanup is called. There is no lease, no deadlock detection
// and no fairness among waiters.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Defaults for the retry policy.
const (
	DefaultMaxAttempts = 100
	DefaultRetryDelay  = 50 * time.Millisecond
)

// markerSuffix is appended to the lock name to build the marker path.
const markerSuffix = ".lock"

// Errors.
var (
	ErrAcquireTimeout = errors.New("lock held by another process")
	ErrInvalidName    = errors.New("invalid lock name")
)

// Options configures the retry policy of a Lock.
type Options struct {
	// MaxAttempts is the number of create attempts before Acquire gives up.
	// Zero means DefaultMaxAttempts.
	MaxAttempts int
	// RetryDelay is the fixed sleep between attempts.
	// Zero means DefaultRetryDelay.
	RetryDelay time.Duration
	// Owner overrides the generated owner token. Used by worker processes
	// that derive their token from the process id.
	Owner string
}

// Lock hands out named critical sections backed by marker files in a
// single directory. A Lock value identifies one owner; all acquisitions
// through it carry the same owner token.
type Lock struct {
	dir   string
	owner string
	opts  Options
}

// New creates a Lock that stores markers under dir.
func New(dir string, opts Options) *Lock {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	owner := opts.Owner
	if owner == "" {
		owner = DefaultOwner()
	}
	return &Lock{dir: dir, owner: owner, opts: opts}
}

// DefaultOwner builds an owner token from the process id plus a random
// suffix, so two Lock values in one process still have distinct identities.
func DefaultOwner() string {
	return fmt.Sprintf("%d-%s", os.Getpid(), uuid.NewString())
}

// Owner returns the owner token this Lock acquires with.
func (l *Lock) Owner() string {
	return l.owner
}

// Path returns the marker path for a lock name.
func (l *Lock) Path(name string) string {
	return filepath.Join(l.dir, name+markerSuffix)
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Acquire attempts to take the named lock, retrying up to MaxAttempts with
// a fixed delay between attempts. On success the marker file exists and
// contains this Lock's owner token. Exhausting the retries returns
// ErrAcquireTimeout; callers must treat that as "not granted", never as
// success.
func (l *Lock) Acquire(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	path := l.Path(name)

	for attempt := 0; attempt < l.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(l.opts.RetryDelay)
		}

		// O_CREATE|O_EXCL is the one atomic step everything rests on:
		// creating the marker and checking it did not exist are a single
		// kernel operation, so the lock itself has no check-then-act gap.
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return fmt.Errorf("create lock marker: %w", err)
		}

		if _, err := f.WriteString(l.owner); err != nil {
			f.Close()
			os.Remove(path) //nolint:errcheck // Best effort: marker without owner is useless
			return fmt.Errorf("write owner token: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path) //nolint:errcheck // Best effort cleanup
			return fmt.Errorf("close lock marker: %w", err)
		}
		return nil
	}

	return fmt.Errorf("%w: %s", ErrAcquireTimeout, name)
}

// Release deletes the marker only when its stored owner token matches this
// Lock's token. A missing marker or a token owned by someone else is a
// silent no-op: a caller whose own acquire timed out must not be able to
// free a lock that another process now validly holds.
func (l *Lock) Release(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	path := l.Path(name)

	data, err := os.ReadFile(path) //nolint:gosec // Path derived from validated name
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read lock marker: %w", err)
	}

	if strings.TrimSpace(string(data)) != l.owner {
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock marker: %w", err)
	}
	return nil
}

// Cleanup unconditionally removes the marker, bypassing the ownership
// check. Teardown and tests only - never part of the acquire/release
// protocol.
func (l *Lock) Cleanup(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := os.Remove(l.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cleanup lock marker: %w", err)
	}
	return nil
}

// Holder reports the owner token currently stored in the marker, or ""
// when the lock is free. Observability helper only; the value may be stale
// by the time the caller looks at it.
func (l *Lock) Holder(name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	data, err := os.ReadFile(l.Path(name)) //nolint:gosec // Path derived from validated name
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
