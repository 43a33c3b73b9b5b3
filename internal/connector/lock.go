package connector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/mitchellh/go-ps"

	"github.com/oshokin/conda-channel-resource/internal/logger"
)

const (
	lockFilename = ".lock"

	defaultLockPollInterval = 5 * time.Second
	lockFilePermissions     = 0o644
)

var errLockTimeout = errors.New("could not acquire channel lock, is it stale?")

// pidLock is an exclusive lock file holding "<pid>@<host>" of its owner.
// A lock left behind by a dead process on the same host is reclaimed.
type pidLock struct {
	fs      billy.Filesystem
	path    string
	timeout time.Duration
	poll    time.Duration
}

func newPIDLock(fs billy.Filesystem, path string, timeout time.Duration) *pidLock {
	return &pidLock{
		fs:      fs,
		path:    path,
		timeout: timeout,
		poll:    defaultLockPollInterval,
	}
}

// Lock polls until the lock file is created by this process.
func (l *pidLock) Lock(ctx context.Context) (func() error, error) {
	deadline := time.Now().Add(l.timeout)

	for {
		acquired, err := l.tryAcquire()
		if err != nil {
			return nil, err
		}

		if acquired {
			return l.release, nil
		}

		if l.reclaimStale(ctx) {
			continue
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%s: %w", l.path, errLockTimeout)
		}

		logger.DebugKV(ctx, "Channel is locked, waiting", "lock", l.path, "poll", l.poll)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

func (l *pidLock) tryAcquire() (bool, error) {
	f, err := l.fs.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, lockFilePermissions)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("create %s: %w", l.path, err)
	}

	_, err = f.Write([]byte(lockOwner()))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = l.fs.Remove(l.path)

		return false, fmt.Errorf("write %s: %w", l.path, err)
	}

	return true, nil
}

// reclaimStale removes the lock file when its owner is a process on this
// host that no longer exists.
func (l *pidLock) reclaimStale(ctx context.Context) bool {
	contents, err := util.ReadFile(l.fs, l.path)
	if err != nil {
		return false
	}

	pid, host, ok := parseLockOwner(string(contents))
	if !ok || host != hostname() {
		return false
	}

	process, err := ps.FindProcess(pid)
	if err != nil || process != nil {
		return false
	}

	logger.WarnKV(ctx, "Removing stale channel lock", "lock", l.path, "pid", pid)

	return l.fs.Remove(l.path) == nil
}

func (l *pidLock) release() error {
	if err := l.fs.Remove(l.path); err != nil {
		return fmt.Errorf("remove %s: %w", l.path, err)
	}

	return nil
}

func lockOwner() string {
	return strconv.Itoa(os.Getpid()) + "@" + hostname()
}

func parseLockOwner(s string) (int, string, bool) {
	rawPID, host, found := strings.Cut(strings.TrimSpace(s), "@")
	if !found {
		return 0, "", false
	}

	pid, err := strconv.Atoi(rawPID)
	if err != nil || pid <= 0 {
		return 0, "", false
	}

	return pid, host, true
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}

	return name
}
