package connector

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"
)

func newTestLock(timeout time.Duration) *pidLock {
	l := newPIDLock(memfs.New(), lockFilename, timeout)
	l.poll = 10 * time.Millisecond

	return l
}

// TestPIDLock_AcquireRelease checks the lock file lifecycle.
func TestPIDLock_AcquireRelease(t *testing.T) {
	t.Parallel()

	l := newTestLock(time.Second)

	unlock, err := l.Lock(context.Background())
	require.NoError(t, err)

	contents, err := util.ReadFile(l.fs, lockFilename)
	require.NoError(t, err)
	require.Equal(t, lockOwner(), string(contents))

	require.NoError(t, unlock())

	_, err = l.fs.Stat(lockFilename)
	require.Error(t, err)
}

// TestPIDLock_TimesOutWhileHeld ensures a live owner keeps other uploads out.
func TestPIDLock_TimesOutWhileHeld(t *testing.T) {
	t.Parallel()

	l := newTestLock(50 * time.Millisecond)

	unlock, err := l.Lock(context.Background())
	require.NoError(t, err)

	defer unlock() //nolint:errcheck // Test cleanup.

	_, err = l.Lock(context.Background())
	require.ErrorIs(t, err, errLockTimeout)
}

// TestPIDLock_ReclaimsDeadOwner verifies a lock left by a dead local process is taken over.
func TestPIDLock_ReclaimsDeadOwner(t *testing.T) {
	t.Parallel()

	l := newTestLock(50 * time.Millisecond)

	// Above the Linux pid_max limit, so no such process exists.
	stale := strconv.Itoa(1<<22+1) + "@" + hostname()
	require.NoError(t, util.WriteFile(l.fs, lockFilename, []byte(stale), 0o644))

	unlock, err := l.Lock(context.Background())
	require.NoError(t, err)
	require.NoError(t, unlock())
}

// TestPIDLock_KeepsForeignHostLock checks that locks owned by another host are never reclaimed.
func TestPIDLock_KeepsForeignHostLock(t *testing.T) {
	t.Parallel()

	l := newTestLock(50 * time.Millisecond)
	require.NoError(t, util.WriteFile(l.fs, lockFilename, []byte("1@build-host-elsewhere"), 0o644))

	_, err := l.Lock(context.Background())
	require.ErrorIs(t, err, errLockTimeout)
}

// TestPIDLock_ContextCanceled stops waiting when the context ends.
func TestPIDLock_ContextCanceled(t *testing.T) {
	t.Parallel()

	l := newTestLock(time.Minute)
	require.NoError(t, util.WriteFile(l.fs, lockFilename, []byte("garbage"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := l.Lock(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestParseLockOwner covers malformed lock contents.
func TestParseLockOwner(t *testing.T) {
	t.Parallel()

	pid, host, ok := parseLockOwner(" 42@ci-runner\n")
	require.True(t, ok)
	require.Equal(t, 42, pid)
	require.Equal(t, "ci-runner", host)

	for _, bad := range []string{"", "42", "abc@host", "-1@host"} {
		_, _, ok = parseLockOwner(bad)
		require.False(t, ok, bad)
	}
}
