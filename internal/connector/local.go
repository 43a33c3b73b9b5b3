package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/oshokin/conda-channel-resource/internal/config"
	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
)

const (
	localDirPermissions = 0o755
	localTempPrefix     = ".upload-"
)

var errEmptyPath = errors.New("file URI has no path")

// localStore keeps a channel in a directory, typically a mounted share.
type localStore struct {
	fs   billy.Filesystem
	lock *pidLock
}

func newLocalStore(u *url.URL, src *config.Source) (*localStore, error) {
	if u.Path == "" {
		return nil, errEmptyPath
	}

	root := filepath.Join(filepath.FromSlash(u.Path), filepath.FromSlash(src.Channel))
	if err := os.MkdirAll(root, localDirPermissions); err != nil {
		return nil, fmt.Errorf("create channel directory: %w", err)
	}

	return newLocalStoreFS(osfs.New(root), src.LockWait()), nil
}

func newLocalStoreFS(fs billy.Filesystem, lockTimeout time.Duration) *localStore {
	return &localStore{
		fs:   fs,
		lock: newPIDLock(fs, lockFilename, lockTimeout),
	}
}

// Get implements Store.
func (s *localStore) Get(_ context.Context, key string, w io.Writer) error {
	f, err := s.fs.Open(key)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", key, domain.ErrNoSuchObject)
	}

	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)

	return err
}

// Put implements Store. The object is written to a temporary file in the
// same directory and renamed into place.
func (s *localStore) Put(_ context.Context, key string, body io.ReadSeeker, _ int64) error {
	dir := path.Dir(key)
	if err := s.fs.MkdirAll(dir, localDirPermissions); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := util.TempFile(s.fs, dir, localTempPrefix)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	_, err = io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err == nil {
		err = s.fs.Rename(tmp.Name(), key)
	}

	if err != nil {
		_ = s.fs.Remove(tmp.Name())

		return fmt.Errorf("write %s: %w", key, err)
	}

	return nil
}

// Lock implements Locker.
func (s *localStore) Lock(ctx context.Context) (func() error, error) {
	return s.lock.Lock(ctx)
}

// Close implements Store.
func (s *localStore) Close() error {
	return nil
}
