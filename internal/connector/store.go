package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/oshokin/conda-channel-resource/internal/config"
	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
	"github.com/oshokin/conda-channel-resource/internal/logger"
	"github.com/oshokin/conda-channel-resource/internal/repository/channel"
)

// Store is a flat key space holding one channel. Keys are channel-relative
// slash-separated paths.
type Store interface {
	// Get copies the object at key into w.
	// A missing key yields an error wrapping channel.ErrNoSuchObject.
	Get(ctx context.Context, key string, w io.Writer) error
	// Put stores size bytes from body at key, replacing any existing object.
	Put(ctx context.Context, key string, body io.ReadSeeker, size int64) error
	// Close releases the store.
	Close() error
}

// Locker is implemented by stores that can serialize uploads to a channel.
type Locker interface {
	// Lock blocks until the channel lock is held or the wait times out.
	Lock(ctx context.Context) (unlock func() error, err error)
}

// storeConnector implements Connector on top of a Store.
type storeConnector struct {
	store   Store
	subdirs []string
	retry   retryPolicy
}

func newStoreConnector(store Store, src *config.Source) *storeConnector {
	return &storeConnector{
		store:   store,
		subdirs: slices.Clone(src.Subdirs),
		retry:   newRetryPolicy(src.MaxRetries),
	}
}

// Download implements Connector.
func (c *storeConnector) Download(ctx context.Context, relpath string, w io.Writer) error {
	if !c.retry.enabled() {
		return domain.NewConnectorError("download", relpath, c.store.Get(ctx, relpath, w))
	}

	// A failed attempt may have written a partial body, so attempts go to a buffer.
	var buf bytes.Buffer

	err := c.retry.do(ctx, func() error {
		buf.Reset()

		return c.store.Get(ctx, relpath, &buf)
	})
	if err != nil {
		return domain.NewConnectorError("download", relpath, err)
	}

	_, err = w.Write(buf.Bytes())

	return err
}

// UploadLocalData implements Connector.
//
//nolint:nonamedreturns // Unlock failures are joined into the returned error.
func (c *storeConnector) UploadLocalData(
	ctx context.Context,
	local *channel.Data,
	name, version string,
) (relpaths []string, err error) {
	entries := slices.Collect(local.Entries(name, version))
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s=%s in local channel: %w", name, version, domain.ErrNotFound)
	}

	unlock, err := c.lock(ctx)
	if err != nil {
		return nil, domain.NewConnectorError("lock", "", err)
	}

	defer func() {
		if unlockErr := unlock(); unlockErr != nil {
			err = errors.Join(err, domain.NewConnectorError("unlock", "", unlockErr))
		}
	}()

	remote, err := channel.FromConnector(ctx, c, c.subdirs)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		remote.Add(entry)
	}

	relpaths = make([]string, 0, len(entries))

	for _, entry := range entries {
		if err = c.putLocal(ctx, local, entry.RelPath()); err != nil {
			return nil, err
		}

		relpaths = append(relpaths, entry.RelPath())
	}

	files, err := remote.RepodataFiles(false)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if err = c.put(ctx, file.Path, bytes.NewReader(file.Data), int64(len(file.Data))); err != nil {
			return nil, err
		}
	}

	logger.InfoKV(ctx, "Uploaded package", "name", name, "version", version, "files", len(relpaths))

	return relpaths, nil
}

// Close implements Connector.
func (c *storeConnector) Close() error {
	return domain.NewConnectorError("close", "", c.store.Close())
}

func (c *storeConnector) lock(ctx context.Context) (func() error, error) {
	locker, ok := c.store.(Locker)
	if !ok {
		logger.Debug(ctx, "Store has no channel lock, uploading without one")

		return func() error { return nil }, nil
	}

	return locker.Lock(ctx)
}

func (c *storeConnector) putLocal(ctx context.Context, local *channel.Data, relpath string) error {
	root, err := local.Root()
	if err != nil {
		return err
	}

	info, err := root.Stat(relpath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", relpath, err)
	}

	f, err := local.Open(relpath)
	if err != nil {
		return err
	}
	defer f.Close()

	return c.put(ctx, relpath, f, info.Size())
}

func (c *storeConnector) put(ctx context.Context, key string, body io.ReadSeeker, size int64) error {
	logger.DebugKV(ctx, "Storing file", "path", key, "size", size)

	err := c.retry.do(ctx, func() error {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return err
		}

		return c.store.Put(ctx, key, body, size)
	})

	return domain.NewConnectorError("upload", key, err)
}
