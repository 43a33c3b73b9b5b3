package connector

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/oshokin/conda-channel-resource/internal/config"
	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
)

const minioNoSuchKey = "NoSuchKey"

// minioStore keeps a channel in a MinIO (or any S3 compatible) bucket.
// The URI is minio://<host:port>/<bucket>/<prefix>.
type minioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

func newMinioStore(u *url.URL, src *config.Source, secure bool) (*minioStore, error) {
	bucket, prefix, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	if bucket == "" {
		return nil, errMissingBucket
	}

	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(src.User, src.Pass, ""),
		Secure: secure,
		Region: src.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &minioStore{
		client: client,
		bucket: bucket,
		prefix: objectPrefix(prefix, src.Channel),
	}, nil
}

// Get implements Store.
func (s *minioStore) Get(ctx context.Context, key string, w io.Writer) error {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(key), minio.GetObjectOptions{})
	if err != nil {
		return s.translate(key, err)
	}
	defer obj.Close()

	// GetObject is lazy, Stat surfaces a missing key.
	if _, err = obj.Stat(); err != nil {
		return s.translate(key, err)
	}

	if _, err = io.Copy(w, obj); err != nil {
		return s.translate(key, err)
	}

	return nil
}

// Put implements Store.
func (s *minioStore) Put(ctx context.Context, key string, body io.ReadSeeker, size int64) error {
	contentType, err := detectContentType(body)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, s.bucket, s.key(key), body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})

	return err
}

// Close implements Store.
func (s *minioStore) Close() error {
	return nil
}

func (s *minioStore) key(relpath string) string {
	if s.prefix == "" {
		return relpath
	}

	return s.prefix + "/" + relpath
}

func (s *minioStore) translate(key string, err error) error {
	if minio.ToErrorResponse(err).Code == minioNoSuchKey {
		return fmt.Errorf("%s: %w", key, domain.ErrNoSuchObject)
	}

	return err
}
