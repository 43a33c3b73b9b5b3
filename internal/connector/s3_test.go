package connector

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
)

// fakeS3 keeps objects in memory.
type fakeS3 struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}

	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.contentTypes[key] = aws.ToString(in.ContentType)

	return &s3.PutObjectOutput{}, nil
}

// TestS3Store_GetPut checks key prefixing, missing keys and content types.
func TestS3Store_GetPut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	api := newFakeS3()
	store := &s3Store{client: api, bucket: "conda", prefix: objectPrefix("/mirrors", "qiime2/release")}

	var buf bytes.Buffer

	err := store.Get(ctx, "noarch/repodata.json", &buf)
	require.ErrorIs(t, err, domain.ErrNoSuchObject)

	body := `{"info":{"subdir":"noarch"},"packages":{}}`
	require.NoError(t, store.Put(ctx, "noarch/repodata.json", strings.NewReader(body), int64(len(body))))

	key := "conda/mirrors/qiime2/release/noarch/repodata.json"
	require.Equal(t, body, string(api.objects[key]))
	require.Equal(t, "application/json", api.contentTypes[key])

	require.NoError(t, store.Get(ctx, "noarch/repodata.json", &buf))
	require.Equal(t, body, buf.String())
}

// TestObjectPrefix covers URI path and channel joining.
func TestObjectPrefix(t *testing.T) {
	t.Parallel()

	require.Equal(t, "qiime2", objectPrefix("", "qiime2"))
	require.Equal(t, "a/b/qiime2/label/dev", objectPrefix("/a/b/", "qiime2/label/dev"))
}
