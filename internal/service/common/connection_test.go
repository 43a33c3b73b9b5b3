//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/conda-channel-resource/internal/config"
	"github.com/oshokin/conda-channel-resource/internal/connector"
	"github.com/oshokin/conda-channel-resource/internal/repository/channel"
)

var errClose = errors.New("connection already closed")

type closeOnlyConnector struct {
	closeErr error
	closed   bool
}

func (c *closeOnlyConnector) Download(context.Context, string, io.Writer) error {
	return nil
}

func (c *closeOnlyConnector) UploadLocalData(context.Context, *channel.Data, string, string) ([]string, error) {
	return nil, nil
}

func (c *closeOnlyConnector) Close() error {
	c.closed = true

	return c.closeErr
}

// TestResolveSource_RequestOverridesFile merges the request over the settings file.
func TestResolveSource_RequestOverridesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("uri: file:///srv/conda\nchannel: qiime2\nmax_retries: 2\n"), 0o600))

	request := config.Source{PkgName: "q2-types", Channel: "qiime2/label/dev"}

	src, err := ResolveSource(path, request)
	require.NoError(t, err)
	require.Equal(t, "file:///srv/conda", src.URI)
	require.Equal(t, "qiime2/label/dev", src.Channel)
	require.Equal(t, 2, src.MaxRetries)
	require.NotEmpty(t, src.Subdirs)
	require.Empty(t, request.Subdirs)
}

// TestResolveSource_Validates rejects incomplete sources.
func TestResolveSource_Validates(t *testing.T) {
	t.Parallel()

	_, err := ResolveSource("", config.Source{PkgName: "q2-types"})
	require.Error(t, err)

	_, err = ResolveSource(filepath.Join(t.TempDir(), "missing.yaml"), config.Source{})
	require.Error(t, err)
}

// TestConnect_UsesOpener passes the source to a custom opener and wraps its errors.
func TestConnect_UsesOpener(t *testing.T) {
	t.Parallel()

	src := &config.Source{URI: "file:///srv/conda"}
	want := &closeOnlyConnector{}

	conn, err := Connect(context.Background(), func(_ context.Context, got *config.Source) (connector.Connector, error) {
		require.Same(t, src, got)

		return want, nil
	}, src)
	require.NoError(t, err)
	require.Same(t, want, conn)

	_, err = Connect(context.Background(), func(context.Context, *config.Source) (connector.Connector, error) {
		return nil, errClose
	}, src)
	require.ErrorIs(t, err, errClose)
}

// TestRelease reports close failures only when the flow succeeded.
func TestRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var err error

	conn := &closeOnlyConnector{closeErr: errClose}
	Release(ctx, conn, &err)
	require.True(t, conn.closed)
	require.ErrorIs(t, err, errClose)

	flowErr := errors.New("upload failed")
	err = flowErr
	Release(ctx, &closeOnlyConnector{closeErr: errClose}, &err)
	require.Same(t, flowErr, err)

	err = nil
	Release(ctx, &closeOnlyConnector{}, &err)
	require.NoError(t, err)
}
