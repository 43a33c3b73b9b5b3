package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/oshokin/conda-channel-resource/internal/config"
	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
	"github.com/oshokin/conda-channel-resource/internal/logger"
	"github.com/oshokin/conda-channel-resource/internal/repository/channel"
)

// Connector is a live connection to a remote channel.
// Callers must Close it on every exit path.
type Connector interface {
	// Download streams the file at the channel-relative path into w.
	// Missing files are reported with an error wrapping channel.ErrNoSuchObject.
	Download(ctx context.Context, relpath string, w io.Writer) error
	// UploadLocalData publishes every artifact of (name, version) found in
	// local and returns the uploaded channel-relative paths.
	UploadLocalData(ctx context.Context, local *channel.Data, name, version string) ([]string, error)
	// Close releases the connection.
	Close() error
}

var errUnsupportedTransport = errors.New("unsupported transport")

// Open validates src and connects to the channel it describes.
//
//nolint:ireturn // Transport is selected at runtime.
func Open(ctx context.Context, src *config.Source) (Connector, error) {
	if err := config.Validate(src); err != nil {
		return nil, err
	}

	transport, err := src.Transport()
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(src.URI)
	if err != nil {
		return nil, fmt.Errorf("parse uri: %w", err)
	}

	logger.DebugKV(ctx, "Opening channel connection", "transport", transport, "channel", src.Channel)

	var store Store

	switch transport {
	case config.TransportAnaconda:
		return newAnacondaConnector(ctx, src)
	case config.TransportFile:
		store, err = newLocalStore(u, src)
	case config.TransportFTP, config.TransportFTPS:
		store, err = newFTPStore(ctx, u, src, transport == config.TransportFTPS)
	case config.TransportS3:
		store, err = newS3Store(ctx, u, src)
	case config.TransportMinio, config.TransportMinioTLS:
		store, err = newMinioStore(u, src, transport == config.TransportMinioTLS)
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedTransport, transport)
	}

	if err != nil {
		return nil, domain.NewConnectorError("connect", "", err)
	}

	return newStoreConnector(store, src), nil
}
