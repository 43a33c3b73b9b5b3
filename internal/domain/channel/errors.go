package channel

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a package has no known versions or a
	// (name, version) pair has no artifacts.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguousVersion is returned when a source meant to hold exactly one
	// version of a package holds several.
	ErrAmbiguousVersion = errors.New("ambiguous version")
	// ErrInvalidVersion is returned for version strings that are not PEP 440 versions.
	ErrInvalidVersion = errors.New("invalid version")
	// ErrNoSuchObject is wrapped by transports when a path does not exist in the store.
	ErrNoSuchObject = errors.New("no such object")
	// ErrUnsafePath is returned for repodata file names or subdirs that would
	// resolve outside the channel.
	ErrUnsafePath = errors.New("unsafe artifact path")
)

// ConnectorError reports a failure of the remote transport.
// It is not retried or classified further by the sync layer.
type ConnectorError struct {
	// Op is the transport operation that failed (e.g. "download", "upload", "lock").
	Op string
	// Path is the channel-relative path involved, if any.
	Path string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ConnectorError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("connector %s %s: %v", e.Op, e.Path, e.Err)
	}

	return fmt.Sprintf("connector %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ConnectorError) Unwrap() error {
	return e.Err
}

// NewConnectorError wraps err with the failing operation and path.
// A nil err yields nil so callers can wrap unconditionally.
func NewConnectorError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var existing *ConnectorError
	if errors.As(err, &existing) {
		return err
	}

	return &ConnectorError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}
