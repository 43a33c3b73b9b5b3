//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"

	"github.com/oshokin/conda-channel-resource/internal/config"
	"github.com/oshokin/conda-channel-resource/internal/connector"
	"github.com/oshokin/conda-channel-resource/internal/logger"
)

// Opener opens a channel connection. connector.Open is used when nil.
type Opener func(ctx context.Context, src *config.Source) (connector.Connector, error)

// Result is the outcome of the in and out flows.
type Result struct {
	// Version is the resolved package version.
	Version string
	// Files lists the channel-relative paths transferred by the flow.
	Files []string
}

// ResolveSource merges the request source over the optional settings file
// and validates the result. The request value is not modified.
func ResolveSource(configPath string, request config.Source) (*config.Source, error) {
	var base *config.Source

	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}

		base = loaded
	}

	merged := config.Merge(base, request)
	if err := config.Validate(&merged); err != nil {
		return nil, err
	}

	return &merged, nil
}

// Connect opens the channel described by src.
//
//nolint:ireturn // Connector implementations are chosen at runtime.
func Connect(ctx context.Context, open Opener, src *config.Source) (connector.Connector, error) {
	if open == nil {
		open = connector.Open
	}

	conn, err := open(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", src.URI, err)
	}

	return conn, nil
}

// Release closes conn. A close failure becomes the flow error unless the
// flow already failed, in which case it is only logged.
func Release(ctx context.Context, conn connector.Connector, errp *error) {
	err := conn.Close()
	if err == nil {
		return
	}

	if *errp != nil {
		logger.WarnKV(ctx, "Closing channel connection failed", "error", err)

		return
	}

	*errp = fmt.Errorf("close connection: %w", err)
}
