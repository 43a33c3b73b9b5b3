package discover

import (
	"context"
	"fmt"

	"github.com/oshokin/conda-channel-resource/internal/config"
	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
	"github.com/oshokin/conda-channel-resource/internal/logger"
	"github.com/oshokin/conda-channel-resource/internal/repository/channel"
	"github.com/oshokin/conda-channel-resource/internal/service/common"
)

// Options controls a single check.
type Options struct {
	// ConfigPath optionally points to a YAML settings file merged under Source.
	ConfigPath string
	// Source is the source definition from the request.
	Source config.Source
	// Baseline is the last version the pipeline saw. Empty on the first check.
	Baseline string
	// Open overrides how the channel connection is opened.
	Open common.Opener
}

// Run returns the matching versions in ascending order, starting at Baseline
// when it is a known version. Unknown packages yield an empty result.
//
//nolint:nonamedreturns // The deferred release reports close failures through err.
func Run(ctx context.Context, opts *Options) (versions []string, err error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "check")

	src, err := common.ResolveSource(opts.ConfigPath, opts.Source)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithKV(ctx, "pkg_name", src.PkgName)

	conn, err := common.Connect(ctx, opts.Open, src)
	if err != nil {
		return nil, err
	}

	// Release the connection on every exit path.
	defer common.Release(ctx, conn, &err)

	data, err := channel.FromConnector(ctx, conn, src.Subdirs)
	if err != nil {
		return nil, fmt.Errorf("load channel data: %w", err)
	}

	// Matched versions are passed by value and never written back.
	catalog, err := domain.Resolve(data.Versions(src.PkgName), src.Matched)
	if err != nil {
		return nil, err
	}

	if catalog, err = catalog.Filter(src.Regex); err != nil {
		return nil, err
	}

	versions = catalog.PivotFrom(opts.Baseline).Versions()

	logger.InfoKV(ctx, "Resolved versions",
		"known", catalog.Len(),
		"baseline", opts.Baseline,
		"count", len(versions),
	)

	return versions, nil
}
