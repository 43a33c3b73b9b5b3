package publish

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/oshokin/conda-channel-resource/internal/config"
	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
	"github.com/oshokin/conda-channel-resource/internal/logger"
	"github.com/oshokin/conda-channel-resource/internal/repository/channel"
	"github.com/oshokin/conda-channel-resource/internal/service/common"
)

// Options controls a single publish.
type Options struct {
	// ConfigPath optionally points to a YAML settings file merged under Source.
	ConfigPath string
	// Source is the source definition from the request.
	Source config.Source
	// BaseDir is the build directory passed to the out script.
	BaseDir string
	// From names the subdirectory of BaseDir holding the locally built channel.
	From string
	// Open overrides how the channel connection is opened.
	Open common.Opener
}

// Run publishes the local version unless the remote channel already has
// artifacts for it, in which case nothing is uploaded and Files is empty.
//
//nolint:nonamedreturns // The deferred release reports close failures through err.
func Run(ctx context.Context, opts *Options) (result common.Result, err error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "out")

	src, err := common.ResolveSource(opts.ConfigPath, opts.Source)
	if err != nil {
		return common.Result{}, err
	}

	ctx = logger.WithKV(ctx, "pkg_name", src.PkgName)

	local, version, err := loadLocal(filepath.Join(opts.BaseDir, opts.From), src)
	if err != nil {
		return common.Result{}, err
	}

	ctx = logger.WithKV(ctx, "version", version)

	conn, err := common.Connect(ctx, opts.Open, src)
	if err != nil {
		return common.Result{}, err
	}

	// Release the connection on every exit path.
	defer common.Release(ctx, conn, &err)

	remote, err := channel.FromConnector(ctx, conn, src.Subdirs)
	if err != nil {
		return common.Result{}, fmt.Errorf("load channel data: %w", err)
	}

	for entry := range remote.Entries(src.PkgName, version) {
		logger.InfoKV(ctx, "Version is already published, skipping upload", "path", entry.RelPath())

		return common.Result{Version: version, Files: []string{}}, nil
	}

	if actor, actorErr := common.DetectActor(); actorErr == nil {
		logger.InfoKV(ctx, "Publishing version", "actor", actor.String(), "uri", src.URI, "channel", src.Channel)
	}

	files, err := conn.UploadLocalData(ctx, local, src.PkgName, version)
	if err != nil {
		return common.Result{}, err
	}

	return common.Result{Version: version, Files: files}, nil
}

// loadLocal reads the locally built channel and returns the only version of
// the package it holds.
func loadLocal(dir string, src *config.Source) (*channel.Data, string, error) {
	local, err := channel.FromPath(dir, src.Subdirs)
	if err != nil {
		return nil, "", fmt.Errorf("load local channel %s: %w", dir, err)
	}

	versions := local.Versions(src.PkgName)

	switch len(versions) {
	case 0:
		return nil, "", fmt.Errorf("no package found for %s in %s: %w", src.PkgName, dir, domain.ErrNotFound)
	case 1:
	default:
		return nil, "", fmt.Errorf("multiple versions of %s present in %s %v: %w",
			src.PkgName, dir, versions, domain.ErrAmbiguousVersion)
	}

	if _, err = domain.ParseVersion(versions[0]); err != nil {
		return nil, "", err
	}

	return local, versions[0], nil
}
