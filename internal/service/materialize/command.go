package materialize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/oshokin/conda-channel-resource/internal/config"
	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
	"github.com/oshokin/conda-channel-resource/internal/indexer"
	"github.com/oshokin/conda-channel-resource/internal/logger"
	"github.com/oshokin/conda-channel-resource/internal/repository/channel"
	"github.com/oshokin/conda-channel-resource/internal/service/common"
)

const (
	// VersionSpecFilename holds the pinned "name=version" constraint.
	VersionSpecFilename = "version-spec.txt"

	dirPermissions  = 0o755
	filePermissions = 0o644
	stagingPattern  = ".staging-*"
)

// Options controls a single materialization.
type Options struct {
	// ConfigPath optionally points to a YAML settings file merged under Source.
	ConfigPath string
	// Source is the source definition from the request.
	Source config.Source
	// Version is the resolved version to fetch.
	Version string
	// Dest is the working directory to populate.
	Dest string
	// Open overrides how the channel connection is opened.
	Open common.Opener
}

// Run downloads every artifact of the version into Dest, rebuilds the
// channel index there and writes version-spec.txt.
//
//nolint:nonamedreturns // The deferred release reports close failures through err.
func Run(ctx context.Context, opts *Options) (result common.Result, err error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "in")

	src, err := common.ResolveSource(opts.ConfigPath, opts.Source)
	if err != nil {
		return common.Result{}, err
	}

	ctx = logger.WithKV(ctx, "pkg_name", src.PkgName, "version", opts.Version)

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

	entries := slices.Collect(remote.Entries(src.PkgName, opts.Version))
	if len(entries) == 0 {
		return common.Result{}, fmt.Errorf("version %s of %s not found: %w",
			opts.Version, src.PkgName, domain.ErrNotFound)
	}

	// The index builder only recognizes the tree as a channel when noarch exists.
	if err = os.MkdirAll(filepath.Join(opts.Dest, domain.NoarchSubdir), dirPermissions); err != nil {
		return common.Result{}, fmt.Errorf("create noarch directory: %w", err)
	}

	files, err := fetchAll(ctx, conn, opts.Dest, entries)
	if err != nil {
		return common.Result{}, err
	}

	// Index configuration is built for this call only.
	cfg := indexer.DefaultConfig()
	for _, subdir := range src.Subdirs {
		if !slices.Contains(cfg.Subdirs, subdir) {
			cfg.Subdirs = append(cfg.Subdirs, subdir)
		}
	}

	cfg.Title = src.Channel

	if _, err = indexer.Index(ctx, osfs.New(opts.Dest), cfg); err != nil {
		return common.Result{}, fmt.Errorf("index %s: %w", opts.Dest, err)
	}

	spec := src.PkgName + "=" + opts.Version
	if err = os.WriteFile(filepath.Join(opts.Dest, VersionSpecFilename), []byte(spec), filePermissions); err != nil {
		return common.Result{}, fmt.Errorf("write %s: %w", VersionSpecFilename, err)
	}

	logger.InfoKV(ctx, "Materialized version", "dest", opts.Dest, "files", len(files))

	return common.Result{Version: opts.Version, Files: files}, nil
}
