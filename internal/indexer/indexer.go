package indexer

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
	"github.com/oshokin/conda-channel-resource/internal/logger"
	"github.com/oshokin/conda-channel-resource/internal/repository/channel"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644
	indexPage       = "index.html"
)

// Config controls a single Index run.
type Config struct {
	// Subdirs are created and indexed even when absent or empty.
	// Other non-hidden directories found under the root are indexed too.
	Subdirs []string
	// HTML enables index.html pages for the channel and every subdir.
	HTML bool
	// Title names the channel on index pages.
	Title string
}

// DefaultConfig returns a fresh configuration that always indexes noarch.
func DefaultConfig() Config {
	return Config{
		Subdirs: []string{domain.NoarchSubdir},
		HTML:    true,
		Title:   "conda channel",
	}
}

// Summary reports what an Index run produced.
type Summary struct {
	Subdirs  []string
	Packages int
	// Skipped lists archives that could not be read. They stay on disk but
	// have no repodata record.
	Skipped []string
}

// Index scans every package archive under root and writes repodata.json,
// repodata.json.bz2 and, when enabled, index.html for each subdir.
func Index(ctx context.Context, root billy.Filesystem, cfg Config) (Summary, error) {
	subdirs, err := discoverSubdirs(root, cfg.Subdirs)
	if err != nil {
		return Summary{}, err
	}

	data := channel.New(subdirs)
	packages := 0

	var skipped []string

	for _, subdir := range subdirs {
		if err = root.MkdirAll(subdir, dirPermissions); err != nil {
			return Summary{}, fmt.Errorf("create %s: %w", subdir, err)
		}

		infos, err := root.ReadDir(subdir)
		if err != nil {
			return Summary{}, fmt.Errorf("list %s: %w", subdir, err)
		}

		for _, info := range infos {
			if info.IsDir() || !isPackage(info.Name()) {
				continue
			}

			if err = ctx.Err(); err != nil {
				return Summary{}, err
			}

			relpath := path.Join(subdir, info.Name())

			entry, err := readEntry(root, subdir, info.Name())
			if err != nil {
				logger.WarnKV(ctx, "Skipping unreadable package", "path", relpath, "error", err)

				skipped = append(skipped, relpath)

				continue
			}

			data.Add(entry)
			packages++

			logger.DebugKV(ctx, "Indexed package", "path", relpath)
		}
	}

	if err = writeRepodata(root, data); err != nil {
		return Summary{}, err
	}

	if cfg.HTML {
		if err = writePages(root, data, cfg.Title); err != nil {
			return Summary{}, err
		}
	}

	logger.InfoKV(ctx, "Indexed channel", "subdirs", len(subdirs), "packages", packages, "skipped", len(skipped))

	return Summary{Subdirs: subdirs, Packages: packages, Skipped: skipped}, nil
}

func readEntry(root billy.Filesystem, subdir, filename string) (domain.Entry, error) {
	record, err := readRecord(root, path.Join(subdir, filename), subdir)
	if err != nil {
		return domain.Entry{}, err
	}

	return domain.NewEntry(filename, subdir, record)
}

// discoverSubdirs returns the configured subdirs followed by every other
// non-hidden directory under root, in name order.
func discoverSubdirs(root billy.Filesystem, configured []string) ([]string, error) {
	subdirs := slices.Clone(configured)

	infos, err := root.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("list channel root: %w", err)
	}

	for _, info := range infos {
		name := info.Name()
		if !info.IsDir() || strings.HasPrefix(name, ".") || slices.Contains(subdirs, name) {
			continue
		}

		subdirs = append(subdirs, name)
	}

	return subdirs, nil
}

func isPackage(filename string) bool {
	return strings.HasSuffix(filename, channel.TarBz2Ext) || strings.HasSuffix(filename, channel.CondaExt)
}

func writeRepodata(root billy.Filesystem, data *channel.Data) error {
	files, err := data.RepodataFiles(true)
	if err != nil {
		return err
	}

	for _, f := range files {
		if err = util.WriteFile(root, f.Path, f.Data, filePermissions); err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
	}

	return nil
}
