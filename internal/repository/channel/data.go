package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"maps"
	"os"
	"path"
	"slices"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
)

// Downloader is the part of a connector that ChannelData needs to read remote repodata.
type Downloader interface {
	Download(ctx context.Context, relpath string, w io.Writer) error
}

// Data is a read view over a channel's repodata, plus entries added locally
// before an upload. It is built either from a connector or from a directory.
type Data struct {
	// root is set only for locally sourced data.
	root billy.Filesystem
	// subdirs keeps the scan order of platform subdirectories.
	subdirs []string
	// repodata holds the decoded repodata.json per subdir.
	repodata map[string]*subdirData
}

var (
	errNoSource = errors.New("channel data has no source")
	errNotLocal = errors.New("not locally sourced channel data, no root")
)

// New returns empty channel data with the given subdirs, used to build an index from scratch.
func New(subdirs []string) *Data {
	d := &Data{
		subdirs:  slices.Clone(subdirs),
		repodata: make(map[string]*subdirData, len(subdirs)),
	}

	for _, subdir := range subdirs {
		d.repodata[subdir] = newSubdirData(subdir)
	}

	return d
}

// FromConnector loads repodata for every subdir through the connector.
// Subdirs without repodata are treated as empty.
func FromConnector(ctx context.Context, conn Downloader, subdirs []string) (*Data, error) {
	if conn == nil {
		return nil, errNoSource
	}

	d := New(subdirs)

	for _, subdir := range subdirs {
		var buf bytes.Buffer

		err := conn.Download(ctx, path.Join(subdir, RepodataFilename), &buf)
		if errors.Is(err, domain.ErrNoSuchObject) {
			continue
		}

		if err != nil {
			return nil, err
		}

		if d.repodata[subdir], err = decodeSubdir(subdir, buf.Bytes()); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// FromDirectory loads repodata from a local channel directory.
// Subdirs without repodata are treated as empty.
func FromDirectory(root billy.Filesystem, subdirs []string) (*Data, error) {
	if root == nil {
		return nil, errNoSource
	}

	d := New(subdirs)
	d.root = root

	for _, subdir := range subdirs {
		contents, err := util.ReadFile(root, path.Join(subdir, RepodataFilename))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("read %s repodata: %w", subdir, err)
		}

		if d.repodata[subdir], err = decodeSubdir(subdir, contents); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// FromPath is FromDirectory over the OS filesystem rooted at dir.
func FromPath(dir string, subdirs []string) (*Data, error) {
	return FromDirectory(osfs.New(dir), subdirs)
}

// Root returns the filesystem of locally sourced data.
//
//nolint:ireturn // billy.Filesystem is an interface by design.
func (d *Data) Root() (billy.Filesystem, error) {
	if d.root == nil {
		return nil, errNotLocal
	}

	return d.root, nil
}

// Open opens a local artifact by its channel-relative path.
//
//nolint:ireturn // billy.File is an interface by design.
func (d *Data) Open(relpath string) (billy.File, error) {
	root, err := d.Root()
	if err != nil {
		return nil, err
	}

	f, err := root.Open(relpath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", relpath, err)
	}

	return f, nil
}

// Subdirs returns the scanned subdirectories in order.
func (d *Data) Subdirs() []string {
	return slices.Clone(d.subdirs)
}

// Entries yields every entry matching name and version. An empty name or
// version matches anything. Versions match by PEP 440 equality, so "1.0"
// also yields "1.0.0" entries. Subdirs are visited in scan order and entries
// by file name.
func (d *Data) Entries(name, version string) iter.Seq[domain.Entry] {
	sameVersion := domain.MatchVersion(version)

	return func(yield func(domain.Entry) bool) {
		for _, subdir := range d.subdirs {
			for _, entry := range d.repodata[subdir].sortedEntries() {
				if name != "" && entry.Name() != name {
					continue
				}

				if version != "" && !sameVersion(entry.Version()) {
					continue
				}

				if !yield(entry) {
					return
				}
			}
		}
	}
}

// Paths yields the channel-relative paths of the entries matching name and version.
func (d *Data) Paths(name, version string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for entry := range d.Entries(name, version) {
			if !yield(entry.RelPath()) {
				return
			}
		}
	}
}

// Names returns every package name in the channel, sorted.
func (d *Data) Names() []string {
	names := make(map[string]struct{})
	for entry := range d.Entries("", "") {
		names[entry.Name()] = struct{}{}
	}

	return slices.Sorted(maps.Keys(names))
}

// Versions returns every distinct version recorded for name, in lexical
// order. Spellings of the same PEP 440 version are reported once, as the
// lexically first one. Use channel.Resolve for version ordering.
func (d *Data) Versions(name string) []string {
	spellings := make(map[string]struct{})
	for entry := range d.Entries(name, "") {
		spellings[entry.Version()] = struct{}{}
	}

	var versions []string

	for _, raw := range slices.Sorted(maps.Keys(spellings)) {
		if !slices.ContainsFunc(versions, domain.MatchVersion(raw)) {
			versions = append(versions, raw)
		}
	}

	return versions
}

// Add records an entry, replacing any entry with the same file name in its subdir.
func (d *Data) Add(entry domain.Entry) {
	sd, ok := d.repodata[entry.Subdir]
	if !ok {
		sd = newSubdirData(entry.Subdir)
		d.repodata[entry.Subdir] = sd
		d.subdirs = append(d.subdirs, entry.Subdir)
	}

	sd.entries[entry.Filename] = entry
}

// RepodataFiles renders repodata.json and repodata.json.bz2 for every subdir
// that has entries, or for every subdir when includeEmpty is set.
func (d *Data) RepodataFiles(includeEmpty bool) ([]File, error) {
	var files []File

	for _, subdir := range d.subdirs {
		sd := d.repodata[subdir]
		if len(sd.entries) == 0 && !includeEmpty {
			continue
		}

		data, err := sd.encode()
		if err != nil {
			return nil, err
		}

		rendered, err := repodataFiles(subdir, data)
		if err != nil {
			return nil, err
		}

		files = append(files, rendered...)
	}

	return files, nil
}
