package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/conda-channel-resource/internal/config"
	"github.com/oshokin/conda-channel-resource/internal/connector"
	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
	"github.com/oshokin/conda-channel-resource/internal/repository/channel"
	"github.com/oshokin/conda-channel-resource/internal/testutil"
)

// countingConnector records uploads made through the wrapped connector.
type countingConnector struct {
	connector.Connector

	uploads int
	closed  bool
}

func (c *countingConnector) UploadLocalData(
	ctx context.Context,
	local *channel.Data,
	name, version string,
) ([]string, error) {
	c.uploads++

	return c.Connector.UploadLocalData(ctx, local, name, version)
}

func (c *countingConnector) Close() error {
	c.closed = true

	return c.Connector.Close()
}

type fixture struct {
	src       config.Source
	baseDir   string
	remoteDir string
	conns     []*countingConnector
}

func newFixture(t *testing.T, local ...testutil.Package) *fixture {
	t.Helper()

	f := &fixture{
		baseDir:   t.TempDir(),
		remoteDir: t.TempDir(),
	}

	f.src = config.Source{
		PkgName: "q2-types",
		URI:     "file://" + filepath.ToSlash(f.remoteDir),
		Channel: "qiime2",
		Subdirs: []string{"noarch", "linux-64"},
	}

	require.NoError(t, os.MkdirAll(filepath.Join(f.baseDir, "built"), 0o755))
	testutil.WriteChannel(t, osfs.New(filepath.Join(f.baseDir, "built")), local...)

	return f
}

func (f *fixture) options() *Options {
	return &Options{
		Source:  f.src,
		BaseDir: f.baseDir,
		From:    "built",
		Open: func(ctx context.Context, src *config.Source) (connector.Connector, error) {
			conn, err := connector.Open(ctx, src)
			if err != nil {
				return nil, err
			}

			counting := &countingConnector{Connector: conn}
			f.conns = append(f.conns, counting)

			return counting, nil
		},
	}
}

// TestRun_IsIdempotent uploads on the first call and does nothing on the second.
func TestRun_IsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		testutil.Package{Name: "q2-types", Version: "2021.8.0", Subdir: "noarch"},
		testutil.Package{Name: "q2-types", Version: "2021.8.0", Build: "py38_0", Subdir: "linux-64"},
	)

	first, err := Run(context.Background(), f.options())
	require.NoError(t, err)
	require.Equal(t, "2021.8.0", first.Version)
	require.Equal(t, []string{
		"noarch/q2-types-2021.8.0-py_0.tar.bz2",
		"linux-64/q2-types-2021.8.0-py38_0.tar.bz2",
	}, first.Files)

	before, err := os.Stat(filepath.Join(f.remoteDir, "qiime2", "noarch", "repodata.json"))
	require.NoError(t, err)

	second, err := Run(context.Background(), f.options())
	require.NoError(t, err)
	require.Equal(t, "2021.8.0", second.Version)
	require.Empty(t, second.Files)

	after, err := os.Stat(filepath.Join(f.remoteDir, "qiime2", "noarch", "repodata.json"))
	require.NoError(t, err)
	require.Equal(t, before.ModTime(), after.ModTime())

	require.Len(t, f.conns, 2)
	require.Equal(t, 1, f.conns[0].uploads)
	require.Equal(t, 0, f.conns[1].uploads)
	require.True(t, f.conns[0].closed)
	require.True(t, f.conns[1].closed)

	remote, err := channel.FromPath(filepath.Join(f.remoteDir, "qiime2"), f.src.Subdirs)
	require.NoError(t, err)
	require.Equal(t, []string{"2021.8.0"}, remote.Versions("q2-types"))
}

// TestRun_AmbiguousLocalVersions refuses to guess between two built versions.
func TestRun_AmbiguousLocalVersions(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		testutil.Package{Name: "q2-types", Version: "2021.8.0", Subdir: "noarch"},
		testutil.Package{Name: "q2-types", Version: "2021.4.0", Subdir: "noarch"},
	)

	_, err := Run(context.Background(), f.options())
	require.ErrorIs(t, err, domain.ErrAmbiguousVersion)
	require.Empty(t, f.conns)
}

// TestRun_NoLocalPackage fails when the build produced nothing for the package.
func TestRun_NoLocalPackage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testutil.Package{Name: "q2-other", Version: "1.0", Subdir: "noarch"})

	_, err := Run(context.Background(), f.options())
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Empty(t, f.conns)
}

// TestRun_KeepsOtherRemoteVersions merges the new version into existing repodata.
func TestRun_KeepsOtherRemoteVersions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testutil.Package{Name: "q2-types", Version: "2021.8.0", Subdir: "noarch"})
	testutil.WriteChannel(t, osfs.New(filepath.Join(f.remoteDir, "qiime2")),
		testutil.Package{Name: "q2-types", Version: "2021.4.0", Subdir: "noarch"},
	)

	result, err := Run(context.Background(), f.options())
	require.NoError(t, err)
	require.Len(t, result.Files, 1)

	remote, err := channel.FromPath(filepath.Join(f.remoteDir, "qiime2"), f.src.Subdirs)
	require.NoError(t, err)
	require.Equal(t, []string{"2021.4.0", "2021.8.0"}, remote.Versions("q2-types"))
}

// TestRun_SkipsNormalizedEqualRemoteVersion treats a remote 1.0.0 as the local 1.0.
func TestRun_SkipsNormalizedEqualRemoteVersion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testutil.Package{Name: "q2-types", Version: "1.0", Build: "py_1", Subdir: "noarch"})
	testutil.WriteChannel(t, osfs.New(filepath.Join(f.remoteDir, "qiime2")),
		testutil.Package{Name: "q2-types", Version: "1.0.0", Subdir: "noarch"},
	)

	result, err := Run(context.Background(), f.options())
	require.NoError(t, err)
	require.Equal(t, "1.0", result.Version)
	require.Empty(t, result.Files)

	require.Len(t, f.conns, 1)
	require.Equal(t, 0, f.conns[0].uploads)
	require.NoFileExists(t, filepath.Join(f.remoteDir, "qiime2", "noarch", "q2-types-1.0-py_1.tar.bz2"))
}

// TestRun_NormalizedEqualLocalVersions publishes two spellings of one version together.
func TestRun_NormalizedEqualLocalVersions(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		testutil.Package{Name: "q2-types", Version: "1.0", Subdir: "noarch"},
		testutil.Package{Name: "q2-types", Version: "1.0.0", Build: "py38_0", Subdir: "linux-64"},
	)

	result, err := Run(context.Background(), f.options())
	require.NoError(t, err)
	require.Equal(t, "1.0", result.Version)
	require.Equal(t, []string{
		"noarch/q2-types-1.0-py_0.tar.bz2",
		"linux-64/q2-types-1.0.0-py38_0.tar.bz2",
	}, result.Files)
}
