package testutil

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"encoding/json"
	"path"
	"strings"
	"testing"

	dsbzip2 "github.com/dsnet/compress/bzip2"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
	"github.com/oshokin/conda-channel-resource/internal/repository/channel"
)

const filePermissions = 0o644

// Package describes a conda package to be written by WritePackage.
type Package struct {
	Name    string
	Version string
	Build   string
	Subdir  string
	// Conda selects the v2 ".conda" format instead of ".tar.bz2".
	Conda bool
}

// Filename returns the conventional artifact name.
func (p Package) Filename() string {
	build := p.Build
	if build == "" {
		build = "py_0"
	}

	ext := channel.TarBz2Ext
	if p.Conda {
		ext = channel.CondaExt
	}

	return p.Name + "-" + p.Version + "-" + build + ext
}

// RelPath returns the channel-relative path of the artifact.
func (p Package) RelPath() string {
	return path.Join(p.Subdir, p.Filename())
}

// IndexJSON renders the package's info/index.json.
func (p Package) IndexJSON(t *testing.T) []byte {
	t.Helper()

	build := p.Build
	if build == "" {
		build = "py_0"
	}

	data, err := json.Marshal(map[string]any{
		"name":         p.Name,
		"version":      p.Version,
		"build":        build,
		"build_number": 0,
		"subdir":       p.Subdir,
		"depends":      []string{"python >=3.8"},
		"license":      "BSD-3-Clause",
	})
	require.NoError(t, err)

	return data
}

// WritePackage writes the archive for p into fs and returns its bytes.
func WritePackage(t *testing.T, fs billy.Filesystem, p Package) []byte {
	t.Helper()

	var data []byte
	if p.Conda {
		data = condaArchive(t, p)
	} else {
		data = tarBz2Archive(t, p)
	}

	require.NoError(t, util.WriteFile(fs, p.RelPath(), data, filePermissions))

	return data
}

// WriteChannel writes every package and a repodata.json per subdir, like a
// channel produced by "conda index".
func WriteChannel(t *testing.T, fs billy.Filesystem, packages ...Package) {
	t.Helper()

	data := channel.New(nil)

	for _, p := range packages {
		WritePackage(t, fs, p)

		entry, err := domain.NewEntry(p.Filename(), p.Subdir, p.IndexJSON(t))
		require.NoError(t, err)

		data.Add(entry)
	}

	files, err := data.RepodataFiles(false)
	require.NoError(t, err)

	for _, f := range files {
		require.NoError(t, util.WriteFile(fs, f.Path, f.Data, filePermissions))
	}
}

func infoTar(t *testing.T, p Package) []byte {
	t.Helper()

	files := map[string][]byte{
		"info/index.json": p.IndexJSON(t),
		"info/about.json": []byte(`{"summary":"test package"}`),
	}

	var buf bytes.Buffer

	tw := tar.NewWriter(&buf)

	for _, name := range []string{"info/index.json", "info/about.json"} {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: filePermissions,
			Size: int64(len(files[name])),
		}))

		_, err := tw.Write(files[name])
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())

	return buf.Bytes()
}

func tarBz2Archive(t *testing.T, p Package) []byte {
	t.Helper()

	var buf bytes.Buffer

	w, err := dsbzip2.NewWriter(&buf, nil)
	require.NoError(t, err)

	_, err = w.Write(infoTar(t, p))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func condaArchive(t *testing.T, p Package) []byte {
	t.Helper()

	var compressed bytes.Buffer

	enc, err := zstd.NewWriter(&compressed)
	require.NoError(t, err)

	_, err = enc.Write(infoTar(t, p))
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	stem := strings.TrimSuffix(p.Filename(), channel.CondaExt)

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	meta, err := zw.Create("metadata.json")
	require.NoError(t, err)

	_, err = meta.Write([]byte(`{"conda_pkg_format_version": 2}`))
	require.NoError(t, err)

	info, err := zw.CreateHeader(&zip.FileHeader{Name: "info-" + stem + ".tar.zst", Method: zip.Store})
	require.NoError(t, err)

	_, err = info.Write(compressed.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}
