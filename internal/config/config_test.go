package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/conda-channel-resource/internal/domain/channel"
)

// TestValidate checks required keys, URI schemes and value formats.
func TestValidate(t *testing.T) {
	t.Parallel()

	err := Validate(new(Source))
	require.ErrorIs(t, err, errMissingKey)
	require.Contains(t, err.Error(), "pkg_name")

	err = Validate(&Source{PkgName: "q2-types", URI: "file:///srv/channel"})
	require.ErrorIs(t, err, errMissingKey)
	require.Contains(t, err.Error(), "channel")

	err = Validate(&Source{PkgName: "q2-types", URI: "gopher://example.com", Channel: "dev"})
	require.ErrorIs(t, err, errUnknownURI)

	err = Validate(&Source{PkgName: "q2-types", URI: "https://example.com", Channel: "dev"})
	require.ErrorIs(t, err, errUnknownURI)

	err = Validate(&Source{PkgName: "q2-types", URI: "ftp://example.com", Channel: "dev", Regex: "("})
	require.ErrorIs(t, err, errInvalidValue)

	err = Validate(&Source{PkgName: "q2-types", URI: "ftp://example.com", Channel: "dev", MaxRetries: 99})
	require.ErrorIs(t, err, errInvalidValue)

	err = Validate(&Source{PkgName: "q2-types", URI: "ftp://example.com", Channel: "dev", LogLevel: "loud"})
	require.ErrorIs(t, err, errInvalidValue)

	src := &Source{PkgName: "q2-types", URI: AnacondaCloudURI, Channel: "qiime2/label/r2021.4"}
	require.NoError(t, Validate(src))
	require.Equal(t, channel.DefaultSubdirs, src.Subdirs)
}

// TestSource_Transport maps URIs onto connector kinds.
func TestSource_Transport(t *testing.T) {
	t.Parallel()

	cases := map[string]Transport{
		"file:///srv/channel":         TransportFile,
		"ftp://ftp.example.com:2121":  TransportFTP,
		"ftps://ftp.example.com":      TransportFTPS,
		"S3://bucket/prefix":          TransportS3,
		"minio://localhost:9000/bkt":  TransportMinio,
		"minios://minio.example/bkt":  TransportMinioTLS,
		AnacondaCloudURI:              TransportAnaconda,
		QIIME2StagingURI:              TransportAnaconda,
	}

	for uri, want := range cases {
		src := &Source{URI: uri}

		got, err := src.Transport()
		require.NoError(t, err, uri)
		require.Equal(t, want, got, uri)
	}
}

// TestSource_LockWait applies the default timeout when unset.
func TestSource_LockWait(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultLockTimeout, (&Source{}).LockWait())
	require.Equal(t, 30*time.Second, (&Source{LockTimeout: 30}).LockWait())
}

// TestMerge applies non-zero override fields without touching the base.
func TestMerge(t *testing.T) {
	t.Parallel()

	base := &Source{
		PkgName: "q2-types",
		URI:     "ftp://example.com",
		Channel: "dev",
		User:    "foo",
		Matched: []string{"1.0"},
	}

	merged := Merge(base, Source{Channel: "release", Matched: []string{"2.0"}, MaxRetries: 2})
	require.Equal(t, "q2-types", merged.PkgName)
	require.Equal(t, "release", merged.Channel)
	require.Equal(t, "foo", merged.User)
	require.Equal(t, []string{"2.0"}, merged.Matched)
	require.Equal(t, 2, merged.MaxRetries)

	require.Equal(t, "dev", base.Channel)
	require.Equal(t, []string{"1.0"}, base.Matched)

	require.Equal(t, Source{PkgName: "x"}, Merge(nil, Source{PkgName: "x"}))
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")

	src := &Source{
		PkgName:    "q2-types",
		URI:        "ftps://ftp.example.com",
		Channel:    "qiime2/staging",
		User:       "foo",
		Pass:       "bar",
		MaxRetries: 3,
	}

	require.NoError(t, Save(path, src))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, src, loaded)
}

// TestLoad_RejectsUnknownKeys enforces the closed key set.
func TestLoad_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pkg_name: x\nflavour: vanilla\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)

	require.ErrorIs(t, Save(path, nil), errConfigIsNotSet)
}
