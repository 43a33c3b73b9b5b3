package connector

import (
	"encoding/json"
	"path"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/conda-channel-resource/internal/repository/channel"
)

// artifact describes one package file placed in a test channel.
type artifact struct {
	subdir   string
	filename string
	name     string
	version  string
	body     string
}

// writeLocalChannel lays out artifacts and their repodata.json in fs.
func writeLocalChannel(t *testing.T, fs billy.Filesystem, artifacts ...artifact) {
	t.Helper()

	packages := make(map[string]map[string]any)

	for _, a := range artifacts {
		require.NoError(t, util.WriteFile(fs, path.Join(a.subdir, a.filename), []byte(a.body), 0o644))

		if packages[a.subdir] == nil {
			packages[a.subdir] = make(map[string]any)
		}

		packages[a.subdir][a.filename] = map[string]any{
			"name":         a.name,
			"version":      a.version,
			"build":        "py_0",
			"build_number": 0,
			"subdir":       a.subdir,
			"depends":      []string{},
		}
	}

	for subdir, records := range packages {
		data, err := json.Marshal(map[string]any{
			"info":     map[string]any{"subdir": subdir},
			"packages": records,
		})
		require.NoError(t, err)
		require.NoError(t, util.WriteFile(fs, path.Join(subdir, channel.RepodataFilename), data, 0o644))
	}
}
