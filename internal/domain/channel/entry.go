package channel

import (
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// NoarchSubdir is the platform-independent subdirectory every channel has.
const NoarchSubdir = "noarch"

// DefaultSubdirs lists the platform subdirectories scanned when none are configured.
//
//nolint:gochecknoglobals // Read-only list, copied by DefaultSubdirList.
var DefaultSubdirs = []string{
	NoarchSubdir,
	"osx-64",
	"osx-arm64",
	"linux-64",
	"linux-32",
	"linux-aarch64",
	"win-64",
	"win-32",
}

// DefaultSubdirList returns a fresh copy of DefaultSubdirs.
func DefaultSubdirList() []string {
	return append([]string(nil), DefaultSubdirs...)
}

// Record is the package metadata stored for an artifact in repodata.json.
type Record struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Build       string   `json:"build,omitempty"`
	BuildNumber int      `json:"build_number"`
	Subdir      string   `json:"subdir,omitempty"`
	Depends     []string `json:"depends,omitempty"`
	SHA256      string   `json:"sha256,omitempty"`
	MD5         string   `json:"md5,omitempty"`
	Size        int64    `json:"size,omitempty"`
}

// Entry is one artifact of a channel. Entries are immutable.
type Entry struct {
	// Filename is the artifact file name inside its subdir.
	Filename string
	// Subdir is the platform subdirectory, e.g. "linux-64" or "noarch".
	Subdir string
	// Record is the decoded package metadata.
	Record Record
	// raw keeps every field of the repodata record, including ones Record ignores.
	raw json.RawMessage
}

// NewEntry decodes a raw repodata record. When the record has no subdir the
// containing subdir is used. Both the file name and the subdir must be single
// path elements, so RelPath always stays inside the channel.
func NewEntry(filename, subdir string, raw json.RawMessage) (Entry, error) {
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Entry{}, fmt.Errorf("decode record %s/%s: %w", subdir, filename, err)
	}

	if record.Subdir != "" {
		subdir = record.Subdir
	}

	for _, element := range []string{subdir, filename} {
		if !isPathElement(element) {
			return Entry{}, fmt.Errorf("%q in %s: %w", element, subdir, ErrUnsafePath)
		}
	}

	return Entry{
		Filename: filename,
		Subdir:   subdir,
		Record:   record,
		raw:      append(json.RawMessage(nil), raw...),
	}, nil
}

// Name returns the package name of the entry.
func (e Entry) Name() string {
	return e.Record.Name
}

// Version returns the raw version string of the entry.
func (e Entry) Version() string {
	return e.Record.Version
}

// RelPath returns the channel-relative path, e.g. "linux-64/pkg-1.0-0.tar.bz2".
func (e Entry) RelPath() string {
	return path.Join(e.Subdir, e.Filename)
}

// Raw returns the full repodata record. Entries built without raw data
// marshal their Record instead.
func (e Entry) Raw() (json.RawMessage, error) {
	if len(e.raw) > 0 {
		return append(json.RawMessage(nil), e.raw...), nil
	}

	data, err := json.Marshal(e.Record)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", e.RelPath(), err)
	}

	return data, nil
}

func isPathElement(s string) bool {
	return s != "." && !strings.ContainsAny(s, `/\`) && filepath.IsLocal(s)
}
