package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"

	dsbzip2 "github.com/dsnet/compress/bzip2"

	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
)

const (
	// RepodataFilename is the per-subdir index file name.
	RepodataFilename = "repodata.json"
	// CompressedExt is appended to RepodataFilename for the bzip2 copy.
	CompressedExt = ".bz2"

	// CondaExt is the extension of the v2 package format, listed under "packages.conda".
	CondaExt = ".conda"
	// TarBz2Ext is the extension of the legacy package format, listed under "packages".
	TarBz2Ext = ".tar.bz2"

	keyInfo          = "info"
	keyPackages      = "packages"
	keyPackagesConda = "packages.conda"
)

// File is a rendered file ready to be stored at a channel-relative path.
type File struct {
	Path string
	Data []byte
}

// subdirData is the decoded content of one repodata.json.
type subdirData struct {
	// info is the "info" object, kept verbatim apart from the subdir key.
	info map[string]any
	// entries maps artifact file names to entries.
	entries map[string]domain.Entry
	// extra keeps top-level keys this package does not interpret ("removed", ...).
	extra map[string]json.RawMessage
}

func newSubdirData(subdir string) *subdirData {
	return &subdirData{
		info:    map[string]any{"subdir": subdir},
		entries: make(map[string]domain.Entry),
		extra:   make(map[string]json.RawMessage),
	}
}

// decodeSubdir parses a repodata.json document.
func decodeSubdir(subdir string, data []byte) (*subdirData, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", subdir, RepodataFilename, err)
	}

	result := newSubdirData(subdir)

	if raw, ok := doc[keyInfo]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &result.info); err != nil {
			return nil, fmt.Errorf("decode %s info: %w", subdir, err)
		}
	}

	for _, key := range []string{keyPackages, keyPackagesConda} {
		raw, ok := doc[key]
		if !ok || string(raw) == "null" {
			continue
		}

		var records map[string]json.RawMessage
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", subdir, key, err)
		}

		for filename, record := range records {
			entry, err := domain.NewEntry(filename, subdir, record)
			if err != nil {
				return nil, err
			}

			result.entries[filename] = entry
		}
	}

	for key, raw := range doc {
		if key != keyInfo && key != keyPackages && key != keyPackagesConda {
			result.extra[key] = raw
		}
	}

	return result, nil
}

// encode renders the subdir as a repodata.json document.
func (s *subdirData) encode() ([]byte, error) {
	packages := make(map[string]json.RawMessage)
	packagesConda := make(map[string]json.RawMessage)

	for filename, entry := range s.entries {
		raw, err := entry.Raw()
		if err != nil {
			return nil, err
		}

		if strings.HasSuffix(filename, CondaExt) {
			packagesConda[filename] = raw
		} else {
			packages[filename] = raw
		}
	}

	doc := make(map[string]json.RawMessage, len(s.extra)+3)
	maps.Copy(doc, s.extra)

	var err error

	if doc[keyInfo], err = json.Marshal(s.info); err != nil {
		return nil, fmt.Errorf("encode info: %w", err)
	}

	if doc[keyPackages], err = json.Marshal(packages); err != nil {
		return nil, fmt.Errorf("encode packages: %w", err)
	}

	if len(packagesConda) > 0 {
		if doc[keyPackagesConda], err = json.Marshal(packagesConda); err != nil {
			return nil, fmt.Errorf("encode packages.conda: %w", err)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode repodata: %w", err)
	}

	return data, nil
}

// sortedEntries returns the subdir entries ordered by file name.
func (s *subdirData) sortedEntries() []domain.Entry {
	names := slices.Sorted(maps.Keys(s.entries))

	result := make([]domain.Entry, 0, len(names))
	for _, name := range names {
		result = append(result, s.entries[name])
	}

	return result
}

// repodataFiles renders repodata.json and its bzip2 copy for subdir.
func repodataFiles(subdir string, data []byte) ([]File, error) {
	compressed, err := Compress(data)
	if err != nil {
		return nil, fmt.Errorf("compress %s repodata: %w", subdir, err)
	}

	relpath := path.Join(subdir, RepodataFilename)

	return []File{
		{Path: relpath, Data: data},
		{Path: relpath + CompressedExt, Data: compressed},
	}, nil
}

// Compress returns data compressed with bzip2, as conda clients expect for repodata.json.bz2.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := dsbzip2.NewWriter(&buf, &dsbzip2.WriterConfig{Level: dsbzip2.BestCompression})
	if err != nil {
		return nil, err
	}

	if _, err = w.Write(data); err != nil {
		_ = w.Close()

		return nil, err
	}

	if err = w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
