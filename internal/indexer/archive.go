package indexer

import (
	"archive/tar"
	"archive/zip"
	"crypto/md5" //nolint:gosec // conda repodata carries md5 digests.
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	dsbzip2 "github.com/dsnet/compress/bzip2"
	"github.com/go-git/go-billy/v5"
	"github.com/klauspost/compress/zstd"

	"github.com/oshokin/conda-channel-resource/internal/repository/channel"
)

const (
	indexJSONPath = "info/index.json"
	// maxIndexJSONSize bounds the metadata read from an archive.
	maxIndexJSONSize = 1 << 20
)

var (
	errMissingIndex    = errors.New("package has no " + indexJSONPath)
	errMissingInfoPart = errors.New("conda package has no info archive")
)

// readRecord returns the repodata record of a package archive: its
// info/index.json with the file digests and size added.
func readRecord(root billy.Filesystem, relpath, subdir string) (json.RawMessage, error) {
	f, err := root.Open(relpath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", relpath, err)
	}
	defer f.Close()

	sha := sha256.New()
	sum := md5.New() //nolint:gosec // See import.

	size, err := io.Copy(io.MultiWriter(sha, sum), f)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", relpath, err)
	}

	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var indexJSON []byte
	if strings.HasSuffix(relpath, channel.CondaExt) {
		indexJSON, err = condaIndexJSON(f, size)
	} else {
		indexJSON, err = tarBz2IndexJSON(f)
	}

	if err != nil {
		return nil, fmt.Errorf("read %s: %w", relpath, err)
	}

	var record map[string]any
	if err = json.Unmarshal(indexJSON, &record); err != nil {
		return nil, fmt.Errorf("decode %s of %s: %w", indexJSONPath, relpath, err)
	}

	record["subdir"] = subdir
	record["sha256"] = hex.EncodeToString(sha.Sum(nil))
	record["md5"] = hex.EncodeToString(sum.Sum(nil))
	record["size"] = size

	return json.Marshal(record)
}

func tarBz2IndexJSON(r io.Reader) ([]byte, error) {
	bz, err := dsbzip2.NewReader(r, nil)
	if err != nil {
		return nil, err
	}
	defer bz.Close()

	return findInTar(bz)
}

// condaIndexJSON opens the info-*.tar.zst member of a v2 package.
func condaIndexJSON(r io.ReaderAt, size int64) ([]byte, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}

	for _, member := range zr.File {
		if !strings.HasPrefix(member.Name, "info-") || !strings.HasSuffix(member.Name, ".tar.zst") {
			continue
		}

		rc, err := member.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		dec, err := zstd.NewReader(rc)
		if err != nil {
			return nil, err
		}
		defer dec.Close()

		return findInTar(dec)
	}

	return nil, errMissingInfoPart
}

func findInTar(r io.Reader) ([]byte, error) {
	tr := tar.NewReader(r)

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, errMissingIndex
		}

		if err != nil {
			return nil, err
		}

		if strings.TrimPrefix(header.Name, "./") == indexJSONPath {
			return io.ReadAll(io.LimitReader(tr, maxIndexJSONSize))
		}
	}
}
