package materialize

import (
	"context"
	"crypto"
	_ "crypto/md5" //nolint:gosec // Registers the digest used by older repodata records.
	_ "crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/conda-channel-resource/internal/connector"
	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
	"github.com/oshokin/conda-channel-resource/internal/logger"
)

// fetchAll downloads entries into a hidden staging directory under dest and
// moves each one to its final path once complete.
func fetchAll(ctx context.Context, conn connector.Connector, dest string, entries []domain.Entry) ([]string, error) {
	staging, err := os.MkdirTemp(dest, stagingPattern)
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	defer func() {
		if removeErr := os.RemoveAll(staging); removeErr != nil {
			logger.WarnKV(ctx, "Could not remove staging directory", "path", staging, "error", removeErr)
		}
	}()

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		relpath := entry.RelPath()
		if !filepath.IsLocal(filepath.FromSlash(relpath)) {
			return nil, fmt.Errorf("artifact %q: %w", relpath, domain.ErrUnsafePath)
		}

		staged, err := download(ctx, conn, staging, relpath)
		if err != nil {
			return nil, err
		}

		if err = apply(staged, filepath.Join(dest, filepath.FromSlash(relpath)), entry.Record); err != nil {
			return nil, fmt.Errorf("apply %s: %w", relpath, err)
		}

		logger.DebugKV(ctx, "Fetched artifact", "path", relpath)

		files = append(files, relpath)
	}

	return files, nil
}

func download(ctx context.Context, conn connector.Connector, staging, relpath string) (string, error) {
	staged := filepath.Join(staging, filepath.FromSlash(relpath))
	if err := os.MkdirAll(filepath.Dir(staged), dirPermissions); err != nil {
		return "", err
	}

	f, err := os.Create(staged)
	if err != nil {
		return "", err
	}

	err = conn.Download(ctx, relpath, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return "", err
	}

	return staged, nil
}

// apply moves the staged file to target with go-update, verifying the record
// digest when the channel provides one. A failed apply leaves no file at target.
//
// go-update only replaces existing files, so a new target briefly holds an
// empty placeholder while Apply runs. Readers of the working tree may see it
// during Run. It is removed when Apply fails, so after Run returns the target
// is either the verified artifact or absent.
func apply(staged, target string, record domain.Record) error {
	data, err := os.Open(staged) //nolint:gosec // Path is inside our staging directory.
	if err != nil {
		return err
	}
	defer data.Close()

	options := goupdate.Options{
		TargetPath: target,
		TargetMode: filePermissions,
	}

	if options.Checksum, options.Hash, err = recordChecksum(record); err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(target), dirPermissions); err != nil {
		return err
	}

	// go-update swaps an existing target, so an empty one is created first.
	placeholder := false

	if _, statErr := os.Stat(target); os.IsNotExist(statErr) {
		f, createErr := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePermissions)
		if createErr != nil {
			return createErr
		}

		_ = f.Close()
		placeholder = true
	}

	if err = goupdate.Apply(data, options); err != nil {
		if placeholder {
			_ = os.Remove(target)
		}

		return err
	}

	return nil
}

// recordChecksum returns the strongest digest the record carries.
func recordChecksum(record domain.Record) ([]byte, crypto.Hash, error) {
	var (
		digest string
		hash   crypto.Hash
	)

	switch {
	case record.SHA256 != "":
		digest, hash = record.SHA256, crypto.SHA256
	case record.MD5 != "":
		digest, hash = record.MD5, crypto.MD5
	default:
		return nil, 0, nil
	}

	checksum, err := hex.DecodeString(digest)
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s digest: %w", hash, err)
	}

	return checksum, hash, nil
}
