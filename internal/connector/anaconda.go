package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/oshokin/conda-channel-resource/internal/config"
	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
	"github.com/oshokin/conda-channel-resource/internal/logger"
	"github.com/oshokin/conda-channel-resource/internal/repository/channel"
)

const (
	defaultAnacondaBinary = "anaconda"
	defaultAnacondaLabel  = "main"
	anacondaUserAgent     = "conda-channel-resource"
)

var (
	errBadHTTPStatus     = errors.New("bad HTTP status")
	errAnacondaLogin     = errors.New("anaconda login failed")
	errAnacondaUpload    = errors.New("anaconda upload failed")
	errAnacondaNoBaseDir = errors.New("local channel has no directory on disk")
)

// anacondaConnector reads channels served with the anaconda.org layout and
// publishes through the anaconda CLI.
type anacondaConnector struct {
	baseURL *url.URL
	channel string
	// owner is the account that uploads land in.
	owner string
	// label is the channel label, "main" unless the channel is "<owner>/label/<label>".
	label    string
	binary   string
	client   *http.Client
	retry    retryPolicy
	loggedIn bool
}

func newAnacondaConnector(ctx context.Context, src *config.Source) (*anacondaConnector, error) {
	baseURL, err := url.Parse(src.URI)
	if err != nil {
		return nil, fmt.Errorf("parse uri: %w", err)
	}

	owner, label := parseAnacondaChannel(src.Channel)

	c := &anacondaConnector{
		baseURL: baseURL,
		channel: src.Channel,
		owner:   owner,
		label:   label,
		binary:  defaultAnacondaBinary,
		client:  http.DefaultClient,
		retry:   newRetryPolicy(src.MaxRetries),
	}

	if src.User != "" {
		if err = c.login(ctx, src.User, src.Pass); err != nil {
			return nil, domain.NewConnectorError("login", "", err)
		}
	}

	return c, nil
}

// parseAnacondaChannel splits "owner" or "owner/label/<label>".
func parseAnacondaChannel(channelPath string) (string, string) {
	parts := strings.Split(strings.Trim(channelPath, "/"), "/")

	label := defaultAnacondaLabel
	if slices.Contains(parts, "label") && len(parts) > 1 {
		label = parts[len(parts)-1]
	}

	return parts[0], label
}

// login runs "anaconda login". Its output is discarded and the error does
// not include the command line, since both would reveal the password.
func (c *anacondaConnector) login(ctx context.Context, user, pass string) error {
	//nolint:gosec // The binary is fixed, arguments are passed without a shell.
	cmd := exec.CommandContext(ctx, c.binary, "login", "--username", user, "--password", pass)
	if cmd.Run() != nil {
		return errAnacondaLogin
	}

	c.loggedIn = true

	return nil
}

// Download implements Connector.
func (c *anacondaConnector) Download(ctx context.Context, relpath string, w io.Writer) error {
	var buf bytes.Buffer

	err := c.retry.do(ctx, func() error {
		buf.Reset()

		return c.get(ctx, relpath, &buf)
	})
	if err != nil {
		return domain.NewConnectorError("download", relpath, err)
	}

	_, err = w.Write(buf.Bytes())

	return err
}

func (c *anacondaConnector) get(ctx context.Context, relpath string, w io.Writer) error {
	fileURL := *c.baseURL
	fileURL.Path = path.Join(fileURL.Path, c.channel, relpath)
	finalURL := fileURL.String()

	logger.DebugKV(ctx, "Downloading", "url", finalURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, http.NoBody)
	if err != nil {
		return err
	}

	req.Header.Set("User-Agent", anacondaUserAgent)

	response, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", finalURL, domain.ErrNoSuchObject)
	case response.StatusCode != http.StatusOK:
		return fmt.Errorf("%s, %s: %w", finalURL, response.Status, errBadHTTPStatus)
	}

	_, err = io.Copy(w, response.Body)

	return err
}

// UploadLocalData implements Connector with a single "anaconda upload" call
// covering every artifact of the version.
func (c *anacondaConnector) UploadLocalData(
	ctx context.Context,
	local *channel.Data,
	name, version string,
) ([]string, error) {
	relpaths := slices.Collect(local.Paths(name, version))
	if len(relpaths) == 0 {
		return nil, fmt.Errorf("%s=%s in local channel: %w", name, version, domain.ErrNotFound)
	}

	root, err := local.Root()
	if err != nil {
		return nil, err
	}

	if root.Root() == "" {
		return nil, errAnacondaNoBaseDir
	}

	args := []string{"upload", "-u", c.owner, "-l", c.label}
	for _, relpath := range relpaths {
		args = append(args, filepath.Join(root.Root(), filepath.FromSlash(relpath)))
	}

	var stdout, stderr bytes.Buffer

	//nolint:gosec // The binary is fixed, arguments are passed without a shell.
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err = cmd.Run(); err != nil {
		logger.ErrorKV(ctx, "anaconda upload failed",
			"stdout", stdout.String(),
			"stderr", stderr.String(),
		)

		return nil, domain.NewConnectorError("upload", "", fmt.Errorf("%w: %w", errAnacondaUpload, err))
	}

	logger.InfoKV(ctx, "Uploaded package", "name", name, "version", version, "files", len(relpaths),
		"owner", c.owner, "label", c.label)

	return relpaths, nil
}

// Close implements Connector and logs out when a login was made.
func (c *anacondaConnector) Close() error {
	if !c.loggedIn {
		return nil
	}

	c.loggedIn = false

	//nolint:gosec // The binary is fixed.
	if err := exec.Command(c.binary, "logout").Run(); err != nil {
		return domain.NewConnectorError("logout", "", err)
	}

	return nil
}
