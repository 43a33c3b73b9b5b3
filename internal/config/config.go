package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/conda-channel-resource/internal/domain/channel"
	"github.com/oshokin/conda-channel-resource/internal/logger"
)

// Source holds every recognised key of a resource `source` definition.
type Source struct {
	// PkgName is the conda package tracked by the resource.
	PkgName string `json:"pkg_name" yaml:"pkg_name"`
	// URI selects the transport: file://, ftp://, ftps://, s3://, minio://,
	// minios:// or one of the anaconda.org URIs.
	URI string `json:"uri" yaml:"uri"`
	// Channel is the channel path below the URI (for anaconda: "user" or "user/label/<label>").
	Channel string `json:"channel" yaml:"channel"`
	// User is the transport login; an access key for object stores.
	User string `json:"user,omitempty" yaml:"user,omitempty"`
	// Pass is the transport password; a secret key for object stores.
	Pass string `json:"pass,omitempty" yaml:"pass,omitempty"`
	// Regex limits discovered versions to those matching from the first character.
	Regex string `json:"regex,omitempty" yaml:"regex,omitempty"`
	// Matched lists versions the pipeline has already consumed.
	Matched []string `json:"matched,omitempty" yaml:"matched,omitempty"`
	// Region is the object store region (s3, minio).
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// Endpoint overrides the S3 endpoint, e.g. for LocalStack.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// Subdirs overrides the platform subdirectories that are scanned.
	Subdirs []string `json:"subdirs,omitempty" yaml:"subdirs,omitempty"`
	// MaxRetries enables bounded exponential backoff around transport calls. Zero disables it.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	// LockTimeout is how long, in seconds, an upload waits for the channel lock.
	LockTimeout int `json:"lock_timeout,omitempty" yaml:"lock_timeout,omitempty"`
	// LogLevel sets the verbosity of stderr logs.
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// Transport identifies the connector implementation for a Source.
type Transport string

// Supported transports.
const (
	TransportFile     Transport = "file"
	TransportFTP      Transport = "ftp"
	TransportFTPS     Transport = "ftps"
	TransportS3       Transport = "s3"
	TransportMinio    Transport = "minio"
	TransportMinioTLS Transport = "minios"
	TransportAnaconda Transport = "anaconda"
)

const (
	// AnacondaCloudURI is the public anaconda.org channel host.
	AnacondaCloudURI = "https://conda.anaconda.org"
	// QIIME2StagingURI is the staging mirror served with the anaconda layout.
	QIIME2StagingURI = "https://packages.qiime2.org/qiime2/staging"

	// DefaultConfigFilename is the default filename for resource settings.
	DefaultConfigFilename = "conda-channel-settings.yaml"

	// DefaultLockTimeout bounds the wait for a channel upload lock.
	DefaultLockTimeout = 5 * time.Minute

	// DefaultFilePermissions is the file mode for settings files, which may contain credentials.
	DefaultFilePermissions = 0o600

	// MaxRetries caps the opt-in retry count.
	MaxRetries = 10
)

var (
	errConfigIsNotSet = errors.New("configuration is not set")
	errMissingKey     = errors.New("missing source configuration")
	errUnknownURI     = errors.New("unknown URI")
	errInvalidValue   = errors.New("invalid source value")
)

// Load reads settings from the provided YAML file. Callers validate after
// merging request values on top.
func Load(path string) (*Source, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(contents))
	decoder.KnownFields(true)

	var src Source
	if err = decoder.Decode(&src); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	return &src, nil
}

// Save writes settings to the provided path with restricted permissions.
func Save(path string, src *Source) error {
	if src == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(src); err != nil {
		return err
	}

	data, err := yaml.Marshal(src)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Merge returns base with every non-zero field of override applied on top.
// A nil base yields override unchanged.
func Merge(base *Source, override Source) Source {
	if base == nil {
		return override
	}

	merged := *base
	merged.Matched = append([]string(nil), base.Matched...)
	merged.Subdirs = append([]string(nil), base.Subdirs...)

	setString(&merged.PkgName, override.PkgName)
	setString(&merged.URI, override.URI)
	setString(&merged.Channel, override.Channel)
	setString(&merged.User, override.User)
	setString(&merged.Pass, override.Pass)
	setString(&merged.Regex, override.Regex)
	setString(&merged.Region, override.Region)
	setString(&merged.Endpoint, override.Endpoint)
	setString(&merged.LogLevel, override.LogLevel)

	if override.Matched != nil {
		merged.Matched = append([]string(nil), override.Matched...)
	}

	if override.Subdirs != nil {
		merged.Subdirs = append([]string(nil), override.Subdirs...)
	}

	if override.MaxRetries != 0 {
		merged.MaxRetries = override.MaxRetries
	}

	if override.LockTimeout != 0 {
		merged.LockTimeout = override.LockTimeout
	}

	return merged
}

// Validate checks required keys and value formats, then applies defaults.
func Validate(src *Source) error {
	if src == nil {
		return errConfigIsNotSet
	}

	required := []struct{ key, value string }{
		{key: "pkg_name", value: src.PkgName},
		{key: "uri", value: src.URI},
		{key: "channel", value: src.Channel},
	}

	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%w: %q", errMissingKey, field.key)
		}
	}

	if _, err := src.Transport(); err != nil {
		return err
	}

	if src.Regex != "" {
		if _, err := regexp.Compile(src.Regex); err != nil {
			return fmt.Errorf("%w: regex: %w", errInvalidValue, err)
		}
	}

	if src.MaxRetries < 0 || src.MaxRetries > MaxRetries {
		return fmt.Errorf("%w: max_retries must be between 0 and %d", errInvalidValue, MaxRetries)
	}

	if src.LockTimeout < 0 {
		return fmt.Errorf("%w: lock_timeout must not be negative", errInvalidValue)
	}

	if src.LogLevel != "" {
		if _, ok := logger.ParseLogLevel(src.LogLevel); !ok {
			return fmt.Errorf("%w: log_level %q", errInvalidValue, src.LogLevel)
		}
	}

	if len(src.Subdirs) == 0 {
		src.Subdirs = channel.DefaultSubdirList()
	}

	return nil
}

// Transport derives the connector kind from the URI.
func (s *Source) Transport() (Transport, error) {
	if s.URI == AnacondaCloudURI || s.URI == QIIME2StagingURI {
		return TransportAnaconda, nil
	}

	u, err := url.Parse(s.URI)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", errUnknownURI, s.URI, err)
	}

	switch t := Transport(strings.ToLower(u.Scheme)); t {
	case TransportFile, TransportFTP, TransportFTPS, TransportS3, TransportMinio, TransportMinioTLS:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownURI, s.URI)
	}
}

// LockWait returns the configured lock timeout or the default.
func (s *Source) LockWait() time.Duration {
	if s.LockTimeout <= 0 {
		return DefaultLockTimeout
	}

	return time.Duration(s.LockTimeout) * time.Second
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
