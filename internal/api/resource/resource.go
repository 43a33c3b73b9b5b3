package resource

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oshokin/conda-channel-resource/internal/config"
)

// FilesMetadataName is the metadata key listing transferred files.
const FilesMetadataName = "files"

var (
	errVersionSpec    = errors.New("version spec violated")
	errMissingVersion = errors.New("request has no version")
	errMissingFrom    = errors.New("params.from is required")
	errTrailingData   = errors.New("unexpected data after request")
)

// Version is the version envelope, {"version": "<string>"}.
type Version struct {
	Version string `json:"version"`
}

// UnmarshalJSON requires a "version" key holding a string.
func (v *Version) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: expected an object, got %s", errVersionSpec, data)
	}

	raw, ok := fields["version"]
	if !ok {
		return fmt.Errorf("%w: expected key 'version', got %s", errVersionSpec, data)
	}

	if err := json.Unmarshal(raw, &v.Version); err != nil {
		return fmt.Errorf("%w: expected string, got %s", errVersionSpec, raw)
	}

	return nil
}

// MetadataField is one name/value pair shown by the pipeline UI.
type MetadataField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CheckRequest is the check input. Version is nil on the first check.
type CheckRequest struct {
	Source  config.Source `json:"source"`
	Version *Version      `json:"version"`
}

// InRequest is the in input.
type InRequest struct {
	Source  config.Source   `json:"source"`
	Version *Version        `json:"version"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// OutParams are the put step parameters.
type OutParams struct {
	// From is the directory, relative to the build root, holding the built channel.
	From string `json:"from"`
}

// OutRequest is the out input.
type OutRequest struct {
	Source config.Source `json:"source"`
	Params OutParams     `json:"params"`
}

// Response is the output of in and out.
type Response struct {
	Version  Version         `json:"version"`
	Metadata []MetadataField `json:"metadata"`
}

// NewResponse builds a response with the files metadata.
func NewResponse(version string, files []string) Response {
	return Response{
		Version:  Version{Version: version},
		Metadata: FilesMetadata(files),
	}
}

// FilesMetadata lists files newline-joined under the "files" key.
func FilesMetadata(files []string) []MetadataField {
	return []MetadataField{{Name: FilesMetadataName, Value: strings.Join(files, "\n")}}
}

// CheckResponse converts versions to the check output.
func CheckResponse(versions []string) []Version {
	result := make([]Version, 0, len(versions))
	for _, v := range versions {
		result = append(result, Version{Version: v})
	}

	return result
}

// DecodeCheck reads a check request.
func DecodeCheck(r io.Reader) (*CheckRequest, error) {
	var req CheckRequest
	if err := decodeStrict(r, &req); err != nil {
		return nil, err
	}

	return &req, nil
}

// DecodeIn reads an in request. The version is required.
func DecodeIn(r io.Reader) (*InRequest, error) {
	var req InRequest
	if err := decodeStrict(r, &req); err != nil {
		return nil, err
	}

	if req.Version == nil {
		return nil, errMissingVersion
	}

	return &req, nil
}

// DecodeOut reads an out request. params.from is required.
func DecodeOut(r io.Reader) (*OutRequest, error) {
	var req OutRequest
	if err := decodeStrict(r, &req); err != nil {
		return nil, err
	}

	if req.Params.From == "" {
		return nil, errMissingFrom
	}

	return &req, nil
}

// Encode writes v as a single JSON document.
func Encode(w io.Writer, v any) error {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	return nil
}

// decodeStrict rejects unknown keys, so typos in source definitions fail loudly.
func decodeStrict(r io.Reader, v any) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	var extra json.RawMessage
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		return errTrailingData
	}

	return nil
}

