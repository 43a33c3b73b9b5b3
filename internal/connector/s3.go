package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"

	"github.com/oshokin/conda-channel-resource/internal/config"
	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
)

const (
	defaultS3Region   = "us-east-1"
	credentialsSource = "conda-channel-resource"
)

var errMissingBucket = errors.New("object store URI has no bucket")

// s3API is the subset of the S3 client used by s3Store.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Store keeps a channel under a key prefix of an S3 bucket.
// The URI is s3://<bucket>/<prefix>; the channel is appended to the prefix.
type s3Store struct {
	client s3API
	bucket string
	prefix string
}

func newS3Store(ctx context.Context, u *url.URL, src *config.Source) (*s3Store, error) {
	if u.Host == "" {
		return nil, errMissingBucket
	}

	var options []func(*awsconfig.LoadOptions) error

	if src.Region != "" {
		options = append(options, awsconfig.WithRegion(src.Region))
	}

	if src.User != "" {
		options = append(options, awsconfig.WithCredentialsProvider(staticCredentials(src.User, src.Pass)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	if cfg.Region == "" {
		cfg.Region = defaultS3Region
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if src.Endpoint != "" {
			o.BaseEndpoint = aws.String(src.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &s3Store{
		client: client,
		bucket: u.Host,
		prefix: objectPrefix(u.Path, src.Channel),
	}, nil
}

func staticCredentials(accessKey, secretKey string) aws.CredentialsProviderFunc {
	return func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
			Source:          credentialsSource,
		}, nil
	}
}

// Get implements Store.
func (s *s3Store) Get(ctx context.Context, key string, w io.Writer) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if isS3NotFound(err) {
		return fmt.Errorf("%s: %w", key, domain.ErrNoSuchObject)
	}

	if err != nil {
		return err
	}
	defer out.Body.Close()

	_, err = io.Copy(w, out.Body)

	return err
}

// Put implements Store.
func (s *s3Store) Put(ctx context.Context, key string, body io.ReadSeeker, size int64) error {
	contentType, err := detectContentType(body)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(key)),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})

	return err
}

// Close implements Store.
func (s *s3Store) Close() error {
	return nil
}

func (s *s3Store) key(relpath string) string {
	return path.Join(s.prefix, relpath)
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}

	var respErr *awshttp.ResponseError

	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

// objectPrefix joins the URI path and the channel into a key prefix without a leading slash.
func objectPrefix(uriPath, channelPath string) string {
	return strings.TrimPrefix(path.Join("/", uriPath, channelPath), "/")
}

// detectContentType sniffs body and rewinds it.
func detectContentType(body io.ReadSeeker) (string, error) {
	mime, err := mimetype.DetectReader(body)
	if err != nil {
		return "", fmt.Errorf("detect content type: %w", err)
	}

	if _, err = body.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	return mime.String(), nil
}
