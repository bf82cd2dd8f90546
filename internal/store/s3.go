package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"
)

// S3Config configures an S3-backed store (AWS S3 or any S3-compatible
// endpoint such as MinIO). Credentials come from the default AWS chain.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	// Concurrency bounds parallel object fetches. Zero means 8.
	Concurrency int `yaml:"concurrency"`
}

// S3 reads records from s3://<bucket>/<prefix>/data/...
type S3 struct {
	client      *s3.Client
	bucket      string
	prefix      string
	concurrency int
}

// NewS3 builds an S3 store from cfg using the default AWS configuration chain.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3WithClient(client, cfg), nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client *s3.Client, cfg S3Config) *S3 {
	n := cfg.Concurrency
	if n <= 0 {
		n = 8
	}
	return &S3{
		client:      client,
		bucket:      cfg.Bucket,
		prefix:      strings.Trim(cfg.Prefix, "/"),
		concurrency: n,
	}
}

func (s *S3) String() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}
	return "s3://" + s.bucket + "/" + s.prefix
}

func (s *S3) key(parts ...string) string {
	return path.Join(append([]string{s.prefix, DataDir}, parts...)...)
}

// Check issues a HeadBucket. Missing record prefixes are not an error on S3
// since prefixes only exist implicitly.
func (s *S3) Check(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	return nil
}

// list returns the JSON object keys directly under dir, sorted.
func (s *S3) list(ctx context.Context, dir string) ([]string, error) {
	prefix := dir + "/"
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			k := aws.ToString(obj.Key)
			rest := strings.TrimPrefix(k, prefix)
			if rest == "" || strings.Contains(rest, "/") || !isJSON(rest) {
				continue
			}
			keys = append(keys, k)
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *S3) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("getting %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

// Documents fetches every record of kind concurrently. Results keep key order.
func (s *S3) Documents(ctx context.Context, kind Kind) ([]Document, error) {
	keys, err := s.list(ctx, s.key(string(kind)))
	if err != nil {
		return nil, err
	}

	docs := make([]Document, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, k := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := s.get(gctx, k)
			docs[i] = Document{Key: path.Base(k), Data: data, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *S3) Mapping(ctx context.Context, name string) ([]byte, error) {
	if !validMappingName(name) {
		return nil, fmt.Errorf("mapping %q: %w", name, ErrNotFound)
	}
	return s.get(ctx, s.key(name))
}

func (s *S3) Mappings(ctx context.Context) ([]string, error) {
	keys, err := s.list(ctx, s.key())
	if err != nil {
		return nil, err
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = path.Base(k)
	}
	return names, nil
}
