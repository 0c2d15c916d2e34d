package source

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/actinodb/migrate/script"
)

// S3Config locates a bucket prefix holding upgrade scripts.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
}

// S3 reads upgrade scripts from an S3 prefix, so a fleet of databases can be
// migrated from one published script set.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 loads AWS config and prepares the source.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	return &S3{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *S3) Scripts(ctx context.Context) ([]script.Script, error) {
	input := &s3.ListObjectsV2Input{Bucket: &s.bucket}
	if s.prefix != "" {
		input.Prefix = ptr(s.prefix + "/")
	}

	var scripts []script.Script
	for {
		page, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			name := path.Base(*obj.Key)
			if _, _, ok := script.ParseFilename(name); !ok {
				continue
			}
			sc, err := s.fetch(ctx, *obj.Key, name)
			if err != nil {
				return nil, err
			}
			scripts = append(scripts, sc)
		}
		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		input.ContinuationToken = page.NextContinuationToken
	}
	return scripts, nil
}

func (s *S3) fetch(ctx context.Context, key, name string) (script.Script, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return script.Script{}, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	contents, err := io.ReadAll(out.Body)
	if err != nil {
		return script.Script{}, err
	}
	return script.Parse(name, contents)
}

func ptr[T any](v T) *T {
	return &v
}
