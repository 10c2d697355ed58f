// Package s3 implements the object store backend for S3 and MinIO compatible
// services, used when loading sheets and cache records must be shared across
// machines.
package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"stitchcore/internal/blob/core"
)

const defaultPresignTTL = 15 * time.Minute

// Store implements core.Store against a single bucket. Keys map to object
// keys directly.
type Store struct {
	client     *s3.Client
	bucket     string
	presigner  *s3.PresignClient
	presignTTL time.Duration
}

// Config holds explicit construction parameters. Deployments normally set the
// equivalent STITCHCORE_S3_* environment variables instead.
type Config struct {
	Region         string
	Bucket         string
	Endpoint       string // optional; custom endpoint such as MinIO
	AccessKey      string // optional static credentials
	SecretKey      string
	SessionToken   string
	ForcePathStyle bool
	PresignTTL     time.Duration // default 15m
}

// Environment variables:
//
//	STITCHCORE_BLOB_DRIVER=s3
//	STITCHCORE_S3_BUCKET=<bucket> (required)
//	STITCHCORE_S3_REGION=<region> (default us-east-1)
//	STITCHCORE_S3_ENDPOINT=<url> (optional, MinIO or similar)
//	STITCHCORE_S3_ACCESS_KEY / STITCHCORE_S3_SECRET_KEY (optional; the default
//	  AWS credentials chain applies when unset)
//	STITCHCORE_S3_FORCE_PATH_STYLE=true|false (default false)
//	STITCHCORE_S3_PRESIGN_TTL=<duration> (default 15m)

// New creates an S3 store from Config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	return &Store{
		client:     client,
		bucket:     cfg.Bucket,
		presigner:  s3.NewPresignClient(client),
		presignTTL: ttl,
	}, nil
}

// OpenFromEnv constructs an S3 store from process environment.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	bucket := os.Getenv("STITCHCORE_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("STITCHCORE_S3_BUCKET required for s3 driver")
	}
	cfg := Config{
		Bucket:    bucket,
		Region:    os.Getenv("STITCHCORE_S3_REGION"),
		Endpoint:  os.Getenv("STITCHCORE_S3_ENDPOINT"),
		AccessKey: os.Getenv("STITCHCORE_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("STITCHCORE_S3_SECRET_KEY"),
	}
	if raw := os.Getenv("STITCHCORE_S3_FORCE_PATH_STYLE"); raw != "" {
		pathStyle, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid STITCHCORE_S3_FORCE_PATH_STYLE %q: %w", raw, err)
		}
		cfg.ForcePathStyle = pathStyle
	}
	if raw := os.Getenv("STITCHCORE_S3_PRESIGN_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid STITCHCORE_S3_PRESIGN_TTL %q: %w", raw, err)
		}
		cfg.PresignTTL = ttl
	}
	return New(ctx, cfg)
}

// Driver returns the backend identifier.
func (s *Store) Driver() core.Driver { return core.DriverS3 }

// Put uploads a new object. Create-only semantics are emulated with a Head
// probe first; S3 itself overwrites silently.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key}); err == nil {
		return core.Info{}, fmt.Errorf("blob %s already exists", key)
	}
	input := &s3.PutObjectInput{Bucket: &s.bucket, Key: &key, Body: r}
	if opts.ContentType != "" {
		input.ContentType = &opts.ContentType
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return core.Info{}, err
	}
	return s.Head(ctx, key)
}

// Get streams the object body along with its metadata.
func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return core.Info{}, nil, err
	}
	info := objectInfo(key, out.ContentLength, out.ContentType, out.ETag, out.Metadata, out.LastModified)
	return info, out.Body, nil
}

// Head returns object metadata.
func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return core.Info{}, err
	}
	return objectInfo(key, out.ContentLength, out.ContentType, out.ETag, out.Metadata, out.LastModified), nil
}

// Delete removes the object. S3 reports success for absent keys, so the
// existed flag is an approximation.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return false, err
	}
	return true, nil
}

// List pages through the bucket collecting keys under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			infos = append(infos, core.Info{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		if out.IsTruncated == nil || !*out.IsTruncated || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL returns a signed GET URL valid for the configured TTL (or the
// per-call expiry when set).
func (s *Store) PresignURL(ctx context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if opts.Method != "" && !strings.EqualFold(opts.Method, "GET") {
		return "", core.ErrUnsupported
	}
	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = s.presignTTL
	}
	out, err := s.presigner.PresignGetObject(ctx,
		&s3.GetObjectInput{Bucket: &s.bucket, Key: &key},
		func(po *s3.PresignOptions) { po.Expires = expiry })
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

func objectInfo(key string, size *int64, contentType, etag *string, metadata map[string]string, lastModified *time.Time) core.Info {
	info := core.Info{
		Key:          key,
		Size:         aws.ToInt64(size),
		ContentType:  aws.ToString(contentType),
		ETag:         strings.Trim(aws.ToString(etag), `"`),
		Metadata:     metadata,
		LastModified: aws.ToTime(lastModified),
	}
	if info.LastModified.IsZero() {
		info.LastModified = time.Now().UTC()
	}
	return info
}
