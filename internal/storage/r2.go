package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/apperror"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
)

// R2Config configures the S3-compatible backend. Field names follow
// this system's environment variables directly.
type R2Config struct {
	Bucket             string        `yaml:"bucket" env:"R2_BUCKET"`
	Endpoint           string        `yaml:"endpoint" env:"R2_ENDPOINT"`
	AccessKeyID        string        `yaml:"access_key_id" env:"R2_ACCESS_KEY_ID"`
	SecretAccessKey    string        `yaml:"secret_access_key" env:"R2_SECRET_ACCESS_KEY"`
	PublicURL          string        `yaml:"public_url" env:"R2_PUBLIC_URL"`
	KeyPrefix          string        `yaml:"key_prefix" env:"R2_KEY_PREFIX" default:"assets"`
	Region             string        `yaml:"region" env:"R2_REGION" default:"auto"`
	ForcePathStyle     bool          `yaml:"force_path_style" env:"R2_FORCE_PATH_STYLE" default:"true"`
	PresignedURLExpiry time.Duration `yaml:"presigned_url_expiry" env:"R2_PRESIGNED_URL_EXPIRY" default:"15m"`
	PrivateBucket      bool          `yaml:"private_bucket" env:"R2_PRIVATE_BUCKET" default:"false"`
}

// Enabled reports whether R2 credentials are present in the environment.
// A registry wires in the r2 backend, and prefers it for new writes,
// only when this returns true.
func (c R2Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// R2Backend implements Backend using an S3-compatible object store.
type R2Backend struct {
	cfg    R2Config
	client *s3.Client
}

func NewR2Backend(ctx context.Context, cfg R2Config) (*R2Backend, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, apperror.FromBackend("r2", "load aws config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &R2Backend{cfg: cfg, client: client}, nil
}

func (r *R2Backend) Kind() ids.Backend { return ids.BackendR2 }

func (r *R2Backend) KeyPrefix() string {
	return strings.TrimSuffix(r.cfg.KeyPrefix, "/")
}

func pendingKey(prefix string, assetID ids.AssetID, intentID ids.IntentID, basename string) string {
	return fmt.Sprintf("%s/%s/pending-%s/%s", prefix, assetID.String(), intentID.String(), basename)
}

func finalKey(prefix string, assetID ids.AssetID, version int, filename string) string {
	return fmt.Sprintf("%s/%s/%d/%s", prefix, assetID.String(), version, filename)
}

// IssueUpload presigns a PUT for a key scoped to the intent, so two
// concurrent intents for the same asset never collide.
func (r *R2Backend) IssueUpload(ctx context.Context, opts IssueUploadOptions) (*UploadGrant, error) {
	ctx, span := tracer.Start(ctx, "r2.IssueUpload",
		trace.WithAttributes(attribute.String("storage.basename", opts.Basename)))
	defer span.End()

	key := pendingKey(r.KeyPrefix(), opts.AssetID, opts.IntentID, opts.Basename)

	presigner := s3.NewPresignClient(r.client)
	input := &s3.PutObjectInput{
		Bucket: aws.String(r.cfg.Bucket),
		Key:    aws.String(key),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	req, err := presigner.PresignPutObject(ctx, input, func(po *s3.PresignOptions) {
		po.Expires = r.cfg.PresignedURLExpiry
	})
	if err != nil {
		span.RecordError(err)
		return nil, apperror.FromBackend("r2", "presign upload", err)
	}

	return &UploadGrant{
		UploadURL:      req.URL,
		Method:         "PUT",
		PendingLocator: Locator{Backend: ids.BackendR2, R2Key: key},
	}, nil
}

// FinalizeUpload treats the pre-assigned key as authoritative and
// captures the public URL at finish time so later rotations of
// R2_PUBLIC_URL don't break old versions.
func (r *R2Backend) FinalizeUpload(ctx context.Context, in FinalizeInput) (Locator, error) {
	ctx, span := tracer.Start(ctx, "r2.FinalizeUpload")
	defer span.End()

	key := in.Pending.R2Key
	if key == "" {
		return Locator{}, apperror.New(apperror.KindInvalidUploadResp, "missing pending r2 key")
	}

	if _, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		span.RecordError(err)
		return Locator{}, apperror.New(apperror.KindInvalidUploadResp, "uploaded object not found at presigned key")
	}

	publicURL, err := r.ResolvePublicURL(ctx, Locator{Backend: ids.BackendR2, R2Key: key})
	if err != nil {
		return Locator{}, err
	}

	return Locator{Backend: ids.BackendR2, R2Key: key, R2PublicURL: publicURL}, nil
}

func (r *R2Backend) ResolvePublicURL(ctx context.Context, loc Locator) (string, error) {
	if loc.R2Key == "" {
		return "", apperror.New(apperror.KindInvalidArgument, "locator has no r2 key")
	}
	if loc.R2PublicURL != "" {
		return loc.R2PublicURL, nil
	}
	base := strings.TrimSuffix(r.cfg.PublicURL, "/")
	return fmt.Sprintf("%s/%s", base, loc.R2Key), nil
}

func (r *R2Backend) SignedReadURL(ctx context.Context, loc Locator, ttl time.Duration) (string, error) {
	ctx, span := tracer.Start(ctx, "r2.SignedReadURL")
	defer span.End()

	if loc.R2Key == "" {
		return "", apperror.New(apperror.KindInvalidArgument, "locator has no r2 key")
	}

	presigner := s3.NewPresignClient(r.client)
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.cfg.Bucket),
		Key:    aws.String(loc.R2Key),
	}, func(po *s3.PresignOptions) {
		po.Expires = ttl
	})
	if err != nil {
		span.RecordError(err)
		return "", apperror.FromBackend("r2", "presign read", err)
	}
	return req.URL, nil
}

func (r *R2Backend) ReadBytes(ctx context.Context, loc Locator) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "r2.ReadBytes",
		trace.WithAttributes(attribute.String("storage.r2_key", loc.R2Key)))
	defer span.End()

	if loc.R2Key == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, "locator has no r2 key")
	}

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.cfg.Bucket),
		Key:    aws.String(loc.R2Key),
	})
	if err != nil {
		span.RecordError(err)
		return nil, apperror.FromBackend("r2", "get object", err)
	}
	return out.Body, nil
}

func (r *R2Backend) WriteBytes(ctx context.Context, assetID ids.AssetID, version int, filename string, body io.Reader, size int64, contentType string) (Locator, error) {
	ctx, span := tracer.Start(ctx, "r2.WriteBytes",
		trace.WithAttributes(attribute.String("storage.asset_id", assetID.String())))
	defer span.End()

	key := finalKey(r.KeyPrefix(), assetID, version, filename)
	uploader := manager.NewUploader(r.client)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(r.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := uploader.Upload(ctx, input); err != nil {
		span.RecordError(err)
		return Locator{}, apperror.FromBackend("r2", "upload object", err)
	}

	publicURL, err := r.ResolvePublicURL(ctx, Locator{Backend: ids.BackendR2, R2Key: key})
	if err != nil {
		return Locator{}, err
	}
	return Locator{Backend: ids.BackendR2, R2Key: key, R2PublicURL: publicURL}, nil
}
