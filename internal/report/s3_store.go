package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// URLExpiry is the lifetime of presigned download links. Default 1h.
	URLExpiry time.Duration
}

func (c S3Config) validate() error {
	var errs []error
	for _, f := range []struct{ name, v string }{
		{"endpoint", c.Endpoint},
		{"access key", c.AccessKey},
		{"secret key", c.SecretKey},
		{"bucket", c.Bucket},
	} {
		if strings.TrimSpace(f.v) == "" {
			errs = append(errs, fmt.Errorf("s3 %s is required", f.name))
		}
	}
	return errors.Join(errs...)
}

// S3Store writes each run file as the object <run_id>/<path> of a single
// bucket. The bucket is created on first use.
type S3Store struct {
	client *minio.Client
	cfg    S3Config

	bucketOnce sync.Once
	bucketErr  error
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("report store: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = time.Hour
	}
	client, err := minio.New(strings.TrimSpace(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("report store: s3 client: %w", err)
	}
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	return &S3Store{client: client, cfg: cfg}, nil
}

func (s *S3Store) ready(ctx context.Context) error {
	s.bucketOnce.Do(func() {
		ok, err := s.client.BucketExists(ctx, s.cfg.Bucket)
		switch {
		case err != nil:
			s.bucketErr = err
		case !ok:
			s.bucketErr = s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region})
		}
	})
	if s.bucketErr != nil {
		return fmt.Errorf("report store: bucket %s: %w", s.cfg.Bucket, s.bucketErr)
	}
	return nil
}

// object validates the key and makes sure the bucket exists.
func (s *S3Store) object(ctx context.Context, runID, p string) (string, error) {
	runID, p, err := cleanKey(runID, p)
	if err != nil {
		return "", err
	}
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	return objectKey(runID, p), nil
}

func (s *S3Store) Put(ctx context.Context, runID, p string, content []byte) error {
	key, err := s.object(ctx, runID, p)
	if err != nil {
		return err
	}
	opts := minio.PutObjectOptions{ContentType: contentType(p)}
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(content), int64(len(content)), opts)
	return err
}

func (s *S3Store) Get(ctx context.Context, runID, p string) ([]byte, error) {
	key, err := s.object(ctx, runID, p)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	// GetObject is lazy; a missing key surfaces on the first read.
	b, err := io.ReadAll(obj)
	if code := minio.ToErrorResponse(err).Code; code == "NoSuchKey" || code == "NoSuchBucket" {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *S3Store) GetURL(ctx context.Context, runID, p string) (string, error) {
	runID, p, err := cleanKey(runID, p)
	if err != nil {
		return "", err
	}
	u, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, objectKey(runID, p), s.cfg.URLExpiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// keys lists object keys under prefix. Non-recursive listings also return
// common prefixes, which end in "/".
func (s *S3Store) keys(ctx context.Context, prefix string, recursive bool) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	out := []string{}
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: recursive}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		out = append(out, strings.TrimPrefix(obj.Key, prefix))
	}
	slices.Sort(out)
	return out, nil
}

func (s *S3Store) List(ctx context.Context, runID string) ([]string, error) {
	runID, err := cleanRunID(runID)
	if err != nil {
		return nil, err
	}
	return s.keys(ctx, runID+"/", true)
}

// Runs returns the bucket's top-level prefixes.
func (s *S3Store) Runs(ctx context.Context) ([]string, error) {
	all, err := s.keys(ctx, "", false)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, k := range all {
		if id, ok := strings.CutSuffix(k, "/"); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func contentType(p string) string {
	switch ext := path.Ext(p); ext {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".jsonl":
		return "application/x-ndjson"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
