package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	apperrors "github.com/watchmen-go/kernel/errors"
)

// ObjectStore is the object storage an ObjectWriter writes documents to.
type ObjectStore interface {
	Upload(ctx context.Context, key string, reader io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	// List returns the keys starting with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// LocalStore keeps objects as files under a base directory.
type LocalStore struct {
	basePath string
}

var _ ObjectStore = (*LocalStore)(nil)

// NewLocalStore creates basePath if needed.
func NewLocalStore(basePath string) (*LocalStore, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("local store: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("local store: create base directory: %w", err)
	}
	return &LocalStore{basePath: abs}, nil
}

func (s *LocalStore) fullPath(key string) (string, error) {
	p := filepath.Join(s.basePath, filepath.FromSlash(path.Clean("/"+key)))
	if !strings.HasPrefix(p, s.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("local store: key %q escapes base path", key)
	}
	return p, nil
}

func (s *LocalStore) Upload(_ context.Context, key string, reader io.Reader) error {
	full, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("local store: create directory: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("local store: create file: %w", err)
	}
	if _, err := io.Copy(f, reader); err != nil {
		_ = f.Close()
		return fmt.Errorf("local store: write file: %w", err)
	}
	return f.Close()
}

func (s *LocalStore) Download(_ context.Context, key string) (io.ReadCloser, error) {
	full, err := s.fullPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NotFound("object", key)
		}
		return nil, fmt.Errorf("local store: open file: %w", err)
	}
	return f, nil
}

func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	full, err := s.fullPath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("local store: stat file: %w", err)
	}
	return true, nil
}

func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.basePath, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local store: list files: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// S3API is the part of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, in *awss3.PutObjectInput, opts ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *awss3.GetObjectInput, opts ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *awss3.HeadObjectInput, opts ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, opts ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

// S3Store keeps objects in an S3 or S3-compatible bucket.
type S3Store struct {
	client S3API
	bucket string
}

var _ ObjectStore = (*S3Store)(nil)

// NewS3Store builds an S3 client from cfg. A custom endpoint implies
// path-style addressing.
func NewS3Store(ctx context.Context, cfg WriterConfig) (*S3Store, error) {
	cfg.ApplyDefaults()
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 store: load aws config: %w", err)
	}
	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})
	return NewS3StoreWithClient(client, cfg.Bucket), nil
}

// NewS3StoreWithClient creates a store over an existing client.
func NewS3StoreWithClient(client S3API, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func (s *S3Store) Upload(ctx context.Context, key string, reader io.Reader) error {
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 store: upload: %w", err)
	}
	return nil
}

func (s *S3Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 store: download: %w", err)
	}
	return out.Body, nil
}

// Exists reports false on any head failure.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err == nil, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	input := &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	var keys []string
	for {
		out, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("s3 store: list: %w", err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}
	sort.Strings(keys)
	return keys, nil
}

// ObjectWriter stores each request as a JSON document.
type ObjectWriter struct {
	id     string
	store  ObjectStore
	prefix string
	now    func() time.Time
}

// NewObjectWriter creates a writer storing under prefix.
func NewObjectWriter(id string, store ObjectStore, prefix string) *ObjectWriter {
	return &ObjectWriter{id: id, store: store, prefix: strings.Trim(prefix, "/"), now: time.Now}
}

func (w *ObjectWriter) ID() string { return w.id }

// Key returns the object key of req:
// <prefix>/<event code>/<pipeline id>/<yyyymmdd>/<trace id>-<data id>.json
func (w *ObjectWriter) Key(req *Request) string {
	code := req.EventCode
	if code == "" {
		code = "default"
	}
	name := req.TraceID
	if req.DataID != "" {
		name += "-" + req.DataID
	}
	parts := []string{code, req.PipelineID, w.now().UTC().Format("20060102"), name + ".json"}
	if w.prefix != "" {
		parts = append([]string{w.prefix}, parts...)
	}
	return path.Join(parts...)
}

func (w *ObjectWriter) Write(ctx context.Context, req *Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return apperrors.ExternalWriter(w.id, err)
	}
	if err := w.store.Upload(ctx, w.Key(req), bytes.NewReader(data)); err != nil {
		return apperrors.ExternalWriter(w.id, err)
	}
	return nil
}
