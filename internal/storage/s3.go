package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const minMultipartSize = 12 << 20

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	// Endpoint overrides the AWS endpoint, e.g. https://<account>.r2.cloudflarestorage.com
	Endpoint string
	// Prefix is prepended to every key
	Prefix string
}

// S3 stores uploads as objects of a single bucket
type S3 struct {
	C      *s3.Client
	Bucket *string
	prefix string
}

// NewS3 builds the client and verifies that the bucket exists
func NewS3(ctx context.Context, c S3Config) (*S3, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKeyID,
			c.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, err
	}

	bucket := aws.String(c.Bucket)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.Region = c.Region
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	})

	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: bucket,
	})
	if err != nil {
		var apiErr smithy.APIError

		if errors.As(err, &apiErr) {
			if apiErr.ErrorCode() == "NotFound" {
				return nil, fmt.Errorf("bucket '%s' does not exist", c.Bucket)
			}
		}

		return nil, fmt.Errorf("failed to check if bucket exists, %w", err)
	}

	return &S3{
		C:      client,
		Bucket: bucket,
		prefix: Clean(c.Prefix),
	}, nil
}

func (s *S3) key(p string) string {
	return strings.TrimPrefix(path.Join(s.prefix, Clean(p)), "/")
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}

	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}

func copySource(bucket, key string) string {
	parts := strings.Split(bucket+"/"+key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}

	return strings.Join(parts, "/")
}

func (s *S3) Exists(ctx context.Context, p string) bool {
	_, err := s.Stat(ctx, p)
	return err == nil
}

// Move copies the object and removes the source, S3 has no rename
func (s *S3) Move(ctx context.Context, src, dst string) error {
	srcKey := s.key(src)

	_, err := s.C.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     s.Bucket,
		CopySource: aws.String(copySource(*s.Bucket, srcKey)),
		Key:        aws.String(s.key(dst)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("failed to move %s, %w", src, ErrNotExist)
		}

		return fmt.Errorf("failed to copy %s to %s, %w", src, dst, err)
	}

	_, err = s.C.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: s.Bucket,
		Key:    aws.String(srcKey),
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s after copy, %w", src, err)
	}

	return nil
}

func (s *S3) Delete(ctx context.Context, p string) error {
	if !s.Exists(ctx, p) {
		return ErrNotExist
	}

	_, err := s.C.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: s.Bucket,
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s, %w", p, err)
	}

	return nil
}

func (s *S3) DeleteDir(ctx context.Context, p string) error {
	prefix := s.key(p) + "/"

	paginator := s3.NewListObjectsV2Paginator(s.C, &s3.ListObjectsV2Input{
		Bucket: s.Bucket,
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list %s, %w", p, err)
		}

		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, o := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: o.Key})
		}

		_, err = s.C.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: s.Bucket,
			Delete: &types.Delete{Objects: objects},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects under %s, %w", p, err)
		}
	}

	return nil
}

func (s *S3) List(ctx context.Context, dir string) ([]string, error) {
	prefix := s.key(dir)
	if prefix != "" {
		prefix += "/"
	}

	var names []string

	paginator := s3.NewListObjectsV2Paginator(s.C, &s3.ListObjectsV2Input{
		Bucket:    s.Bucket,
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s, %w", dir, err)
		}

		for _, o := range page.Contents {
			names = append(names, strings.TrimPrefix(aws.ToString(o.Key), prefix))
		}

		for _, cp := range page.CommonPrefixes {
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/"))
		}
	}

	if len(names) == 0 {
		return nil, ErrNotExist
	}

	return names, nil
}

func (s *S3) Stat(ctx context.Context, p string) (*Info, error) {
	out, err := s.C.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: s.Bucket,
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotExist
		}

		return nil, fmt.Errorf("failed to stat %s, %w", p, err)
	}

	info := &Info{Name: path.Base(p), Size: aws.ToInt64(out.ContentLength)}
	if out.LastModified != nil {
		info.ModTime = out.LastModified.Unix()
	}

	return info, nil
}

func (s *S3) Open(ctx context.Context, p string) (io.ReadCloser, *Info, error) {
	out, err := s.C.GetObject(ctx, &s3.GetObjectInput{
		Bucket: s.Bucket,
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrNotExist
		}

		return nil, nil, fmt.Errorf("failed to open %s, %w", p, err)
	}

	info := &Info{Name: path.Base(p), Size: aws.ToInt64(out.ContentLength)}
	if out.LastModified != nil {
		info.ModTime = out.LastModified.Unix()
	}

	return out.Body, info, nil
}

// Write uploads through the multipart manager, parts are only used once the body
// is bigger than a single part
func (s *S3) Write(ctx context.Context, p string, r io.Reader, contentType string) (int64, error) {
	uploader := manager.NewUploader(s.C, func(u *manager.Uploader) {
		u.Concurrency = 5
		u.PartSize = minMultipartSize
	})

	counter := &countingReader{r: r}

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      s.Bucket,
		Key:         aws.String(s.key(p)),
		Body:        counter,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return counter.n, fmt.Errorf("failed to upload %s, %w", p, err)
	}

	return counter.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	return n, err
}
