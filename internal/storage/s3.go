package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Client struct {
	client         *minio.Client
	bucket         string
	usePathStyle   bool
	publicEndpoint string
	endpointURL    string
}

func NewS3(endpoint, accessKey, secretKey, region, bucket string, usePathStyle bool, publicEndpoint string) (*S3Client, error) {
	host, secure, endpointURL, err := normalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if bucket == "" {
		return nil, errors.New("S3_BUCKET is required")
	}

	lookup := minio.BucketLookupAuto
	if usePathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       secure,
		Region:       region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, err
	}

	if publicEndpoint == "" {
		publicEndpoint = endpointURL
	}

	return &S3Client{
		client:         client,
		bucket:         bucket,
		usePathStyle:   usePathStyle,
		publicEndpoint: publicEndpoint,
		endpointURL:    endpointURL,
	}, nil
}

// UploadFile streams a local file into the bucket under objectKey and returns
// the public URL of the stored object. FPutObject streams from disk, so large
// HLS segments never sit in memory.
func (s *S3Client) UploadFile(ctx context.Context, filePath, objectKey, contentType string) (string, error) {
	if strings.TrimSpace(objectKey) == "" {
		return "", errors.New("object key is empty")
	}
	_, err := s.client.FPutObject(ctx, s.bucket, objectKey, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return s.ObjectURL(objectKey), nil
}

// ObjectURL builds the publicly resolvable URL for an object key.
func (s *S3Client) ObjectURL(objectKey string) string {
	base := strings.TrimRight(s.publicEndpoint, "/")
	if base == "" {
		base = strings.TrimRight(s.endpointURL, "/")
	}
	if base == "" {
		return objectKey
	}

	if s.usePathStyle {
		return fmt.Sprintf("%s/%s/%s", base, s.bucket, objectKey)
	}

	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return fmt.Sprintf("%s/%s/%s", base, s.bucket, objectKey)
	}
	u.Host = fmt.Sprintf("%s.%s", s.bucket, u.Host)
	u.Path = "/" + objectKey
	return u.String()
}

// ListKeys returns every object key stored under the given prefix.
func (s *S3Client) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *S3Client) DeleteObject(ctx context.Context, objectKey string) error {
	if strings.TrimSpace(objectKey) == "" {
		return errors.New("object key is empty")
	}
	return s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{})
}

// DeletePrefix removes every object under prefix and reports how many were
// deleted. Used by retention cleanup to drop a job's whole HLS tree.
func (s *S3Client) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.ListKeys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, key := range keys {
		if err := s.DeleteObject(ctx, key); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func normalizeEndpoint(raw string) (host string, secure bool, endpointURL string, err error) {
	if raw == "" {
		return "", false, "", errors.New("S3_ENDPOINT is required")
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, "", err
		}
		if u.Host == "" {
			return "", false, "", errors.New("invalid S3_ENDPOINT")
		}
		return u.Host, u.Scheme == "https", u.Scheme + "://" + u.Host, nil
	}
	return raw, false, "http://" + raw, nil
}
