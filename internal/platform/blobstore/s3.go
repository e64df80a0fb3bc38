package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps blobs in a bucket under blobs/<id>. Metadata travels as
// user-defined object metadata so a single HeadObject answers GetMetadata.
type S3Store struct {
	client S3API
	bucket string
}

func NewS3Store(client S3API, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

const (
	metaFileName  = "file-name"
	metaOwnerID   = "owner-id"
	metaCategory  = "category"
	metaHash      = "sha256"
	metaCreatedAt = "created-at"
)

func objectKey(id string) string {
	return "blobs/" + id
}

func (s *S3Store) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey(meta.ID)),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(meta.ContentType),
		ContentLength: aws.Int64(meta.Size),
		Metadata: map[string]string{
			metaFileName:  meta.FileName,
			metaOwnerID:   meta.OwnerID,
			metaCategory:  meta.Category,
			metaHash:      meta.Hash,
			metaCreatedAt: meta.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put %s: %w", objectKey(meta.ID), err)
	}
	return &meta, nil
}

func (s *S3Store) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("s3 get %s: %w", objectKey(id), err)
	}
	meta := metadataFrom(id, out.Metadata, aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength))
	return out.Body, meta, nil
}

func (s *S3Store) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("s3 head %s: %w", objectKey(id), err)
	}
	return metadataFrom(id, out.Metadata, aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength)), nil
}

// Delete removes the object. S3 deletes are idempotent, so existence is
// checked first to report ErrBlobNotFound like the other backends.
func (s *S3Store) Delete(ctx context.Context, id string) error {
	if _, err := s.GetMetadata(ctx, id); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(id)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", objectKey(id), err)
	}
	return nil
}

func metadataFrom(id string, m map[string]string, contentType string, size int64) *BlobMetadata {
	meta := &BlobMetadata{
		ID:          id,
		FileName:    m[metaFileName],
		ContentType: contentType,
		Size:        size,
		OwnerID:     m[metaOwnerID],
		Category:    m[metaCategory],
		Hash:        m[metaHash],
	}
	if ts, err := time.Parse(time.RFC3339Nano, m[metaCreatedAt]); err == nil {
		meta.CreatedAt = ts
	}
	return meta
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
