package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

// mockS3Client keeps objects in a map keyed by object key.
type mockS3Client struct {
	objects map[string]mockObject
	puts    []string
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string]mockObject)}
}

func (m *mockS3Client) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	body, _ := io.ReadAll(in.Body)
	m.puts = append(m.puts, *in.Bucket+"/"+*in.Key)
	m.objects[*in.Key] = mockObject{body: body, contentType: aws.ToString(in.ContentType), metadata: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, ok := m.objects[*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.body)),
		ContentType:   aws.String(obj.contentType),
		ContentLength: aws.Int64(int64(len(obj.body))),
		Metadata:      obj.metadata,
	}, nil
}

func (m *mockS3Client) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, ok := m.objects[*in.Key]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentType:   aws.String(obj.contentType),
		ContentLength: aws.Int64(int64(len(obj.body))),
		Metadata:      obj.metadata,
	}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_RoundTrip(t *testing.T) {
	mock := newMockS3()
	store := NewS3Store(mock, "clinic-reports")
	ctx := context.Background()

	meta, err := store.Upload(ctx, BlobMetadata{
		FileName:    "medical-report.pdf",
		ContentType: "application/pdf",
		OwnerID:     "user-1",
		Category:    CategoryMedicalReport,
	}, strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	require.Len(t, mock.puts, 1)
	assert.Equal(t, "clinic-reports/blobs/"+meta.ID, mock.puts[0])

	got, err := store.GetMetadata(ctx, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, meta.ID, got.ID)
	assert.Equal(t, "medical-report.pdf", got.FileName)
	assert.Equal(t, "user-1", got.OwnerID)
	assert.Equal(t, CategoryMedicalReport, got.Category)
	assert.Equal(t, meta.Hash, got.Hash)
	assert.Equal(t, int64(8), got.Size)
	assert.True(t, got.CreatedAt.Equal(meta.CreatedAt))

	rc, dl, err := store.Download(ctx, meta.ID)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Equal(t, "application/pdf", dl.ContentType)

	require.NoError(t, store.Delete(ctx, meta.ID))
	assert.Empty(t, mock.objects)
}

func TestS3Store_NotFound(t *testing.T) {
	store := NewS3Store(newMockS3(), "b")
	ctx := context.Background()

	_, err := store.GetMetadata(ctx, "missing")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	_, _, err = store.Download(ctx, "missing")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "missing"), ErrBlobNotFound)
}

func TestS3Store_UploadErrors(t *testing.T) {
	mock := newMockS3()
	store := NewS3Store(mock, "b")

	_, err := store.Upload(context.Background(), BlobMetadata{FileName: "x.bin", ContentType: "application/zip"}, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidContentType)
	assert.Empty(t, mock.puts)

	mock.putErr = errors.New("access denied")
	_, err = store.Upload(context.Background(), BlobMetadata{FileName: "x.txt", ContentType: "text/plain"}, strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
