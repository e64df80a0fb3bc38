package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

func seedBlob(t *testing.T, store BlobStore, ownerID, contentType, content string) *BlobMetadata {
	t.Helper()
	meta := BlobMetadata{
		FileName:    FileName("medical-report", contentType),
		ContentType: contentType,
		OwnerID:     ownerID,
		Category:    CategoryMedicalReport,
	}
	result, err := store.Upload(context.Background(), meta, strings.NewReader(content))
	if err != nil {
		t.Fatalf("seedBlob: %v", err)
	}
	return result
}

func TestInMemoryBlobStore_Upload(t *testing.T) {
	store := NewInMemoryBlobStore()
	content := "blood work: normal"

	result := seedBlob(t, store, "user-1", "text/plain", content)

	if result.ID == "" {
		t.Error("expected generated ID")
	}
	if result.Size != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), result.Size)
	}
	if result.FileName != "medical-report.txt" {
		t.Errorf("unexpected file name %q", result.FileName)
	}
	if want := fmt.Sprintf("%x", sha256.Sum256([]byte(content))); result.Hash != want {
		t.Errorf("expected hash %s, got %s", want, result.Hash)
	}
	if result.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 blob, got %d", store.Len())
	}
}

func TestInMemoryBlobStore_UploadValidation(t *testing.T) {
	store := NewInMemoryBlobStore()
	ctx := context.Background()

	tests := []struct {
		name    string
		meta    BlobMetadata
		content io.Reader
		want    error
	}{
		{"missing file name", BlobMetadata{ContentType: "text/plain"}, strings.NewReader("x"), ErrMissingFileName},
		{"bad content type", BlobMetadata{FileName: "a.exe", ContentType: "application/x-msdownload"}, strings.NewReader("x"), ErrInvalidContentType},
		{"empty", BlobMetadata{FileName: "a.txt", ContentType: "text/plain"}, strings.NewReader(""), ErrEmptyContent},
		{"too large", BlobMetadata{FileName: "a.pdf", ContentType: "application/pdf"}, io.LimitReader(zeroReader{}, MaxFileSize+1), ErrFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Upload(ctx, tt.meta, tt.content); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if store.Len() != 0 {
		t.Errorf("expected nothing stored, got %d", store.Len())
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestInMemoryBlobStore_DownloadAndDelete(t *testing.T) {
	store := NewInMemoryBlobStore()
	ctx := context.Background()
	blob := seedBlob(t, store, "user-1", "application/pdf", "%PDF-1.4 report")

	rc, meta, err := store.Download(ctx, blob.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "%PDF-1.4 report" {
		t.Errorf("unexpected content %q", data)
	}
	if meta.OwnerID != "user-1" {
		t.Errorf("expected owner user-1, got %q", meta.OwnerID)
	}

	if err := store.Delete(ctx, blob.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := store.Download(ctx, blob.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, blob.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound on second delete, got %v", err)
	}
	if _, err := store.GetMetadata(ctx, blob.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound metadata, got %v", err)
	}
}

func TestInMemoryBlobStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryBlobStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			meta, err := store.Upload(context.Background(), BlobMetadata{FileName: "r.txt", ContentType: "text/plain"}, bytes.NewReader([]byte(fmt.Sprintf("report %d", i))))
			if err != nil {
				t.Errorf("upload: %v", err)
				return
			}
			if _, err := store.GetMetadata(context.Background(), meta.ID); err != nil {
				t.Errorf("metadata: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if store.Len() != 20 {
		t.Errorf("expected 20 blobs, got %d", store.Len())
	}
}
