// Package blobstore stores binary attachments such as medical reports
// uploaded with a booking. It defines the BlobStore interface, an in-memory
// backend for development and tests, an S3 backend, and the download
// handlers.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
	ErrEmptyContent       = errors.New("blob content is empty")
)

// MaxFileSize caps a decoded report. Base64 inflates by a third, so a 50M
// booking body carries a little under 40 MiB of report.
const MaxFileSize = 40 << 20

const CategoryMedicalReport = "medical-report"

// OctetStream is the stored type of any report outside AllowedContentTypes.
const OctetStream = "application/octet-stream"

// AllowedContentTypes lists the types a blob may be stored under.
var AllowedContentTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"image/gif":       true,
	"application/pdf": true,
	"text/plain":      true,
	OctetStream:       true,
}

// StoredContentType keeps a known report type and downgrades anything else
// (a .docx, or an HTML page) to OctetStream so it is only ever served as an
// opaque download.
func StoredContentType(contentType string) string {
	if AllowedContentTypes[contentType] {
		return contentType
	}
	return OctetStream
}

// BlobMetadata describes a stored blob. OwnerID is the user who uploaded it
// and gates downloads for non-staff callers.
type BlobMetadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	OwnerID     string    `json:"owner_id"`
	Category    string    `json:"category"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

type BlobStore interface {
	Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, id string) error
	GetMetadata(ctx context.Context, id string) (*BlobMetadata, error)
}

// prepare checks meta, reads content up to MaxFileSize and stamps the
// generated id, size, hash and creation time.
func prepare(meta BlobMetadata, content io.Reader) (BlobMetadata, []byte, error) {
	switch {
	case meta.FileName == "":
		return meta, nil, ErrMissingFileName
	case !AllowedContentTypes[meta.ContentType]:
		return meta, nil, fmt.Errorf("%w: %s", ErrInvalidContentType, meta.ContentType)
	}

	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(content, MaxFileSize+1))
	switch {
	case err != nil:
		return meta, nil, fmt.Errorf("read %s: %w", meta.FileName, err)
	case n > MaxFileSize:
		return meta, nil, ErrFileTooLarge
	case n == 0:
		return meta, nil, ErrEmptyContent
	}

	sum := sha256.Sum256(buf.Bytes())
	meta.ID = uuid.NewString()
	meta.Size = n
	meta.Hash = hex.EncodeToString(sum[:])
	meta.CreatedAt = time.Now().UTC()
	return meta, buf.Bytes(), nil
}

type memBlob struct {
	meta BlobMetadata
	data []byte
}

// InMemoryBlobStore keeps blobs in process memory. It backs BLOB_BACKEND=memory
// and the tests; contents are lost on restart.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]memBlob
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string]memBlob)}
}

func (s *InMemoryBlobStore) lookup(id string) (memBlob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[id]
	if !ok {
		return memBlob{}, ErrBlobNotFound
	}
	return b, nil
}

func (s *InMemoryBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.blobs[meta.ID] = memBlob{meta: meta, data: data}
	s.mu.Unlock()
	return &meta, nil
}

func (s *InMemoryBlobStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	b, err := s.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(bytes.NewReader(b.data)), &b.meta, nil
}

func (s *InMemoryBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	b, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return &b.meta, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

// Len reports how many blobs are stored.
func (s *InMemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
