package blobstore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

var ErrInvalidEncoding = errors.New("attachment is not valid base64")

// DecodeAttachment accepts either a data URL ("data:application/pdf;base64,
// JVBERi0...") or bare base64 and returns the bytes and their MIME type.
// Bare payloads are sniffed.
func DecodeAttachment(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	contentType := ""

	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, "", fmt.Errorf("%w: data URL has no payload", ErrInvalidEncoding)
		}
		header := s[len("data:"):comma]
		if !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("%w: data URL is not base64 encoded", ErrInvalidEncoding)
		}
		if mt, _, err := mime.ParseMediaType(strings.TrimSuffix(header, ";base64")); err == nil {
			contentType = mt
		}
		s = s[comma+1:]
	}

	data, err := decodeBase64(s)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyContent
	}

	if contentType == "" {
		contentType, _, _ = mime.ParseMediaType(http.DetectContentType(data))
	}
	return data, contentType, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, ErrInvalidEncoding
}

// FileName builds a download name such as "medical-report.pdf".
func FileName(base, contentType string) string {
	switch contentType {
	case "application/pdf":
		return base + ".pdf"
	case "image/png":
		return base + ".png"
	case "image/jpeg":
		return base + ".jpg"
	case "image/webp":
		return base + ".webp"
	case "image/gif":
		return base + ".gif"
	case "text/plain":
		return base + ".txt"
	}
	return base
}
