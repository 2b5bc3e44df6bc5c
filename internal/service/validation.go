package service

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxUploadBytes = 10 * 1024 * 1024
	MaxFileNameLength     = 255
)

// allowedFileTypes maps accepted MIME types to the extension used when the name has none.
var allowedFileTypes = map[string]string{
	"application/pdf":    "pdf",
	"image/jpeg":         "jpg",
	"image/png":          "png",
	"image/gif":          "gif",
	"application/msword": "doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/vnd.ms-excel": "xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "xlsx",
}

// IsAllowedFileType reports whether the MIME type may be uploaded.
func IsAllowedFileType(contentType string) bool {
	_, ok := allowedFileTypes[normalizeContentType(contentType)]
	return ok
}

func normalizeContentType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// ValidateUpload checks type, size and name. It never touches the network.
func ValidateUpload(name, contentType string, size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if !IsAllowedFileType(contentType) {
		return fmt.Errorf("%w: %q is not accepted, only PDF, images (JPG, PNG, GIF), Word and Excel documents", ErrUnsupportedFileType, contentType)
	}
	if size > maxBytes {
		return fmt.Errorf("%w: File size exceeds %s limit. Current size: %.2fMB",
			ErrFileTooLarge, formatLimit(maxBytes), float64(size)/(1024*1024))
	}
	if strings.TrimSpace(name) == "" || utf8.RuneCountInString(name) > MaxFileNameLength {
		return ErrInvalidFileName
	}
	return nil
}

func formatLimit(maxBytes int64) string {
	if maxBytes%(1024*1024) == 0 {
		return fmt.Sprintf("%dMB", maxBytes/(1024*1024))
	}
	return fmt.Sprintf("%d bytes", maxBytes)
}

// fileExtension returns the name's extension without the dot, falling back to the type's.
func fileExtension(name, contentType string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext != "" && !strings.ContainsAny(ext, "/\\ ") {
		return strings.ToLower(ext)
	}
	return allowedFileTypes[normalizeContentType(contentType)]
}
