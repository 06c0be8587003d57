package middleware

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// Upload validation and sanitization utilities

// NormalizeMediaType strips parameters and lowercases a Content-Type value.
func NormalizeMediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// ValidateMediaType checks the upload's media type against the allowed list.
func ValidateMediaType(mediaType string, allowed []string) error {
	if mediaType == "" {
		return fmt.Errorf("media type cannot be empty")
	}
	for _, a := range allowed {
		if strings.EqualFold(a, mediaType) {
			return nil
		}
	}
	return fmt.Errorf("unsupported media type: %s (allowed: %s)", mediaType, strings.Join(allowed, ", "))
}

// ValidateUploadSize rejects empty uploads and uploads above maxBytes.
func ValidateUploadSize(size, maxBytes int64) error {
	if size <= 0 {
		return fmt.Errorf("image is empty")
	}
	if size > maxBytes {
		return fmt.Errorf("image too large: %d bytes (max %d)", size, maxBytes)
	}
	return nil
}

// SanitizeFilename keeps the base name of an uploaded file, without control
// characters, for logging.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return SanitizeString(name)
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}
