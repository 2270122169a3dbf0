package photo

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// =============================================================================
// Content Type Detection
// =============================================================================

// DetectContentType determines the MIME type of an uploaded photo.
//
// Detection priority:
// 1. Sniff the first 512 bytes; a recognized image type always wins
// 2. Use providedType (the multipart part header) when it names an image
// 3. Try the file extension using mime.TypeByExtension
// 4. Fall back to the sniffed type (often "application/octet-stream")
//
// Sniffing comes first because clients routinely send "image/jpeg" for
// whatever the camera produced. HEIC is not sniffable, so it is accepted on
// the strength of the header or extension.
func DetectContentType(providedType, filename string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if IsImage(sniffed) {
		return baseType(sniffed)
	}

	if IsAllowedImageType(providedType) {
		return baseType(providedType)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if contentType := mime.TypeByExtension(ext); IsAllowedImageType(contentType) {
		return baseType(contentType)
	}

	return baseType(sniffed)
}

// =============================================================================
// Content Type Validation
// =============================================================================

// AllowedImageTypes defines the MIME types accepted for report photos.
var AllowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true, // Some systems use this instead of image/jpeg
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/heic": true, // iPhone photos
	"image/heif": true, // High Efficiency Image Format
}

// IsAllowedImageType checks if a content type is an allowed photo format.
func IsAllowedImageType(contentType string) bool {
	return AllowedImageTypes[baseType(contentType)]
}

// IsImage returns true if the content type is any image format.
func IsImage(contentType string) bool {
	return strings.HasPrefix(baseType(contentType), "image/")
}

// baseType strips parameters and normalizes case.
func baseType(contentType string) string {
	base := strings.Split(contentType, ";")[0]
	return strings.TrimSpace(strings.ToLower(base))
}

// =============================================================================
// File Extension Helpers
// =============================================================================

// withExtension replaces the extension of filename, or builds a name from
// fallback when filename is empty.
func withExtension(filename, fallback, ext string) string {
	if filename == "" {
		filename = fallback
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ext
}
