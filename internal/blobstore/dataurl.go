package blobstore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// URLPrefix is where stored screenshots are served.
const URLPrefix = "/screenshots/"

// MaxScreenshotBytes bounds a decoded screenshot.
const MaxScreenshotBytes = 5 << 20

var ErrTooLarge = errors.New("screenshot exceeds size limit")

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// IsDataURL reports whether s looks like a base64 image data URL.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:image/")
}

// DecodeDataURL decodes "data:image/<type>;base64,<payload>" as produced by
// chrome.tabs.captureVisibleTab. It returns the bytes, media type and file extension.
func DecodeDataURL(dataURL string) ([]byte, string, string, error) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, "", "", fmt.Errorf("malformed data URL")
	}
	mediaType := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	extension, ok := extensions[mediaType]
	if !ok {
		return nil, "", "", fmt.Errorf("unsupported screenshot type %q", mediaType)
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxScreenshotBytes+3 {
		return nil, "", "", ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", "", fmt.Errorf("invalid screenshot encoding: %w", err)
	}
	if len(data) > MaxScreenshotBytes {
		return nil, "", "", ErrTooLarge
	}
	return data, mediaType, extension, nil
}

// Ref is the URL a step stores for a screenshot key.
func Ref(key string) string {
	return URLPrefix + key
}

// KeyFromRef extracts the key from a stored screenshot reference.
func KeyFromRef(ref string) (string, bool) {
	key, ok := strings.CutPrefix(ref, URLPrefix)
	if !ok || !ValidKey(key) {
		return "", false
	}
	return key, true
}

// MediaType guesses the media type of a stored key from its extension.
func MediaType(key string) string {
	for mediaType, extension := range extensions {
		if strings.HasSuffix(key, extension) {
			return mediaType
		}
	}
	return "application/octet-stream"
}
