package blobstore

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataURL(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("\x89PNG fake"))

	data, mediaType, extension, err := DecodeDataURL("data:image/png;base64," + payload)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG fake", string(data))
	assert.Equal(t, "image/png", mediaType)
	assert.Equal(t, ".png", extension)

	tests := []struct {
		name    string
		dataURL string
	}{
		{"no comma", "data:image/png;base64"},
		{"not base64", "data:image/png," + payload},
		{"unsupported type", "data:image/gif;base64," + payload},
		{"bad payload", "data:image/png;base64,***"},
		{"not a data url", "https://example.com/a.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := DecodeDataURL(tt.dataURL)
			assert.Error(t, err)
		})
	}
}

func TestDecodeDataURLTooLarge(t *testing.T) {
	huge := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("a", MaxScreenshotBytes+1)))
	_, _, _, err := DecodeDataURL("data:image/png;base64," + huge)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestRefs(t *testing.T) {
	key := strings.Repeat("ab", 32) + ".png"
	ref := Ref(key)
	assert.Equal(t, "/screenshots/"+key, ref)

	parsed, ok := KeyFromRef(ref)
	assert.True(t, ok)
	assert.Equal(t, key, parsed)

	_, ok = KeyFromRef("/screenshots/../../etc/passwd")
	assert.False(t, ok)
	_, ok = KeyFromRef("data:image/png;base64,AAAA")
	assert.False(t, ok)

	assert.Equal(t, "image/png", MediaType(key))
	assert.Equal(t, "image/jpeg", MediaType(strings.Repeat("ab", 32)+".jpg"))
}
