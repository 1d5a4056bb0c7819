package blobstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutReadDelete(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	key, err := store.Put([]byte("png bytes"), ".png")
	require.NoError(t, err)
	assert.True(t, ValidKey(key))
	assert.Len(t, key, 68)

	again, err := store.Put([]byte("png bytes"), ".png")
	require.NoError(t, err)
	assert.Equal(t, key, again)

	data, err := store.Read(key)
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(data))

	require.NoError(t, store.Delete(key))
	_, err = store.Read(key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(key), ErrNotFound)
}

func TestValidKey(t *testing.T) {
	digest := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

	tests := []struct {
		key  string
		want bool
	}{
		{digest, true},
		{digest + ".png", true},
		{digest + ".jpeg", true},
		{digest + "png", false},
		{digest + ".PNG", false},
		{digest + ".toolong", false},
		{"../../etc/passwd", false},
		{digest[:63] + "/", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidKey(tt.key))
		})
	}
}

func TestOpenRejectsTraversal(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open("../secret")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
