package thumbnail

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNGDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return encodeDataURL("image/png", buf.Bytes())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	dataURL := testPNGDataURL(t, 10, 10)
	require.NoError(t, store.Save("diagram-1", dataURL))

	assert.True(t, store.Exists("diagram-1"))
	loaded, ok, err := store.Load("diagram-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, loaded, "data:image/png;base64,")
}

func TestSanitizePreventsTraversal(t *testing.T) {
	assert.Equal(t, "___etc_passwd", sanitize("../etc/passwd"))
	assert.Equal(t, "abc-123_XYZ", sanitize("abc-123_XYZ"))
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	store, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	_, ok, err := store.Load("nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveRejectsUnsupportedMIMEType(t *testing.T) {
	store, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	svg := encodeDataURL("image/svg+xml", []byte("<svg onload='evil()'/>"))
	err = store.Save("evil", svg)
	require.Error(t, err)
}

func TestCleanupOrphansPreservesReferencedAndRecent(t *testing.T) {
	store, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	dataURL := testPNGDataURL(t, 4, 4)
	require.NoError(t, store.Save("referenced", dataURL))
	require.NoError(t, store.Save("recent-orphan", dataURL))
	require.NoError(t, store.Save("old-orphan", dataURL))

	existing := map[string]bool{"referenced": true}

	deleted, err := store.CleanupOrphans(existing, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted, "nothing old enough to reap yet")
	assert.True(t, store.Exists("old-orphan"))

	deleted, err = store.CleanupOrphans(existing, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.True(t, store.Exists("referenced"))
	assert.False(t, store.Exists("recent-orphan"))
	assert.False(t, store.Exists("old-orphan"))
}
