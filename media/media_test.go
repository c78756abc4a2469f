package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func encodeImage(t *testing.T, w, h int, format imaging.Format) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

func newTestStore(t *testing.T) *LocalStorage {
	t.Helper()
	store, err := NewLocalStorage(t.TempDir(), map[AssetType]string{
		AssetTypeOriginal:  "originals",
		AssetTypeThumbnail: "thumbnails",
	}, testLogger())
	require.NoError(t, err)
	return store
}

func TestArtifactName(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	pattern := regexp.MustCompile(`^1700000000123-[0-9a-f]{12}\.jpg$`)

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		name := ArtifactName("Holiday Photo.JPG", now)
		require.Regexp(t, pattern, name)
		require.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}

	assert.Regexp(t, `^1700000000123-[0-9a-f]{12}$`, ArtifactName("noext", now))
	assert.Regexp(t, `^1700000000123-[0-9a-f]{12}$`, ArtifactName("evil.ph p", now))
}

func TestThumbnailName(t *testing.T) {
	assert.Equal(t, "123-abc-thumbnail.png", ThumbnailName("originals/123-abc.png", ".png"))
	assert.Equal(t, "123-abc-thumbnail.jpg", ThumbnailName("originals/123-abc.webp", ".jpg"))
}

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ref, err := store.Save(ctx, AssetTypeOriginal, "a.jpg", strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, "originals/a.jpg", ref)

	rc, err := store.Open(ctx, ref)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "data", string(body))

	_, err = store.Save(ctx, AssetTypeOriginal, "a.jpg", strings.NewReader("other"))
	assert.Error(t, err, "existing names must not be overwritten")

	refs, err := store.List(ctx, AssetTypeOriginal)
	require.NoError(t, err)
	assert.Equal(t, []string{"originals/a.jpg"}, refs)

	require.NoError(t, store.Delete(ctx, ref))
	require.NoError(t, store.Delete(ctx, ref), "deleting a missing artifact is a no-op")

	_, err = os.Stat(filepath.Join(store.BasePath(), "originals", "a.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Save(ctx, AssetTypeOriginal, "../escape.jpg", strings.NewReader("x"))
	assert.Error(t, err)

	_, err = store.FullPath("../../etc/passwd")
	assert.Error(t, err)

	assert.Error(t, store.Delete(ctx, "../outside.jpg"))
}

func TestLocalStorageSaveHonoursCancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Save(ctx, AssetTypeOriginal, "c.jpg", strings.NewReader("data"))
	require.Error(t, err)

	refs, err := store.List(context.Background(), AssetTypeOriginal)
	require.NoError(t, err)
	assert.Empty(t, refs, "partial file must be removed")
}

func TestThumbnailIsFixedSizeForAnyAspectRatio(t *testing.T) {
	p := NewProcessor(newTestStore(t), 300, testLogger())

	sizes := []struct{ w, h int }{
		{1200, 800}, {800, 1200}, {300, 300}, {4000, 100}, {40, 20},
	}
	for _, s := range sizes {
		thumb, err := p.Thumbnail(encodeImage(t, s.w, s.h, imaging.JPEG))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 300, 300), thumb.Bounds(), "source %dx%d", s.w, s.h)
	}
}

func TestThumbnailRejectsCorruptData(t *testing.T) {
	p := NewProcessor(newTestStore(t), 300, testLogger())
	_, err := p.Thumbnail([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestGenerateThumbnailStoresNextToOriginal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	p := NewProcessor(store, 300, testLogger())

	data := encodeImage(t, 640, 480, imaging.PNG)
	originalRef, err := p.StoreOriginal(ctx, "sunset.png", data)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(originalRef, "originals/"))
	assert.True(t, strings.HasSuffix(originalRef, ".png"))

	thumbRef, err := p.GenerateThumbnail(ctx, data, originalRef)
	require.NoError(t, err)
	stem := strings.TrimSuffix(filepath.Base(originalRef), ".png")
	assert.Equal(t, "thumbnails/"+stem+"-thumbnail.png", thumbRef)

	rc, err := store.Open(ctx, thumbRef)
	require.NoError(t, err)
	defer rc.Close()
	cfg, format, err := image.DecodeConfig(rc)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 300, cfg.Height)
}

func TestGenerateThumbnailFallsBackToJPEG(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	p := NewProcessor(store, 300, testLogger())

	data := encodeImage(t, 500, 200, imaging.JPEG)
	thumbRef, err := p.GenerateThumbnail(ctx, data, "originals/1-abc.webp")
	require.NoError(t, err)
	assert.Equal(t, "thumbnails/1-abc-thumbnail.jpg", thumbRef)
}

func TestExtractorWithoutEXIF(t *testing.T) {
	e := NewExtractor(testLogger())

	meta := e.Extract(encodeImage(t, 10, 10, imaging.PNG))
	assert.True(t, meta.IsEmpty())

	meta = e.Extract([]byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00, 0x10, 'E', 'x', 'i', 'f', 0, 0, 'I', 'I'})
	assert.True(t, meta.IsEmpty(), "truncated EXIF yields empty metadata")
}

func TestExtractorDimensions(t *testing.T) {
	e := NewExtractor(testLogger())

	w, h, err := e.Dimensions(encodeImage(t, 123, 45, imaging.JPEG))
	require.NoError(t, err)
	assert.Equal(t, 123, w)
	assert.Equal(t, 45, h)

	_, _, err = e.Dimensions([]byte("nope"))
	assert.ErrorIs(t, err, ErrUndecodable)
}

// withOrientation inserts a minimal big-endian EXIF segment carrying only the
// orientation tag right after the JPEG SOI marker.
func withOrientation(jpeg []byte, o uint16) []byte {
	tiff := []byte{
		'M', 'M', 0x00, 0x2A, 0x00, 0x00, 0x00, 0x08, // header, IFD0 at 8
		0x00, 0x01, // one entry
		0x01, 0x12, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01, byte(o >> 8), byte(o), 0x00, 0x00, // Orientation SHORT
		0x00, 0x00, 0x00, 0x00, // no IFD1
	}
	payload := append([]byte("Exif\x00\x00"), tiff...)
	size := len(payload) + 2

	var out bytes.Buffer
	out.Write(jpeg[:2])
	out.Write([]byte{0xFF, 0xE1, byte(size >> 8), byte(size)})
	out.Write(payload)
	out.Write(jpeg[2:])
	return out.Bytes()
}

func TestExtractorDimensionsFollowOrientation(t *testing.T) {
	e := NewExtractor(testLogger())
	landscape := encodeImage(t, 120, 80, imaging.JPEG)

	tests := []struct {
		orientation uint16
		w, h        int
	}{
		{1, 120, 80},
		{3, 120, 80},
		{6, 80, 120},
		{8, 80, 120},
	}
	for _, tt := range tests {
		w, h, err := e.Dimensions(withOrientation(landscape, tt.orientation))
		require.NoError(t, err)
		assert.Equal(t, tt.w, w, "orientation %d", tt.orientation)
		assert.Equal(t, tt.h, h, "orientation %d", tt.orientation)
	}
}

func TestIsImageUpload(t *testing.T) {
	assert.True(t, IsImageUpload("a.bin", "image/heic"))
	assert.True(t, IsImageUpload("a.jpg", "application/octet-stream"))
	assert.True(t, IsImageUpload("a.webp", ""))
	assert.False(t, IsImageUpload("a.jpg", "text/plain"))
	assert.False(t, IsImageUpload("notes.txt", ""))
}
