package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"forum/config"
	"forum/models"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, prefix string, allowed []string) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	backend, err := NewLocalStorage(dir, "/"+prefix)
	require.NoError(t, err)
	return NewStore(backend, prefix, allowed, slog.New(slog.NewJSONHandler(io.Discard, nil))), dir
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func filesIn(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSave(t *testing.T) {
	store, dir := newTestStore(t, "uploads", config.AllowedExtensions)
	ctx := context.Background()

	ref, err := store.Save(ctx, []byte("fake png"), "My Pic.PNG")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^uploads/[0-9a-f]{32}_\d+_My_Pic\.png$`), ref)
	assert.True(t, store.Exists(ctx, ref))
	assert.Equal(t, "/uploads/"+strings.TrimPrefix(ref, "uploads/"), store.Resolve(ref))

	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(ref, "uploads/")))
	require.NoError(t, err)
	assert.Equal(t, []byte("fake png"), data)

	other, err := store.Save(ctx, []byte("fake png"), "My Pic.PNG")
	require.NoError(t, err)
	assert.NotEqual(t, ref, other, "uploads with the same name must not collide")
}

func TestSaveRejections(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		filename string
		want     error
	}{
		{"executable", []byte("MZ"), "virus.exe", ErrUnsupportedType},
		{"no extension", []byte("x"), "README", ErrUnsupportedType},
		{"double extension", []byte("x"), "pic.png.exe", ErrUnsupportedType},
		{"empty", nil, "pic.png", ErrEmptyUpload},
		{"too large", make([]byte, config.MaxFileSize+1), "clip.mp4", ErrTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, dir := newTestStore(t, "uploads", config.AllowedExtensions)
			ref, err := store.Save(context.Background(), tc.data, tc.filename)
			assert.Empty(t, ref)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, models.ErrMedia)
			assert.Empty(t, filesIn(t, dir), "nothing may be written for a rejected upload")
		})
	}
}

func TestTooLargeMessageIsHumanized(t *testing.T) {
	store, _ := newTestStore(t, "uploads", config.AllowedExtensions)
	_, err := store.Save(context.Background(), make([]byte, config.MaxFileSize+1), "a.gif")
	require.Error(t, err)
	assert.Contains(t, models.UserMessage(err), "10 MiB")
}

func TestDeleteAndDescribe(t *testing.T) {
	store, _ := newTestStore(t, "uploads", config.AllowedExtensions)
	ctx := context.Background()

	ref, err := store.Save(ctx, []byte("video"), "clip.mp4")
	require.NoError(t, err)

	kind, url := store.Describe(ctx, ref)
	assert.Equal(t, models.MediaVideo, kind)
	assert.NotEmpty(t, url)

	require.NoError(t, store.Delete(ctx, ref))
	require.NoError(t, store.Delete(ctx, ref), "deleting twice is a no-op")
	require.NoError(t, store.Delete(ctx, ""), "empty reference is a no-op")
	require.NoError(t, store.Delete(ctx, "avatars/other.png"), "foreign reference is ignored")

	kind, url = store.Describe(ctx, ref)
	assert.Equal(t, models.MediaNone, kind, "dangling references render as no media")
	assert.Empty(t, url)
	assert.False(t, store.Exists(ctx, "uploads/../../etc/passwd"))
}

func TestKind(t *testing.T) {
	tests := map[string]models.MediaKind{
		"uploads/a.png":  models.MediaImage,
		"uploads/a.JPG":  models.MediaImage,
		"uploads/a.jpeg": models.MediaImage,
		"uploads/a.gif":  models.MediaImage,
		"uploads/a.mp4":  models.MediaVideo,
		"uploads/a.txt":  models.MediaNone,
		"":               models.MediaNone,
	}
	for ref, want := range tests {
		assert.Equal(t, want, Kind(ref), ref)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"pic.png":            "pic.png",
		"../../etc/pic.png":  "pic.png",
		`C:\Users\me\a b.GIF`: "a_b.gif",
		"照片.jpg":             "file.jpg",
		".hidden.png":        "hidden.png",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeName(in), in)
	}
}

func TestReadUpload(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("media", "pic.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("contents"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	form, err := multipart.NewReader(&body, mw.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })

	up, err := ReadUpload(form.File["media"][0])
	require.NoError(t, err)
	assert.Equal(t, "pic.png", up.Filename)
	assert.Equal(t, []byte("contents"), up.Data)

	big := &multipart.FileHeader{Filename: "big.mp4", Size: config.MaxFileSize + 1}
	_, err = ReadUpload(big)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestStoreCropped(t *testing.T) {
	ctx := context.Background()
	src := pngBytes(t, 400, 300)

	tests := []struct {
		name   string
		crop   models.CropRect
		wantW  int
		wantH  int
	}{
		{"downscaled square", models.CropRect{X: 50, Y: 50, Width: 200, Height: 200}, config.AvatarSize, config.AvatarSize},
		{"small crop not upscaled", models.CropRect{X: 0, Y: 0, Width: 40, Height: 30}, 40, 30},
		{"clamped to bounds", models.CropRect{X: 350, Y: 250, Width: 100, Height: 100}, 50, 50},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tmp := t.TempDir()
			t.Setenv("TMPDIR", tmp)
			store, dir := newTestStore(t, "avatars", config.AvatarExtensions)
			ref, err := store.StoreCropped(ctx, src, "me.png", tc.crop, config.AvatarSize)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(ref, "avatars/"))
			assert.Empty(t, avatarTempFiles(t, tmp))

			img, err := imaging.Open(filepath.Join(dir, strings.TrimPrefix(ref, "avatars/")))
			require.NoError(t, err)
			assert.Equal(t, tc.wantW, img.Bounds().Dx())
			assert.Equal(t, tc.wantH, img.Bounds().Dy())
		})
	}
}

func TestStoreCroppedFailures(t *testing.T) {
	ctx := context.Background()
	src := pngBytes(t, 64, 64)

	tests := []struct {
		name     string
		data     []byte
		filename string
		crop     models.CropRect
	}{
		{"outside image", src, "me.png", models.CropRect{X: 100, Y: 100, Width: 10, Height: 10}},
		{"zero size", src, "me.png", models.CropRect{X: 0, Y: 0, Width: 0, Height: 10}},
		{"not an image", []byte("definitely not a png"), "me.png", models.CropRect{Width: 10, Height: 10}},
		{"video", []byte("mp4"), "me.mp4", models.CropRect{Width: 10, Height: 10}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tmp := t.TempDir()
			t.Setenv("TMPDIR", tmp)
			store, dir := newTestStore(t, "avatars", config.AvatarExtensions)
			ref, err := store.StoreCropped(ctx, tc.data, tc.filename, tc.crop, config.AvatarSize)
			assert.Empty(t, ref)
			assert.ErrorIs(t, err, models.ErrProcessing)
			assert.Empty(t, filesIn(t, dir))
			assert.Empty(t, avatarTempFiles(t, tmp), "scratch file left behind")
		})
	}
}

// avatarTempFiles lists the crop scratch files left in dir.
func avatarTempFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "avatar-*"))
	require.NoError(t, err)
	return matches
}
