package imagestore

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{"png", []byte("\x89PNG\r\n\x1a\n...."), "image/png"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"gif", []byte("GIF89a"), "application/octet-stream"},
		{"empty", nil, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectContentType(tt.data))
		})
	}
}

func TestPrepare(t *testing.T) {
	t.Run("small png passes through", func(t *testing.T) {
		data := pngBytes(t, 10, 10)
		up, err := prepare(bytes.NewReader(data), Options{}.withDefaults())
		require.NoError(t, err)
		assert.Equal(t, ".png", up.ext)
		assert.Equal(t, data, up.data)
	})

	t.Run("too large", func(t *testing.T) {
		data := pngBytes(t, 10, 10)
		_, err := prepare(bytes.NewReader(data), Options{MaxBytes: 16, MaxWidth: 100})
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("not an image", func(t *testing.T) {
		_, err := prepare(strings.NewReader("hello world"), Options{}.withDefaults())
		assert.ErrorIs(t, err, ErrUnsupportedImage)
	})

	t.Run("truncated png", func(t *testing.T) {
		_, err := prepare(bytes.NewReader([]byte("\x89PNG\r\n\x1a\nxx")), Options{}.withDefaults())
		assert.ErrorIs(t, err, ErrUnsupportedImage)
	})

	t.Run("wide image is scaled down", func(t *testing.T) {
		data := pngBytes(t, 400, 200)
		up, err := prepare(bytes.NewReader(data), Options{MaxBytes: 1 << 20, MaxWidth: 100})
		require.NoError(t, err)
		cfg, err := png.DecodeConfig(bytes.NewReader(up.data))
		require.NoError(t, err)
		assert.Equal(t, 100, cfg.Width)
		assert.Equal(t, 50, cfg.Height)
	})
}

func TestLocal_SaveAndRelease(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(filepath.Join(dir, "images"), Options{})
	require.NoError(t, err)

	ref, err := store.Save(context.Background(), "photo.png", bytes.NewReader(pngBytes(t, 8, 8)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "uploads/images/"))
	assert.True(t, strings.HasSuffix(ref, ".png"))

	onDisk := filepath.Join(store.Dir(), filepath.Base(ref))
	_, err = os.Stat(onDisk)
	require.NoError(t, err)

	require.NoError(t, store.Release(context.Background(), ref))
	_, err = os.Stat(onDisk)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// already gone
	assert.NoError(t, store.Release(context.Background(), ref))
}

func TestLocal_ReleaseRejectsTraversal(t *testing.T) {
	store, err := NewLocal(t.TempDir(), Options{})
	require.NoError(t, err)

	for _, ref := range []string{"", "uploads/images/", "uploads/images/../x", "../etc/passwd", "uploads/images/.."} {
		assert.ErrorIs(t, store.Release(context.Background(), ref), ErrInvalidRef, ref)
	}
}

func TestLocal_SaveRejectsBadUpload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir, Options{})
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "x.txt", strings.NewReader("nope"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	deletes []string
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deletes = append(f.deletes, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.err
}

func TestS3_SaveAndRelease(t *testing.T) {
	fake := &fakeS3{}
	store := NewS3(fake, "bucket", "places", Options{})

	ref, err := store.Save(context.Background(), "p.png", bytes.NewReader(pngBytes(t, 4, 4)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "places/"))
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "bucket", *fake.puts[0].Bucket)
	assert.Equal(t, ref, *fake.puts[0].Key)
	assert.Equal(t, "image/png", *fake.puts[0].ContentType)

	require.NoError(t, store.Release(context.Background(), ref))
	assert.Equal(t, []string{ref}, fake.deletes)

	assert.ErrorIs(t, store.Release(context.Background(), "other/x.png"), ErrInvalidRef)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestS3_Errors(t *testing.T) {
	fake := &fakeS3{err: errors.New("access denied")}
	store := NewS3(fake, "bucket", "places/", Options{})

	_, err := store.Save(context.Background(), "p.png", bytes.NewReader(pngBytes(t, 4, 4)))
	assert.Error(t, err)
	assert.Error(t, store.Release(context.Background(), "places/a.png"))
	assert.Error(t, store.Ping(context.Background()))
}
