package ingest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/models"
)

type fakeStore struct {
	mu   sync.Mutex
	objs map[string][]byte
	err  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objs: make(map[string][]byte)}
}

func (f *fakeStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objs[key] = data
	return "https://cdn.example.com/" + key, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	for x := 0; x < 400; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIngestClassifiesAndStores(t *testing.T) {
	fs := newFakeStore()
	g := New(fs, nil)

	ref, err := g.Ingest(context.Background(), Upload{Declared: "application/pdf", Data: []byte("%PDF-1.4")})
	require.NoError(t, err)
	assert.Equal(t, models.MediaPDF, ref.Kind)
	assert.Contains(t, ref.URL, "attachments/")
	assert.Contains(t, ref.URL, ".pdf")
	assert.Empty(t, ref.ThumbnailURL)
}

func TestIngestImageGetsThumbnail(t *testing.T) {
	fs := newFakeStore()
	g := New(fs, nil)

	ref, err := g.Ingest(context.Background(), Upload{Declared: "image/png", Data: pngBytes(t)})
	require.NoError(t, err)
	assert.Equal(t, models.MediaImage, ref.Kind)
	assert.Contains(t, ref.ThumbnailURL, "_thumb.jpg")
	assert.Len(t, fs.objs, 2, "original plus thumbnail")
}

func TestIngestBadImageKeepsOriginal(t *testing.T) {
	fs := newFakeStore()
	g := New(fs, nil)

	// declared image but bytes that don't decode: stored, no thumbnail
	ref, err := g.Ingest(context.Background(), Upload{Declared: "image/png", Data: []byte("not a png")})
	require.NoError(t, err)
	assert.Equal(t, models.MediaImage, ref.Kind)
	assert.Empty(t, ref.ThumbnailURL)
	assert.Len(t, fs.objs, 1)
}

func TestIngestVoiceNote(t *testing.T) {
	fs := newFakeStore()
	g := New(fs, nil)

	ref, err := g.Ingest(context.Background(), Upload{Declared: "audio/webm", Data: []byte{0x1a, 0x45, 0xdf, 0xa3}})
	require.NoError(t, err)
	assert.Equal(t, models.MediaVoice, ref.Kind)
	assert.Contains(t, ref.URL, ".webm")
}

func TestIngestEmptyPayload(t *testing.T) {
	g := New(newFakeStore(), nil)
	_, err := g.Ingest(context.Background(), Upload{Declared: "image/png"})
	assert.ErrorIs(t, err, apperr.ErrUpload)
}

func TestIngestDeadlineExceeded(t *testing.T) {
	g := New(newFakeStore(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	_, err := g.Ingest(ctx, Upload{Declared: "application/pdf", Data: []byte("%PDF-1.4")})
	assert.ErrorIs(t, err, apperr.ErrUploadTimeout)
}

func TestIngestBatchCap(t *testing.T) {
	fs := newFakeStore()
	g := New(fs, nil)

	ups := make([]Upload, 6)
	for i := range ups {
		ups[i] = Upload{Declared: "application/pdf", Data: []byte("%PDF-1.4")}
	}
	_, err := g.IngestBatch(context.Background(), ups)
	assert.ErrorIs(t, err, apperr.ErrAttachmentLimit)
	assert.Empty(t, fs.objs, "the batch is refused before any upload")

	refs, err := g.IngestBatch(context.Background(), ups[:5])
	require.NoError(t, err)
	assert.Len(t, refs, 5)
}
