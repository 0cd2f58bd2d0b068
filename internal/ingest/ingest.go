// Package ingest accepts raw attachment bytes, classifies them, stores the
// object and returns the reference a message carries.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/logger"
	"github.com/fathima-sithara/conversation-service/internal/media"
	"github.com/fathima-sithara/conversation-service/internal/models"
	"github.com/fathima-sithara/conversation-service/internal/store"
)

// ObjectStore abstracts the blob backend so tests don't need S3.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Upload is one attachment as received at the boundary. Declared carries the
// client's MIME type or filename, either of which may be wrong or absent.
type Upload struct {
	Declared string
	Data     []byte
}

type Ingestor struct {
	store ObjectStore
	log   *zap.SugaredLogger
}

func New(store ObjectStore, log *zap.SugaredLogger) *Ingestor {
	if log == nil {
		log = logger.Nop()
	}
	return &Ingestor{store: store, log: log}
}

// Ingest stores one attachment and returns its reference. Images also get a
// thumbnail; thumbnail failures are logged and swallowed because the original
// is already safely stored.
func (g *Ingestor) Ingest(ctx context.Context, up Upload) (models.AttachmentRef, error) {
	if len(up.Data) == 0 {
		return models.AttachmentRef{}, fmt.Errorf("%w: empty payload", apperr.ErrUpload)
	}

	kind := media.Classify(up.Declared, up.Data)
	key := "attachments/" + uuid.NewString() + media.Ext(up.Declared)

	url, err := g.store.Put(ctx, key, contentType(up), up.Data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.AttachmentRef{}, fmt.Errorf("%w: %s", apperr.ErrUploadTimeout, key)
		}
		return models.AttachmentRef{}, fmt.Errorf("%w: %v", apperr.ErrUpload, err)
	}

	ref := models.AttachmentRef{URL: url, Kind: kind}
	if kind == models.MediaImage {
		if thumbURL, err := g.putThumbnail(ctx, key, up.Data); err != nil {
			g.log.Warnw("thumbnail", "key", key, "err", err)
		} else {
			ref.ThumbnailURL = thumbURL
		}
	}
	return ref, nil
}

// IngestBatch stores up to the per-message cap of attachments; one more and
// the whole batch is refused before any byte is uploaded.
func (g *Ingestor) IngestBatch(ctx context.Context, ups []Upload) ([]models.AttachmentRef, error) {
	if len(ups) > store.MaxAttachments {
		return nil, fmt.Errorf("%w: %d attachments, limit %d", apperr.ErrAttachmentLimit, len(ups), store.MaxAttachments)
	}
	refs := make([]models.AttachmentRef, 0, len(ups))
	for _, up := range ups {
		ref, err := g.Ingest(ctx, up)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (g *Ingestor) putThumbnail(ctx context.Context, origKey string, data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	thumb := imaging.Resize(img, 320, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG); err != nil {
		return "", err
	}
	return g.store.Put(ctx, origKey+"_thumb.jpg", "image/jpeg", buf.Bytes())
}

func contentType(up Upload) string {
	hint := strings.ToLower(strings.TrimSpace(up.Declared))
	if strings.Contains(hint, "/") {
		return hint
	}
	return http.DetectContentType(up.Data)
}
