package media

import (
	"net/http"
	"path"
	"strings"

	"github.com/fathima-sithara/conversation-service/internal/models"
)

// Classify maps a declared MIME type or filename hint to a media kind. The
// hint comes from the ingest boundary; when it is missing or unknown the
// payload bytes are sniffed.
func Classify(declared string, data []byte) models.MediaKind {
	hint := strings.ToLower(strings.TrimSpace(declared))

	if hint != "" {
		if strings.Contains(hint, "/") {
			if k, ok := fromMime(hint); ok {
				return k
			}
		} else if k, ok := fromExt(path.Ext(hint)); ok {
			return k
		}
	}

	if len(data) > 0 {
		if k, ok := fromMime(strings.ToLower(http.DetectContentType(data))); ok {
			return k
		}
	}
	return models.MediaFile
}

func fromMime(mime string) (models.MediaKind, bool) {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.MediaImage, true
	case mime == "application/pdf":
		return models.MediaPDF, true
	case strings.HasPrefix(mime, "audio/"):
		return models.MediaVoice, true
	// voice notes recorded on platforms without audio/webm support arrive
	// as video/mp4 containers with an audio track
	case mime == "video/mp4" || mime == "video/webm":
		return models.MediaVoice, true
	}
	return "", false
}

func fromExt(ext string) (models.MediaKind, bool) {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic":
		return models.MediaImage, true
	case ".pdf":
		return models.MediaPDF, true
	case ".webm", ".m4a", ".mp3", ".ogg", ".wav", ".mp4":
		return models.MediaVoice, true
	}
	return "", false
}

// ClassifyURL classifies an already-stored attachment by its URL path
// extension. Legacy records persist bare URL strings, so the extension is the
// only hint available.
func ClassifyURL(raw string) models.MediaKind {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if k, ok := fromExt(strings.ToLower(path.Ext(raw))); ok {
		return k
	}
	return models.MediaFile
}

// Ext returns a storage key extension for the declared hint, defaulting to
// .bin when nothing usable was declared.
func Ext(declared string) string {
	hint := strings.ToLower(strings.TrimSpace(declared))
	if hint == "" {
		return ".bin"
	}
	if strings.Contains(hint, "/") {
		switch hint {
		case "image/jpeg":
			return ".jpg"
		case "image/png":
			return ".png"
		case "image/gif":
			return ".gif"
		case "image/webp":
			return ".webp"
		case "application/pdf":
			return ".pdf"
		case "audio/webm", "video/webm":
			return ".webm"
		case "audio/mp4", "video/mp4":
			return ".mp4"
		case "audio/mpeg":
			return ".mp3"
		case "audio/ogg":
			return ".ogg"
		}
		return ".bin"
	}
	if ext := path.Ext(hint); ext != "" {
		return ext
	}
	return ".bin"
}
