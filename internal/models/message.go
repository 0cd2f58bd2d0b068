package models

import "time"

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaPDF   MediaKind = "pdf"
	MediaVoice MediaKind = "voice"
	MediaFile  MediaKind = "file"
)

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindVoice MessageKind = "voice"
)

// AttachmentRef is an opaque pointer to an uploaded blob. The engine never
// interprets attachment bytes, only the kind classified at ingest.
type AttachmentRef struct {
	URL          string    `bson:"url" json:"url"`
	Kind         MediaKind `bson:"kind" json:"kind"`
	ThumbnailURL string    `bson:"thumbnail_url,omitempty" json:"thumbnail_url,omitempty"`
}

type Message struct {
	ID             string             `bson:"_id" json:"id"`
	ConversationID string             `bson:"conversation_id" json:"conversation_id"`
	SenderID       string             `bson:"sender_id" json:"sender_id"`
	SenderRole     Role               `bson:"sender_role" json:"sender_role"`
	Content        string             `bson:"content" json:"content"`
	Attachments    []AttachmentRef    `bson:"attachments,omitempty" json:"attachments,omitempty"`
	Kind           MessageKind        `bson:"kind" json:"kind"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	EditedAt       *time.Time         `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	ReadBy         map[Role]bool      `bson:"read_by" json:"read_by"`
	ReadAt         map[Role]time.Time `bson:"read_at,omitempty" json:"read_at,omitempty"`
}

// Empty reports whether the message carries neither content nor attachments.
func (m *Message) Empty() bool {
	return m.Content == "" && len(m.Attachments) == 0
}

// HasVoice reports whether any attachment is a voice note. Voice messages are
// excluded from content editing.
func (m *Message) HasVoice() bool {
	if m.Kind == KindVoice {
		return true
	}
	for _, a := range m.Attachments {
		if a.Kind == MediaVoice {
			return true
		}
	}
	return false
}
