package models

import "time"

// Legacy on-disk record shapes. The schema drifted twice without a backfill:
// a conversation document may carry its second party's responses as a single
// flat field, an array of entries, or both at once. These types exist only at
// the storage boundary; the reconciler flattens them into canonical Messages
// and nothing downstream ever branches on shape.

// LegacyReply is one entry of the migrated reply arrays (yanitlar /
// ogrenciYanitlar). Per-entry read flags were tracked on the entry itself.
type LegacyReply struct {
	Content       string     `bson:"content" json:"content"`
	Timestamp     time.Time  `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
	Attachments   []string   `bson:"attachments,omitempty" json:"attachments,omitempty"`
	ReadByStudent *bool      `bson:"readByStudent,omitempty" json:"readByStudent,omitempty"`
	ReadByAdmin   *bool      `bson:"readByAdmin,omitempty" json:"readByAdmin,omitempty"`
}

// LegacyRecord mirrors the old support-thread document: an initial message
// plus replies in any combination of single-field and array form.
type LegacyRecord struct {
	ID             string    `bson:"_id,omitempty" json:"id"`
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	UserID         string    `bson:"userId,omitempty" json:"userId,omitempty"`
	Subject        string    `bson:"konu,omitempty" json:"konu,omitempty"`
	Body           string    `bson:"mesaj,omitempty" json:"mesaj,omitempty"`
	Attachments    []string  `bson:"attachments,omitempty" json:"attachments,omitempty"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
	ReadByAdmin    bool      `bson:"readByAdmin,omitempty" json:"readByAdmin,omitempty"`
	ReadByStudent  bool      `bson:"readByStudent,omitempty" json:"readByStudent,omitempty"`

	// Responder (coach/admin) replies: legacy single field, then array.
	Reply            string        `bson:"yanit,omitempty" json:"yanit,omitempty"`
	ReplyAt          time.Time     `bson:"yanitTarihi,omitempty" json:"yanitTarihi,omitempty"`
	ReplyAttachments []string      `bson:"yanitAttachments,omitempty" json:"yanitAttachments,omitempty"`
	Replies          []LegacyReply `bson:"yanitlar,omitempty" json:"yanitlar,omitempty"`

	// Student replies: same drift, second generation.
	StudentReply            string        `bson:"ogrenciYanit,omitempty" json:"ogrenciYanit,omitempty"`
	StudentReplyAt          time.Time     `bson:"ogrenciYanitTarihi,omitempty" json:"ogrenciYanitTarihi,omitempty"`
	StudentReplyAttachments []string      `bson:"ogrenciYanitAttachments,omitempty" json:"ogrenciYanitAttachments,omitempty"`
	StudentReplies          []LegacyReply `bson:"ogrenciYanitlar,omitempty" json:"ogrenciYanitlar,omitempty"`
}
