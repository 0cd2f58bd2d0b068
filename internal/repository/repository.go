package repository

import (
	"context"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/models"
)

// Repository is the persistence boundary for conversations, their message
// logs and the read-only legacy records. The engine owns ordering and
// serialization above this interface; implementations only need atomic
// single-document operations.
type Repository interface {
	// UpsertConversation creates the conversation if missing and returns
	// the stored record. Metadata collisions resolve last-writer-wins.
	UpsertConversation(ctx context.Context, c *models.Conversation) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	DeleteConversation(ctx context.Context, id string) error
	ListConversationsForUser(ctx context.Context, userID string) ([]*models.Conversation, error)

	InsertMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	UpdateMessageContent(ctx context.Context, id, content string, editedAt time.Time) error
	DeleteMessage(ctx context.Context, id string) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	DeleteMessagesByConversation(ctx context.Context, conversationID string) error
	LastMessage(ctx context.Context, conversationID string) (*models.Message, error)
	MaxCreatedAt(ctx context.Context, conversationID string) (time.Time, error)

	// MarkReadUpTo sets ReadBy[role] on every message in the conversation
	// with CreatedAt <= cutoff that was not sent by role. Returns how many
	// messages flipped. Monotonic: already-read messages are untouched.
	MarkReadUpTo(ctx context.Context, conversationID string, role models.Role, cutoff, at time.Time) (int64, error)
	UnreadCount(ctx context.Context, conversationID string, role models.Role) (int64, error)

	LegacyRecords(ctx context.Context, conversationID string) ([]models.LegacyRecord, error)
}
