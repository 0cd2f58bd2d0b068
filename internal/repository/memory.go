package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/models"
)

// MemoryRepository keeps everything in maps. Used by tests and local dev
// without a Mongo instance.
type MemoryRepository struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message // by message id
	legacy        map[string][]models.LegacyRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
		legacy:        make(map[string][]models.LegacyRecord),
	}
}

func (r *MemoryRepository) UpsertConversation(ctx context.Context, c *models.Conversation) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.conversations[c.ID]; ok {
		// last-writer-wins on metadata, record itself is append-only
		existing.StudentID = c.StudentID
		existing.CoachID = c.CoachID
		existing.AdminID = c.AdminID
		cp := *existing
		return &cp, nil
	}
	cp := *c
	r.conversations[c.ID] = &cp
	out := cp
	return &out, nil
}

func (r *MemoryRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) TouchConversation(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return apperr.ErrNotFound
	}
	c.UpdatedAt = at
	return nil
}

func (r *MemoryRepository) DeleteConversation(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conversations[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(r.conversations, id)
	return nil
}

func (r *MemoryRepository) ListConversationsForUser(ctx context.Context, userID string) ([]*models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Conversation
	for _, c := range r.conversations {
		if c.RoleOf(userID) != "" {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *MemoryRepository) InsertMessage(ctx context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := cloneMessage(m)
	r.messages[m.ID] = cp
	return nil
}

func (r *MemoryRepository) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return cloneMessage(m), nil
}

func (r *MemoryRepository) UpdateMessageContent(ctx context.Context, id, content string, editedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return apperr.ErrNotFound
	}
	m.Content = content
	t := editedAt
	m.EditedAt = &t
	return nil
}

func (r *MemoryRepository) DeleteMessage(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(r.messages, id)
	return nil
}

func (r *MemoryRepository) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Message
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			out = append(out, *cloneMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) DeleteMessagesByConversation(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.messages {
		if m.ConversationID == conversationID {
			delete(r.messages, id)
		}
	}
	return nil
}

func (r *MemoryRepository) LastMessage(ctx context.Context, conversationID string) (*models.Message, error) {
	msgs, err := r.ListMessages(ctx, conversationID)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	last := msgs[len(msgs)-1]
	return &last, nil
}

func (r *MemoryRepository) MaxCreatedAt(ctx context.Context, conversationID string) (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var max time.Time
	for _, m := range r.messages {
		if m.ConversationID == conversationID && m.CreatedAt.After(max) {
			max = m.CreatedAt
		}
	}
	return max, nil
}

func (r *MemoryRepository) MarkReadUpTo(ctx context.Context, conversationID string, role models.Role, cutoff, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.messages {
		if m.ConversationID != conversationID || m.SenderRole == role {
			continue
		}
		if m.CreatedAt.After(cutoff) || m.ReadBy[role] {
			continue
		}
		if m.ReadBy == nil {
			m.ReadBy = make(map[models.Role]bool)
		}
		if m.ReadAt == nil {
			m.ReadAt = make(map[models.Role]time.Time)
		}
		m.ReadBy[role] = true
		m.ReadAt[role] = at
		n++
	}
	return n, nil
}

func (r *MemoryRepository) UnreadCount(ctx context.Context, conversationID string, role models.Role) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, m := range r.messages {
		if m.ConversationID == conversationID && m.SenderRole != role && !m.ReadBy[role] {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) LegacyRecords(ctx context.Context, conversationID string) ([]models.LegacyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.LegacyRecord(nil), r.legacy[conversationID]...), nil
}

// SeedLegacy installs legacy records for a conversation. Test helper; the
// legacy collection is read-only in normal operation.
func (r *MemoryRepository) SeedLegacy(conversationID string, recs ...models.LegacyRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.legacy[conversationID] = append(r.legacy[conversationID], recs...)
}

func cloneMessage(m *models.Message) *models.Message {
	cp := *m
	if m.Attachments != nil {
		cp.Attachments = append([]models.AttachmentRef(nil), m.Attachments...)
	}
	if m.ReadBy != nil {
		cp.ReadBy = make(map[models.Role]bool, len(m.ReadBy))
		for k, v := range m.ReadBy {
			cp.ReadBy[k] = v
		}
	}
	if m.ReadAt != nil {
		cp.ReadAt = make(map[models.Role]time.Time, len(m.ReadAt))
		for k, v := range m.ReadAt {
			cp.ReadAt[k] = v
		}
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		cp.EditedAt = &t
	}
	return &cp
}
