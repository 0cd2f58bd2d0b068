// Package store owns the canonical per-conversation message log: it
// serializes writes, assigns strictly monotonic ordering keys, and publishes
// change events to the fan-out hub and the event bus.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/logger"
	"github.com/fathima-sithara/conversation-service/internal/models"
	"github.com/fathima-sithara/conversation-service/internal/reconcile"
	"github.com/fathima-sithara/conversation-service/internal/repository"
)

const (
	// MaxAttachments is the per-message attachment cap.
	MaxAttachments = 5
	// MaxContentBytes caps text content.
	MaxContentBytes = 8 << 10
)

// Broadcaster receives every appended or edited message for live fan-out.
type Broadcaster interface {
	Broadcast(models.Message)
}

// EventPublisher feeds the external notification pipeline.
type EventPublisher interface {
	MessageNew(ctx context.Context, m *models.Message) error
}

// convState carries the per-conversation write lock and the high-water mark
// for ordering-key assignment.
type convState struct {
	mu           sync.Mutex
	lastAssigned time.Time
	loaded       bool
}

type Store struct {
	repo   repository.Repository
	hub    Broadcaster
	events EventPublisher
	log    *zap.SugaredLogger

	mu     sync.Mutex
	states map[string]*convState
}

func New(repo repository.Repository, hub Broadcaster, events EventPublisher, log *zap.SugaredLogger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		repo:   repo,
		hub:    hub,
		events: events,
		log:    log,
		states: make(map[string]*convState),
	}
}

func (s *Store) state(conversationID string) *convState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[conversationID]
	if !ok {
		st = &convState{}
		s.states[conversationID] = st
	}
	return st
}

// Participants names the fixed participant set of a conversation.
type Participants struct {
	StudentID string
	CoachID   string
	AdminID   string
}

// GetOrCreate resolves the deterministic conversation for a participant set,
// creating it lazily. Concurrent callers converge on the same record.
func (s *Store) GetOrCreate(ctx context.Context, p Participants) (*models.Conversation, error) {
	if p.StudentID == "" {
		return nil, fmt.Errorf("conversation requires a student participant")
	}
	now := time.Now().UTC()
	c := &models.Conversation{
		ID:        models.ConversationID(p.StudentID, p.CoachID, p.AdminID),
		StudentID: p.StudentID,
		CoachID:   p.CoachID,
		AdminID:   p.AdminID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.repo.UpsertConversation(ctx, c)
}

// GetConversation loads a conversation by id.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	return s.repo.GetConversation(ctx, conversationID)
}

// Append validates, orders and persists a new message, then fans it out.
// Ordering keys are assigned under the per-conversation lock as
// max(now, last+1ms), so CreatedAt is strictly monotonic within the
// conversation even when the wall clock is coarse or steps backwards.
func (s *Store) Append(ctx context.Context, conversationID, senderID string, role models.Role, content string, attachments []models.AttachmentRef, kind models.MessageKind) (*models.Message, error) {
	if content == "" && len(attachments) == 0 {
		return nil, apperr.ErrEmptyMessage
	}
	if len(content) > MaxContentBytes {
		return nil, apperr.ErrMessageTooLarge
	}
	if len(attachments) > MaxAttachments {
		return nil, fmt.Errorf("%w: %d attachments, limit %d", apperr.ErrAttachmentLimit, len(attachments), MaxAttachments)
	}
	if kind == "" {
		kind = models.KindText
	}
	if kind == models.KindVoice {
		if len(attachments) != 1 || attachments[0].Kind != models.MediaVoice {
			return nil, apperr.ErrInvalidVoice
		}
	}

	if _, err := s.repo.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	st := s.state(conversationID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.loaded {
		max, err := s.repo.MaxCreatedAt(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		st.lastAssigned = max
		st.loaded = true
	}

	now := time.Now().UTC()
	if !now.After(st.lastAssigned) {
		now = st.lastAssigned.Add(time.Millisecond)
	}

	m := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderRole:     role,
		Content:        content,
		Attachments:    attachments,
		Kind:           kind,
		CreatedAt:      now,
		ReadBy:         map[models.Role]bool{role: true},
		ReadAt:         map[models.Role]time.Time{role: now},
	}

	if err := s.repo.InsertMessage(ctx, m); err != nil {
		return nil, err
	}
	st.lastAssigned = now

	if err := s.repo.TouchConversation(ctx, conversationID, now); err != nil {
		s.log.Warnw("touch conversation", "conversation", conversationID, "err", err)
	}

	s.fanout(ctx, m)
	return m, nil
}

func (s *Store) fanout(ctx context.Context, m *models.Message) {
	if s.hub != nil {
		s.hub.Broadcast(*m)
	}
	if s.events != nil {
		if err := s.events.MessageNew(ctx, m); err != nil {
			s.log.Warnw("publish message event", "message", m.ID, "err", err)
		}
	}
}

// EditContent rewrites a text message's content. Sender-only, never for
// voice messages, and the ordering position is unchanged.
func (s *Store) EditContent(ctx context.Context, messageID, editorID, newContent string) (*models.Message, error) {
	m, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != editorID {
		return nil, fmt.Errorf("%w: only the sender may edit", apperr.ErrPermission)
	}
	if m.HasVoice() {
		return nil, apperr.ErrVoiceNotEditable
	}
	if newContent == "" && len(m.Attachments) == 0 {
		return nil, apperr.ErrEmptyMessage
	}
	if len(newContent) > MaxContentBytes {
		return nil, apperr.ErrMessageTooLarge
	}

	st := s.state(m.ConversationID)
	st.mu.Lock()
	defer st.mu.Unlock()

	editedAt := time.Now().UTC()
	if err := s.repo.UpdateMessageContent(ctx, messageID, newContent, editedAt); err != nil {
		return nil, err
	}
	m.Content = newContent
	m.EditedAt = &editedAt

	// subscribers see the edit as a re-delivery of the same message id
	if s.hub != nil {
		s.hub.Broadcast(*m)
	}
	return m, nil
}

// Delete hard-deletes a single message. Sender-only.
func (s *Store) Delete(ctx context.Context, messageID, callerID string) error {
	m, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if m.SenderID != callerID {
		return fmt.Errorf("%w: only the sender may delete", apperr.ErrPermission)
	}

	st := s.state(m.ConversationID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return s.repo.DeleteMessage(ctx, messageID)
}

// DeleteConversation removes the conversation and its full message log.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	st := s.state(conversationID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := s.repo.DeleteMessagesByConversation(ctx, conversationID); err != nil {
		return err
	}
	if err := s.repo.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.states, conversationID)
	s.mu.Unlock()
	return nil
}

// History returns the reconciled canonical timeline: stored flat messages
// merged with whatever legacy shapes the conversation still carries.
func (s *Store) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	legacy, err := s.repo.LegacyRecords(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return reconcile.Messages(conversationID, responderRole(conv), msgs, legacy), nil
}

// responderRole names the second party of a conversation's legacy records:
// support threads have an admin, coaching chats a coach.
func responderRole(c *models.Conversation) models.Role {
	if c.AdminID != "" {
		return models.RoleAdmin
	}
	return models.RoleCoach
}

// InboxEntry is one row of a participant's conversation list.
type InboxEntry struct {
	Conversation *models.Conversation `json:"conversation"`
	LastMessage  *models.Message      `json:"last_message,omitempty"`
	UnreadCount  int64                `json:"unread_count"`
}

// Inbox lists the user's conversations ordered by last activity, with
// last-message preview and unread count for the user's role in each.
func (s *Store) Inbox(ctx context.Context, userID string) ([]InboxEntry, error) {
	convs, err := s.repo.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]InboxEntry, 0, len(convs))
	for _, c := range convs {
		entry := InboxEntry{Conversation: c}
		if entry.LastMessage, err = s.repo.LastMessage(ctx, c.ID); err != nil {
			return nil, err
		}
		role := c.RoleOf(userID)
		if entry.UnreadCount, err = s.repo.UnreadCount(ctx, c.ID, role); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}
