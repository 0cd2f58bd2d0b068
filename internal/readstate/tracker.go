// Package readstate tracks per-message, per-role read state. Marking is
// batch and monotonic: repeated or out-of-order calls never unset a flag.
package readstate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/logger"
	"github.com/fathima-sithara/conversation-service/internal/models"
	"github.com/fathima-sithara/conversation-service/internal/repository"
)

// EventPublisher is notified after reads flip so the notification pipeline
// can clear pending badges.
type EventPublisher interface {
	MessageRead(ctx context.Context, conversationID string, role models.Role, upToMessageID string) error
}

type Tracker struct {
	repo   repository.Repository
	events EventPublisher
	log    *zap.SugaredLogger
}

func NewTracker(repo repository.Repository, events EventPublisher, log *zap.SugaredLogger) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{repo: repo, events: events, log: log}
}

// MarkRead sets ReadBy[role] for every message in the conversation with
// CreatedAt up to and including the cutoff message, excluding the role's own
// messages. Safe to call repeatedly and out of order: a call with an earlier
// cutoff than a previous one is a no-op.
//
// Callers decide when to invoke this — typically on opening a conversation
// (eager read-on-view) or on an explicit acknowledgment. The engine itself
// never infers "read" from a subscription.
func (t *Tracker) MarkRead(ctx context.Context, conversationID string, role models.Role, upToMessageID string) error {
	cutoff, err := t.repo.GetMessage(ctx, upToMessageID)
	if err != nil {
		return err
	}
	if cutoff.ConversationID != conversationID {
		return fmt.Errorf("%w: message %s not in conversation %s", apperr.ErrNotFound, upToMessageID, conversationID)
	}

	n, err := t.repo.MarkReadUpTo(ctx, conversationID, role, cutoff.CreatedAt, time.Now().UTC())
	if err != nil {
		return err
	}
	if n > 0 && t.events != nil {
		if err := t.events.MessageRead(ctx, conversationID, role, upToMessageID); err != nil {
			t.log.Warnw("publish read event", "conversation", conversationID, "err", err)
		}
	}
	return nil
}

// UnreadCount counts messages not sent by the role that the role has not
// read yet.
func (t *Tracker) UnreadCount(ctx context.Context, conversationID string, role models.Role) (int64, error) {
	return t.repo.UnreadCount(ctx, conversationID, role)
}
