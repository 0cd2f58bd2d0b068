package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/conversation-service/internal/logger"
	"github.com/fathima-sithara/conversation-service/internal/models"
)

// ClassMessage is the notification class for new-message events.
const ClassMessage = "message"

// NotifyGate decides whether an event may surface a notification. The
// throttle package implements it.
type NotifyGate interface {
	Allow(ctx context.Context, conversationID, class string) (bool, error)
}

// GatedPublisher publishes every event but flips Notify off for events inside
// the cool-down window. The event itself always flows so sync consumers stay
// current even when the notification is suppressed.
type GatedPublisher struct {
	pub  *Publisher
	gate NotifyGate
	log  *zap.SugaredLogger
}

func NewGated(pub *Publisher, gate NotifyGate, log *zap.SugaredLogger) *GatedPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &GatedPublisher{pub: pub, gate: gate, log: log}
}

func (g *GatedPublisher) MessageNew(ctx context.Context, m *models.Message) error {
	notify := true
	if g.gate != nil {
		ok, err := g.gate.Allow(ctx, m.ConversationID, ClassMessage)
		if err != nil {
			// gate unreachable: fail open, a duplicate notification beats a
			// silently dropped one
			g.log.Warnw("notify gate", "conversation", m.ConversationID, "err", err)
		} else {
			notify = ok
		}
	}
	return g.pub.publish(ctx, m.ConversationID, MessageEvent{
		Event:          EventMessageNew,
		ConversationID: m.ConversationID,
		Message:        m,
		Notify:         notify,
		At:             time.Now().UTC(),
	})
}

func (g *GatedPublisher) MessageRead(ctx context.Context, conversationID string, role models.Role, upToMessageID string) error {
	return g.pub.MessageRead(ctx, conversationID, role, upToMessageID)
}
