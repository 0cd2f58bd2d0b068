package ws

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/conversation-service/internal/cache"
	"github.com/fathima-sithara/conversation-service/internal/logger"
	"github.com/fathima-sithara/conversation-service/internal/middleware"
	"github.com/fathima-sithara/conversation-service/internal/models"
	"github.com/fathima-sithara/conversation-service/internal/readstate"
	"github.com/fathima-sithara/conversation-service/internal/store"
)

const subscriberBuffer = 256

// Server upgrades conversation websockets: it authenticates the query token,
// checks the caller is a participant, replays the reconciled history and then
// streams live changes until disconnect.
type Server struct {
	hub      *Hub
	store    *store.Store
	tracker  *readstate.Tracker
	jv       *middleware.Validator
	presence *cache.Client
	log      *zap.SugaredLogger
}

func NewServer(hub *Hub, st *store.Store, tracker *readstate.Tracker, jv *middleware.Validator, presence *cache.Client, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{hub: hub, store: st, tracker: tracker, jv: jv, presence: presence, log: log}
}

// HandleWS serves /ws?token=<jwt>&conversation_id=<id>.
func (s *Server) HandleWS() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		token := conn.Query("token")
		convID := conn.Query("conversation_id")
		if token == "" || convID == "" {
			_ = conn.Close()
			return
		}
		uid, role, err := s.jv.Validate(token)
		if err != nil {
			_ = conn.Close()
			return
		}

		ctx := context.Background()
		conv, err := s.store.GetConversation(ctx, convID)
		if err != nil {
			_ = conn.Close()
			return
		}
		if conv.RoleOf(uid) == "" {
			s.log.Warnw("ws rejected, not a participant", "conversation", convID, "user", uid)
			_ = conn.Close()
			return
		}

		if s.presence != nil {
			_ = s.presence.SetPresence(ctx, uid, true)
			defer func() {
				_ = s.presence.SetPresence(context.Background(), uid, false)
			}()
		}

		// Register before replaying so nothing appended during the replay is
		// missed. A message can arrive both in the replay and live; delivery
		// is at-least-once and clients collapse duplicates by message id.
		sub := s.hub.Subscribe(convID, subscriberBuffer)
		defer sub.Cancel()

		history, err := s.store.History(ctx, convID)
		if err != nil {
			s.log.Errorw("ws history replay", "conversation", convID, "err", err)
			_ = conn.Close()
			return
		}
		for i := range history {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(history[i]); err != nil {
				_ = conn.Close()
				return
			}
		}

		c := &Connection{
			ws:   conn,
			sub:  sub,
			conv: convID,
			uid:  uid,
			role: role,
			onMarkRead: func(conversationID string, role models.Role, upTo string) {
				if s.tracker == nil {
					return
				}
				if err := s.tracker.MarkRead(context.Background(), conversationID, role, upTo); err != nil {
					s.log.Warnw("ws mark read", "conversation", conversationID, "err", err)
				}
			},
		}
		go c.writePump()
		c.readPump()
	}
}
