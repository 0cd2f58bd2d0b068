package ws

import (
	"errors"
	"sync"

	"github.com/fathima-sithara/conversation-service/internal/models"
)

// ErrSlowSubscriber is returned by a channel sender whose buffer is full.
// The hub evicts such subscribers; delivery is at-least-once and a client
// that reconnects replays history, so dropping a stalled stream is safe.
var ErrSlowSubscriber = errors.New("subscriber not keeping up")

// Sender is the minimal interface the hub needs from a subscriber: the
// ability to push one message to the connected client.
type Sender interface {
	Send(models.Message) error
}

// Hub multiplexes conversation change events to every active subscriber of
// that conversation. Subscribers are keyed per conversation so fan-out for
// one conversation never touches another's.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int64]Sender
	nextID int64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int64]Sender)}
}

// Register adds a subscriber and returns the id used to unregister it.
func (h *Hub) Register(conversationID string, s Sender) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[conversationID]; !ok {
		h.subs[conversationID] = make(map[int64]Sender)
	}
	h.nextID++
	id := h.nextID
	h.subs[conversationID][id] = s
	return id
}

func (h *Hub) Unregister(conversationID string, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.subs[conversationID]; ok {
		delete(conns, id)
		if len(conns) == 0 {
			delete(h.subs, conversationID)
		}
	}
}

// Broadcast pushes the message to all current subscribers of its
// conversation. Best-effort: failed senders are evicted so broken streams
// don't accumulate, and the send is attempted on every subscriber even when
// an earlier one fails.
func (h *Hub) Broadcast(m models.Message) {
	h.mu.RLock()
	conns := h.subs[m.ConversationID]
	snapshot := make(map[int64]Sender, len(conns))
	for id, s := range conns {
		snapshot[id] = s
	}
	h.mu.RUnlock()

	var failed []int64
	for id, s := range snapshot {
		if err := s.Send(m); err != nil {
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		h.Unregister(m.ConversationID, id)
	}
}

// Subscribers reports the number of active subscribers for a conversation.
func (h *Hub) Subscribers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[conversationID])
}

// Subscription is an in-process channel subscriber, used by the websocket
// layer and by tests.
type Subscription struct {
	C chan models.Message

	hub            *Hub
	conversationID string
	id             int64
	once           sync.Once
}

type chanSender struct{ ch chan models.Message }

func (c chanSender) Send(m models.Message) error {
	select {
	case c.ch <- m:
		return nil
	default:
		return ErrSlowSubscriber
	}
}

// Subscribe registers a buffered channel subscriber. Cancel releases it.
func (h *Hub) Subscribe(conversationID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan models.Message, buffer)
	id := h.Register(conversationID, chanSender{ch: ch})
	return &Subscription{C: ch, hub: h, conversationID: conversationID, id: id}
}

func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.Unregister(s.conversationID, s.id)
	})
}
