package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fathima-sithara/conversation-service/internal/models"
)

// Event names consumed by the push-transport worker. The engine never calls
// the push transport directly; it publishes and the worker decides delivery.
const (
	EventMessageNew  = "message.new"
	EventMessageRead = "message.read"
)

type MessageEvent struct {
	Event          string          `json:"event"`
	ConversationID string          `json:"conversation_id"`
	Message        *models.Message `json:"message,omitempty"`
	Role           models.Role     `json:"role,omitempty"`
	UpToMessageID  string          `json:"up_to_message_id,omitempty"`
	// Notify tells the push worker whether this event may surface a
	// user-visible notification; the cool-down gate sets it.
	Notify bool      `json:"notify"`
	At     time.Time `json:"at"`
}

type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &Publisher{writer: w}
}

func (p *Publisher) publish(ctx context.Context, key string, ev MessageEvent) error {
	if p == nil || p.writer == nil {
		return nil
	}
	b, _ := json.Marshal(ev)
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b, Time: time.Now()})
}

func (p *Publisher) MessageNew(ctx context.Context, m *models.Message) error {
	return p.publish(ctx, m.ConversationID, MessageEvent{
		Event:          EventMessageNew,
		ConversationID: m.ConversationID,
		Message:        m,
		Notify:         true,
		At:             time.Now().UTC(),
	})
}

func (p *Publisher) MessageRead(ctx context.Context, conversationID string, role models.Role, upToMessageID string) error {
	return p.publish(ctx, conversationID, MessageEvent{
		Event:          EventMessageRead,
		ConversationID: conversationID,
		Role:           role,
		UpToMessageID:  upToMessageID,
		At:             time.Now().UTC(),
	})
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
