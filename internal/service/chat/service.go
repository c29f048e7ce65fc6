// Package chat implements message history and REST-initiated sends on
// top of the realtime relay.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"carelink-backend/internal/domain"
	"carelink-backend/pkg/constants"
)

// historyScanDays bounds how many daily buckets a recent-history query
// walks backwards.
const historyScanDays = 30

// MessageRepo is the persistence layer of the service
type MessageRepo interface {
	Save(ctx context.Context, message *domain.Message) error
	GetConversation(ctx context.Context, a, b string, bucket, limit int, pageState []byte) ([]*domain.Message, []byte, error)
	GetRecent(ctx context.Context, a, b string, limit, maxBuckets int) ([]*domain.Message, error)
}

// Relay pushes an event toward one identity's live connections.
// Delivery to an offline identity is a silent no-op.
type Relay interface {
	Send(to, event string, data interface{})
}

// ErrInvalidMessage is returned for empty or oversized content
var ErrInvalidMessage = errors.New("chat: invalid message")

// Service handles chat business logic
type Service struct {
	messages MessageRepo
	relay    Relay
}

// NewService creates a new chat service
func NewService(messages MessageRepo, relay Relay) *Service {
	return &Service{messages: messages, relay: relay}
}

// MessagePayload is the relayed form of a stored message
type MessagePayload struct {
	MessageID   uuid.UUID `json:"message_id"`
	SenderID    string    `json:"sender_id"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	SentAt      time.Time `json:"sent_at"`
}

// SendMessage stores a message and forwards it to the receiver's live
// connections.
func (s *Service) SendMessage(ctx context.Context, senderID string, input *domain.MessageCreate) (*domain.Message, error) {
	if input.Content == "" || len(input.Content) > constants.MaxMessageLength {
		return nil, ErrInvalidMessage
	}
	if input.ReceiverID == "" || input.ReceiverID == senderID {
		return nil, ErrInvalidMessage
	}

	now := time.Now().UTC()
	message := &domain.Message{
		MessageID:   uuid.New(),
		SenderID:    senderID,
		ReceiverID:  input.ReceiverID,
		Content:     input.Content,
		MessageType: input.MessageType,
		Bucket:      domain.CalculateBucket(now),
		SentAt:      now,
	}
	if message.MessageType == "" {
		message.MessageType = constants.MessageTypeText
	}

	if err := s.messages.Save(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	s.relay.Send(message.ReceiverID, "message", MessagePayload{
		MessageID:   message.MessageID,
		SenderID:    message.SenderID,
		Content:     message.Content,
		MessageType: message.MessageType,
		SentAt:      message.SentAt,
	})

	return message, nil
}

// GetRecentMessages returns the latest messages between two identities,
// newest first.
func (s *Service) GetRecentMessages(ctx context.Context, a, b string, limit int) ([]*domain.Message, error) {
	if limit <= 0 || limit > constants.MaxPageSize {
		limit = constants.DefaultPageSize
	}

	messages, err := s.messages.GetRecent(ctx, a, b, limit, historyScanDays)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}

// GetConversationPage returns one bucket's worth of history with a
// pagination cursor.
func (s *Service) GetConversationPage(ctx context.Context, a, b string, bucket, limit int, pageState []byte) ([]*domain.Message, []byte, error) {
	if limit <= 0 || limit > constants.MaxPageSize {
		limit = constants.DefaultPageSize
	}
	if bucket == 0 {
		bucket = domain.CalculateBucket(time.Now())
	}

	messages, next, err := s.messages.GetConversation(ctx, a, b, bucket, limit, pageState)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, next, nil
}
