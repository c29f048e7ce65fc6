package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a chat message entity
// Maps to the Cassandra messages table (append-only, bucketed by day)
type Message struct {
	MessageID   uuid.UUID `json:"message_id" cql:"message_id"`
	SenderID    string    `json:"sender_id" cql:"sender_id"`
	ReceiverID  string    `json:"receiver_id" cql:"receiver_id"`
	Content     string    `json:"content" cql:"content"`
	MessageType string    `json:"message_type" cql:"message_type"` // text, image
	Bucket      int       `json:"-" cql:"bucket"`
	SentAt      time.Time `json:"sent_at" cql:"sent_at"`
}

// MessageCreate represents data needed to send a message
type MessageCreate struct {
	ReceiverID  string `json:"receiver_id" binding:"required"`
	Content     string `json:"content" binding:"required"`
	MessageType string `json:"message_type" binding:"required,oneof=text image"`
}

// CalculateBucket maps a timestamp to its daily partition bucket
func CalculateBucket(t time.Time) int {
	return t.UTC().Year()*10000 + int(t.UTC().Month())*100 + t.UTC().Day()
}
