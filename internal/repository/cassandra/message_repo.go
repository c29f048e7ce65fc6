package cassandra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"carelink-backend/internal/domain"
)

// MessageRepository handles message history in Cassandra. Messages are
// partitioned by the identity pair plus a daily bucket so a single
// long-running conversation never grows one partition unbounded.
type MessageRepository struct {
	session *gocql.Session
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(session *gocql.Session) *MessageRepository {
	return &MessageRepository{session: session}
}

// PairKey derives the partition key of a conversation between two
// identities. The key is order-independent so both directions of the
// same conversation land in one partition.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + ":" + b
}

// Save inserts one message
func (r *MessageRepository) Save(ctx context.Context, message *domain.Message) error {
	if message.Bucket == 0 {
		message.Bucket = domain.CalculateBucket(message.SentAt)
	}
	if message.MessageID == uuid.Nil {
		message.MessageID = uuid.New()
	}

	query := `
		INSERT INTO messages (
			pair_key, bucket, message_id, sender_id, receiver_id,
			content, message_type, sent_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.session.Query(query,
		PairKey(message.SenderID, message.ReceiverID),
		message.Bucket,
		message.MessageID,
		message.SenderID,
		message.ReceiverID,
		message.Content,
		message.MessageType,
		message.SentAt,
	).WithContext(ctx).Exec()

	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetConversation retrieves messages between two identities in one
// bucket, newest first, with cursor-based pagination.
func (r *MessageRepository) GetConversation(
	ctx context.Context,
	a, b string,
	bucket int,
	limit int,
	pageState []byte,
) ([]*domain.Message, []byte, error) {
	query := `
		SELECT bucket, message_id, sender_id, receiver_id,
		       content, message_type, sent_at
		FROM messages
		WHERE pair_key = ? AND bucket = ?
		ORDER BY sent_at DESC
		LIMIT ?
	`

	iter := r.session.Query(query, PairKey(a, b), bucket, limit).
		WithContext(ctx).
		PageState(pageState).
		Iter()

	var messages []*domain.Message
	for {
		message := &domain.Message{}
		if !iter.Scan(
			&message.Bucket,
			&message.MessageID,
			&message.SenderID,
			&message.ReceiverID,
			&message.Content,
			&message.MessageType,
			&message.SentAt,
		) {
			break
		}
		messages = append(messages, message)
	}

	nextPageState := iter.PageState()
	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return messages, nextPageState, nil
}

// GetRecent walks buckets backwards from today until limit messages
// are collected or maxBuckets days have been scanned.
func (r *MessageRepository) GetRecent(ctx context.Context, a, b string, limit, maxBuckets int) ([]*domain.Message, error) {
	var all []*domain.Message

	day := time.Now().UTC()
	for i := 0; i < maxBuckets && len(all) < limit; i++ {
		bucket := domain.CalculateBucket(day)
		messages, _, err := r.GetConversation(ctx, a, b, bucket, limit-len(all), nil)
		if err != nil {
			return nil, err
		}
		all = append(all, messages...)
		day = day.AddDate(0, 0, -1)
	}

	return all, nil
}

// Delete removes one message from a conversation partition
func (r *MessageRepository) Delete(ctx context.Context, a, b string, bucket int, messageID uuid.UUID) error {
	query := `DELETE FROM messages WHERE pair_key = ? AND bucket = ? AND message_id = ?`

	if err := r.session.Query(query, PairKey(a, b), bucket, messageID).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}
