package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"carelink-backend/internal/domain"
	"carelink-backend/pkg/constants"
)

// PresenceRepository mirrors the in-memory presence of this node into
// Redis so other services (and other relay nodes) can read it. Keys
// carry a TTL as a safety net against nodes dying without cleanup.
type PresenceRepository struct {
	client *redis.Client
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *redis.Client) *PresenceRepository {
	return &PresenceRepository{client: client}
}

func presenceKey(identity string) string {
	return fmt.Sprintf("presence:%s", identity)
}

// SetOnline marks identity online and adds it to the online set
func (r *PresenceRepository) SetOnline(ctx context.Context, identity string, at time.Time) error {
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, presenceKey(identity), map[string]interface{}{
		"status":    constants.UserStatusOnline,
		"last_seen": at.UTC().Format(time.RFC3339),
	})
	pipe.Expire(ctx, presenceKey(identity), constants.PresenceTTL)
	pipe.SAdd(ctx, "presence:online", identity)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set presence online: %w", err)
	}
	return nil
}

// SetOffline marks identity offline with a last-seen timestamp
func (r *PresenceRepository) SetOffline(ctx context.Context, identity string, at time.Time) error {
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, presenceKey(identity), map[string]interface{}{
		"status":    constants.UserStatusOffline,
		"last_seen": at.UTC().Format(time.RFC3339),
	})
	pipe.Expire(ctx, presenceKey(identity), constants.PresenceTTL)
	pipe.SRem(ctx, "presence:online", identity)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set presence offline: %w", err)
	}
	return nil
}

// Refresh extends the TTL of an online identity's presence key
func (r *PresenceRepository) Refresh(ctx context.Context, identity string) error {
	return r.client.Expire(ctx, presenceKey(identity), constants.PresenceTTL).Err()
}

// Get returns the stored presence of one identity. An identity with no
// record, or an expired one, reads as offline with no last-seen.
func (r *PresenceRepository) Get(ctx context.Context, identity string) (*domain.Presence, error) {
	fields, err := r.client.HGetAll(ctx, presenceKey(identity)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	p := &domain.Presence{Identity: identity}
	if len(fields) == 0 {
		return p, nil
	}
	p.Online = fields["status"] == constants.UserStatusOnline
	if raw, ok := fields["last_seen"]; ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			p.LastSeen = ts
		}
	}
	return p, nil
}

// OnlineIdentities returns every identity in the online set
func (r *PresenceRepository) OnlineIdentities(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, "presence:online").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list online identities: %w", err)
	}
	return members, nil
}
