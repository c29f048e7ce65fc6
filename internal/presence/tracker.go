// Package presence derives per-identity online state from connection
// registry transitions and mirrors it into a shared store.
package presence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"carelink-backend/internal/registry"
	"carelink-backend/pkg/constants"
	"carelink-backend/pkg/logger"
)

// Store is the external presence mirror
type Store interface {
	SetOnline(ctx context.Context, identity string, at time.Time) error
	SetOffline(ctx context.Context, identity string, at time.Time) error
	Refresh(ctx context.Context, identity string) error
}

// Tracker bridges registry online/offline transitions to the store.
// It implements registry.Listener. Store writes happen off the
// registry's locking path; presence is advisory, so write failures are
// logged and not retried.
type Tracker struct {
	store    Store
	registry *registry.Registry
	timeout  time.Duration
}

// NewTracker creates a tracker mirroring reg transitions into store
func NewTracker(store Store, reg *registry.Registry) *Tracker {
	return &Tracker{store: store, registry: reg, timeout: constants.DefaultTimeout}
}

// IdentityOnline implements registry.Listener
func (t *Tracker) IdentityOnline(identity string, at time.Time) {
	go t.write(identity, at, t.store.SetOnline)
}

// IdentityOffline implements registry.Listener
func (t *Tracker) IdentityOffline(identity string, at time.Time) {
	go t.write(identity, at, t.store.SetOffline)
}

func (t *Tracker) write(identity string, at time.Time, op func(context.Context, string, time.Time) error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := op(ctx, identity, at); err != nil {
		logger.Warn("presence write failed",
			zap.String("identity", identity),
			zap.Error(err))
	}
}

// Run refreshes the TTL of every locally online identity until ctx is
// cancelled, so presence keys outlive their expiry while the identity
// stays connected.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, identity := range t.registry.OnlineIdentities() {
				refreshCtx, cancel := context.WithTimeout(ctx, t.timeout)
				if err := t.store.Refresh(refreshCtx, identity); err != nil {
					logger.Warn("presence refresh failed",
						zap.String("identity", identity),
						zap.Error(err))
				}
				cancel()
			}
		}
	}
}
