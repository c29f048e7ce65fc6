// Package registry owns the identity -> live-connection map, the only
// shared mutable state of the relay. It is created once at hub start
// and guarded by a single mutex; entries appear on join and disappear
// when an identity's last connection leaves.
package registry

import (
	"sync"
	"time"
)

// Conn is a live connection handle. Deliver must not block: it returns
// false when the payload was dropped (e.g. the client buffer is full).
type Conn interface {
	Deliver(payload []byte) bool
}

// Listener observes identity-level presence transitions. Callbacks run
// synchronously under the registry lock ordering (never concurrently
// for the same identity) and must not call back into the registry.
type Listener interface {
	IdentityOnline(identity string, at time.Time)
	IdentityOffline(identity string, at time.Time)
}

// Registry maps identities to their currently live connections.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]map[Conn]struct{}
	identity map[Conn]string
	lastSeen map[string]time.Time

	listeners []Listener
	now       func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates an empty registry
func New(opts ...Option) *Registry {
	r := &Registry{
		conns:    make(map[string]map[Conn]struct{}),
		identity: make(map[Conn]string),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddListener registers a presence listener. Not safe to call after
// connections start joining.
func (r *Registry) AddListener(l Listener) {
	r.listeners = append(r.listeners, l)
}

// Join registers conn under identity. Idempotent for the same pair;
// if conn was previously joined under another identity, the last join
// wins and the old binding is released first.
func (r *Registry) Join(identity string, conn Conn) {
	r.mu.Lock()

	var wentOffline string
	if prev, ok := r.identity[conn]; ok {
		if prev == identity {
			r.mu.Unlock()
			return
		}
		wentOffline = r.removeLocked(prev, conn)
	}

	set, ok := r.conns[identity]
	if !ok {
		set = make(map[Conn]struct{})
		r.conns[identity] = set
	}
	first := len(set) == 0
	set[conn] = struct{}{}
	r.identity[conn] = identity
	at := r.now()
	r.lastSeen[identity] = at
	r.mu.Unlock()

	if wentOffline != "" {
		for _, l := range r.listeners {
			l.IdentityOffline(wentOffline, at)
		}
	}
	if first {
		for _, l := range r.listeners {
			l.IdentityOnline(identity, at)
		}
	}
}

// Leave removes conn. When the owning identity's connection set becomes
// empty, the identity is marked offline and lastSeen stamped.
func (r *Registry) Leave(conn Conn) {
	r.mu.Lock()
	identity, ok := r.identity[conn]
	if !ok {
		r.mu.Unlock()
		return
	}
	wentOffline := r.removeLocked(identity, conn)
	at := r.now()
	if wentOffline != "" {
		r.lastSeen[identity] = at
	}
	r.mu.Unlock()

	if wentOffline != "" {
		for _, l := range r.listeners {
			l.IdentityOffline(wentOffline, at)
		}
	}
}

// removeLocked deletes the binding and returns the identity if its
// connection set became empty. Caller holds r.mu.
func (r *Registry) removeLocked(identity string, conn Conn) string {
	delete(r.identity, conn)
	set, ok := r.conns[identity]
	if !ok {
		return ""
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.conns, identity)
		return identity
	}
	return ""
}

// Publish delivers payload to every live connection of identity.
// Returns the number of successful deliveries and the number of drops.
// Zero connections is a silent no-op: no queueing, no error, no retry.
func (r *Registry) Publish(identity string, payload []byte) (delivered, dropped int) {
	r.mu.RLock()
	set := r.conns[identity]
	targets := make([]Conn, 0, len(set))
	for conn := range set {
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	for _, conn := range targets {
		if conn.Deliver(payload) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

// Online reports whether identity has at least one live connection
func (r *Registry) Online(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[identity]) > 0
}

// LastSeen returns the last join/leave timestamp for identity
func (r *Registry) LastSeen(identity string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.lastSeen[identity]
	return t, ok
}

// OnlineIdentities returns all identities with live connections
func (r *Registry) OnlineIdentities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.conns))
	for identity := range r.conns {
		out = append(out, identity)
	}
	return out
}

// OnlineCount returns the number of identities with live connections
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
