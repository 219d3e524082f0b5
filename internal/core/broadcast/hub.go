// Package broadcast fans out per-user statistics snapshots to live
// subscribers such as the SSE stream endpoint.
package broadcast

import (
	"sync"

	"github.com/solatis/labelkeeper/internal/types"
)

// Subscription receives the latest snapshot for one user. C is closed when
// the subscription is cancelled or the hub is closed.
type Subscription struct {
	C    <-chan types.Statistics
	ch   chan types.Statistics
	user types.UserID
	hub  *Hub
	once sync.Once
}

// Cancel detaches the subscription from its hub. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Hub delivers statistics snapshots to subscribers of the same user.
// Publish never blocks: each subscriber holds at most one pending snapshot
// and a newer one replaces it.
type Hub struct {
	mu     sync.Mutex
	subs   map[types.UserID]map[*Subscription]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[types.UserID]map[*Subscription]struct{})}
}

// Subscribe registers a subscriber for user. On a closed hub the returned
// subscription's channel is already closed.
func (h *Hub) Subscribe(user types.UserID) *Subscription {
	ch := make(chan types.Statistics, 1)
	sub := &Subscription{C: ch, ch: ch, user: user, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	set, ok := h.subs[user]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[user] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish hands snapshot to every subscriber of user and returns how many
// subscribers it reached.
func (h *Hub) Publish(user types.UserID, snapshot types.Statistics) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for sub := range h.subs[user] {
		// Drop a stale pending snapshot so the newest one wins.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- snapshot:
			n++
		default:
		}
	}
	return n
}

// Subscribers returns the number of live subscribers for user.
func (h *Hub) Subscribers(user types.UserID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[user])
}

// Close cancels every subscription. Later Subscribe calls return closed
// subscriptions and Publish becomes a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for user, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(h.subs, user)
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.user]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(h.subs, sub.user)
	}
}
