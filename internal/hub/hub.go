// Package hub fans console lines out to attached SSH sessions.
package hub

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// DefaultBufferSize is the per-subscription queue length.
const DefaultBufferSize = 256

// Subscription is a single attached session.
type Subscription struct {
	ID   string
	User string
	// Lines is closed when the subscription ends.
	Lines <-chan string

	send   chan string
	closed bool
}

// Hub manages all subscriptions.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]*Subscription
	ring     []string
	ringNext int
	ringLen  int
	bufSize  int
}

// NewHub creates a new Hub keeping the last scrollback lines.
func NewHub(scrollback int) *Hub {
	if scrollback < 0 {
		scrollback = 0
	}
	return &Hub{
		subs:    make(map[string]*Subscription),
		ring:    make([]string, scrollback),
		bufSize: DefaultBufferSize,
	}
}

// SetBufferSize changes the queue length of future subscriptions.
func (h *Hub) SetBufferSize(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n > 0 {
		h.bufSize = n
	}
}

// Subscribe registers a new subscription.
func (h *Hub) Subscribe(user string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan string, h.bufSize)
	sub := &Subscription{
		ID:    uuid.New().String(),
		User:  user,
		Lines: ch,
		send:  ch,
	}
	h.subs[sub.ID] = sub
	log.Printf("[hub] subscription registered: %s (user: %s)", sub.ID, user)
	return sub
}

// Unsubscribe removes a subscription and closes its channel. It is safe to
// call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(h.subs, sub.ID)
	close(sub.send)
	log.Printf("[hub] subscription unregistered: %s", sub.ID)
}

// Publish delivers a line to every subscription without blocking. A
// subscription whose queue is full is dropped.
func (h *Hub) Publish(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.ring) > 0 {
		h.ring[h.ringNext] = line
		h.ringNext = (h.ringNext + 1) % len(h.ring)
		if h.ringLen < len(h.ring) {
			h.ringLen++
		}
	}

	for _, sub := range h.subs {
		select {
		case sub.send <- line:
		default:
			log.Printf("[hub] subscription %s buffer full, dropping", sub.ID)
			h.removeLocked(sub)
		}
	}
}

// Recent returns up to n of the newest lines, oldest first.
func (h *Hub) Recent(n int) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n > h.ringLen {
		n = h.ringLen
	}
	if n <= 0 {
		return nil
	}
	out := make([]string, 0, n)
	start := h.ringNext - n
	if start < 0 {
		start += len(h.ring)
	}
	for i := 0; i < n; i++ {
		out = append(out, h.ring[(start+i)%len(h.ring)])
	}
	return out
}

// Count returns the number of active subscriptions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Users returns the users of active subscriptions.
func (h *Hub) Users() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]string, 0, len(h.subs))
	for _, sub := range h.subs {
		users = append(users, sub.User)
	}
	return users
}
