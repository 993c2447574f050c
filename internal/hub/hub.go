// Package hub fans live thread events out to stream subscribers.
package hub

import (
	"log/slog"
	"sync"

	"github.com/threadview/threadview/pkg/domain"
)

const defaultBufferSize = 256

// Subscriber receives the events published for one thread. The channel
// closes when the subscriber is cancelled or evicted; a consumer seeing
// the close should resubscribe and start from a fresh snapshot.
type Subscriber struct {
	ch     chan domain.Event
	closed bool
}

// C returns the subscriber's event channel.
func (s *Subscriber) C() <-chan domain.Event {
	return s.ch
}

type Hub struct {
	mu         sync.Mutex
	subs       map[string]map[*Subscriber]struct{}
	bufferSize int
	logger     *slog.Logger
}

func New(logger *slog.Logger, bufferSize int) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		subs:       make(map[string]map[*Subscriber]struct{}),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe registers a subscriber for a thread and returns it with a
// cancel function. Cancel is idempotent and safe after eviction.
func (h *Hub) Subscribe(threadID string) (*Subscriber, func()) {
	sub := &Subscriber{ch: make(chan domain.Event, h.bufferSize)}

	h.mu.Lock()
	set, ok := h.subs[threadID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[threadID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.removeLocked(threadID, sub)
	}
	return sub, cancel
}

// Publish delivers an event to every subscriber of the thread. Delivery
// never blocks the ingest path: a subscriber whose buffer is full is
// evicted, which preserves per-artifact ordering for everyone who stays
// connected (dropping individual deltas would corrupt accumulation).
func (h *Hub) Publish(threadID string, ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[threadID] {
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("evicting slow stream subscriber", "threadId", threadID)
			h.removeLocked(threadID, sub)
		}
	}
}

// SubscriberCount returns the live subscriber count for a thread.
func (h *Hub) SubscriberCount(threadID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[threadID])
}

func (h *Hub) removeLocked(threadID string, sub *Subscriber) {
	set, ok := h.subs[threadID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, threadID)
	}
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}
